package oracle

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-grok-pilot/internal/log"
	"github.com/teslashibe/go-grok-pilot/pkg/inference"
)

var jpeg = []byte{0xFF, 0xD8, 0xFF, 0xD9}

func newTestClient(t *testing.T, p inference.Provider, opts ...Option) *Client {
	t.Helper()
	opts = append(opts, WithLogger(log.Discard()))
	c, err := NewClient(p, opts...)
	require.NoError(t, err)
	return c
}

func TestCheckClearance(t *testing.T) {
	mock := inference.NewMock(`{"is_clear": true, "overall_safety_score": 90, "front_clearance_cm": 250,
		"safe_for_forward_movement": true, "recommended_action": "proceed"}`)
	c := newTestClient(t, mock)

	r, err := c.CheckClearance(context.Background(), jpeg, ManeuverForward, 110)
	require.NoError(t, err)
	assert.True(t, r.SafeFor(ManeuverForward))
	assert.Equal(t, 250, r.FrontCm)
	assert.Equal(t, UnknownClearance, r.BelowCm)

	call := mock.LastCall()
	require.NotNil(t, call)
	assert.True(t, call.Request.JSON)
	assert.Contains(t, call.Request.System, "110cm")
	assert.Len(t, call.Request.Images, 1)
}

func TestCheckClearanceMalformed(t *testing.T) {
	c := newTestClient(t, inference.NewMock("the path looks clear to me"))

	_, err := c.CheckClearance(context.Background(), jpeg, ManeuverForward, 100)
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Contains(t, pe.Raw, "looks clear")
}

func TestCheckClearanceEmptyFrame(t *testing.T) {
	c := newTestClient(t, inference.NewMock("{}"))
	_, err := c.CheckClearance(context.Background(), nil, ManeuverFlip, 50)
	assert.True(t, errors.Is(err, ErrEmptyFrame))
}

func TestVerifyIdentity(t *testing.T) {
	mock := inference.NewMock(`{"person_visible": true, "is_target": true, "confidence": 0.85, "person_description": "red jacket"}`)
	c := newTestClient(t, mock)

	j, err := c.VerifyIdentity(context.Background(), jpeg, Descriptor{Name: "Alice", Description: "red jacket"})
	require.NoError(t, err)
	assert.True(t, j.IsTarget)
	assert.Equal(t, "red jacket", j.Summary())
	assert.Contains(t, mock.LastCall().Request.Prompt, "Alice")
}

func TestVerifyIdentityTimeout(t *testing.T) {
	mock := &inference.Mock{
		VisionFunc: func(ctx context.Context, req *inference.VisionRequest) (*inference.VisionResponse, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	c := newTestClient(t, mock, WithTimeout(20*time.Millisecond))

	_, err := c.VerifyIdentity(context.Background(), jpeg, Descriptor{Name: "Bob"})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestAnalyzePanorama(t *testing.T) {
	mock := inference.NewMock(`{"summary": "office", "unique_people": [
		{"person_id": "person_1", "frames_visible_in": [1, 3], "best_frame": 1,
		 "bounding_boxes": [{"frame_number": 1, "x": 0.1, "y": 0.2, "width": 0.3, "height": 0.4}]}
	], "total_people_count": 1}`)
	c := newTestClient(t, mock)

	frames := make([][]byte, PanoramaFrames)
	for i := range frames {
		frames[i] = jpeg
	}
	a, err := c.AnalyzePanorama(context.Background(), frames)
	require.NoError(t, err)
	require.Len(t, a.People, 1)
	assert.Equal(t, []int{1, 3}, a.People[0].Frames)
	require.Len(t, a.People[0].BBoxes, 1)
	assert.InDelta(t, 0.3, a.People[0].BBoxes[0].W, 1e-9)

	req := mock.LastCall().Request
	assert.Len(t, req.Images, PanoramaFrames)
	assert.True(t, strings.Contains(req.Prompt, "FRAME 8 of 8 | 315°"))
}

func TestAnalyzePanoramaFrameCount(t *testing.T) {
	c := newTestClient(t, inference.NewMock("{}"))
	_, err := c.AnalyzePanorama(context.Background(), [][]byte{jpeg})
	assert.True(t, errors.Is(err, ErrFrameCount))
}

func TestFrameAngle(t *testing.T) {
	assert.Equal(t, 0, FrameAngle(1))
	assert.Equal(t, 90, FrameAngle(3))
	assert.Equal(t, 315, FrameAngle(8))
}
