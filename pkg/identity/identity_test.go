package identity

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-grok-pilot/internal/log"
	"github.com/teslashibe/go-grok-pilot/pkg/face"
	"github.com/teslashibe/go-grok-pilot/pkg/geom"
	"github.com/teslashibe/go-grok-pilot/pkg/oracle"
	"github.com/teslashibe/go-grok-pilot/pkg/targets"
	"github.com/teslashibe/go-grok-pilot/pkg/workers"
)

var frame = []byte{0xFF, 0xD8, 0xFF, 0xD9}

func target() *targets.Target {
	t := targets.NewTarget("Alice", "red jacket")
	t.Embeddings = [][]float64{{1, 0, 0}}
	return t
}

// facesAt returns an extractor that sees one face at the given distance
// from every reference.
func facesAt(distance float64) *face.Mock {
	m := face.NewMock(face.Observation{
		Embedding: []float64{0, 1, 0},
		BBox:      geom.BBox{X: 0.4, Y: 0.3, W: 0.2, H: 0.2},
		Score:     0.9,
	})
	m.DistanceFunc = func(a, b []float64) float64 { return distance }
	return m
}

func oracleSays(visible, isTarget bool, confidence float64) *oracle.Mock {
	return &oracle.Mock{
		VerifyIdentityFunc: func(ctx context.Context, frame []byte, d oracle.Descriptor) (*oracle.IdentityJudgment, error) {
			return &oracle.IdentityJudgment{
				PersonVisible: visible,
				IsTarget:      isTarget,
				Confidence:    confidence,
				Description:   "woman in red jacket",
			}, nil
		},
	}
}

func newVerifier(t *testing.T, x face.Extractor, o oracle.Oracle, opts ...Option) *Verifier {
	t.Helper()
	opts = append(opts, WithLogger(log.Discard()))
	v := New(x, o, nil, opts...)
	t.Cleanup(v.Close)
	return v
}

func TestFuse(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		name   string
		local  LocalJudgment
		remote OracleJudgment
		match  bool
		level  Level
		conf   float64
	}{
		{
			name:   "both match",
			local:  LocalJudgment{Matched: true, Confidence: 0.6},
			remote: OracleJudgment{Matched: true, Confidence: 0.9},
			match:  true, level: High, conf: 0.75,
		},
		{
			name:   "local strong, oracle disagrees",
			local:  LocalJudgment{Matched: true, Confidence: 0.8},
			remote: OracleJudgment{Matched: false, Confidence: 0.9},
			match:  true, level: Medium, conf: 0.8,
		},
		{
			name:   "local weak match only",
			local:  LocalJudgment{Matched: true, Confidence: 0.6},
			remote: OracleJudgment{Confidence: 0.2},
			match:  false, level: Low, conf: 0.3,
		},
		{
			name:   "oracle only",
			local:  LocalJudgment{Confidence: 0.1},
			remote: OracleJudgment{Matched: true, Confidence: 0.9},
			match:  false, level: Low, conf: 0.45,
		},
		{
			name:  "local at exactly medium threshold",
			local: LocalJudgment{Matched: true, Confidence: 0.75},
			match: false, level: Low, conf: 0.375,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Fuse(cfg, tt.local, tt.remote)
			assert.Equal(t, tt.match, r.IsMatch)
			assert.Equal(t, tt.level, r.Level)
			assert.InDelta(t, tt.conf, r.Confidence, 1e-9)
		})
	}
}

func TestVerifyHigh(t *testing.T) {
	o := oracleSays(true, true, 0.9)
	v := newVerifier(t, facesAt(0.1), o)

	r, err := v.Verify(context.Background(), frame, target())
	require.NoError(t, err)
	assert.Equal(t, High, r.Level)
	assert.True(t, r.IsMatch)
	assert.InDelta(t, 0.85, r.Confidence, 1e-9)
	assert.Equal(t, "woman in red jacket", r.OracleDescription)
	require.NotNil(t, r.BBox)
	cx, _ := r.BBox.Center()
	assert.InDelta(t, 0.5, cx, 1e-9)
}

func TestVerifyLocalOverridesDisagreeingOracle(t *testing.T) {
	v := newVerifier(t, facesAt(0.1), oracleSays(true, false, 0.9))

	r, err := v.Verify(context.Background(), frame, target())
	require.NoError(t, err)
	assert.Equal(t, Medium, r.Level)
	assert.True(t, r.IsMatch)
	assert.InDelta(t, 0.8, r.LocalConfidence, 1e-9)
	assert.False(t, r.OracleMatched)
	assert.InDelta(t, 0.9, r.OracleConfidence, 1e-9)
}

func TestVerifyOracleBelowThreshold(t *testing.T) {
	v := newVerifier(t, facesAt(0.2), oracleSays(true, true, 0.65))

	r, err := v.Verify(context.Background(), frame, target())
	require.NoError(t, err)
	assert.False(t, r.OracleMatched)
	assert.Equal(t, Low, r.Level)
	assert.InDelta(t, 0.65*0.5, r.Confidence, 1e-9)
}

func TestVerifyNoPersonVisible(t *testing.T) {
	v := newVerifier(t, facesAt(0.9), oracleSays(false, true, 0.95))

	r, err := v.Verify(context.Background(), frame, target())
	require.NoError(t, err)
	assert.Equal(t, Low, r.Level)
	assert.Equal(t, NoteNoPerson, r.OracleDescription)
	assert.Zero(t, r.OracleConfidence)
	assert.InDelta(t, 0.1*0.5, r.Confidence, 1e-9)
}

func TestVerifyNoFaceData(t *testing.T) {
	x := facesAt(0.1)
	o := oracleSays(true, true, 0.9)
	v := newVerifier(t, x, o)

	tg := target()
	tg.Embeddings = nil
	r, err := v.Verify(context.Background(), frame, tg)
	require.NoError(t, err)
	assert.Equal(t, Low, r.Level)
	assert.False(t, r.IsMatch)
	assert.Equal(t, NoteNoFaceData, r.OracleDescription)
	assert.Zero(t, x.CallCount())
	assert.Zero(t, o.CallCount("VerifyIdentity"))
}

func TestVerifyNilTarget(t *testing.T) {
	v := newVerifier(t, facesAt(0.1), nil)
	_, err := v.Verify(context.Background(), frame, nil)
	assert.ErrorIs(t, err, ErrNoTarget)
}

func TestVerifyNoFaceInFrame(t *testing.T) {
	v := newVerifier(t, face.NewMock(), oracleSays(true, true, 0.9))

	r, err := v.Verify(context.Background(), frame, target())
	require.NoError(t, err)
	assert.Equal(t, Low, r.Level)
	assert.Nil(t, r.BBox)
	assert.InDelta(t, 0.45, r.Confidence, 1e-9)
}

func TestVerifyJudgesRunConcurrently(t *testing.T) {
	x := facesAt(0.1)
	x.DetectFacesFunc = func(ctx context.Context, frame []byte) ([]face.Observation, error) {
		time.Sleep(150 * time.Millisecond)
		return []face.Observation{{Embedding: []float64{1, 0, 0}}}, nil
	}
	o := oracleSays(true, true, 0.9)
	inner := o.VerifyIdentityFunc
	o.VerifyIdentityFunc = func(ctx context.Context, frame []byte, d oracle.Descriptor) (*oracle.IdentityJudgment, error) {
		time.Sleep(150 * time.Millisecond)
		return inner(ctx, frame, d)
	}
	v := newVerifier(t, x, o)

	start := time.Now()
	r, err := v.Verify(context.Background(), frame, target())
	require.NoError(t, err)
	assert.Equal(t, High, r.Level)
	assert.Less(t, time.Since(start), 280*time.Millisecond)
}

func TestVerifyOracleTimeoutIsLow(t *testing.T) {
	o := &oracle.Mock{
		VerifyIdentityFunc: func(ctx context.Context, frame []byte, d oracle.Descriptor) (*oracle.IdentityJudgment, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	v := newVerifier(t, facesAt(0.3), o, WithTimeouts(time.Second, 50*time.Millisecond))

	r, err := v.Verify(context.Background(), frame, target())
	require.NoError(t, err)
	assert.Equal(t, Low, r.Level)
	assert.Contains(t, r.OracleDescription, NoteOracleFailed)
	assert.InDelta(t, 0.2, r.Confidence, 1e-9)
}

func TestVerifyLocalTimeoutIsLow(t *testing.T) {
	x := face.NewMock()
	x.DetectFacesFunc = func(ctx context.Context, frame []byte) ([]face.Observation, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	v := newVerifier(t, x, oracleSays(true, true, 0.9), WithTimeouts(50*time.Millisecond, time.Second))

	r, err := v.Verify(context.Background(), frame, target())
	require.NoError(t, err)
	assert.Equal(t, Low, r.Level)
	assert.False(t, r.LocalMatched)
	assert.True(t, r.OracleMatched)
}

func TestVerifyMalformedOracleKeepsRaw(t *testing.T) {
	o := &oracle.Mock{
		VerifyIdentityFunc: func(ctx context.Context, frame []byte, d oracle.Descriptor) (*oracle.IdentityJudgment, error) {
			return nil, &oracle.ParseError{Raw: "yes that's her", Err: errors.New("bad json")}
		},
	}
	v := newVerifier(t, facesAt(0.3), o)

	r, err := v.Verify(context.Background(), frame, target())
	require.NoError(t, err)
	assert.False(t, r.IsMatch)
	assert.Equal(t, "yes that's her", r.Diagnostic)
}

func TestVerifyCanceled(t *testing.T) {
	v := newVerifier(t, facesAt(0.1), oracleSays(true, true, 0.9))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := v.Verify(ctx, frame, target())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestVerifyWithoutOracle(t *testing.T) {
	v := newVerifier(t, facesAt(0.05), nil)

	r, err := v.Verify(context.Background(), frame, target())
	require.NoError(t, err)
	assert.Equal(t, Medium, r.Level)
	assert.Equal(t, NoteNoOracle, r.OracleDescription)
}

// A weak local match without an oracle is penalized the same way Fuse
// penalizes Low results; Quick reports the raw confidence.
func TestVerifyWithoutOracleLowIsPenalized(t *testing.T) {
	v := newVerifier(t, facesAt(0.2), nil)

	r, err := v.Verify(context.Background(), frame, target())
	require.NoError(t, err)
	assert.Equal(t, Low, r.Level)
	assert.False(t, r.IsMatch)
	assert.InDelta(t, 0.6, r.LocalConfidence, 1e-9)
	assert.InDelta(t, 0.3, r.Confidence, 1e-9)

	q, err := v.Quick(context.Background(), frame, target())
	require.NoError(t, err)
	assert.Equal(t, Low, q.Level)
	assert.InDelta(t, 0.6, q.Confidence, 1e-9)
}

func TestVerifySharedPool(t *testing.T) {
	pool := workers.New(2)
	defer pool.Close()
	v := New(facesAt(0.1), oracleSays(true, true, 0.9), pool, WithLogger(log.Discard()))

	r, err := v.Verify(context.Background(), frame, target())
	require.NoError(t, err)
	assert.Equal(t, High, r.Level)
}

func TestQuick(t *testing.T) {
	o := oracleSays(true, true, 0.9)

	tests := []struct {
		distance float64
		level    Level
		match    bool
		local    bool
	}{
		{0.05, Medium, true, true},
		{0.2, Low, false, true},
		{0.7, Low, false, false},
	}
	for _, tt := range tests {
		v := newVerifier(t, facesAt(tt.distance), o)
		r, err := v.Quick(context.Background(), frame, target())
		require.NoError(t, err)
		assert.Equal(t, tt.level, r.Level, "distance %v", tt.distance)
		assert.Equal(t, tt.match, r.IsMatch, "distance %v", tt.distance)
		assert.Equal(t, tt.local, r.LocalMatched, "distance %v", tt.distance)
		assert.Equal(t, NoteQuick, r.OracleDescription)
	}
	assert.Zero(t, o.CallCount("VerifyIdentity"))
}

func TestJudgeLocalPicksClosestFace(t *testing.T) {
	x := face.NewMock(
		face.Observation{Embedding: []float64{0, 1}, BBox: geom.BBox{X: 0.1, W: 0.1, H: 0.1}},
		face.Observation{Embedding: []float64{1, 0}, BBox: geom.BBox{X: 0.7, W: 0.1, H: 0.1}},
	)
	v := newVerifier(t, x, nil)

	j := v.judgeLocal(context.Background(), frame, [][]float64{{1, 0}})
	assert.True(t, j.Matched)
	assert.Zero(t, j.Distance)
	assert.InDelta(t, 1.0, j.Confidence, 1e-9)
	require.NotNil(t, j.BBox)
	assert.InDelta(t, 0.7, j.BBox.X, 1e-9)
}

func TestJudgeLocalDimensionMismatch(t *testing.T) {
	x := face.NewMock(face.Observation{Embedding: []float64{1, 0, 0, 0}})
	v := newVerifier(t, x, nil)

	j := v.judgeLocal(context.Background(), frame, [][]float64{{1, 0}})
	assert.False(t, j.Matched)
	assert.True(t, math.IsInf(j.Distance, 1))
}
