package tailing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-grok-pilot/internal/log"
	"github.com/teslashibe/go-grok-pilot/pkg/abort"
	"github.com/teslashibe/go-grok-pilot/pkg/geom"
	"github.com/teslashibe/go-grok-pilot/pkg/identity"
	"github.com/teslashibe/go-grok-pilot/pkg/statemachine"
	"github.com/teslashibe/go-grok-pilot/pkg/targets"
	"github.com/teslashibe/go-grok-pilot/pkg/vehicle"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// scriptedVerifier reports the target at box, or nothing when box is nil.
type scriptedVerifier struct {
	mu  sync.Mutex
	box *geom.BBox
}

func (v *scriptedVerifier) See(b *geom.BBox) {
	v.mu.Lock()
	v.box = b
	v.mu.Unlock()
}

func (v *scriptedVerifier) Quick(ctx context.Context, frame []byte, t *targets.Target) (*identity.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.box == nil {
		return &identity.Result{Level: identity.Low}, nil
	}
	b := *v.box
	return &identity.Result{Level: identity.Medium, LocalMatched: true, LocalConfidence: 0.9, BBox: &b}, nil
}

type recordingRotator struct {
	mu    sync.Mutex
	calls []int
}

func (r *recordingRotator) TryRotate(ctx context.Context, degrees int) (bool, error) {
	r.mu.Lock()
	r.calls = append(r.calls, degrees)
	r.mu.Unlock()
	return true, nil
}

func (r *recordingRotator) Calls() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.calls...)
}

// boxAt returns a 0.1-wide box whose center is at pixel x in a 960px frame.
func boxAt(x float64) *geom.BBox {
	return &geom.BBox{X: x/960 - 0.05, Y: 0.3, W: 0.1, H: 0.1}
}

type rig struct {
	ctrl     *Controller
	clock    *fakeClock
	verifier *scriptedVerifier
	rotator  *recordingRotator
	abort    *abort.Signal
	target   *targets.Target
}

func newRig(t *testing.T) *rig {
	t.Helper()
	reg, err := targets.NewRegistry(targets.WithLogger(log.Discard()))
	require.NoError(t, err)
	tg, err := reg.Add("Alice", "", []float64{1, 0})
	require.NoError(t, err)

	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	cfg := DefaultConfig()
	cfg.Logger = log.Discard()
	cfg.Clock = clock.Now

	r := &rig{
		clock:    clock,
		verifier: &scriptedVerifier{},
		rotator:  &recordingRotator{},
		abort:    abort.New(),
		target:   tg,
	}
	r.ctrl = New(r.verifier, r.rotator, reg, r.abort, cfg)
	return r
}

func (r *rig) step(t *testing.T) *Update {
	t.Helper()
	u, err := r.ctrl.Step(context.Background(), []byte("frame"))
	require.NoError(t, err)
	r.ctrl.Wait()
	return u
}

func TestCorrection(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		name string
		x    float64
		want int
	}{
		{"centered", 480, 0},
		{"inside dead zone right", 579, 0},
		{"inside dead zone left", 381, 0},
		{"slow zone right", 600, 10},
		{"slow zone left", 330, -10},
		{"fast zone right", 700, 20},
		{"fast zone left", 100, -20},
		{"just past dead zone", 581, 10},
		{"just past slow zone", 681, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, off := Correction(cfg, *boxAt(tt.x))
			assert.Equal(t, tt.want, got)
			assert.InDelta(t, tt.x-480, off, 1e-6)
		})
	}
}

func TestPresets(t *testing.T) {
	for _, name := range []string{"", "default", "slow", "aggressive"} {
		cfg, ok := Preset(name)
		assert.True(t, ok, name)
		assert.Less(t, cfg.DeadZonePx, cfg.SlowZonePx, name)
		assert.Less(t, cfg.LostTimeout, cfg.GiveUpTimeout, name)
	}
	_, ok := Preset("ludicrous")
	assert.False(t, ok)
	assert.Greater(t, SlowConfig().MinRotationInterval, AggressiveConfig().MinRotationInterval)
}

func TestNewEnforcesRotationFloor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logger = log.Discard()
	cfg.MinRotationInterval = 50 * time.Millisecond
	c := New(nil, nil, nil, nil, cfg)
	assert.Equal(t, MinRotationFloor, c.Config().MinRotationInterval)
}

func TestStartStop(t *testing.T) {
	r := newRig(t)

	require.NoError(t, r.ctrl.Start(r.target.ID))
	assert.ErrorIs(t, r.ctrl.Start(r.target.ID), ErrActive)

	s := r.ctrl.Status()
	assert.True(t, s.Active)
	assert.Equal(t, "Alice", s.TargetName)

	assert.True(t, r.ctrl.Stop())
	assert.False(t, r.ctrl.Stop())
	assert.False(t, r.ctrl.Status().Active)
	assert.Equal(t, PhaseIdle, r.ctrl.Status().Phase)
}

func TestStartUnknownTarget(t *testing.T) {
	r := newRig(t)
	err := r.ctrl.Start("target_missing")
	assert.ErrorIs(t, err, targets.ErrNotFound)
	assert.False(t, r.ctrl.Active())
}

func TestStartWithoutFaceData(t *testing.T) {
	reg, _ := targets.NewRegistry(targets.WithLogger(log.Discard()))
	tg, _ := reg.Add("Bob", "")
	cfg := DefaultConfig()
	cfg.Logger = log.Discard()
	c := New(&scriptedVerifier{}, &recordingRotator{}, reg, nil, cfg)

	assert.ErrorIs(t, c.Start(tg.ID), ErrNoFaceData)
}

func TestStepInactive(t *testing.T) {
	r := newRig(t)
	u, err := r.ctrl.Step(context.Background(), []byte("frame"))
	assert.NoError(t, err)
	assert.Nil(t, u)
}

func TestStepTracksAndRotates(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.ctrl.Start(r.target.ID))

	r.verifier.See(boxAt(750))
	u := r.step(t)
	assert.True(t, u.Tracking)
	assert.Equal(t, PhaseTracking, u.Phase)
	assert.Equal(t, 20, u.RotationDeg)
	assert.InDelta(t, 270, u.OffsetPx, 1e-6)
	assert.Equal(t, []int{20}, r.rotator.Calls())

	s := r.ctrl.Status()
	assert.Equal(t, 1, s.FramesTracked)
	require.NotNil(t, s.BBox)
	assert.Equal(t, 20, s.LastRotation)
}

func TestStepDeadZoneNoRotation(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.ctrl.Start(r.target.ID))

	r.verifier.See(boxAt(500))
	u := r.step(t)
	assert.True(t, u.Tracking)
	assert.Zero(t, u.RotationDeg)
	assert.Empty(t, r.rotator.Calls())
}

func TestStepRateLimitsRotations(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.ctrl.Start(r.target.ID))
	r.verifier.See(boxAt(300))

	assert.Equal(t, -10, r.step(t).RotationDeg)

	r.clock.Advance(200 * time.Millisecond)
	assert.Zero(t, r.step(t).RotationDeg)

	r.clock.Advance(300 * time.Millisecond)
	assert.Equal(t, -10, r.step(t).RotationDeg)

	assert.Equal(t, []int{-10, -10}, r.rotator.Calls())
}

func TestStepLostHoldsThenSearchesThenGivesUp(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.ctrl.Start(r.target.ID))

	r.verifier.See(boxAt(500))
	r.step(t)

	r.verifier.See(nil)
	r.clock.Advance(time.Second)
	u := r.step(t)
	assert.Equal(t, PhaseHolding, u.Phase)
	assert.False(t, u.Tracking)
	assert.NotNil(t, u.BBox, "last box kept for display")
	assert.Zero(t, u.RotationDeg)

	r.clock.Advance(3 * time.Second)
	u = r.step(t)
	assert.Equal(t, PhaseSearching, u.Phase)
	assert.Equal(t, 10, u.RotationDeg)

	r.clock.Advance(100 * time.Millisecond)
	u = r.step(t)
	assert.Zero(t, u.RotationDeg, "recovery spin is rate limited")

	r.clock.Advance(7 * time.Second)
	u = r.step(t)
	assert.True(t, u.GaveUp)
	assert.Equal(t, PhaseGaveUp, u.Phase)
	assert.False(t, r.ctrl.Active())
	assert.Equal(t, PhaseGaveUp, r.ctrl.Status().Phase)
	assert.False(t, r.ctrl.Stop())

	assert.Equal(t, []int{10}, r.rotator.Calls())
}

func TestStepReacquire(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.ctrl.Start(r.target.ID))

	r.clock.Advance(4 * time.Second)
	assert.Equal(t, PhaseSearching, r.step(t).Phase)

	r.verifier.See(boxAt(480))
	u := r.step(t)
	assert.Equal(t, PhaseTracking, u.Phase)
	assert.Equal(t, 1, r.ctrl.Status().FramesLost)
	assert.Equal(t, 1, r.ctrl.Status().FramesTracked)
}

func TestStepAbortStops(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.ctrl.Start(r.target.ID))
	r.abort.Trigger("operator")

	u, err := r.ctrl.Step(context.Background(), []byte("frame"))
	assert.ErrorIs(t, err, abort.ErrAborted)
	assert.Nil(t, u)
	assert.False(t, r.ctrl.Active())
}

func TestObserversNotified(t *testing.T) {
	r := newRig(t)
	var got []Snapshot
	r.ctrl.OnUpdate(func(s Snapshot) { got = append(got, s) })

	require.NoError(t, r.ctrl.Start(r.target.ID))
	r.verifier.See(boxAt(480))
	r.step(t)
	r.ctrl.Stop()

	require.Len(t, got, 3)
	assert.True(t, got[0].Active)
	assert.Equal(t, 1, got[1].FramesTracked)
	assert.False(t, got[2].Active)
}

type frameSource struct{}

func (frameSource) Snapshot(ctx context.Context) ([]byte, error) { return []byte("frame"), nil }

func TestRunEndsOnGiveUp(t *testing.T) {
	r := newRig(t)
	r.ctrl.config.DetectionInterval = 5 * time.Millisecond
	r.ctrl.config.Clock = time.Now
	r.ctrl.config.LostTimeout = 20 * time.Millisecond
	r.ctrl.config.GiveUpTimeout = 60 * time.Millisecond
	require.NoError(t, r.ctrl.Start(r.target.ID))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := r.ctrl.Run(ctx, frameSource{})
	assert.NoError(t, err)
	assert.Equal(t, PhaseGaveUp, r.ctrl.Status().Phase)
	r.ctrl.Wait()
}

func TestRunStopsOnAbort(t *testing.T) {
	r := newRig(t)
	r.ctrl.config.DetectionInterval = 5 * time.Millisecond
	require.NoError(t, r.ctrl.Start(r.target.ID))

	go func() {
		time.Sleep(30 * time.Millisecond)
		r.abort.Trigger("operator")
	}()
	err := r.ctrl.Run(context.Background(), frameSource{})
	assert.True(t, errors.Is(err, abort.ErrAborted))
	assert.False(t, r.ctrl.Active())
}

func TestRotationsNeverOverlap(t *testing.T) {
	m := vehicle.NewMock(90)
	m.Delay = 80 * time.Millisecond
	sm := statemachine.New(statemachine.Idle, log.Discard())
	ctrl := vehicle.NewController(m, sm, abort.New(), vehicle.WithLogger(log.Discard()))
	ctx := context.Background()
	require.NoError(t, ctrl.Connect(ctx))
	require.NoError(t, ctrl.Takeoff(ctx))
	m.Reset()

	reg, _ := targets.NewRegistry(targets.WithLogger(log.Discard()))
	tg, _ := reg.Add("Alice", "", []float64{1, 0})

	clock := &fakeClock{now: time.Now()}
	cfg := DefaultConfig()
	cfg.Logger = log.Discard()
	cfg.Clock = clock.Now
	v := &scriptedVerifier{}
	v.See(boxAt(900))
	c := New(v, ctrl, reg, nil, cfg)
	require.NoError(t, c.Start(tg.ID))

	// Two steps a rate-limit apart while the first rotation is still
	// in flight: the second is dropped by the maneuver lock.
	_, err := c.Step(ctx, []byte("frame"))
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	clock.Advance(600 * time.Millisecond)
	u, err := c.Step(ctx, []byte("frame"))
	require.NoError(t, err)
	assert.Equal(t, 20, u.RotationDeg)
	c.Wait()

	assert.Equal(t, []string{"cw 20"}, m.Commands())
	assert.Equal(t, 20, ctrl.Heading())
}
