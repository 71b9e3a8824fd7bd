package clearance

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-grok-pilot/pkg/oracle"
	"github.com/teslashibe/go-grok-pilot/pkg/vehicle"
)

func frontReport(clearCm int, safe bool, obstacles ...oracle.Obstacle) *oracle.ClearanceReport {
	return &oracle.ClearanceReport{
		IsClear:        safe,
		FrontCm:        clearCm,
		LeftCm:         oracle.UnknownClearance,
		RightCm:        oracle.UnknownClearance,
		AboveCm:        oracle.UnknownClearance,
		BelowCm:        oracle.UnknownClearance,
		SafeForForward: safe,
		Obstacles:      obstacles,
	}
}

func fwd(cm int) Request {
	return Request{Direction: vehicle.Forward, DistanceCm: cm}
}

func TestDecideFullDistance(t *testing.T) {
	d := Decide(DefaultConfig(), fwd(80), frontReport(200, true))
	assert.True(t, d.Allowed)
	assert.Equal(t, 80, d.ActualCm)
	assert.False(t, d.Reduced)
}

func TestDecideUnknownClearanceMarkedSafe(t *testing.T) {
	d := Decide(DefaultConfig(), fwd(80), frontReport(oracle.UnknownClearance, true))
	assert.True(t, d.Allowed)
	assert.Equal(t, 80, d.ActualCm)
}

func TestDecideUnknownClearanceMarkedUnsafe(t *testing.T) {
	d := Decide(DefaultConfig(), fwd(80), frontReport(oracle.UnknownClearance, false))
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.ActualCm)
}

func TestDecideReduces(t *testing.T) {
	wall := oracle.Obstacle{Name: "bookshelf", Position: "front", DistanceCm: 70}
	d := Decide(DefaultConfig(), fwd(80), frontReport(70, false, wall))

	assert.True(t, d.Allowed)
	assert.True(t, d.Reduced)
	assert.Equal(t, 40, d.ActualCm)
	assert.Contains(t, d.Reason, "reduced from 80cm to 40cm")
	assert.Contains(t, d.Reason, "bookshelf")
}

// Request 80cm with 40cm of front clearance. The default profile only
// shortens moves when more than 50cm is free, so this is denied outright.
func TestDecideShortClearanceDefault(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 50, cfg.MinClearanceCm)

	d := Decide(cfg, fwd(80), frontReport(40, false))
	assert.False(t, d.Allowed)
	assert.False(t, d.Reduced)
	assert.Equal(t, 0, d.ActualCm)
	assert.Equal(t, 80, d.RequestedCm)
	assert.Equal(t, []string{"clearance"}, d.Gates)
	assert.Contains(t, d.Reason, "only 40cm clearance")
}

// The same request under a relaxed profile is flown at 10cm.
func TestDecideShortClearanceRelaxed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Apply(WithReduction(30, 10))

	d := Decide(cfg, fwd(80), frontReport(40, false))
	require.True(t, d.Allowed)
	assert.Equal(t, 10, d.ActualCm)
	assert.True(t, d.Reduced)
	assert.Contains(t, d.Reason, "reduced")
}

func TestDecideDeniesNamingObstacle(t *testing.T) {
	wall := oracle.Obstacle{Name: "wall", Position: "front", DistanceCm: 20}
	d := Decide(DefaultConfig(), fwd(80), frontReport(20, false, wall))

	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.ActualCm)
	assert.Contains(t, d.Reason, "wall")
	assert.Contains(t, d.Reason, "20cm")
	assert.Equal(t, []string{"clearance"}, d.Gates)

	var ve *ViolationError
	require.ErrorAs(t, d.Err(), &ve)
	assert.Equal(t, []string{"clearance"}, ve.Gates)
}

func TestDecideLateralUsesSide(t *testing.T) {
	r := frontReport(300, true)
	r.LeftCm = 45
	r.SafeForLateral = false
	r.Obstacles = []oracle.Obstacle{{Name: "door", Position: "left", DistanceCm: 45}}

	d := Decide(DefaultConfig(), Request{Direction: vehicle.Left, DistanceCm: 50}, r)
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "door")
	assert.Equal(t, 45, d.ClearanceCm)
}

func TestDecideInvariants(t *testing.T) {
	cfgs := []*Config{DefaultConfig()}
	relaxed := DefaultConfig()
	relaxed.Apply(WithReduction(30, 10))
	cfgs = append(cfgs, relaxed)

	for _, cfg := range cfgs {
		for _, safe := range []bool{true, false} {
			for clear := -1; clear <= 300; clear += 7 {
				for req := 20; req <= 100; req += 10 {
					d := Decide(cfg, fwd(req), frontReport(clear, safe))
					if d.ActualCm < 0 || d.ActualCm > d.RequestedCm {
						t.Fatalf("clear=%d req=%d safe=%v: actual %d out of [0, %d]", clear, req, safe, d.ActualCm, req)
					}
					if !d.Allowed && d.ActualCm != 0 {
						t.Fatalf("denied decision carries distance %d", d.ActualCm)
					}
					if d.Allowed && clear >= 0 && d.ActualCm+cfg.BufferCm > clear {
						t.Fatalf("clear=%d req=%d safe=%v: %dcm + buffer exceeds clearance", clear, req, safe, d.ActualCm)
					}
				}
			}
		}
	}
}

func TestDecideFlipBatteryOnly(t *testing.T) {
	d := DecideFlip(DefaultConfig(), vehicle.Forward, 45, 150, 100, false)

	assert.False(t, d.Allowed)
	assert.Equal(t, []string{GateBattery}, d.Failed())
	assert.Len(t, d.Gates, 3)
	assert.Contains(t, d.Reason, "battery 45%")
	assert.False(t, strings.Contains(d.Reason, "altitude 150cm,"))
}

func TestDecideFlipAllGatesEvaluated(t *testing.T) {
	d := DecideFlip(DefaultConfig(), vehicle.Back, 20, 60, 50, false)
	assert.False(t, d.Allowed)
	assert.Equal(t, []string{GateBattery, GateAltitude, GateClearance}, d.Failed())
}

func TestDecideFlipClearanceIsStrict(t *testing.T) {
	assert.False(t, DecideFlip(DefaultConfig(), vehicle.Left, 80, 150, 50, false).Allowed)
	assert.True(t, DecideFlip(DefaultConfig(), vehicle.Left, 80, 150, 51, false).Allowed)
}

func TestDecideFlipUnmeasuredClearance(t *testing.T) {
	d := DecideFlip(DefaultConfig(), vehicle.Right, 80, 150, -1, false)
	assert.False(t, d.Allowed)
	assert.Equal(t, []string{GateClearance}, d.Failed())

	d = DecideFlip(DefaultConfig(), vehicle.Right, 80, 150, -1, true)
	assert.True(t, d.Allowed)
	assert.True(t, d.Degraded)
}
