package clearance

import (
	"fmt"
	"strings"

	"github.com/teslashibe/go-grok-pilot/pkg/oracle"
	"github.com/teslashibe/go-grok-pilot/pkg/vehicle"
)

// Request is a translation the caller wants to make.
type Request struct {
	Direction  vehicle.Direction `json:"direction"`
	DistanceCm int               `json:"distance_cm"`
}

// Decision is the gate's verdict on a Request.
// 0 <= ActualCm <= RequestedCm always holds.
type Decision struct {
	Allowed     bool              `json:"allowed"`
	Direction   vehicle.Direction `json:"direction"`
	RequestedCm int               `json:"requested_distance_cm"`
	ActualCm    int               `json:"actual_distance_cm"`
	Reason      string            `json:"reason"`
	Gates       []string          `json:"failed_gates,omitempty"`
	ClearanceCm int               `json:"clearance_cm"`
	Reduced     bool              `json:"reduced"`
	Degraded    bool              `json:"degraded"`
	Obstacles   []oracle.Obstacle `json:"obstacles,omitempty"`
	Diagnostic  string            `json:"diagnostic,omitempty"`

	// Turned is set when a backward request left the vehicle facing the
	// opposite heading.
	Turned bool `json:"turned"`

	// Executed is set once the vehicle has flown the move.
	Executed bool `json:"executed"`
}

// Err returns a *ViolationError for a denied decision and nil otherwise.
func (d *Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &ViolationError{Gates: d.Gates, Reason: d.Reason}
}

func deny(req Request, gate, reason string) *Decision {
	return &Decision{
		Direction:   req.Direction,
		RequestedCm: req.DistanceCm,
		ClearanceCm: oracle.UnknownClearance,
		Gates:       []string{gate},
		Reason:      reason,
	}
}

// sideFor maps a horizontal direction to the camera side it needs.
// Back has no camera and is handled by turning around first.
func sideFor(dir vehicle.Direction) (oracle.Side, oracle.Maneuver, bool) {
	switch dir {
	case vehicle.Forward:
		return oracle.SideFront, oracle.ManeuverForward, true
	case vehicle.Left:
		return oracle.SideLeft, oracle.ManeuverLateral, true
	case vehicle.Right:
		return oracle.SideRight, oracle.ManeuverLateral, true
	}
	return "", "", false
}

// Decide applies the movement policy to a clearance report. It is pure:
// no I/O and no actuation.
//
//   - The oracle marks the maneuver safe and the clearance covers the
//     request plus the buffer, or the clearance is unknown: full distance.
//   - Clearance above MinClearanceCm: fly clearance minus the buffer,
//     provided that is at least MinReducedCm.
//   - Otherwise deny, naming the nearest obstacle.
func Decide(cfg *Config, req Request, report *oracle.ClearanceReport) *Decision {
	side, maneuver, ok := sideFor(req.Direction)
	if !ok {
		return deny(req, "direction", fmt.Sprintf("%s movement is not vision-gated", req.Direction))
	}

	clear := report.ClearanceCm(side)
	safe := report.SafeFor(maneuver)
	nearest := report.NearestObstacles(side)

	d := &Decision{
		Direction:   req.Direction,
		RequestedCm: req.DistanceCm,
		ClearanceCm: clear,
		Obstacles:   nearest,
	}

	needed := req.DistanceCm + cfg.BufferCm
	if safe && (clear == oracle.UnknownClearance || clear >= needed) {
		d.Allowed = true
		d.ActualCm = req.DistanceCm
		if clear == oracle.UnknownClearance {
			d.Reason = fmt.Sprintf("%s marked safe, clearance not measured, moving full %dcm", side, req.DistanceCm)
		} else {
			d.Reason = fmt.Sprintf("clear: %dcm free %s, moving full %dcm", clear, side, req.DistanceCm)
		}
		return d
	}

	if clear != oracle.UnknownClearance && clear > cfg.MinClearanceCm {
		reduced := min(clear-cfg.BufferCm, req.DistanceCm)
		if reduced >= cfg.MinReducedCm && reduced > 0 {
			d.Allowed = true
			d.ActualCm = reduced
			d.Reduced = reduced < req.DistanceCm
			if d.Reduced {
				d.Reason = fmt.Sprintf("reduced from %dcm to %dcm: %s, %dcm clearance %s with %dcm buffer",
					req.DistanceCm, reduced, describe(nearest), clear, side, cfg.BufferCm)
			} else {
				d.Reason = fmt.Sprintf("oracle flagged %s but %dcm clearance covers %dcm with %dcm buffer",
					side, clear, reduced, cfg.BufferCm)
			}
			return d
		}
	}

	d.Gates = []string{"clearance"}
	switch {
	case clear == oracle.UnknownClearance:
		d.Reason = fmt.Sprintf("denied: oracle marked %s unsafe and clearance is unknown (%s)", side, describe(nearest))
	default:
		d.Reason = fmt.Sprintf("denied: %s, only %dcm clearance %s", describe(nearest), clear, side)
	}
	return d
}

// describe names up to two obstacles with their distances.
func describe(obs []oracle.Obstacle) string {
	if len(obs) == 0 {
		return "obstacle"
	}
	var parts []string
	for _, o := range obs[:min(2, len(obs))] {
		if o.DistanceCm >= 0 {
			parts = append(parts, fmt.Sprintf("%s at %dcm", o.Name, o.DistanceCm))
		} else {
			parts = append(parts, o.Name)
		}
	}
	return strings.Join(parts, ", ")
}

// degraded builds the conservative decision used when sensing fails.
func degraded(cfg *Config, req Request, cause error) *Decision {
	actual := min(req.DistanceCm, cfg.DegradedCapCm)
	return &Decision{
		Allowed:     true,
		Direction:   req.Direction,
		RequestedCm: req.DistanceCm,
		ActualCm:    actual,
		ClearanceCm: oracle.UnknownClearance,
		Degraded:    true,
		Reduced:     actual < req.DistanceCm,
		Reason:      fmt.Sprintf("vision unavailable, capped at %dcm: %v", cfg.DegradedCapCm, cause),
	}
}
