package clearance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/teslashibe/go-grok-pilot/pkg/oracle"
	"github.com/teslashibe/go-grok-pilot/pkg/vehicle"
)

// Flip gate names.
const (
	GateBattery   = "battery"
	GateAltitude  = "altitude"
	GateClearance = "clearance"
)

// GateResult is the outcome of one flip gate.
type GateResult struct {
	Name      string `json:"name"`
	Passed    bool   `json:"passed"`
	Value     int    `json:"value"`
	Threshold int    `json:"threshold"`
	Detail    string `json:"detail"`
}

// FlipDecision is the verdict on a flip. Flips are never shortened:
// either every gate passes or the flip is denied.
type FlipDecision struct {
	Allowed    bool              `json:"allowed"`
	Direction  vehicle.Direction `json:"direction"`
	Reason     string            `json:"reason"`
	Gates      []GateResult      `json:"gates"`
	Degraded   bool              `json:"degraded"`
	Diagnostic string            `json:"diagnostic,omitempty"`
	Executed   bool              `json:"executed"`
}

// Failed returns the names of the gates that did not pass.
func (d *FlipDecision) Failed() []string {
	var out []string
	for _, g := range d.Gates {
		if !g.Passed {
			out = append(out, g.Name)
		}
	}
	return out
}

// Err returns a *ViolationError for a denied flip and nil otherwise.
func (d *FlipDecision) Err() error {
	if d.Allowed {
		return nil
	}
	return &ViolationError{Gates: d.Failed(), Reason: d.Reason}
}

// DecideFlip evaluates the three flip gates from readings already taken.
// A negative reading means it could not be obtained. All gates are
// evaluated so the full diagnostic is always available.
func DecideFlip(cfg *Config, dir vehicle.Direction, battery, altitudeCm, clearanceCm int, degradedOK bool) *FlipDecision {
	d := &FlipDecision{Direction: dir}

	d.Gates = append(d.Gates, threshold(GateBattery, battery, cfg.FlipMinBattery, "%", false))
	d.Gates = append(d.Gates, threshold(GateAltitude, altitudeCm, cfg.FlipMinAltitudeCm, "cm", false))

	clr := threshold(GateClearance, clearanceCm, cfg.FlipMinClearanceCm, "cm", true)
	if clearanceCm < 0 && degradedOK {
		clr.Passed = true
		clr.Detail = "clearance unmeasured, allowed by degraded flip policy"
		d.Degraded = true
	}
	d.Gates = append(d.Gates, clr)

	var failed []string
	for _, g := range d.Gates {
		if !g.Passed {
			failed = append(failed, g.Detail)
		}
	}
	if len(failed) == 0 {
		d.Allowed = true
		d.Reason = fmt.Sprintf("all flip gates passed (battery %d%%, altitude %dcm, clearance %s)",
			battery, altitudeCm, cmOrUnknown(clearanceCm))
		return d
	}
	d.Reason = "flip denied: " + strings.Join(failed, "; ")
	return d
}

func threshold(name string, value, minimum int, unit string, strict bool) GateResult {
	r := GateResult{Name: name, Value: value, Threshold: minimum}
	if value < 0 {
		r.Detail = fmt.Sprintf("%s unavailable", name)
		return r
	}
	op := ">="
	if strict {
		r.Passed = value > minimum
		op = ">"
	} else {
		r.Passed = value >= minimum
	}
	if r.Passed {
		r.Detail = fmt.Sprintf("%s %d%s ok", name, value, unit)
	} else {
		r.Detail = fmt.Sprintf("%s %d%s, needs %s %d%s", name, value, unit, op, minimum, unit)
	}
	return r
}

func cmOrUnknown(cm int) string {
	if cm < 0 {
		return "unknown"
	}
	return fmt.Sprintf("%dcm", cm)
}

// EvaluateFlip reads telemetry and forward clearance and decides a flip
// without performing it.
func (g *Gate) EvaluateFlip(ctx context.Context, dir vehicle.Direction) (*FlipDecision, error) {
	if !dir.CanFlip() {
		return nil, fmt.Errorf("%w: flip %s", ErrUnsupportedDirection, dir)
	}

	battery, err := g.vehicle.Battery(ctx)
	if err != nil {
		g.logger.Warn("battery unreadable", "error", err)
		battery = -1
	}
	altitude, err := g.vehicle.Height(ctx)
	if err != nil {
		g.logger.Warn("height unreadable", "error", err)
		altitude = -1
	}

	clearance := -1
	var diagnostic string
	r, err := g.report(ctx, oracle.ManeuverFlip, g.config.FlipMinClearanceCm)
	switch {
	case err == nil:
		clearance = r.FrontCm
	case errors.Is(err, ErrSensorUnavailable):
		g.logger.Warn("flip clearance unavailable", "error", err)
		diagnostic = err.Error()
	default:
		var pe *oracle.ParseError
		if !errors.As(err, &pe) {
			return nil, err
		}
		diagnostic = pe.Raw
	}

	d := DecideFlip(g.config, dir, battery, altitude, clearance, g.config.DegradedFlips)
	d.Diagnostic = diagnostic
	g.logger.Info("flip decision", "direction", dir, "allowed", d.Allowed, "reason", d.Reason)
	return d, nil
}

// Flip gates and performs a flip.
func (g *Gate) Flip(ctx context.Context, dir vehicle.Direction) (*FlipDecision, error) {
	d, err := g.EvaluateFlip(ctx, dir)
	if err != nil || !d.Allowed {
		return d, err
	}
	if err := g.vehicle.Flip(ctx, dir); err != nil {
		return d, err
	}
	d.Executed = true
	return d, nil
}
