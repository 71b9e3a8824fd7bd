// Package clearance decides whether a requested move or flip is safe to
// fly, shortening or denying it from oracle-estimated obstacle clearance
// and vehicle telemetry.
package clearance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/teslashibe/go-grok-pilot/pkg/oracle"
	"github.com/teslashibe/go-grok-pilot/pkg/statemachine"
	"github.com/teslashibe/go-grok-pilot/pkg/vehicle"
)

// Camera supplies the current forward-facing frame as JPEG.
type Camera interface {
	Snapshot(ctx context.Context) ([]byte, error)
}

// Vehicle is the part of the vehicle controller the gate drives.
type Vehicle interface {
	vehicle.Telemetry
	Move(ctx context.Context, dir vehicle.Direction, cm int) (int, error)
	Rotate(ctx context.Context, degrees int) error
	Flip(ctx context.Context, dir vehicle.Direction) error
}

// Gate evaluates and executes movement requests.
type Gate struct {
	oracle  oracle.Oracle
	camera  Camera
	vehicle Vehicle
	state   *statemachine.Machine
	config  *Config
	logger  *slog.Logger
}

// New creates a gate. oracle and camera may be nil, in which case every
// vision-gated request takes the degraded path.
func New(o oracle.Oracle, cam Camera, v Vehicle, sm *statemachine.Machine, opts ...Option) (*Gate, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Gate{
		oracle:  o,
		camera:  cam,
		vehicle: v,
		state:   sm,
		config:  cfg,
		logger:  cfg.Logger.With("component", "clearance.gate"),
	}, nil
}

// Config returns the gate thresholds.
func (g *Gate) Config() Config {
	return *g.config
}

// report captures a frame and asks the oracle for clearance. Camera and
// transport failures are wrapped in ErrSensorUnavailable. A malformed
// oracle answer is returned as *oracle.ParseError.
func (g *Gate) report(ctx context.Context, m oracle.Maneuver, requiredCm int) (*oracle.ClearanceReport, error) {
	if g.camera == nil || g.oracle == nil {
		return nil, fmt.Errorf("%w: vision not configured", ErrSensorUnavailable)
	}
	frame, err := g.camera.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: camera: %v", ErrSensorUnavailable, err)
	}

	if g.config.OracleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.OracleTimeout)
		defer cancel()
	}
	r, err := g.oracle.CheckClearance(ctx, frame, m, requiredCm)
	if err != nil {
		var pe *oracle.ParseError
		if errors.As(err, &pe) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: oracle: %v", ErrSensorUnavailable, err)
	}
	return r, nil
}

func checkDistance(req Request) error {
	if req.DistanceCm < 0 {
		return fmt.Errorf("%w: %dcm", ErrInvalidDistance, req.DistanceCm)
	}
	return nil
}

// normalize applies the vehicle translation limits. Requests below the
// vehicle minimum cannot be flown without overshooting and are denied.
func (g *Gate) normalize(req Request) (Request, *Decision) {
	if req.DistanceCm < g.config.MinMoveCm {
		return req, deny(req, "distance",
			fmt.Sprintf("denied: %dcm is below the %dcm minimum move", req.DistanceCm, g.config.MinMoveCm))
	}
	if req.DistanceCm > g.config.MaxMoveCm {
		req.DistanceCm = g.config.MaxMoveCm
	}
	return req, nil
}

// Evaluate decides a forward or lateral request against the current view
// without moving. Sensing failures yield a degraded decision.
func (g *Gate) Evaluate(ctx context.Context, req Request) (*Decision, error) {
	side, maneuver, ok := sideFor(req.Direction)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDirection, req.Direction)
	}
	if err := checkDistance(req); err != nil {
		return nil, err
	}
	asked := req.DistanceCm
	req, denied := g.normalize(req)
	if denied != nil {
		return denied, nil
	}

	r, err := g.report(ctx, maneuver, req.DistanceCm+g.config.BufferCm)
	if err != nil {
		if errors.Is(err, ErrSensorUnavailable) {
			g.logger.Warn("clearance degraded", "direction", req.Direction, "error", err)
			d := degraded(g.config, req, err)
			d.RequestedCm = asked
			return d, nil
		}
		var pe *oracle.ParseError
		if errors.As(err, &pe) {
			d := deny(req, "oracle", "denied: clearance answer could not be parsed")
			d.RequestedCm = asked
			d.Diagnostic = pe.Raw
			return d, nil
		}
		return nil, err
	}

	d := Decide(g.config, req, r)
	d.RequestedCm = asked
	if d.Allowed && d.ActualCm < g.config.MinMoveCm {
		// The vehicle would round the move up past the clearance.
		d.Reason = fmt.Sprintf("denied: shortened move of %dcm is below the %dcm minimum (%s)",
			d.ActualCm, g.config.MinMoveCm, d.Reason)
		d.Allowed, d.Reduced, d.ActualCm = false, false, 0
		d.Gates = []string{"distance"}
	}
	g.logger.Info("clearance decision", "direction", req.Direction, "side", side,
		"requested_cm", asked, "actual_cm", d.ActualCm, "clearance_cm", d.ClearanceCm,
		"allowed", d.Allowed, "reason", d.Reason)
	return d, nil
}

// Move gates and flies a translation.
//
// Forward and lateral moves are checked against the camera. Backward
// moves turn around first, check the new forward view and fly forward;
// on denial the vehicle turns back, otherwise it stays facing the new
// heading. Vertical moves are not vision-gated and only respect the
// altitude ceiling.
func (g *Gate) Move(ctx context.Context, req Request) (*Decision, error) {
	if err := checkDistance(req); err != nil {
		return nil, err
	}
	switch {
	case req.Direction.IsVertical():
		return g.moveVertical(ctx, req)
	case req.Direction == vehicle.Back:
		return g.moveBackward(ctx, req)
	}

	d, err := g.Evaluate(ctx, req)
	if err != nil {
		return nil, err
	}
	return g.fly(ctx, d, req.Direction)
}

func (g *Gate) fly(ctx context.Context, d *Decision, dir vehicle.Direction) (*Decision, error) {
	if !d.Allowed {
		return d, nil
	}
	flown, err := g.vehicle.Move(ctx, dir, d.ActualCm)
	if err != nil {
		return d, err
	}
	d.ActualCm = flown
	d.Executed = true
	return d, nil
}

func (g *Gate) moveBackward(ctx context.Context, req Request) (*Decision, error) {
	if _, denied := g.normalize(req); denied != nil {
		return denied, nil
	}

	g.logger.Info("turning around to check backward move", "requested_cm", req.DistanceCm)
	if err := g.vehicle.Rotate(ctx, 180); err != nil {
		return nil, fmt.Errorf("clearance: turn around: %w", err)
	}

	fwd := req
	fwd.Direction = vehicle.Forward
	d, err := g.Evaluate(ctx, fwd)
	if err != nil || !d.Allowed {
		if rerr := g.vehicle.Rotate(ctx, -180); rerr != nil {
			g.logger.Error("failed to restore heading", "error", rerr)
			if err == nil {
				err = fmt.Errorf("clearance: restore heading: %w", rerr)
			}
		}
		if d != nil {
			d.Direction = vehicle.Back
		}
		return d, err
	}

	d.Direction = vehicle.Back
	d.Turned = true
	d.Reason += ", now facing the opposite heading"
	return g.fly(ctx, d, vehicle.Forward)
}

func (g *Gate) moveVertical(ctx context.Context, req Request) (*Decision, error) {
	asked := req.DistanceCm
	req, denied := g.normalize(req)
	if denied != nil {
		return denied, nil
	}

	d := &Decision{
		Direction:   req.Direction,
		RequestedCm: asked,
		ActualCm:    req.DistanceCm,
		ClearanceCm: oracle.UnknownClearance,
		Reduced:     req.DistanceCm < asked,
	}

	h, err := g.vehicle.Height(ctx)
	switch {
	case err != nil:
		g.logger.Warn("height unreadable, vertical move capped", "error", err)
		d.ActualCm = min(req.DistanceCm, g.config.DegradedCapCm)
		d.Degraded = true
		d.Reduced = d.ActualCm < asked
		d.Reason = fmt.Sprintf("height unreadable, capped at %dcm", d.ActualCm)
	case req.Direction == vehicle.Up && h+req.DistanceCm > g.config.MaxHeightCm:
		room := g.config.MaxHeightCm - h
		if room < g.config.MinMoveCm {
			d.ActualCm = 0
			d.Gates = []string{"ceiling"}
			d.Reason = fmt.Sprintf("denied: at %dcm, ceiling is %dcm", h, g.config.MaxHeightCm)
			return d, nil
		}
		d.ActualCm = room
		d.Reduced = true
	}

	d.Allowed = true
	if d.Reason == "" {
		d.Reason = fmt.Sprintf("vertical moves are not vision-gated, moving %s %dcm", req.Direction, d.ActualCm)
	}
	return g.fly(ctx, d, req.Direction)
}
