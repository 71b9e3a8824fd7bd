package vehicle

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/teslashibe/go-grok-pilot/pkg/abort"
	"github.com/teslashibe/go-grok-pilot/pkg/statemachine"
)

// Position is the dead-reckoned offset from the takeoff point in cm.
// X is forward, Y is right, Z is up, all in the takeoff frame.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// Distance returns the straight-line distance from home.
func (p Position) Distance() float64 {
	return math.Sqrt(float64(p.X*p.X + p.Y*p.Y + p.Z*p.Z))
}

// Status is a point-in-time view of the vehicle.
type Status struct {
	State     statemachine.State `json:"state"`
	Flying    bool               `json:"flying"`
	Battery   int                `json:"battery"`
	HeightCm  int                `json:"height_cm"`
	Heading   int                `json:"heading"`
	Position  Position           `json:"position"`
	InStateMs int64              `json:"in_state_ms"`
	Error     string             `json:"error,omitempty"`
}

// Controller is the only path from the rest of the system to the
// transport. All physical commands flow through one maneuver lock so at
// most one is ever in flight.
type Controller struct {
	transport Transport
	sm        *statemachine.Machine
	abort     *abort.Signal
	config    *Config
	logger    *slog.Logger

	maneuver sync.Mutex

	posMu   sync.RWMutex
	pos     Position
	heading int // degrees clockwise from takeoff heading, 0-359
}

// NewController wires a transport to the shared state machine and abort signal.
func NewController(t Transport, sm *statemachine.Machine, sig *abort.Signal, opts ...Option) *Controller {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	return &Controller{
		transport: t,
		sm:        sm,
		abort:     sig,
		config:    cfg,
		logger:    cfg.Logger.With("component", "vehicle.controller"),
	}
}

// Machine returns the shared state machine.
func (c *Controller) Machine() *statemachine.Machine {
	return c.sm
}

// Abort returns the shared abort signal.
func (c *Controller) Abort() *abort.Signal {
	return c.abort
}

// Config returns the controller limits.
func (c *Controller) Config() Config {
	return *c.config
}

// Connect opens the transport link.
func (c *Controller) Connect(ctx context.Context) error {
	if err := c.transport.Connect(ctx); err != nil {
		return fmt.Errorf("vehicle: connect: %w", err)
	}
	if err := c.sm.TransitionTo(statemachine.Connected); err != nil {
		return err
	}
	bat, _ := c.transport.Battery(ctx)
	c.logger.Info("connected", "battery", bat)
	return nil
}

// Close releases the transport.
func (c *Controller) Close() error {
	err := c.transport.Close()
	if c.sm.State() == statemachine.Connected {
		_ = c.sm.TransitionTo(statemachine.Idle)
	}
	return err
}

// Takeoff launches and hovers. It is a no-op when already flying.
func (c *Controller) Takeoff(ctx context.Context) error {
	if c.sm.IsFlying() {
		c.logger.Warn("takeoff ignored, already flying")
		return nil
	}
	if err := c.abort.Check(); err != nil {
		return err
	}

	bat, err := c.transport.Battery(ctx)
	if err != nil {
		return fmt.Errorf("vehicle: read battery: %w", err)
	}
	if bat < c.config.MinTakeoffBattery {
		return fmt.Errorf("%w for takeoff: %d%%", ErrLowBattery, bat)
	}

	c.maneuver.Lock()
	defer c.maneuver.Unlock()

	c.logger.Info("taking off", "battery", bat)
	if err := c.transport.Takeoff(ctx); err != nil {
		return &ActuatorError{Command: "takeoff", Err: err}
	}

	c.posMu.Lock()
	c.pos = Position{}
	c.heading = 0
	c.posMu.Unlock()

	return c.sm.TransitionTo(statemachine.Hovering)
}

// Land lands the vehicle. It is a no-op when not flying.
func (c *Controller) Land(ctx context.Context) error {
	if !c.sm.IsFlying() {
		c.logger.Warn("land ignored, not flying")
		return nil
	}

	c.maneuver.Lock()
	defer c.maneuver.Unlock()

	if err := c.sm.TransitionTo(statemachine.Landing); err != nil {
		return err
	}
	c.logger.Info("landing")
	if err := c.transport.Land(ctx); err != nil {
		return &ActuatorError{Command: "land", Err: err}
	}
	return c.sm.TransitionTo(statemachine.Connected)
}

// ClampDistance applies the controller's translation limits.
func (c *Controller) ClampDistance(cm int) int {
	return clamp(cm, c.config.MinMoveCm, c.config.MaxMoveCm)
}

// Move translates the vehicle and returns the distance actually commanded
// after clamping.
func (c *Controller) Move(ctx context.Context, dir Direction, cm int) (int, error) {
	if _, err := ParseDirection(string(dir)); err != nil {
		return 0, err
	}
	dist := c.ClampDistance(cm)

	if dir == Up {
		h, err := c.transport.Height(ctx)
		if err == nil && h+dist > c.config.MaxHeightCm {
			return 0, fmt.Errorf("%w of %dcm (at %dcm, asked %dcm)", ErrCeiling, c.config.MaxHeightCm, h, dist)
		}
	}

	cmd := fmt.Sprintf("move %s %d", dir, dist)
	err := c.execute(ctx, cmd, func(ctx context.Context) error {
		c.logger.Info("moving", "direction", dir, "cm", dist)
		return c.transport.Move(ctx, dir, dist)
	})
	if err != nil {
		return 0, err
	}
	c.track(dir, dist)
	return dist, nil
}

// Rotate turns in place. Positive is clockwise.
func (c *Controller) Rotate(ctx context.Context, degrees int) error {
	if degrees == 0 {
		return nil
	}
	err := c.execute(ctx, fmt.Sprintf("rotate %d", degrees), func(ctx context.Context) error {
		c.logger.Info("rotating", "degrees", degrees)
		return c.transport.Rotate(ctx, degrees)
	})
	if err == nil {
		c.turn(degrees)
	}
	return err
}

// TryRotate rotates only if no other maneuver is in flight. It reports
// whether the rotation was issued.
func (c *Controller) TryRotate(ctx context.Context, degrees int) (bool, error) {
	if !c.maneuver.TryLock() {
		return false, nil
	}
	defer c.maneuver.Unlock()

	if err := c.ready(); err != nil {
		return false, err
	}
	err := c.run(ctx, fmt.Sprintf("rotate %d", degrees), func(ctx context.Context) error {
		c.logger.Debug("rotating", "degrees", degrees)
		return c.transport.Rotate(ctx, degrees)
	})
	if err == nil {
		c.turn(degrees)
	}
	return true, err
}

// Flip performs a flip. Callers are expected to pass it through the
// clearance gate first.
func (c *Controller) Flip(ctx context.Context, dir Direction) error {
	if !dir.CanFlip() {
		return fmt.Errorf("%w for flip: %q", ErrInvalidDirection, dir)
	}
	return c.execute(ctx, fmt.Sprintf("flip %s", dir), func(ctx context.Context) error {
		c.logger.Info("flipping", "direction", dir)
		return c.transport.Flip(ctx, dir)
	})
}

// Hover stops all motion.
func (c *Controller) Hover(ctx context.Context) error {
	if err := c.transport.Hover(ctx); err != nil {
		return &ActuatorError{Command: "hover", Err: err}
	}
	if c.sm.State() == statemachine.Executing {
		return c.sm.TransitionTo(statemachine.Hovering)
	}
	return nil
}

// EmergencyStop raises the abort signal, forces the Emergency state and
// halts motion. It does not wait for the maneuver lock.
func (c *Controller) EmergencyStop(ctx context.Context, reason string) error {
	c.logger.Warn("emergency stop", "reason", reason)
	c.abort.Trigger(reason)
	c.sm.Force(statemachine.Emergency)
	if err := c.transport.Hover(ctx); err != nil {
		return &ActuatorError{Command: "hover", Err: err}
	}
	return nil
}

// EmergencyLand lands immediately wherever the vehicle is. If the landing
// command fails the motors are cut.
func (c *Controller) EmergencyLand(ctx context.Context) error {
	c.logger.Warn("emergency land")
	c.abort.Trigger("emergency land")
	c.sm.Force(statemachine.Landing)

	if err := c.transport.Land(ctx); err != nil {
		c.logger.Error("emergency land failed, cutting motors", "error", err)
		if eerr := c.transport.Emergency(ctx); eerr != nil {
			c.logger.Error("motor cut failed", "error", eerr)
		}
		c.sm.Force(statemachine.Emergency)
		return &ActuatorError{Command: "land", Err: err}
	}
	return c.sm.TransitionTo(statemachine.Connected)
}

// Recover clears the abort signal and leaves the Emergency state.
func (c *Controller) Recover() error {
	c.abort.Reset()
	if c.sm.State() != statemachine.Emergency {
		return nil
	}
	h, err := c.transport.Height(context.Background())
	if err == nil && h <= 0 {
		return c.sm.TransitionTo(statemachine.Connected)
	}
	return c.sm.TransitionTo(statemachine.Hovering)
}

// ReturnHome flies back to the takeoff point along the reverse of the
// dead-reckoned offset and lands. Altitude is corrected first. On any
// failure it falls back to EmergencyLand.
func (c *Controller) ReturnHome(ctx context.Context) error {
	if !c.sm.IsFlying() {
		return ErrNotFlying
	}
	p := c.Position()
	c.logger.Warn("returning home", "x", p.X, "y", p.Y, "z", p.Z)

	fail := func(err error) error {
		c.logger.Error("return home failed", "error", err)
		if lerr := c.EmergencyLand(ctx); lerr != nil {
			return lerr
		}
		return err
	}

	if err := c.unwind(ctx, p.Z, Down, Up); err != nil {
		return fail(err)
	}
	// Face the takeoff heading so body-frame moves undo takeoff-frame offsets.
	if h := c.Heading(); h != 0 {
		turn := -h
		if h > 180 {
			turn = 360 - h
		}
		if err := c.Rotate(ctx, turn); err != nil {
			return fail(err)
		}
	}
	if err := c.unwind(ctx, p.X, Back, Forward); err != nil {
		return fail(err)
	}
	if err := c.unwind(ctx, p.Y, Left, Right); err != nil {
		return fail(err)
	}
	return c.Land(ctx)
}

func (c *Controller) unwind(ctx context.Context, delta int, pos, neg Direction) error {
	dir := pos
	if delta < 0 {
		dir, delta = neg, -delta
	}
	for delta > 0 {
		leg := min(delta, c.config.MaxMoveCm)
		if leg < c.config.MinMoveCm {
			break
		}
		if _, err := c.Move(ctx, dir, leg); err != nil {
			return err
		}
		delta -= leg
	}
	return nil
}

// Position returns the dead-reckoned offset from takeoff.
func (c *Controller) Position() Position {
	c.posMu.RLock()
	defer c.posMu.RUnlock()
	return c.pos
}

// Heading returns degrees clockwise from the takeoff heading.
func (c *Controller) Heading() int {
	c.posMu.RLock()
	defer c.posMu.RUnlock()
	return c.heading
}

// Battery reads the battery percentage.
func (c *Controller) Battery(ctx context.Context) (int, error) {
	return c.transport.Battery(ctx)
}

// Height reads the altitude in cm.
func (c *Controller) Height(ctx context.Context) (int, error) {
	return c.transport.Height(ctx)
}

// Status gathers telemetry and state. Telemetry errors are reported in
// the Error field rather than returned.
func (c *Controller) Status(ctx context.Context) Status {
	s := Status{
		State:     c.sm.State(),
		Flying:    c.sm.IsFlying(),
		Position:  c.Position(),
		Heading:   c.Heading(),
		InStateMs: c.sm.Since().Milliseconds(),
	}
	var err error
	if s.Battery, err = c.transport.Battery(ctx); err != nil {
		s.Error = err.Error()
	}
	if s.HeightCm, err = c.transport.Height(ctx); err != nil {
		s.Error = err.Error()
	}
	return s
}

func (c *Controller) ready() error {
	if err := c.abort.Check(); err != nil {
		return err
	}
	if c.sm.CanExecute() {
		return nil
	}
	if st := c.sm.State(); st == statemachine.Connected || st == statemachine.Idle {
		return ErrNotFlying
	}
	return fmt.Errorf("%w: %s", ErrNotReady, c.sm.State())
}

func (c *Controller) execute(ctx context.Context, cmd string, fn func(context.Context) error) error {
	if err := c.ready(); err != nil {
		return err
	}
	c.maneuver.Lock()
	defer c.maneuver.Unlock()

	// The abort may have fired while waiting for the lock.
	if err := c.ready(); err != nil {
		return err
	}
	return c.run(ctx, cmd, fn)
}

// run executes fn with the maneuver lock held. Hovering becomes Executing
// for the duration. Searching is left as is.
func (c *Controller) run(ctx context.Context, cmd string, fn func(context.Context) error) error {
	if c.sm.State() == statemachine.Hovering {
		if err := c.sm.TransitionTo(statemachine.Executing); err != nil {
			return err
		}
	}

	err := fn(ctx)
	if err != nil {
		c.logger.Error("actuator failure", "command", cmd, "error", err)
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.HoverTimeout)
		if herr := c.transport.Hover(hctx); herr != nil {
			c.logger.Error("fallback hover failed", "error", herr)
		}
		cancel()
		c.settle()
		return &ActuatorError{Command: cmd, Err: err}
	}
	c.settle()
	return nil
}

func (c *Controller) settle() {
	if c.sm.State() == statemachine.Executing {
		_ = c.sm.TransitionTo(statemachine.Hovering)
	}
}

// track updates the dead-reckoned position, rotating body-frame motion by
// the current heading.
func (c *Controller) track(dir Direction, cm int) {
	c.posMu.Lock()
	defer c.posMu.Unlock()

	rad := float64(c.heading) * math.Pi / 180
	fwd := func(f, r float64) {
		c.pos.X += int(math.Round(f*math.Cos(rad) - r*math.Sin(rad)))
		c.pos.Y += int(math.Round(f*math.Sin(rad) + r*math.Cos(rad)))
	}
	d := float64(cm)
	switch dir {
	case Forward:
		fwd(d, 0)
	case Back:
		fwd(-d, 0)
	case Right:
		fwd(0, d)
	case Left:
		fwd(0, -d)
	case Up:
		c.pos.Z += cm
	case Down:
		c.pos.Z -= cm
	}
}

func (c *Controller) turn(degrees int) {
	c.posMu.Lock()
	c.heading = ((c.heading+degrees)%360 + 360) % 360
	c.posMu.Unlock()
}
