package clearance

import (
	"errors"
	"log/slog"
	"time"

	"github.com/teslashibe/go-grok-pilot/internal/log"
)

// Config holds gate thresholds. All distances are in cm.
type Config struct {
	// BufferCm is kept between the vehicle and the nearest obstacle.
	BufferCm int

	// MinClearanceCm is the clearance a shortened move needs. At or below
	// it the move is denied.
	MinClearanceCm int

	// MinReducedCm is the shortest move worth flying after reduction.
	MinReducedCm int

	// DegradedCapCm caps ordinary moves when the camera or oracle is down.
	DegradedCapCm int

	// MinMoveCm and MaxMoveCm are the vehicle's translation limits.
	MinMoveCm int
	MaxMoveCm int

	// MaxHeightCm is the altitude ceiling for vertical moves.
	MaxHeightCm int

	// Flip gates.
	FlipMinBattery     int
	FlipMinAltitudeCm  int
	FlipMinClearanceCm int

	// DegradedFlips allows flips on battery and altitude alone when
	// clearance cannot be measured.
	DegradedFlips bool

	// OracleTimeout bounds each clearance query.
	OracleTimeout time.Duration

	Logger *slog.Logger
}

// Option configures the gate.
type Option func(*Config)

// WithBuffer sets the obstacle buffer.
func WithBuffer(cm int) Option {
	return func(c *Config) { c.BufferCm = cm }
}

// WithReduction sets when and how far a blocked move may be shortened.
func WithReduction(minClearanceCm, minReducedCm int) Option {
	return func(c *Config) {
		c.MinClearanceCm = minClearanceCm
		c.MinReducedCm = minReducedCm
	}
}

// WithDegradedCap sets the move cap used when sensing is unavailable.
func WithDegradedCap(cm int) Option {
	return func(c *Config) { c.DegradedCapCm = cm }
}

// WithMoveLimits sets the vehicle translation limits.
func WithMoveLimits(minCm, maxCm int) Option {
	return func(c *Config) {
		c.MinMoveCm = minCm
		c.MaxMoveCm = maxCm
	}
}

// WithMaxHeight sets the altitude ceiling.
func WithMaxHeight(cm int) Option {
	return func(c *Config) { c.MaxHeightCm = cm }
}

// WithFlipGates sets the flip thresholds.
func WithFlipGates(battery, altitudeCm, clearanceCm int) Option {
	return func(c *Config) {
		c.FlipMinBattery = battery
		c.FlipMinAltitudeCm = altitudeCm
		c.FlipMinClearanceCm = clearanceCm
	}
}

// WithDegradedFlips allows flips without a clearance reading.
func WithDegradedFlips(allow bool) Option {
	return func(c *Config) { c.DegradedFlips = allow }
}

// WithOracleTimeout sets the clearance query timeout.
func WithOracleTimeout(d time.Duration) Option {
	return func(c *Config) { c.OracleTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() *Config {
	return &Config{
		BufferCm:           30,
		MinClearanceCm:     50,
		MinReducedCm:       20,
		DegradedCapCm:      25,
		MinMoveCm:          20,
		MaxMoveCm:          100,
		MaxHeightCm:        200,
		FlipMinBattery:     50,
		FlipMinAltitudeCm:  100,
		FlipMinClearanceCm: 50,
		OracleTimeout:      30 * time.Second,
		Logger:             log.L(),
	}
}

// Apply applies options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks the thresholds for consistency.
func (c *Config) Validate() error {
	switch {
	case c.BufferCm < 0:
		return errors.New("clearance: buffer must not be negative")
	case c.MinMoveCm <= 0 || c.MaxMoveCm < c.MinMoveCm:
		return errors.New("clearance: invalid move limits")
	case c.DegradedCapCm <= 0:
		return errors.New("clearance: degraded cap must be positive")
	case c.MinReducedCm < 0:
		return errors.New("clearance: minimum reduced move must not be negative")
	}
	return nil
}
