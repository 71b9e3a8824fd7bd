package vehicle

import (
	"log/slog"
	"time"

	"github.com/teslashibe/go-grok-pilot/internal/log"
)

// Config holds controller limits.
type Config struct {
	MinMoveCm         int           // Smallest translation the vehicle accepts
	MaxMoveCm         int           // Largest single translation
	MaxHeightCm       int           // Altitude ceiling
	MinTakeoffBattery int           // Battery percent required to take off
	HoverTimeout      time.Duration // Bound on the fallback hover after a failure
	Logger            *slog.Logger
}

// Option configures the controller.
type Option func(*Config)

// WithMoveLimits sets the translation clamp.
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

// WithMinTakeoffBattery sets the takeoff battery floor.
func WithMinTakeoffBattery(pct int) Option {
	return func(c *Config) { c.MinTakeoffBattery = pct }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns limits suited to a small indoor quadcopter.
func DefaultConfig() *Config {
	return &Config{
		MinMoveCm:         20,
		MaxMoveCm:         100,
		MaxHeightCm:       200,
		MinTakeoffBattery: 20,
		HoverTimeout:      3 * time.Second,
		Logger:            log.L(),
	}
}

// Apply applies options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
