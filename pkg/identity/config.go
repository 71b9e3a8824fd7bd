package identity

import (
	"log/slog"
	"time"

	"github.com/teslashibe/go-grok-pilot/internal/log"
)

// Config holds the verifier thresholds and per-judge timeouts.
type Config struct {
	// MatchDistance is the embedding distance below which the local
	// judge reports a match.
	MatchDistance float64

	// OracleMinConfidence is the oracle confidence needed for a match.
	OracleMinConfidence float64

	// MediumMinConfidence is the local confidence above which a local-only
	// match is trusted at Medium.
	MediumMinConfidence float64

	// LowPenalty scales the best judge confidence of a Low result.
	LowPenalty float64

	LocalTimeout  time.Duration
	OracleTimeout time.Duration

	Logger *slog.Logger
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() *Config {
	return &Config{
		MatchDistance:       0.5,
		OracleMinConfidence: 0.7,
		MediumMinConfidence: 0.75,
		LowPenalty:          0.5,
		LocalTimeout:        5 * time.Second,
		OracleTimeout:       30 * time.Second,
		Logger:              log.L(),
	}
}

// Option configures a Verifier.
type Option func(*Config)

// Apply applies options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// WithMatchDistance sets the local match threshold.
func WithMatchDistance(d float64) Option {
	return func(c *Config) { c.MatchDistance = d }
}

// WithOracleMinConfidence sets the oracle match threshold.
func WithOracleMinConfidence(v float64) Option {
	return func(c *Config) { c.OracleMinConfidence = v }
}

// WithTimeouts sets the per-judge timeouts.
func WithTimeouts(local, oracle time.Duration) Option {
	return func(c *Config) {
		c.LocalTimeout = local
		c.OracleTimeout = oracle
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}
