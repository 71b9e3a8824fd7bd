// Package oracle turns the remote vision model into typed judgments:
// obstacle clearance, identity checks and panorama grouping.
//
// Every response is decoded through ExtractJSON and RepairJSON. A response
// that still does not parse is reported as *ParseError carrying the raw
// text. It is never coerced into "safe" or "match".
package oracle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/teslashibe/go-grok-pilot/internal/log"
)

// Errors returned by oracle calls.
var (
	ErrEmptyFrame = errors.New("oracle: empty frame")
	ErrFrameCount = errors.New("oracle: panorama needs exactly 8 frames")
	ErrNoProvider = errors.New("oracle: no inference provider")
)

// Oracle is the vision oracle as seen by the safety and tracking layer.
type Oracle interface {
	// CheckClearance estimates free space before a maneuver.
	CheckClearance(ctx context.Context, frame []byte, m Maneuver, requiredCm int) (*ClearanceReport, error)

	// VerifyIdentity asks whether the described person is in the frame.
	VerifyIdentity(ctx context.Context, frame []byte, target Descriptor) (*IdentityJudgment, error)

	// AnalyzePanorama groups people across an 8-frame sweep.
	AnalyzePanorama(ctx context.Context, frames [][]byte) (*PanoramaAnalysis, error)
}

// Config holds oracle client configuration.
type Config struct {
	// Timeout bounds single-frame calls.
	Timeout time.Duration

	// PanoramaTimeout bounds the 8-frame sweep call.
	PanoramaTimeout time.Duration

	// MaxTokens limits each response.
	MaxTokens int

	Logger *slog.Logger
}

// Option configures the oracle client.
type Option func(*Config)

// WithTimeout sets the single-frame timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithPanoramaTimeout sets the sweep timeout.
func WithPanoramaTimeout(d time.Duration) Option {
	return func(c *Config) { c.PanoramaTimeout = d }
}

// WithMaxTokens sets the response length limit.
func WithMaxTokens(n int) Option {
	return func(c *Config) { c.MaxTokens = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns the default oracle configuration.
func DefaultConfig() *Config {
	return &Config{
		Timeout:         30 * time.Second,
		PanoramaTimeout: 120 * time.Second,
		MaxTokens:       2048,
		Logger:          log.L(),
	}
}

// Apply applies options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}
