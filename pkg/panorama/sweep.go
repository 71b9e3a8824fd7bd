package panorama

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-grok-pilot/internal/log"
	"github.com/teslashibe/go-grok-pilot/pkg/abort"
	"github.com/teslashibe/go-grok-pilot/pkg/oracle"
)

// ErrNoOracle is returned by Sweep when no oracle is configured.
var ErrNoOracle = errors.New("panorama: oracle not configured")

// Camera supplies the current frame as JPEG.
type Camera interface {
	Snapshot(ctx context.Context) ([]byte, error)
}

// Rotator turns the vehicle in place. Positive is clockwise.
type Rotator interface {
	Rotate(ctx context.Context, degrees int) error
}

// Config tunes a sweep.
type Config struct {
	SettleDelay time.Duration // Wait after each rotation before capturing
	Timeout     time.Duration // Oracle deadline for the 8-frame analysis
	Logger      *slog.Logger
}

// DefaultConfig returns the standard sweep timing.
func DefaultConfig() Config {
	return Config{
		SettleDelay: 500 * time.Millisecond,
		Timeout:     120 * time.Second,
		Logger:      log.L(),
	}
}

// Result is a deduplicated sweep.
type Result struct {
	ID         string                   `json:"id"`
	CapturedAt time.Time                `json:"captured_at"`
	Analysis   *oracle.PanoramaAnalysis `json:"analysis"`
	Stats      Stats                    `json:"dedup"`
}

// Sweeper captures 360° panoramas.
type Sweeper struct {
	camera  Camera
	rotator Rotator
	oracle  oracle.Oracle
	abort   *abort.Signal
	config  Config
	logger  *slog.Logger
}

// NewSweeper creates a sweeper.
func NewSweeper(cam Camera, r Rotator, o oracle.Oracle, sig *abort.Signal, cfg Config) *Sweeper {
	if sig == nil {
		sig = abort.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.L()
	}
	return &Sweeper{
		camera:  cam,
		rotator: r,
		oracle:  o,
		abort:   sig,
		config:  cfg,
		logger:  cfg.Logger.With("component", "panorama.sweeper"),
	}
}

// Capture takes one frame per heading, rotating 45° clockwise after each
// so the vehicle ends on its starting heading. It stops at the first
// abort, camera or rotation failure.
func (s *Sweeper) Capture(ctx context.Context) ([][]byte, error) {
	step := 360 / Frames
	frames := make([][]byte, 0, Frames)

	for i := 1; i <= Frames; i++ {
		if err := s.abort.Check(); err != nil {
			return nil, err
		}
		if i > 1 {
			if err := s.abort.Sleep(ctx, s.config.SettleDelay); err != nil {
				return nil, err
			}
		}
		frame, err := s.camera.Snapshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("panorama: capture frame %d: %w", i, err)
		}
		frames = append(frames, frame)
		s.logger.Debug("frame captured", "frame", i, "heading", oracle.FrameAngle(i))

		if err := s.abort.Check(); err != nil {
			return nil, err
		}
		if err := s.rotator.Rotate(ctx, step); err != nil {
			return nil, fmt.Errorf("panorama: rotate after frame %d: %w", i, err)
		}
	}
	return frames, nil
}

// Sweep captures a panorama, asks the oracle to group the people in it
// and repairs the grouping.
func (s *Sweeper) Sweep(ctx context.Context) (*Result, error) {
	if s.oracle == nil {
		return nil, ErrNoOracle
	}
	start := time.Now()
	frames, err := s.Capture(ctx)
	if err != nil {
		return nil, err
	}

	actx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()
	raw, err := s.oracle.AnalyzePanorama(actx, frames)
	if err != nil {
		return nil, fmt.Errorf("panorama: analyze: %w", err)
	}

	fixed, st := Deduplicate(raw, s.logger)
	s.logger.Info("panorama complete", "people", st.Output, "split", st.Split,
		"objects", fixed.ObjectsCount, "elapsed", time.Since(start).Round(time.Millisecond))
	return &Result{
		ID:         uuid.NewString(),
		CapturedAt: start,
		Analysis:   fixed,
		Stats:      st,
	}, nil
}
