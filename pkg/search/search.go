// Package search turns the vehicle through a full circle looking for a
// registered target with full two-judge verification at each heading.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-grok-pilot/internal/log"
	"github.com/teslashibe/go-grok-pilot/pkg/abort"
	"github.com/teslashibe/go-grok-pilot/pkg/identity"
	"github.com/teslashibe/go-grok-pilot/pkg/targets"
)

// ErrNoFaceData is returned when the target has no reference embeddings.
var ErrNoFaceData = errors.New("search: target has no face data")

// Verifier runs full verification on a frame.
type Verifier interface {
	Verify(ctx context.Context, frame []byte, t *targets.Target) (*identity.Result, error)
}

// Registry resolves targets and records finds.
type Registry interface {
	Lookup(idOrName string) (*targets.Target, error)
	MarkFound(id string, confidence float64) error
}

// Rotator turns the vehicle in place. Positive is clockwise.
type Rotator interface {
	Rotate(ctx context.Context, degrees int) error
}

// Camera supplies the current frame as JPEG.
type Camera interface {
	Snapshot(ctx context.Context) ([]byte, error)
}

// Config tunes a search.
type Config struct {
	Headings          int           // Number of headings checked
	StepDeg           int           // Rotation between headings
	SettleDelay       time.Duration // Wait after each rotation
	MinBestConfidence float64       // Report a near miss above this
	Logger            *slog.Logger
}

// DefaultConfig checks eight headings 45° apart.
func DefaultConfig() Config {
	return Config{
		Headings:          8,
		StepDeg:           45,
		SettleDelay:       500 * time.Millisecond,
		MinBestConfidence: 0.3,
		Logger:            log.L(),
	}
}

// Candidate is the best non-matching verification seen during a search.
type Candidate struct {
	Angle       int     `json:"angle"`
	Confidence  float64 `json:"confidence"`
	Description string  `json:"description"`
}

// Outcome is the result of FindPerson.
type Outcome struct {
	Found        bool             `json:"found"`
	AlreadyFound bool             `json:"already_found"`
	TargetID     string           `json:"target_id"`
	TargetName   string           `json:"target_name"`
	Angle        int              `json:"angle"`
	Direction    string           `json:"direction,omitempty"`
	Checked      int              `json:"headings_checked"`
	Result       *identity.Result `json:"verification,omitempty"`
	Best         *Candidate       `json:"best_match,omitempty"`
}

// Searcher runs focused searches.
type Searcher struct {
	verifier Verifier
	registry Registry
	rotator  Rotator
	camera   Camera
	abort    *abort.Signal
	config   Config
	logger   *slog.Logger
}

// New creates a searcher.
func New(v Verifier, reg Registry, r Rotator, cam Camera, sig *abort.Signal, cfg Config) *Searcher {
	if sig == nil {
		sig = abort.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.L()
	}
	return &Searcher{
		verifier: v,
		registry: reg,
		rotator:  r,
		camera:   cam,
		abort:    sig,
		config:   cfg,
		logger:   cfg.Logger.With("component", "search.searcher"),
	}
}

// FindPerson looks for the target named by id or name. It stops at the
// first High or Medium match and marks the target found. A target that is
// already found is reported without flying.
func (s *Searcher) FindPerson(ctx context.Context, idOrName string) (*Outcome, error) {
	if err := s.abort.Check(); err != nil {
		return nil, err
	}
	t, err := s.registry.Lookup(idOrName)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if !t.HasFace() {
		return nil, fmt.Errorf("%w: %s", ErrNoFaceData, t.Name)
	}

	out := &Outcome{TargetID: t.ID, TargetName: t.Name}
	if t.Status == targets.StatusFound {
		out.Found = true
		out.AlreadyFound = true
		return out, nil
	}

	s.logger.Info("searching", "target", t.Name, "headings", s.config.Headings)
	var best *identity.Result
	bestAngle := 0

	for i := 0; i < s.config.Headings; i++ {
		if err := s.abort.Check(); err != nil {
			s.logger.Warn("search aborted", "checked", i)
			return nil, err
		}
		angle := i * s.config.StepDeg

		frame, err := s.camera.Snapshot(ctx)
		if err != nil {
			s.logger.Warn("no frame at heading", "angle", angle, "error", err)
		} else {
			r, err := s.verifier.Verify(ctx, frame, t)
			if err != nil {
				return nil, fmt.Errorf("search: verify at %d°: %w", angle, err)
			}
			out.Checked++
			s.logger.Debug("heading checked", "angle", angle, "level", r.Level, "confidence", r.Confidence)

			if r.IsMatch && (r.Level == identity.High || r.Level == identity.Medium) {
				return s.found(t, out, r, angle)
			}
			if best == nil || r.Confidence > best.Confidence {
				best, bestAngle = r, angle
			}
		}

		if i == s.config.Headings-1 {
			break
		}
		if err := s.rotator.Rotate(ctx, s.config.StepDeg); err != nil {
			return nil, fmt.Errorf("search: rotate at %d°: %w", angle, err)
		}
		if err := s.abort.Sleep(ctx, s.config.SettleDelay); err != nil {
			return nil, err
		}
	}

	s.logger.Info("search complete, target not found", "target", t.Name, "checked", out.Checked)
	if best != nil && best.Confidence > s.config.MinBestConfidence {
		out.Best = &Candidate{Angle: bestAngle, Confidence: best.Confidence, Description: best.OracleDescription}
	}
	return out, nil
}

func (s *Searcher) found(t *targets.Target, out *Outcome, r *identity.Result, angle int) (*Outcome, error) {
	out.Found = true
	out.Angle = angle
	out.Direction = Direction(angle)
	out.Result = r
	if err := s.registry.MarkFound(t.ID, r.Confidence); err != nil {
		return out, fmt.Errorf("search: mark found: %w", err)
	}
	s.logger.Info("target found", "target", t.Name, "angle", angle, "level", r.Level, "confidence", r.Confidence)
	return out, nil
}

// Direction describes a heading relative to where the search started.
func Direction(angle int) string {
	a := ((angle % 360) + 360) % 360
	switch {
	case a < 23 || a >= 338:
		return "directly ahead"
	case a < 68:
		return "slightly to your right"
	case a < 113:
		return "to your right"
	case a < 158:
		return "behind and to your right"
	case a < 203:
		return "behind you"
	case a < 248:
		return "behind and to your left"
	case a < 293:
		return "to your left"
	}
	return "slightly to your left"
}
