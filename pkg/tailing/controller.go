// Package tailing keeps a verified target centered in the camera by
// rotating the vehicle in place. It never translates the vehicle.
package tailing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-grok-pilot/pkg/abort"
	"github.com/teslashibe/go-grok-pilot/pkg/geom"
	"github.com/teslashibe/go-grok-pilot/pkg/identity"
	"github.com/teslashibe/go-grok-pilot/pkg/targets"
)

var (
	// ErrActive is returned by Start while a session is running.
	ErrActive = errors.New("tailing: already active")

	// ErrNoFaceData is returned by Start for a target without embeddings.
	ErrNoFaceData = errors.New("tailing: target has no face data")
)

// Phase is the sub-state of a session.
type Phase string

// Session phases.
const (
	PhaseIdle      Phase = "idle"
	PhaseTracking  Phase = "tracking"
	PhaseHolding   Phase = "holding"
	PhaseSearching Phase = "searching"
	PhaseGaveUp    Phase = "gave_up"
)

// Verifier matches a frame against the followed target.
type Verifier interface {
	Quick(ctx context.Context, frame []byte, t *targets.Target) (*identity.Result, error)
}

// Rotator issues a rotation unless another maneuver is in flight.
type Rotator interface {
	TryRotate(ctx context.Context, degrees int) (bool, error)
}

// Targets resolves target ids.
type Targets interface {
	Get(id string) (*targets.Target, error)
}

// Camera supplies frames to Run.
type Camera interface {
	Snapshot(ctx context.Context) ([]byte, error)
}

// Update is the outcome of one Step.
type Update struct {
	Phase       Phase         `json:"phase"`
	Tracking    bool          `json:"tracking"`
	BBox        *geom.BBox    `json:"bbox,omitempty"`
	Confidence  float64       `json:"confidence"`
	OffsetPx    float64       `json:"offset_px"`
	RotationDeg int           `json:"rotation_queued"`
	TimeLost    time.Duration `json:"time_lost"`
	GaveUp      bool          `json:"gave_up"`
}

// Snapshot is a consistent copy of the session state.
type Snapshot struct {
	Active        bool       `json:"active"`
	TargetID      string     `json:"target_id,omitempty"`
	TargetName    string     `json:"target_name,omitempty"`
	Phase         Phase      `json:"phase"`
	BBox          *geom.BBox `json:"bbox,omitempty"`
	Confidence    float64    `json:"confidence"`
	LastSeen      time.Time  `json:"last_seen"`
	FramesTracked int        `json:"frames_tracked"`
	FramesLost    int        `json:"frames_lost"`
	LastRotation  int        `json:"last_rotation"`
}

type session struct {
	target       *targets.Target
	ctx          context.Context
	cancel       context.CancelFunc
	phase        Phase
	bbox         *geom.BBox
	confidence   float64
	lastSeen     time.Time
	lastRotation time.Time
	lastDegrees  int
	tracked      int
	lost         int
}

// Controller runs at most one following session at a time.
type Controller struct {
	config   Config
	verifier Verifier
	rotator  Rotator
	targets  Targets
	abort    *abort.Signal
	logger   *slog.Logger

	mu        sync.Mutex
	sess      *session
	ended     Phase
	observers []func(Snapshot)

	inflight sync.WaitGroup
}

// New creates an idle controller.
func New(v Verifier, r Rotator, reg Targets, sig *abort.Signal, cfg Config) *Controller {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.MinRotationInterval < MinRotationFloor {
		cfg.MinRotationInterval = MinRotationFloor
	}
	if sig == nil {
		sig = abort.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = DefaultConfig().Logger
	}
	return &Controller{
		config:   cfg,
		verifier: v,
		rotator:  r,
		targets:  reg,
		abort:    sig,
		logger:   logger.With("component", "tailing.controller"),
		ended:    PhaseIdle,
	}
}

// Config returns the controller configuration.
func (c *Controller) Config() Config {
	return c.config
}

// OnUpdate registers fn to receive a snapshot after every state change.
// fn is called without the controller lock held.
func (c *Controller) OnUpdate(fn func(Snapshot)) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

// Start begins following the target with the given id.
func (c *Controller) Start(targetID string) error {
	t, err := c.targets.Get(targetID)
	if err != nil {
		return fmt.Errorf("tailing: %w", err)
	}
	if !t.HasFace() {
		return fmt.Errorf("%w: %s", ErrNoFaceData, t.Name)
	}

	c.mu.Lock()
	if c.sess != nil {
		c.mu.Unlock()
		return ErrActive
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.sess = &session{
		target:   t,
		ctx:      ctx,
		cancel:   cancel,
		phase:    PhaseTracking,
		lastSeen: c.config.Clock(),
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Info("tailing started", "target", t.Name, "id", t.ID)
	c.notify(snap)
	return nil
}

// Stop ends the session. It is idempotent and reports whether a session
// was running.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	if c.sess == nil {
		c.mu.Unlock()
		return false
	}
	name := c.sess.target.Name
	c.endLocked(PhaseIdle)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Info("tailing stopped", "target", name)
	c.notify(snap)
	return true
}

// endLocked tears the session down. Callers hold c.mu.
func (c *Controller) endLocked(outcome Phase) {
	c.sess.cancel()
	c.sess = nil
	c.ended = outcome
}

// Active reports whether a session is running.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess != nil
}

// Status returns a snapshot of the current session. Without a session it
// reports the phase the last one ended in.
func (c *Controller) Status() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	s := c.sess
	if s == nil {
		return Snapshot{Phase: c.ended}
	}
	snap := Snapshot{
		Active:        true,
		TargetID:      s.target.ID,
		TargetName:    s.target.Name,
		Phase:         s.phase,
		Confidence:    s.confidence,
		LastSeen:      s.lastSeen,
		FramesTracked: s.tracked,
		FramesLost:    s.lost,
		LastRotation:  s.lastDegrees,
	}
	if s.bbox != nil {
		b := *s.bbox
		snap.BBox = &b
	}
	return snap
}

func (c *Controller) notify(snap Snapshot) {
	c.mu.Lock()
	obs := make([]func(Snapshot), len(c.observers))
	copy(obs, c.observers)
	c.mu.Unlock()
	for _, fn := range obs {
		fn(snap)
	}
}

// Step processes one frame. It returns nil when no session is running.
// Rotations are dispatched in the background so Step never waits for the
// vehicle.
func (c *Controller) Step(ctx context.Context, frame []byte) (*Update, error) {
	c.mu.Lock()
	s := c.sess
	c.mu.Unlock()
	if s == nil {
		return nil, nil
	}

	if err := c.abort.Check(); err != nil {
		c.logger.Warn("abort observed, stopping tailing", "reason", c.abort.Reason())
		c.Stop()
		return nil, err
	}

	res, err := c.verifier.Quick(ctx, frame, s.target)
	if err != nil {
		return nil, fmt.Errorf("tailing: verify: %w", err)
	}
	now := c.config.Clock()

	c.mu.Lock()
	if c.sess != s {
		c.mu.Unlock()
		return nil, nil
	}

	u := &Update{}
	if res.LocalMatched && res.BBox != nil {
		box := *res.BBox
		s.bbox = &box
		s.lastSeen = now
		s.tracked++
		s.confidence = res.LocalConfidence
		s.phase = PhaseTracking

		deg, off := Correction(c.config, box)
		u.Tracking = true
		u.Confidence = res.LocalConfidence
		u.OffsetPx = off
		if deg != 0 && c.rotationDueLocked(now) {
			c.dispatchLocked(s, now, deg)
			u.RotationDeg = deg
		}
	} else {
		s.lost++
		lost := now.Sub(s.lastSeen)
		u.TimeLost = lost

		switch {
		case lost > c.config.GiveUpTimeout:
			c.logger.Warn("target lost, giving up", "target", s.target.Name, "lost", lost)
			c.endLocked(PhaseGaveUp)
			u.GaveUp = true
			s.phase = PhaseGaveUp
		case lost > c.config.LostTimeout:
			s.phase = PhaseSearching
			if c.rotationDueLocked(now) {
				c.dispatchLocked(s, now, c.config.SlowRotationDeg)
				u.RotationDeg = c.config.SlowRotationDeg
			}
		default:
			s.phase = PhaseHolding
		}
		if s.bbox != nil {
			b := *s.bbox
			u.BBox = &b
		}
	}
	if u.Tracking {
		b := *s.bbox
		u.BBox = &b
	}
	u.Phase = s.phase
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
	return u, nil
}

func (c *Controller) rotationDueLocked(now time.Time) bool {
	return c.sess.lastRotation.IsZero() || now.Sub(c.sess.lastRotation) >= c.config.MinRotationInterval
}

// dispatchLocked hands a rotation to a background goroutine. The maneuver
// lock in the Rotator drops it if another command is still in flight.
func (c *Controller) dispatchLocked(s *session, now time.Time, degrees int) {
	s.lastRotation = now
	s.lastDegrees = degrees

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		if s.ctx.Err() != nil || c.abort.Triggered() {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.config.RotationTimeout)
		defer cancel()

		issued, err := c.rotator.TryRotate(ctx, degrees)
		switch {
		case err != nil:
			c.logger.Error("rotation failed", "degrees", degrees, "error", err)
		case !issued:
			c.logger.Debug("rotation skipped, maneuver in flight", "degrees", degrees)
		default:
			c.logger.Debug("rotated", "degrees", degrees)
		}
	}()
}

// Wait blocks until dispatched rotations have finished.
func (c *Controller) Wait() {
	c.inflight.Wait()
}

// Run grabs frames from cam and steps the session until it ends, ctx is
// done or the abort signal fires.
func (c *Controller) Run(ctx context.Context, cam Camera) error {
	ticker := time.NewTicker(c.config.DetectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.Stop()
			return ctx.Err()
		case <-c.abort.Done():
			c.Stop()
			return abort.ErrAborted
		case <-ticker.C:
		}

		if !c.Active() {
			return nil
		}
		frame, err := cam.Snapshot(ctx)
		if err != nil {
			c.logger.Debug("no frame", "error", err)
			continue
		}
		u, err := c.Step(ctx, frame)
		if err != nil {
			if errors.Is(err, abort.ErrAborted) || ctx.Err() != nil {
				return err
			}
			c.logger.Warn("tailing step failed", "error", err)
			continue
		}
		if u != nil && u.GaveUp {
			return nil
		}
	}
}
