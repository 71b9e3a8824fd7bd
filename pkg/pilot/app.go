// Package pilot wires the flight stack together and owns its lifecycle.
package pilot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/teslashibe/go-grok-pilot/internal/config"
	"github.com/teslashibe/go-grok-pilot/internal/log"
	"github.com/teslashibe/go-grok-pilot/pkg/abort"
	"github.com/teslashibe/go-grok-pilot/pkg/camera"
	"github.com/teslashibe/go-grok-pilot/pkg/clearance"
	"github.com/teslashibe/go-grok-pilot/pkg/face"
	"github.com/teslashibe/go-grok-pilot/pkg/hub"
	"github.com/teslashibe/go-grok-pilot/pkg/identity"
	"github.com/teslashibe/go-grok-pilot/pkg/inference"
	"github.com/teslashibe/go-grok-pilot/pkg/oracle"
	"github.com/teslashibe/go-grok-pilot/pkg/panorama"
	"github.com/teslashibe/go-grok-pilot/pkg/search"
	"github.com/teslashibe/go-grok-pilot/pkg/statemachine"
	"github.com/teslashibe/go-grok-pilot/pkg/tailing"
	"github.com/teslashibe/go-grok-pilot/pkg/targets"
	"github.com/teslashibe/go-grok-pilot/pkg/vehicle"
	"github.com/teslashibe/go-grok-pilot/pkg/web"
	"github.com/teslashibe/go-grok-pilot/pkg/workers"
)

// mockBattery is the charge the mock vehicle starts with.
const mockBattery = 100

// ErrUnknownPreset is returned by New for an unrecognised preset name.
var ErrUnknownPreset = errors.New("pilot: unknown preset")

// App is the pilot process. Every component is created once in Init and
// shared; nothing is global.
type App struct {
	settings *config.Settings
	logger   *slog.Logger

	camCfg  camera.Config
	tailCfg tailing.Config

	abort   *abort.Signal
	machine *statemachine.Machine
	vehicle *vehicle.Controller

	stream *camera.Stream
	camera camera.Source

	oracle oracle.Oracle
	faces  face.Extractor
	pool   *workers.Pool

	registry *targets.Registry
	verifier *identity.Verifier
	gate     *clearance.Gate
	tailing  *tailing.Controller
	sweeper  *panorama.Sweeper
	searcher *search.Searcher
	web      *web.Server

	tailWake chan struct{}
}

// New validates settings and returns an uninitialized App.
func New(s *config.Settings, logger *slog.Logger) (*App, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.L()
	}
	a := &App{
		settings: s,
		logger:   logger.With("component", "pilot.app"),
		tailWake: make(chan struct{}, 1),
	}
	if err := a.resolvePresets(); err != nil {
		return nil, err
	}
	return a, nil
}

// resolvePresets picks the camera and tailing configurations. The camera
// preset decides the frame size unless it is the default, in which case
// FRAME_WIDTH and FRAME_HEIGHT apply.
func (a *App) resolvePresets() error {
	s := a.settings

	name := s.CameraPreset
	if name == "" {
		name = camera.PresetDefault
	}
	cc := camera.GetPreset(name)
	if cc == nil {
		return fmt.Errorf("%w: camera %q (want one of %s)", ErrUnknownPreset, name,
			strings.Join(camera.PresetNames(), ", "))
	}
	if name == camera.PresetDefault {
		cc.Width, cc.Height = s.FrameWidth, s.FrameHeight
	}
	cc.URL = s.VideoURL
	cc.Logger = a.logger
	a.camCfg = *cc

	tc, ok := tailing.Preset(s.TailingPreset)
	if !ok {
		return fmt.Errorf("%w: tailing %q (want default, slow or aggressive)", ErrUnknownPreset, s.TailingPreset)
	}
	tc.FrameWidth = a.camCfg.Width
	tc.Logger = a.logger
	a.tailCfg = tc
	return nil
}

// Init builds every component. Call this after New and before Run.
func (a *App) Init(ctx context.Context) error {
	s := a.settings
	base := a.logger

	a.abort = abort.New()
	a.machine = statemachine.New(statemachine.Idle, base)

	var transport vehicle.Transport
	if s.MockVehicle {
		a.logger.Warn("using mock vehicle")
		transport = vehicle.NewMock(mockBattery)
	} else {
		transport = vehicle.NewTello(s.TelloAddr, base)
	}
	a.vehicle = vehicle.NewController(transport, a.machine, a.abort, vehicle.WithLogger(base))
	if err := a.vehicle.Connect(ctx); err != nil {
		return fmt.Errorf("vehicle: %w", err)
	}

	if err := a.initCamera(); err != nil {
		return err
	}
	if err := a.initOracle(); err != nil {
		return err
	}
	a.initFaces()

	a.pool = workers.New(workers.DefaultSize)
	var err error
	a.registry, err = targets.NewRegistry(
		targets.WithPath(s.TargetsPath),
		targets.WithExtractor(a.faces),
		targets.WithLogger(base),
	)
	if err != nil {
		return err
	}
	a.verifier = identity.New(a.faces, a.oracle, a.pool,
		identity.WithTimeouts(identity.DefaultConfig().LocalTimeout, s.OracleTimeout),
		identity.WithLogger(base))

	a.gate, err = clearance.New(a.oracle, a.camera, a.vehicle, a.machine,
		clearance.WithOracleTimeout(s.OracleTimeout), clearance.WithLogger(base))
	if err != nil {
		return err
	}

	a.tailing = tailing.New(a.verifier, a.vehicle, a.registry, a.abort, a.tailCfg)

	pcfg := panorama.DefaultConfig()
	pcfg.Logger = base
	a.sweeper = panorama.NewSweeper(a.camera, a.vehicle, a.oracle, a.abort, pcfg)

	scfg := search.DefaultConfig()
	scfg.Logger = base
	a.searcher = search.New(a.verifier, a.registry, a.vehicle, a.camera, a.abort, scfg)

	deps := web.Deps{
		Vehicle:  a.vehicle,
		Gate:     a.gate,
		Tailing:  a.tailing,
		Verifier: a.verifier,
		Searcher: a.searcher,
		Targets:  a.registry,
		Camera:   a.camera,
		Abort:    a.abort,
		Logger:   base,
	}
	if a.oracle != nil {
		deps.Panorama = a.sweeper
	}
	a.web = web.NewServer(s.HTTPAddr, deps)
	a.wire()

	a.logger.Info("initialized", "settings", s.String(), "targets", a.registry.Count(), "oracle", a.oracle != nil)
	return nil
}

func (a *App) initCamera() error {
	s := a.settings
	if s.MockVehicle {
		if s.MockFrame != "" {
			st, err := camera.LoadStatic(s.MockFrame)
			if err != nil {
				return fmt.Errorf("camera: %w", err)
			}
			a.camera = st
			return nil
		}
		st, err := camera.Blank(a.camCfg.Width, a.camCfg.Height, a.camCfg.Quality)
		if err != nil {
			return err
		}
		a.camera = st
		return nil
	}

	stream, err := camera.Open(a.camCfg)
	if err != nil {
		return err
	}
	a.stream, a.camera = stream, stream
	return nil
}

// initOracle builds the vision oracle. Without an API key the stack runs
// without vision: moves are degraded and verification is local only.
func (a *App) initOracle() error {
	s := a.settings
	if s.APIKey == "" {
		a.logger.Warn("no oracle key, vision disabled")
		return nil
	}

	primary, err := a.inferenceClient(s.VisionModel)
	if err != nil {
		return err
	}
	var provider inference.Provider = primary
	if s.FallbackModel != "" {
		fallback, err := a.inferenceClient(s.FallbackModel)
		if err != nil {
			return err
		}
		if provider, err = inference.NewChain(a.logger, primary, fallback); err != nil {
			return err
		}
	}

	c, err := oracle.NewClient(provider, oracle.WithTimeout(s.OracleTimeout), oracle.WithLogger(a.logger))
	if err != nil {
		return err
	}
	a.oracle = c
	return nil
}

func (a *App) inferenceClient(model string) (*inference.Client, error) {
	s := a.settings
	return inference.NewClient(
		inference.WithBaseURL(s.APIBase),
		inference.WithAPIKey(s.APIKey),
		inference.WithVisionModel(model),
		inference.WithTimeout(s.OracleTimeout),
		inference.WithLogger(a.logger),
	)
}

// initFaces loads the face models. Missing models fall back to an
// extractor that never sees a face, which leaves the oracle as the only
// identity judge.
func (a *App) initFaces() {
	s := a.settings
	if !fileExists(s.DetectorModel) || !fileExists(s.RecognizerModel) {
		a.logger.Warn("face models not found, local identity disabled",
			"detector", s.DetectorModel, "recognizer", s.RecognizerModel)
		a.faces = face.NewMock()
		return
	}
	cfg := face.DefaultConfig()
	cfg.DetectorModel, cfg.RecognizerModel = s.DetectorModel, s.RecognizerModel
	x, err := face.NewSFace(cfg, a.logger)
	if err != nil {
		a.logger.Error("face models failed to load, local identity disabled", "error", err)
		a.faces = face.NewMock()
		return
	}
	a.faces = x
}

// wire connects component events to the status feed.
func (a *App) wire() {
	a.machine.OnTransition(func(from, to statemachine.State) {
		a.web.Publish(hub.EventState, map[string]statemachine.State{"from": from, "to": to})
	})
	a.tailing.OnUpdate(func(snap tailing.Snapshot) {
		a.web.Publish(hub.EventTailing, snap)
		if snap.Active {
			select {
			case a.tailWake <- struct{}{}:
			default:
			}
		}
	})
	if a.stream != nil {
		a.stream.OnFrame(a.web.SendCameraFrame)
	}
}

// Run serves the API and drives tailing sessions until ctx is done.
func (a *App) Run(ctx context.Context) error {
	if a.web == nil {
		return errors.New("pilot: Init has not been called")
	}
	errc := make(chan error, 2)

	if a.stream != nil {
		go func() {
			if err := a.stream.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, camera.ErrClosed) {
				errc <- fmt.Errorf("camera: %w", err)
			}
		}()
	}
	go func() {
		if err := a.web.Start(ctx); err != nil {
			errc <- fmt.Errorf("api: %w", err)
		}
	}()
	go a.runTailing(ctx)

	a.logger.Info("pilot running", "addr", a.settings.HTTPAddr)
	select {
	case <-ctx.Done():
		return nil
	case err := <-errc:
		return err
	}
}

// runTailing runs the follow loop whenever a session is started.
func (a *App) runTailing(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.tailWake:
		}
		if !a.tailing.Active() {
			continue
		}
		err := a.tailing.Run(ctx, a.camera)
		switch {
		case err == nil:
		case errors.Is(err, abort.ErrAborted):
			a.logger.Warn("tailing aborted")
		case ctx.Err() != nil:
			return
		default:
			a.logger.Error("tailing loop failed", "error", err)
		}
	}
}

// Preflight runs the preflight check against the live vehicle.
func (a *App) Preflight(ctx context.Context) *clearance.PreflightReport {
	return a.gate.Preflight(ctx)
}

// Shutdown stops tailing, lands if airborne and releases resources.
func (a *App) Shutdown(ctx context.Context) {
	if a.tailing != nil {
		a.tailing.Stop()
		a.tailing.Wait()
	}
	if a.vehicle != nil {
		if a.machine.IsFlying() {
			a.logger.Warn("landing before shutdown")
			if err := a.vehicle.Land(ctx); err != nil {
				a.logger.Error("landing failed, trying emergency land", "error", err)
				if err := a.vehicle.EmergencyLand(ctx); err != nil {
					a.logger.Error("emergency land failed", "error", err)
				}
			}
		}
		if err := a.vehicle.Close(); err != nil {
			a.logger.Warn("vehicle close failed", "error", err)
		}
	}
	if a.web != nil {
		sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.web.Shutdown(sctx); err != nil {
			a.logger.Warn("api shutdown failed", "error", err)
		}
	}
	if a.stream != nil {
		a.stream.Close()
	}
	if a.verifier != nil {
		a.verifier.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.faces != nil {
		a.faces.Close()
	}
	a.logger.Info("shutdown complete")
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
