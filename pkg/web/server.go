// Package web serves the pilot's HTTP control API and the websocket
// status feed.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-grok-pilot/internal/log"
	"github.com/teslashibe/go-grok-pilot/pkg/abort"
	"github.com/teslashibe/go-grok-pilot/pkg/camera"
	"github.com/teslashibe/go-grok-pilot/pkg/clearance"
	"github.com/teslashibe/go-grok-pilot/pkg/hub"
	"github.com/teslashibe/go-grok-pilot/pkg/identity"
	"github.com/teslashibe/go-grok-pilot/pkg/panorama"
	"github.com/teslashibe/go-grok-pilot/pkg/search"
	"github.com/teslashibe/go-grok-pilot/pkg/tailing"
	"github.com/teslashibe/go-grok-pilot/pkg/targets"
	"github.com/teslashibe/go-grok-pilot/pkg/vehicle"
)

// maxEvents is the size of the recent event buffer.
const maxEvents = 200

// Vehicle is the part of the vehicle controller the API drives directly.
type Vehicle interface {
	Status(ctx context.Context) vehicle.Status
	Takeoff(ctx context.Context) error
	Land(ctx context.Context) error
	ReturnHome(ctx context.Context) error
	EmergencyStop(ctx context.Context, reason string) error
	EmergencyLand(ctx context.Context) error
	Recover() error
}

// Gate gates motion requests.
type Gate interface {
	Move(ctx context.Context, req clearance.Request) (*clearance.Decision, error)
	Flip(ctx context.Context, dir vehicle.Direction) (*clearance.FlipDecision, error)
	Preflight(ctx context.Context) *clearance.PreflightReport
}

// Tailing controls the follow session.
type Tailing interface {
	Start(targetID string) error
	Stop() bool
	Status() tailing.Snapshot
}

// Verifier checks a frame against a target.
type Verifier interface {
	Verify(ctx context.Context, frame []byte, t *targets.Target) (*identity.Result, error)
}

// Panorama runs a 360° sweep.
type Panorama interface {
	Sweep(ctx context.Context) (*panorama.Result, error)
}

// Searcher runs a focused search.
type Searcher interface {
	FindPerson(ctx context.Context, idOrName string) (*search.Outcome, error)
}

// Targets is the registry the API reads and writes.
type Targets interface {
	Add(name, description string, embeddings ...[]float64) (*targets.Target, error)
	Enroll(ctx context.Context, id string, photo []byte) (*targets.Target, error)
	Get(id string) (*targets.Target, error)
	Lookup(idOrName string) (*targets.Target, error)
	List() []*targets.Target
	MarkConfirmed(id string) error
	Delete(id string) error
}

// Deps are the components behind the API. Nil Panorama, Searcher or
// Verifier disables the matching routes with 503.
type Deps struct {
	Vehicle  Vehicle
	Gate     Gate
	Tailing  Tailing
	Verifier Verifier
	Panorama Panorama
	Searcher Searcher
	Targets  Targets
	Camera   camera.Source
	Abort    *abort.Signal
	Logger   *slog.Logger
}

// Event is one entry of the recent event buffer.
type Event = hub.Event

// Server is the HTTP API server.
type Server struct {
	app    *fiber.App
	addr   string
	deps   Deps
	logger *slog.Logger

	events   []Event
	eventsMu sync.RWMutex

	statusHub *hub.Hub
	cameraHub *hub.Hub

	cancel context.CancelFunc
}

// NewServer builds the API. addr is a listen address such as ":8080".
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.L()
	}
	if deps.Abort == nil {
		deps.Abort = abort.New()
	}
	s := &Server{
		addr:      addr,
		deps:      deps,
		logger:    logger.With("component", "web.server"),
		events:    make([]Event, 0, maxEvents),
		statusHub: hub.New("status", logger),
		cameraHub: hub.New("camera", logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Grok Pilot",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	app.Use(recover.New())
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/events", s.handleEvents)
	api.Get("/preflight", s.handlePreflight)

	api.Post("/takeoff", s.handleTakeoff)
	api.Post("/land", s.handleLand)
	api.Post("/move", s.handleMove)
	api.Post("/flip", s.handleFlip)
	api.Post("/return-home", s.handleReturnHome)

	api.Get("/tailing", s.handleTailingStatus)
	api.Post("/tailing/start", s.handleTailingStart)
	api.Post("/tailing/stop", s.handleTailingStop)

	api.Post("/verify/:target_id", s.handleVerify)
	api.Post("/panorama", s.handlePanorama)
	api.Post("/search/:target_id", s.handleSearch)

	api.Get("/targets", s.handleListTargets)
	api.Post("/targets", s.handleAddTarget)
	api.Get("/targets/:id", s.handleGetTarget)
	api.Delete("/targets/:id", s.handleDeleteTarget)
	api.Post("/targets/:id/enroll", s.handleEnroll)
	api.Post("/targets/:id/confirm", s.handleConfirmTarget)

	api.Post("/abort", s.handleAbort)
	api.Post("/abort/reset", s.handleAbortReset)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/camera", websocket.New(s.handleCameraWS))

	s.app = app
	return s
}

// App exposes the fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start runs the hubs and serves until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.statusHub.Run(ctx)
	go s.cameraHub.Run(ctx)

	s.logger.Info("api listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// Shutdown gracefully stops the server and its hubs.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	return s.app.ShutdownWithContext(ctx)
}

// Publish records an event and pushes it to status clients.
func (s *Server) Publish(kind string, data any) {
	ev := Event{Type: kind, Time: time.Now(), Data: data}

	s.eventsMu.Lock()
	s.events = append(s.events, ev)
	if len(s.events) > maxEvents {
		s.events = s.events[1:]
	}
	s.eventsMu.Unlock()

	if err := s.statusHub.BroadcastJSON(ev); err != nil {
		s.logger.Error("encode event failed", "type", kind, "error", err)
	}
}

// Events returns a copy of the recent events, oldest first.
func (s *Server) Events() []Event {
	s.eventsMu.RLock()
	defer s.eventsMu.RUnlock()
	return append([]Event(nil), s.events...)
}

// SendCameraFrame pushes a JPEG frame to camera clients.
func (s *Server) SendCameraFrame(jpeg []byte) {
	if s.cameraHub.ClientCount() == 0 {
		return
	}
	s.cameraHub.BroadcastBinary(jpeg)
}

func (s *Server) handleStatusWS(c *websocket.Conn) {
	var first []hub.Message
	if data, err := json.Marshal(Event{Type: "status", Time: time.Now(), Data: s.status(context.Background())}); err == nil {
		first = append(first, hub.NewJSONMessage(data))
	}
	hub.NewClient(s.statusHub, c).Run(first...)
}

func (s *Server) handleCameraWS(c *websocket.Conn) {
	hub.NewClient(s.cameraHub, c).Run()
}
