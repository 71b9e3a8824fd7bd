package web

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-grok-pilot/pkg/abort"
	"github.com/teslashibe/go-grok-pilot/pkg/camera"
	"github.com/teslashibe/go-grok-pilot/pkg/clearance"
	"github.com/teslashibe/go-grok-pilot/pkg/hub"
	"github.com/teslashibe/go-grok-pilot/pkg/panorama"
	"github.com/teslashibe/go-grok-pilot/pkg/search"
	"github.com/teslashibe/go-grok-pilot/pkg/statemachine"
	"github.com/teslashibe/go-grok-pilot/pkg/tailing"
	"github.com/teslashibe/go-grok-pilot/pkg/targets"
	"github.com/teslashibe/go-grok-pilot/pkg/vehicle"
)

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Vehicle     vehicle.Status    `json:"vehicle"`
	Tailing     *tailing.Snapshot `json:"tailing,omitempty"`
	Aborted     bool              `json:"aborted"`
	AbortReason string            `json:"abort_reason,omitempty"`
}

// MoveRequest is the body of POST /api/move.
type MoveRequest struct {
	Direction  string `json:"direction"`
	DistanceCm int    `json:"distance_cm"`
}

// FlipRequest is the body of POST /api/flip.
type FlipRequest struct {
	Direction string `json:"direction"`
}

// TailingRequest is the body of POST /api/tailing/start.
type TailingRequest struct {
	TargetID string `json:"target_id"`
}

// TargetRequest is the body of POST /api/targets.
type TargetRequest struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Embeddings  [][]float64 `json:"face_embeddings"`
}

// AbortRequest is the optional body of POST /api/abort. Land asks for an
// immediate landing instead of a hover.
type AbortRequest struct {
	Reason string `json:"reason"`
	Land   bool   `json:"land"`
}

var errUnavailable = fiber.NewError(fiber.StatusServiceUnavailable, "component not configured")

// handleError maps domain errors to status codes.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	var te *statemachine.TransitionError
	var ve *clearance.ViolationError
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.Is(err, targets.ErrNotFound):
		code = fiber.StatusNotFound
	case errors.Is(err, vehicle.ErrInvalidDirection),
		errors.Is(err, clearance.ErrUnsupportedDirection),
		errors.Is(err, clearance.ErrInvalidDistance),
		errors.Is(err, targets.ErrNoName),
		errors.Is(err, targets.ErrNoFace):
		code = fiber.StatusBadRequest
	case errors.Is(err, tailing.ErrNoFaceData),
		errors.Is(err, search.ErrNoFaceData):
		code = fiber.StatusUnprocessableEntity
	case errors.Is(err, abort.ErrAborted),
		errors.Is(err, tailing.ErrActive),
		errors.Is(err, vehicle.ErrNotFlying),
		errors.Is(err, vehicle.ErrNotReady),
		errors.Is(err, vehicle.ErrLowBattery),
		errors.As(err, &te),
		errors.As(err, &ve):
		code = fiber.StatusConflict
	case errors.Is(err, camera.ErrNoFrame),
		errors.Is(err, camera.ErrStale),
		errors.Is(err, panorama.ErrNoOracle):
		code = fiber.StatusServiceUnavailable
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func (s *Server) status(ctx context.Context) StatusResponse {
	resp := StatusResponse{
		Aborted:     s.deps.Abort.Triggered(),
		AbortReason: s.deps.Abort.Reason(),
	}
	if s.deps.Vehicle != nil {
		resp.Vehicle = s.deps.Vehicle.Status(ctx)
	}
	if s.deps.Tailing != nil {
		snap := s.deps.Tailing.Status()
		resp.Tailing = &snap
	}
	return resp
}

// handleStatus returns the vehicle state, battery, height and tailing snapshot
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.status(c.UserContext()))
}

// handleEvents returns recent events
func (s *Server) handleEvents(c *fiber.Ctx) error {
	return c.JSON(s.Events())
}

func (s *Server) handlePreflight(c *fiber.Ctx) error {
	if s.deps.Gate == nil {
		return errUnavailable
	}
	return c.JSON(s.deps.Gate.Preflight(c.UserContext()))
}

func (s *Server) handleTakeoff(c *fiber.Ctx) error {
	if s.deps.Vehicle == nil {
		return errUnavailable
	}
	if err := s.deps.Vehicle.Takeoff(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(s.deps.Vehicle.Status(c.UserContext()))
}

func (s *Server) handleLand(c *fiber.Ctx) error {
	if s.deps.Vehicle == nil {
		return errUnavailable
	}
	if s.deps.Tailing != nil {
		s.deps.Tailing.Stop()
	}
	if err := s.deps.Vehicle.Land(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(s.deps.Vehicle.Status(c.UserContext()))
}

// handleMove gates a translation and flies it. A denial is a normal
// answer, not an error.
func (s *Server) handleMove(c *fiber.Ctx) error {
	if s.deps.Gate == nil {
		return errUnavailable
	}
	var req MoveRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body: "+err.Error())
	}
	dir, err := vehicle.ParseDirection(req.Direction)
	if err != nil {
		return err
	}
	if err := s.deps.Abort.Check(); err != nil {
		return err
	}

	d, err := s.deps.Gate.Move(c.UserContext(), clearance.Request{Direction: dir, DistanceCm: req.DistanceCm})
	if err != nil {
		return err
	}
	s.Publish(hub.EventMotion, d)
	return c.JSON(d)
}

// handleReturnHome stops tailing and flies back to the takeoff point
func (s *Server) handleReturnHome(c *fiber.Ctx) error {
	if s.deps.Vehicle == nil {
		return errUnavailable
	}
	if err := s.deps.Abort.Check(); err != nil {
		return err
	}
	if s.deps.Tailing != nil {
		s.deps.Tailing.Stop()
	}
	if err := s.deps.Vehicle.ReturnHome(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(s.deps.Vehicle.Status(c.UserContext()))
}

func (s *Server) handleFlip(c *fiber.Ctx) error {
	if s.deps.Gate == nil {
		return errUnavailable
	}
	var req FlipRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body: "+err.Error())
	}
	dir, err := vehicle.ParseDirection(req.Direction)
	if err != nil {
		return err
	}
	if !dir.CanFlip() {
		return fiber.NewError(fiber.StatusBadRequest, "cannot flip "+string(dir))
	}
	if err := s.deps.Abort.Check(); err != nil {
		return err
	}

	d, err := s.deps.Gate.Flip(c.UserContext(), dir)
	if err != nil {
		return err
	}
	s.Publish(hub.EventMotion, d)
	return c.JSON(d)
}

func (s *Server) handleTailingStatus(c *fiber.Ctx) error {
	if s.deps.Tailing == nil {
		return errUnavailable
	}
	return c.JSON(s.deps.Tailing.Status())
}

func (s *Server) handleTailingStart(c *fiber.Ctx) error {
	if s.deps.Tailing == nil {
		return errUnavailable
	}
	var req TailingRequest
	if err := c.BodyParser(&req); err != nil || req.TargetID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "target_id is required")
	}
	if err := s.deps.Abort.Check(); err != nil {
		return err
	}
	if err := s.deps.Tailing.Start(req.TargetID); err != nil {
		return err
	}
	return c.JSON(s.deps.Tailing.Status())
}

func (s *Server) handleTailingStop(c *fiber.Ctx) error {
	if s.deps.Tailing == nil {
		return errUnavailable
	}
	stopped := s.deps.Tailing.Stop()
	return c.JSON(fiber.Map{"stopped": stopped, "status": s.deps.Tailing.Status()})
}

// handleVerify runs full verification of the current frame. The long
// calls below run under a context the abort signal cancels, and results
// that straddle an abort are discarded.
func (s *Server) handleVerify(c *fiber.Ctx) error {
	if s.deps.Verifier == nil || s.deps.Camera == nil || s.deps.Targets == nil {
		return errUnavailable
	}
	t, err := s.deps.Targets.Lookup(c.Params("target_id"))
	if err != nil {
		return err
	}
	ctx, cancel := s.deps.Abort.Context(c.UserContext())
	defer cancel()

	frame, err := s.deps.Camera.Snapshot(ctx)
	if err != nil {
		return err
	}
	r, err := s.deps.Verifier.Verify(ctx, frame, t)
	if aerr := s.deps.Abort.Check(); aerr != nil {
		return aerr
	}
	if err != nil {
		return err
	}
	return c.JSON(r)
}

func (s *Server) handlePanorama(c *fiber.Ctx) error {
	if s.deps.Panorama == nil {
		return errUnavailable
	}
	ctx, cancel := s.deps.Abort.Context(c.UserContext())
	defer cancel()
	r, err := s.deps.Panorama.Sweep(ctx)
	if aerr := s.deps.Abort.Check(); aerr != nil {
		return aerr
	}
	if err != nil {
		return err
	}
	return c.JSON(r)
}

func (s *Server) handleSearch(c *fiber.Ctx) error {
	if s.deps.Searcher == nil {
		return errUnavailable
	}
	ctx, cancel := s.deps.Abort.Context(c.UserContext())
	defer cancel()
	out, err := s.deps.Searcher.FindPerson(ctx, c.Params("target_id"))
	if aerr := s.deps.Abort.Check(); aerr != nil {
		return aerr
	}
	if err != nil {
		return err
	}
	return c.JSON(out)
}

func (s *Server) handleListTargets(c *fiber.Ctx) error {
	if s.deps.Targets == nil {
		return errUnavailable
	}
	return c.JSON(s.deps.Targets.List())
}

func (s *Server) handleAddTarget(c *fiber.Ctx) error {
	if s.deps.Targets == nil {
		return errUnavailable
	}
	var req TargetRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body: "+err.Error())
	}
	t, err := s.deps.Targets.Add(req.Name, req.Description, req.Embeddings...)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(t)
}

func (s *Server) handleGetTarget(c *fiber.Ctx) error {
	if s.deps.Targets == nil {
		return errUnavailable
	}
	t, err := s.deps.Targets.Get(c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(t)
}

func (s *Server) handleDeleteTarget(c *fiber.Ctx) error {
	if s.deps.Targets == nil {
		return errUnavailable
	}
	if err := s.deps.Targets.Delete(c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleConfirmTarget(c *fiber.Ctx) error {
	if s.deps.Targets == nil {
		return errUnavailable
	}
	id := c.Params("id")
	if err := s.deps.Targets.MarkConfirmed(id); err != nil {
		return err
	}
	t, err := s.deps.Targets.Get(id)
	if err != nil {
		return err
	}
	return c.JSON(t)
}

// handleEnroll adds a face embedding from a JPEG request body
func (s *Server) handleEnroll(c *fiber.Ctx) error {
	if s.deps.Targets == nil {
		return errUnavailable
	}
	photo := c.Body()
	if len(photo) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "photo body is required")
	}
	t, err := s.deps.Targets.Enroll(c.UserContext(), c.Params("id"), append([]byte(nil), photo...))
	if err != nil {
		return err
	}
	return c.JSON(t)
}

// handleAbort stops everything: tailing, the current maneuver and every loop
func (s *Server) handleAbort(c *fiber.Ctx) error {
	var req AbortRequest
	_ = c.BodyParser(&req)
	if req.Reason == "" {
		req.Reason = "operator abort"
	}

	if s.deps.Tailing != nil {
		s.deps.Tailing.Stop()
	}
	var actErr error
	switch {
	case s.deps.Vehicle == nil:
		s.deps.Abort.Trigger(req.Reason)
	case req.Land:
		actErr = s.deps.Vehicle.EmergencyLand(c.UserContext())
	default:
		actErr = s.deps.Vehicle.EmergencyStop(c.UserContext(), req.Reason)
	}
	s.Publish(hub.EventAbort, fiber.Map{"reason": req.Reason, "land": req.Land})

	resp := fiber.Map{"aborted": true, "reason": req.Reason, "landed": req.Land && actErr == nil}
	if actErr != nil {
		s.logger.Error("emergency action failed", "land", req.Land, "error", actErr)
		resp["error"] = actErr.Error()
	}
	return c.JSON(resp)
}

func (s *Server) handleAbortReset(c *fiber.Ctx) error {
	if s.deps.Vehicle != nil {
		if err := s.deps.Vehicle.Recover(); err != nil {
			return err
		}
	} else {
		s.deps.Abort.Reset()
	}
	s.Publish(hub.EventAbort, fiber.Map{"reset": true})
	return c.JSON(s.status(c.UserContext()))
}
