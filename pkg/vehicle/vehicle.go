// Package vehicle controls the rotorcraft.
//
// The interfaces are split by concern so consumers depend only on what
// they use: the tailing loop needs a Rotator, the clearance gate needs
// Telemetry and a Mover, the API server needs the full Controller.
package vehicle

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Direction is a translation direction.
type Direction string

// Movement directions.
const (
	Forward Direction = "forward"
	Back    Direction = "back"
	Left    Direction = "left"
	Right   Direction = "right"
	Up      Direction = "up"
	Down    Direction = "down"
)

// ParseDirection accepts a direction name case-insensitively.
// "backward" and "backwards" are accepted as Back.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case Forward, Back, Left, Right, Up, Down:
		return d, nil
	case "backward", "backwards":
		return Back, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDirection, s)
}

// IsVertical reports whether d is Up or Down.
func (d Direction) IsVertical() bool {
	return d == Up || d == Down
}

// IsLateral reports whether d is Left or Right.
func (d Direction) IsLateral() bool {
	return d == Left || d == Right
}

// CanFlip reports whether a flip is possible in direction d.
func (d Direction) CanFlip() bool {
	return d == Forward || d == Back || d == Left || d == Right
}

// Errors returned by transports and the controller.
var (
	ErrInvalidDirection = errors.New("vehicle: invalid direction")
	ErrNotConnected     = errors.New("vehicle: not connected")
	ErrNotFlying        = errors.New("vehicle: not flying, take off first")
	ErrNotReady         = errors.New("vehicle: cannot execute in current state")
	ErrCeiling          = errors.New("vehicle: would exceed altitude ceiling")
	ErrLowBattery       = errors.New("vehicle: battery too low")
)

// ActuatorError is returned when the vehicle fails to carry out a command.
// The controller has already tried to hover when this is returned.
type ActuatorError struct {
	Command string
	Err     error
}

func (e *ActuatorError) Error() string {
	return fmt.Sprintf("vehicle: %s failed: %v", e.Command, e.Err)
}

func (e *ActuatorError) Unwrap() error {
	return e.Err
}

// Telemetry reads vehicle sensors.
type Telemetry interface {
	Battery(ctx context.Context) (int, error)
	Height(ctx context.Context) (int, error)
}

// Rotator turns the vehicle in place. Positive degrees is clockwise.
type Rotator interface {
	Rotate(ctx context.Context, degrees int) error
}

// Actuator issues motion primitives. Calls block until the vehicle
// reports completion, so wall-clock cost grows with distance and angle.
type Actuator interface {
	Rotator
	Move(ctx context.Context, dir Direction, cm int) error
	Flip(ctx context.Context, dir Direction) error
	Hover(ctx context.Context) error
}

// Transport is a full link to one vehicle.
type Transport interface {
	Actuator
	Telemetry
	Connect(ctx context.Context) error
	Takeoff(ctx context.Context) error
	Land(ctx context.Context) error
	Emergency(ctx context.Context) error
	Close() error
}
