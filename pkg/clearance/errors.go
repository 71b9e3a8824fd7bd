package clearance

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSensorUnavailable marks a clearance query that could not be made
// because the camera or the oracle did not answer.
var ErrSensorUnavailable = errors.New("clearance: sensor unavailable")

// ErrUnsupportedDirection is returned for directions the gate cannot handle.
var ErrUnsupportedDirection = errors.New("clearance: unsupported direction")

// ErrInvalidDistance is returned for a negative requested distance.
var ErrInvalidDistance = errors.New("clearance: invalid distance")

// ViolationError names the safety gates a request failed.
type ViolationError struct {
	Gates  []string
	Reason string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("clearance: denied by %s: %s", strings.Join(e.Gates, ", "), e.Reason)
}
