// Package statemachine tracks the vehicle lifecycle and enforces which
// state changes are legal. Every actuating component consults and updates
// the same Machine.
package statemachine

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-grok-pilot/internal/log"
)

// State is a vehicle lifecycle state.
type State string

// Vehicle states.
const (
	Idle      State = "idle"
	Connected State = "connected"
	Hovering  State = "hovering"
	Executing State = "executing"
	Searching State = "searching"
	Landing   State = "landing"
	Emergency State = "emergency"
)

// transitions lists the legal targets for each state. Emergency is
// reachable from anywhere and is handled separately.
var transitions = map[State][]State{
	Idle:      {Connected},
	Connected: {Hovering, Idle},
	Hovering:  {Executing, Searching, Landing, Emergency, Connected},
	Executing: {Hovering, Emergency},
	Searching: {Hovering, Emergency},
	Landing:   {Connected, Emergency},
	Emergency: {Hovering, Landing, Connected},
}

// CanTransition reports whether from -> to is declared legal.
func CanTransition(from, to State) bool {
	if from == to || to == Emergency {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionError is returned when a requested transition is not legal.
type TransitionError struct {
	From State
	To   State
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("statemachine: illegal transition %s -> %s", e.From, e.To)
}

// Observer is called after every successful state change.
type Observer func(from, to State)

// Machine is a mutex-guarded vehicle state holder.
type Machine struct {
	mu        sync.RWMutex
	state     State
	changedAt time.Time

	obsMu     sync.Mutex
	observers []Observer

	logger *slog.Logger
}

// New creates a machine in the given initial state.
func New(initial State, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = log.L()
	}
	return &Machine{
		state:     initial,
		changedAt: time.Now(),
		logger:    logger.With("component", "statemachine"),
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Since returns how long the machine has been in its current state.
func (m *Machine) Since() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Since(m.changedAt)
}

// IsFlying reports whether the vehicle is airborne and under control.
func (m *Machine) IsFlying() bool {
	return isAirborne(m.State())
}

// CanExecute reports whether a new maneuver may start.
func (m *Machine) CanExecute() bool {
	return isAirborne(m.State())
}

func isAirborne(s State) bool {
	return s == Hovering || s == Executing || s == Searching
}

// OnTransition registers an observer. Observers run synchronously in the
// goroutine that performed the transition, after the state lock is released.
func (m *Machine) OnTransition(obs Observer) {
	m.obsMu.Lock()
	m.observers = append(m.observers, obs)
	m.obsMu.Unlock()
}

// TransitionTo moves to state to if the move is legal. Staying in the same
// state succeeds without notifying observers.
func (m *Machine) TransitionTo(to State) error {
	return m.transition(to, false)
}

// Force moves to state to regardless of the transition table.
func (m *Machine) Force(to State) {
	_ = m.transition(to, true)
}

func (m *Machine) transition(to State, force bool) error {
	m.mu.Lock()
	from := m.state
	if from == to {
		m.mu.Unlock()
		return nil
	}
	if !force && !CanTransition(from, to) {
		m.mu.Unlock()
		m.logger.Warn("transition rejected", "from", from, "to", to)
		return &TransitionError{From: from, To: to}
	}
	m.state = to
	m.changedAt = time.Now()
	m.mu.Unlock()

	m.logger.Info("state changed", "from", from, "to", to, "forced", force)
	m.notify(from, to)
	return nil
}

func (m *Machine) notify(from, to State) {
	m.obsMu.Lock()
	observers := make([]Observer, len(m.observers))
	copy(observers, m.observers)
	m.obsMu.Unlock()

	for _, obs := range observers {
		obs(from, to)
	}
}
