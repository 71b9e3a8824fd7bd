package vehicle

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Mock is an in-memory Transport. It keeps a simple battery and altitude
// model and records every command. Set the XxxFunc fields to override.
type Mock struct {
	MoveFunc    func(ctx context.Context, dir Direction, cm int) error
	RotateFunc  func(ctx context.Context, degrees int) error
	FlipFunc    func(ctx context.Context, dir Direction) error
	TakeoffFunc func(ctx context.Context) error
	LandFunc    func(ctx context.Context) error

	// Delay is added to every motion command.
	Delay time.Duration

	mu       sync.Mutex
	battery  int
	height   int
	commands []string
}

// NewMock creates a mock vehicle on the ground with the given battery.
func NewMock(battery int) *Mock {
	return &Mock{battery: battery}
}

// SetBattery sets the reported battery percentage.
func (m *Mock) SetBattery(pct int) {
	m.mu.Lock()
	m.battery = pct
	m.mu.Unlock()
}

// SetHeight sets the reported altitude.
func (m *Mock) SetHeight(cm int) {
	m.mu.Lock()
	m.height = cm
	m.mu.Unlock()
}

// Commands returns the recorded commands in order.
func (m *Mock) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.commands))
	copy(out, m.commands)
	return out
}

// Reset clears recorded commands.
func (m *Mock) Reset() {
	m.mu.Lock()
	m.commands = nil
	m.mu.Unlock()
}

func (m *Mock) record(format string, args ...any) {
	m.mu.Lock()
	m.commands = append(m.commands, fmt.Sprintf(format, args...))
	m.mu.Unlock()
}

func (m *Mock) wait(ctx context.Context) error {
	if m.Delay <= 0 {
		return nil
	}
	select {
	case <-time.After(m.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connect implements Transport.
func (m *Mock) Connect(ctx context.Context) error {
	m.record("command")
	return nil
}

// Close implements Transport.
func (m *Mock) Close() error { return nil }

// Takeoff implements Transport.
func (m *Mock) Takeoff(ctx context.Context) error {
	m.record("takeoff")
	if m.TakeoffFunc != nil {
		return m.TakeoffFunc(ctx)
	}
	m.SetHeight(80)
	return nil
}

// Land implements Transport.
func (m *Mock) Land(ctx context.Context) error {
	m.record("land")
	if m.LandFunc != nil {
		return m.LandFunc(ctx)
	}
	m.SetHeight(0)
	return nil
}

// Move implements Transport.
func (m *Mock) Move(ctx context.Context, dir Direction, cm int) error {
	m.record("%s %d", dir, cm)
	if err := m.wait(ctx); err != nil {
		return err
	}
	if m.MoveFunc != nil {
		return m.MoveFunc(ctx, dir, cm)
	}
	m.mu.Lock()
	switch dir {
	case Up:
		m.height += cm
	case Down:
		m.height = max(0, m.height-cm)
	}
	m.mu.Unlock()
	return nil
}

// Rotate implements Transport.
func (m *Mock) Rotate(ctx context.Context, degrees int) error {
	if degrees < 0 {
		m.record("ccw %d", -degrees)
	} else {
		m.record("cw %d", degrees)
	}
	if err := m.wait(ctx); err != nil {
		return err
	}
	if m.RotateFunc != nil {
		return m.RotateFunc(ctx, degrees)
	}
	return nil
}

// Flip implements Transport.
func (m *Mock) Flip(ctx context.Context, dir Direction) error {
	m.record("flip %s", dir)
	if m.FlipFunc != nil {
		return m.FlipFunc(ctx, dir)
	}
	return nil
}

// Hover implements Transport.
func (m *Mock) Hover(ctx context.Context) error {
	m.record("rc 0 0 0 0")
	return nil
}

// Emergency implements Transport.
func (m *Mock) Emergency(ctx context.Context) error {
	m.record("emergency")
	m.SetHeight(0)
	return nil
}

// Battery implements Transport.
func (m *Mock) Battery(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.battery, nil
}

// Height implements Transport.
func (m *Mock) Height(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.height, nil
}

var _ Transport = (*Mock)(nil)
