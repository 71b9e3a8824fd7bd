package camera

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"
)

var (
	// ErrNoFrame is returned before the first frame arrives.
	ErrNoFrame = errors.New("camera: no frame yet")

	// ErrStale is returned when the latest frame is older than MaxAge.
	ErrStale = errors.New("camera: frame is stale")
)

// Source supplies the current frame as JPEG.
type Source interface {
	Snapshot(ctx context.Context) ([]byte, error)
}

// Buffer holds the latest JPEG frame and fans it out to observers.
type Buffer struct {
	mu        sync.RWMutex
	frame     []byte
	at        time.Time
	maxAge    time.Duration
	observers []func([]byte)
	now       func() time.Time
}

// NewBuffer creates a buffer. A zero maxAge disables the staleness check.
func NewBuffer(maxAge time.Duration) *Buffer {
	return &Buffer{maxAge: maxAge, now: time.Now}
}

// OnFrame registers fn to receive every published frame. fn must not
// retain or modify the slice.
func (b *Buffer) OnFrame(fn func([]byte)) {
	b.mu.Lock()
	b.observers = append(b.observers, fn)
	b.mu.Unlock()
}

// Publish replaces the latest frame.
func (b *Buffer) Publish(jpeg []byte) {
	b.mu.Lock()
	b.frame = jpeg
	b.at = b.now()
	observers := b.observers
	b.mu.Unlock()

	for _, fn := range observers {
		fn(jpeg)
	}
}

// Snapshot returns a copy of the latest frame.
func (b *Buffer) Snapshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.frame == nil {
		return nil, ErrNoFrame
	}
	if b.maxAge > 0 && b.now().Sub(b.at) > b.maxAge {
		return nil, ErrStale
	}
	return append([]byte(nil), b.frame...), nil
}

// Age reports how old the latest frame is, or -1 without one.
func (b *Buffer) Age() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.frame == nil {
		return -1
	}
	return b.now().Sub(b.at)
}

// Static serves one fixed frame. Used with the mock vehicle.
type Static struct {
	Frame []byte
}

// LoadStatic reads a JPEG from disk.
func LoadStatic(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &Static{Frame: data}, nil
}

// Snapshot returns a copy of the fixed frame.
func (s *Static) Snapshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.Frame) == 0 {
		return nil, ErrNoFrame
	}
	return append([]byte(nil), s.Frame...), nil
}

var (
	_ Source = (*Buffer)(nil)
	_ Source = (*Static)(nil)
)
