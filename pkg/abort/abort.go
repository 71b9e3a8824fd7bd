// Package abort provides the process-wide abort signal. Loops check it at
// every iteration boundary and before blocking, then settle to hover.
package abort

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrAborted is returned by operations that stopped because of an abort.
var ErrAborted = errors.New("abort: operation aborted")

// Signal is a resettable broadcast flag. The zero value is not usable;
// call New.
type Signal struct {
	mu     sync.Mutex
	ch     chan struct{}
	reason string
}

// New returns an untriggered signal.
func New() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// Trigger raises the signal. Repeated calls keep the first reason.
func (s *Signal) Trigger(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.ch:
	default:
		s.reason = reason
		close(s.ch)
	}
}

// Reset clears the signal so new operations may run.
func (s *Signal) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.ch:
		s.ch = make(chan struct{})
		s.reason = ""
	default:
	}
}

// Triggered reports whether the signal is currently raised.
func (s *Signal) Triggered() bool {
	select {
	case <-s.Done():
		return true
	default:
		return false
	}
}

// Reason returns the reason passed to the first Trigger since the last Reset.
func (s *Signal) Reason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Done returns a channel closed when the signal is raised. A Reset
// installs a new channel, so callers should re-read Done per operation.
func (s *Signal) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}

// Check returns ErrAborted if the signal is raised.
func (s *Signal) Check() error {
	if s.Triggered() {
		return ErrAborted
	}
	return nil
}

// Context derives a context cancelled when either parent ends or the
// signal is raised. The returned cancel func must be called.
func (s *Signal) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	done := s.Done()
	stop := make(chan struct{})
	go func() {
		select {
		case <-done:
			cancel(ErrAborted)
		case <-ctx.Done():
		case <-stop:
		}
	}()
	var once sync.Once
	return ctx, func() {
		once.Do(func() { close(stop) })
		cancel(context.Canceled)
	}
}

// Sleep waits for d or until the signal or ctx fires. It returns
// ErrAborted or the context error when interrupted.
func (s *Signal) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-s.Done():
		return ErrAborted
	case <-ctx.Done():
		return ctx.Err()
	}
}
