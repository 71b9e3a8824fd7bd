package abort

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTriggerAndReset(t *testing.T) {
	s := New()
	if s.Triggered() {
		t.Fatal("new signal should not be triggered")
	}
	if err := s.Check(); err != nil {
		t.Fatalf("Check on fresh signal: %v", err)
	}

	s.Trigger("emergency stop")
	s.Trigger("second")
	if !s.Triggered() {
		t.Fatal("expected triggered")
	}
	if s.Reason() != "emergency stop" {
		t.Errorf("Reason = %q, want first reason", s.Reason())
	}
	if !errors.Is(s.Check(), ErrAborted) {
		t.Error("Check should return ErrAborted")
	}

	s.Reset()
	if s.Triggered() {
		t.Error("expected cleared after Reset")
	}
	if s.Reason() != "" {
		t.Errorf("Reason after reset = %q", s.Reason())
	}
}

func TestContextCancelledOnTrigger(t *testing.T) {
	s := New()
	ctx, cancel := s.Context(context.Background())
	defer cancel()

	s.Trigger("test")

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled after trigger")
	}
	if !errors.Is(context.Cause(ctx), ErrAborted) {
		t.Errorf("cause = %v, want ErrAborted", context.Cause(ctx))
	}
}

func TestContextCancelFuncReleases(t *testing.T) {
	s := New()
	ctx, cancel := s.Context(context.Background())
	cancel()
	<-ctx.Done()
	if errors.Is(context.Cause(ctx), ErrAborted) {
		t.Error("plain cancel should not report abort")
	}
}

func TestSleep(t *testing.T) {
	s := New()
	if err := s.Sleep(context.Background(), time.Millisecond); err != nil {
		t.Errorf("Sleep returned %v", err)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		s.Trigger("stop")
	}()
	start := time.Now()
	err := s.Sleep(context.Background(), 5*time.Second)
	if !errors.Is(err, ErrAborted) {
		t.Errorf("Sleep err = %v, want ErrAborted", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Sleep did not return promptly on abort")
	}
}
