package capture

import (
	"context"
	"testing"

	"chatterd/internal/filter"
)

func TestSimulatedStartStop(t *testing.T) {
	s := NewSimulated()
	ctx := context.Background()

	if err := s.Start(ctx, nil); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Start(ctx, nil); err != ErrAlreadyRunning {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("Stop on stopped source should not error: %v", err)
	}
}

func TestSimulatedAvailable(t *testing.T) {
	s := NewSimulated()

	available, msg := s.Available()
	if !available {
		t.Error("simulated source should always be available")
	}
	if msg == "" {
		t.Error("should have availability message")
	}
}

func TestSimulatedHandlerDecides(t *testing.T) {
	s := NewSimulated()
	ctx := context.Background()

	// Block every press on key 30, pass the rest.
	h := func(ev KeyEvent) filter.Decision {
		if ev.Code == 30 && ev.Kind == filter.Press {
			return filter.Block
		}
		return filter.Pass
	}
	if err := s.Start(ctx, h); err != nil {
		t.Fatal(err)
	}

	if d := s.Inject(KeyEvent{Code: 30, Kind: filter.Press, TimestampMs: 0}); d != filter.Block {
		t.Errorf("expected Block, got %v", d)
	}
	if d := s.Inject(KeyEvent{Code: 30, Kind: filter.Release, TimestampMs: 5}); d != filter.Pass {
		t.Errorf("expected Pass for release, got %v", d)
	}
	if d := s.Inject(KeyEvent{Code: 31, Kind: filter.Press, TimestampMs: 10}); d != filter.Pass {
		t.Errorf("expected Pass for key 31, got %v", d)
	}

	if got := len(s.Blocked()); got != 1 {
		t.Errorf("expected 1 blocked event, got %d", got)
	}
	if got := len(s.Passed()); got != 2 {
		t.Errorf("expected 2 passed events, got %d", got)
	}
}

func TestSimulatedNoHandlerPassesEverything(t *testing.T) {
	s := NewSimulated()

	if d := s.Inject(KeyEvent{Code: 30, Kind: filter.Press}); d != filter.Pass {
		t.Errorf("expected Pass without handler, got %v", d)
	}
}

func TestNewReturnsPlatformSource(t *testing.T) {
	s := New(Options{})
	if s == nil {
		t.Fatal("New returned nil")
	}
}
