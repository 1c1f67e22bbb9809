// Package capture acquires raw keyboard events and enforces filter
// decisions on them.
//
// Platform support:
//   - Linux: reads /dev/input/event* keyboards, grabs them (EVIOCGRAB)
//     and re-emits accepted events through /dev/uinput
//   - Windows: WH_KEYBOARD_LL low-level hook; blocked events are eaten
//     by returning nonzero from the hook procedure
//
// The decision callback runs inline on the event path and must not
// block; the filter core guarantees that.
package capture

import (
	"context"
	"errors"
	"sync"

	"chatterd/internal/filter"
)

// KeyEvent is one observed key transition.
type KeyEvent struct {
	// Code is the platform key code (evdev code or virtual-key code).
	Code uint16

	// Kind is press or release.
	Kind filter.EventKind

	// TimestampMs is milliseconds on a monotonically non-decreasing
	// per-process clock, taken from the event itself where the platform
	// provides one.
	TimestampMs int64
}

// Handler decides whether a captured event propagates. It is invoked
// inline from the capture path for every event.
type Handler func(ev KeyEvent) filter.Decision

// Source captures keyboard events and applies decisions to them.
type Source interface {
	// Start begins capturing. The handler is called for every event;
	// events it returns Block for are suppressed at the source.
	Start(ctx context.Context, h Handler) error

	// Stop releases the devices and stops capturing.
	Stop() error

	// Available reports whether capture can work on this platform with
	// current permissions, with a human-readable reason.
	Available() (bool, string)
}

// Options tunes platform sources.
type Options struct {
	// Devices restricts Linux capture to the given event device paths.
	// Empty means autodetect keyboards.
	Devices []string

	// Grab controls whether Linux devices are grabbed exclusively.
	// Without grabbing, blocked events still reach the system and the
	// daemon only observes.
	Grab bool
}

// Common errors.
var (
	ErrNotAvailable   = errors.New("keyboard capture not available on this platform")
	ErrAlreadyRunning = errors.New("capture already running")
	ErrNotRunning     = errors.New("capture not running")
)

// New creates a Source for the current platform.
func New(opts Options) Source {
	return newPlatformSource(opts)
}

// baseSource provides the running-state bookkeeping shared by the
// platform implementations.
type baseSource struct {
	mu      sync.Mutex
	running bool
	handler Handler
}

func (b *baseSource) setRunning(running bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = running
}

func (b *baseSource) isRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

func (b *baseSource) setHandler(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = h
}

// decide runs the handler; with no handler installed everything passes.
func (b *baseSource) decide(ev KeyEvent) filter.Decision {
	b.mu.Lock()
	h := b.handler
	b.mu.Unlock()

	if h == nil {
		return filter.Pass
	}
	return h(ev)
}

// Simulated is a Source for testing that never touches real hardware.
// Events are injected by the test and the usual handler path decides
// their fate.
type Simulated struct {
	baseSource

	mu      sync.Mutex
	passed  []KeyEvent
	blocked []KeyEvent
}

// NewSimulated creates a simulated source.
func NewSimulated() *Simulated {
	return &Simulated{}
}

// Start implements Source.
func (s *Simulated) Start(ctx context.Context, h Handler) error {
	if s.isRunning() {
		return ErrAlreadyRunning
	}
	s.setHandler(h)
	s.setRunning(true)
	return nil
}

// Stop implements Source.
func (s *Simulated) Stop() error {
	if !s.isRunning() {
		return nil
	}
	s.setRunning(false)
	s.setHandler(nil)
	return nil
}

// Available implements Source.
func (s *Simulated) Available() (bool, string) {
	return true, "simulated source (for testing)"
}

// Inject feeds one event through the decision path and returns the
// verdict. Injecting while stopped passes the event through untouched.
func (s *Simulated) Inject(ev KeyEvent) filter.Decision {
	d := s.decide(ev)

	s.mu.Lock()
	if d == filter.Block {
		s.blocked = append(s.blocked, ev)
	} else {
		s.passed = append(s.passed, ev)
	}
	s.mu.Unlock()

	return d
}

// Passed returns the events that were forwarded.
func (s *Simulated) Passed() []KeyEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]KeyEvent(nil), s.passed...)
}

// Blocked returns the events that were suppressed.
func (s *Simulated) Blocked() []KeyEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]KeyEvent(nil), s.blocked...)
}
