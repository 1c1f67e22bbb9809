// Package notify raises desktop notifications when a key crosses the
// configured blocked-press threshold, a strong sign the switch is
// physically failing.
package notify

import "sync"

// Notifier sends a desktop notification for a noisy key.
type Notifier interface {
	// KeyWarning notifies about a key whose blocked count crossed the
	// threshold.
	KeyWarning(keyName string, blockedCount uint64) error

	Close() error
}

// Throttled wraps a Notifier so each key warns at most once per run.
type Throttled struct {
	mu     sync.Mutex
	inner  Notifier
	warned map[string]bool
}

// NewThrottled wraps the notifier with per-key deduplication.
func NewThrottled(inner Notifier) *Throttled {
	return &Throttled{
		inner:  inner,
		warned: make(map[string]bool),
	}
}

// KeyWarning forwards the first warning per key and drops repeats.
func (t *Throttled) KeyWarning(keyName string, blockedCount uint64) error {
	t.mu.Lock()
	if t.warned[keyName] {
		t.mu.Unlock()
		return nil
	}
	t.warned[keyName] = true
	t.mu.Unlock()

	return t.inner.KeyWarning(keyName, blockedCount)
}

// Close closes the wrapped notifier.
func (t *Throttled) Close() error {
	return t.inner.Close()
}

// Nop is a Notifier that discards everything.
type Nop struct{}

func (Nop) KeyWarning(string, uint64) error { return nil }
func (Nop) Close() error                    { return nil }
