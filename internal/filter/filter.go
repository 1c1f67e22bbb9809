// Package filter implements per-key debounce decisions for keyboard
// chatter suppression.
//
// Worn mechanical switches produce spurious duplicate press events
// ("chatter") from a single physical actuation. The filter consumes a
// chronological stream of press/release events per key and decides,
// inline, whether each press propagates or is suppressed. Releases are
// never suppressed.
//
// Two interchangeable policies implement the same contract:
//   - Adaptive: two-phase thresholds (strict for fresh presses, lenient
//     once a key is held and the OS is auto-repeating)
//   - Pattern:  a short timing history with an irregularity test
//
// The decision function is pure state machinery: no I/O, no clock reads,
// no fallible operations. Timestamps come from the caller and must be
// monotonically non-decreasing; a timestamp that goes backward is
// clamped to a zero delta and evaluated against the strict threshold.
package filter

import "fmt"

// EventKind identifies a key transition.
type EventKind uint8

const (
	// Press is a key-down transition (including OS auto-repeats).
	Press EventKind = iota
	// Release is a key-up transition.
	Release
)

// String returns the string representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case Press:
		return "press"
	case Release:
		return "release"
	default:
		return "unknown"
	}
}

// Decision is the filter's verdict for a single event.
type Decision uint8

const (
	// Pass lets the event propagate.
	Pass Decision = iota
	// Block suppresses the event.
	Block
)

// String returns the string representation of the decision.
func (d Decision) String() string {
	switch d {
	case Pass:
		return "pass"
	case Block:
		return "block"
	default:
		return "unknown"
	}
}

// Policy decides whether key events propagate.
//
// Implementations are safe for concurrent use: the event source may
// multiplex more than one device onto the filter.
type Policy interface {
	// OnKeyEvent processes one event and returns the decision.
	// timestampMs is milliseconds on any monotonically non-decreasing
	// per-process clock. Releases always return Pass.
	OnKeyEvent(key uint16, kind EventKind, timestampMs int64) Decision

	// BlockedCount returns the number of presses suppressed for a key.
	BlockedCount(key uint16) uint64

	// BlockedTotals returns a snapshot of suppressed-press counts for
	// every key that has had at least one press blocked.
	BlockedTotals() map[uint16]uint64

	// Name returns the policy name ("adaptive" or "pattern").
	Name() string
}

// Policy names accepted by New.
const (
	PolicyAdaptive = "adaptive"
	PolicyPattern  = "pattern"
)

// Config holds the constructor-time tuning for a filter.
// Thresholds are in milliseconds. A zero MinReleaseDurationMs disables
// the intentional double-tap bypass.
type Config struct {
	// Policy selects the implementation: "adaptive" or "pattern".
	Policy string

	// InitialThresholdMs is the strict window applied to a press that
	// follows a fresh press. Chatter bounces land here.
	InitialThresholdMs int64

	// RepeatThresholdMs is the lenient window applied once a key is
	// established as held. OS auto-repeat fires faster than human
	// double-taps and must not be eaten.
	RepeatThresholdMs int64

	// TransitionDelayMs is how long a key must have been down before
	// subsequent presses are treated as auto-repeat.
	TransitionDelayMs int64

	// MinReleaseDurationMs is the release-to-press gap that marks a
	// press as a deliberate new keystroke regardless of the press-to-
	// press interval. Zero disables the bypass.
	MinReleaseDurationMs int64
}

// DefaultConfig returns the tuning that works for most worn switches.
func DefaultConfig() Config {
	return Config{
		Policy:               PolicyAdaptive,
		InitialThresholdMs:   50,
		RepeatThresholdMs:    15,
		TransitionDelayMs:    200,
		MinReleaseDurationMs: 20,
	}
}

// New constructs the policy named by cfg.Policy.
func New(cfg Config) (Policy, error) {
	switch cfg.Policy {
	case PolicyAdaptive, "":
		return NewAdaptive(cfg), nil
	case PolicyPattern:
		return NewPattern(), nil
	default:
		return nil, fmt.Errorf("unknown filter policy: %q", cfg.Policy)
	}
}
