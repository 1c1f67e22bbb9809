package filter

import "sync"

// keyState is the per-key record the adaptive policy maintains.
// States are created lazily on first event and live for the process
// lifetime; the key space is bounded by the hardware (≤256 codes).
type keyState struct {
	// lastPressMs is the timestamp of the most recent accepted press.
	// Blocked presses never advance it, so chatter bursts are measured
	// against the last legitimate press rather than the last bounce.
	lastPressMs int64
	pressed     bool

	lastReleaseMs int64
	released      bool

	// inRepeatMode is true once the key has been held long enough that
	// OS auto-repeat is expected. Cleared on every release.
	inRepeatMode bool

	blockedCount uint64
}

// Adaptive is the two-phase threshold policy.
//
// A press arriving shortly after a fresh press is judged against the
// strict initial threshold. Once a key has been down longer than the
// transition delay, the key is considered held and subsequent presses
// (OS auto-repeats) are judged against the lenient repeat threshold.
// A press that follows a sufficiently long release is always accepted
// as a deliberate double-tap.
type Adaptive struct {
	mu     sync.Mutex
	cfg    Config
	states map[uint16]*keyState
}

// NewAdaptive creates an adaptive-threshold filter with the given tuning.
func NewAdaptive(cfg Config) *Adaptive {
	return &Adaptive{
		cfg:    cfg,
		states: make(map[uint16]*keyState),
	}
}

// Name returns "adaptive".
func (a *Adaptive) Name() string { return PolicyAdaptive }

// OnKeyEvent implements Policy.
func (a *Adaptive) OnKeyEvent(key uint16, kind EventKind, timestampMs int64) Decision {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := a.state(key)

	if kind == Release {
		st.lastReleaseMs = timestampMs
		st.released = true
		st.inRepeatMode = false
		return Pass
	}

	// First-ever press: nothing to compare against.
	if !st.pressed {
		st.pressed = true
		st.lastPressMs = timestampMs
		return Pass
	}

	sincePress := timestampMs - st.lastPressMs
	if sincePress < 0 {
		// Caller contract violation; treat as simultaneous.
		sincePress = 0
	}

	// A press after a real release is a deliberate keystroke, never
	// chatter, no matter how close it lands to the previous press.
	if a.cfg.MinReleaseDurationMs > 0 && st.released && st.lastReleaseMs > st.lastPressMs &&
		timestampMs-st.lastReleaseMs >= a.cfg.MinReleaseDurationMs {
		st.lastPressMs = timestampMs
		st.inRepeatMode = false
		return Pass
	}

	threshold := a.cfg.InitialThresholdMs
	if st.inRepeatMode {
		threshold = a.cfg.RepeatThresholdMs
	} else if sincePress > a.cfg.TransitionDelayMs {
		// The key is being held, not double-tapped. Future presses use
		// the lenient threshold; this one is still judged strictly.
		st.inRepeatMode = true
	}

	if sincePress < threshold {
		st.blockedCount++
		return Block
	}

	st.lastPressMs = timestampMs
	return Pass
}

// BlockedCount implements Policy.
func (a *Adaptive) BlockedCount(key uint16) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if st, ok := a.states[key]; ok {
		return st.blockedCount
	}
	return 0
}

// BlockedTotals implements Policy.
func (a *Adaptive) BlockedTotals() map[uint16]uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	totals := make(map[uint16]uint64)
	for key, st := range a.states {
		if st.blockedCount > 0 {
			totals[key] = st.blockedCount
		}
	}
	return totals
}

// state returns the record for key, creating it on first use.
func (a *Adaptive) state(key uint16) *keyState {
	st, ok := a.states[key]
	if !ok {
		st = &keyState{}
		a.states[key] = st
	}
	return st
}
