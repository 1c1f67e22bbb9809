package filter

import "sync"

// Pattern policy constants.
const (
	// patternHistorySize is how many accepted press timestamps are kept
	// per key.
	patternHistorySize = 5

	// patternHardBlockMs: anything faster than this is chatter, full stop.
	patternHardBlockMs = 20

	// patternSuspectMs is the window inside which timing regularity is
	// checked against the established rhythm.
	patternSuspectMs = 40

	// patternDeviationMs is the allowed deviation from the average of
	// the two most recent intervals.
	patternDeviationMs = 20
)

// patternState holds the bounded press history for one key.
type patternState struct {
	// presses holds the timestamps of accepted presses, oldest first.
	presses      []int64
	blockedCount uint64
}

// Pattern is the history-based policy. Instead of a two-phase state
// machine it keeps the last few accepted press timestamps and blocks a
// fast press whose interval is irregular relative to the established
// rhythm. Auto-repeat produces evenly spaced presses that sail through;
// chatter lands as an outlier.
type Pattern struct {
	mu     sync.Mutex
	states map[uint16]*patternState
}

// NewPattern creates a pattern-based filter.
func NewPattern() *Pattern {
	return &Pattern{states: make(map[uint16]*patternState)}
}

// Name returns "pattern".
func (p *Pattern) Name() string { return PolicyPattern }

// OnKeyEvent implements Policy.
func (p *Pattern) OnKeyEvent(key uint16, kind EventKind, timestampMs int64) Decision {
	if kind == Release {
		return Pass
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.states[key]
	if !ok {
		st = &patternState{}
		p.states[key] = st
	}

	// First press seeds the history.
	if len(st.presses) == 0 {
		st.presses = append(st.presses, timestampMs)
		return Pass
	}

	sinceLast := timestampMs - st.presses[len(st.presses)-1]
	if sinceLast < 0 {
		sinceLast = 0
	}

	if sinceLast < patternHardBlockMs {
		st.blockedCount++
		return Block
	}

	if len(st.presses) >= 3 {
		n := len(st.presses)
		avg := (st.presses[n-1] - st.presses[n-3]) / 2
		dev := sinceLast - avg
		if dev < 0 {
			dev = -dev
		}
		if sinceLast < patternSuspectMs && dev > patternDeviationMs {
			st.blockedCount++
			return Block
		}
	}

	st.presses = append(st.presses, timestampMs)
	if len(st.presses) > patternHistorySize {
		st.presses = st.presses[1:]
	}
	return Pass
}

// BlockedCount implements Policy.
func (p *Pattern) BlockedCount(key uint16) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if st, ok := p.states[key]; ok {
		return st.blockedCount
	}
	return 0
}

// BlockedTotals implements Policy.
func (p *Pattern) BlockedTotals() map[uint16]uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	totals := make(map[uint16]uint64)
	for key, st := range p.states {
		if st.blockedCount > 0 {
			totals[key] = st.blockedCount
		}
	}
	return totals
}
