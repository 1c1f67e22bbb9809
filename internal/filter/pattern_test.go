package filter

import "testing"

// press feeds a sequence of press timestamps and returns the last decision.
func press(f Policy, key uint16, ts ...int64) Decision {
	var d Decision
	for _, t := range ts {
		d = f.OnKeyEvent(key, Press, t)
	}
	return d
}

func TestPatternFirstPressAlwaysPasses(t *testing.T) {
	f := NewPattern()

	if d := f.OnKeyEvent(30, Press, 0); d != Pass {
		t.Errorf("first press: expected Pass, got %v", d)
	}
}

func TestPatternHardBlockWindow(t *testing.T) {
	f := NewPattern()

	f.OnKeyEvent(30, Press, 0)
	if d := f.OnKeyEvent(30, Press, 19); d != Block {
		t.Errorf("press 19ms later: expected Block, got %v", d)
	}
	if d := f.OnKeyEvent(30, Press, 25); d != Pass {
		t.Errorf("press 25ms after last accepted: expected Pass, got %v", d)
	}
	if got := f.BlockedCount(30); got != 1 {
		t.Errorf("expected blockedCount 1, got %d", got)
	}
}

func TestPatternIrregularIntervalBlocked(t *testing.T) {
	f := NewPattern()

	// Establish a steady 100ms rhythm: presses at 0, 100, 200.
	if d := press(f, 30, 0, 100, 200); d != Pass {
		t.Fatal("rhythm presses should pass")
	}

	// 25ms later: inside the 40ms suspect window and 75ms off the
	// established 100ms average.
	if d := f.OnKeyEvent(30, Press, 225); d != Block {
		t.Errorf("irregular 25ms press: expected Block, got %v", d)
	}

	// 95ms after the last accepted press: close to the rhythm.
	if d := f.OnKeyEvent(30, Press, 295); d != Pass {
		t.Errorf("on-rhythm 95ms press: expected Pass, got %v", d)
	}
}

func TestPatternFastRegularRepeatPasses(t *testing.T) {
	f := NewPattern()

	// Steady 30ms auto-repeat: inside the suspect window but matching
	// the established rhythm, so nothing blocks.
	for i, ts := range []int64{0, 30, 60, 90, 120, 150} {
		if d := f.OnKeyEvent(30, Press, ts); d != Pass {
			t.Errorf("repeat press %d at t=%d: expected Pass, got %v", i, ts, d)
		}
	}
}

func TestPatternBlockedPressNotAddedToHistory(t *testing.T) {
	f := NewPattern()

	press(f, 30, 0, 100, 200)
	f.OnKeyEvent(30, Press, 210) // blocked bounce

	// Measured against the accepted press at 200, not the bounce.
	if d := f.OnKeyEvent(30, Press, 300); d != Pass {
		t.Errorf("press 100ms after accepted: expected Pass, got %v", d)
	}
}

func TestPatternHistoryBounded(t *testing.T) {
	f := NewPattern()

	for i := int64(0); i < 50; i++ {
		f.OnKeyEvent(30, Press, i*100)
	}

	st := f.states[30]
	if len(st.presses) != patternHistorySize {
		t.Errorf("expected history of %d, got %d", patternHistorySize, len(st.presses))
	}
}

func TestPatternReleasesIgnored(t *testing.T) {
	f := NewPattern()

	f.OnKeyEvent(30, Press, 0)
	if d := f.OnKeyEvent(30, Release, 5); d != Pass {
		t.Errorf("release: expected Pass, got %v", d)
	}
	// Release did not seed or disturb press history.
	if d := f.OnKeyEvent(30, Press, 100); d != Pass {
		t.Errorf("press after release: expected Pass, got %v", d)
	}
}

func TestPatternKeyIndependence(t *testing.T) {
	f := NewPattern()

	press(f, 30, 0, 100, 200)
	if d := f.OnKeyEvent(31, Press, 205); d != Pass {
		t.Errorf("first press of key 31: expected Pass, got %v", d)
	}
}
