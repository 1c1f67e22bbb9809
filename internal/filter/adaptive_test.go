package filter

import (
	"sync"
	"testing"
)

func testConfig() Config {
	return Config{
		Policy:               PolicyAdaptive,
		InitialThresholdMs:   50,
		RepeatThresholdMs:    15,
		TransitionDelayMs:    200,
		MinReleaseDurationMs: 20,
	}
}

func TestAdaptiveFirstPressAlwaysPasses(t *testing.T) {
	f := NewAdaptive(testConfig())

	if d := f.OnKeyEvent(30, Press, 0); d != Pass {
		t.Errorf("first press: expected Pass, got %v", d)
	}
	if d := f.OnKeyEvent(31, Press, 1); d != Pass {
		t.Errorf("first press of second key: expected Pass, got %v", d)
	}
}

func TestAdaptiveBlocksChatterInStrictWindow(t *testing.T) {
	f := NewAdaptive(testConfig())

	f.OnKeyEvent(30, Press, 0)
	if d := f.OnKeyEvent(30, Press, 10); d != Block {
		t.Errorf("press 10ms after press: expected Block, got %v", d)
	}
	if got := f.BlockedCount(30); got != 1 {
		t.Errorf("expected blockedCount 1, got %d", got)
	}
}

func TestAdaptiveBlockedPressDoesNotMoveAnchor(t *testing.T) {
	f := NewAdaptive(testConfig())

	f.OnKeyEvent(30, Press, 0)
	if d := f.OnKeyEvent(30, Press, 10); d != Block {
		t.Fatalf("expected Block at t=10, got %v", d)
	}

	// 55ms since the last accepted press (t=0), not the blocked one.
	if d := f.OnKeyEvent(30, Press, 55); d != Pass {
		t.Errorf("press 55ms after accepted press: expected Pass, got %v", d)
	}
}

func TestAdaptiveChatterBurstStaysBlocked(t *testing.T) {
	f := NewAdaptive(testConfig())

	f.OnKeyEvent(30, Press, 0)
	// A burst of bounces must not ratchet the window forward.
	for _, ts := range []int64{5, 15, 25, 35, 45} {
		if d := f.OnKeyEvent(30, Press, ts); d != Block {
			t.Errorf("bounce at t=%d: expected Block, got %v", ts, d)
		}
	}
	if got := f.BlockedCount(30); got != 5 {
		t.Errorf("expected blockedCount 5, got %d", got)
	}
	if d := f.OnKeyEvent(30, Press, 50); d != Pass {
		t.Errorf("press at threshold edge t=50: expected Pass, got %v", d)
	}
}

func TestAdaptiveRepeatModeTransition(t *testing.T) {
	f := NewAdaptive(Config{
		Policy:             PolicyAdaptive,
		InitialThresholdMs: 50,
		RepeatThresholdMs:  15,
		TransitionDelayMs:  200,
		// Bypass disabled so the repeat path is exercised in isolation.
		MinReleaseDurationMs: 0,
	})

	f.OnKeyEvent(30, Press, 0)

	// 210ms later: past the transition delay, so repeat mode engages.
	// The triggering press itself is judged with the strict threshold.
	if d := f.OnKeyEvent(30, Press, 210); d != Pass {
		t.Fatalf("press at t=210: expected Pass, got %v", d)
	}

	// 5ms later: lenient threshold is 15ms, still too fast.
	if d := f.OnKeyEvent(30, Press, 215); d != Block {
		t.Errorf("repeat 5ms later: expected Block, got %v", d)
	}

	// 21ms after the accepted press at t=210: 21 >= 15, passes.
	if d := f.OnKeyEvent(30, Press, 231); d != Pass {
		t.Errorf("repeat 21ms later: expected Pass, got %v", d)
	}
}

func TestAdaptiveReleaseResetsRepeatMode(t *testing.T) {
	f := NewAdaptive(Config{
		Policy:               PolicyAdaptive,
		InitialThresholdMs:   50,
		RepeatThresholdMs:    15,
		TransitionDelayMs:    200,
		MinReleaseDurationMs: 0,
	})

	f.OnKeyEvent(30, Press, 0)
	f.OnKeyEvent(30, Press, 210) // enters repeat mode

	if d := f.OnKeyEvent(30, Release, 220); d != Pass {
		t.Fatalf("release: expected Pass, got %v", d)
	}

	// Back in strict mode: 30ms < 50ms must now block, even though the
	// lenient threshold would have allowed it.
	if d := f.OnKeyEvent(30, Press, 240); d != Block {
		t.Errorf("press 30ms after accepted press post-release: expected Block, got %v", d)
	}
}

func TestAdaptiveDoubleTapBypass(t *testing.T) {
	f := NewAdaptive(testConfig())

	f.OnKeyEvent(30, Press, 0)
	f.OnKeyEvent(30, Release, 5)

	// Release-to-press gap of 25ms >= 20ms: deliberate keystroke, even
	// though the press-to-press interval (30ms) is inside the strict
	// window.
	if d := f.OnKeyEvent(30, Press, 30); d != Pass {
		t.Errorf("intentional double-tap: expected Pass, got %v", d)
	}
	if got := f.BlockedCount(30); got != 0 {
		t.Errorf("expected no blocks, got %d", got)
	}
}

func TestAdaptiveDoubleTapBypassDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.MinReleaseDurationMs = 0
	f := NewAdaptive(cfg)

	f.OnKeyEvent(30, Press, 0)
	f.OnKeyEvent(30, Release, 5)

	// With the bypass disabled the 30ms interval is plain chatter.
	if d := f.OnKeyEvent(30, Press, 30); d != Block {
		t.Errorf("bypass disabled: expected Block, got %v", d)
	}
}

func TestAdaptiveShortReleaseGapIsStillChatter(t *testing.T) {
	f := NewAdaptive(testConfig())

	f.OnKeyEvent(30, Press, 0)
	f.OnKeyEvent(30, Release, 5)

	// Release-to-press gap of 10ms < 20ms: the release does not vouch
	// for the press, and 15ms since the last press is chatter.
	if d := f.OnKeyEvent(30, Press, 15); d != Block {
		t.Errorf("short release gap: expected Block, got %v", d)
	}
}

func TestAdaptiveReleasesAlwaysPass(t *testing.T) {
	f := NewAdaptive(testConfig())

	f.OnKeyEvent(30, Press, 0)
	for _, ts := range []int64{1, 2, 3} {
		if d := f.OnKeyEvent(30, Release, ts); d != Pass {
			t.Errorf("release at t=%d: expected Pass, got %v", ts, d)
		}
	}
	if got := f.BlockedCount(30); got != 0 {
		t.Errorf("releases must not count as blocked, got %d", got)
	}
}

func TestAdaptiveKeyIndependence(t *testing.T) {
	f := NewAdaptive(testConfig())

	f.OnKeyEvent(30, Press, 0)
	// A different key pressed 10ms later has no prior history.
	if d := f.OnKeyEvent(31, Press, 10); d != Pass {
		t.Errorf("first press of key 31: expected Pass, got %v", d)
	}
	// And key 30's chatter window is unaffected by key 31's press.
	if d := f.OnKeyEvent(30, Press, 20); d != Block {
		t.Errorf("key 30 chatter: expected Block, got %v", d)
	}
	if got := f.BlockedCount(31); got != 0 {
		t.Errorf("key 31 should have no blocks, got %d", got)
	}
}

func TestAdaptiveBackwardTimestampClamped(t *testing.T) {
	f := NewAdaptive(testConfig())

	f.OnKeyEvent(30, Press, 100)
	// Timestamp going backward violates the caller contract; the delta
	// is clamped to zero and judged strictly, so the press blocks.
	if d := f.OnKeyEvent(30, Press, 90); d != Block {
		t.Errorf("backward timestamp: expected Block, got %v", d)
	}
}

func TestAdaptiveBlockedTotals(t *testing.T) {
	f := NewAdaptive(testConfig())

	f.OnKeyEvent(30, Press, 0)
	f.OnKeyEvent(30, Press, 10)
	f.OnKeyEvent(30, Press, 20)
	f.OnKeyEvent(31, Press, 0)

	totals := f.BlockedTotals()
	if totals[30] != 2 {
		t.Errorf("expected 2 blocks for key 30, got %d", totals[30])
	}
	if _, ok := totals[31]; ok {
		t.Error("key 31 has no blocks and should not appear")
	}
}

func TestAdaptiveConcurrentAccess(t *testing.T) {
	f := NewAdaptive(testConfig())
	var wg sync.WaitGroup

	for k := uint16(0); k < 8; k++ {
		wg.Add(1)
		go func(key uint16) {
			defer wg.Done()
			for i := int64(0); i < 200; i++ {
				f.OnKeyEvent(key, Press, i*100)
				f.OnKeyEvent(key, Release, i*100+60)
			}
		}(k)
	}

	wg.Wait()

	for k := uint16(0); k < 8; k++ {
		if got := f.BlockedCount(k); got != 0 {
			t.Errorf("key %d: well-spaced presses blocked %d times", k, got)
		}
	}
}
