package notify

import "testing"

type recordingNotifier struct {
	calls []string
}

func (r *recordingNotifier) KeyWarning(keyName string, blockedCount uint64) error {
	r.calls = append(r.calls, keyName)
	return nil
}

func (r *recordingNotifier) Close() error { return nil }

func TestThrottledWarnsOncePerKey(t *testing.T) {
	rec := &recordingNotifier{}
	n := NewThrottled(rec)

	n.KeyWarning("KEY_A", 50)
	n.KeyWarning("KEY_A", 60)
	n.KeyWarning("KEY_B", 50)
	n.KeyWarning("KEY_A", 70)

	if len(rec.calls) != 2 {
		t.Fatalf("expected 2 forwarded warnings, got %d: %v", len(rec.calls), rec.calls)
	}
	if rec.calls[0] != "KEY_A" || rec.calls[1] != "KEY_B" {
		t.Errorf("unexpected calls: %v", rec.calls)
	}
}

func TestNopDiscards(t *testing.T) {
	var n Notifier = Nop{}
	if err := n.KeyWarning("KEY_A", 100); err != nil {
		t.Errorf("Nop should never error: %v", err)
	}
	if err := n.Close(); err != nil {
		t.Errorf("Nop close should never error: %v", err)
	}
}
