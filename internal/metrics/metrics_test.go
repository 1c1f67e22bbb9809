package metrics

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestCounter(t *testing.T) {
	c := NewCounter("test_total", "test counter", nil)

	c.Inc()
	c.Add(4)
	if c.Value() != 5 {
		t.Errorf("expected 5, got %d", c.Value())
	}
}

func TestGauge(t *testing.T) {
	g := NewGauge("test_gauge", "test gauge", nil)

	g.Set(10)
	g.Inc()
	g.Dec()
	g.Add(-3)
	if g.Value() != 7 {
		t.Errorf("expected 7, got %d", g.Value())
	}
}

func TestHistogram(t *testing.T) {
	h := NewHistogram("test_hist", "test histogram", nil, []float64{1, 5, 10})

	h.Observe(0.5)
	h.Observe(3)
	h.Observe(100)

	if h.Count() != 3 {
		t.Errorf("expected 3 observations, got %d", h.Count())
	}
	if h.Sum() != 103.5 {
		t.Errorf("expected sum 103.5, got %f", h.Sum())
	}
	if h.Mean() != 34.5 {
		t.Errorf("expected mean 34.5, got %f", h.Mean())
	}
}

func TestRegistryFullName(t *testing.T) {
	r := NewRegistry("chatterd", "filter")
	c := r.RegisterCounter("blocked_total", "blocked", nil)
	if c.Name() != "chatterd_filter_blocked_total" {
		t.Errorf("unexpected full name: %s", c.Name())
	}
}

func TestRegistryReturnsSameMetric(t *testing.T) {
	r := NewRegistry("chatterd", "")

	c1 := r.RegisterCounter("events_total", "events", nil)
	c2 := r.RegisterCounter("events_total", "events", nil)
	if c1 != c2 {
		t.Error("expected same counter instance for same name")
	}

	c1.Inc()
	if r.GetCounter("events_total").Value() != 1 {
		t.Error("GetCounter should return the registered counter")
	}
}

func TestWritePrometheus(t *testing.T) {
	r := NewRegistry("chatterd", "")
	c := r.RegisterCounter("blocked_total", "Suppressed presses", nil)
	c.Add(12)
	g := r.RegisterGauge("tracked_keys", "Keys with state", Labels{"policy": "adaptive"})
	g.Set(4)

	var buf bytes.Buffer
	if err := r.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "# TYPE chatterd_blocked_total counter") {
		t.Errorf("missing counter TYPE line: %s", out)
	}
	if !strings.Contains(out, "chatterd_blocked_total 12") {
		t.Errorf("missing counter value: %s", out)
	}
	if !strings.Contains(out, `chatterd_tracked_keys{policy="adaptive"} 4`) {
		t.Errorf("missing labeled gauge: %s", out)
	}
}

func TestWriteJSON(t *testing.T) {
	r := NewRegistry("chatterd", "")
	r.RegisterCounter("events_total", "events", nil).Add(3)

	var buf bytes.Buffer
	if err := r.WriteJSON(&buf); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if _, ok := out["chatterd_events_total"]; !ok {
		t.Errorf("missing metric in JSON output: %v", out)
	}
}

func TestHTTPHandler(t *testing.T) {
	r := NewRegistry("chatterd", "")
	r.RegisterCounter("events_total", "events", nil).Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	r.HTTPHandler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "chatterd_events_total 1") {
		t.Errorf("missing metric in response: %s", rec.Body.String())
	}

	// JSON when requested.
	req = httptest.NewRequest("GET", "/metrics", nil)
	req.Header.Set("Accept", "application/json")
	rec = httptest.NewRecorder()
	r.HTTPHandler().ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got %s", ct)
	}
}

func TestReset(t *testing.T) {
	r := NewRegistry("chatterd", "")
	c := r.RegisterCounter("events_total", "events", nil)
	c.Add(10)
	h := r.RegisterHistogram("latency", "latency", nil, nil)
	h.Observe(1)

	r.Reset()

	if c.Value() != 0 {
		t.Errorf("counter not reset: %d", c.Value())
	}
	if h.Count() != 0 {
		t.Errorf("histogram not reset: %d", h.Count())
	}
}

func TestChatterdMetrics(t *testing.T) {
	r := NewRegistry("chatterd", "")
	m := NewChatterdMetrics(r)

	m.EventsTotal.Inc()
	m.BlockedTotal.Add(2)
	m.TrackedKeys.Set(5)
	m.UpdateUptime()

	snapshot := r.Snapshot()
	if snapshot["chatterd_events_total"] != uint64(1) {
		t.Errorf("unexpected events total: %v", snapshot["chatterd_events_total"])
	}
	if snapshot["chatterd_blocked_total"] != uint64(2) {
		t.Errorf("unexpected blocked total: %v", snapshot["chatterd_blocked_total"])
	}
}

func TestConcurrentAccess(t *testing.T) {
	r := NewRegistry("chatterd", "")
	c := r.RegisterCounter("events_total", "events", nil)
	h := r.RegisterHistogram("latency", "latency", nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.Inc()
				h.Observe(float64(j))
			}
		}()
	}
	wg.Wait()

	if c.Value() != 8000 {
		t.Errorf("expected 8000, got %d", c.Value())
	}
	if h.Count() != 8000 {
		t.Errorf("expected 8000 observations, got %d", h.Count())
	}
}
