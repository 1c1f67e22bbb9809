package metrics

import (
	"time"
)

// ChatterdMetrics holds all chatterd-specific metrics.
type ChatterdMetrics struct {
	registry *Registry

	// Counters
	EventsTotal        *Counter
	PressesTotal       *Counter
	ReleasesTotal      *Counter
	BlockedTotal       *Counter
	PatternBlocksTotal *Counter
	ReloadsTotal       *Counter
	ErrorsTotal        *Counter

	// Gauges
	TrackedKeys      *Gauge
	CapturedDevices  *Gauge
	ConnectedClients *Gauge
	UptimeSeconds    *Gauge
	CapturePaused    *Gauge

	// Histograms
	DecisionLatency *Histogram
	BlockedDeltaMs  *Histogram
}

// startTime records when metrics were initialized.
var startTime = time.Now()

// NewChatterdMetrics creates and registers all chatterd metrics.
func NewChatterdMetrics(registry *Registry) *ChatterdMetrics {
	if registry == nil {
		registry = Default()
	}

	m := &ChatterdMetrics{
		registry: registry,

		// Counters
		EventsTotal: registry.RegisterCounter(
			"events_total",
			"Total number of key events seen",
			nil,
		),
		PressesTotal: registry.RegisterCounter(
			"presses_total",
			"Total number of key presses passed through",
			nil,
		),
		ReleasesTotal: registry.RegisterCounter(
			"releases_total",
			"Total number of key releases seen",
			nil,
		),
		BlockedTotal: registry.RegisterCounter(
			"blocked_total",
			"Total number of chatter presses suppressed",
			nil,
		),
		PatternBlocksTotal: registry.RegisterCounter(
			"pattern_blocks_total",
			"Presses suppressed by the pattern policy",
			nil,
		),
		ReloadsTotal: registry.RegisterCounter(
			"reloads_total",
			"Total number of configuration reloads",
			nil,
		),
		ErrorsTotal: registry.RegisterCounter(
			"errors_total",
			"Total number of errors",
			nil,
		),

		// Gauges
		TrackedKeys: registry.RegisterGauge(
			"tracked_keys",
			"Number of distinct keys with per-key state",
			nil,
		),
		CapturedDevices: registry.RegisterGauge(
			"captured_devices",
			"Number of keyboard devices being captured",
			nil,
		),
		ConnectedClients: registry.RegisterGauge(
			"connected_clients",
			"Number of connected IPC clients",
			nil,
		),
		UptimeSeconds: registry.RegisterGauge(
			"uptime_seconds",
			"Daemon uptime in seconds",
			nil,
		),
		CapturePaused: registry.RegisterGauge(
			"capture_paused",
			"Whether filtering is currently paused (1) or active (0)",
			nil,
		),

		// Histograms
		DecisionLatency: registry.RegisterHistogram(
			"decision_latency_seconds",
			"Time spent deciding pass or block per press",
			nil,
			LatencyBuckets,
		),
		BlockedDeltaMs: registry.RegisterHistogram(
			"blocked_delta_ms",
			"Press-to-press delta of suppressed presses in milliseconds",
			nil,
			[]float64{1, 2, 5, 10, 15, 20, 30, 40, 50},
		),
	}

	return m
}

// UpdateUptime refreshes the uptime gauge.
func (m *ChatterdMetrics) UpdateUptime() {
	m.UptimeSeconds.Set(int64(time.Since(startTime).Seconds()))
}

// Registry returns the underlying registry.
func (m *ChatterdMetrics) Registry() *Registry {
	return m.registry
}
