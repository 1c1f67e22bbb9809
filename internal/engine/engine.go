// Package engine wires capture, filtering, stats, metrics, and
// notifications into the running daemon core.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"chatterd/internal/capture"
	"chatterd/internal/config"
	"chatterd/internal/filter"
	"chatterd/internal/logging"
	"chatterd/internal/metrics"
	"chatterd/internal/notify"
	"chatterd/internal/stats"
)

// BlockedFunc is invoked for every suppressed press, off the decision
// path. Used to stream events to IPC subscribers.
type BlockedFunc func(key uint16, deltaMs int64, blockedSeen uint64)

// Options configures the engine. Store, Metrics, and Notifier are
// optional; nil disables the concern.
type Options struct {
	Config   *config.Config
	Source   capture.Source
	Store    *stats.Store
	Metrics  *metrics.ChatterdMetrics
	Notifier notify.Notifier
	Log      *logging.Logger
}

// Engine runs the filtering pipeline.
type Engine struct {
	mu     sync.RWMutex
	cfg    *config.Config
	policy filter.Policy

	source   capture.Source
	store    *stats.Store
	metrics  *metrics.ChatterdMetrics
	notifier notify.Notifier
	log      *logging.Logger

	paused  atomic.Bool
	running atomic.Bool

	eventsTotal  atomic.Uint64
	blockedTotal atomic.Uint64

	// lastPressMs tracks the last seen press per key for delta
	// reporting only; the policy owns the filtering state.
	pressMu     sync.Mutex
	lastPressMs map[uint16]int64

	onBlocked BlockedFunc

	startedAt time.Time
}

// New builds an engine from options. The filter policy is constructed
// from the configuration.
func New(opts Options) (*Engine, error) {
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	if opts.Source == nil {
		return nil, fmt.Errorf("engine: capture source required")
	}
	if opts.Log == nil {
		opts.Log = logging.Default()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}

	policy, err := filter.New(filterConfig(opts.Config))
	if err != nil {
		return nil, fmt.Errorf("build policy: %w", err)
	}

	return &Engine{
		cfg:         opts.Config,
		policy:      policy,
		source:      opts.Source,
		store:       opts.Store,
		metrics:     opts.Metrics,
		notifier:    opts.Notifier,
		log:         opts.Log.WithComponent("engine"),
		lastPressMs: make(map[uint16]int64),
	}, nil
}

func filterConfig(cfg *config.Config) filter.Config {
	return filter.Config{
		Policy:               cfg.Filter.Policy,
		InitialThresholdMs:   cfg.Filter.InitialThresholdMs,
		RepeatThresholdMs:    cfg.Filter.RepeatThresholdMs,
		TransitionDelayMs:    cfg.Filter.TransitionDelayMs,
		MinReleaseDurationMs: cfg.Filter.MinReleaseDurationMs,
	}
}

// SetBlockedFunc registers the suppressed-press callback. Must be set
// before Start.
func (e *Engine) SetBlockedFunc(fn BlockedFunc) {
	e.onBlocked = fn
}

// Start begins capturing and filtering. Blocks until the source is
// running; returns once capture is established.
func (e *Engine) Start(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return fmt.Errorf("engine already running")
	}
	e.startedAt = time.Now()

	if err := e.source.Start(ctx, e.handleEvent); err != nil {
		e.running.Store(false)
		return fmt.Errorf("start capture: %w", err)
	}

	e.log.Info("engine started", "policy", e.PolicyName())
	return nil
}

// Stop halts capture.
func (e *Engine) Stop() error {
	if !e.running.CompareAndSwap(true, false) {
		return nil
	}
	err := e.source.Stop()
	e.log.Info("engine stopped",
		"events", e.eventsTotal.Load(),
		"blocked", e.blockedTotal.Load())
	return err
}

// handleEvent is the capture handler: it decides pass or block inline
// so platform backends can suppress the event at the source.
func (e *Engine) handleEvent(ev capture.KeyEvent) filter.Decision {
	e.eventsTotal.Add(1)
	if e.metrics != nil {
		e.metrics.EventsTotal.Inc()
	}

	if e.paused.Load() {
		// Releases still reach the policy so no key is left in repeat
		// mode when filtering resumes. Releases always pass.
		if ev.Kind == filter.Release {
			e.mu.RLock()
			policy := e.policy
			e.mu.RUnlock()
			policy.OnKeyEvent(ev.Code, ev.Kind, ev.TimestampMs)
		}
		return filter.Pass
	}

	var timer *metrics.HistogramTimer
	if e.metrics != nil {
		timer = e.metrics.DecisionLatency.Timer()
	}

	e.mu.RLock()
	policy := e.policy
	policyName := policy.Name()
	e.mu.RUnlock()

	decision := policy.OnKeyEvent(ev.Code, ev.Kind, ev.TimestampMs)

	if timer != nil {
		timer.Stop()
	}

	if ev.Kind == filter.Release {
		if e.metrics != nil {
			e.metrics.ReleasesTotal.Inc()
		}
		return decision
	}

	deltaMs := e.pressDelta(ev.Code, ev.TimestampMs)

	switch decision {
	case filter.Pass:
		if e.metrics != nil {
			e.metrics.PressesTotal.Inc()
		}
		if e.store != nil {
			e.store.RecordPress(ev.Code)
		}

	case filter.Block:
		e.blockedTotal.Add(1)
		blockedSeen := policy.BlockedCount(ev.Code)

		if e.metrics != nil {
			e.metrics.BlockedTotal.Inc()
			e.metrics.BlockedDeltaMs.Observe(float64(deltaMs))
		}
		if e.store != nil {
			e.store.RecordBlocked(ev.Code, ev.TimestampMs, deltaMs, policyName)
		}

		e.log.Debug("press blocked",
			"key", KeyName(ev.Code),
			"delta_ms", deltaMs,
			"blocked_seen", blockedSeen)

		if e.onBlocked != nil {
			go e.onBlocked(ev.Code, deltaMs, blockedSeen)
		}

		e.maybeNotify(ev.Code, blockedSeen)
	}

	return decision
}

// pressDelta reports the time since the previous press of the key,
// independent of whether that press passed.
func (e *Engine) pressDelta(key uint16, ts int64) int64 {
	e.pressMu.Lock()
	defer e.pressMu.Unlock()

	last, ok := e.lastPressMs[key]
	e.lastPressMs[key] = ts
	if !ok {
		return 0
	}
	delta := ts - last
	if delta < 0 {
		delta = 0
	}
	return delta
}

// maybeNotify raises a desktop warning when a key crosses the
// configured blocked threshold.
func (e *Engine) maybeNotify(key uint16, blockedSeen uint64) {
	e.mu.RLock()
	cfg := e.cfg
	e.mu.RUnlock()

	if !cfg.Notify.Enabled || blockedSeen != cfg.Notify.BlockedThreshold {
		return
	}

	go func() {
		if err := e.notifier.KeyWarning(KeyName(key), blockedSeen); err != nil {
			e.log.Warn("notification failed", "error", err)
		}
	}()
}

// Pause suspends filtering; all events pass untouched.
func (e *Engine) Pause() {
	e.paused.Store(true)
	if e.metrics != nil {
		e.metrics.CapturePaused.Set(1)
	}
	e.log.Info("filtering paused")
}

// Resume re-enables filtering.
func (e *Engine) Resume() {
	e.paused.Store(false)
	if e.metrics != nil {
		e.metrics.CapturePaused.Set(0)
	}
	e.log.Info("filtering resumed")
}

// Paused reports whether filtering is suspended.
func (e *Engine) Paused() bool {
	return e.paused.Load()
}

// Running reports whether capture is active.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Reload swaps in a configuration, rebuilding the filter. Per-key
// filter state is discarded; counters persist in the stats store.
func (e *Engine) Reload(cfg *config.Config) error {
	policy, err := filter.New(filterConfig(cfg))
	if err != nil {
		return fmt.Errorf("build policy: %w", err)
	}

	e.mu.Lock()
	e.cfg = cfg
	e.policy = policy
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.ReloadsTotal.Inc()
	}
	e.log.Info("configuration reloaded", "policy", cfg.Filter.Policy)
	return nil
}

// SetPolicy switches the decision policy in place, keeping the current
// thresholds.
func (e *Engine) SetPolicy(name string) error {
	e.mu.RLock()
	cfg := e.cfg.Clone()
	e.mu.RUnlock()

	cfg.Filter.Policy = name
	return e.Reload(cfg)
}

// PolicyName returns the active policy name.
func (e *Engine) PolicyName() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.policy.Name()
}

// Config returns the active configuration.
func (e *Engine) Config() *config.Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// Snapshot summarizes the running engine for status queries.
type Snapshot struct {
	StartedAt    time.Time
	Uptime       time.Duration
	Policy       string
	Running      bool
	Paused       bool
	EventsTotal  uint64
	BlockedTotal uint64
	BlockedByKey map[uint16]uint64
}

// Stats returns a point-in-time summary.
func (e *Engine) Stats() Snapshot {
	e.mu.RLock()
	policy := e.policy
	e.mu.RUnlock()

	return Snapshot{
		StartedAt:    e.startedAt,
		Uptime:       time.Since(e.startedAt),
		Policy:       policy.Name(),
		Running:      e.running.Load(),
		Paused:       e.paused.Load(),
		EventsTotal:  e.eventsTotal.Load(),
		BlockedTotal: e.blockedTotal.Load(),
		BlockedByKey: policy.BlockedTotals(),
	}
}

// Store exposes the stats store for IPC queries; may be nil.
func (e *Engine) Store() *stats.Store {
	return e.store
}
