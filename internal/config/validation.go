package config

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError describes a single invalid configuration field.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors aggregates all problems found in one pass.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

var validPolicies = map[string]bool{
	"adaptive": true,
	"pattern":  true,
}

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

var validLogFormats = map[string]bool{
	"text": true, "json": true,
}

// Validate checks the configuration for errors. All problems are
// collected so the user sees them at once.
func (c *Config) Validate() error {
	var errs ValidationErrors

	add := func(field string, value any, msg string) {
		errs = append(errs, &ValidationError{Field: field, Value: value, Message: msg})
	}

	if !validPolicies[c.Filter.Policy] {
		add("filter.policy", c.Filter.Policy, `must be "adaptive" or "pattern"`)
	}
	if c.Filter.InitialThresholdMs <= 0 {
		add("filter.initial_threshold_ms", c.Filter.InitialThresholdMs, "must be positive")
	}
	if c.Filter.RepeatThresholdMs <= 0 {
		add("filter.repeat_threshold_ms", c.Filter.RepeatThresholdMs, "must be positive")
	}
	if c.Filter.RepeatThresholdMs > c.Filter.InitialThresholdMs {
		add("filter.repeat_threshold_ms", c.Filter.RepeatThresholdMs,
			"must not exceed initial_threshold_ms; repeat mode is the lenient phase")
	}
	if c.Filter.TransitionDelayMs < c.Filter.InitialThresholdMs {
		add("filter.transition_delay_ms", c.Filter.TransitionDelayMs,
			"must be at least initial_threshold_ms")
	}
	if c.Filter.MinReleaseDurationMs < 0 {
		add("filter.min_release_duration_ms", c.Filter.MinReleaseDurationMs, "must not be negative")
	}

	if !validLogLevels[c.Logging.Level] {
		add("logging.level", c.Logging.Level, `must be "debug", "info", "warn", or "error"`)
	}
	if !validLogFormats[c.Logging.Format] {
		add("logging.format", c.Logging.Format, `must be "text" or "json"`)
	}
	if c.Logging.MaxSizeMB <= 0 {
		add("logging.max_size_mb", c.Logging.MaxSizeMB, "must be positive")
	}

	if c.IPC.Enabled && c.IPC.MaxConnections <= 0 {
		add("ipc.max_connections", c.IPC.MaxConnections, "must be positive")
	}
	if c.Stats.Enabled {
		if c.Stats.Path == "" {
			add("stats.path", c.Stats.Path, "must be set when stats are enabled")
		}
		if c.Stats.FlushIntervalSec <= 0 {
			add("stats.flush_interval_sec", c.Stats.FlushIntervalSec, "must be positive")
		}
	}
	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		add("metrics.listen_addr", c.Metrics.ListenAddr, "must be set when metrics are enabled")
	}
	if c.Notify.Enabled && c.Notify.BlockedThreshold == 0 {
		add("notify.blocked_threshold", c.Notify.BlockedThreshold, "must be positive")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ErrNoConfig is returned by helpers that require a loaded configuration.
var ErrNoConfig = errors.New("no configuration loaded")
