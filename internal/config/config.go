// Package config handles configuration loading, validation, and hot
// reload for chatterd.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Filter tunes the chatter decision engine.
	Filter FilterConfig `toml:"filter" json:"filter" yaml:"filter"`

	// Capture controls keyboard acquisition.
	Capture CaptureConfig `toml:"capture" json:"capture" yaml:"capture"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// IPC configuration for the control socket.
	IPC IPCConfig `toml:"ipc" json:"ipc" yaml:"ipc"`

	// Stats configuration for the blocked-event store.
	Stats StatsConfig `toml:"stats" json:"stats" yaml:"stats"`

	// Metrics configuration for the optional scrape endpoint.
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`

	// Notify configuration for desktop notifications.
	Notify NotifyConfig `toml:"notify" json:"notify" yaml:"notify"`
}

// FilterConfig holds the decision-engine tuning. These values are
// constructor-time: a reload builds a fresh filter rather than mutating
// a live one.
type FilterConfig struct {
	// Policy selects the decision policy: "adaptive" or "pattern".
	Policy string `toml:"policy" json:"policy" yaml:"policy"`

	// InitialThresholdMs is the strict window for a press following a
	// fresh press.
	InitialThresholdMs int64 `toml:"initial_threshold_ms" json:"initial_threshold_ms" yaml:"initial_threshold_ms"`

	// RepeatThresholdMs is the lenient window once a key is held.
	RepeatThresholdMs int64 `toml:"repeat_threshold_ms" json:"repeat_threshold_ms" yaml:"repeat_threshold_ms"`

	// TransitionDelayMs is the hold time before repeat mode engages.
	TransitionDelayMs int64 `toml:"transition_delay_ms" json:"transition_delay_ms" yaml:"transition_delay_ms"`

	// MinReleaseDurationMs enables the intentional double-tap bypass.
	// Zero disables it.
	MinReleaseDurationMs int64 `toml:"min_release_duration_ms" json:"min_release_duration_ms" yaml:"min_release_duration_ms"`
}

// CaptureConfig holds keyboard acquisition configuration.
type CaptureConfig struct {
	// Devices restricts capture to the listed event devices (Linux).
	// Empty means autodetect.
	Devices []string `toml:"devices" json:"devices" yaml:"devices"`

	// Grab takes exclusive ownership of the devices so blocked events
	// never reach the system (Linux). Without it chatterd only observes.
	Grab bool `toml:"grab" json:"grab" yaml:"grab"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log output: "stdout", "stderr", "file", or "both".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the path to the log file (when Output includes "file").
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int64 `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of rotated log files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// MaxAgeDays is the maximum age of rotated logs in days.
	MaxAgeDays int `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`

	// Compress gzips rotated logs.
	Compress bool `toml:"compress" json:"compress" yaml:"compress"`
}

// IPCConfig holds control-socket configuration.
type IPCConfig struct {
	// Enabled determines whether the IPC server runs.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// SocketPath is the Unix socket path (unused on Windows, which
	// uses a localhost TCP listener).
	SocketPath string `toml:"socket_path" json:"socket_path" yaml:"socket_path"`

	// ListenAddr is the TCP listen address used on Windows.
	ListenAddr string `toml:"listen_addr" json:"listen_addr" yaml:"listen_addr"`

	// MaxConnections is the maximum concurrent clients.
	MaxConnections int `toml:"max_connections" json:"max_connections" yaml:"max_connections"`
}

// StatsConfig holds blocked-event persistence configuration.
type StatsConfig struct {
	// Enabled determines whether stats are persisted.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// Path is the SQLite database path.
	Path string `toml:"path" json:"path" yaml:"path"`

	// FlushIntervalSec is how often buffered events are written out.
	FlushIntervalSec int `toml:"flush_interval_sec" json:"flush_interval_sec" yaml:"flush_interval_sec"`
}

// MetricsConfig holds the scrape endpoint configuration.
type MetricsConfig struct {
	// Enabled determines whether the /metrics endpoint is served.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// ListenAddr is the HTTP listen address.
	ListenAddr string `toml:"listen_addr" json:"listen_addr" yaml:"listen_addr"`
}

// NotifyConfig holds desktop-notification configuration.
type NotifyConfig struct {
	// Enabled determines whether notifications are sent (Linux only).
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// BlockedThreshold is the per-key blocked count at which chatterd
	// warns that a switch is likely failing.
	BlockedThreshold uint64 `toml:"blocked_threshold" json:"blocked_threshold" yaml:"blocked_threshold"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dir := DataDir()

	return &Config{
		Version: Version,
		Filter: FilterConfig{
			Policy:               "adaptive",
			InitialThresholdMs:   50,
			RepeatThresholdMs:    15,
			TransitionDelayMs:    200,
			MinReleaseDurationMs: 20,
		},
		Capture: CaptureConfig{
			Devices: []string{},
			Grab:    true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "file",
			FilePath:   filepath.Join(dir, "chatterd.log"),
			MaxSizeMB:  20,
			MaxBackups: 3,
			MaxAgeDays: 30,
			Compress:   true,
		},
		IPC: IPCConfig{
			Enabled:        true,
			SocketPath:     defaultSocketPath(),
			ListenAddr:     "127.0.0.1:48632",
			MaxConnections: 4,
		},
		Stats: StatsConfig{
			Enabled:          true,
			Path:             filepath.Join(dir, "stats.db"),
			FlushIntervalSec: 5,
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: "127.0.0.1:9187",
		},
		Notify: NotifyConfig{
			Enabled:          runtime.GOOS == "linux",
			BlockedThreshold: 50,
		},
	}
}

// DataDir returns the base chatterd directory, honoring the
// CHATTERD_DATA_DIR override.
func DataDir() string {
	if envDir := os.Getenv("CHATTERD_DATA_DIR"); envDir != "" {
		return envDir
	}

	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("LOCALAPPDATA")
		if appData == "" {
			appData = os.Getenv("APPDATA")
		}
		return filepath.Join(appData, "chatterd")
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "chatterd")
	default:
		if stateHome := os.Getenv("XDG_STATE_HOME"); stateHome != "" {
			return filepath.Join(stateHome, "chatterd")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "state", "chatterd")
	}
}

func defaultSocketPath() string {
	switch runtime.GOOS {
	case "linux":
		if xdgRuntime := os.Getenv("XDG_RUNTIME_DIR"); xdgRuntime != "" {
			return filepath.Join(xdgRuntime, "chatterd.sock")
		}
		return "/tmp/chatterd.sock"
	case "darwin":
		return filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "chatterd", "chatterd.sock")
	default:
		return "/tmp/chatterd.sock"
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.toml")
}

// Load reads configuration from the specified path. A missing file
// yields the defaults. TOML, JSON, and YAML are supported by extension;
// JSON files are additionally validated against the config schema.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = ConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.ApplyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	switch filepath.Ext(path) {
	case ".json":
		if err := ValidateJSONSchema(data); err != nil {
			return nil, fmt.Errorf("config schema: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	default:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	}

	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// ApplyEnvOverrides applies CHATTERD_* environment overrides.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("CHATTERD_POLICY"); v != "" {
		c.Filter.Policy = v
	}
	if v := os.Getenv("CHATTERD_INITIAL_THRESHOLD_MS"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Filter.InitialThresholdMs = ms
		}
	}
	if v := os.Getenv("CHATTERD_REPEAT_THRESHOLD_MS"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Filter.RepeatThresholdMs = ms
		}
	}
	if v := os.Getenv("CHATTERD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CHATTERD_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("CHATTERD_SOCKET_PATH"); v != "" {
		c.IPC.SocketPath = v
	}
	if v := os.Getenv("CHATTERD_STATS_PATH"); v != "" {
		c.Stats.Path = v
	}
}

// EnsureDirectories creates the directories the daemon writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Logging.FilePath),
		filepath.Dir(c.Stats.Path),
		filepath.Dir(c.IPC.SocketPath),
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Capture.Devices = append([]string{}, c.Capture.Devices...)
	return &clone
}
