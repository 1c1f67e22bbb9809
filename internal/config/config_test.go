package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}

	if cfg.Version != Version {
		t.Errorf("expected version %d, got %d", Version, cfg.Version)
	}
	if cfg.Filter.Policy != "adaptive" {
		t.Errorf("expected adaptive policy, got %q", cfg.Filter.Policy)
	}
	if cfg.Filter.InitialThresholdMs != 50 {
		t.Errorf("expected initial threshold 50, got %d", cfg.Filter.InitialThresholdMs)
	}
	if cfg.Filter.RepeatThresholdMs != 15 {
		t.Errorf("expected repeat threshold 15, got %d", cfg.Filter.RepeatThresholdMs)
	}
	if cfg.Filter.TransitionDelayMs != 200 {
		t.Errorf("expected transition delay 200, got %d", cfg.Filter.TransitionDelayMs)
	}
	if cfg.Filter.MinReleaseDurationMs != 20 {
		t.Errorf("expected min release duration 20, got %d", cfg.Filter.MinReleaseDurationMs)
	}
	if !cfg.Capture.Grab {
		t.Error("expected grab enabled by default")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfigPath(t *testing.T) {
	path := ConfigPath()
	if path == "" {
		t.Error("ConfigPath returned empty string")
	}
	if !strings.HasSuffix(path, "config.toml") {
		t.Errorf("expected path ending with config.toml, got %s", path)
	}
	if !strings.Contains(path, "chatterd") {
		t.Errorf("config path should contain chatterd: %s", path)
	}
}

func TestDataDirOverride(t *testing.T) {
	t.Setenv("CHATTERD_DATA_DIR", "/custom/data")
	if dir := DataDir(); dir != "/custom/data" {
		t.Errorf("expected /custom/data, got %s", dir)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Filter.Policy != "adaptive" {
		t.Errorf("expected default policy, got %q", cfg.Filter.Policy)
	}
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
version = 1

[filter]
policy = "pattern"
initial_threshold_ms = 60
repeat_threshold_ms = 10

[logging]
level = "debug"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Filter.Policy != "pattern" {
		t.Errorf("expected pattern policy, got %q", cfg.Filter.Policy)
	}
	if cfg.Filter.InitialThresholdMs != 60 {
		t.Errorf("expected initial threshold 60, got %d", cfg.Filter.InitialThresholdMs)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %q", cfg.Logging.Level)
	}
	// Unset fields keep defaults.
	if cfg.Filter.TransitionDelayMs != 200 {
		t.Errorf("expected default transition delay, got %d", cfg.Filter.TransitionDelayMs)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
version: 1
filter:
  policy: adaptive
  initial_threshold_ms: 45
capture:
  grab: false
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Filter.InitialThresholdMs != 45 {
		t.Errorf("expected initial threshold 45, got %d", cfg.Filter.InitialThresholdMs)
	}
	if cfg.Capture.Grab {
		t.Error("expected grab disabled")
	}
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
  "version": 1,
  "filter": {
    "policy": "adaptive",
    "repeat_threshold_ms": 12
  }
}`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Filter.RepeatThresholdMs != 12 {
		t.Errorf("expected repeat threshold 12, got %d", cfg.Filter.RepeatThresholdMs)
	}
}

func TestLoadJSONSchemaRejectsUnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"version": 1, "bogus_section": {}}`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected schema validation error for unknown field")
	}
}

func TestLoadJSONSchemaRejectsWrongType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"filter": {"initial_threshold_ms": "fast"}}`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected schema validation error for wrong type")
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("not [valid toml"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid TOML")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CHATTERD_POLICY", "pattern")
	t.Setenv("CHATTERD_INITIAL_THRESHOLD_MS", "75")
	t.Setenv("CHATTERD_LOG_LEVEL", "warn")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Filter.Policy != "pattern" {
		t.Errorf("expected pattern policy from env, got %q", cfg.Filter.Policy)
	}
	if cfg.Filter.InitialThresholdMs != 75 {
		t.Errorf("expected threshold 75 from env, got %d", cfg.Filter.InitialThresholdMs)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected warn level from env, got %q", cfg.Logging.Level)
	}
}

func TestEnvOverrideIgnoresBadNumber(t *testing.T) {
	t.Setenv("CHATTERD_INITIAL_THRESHOLD_MS", "not-a-number")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()
	if cfg.Filter.InitialThresholdMs != 50 {
		t.Errorf("bad env value should be ignored, got %d", cfg.Filter.InitialThresholdMs)
	}
}

func TestValidateRejectsBadPolicy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Filter.Policy = "psychic"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for unknown policy")
	}
}

func TestValidateRejectsThresholdOrdering(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Filter.RepeatThresholdMs = 100 // above initial
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for repeat > initial")
	}

	cfg = DefaultConfig()
	cfg.Filter.TransitionDelayMs = 10 // below initial
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for transition < initial")
	}
}

func TestValidateRejectsNegativeThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Filter.InitialThresholdMs = -1
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for negative threshold")
	}
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "loud"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for bad log level")
	}
}

func TestValidationErrorsAggregate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Filter.Policy = "bogus"
	cfg.Logging.Level = "loud"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	verrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(verrs) != 2 {
		t.Errorf("expected 2 errors, got %d: %v", len(verrs), verrs)
	}
}

func TestClone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Capture.Devices = []string{"/dev/input/event3"}

	clone := cfg.Clone()
	clone.Filter.Policy = "pattern"
	clone.Capture.Devices[0] = "/dev/input/event9"

	if cfg.Filter.Policy != "adaptive" {
		t.Error("clone mutation leaked into original policy")
	}
	if cfg.Capture.Devices[0] != "/dev/input/event3" {
		t.Error("clone mutation leaked into original devices")
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Logging.FilePath = filepath.Join(dir, "logs", "chatterd.log")
	cfg.Stats.Path = filepath.Join(dir, "state", "stats.db")
	cfg.IPC.SocketPath = filepath.Join(dir, "run", "chatterd.sock")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	for _, sub := range []string{"logs", "state", "run"} {
		if _, err := os.Stat(filepath.Join(dir, sub)); err != nil {
			t.Errorf("expected directory %s: %v", sub, err)
		}
	}
}

func TestLoaderLoadAndConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[filter]\npolicy = \"pattern\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(path)
	defer l.Close()

	cfg, err := l.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Filter.Policy != "pattern" {
		t.Errorf("expected pattern policy, got %q", cfg.Filter.Policy)
	}
	if l.Config() != cfg {
		t.Error("Config() should return the loaded config")
	}
}

func TestLoaderRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[filter]\npolicy = \"bogus\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(path)
	defer l.Close()

	if _, err := l.Load(); err == nil {
		t.Error("expected validation error from loader")
	}
}
