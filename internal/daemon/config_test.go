package daemon

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("EDGEORCHESTRA_HOME", t.TempDir())
	cfg := DefaultConfig()

	if cfg.API.Port != 8000 {
		t.Errorf("API.Port = %d, want 8000", cfg.API.Port)
	}
	if cfg.RPC.Port != 8001 {
		t.Errorf("RPC.Port = %d, want 8001", cfg.RPC.Port)
	}
	if cfg.Heartbeat.IntervalSeconds != 30 || cfg.Heartbeat.TimeoutMultiplier != 3 {
		t.Errorf("heartbeat = %+v", cfg.Heartbeat)
	}
	if cfg.Training.RoundTimeoutSeconds != 180 {
		t.Errorf("RoundTimeoutSeconds = %d, want 180", cfg.Training.RoundTimeoutSeconds)
	}
	if cfg.Cache.URL != "" {
		t.Errorf("Cache.URL = %q, want empty default", cfg.Cache.URL)
	}
}

func TestLoadConfigNoFile(t *testing.T) {
	t.Setenv("EDGEORCHESTRA_HOME", t.TempDir())

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.API.Port != 8000 {
		t.Errorf("missing file should yield defaults, got port %d", cfg.API.Port)
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	t.Setenv("EDGEORCHESTRA_HOME", t.TempDir())

	cfg := DefaultConfig()
	cfg.API.Port = 9000
	cfg.API.APIKey = "secret"
	cfg.Cache.URL = "redis://localhost:6379/0"
	cfg.Logging.Format = "json"

	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig() error: %v", err)
	}
	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}

	if loaded.API.Port != 9000 || loaded.API.APIKey != "secret" {
		t.Errorf("api = %+v", loaded.API)
	}
	if loaded.Cache.URL != "redis://localhost:6379/0" {
		t.Errorf("Cache.URL = %q", loaded.Cache.URL)
	}
	if loaded.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q", loaded.Logging.Format)
	}
}

func TestLoadConfigPartialFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("EDGEORCHESTRA_HOME", home)

	raw := "[api]\nport = 9100\n"
	if err := os.WriteFile(filepath.Join(home, "config.toml"), []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.API.Port != 9100 {
		t.Errorf("API.Port = %d, want 9100", cfg.API.Port)
	}
	// Unlisted sections keep their defaults.
	if cfg.RPC.Port != 8001 {
		t.Errorf("RPC.Port = %d, want default 8001", cfg.RPC.Port)
	}
}

func TestLoadConfigMalformed(t *testing.T) {
	home := t.TempDir()
	t.Setenv("EDGEORCHESTRA_HOME", home)
	os.WriteFile(filepath.Join(home, "config.toml"), []byte("not [valid toml"), 0o600)

	if _, err := LoadConfig(); err == nil {
		t.Error("LoadConfig() should fail on malformed toml")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("EDGEORCHESTRA_HOME", t.TempDir())
	t.Setenv("EO_API_PORT", "9200")
	t.Setenv("EO_API_KEY", "env-key")
	t.Setenv("EO_CACHE_URL", "redis://cache:6379")
	t.Setenv("EO_LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.API.Port != 9200 || cfg.API.APIKey != "env-key" {
		t.Errorf("api = %+v", cfg.API)
	}
	if cfg.Cache.URL != "redis://cache:6379" {
		t.Errorf("Cache.URL = %q", cfg.Cache.URL)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestEnvOverrideIgnoresBadPort(t *testing.T) {
	t.Setenv("EDGEORCHESTRA_HOME", t.TempDir())
	t.Setenv("EO_API_PORT", "not-a-number")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.API.Port != 8000 {
		t.Errorf("API.Port = %d, bad override should be ignored", cfg.API.Port)
	}
}

func TestHome(t *testing.T) {
	t.Setenv("EDGEORCHESTRA_HOME", "/tmp/eo-test-home")
	if Home() != "/tmp/eo-test-home" {
		t.Errorf("Home() = %q", Home())
	}
}
