// Package daemon manages the EdgeOrchestra server lifecycle and
// configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Config holds all server configuration.
type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	Cache     CacheConfig     `toml:"cache"`
	API       APIConfig       `toml:"api"`
	RPC       RPCConfig       `toml:"rpc"`
	Heartbeat HeartbeatConfig `toml:"heartbeat"`
	Training  TrainingConfig  `toml:"training"`
	TLS       TLSConfig       `toml:"tls"`
	Logging   LoggingConfig   `toml:"logging"`
}

// DatabaseConfig locates the sqlite state store.
type DatabaseConfig struct {
	Dir string `toml:"dir"`
}

// CacheConfig selects the blob store backend. An empty URL falls back to
// the in-process store; anything else must be a redis:// URL.
type CacheConfig struct {
	URL string `toml:"url"`
}

// APIConfig controls the operator HTTP API server.
type APIConfig struct {
	Host   string `toml:"host"`
	Port   int    `toml:"port"`
	APIKey string `toml:"api_key"`
}

// RPCConfig controls the device-facing RPC server.
type RPCConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// HeartbeatConfig controls device liveness tracking. A device is marked
// offline after interval*multiplier seconds of silence.
type HeartbeatConfig struct {
	IntervalSeconds   int `toml:"interval_seconds"`
	TimeoutMultiplier int `toml:"timeout_multiplier"`
}

// TrainingConfig controls the round coordinator.
type TrainingConfig struct {
	RoundTimeoutSeconds int    `toml:"round_timeout_seconds"`
	DataDir             string `toml:"data_dir"`
}

// TLSConfig enables TLS on both listeners.
type TLSConfig struct {
	Enabled  bool   `toml:"enabled"`
	CertFile string `toml:"cert_file"`
	KeyFile  string `toml:"key_file"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	home := Home()
	return Config{
		Database: DatabaseConfig{
			Dir: home,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8000,
		},
		RPC: RPCConfig{
			Host: "0.0.0.0",
			Port: 8001,
		},
		Heartbeat: HeartbeatConfig{
			IntervalSeconds:   30,
			TimeoutMultiplier: 3,
		},
		Training: TrainingConfig{
			RoundTimeoutSeconds: 180,
			DataDir:             filepath.Join(home, "data"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig reads config from <home>/config.toml, falling back to
// defaults, then applies EO_* environment overrides.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(Home(), "config.toml")

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// SaveConfig writes the config to <home>/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(Home(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// applyEnv lets deployments override file settings without editing it.
func applyEnv(cfg *Config) {
	if v := os.Getenv("EO_CACHE_URL"); v != "" {
		cfg.Cache.URL = v
	}
	if v := os.Getenv("EO_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("EO_API_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = p
		}
	}
	if v := os.Getenv("EO_API_KEY"); v != "" {
		cfg.API.APIKey = v
	}
	if v := os.Getenv("EO_RPC_HOST"); v != "" {
		cfg.RPC.Host = v
	}
	if v := os.Getenv("EO_RPC_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.RPC.Port = p
		}
	}
	if v := os.Getenv("EO_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("EO_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

// Home returns the EdgeOrchestra data directory.
func Home() string {
	if env := os.Getenv("EDGEORCHESTRA_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".edgeorchestra")
}
