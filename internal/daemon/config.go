// Package daemon wires the HeartLink service together: configuration,
// storage, the generation backend, and the HTTP API, with graceful shutdown.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// ─── Configuration ──────────────────────────────────────────────────────────

// Config is the daemon configuration, loaded from ~/.heartlink/config.toml.
type Config struct {
	API        APIConfig        `toml:"api"`
	Database   DatabaseConfig   `toml:"database"`
	Generation GenerationConfig `toml:"generation"`
	Auth       AuthConfig       `toml:"auth"`
	Metrics    MetricsConfig    `toml:"metrics"`
}

type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

type DatabaseConfig struct {
	Dir string `toml:"dir"`
}

type GenerationConfig struct {
	BaseURL     string  `toml:"base_url"`
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Temperature float64 `toml:"temperature"`
	Timeout     string  `toml:"timeout"`
}

type AuthConfig struct {
	Secret   string `toml:"secret"`
	TokenTTL string `toml:"token_ttl"`
}

type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
		},
		Database: DatabaseConfig{
			Dir: filepath.Join(HomeDir(), "data"),
		},
		Generation: GenerationConfig{
			BaseURL:     "https://dashscope.aliyuncs.com/compatible-mode/v1",
			Model:       "qwen-plus",
			Temperature: 0.8,
			Timeout:     "3m",
		},
		Auth: AuthConfig{
			Secret:   "",
			TokenTTL: "24h",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// LoadConfig reads config.toml from the HeartLink home directory, overlaying
// the defaults. A missing file is not an error; the defaults apply.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	path := filepath.Join(HomeDir(), "config.toml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Generation.APIKey == "" {
		cfg.Generation.APIKey = os.Getenv("HEARTLINK_API_KEY")
	}
	return cfg, nil
}

// HomeDir returns the HeartLink home directory, HEARTLINK_HOME or
// ~/.heartlink.
func HomeDir() string {
	if env := os.Getenv("HEARTLINK_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".heartlink")
}

// ListenAddr returns the host:port the API binds to.
func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

// GenerationTimeout parses the generation timeout, falling back to 3 minutes.
func (c Config) GenerationTimeout() time.Duration {
	return parseDuration(c.Generation.Timeout, 3*time.Minute)
}

// TokenTTL parses the credential lifetime, falling back to 24 hours.
func (c Config) TokenTTL() time.Duration {
	return parseDuration(c.Auth.TokenTTL, 24*time.Hour)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
