package daemon

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "127.0.0.1")
	}
	if cfg.API.Port != 8090 {
		t.Errorf("API.Port = %d, want %d", cfg.API.Port, 8090)
	}
	if cfg.Generation.Model != "qwen-plus" {
		t.Errorf("Generation.Model = %q, want %q", cfg.Generation.Model, "qwen-plus")
	}
	if cfg.Generation.Temperature != 0.8 {
		t.Errorf("Generation.Temperature = %v, want 0.8", cfg.Generation.Temperature)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled should be true by default")
	}
	if cfg.ListenAddr() != "127.0.0.1:8090" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr())
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"3m", 3 * time.Minute},
		{"90s", 90 * time.Second},
		{"", time.Hour},       // Default
		{"bogus", time.Hour},  // Unparseable
		{"-5m", time.Hour},    // Negative
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseDuration(tt.input, time.Hour)
			if got != tt.want {
				t.Errorf("parseDuration(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestConfig_DurationAccessors(t *testing.T) {
	cfg := DefaultConfig()

	if got := cfg.GenerationTimeout(); got != 3*time.Minute {
		t.Errorf("GenerationTimeout = %v, want 3m", got)
	}
	if got := cfg.TokenTTL(); got != 24*time.Hour {
		t.Errorf("TokenTTL = %v, want 24h", got)
	}
}
