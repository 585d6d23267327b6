package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Provider != ProviderOpenAI {
		t.Errorf("Provider = %q, want %q", cfg.Provider, ProviderOpenAI)
	}
	if cfg.Endpoint != "http://localhost:1234/v1" {
		t.Errorf("Endpoint = %q", cfg.Endpoint)
	}
	if cfg.Workers != 4 || cfg.ModelConcurrency != 2 {
		t.Errorf("Workers = %d, ModelConcurrency = %d", cfg.Workers, cfg.ModelConcurrency)
	}
	if cfg.CharThreshold != 1000 {
		t.Errorf("CharThreshold = %d", cfg.CharThreshold)
	}
	if cfg.DateConfidenceThreshold != 0.9 {
		t.Errorf("DateConfidenceThreshold = %v", cfg.DateConfidenceThreshold)
	}
	if len(cfg.IgnoreDirs) != 3 || cfg.IgnoreDirs[0] != ".obsidian" {
		t.Errorf("IgnoreDirs = %v", cfg.IgnoreDirs)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("VAULTTAG_PROVIDER", "ollama")
	t.Setenv("VAULTTAG_WORKERS", "8")
	t.Setenv("VAULTTAG_REQUEST_TIMEOUT", "90s")
	t.Setenv("VAULTTAG_IGNORE_DIRS", " .git , archive ,")
	t.Setenv("VAULTTAG_LOG_LEVEL", "debug")
	t.Setenv("VAULTTAG_MAX_RETRIES", "not-a-number")

	cfg := Load()

	if cfg.Provider != ProviderOllama {
		t.Errorf("Provider = %q", cfg.Provider)
	}
	if cfg.Workers != 8 {
		t.Errorf("Workers = %d", cfg.Workers)
	}
	if cfg.RequestTimeout != 90*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.RequestTimeout)
	}
	if len(cfg.IgnoreDirs) != 2 || cfg.IgnoreDirs[1] != "archive" {
		t.Errorf("IgnoreDirs = %v", cfg.IgnoreDirs)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
	if cfg.MaxRetries != 2 {
		t.Errorf("MaxRetries = %d, want default on unparseable value", cfg.MaxRetries)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults pass", func(c *Config) {}, false},
		{"unknown provider", func(c *Config) { c.Provider = "bedrock" }, true},
		{"missing model", func(c *Config) { c.Model = "" }, true},
		{"zero workers", func(c *Config) { c.Workers = 0 }, true},
		{"zero model concurrency", func(c *Config) { c.ModelConcurrency = 0 }, true},
		{"negative threshold", func(c *Config) { c.CharThreshold = -1 }, true},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }, true},
		{"confidence above one", func(c *Config) { c.DateConfidenceThreshold = 1.5 }, true},
		{"zero threshold allowed", func(c *Config) { c.CharThreshold = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
