// Package config holds the explicit configuration value passed into the
// pipeline, replacing the ambient globals of earlier iterations.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// LLM provider identifiers.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Config holds all configuration values.
type Config struct {
	// Model endpoint
	Provider string // "openai" (LM Studio / OpenAI-compatible) or "ollama"
	Endpoint string // base URL of the endpoint
	Model    string
	APIKey   string

	RequestTimeout time.Duration
	MaxRetries     int

	// Processing
	CharThreshold    int // minimum body length before the model is consulted
	Workers          int // file worker pool size
	ModelConcurrency int // concurrent in-flight model calls
	SummaryWordLimit int
	MaxTags          int

	// Date resolution
	DateConfidenceThreshold float64

	// Scanner
	IgnoreDirs []string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		Provider: getEnv("VAULTTAG_PROVIDER", ProviderOpenAI),
		Endpoint: getEnv("VAULTTAG_ENDPOINT", "http://localhost:1234/v1"),
		Model:    getEnv("VAULTTAG_MODEL", "openai/gpt-oss-20b"),
		APIKey:   getEnv("VAULTTAG_API_KEY", "lm-studio"),

		RequestTimeout: getEnvDuration("VAULTTAG_REQUEST_TIMEOUT", 60*time.Second),
		MaxRetries:     getEnvInt("VAULTTAG_MAX_RETRIES", 2),

		CharThreshold:    getEnvInt("VAULTTAG_CHAR_THRESHOLD", 1000),
		Workers:          getEnvInt("VAULTTAG_WORKERS", 4),
		ModelConcurrency: getEnvInt("VAULTTAG_MODEL_CONCURRENCY", 2),
		SummaryWordLimit: getEnvInt("VAULTTAG_SUMMARY_WORDS", 50),
		MaxTags:          getEnvInt("VAULTTAG_MAX_TAGS", 3),

		DateConfidenceThreshold: 0.9,

		IgnoreDirs: splitList(getEnv("VAULTTAG_IGNORE_DIRS", ".obsidian,.git,.trash")),

		LogFile:  getEnv("VAULTTAG_LOG_FILE", ""),
		LogLevel: parseLogLevel(getEnv("VAULTTAG_LOG_LEVEL", "INFO")),
	}
}

// Validate checks ranges so a misconfigured run fails before dispatch.
func (c Config) Validate() error {
	if c.Provider != ProviderOpenAI && c.Provider != ProviderOllama {
		return fmt.Errorf("unsupported provider: %s", c.Provider)
	}
	if c.Endpoint == "" || c.Model == "" {
		return fmt.Errorf("endpoint and model are required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", c.Workers)
	}
	if c.ModelConcurrency < 1 {
		return fmt.Errorf("model concurrency must be >= 1, got %d", c.ModelConcurrency)
	}
	if c.CharThreshold < 0 {
		return fmt.Errorf("char threshold must be >= 0, got %d", c.CharThreshold)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must be >= 0, got %d", c.MaxRetries)
	}
	if c.DateConfidenceThreshold <= 0 || c.DateConfidenceThreshold > 1 {
		return fmt.Errorf("date confidence threshold must be in (0, 1], got %v", c.DateConfidenceThreshold)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
