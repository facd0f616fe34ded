// Package config provides environment-driven configuration for the kpfed server.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Secret wraps a sensitive string to prevent accidental logging or marshalling.
type Secret string

// String implements fmt.Stringer, returning a redacted placeholder.
func (s Secret) String() string { return "[REDACTED]" }

// GoString implements fmt.GoStringer, returning a redacted placeholder.
func (s Secret) GoString() string { return "[REDACTED]" }

// MarshalText implements encoding.TextMarshaler, returning a redacted placeholder.
func (s Secret) MarshalText() ([]byte, error) { return []byte("[REDACTED]"), nil }

// Value returns the underlying secret string.
func (s Secret) Value() string { return string(s) }

// Config holds all application configuration values.
type Config struct {
	Port        string
	ListenHost  string
	LogLevel    string
	CORSOrigins []string

	// DatabaseURL enables the Postgres synonym store when set.
	DatabaseURL      Secret
	DatabaseMaxConns int32
	SynonymsFile     string

	DirectoryCacheDir        string
	DirectoryRegistryFile    string
	DirectoryMaxAge          time.Duration
	DirectoryRefreshInterval time.Duration

	TrustedProvider        string
	TrustedProviderURL     string
	Submitter              string
	DefaultProviderTimeout time.Duration
	TrustedProviderTimeout time.Duration
	WhitespaceProviders    []string

	RateLimitRPS   float64
	TraceQueueSize int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port:                  envOrDefault("PORT", "3030"),
		ListenHost:            envOrDefault("LISTEN_HOST", "127.0.0.1"),
		LogLevel:              envOrDefault("LOG_LEVEL", "info"),
		CORSOrigins:           splitList(envOrDefault("CORS_ORIGINS", "http://localhost:3000")),
		DatabaseURL:           Secret(envOrDefault("DATABASE_URL", "")),
		SynonymsFile:          envOrDefault("SYNONYMS_FILE", ""),
		DirectoryCacheDir:     envOrDefault("DIRECTORY_CACHE_DIR", "./data"),
		DirectoryRegistryFile: envOrDefault("DIRECTORY_REGISTRY_FILE", "providers.yaml"),
		TrustedProvider:       envOrDefault("TRUSTED_PROVIDER", ""),
		TrustedProviderURL:    envOrDefault("TRUSTED_PROVIDER_URL", ""),
		Submitter:             envOrDefault("SUBMITTER", "infores:kpfed"),
		WhitespaceProviders:   splitList(envOrDefault("WHITESPACE_PROVIDERS", "")),
	}

	var err error

	durations := []struct {
		key, fallback string
		dst           *time.Duration
	}{
		{"DIRECTORY_MAX_AGE", "24h", &cfg.DirectoryMaxAge},
		{"DIRECTORY_REFRESH_INTERVAL", "1h", &cfg.DirectoryRefreshInterval},
		{"DEFAULT_PROVIDER_TIMEOUT", "120s", &cfg.DefaultProviderTimeout},
		{"TRUSTED_PROVIDER_TIMEOUT", "600s", &cfg.TrustedProviderTimeout},
	}

	for _, d := range durations {
		if *d.dst, err = time.ParseDuration(envOrDefault(d.key, d.fallback)); err != nil {
			return nil, fmt.Errorf("%s must be a duration such as 90s or 2h: %w", d.key, err)
		}
	}

	if cfg.RateLimitRPS, err = strconv.ParseFloat(envOrDefault("RATE_LIMIT_RPS", "20"), 64); err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_RPS must be a number: %w", err)
	}

	maxConns, err := strconv.ParseInt(envOrDefault("DATABASE_MAX_CONNS", "8"), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("DATABASE_MAX_CONNS must be an integer: %w", err)
	}

	cfg.DatabaseMaxConns = int32(maxConns)

	if cfg.TraceQueueSize, err = strconv.Atoi(envOrDefault("TRACE_QUEUE_SIZE", "1000")); err != nil {
		return nil, fmt.Errorf("TRACE_QUEUE_SIZE must be an integer: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// Addr returns the listen address in host:port format.
func (c *Config) Addr() string {
	return c.ListenHost + ":" + c.Port
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

// splitList splits a comma-separated value, dropping blanks.
func splitList(v string) []string {
	var out []string

	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}

	return out
}
