package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// maxProviderTimeout matches the cap on a caller-supplied timeout.
const maxProviderTimeout = time.Hour

func (c *Config) validate() error {
	checks := []func() error{
		c.validateNetwork,
		c.validateLogLevel,
		c.validateCORS,
		c.validateDatabase,
		c.validateDirectory,
		c.validateProviders,
		c.validateLimits,
	}

	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) validateNetwork() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil {
		return fmt.Errorf("PORT must be a valid integer: %w", err)
	}

	if port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}

	// Loopback for local runs, wildcard for containers where the network
	// boundary is enforced outside the process.
	validHosts := map[string]bool{
		"127.0.0.1": true,
		"::1":       true,
		"localhost": true,
		"0.0.0.0":   true,
		"::":        true,
	}
	if !validHosts[c.ListenHost] {
		return fmt.Errorf("LISTEN_HOST must be a loopback address or 0.0.0.0/:: for containers (got %q)", c.ListenHost)
	}

	return nil
}

func (c *Config) validateLogLevel() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}

	return nil
}

func (c *Config) validateCORS() error {
	for _, origin := range c.CORSOrigins {
		if strings.ContainsAny(origin, "*?[]") {
			return fmt.Errorf("CORS_ORIGINS must not contain wildcards or glob characters, got %q", origin)
		}

		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("CORS_ORIGINS contains invalid origin %q (must have scheme and host)", origin)
		}
	}

	return nil
}

// validateDatabase only applies when the synonym database is enabled.
func (c *Config) validateDatabase() error {
	if c.DatabaseURL.Value() == "" {
		return nil
	}

	if c.DatabaseMaxConns < 1 || c.DatabaseMaxConns > 100 {
		return fmt.Errorf("DATABASE_MAX_CONNS must be between 1 and 100")
	}

	dbURL, err := url.Parse(c.DatabaseURL.Value())
	if err != nil {
		return fmt.Errorf("DATABASE_URL is not a valid URL: %w", err)
	}

	if dbURL.Scheme != "postgres" && dbURL.Scheme != "postgresql" {
		return fmt.Errorf("DATABASE_URL scheme must be postgres:// or postgresql://")
	}

	if dbURL.Hostname() == "" {
		return fmt.Errorf("DATABASE_URL must include a host")
	}

	if !isLocalHost(dbURL.Hostname()) && dbURL.Query().Get("sslmode") == "disable" {
		return fmt.Errorf("DATABASE_URL sslmode=disable is not allowed for non-local host %q", dbURL.Hostname())
	}

	return nil
}

func (c *Config) validateDirectory() error {
	if c.DirectoryCacheDir == "" {
		return fmt.Errorf("DIRECTORY_CACHE_DIR must not be empty")
	}

	if c.DirectoryRegistryFile == "" {
		return fmt.Errorf("DIRECTORY_REGISTRY_FILE must not be empty")
	}

	if c.DirectoryMaxAge <= 0 {
		return fmt.Errorf("DIRECTORY_MAX_AGE must be positive")
	}

	if c.DirectoryRefreshInterval < 0 {
		return fmt.Errorf("DIRECTORY_REFRESH_INTERVAL must not be negative (0 disables periodic refresh)")
	}

	return nil
}

func (c *Config) validateProviders() error {
	if c.TrustedProvider != "" && !strings.HasPrefix(c.TrustedProvider, "infores:") {
		return fmt.Errorf("TRUSTED_PROVIDER must be an infores curie, got %q", c.TrustedProvider)
	}

	if c.TrustedProviderURL != "" {
		if c.TrustedProvider == "" {
			return fmt.Errorf("TRUSTED_PROVIDER_URL requires TRUSTED_PROVIDER")
		}

		u, err := url.ParseRequestURI(c.TrustedProviderURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("TRUSTED_PROVIDER_URL must be an http(s) URL, got %q", c.TrustedProviderURL)
		}
	}

	if !strings.HasPrefix(c.Submitter, "infores:") {
		return fmt.Errorf("SUBMITTER must be an infores curie, got %q", c.Submitter)
	}

	for _, p := range c.WhitespaceProviders {
		if !strings.HasPrefix(p, "infores:") {
			return fmt.Errorf("WHITESPACE_PROVIDERS entries must be infores curies, got %q", p)
		}
	}

	for name, d := range map[string]time.Duration{
		"DEFAULT_PROVIDER_TIMEOUT": c.DefaultProviderTimeout,
		"TRUSTED_PROVIDER_TIMEOUT": c.TrustedProviderTimeout,
	} {
		if d <= 0 || d > maxProviderTimeout {
			return fmt.Errorf("%s must be between 1s and %s", name, maxProviderTimeout)
		}
	}

	return nil
}

func (c *Config) validateLimits() error {
	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be positive")
	}

	if c.TraceQueueSize < 1 || c.TraceQueueSize > 100_000 {
		return fmt.Errorf("TRACE_QUEUE_SIZE must be between 1 and 100000")
	}

	return nil
}

func isLocalHost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
