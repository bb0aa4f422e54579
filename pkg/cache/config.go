package cache

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// CacheConfig configures the report response cache.
type CacheConfig struct {
	// Enabled controls whether report responses are cached at all.
	Enabled bool
	// TTL bounds how stale a cached report may be. Writes through the
	// override service clear the cache sooner.
	TTL time.Duration
	// MaxSize is the maximum number of cached responses.
	MaxSize int
}

// DefaultCacheConfig returns the default cache configuration.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Enabled: true,
		TTL:     30 * time.Second,
		MaxSize: 500,
	}
}

// CacheConfigFromEnv reads cache configuration from environment variables,
// falling back to defaults for any unset variable.
//
// Environment variables:
//   - OVERRIDE_CACHE_ENABLED: "true" or "false" (default: "true")
//   - OVERRIDE_CACHE_TTL_SECONDS: entry lifetime in seconds (default: 30)
//   - OVERRIDE_CACHE_MAX_SIZE: max cached responses (default: 500)
func CacheConfigFromEnv() *CacheConfig {
	cfg := DefaultCacheConfig()

	if v := os.Getenv("OVERRIDE_CACHE_ENABLED"); v != "" {
		cfg.Enabled = strings.EqualFold(v, "true") || v == "1"
	}

	if v := os.Getenv("OVERRIDE_CACHE_TTL_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.TTL = time.Duration(secs) * time.Second
		}
	}

	if v := os.Getenv("OVERRIDE_CACHE_MAX_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxSize = n
		}
	}

	return cfg
}
