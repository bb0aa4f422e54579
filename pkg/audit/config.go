package audit

import (
	"os"
	"strconv"
	"time"
)

// Config controls audit retention.
type Config struct {
	RetentionDays     int           // 0 keeps events forever
	RetentionInterval time.Duration // how often the retention worker runs
	RetentionEnabled  bool
}

// DefaultConfig returns the default configuration. Override decisions are
// kept for two years.
func DefaultConfig() *Config {
	return &Config{
		RetentionDays:     730,
		RetentionInterval: 24 * time.Hour,
		RetentionEnabled:  true,
	}
}

// ConfigFromEnv loads config from environment variables.
// OVERRIDE_AUDIT_RETENTION_DAYS, OVERRIDE_AUDIT_RETENTION_ENABLED
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()

	if v := os.Getenv("OVERRIDE_AUDIT_RETENTION_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days >= 0 {
			cfg.RetentionDays = days
		}
	}

	if v := os.Getenv("OVERRIDE_AUDIT_RETENTION_ENABLED"); v != "" {
		cfg.RetentionEnabled, _ = strconv.ParseBool(v)
	}

	return cfg
}
