// Package jobs runs the periodic expiry sweep that moves ACTIVE overrides
// past their effective window to EXPIRED.
package jobs

import (
	"os"
	"strconv"
	"time"
)

// SweepConfig controls the expiry sweeper.
type SweepConfig struct {
	Interval  time.Duration // How often the sweep runs. Default 60s.
	BatchSize int           // Max overrides expired per batch. Default 100.
	Enabled   bool          // Whether the sweeper runs at all. Default true.
}

// DefaultSweepConfig returns the default sweep configuration.
func DefaultSweepConfig() *SweepConfig {
	return &SweepConfig{
		Interval:  60 * time.Second,
		BatchSize: 100,
		Enabled:   true,
	}
}

// SweepConfigFromEnv loads config from environment variables.
// OVERRIDE_SWEEP_INTERVAL_SECONDS, OVERRIDE_SWEEP_BATCH_SIZE, OVERRIDE_SWEEP_ENABLED
func SweepConfigFromEnv() *SweepConfig {
	cfg := DefaultSweepConfig()

	if v := os.Getenv("OVERRIDE_SWEEP_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Interval = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("OVERRIDE_SWEEP_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BatchSize = n
		}
	}

	if v := os.Getenv("OVERRIDE_SWEEP_ENABLED"); v != "" {
		cfg.Enabled, _ = strconv.ParseBool(v)
	}

	return cfg
}
