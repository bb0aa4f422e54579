// Package ha elects one replica of the override server to run the
// singleton background loops: the expiry sweeper and audit retention.
// Election uses a Kubernetes Lease. With election disabled the process
// treats itself as the only replica.
package ha

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config configures leader election.
type Config struct {
	// Enabled turns on Lease-based election. When false, Run executes its
	// loop immediately.
	Enabled bool

	LeaseName      string
	LeaseNamespace string

	// LeaseDuration is how long followers wait before taking over a lease
	// that has not been renewed.
	LeaseDuration time.Duration
	// RenewDeadline is how long the leader retries renewing before it
	// gives up leadership.
	RenewDeadline time.Duration
	RetryPeriod   time.Duration

	// Identity names this replica in the Lease. Defaults to POD_NAME, then
	// the hostname.
	Identity string
}

// DefaultConfig returns election settings for a single-replica deployment.
func DefaultConfig() *Config {
	ns := os.Getenv("POD_NAMESPACE")
	if ns == "" {
		ns = "volunteer-admin"
	}
	return &Config{
		Enabled:        false,
		LeaseName:      "override-server-leader",
		LeaseNamespace: ns,
		LeaseDuration:  15 * time.Second,
		RenewDeadline:  10 * time.Second,
		RetryPeriod:    2 * time.Second,
		Identity:       defaultIdentity(),
	}
}

// ConfigFromEnv overlays OVERRIDE_LEADER_* variables on DefaultConfig:
//
//   - OVERRIDE_LEADER_ELECTION_ENABLED: "true" or "1"
//   - OVERRIDE_LEADER_LEASE_NAME
//   - OVERRIDE_LEADER_LEASE_NAMESPACE
//   - OVERRIDE_LEADER_LEASE_DURATION, OVERRIDE_LEADER_RENEW_DEADLINE,
//     OVERRIDE_LEADER_RETRY_PERIOD: whole seconds
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()

	if v := os.Getenv("OVERRIDE_LEADER_ELECTION_ENABLED"); v != "" {
		cfg.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("OVERRIDE_LEADER_LEASE_NAME"); v != "" {
		cfg.LeaseName = v
	}
	if v := os.Getenv("OVERRIDE_LEADER_LEASE_NAMESPACE"); v != "" {
		cfg.LeaseNamespace = v
	}
	seconds("OVERRIDE_LEADER_LEASE_DURATION", &cfg.LeaseDuration)
	seconds("OVERRIDE_LEADER_RENEW_DEADLINE", &cfg.RenewDeadline)
	seconds("OVERRIDE_LEADER_RETRY_PERIOD", &cfg.RetryPeriod)
	return cfg
}

func seconds(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			*dst = time.Duration(secs) * time.Second
		}
	}
}

func defaultIdentity() string {
	if v := os.Getenv("POD_NAME"); v != "" {
		return v
	}
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}
