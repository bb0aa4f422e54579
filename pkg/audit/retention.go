package audit

import (
	"context"
	"log/slog"
	"time"
)

// RetentionWorker periodically deletes audit events past the retention window.
type RetentionWorker struct {
	store     *Store
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewRetentionWorker creates a new RetentionWorker from cfg.
func NewRetentionWorker(store *Store, cfg *Config, logger *slog.Logger) *RetentionWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	w := &RetentionWorker{
		store:    store,
		interval: cfg.RetentionInterval,
		now:      time.Now,
		logger:   logger,
	}
	if cfg.RetentionEnabled {
		w.retention = time.Duration(cfg.RetentionDays) * 24 * time.Hour
	}
	if w.interval <= 0 {
		w.interval = 24 * time.Hour
	}
	return w
}

// Run starts the retention worker. It runs until the context is cancelled.
func (w *RetentionWorker) Run(ctx context.Context) {
	if w.store == nil || w.retention <= 0 {
		w.logger.Info("audit retention worker disabled",
			"hasStore", w.store != nil,
			"retentionDays", int(w.retention.Hours()/24))
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("audit retention worker started",
		"retentionDays", int(w.retention.Hours()/24),
		"interval", w.interval.String())

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("audit retention worker stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep performs a single retention pass and returns the number deleted.
func (w *RetentionWorker) Sweep(ctx context.Context) int64 {
	cutoff := w.now().Add(-w.retention)
	deleted, err := w.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		w.logger.Error("audit retention cleanup failed", "error", err)
		return 0
	}
	if deleted > 0 {
		w.logger.Info("audit retention cleanup completed",
			"deleted", deleted,
			"cutoff", cutoff.Format(time.RFC3339))
	}
	return deleted
}
