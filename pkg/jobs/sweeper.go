package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrSweepInProgress is returned by RunOnce while another sweep is running.
var ErrSweepInProgress = errors.New("expiry sweep already in progress")

// Expirer expires ACTIVE overrides whose effective window has ended. It is
// satisfied by *override.Service.
type Expirer interface {
	ExpireDue(ctx context.Context, limit int) (int, error)
}

// RunStatus describes one completed sweep.
type RunStatus struct {
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Expired    int       `json:"expired"`
	Batches    int       `json:"batches"`
	Error      string    `json:"error,omitempty"`
}

// Status is the sweeper state reported over HTTP.
type Status struct {
	Enabled   bool       `json:"enabled"`
	Interval  string     `json:"interval"`
	BatchSize int        `json:"batchSize"`
	Running   bool       `json:"running"`
	Runs      int        `json:"runs"`
	LastRun   *RunStatus `json:"lastRun,omitempty"`
}

// Sweeper periodically expires overrides in batches.
type Sweeper struct {
	expirer Expirer
	cfg     *SweepConfig
	logger  *slog.Logger
	now     func() time.Time

	running atomic.Bool
	mu      sync.Mutex
	runs    int
	last    *RunStatus
}

// NewSweeper creates a sweeper. A nil cfg uses DefaultSweepConfig; a
// non-positive interval or batch size takes the default value.
func NewSweeper(expirer Expirer, cfg *SweepConfig, logger *slog.Logger) *Sweeper {
	defaults := DefaultSweepConfig()
	if cfg == nil {
		cfg = defaults
	}
	c := *cfg
	if c.Interval <= 0 {
		c.Interval = defaults.Interval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{expirer: expirer, cfg: &c, logger: logger, now: time.Now}
}

// Run sweeps every cfg.Interval until ctx is cancelled. It returns
// immediately when the sweeper is disabled.
func (s *Sweeper) Run(ctx context.Context) {
	if s.expirer == nil || !s.cfg.Enabled {
		s.logger.Info("expiry sweeper disabled")
		return
	}

	s.logger.Info("expiry sweeper starting",
		"interval", s.cfg.Interval.String(),
		"batchSize", s.cfg.BatchSize)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, ErrSweepInProgress) {
				s.logger.Error("expiry sweep failed", "error", err)
			}
		}
	}
}

// RunOnce expires due overrides batch by batch until a batch comes back
// short. Overrides that fail to expire are reported in the returned error
// and retried on the next run.
func (s *Sweeper) RunOnce(ctx context.Context) (RunStatus, error) {
	if !s.running.CompareAndSwap(false, true) {
		return RunStatus{}, ErrSweepInProgress
	}
	defer s.running.Store(false)

	status := RunStatus{StartedAt: s.now().UTC()}
	var err error
	for ctx.Err() == nil {
		var n int
		n, err = s.expirer.ExpireDue(ctx, s.cfg.BatchSize)
		status.Expired += n
		status.Batches++
		if err != nil || n < s.cfg.BatchSize {
			break
		}
	}
	if err == nil {
		err = ctx.Err()
	}
	status.FinishedAt = s.now().UTC()
	if err != nil {
		status.Error = err.Error()
	}

	s.mu.Lock()
	s.runs++
	s.last = &status
	s.mu.Unlock()

	if status.Expired > 0 {
		s.logger.Info("expired overrides", "count", status.Expired, "batches", status.Batches)
	}
	return status, err
}

// Status returns the sweeper configuration and the result of the last run.
func (s *Sweeper) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Enabled:   s.cfg.Enabled,
		Interval:  s.cfg.Interval.String(),
		BatchSize: s.cfg.BatchSize,
		Running:   s.running.Load(),
		Runs:      s.runs,
	}
	if s.last != nil {
		last := *s.last
		st.LastRun = &last
	}
	return st
}
