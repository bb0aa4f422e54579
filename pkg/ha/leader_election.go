package ha

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"
)

// Elector runs a loop only while this replica holds the lease.
type Elector struct {
	cfg      *Config
	client   kubernetes.Interface
	logger   *slog.Logger
	isLeader atomic.Bool
}

// NewElector creates an Elector. client may be nil when election is
// disabled.
func NewElector(cfg *Config, client kubernetes.Interface, logger *slog.Logger) *Elector {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Elector{cfg: cfg, client: client, logger: logger}
}

// NewInClusterClient builds a clientset from the pod's service account.
func NewInClusterClient() (kubernetes.Interface, error) {
	restCfg, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("load in-cluster config: %w", err)
	}
	client, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("create kubernetes client: %w", err)
	}
	return client, nil
}

// IsLeader reports whether the loop is currently running on this replica.
func (e *Elector) IsLeader() bool { return e.isLeader.Load() }

// Run blocks until ctx is cancelled. While this replica leads, fn runs
// with a context that is cancelled when leadership is lost. A replica that
// loses the lease campaigns again.
func (e *Elector) Run(ctx context.Context, fn func(ctx context.Context)) error {
	if !e.cfg.Enabled {
		e.isLeader.Store(true)
		defer e.isLeader.Store(false)
		fn(ctx)
		return nil
	}
	if e.client == nil {
		return fmt.Errorf("leader election enabled without a kubernetes client")
	}

	le, err := leaderelection.NewLeaderElector(leaderelection.LeaderElectionConfig{
		Lock: &resourcelock.LeaseLock{
			LeaseMeta: metav1.ObjectMeta{
				Name:      e.cfg.LeaseName,
				Namespace: e.cfg.LeaseNamespace,
			},
			Client:     e.client.CoordinationV1(),
			LockConfig: resourcelock.ResourceLockConfig{Identity: e.cfg.Identity},
		},
		LeaseDuration:   e.cfg.LeaseDuration,
		RenewDeadline:   e.cfg.RenewDeadline,
		RetryPeriod:     e.cfg.RetryPeriod,
		ReleaseOnCancel: true,
		Name:            e.cfg.LeaseName,
		Callbacks: leaderelection.LeaderCallbacks{
			OnStartedLeading: func(ctx context.Context) {
				e.isLeader.Store(true)
				e.logger.Info("elected as leader", "identity", e.cfg.Identity)
				fn(ctx)
			},
			OnStoppedLeading: func() {
				e.isLeader.Store(false)
				e.logger.Info("lost leadership", "identity", e.cfg.Identity)
			},
			OnNewLeader: func(identity string) {
				if identity != e.cfg.Identity {
					e.logger.Info("new leader elected", "leader", identity)
				}
			},
		},
	})
	if err != nil {
		return fmt.Errorf("configure leader election: %w", err)
	}

	e.logger.Info("starting leader election",
		"identity", e.cfg.Identity,
		"lease", e.cfg.LeaseNamespace+"/"+e.cfg.LeaseName)
	for ctx.Err() == nil {
		le.Run(ctx)
	}
	return nil
}
