package ha

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func fastConfig(identity string) *Config {
	return &Config{
		Enabled:        true,
		LeaseName:      "override-server-leader",
		LeaseNamespace: "default",
		LeaseDuration:  time.Second,
		RenewDeadline:  500 * time.Millisecond,
		RetryPeriod:    100 * time.Millisecond,
		Identity:       identity,
	}
}

func TestElector_DisabledRunsImmediately(t *testing.T) {
	e := NewElector(&Config{Enabled: false}, nil, nil)
	assert.False(t, e.IsLeader())

	ctx, cancel := context.WithCancel(context.Background())
	var sawLeader bool
	err := e.Run(ctx, func(ctx context.Context) {
		sawLeader = e.IsLeader()
		cancel()
		<-ctx.Done()
	})
	require.NoError(t, err)
	assert.True(t, sawLeader)
	assert.False(t, e.IsLeader())
}

func TestElector_EnabledWithoutClient(t *testing.T) {
	err := NewElector(fastConfig("a"), nil, nil).Run(context.Background(), func(context.Context) {})
	assert.ErrorContains(t, err, "kubernetes client")
}

func TestElector_InvalidTimings(t *testing.T) {
	cfg := fastConfig("a")
	cfg.RenewDeadline = 2 * time.Second
	err := NewElector(cfg, fake.NewSimpleClientset(), nil).Run(context.Background(), func(context.Context) {})
	assert.ErrorContains(t, err, "configure leader election")
}

func TestElector_OnlyOneReplicaLeads(t *testing.T) {
	client := fake.NewSimpleClientset()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var running atomic.Int32
	loop := func(ctx context.Context) {
		running.Add(1)
		defer running.Add(-1)
		<-ctx.Done()
	}

	a := NewElector(fastConfig("replica-a"), client, nil)
	b := NewElector(fastConfig("replica-b"), client, nil)
	done := make(chan struct{}, 2)
	for _, e := range []*Elector{a, b} {
		go func() {
			_ = e.Run(ctx, loop)
			done <- struct{}{}
		}()
	}

	require.Eventually(t, func() bool { return a.IsLeader() || b.IsLeader() }, 5*time.Second, 20*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.NotEqual(t, a.IsLeader(), b.IsLeader(), "exactly one replica leads")
	assert.Equal(t, int32(1), running.Load())

	lease, err := client.CoordinationV1().Leases("default").Get(ctx, "override-server-leader", metav1.GetOptions{})
	require.NoError(t, err)
	require.NotNil(t, lease.Spec.HolderIdentity)
	leader := "replica-b"
	if a.IsLeader() {
		leader = "replica-a"
	}
	assert.Equal(t, leader, *lease.Spec.HolderIdentity)

	cancel()
	for range 2 {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("elector did not stop")
		}
	}
	assert.False(t, a.IsLeader())
	assert.False(t, b.IsLeader())
}
