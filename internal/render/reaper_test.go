package render

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReaper_SweepClosesExtraPages(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	pool := newTestPool(client, PoolConfig{})
	gate := NewConcurrencyGate(4)
	r := NewReaper(pool, gate, time.Minute, zap.NewNop())

	reaped := 0
	r.ObserveReaped(func(n int) { reaped += n })

	_, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	client.instanceAt(0).pageCount = 4

	r.sweep(context.Background())
	require.Equal(t, 3, reaped)
	require.Equal(t, 3, client.instanceAt(0).extraClosed)
}

func TestReaper_SkipsWhileOperationsInFlight(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	pool := newTestPool(client, PoolConfig{})
	gate := NewConcurrencyGate(4)
	r := NewReaper(pool, gate, time.Minute, zap.NewNop())

	_, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	client.instanceAt(0).pageCount = 4

	require.True(t, gate.TryAcquire())
	r.sweep(context.Background())
	require.Zero(t, client.instanceAt(0).extraClosed)
}

func TestReaper_NoInstanceNoLaunch(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	pool := newTestPool(client, PoolConfig{})
	r := NewReaper(pool, NewConcurrencyGate(1), time.Minute, zap.NewNop())

	r.sweep(context.Background())
	require.Zero(t, client.launchCount())
}

func TestReaper_RunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	pool := newTestPool(client, PoolConfig{})
	r := NewReaper(pool, NewConcurrencyGate(1), 10*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop after cancel")
	}
}
