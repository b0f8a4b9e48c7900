package swarm

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolBoundsConcurrency(t *testing.T) {
	p := NewPool(3)

	var running, peak atomic.Int64
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) {
			defer wg.Done()
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
		}))
	}
	wg.Wait()
	p.Stop()

	assert.LessOrEqual(t, peak.Load(), int64(3))
	assert.Equal(t, int64(20), p.GetStats().TasksCompleted)
}

func TestPoolSubmitHonoursContext(t *testing.T) {
	p := NewPool(1)
	defer p.Stop()

	release := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func(context.Context) { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Submit(ctx, func(context.Context) {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}

func TestGateLimitsInFlight(t *testing.T) {
	g := NewGate(NewAIMD(2, 1, 2))
	ctx := context.Background()

	require.NoError(t, g.Acquire(ctx))
	require.NoError(t, g.Acquire(ctx))
	assert.Equal(t, 2, g.InFlight())

	blocked, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, g.Acquire(blocked), context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() { done <- g.Acquire(ctx) }()
	g.Release(time.Millisecond, false)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by Release")
	}
	assert.Equal(t, 2, g.InFlight())
}

func TestGateShrinksOnThrottle(t *testing.T) {
	a := NewAIMD(8, 1, 8)
	a.lastChange = time.Time{}
	g := NewGate(a)

	require.NoError(t, g.Acquire(context.Background()))
	g.Release(time.Millisecond, true)
	assert.Equal(t, 4, g.Limit())
}
