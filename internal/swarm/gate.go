package swarm

import (
	"context"
	"sync"
	"time"
)

// Gate admits callers while in-flight work is below the AIMD limit.
type Gate struct {
	aimd     *AIMD
	mu       sync.Mutex
	inflight int
	wake     chan struct{}
}

func NewGate(aimd *AIMD) *Gate {
	return &Gate{aimd: aimd, wake: make(chan struct{})}
}

// Acquire blocks until a slot frees up or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	for {
		g.mu.Lock()
		if g.inflight < g.aimd.GetConcurrency() {
			g.inflight++
			g.mu.Unlock()
			return nil
		}
		wake := g.wake
		g.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
		}
	}
}

// Release returns a slot and reports how the call went.
func (g *Gate) Release(lat time.Duration, throttled bool) {
	g.aimd.Feedback(lat, throttled)

	g.mu.Lock()
	if g.inflight > 0 {
		g.inflight--
	}
	close(g.wake)
	g.wake = make(chan struct{})
	g.mu.Unlock()
}

func (g *Gate) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inflight
}

func (g *Gate) Limit() int { return g.aimd.GetConcurrency() }
