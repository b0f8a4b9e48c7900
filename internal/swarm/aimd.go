package swarm

import (
	"sync"
	"time"
)

// AIMD tracks a concurrency limit that grows additively on healthy latency
// and halves on throttling.
type AIMD struct {
	mu          sync.Mutex
	concurrency int
	minWorkers  int
	maxWorkers  int
	step        int
	healthy     time.Duration
	dampening   time.Duration
	lastChange  time.Time
	now         func() time.Time
}

func NewAIMD(start, min, max int) *AIMD {
	if min < 1 {
		min = 1
	}
	if max < min {
		max = min
	}
	start = clamp(start, min, max)
	return &AIMD{
		concurrency: start,
		minWorkers:  min,
		maxWorkers:  max,
		step:        5,
		healthy:     100 * time.Millisecond,
		dampening:   100 * time.Millisecond,
		lastChange:  time.Now(),
		now:         time.Now,
	}
}

func (a *AIMD) GetConcurrency() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.concurrency
}

func (a *AIMD) Feedback(lat time.Duration, throttled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	// dampen oscillation
	if now.Sub(a.lastChange) < a.dampening {
		return
	}

	if throttled {
		a.concurrency = clamp(a.concurrency/2, a.minWorkers, a.maxWorkers)
		a.lastChange = now
		return
	}

	// scale up if latency is healthy
	if lat < a.healthy {
		a.concurrency = clamp(a.concurrency+a.step, a.minWorkers, a.maxWorkers)
		a.lastChange = now
	}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
