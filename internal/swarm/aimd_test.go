package swarm

import (
	"testing"
	"time"
)

func TestAIMD_Feedback(t *testing.T) {
	aimd := NewAIMD(10, 5, 20)
	clock := time.Now()
	aimd.now = func() time.Time { return clock }
	tick := func() { clock = clock.Add(110 * time.Millisecond) }

	if aimd.GetConcurrency() != 10 {
		t.Errorf("Expected initial concurrency 10, got %d", aimd.GetConcurrency())
	}

	// Additive increase
	tick()
	aimd.Feedback(50*time.Millisecond, false)
	if aimd.GetConcurrency() != 15 {
		t.Errorf("Expected concurrency 15 after success, got %d", aimd.GetConcurrency())
	}

	// Dampened: no change inside the window
	aimd.Feedback(50*time.Millisecond, false)
	if aimd.GetConcurrency() != 15 {
		t.Errorf("Expected dampened concurrency 15, got %d", aimd.GetConcurrency())
	}

	// Multiplicative decrease
	tick()
	aimd.Feedback(500*time.Millisecond, true)
	if aimd.GetConcurrency() != 7 {
		t.Errorf("Expected concurrency 7 after throttle, got %d", aimd.GetConcurrency())
	}

	// Min limit
	tick()
	aimd.Feedback(500*time.Millisecond, true)
	if aimd.GetConcurrency() != 5 {
		t.Errorf("Expected concurrency clamped to 5, got %d", aimd.GetConcurrency())
	}

	// Max limit
	for range 5 {
		tick()
		aimd.Feedback(time.Millisecond, false)
	}
	if aimd.GetConcurrency() != 20 {
		t.Errorf("Expected concurrency clamped to 20, got %d", aimd.GetConcurrency())
	}

	// Slow but not throttled holds steady
	tick()
	aimd.Feedback(time.Second, false)
	if aimd.GetConcurrency() != 20 {
		t.Errorf("Expected unchanged concurrency 20, got %d", aimd.GetConcurrency())
	}
}
