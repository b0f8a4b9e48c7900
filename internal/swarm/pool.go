package swarm

import (
	"context"
	"sync"
	"sync/atomic"
)

// Task represents a unit of work for the pool.
type Task func(ctx context.Context)

type queued struct {
	ctx  context.Context
	task Task
}

// Pool runs submitted tasks on a fixed number of workers.
type Pool struct {
	tasks     chan queued
	wg        sync.WaitGroup
	stopOnce  sync.Once
	active    atomic.Int64
	completed atomic.Int64
	workers   int
}

// Stats holds runtime statistics for the pool.
type Stats struct {
	ActiveWorkers  int
	Workers        int
	TasksCompleted int64
}

// NewPool starts workers goroutines. Stop must be called to release them.
func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{
		tasks:   make(chan queued),
		workers: workers,
	}
	for range workers {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Submit hands t to the next free worker. It blocks while all workers are
// busy and gives up when ctx is done.
func (p *Pool) Submit(ctx context.Context, t Task) error {
	select {
	case p.tasks <- queued{ctx: ctx, task: t}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop waits for running tasks and shuts the workers down.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.tasks) })
	p.wg.Wait()
}

func (p *Pool) GetStats() Stats {
	return Stats{
		ActiveWorkers:  int(p.active.Load()),
		Workers:        p.workers,
		TasksCompleted: p.completed.Load(),
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for q := range p.tasks {
		p.active.Add(1)
		q.task(q.ctx)
		p.active.Add(-1)
		p.completed.Add(1)
	}
}
