// Package pool implements the bounded worker pool that executes job and
// stream handlers on behalf of the polling loops.
package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	runtimeerrors "github.com/drblury/jetflow/internal/runtime/errors"
)

// DefaultConcurrency is used when a pool is created with a non-positive size.
const DefaultConcurrency = 1

// Pool runs posted tasks on at most Concurrency goroutines at a time. Posting
// never blocks: tasks beyond the limit wait for a free slot.
type Pool struct {
	size int64
	sem  *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc

	wg       sync.WaitGroup
	mu       sync.RWMutex
	shutdown bool

	active    atomic.Int64
	completed atomic.Int64
}

// New creates a pool that runs up to concurrency tasks in parallel.
func New(concurrency int) *Pool {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		size:   int64(concurrency),
		sem:    semaphore.NewWeighted(int64(concurrency)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Post submits task for asynchronous execution. After Shutdown it returns
// ErrRejected, which callers treat as benign.
func (p *Pool) Post(task func()) error {
	if task == nil {
		return nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.shutdown {
		return runtimeerrors.ErrRejected
	}

	p.wg.Add(1)
	go p.run(task)
	return nil
}

func (p *Pool) run(task func()) {
	defer p.wg.Done()

	if err := p.sem.Acquire(p.ctx, 1); err != nil {
		// Pool gave up waiting; the task never started.
		return
	}
	defer p.sem.Release(1)

	p.active.Add(1)
	defer p.active.Add(-1)
	defer p.completed.Add(1)

	task()
}

// Shutdown stops accepting new tasks. Tasks already posted keep running.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	p.shutdown = true
	p.mu.Unlock()
}

// IsShutdown reports whether Shutdown has been called.
func (p *Pool) IsShutdown() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.shutdown
}

// WaitForTermination blocks until every posted task has finished or timeout
// elapses. It reports whether the pool drained in time. On timeout, tasks that
// are still waiting for a slot are abandoned; running tasks are not interrupted.
// A non-positive timeout waits indefinitely.
func (p *Pool) WaitForTermination(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	if timeout <= 0 {
		<-done
		p.cancel()
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		p.cancel()
		return true
	case <-timer.C:
		p.cancel()
		return false
	}
}

// Size returns the configured concurrency.
func (p *Pool) Size() int { return int(p.size) }

// Active returns the number of tasks currently executing.
func (p *Pool) Active() int { return int(p.active.Load()) }

// Completed returns the number of tasks that have finished executing.
func (p *Pool) Completed() int64 { return p.completed.Load() }
