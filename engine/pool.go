/*
pool.go - Bounded worker pool

PURPOSE:
  Caps how many per-user tasks run at once across the whole process. The
  pool is constructed once by its owner (cmd/server), injected into the
  Orchestrator and the tracking service, and shut down on teardown.

SEMANTICS:
  Go blocks until a slot is free, then runs fn on its own goroutine.
  Every batch sharing the pool shares its capacity.

  Shutdown stops new submissions (ErrPoolClosed) and waits for running
  tasks, bounded by the caller's context.

USAGE:
  pool := engine.NewPool(engine.DefaultPoolSize)
  defer pool.Shutdown(context.Background())

  err := pool.Go(ctx, func() { ... })
*/
package engine

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultPoolSize is the default number of concurrent tasks.
const DefaultPoolSize = 100

// Pool runs functions with bounded concurrency.
type Pool struct {
	size int
	sem  *semaphore.Weighted

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewPool creates a pool with the given capacity. size <= 0 uses DefaultPoolSize.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	return &Pool{
		size: size,
		sem:  semaphore.NewWeighted(int64(size)),
	}
}

// Size returns the pool capacity.
func (p *Pool) Size() int {
	return p.size
}

// Go waits for a free slot and runs fn on it. It returns ctx.Err() if ctx
// is done before a slot frees up, and ErrPoolClosed after Shutdown.
// fn is not run when Go returns an error.
func (p *Pool) Go(ctx context.Context, fn func()) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrPoolClosed
	}
	p.wg.Add(1)
	p.mu.RUnlock()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		p.wg.Done()
		return err
	}

	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		fn()
	}()
	return nil
}

// Shutdown rejects new work and waits for running tasks or ctx, whichever
// comes first. Safe to call more than once.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
