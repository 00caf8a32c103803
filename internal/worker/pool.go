// Package worker provides a fixed goroutine pool for batch query execution.
// A pool amortizes goroutine startup across query batches and pins each
// in-flight task to one worker, which lets the search driver attach one
// workspace (frontier, hash table, selector scratch) per worker.
package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrPoolClosed is returned when submitting to a closed pool.
var ErrPoolClosed = errors.New("worker: pool closed")

// task pairs a work closure with the id of the worker slot that runs it.
type task func(workerID int)

// Pool manages a fixed set of worker goroutines.
type Pool struct {
	numWorkers int
	workCh     chan task
	stopCh     chan struct{}
	wg         sync.WaitGroup
	closed     atomic.Bool
	submitMu   sync.RWMutex
}

// New creates a pool with numWorkers goroutines. Non-positive numWorkers
// defaults to GOMAXPROCS.
func New(numWorkers int) *Pool {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}

	p := &Pool{
		numWorkers: numWorkers,
		workCh:     make(chan task, numWorkers*2),
		stopCh:     make(chan struct{}),
	}

	p.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go p.worker(i)
	}
	return p
}

// NumWorkers returns the pool size.
func (p *Pool) NumWorkers() int { return p.numWorkers }

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			// Drain remaining work before exiting.
			for {
				select {
				case fn, ok := <-p.workCh:
					if !ok {
						return
					}
					fn(id)
				default:
					return
				}
			}
		case fn, ok := <-p.workCh:
			if !ok {
				return
			}
			fn(id)
		}
	}
}

// Submit enqueues fn for execution. fn receives the id of the worker slot
// it runs on, in [0, NumWorkers). Submit blocks when all workers are busy
// and the queue is full.
func (p *Pool) Submit(ctx context.Context, fn func(workerID int)) error {
	p.submitMu.RLock()
	defer p.submitMu.RUnlock()

	if p.closed.Load() {
		return ErrPoolClosed
	}

	select {
	case p.workCh <- fn:
		return nil
	case <-p.stopCh:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close shuts the pool down gracefully. Idempotent.
func (p *Pool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}

	p.submitMu.Lock()
	close(p.stopCh)
	close(p.workCh)
	p.submitMu.Unlock()

	p.wg.Wait()
}
