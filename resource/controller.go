// Package resource provides admission control for search workspaces:
// a memory budget for per-worker scratch buffers, a cap on concurrently
// executing query batches, and a byte rate limit for snapshot IO.
//
// The controller plays the role the original accelerator runtime delegates
// to its device-memory resource: plans acquire their workspace against the
// budget up front, so allocation failure surfaces at plan time, never
// mid-traversal.
package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits.
type Config struct {
	// WorkspaceLimitBytes is the hard limit for plan workspace memory.
	// If 0, no hard limit is enforced (only tracking).
	WorkspaceLimitBytes int64

	// MaxConcurrentSearches caps concurrently admitted query batches.
	// If 0, defaults to 1.
	MaxConcurrentSearches int64

	// SnapshotIOBytesPerSec is the maximum throughput for snapshot
	// save/load IO. If 0, unlimited.
	SnapshotIOBytesPerSec int64
}

// Controller manages global resources (workspace memory, concurrency, IO).
type Controller struct {
	cfg Config

	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	searchSem *semaphore.Weighted

	ioLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxConcurrentSearches <= 0 {
		cfg.MaxConcurrentSearches = 1
	}

	c := &Controller{
		cfg:       cfg,
		searchSem: semaphore.NewWeighted(cfg.MaxConcurrentSearches),
	}

	if cfg.WorkspaceLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.WorkspaceLimitBytes)
	}
	if cfg.SnapshotIOBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.SnapshotIOBytesPerSec), int(cfg.SnapshotIOBytesPerSec))
	}

	return c
}

// AcquireWorkspace reserves workspace memory. If a hard limit is configured
// and usage would exceed it, this blocks until memory is available or ctx
// is canceled.
func (c *Controller) AcquireWorkspace(ctx context.Context, bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}
	if c.memSem != nil {
		if err := c.memSem.Acquire(ctx, bytes); err != nil {
			return err
		}
	}
	c.memUsed.Add(bytes)
	return nil
}

// TryAcquireWorkspace reserves workspace memory without blocking.
// Returns false if the limit would be exceeded.
func (c *Controller) TryAcquireWorkspace(bytes int64) bool {
	if c == nil || bytes <= 0 {
		return true
	}
	if c.memSem != nil && !c.memSem.TryAcquire(bytes) {
		return false
	}
	c.memUsed.Add(bytes)
	return true
}

// ReleaseWorkspace releases reserved workspace memory.
func (c *Controller) ReleaseWorkspace(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}
	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// WorkspaceUsage returns the currently reserved workspace bytes.
func (c *Controller) WorkspaceUsage() int64 {
	return c.memUsed.Load()
}

// AcquireSearch admits one query batch, blocking while the concurrency cap
// is reached.
func (c *Controller) AcquireSearch(ctx context.Context) error {
	return c.searchSem.Acquire(ctx, 1)
}

// TryAcquireSearch admits one query batch without blocking.
func (c *Controller) TryAcquireSearch() bool {
	return c.searchSem.TryAcquire(1)
}

// ReleaseSearch releases one admitted query batch.
func (c *Controller) ReleaseSearch() {
	c.searchSem.Release(1)
}

// AcquireIO waits until the snapshot IO limit allows the given byte count.
// Requests larger than the limiter burst are acquired in chunks.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil || bytes <= 0 {
		return nil
	}

	burst := c.ioLimiter.Burst()

	for bytes > 0 {
		n := bytes
		if n > burst {
			n = burst
		}

		if err := c.ioLimiter.WaitN(ctx, n); err != nil {
			return err
		}

		bytes -= n
	}

	return nil
}
