package cagra

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordSearch is called after each search batch.
	// queries is the batch size, k the neighbor count requested,
	// duration the total time taken, err nil if successful.
	RecordSearch(queries, k int, duration time.Duration, err error)

	// RecordIterations is called once per traversed query with the number
	// of iterations the traversal executed.
	RecordIterations(iterations int)

	// RecordSnapshot is called after each snapshot save or load.
	RecordSnapshot(bytes int64, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordSearch(int, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordIterations(int)                        {}
func (NoopMetricsCollector) RecordSnapshot(int64, time.Duration, error)  {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	SearchCount      atomic.Int64
	SearchQueries    atomic.Int64
	SearchErrors     atomic.Int64
	SearchTotalNanos atomic.Int64

	IterationsTotal atomic.Int64
	IterationsMax   atomic.Int64

	SnapshotCount  atomic.Int64
	SnapshotBytes  atomic.Int64
	SnapshotErrors atomic.Int64
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(queries, k int, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchQueries.Add(int64(queries))
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// RecordIterations implements MetricsCollector.
func (b *BasicMetricsCollector) RecordIterations(iterations int) {
	b.IterationsTotal.Add(int64(iterations))
	for {
		cur := b.IterationsMax.Load()
		if int64(iterations) <= cur || b.IterationsMax.CompareAndSwap(cur, int64(iterations)) {
			return
		}
	}
}

// RecordSnapshot implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSnapshot(bytes int64, duration time.Duration, err error) {
	b.SnapshotCount.Add(1)
	b.SnapshotBytes.Add(bytes)
	if err != nil {
		b.SnapshotErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		SearchCount:     b.SearchCount.Load(),
		SearchQueries:   b.SearchQueries.Load(),
		SearchErrors:    b.SearchErrors.Load(),
		SearchAvgNanos:  b.getAvgSearchNanos(),
		IterationsTotal: b.IterationsTotal.Load(),
		IterationsMax:   b.IterationsMax.Load(),
		SnapshotCount:   b.SnapshotCount.Load(),
		SnapshotBytes:   b.SnapshotBytes.Load(),
		SnapshotErrors:  b.SnapshotErrors.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgSearchNanos() int64 {
	count := b.SearchCount.Load()
	if count == 0 {
		return 0
	}
	return b.SearchTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	SearchCount     int64
	SearchQueries   int64
	SearchErrors    int64
	SearchAvgNanos  int64
	IterationsTotal int64
	IterationsMax   int64
	SnapshotCount   int64
	SnapshotBytes   int64
	SnapshotErrors  int64
}
