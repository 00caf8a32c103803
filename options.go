package cagra

import (
	"log/slog"

	"github.com/hupe1980/cagra/resource"
)

type options struct {
	numWorkers       int
	metricsCollector MetricsCollector
	logger           *Logger
	controller       *resource.Controller
}

// Option configures Index constructor behavior.
type Option func(*options)

// WithNumWorkers configures the number of goroutines used to execute query
// batches. Non-positive values default to GOMAXPROCS.
//
// Each worker owns one search workspace (frontier, visited table, selector
// scratch), so memory scales linearly with this value.
func WithNumWorkers(numWorkers int) Option {
	return func(o *options) {
		o.numWorkers = numWorkers
	}
}

// WithResourceController configures admission control for searches:
// workspace memory budget, concurrent batch cap and snapshot IO rate.
// Pass nil to disable admission control.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.controller = rc
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &cagra.BasicMetricsCollector{}
//	idx, _ := cagra.New(dataset, graph, cagra.MetricL2, cagra.WithMetricsCollector(metrics))
//	// ... search ...
//	stats := metrics.GetStats()
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := cagra.NewJSONLogger(slog.LevelInfo)
//	idx, _ := cagra.New(dataset, graph, cagra.MetricL2, cagra.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
