package cagra

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/cagra/core"
	"github.com/hupe1980/cagra/distance"
	"github.com/hupe1980/cagra/internal/worker"
)

// Re-exported metric constants so callers rarely need the distance package.
const (
	MetricL2           = distance.MetricL2
	MetricInnerProduct = distance.MetricInnerProduct
)

// Index is a searchable dataset/graph pair. It is immutable after
// construction and safe for concurrent searches.
type Index struct {
	dataset core.Dataset
	graph   *core.Graph
	metric  distance.Metric

	opts options
	pool *worker.Pool

	// Per-worker workspaces, keyed by the resolved plan shape. Rebuilt
	// lazily when the shape changes.
	wsMu     sync.Mutex
	wsPlan   *Plan
	wsByslot []*workspace

	closed atomic.Bool
}

// New creates an Index over dataset and graph. The graph must have exactly
// one row of neighbor ids per dataset row.
func New(dataset core.Dataset, graph *core.Graph, metric distance.Metric, optFns ...Option) (*Index, error) {
	if dataset == nil {
		return nil, fmt.Errorf("cagra: dataset is nil")
	}
	if graph == nil {
		return nil, fmt.Errorf("cagra: graph is nil")
	}
	if dataset.Len() != graph.Len() {
		return nil, fmt.Errorf("cagra: dataset rows %d != graph rows %d", dataset.Len(), graph.Len())
	}
	if _, err := distance.Provider(metric); err != nil {
		return nil, err
	}

	o := applyOptions(optFns)

	return &Index{
		dataset: dataset,
		graph:   graph,
		metric:  metric,
		opts:    o,
		pool:    worker.New(o.numWorkers),
	}, nil
}

// Len returns the number of indexed vectors.
func (idx *Index) Len() int { return idx.dataset.Len() }

// Dim returns the vector dimension.
func (idx *Index) Dim() int { return idx.dataset.Dim() }

// Degree returns the graph out-degree.
func (idx *Index) Degree() int { return idx.graph.Degree() }

// Metric returns the index distance metric.
func (idx *Index) Metric() distance.Metric { return idx.metric }

// Dataset returns the underlying dataset view.
func (idx *Index) Dataset() core.Dataset { return idx.dataset }

// Graph returns the underlying graph view.
func (idx *Index) Graph() *core.Graph { return idx.graph }

// Close releases the worker pool. Searches after Close return
// ErrIndexClosed. Idempotent.
func (idx *Index) Close() error {
	if !idx.closed.CompareAndSwap(false, true) {
		return nil
	}
	idx.pool.Close()
	return nil
}

// workspaces returns one workspace per worker slot for the given plan,
// rebuilding the set when the plan shape changed since the last search.
func (idx *Index) workspaces(p *Plan) []*workspace {
	idx.wsMu.Lock()
	defer idx.wsMu.Unlock()

	if idx.wsPlan != nil && samePlanShape(idx.wsPlan, p) {
		return idx.wsByslot
	}

	ws := make([]*workspace, idx.pool.NumWorkers())
	for i := range ws {
		ws[i] = p.newWorkspace(idx.graph)
	}
	idx.wsPlan = p
	idx.wsByslot = ws
	return ws
}

// samePlanShape reports whether two plans size identical workspaces.
func samePlanShape(a, b *Plan) bool {
	return a.ITopKSize == b.ITopKSize &&
		a.SearchWidth == b.SearchWidth &&
		a.MinIterations == b.MinIterations &&
		a.MaxIterations == b.MaxIterations &&
		a.NumSeeds == b.NumSeeds &&
		a.NumGroupsPerQuery == b.NumGroupsPerQuery &&
		a.HashBitLen == b.HashBitLen &&
		a.SmallHashResetInterval == b.SmallHashResetInterval &&
		a.degree == b.degree
}
