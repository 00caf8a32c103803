// Package ivfflat implements an IVF-flat index: a k-means coarse quantizer
// partitions the dataset into inverted lists, and queries scan only the
// lists whose centroids are closest.
//
// It complements the graph index for workloads where graph construction is
// too expensive or the dataset churns too fast to maintain a graph.
package ivfflat

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/cagra/core"
	"github.com/hupe1980/cagra/distance"
	"github.com/hupe1980/cagra/internal/kmeans"
	"github.com/hupe1980/cagra/internal/queue"
)

// BuildParams control coarse quantizer training and list assignment.
// Zero values resolve to defaults.
type BuildParams struct {
	// NLists is the number of inverted lists (clusters).
	// Zero defaults to sqrt(n), clamped to [1, 1024].
	NLists int

	// MaxIterations bounds the k-means training iterations. Default 20.
	MaxIterations int

	// TrainingFraction is the fraction of rows sampled for training.
	// Default 0.5; 1 trains on the full dataset.
	TrainingFraction float64

	// Seed drives sampling and centroid initialization. Builds with the
	// same seed and dataset are identical.
	Seed int64

	// NumWorkers bounds assignment parallelism. Zero defaults to
	// GOMAXPROCS.
	NumWorkers int
}

// SearchParams control probing at query time.
type SearchParams struct {
	// NProbes is the number of inverted lists scanned per query.
	// Zero defaults to 20.
	NProbes int
}

// Result is one scored neighbor.
type Result struct {
	ID       uint32
	Distance float32
}

// Index is a built IVF-flat index. Immutable after Build; safe for
// concurrent searches.
type Index struct {
	dataset   *core.FloatDataset
	metric    distance.Metric
	nlist     int
	centroids []float32  // nlist x dim
	lists     [][]uint32 // row ids per list
}

// Build trains the coarse quantizer and assigns every row to its list.
func Build(ctx context.Context, dataset *core.FloatDataset, metric distance.Metric, optFns ...func(*BuildParams)) (*Index, error) {
	if dataset == nil || dataset.Len() == 0 {
		return nil, fmt.Errorf("ivfflat: empty dataset")
	}
	if _, err := distance.Provider(metric); err != nil {
		return nil, err
	}

	params := BuildParams{
		MaxIterations:    20,
		TrainingFraction: 0.5,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&params)
		}
	}

	n, dim := dataset.Len(), dataset.Dim()

	nlist := params.NLists
	if nlist <= 0 {
		nlist = int(math.Sqrt(float64(n)))
		if nlist < 1 {
			nlist = 1
		}
		if nlist > 1024 {
			nlist = 1024
		}
	}
	if nlist > n {
		nlist = n
	}

	rng := rand.New(rand.NewSource(params.Seed))

	trainSet := dataset.Data()
	frac := params.TrainingFraction
	if frac <= 0 || frac > 1 {
		frac = 0.5
	}
	if sample := int(float64(n) * frac); sample < n && sample >= nlist {
		perm := rng.Perm(n)[:sample]
		sort.Ints(perm)
		trainSet = make([]float32, 0, sample*dim)
		for _, row := range perm {
			trainSet = append(trainSet, dataset.Row(uint32(row))...)
		}
	}

	centroids, err := kmeans.Train(trainSet, dim, nlist, metric, params.MaxIterations, rng)
	if err != nil {
		return nil, err
	}

	assignments := make([]int, n)
	workers := params.NumWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	const shard = 1024
	for lo := 0; lo < n; lo += shard {
		lo := lo
		hi := lo + shard
		if hi > n {
			hi = n
		}
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				cluster, err := kmeans.Assign(dataset.Row(uint32(i)), centroids, dim, metric)
				if err != nil {
					return err
				}
				assignments[i] = cluster
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	lists := make([][]uint32, nlist)
	for i, cluster := range assignments {
		lists[cluster] = append(lists[cluster], uint32(i))
	}

	return &Index{
		dataset:   dataset,
		metric:    metric,
		nlist:     nlist,
		centroids: centroids,
		lists:     lists,
	}, nil
}

// Len returns the number of indexed vectors.
func (ix *Index) Len() int { return ix.dataset.Len() }

// Dim returns the vector dimension.
func (ix *Index) Dim() int { return ix.dataset.Dim() }

// NLists returns the number of inverted lists.
func (ix *Index) NLists() int { return ix.nlist }

// Metric returns the index distance metric.
func (ix *Index) Metric() distance.Metric { return ix.metric }

// Search scans the NProbes closest inverted lists and returns the k best
// rows sorted ascending by distance.
func (ix *Index) Search(ctx context.Context, query []float32, k int, optFns ...func(*SearchParams)) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, fmt.Errorf("ivfflat: k must be positive")
	}
	if len(query) != ix.dataset.Dim() {
		return nil, fmt.Errorf("ivfflat: query dimension %d does not match index dimension %d", len(query), ix.dataset.Dim())
	}

	params := SearchParams{NProbes: 20}
	for _, fn := range optFns {
		if fn != nil {
			fn(&params)
		}
	}
	nprobes := params.NProbes
	if nprobes <= 0 {
		nprobes = 20
	}

	probes, err := kmeans.Closest(query, ix.centroids, ix.dataset.Dim(), nprobes, ix.metric)
	if err != nil {
		return nil, err
	}

	scorer, err := ix.dataset.Scorer(ix.metric, query)
	if err != nil {
		return nil, err
	}

	// Bounded max-heap keeps the k best rows across all probed lists.
	heap := queue.NewMax(k)
	for _, list := range probes {
		for _, id := range ix.lists[list] {
			heap.PushBounded(queue.PriorityQueueItem{Node: id, Distance: scorer(id)}, k)
		}
	}

	results := make([]Result, heap.Len())
	for i := len(results) - 1; i >= 0; i-- {
		item, _ := heap.PopItem()
		results[i] = Result{ID: item.Node, Distance: item.Distance}
	}
	return results, nil
}
