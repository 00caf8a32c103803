package cagra

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/cagra/internal/traverse"
)

// Result holds the answer for one query: k neighbor ids and distances
// sorted ascending, plus the executed iteration count. Slots the traversal
// could not fill carry core.InvalidID and +Inf.
type Result struct {
	Indices    []uint32
	Distances  []float32
	Iterations int
}

// Search finds the k approximate nearest neighbors for every query in the
// batch. Queries are independent and execute concurrently on the index
// worker pool; results are returned in query order.
//
// Example:
//
//	results, err := idx.Search(ctx, queries, 10, func(p *cagra.SearchParams) {
//	    p.ITopKSize = 128
//	    p.Algo = cagra.AlgoSingleGroup
//	})
func (idx *Index) Search(ctx context.Context, queries [][]float32, k int, optFns ...func(*SearchParams)) ([]Result, error) {
	start := time.Now()

	results, err := idx.search(ctx, queries, k, optFns)

	idx.opts.metricsCollector.RecordSearch(len(queries), k, time.Since(start), err)
	idx.opts.logger.LogSearch(ctx, len(queries), k, err)

	return results, err
}

func (idx *Index) search(ctx context.Context, queries [][]float32, k int, optFns []func(*SearchParams)) ([]Result, error) {
	if idx.closed.Load() {
		return nil, ErrIndexClosed
	}
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if len(queries) == 0 {
		return nil, ErrEmptyQueryBatch
	}
	// The plan never sees N, so the dataset bound is enforced here.
	if k > idx.dataset.Len() {
		return nil, fmt.Errorf("%w: k %d exceeds dataset size %d", ErrInvalidK, k, idx.dataset.Len())
	}

	params := DefaultSearchParams()
	for _, fn := range optFns {
		if fn != nil {
			fn(&params)
		}
	}

	// Seed ids index the dataset; the plan never sees N, so they are
	// bounds-checked here like k.
	for _, seed := range params.Seeds {
		if int(seed) >= idx.dataset.Len() {
			return nil, fmt.Errorf("seed id %d exceeds dataset size %d: %w",
				seed, idx.dataset.Len(), &ErrInvalidParam{Name: "seeds", Value: int(seed)})
		}
	}

	plan, err := resolvePlan(params, idx.dataset.Dim(), idx.graph.Degree(), k, idx.dataset.ElemBits())
	idx.opts.logger.LogPlan(ctx, plan, err)
	if err != nil {
		return nil, err
	}

	if rc := idx.opts.controller; rc != nil {
		if err := rc.AcquireSearch(ctx); err != nil {
			return nil, err
		}
		defer rc.ReleaseSearch()

		wsBytes := plan.WorkspaceBytes() * int64(idx.pool.NumWorkers())
		if err := rc.AcquireWorkspace(ctx, wsBytes); err != nil {
			return nil, err
		}
		defer rc.ReleaseWorkspace(wsBytes)
	}

	slots := idx.workspaces(plan)

	var filter func(uint32) bool
	if params.Filter != nil {
		deny := params.Filter
		filter = func(id uint32) bool { return !deny.Contains(id) }
	}

	results := make([]Result, len(queries))
	for i := range results {
		results[i] = Result{
			Indices:   make([]uint32, k),
			Distances: make([]float32, k),
		}
	}

	chunk := plan.MaxQueries
	if chunk <= 0 {
		chunk = len(queries)
	}

	var (
		errMu    sync.Mutex
		firstErr error
	)
	setErr := func(err error) {
		errMu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		errMu.Unlock()
	}

	for lo := 0; lo < len(queries); lo += chunk {
		hi := lo + chunk
		if hi > len(queries) {
			hi = len(queries)
		}

		var wg sync.WaitGroup
		for qi := lo; qi < hi; qi++ {
			qi := qi
			wg.Add(1)

			err := idx.pool.Submit(ctx, func(workerID int) {
				defer wg.Done()
				if err := idx.searchOne(plan, slots[workerID], queries[qi], qi, k, params.Seeds, filter, &results[qi]); err != nil {
					setErr(err)
				}
			})
			if err != nil {
				wg.Done()
				setErr(err)
				break
			}
		}
		wg.Wait()

		if firstErr != nil {
			return nil, firstErr
		}
	}

	for i := range results {
		idx.opts.metricsCollector.RecordIterations(results[i].Iterations)
	}

	return results, nil
}

// searchOne traverses one query on one worker workspace.
func (idx *Index) searchOne(plan *Plan, ws *workspace, query []float32, qi, k int, seeds []uint32, filter func(uint32) bool, out *Result) error {
	scorer, err := idx.dataset.Scorer(idx.metric, query)
	if err != nil {
		return &ErrDimensionMismatch{Expected: idx.dataset.Dim(), Actual: len(query), cause: err}
	}

	if plan.NumGroupsPerQuery == 1 {
		st := ws.states[0]
		st.Begin(scorer, seedFor(plan.RandXorMask, qi, 0), seeds)
		st.Run()
		out.Iterations = st.Iterations()
		traverse.Emit(st.Frontier(), k, filter, out.Indices, out.Distances)
		return nil
	}

	// Multi group: independent traversals under distinct perturbations,
	// then an id-deduplicated reduction over the concatenated frontiers.
	for g, st := range ws.states {
		st.Begin(scorer, seedFor(plan.RandXorMask, qi, g), seeds)
		st.Run()
		if it := st.Iterations(); it > out.Iterations {
			out.Iterations = it
		}
	}

	// With a filter in play, reduce past k so rejected ids do not force
	// padding while better candidates exist.
	reduceK := k
	if filter != nil {
		reduceK = plan.ITopKSize
	}
	reduced := traverse.ReduceGroups(ws.selector, ws.dedup, ws.states, reduceK)
	traverse.Emit(reduced, k, filter, out.Indices, out.Distances)
	return nil
}

// seedFor derives the deterministic seed for one (query, group) traversal.
// It depends only on the perturbation mask and the batch position, so a
// repeated batch explores identically regardless of worker assignment.
func seedFor(mask uint64, query, group int) uint64 {
	return (mask ^ (uint64(query)+1)*0x9e3779b97f4a7c15) + uint64(group)*0xbf58476d1ce4e5b9
}
