// Package cagra provides a CPU-parallel graph-based approximate
// nearest-neighbor search engine for Go.
//
// The index is a read-only pair of views: a row-major dataset (float32 or
// int8) and a fixed-degree proximity graph built externally. Search runs a
// best-first traversal per query: a bounded, sorted frontier (the internal
// top-k) is expanded parent by parent, visited nodes are deduplicated
// through an atomic hash set, and candidates fold back into the frontier
// via bounded bitonic/radix top-k selection.
//
// # Quick Start
//
//	dataset, _ := core.NewFloatDataset(vectors, dim)
//	graph, _ := core.NewGraph(neighbors, degree)
//	idx, _ := cagra.New(dataset, graph, cagra.MetricL2)
//	defer idx.Close()
//
//	results, _ := idx.Search(ctx, queries, 10)
//	for _, r := range results {
//	    fmt.Println(r.Indices, r.Distances, r.Iterations)
//	}
//
// # Tuning
//
// Search behavior is controlled through SearchParams; unset fields resolve
// automatically from the index shape:
//
//	results, _ := idx.Search(ctx, queries, 10, func(p *cagra.SearchParams) {
//	    p.ITopKSize = 128          // larger frontier, better recall
//	    p.SearchWidth = 2          // parents expanded per iteration
//	    p.Algo = cagra.AlgoMultiGroup
//	})
//
// Identical parameters and queries always produce identical results; all
// randomness flows from the deterministic perturbation mask.
//
// # Key Features
//
//   - Single-group and multi-group traversal with host-side reduction
//   - Bounded top-k selection (bitonic network / radix select)
//   - Deny-list result filtering via Roaring bitmaps
//   - IVF-flat coarse index (see ivfflat)
//   - Versioned binary snapshots with local, S3 and MinIO blob storage
//   - Workspace memory, concurrency and IO admission control
package cagra
