package cagra

import (
	"context"
	"math/rand"
	"path/filepath"
	"sort"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/cagra/core"
	"github.com/hupe1980/cagra/distance"
)

// buildTestIndex creates an index over uniform random vectors with an exact
// k-nearest-neighbor graph, so traversal quality depends only on the search
// configuration.
func buildTestIndex(t *testing.T, n, dim, degree int, optFns ...Option) (*Index, *core.FloatDataset) {
	t.Helper()

	rng := rand.New(rand.NewSource(42))
	data := make([]float32, n*dim)
	for i := range data {
		data[i] = rng.Float32()
	}
	dataset, err := core.NewFloatDataset(data, dim)
	require.NoError(t, err)

	neighbors := make([]uint32, n*degree)
	ids := make([]uint32, n)
	for i := range ids {
		ids[i] = uint32(i)
	}
	for row := 0; row < n; row++ {
		scorer, err := dataset.Scorer(distance.MetricL2, dataset.Row(uint32(row)))
		require.NoError(t, err)

		cand := make([]uint32, n)
		copy(cand, ids)
		sort.Slice(cand, func(a, b int) bool {
			da, db := scorer(cand[a]), scorer(cand[b])
			if da != db {
				return da < db
			}
			return cand[a] < cand[b]
		})

		// Skip self at rank 0.
		copy(neighbors[row*degree:(row+1)*degree], cand[1:degree+1])
	}
	graph, err := core.NewGraph(neighbors, degree)
	require.NoError(t, err)

	idx, err := New(dataset, graph, MetricL2, optFns...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	return idx, dataset
}

func exactNeighbors(t *testing.T, dataset *core.FloatDataset, query []float32, k int) []uint32 {
	t.Helper()

	scorer, err := dataset.Scorer(distance.MetricL2, query)
	require.NoError(t, err)

	ids := make([]uint32, dataset.Len())
	for i := range ids {
		ids[i] = uint32(i)
	}
	sort.Slice(ids, func(a, b int) bool {
		da, db := scorer(ids[a]), scorer(ids[b])
		if da != db {
			return da < db
		}
		return ids[a] < ids[b]
	})
	return ids[:k]
}

func randomQueries(n, dim int, seed int64) [][]float32 {
	rng := rand.New(rand.NewSource(seed))
	queries := make([][]float32, n)
	for i := range queries {
		q := make([]float32, dim)
		for j := range q {
			q[j] = rng.Float32()
		}
		queries[i] = q
	}
	return queries
}

func TestNewValidation(t *testing.T) {
	data := make([]float32, 10*4)
	dataset, err := core.NewFloatDataset(data, 4)
	require.NoError(t, err)
	graph, err := core.NewGraph(make([]uint32, 10*2), 2)
	require.NoError(t, err)

	_, err = New(nil, graph, MetricL2)
	assert.Error(t, err)

	_, err = New(dataset, nil, MetricL2)
	assert.Error(t, err)

	smallGraph, err := core.NewGraph(make([]uint32, 5*2), 2)
	require.NoError(t, err)
	_, err = New(dataset, smallGraph, MetricL2)
	assert.Error(t, err)

	_, err = New(dataset, graph, distance.Metric(99))
	assert.Error(t, err)

	idx, err := New(dataset, graph, MetricL2)
	require.NoError(t, err)
	assert.Equal(t, 10, idx.Len())
	assert.Equal(t, 4, idx.Dim())
	assert.Equal(t, 2, idx.Degree())
	assert.Equal(t, MetricL2, idx.Metric())
	require.NoError(t, idx.Close())
}

func TestSearchRecall(t *testing.T) {
	idx, dataset := buildTestIndex(t, 1000, 8, 32)
	ctx := context.Background()

	queries := randomQueries(50, 8, 7)
	results, err := idx.Search(ctx, queries, 16)
	require.NoError(t, err)
	require.Len(t, results, 50)

	hits, wanted := 0, 0
	for qi, res := range results {
		require.Len(t, res.Indices, 16)
		require.Len(t, res.Distances, 16)
		assert.Positive(t, res.Iterations)

		// Distances ascending, ids valid.
		for i := 0; i < 16; i++ {
			require.NotEqual(t, core.InvalidID, res.Indices[i])
			if i > 0 {
				assert.LessOrEqual(t, res.Distances[i-1], res.Distances[i])
			}
		}

		truth := make(map[uint32]bool)
		for _, id := range exactNeighbors(t, dataset, queries[qi], 16) {
			truth[id] = true
		}
		for _, id := range res.Indices {
			if truth[id] {
				hits++
			}
		}
		wanted += 16
	}

	recall := float64(hits) / float64(wanted)
	assert.GreaterOrEqual(t, recall, 0.99, "recall@16")
}

func TestSearchITopKBoundaries(t *testing.T) {
	idx, dataset := buildTestIndex(t, 500, 8, 16)
	ctx := context.Background()
	query := dataset.Row(7)

	for _, itopk := range []int{32, 512} {
		results, err := idx.Search(ctx, [][]float32{query}, 10, func(p *SearchParams) {
			p.Algo = AlgoSingleGroup
			p.ITopKSize = itopk
		})
		require.NoError(t, err, "itopk %d", itopk)
		assert.Equal(t, uint32(7), results[0].Indices[0])
	}
}

func TestSearchDeterminism(t *testing.T) {
	idx, _ := buildTestIndex(t, 500, 8, 16)
	ctx := context.Background()
	queries := randomQueries(20, 8, 3)

	a, err := idx.Search(ctx, queries, 10)
	require.NoError(t, err)
	b, err := idx.Search(ctx, queries, 10)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	// Determinism holds across worker counts too.
	single, _ := buildTestIndex(t, 500, 8, 16, WithNumWorkers(1))
	c, err := single.Search(ctx, queries, 10)
	require.NoError(t, err)
	assert.Equal(t, a, c)
}

func TestSearchMultiGroup(t *testing.T) {
	idx, dataset := buildTestIndex(t, 1000, 8, 32)
	ctx := context.Background()
	queries := randomQueries(20, 8, 11)

	results, err := idx.Search(ctx, queries, 16, func(p *SearchParams) {
		p.Algo = AlgoMultiGroup
		p.SearchWidth = 2
	})
	require.NoError(t, err)

	hits, wanted := 0, 0
	for qi, res := range results {
		for i := 1; i < len(res.Distances); i++ {
			assert.LessOrEqual(t, res.Distances[i-1], res.Distances[i])
		}

		// Reduction must never emit the same id twice.
		seen := make(map[uint32]bool)
		for _, id := range res.Indices {
			require.NotEqual(t, core.InvalidID, id)
			require.False(t, seen[id], "duplicate id %d", id)
			seen[id] = true
		}

		truth := make(map[uint32]bool)
		for _, id := range exactNeighbors(t, dataset, queries[qi], 16) {
			truth[id] = true
		}
		for _, id := range res.Indices {
			if truth[id] {
				hits++
			}
		}
		wanted += 16
	}

	recall := float64(hits) / float64(wanted)
	assert.GreaterOrEqual(t, recall, 0.95, "multi-group recall@16")
}

func TestSearchTopKOne(t *testing.T) {
	idx, dataset := buildTestIndex(t, 500, 8, 16)
	ctx := context.Background()

	// Query an indexed vector: its own id must come back at distance zero.
	query := dataset.Row(123)
	results, err := idx.Search(ctx, [][]float32{query}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint32(123), results[0].Indices[0])
	assert.Zero(t, results[0].Distances[0])
}

func TestSearchInt8Dataset(t *testing.T) {
	const n, dim, degree = 300, 8, 16
	ctx := context.Background()

	rng := rand.New(rand.NewSource(13))
	data := make([]int8, n*dim)
	for i := range data {
		data[i] = int8(rng.Intn(256) - 128)
	}
	dataset, err := core.NewInt8Dataset(data, dim)
	require.NoError(t, err)

	asFloat := func(row uint32) []float32 {
		q := make([]float32, dim)
		for j, v := range dataset.Row(row) {
			q[j] = float32(v)
		}
		return q
	}

	neighbors := make([]uint32, n*degree)
	ids := make([]uint32, n)
	for i := range ids {
		ids[i] = uint32(i)
	}
	for row := 0; row < n; row++ {
		scorer, err := dataset.Scorer(distance.MetricL2, asFloat(uint32(row)))
		require.NoError(t, err)

		cand := make([]uint32, n)
		copy(cand, ids)
		sort.Slice(cand, func(a, b int) bool {
			da, db := scorer(cand[a]), scorer(cand[b])
			if da != db {
				return da < db
			}
			return cand[a] < cand[b]
		})
		copy(neighbors[row*degree:(row+1)*degree], cand[1:degree+1])
	}
	graph, err := core.NewGraph(neighbors, degree)
	require.NoError(t, err)

	idx, err := New(dataset, graph, MetricL2)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	hits := 0
	for q := 0; q < 20; q++ {
		row := uint32(rng.Intn(n))
		query := asFloat(row)

		results, err := idx.Search(ctx, [][]float32{query}, 8)
		require.NoError(t, err)

		scorer, err := dataset.Scorer(distance.MetricL2, query)
		require.NoError(t, err)
		truth := make(map[uint32]bool)
		cand := make([]uint32, n)
		copy(cand, ids)
		sort.Slice(cand, func(a, b int) bool {
			da, db := scorer(cand[a]), scorer(cand[b])
			if da != db {
				return da < db
			}
			return cand[a] < cand[b]
		})
		for _, id := range cand[:8] {
			truth[id] = true
		}
		for _, id := range results[0].Indices {
			if truth[id] {
				hits++
			}
		}
	}
	assert.GreaterOrEqual(t, float64(hits)/160, 0.95, "int8 recall@8")

	// Round trip preserves int8 search results.
	filename := filepath.Join(t.TempDir(), "int8.cagra")
	require.NoError(t, idx.Save(ctx, filename))
	loaded, err := Load(ctx, filename)
	require.NoError(t, err)
	t.Cleanup(func() { _ = loaded.Close() })

	query := asFloat(42)
	a, err := idx.Search(ctx, [][]float32{query}, 8)
	require.NoError(t, err)
	b, err := loaded.Search(ctx, [][]float32{query}, 8)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSearchWithFilter(t *testing.T) {
	idx, _ := buildTestIndex(t, 500, 8, 16)
	ctx := context.Background()

	queries := randomQueries(10, 8, 5)
	baseline, err := idx.Search(ctx, queries, 10)
	require.NoError(t, err)

	for qi := range queries {
		deny := roaring.BitmapOf(baseline[qi].Indices[:3]...)

		filtered, err := idx.Search(ctx, queries[qi:qi+1], 10, func(p *SearchParams) {
			p.Filter = deny
		})
		require.NoError(t, err)

		for _, id := range filtered[0].Indices {
			assert.False(t, deny.Contains(id), "filtered id %d emitted", id)
		}
	}
}

func TestSearchWithSeeds(t *testing.T) {
	idx, dataset := buildTestIndex(t, 500, 8, 16)
	ctx := context.Background()

	query := dataset.Row(99)
	results, err := idx.Search(ctx, [][]float32{query}, 5, func(p *SearchParams) {
		p.Seeds = []uint32{99}
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(99), results[0].Indices[0])
}

func TestSearchSeedOutOfRange(t *testing.T) {
	idx, dataset := buildTestIndex(t, 100, 8, 16)
	ctx := context.Background()
	query := dataset.Row(0)

	_, err := idx.Search(ctx, [][]float32{query}, 5, func(p *SearchParams) {
		p.Seeds = []uint32{5000}
	})
	var paramErr *ErrInvalidParam
	require.ErrorAs(t, err, &paramErr)
	assert.Equal(t, "seeds", paramErr.Name)
	assert.Equal(t, 5000, paramErr.Value)

	// The last valid id is fine.
	_, err = idx.Search(ctx, [][]float32{query}, 5, func(p *SearchParams) {
		p.Seeds = []uint32{99}
	})
	require.NoError(t, err)
}

func TestSearchChunked(t *testing.T) {
	idx, _ := buildTestIndex(t, 500, 8, 16)
	ctx := context.Background()
	queries := randomQueries(10, 8, 9)

	whole, err := idx.Search(ctx, queries, 10)
	require.NoError(t, err)

	chunked, err := idx.Search(ctx, queries, 10, func(p *SearchParams) {
		p.MaxQueries = 3
	})
	require.NoError(t, err)
	assert.Equal(t, whole, chunked)
}

func TestSearchValidation(t *testing.T) {
	idx, _ := buildTestIndex(t, 100, 8, 16)
	ctx := context.Background()
	queries := randomQueries(1, 8, 1)

	_, err := idx.Search(ctx, queries, 0)
	assert.ErrorIs(t, err, ErrInvalidK)

	_, err = idx.Search(ctx, nil, 10)
	assert.ErrorIs(t, err, ErrEmptyQueryBatch)

	_, err = idx.Search(ctx, queries, 101)
	assert.ErrorIs(t, err, ErrInvalidK)

	_, err = idx.Search(ctx, [][]float32{{1, 2}}, 10)
	var dimErr *ErrDimensionMismatch
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 8, dimErr.Expected)
	assert.Equal(t, 2, dimErr.Actual)
}

func TestSearchAfterClose(t *testing.T) {
	idx, _ := buildTestIndex(t, 100, 8, 16)
	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close()) // idempotent

	_, err := idx.Search(context.Background(), randomQueries(1, 8, 1), 10)
	assert.ErrorIs(t, err, ErrIndexClosed)
}

func TestSearchRecordsMetrics(t *testing.T) {
	metrics := &BasicMetricsCollector{}
	idx, _ := buildTestIndex(t, 500, 8, 16, WithMetricsCollector(metrics))
	ctx := context.Background()

	_, err := idx.Search(ctx, randomQueries(5, 8, 2), 10)
	require.NoError(t, err)

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats.SearchCount)
	assert.Equal(t, int64(5), stats.SearchQueries)
	assert.Zero(t, stats.SearchErrors)
	assert.Positive(t, stats.IterationsTotal)
	assert.Positive(t, stats.IterationsMax)
}
