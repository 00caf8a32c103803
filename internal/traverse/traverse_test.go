package traverse

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/cagra/core"
	"github.com/hupe1980/cagra/distance"
	"github.com/hupe1980/cagra/internal/hashmap"
	"github.com/hupe1980/cagra/internal/topk"
	"github.com/hupe1980/cagra/internal/visited"
)

// buildTestIndex creates a random dataset and an exact kNN graph over it.
func buildTestIndex(t *testing.T, n, dim, degree int) (*core.FloatDataset, *core.Graph) {
	t.Helper()

	rng := rand.New(rand.NewSource(42))
	data := make([]float32, n*dim)
	for i := range data {
		data[i] = rng.Float32()
	}
	ds, err := core.NewFloatDataset(data, dim)
	require.NoError(t, err)

	neighbors := make([]uint32, 0, n*degree)
	for i := 0; i < n; i++ {
		type scored struct {
			id   uint32
			dist float32
		}
		all := make([]scored, 0, n-1)
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			all = append(all, scored{uint32(j), distance.SquaredL2(ds.Row(uint32(i)), ds.Row(uint32(j)))})
		}
		for a := 0; a < degree; a++ {
			best := a
			for b := a + 1; b < len(all); b++ {
				if all[b].dist < all[best].dist {
					best = b
				}
			}
			all[a], all[best] = all[best], all[a]
		}
		for a := 0; a < degree; a++ {
			neighbors = append(neighbors, all[a].id)
		}
	}
	g, err := core.NewGraph(neighbors, degree)
	require.NoError(t, err)
	return ds, g
}

func newTestState(g *core.Graph, cfg Config) *State {
	table := hashmap.New(13)
	sel := topk.NewSelector(cfg.ITopKSize + cfg.SearchWidth*g.Degree())
	return NewState(cfg, g, table, sel)
}

func defaultCfg() Config {
	return Config{
		ITopKSize:     64,
		SearchWidth:   2,
		MaxIterations: 64,
		NumSeeds:      64,
	}
}

func runQuery(t *testing.T, st *State, ds *core.FloatDataset, query []float32, seed uint64) {
	t.Helper()
	score, err := ds.Scorer(distance.MetricL2, query)
	require.NoError(t, err)
	st.Begin(score, seed, nil)
	st.Run()
}

func TestFrontierSortedAndUnique(t *testing.T) {
	ds, g := buildTestIndex(t, 300, 4, 12)
	st := newTestState(g, defaultCfg())

	runQuery(t, st, ds, ds.Row(17), 1)

	frontier := st.Frontier()
	require.NotEmpty(t, frontier)
	seen := map[uint32]bool{}
	for i, e := range frontier {
		assert.Less(t, int(e.ID), 300)
		assert.False(t, seen[e.ID], "duplicate id %d", e.ID)
		seen[e.ID] = true
		if i > 0 {
			assert.GreaterOrEqual(t, e.Distance, frontier[i-1].Distance)
		}
	}
	// Searching for a dataset row must find it first.
	assert.Equal(t, uint32(17), frontier[0].ID)
	assert.Equal(t, float32(0), frontier[0].Distance)
}

func TestDeterminism(t *testing.T) {
	ds, g := buildTestIndex(t, 200, 4, 8)
	query := []float32{0.3, 0.7, 0.1, 0.9}

	st1 := newTestState(g, defaultCfg())
	runQuery(t, st1, ds, query, 99)
	st2 := newTestState(g, defaultCfg())
	runQuery(t, st2, ds, query, 99)

	assert.Equal(t, st1.Frontier(), st2.Frontier())
	assert.Equal(t, st1.Iterations(), st2.Iterations())
}

func TestMinIterationsHonored(t *testing.T) {
	ds, g := buildTestIndex(t, 50, 4, 8)

	cfg := defaultCfg()
	cfg.ITopKSize = 32
	cfg.MinIterations = 10
	cfg.MaxIterations = 20
	st := newTestState(g, cfg)

	runQuery(t, st, ds, ds.Row(0), 1)
	assert.GreaterOrEqual(t, st.Iterations(), 10)
	assert.LessOrEqual(t, st.Iterations(), 20)
}

func TestMaxIterationsBound(t *testing.T) {
	ds, g := buildTestIndex(t, 400, 4, 8)

	cfg := defaultCfg()
	cfg.MaxIterations = 3
	st := newTestState(g, cfg)

	runQuery(t, st, ds, ds.Row(5), 7)
	assert.LessOrEqual(t, st.Iterations(), 3)
}

func TestSmallHashPeriodicReset(t *testing.T) {
	ds, g := buildTestIndex(t, 300, 4, 12)

	cfg := defaultCfg()
	cfg.SmallHashResetInterval = 2
	st := newTestState(g, cfg)

	runQuery(t, st, ds, ds.Row(8), 3)

	// Resets may cost recall but never correctness: ids stay unique.
	seen := map[uint32]bool{}
	for _, e := range st.Frontier() {
		assert.False(t, seen[e.ID], "duplicate id %d after resets", e.ID)
		seen[e.ID] = true
	}
	assert.Equal(t, uint32(8), st.Frontier()[0].ID)
}

func TestProvidedSeeds(t *testing.T) {
	ds, g := buildTestIndex(t, 100, 4, 8)

	cfg := defaultCfg()
	cfg.NumSeeds = 0 // only caller seeds
	cfg.MaxIterations = 8
	st := newTestState(g, cfg)

	score, err := ds.Scorer(distance.MetricL2, ds.Row(33))
	require.NoError(t, err)
	st.Begin(score, 5, []uint32{33, 60, 60, 2})
	st.Run()

	assert.Equal(t, uint32(33), st.Frontier()[0].ID)
}

func TestEmitPadding(t *testing.T) {
	frontier := []topk.Entry{
		{Distance: 1, ID: 10},
		{Distance: 2, ID: 20},
	}

	outIdx := make([]uint32, 4)
	outDist := make([]float32, 4)
	Emit(frontier, 4, nil, outIdx, outDist)

	assert.Equal(t, []uint32{10, 20, core.InvalidID, core.InvalidID}, outIdx)
	assert.Equal(t, float32(1), outDist[0])
	assert.Greater(t, outDist[2], float32(1e30))
}

func TestEmitFilter(t *testing.T) {
	frontier := []topk.Entry{
		{Distance: 1, ID: 10},
		{Distance: 2, ID: 20},
		{Distance: 3, ID: 30},
	}

	outIdx := make([]uint32, 2)
	outDist := make([]float32, 2)
	Emit(frontier, 2, func(id uint32) bool { return id != 20 }, outIdx, outDist)

	assert.Equal(t, []uint32{10, 30}, outIdx)
}

func TestReduceGroups(t *testing.T) {
	ds, g := buildTestIndex(t, 200, 4, 8)

	cfg := defaultCfg()
	cfg.ITopKSize = 32
	query := ds.Row(7)

	groups := make([]*State, 3)
	for i := range groups {
		groups[i] = newTestState(g, cfg)
		score, err := ds.Scorer(distance.MetricL2, query)
		require.NoError(t, err)
		groups[i].Begin(score, uint64(i+1), nil)
		groups[i].Run()
	}

	sel := topk.NewSelector(3 * cfg.ITopKSize)
	dedup := visited.New(200)
	merged := ReduceGroups(sel, dedup, groups, 16)

	require.Len(t, merged, 16)
	seen := map[uint32]bool{}
	for i, e := range merged {
		assert.False(t, seen[e.ID])
		seen[e.ID] = true
		if i > 0 {
			assert.GreaterOrEqual(t, e.Distance, merged[i-1].Distance)
		}
	}
	assert.Equal(t, uint32(7), merged[0].ID)

	// dedup set must come back clean for the next query.
	assert.False(t, dedup.Visited(7))
}
