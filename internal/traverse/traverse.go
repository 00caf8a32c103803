// Package traverse implements the best-first graph traversal at the center
// of the search engine.
//
// One State is the traversal of one query by one execution group. The
// traversal is a phased state machine - seed, select parents, expand,
// merge - with the phase boundaries exposed as methods so callers control
// scheduling: the single-group driver runs one State per query, the
// multi-group driver runs several States per query concurrently and reduces
// their frontiers afterwards.
//
// Within a State the frontier (the bounded internal top-k) stays sorted
// ascending by (distance, id) between iterations. Parent bookkeeping rides
// on the entries' Expanded flag. Candidate dedup is delegated to the
// hashmap table, which the State owns for the duration of one query.
package traverse

import (
	"math"

	"github.com/hupe1980/cagra/core"
	"github.com/hupe1980/cagra/internal/hashmap"
	"github.com/hupe1980/cagra/internal/topk"
	"github.com/hupe1980/cagra/internal/visited"
)

// Config carries the per-group execution parameters resolved by the plan.
type Config struct {
	// ITopKSize is the frontier capacity.
	ITopKSize int

	// SearchWidth is the number of parents expanded per iteration.
	SearchWidth int

	// MinIterations and MaxIterations bound the iteration count.
	MinIterations int
	MaxIterations int

	// NumSeeds is the number of random seed picks at init.
	NumSeeds int

	// SmallHashResetInterval triggers a wholesale visited-table reset every
	// that many iterations. Zero disables periodic resets (global mode).
	SmallHashResetInterval int
}

// State is the per-group traversal state machine. It is reused across
// queries; Begin rewinds it for the next one.
type State struct {
	cfg   Config
	graph *core.Graph

	score    func(uint32) float32
	table    *hashmap.Table
	selector *topk.Selector
	rng      splitmix64

	frontier   []topk.Entry
	candidates []topk.Entry
	merged     []topk.Entry

	iterations int
}

// NewState creates a State with workspace sized for cfg. The hashmap table
// and selector are owned by the caller's workspace and must be sized for
// cfg (selector pool >= ITopKSize + SearchWidth*degree).
func NewState(cfg Config, graph *core.Graph, table *hashmap.Table, selector *topk.Selector) *State {
	poolCap := cfg.ITopKSize + cfg.SearchWidth*graph.Degree()
	return &State{
		cfg:        cfg,
		graph:      graph,
		table:      table,
		selector:   selector,
		frontier:   make([]topk.Entry, 0, cfg.ITopKSize),
		candidates: make([]topk.Entry, 0, cfg.SearchWidth*graph.Degree()),
		merged:     make([]topk.Entry, 0, poolCap),
	}
}

// Begin rewinds the State for a new query and runs the seed phase: reset
// the visited table, pick seed nodes (caller-provided first, then random
// picks from the perturbed generator), score them and keep the best
// ITopKSize as the initial frontier.
func (st *State) Begin(score func(uint32) float32, seed uint64, seedIDs []uint32) {
	st.score = score
	st.rng = splitmix64{state: seed}
	st.iterations = 0
	st.table.Reset()

	n := uint64(st.graph.Len())
	pool := st.merged[:0]
	for _, id := range seedIDs {
		if st.table.ContainsOrInsert(id) {
			continue
		}
		pool = append(pool, topk.Entry{Distance: score(id), ID: id})
	}
	for i := 0; i < st.cfg.NumSeeds; i++ {
		id := uint32(st.rng.next() % n)
		if st.table.ContainsOrInsert(id) {
			continue
		}
		pool = append(pool, topk.Entry{Distance: score(id), ID: id})
	}
	st.merged = pool

	st.frontier = append(st.frontier[:0], st.selector.SelectK(pool, st.cfg.ITopKSize)...)
}

// SelectParents marks up to SearchWidth best unexpanded frontier entries as
// this iteration's parents and returns their frontier indices. An empty
// result means the traversal has converged.
func (st *State) SelectParents() []int {
	parents := make([]int, 0, st.cfg.SearchWidth)
	for i := range st.frontier {
		if st.frontier[i].Expanded {
			continue
		}
		parents = append(parents, i)
		if len(parents) == st.cfg.SearchWidth {
			break
		}
	}
	return parents
}

// Expand visits the graph neighbors of the given parents: every neighbor
// not yet in the visited table is scored and appended to the candidate
// pool. Parents are flagged expanded.
func (st *State) Expand(parents []int) {
	st.candidates = st.candidates[:0]
	for _, pi := range parents {
		st.frontier[pi].Expanded = true
		for _, nb := range st.graph.Neighbors(st.frontier[pi].ID) {
			if nb == core.InvalidID {
				continue
			}
			if st.table.ContainsOrInsert(nb) {
				continue
			}
			st.candidates = append(st.candidates, topk.Entry{Distance: st.score(nb), ID: nb})
		}
	}
}

// Merge folds the candidate pool into the frontier, keeping the best
// ITopKSize entries, and applies the periodic small-hash reset policy.
func (st *State) Merge() {
	if len(st.candidates) > 0 {
		pool := append(st.merged[:0], st.frontier...)
		pool = append(pool, st.candidates...)
		st.merged = pool
		st.frontier = append(st.frontier[:0], st.selector.SelectK(pool, st.cfg.ITopKSize)...)
	}

	st.iterations++

	// Periodic reset bounds probe-chain growth in small-hash mode. The
	// frontier is re-inserted so live entries stay deduplicated; everything
	// else may be revisited, which costs recall, not correctness.
	if st.cfg.SmallHashResetInterval > 0 && st.iterations%st.cfg.SmallHashResetInterval == 0 {
		st.table.Reset()
		for i := range st.frontier {
			st.table.ContainsOrInsert(st.frontier[i].ID)
		}
	}
}

// Step executes one full iteration. It returns false once the traversal is
// done: either MaxIterations were executed, or no unexpanded parent remains
// and at least MinIterations were executed.
func (st *State) Step() bool {
	if st.iterations >= st.cfg.MaxIterations {
		return false
	}
	parents := st.SelectParents()
	if len(parents) == 0 {
		if st.iterations >= st.cfg.MinIterations {
			return false
		}
		// Nothing to expand but the minimum is not reached yet; burn the
		// iteration so the count contract holds.
		st.iterations++
		return true
	}
	st.Expand(parents)
	st.Merge()
	return true
}

// Run drives Step to completion. Begin must have been called.
func (st *State) Run() {
	for st.Step() {
	}
}

// Iterations returns the number of iterations actually executed.
func (st *State) Iterations() int { return st.iterations }

// Frontier exposes the current frontier, sorted ascending. The slice is
// valid until the next phase call.
func (st *State) Frontier() []topk.Entry { return st.frontier }

// Emit writes the best k frontier entries to out, skipping ids rejected by
// filter (may be nil). Slots the frontier cannot cover are padded with
// InvalidID and +Inf.
func Emit(frontier []topk.Entry, k int, filter func(uint32) bool, outIdx []uint32, outDist []float32) {
	w := 0
	for _, e := range frontier {
		if w == k {
			break
		}
		if filter != nil && !filter(e.ID) {
			continue
		}
		outIdx[w] = e.ID
		outDist[w] = e.Distance
		w++
	}
	for ; w < k; w++ {
		outIdx[w] = core.InvalidID
		outDist[w] = float32(math.Inf(1))
	}
}

// ReduceGroups concatenates the frontiers of the groups that traversed one
// query, drops duplicate ids, and selects the k best entries. dedup must
// cover the full node id range and is left reset.
func ReduceGroups(selector *topk.Selector, dedup *visited.Set, groups []*State, k int) []topk.Entry {
	pool := make([]topk.Entry, 0, len(groups)*groups[0].cfg.ITopKSize)
	for _, g := range groups {
		for _, e := range g.frontier {
			if dedup.Visit(e.ID) {
				continue
			}
			pool = append(pool, e)
		}
	}
	dedup.Reset()
	return selector.SelectK(pool, k)
}

// splitmix64 is the deterministic seed generator behind random seed
// selection. Distinct (query, restart, group) tuples perturb the initial
// state, so identical inputs always explore identically.
type splitmix64 struct {
	state uint64
}

func (s *splitmix64) next() uint64 {
	s.state += 0x9e3779b97f4a7c15
	z := s.state
	z ^= z >> 30
	z *= 0xbf58476d1ce4e5b9
	z ^= z >> 27
	z *= 0x94d049bb133111eb
	z ^= z >> 31
	return z
}
