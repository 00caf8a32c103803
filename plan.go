package cagra

import (
	"fmt"
	"math/bits"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/cagra/core"
	"github.com/hupe1980/cagra/internal/hashmap"
	"github.com/hupe1980/cagra/internal/topk"
	"github.com/hupe1980/cagra/internal/traverse"
	"github.com/hupe1980/cagra/internal/visited"
)

// Algo selects the traversal strategy.
type Algo int

const (
	// AlgoAuto picks single or multi group from the resolved plan shape.
	AlgoAuto Algo = iota

	// AlgoSingleGroup traverses each query with one execution group that
	// owns the full frontier end to end.
	AlgoSingleGroup

	// AlgoMultiGroup traverses each query with several execution groups
	// under distinct seed perturbations, then reduces their frontiers.
	AlgoMultiGroup
)

func (a Algo) String() string {
	switch a {
	case AlgoAuto:
		return "auto"
	case AlgoSingleGroup:
		return "single_group"
	case AlgoMultiGroup:
		return "multi_group"
	default:
		return fmt.Sprintf("Unknown(%d)", int(a))
	}
}

// HashmapMode selects the visited-table sizing strategy.
type HashmapMode int

const (
	// HashmapModeAuto sizes the table from the expected visited count.
	HashmapModeAuto HashmapMode = iota

	// HashmapModeSmall uses a compact table with periodic wholesale resets.
	HashmapModeSmall

	// HashmapModeGlobal uses a table covering the whole traversal lifetime,
	// reset once per query.
	HashmapModeGlobal
)

func (m HashmapMode) String() string {
	switch m {
	case HashmapModeAuto:
		return "auto"
	case HashmapModeSmall:
		return "small"
	case HashmapModeGlobal:
		return "global"
	default:
		return fmt.Sprintf("Unknown(%d)", int(m))
	}
}

const (
	// maxITopK is the largest supported frontier size.
	maxITopK = 512

	// maxITopKMultiGroup is the largest frontier size the multi-group
	// reduction supports.
	maxITopKMultiGroup = 256

	// itopkAlign is the frontier size alignment.
	itopkAlign = 32

	minThreadGroupSize = 64
	maxThreadGroupSize = 1024

	// globalHashMaxBitLen caps the global visited-table size; traversals
	// expecting more visits than fit at the fill rate fall back to the
	// small table with periodic resets.
	globalHashMaxBitLen = 16

	minHashBitLen = 8
)

// SearchParams are the user-facing search knobs. Zero values resolve
// automatically; see ResolvePlan for the resolution and validation rules.
type SearchParams struct {
	// Algo selects single-group, multi-group or automatic strategy choice.
	Algo Algo

	// MaxQueries caps the number of queries dispatched concurrently.
	// Zero means the whole batch at once.
	MaxQueries int

	// ITopKSize is the frontier capacity. Aligned up to a multiple of 32.
	// Zero defaults to 64, grown to cover the requested k; an explicit
	// value below k is rejected.
	ITopKSize int

	// SearchWidth is the number of parents expanded per iteration.
	// Zero defaults to 1.
	SearchWidth int

	// MinIterations and MaxIterations bound the traversal iteration count.
	// Zero MaxIterations resolves from the frontier shape.
	MinIterations int
	MaxIterations int

	// TeamSize is the number of lanes cooperating on one distance
	// computation. Zero resolves from the dataset dimension; otherwise it
	// must be one of 4, 8, 16, 32.
	TeamSize int

	// ThreadBlockSize overrides the resolved thread-group width. Must be a
	// power of two in [64, 1024]. Zero resolves automatically.
	ThreadBlockSize int

	// HashmapMode selects the visited-table strategy.
	HashmapMode HashmapMode

	// HashmapMinBitlen is a lower bound for the visited-table bit length.
	HashmapMinBitlen int

	// HashmapMaxFillRate is the highest tolerated visited-table load
	// factor. Zero defaults to 0.5.
	HashmapMaxFillRate float64

	// SmallHashResetInterval is the small-table reset cadence in
	// iterations. Zero resolves from the table capacity and fill rate.
	SmallHashResetInterval int

	// NumRandomSamplings is the number of random seeding rounds.
	// Zero defaults to 1.
	NumRandomSamplings int

	// RandXorMask perturbs the deterministic seed generator.
	RandXorMask uint64

	// LoadBits overrides the vector load granularity in bits. Must evenly
	// divide dim times the element bit width. Zero picks the largest of
	// 128 and 64 that divides.
	LoadBits int

	// Seeds are optional starting nodes shared by every query in the
	// batch. Ids must lie in [0, N). Random seeding still draws its
	// NumSeeds picks alongside them.
	Seeds []uint32

	// Filter is an optional deny-list of node ids. Filtered nodes may be
	// traversed but are never emitted; uncoverable result slots are
	// padded with InvalidID and +Inf.
	Filter *roaring.Bitmap
}

// DefaultSearchParams returns the parameter defaults.
func DefaultSearchParams() SearchParams {
	return SearchParams{
		Algo:               AlgoAuto,
		SearchWidth:        1,
		HashmapMode:        HashmapModeAuto,
		HashmapMaxFillRate: 0.5,
		NumRandomSamplings: 1,
		RandXorMask:        0x128394,
	}
}

// Plan is a fully resolved execution plan. All fields are concrete; Algo
// and HashmapMode are never the auto values. A Plan is immutable and may be
// shared across searches of the same shape.
type Plan struct {
	Algo Algo

	ITopKSize     int
	SearchWidth   int
	MinIterations int
	MaxIterations int

	TeamSize        int
	ThreadBlockSize int
	LoadBits        int

	HashmapMode            HashmapMode
	HashBitLen             int
	SmallHashResetInterval int

	NumSeeds          int
	NumGroupsPerQuery int
	RandXorMask       uint64
	MaxQueries        int

	dim    int
	degree int
	topk   int
}

// TopK returns the result count the plan was resolved for.
func (p *Plan) TopK() int { return p.topk }

// Dim returns the dataset dimension the plan was resolved for.
func (p *Plan) Dim() int { return p.dim }

// Degree returns the graph degree the plan was resolved for.
func (p *Plan) Degree() int { return p.degree }

// WorkspaceBytes estimates the per-worker workspace footprint: frontier and
// candidate buffers, visited table and selector scratch, across all groups.
func (p *Plan) WorkspaceBytes() int64 {
	const entrySize = 12 // topk.Entry with padding

	poolCap := p.ITopKSize + p.SearchWidth*p.degree
	perGroup := int64(poolCap+p.ITopKSize+p.SearchWidth*p.degree)*entrySize + int64(4<<p.HashBitLen)
	reduction := int64(p.NumGroupsPerQuery*p.ITopKSize) * entrySize

	return int64(p.NumGroupsPerQuery)*perGroup + reduction
}

// ResolvePlan validates params against the index shape and fills every
// unset field. Configuration errors surface here, never during traversal.
// The dataset is assumed to hold float32 elements; Index.Search resolves
// against the actual element width.
func ResolvePlan(params SearchParams, dim, graphDegree, topk int) (*Plan, error) {
	return resolvePlan(params, dim, graphDegree, topk, 32)
}

func resolvePlan(params SearchParams, dim, graphDegree, topk, elemBits int) (*Plan, error) {
	if dim <= 0 {
		return nil, &ErrInvalidParam{Name: "dim", Value: dim}
	}
	if graphDegree <= 0 {
		return nil, &ErrInvalidParam{Name: "graph_degree", Value: graphDegree}
	}
	if topk <= 0 {
		return nil, ErrInvalidK
	}

	p := &Plan{
		Algo:        params.Algo,
		RandXorMask: params.RandXorMask,
		MaxQueries:  params.MaxQueries,
		dim:         dim,
		degree:      graphDegree,
		topk:        topk,
	}

	// Frontier size: an explicit value must cover topk; the default grows
	// to it. Align up, then bound.
	itopk := params.ITopKSize
	if itopk > 0 && itopk < topk {
		return nil, &ErrTopKTooLarge{TopK: topk, ITopKSize: itopk}
	}
	if itopk <= 0 {
		itopk = 64
		if itopk < topk {
			itopk = topk
		}
	}
	itopk = alignUp(itopk, itopkAlign)
	if itopk > maxITopK {
		return nil, &ErrInvalidITopK{ITopKSize: itopk, Max: maxITopK}
	}
	p.ITopKSize = itopk

	p.SearchWidth = params.SearchWidth
	if p.SearchWidth <= 0 {
		p.SearchWidth = 1
	}

	// Strategy choice: wide frontiers and wide expansion benefit from
	// parallel exploration with a reduction pass.
	if p.Algo == AlgoAuto {
		if p.ITopKSize >= 256 || p.SearchWidth >= 4 {
			p.Algo = AlgoMultiGroup
		} else {
			p.Algo = AlgoSingleGroup
		}
	}

	if p.Algo == AlgoMultiGroup {
		if p.ITopKSize > maxITopKMultiGroup {
			return nil, &ErrInvalidITopK{ITopKSize: p.ITopKSize, Max: maxITopKMultiGroup}
		}
		p.NumGroupsPerQuery = p.SearchWidth
		if g := p.ITopKSize / 32; g > p.NumGroupsPerQuery {
			p.NumGroupsPerQuery = g
		}
	} else {
		p.NumGroupsPerQuery = 1
	}

	// Iteration bounds.
	p.MinIterations = params.MinIterations
	if p.MinIterations < 0 {
		return nil, &ErrInvalidParam{Name: "min_iterations", Value: p.MinIterations}
	}
	p.MaxIterations = params.MaxIterations
	if p.MaxIterations == 0 {
		base := p.ITopKSize / p.SearchWidth
		auto := base + base/10
		if capped := base + 10; capped < auto {
			auto = capped
		}
		p.MaxIterations = 1 + auto
	}
	if p.MaxIterations < 0 {
		return nil, &ErrInvalidParam{Name: "max_iterations", Value: p.MaxIterations}
	}
	if p.MaxIterations < p.MinIterations {
		p.MaxIterations = p.MinIterations
	}

	// Cooperating lane count per distance computation.
	p.TeamSize = params.TeamSize
	if p.TeamSize == 0 {
		switch {
		case dim <= 64:
			p.TeamSize = 4
		case dim <= 128:
			p.TeamSize = 8
		case dim <= 256:
			p.TeamSize = 16
		default:
			p.TeamSize = 32
		}
	} else if p.TeamSize != 4 && p.TeamSize != 8 && p.TeamSize != 16 && p.TeamSize != 32 {
		return nil, &ErrInvalidParam{Name: "team_size", Value: p.TeamSize}
	}

	// Thread-group width: doubles while the per-group working set exceeds
	// the width, up to the maximum.
	p.ThreadBlockSize = params.ThreadBlockSize
	if p.ThreadBlockSize == 0 {
		workingSet := p.ITopKSize + p.SearchWidth*graphDegree
		tbs := minThreadGroupSize
		for tbs < maxThreadGroupSize && tbs < workingSet {
			tbs *= 2
		}
		p.ThreadBlockSize = tbs
	} else if p.ThreadBlockSize < minThreadGroupSize || p.ThreadBlockSize > maxThreadGroupSize ||
		bits.OnesCount(uint(p.ThreadBlockSize)) != 1 {
		return nil, &ErrInvalidThreadGroupSize{Size: p.ThreadBlockSize}
	}

	// Vector load granularity.
	rowBits := dim * elemBits
	p.LoadBits = params.LoadBits
	if p.LoadBits == 0 {
		switch {
		case rowBits%128 == 0:
			p.LoadBits = 128
		case rowBits%64 == 0:
			p.LoadBits = 64
		default:
			p.LoadBits = 32
		}
	} else if rowBits%p.LoadBits != 0 {
		return nil, &ErrInvalidLoadBits{LoadBits: p.LoadBits, RowBits: rowBits}
	}

	if err := p.resolveHashmap(params); err != nil {
		return nil, err
	}

	numSamplings := params.NumRandomSamplings
	if numSamplings <= 0 {
		numSamplings = 1
	}
	p.NumSeeds = p.ITopKSize * numSamplings

	return p, nil
}

// resolveHashmap picks the visited-table mode, bit length and reset cadence
// from the expected visited count over the whole traversal.
func (p *Plan) resolveHashmap(params SearchParams) error {
	fillRate := params.HashmapMaxFillRate
	if fillRate <= 0 || fillRate > 1 {
		fillRate = 0.5
	}
	minBitlen := params.HashmapMinBitlen
	if minBitlen < 0 || minBitlen > 30 {
		return &ErrInvalidParam{Name: "hashmap_min_bitlen", Value: minBitlen}
	}

	expectedVisits := p.NumSeeds + p.MaxIterations*p.SearchWidth*p.degree

	globalBitlen := bitlenFor(float64(expectedVisits)/fillRate, minBitlen)

	mode := params.HashmapMode
	if mode == HashmapModeAuto {
		if globalBitlen <= globalHashMaxBitLen {
			mode = HashmapModeGlobal
		} else {
			mode = HashmapModeSmall
		}
	}
	p.HashmapMode = mode

	switch mode {
	case HashmapModeGlobal:
		p.HashBitLen = globalBitlen
		p.SmallHashResetInterval = 0
	case HashmapModeSmall:
		// Sized for the live set between resets: frontier plus one
		// iteration's expansions.
		liveSet := p.ITopKSize + p.SearchWidth*p.degree
		p.HashBitLen = bitlenFor(float64(liveSet)/fillRate, minBitlen)

		p.SmallHashResetInterval = params.SmallHashResetInterval
		if p.SmallHashResetInterval <= 0 {
			// Reset once the table fills to the configured rate.
			budget := int(float64(int(1)<<p.HashBitLen) * fillRate)
			interval := (budget - p.ITopKSize) / (p.SearchWidth * p.degree)
			if interval < 1 {
				interval = 1
			}
			p.SmallHashResetInterval = interval
		}
	default:
		return &ErrInvalidParam{Name: "hashmap_mode", Value: int(mode)}
	}

	return nil
}

// workspace is the per-worker search scratch: traversal states for every
// group, the reduction selector and dedup set. It is reused across all
// queries a worker executes.
type workspace struct {
	states   []*traverse.State
	selector *topk.Selector
	dedup    *visited.Set
}

// newWorkspace builds a worker workspace sized for the plan and graph.
func (p *Plan) newWorkspace(graph *core.Graph) *workspace {
	poolCap := p.ITopKSize + p.SearchWidth*p.degree
	if reduce := p.NumGroupsPerQuery * p.ITopKSize; reduce > poolCap {
		poolCap = reduce
	}
	if seedPool := p.NumSeeds + p.ITopKSize; seedPool > poolCap {
		poolCap = seedPool
	}
	selector := topk.NewSelector(poolCap)

	cfg := traverse.Config{
		ITopKSize:              p.ITopKSize,
		SearchWidth:            p.SearchWidth,
		MinIterations:          p.MinIterations,
		MaxIterations:          p.MaxIterations,
		NumSeeds:               p.NumSeeds,
		SmallHashResetInterval: p.SmallHashResetInterval,
	}

	states := make([]*traverse.State, p.NumGroupsPerQuery)
	for g := range states {
		states[g] = traverse.NewState(cfg, graph, hashmap.New(p.HashBitLen), selector)
	}

	ws := &workspace{
		states:   states,
		selector: selector,
	}
	if p.NumGroupsPerQuery > 1 {
		ws.dedup = visited.New(graph.Len())
	}
	return ws
}

func alignUp(v, align int) int {
	return (v + align - 1) / align * align
}

// bitlenFor returns the smallest bit length whose table holds at least
// want slots, clamped below by minBitlen.
func bitlenFor(want float64, minBitlen int) int {
	b := minHashBitLen
	if minBitlen > b {
		b = minBitlen
	}
	for float64(int(1)<<b) < want && b < 30 {
		b++
	}
	return b
}
