// Package topk implements bounded top-k selection over (distance, id)
// candidate pools: the k smallest entries, sorted ascending.
//
// Two paths are provided and dispatched by pool size. Small pools go
// through a bitonic compare-swap network; larger pools go through a radix
// select over the bit-reinterpreted float32 distance, which narrows to the
// k-th smallest key in at most four byte-wide passes before compacting.
//
// Ties on equal distance break by ascending id on both paths, so a pool
// always selects and orders deterministically.
package topk

import (
	"math"
	"sort"
)

// BitonicMaxPool is the largest pool routed through the bitonic network.
// Beyond this size the O(n log^2 n) compare-swap count loses to the radix
// path's linear passes.
const BitonicMaxPool = 256

// Entry is one candidate: a scored node plus the traversal's parent flag.
// Selection orders by (Distance, ID); Expanded rides along untouched.
type Entry struct {
	Distance float32
	ID       uint32
	Expanded bool
}

// sentinel pads bitonic lanes up to a power of two. It sorts after every
// real entry.
var sentinel = Entry{Distance: float32(math.Inf(1)), ID: math.MaxUint32}

func less(a, b Entry) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.ID < b.ID
}

// Selector holds reusable scratch for repeated selections up to a maximum
// pool size. A Selector is not safe for concurrent use; the search plan
// allocates one per worker.
type Selector struct {
	scratch []Entry
	equal   []Entry
}

// NewSelector creates a Selector able to handle pools up to maxPool entries.
func NewSelector(maxPool int) *Selector {
	cap2 := ceilPow2(maxPool)
	return &Selector{
		scratch: make([]Entry, 0, cap2),
		equal:   make([]Entry, 0, maxPool),
	}
}

// SelectK returns the k smallest entries of pool sorted ascending by
// (distance, id). The result aliases the Selector's scratch buffer and is
// valid until the next call. pool itself is left unmodified.
func (s *Selector) SelectK(pool []Entry, k int) []Entry {
	if k <= 0 || len(pool) == 0 {
		return nil
	}
	if k >= len(pool) {
		return s.sortAll(pool)
	}
	if len(pool) <= BitonicMaxPool {
		return s.selectBitonic(pool, k)
	}
	return s.selectRadix(pool, k)
}

// sortAll fully sorts the pool through the bitonic network.
func (s *Selector) sortAll(pool []Entry) []Entry {
	buf := s.pad(pool)
	bitonicSort(buf)
	return buf[:len(pool)]
}

func (s *Selector) selectBitonic(pool []Entry, k int) []Entry {
	buf := s.pad(pool)
	bitonicSort(buf)
	return buf[:k]
}

// pad copies pool into scratch and fills up to the next power of two with
// sentinels.
func (s *Selector) pad(pool []Entry) []Entry {
	n := ceilPow2(len(pool))
	buf := s.scratch[:0]
	if cap(buf) < n {
		buf = make([]Entry, 0, n)
		s.scratch = buf
	}
	buf = append(buf, pool...)
	for len(buf) < n {
		buf = append(buf, sentinel)
	}
	return buf
}

// bitonicSort sorts buf ascending. len(buf) must be a power of two.
func bitonicSort(buf []Entry) {
	n := len(buf)
	for size := 2; size <= n; size <<= 1 {
		for stride := size >> 1; stride > 0; stride >>= 1 {
			for i := 0; i < n; i++ {
				j := i ^ stride
				if j <= i {
					continue
				}
				ascending := i&size == 0
				if less(buf[j], buf[i]) == ascending {
					buf[i], buf[j] = buf[j], buf[i]
				}
			}
		}
	}
}

// radixKey maps a float32 distance onto a uint32 preserving order: negative
// values flip entirely, non-negative values get the sign bit set.
func radixKey(f float32) uint32 {
	b := math.Float32bits(f)
	if b&0x80000000 != 0 {
		return ^b
	}
	return b | 0x80000000
}

// selectRadix narrows to the k-th smallest key with MSB-first byte
// histograms, then compacts everything below the threshold plus the
// smallest-id slice of the threshold ties.
func (s *Selector) selectRadix(pool []Entry, k int) []Entry {
	var prefix uint32
	prefixBits := 0
	need := k

	for shift := 24; shift >= 0; shift -= 8 {
		var hist [256]int
		for i := range pool {
			key := radixKey(pool[i].Distance)
			if prefixBits > 0 && key>>(32-uint(prefixBits)) != prefix {
				continue
			}
			hist[(key>>uint(shift))&0xff]++
		}
		cum := 0
		digit := 0
		for d := 0; d < 256; d++ {
			if cum+hist[d] >= need {
				digit = d
				break
			}
			cum += hist[d]
		}
		need -= cum
		prefix = prefix<<8 | uint32(digit)
		prefixBits += 8
	}
	threshold := prefix

	out := s.scratch[:0]
	eq := s.equal[:0]
	for i := range pool {
		key := radixKey(pool[i].Distance)
		switch {
		case key < threshold:
			out = append(out, pool[i])
		case key == threshold:
			eq = append(eq, pool[i])
		}
	}

	// Threshold ties survive by ascending id.
	sort.Slice(eq, func(i, j int) bool { return eq[i].ID < eq[j].ID })
	out = append(out, eq[:need]...)
	s.scratch = out
	s.equal = eq[:0]

	res := s.pad(out)
	bitonicSort(res)
	return res[:k]
}

func ceilPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
