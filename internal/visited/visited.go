// Package visited provides a dense visited set over node ids with cheap
// reuse: clearing touches only the bits dirtied since the last reset.
//
// It complements internal/hashmap: the hash table serves the bounded
// per-query traversal, while this set serves host-side passes that see the
// full id range (multi-group reduction dedup, inverted-list scans).
package visited

import "github.com/bits-and-blooms/bitset"

// Set tracks visited node ids using a bitset and a dirty list for fast reset.
type Set struct {
	bits  *bitset.BitSet
	dirty []uint32
}

// New creates a set able to track ids in [0, capacity).
func New(capacity int) *Set {
	return &Set{
		bits:  bitset.New(uint(capacity)),
		dirty: make([]uint32, 0, 128),
	}
}

// Visit marks id as visited. Returns true if it was already visited.
func (s *Set) Visit(id uint32) bool {
	if s.bits.Test(uint(id)) {
		return true
	}
	s.bits.Set(uint(id))
	s.dirty = append(s.dirty, id)
	return false
}

// Visited returns true if id has been visited since the last reset.
func (s *Set) Visited(id uint32) bool {
	return s.bits.Test(uint(id))
}

// Reset clears only the ids visited since the last reset.
func (s *Set) Reset() {
	for _, id := range s.dirty {
		s.bits.Clear(uint(id))
	}
	s.dirty = s.dirty[:0]
}

// EnsureCapacity grows the set to track ids in [0, capacity).
func (s *Set) EnsureCapacity(capacity int) {
	if uint(capacity) > s.bits.Len() {
		grown := bitset.New(uint(capacity))
		grown.InPlaceUnion(s.bits)
		s.bits = grown
	}
}
