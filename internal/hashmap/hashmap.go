// Package hashmap implements the per-query visited set used by the graph
// traversal: a fixed-capacity, open-addressed table of node ids with an
// atomic insert-or-test primitive.
//
// The table never reports "not visited" for a node inserted since its last
// Reset. Saturation is tolerated by construction: once the probe chain is
// exhausted the id is treated as already visited, which degrades recall
// (the node is skipped) but never produces duplicate candidates.
package hashmap

import "sync/atomic"

// emptySlot is the reset sentinel. It doubles as core.InvalidID, so valid
// node ids can never collide with it.
const emptySlot uint32 = 0xffffffff

// knuthFactor is the multiplicative hashing constant (Knuth, TAOCP vol. 3).
const knuthFactor uint32 = 2654435761

// Table is a power-of-two-sized visited set. A single table is exclusively
// owned by the goroutines cooperating on one query for the duration of that
// query's traversal; inserts go through compare-and-swap so cooperating
// goroutines may share it without additional locking.
type Table struct {
	slots  []uint32
	mask   uint32
	bitlen int
}

// New creates a table with capacity 1<<bitlen, initialized empty.
func New(bitlen int) *Table {
	t := &Table{
		slots:  make([]uint32, 1<<bitlen),
		mask:   uint32(1<<bitlen) - 1,
		bitlen: bitlen,
	}
	t.Reset()
	return t
}

// BitLen returns the configured table bit length.
func (t *Table) BitLen() int { return t.bitlen }

// Capacity returns the number of slots.
func (t *Table) Capacity() int { return len(t.slots) }

// Reset wholesale-clears the table to the empty sentinel.
func (t *Table) Reset() {
	for i := range t.slots {
		t.slots[i] = emptySlot
	}
}

// ContainsOrInsert atomically tests membership of id and inserts it if
// absent. It returns true when the id was already present (or the table is
// saturated), false when the id was newly inserted.
func (t *Table) ContainsOrInsert(id uint32) bool {
	loc := (id * knuthFactor) & t.mask
	for range t.slots {
		slot := atomic.LoadUint32(&t.slots[loc])
		if slot == id {
			return true
		}
		if slot == emptySlot {
			if atomic.CompareAndSwapUint32(&t.slots[loc], emptySlot, id) {
				return false
			}
			// Lost the race; re-read this slot before moving on.
			if atomic.LoadUint32(&t.slots[loc]) == id {
				return true
			}
		}
		loc = (loc + 1) & t.mask
	}
	// Saturated: treat as visited rather than admit a duplicate.
	return true
}

// Contains reports whether id is present without inserting it.
func (t *Table) Contains(id uint32) bool {
	loc := (id * knuthFactor) & t.mask
	for range t.slots {
		slot := atomic.LoadUint32(&t.slots[loc])
		if slot == id {
			return true
		}
		if slot == emptySlot {
			return false
		}
		loc = (loc + 1) & t.mask
	}
	return false
}
