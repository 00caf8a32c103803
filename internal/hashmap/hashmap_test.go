package hashmap

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainsOrInsert(t *testing.T) {
	tbl := New(8)
	require.Equal(t, 256, tbl.Capacity())

	assert.False(t, tbl.ContainsOrInsert(42))
	assert.True(t, tbl.ContainsOrInsert(42))
	assert.True(t, tbl.Contains(42))
	assert.False(t, tbl.Contains(7))
}

func TestReset(t *testing.T) {
	tbl := New(6)
	assert.False(t, tbl.ContainsOrInsert(1))
	assert.True(t, tbl.Contains(1))

	tbl.Reset()
	assert.False(t, tbl.Contains(1))
	assert.False(t, tbl.ContainsOrInsert(1))
}

func TestNoFalseNegatives(t *testing.T) {
	tbl := New(10)
	for id := uint32(0); id < 512; id++ {
		assert.False(t, tbl.ContainsOrInsert(id))
	}
	for id := uint32(0); id < 512; id++ {
		assert.True(t, tbl.Contains(id), "id %d lost", id)
	}
}

func TestSaturationDegradesToSkip(t *testing.T) {
	tbl := New(4) // 16 slots
	for id := uint32(0); id < 16; id++ {
		tbl.ContainsOrInsert(id)
	}
	// Table is full: new ids must be reported as already present, never
	// inserted twice.
	assert.True(t, tbl.ContainsOrInsert(1000))
}

func TestConcurrentInsert(t *testing.T) {
	tbl := New(12)

	const workers = 8
	const ids = 1024

	inserted := make([][]bool, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		inserted[w] = make([]bool, ids)
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for id := uint32(0); id < ids; id++ {
				if !tbl.ContainsOrInsert(id) {
					inserted[w][id] = true
				}
			}
		}(w)
	}
	wg.Wait()

	// Exactly one worker wins each insert.
	for id := 0; id < ids; id++ {
		wins := 0
		for w := 0; w < workers; w++ {
			if inserted[w][id] {
				wins++
			}
		}
		assert.Equal(t, 1, wins, "id %d inserted %d times", id, wins)
	}
}
