package topk

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func oracle(pool []Entry, k int) []Entry {
	sorted := append([]Entry(nil), pool...)
	sort.Slice(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })
	if k > len(sorted) {
		k = len(sorted)
	}
	return sorted[:k]
}

func randomPool(rng *rand.Rand, n int) []Entry {
	pool := make([]Entry, n)
	for i := range pool {
		pool[i] = Entry{
			Distance: rng.Float32() * 100,
			ID:       uint32(i),
		}
	}
	return pool
}

func TestSelectKSmallPools(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for _, n := range []int{1, 2, 3, 7, 31, 64, 100, 255, 256} {
		for _, k := range []int{1, 2, 16, 32, n} {
			if k > n {
				continue
			}
			pool := randomPool(rng, n)
			got := NewSelector(n).SelectK(pool, k)
			assert.Equal(t, oracle(pool, k), got, "n=%d k=%d", n, k)
		}
	}
}

func TestSelectKLargePools(t *testing.T) {
	rng := rand.New(rand.NewSource(2))

	for _, n := range []int{257, 300, 512, 1000, 2048, 4096} {
		for _, k := range []int{1, 16, 64, 256, 512} {
			if k > n {
				continue
			}
			pool := randomPool(rng, n)
			got := NewSelector(n).SelectK(pool, k)
			assert.Equal(t, oracle(pool, k), got, "n=%d k=%d", n, k)
		}
	}
}

func TestSelectKTieBreakByID(t *testing.T) {
	// All distances equal: selection must keep the smallest ids, ascending,
	// on both the bitonic and the radix path.
	for _, n := range []int{100, 1000} {
		pool := make([]Entry, n)
		perm := rand.New(rand.NewSource(3)).Perm(n)
		for i, p := range perm {
			pool[i] = Entry{Distance: 7.5, ID: uint32(p)}
		}

		got := NewSelector(n).SelectK(pool, 10)
		require.Len(t, got, 10)
		for i, e := range got {
			assert.Equal(t, uint32(i), e.ID, "n=%d", n)
		}
	}
}

func TestSelectKNegativeDistances(t *testing.T) {
	// Inner product distances are negated similarities and can be negative;
	// the radix key must keep sign order intact.
	pool := []Entry{
		{Distance: 0.5, ID: 0},
		{Distance: -3.25, ID: 1},
		{Distance: -0.125, ID: 2},
		{Distance: 2, ID: 3},
		{Distance: -3.25, ID: 4},
	}
	big := make([]Entry, 0, 400)
	for i := 0; i < 80; i++ {
		for _, e := range pool {
			e.ID += uint32(i * 5)
			big = append(big, e)
		}
	}

	got := NewSelector(len(big)).SelectK(big, 3)
	assert.Equal(t, float32(-3.25), got[0].Distance)
	assert.Equal(t, uint32(1), got[0].ID)
	assert.Equal(t, float32(-3.25), got[1].Distance)
	assert.Equal(t, uint32(4), got[1].ID)
}

func TestSelectKPreservesExpandedFlag(t *testing.T) {
	pool := []Entry{
		{Distance: 3, ID: 3},
		{Distance: 1, ID: 1, Expanded: true},
		{Distance: 2, ID: 2},
	}
	got := NewSelector(len(pool)).SelectK(pool, 2)
	require.Len(t, got, 2)
	assert.True(t, got[0].Expanded)
	assert.False(t, got[1].Expanded)
}

func TestSelectKEdgeCases(t *testing.T) {
	s := NewSelector(16)

	assert.Nil(t, s.SelectK(nil, 4))
	assert.Nil(t, s.SelectK([]Entry{{Distance: 1, ID: 1}}, 0))

	// k larger than pool returns the whole pool sorted.
	pool := []Entry{{Distance: 2, ID: 2}, {Distance: 1, ID: 1}}
	got := s.SelectK(pool, 10)
	require.Len(t, got, 2)
	assert.Equal(t, uint32(1), got[0].ID)
}

func TestSelectorReuse(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	s := NewSelector(512)

	for trial := 0; trial < 20; trial++ {
		pool := randomPool(rng, 300+trial)
		assert.Equal(t, oracle(pool, 32), s.SelectK(pool, 32))
	}
}

func BenchmarkSelectBitonic(b *testing.B) {
	rng := rand.New(rand.NewSource(5))
	pool := randomPool(rng, 256)
	s := NewSelector(256)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.SelectK(pool, 64)
	}
}

func BenchmarkSelectRadix(b *testing.B) {
	rng := rand.New(rand.NewSource(6))
	pool := randomPool(rng, 2048)
	s := NewSelector(2048)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.SelectK(pool, 64)
	}
}
