package queue

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinQueue(t *testing.T) {
	pq := NewMin(8)
	for _, d := range []float32{5, 1, 3, 2, 4} {
		pq.PushItem(PriorityQueueItem{Node: uint32(d), Distance: d})
	}

	var got []float32
	for pq.Len() > 0 {
		item, ok := pq.PopItem()
		require.True(t, ok)
		got = append(got, item.Distance)
	}
	assert.Equal(t, []float32{1, 2, 3, 4, 5}, got)
}

func TestMaxQueue(t *testing.T) {
	pq := NewMax(8)
	for _, d := range []float32{5, 1, 3} {
		pq.PushItem(PriorityQueueItem{Node: uint32(d), Distance: d})
	}

	top, ok := pq.TopItem()
	require.True(t, ok)
	assert.Equal(t, float32(5), top.Distance)
}

func TestPushBounded(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	pq := NewMax(16)

	dists := make([]float64, 100)
	for i := range dists {
		d := rng.Float32() * 10
		dists[i] = float64(d)
		pq.PushBounded(PriorityQueueItem{Node: uint32(i), Distance: d}, 16)
	}
	sort.Float64s(dists)

	require.Equal(t, 16, pq.Len())
	var got []float64
	for pq.Len() > 0 {
		item, _ := pq.PopItem()
		got = append(got, float64(item.Distance))
	}
	sort.Float64s(got)
	assert.Equal(t, dists[:16], got)
}

func TestPopEmpty(t *testing.T) {
	pq := NewMin(4)
	_, ok := pq.PopItem()
	assert.False(t, ok)
	_, ok = pq.TopItem()
	assert.False(t, ok)
}

func TestReset(t *testing.T) {
	pq := NewMin(4)
	pq.PushItem(PriorityQueueItem{Node: 1, Distance: 1})
	pq.Reset()
	assert.Equal(t, 0, pq.Len())
}
