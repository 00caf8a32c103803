package visited

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVisit(t *testing.T) {
	s := New(100)

	assert.False(t, s.Visit(5))
	assert.True(t, s.Visit(5))
	assert.True(t, s.Visited(5))
	assert.False(t, s.Visited(6))
}

func TestReset(t *testing.T) {
	s := New(100)
	for id := uint32(0); id < 50; id++ {
		s.Visit(id)
	}

	s.Reset()
	for id := uint32(0); id < 50; id++ {
		assert.False(t, s.Visited(id), "id %d survived reset", id)
	}
	assert.False(t, s.Visit(3))
}

func TestEnsureCapacity(t *testing.T) {
	s := New(8)
	s.Visit(3)

	s.EnsureCapacity(1024)
	assert.True(t, s.Visited(3))
	assert.False(t, s.Visit(1000))
	assert.True(t, s.Visited(1000))
}
