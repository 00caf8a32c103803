package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsTasks(t *testing.T) {
	p := New(4)
	defer p.Close()

	var count atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		err := p.Submit(context.Background(), func(workerID int) {
			defer wg.Done()
			assert.GreaterOrEqual(t, workerID, 0)
			assert.Less(t, workerID, 4)
			count.Add(1)
		})
		require.NoError(t, err)
	}
	wg.Wait()

	assert.Equal(t, int64(100), count.Load())
}

func TestSubmitAfterClose(t *testing.T) {
	p := New(2)
	p.Close()
	p.Close() // idempotent

	err := p.Submit(context.Background(), func(int) {})
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestSubmitCancelledContext(t *testing.T) {
	p := New(1)
	defer p.Close()

	// Occupy the single worker and fill the queue.
	block := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		_ = p.Submit(context.Background(), func(int) {
			defer wg.Done()
			<-block
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Submit(ctx, func(int) {})
	assert.ErrorIs(t, err, context.Canceled)

	close(block)
	wg.Wait()
}
