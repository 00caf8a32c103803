package resource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkspaceBudget(t *testing.T) {
	c := NewController(Config{WorkspaceLimitBytes: 100})

	require.NoError(t, c.AcquireWorkspace(context.Background(), 60))
	assert.Equal(t, int64(60), c.WorkspaceUsage())

	assert.False(t, c.TryAcquireWorkspace(50))
	assert.True(t, c.TryAcquireWorkspace(40))

	c.ReleaseWorkspace(100)
	assert.Equal(t, int64(0), c.WorkspaceUsage())
}

func TestWorkspaceUnlimited(t *testing.T) {
	c := NewController(Config{})
	require.NoError(t, c.AcquireWorkspace(context.Background(), 1<<40))
	assert.Equal(t, int64(1<<40), c.WorkspaceUsage())
	c.ReleaseWorkspace(1 << 40)
}

func TestSearchAdmission(t *testing.T) {
	c := NewController(Config{MaxConcurrentSearches: 2})

	require.True(t, c.TryAcquireSearch())
	require.True(t, c.TryAcquireSearch())
	assert.False(t, c.TryAcquireSearch())

	c.ReleaseSearch()
	assert.True(t, c.TryAcquireSearch())
	c.ReleaseSearch()
	c.ReleaseSearch()
}

func TestAcquireWorkspaceCancelled(t *testing.T) {
	c := NewController(Config{WorkspaceLimitBytes: 10})
	require.NoError(t, c.AcquireWorkspace(context.Background(), 10))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, c.AcquireWorkspace(ctx, 5))

	c.ReleaseWorkspace(10)
}

func TestNilController(t *testing.T) {
	var c *Controller
	assert.NoError(t, c.AcquireWorkspace(context.Background(), 10))
	assert.True(t, c.TryAcquireWorkspace(10))
	c.ReleaseWorkspace(10)
}
