package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sharedRedis(t *testing.T) (*miniredis.Miniredis, func() *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	return mr, func() *redis.Client {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		return client
	}
}

func TestSubscribedCacheServesMemoryUntilBump(t *testing.T) {
	mr, newClient := sharedRedis(t)
	web := NewCache(newClient(), time.Minute)
	worker := NewCache(newClient(), time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, web.Subscribe(ctx))

	_, ver, ok, err := web.Get(ctx, "2025-06")
	require.NoError(t, err)
	require.False(t, ok)
	assert.Equal(t, int64(1), ver)
	require.NoError(t, web.Put(ctx, "2025-06", ver, Summary{TotalVehicles: 3}))

	// Memory answers even when the Redis copy is gone.
	mr.Del(summaryKey("2025-06", ver))
	s, _, ok, err := web.Get(ctx, "2025-06")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, s.TotalVehicles)

	require.NoError(t, worker.Bump(ctx))
	require.Eventually(t, func() bool {
		_, _, ok, err := web.Get(ctx, "2025-06")
		return err == nil && !ok
	}, time.Second, 10*time.Millisecond)

	// A rebuild started before the bump is not kept in memory.
	require.NoError(t, web.Put(ctx, "2025-06", ver, Summary{TotalVehicles: 3}))
	_, cur, ok, err := web.Get(ctx, "2025-06")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(2), cur)
}

func TestUnsubscribedCacheChecksVersion(t *testing.T) {
	_, newClient := sharedRedis(t)
	web := NewCache(newClient(), time.Minute)
	worker := NewCache(newClient(), time.Minute)
	ctx := context.Background()

	_, ver, _, err := web.Get(ctx, "2025-06")
	require.NoError(t, err)
	require.NoError(t, web.Put(ctx, "2025-06", ver, Summary{TotalVehicles: 3}))

	require.NoError(t, worker.Bump(ctx))
	_, cur, ok, err := web.Get(ctx, "2025-06")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, ver+1, cur)
}

func TestNilCacheIsANoop(t *testing.T) {
	var c *Cache
	ctx := context.Background()
	_, _, ok, err := c.Get(ctx, "2025-06")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, c.Put(ctx, "2025-06", 1, Summary{}))
	assert.NoError(t, c.Bump(ctx))
	assert.NoError(t, c.Subscribe(ctx))
}
