package data

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDomainCache(t *testing.T) {
	ctx := context.Background()
	clock := NewFixedTimeProvider(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	cache := NewMemoryDomainCache(clock)

	_, found, err := cache.Get(ctx, "example.com")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, cache.Put(ctx, "example.com", true, time.Hour))
	require.NoError(t, cache.Put(ctx, "other.com", false, time.Hour))

	isCatchAll, found, err := cache.Get(ctx, "example.com")
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, isCatchAll)

	isCatchAll, found, err = cache.Get(ctx, "other.com")
	require.NoError(t, err)
	assert.True(t, found)
	assert.False(t, isCatchAll)

	clock.AddTime(2 * time.Hour)
	_, found, err = cache.Get(ctx, "example.com")
	require.NoError(t, err)
	assert.False(t, found, "expired verdict must be treated as absent")
}

func TestRedisDomainCache(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := NewRedisDomainCache(client)

	_, found, err := cache.Get(ctx, "example.com")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, cache.Put(ctx, "example.com", true, time.Hour))
	require.NoError(t, cache.Put(ctx, "plain.com", false, time.Hour))

	isCatchAll, found, err := cache.Get(ctx, "example.com")
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, isCatchAll)

	isCatchAll, found, err = cache.Get(ctx, "plain.com")
	require.NoError(t, err)
	assert.True(t, found)
	assert.False(t, isCatchAll)

	mr.FastForward(2 * time.Hour)
	_, found, err = cache.Get(ctx, "example.com")
	require.NoError(t, err)
	assert.False(t, found, "TTL expiry must evict the verdict")
}
