package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseCache(t *testing.T, c Cache) {
	ctx := context.Background()

	t.Run("Set and Get", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "tr:abc:ar:no", "Jeg har feber", time.Minute))
		v, ok := c.Get(ctx, "tr:abc:ar:no")
		require.True(t, ok)
		assert.Equal(t, "Jeg har feber", v)
		assert.True(t, c.Exists(ctx, "tr:abc:ar:no"))
	})

	t.Run("TTL", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "ttl", "x", time.Minute))
		_, ttl, ok := c.GetWithTTL(ctx, "ttl")
		require.True(t, ok)
		assert.Greater(t, ttl, 50*time.Second)
		assert.LessOrEqual(t, ttl, time.Minute)
	})

	t.Run("Expiry", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "short", "x", 1100*time.Millisecond))
		time.Sleep(1500 * time.Millisecond)
		_, ok := c.Get(ctx, "short")
		assert.False(t, ok)
	})

	t.Run("Delete and Clear", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "a", "1", 0))
		require.NoError(t, c.Set(ctx, "b", "2", 0))
		require.NoError(t, c.Delete(ctx, "a"))
		assert.False(t, c.Exists(ctx, "a"))
		require.NoError(t, c.Clear(ctx))
		assert.False(t, c.Exists(ctx, "b"))
	})
}

func TestLocalCache(t *testing.T) {
	c := NewLocalCache(DefaultLocalConfig())
	defer c.Close()
	exerciseCache(t, c)
}

func TestLocalCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := NewLocalCache(LocalConfig{MaxSize: 2, DefaultExpiration: time.Minute})
	_ = c.Set(ctx, "a", 1, 0)
	_ = c.Set(ctx, "b", 2, 0)
	_, _ = c.Get(ctx, "a")
	_ = c.Set(ctx, "c", 3, 0)

	assert.True(t, c.Exists(ctx, "a"))
	assert.False(t, c.Exists(ctx, "b"))
	assert.True(t, c.Exists(ctx, "c"))
}

func TestGoCache(t *testing.T) {
	c := NewGoCache(DefaultLocalConfig())
	defer c.Close()
	exerciseCache(t, c)
}

func TestNewCacheRejectsUnknownType(t *testing.T) {
	_, err := NewCache(context.Background(), Config{Type: "memcached"}, nil, "")
	assert.Error(t, err)
}

func TestRedisCache(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()
	client, err := NewRedisClient(ctx, url)
	require.NoError(t, err)
	defer client.Close()

	exerciseCache(t, NewRedisCache(client, "test:cache:"))

	layered, err := NewCache(ctx, Config{Type: "redis", Layered: true, Local: DefaultLocalConfig()}, client, "test:layered:")
	require.NoError(t, err)
	exerciseCache(t, layered)
}
