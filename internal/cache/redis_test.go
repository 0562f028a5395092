package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/desertthunder/ytplay/internal/shared"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupMiniRedis starts a miniredis server and a cache bound to it.
func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return mr, newRedisCache(client, shared.NopLogger())
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("put then get", func(t *testing.T) {
		mr, c := setupMiniRedis(t)
		c.now = func() time.Time { return now }

		want := cachedFormat("dQw4w9WgXcQ", now.Add(6*time.Hour))
		require.NoError(t, c.Put(ctx, want))

		got, ok := c.Get(ctx, want.TrackID)
		require.True(t, ok)
		assert.Equal(t, want.URL, got.URL)
		assert.Equal(t, want.FormatID, got.FormatID)
		assert.True(t, want.ExpiresAt.Equal(got.ExpiresAt))

		assert.Equal(t, 6*time.Hour, mr.TTL(redisKey(want.TrackID)))
	})

	t.Run("key expires with the stream", func(t *testing.T) {
		mr, c := setupMiniRedis(t)
		c.now = func() time.Time { return now }

		require.NoError(t, c.Put(ctx, cachedFormat("dQw4w9WgXcQ", now.Add(time.Minute))))
		mr.FastForward(2 * time.Minute)

		_, ok := c.Get(ctx, "dQw4w9WgXcQ")
		assert.False(t, ok)
	})

	t.Run("expired put is dropped", func(t *testing.T) {
		mr, c := setupMiniRedis(t)
		c.now = func() time.Time { return now }

		require.NoError(t, c.Put(ctx, cachedFormat("dQw4w9WgXcQ", now.Add(-time.Second))))
		assert.False(t, mr.Exists(redisKey("dQw4w9WgXcQ")))
	})

	t.Run("invalidate is idempotent", func(t *testing.T) {
		_, c := setupMiniRedis(t)
		c.now = func() time.Time { return now }

		require.NoError(t, c.Put(ctx, cachedFormat("dQw4w9WgXcQ", now.Add(time.Hour))))
		require.NoError(t, c.Invalidate(ctx, "dQw4w9WgXcQ"))
		require.NoError(t, c.Invalidate(ctx, "dQw4w9WgXcQ"))

		_, ok := c.Get(ctx, "dQw4w9WgXcQ")
		assert.False(t, ok)
	})

	t.Run("garbage value is a miss", func(t *testing.T) {
		mr, c := setupMiniRedis(t)
		require.NoError(t, mr.Set(redisKey("dQw4w9WgXcQ"), "not json"))

		_, ok := c.Get(ctx, "dQw4w9WgXcQ")
		assert.False(t, ok)
		assert.Equal(t, int64(1), c.Stats(ctx).Misses)
	})

	t.Run("stats counts format keys", func(t *testing.T) {
		mr, c := setupMiniRedis(t)
		c.now = func() time.Time { return now }
		require.NoError(t, mr.Set("unrelated", "x"))

		require.NoError(t, c.Put(ctx, cachedFormat("aaaaaaaaaaa", now.Add(time.Hour))))
		require.NoError(t, c.Put(ctx, cachedFormat("bbbbbbbbbbb", now.Add(time.Hour))))

		stats := c.Stats(ctx)
		assert.Equal(t, 2, stats.CurrentSize)
		assert.Equal(t, int64(2), stats.Sets)
	})

	t.Run("server down", func(t *testing.T) {
		mr, c := setupMiniRedis(t)
		c.now = func() time.Time { return now }
		mr.Close()

		err := c.Put(ctx, cachedFormat("dQw4w9WgXcQ", now.Add(time.Hour)))
		assert.ErrorIs(t, err, shared.ErrCacheUnavailable)
	})
}

func TestNewRedisCacheUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisCache(context.Background(), shared.RedisConfig{Addr: addr}, nil)
	assert.ErrorIs(t, err, shared.ErrCacheUnavailable)
}
