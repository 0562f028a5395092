package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytplay/internal/models"
	"github.com/desertthunder/ytplay/internal/shared"
	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "ytplay:format:"
	redisOpTimeout = 2 * time.Second
)

// RedisCache is a [FormatCache] shared between processes. Keys expire with the stream URL.
type RedisCache struct {
	client *redis.Client
	logger *log.Logger
	now    func() time.Time
	stats  struct {
		hits   atomic.Int64
		misses atomic.Int64
		sets   atomic.Int64
	}
}

// NewRedisCache connects to Redis and pings it once.
func NewRedisCache(ctx context.Context, cfg shared.RedisConfig, logger *log.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: redis %s: %v", shared.ErrCacheUnavailable, cfg.Addr, err)
	}

	if logger == nil {
		logger = shared.NopLogger()
	}
	logger.Info("connected to redis cache", "addr", cfg.Addr, "db", cfg.DB)

	return newRedisCache(client, logger), nil
}

func newRedisCache(client *redis.Client, logger *log.Logger) *RedisCache {
	return &RedisCache{client: client, logger: logger, now: time.Now}
}

func redisKey(id models.TrackID) string { return redisKeyPrefix + string(id) }

func (c *RedisCache) Get(ctx context.Context, id models.TrackID) (models.CachedFormat, bool) {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	val, err := c.client.Get(ctx, redisKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("redis get failed", "track", id, "error", err)
		}
		c.stats.misses.Add(1)
		return models.CachedFormat{}, false
	}

	var f models.CachedFormat
	if err := json.Unmarshal(val, &f); err != nil {
		c.logger.Warn("cached format unreadable", "track", id, "error", err)
		c.stats.misses.Add(1)
		return models.CachedFormat{}, false
	}
	if !c.now().Before(f.ExpiresAt) {
		c.stats.misses.Add(1)
		return models.CachedFormat{}, false
	}

	c.stats.hits.Add(1)
	return f, true
}

// Put stores f with a TTL matching its remaining lifetime. Already expired entries are dropped.
func (c *RedisCache) Put(ctx context.Context, f models.CachedFormat) error {
	ttl := f.ExpiresAt.Sub(c.now())
	if ttl <= 0 {
		return c.Invalidate(ctx, f.TrackID)
	}

	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to encode cached format: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	if err := c.client.Set(ctx, redisKey(f.TrackID), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrCacheUnavailable, err)
	}
	c.stats.sets.Add(1)
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, id models.TrackID) error {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	if err := c.client.Del(ctx, redisKey(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrCacheUnavailable, err)
	}
	return nil
}

// Stats returns the counters. CurrentSize counts only format keys.
func (c *RedisCache) Stats(ctx context.Context) Stats {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	size := 0
	iter := c.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		size++
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("redis scan failed", "error", err)
	}

	return Stats{
		Hits:        c.stats.hits.Load(),
		Misses:      c.stats.misses.Load(),
		Sets:        c.stats.sets.Load(),
		CurrentSize: size,
	}
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
