// Package cache stores resolved formats per track so repeat plays skip resolution.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/desertthunder/ytplay/internal/models"
)

// FormatCache is the per-track format store used by the resolver and the
// recovery controller. Invalidate is idempotent.
type FormatCache interface {
	// Get returns the entry for id. Expired entries are reported as misses.
	Get(ctx context.Context, id models.TrackID) (models.CachedFormat, bool)
	// Put stores f until f.ExpiresAt.
	Put(ctx context.Context, f models.CachedFormat) error
	// Invalidate removes the entry for id, if any.
	Invalidate(ctx context.Context, id models.TrackID) error
}

// Stats holds cache counters.
type Stats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Sets        int64 `json:"sets"`
	Evictions   int64 `json:"evictions"`
	CurrentSize int   `json:"current_size"`
}

// MemoryCache is an in-process [FormatCache] with periodic cleanup of expired entries.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[models.TrackID]models.CachedFormat
	stats   Stats
	now     func() time.Time
	janitor *janitor
	once    sync.Once
}

// NewMemoryCache creates a memory cache. A positive cleanupInterval starts a
// background janitor that must be stopped with [MemoryCache.Close].
func NewMemoryCache(cleanupInterval time.Duration) *MemoryCache {
	c := &MemoryCache{
		entries: make(map[models.TrackID]models.CachedFormat),
		now:     time.Now,
	}

	if cleanupInterval > 0 {
		c.janitor = &janitor{
			interval: cleanupInterval,
			stop:     make(chan struct{}),
			done:     make(chan struct{}),
		}
		go c.janitor.run(c)
	}
	return c
}

func (c *MemoryCache) Get(_ context.Context, id models.TrackID) (models.CachedFormat, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, ok := c.entries[id]
	if !ok || !c.now().Before(f.ExpiresAt) {
		c.stats.Misses++
		return models.CachedFormat{}, false
	}
	c.stats.Hits++
	return f, true
}

func (c *MemoryCache) Put(_ context.Context, f models.CachedFormat) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[f.TrackID] = f
	c.stats.Sets++
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, id models.TrackID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	return nil
}

// Stats returns a snapshot of the counters.
func (c *MemoryCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := c.stats
	s.CurrentSize = len(c.entries)
	return s
}

// deleteExpired removes expired entries and returns how many were dropped.
func (c *MemoryCache) deleteExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	count := 0
	for id, f := range c.entries {
		if !now.Before(f.ExpiresAt) {
			delete(c.entries, id)
			count++
		}
	}
	c.stats.Evictions += int64(count)
	return count
}

// Close stops the janitor and waits for it to exit. Safe to call more than once.
func (c *MemoryCache) Close() error {
	c.once.Do(func() {
		if c.janitor != nil {
			close(c.janitor.stop)
			<-c.janitor.done
		}
	})
	return nil
}

type janitor struct {
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func (j *janitor) run(c *MemoryCache) {
	defer close(j.done)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-j.stop:
			return
		}
	}
}
