package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/m3rciful/vkinder/core/logger"
)

// DefaultTTL is how long merged search results stay reusable.
const DefaultTTL = 5 * time.Minute

// Cache keeps the merged candidate ids of a user's last search. It is best-effort:
// failures behave like misses.
type Cache interface {
	Get(ctx context.Context, userID int64) ([]int64, bool)
	Put(ctx context.Context, userID int64, ids []int64)
}

type cacheEntry struct {
	ids     []int64
	expires time.Time
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	entries   map[int64]cacheEntry
	lastSweep time.Time
}

// NewMemoryCache returns a cache with the given ttl; now defaults to time.Now.
func NewMemoryCache(ttl time.Duration, now func() time.Time) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{ttl: ttl, now: now, entries: make(map[int64]cacheEntry)}
}

// Get returns the ids stored for userID unless they expired.
func (c *MemoryCache) Get(_ context.Context, userID int64) ([]int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[userID]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, userID)
		return nil, false
	}
	return append([]int64(nil), e.ids...), true
}

// Put stores ids for userID and drops expired entries at most once per ttl.
func (c *MemoryCache) Put(_ context.Context, userID int64, ids []int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if now.Sub(c.lastSweep) >= c.ttl {
		for id, e := range c.entries {
			if !now.Before(e.expires) {
				delete(c.entries, id)
			}
		}
		c.lastSweep = now
	}
	c.entries[userID] = cacheEntry{ids: append([]int64(nil), ids...), expires: now.Add(c.ttl)}
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// RedisClient is the subset of the go-redis API used by RedisCache.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// RedisCache shares search results between bot instances. Redis enforces the ttl.
type RedisCache struct {
	client RedisClient
	ttl    time.Duration
	prefix string
}

// NewRedisCache stores entries under prefix with the given ttl.
func NewRedisCache(client RedisClient, prefix string, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if prefix == "" {
		prefix = "vkinder"
	}
	return &RedisCache{client: client, ttl: ttl, prefix: prefix}
}

func (c *RedisCache) key(userID int64) string {
	return fmt.Sprintf("%s:search:%d", c.prefix, userID)
}

// Get returns the cached ids; redis errors are logged and reported as a miss.
func (c *RedisCache) Get(ctx context.Context, userID int64) ([]int64, bool) {
	raw, err := c.client.Get(ctx, c.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		logger.Warn(ctx, logger.CompSearch, "search.cache.get", slog.String("status", "fail"), slog.String("err", err.Error()))
		return nil, false
	}
	var ids []int64
	if err := json.Unmarshal(raw, &ids); err != nil {
		logger.Warn(ctx, logger.CompSearch, "search.cache.decode", slog.String("status", "fail"), slog.String("err", err.Error()))
		return nil, false
	}
	return ids, true
}

// Put stores ids; failures are logged.
func (c *RedisCache) Put(ctx context.Context, userID int64, ids []int64) {
	raw, err := json.Marshal(ids)
	if err == nil {
		err = c.client.Set(ctx, c.key(userID), raw, c.ttl).Err()
	}
	if err != nil {
		logger.Warn(ctx, logger.CompSearch, "search.cache.put", slog.String("status", "fail"), slog.String("err", err.Error()))
	}
}
