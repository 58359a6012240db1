package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheTTL(t *testing.T) {
	c := &clock{t: time.Unix(0, 0)}
	cache := NewMemoryCache(time.Minute, c.now)
	ctx := context.Background()

	cache.Put(ctx, 1, []int64{3, 4})
	ids, ok := cache.Get(ctx, 1)
	require.True(t, ok)
	assert.Equal(t, []int64{3, 4}, ids)

	ids[0] = 99
	again, _ := cache.Get(ctx, 1)
	assert.Equal(t, int64(3), again[0], "callers get a copy")

	c.advance(time.Minute)
	_, ok = cache.Get(ctx, 1)
	assert.False(t, ok)
	assert.Zero(t, cache.Len())
}

func TestMemoryCacheSweepsOnPut(t *testing.T) {
	c := &clock{t: time.Unix(0, 0)}
	cache := NewMemoryCache(time.Minute, c.now)
	ctx := context.Background()
	cache.Put(ctx, 1, []int64{1})
	cache.Put(ctx, 2, []int64{2})
	c.advance(2 * time.Minute)
	cache.Put(ctx, 3, []int64{3})
	assert.Equal(t, 1, cache.Len())
}

type fakeRedis struct {
	data   map[string]string
	ttl    time.Duration
	getErr error
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	f.data[key] = string(value.([]byte))
	f.ttl = ttl
	return redis.NewStatusResult("OK", nil)
}

func TestRedisCache(t *testing.T) {
	fr := &fakeRedis{data: map[string]string{}}
	cache := NewRedisCache(fr, "test", 0)
	ctx := context.Background()

	_, ok := cache.Get(ctx, 7)
	assert.False(t, ok)

	cache.Put(ctx, 7, []int64{1, 2})
	assert.Equal(t, "[1,2]", fr.data["test:search:7"])
	assert.Equal(t, DefaultTTL, fr.ttl)

	ids, ok := cache.Get(ctx, 7)
	require.True(t, ok)
	assert.Equal(t, []int64{1, 2}, ids)

	fr.getErr = errors.New("connection refused")
	_, ok = cache.Get(ctx, 7)
	assert.False(t, ok, "errors behave like a miss")
}
