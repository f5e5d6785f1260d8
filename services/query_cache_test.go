package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryCache_SetGetExpire(t *testing.T) {
	cache := NewQueryCache(time.Minute)
	defer cache.Close()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }
	ctx := context.Background()

	cache.Set(ctx, "eval:1", []byte(`[1]`), 0)
	cache.Set(ctx, "eval:2", []byte(`[2]`), 5*time.Minute)

	got, ok := cache.Get(ctx, "eval:1")
	assert.True(t, ok)
	assert.Equal(t, []byte(`[1]`), got)

	now = now.Add(time.Minute)
	_, ok = cache.Get(ctx, "eval:1")
	assert.False(t, ok, "default ttl applies")
	_, ok = cache.Get(ctx, "eval:2")
	assert.True(t, ok)

	assert.Equal(t, 2, cache.Len())
	assert.Equal(t, 1, cache.sweep())
	assert.Equal(t, 1, cache.Len())
}

func TestQueryCache_StoresCopy(t *testing.T) {
	cache := NewQueryCache(time.Minute)
	defer cache.Close()
	ctx := context.Background()

	value := []byte(`{"draws":2}`)
	cache.Set(ctx, "stats:x", value, 0)
	value[2] = 'X'

	got, ok := cache.Get(ctx, "stats:x")
	require.True(t, ok)
	assert.Equal(t, `{"draws":2}`, string(got))
}

func TestSweepInterval(t *testing.T) {
	assert.Equal(t, time.Second, sweepInterval(0))
	assert.Equal(t, 30*time.Second, sweepInterval(30*time.Second))
	assert.Equal(t, time.Minute, sweepInterval(24*time.Hour))
}

func TestCacheKey(t *testing.T) {
	a, err := CacheKey("stats", map[string]int{"lookback": 52})
	require.NoError(t, err)
	b, _ := CacheKey("stats", map[string]int{"lookback": 52})
	c, _ := CacheKey("stats", map[string]int{"lookback": 10})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Contains(t, a, "stats:")

	_, err = CacheKey("stats", map[string]interface{}{"bad": make(chan int)})
	assert.Error(t, err)
}
