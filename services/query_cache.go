package services

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// QueryCache is the in-process byte cache behind number statistics and, when
// Redis is not configured, ticket evaluations. Values are stored as copies.
type QueryCache struct {
	mu      sync.RWMutex
	entries map[string]cachedBytes
	ttl     time.Duration
	now     func() time.Time

	stop chan struct{}
	once sync.Once
}

type cachedBytes struct {
	value   []byte
	expires time.Time
}

// NewQueryCache 创建查询缓存. ttl is used when Set is given ttl <= 0; expired
// entries are swept at most once a minute.
func NewQueryCache(ttl time.Duration) *QueryCache {
	c := &QueryCache{
		entries: make(map[string]cachedBytes),
		ttl:     ttl,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go c.sweepLoop(sweepInterval(ttl))
	return c
}

func sweepInterval(ttl time.Duration) time.Duration {
	switch {
	case ttl < time.Second:
		return time.Second
	case ttl > time.Minute:
		return time.Minute
	default:
		return ttl
	}
}

// Get returns the live value under key.
func (c *QueryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || !c.now().Before(entry.expires) {
		return nil, false
	}
	return entry.value, true
}

func (c *QueryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	stored := make([]byte, len(value))
	copy(stored, value)

	c.mu.Lock()
	c.entries[key] = cachedBytes{value: stored, expires: c.now().Add(ttl)}
	c.mu.Unlock()
}

// Len counts stored entries, expired ones included until the next sweep.
func (c *QueryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the sweeper.
func (c *QueryCache) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *QueryCache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

// sweep 清理过期缓存
func (c *QueryCache) sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now, removed := c.now(), 0
	for key, entry := range c.entries {
		if !now.Before(entry.expires) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// CacheKey derives a stable key from the JSON form of params.
func CacheKey(prefix string, params interface{}) (string, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("cache key %s: %w", prefix, err)
	}
	sum := sha256.Sum256(raw)
	return fmt.Sprintf("%s:%x", prefix, sum[:16]), nil
}
