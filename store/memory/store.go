// Package memory provides an in-memory implementation of store.Cache.
//
// This is useful for testing and single-process deployments that want the
// cache backend's snapshot semantics without a Redis instance.
//
//	c := memory.New()
//	limiter, err := fourlimit.New(cfg, fourlimit.WithCache(c))
package memory

import (
	"context"
	"sync"
	"time"
)

// Cache implements store.Cache with an in-process map.
// All operations are thread-safe.
type Cache struct {
	mu   sync.Mutex
	data map[string]entry

	// now is a test seam; defaults to time.Now.
	now func() time.Time
}

type entry struct {
	value    []byte
	expireAt time.Time // zero means no expiry
}

// New creates an empty in-memory Cache.
func New() *Cache {
	return &Cache{
		data: make(map[string]entry),
		now:  time.Now,
	}
}

// Get returns the value at key, or (nil, nil) when absent or expired.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.data[key]
	if !ok {
		return nil, nil
	}
	if !e.expireAt.IsZero() && c.now().After(e.expireAt) {
		delete(c.data, key)
		return nil, nil
	}
	value := make([]byte, len(e.value))
	copy(value, e.value)
	return value, nil
}

// Set stores value at key with the given TTL (0 = no expiry).
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := entry{value: make([]byte, len(value))}
	copy(e.value, value)
	if ttl > 0 {
		e.expireAt = c.now().Add(ttl)
	}
	c.data[key] = e
	return nil
}

// Len reports how many live entries the cache holds.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}
