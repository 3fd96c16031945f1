package store

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// CacheStore keeps the whole snapshot under one key in a shared cache.
// Reads happen at limiter construction, writes on flush; both absorb cache
// faults with a warning so a flaky backend never breaks admission.
type CacheStore struct {
	cache  Cache
	key    string
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCacheStore wraps cache. key identifies this limiter's snapshot (the
// four_rl_* form derived from the configuration); ttl bounds how long a
// snapshot outlives its last flush.
func NewCacheStore(cache Cache, key string, ttl time.Duration, logger zerolog.Logger) *CacheStore {
	return &CacheStore{cache: cache, key: key, ttl: ttl, logger: logger}
}

// Key returns the cache key this store reads and writes.
func (c *CacheStore) Key() string { return c.key }

func (c *CacheStore) Load(ctx context.Context) (*Snapshot, error) {
	data, err := c.cache.Get(ctx, c.key)
	if err != nil {
		c.logger.Warn().Err(err).Str("cache_key", c.key).Msg("cache read failed, starting empty")
		return nil, nil
	}
	if data == nil {
		return nil, nil
	}
	snap, err := DecodeSnapshot(data)
	if err != nil {
		c.logger.Warn().Err(err).Str("cache_key", c.key).Msg("cached state malformed, starting empty")
		return nil, nil
	}
	return snap, nil
}

func (c *CacheStore) Save(ctx context.Context, snap *Snapshot) error {
	data, err := snap.Encode()
	if err != nil {
		return err
	}
	if err := c.cache.Set(ctx, c.key, data, c.ttl); err != nil {
		c.logger.Warn().Err(err).Str("cache_key", c.key).Msg("cache write failed")
	}
	return nil
}
