package fourlimit

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/fourlimit/fourlimit/store"
)

// Builder provides a fluent API for constructing a Limiter.
//
//	limiter, err := fourlimit.NewBuilder().
//	    TokenBucket(10, 100).
//	    SafetyBuffer(0.9).
//	    HeaderMapping(fourlimit.FieldRemaining, "X-RateLimit-Remaining").
//	    Redis(client).
//	    Build()
type Builder struct {
	cfg  Config
	opts []Option
}

// NewBuilder returns a new Builder with default options.
func NewBuilder() *Builder {
	return &Builder{}
}

// ─── Algorithm selectors ─────────────────────────────────────────────────────

// TokenBucket configures a token bucket.
// rate is tokens refilled per second. burst is the bucket capacity.
func (b *Builder) TokenBucket(rate float64, burst int) *Builder {
	b.cfg.Algorithm = TokenBucket
	b.cfg.RatePerSecond = rate
	b.cfg.BurstCapacity = burst
	return b
}

// LeakyBucket configures a leaky bucket.
// rate is the drain rate per second. burst is the bucket capacity.
func (b *Builder) LeakyBucket(rate float64, burst int) *Builder {
	b.cfg.Algorithm = LeakyBucket
	b.cfg.RatePerSecond = rate
	b.cfg.BurstCapacity = burst
	return b
}

// FixedWindow configures a fixed window of the given length.
// rate is requests per second; the per-window limit is rate scaled to the
// window length.
func (b *Builder) FixedWindow(rate float64, burst int, window time.Duration) *Builder {
	b.cfg.Algorithm = FixedWindow
	b.cfg.RatePerSecond = rate
	b.cfg.BurstCapacity = burst
	b.cfg.WindowSize = window
	return b
}

// SlidingWindow configures a sliding window log of the given length.
// rate is requests per second; the in-window limit is rate scaled to the
// window length.
func (b *Builder) SlidingWindow(rate float64, burst int, window time.Duration) *Builder {
	b.cfg.Algorithm = SlidingWindow
	b.cfg.RatePerSecond = rate
	b.cfg.BurstCapacity = burst
	b.cfg.WindowSize = window
	return b
}

// ─── Configuration setters ───────────────────────────────────────────────────

// SafetyBuffer derates every effective rate by f in (0, 1].
func (b *Builder) SafetyBuffer(f float64) *Builder {
	b.cfg.SafetyBuffer = f
	return b
}

// WindowSize overrides the window length for the window algorithms.
func (b *Builder) WindowSize(d time.Duration) *Builder {
	b.cfg.WindowSize = d
	return b
}

// EndpointLimit overrides the rate for one key (pre-buffer).
func (b *Builder) EndpointLimit(key string, rate float64) *Builder {
	if b.cfg.EndpointLimits == nil {
		b.cfg.EndpointLimits = make(map[string]float64)
	}
	b.cfg.EndpointLimits[key] = rate
	return b
}

// HeaderMapping maps an internal field (FieldLimit, FieldRemaining, ...)
// to the header name the remote service uses.
func (b *Builder) HeaderMapping(field, header string) *Builder {
	if b.cfg.HeaderMappings == nil {
		b.cfg.HeaderMappings = make(map[string]string)
	}
	b.cfg.HeaderMappings[field] = header
	return b
}

// CleanupInterval sets the dormancy age for cleanup and the cache TTL base.
func (b *Builder) CleanupInterval(d time.Duration) *Builder {
	b.cfg.CleanupInterval = d
	return b
}

// PersistToFile enables persistence with the file backend at path.
func (b *Builder) PersistToFile(path string) *Builder {
	b.cfg.PersistState = true
	b.cfg.StateFile = path
	return b
}

// PersistToCache enables persistence against the cache supplied via Redis
// or Cache.
func (b *Builder) PersistToCache() *Builder {
	b.cfg.PersistState = true
	return b
}

// ─── Option setters ──────────────────────────────────────────────────────────

// Redis sets the shared-cache backend. Accepts any redis.UniversalClient.
func (b *Builder) Redis(client redis.UniversalClient) *Builder {
	b.opts = append(b.opts, WithRedis(client))
	return b
}

// Cache sets a custom store.Cache backend.
func (b *Builder) Cache(c store.Cache) *Builder {
	b.opts = append(b.opts, WithCache(c))
	return b
}

// Store sets a fully-formed store.Store, bypassing backend selection.
func (b *Builder) Store(s store.Store) *Builder {
	b.opts = append(b.opts, WithStore(s))
	return b
}

// Logger directs limiter diagnostics to l.
func (b *Builder) Logger(l zerolog.Logger) *Builder {
	b.opts = append(b.opts, WithLogger(l))
	return b
}

// Clock substitutes the time source.
func (b *Builder) Clock(c Clock) *Builder {
	b.opts = append(b.opts, WithClock(c))
	return b
}

// ─── Build ───────────────────────────────────────────────────────────────────

// Build validates the configuration and returns the configured Limiter.
func (b *Builder) Build() (Limiter, error) {
	if b.cfg.Algorithm == "" {
		return nil, fmt.Errorf("%w: no algorithm selected; call TokenBucket, LeakyBucket, FixedWindow, or SlidingWindow before Build", ErrInvalidConfig)
	}
	return New(b.cfg, b.opts...)
}
