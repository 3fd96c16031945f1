package fourlimit

import (
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Algorithm selects the pacing strategy a limiter runs.
type Algorithm string

const (
	// TokenBucket admits bursts up to capacity and refills continuously.
	TokenBucket Algorithm = "token_bucket"
	// LeakyBucket fills on admission and drains at the effective rate,
	// smoothing traffic after the initial burst.
	LeakyBucket Algorithm = "leaky_bucket"
	// FixedWindow counts admissions per discrete window and hard-resets
	// at the boundary.
	FixedWindow Algorithm = "fixed_window"
	// SlidingWindow tracks admission timestamps over a trailing window.
	SlidingWindow Algorithm = "sliding_window"
)

func (a Algorithm) String() string { return string(a) }

// Valid reports whether a is one of the four supported tags.
func (a Algorithm) Valid() bool {
	switch a {
	case TokenBucket, LeakyBucket, FixedWindow, SlidingWindow:
		return true
	}
	return false
}

// prefix is the short tag used in cache keys.
func (a Algorithm) prefix() string {
	switch a {
	case TokenBucket:
		return "tb"
	case LeakyBucket:
		return "lb"
	case FixedWindow:
		return "fw"
	case SlidingWindow:
		return "sw"
	}
	return "xx"
}

// Internal field names recognized in Config.HeaderMappings. Map these to
// whatever header names the remote service emits, e.g.
// {FieldRemaining: "X-RateLimit-Remaining"}.
const (
	FieldLimit          = "limit"
	FieldRemaining      = "remaining"
	FieldReset          = "reset"
	FieldRetryAfter     = "retry_after"
	FieldDailyLimit     = "daily_limit"
	FieldHourlyLimit    = "hourly_limit"
	FieldDailyRemaining = "daily_remaining"
)

const (
	// DefaultSafetyBuffer derates every configured or header-derived rate.
	DefaultSafetyBuffer = 0.8
	// DefaultWindowSize applies to the window algorithms when Config leaves
	// WindowSize zero.
	DefaultWindowSize = time.Second
	// DefaultCleanupInterval is the dormancy age for automatic cleanup and
	// the base of the cache TTL.
	DefaultCleanupInterval = time.Hour
	// DefaultMaxWait bounds Wait and is the wait-time fallback when the
	// effective rate is degenerate.
	DefaultMaxWait = 30 * time.Second
)

// Config is the immutable parameter bundle a limiter is built from.
// The zero value is not usable; Algorithm, RatePerSecond and BurstCapacity
// are required. Optional fields fall back to the documented defaults.
type Config struct {
	// Algorithm picks one of the four pacing strategies.
	Algorithm Algorithm

	// RatePerSecond is the steady-state admission rate before the safety
	// buffer is applied. Must be positive.
	RatePerSecond float64

	// BurstCapacity is the maximum instantaneous admission per key.
	// Must be at least 1.
	BurstCapacity int

	// SafetyBuffer in (0, 1] derates every effective rate so the local
	// model stays conservative relative to the remote service.
	// Zero means DefaultSafetyBuffer.
	SafetyBuffer float64

	// EndpointLimits overrides RatePerSecond per key (pre-buffer).
	EndpointLimits map[string]float64

	// HeaderMappings maps internal field names (FieldLimit, FieldRemaining,
	// ...) to the response header names the remote service uses. Keys
	// outside the known field set are ignored.
	HeaderMappings map[string]string

	// WindowSize is the window length for FixedWindow and SlidingWindow.
	// Zero means DefaultWindowSize. Sub-millisecond values are rejected.
	WindowSize time.Duration

	// PersistState enables the state store: loaded at construction,
	// written on Flush/Close.
	PersistState bool

	// StateFile is the file backend target. With a cache supplied it only
	// feeds the cache-key hash; without one it selects the file backend.
	StateFile string

	// CleanupInterval is the dormancy age used by automatic cleanup and
	// doubled for the cache TTL. Zero means DefaultCleanupInterval;
	// sub-second values are rejected.
	CleanupInterval time.Duration
}

// withDefaults returns c with zero-valued optional fields filled in.
func (c Config) withDefaults() Config {
	if c.SafetyBuffer == 0 {
		c.SafetyBuffer = DefaultSafetyBuffer
	}
	if c.WindowSize == 0 {
		c.WindowSize = DefaultWindowSize
	}
	if c.CleanupInterval == 0 {
		c.CleanupInterval = DefaultCleanupInterval
	}
	return c
}

// Validate checks the constraints documented on each field. Errors match
// ErrInvalidConfig; an unknown tag also matches ErrUnsupportedAlgorithm.
func (c Config) Validate() error {
	if !c.Algorithm.Valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, c.Algorithm)
	}
	if c.RatePerSecond <= 0 {
		return fmt.Errorf("%w: rate_per_second must be positive, got %g", ErrInvalidConfig, c.RatePerSecond)
	}
	if c.BurstCapacity < 1 {
		return fmt.Errorf("%w: burst_capacity must be at least 1, got %d", ErrInvalidConfig, c.BurstCapacity)
	}
	if c.SafetyBuffer <= 0 || c.SafetyBuffer > 1 {
		return fmt.Errorf("%w: safety_buffer must be in (0, 1], got %g", ErrInvalidConfig, c.SafetyBuffer)
	}
	if c.WindowSize < time.Millisecond {
		return fmt.Errorf("%w: window_size must be at least 1ms, got %s", ErrInvalidConfig, c.WindowSize)
	}
	if c.CleanupInterval < time.Second {
		return fmt.Errorf("%w: cleanup_interval must be at least 1s, got %s", ErrInvalidConfig, c.CleanupInterval)
	}
	return nil
}

// cacheKey derives the shared-cache key for this configuration:
// four_rl_<algo>_<8 hex>. The hash covers the state-file path when one is
// configured, otherwise the rate/burst/window tuple, so limiters built from
// the same identity material share a snapshot.
func (c Config) cacheKey() string {
	material := c.StateFile
	if material == "" {
		material = fmt.Sprintf("%g|%d|%d", c.RatePerSecond, c.BurstCapacity, c.WindowSize.Milliseconds())
	}
	sum := xxhash.Sum64String(material)
	return fmt.Sprintf("four_rl_%s_%08x", c.Algorithm.prefix(), uint32(sum))
}
