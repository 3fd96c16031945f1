package fourlimit

import (
	"context"
	"net/http"
	"time"
)

// Limiter is the uniform contract all four algorithms satisfy. Obtain one
// from New or Builder.Build; every method is safe for concurrent use.
//
// A key names one logical operation stream (an endpoint, a tenant, an API
// token). State is created on first touch and is fully independent between
// keys.
type Limiter interface {
	// Allow reports whether one unit may proceed now, charging it when so.
	// A denial mutates nothing beyond refill/decay recomputation.
	Allow(key string) bool

	// AllowN is Allow for n units, admitted atomically or not at all.
	// n below 1 is treated as 1. When n exceeds the key's effective
	// capacity the request can never succeed and is always denied.
	AllowN(key string, n int) bool

	// Wait blocks until one unit is admitted or DefaultMaxWait elapses,
	// reporting success. Cancelling ctx also ends the wait with false.
	Wait(ctx context.Context, key string) bool

	// WaitN blocks until n units are admitted or maxWait elapses.
	// maxWait <= 0 means DefaultMaxWait. Requests that exceed the key's
	// effective capacity fail fast instead of sleeping out the budget.
	WaitN(ctx context.Context, key string, n int, maxWait time.Duration) bool

	// WaitTime estimates how long until a single unit would be admitted;
	// zero when admissible now. Returns DefaultMaxWait when the effective
	// rate is degenerate (non-positive override).
	WaitTime(key string) time.Duration

	// Reset restores the key to full admission capacity.
	Reset(key string)

	// ResetAll drops every key's state and every dynamic limit.
	ResetAll()

	// Status returns the loose-map snapshot for key; TypedStatus the
	// typed one. Both advance refill/decay first so the view is current.
	Status(key string) map[string]interface{}
	TypedStatus(key string) Status

	// AllStatuses / AllTypedStatuses snapshot every tracked key.
	AllStatuses() map[string]map[string]interface{}
	AllTypedStatuses() map[string]Status

	// Cleanup removes keys dormant for longer than maxAge and returns the
	// count removed. maxAge <= 0 means the configured CleanupInterval.
	Cleanup(maxAge time.Duration) int

	// UpdateFromHeaders reconciles the key's state with authoritative
	// response headers, resolved through Config.HeaderMappings. Local
	// availability only ever moves down toward the server's view.
	UpdateFromHeaders(key string, headers http.Header)

	// Flush persists the state snapshot when dirty. A limiter without a
	// store, or with nothing new to write, returns nil.
	Flush() error

	// Close flushes and releases the limiter. Safe to call twice.
	Close() error

	// Algorithm reports the pacing strategy this limiter runs.
	Algorithm() Algorithm
}
