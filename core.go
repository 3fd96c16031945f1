package fourlimit

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fourlimit/fourlimit/store"
)

// keyState is the per-key state owned by one strategy. Concrete types are
// JSON round-trippable so the state store can persist them opaquely.
type keyState interface {
	markRequest(now time.Time)
}

// strategy is the hook set an algorithm plugs into the shared core. Every
// hook runs with the core lock held; implementations assert the keyState
// to their own concrete type.
type strategy interface {
	tag() Algorithm
	// legacyName is the top-level member emitted in persisted snapshots.
	legacyName() string
	// sleepCap bounds a single sleep inside WaitN.
	sleepCap() time.Duration

	newState(c *core, now time.Time) keyState
	// advance performs the refill/decay/expire step for the present time.
	advance(c *core, key string, s keyState, now time.Time)
	// admit charges n units when admissible and reports whether it did.
	admit(c *core, key string, s keyState, now time.Time, n int) bool
	// capacity is the largest n that could ever be admitted for key.
	capacity(c *core, key string, s keyState) int
	// wait estimates the time until a single unit would be admitted.
	wait(c *core, key string, s keyState, now time.Time) time.Duration
	// snapshot returns the algorithm-specific status fields and a usage
	// percentage (clamped by the caller).
	snapshot(c *core, key string, s keyState, now time.Time) (map[string]interface{}, float64)
	// reconcile folds authoritative header hints into the key's state.
	reconcile(c *core, key string, s keyState, now time.Time, h headerHints)
	// dormant reports whether the key saw no activity since cutoff.
	dormant(s keyState, cutoff time.Time) bool
	decodeState(data []byte) (keyState, error)
}

// Suffixes for the fixed-window rate overlays derived from daily/hourly
// limit headers. They live in the same dynamic-limits map as the plain
// per-key overlay and follow their key through cleanup.
const (
	dailyRateSuffix  = "_daily"
	hourlyRateSuffix = "_hourly"
)

// core carries the lifecycle shared by all four algorithms: the state map,
// the dynamic-limits overlay, the dirty flag, waiting, statuses, cleanup,
// persistence, and the header-reconciliation scaffold. One mutex covers all
// of it; strategies never lock.
type core struct {
	cfg    Config
	strat  strategy
	clock  Clock
	logger zerolog.Logger
	store  store.Store

	mu      sync.Mutex
	states  map[string]keyState
	dynamic map[string]float64
	dirty   bool
	closed  bool
}

func newCore(cfg Config, strat strategy, o options) *core {
	return &core{
		cfg:     cfg,
		strat:   strat,
		clock:   o.clock,
		logger:  o.logger,
		states:  make(map[string]keyState),
		dynamic: make(map[string]float64),
	}
}

// state returns the key's state, creating it on first touch.
func (c *core) state(key string, now time.Time) keyState {
	st, ok := c.states[key]
	if !ok {
		st = c.strat.newState(c, now)
		c.states[key] = st
	}
	return st
}

// bufferedRate is the configured rate for key (endpoint override or
// default) derated by the safety buffer. Dynamic overlays do not apply.
func (c *core) bufferedRate(key string) float64 {
	rate := c.cfg.RatePerSecond
	if override, ok := c.cfg.EndpointLimits[key]; ok {
		rate = override
	}
	return rate * c.cfg.SafetyBuffer
}

// effectiveRate resolves the rate the bucket algorithms pace at:
// dynamic overlay first, then the buffered configured rate.
func (c *core) effectiveRate(key string) float64 {
	if rate, ok := c.dynamic[key]; ok {
		return rate
	}
	return c.bufferedRate(key)
}

func (c *core) Algorithm() Algorithm { return c.strat.tag() }

func (c *core) Allow(key string) bool { return c.AllowN(key, 1) }

func (c *core) AllowN(key string, n int) bool {
	if n < 1 {
		n = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	st := c.state(key, now)
	c.strat.advance(c, key, st, now)
	if !c.strat.admit(c, key, st, now, n) {
		return false
	}
	st.markRequest(now)
	c.dirty = true
	return true
}

func (c *core) Wait(ctx context.Context, key string) bool {
	return c.WaitN(ctx, key, 1, DefaultMaxWait)
}

func (c *core) WaitN(ctx context.Context, key string, n int, maxWait time.Duration) bool {
	if n < 1 {
		n = 1
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	deadline := c.clock.Now().Add(maxWait)
	for {
		c.mu.Lock()
		now := c.clock.Now()
		st := c.state(key, now)
		c.strat.advance(c, key, st, now)
		if n > c.strat.capacity(c, key, st) {
			// Can never be admitted; fail fast rather than sleep out
			// the budget.
			c.mu.Unlock()
			return false
		}
		if c.strat.admit(c, key, st, now, n) {
			st.markRequest(now)
			c.dirty = true
			c.mu.Unlock()
			return true
		}
		wait := c.strat.wait(c, key, st, now)
		c.mu.Unlock()

		now = c.clock.Now()
		if !now.Before(deadline) {
			return false
		}
		sleep := wait
		if step := c.strat.sleepCap(); sleep > step {
			sleep = step
		}
		if sleep < time.Millisecond {
			// Reported wait can be zero while admission still fails
			// (another waiter won the tokens); never busy-loop.
			sleep = time.Millisecond
		}
		if remain := deadline.Sub(now); sleep > remain {
			sleep = remain
		}
		if err := c.clock.Sleep(ctx, sleep); err != nil {
			return false
		}
	}
}

func (c *core) WaitTime(key string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	st := c.state(key, now)
	c.strat.advance(c, key, st, now)
	return c.strat.wait(c, key, st, now)
}

func (c *core) Reset(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[key] = c.strat.newState(c, c.clock.Now())
	c.dirty = true
}

func (c *core) ResetAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states = make(map[string]keyState)
	c.dynamic = make(map[string]float64)
	c.dirty = true
}

func (c *core) Status(key string) map[string]interface{} {
	return c.TypedStatus(key).Map()
}

func (c *core) TypedStatus(key string) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	st := c.state(key, now)
	c.strat.advance(c, key, st, now)
	return c.statusLocked(key, st, now)
}

func (c *core) AllStatuses() map[string]map[string]interface{} {
	typed := c.AllTypedStatuses()
	all := make(map[string]map[string]interface{}, len(typed))
	for key, s := range typed {
		all[key] = s.Map()
	}
	return all
}

func (c *core) AllTypedStatuses() map[string]Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	all := make(map[string]Status, len(c.states))
	for key, st := range c.states {
		c.strat.advance(c, key, st, now)
		all[key] = c.statusLocked(key, st, now)
	}
	return all
}

func (c *core) statusLocked(key string, st keyState, now time.Time) Status {
	raw, usage := c.strat.snapshot(c, key, st, now)
	wait := c.strat.wait(c, key, st, now)
	if usage < 0 {
		usage = 0
	} else if usage > 100 {
		usage = 100
	}
	return Status{
		Algorithm:    c.strat.tag(),
		Key:          key,
		Limited:      wait > 0,
		WaitTime:     wait,
		UsagePercent: usage,
		Raw:          raw,
	}
}

func (c *core) Cleanup(maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = c.cfg.CleanupInterval
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cleanupLocked(maxAge)
}

func (c *core) cleanupLocked(maxAge time.Duration) int {
	cutoff := c.clock.Now().Add(-maxAge)
	removed := 0
	for key, st := range c.states {
		if !c.strat.dormant(st, cutoff) {
			continue
		}
		delete(c.states, key)
		delete(c.dynamic, key)
		delete(c.dynamic, key+dailyRateSuffix)
		delete(c.dynamic, key+hourlyRateSuffix)
		removed++
	}
	if removed > 0 {
		c.dirty = true
		c.logger.Debug().Int("removed", removed).Msg("cleaned up dormant keys")
	}
	return removed
}

func (c *core) UpdateFromHeaders(key string, headers http.Header) {
	hints := parseHints(c.cfg.HeaderMappings, headers)
	if hints.empty() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	st := c.state(key, now)
	c.strat.advance(c, key, st, now)
	c.strat.reconcile(c, key, st, now, hints)
	c.dirty = true
	c.logger.Debug().Str("key", key).Msg("reconciled state from response headers")
}

func (c *core) Flush() error {
	c.mu.Lock()
	if c.store == nil || !c.dirty {
		c.mu.Unlock()
		return nil
	}
	snap, err := c.snapshotLocked(c.clock.Now())
	if err != nil {
		c.mu.Unlock()
		c.logger.Warn().Err(err).Msg("state snapshot failed")
		return err
	}
	c.dirty = false
	c.mu.Unlock()

	if err := c.store.Save(context.Background(), snap); err != nil {
		c.logger.Warn().Err(err).Msg("state flush failed")
		c.mu.Lock()
		c.dirty = true
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *core) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.Flush()
}

func (c *core) snapshotLocked(now time.Time) (*store.Snapshot, error) {
	snap := &store.Snapshot{
		State:         make(map[string]json.RawMessage, len(c.states)),
		DynamicLimits: make(map[string]float64, len(c.dynamic)),
		Timestamp:     float64(now.UnixNano()) / float64(time.Second),
		LegacyName:    c.strat.legacyName(),
	}
	for key, st := range c.states {
		raw, err := json.Marshal(st)
		if err != nil {
			return nil, err
		}
		snap.State[key] = raw
	}
	for k, v := range c.dynamic {
		snap.DynamicLimits[k] = v
	}
	return snap, nil
}

// load restores state from the store at construction time, dropping
// entries that no longer decode and anything dormant past the cleanup
// interval. Load failures leave the limiter empty; the in-memory model
// stays authoritative either way.
func (c *core) load(ctx context.Context) {
	snap, err := c.store.Load(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("state load failed, starting empty")
		return
	}
	if snap == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, raw := range snap.State {
		st, err := c.strat.decodeState(raw)
		if err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("dropping undecodable state entry")
			continue
		}
		c.states[key] = st
	}
	for k, v := range snap.DynamicLimits {
		c.dynamic[k] = v
	}
	expired := c.cleanupLocked(c.cfg.CleanupInterval)
	c.logger.Debug().Int("keys", len(c.states)).Int("expired", expired).Msg("state loaded")
}

// millisCeil converts a wait expressed in seconds into a duration rounded
// up to whole milliseconds.
func millisCeil(seconds float64) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(math.Ceil(seconds*1000)) * time.Millisecond
}
