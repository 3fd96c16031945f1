package fourlimit

import (
	"encoding/json"
	"math"
	"time"
)

// tokenBucket admits bursts up to capacity and refills continuously at the
// effective rate. Capacity equals the configured burst — it is never
// widened to the per-second rate, so a 100/s limiter with burst 10 still
// holds at most 10 tokens.
type tokenBucket struct{}

type tokenBucketState struct {
	Tokens      float64   `json:"tokens"`
	Capacity    int       `json:"capacity"`
	LastRefill  unixTime  `json:"last_refill"`
	LastRequest *unixTime `json:"last_request,omitempty"`
}

func (s *tokenBucketState) markRequest(now time.Time) {
	s.LastRequest = &unixTime{now}
}

func (tokenBucket) tag() Algorithm          { return TokenBucket }
func (tokenBucket) legacyName() string      { return "buckets" }
func (tokenBucket) sleepCap() time.Duration { return time.Second }

func (tokenBucket) newState(c *core, now time.Time) keyState {
	return &tokenBucketState{
		Tokens:     float64(c.cfg.BurstCapacity),
		Capacity:   c.cfg.BurstCapacity,
		LastRefill: unixTime{now},
	}
}

func (tokenBucket) advance(c *core, key string, s keyState, now time.Time) {
	st := s.(*tokenBucketState)
	elapsed := now.Sub(st.LastRefill.Time).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	if rate := c.effectiveRate(key); rate > 0 {
		st.Tokens = math.Min(float64(st.Capacity), st.Tokens+elapsed*rate)
	}
	st.LastRefill = unixTime{now}
}

func (tokenBucket) admit(c *core, key string, s keyState, now time.Time, n int) bool {
	st := s.(*tokenBucketState)
	cost := float64(n)
	if st.Tokens < cost {
		return false
	}
	st.Tokens -= cost
	return true
}

func (tokenBucket) capacity(c *core, key string, s keyState) int {
	return s.(*tokenBucketState).Capacity
}

func (tokenBucket) wait(c *core, key string, s keyState, now time.Time) time.Duration {
	st := s.(*tokenBucketState)
	if st.Tokens >= 1 {
		return 0
	}
	rate := c.effectiveRate(key)
	if rate <= 0 {
		return DefaultMaxWait
	}
	return millisCeil((1 - st.Tokens) / rate)
}

func (tokenBucket) snapshot(c *core, key string, s keyState, now time.Time) (map[string]interface{}, float64) {
	st := s.(*tokenBucketState)
	usage := 0.0
	if st.Capacity > 0 {
		usage = (float64(st.Capacity) - st.Tokens) / float64(st.Capacity) * 100
	}
	return map[string]interface{}{
		"tokens":   st.Tokens,
		"capacity": st.Capacity,
		"rate":     c.effectiveRate(key),
	}, usage
}

func (tokenBucket) reconcile(c *core, key string, s keyState, now time.Time, h headerHints) {
	st := s.(*tokenBucketState)
	if h.limit != nil {
		c.dynamic[key] = *h.limit * c.cfg.SafetyBuffer
		// The advertised limit also caps the burst; never raise it.
		if capacity := int(*h.limit); capacity < st.Capacity {
			st.Capacity = capacity
			st.Tokens = math.Min(st.Tokens, float64(capacity))
		}
	}
	if h.remaining != nil && *h.remaining < st.Tokens {
		st.Tokens = *h.remaining
	}
}

func (tokenBucket) dormant(s keyState, cutoff time.Time) bool {
	st := s.(*tokenBucketState)
	if !st.LastRefill.Before(cutoff) {
		return false
	}
	return st.LastRequest == nil || st.LastRequest.Before(cutoff)
}

func (tokenBucket) decodeState(data []byte) (keyState, error) {
	st := &tokenBucketState{}
	if err := json.Unmarshal(data, st); err != nil {
		return nil, err
	}
	return st, nil
}
