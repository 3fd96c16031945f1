package fourlimit

import (
	"encoding/json"
	"math"
	"time"
)

// leakyBucket fills on admission and drains at the effective rate. The
// bucket starts empty, so the first burst up to capacity passes without
// waiting; after that, traffic smooths toward the drain rate.
type leakyBucket struct{}

type leakyBucketState struct {
	Level       float64   `json:"level"`
	LastLeak    unixTime  `json:"last_leak"`
	LastRequest *unixTime `json:"last_request,omitempty"`
}

func (s *leakyBucketState) markRequest(now time.Time) {
	s.LastRequest = &unixTime{now}
}

func (leakyBucket) tag() Algorithm          { return LeakyBucket }
func (leakyBucket) legacyName() string      { return "buckets" }
func (leakyBucket) sleepCap() time.Duration { return time.Second }

func (leakyBucket) newState(c *core, now time.Time) keyState {
	return &leakyBucketState{LastLeak: unixTime{now}}
}

func (leakyBucket) advance(c *core, key string, s keyState, now time.Time) {
	st := s.(*leakyBucketState)
	elapsed := now.Sub(st.LastLeak.Time).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	if rate := c.effectiveRate(key); rate > 0 {
		st.Level = math.Max(0, st.Level-elapsed*rate)
	}
	// Always move the leak mark, even at level 0; otherwise an idle
	// stretch would bank drain capacity as unbounded debt.
	st.LastLeak = unixTime{now}
}

func (leakyBucket) admit(c *core, key string, s keyState, now time.Time, n int) bool {
	st := s.(*leakyBucketState)
	if st.Level+float64(n) > float64(c.cfg.BurstCapacity) {
		return false
	}
	st.Level += float64(n)
	return true
}

func (leakyBucket) capacity(c *core, key string, s keyState) int {
	return c.cfg.BurstCapacity
}

func (leakyBucket) wait(c *core, key string, s keyState, now time.Time) time.Duration {
	st := s.(*leakyBucketState)
	space := float64(c.cfg.BurstCapacity) - st.Level
	if space >= 1 {
		return 0
	}
	rate := c.effectiveRate(key)
	if rate <= 0 {
		return DefaultMaxWait
	}
	return millisCeil((1 - space) / rate)
}

func (leakyBucket) snapshot(c *core, key string, s keyState, now time.Time) (map[string]interface{}, float64) {
	st := s.(*leakyBucketState)
	capacity := c.cfg.BurstCapacity
	usage := 0.0
	if capacity > 0 {
		usage = st.Level / float64(capacity) * 100
	}
	return map[string]interface{}{
		"level":    st.Level,
		"capacity": capacity,
		"rate":     c.effectiveRate(key),
	}, usage
}

func (leakyBucket) reconcile(c *core, key string, s keyState, now time.Time, h headerHints) {
	st := s.(*leakyBucketState)
	if h.limit != nil {
		c.dynamic[key] = *h.limit * c.cfg.SafetyBuffer
	}
	if h.remaining != nil {
		// The server's remaining implies a fill level; only ever raise
		// ours to match.
		implied := float64(c.cfg.BurstCapacity) - *h.remaining
		if implied > st.Level {
			st.Level = math.Min(implied, float64(c.cfg.BurstCapacity))
		}
	}
}

func (leakyBucket) dormant(s keyState, cutoff time.Time) bool {
	st := s.(*leakyBucketState)
	if st.Level > 0 || !st.LastLeak.Before(cutoff) {
		return false
	}
	return st.LastRequest == nil || st.LastRequest.Before(cutoff)
}

func (leakyBucket) decodeState(data []byte) (keyState, error) {
	st := &leakyBucketState{}
	if err := json.Unmarshal(data, st); err != nil {
		return nil, err
	}
	return st, nil
}
