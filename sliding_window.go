package fourlimit

import (
	"encoding/json"
	"time"
)

// slidingWindow keeps the timestamps of admissions inside the trailing
// window. Timestamps stay in insertion order, so the oldest is read in
// O(1) and expiry walks only the evicted head.
type slidingWindow struct{}

type slidingWindowState struct {
	Timestamps  []unixTime `json:"timestamps"`
	LastRequest *unixTime  `json:"last_request,omitempty"`
}

func (s *slidingWindowState) markRequest(now time.Time) {
	s.LastRequest = &unixTime{now}
}

func (slidingWindow) tag() Algorithm          { return SlidingWindow }
func (slidingWindow) legacyName() string      { return "windows" }
func (slidingWindow) sleepCap() time.Duration { return 2 * time.Second }

func (slidingWindow) newState(c *core, now time.Time) keyState {
	return &slidingWindowState{}
}

// limit resolves how many timestamps may exist within the window: a
// header-derived dynamic limit when one is set, otherwise the buffered
// rate scaled to the window length.
func (slidingWindow) limit(c *core, key string) int {
	if v, ok := c.dynamic[key]; ok {
		if limit := int(v); limit >= 1 {
			return limit
		}
		return 1
	}
	limit := int(c.bufferedRate(key) * c.cfg.WindowSize.Seconds())
	if limit < 1 {
		limit = 1
	}
	return limit
}

func (slidingWindow) advance(c *core, key string, s keyState, now time.Time) {
	st := s.(*slidingWindowState)
	cutoff := now.Add(-c.cfg.WindowSize)
	evict := 0
	for evict < len(st.Timestamps) && !st.Timestamps[evict].After(cutoff) {
		evict++
	}
	if evict > 0 {
		st.Timestamps = st.Timestamps[evict:]
	}
}

func (w slidingWindow) admit(c *core, key string, s keyState, now time.Time, n int) bool {
	st := s.(*slidingWindowState)
	if len(st.Timestamps)+n > w.limit(c, key) {
		return false
	}
	for i := 0; i < n; i++ {
		st.Timestamps = append(st.Timestamps, unixTime{now})
	}
	return true
}

func (w slidingWindow) capacity(c *core, key string, s keyState) int {
	return w.limit(c, key)
}

func (w slidingWindow) wait(c *core, key string, s keyState, now time.Time) time.Duration {
	st := s.(*slidingWindowState)
	if len(st.Timestamps) < w.limit(c, key) {
		return 0
	}
	if len(st.Timestamps) == 0 {
		return 0
	}
	oldest := st.Timestamps[0].Time
	return millisCeil(oldest.Add(c.cfg.WindowSize).Sub(now).Seconds())
}

func (w slidingWindow) snapshot(c *core, key string, s keyState, now time.Time) (map[string]interface{}, float64) {
	st := s.(*slidingWindowState)
	limit := w.limit(c, key)
	usage := 0.0
	if limit > 0 {
		usage = float64(len(st.Timestamps)) / float64(limit) * 100
	}
	return map[string]interface{}{
		"used":      len(st.Timestamps),
		"limit":     limit,
		"window_ms": c.cfg.WindowSize.Milliseconds(),
	}, usage
}

func (w slidingWindow) reconcile(c *core, key string, s keyState, now time.Time, h headerHints) {
	st := s.(*slidingWindowState)
	if h.limit != nil {
		c.dynamic[key] = *h.limit * c.cfg.SafetyBuffer
	}
	if h.remaining != nil {
		local := w.limit(c, key) - len(st.Timestamps)
		deficit := local - int(*h.remaining)
		// Synthesize the requests the server has seen but we have not,
		// staggered a millisecond apart to keep the log ordered.
		for i := 0; i < deficit; i++ {
			st.Timestamps = append(st.Timestamps, unixTime{now.Add(time.Duration(i) * time.Millisecond)})
		}
	}
}

func (slidingWindow) dormant(s keyState, cutoff time.Time) bool {
	st := s.(*slidingWindowState)
	if n := len(st.Timestamps); n > 0 && !st.Timestamps[n-1].Before(cutoff) {
		return false
	}
	return st.LastRequest == nil || st.LastRequest.Before(cutoff)
}

func (slidingWindow) decodeState(data []byte) (keyState, error) {
	st := &slidingWindowState{}
	if err := json.Unmarshal(data, st); err != nil {
		return nil, err
	}
	return st, nil
}
