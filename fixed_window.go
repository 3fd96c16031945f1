package fourlimit

import (
	"encoding/json"
	"math"
	"time"
)

// fixedWindow counts admissions inside a discrete window and hard-resets
// when it ends. New windows anchor at the time of the first operation past
// the boundary, not at aligned wall-clock instants. Traffic can briefly
// reach twice the rate around a boundary; callers who need smooth pacing
// choose the sliding window instead.
type fixedWindow struct{}

type fixedWindowState struct {
	Count       int       `json:"count"`
	WindowStart unixTime  `json:"window_start"`
	WindowEnd   unixTime  `json:"window_end"`
	LastRequest *unixTime `json:"last_request,omitempty"`
}

func (s *fixedWindowState) markRequest(now time.Time) {
	s.LastRequest = &unixTime{now}
}

func (fixedWindow) tag() Algorithm          { return FixedWindow }
func (fixedWindow) legacyName() string      { return "windows" }
func (fixedWindow) sleepCap() time.Duration { return 2 * time.Second }

func (fixedWindow) newState(c *core, now time.Time) keyState {
	return &fixedWindowState{
		WindowStart: unixTime{now},
		WindowEnd:   unixTime{now.Add(c.cfg.WindowSize)},
	}
}

// limit resolves the per-window admission limit: the buffered configured
// rate, lowered by any daily/hourly header-derived rate, scaled to the
// window length.
func (fixedWindow) limit(c *core, key string) int {
	rate := c.bufferedRate(key)
	if daily, ok := c.dynamic[key+dailyRateSuffix]; ok && daily < rate {
		rate = daily
	}
	if hourly, ok := c.dynamic[key+hourlyRateSuffix]; ok && hourly < rate {
		rate = hourly
	}
	limit := int(math.Ceil(rate * c.cfg.WindowSize.Seconds()))
	if limit < 1 {
		limit = 1
	}
	return limit
}

func (fixedWindow) advance(c *core, key string, s keyState, now time.Time) {
	st := s.(*fixedWindowState)
	if now.Before(st.WindowEnd.Time) {
		return
	}
	st.WindowStart = unixTime{now}
	st.WindowEnd = unixTime{now.Add(c.cfg.WindowSize)}
	st.Count = 0
}

func (f fixedWindow) admit(c *core, key string, s keyState, now time.Time, n int) bool {
	st := s.(*fixedWindowState)
	if st.Count+n > f.limit(c, key) {
		return false
	}
	st.Count += n
	return true
}

func (f fixedWindow) capacity(c *core, key string, s keyState) int {
	return f.limit(c, key)
}

func (f fixedWindow) wait(c *core, key string, s keyState, now time.Time) time.Duration {
	st := s.(*fixedWindowState)
	if st.Count+1 <= f.limit(c, key) {
		return 0
	}
	return millisCeil(st.WindowEnd.Sub(now).Seconds())
}

func (f fixedWindow) snapshot(c *core, key string, s keyState, now time.Time) (map[string]interface{}, float64) {
	st := s.(*fixedWindowState)
	limit := f.limit(c, key)
	usage := 0.0
	if limit > 0 {
		usage = float64(st.Count) / float64(limit) * 100
	}
	return map[string]interface{}{
		"count":        st.Count,
		"limit":        limit,
		"window_start": float64(st.WindowStart.UnixNano()) / float64(time.Second),
		"window_end":   float64(st.WindowEnd.UnixNano()) / float64(time.Second),
	}, usage
}

func (f fixedWindow) reconcile(c *core, key string, s keyState, now time.Time, h headerHints) {
	st := s.(*fixedWindowState)
	if h.dailyLimit != nil {
		c.dynamic[key+dailyRateSuffix] = *h.dailyLimit / 86400 * c.cfg.SafetyBuffer
	}
	if h.hourlyLimit != nil {
		c.dynamic[key+hourlyRateSuffix] = *h.hourlyLimit / 3600 * c.cfg.SafetyBuffer
	}
	limit := f.limit(c, key)
	raise := func(remaining float64) {
		implied := limit - int(remaining)
		if implied > limit {
			implied = limit
		}
		if implied > st.Count {
			st.Count = implied
		}
	}
	if h.dailyRemaining != nil {
		// Project the day's remaining quota onto this window.
		raise(*h.dailyRemaining * c.cfg.WindowSize.Seconds() / 86400)
	}
	if h.remaining != nil {
		raise(*h.remaining)
	}
}

func (fixedWindow) dormant(s keyState, cutoff time.Time) bool {
	st := s.(*fixedWindowState)
	if !st.WindowEnd.Before(cutoff) {
		return false
	}
	return st.LastRequest == nil || st.LastRequest.Before(cutoff)
}

func (fixedWindow) decodeState(data []byte) (keyState, error) {
	st := &fixedWindowState{}
	if err := json.Unmarshal(data, st); err != nil {
		return nil, err
	}
	return st, nil
}
