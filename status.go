package fourlimit

import "time"

// Status is the typed observability snapshot for one key. Raw carries the
// algorithm-specific fields (tokens/capacity, level, count/limit, used).
type Status struct {
	Algorithm    Algorithm
	Key          string
	Limited      bool
	WaitTime     time.Duration
	UsagePercent float64
	Raw          map[string]interface{}
}

// Map flattens the snapshot into the loose form returned by
// Limiter.Status: the typed fields plus the Raw fields merged in.
func (s Status) Map() map[string]interface{} {
	m := make(map[string]interface{}, len(s.Raw)+5)
	for k, v := range s.Raw {
		m[k] = v
	}
	m["algorithm"] = s.Algorithm.String()
	m["key"] = s.Key
	m["limited"] = s.Limited
	m["wait_time_ms"] = s.WaitTime.Milliseconds()
	m["usage_percent"] = s.UsagePercent
	return m
}
