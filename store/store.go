// Package store persists limiter state snapshots across process restarts.
//
// Two backends exist. FileStore writes the snapshot to a whitelisted path
// with an atomic temp-file-then-rename, so concurrent writers may lose an
// update but never produce a torn file. CacheStore keeps the snapshot under
// a single key in a shared key-value cache (store/redis adapts go-redis,
// store/memory serves tests); cache faults are logged and absorbed, never
// surfaced to limiter callers.
//
// Snapshots round-trip the wire format used by other runtimes: one JSON
// object holding the per-key state map (under "state", or the legacy
// names "buckets"/"windows"), the dynamic-limits map, and a flush
// timestamp in fractional Unix seconds.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Snapshot is one limiter's full persisted state.
type Snapshot struct {
	// State maps key to the algorithm's serialized per-key state.
	State map[string]json.RawMessage
	// DynamicLimits maps key to its header-derived effective rate/limit.
	DynamicLimits map[string]float64
	// Timestamp is the wall clock at flush, fractional Unix seconds.
	Timestamp float64
	// LegacyName selects the top-level member name State is written
	// under: "buckets" for the bucket algorithms, "windows" for the
	// window algorithms, "state" when empty.
	LegacyName string
}

// Store loads and saves snapshots. Implementations must be safe for
// concurrent use. Load returns (nil, nil) when no snapshot exists yet.
type Store interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
}

// Cache is the shared key-value capability CacheStore runs on. Get returns
// (nil, nil) on a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// wireSnapshot is the JSON shape on disk and in the cache. Readers accept
// any of the three state member names; writers emit exactly one.
type wireSnapshot struct {
	State         map[string]json.RawMessage `json:"state,omitempty"`
	Buckets       map[string]json.RawMessage `json:"buckets,omitempty"`
	Windows       map[string]json.RawMessage `json:"windows,omitempty"`
	DynamicLimits map[string]float64         `json:"dynamic_limits"`
	Timestamp     float64                    `json:"timestamp"`
}

// Encode serializes the snapshot compactly under its legacy member name.
func (s *Snapshot) Encode() ([]byte, error) {
	w := wireSnapshot{
		DynamicLimits: s.DynamicLimits,
		Timestamp:     s.Timestamp,
	}
	if w.DynamicLimits == nil {
		w.DynamicLimits = map[string]float64{}
	}
	state := s.State
	if state == nil {
		state = map[string]json.RawMessage{}
	}
	switch s.LegacyName {
	case "buckets":
		w.Buckets = state
	case "windows":
		w.Windows = state
	case "", "state":
		w.State = state
	default:
		return nil, fmt.Errorf("store: unknown snapshot member name %q", s.LegacyName)
	}
	return json.Marshal(w)
}

// DecodeSnapshot parses data written by Encode or by another runtime,
// accepting "state", "buckets", or "windows" as the state member.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var w wireSnapshot
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("store: malformed snapshot: %w", err)
	}
	snap := &Snapshot{
		State:         w.State,
		DynamicLimits: w.DynamicLimits,
		Timestamp:     w.Timestamp,
	}
	if snap.State == nil {
		snap.State = w.Buckets
		snap.LegacyName = "buckets"
	}
	if snap.State == nil {
		snap.State = w.Windows
		snap.LegacyName = "windows"
	}
	if snap.State == nil {
		snap.State = map[string]json.RawMessage{}
		snap.LegacyName = ""
	}
	if snap.DynamicLimits == nil {
		snap.DynamicLimits = map[string]float64{}
	}
	return snap, nil
}
