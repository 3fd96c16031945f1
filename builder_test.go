package fourlimit

import (
	"errors"
	"testing"
	"time"

	"github.com/fourlimit/fourlimit/internal/clock"
	"github.com/fourlimit/fourlimit/store/memory"
)

func TestBuilder_NoAlgorithm(t *testing.T) {
	_, err := NewBuilder().Build()
	if err == nil {
		t.Fatal("expected error when no algorithm selected")
	}
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("error %v should match ErrInvalidConfig", err)
	}
}

func TestBuilder_TokenBucket(t *testing.T) {
	l, err := NewBuilder().
		TokenBucket(20, 5).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	if l.Algorithm() != TokenBucket {
		t.Fatalf("algorithm = %v, want token_bucket", l.Algorithm())
	}
	if !l.AllowN("k", 5) {
		t.Fatal("full burst should be admissible")
	}
}

func TestBuilder_LeakyBucket(t *testing.T) {
	l, err := NewBuilder().
		LeakyBucket(10, 2).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	if l.Algorithm() != LeakyBucket {
		t.Fatalf("algorithm = %v, want leaky_bucket", l.Algorithm())
	}
	if !l.Allow("k") {
		t.Fatal("empty bucket should admit")
	}
}

func TestBuilder_FixedWindow(t *testing.T) {
	l, err := NewBuilder().
		FixedWindow(10, 1, 60*time.Second).
		SafetyBuffer(1).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	if l.Algorithm() != FixedWindow {
		t.Fatalf("algorithm = %v, want fixed_window", l.Algorithm())
	}
	if got := l.TypedStatus("k").Raw["limit"].(int); got != 600 {
		t.Fatalf("window limit = %d, want 600 (10/s over 60s)", got)
	}
}

func TestBuilder_SlidingWindow(t *testing.T) {
	l, err := NewBuilder().
		SlidingWindow(5, 1, 30*time.Second).
		SafetyBuffer(1).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	if l.Algorithm() != SlidingWindow {
		t.Fatalf("algorithm = %v, want sliding_window", l.Algorithm())
	}
	if got := l.TypedStatus("k").Raw["limit"].(int); got != 150 {
		t.Fatalf("window limit = %d, want 150 (5/s over 30s)", got)
	}
}

func TestBuilder_InvalidParams(t *testing.T) {
	tests := []struct {
		name string
		fn   func() (Limiter, error)
	}{
		{"TokenBucket zero rate", func() (Limiter, error) {
			return NewBuilder().TokenBucket(0, 10).Build()
		}},
		{"LeakyBucket zero burst", func() (Limiter, error) {
			return NewBuilder().LeakyBucket(10, 0).Build()
		}},
		{"FixedWindow negative rate", func() (Limiter, error) {
			return NewBuilder().FixedWindow(-1, 1, time.Second).Build()
		}},
		{"SlidingWindow tiny window", func() (Limiter, error) {
			return NewBuilder().SlidingWindow(5, 1, 100*time.Microsecond).Build()
		}},
		{"buffer above one", func() (Limiter, error) {
			return NewBuilder().TokenBucket(10, 5).SafetyBuffer(2).Build()
		}},
		{"sub-second cleanup", func() (Limiter, error) {
			return NewBuilder().TokenBucket(10, 5).CleanupInterval(time.Millisecond).Build()
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.fn()
			if err == nil {
				t.Fatal("expected error for invalid params")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error %v should match ErrInvalidConfig", err)
			}
		})
	}
}

func TestBuilder_SettersReachConfig(t *testing.T) {
	b := NewBuilder().
		TokenBucket(10, 5).
		SafetyBuffer(0.9).
		WindowSize(2 * time.Second).
		EndpointLimit("search", 2).
		EndpointLimit("upload", 1).
		HeaderMapping(FieldLimit, "X-RateLimit-Limit").
		HeaderMapping(FieldRemaining, "X-RateLimit-Remaining").
		CleanupInterval(10 * time.Minute).
		PersistToFile("state.json")

	cfg := b.cfg
	if cfg.SafetyBuffer != 0.9 || cfg.WindowSize != 2*time.Second || cfg.CleanupInterval != 10*time.Minute {
		t.Errorf("scalar setters did not land: %+v", cfg)
	}
	if cfg.EndpointLimits["search"] != 2 || cfg.EndpointLimits["upload"] != 1 {
		t.Errorf("endpoint limits = %v", cfg.EndpointLimits)
	}
	if cfg.HeaderMappings[FieldLimit] != "X-RateLimit-Limit" || cfg.HeaderMappings[FieldRemaining] != "X-RateLimit-Remaining" {
		t.Errorf("header mappings = %v", cfg.HeaderMappings)
	}
	if !cfg.PersistState || cfg.StateFile != "state.json" {
		t.Errorf("persistence setters did not land: %+v", cfg)
	}
}

func TestBuilder_CacheBackend(t *testing.T) {
	cache := memory.New()
	l, err := NewBuilder().
		SlidingWindow(1, 1, 5*time.Second).
		SafetyBuffer(1).
		Cache(cache).
		PersistToCache().
		Clock(clock.NewMockAt(time.Unix(1700000000, 0))).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	l.Allow("k")
	if err := l.Flush(); err != nil {
		t.Fatal(err)
	}
	if cache.Len() != 1 {
		t.Fatalf("cache entries = %d, want 1 after flush", cache.Len())
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestBuilder_AlgorithmOverride(t *testing.T) {
	l, err := NewBuilder().
		FixedWindow(10, 1, time.Second).
		TokenBucket(20, 5).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	if l.Algorithm() != TokenBucket {
		t.Fatalf("last selector should win, got %v", l.Algorithm())
	}
}
