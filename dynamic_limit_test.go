package fourlimit_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/fourlimit/fourlimit"
	"github.com/fourlimit/fourlimit/internal/clock"
)

// The dynamic-limit overlay is what header reconciliation writes: an
// effective rate learned from the remote service that takes precedence
// over both the configured default and any endpoint override.

func dynamicLimitConfig() fourlimit.Config {
	return fourlimit.Config{
		Algorithm:      fourlimit.TokenBucket,
		RatePerSecond:  4,
		BurstCapacity:  5,
		SafetyBuffer:   0.5,
		EndpointLimits: map[string]float64{"api": 8},
		HeaderMappings: map[string]string{fourlimit.FieldLimit: "X-RateLimit-Limit"},
	}
}

func rateOf(t *testing.T, l fourlimit.Limiter, key string) float64 {
	t.Helper()
	rate, ok := l.TypedStatus(key).Raw["rate"].(float64)
	if !ok {
		t.Fatalf("status for %q has no rate", key)
	}
	return rate
}

func TestDynamicLimit_OverlayBeatsEndpointOverride(t *testing.T) {
	mock := clock.NewMockAt(testEpoch)
	l := mustLimiter(t, dynamicLimitConfig(), fourlimit.WithClock(mock))

	// Endpoint override 8 derated by the 0.5 buffer.
	if got := rateOf(t, l, "api"); got != 4 {
		t.Fatalf("rate before reconciliation = %g, want 4", got)
	}

	l.UpdateFromHeaders("api", http.Header{"X-Ratelimit-Limit": []string{"2"}})

	// The advertised limit is buffered too, and wins over the override.
	if got := rateOf(t, l, "api"); got != 1 {
		t.Fatalf("rate after reconciliation = %g, want 1 (2 × buffer 0.5)", got)
	}
}

func TestDynamicLimit_IsolatedPerKey(t *testing.T) {
	mock := clock.NewMockAt(testEpoch)
	l := mustLimiter(t, dynamicLimitConfig(), fourlimit.WithClock(mock))

	l.UpdateFromHeaders("api", http.Header{"X-Ratelimit-Limit": []string{"2"}})

	// Keys without an overlay keep the buffered configured rate.
	if got := rateOf(t, l, "other"); got != 2 {
		t.Fatalf("rate for untouched key = %g, want 2 (4 × buffer 0.5)", got)
	}
}

func TestDynamicLimit_GovernsRefill(t *testing.T) {
	mock := clock.NewMockAt(testEpoch)
	cfg := fourlimit.Config{
		Algorithm:      fourlimit.TokenBucket,
		RatePerSecond:  10,
		BurstCapacity:  5,
		SafetyBuffer:   1,
		HeaderMappings: map[string]string{fourlimit.FieldLimit: "X-RateLimit-Limit"},
	}
	l := mustLimiter(t, cfg, fourlimit.WithClock(mock))

	// The advertised limit caps the burst to 2 and sets the refill rate
	// to 2/s.
	l.UpdateFromHeaders("api", http.Header{"X-Ratelimit-Limit": []string{"2"}})
	exhaust(t, l, "api", 2)

	mock.Advance(500 * time.Millisecond)
	if !l.Allow("api") {
		t.Fatal("one token should have refilled in 500ms at the reconciled 2/s")
	}
	if l.Allow("api") {
		t.Fatal("the configured 10/s must no longer govern refill")
	}
}

func TestDynamicLimit_SurvivesReset(t *testing.T) {
	mock := clock.NewMockAt(testEpoch)
	l := mustLimiter(t, dynamicLimitConfig(), fourlimit.WithClock(mock))

	l.UpdateFromHeaders("api", http.Header{"X-Ratelimit-Limit": []string{"2"}})
	l.Reset("api")

	// Reset restores the key's state, not what we learned about the
	// remote service.
	if got := rateOf(t, l, "api"); got != 1 {
		t.Fatalf("rate after Reset = %g, want the overlay 1", got)
	}
}

func TestDynamicLimit_ResetAllClearsOverlays(t *testing.T) {
	mock := clock.NewMockAt(testEpoch)
	l := mustLimiter(t, dynamicLimitConfig(), fourlimit.WithClock(mock))

	l.UpdateFromHeaders("api", http.Header{"X-Ratelimit-Limit": []string{"2"}})
	l.ResetAll()

	if got := rateOf(t, l, "api"); got != 4 {
		t.Fatalf("rate after ResetAll = %g, want the configured 4", got)
	}
}

func TestDynamicLimit_CleanupEvictsOverlayWithKey(t *testing.T) {
	mock := clock.NewMockAt(testEpoch)
	l := mustLimiter(t, dynamicLimitConfig(), fourlimit.WithClock(mock))

	l.UpdateFromHeaders("api", http.Header{"X-Ratelimit-Limit": []string{"2"}})
	if got := rateOf(t, l, "api"); got != 1 {
		t.Fatalf("rate = %g, want the overlay 1", got)
	}

	mock.Advance(2 * time.Hour)
	if removed := l.Cleanup(time.Hour); removed != 1 {
		t.Fatalf("Cleanup removed %d keys, want 1", removed)
	}

	// A dormant key takes its learned limits with it; the next touch
	// starts from configuration.
	if got := rateOf(t, l, "api"); got != 4 {
		t.Fatalf("rate after cleanup = %g, want the configured 4", got)
	}
}
