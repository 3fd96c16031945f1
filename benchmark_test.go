package fourlimit

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

// ─── Single-key (serial) ─────────────────────────────────────────────────────

func BenchmarkTokenBucket(b *testing.B) {
	l, _ := New(Config{
		Algorithm:     TokenBucket,
		RatePerSecond: float64(b.N) + 1,
		BurstCapacity: b.N + 1,
		SafetyBuffer:  1,
	})
	benchAllow(b, l)
}

func BenchmarkLeakyBucket(b *testing.B) {
	l, _ := New(Config{
		Algorithm:     LeakyBucket,
		RatePerSecond: float64(b.N) + 1,
		BurstCapacity: b.N + 1,
		SafetyBuffer:  1,
	})
	benchAllow(b, l)
}

func BenchmarkFixedWindow(b *testing.B) {
	l, _ := New(Config{
		Algorithm:     FixedWindow,
		RatePerSecond: float64(b.N) + 1,
		BurstCapacity: 1,
		WindowSize:    time.Hour,
		SafetyBuffer:  1,
	})
	benchAllow(b, l)
}

func BenchmarkSlidingWindow(b *testing.B) {
	l, _ := New(Config{
		Algorithm:     SlidingWindow,
		RatePerSecond: float64(b.N) + 1,
		BurstCapacity: 1,
		WindowSize:    time.Hour,
		SafetyBuffer:  1,
	})
	benchAllow(b, l)
}

// ─── Parallel (contended single key) ─────────────────────────────────────────

func BenchmarkTokenBucket_Parallel(b *testing.B) {
	l, _ := New(Config{
		Algorithm:     TokenBucket,
		RatePerSecond: 1 << 62,
		BurstCapacity: 1 << 62,
		SafetyBuffer:  1,
	})
	benchAllowParallel(b, l, "shared")
}

func BenchmarkLeakyBucket_Parallel(b *testing.B) {
	l, _ := New(Config{
		Algorithm:     LeakyBucket,
		RatePerSecond: 1 << 62,
		BurstCapacity: 1 << 62,
		SafetyBuffer:  1,
	})
	benchAllowParallel(b, l, "shared")
}

func BenchmarkFixedWindow_Parallel(b *testing.B) {
	l, _ := New(Config{
		Algorithm:     FixedWindow,
		RatePerSecond: 1 << 40,
		BurstCapacity: 1,
		WindowSize:    time.Hour,
		SafetyBuffer:  1,
	})
	benchAllowParallel(b, l, "shared")
}

// ─── Parallel (distinct keys — per-key state, shared lock) ───────────────────

func BenchmarkTokenBucket_DistinctKeys(b *testing.B) {
	l, _ := New(Config{
		Algorithm:     TokenBucket,
		RatePerSecond: 1000,
		BurstCapacity: 100,
		SafetyBuffer:  1,
	})
	benchAllowParallelDistinct(b, l)
}

func BenchmarkFixedWindow_DistinctKeys(b *testing.B) {
	l, _ := New(Config{
		Algorithm:     FixedWindow,
		RatePerSecond: 1000,
		BurstCapacity: 1,
		WindowSize:    time.Hour,
		SafetyBuffer:  1,
	})
	benchAllowParallelDistinct(b, l)
}

// ─── AllowN ──────────────────────────────────────────────────────────────────

func BenchmarkTokenBucket_AllowN(b *testing.B) {
	for _, n := range []int{1, 5, 10} {
		b.Run(fmt.Sprintf("n=%d", n), func(b *testing.B) {
			l, _ := New(Config{
				Algorithm:     TokenBucket,
				RatePerSecond: 1 << 62,
				BurstCapacity: 1 << 62,
				SafetyBuffer:  1,
			})
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = l.AllowN("k", n)
			}
		})
	}
}

// ─── Status ──────────────────────────────────────────────────────────────────

func BenchmarkTypedStatus(b *testing.B) {
	l, _ := New(Config{
		Algorithm:     TokenBucket,
		RatePerSecond: 1000,
		BurstCapacity: 100,
		SafetyBuffer:  1,
	})
	l.Allow("k")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = l.TypedStatus("k")
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func benchAllow(b *testing.B, l Limiter) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = l.Allow("k")
	}
}

func benchAllowParallel(b *testing.B, l Limiter, key string) {
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = l.Allow(key)
		}
	})
}

func benchAllowParallelDistinct(b *testing.B, l Limiter) {
	var seq atomic.Int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		id := seq.Add(1)
		key := "user:" + strconv.FormatInt(id, 10)
		for pb.Next() {
			_ = l.Allow(key)
		}
	})
}
