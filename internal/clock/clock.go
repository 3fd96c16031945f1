// Package clock provides a controllable time source for tests.
//
// Production code uses the system clock; tests inject a Mock and drive
// refill, window, and wait math deterministically:
//
//	mock := clock.NewMockAt(time.Unix(1700000000, 0))
//	limiter, _ := fourlimit.New(cfg, fourlimit.WithClock(mock))
//	mock.Advance(time.Second)
package clock

import (
	"context"
	"sync"
	"time"
)

// Mock is a clock whose time only moves when told to. Sleep advances the
// clock instead of blocking, so waits and backoffs driven by a Mock finish
// immediately while observing the same timeline real sleeps would.
//
// Mock is safe for concurrent use.
type Mock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

// NewMock returns a Mock starting at the current system time.
func NewMock() *Mock {
	return &Mock{now: time.Now()}
}

// NewMockAt returns a Mock starting at t.
func NewMockAt(t time.Time) *Mock {
	return &Mock{now: t}
}

// Now returns the current mock time.
func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Sleep advances the clock by d and records the sleep. It fails only when
// ctx is already done.
func (m *Mock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	m.sleeps = append(m.sleeps, d)
	return nil
}

// Set moves the clock to t.
func (m *Mock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// Advance moves the clock forward by d.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Since returns the duration elapsed on the mock clock since t.
func (m *Mock) Since(t time.Time) time.Duration {
	return m.Now().Sub(t)
}

// Sleeps returns every duration passed to Sleep, in call order.
func (m *Mock) Sleeps() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Duration, len(m.sleeps))
	copy(out, m.sleeps)
	return out
}

// ResetSleeps clears the recorded sleeps.
func (m *Mock) ResetSleeps() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sleeps = nil
}
