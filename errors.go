package fourlimit

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors. Wrap them with fmt.Errorf("...: %w", err) to add context;
// callers match with errors.Is.
var (
	// ErrInvalidConfig is returned by New and Builder.Build when the
	// configuration violates a constraint documented on Config's fields.
	ErrInvalidConfig = errors.New("fourlimit: invalid configuration")

	// ErrUnsupportedAlgorithm is returned for an unknown algorithm tag.
	// It matches ErrInvalidConfig under errors.Is.
	ErrUnsupportedAlgorithm = fmt.Errorf("%w: unsupported algorithm", ErrInvalidConfig)

	// ErrRateLimitExceeded is the match target for admission failures
	// surfaced as errors (middleware wait timeout or retry exhaustion).
	ErrRateLimitExceeded = errors.New("fourlimit: rate limit exceeded")
)

// RateLimitExceededError carries the diagnostics of a failed admission:
// which key was throttled, the wait estimate at the time of failure, and
// the budget that ran out. errors.Is(err, ErrRateLimitExceeded) is true.
type RateLimitExceededError struct {
	Key      string
	WaitTime time.Duration
	MaxWait  time.Duration
	Message  string
}

func (e *RateLimitExceededError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "rate limit exceeded"
	}
	return fmt.Sprintf("fourlimit: %s (key=%q wait=%s max_wait=%s)", msg, e.Key, e.WaitTime, e.MaxWait)
}

func (e *RateLimitExceededError) Unwrap() error { return ErrRateLimitExceeded }

// Is lets errors.Is match both the typed error and the sentinel.
func (e *RateLimitExceededError) Is(target error) bool {
	if target == ErrRateLimitExceeded {
		return true
	}
	_, ok := target.(*RateLimitExceededError)
	return ok
}
