// Package middleware drives outbound requests through a limiter: wait for
// admission, send, reconcile from response headers, and back off on 429s.
package middleware

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	fourlimit "github.com/fourlimit/fourlimit"
)

// SendFunc issues one attempt of the request and returns the response.
// The Executor owns retries; SendFunc must be safe to call repeatedly.
type SendFunc func() (*http.Response, error)

// Config holds the executor configuration.
type Config struct {
	// Limiter paces the requests (required).
	Limiter fourlimit.Limiter

	// Key is the limiter key the requests are charged to (required).
	Key string

	// MaxRetries bounds how many 429 responses are retried.
	// 0 means the default of 3; negative disables retries.
	MaxRetries int

	// BackoffMultiplier grows the server's Retry-After per attempt.
	// Default: 2.0.
	BackoffMultiplier float64

	// MaxWait bounds the pre-send admission wait. Default: 10s.
	MaxWait time.Duration

	// MaxBackoff caps a single 429 backoff sleep. Default: 30s.
	MaxBackoff time.Duration

	// RetryAfterHeader names the header carrying the server's retry hint.
	// Default: "Retry-After".
	RetryAfterHeader string

	// Logger receives wait and backoff diagnostics. Default: discard.
	Logger zerolog.Logger

	// Clock drives backoff sleeps; tests substitute it. Default: system.
	Clock fourlimit.Clock
}

const (
	defaultMaxRetries        = 3
	defaultBackoffMultiplier = 2.0
	defaultMaxWait           = 10 * time.Second
	defaultMaxBackoff        = 30 * time.Second
	defaultRetryAfterHeader  = "Retry-After"
)

func (cfg Config) withDefaults() Config {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.BackoffMultiplier == 0 {
		cfg.BackoffMultiplier = defaultBackoffMultiplier
	}
	if cfg.MaxWait == 0 {
		cfg.MaxWait = defaultMaxWait
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	if cfg.RetryAfterHeader == "" {
		cfg.RetryAfterHeader = defaultRetryAfterHeader
	}
	if cfg.Clock == nil {
		cfg.Clock = fourlimit.SystemClock()
	}
	return cfg
}

// Executor wraps one limiter key's request lifecycle.
type Executor struct {
	cfg Config
}

// New creates an Executor for limiter and key with default settings.
func New(limiter fourlimit.Limiter, key string) *Executor {
	return NewWithConfig(Config{Limiter: limiter, Key: key})
}

// NewWithConfig creates an Executor with full configuration control.
func NewWithConfig(cfg Config) *Executor {
	if cfg.Limiter == nil {
		panic("fourlimit/middleware: Limiter is required")
	}
	if cfg.Key == "" {
		panic("fourlimit/middleware: Key is required")
	}
	cfg = cfg.withDefaults()
	return &Executor{cfg: cfg}
}

// Execute runs one logical request: wait for admission, call send,
// reconcile the limiter from the response headers, and retry 429s with
// exponential backoff on the server's Retry-After.
//
// Transport errors from send propagate unchanged. An exhausted wait or
// retry budget returns *fourlimit.RateLimitExceededError; ctx cancellation
// during a wait or backoff sleep returns ctx.Err().
func (e *Executor) Execute(ctx context.Context, send SendFunc) (*http.Response, error) {
	cfg := e.cfg
	attempt := 0
	for {
		if !cfg.Limiter.WaitN(ctx, cfg.Key, 1, cfg.MaxWait) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, &fourlimit.RateLimitExceededError{
				Key:      cfg.Key,
				WaitTime: cfg.Limiter.WaitTime(cfg.Key),
				MaxWait:  cfg.MaxWait,
				Message:  "timed out waiting for admission",
			}
		}

		resp, err := send()
		if err != nil {
			return nil, err
		}
		cfg.Limiter.UpdateFromHeaders(cfg.Key, resp.Header)
		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		retryAfter := parseRetryAfter(resp.Header.Get(cfg.RetryAfterHeader), cfg.Clock.Now())
		attempt++
		if attempt > cfg.MaxRetries {
			drainBody(resp)
			return nil, &fourlimit.RateLimitExceededError{
				Key:      cfg.Key,
				WaitTime: retryAfter,
				MaxWait:  cfg.MaxWait,
				Message:  fmt.Sprintf("server returned 429 after %d retries (Retry-After %s)", cfg.MaxRetries, retryAfter),
			}
		}

		backoff := time.Duration(float64(retryAfter) * math.Pow(cfg.BackoffMultiplier, float64(attempt-1)))
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
		drainBody(resp)
		cfg.Logger.Debug().
			Str("key", cfg.Key).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("throttled by server, backing off")
		if err := cfg.Clock.Sleep(ctx, backoff); err != nil {
			return nil, err
		}
	}
}

// parseRetryAfter reads a Retry-After value: a non-negative integer second
// count (floored at 1s) or an HTTP date. Anything else is one second.
func parseRetryAfter(value string, now time.Time) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && secs >= 0 {
		if secs < 1 {
			secs = 1
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(strings.TrimSpace(value)); err == nil {
		delta := at.Sub(now)
		if delta < time.Second {
			delta = time.Second
		}
		return delta.Truncate(time.Second)
	}
	return time.Second
}

// drainBody consumes what remains of a throttled response's body so the
// connection can be reused, then closes it.
func drainBody(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
