// Package metrics provides Prometheus instrumentation for limiters.
//
// Wrap any fourlimit.Limiter to automatically record admission decisions,
// check latency, wait timeouts, and header reconciliations:
//
//	collector := metrics.NewCollector()
//	limiter, _ := fourlimit.New(cfg)
//	limiter = metrics.Wrap(limiter, collector)
//
// All metrics are partitioned by algorithm name. Decision counts carry an
// additional "decision" label (allowed / denied).
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	fourlimit "github.com/fourlimit/fourlimit"
)

// Collector holds Prometheus metric vectors shared by wrapped limiters.
type Collector struct {
	requests   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	timeouts   *prometheus.CounterVec
	reconciles *prometheus.CounterVec
}

type collectorConfig struct {
	namespace string
	subsystem string
	registry  prometheus.Registerer
	buckets   []float64
}

// CollectorOption configures a Collector.
type CollectorOption func(*collectorConfig)

// WithNamespace sets the Prometheus metric namespace (prefix).
func WithNamespace(ns string) CollectorOption {
	return func(c *collectorConfig) { c.namespace = ns }
}

// WithSubsystem sets the Prometheus metric subsystem.
func WithSubsystem(sub string) CollectorOption {
	return func(c *collectorConfig) { c.subsystem = sub }
}

// WithRegistry registers metrics with the given Registerer instead of
// prometheus.DefaultRegisterer.
func WithRegistry(r prometheus.Registerer) CollectorOption {
	return func(c *collectorConfig) { c.registry = r }
}

// WithBuckets sets custom histogram buckets for check duration.
func WithBuckets(b []float64) CollectorOption {
	return func(c *collectorConfig) { c.buckets = b }
}

var defaultBuckets = []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1}

// NewCollector creates a Collector and registers its metrics.
//
// Metrics registered:
//   - {namespace}_requests_total             counter   (algorithm, decision)
//   - {namespace}_request_duration_seconds   histogram (algorithm)
//   - {namespace}_wait_timeouts_total        counter   (algorithm)
//   - {namespace}_reconciliations_total      counter   (algorithm)
//
// Default namespace is "fourlimit".
func NewCollector(opts ...CollectorOption) *Collector {
	cfg := &collectorConfig{
		namespace: "fourlimit",
		registry:  prometheus.DefaultRegisterer,
		buckets:   defaultBuckets,
	}
	for _, o := range opts {
		o(cfg)
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.namespace,
		Subsystem: cfg.subsystem,
		Name:      "requests_total",
		Help:      "Total admission checks partitioned by algorithm and decision.",
	}, []string{"algorithm", "decision"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.namespace,
		Subsystem: cfg.subsystem,
		Name:      "request_duration_seconds",
		Help:      "Latency of Allow and AllowN calls in seconds.",
		Buckets:   cfg.buckets,
	}, []string{"algorithm"})

	timeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.namespace,
		Subsystem: cfg.subsystem,
		Name:      "wait_timeouts_total",
		Help:      "Waits that gave up before admission (budget spent or cancelled).",
	}, []string{"algorithm"})

	reconciles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.namespace,
		Subsystem: cfg.subsystem,
		Name:      "reconciliations_total",
		Help:      "Header reconciliations applied via UpdateFromHeaders.",
	}, []string{"algorithm"})

	cfg.registry.MustRegister(requests, duration, timeouts, reconciles)

	return &Collector{
		requests:   requests,
		duration:   duration,
		timeouts:   timeouts,
		reconciles: reconciles,
	}
}

// Wrap returns a Limiter that transparently records Prometheus metrics for
// every admission check, wait, and reconciliation delegated to inner. The
// algorithm label comes from inner.Algorithm().
func Wrap(inner fourlimit.Limiter, c *Collector) fourlimit.Limiter {
	return &instrumentedLimiter{
		inner:     inner,
		algorithm: inner.Algorithm().String(),
		collector: c,
	}
}

type instrumentedLimiter struct {
	inner     fourlimit.Limiter
	algorithm string
	collector *Collector
}

func (l *instrumentedLimiter) Allow(key string) bool {
	return l.AllowN(key, 1)
}

func (l *instrumentedLimiter) AllowN(key string, n int) bool {
	start := time.Now()
	allowed := l.inner.AllowN(key, n)
	l.collector.duration.WithLabelValues(l.algorithm).Observe(time.Since(start).Seconds())
	l.recordDecision(allowed)
	return allowed
}

func (l *instrumentedLimiter) Wait(ctx context.Context, key string) bool {
	return l.WaitN(ctx, key, 1, 0)
}

func (l *instrumentedLimiter) WaitN(ctx context.Context, key string, n int, maxWait time.Duration) bool {
	admitted := l.inner.WaitN(ctx, key, n, maxWait)
	if !admitted {
		l.collector.timeouts.WithLabelValues(l.algorithm).Inc()
	}
	l.recordDecision(admitted)
	return admitted
}

func (l *instrumentedLimiter) UpdateFromHeaders(key string, headers http.Header) {
	l.collector.reconciles.WithLabelValues(l.algorithm).Inc()
	l.inner.UpdateFromHeaders(key, headers)
}

func (l *instrumentedLimiter) WaitTime(key string) time.Duration { return l.inner.WaitTime(key) }
func (l *instrumentedLimiter) Reset(key string)                  { l.inner.Reset(key) }
func (l *instrumentedLimiter) ResetAll()                         { l.inner.ResetAll() }

func (l *instrumentedLimiter) Status(key string) map[string]interface{} {
	return l.inner.Status(key)
}

func (l *instrumentedLimiter) TypedStatus(key string) fourlimit.Status {
	return l.inner.TypedStatus(key)
}

func (l *instrumentedLimiter) AllStatuses() map[string]map[string]interface{} {
	return l.inner.AllStatuses()
}

func (l *instrumentedLimiter) AllTypedStatuses() map[string]fourlimit.Status {
	return l.inner.AllTypedStatuses()
}

func (l *instrumentedLimiter) Cleanup(maxAge time.Duration) int { return l.inner.Cleanup(maxAge) }
func (l *instrumentedLimiter) Flush() error                     { return l.inner.Flush() }
func (l *instrumentedLimiter) Close() error                     { return l.inner.Close() }
func (l *instrumentedLimiter) Algorithm() fourlimit.Algorithm   { return l.inner.Algorithm() }

func (l *instrumentedLimiter) recordDecision(allowed bool) {
	decision := "denied"
	if allowed {
		decision = "allowed"
	}
	l.collector.requests.WithLabelValues(l.algorithm, decision).Inc()
}
