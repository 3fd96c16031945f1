package middleware

import (
	"fmt"
	"net/http"

	fourlimit "github.com/fourlimit/fourlimit"
)

// KeyFunc derives the limiter key for an outbound request.
type KeyFunc func(r *http.Request) string

// KeyByHost keys requests by the target host. The usual choice when one
// limiter guards one remote service.
func KeyByHost(r *http.Request) string { return r.URL.Host }

// KeyByHostPath keys requests by host and path, for services with
// per-endpoint limits (pair with Config.EndpointLimits overrides).
func KeyByHostPath(r *http.Request) string { return r.URL.Host + r.URL.Path }

// Transport is an http.RoundTripper that routes every request through an
// Executor: admission wait, header reconciliation, 429 backoff.
//
//	client := &http.Client{
//	    Transport: middleware.NewTransport(limiter, middleware.KeyByHost),
//	}
type Transport struct {
	cfg  Config
	key  KeyFunc
	base http.RoundTripper
}

// NewTransport wraps http.DefaultTransport with default executor settings.
func NewTransport(limiter fourlimit.Limiter, key KeyFunc) *Transport {
	return NewTransportWithConfig(Config{Limiter: limiter}, key, nil)
}

// NewTransportWithConfig builds a Transport from an executor Config
// (Config.Key is ignored; key derives it per request) over base, which
// defaults to http.DefaultTransport.
func NewTransportWithConfig(cfg Config, key KeyFunc, base http.RoundTripper) *Transport {
	if cfg.Limiter == nil {
		panic("fourlimit/middleware: Limiter is required")
	}
	if key == nil {
		key = KeyByHost
	}
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{cfg: cfg.withDefaults(), key: key, base: base}
}

// RoundTrip implements http.RoundTripper. Requests with a body must carry
// GetBody (http.NewRequest sets it for common body types) to be retried;
// otherwise the request is paced and reconciled but a 429 comes back
// as-is, with no retry.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	key := t.key(req)
	if key == "" {
		key = req.URL.Host
	}

	if req.Body != nil && req.GetBody == nil {
		ctx := req.Context()
		if !t.cfg.Limiter.WaitN(ctx, key, 1, t.cfg.MaxWait) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, &fourlimit.RateLimitExceededError{
				Key:      key,
				WaitTime: t.cfg.Limiter.WaitTime(key),
				MaxWait:  t.cfg.MaxWait,
				Message:  "timed out waiting for admission",
			}
		}
		resp, err := t.base.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		t.cfg.Limiter.UpdateFromHeaders(key, resp.Header)
		return resp, nil
	}

	ecfg := t.cfg
	ecfg.Key = key
	exec := &Executor{cfg: ecfg}

	sent := false
	send := func() (*http.Response, error) {
		r := req
		if sent {
			r = req.Clone(req.Context())
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("fourlimit/middleware: rewind request body: %w", err)
				}
				r.Body = body
			}
		}
		sent = true
		return t.base.RoundTrip(r)
	}
	return exec.Execute(req.Context(), send)
}
