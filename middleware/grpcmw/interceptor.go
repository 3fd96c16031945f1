// Package grpcmw paces outbound gRPC calls through a limiter.
//
// Separated from the middleware package so that importing the HTTP
// middleware does not pull in google.golang.org/grpc.
//
// Usage:
//
//	limiter, _ := fourlimit.New(cfg)
//	conn, _ := grpc.NewClient(target,
//	    grpc.WithChainUnaryInterceptor(grpcmw.UnaryClientInterceptor(limiter, grpcmw.KeyByTarget)),
//	    grpc.WithChainStreamInterceptor(grpcmw.StreamClientInterceptor(limiter, grpcmw.KeyByTarget)),
//	)
//
// Each RPC waits for admission before going on the wire; a spent wait budget
// surfaces as codes.ResourceExhausted without calling the server. Response
// header metadata is fed back through Limiter.UpdateFromHeaders, so servers
// that publish x-ratelimit-* metadata keep the local model honest.
package grpcmw

import (
	"context"
	"net/http"
	"net/textproto"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	fourlimit "github.com/fourlimit/fourlimit"
)

// KeyFunc derives the limiter key for an outbound RPC. cc is nil when the
// interceptor is invoked outside a real connection (some test harnesses).
type KeyFunc func(ctx context.Context, method string, cc *grpc.ClientConn) string

// DeniedHandler produces the error returned when the admission wait budget
// is spent. Default: codes.ResourceExhausted carrying the estimated wait.
type DeniedHandler func(ctx context.Context, method, key string, waitTime time.Duration) error

// Config holds full configuration for the client interceptors.
type Config struct {
	// Limiter paces the RPCs (required).
	Limiter fourlimit.Limiter

	// KeyFunc derives the limiter key per RPC (required).
	KeyFunc KeyFunc

	// MaxWait bounds the pre-call admission wait. Default: 10s.
	MaxWait time.Duration

	// DeniedHandler produces the error returned on a spent wait budget.
	// Default: codes.ResourceExhausted.
	DeniedHandler DeniedHandler

	// ExcludeMethods are full method names (e.g. "/pkg.Service/Method")
	// that bypass pacing.
	ExcludeMethods map[string]bool

	// Reconcile controls whether response header metadata is folded back
	// into the limiter. Default: true.
	Reconcile *bool
}

const defaultMaxWait = 10 * time.Second

func (cfg Config) withDefaults() Config {
	if cfg.Limiter == nil {
		panic("grpcmw: Limiter is required")
	}
	if cfg.KeyFunc == nil {
		panic("grpcmw: KeyFunc is required")
	}
	if cfg.MaxWait == 0 {
		cfg.MaxWait = defaultMaxWait
	}
	if cfg.DeniedHandler == nil {
		cfg.DeniedHandler = defaultDeniedHandler
	}
	return cfg
}

func (cfg Config) reconcileEnabled() bool {
	return cfg.Reconcile == nil || *cfg.Reconcile
}

// ─── Unary Interceptor ───────────────────────────────────────────────────────

// UnaryClientInterceptor creates a unary client interceptor with default
// settings.
func UnaryClientInterceptor(limiter fourlimit.Limiter, keyFunc KeyFunc) grpc.UnaryClientInterceptor {
	return UnaryClientInterceptorWithConfig(Config{
		Limiter: limiter,
		KeyFunc: keyFunc,
	})
}

// UnaryClientInterceptorWithConfig creates a unary client interceptor with
// full configuration control.
func UnaryClientInterceptorWithConfig(cfg Config) grpc.UnaryClientInterceptor {
	cfg = cfg.withDefaults()

	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if cfg.ExcludeMethods != nil && cfg.ExcludeMethods[method] {
			return invoker(ctx, method, req, reply, cc, opts...)
		}

		key := cfg.KeyFunc(ctx, method, cc)
		if !cfg.Limiter.WaitN(ctx, key, 1, cfg.MaxWait) {
			if err := ctx.Err(); err != nil {
				return err
			}
			return cfg.DeniedHandler(ctx, method, key, cfg.Limiter.WaitTime(key))
		}

		if !cfg.reconcileEnabled() {
			return invoker(ctx, method, req, reply, cc, opts...)
		}

		// Piggyback on the header call option; gRPC delivers the header
		// metadata to every registered address, the caller's included.
		var header metadata.MD
		err := invoker(ctx, method, req, reply, cc, append(opts, grpc.Header(&header))...)
		if len(header) > 0 {
			cfg.Limiter.UpdateFromHeaders(key, headersFromMD(header))
		}
		return err
	}
}

// ─── Stream Interceptor ──────────────────────────────────────────────────────

// StreamClientInterceptor creates a stream client interceptor with default
// settings. Admission is charged once per stream, when it opens.
func StreamClientInterceptor(limiter fourlimit.Limiter, keyFunc KeyFunc) grpc.StreamClientInterceptor {
	return StreamClientInterceptorWithConfig(Config{
		Limiter: limiter,
		KeyFunc: keyFunc,
	})
}

// StreamClientInterceptorWithConfig creates a stream client interceptor with
// full configuration control.
func StreamClientInterceptorWithConfig(cfg Config) grpc.StreamClientInterceptor {
	cfg = cfg.withDefaults()

	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		if cfg.ExcludeMethods != nil && cfg.ExcludeMethods[method] {
			return streamer(ctx, desc, cc, method, opts...)
		}

		key := cfg.KeyFunc(ctx, method, cc)
		if !cfg.Limiter.WaitN(ctx, key, 1, cfg.MaxWait) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, cfg.DeniedHandler(ctx, method, key, cfg.Limiter.WaitTime(key))
		}

		s, err := streamer(ctx, desc, cc, method, opts...)
		if err != nil || !cfg.reconcileEnabled() {
			return s, err
		}
		return &reconcilingStream{ClientStream: s, limiter: cfg.Limiter, key: key}, nil
	}
}

// reconcilingStream folds the server's header metadata into the limiter once
// it is available, without adding a blocking wait of its own.
type reconcilingStream struct {
	grpc.ClientStream
	limiter fourlimit.Limiter
	key     string
	once    sync.Once
}

func (s *reconcilingStream) Header() (metadata.MD, error) {
	md, err := s.ClientStream.Header()
	if err == nil {
		s.reconcile(md)
	}
	return md, err
}

func (s *reconcilingStream) RecvMsg(m any) error {
	err := s.ClientStream.RecvMsg(m)
	// Headers precede the first message on the wire, so this cannot block
	// once RecvMsg has returned.
	if md, herr := s.ClientStream.Header(); herr == nil {
		s.reconcile(md)
	}
	return err
}

func (s *reconcilingStream) reconcile(md metadata.MD) {
	s.once.Do(func() {
		if len(md) > 0 {
			s.limiter.UpdateFromHeaders(s.key, headersFromMD(md))
		}
	})
}

// ─── Built-in Key Extractors ─────────────────────────────────────────────────

// KeyByTarget keys RPCs by the connection target. The usual choice when one
// limiter guards one remote service.
func KeyByTarget(_ context.Context, _ string, cc *grpc.ClientConn) string {
	if cc == nil {
		return "unknown"
	}
	return cc.Target()
}

// KeyByMethod keys RPCs by full method name, enabling per-method limits
// (pair with Config.EndpointLimits overrides).
func KeyByMethod(_ context.Context, method string, _ *grpc.ClientConn) string {
	return method
}

// KeyByTargetMethod keys RPCs by "target:method".
func KeyByTargetMethod(_ context.Context, method string, cc *grpc.ClientConn) string {
	target := "unknown"
	if cc != nil {
		target = cc.Target()
	}
	return target + ":" + method
}

// StaticKey returns a KeyFunc that charges every RPC to one key.
func StaticKey(key string) KeyFunc {
	return func(context.Context, string, *grpc.ClientConn) string { return key }
}

// ─── Internals ───────────────────────────────────────────────────────────────

// headersFromMD converts gRPC metadata (lowercase keys) into an http.Header
// so Limiter.UpdateFromHeaders can resolve it through the same mappings used
// for HTTP responses.
func headersFromMD(md metadata.MD) http.Header {
	h := make(http.Header, len(md))
	for k, vs := range md {
		h[textproto.CanonicalMIMEHeaderKey(k)] = vs
	}
	return h
}

func defaultDeniedHandler(_ context.Context, method, key string, waitTime time.Duration) error {
	return status.Errorf(codes.ResourceExhausted,
		"client-side rate limit: admission timed out for %s (key %q, retry in %v)", method, key, waitTime)
}
