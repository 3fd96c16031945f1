// Package fourlimit provides client-side rate limiting for API clients that
// talk to services enforcing their own limits: four pacing algorithms behind
// one Limiter interface, per-key state that persists across restarts, and
// reconciliation against the rate-limit headers servers send back.
//
// # Algorithms
//
//   - Token Bucket — burst up to capacity, continuous refill
//   - Leaky Bucket — fill on admit, drain at rate; smooth after the first burst
//   - Fixed Window — counter per discrete window, hard reset at the boundary
//   - Sliding Window — timestamp log over a trailing window, no boundary burst
//
// # Quick Start
//
//	limiter, err := fourlimit.New(fourlimit.Config{
//	    Algorithm:     fourlimit.TokenBucket,
//	    RatePerSecond: 10,
//	    BurstCapacity: 20,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer limiter.Close()
//
//	if limiter.Allow("api.example.com") {
//	    // send the request
//	}
//
// Rates are derated by Config.SafetyBuffer (default 0.8) so the local model
// stays conservative relative to the remote service.
//
// # Reconciling With the Server
//
// Map the service's header names once, then feed every response back:
//
//	cfg.HeaderMappings = map[string]string{
//	    fourlimit.FieldLimit:     "X-RateLimit-Limit",
//	    fourlimit.FieldRemaining: "X-RateLimit-Remaining",
//	}
//	...
//	resp, err := client.Do(req)
//	limiter.UpdateFromHeaders("api.example.com", resp.Header)
//
// Reconciliation only ever moves local availability down toward the server's
// view, never up.
//
// # Persistence
//
//	// File backend: atomic writes, loaded on construction.
//	limiter, _ := fourlimit.New(fourlimit.Config{
//	    ..., PersistState: true, StateFile: "ratelimit_state.json",
//	})
//
//	// Shared cache backend via Redis.
//	limiter, _ := fourlimit.New(cfg, fourlimit.WithRedis(client))
//
// Writes are coalesced behind a dirty flag; call Flush for hard durability,
// Close flushes on teardown. Processes sharing a state file or cache key are
// last-writer-wins: the store restores state across restarts, it does not
// coordinate concurrent processes.
//
// # Middleware
//
// The middleware package runs the whole dance — wait for admission, send,
// reconcile, back off on 429 — around a caller-supplied request function:
//
//	exec := middleware.New(limiter, "api.example.com")
//	resp, err := exec.Execute(ctx, func() (*http.Response, error) {
//	    return client.Do(req)
//	})
//
// All four algorithms implement the [Limiter] interface and are built by New
// or the fluent [Builder], both dispatching on the configured [Algorithm] tag.
package fourlimit
