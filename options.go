package fourlimit

import (
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/fourlimit/fourlimit/store"
	redisstore "github.com/fourlimit/fourlimit/store/redis"
)

// options carries the injected capabilities a limiter runs with.
type options struct {
	logger zerolog.Logger
	clock  Clock
	cache  store.Cache
	store  store.Store
}

// Option customizes a limiter at construction time.
type Option func(*options)

func defaultOptions() options {
	return options{
		logger: zerolog.Nop(),
		clock:  systemClock{},
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger directs the limiter's diagnostics (persistence faults,
// reconciliations, cleanup) to l. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock substitutes the time source. Tests use this to drive refill
// and wait math deterministically.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithCache supplies the shared key-value cache the state snapshot is kept
// in when Config.PersistState is set. The cache backend wins over the file
// backend when both are possible.
func WithCache(c store.Cache) Option {
	return func(o *options) { o.cache = c }
}

// WithRedis is WithCache over a go-redis client.
func WithRedis(client redis.UniversalClient) Option {
	return WithCache(redisstore.New(client))
}

// WithStore injects a fully-formed state store, bypassing the backend
// selection New would do. Mainly a test seam.
func WithStore(s store.Store) Option {
	return func(o *options) { o.store = s }
}
