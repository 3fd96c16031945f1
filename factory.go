package fourlimit

import (
	"context"
	"fmt"

	"github.com/fourlimit/fourlimit/store"
)

// New builds a Limiter for cfg. Construction validates the configuration,
// selects the algorithm, wires the state store when persistence is on, and
// loads any previously persisted snapshot.
func New(cfg Config, opts ...Option) (Limiter, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := applyOptions(opts)

	var strat strategy
	switch cfg.Algorithm {
	case TokenBucket:
		strat = tokenBucket{}
	case LeakyBucket:
		strat = leakyBucket{}
	case FixedWindow:
		strat = fixedWindow{}
	case SlidingWindow:
		strat = slidingWindow{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, cfg.Algorithm)
	}

	c := newCore(cfg, strat, o)
	if cfg.PersistState {
		switch {
		case o.store != nil:
			c.store = o.store
		case o.cache != nil:
			c.store = store.NewCacheStore(o.cache, cfg.cacheKey(), 2*cfg.CleanupInterval, o.logger)
		case cfg.StateFile != "":
			c.store = store.NewFileStore(cfg.StateFile, o.logger)
		default:
			o.logger.Warn().Msg("persist_state set without a state file or cache, state stays in memory")
		}
		if c.store != nil {
			c.load(context.Background())
		}
	}
	return c, nil
}
