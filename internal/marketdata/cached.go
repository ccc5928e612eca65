package marketdata

import (
	"context"
	"log/slog"

	"trading-screener/internal/model"
)

// Cache stores fetched series. A miss is (zero, false, nil).
type Cache interface {
	Get(ctx context.Context, symbol, period, interval string) (model.Series, bool, error)
	Set(ctx context.Context, symbol, period, interval string, s model.Series) error
}

// CacheObserver counts cache lookups and source failures.
type CacheObserver interface {
	CacheResult(result string) // "hit", "miss" or "error"
	FetchError(source string)
}

// Cached serves from Cache when possible and fills it from Source on a miss.
// Cache failures are logged and fall through to the source.
type Cached struct {
	Source     Provider
	Cache      Cache
	SourceName string
	Observer   CacheObserver // optional
	Log        *slog.Logger
}

// NewCached wraps source with cache.
func NewCached(source Provider, cache Cache, sourceName string, log *slog.Logger) *Cached {
	if log == nil {
		log = slog.Default()
	}
	return &Cached{
		Source:     source,
		Cache:      cache,
		SourceName: sourceName,
		Log:        log.With("component", "marketdata_cache"),
	}
}

func (c *Cached) Fetch(ctx context.Context, symbol, period, interval string) (model.Series, error) {
	s, ok, err := c.Cache.Get(ctx, symbol, period, interval)
	switch {
	case err != nil:
		c.observe("error")
		c.Log.Warn("cache read failed", "symbol", symbol, "error", err)
	case ok:
		c.observe("hit")
		return s, nil
	default:
		c.observe("miss")
	}

	s, err = c.Source.Fetch(ctx, symbol, period, interval)
	if err != nil {
		if c.Observer != nil {
			c.Observer.FetchError(c.SourceName)
		}
		return model.Series{}, err
	}

	if err := c.Cache.Set(ctx, symbol, period, interval, s); err != nil {
		c.Log.Warn("cache write failed", "symbol", symbol, "error", err)
	}
	return s, nil
}

func (c *Cached) observe(result string) {
	if c.Observer != nil {
		c.Observer.CacheResult(result)
	}
}
