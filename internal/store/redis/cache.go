package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"trading-screener/internal/model"
)

const (
	defaultCacheTTL = 15 * time.Minute

	breakerFailures = 5
	breakerReset    = 10 * time.Second
)

// SeriesCache stores fetched series as JSON under
// candles:{SYMBOL}:{period}:{interval}. It implements marketdata.Cache.
type SeriesCache struct {
	client  *goredis.Client
	ttl     time.Duration
	breaker *CircuitBreaker
	log     *slog.Logger
}

// NewSeriesCache wraps client. ttl <= 0 uses a 15 minute default.
func NewSeriesCache(client *goredis.Client, ttl time.Duration, log *slog.Logger) *SeriesCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if log == nil {
		log = slog.Default()
	}
	c := &SeriesCache{
		client:  client,
		ttl:     ttl,
		breaker: NewCircuitBreaker(breakerFailures, breakerReset),
		log:     log.With("component", "redis_cache"),
	}
	c.breaker.IsFailure = func(err error) bool {
		return !errors.Is(err, goredis.Nil)
	}
	c.breaker.OnStateChange = func(from, to State) {
		c.log.Warn("redis breaker state change", "from", from, "to", to)
	}
	return c
}

// Breaker exposes the circuit breaker for health reporting.
func (c *SeriesCache) Breaker() *CircuitBreaker { return c.breaker }

// Key returns the cache key of a fetch.
func Key(symbol, period, interval string) string {
	return fmt.Sprintf("candles:%s:%s:%s", strings.ToUpper(symbol), period, interval)
}

// Get returns the cached series. A missing key is a miss, not an error.
func (c *SeriesCache) Get(ctx context.Context, symbol, period, interval string) (model.Series, bool, error) {
	var raw []byte
	err := c.breaker.Execute(func() error {
		var err error
		raw, err = c.client.Get(ctx, Key(symbol, period, interval)).Bytes()
		return err
	})
	if errors.Is(err, goredis.Nil) {
		return model.Series{}, false, nil
	}
	if err != nil {
		return model.Series{}, false, err
	}

	var s model.Series
	if err := json.Unmarshal(raw, &s); err != nil {
		return model.Series{}, false, fmt.Errorf("decode cached series: %w", err)
	}
	return s, true, nil
}

// Set stores s with the cache TTL.
func (c *SeriesCache) Set(ctx context.Context, symbol, period, interval string, s model.Series) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.breaker.Execute(func() error {
		return c.client.Set(ctx, Key(symbol, period, interval), data, c.ttl).Err()
	})
}
