// Package marketdata loads historical candle series. A Provider fetches one
// symbol for a lookback period at a bar interval; concrete sources live in
// this package (CSV), in store/sqlite and in marketdata/angel.
package marketdata

import (
	"context"
	"errors"

	"trading-screener/internal/model"
)

// ErrUnavailable means the source has no data for the request.
var ErrUnavailable = errors.New("marketdata: no data available")

// Provider fetches a candle series.
type Provider interface {
	Fetch(ctx context.Context, symbol, period, interval string) (model.Series, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, symbol, period, interval string) (model.Series, error)

func (f ProviderFunc) Fetch(ctx context.Context, symbol, period, interval string) (model.Series, error) {
	return f(ctx, symbol, period, interval)
}
