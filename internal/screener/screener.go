// Package screener evaluates the latest bar of many symbols against one
// strategy and ranks the outcome.
package screener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"trading-screener/internal/backtest"
	"trading-screener/internal/logger"
	"trading-screener/internal/marketdata"
	"trading-screener/internal/strategy"
)

const defaultWorkers = 4

// Observer receives screening events.
type Observer interface {
	SignalEmitted(signal string)
	ScreenFinished(elapsed time.Duration)
}

// Screener fans symbol evaluations out over a bounded worker pool.
type Screener struct {
	Data       marketdata.Provider
	Indicators backtest.SnapshotProvider
	Workers    int
	Log        *slog.Logger

	// TieBreak decides majority against neutral votes. New sets
	// strategy.TieBreakInclusive.
	TieBreak strategy.TieBreak

	Observer Observer // optional

	// OnResult is called once per produced result, from worker goroutines.
	OnResult func(Result)
}

// New creates a Screener. workers <= 0 uses 4.
func New(data marketdata.Provider, indicators backtest.SnapshotProvider, workers int, log *slog.Logger) *Screener {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if log == nil {
		log = slog.Default()
	}
	return &Screener{
		Data:       data,
		Indicators: indicators,
		Workers:    workers,
		TieBreak:   strategy.TieBreakInclusive,
		Log:        log.With("component", "screener"),
	}
}

// Screen evaluates every symbol at timeframe and returns the ranked
// results. Symbols without data, with fewer than backtest.MinCandles bars,
// or with nothing able to vote are skipped. Only a cancelled ctx or an
// invalid selection fails the whole screen.
func (s *Screener) Screen(ctx context.Context, symbols []string, st strategy.Strategy, timeframe string) ([]Result, error) {
	start := time.Now()
	if err := st.Indicators.Validate(); err != nil {
		return nil, err
	}
	tb := s.TieBreak
	if tb == "" {
		tb = strategy.TieBreakInclusive
	}
	if !tb.Valid() {
		return nil, fmt.Errorf("%w %q", strategy.ErrInvalidTieBreak, tb)
	}
	period := marketdata.PeriodForTimeframe(timeframe)
	log := s.Log.With(logger.LogWithRun(ctx)...)
	log.Info("screen started", "symbols", len(symbols), "timeframe", timeframe, "period", period, "tie_break", tb)

	slots := make([]*Result, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.Workers)

	for i, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		i, sym := i, sym
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := s.evaluate(gctx, sym, period, timeframe, st.Indicators, tb)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				log.Debug("symbol skipped", "symbol", sym, "reason", err)
				return nil
			}
			slots[i] = &r
			if s.OnResult != nil {
				s.OnResult(r)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(symbols))
	for _, r := range slots {
		if r != nil {
			results = append(results, *r)
		}
	}
	Rank(results)

	if s.Observer != nil {
		for _, r := range results {
			s.Observer.SignalEmitted(string(r.Signal))
		}
		s.Observer.ScreenFinished(time.Since(start))
	}
	log.Info("screen complete",
		"results", len(results),
		"skipped", countSymbols(symbols)-len(results),
		"took", time.Since(start).Round(time.Millisecond),
	)
	return results, nil
}

// errTooShort marks a series below the warm-up length.
var errTooShort = errors.New("screener: insufficient history")

func (s *Screener) evaluate(ctx context.Context, symbol, period, interval string, sel strategy.Selection, tb strategy.TieBreak) (Result, error) {
	series, err := s.Data.Fetch(ctx, symbol, period, interval)
	if err != nil {
		return Result{}, err
	}
	if series.Len() < backtest.MinCandles {
		return Result{}, errTooShort
	}
	last, _ := series.Last()

	snap, err := s.Indicators.Compute(series.Candles, series.HasVolume)
	if err != nil {
		return Result{}, err
	}
	d, err := strategy.Aggregate(snap, last.Close, sel, tb)
	if err != nil {
		return Result{}, err
	}
	return newResult(symbol, interval, last.Close, snap, d), nil
}

func countSymbols(symbols []string) int {
	n := 0
	for _, s := range symbols {
		if strings.TrimSpace(s) != "" {
			n++
		}
	}
	return n
}
