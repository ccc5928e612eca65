// Package backtest replays a candle series bar by bar through the signal
// aggregator and simulates a single LONG or SHORT position with a stop and
// a target.
//
// For bar i the indicator snapshot is computed from candles[:i+1] only, so a
// run can never see the future. Each run owns all of its state; an Engine
// may be shared by concurrent runs as long as its SnapshotProvider is safe
// for concurrent use.
package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"trading-screener/internal/execution"
	"trading-screener/internal/indicator"
	"trading-screener/internal/logger"
	"trading-screener/internal/model"
	"trading-screener/internal/portfolio"
	"trading-screener/internal/strategy"
)

// SnapshotProvider computes indicator readings for the last bar of history.
type SnapshotProvider interface {
	Compute(history []model.Candle, hasVolume bool) (indicator.Snapshot, error)
}

// Observer receives run events. Implementations must be cheap; they are
// called from the simulation loop.
type Observer interface {
	BarEvaluated()
	BarSkipped()
	TradeClosed(side, reason string)
	RunFinished(elapsed time.Duration, err error)
}

// Engine runs backtests.
type Engine struct {
	Indicators SnapshotProvider
	Log        *slog.Logger
	Observer   Observer // optional
}

// NewEngine creates an engine over the given snapshot provider.
func NewEngine(indicators SnapshotProvider, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		Indicators: indicators,
		Log:        log.With("component", "backtest"),
	}
}

// Run simulates the whole series. It returns ErrInsufficientHistory for
// fewer than MinCandles bars, a wrapped ErrInvalidParams for bad params,
// and ctx.Err() if cancelled between bars.
func (e *Engine) Run(ctx context.Context, series model.Series, sel strategy.Selection, p Params) (res *Result, err error) {
	start := time.Now()
	if e.Observer != nil {
		defer func() { e.Observer.RunFinished(time.Since(start), err) }()
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := sel.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if series.Len() < MinCandles {
		return nil, ErrInsufficientHistory
	}

	r := &run{
		params:   p,
		filler:   execution.NewPaperFiller(p.Slippage, p.TickSize, p.Commission),
		capital:  p.InitialCapital,
		log:      e.log().With(logger.LogWithRun(ctx)...),
		observer: e.Observer,
	}

	candles := series.Candles
	for i := MinCandles; i < len(candles); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bar := candles[i]

		snap, err := e.Indicators.Compute(candles[:i+1], series.HasVolume)
		if err != nil {
			r.skip()
			continue
		}
		r.evaluated()

		if !r.checkLevels(bar) {
			d, err := strategy.Aggregate(snap, bar.Close, sel, p.TieBreak)
			if err == nil {
				r.act(bar, d.Signal)
			}
		}
		r.mark(bar)
	}

	res = r.result(series)
	r.log.Info("backtest complete",
		"symbol", series.Symbol,
		"bars", res.BarsEvaluated,
		"skipped", res.BarsSkipped,
		"trades", res.TotalTrades,
		"win_rate", res.WinRate,
		"return_pct", res.TotalReturn,
		"max_dd", res.MaxDrawdown,
	)
	return res, nil
}

func (e *Engine) log() *slog.Logger {
	if e.Log == nil {
		return slog.Default()
	}
	return e.Log
}

// run is the mutable state of one simulation.
type run struct {
	params   Params
	filler   *execution.PaperFiller
	log      *slog.Logger
	observer Observer

	capital  float64
	pos      *portfolio.Position
	lastMark float64

	trades   []Trade
	equity   []EquityPoint
	drawdown portfolio.DrawdownTracker

	barsEvaluated int
	barsSkipped   int
}

func (r *run) evaluated() {
	r.barsEvaluated++
	if r.observer != nil {
		r.observer.BarEvaluated()
	}
}

func (r *run) skip() {
	r.barsSkipped++
	if r.observer != nil {
		r.observer.BarSkipped()
	}
}

// checkLevels closes the position on a stop or target touch, stop first.
// It reports whether a position was closed on this bar.
func (r *run) checkLevels(bar model.Candle) bool {
	if r.pos == nil {
		return false
	}
	switch {
	case r.pos.StopHit(bar):
		r.close(bar, r.pos.Stop, ExitStop)
	case r.pos.TargetHit(bar):
		r.close(bar, r.pos.Target, ExitTarget)
	default:
		return false
	}
	return true
}

// act applies the bar's signal: entry when flat, reversal-signal exit when not.
func (r *run) act(bar model.Candle, sig strategy.Signal) {
	if r.pos == nil {
		switch sig {
		case strategy.SignalBuy:
			r.open(bar, portfolio.Long, strategy.ActionBuy)
		case strategy.SignalSell:
			r.open(bar, portfolio.Short, strategy.ActionSell)
		}
		return
	}

	switch {
	case r.pos.Side == portfolio.Long && sig == strategy.SignalSell:
		r.close(bar, r.filler.Fill(strategy.ActionSell, bar.Close).FillPrice, ExitSignal)
	case r.pos.Side == portfolio.Short && sig == strategy.SignalBuy:
		r.close(bar, r.filler.Fill(strategy.ActionBuy, bar.Close).FillPrice, ExitSignal)
	}
}

func (r *run) open(bar model.Candle, side portfolio.Side, action strategy.Action) {
	p := r.params
	fill := r.filler.Fill(action, bar.Close)
	pos := portfolio.Open(side, fill.FillPrice, bar.TS, 0, p.StopLoss, p.TakeProfit, p.TickSize)

	pos.Size = portfolio.SizePosition(r.capital, p.RiskPerTrade, pos.EntryPrice, pos.Stop)
	if pos.Size <= 0 {
		return
	}
	r.pos = pos

	r.log.Debug("position opened",
		"side", side,
		"ts", bar.TS,
		"entry", pos.EntryPrice,
		"stop", pos.Stop,
		"target", pos.Target,
		"size", pos.Size,
	)
}

func (r *run) close(bar model.Candle, exit float64, reason ExitReason) {
	pos := r.pos
	pnl := pos.RawPnL(exit) - r.filler.RoundTrip()
	r.capital += pnl
	r.pos = nil

	t := Trade{
		EntryTime:     pos.EntryTime,
		ExitTime:      bar.TS,
		Side:          pos.Side,
		Entry:         round2(pos.EntryPrice),
		Stop:          round2(pos.Stop),
		Target:        round2(pos.Target),
		Exit:          round2(exit),
		Size:          pos.Size,
		Reason:        reason,
		PnL:           round2(pnl),
		CumulativePnL: round2(r.capital - r.params.InitialCapital),
	}
	r.trades = append(r.trades, t)
	if r.observer != nil {
		r.observer.TradeClosed(string(t.Side), string(t.Reason))
	}

	r.log.Debug("position closed",
		"side", t.Side,
		"ts", bar.TS,
		"exit", t.Exit,
		"reason", reason,
		"pnl", t.PnL,
	)
}

// mark records the bar's equity: capital plus the open position at close.
func (r *run) mark(bar model.Candle) {
	eq := r.capital
	if r.pos != nil {
		eq += r.pos.RawPnL(bar.Close)
		r.lastMark = bar.Close
	}
	r.drawdown.Observe(eq)
	r.equity = append(r.equity, EquityPoint{TS: bar.TS, Equity: round2(eq)})
}

func (r *run) result(series model.Series) *Result {
	p := r.params
	res := &Result{
		Symbol:         series.Symbol,
		Interval:       p.Interval,
		InitialCapital: round2(p.InitialCapital),
		FinalCapital:   round2(r.capital),
		FinalEquity:    round2(r.capital),
		TotalReturn:    round2((r.capital - p.InitialCapital) / p.InitialCapital * 100),
		MaxDrawdown:    round2(r.drawdown.Max()),
		BarsEvaluated:  r.barsEvaluated,
		BarsSkipped:    r.barsSkipped,
		Trades:         r.trades,
		EquityCurve:    tail(r.equity, p.EquityCurveLimit),
	}
	if res.Trades == nil {
		res.Trades = []Trade{}
	}

	if r.pos != nil {
		unrealized := r.pos.RawPnL(r.lastMark)
		res.OpenPosition = &OpenPosition{
			Position:      *r.pos,
			MarkPrice:     r.lastMark,
			UnrealizedPnL: round2(unrealized),
		}
		res.FinalEquity = round2(r.capital + unrealized)
	}

	res.summarize()
	return res
}

func tail(points []EquityPoint, limit int) []EquityPoint {
	if limit > 0 && len(points) > limit {
		points = points[len(points)-limit:]
	}
	out := make([]EquityPoint, len(points))
	copy(out, points)
	return out
}
