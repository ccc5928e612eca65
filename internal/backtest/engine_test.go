package backtest

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"trading-screener/internal/indicator"
	"trading-screener/internal/logger"
	"trading-screener/internal/model"
	"trading-screener/internal/portfolio"
	"trading-screener/internal/strategy"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// flat builds n daily bars closing at 100 with a ±0.5 range, which never
// reaches a default stop (1.0 away) or target (2.0 away).
func flat(n int) []model.Candle {
	out := make([]model.Candle, n)
	for i := range out {
		out[i] = model.Candle{
			TS:     t0.AddDate(0, 0, i),
			Open:   100,
			High:   100.5,
			Low:    99.5,
			Close:  100,
			Volume: 1000,
		}
	}
	return out
}

// scripted answers Compute with an RSI that produces the scripted signal
// for an RSI-only selection. Unscripted bars are HOLD.
type scripted struct {
	mu      sync.Mutex
	signals map[int]strategy.Signal
	fail    map[int]bool
	calls   []int // len(history) per call
	onCall  func(idx int)
	candles []model.Candle
	t       *testing.T
}

func (s *scripted) Compute(history []model.Candle, hasVolume bool) (indicator.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := len(history) - 1
	s.calls = append(s.calls, len(history))
	if s.candles != nil && !history[idx].TS.Equal(s.candles[idx].TS) {
		s.t.Errorf("history for bar %d ends at %v, want %v", idx, history[idx].TS, s.candles[idx].TS)
	}
	if s.onCall != nil {
		s.onCall(idx)
	}
	if s.fail[idx] {
		return indicator.Snapshot{}, indicator.ErrUnavailable
	}

	snap := indicator.Snapshot{Close: history[idx].Close, RSI: 50, ADX: 30}
	switch s.signals[idx] {
	case strategy.SignalBuy:
		snap.RSI = 25
	case strategy.SignalSell:
		snap.RSI = 75
	}
	return snap, nil
}

func rsiOnly() strategy.Selection {
	return strategy.Selection{strategy.IndRSI: true}
}

func runScripted(t *testing.T, candles []model.Candle, s *scripted, p Params) *Result {
	t.Helper()
	s.t = t
	e := NewEngine(s, logger.Discard())
	series := model.NewSeries("TEST", "1d", candles, true)
	res, err := e.Run(context.Background(), series, rsiOnly(), p)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return res
}

func assertClose(t *testing.T, label string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("%s: got %.6f, want %.6f", label, got, want)
	}
}

// ────────────────────────────────────────────────────────────
// Preconditions
// ────────────────────────────────────────────────────────────

func TestRun_InsufficientHistory(t *testing.T) {
	e := NewEngine(&scripted{}, logger.Discard())
	series := model.NewSeries("TEST", "1d", flat(59), true)
	_, err := e.Run(context.Background(), series, rsiOnly(), DefaultParams())
	if !errors.Is(err, ErrInsufficientHistory) {
		t.Fatalf("got %v, want ErrInsufficientHistory", err)
	}
}

func TestRun_ExactlyWarmup(t *testing.T) {
	res := runScripted(t, flat(60), &scripted{}, DefaultParams())
	if res.BarsEvaluated != 0 || res.TotalTrades != 0 || len(res.EquityCurve) != 0 {
		t.Errorf("60 bars should evaluate nothing: %+v", res)
	}
	if res.FinalCapital != 100000 {
		t.Errorf("final capital: got %v", res.FinalCapital)
	}
}

func TestRun_InvalidParams(t *testing.T) {
	e := NewEngine(&scripted{}, logger.Discard())
	series := model.NewSeries("TEST", "1d", flat(80), true)

	p := DefaultParams()
	p.TickSize = 0
	if _, err := e.Run(context.Background(), series, rsiOnly(), p); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("tick size 0: got %v, want ErrInvalidParams", err)
	}

	bad := strategy.Selection{"ichimoku": true}
	if _, err := e.Run(context.Background(), series, bad, DefaultParams()); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("unknown indicator: got %v, want ErrInvalidParams", err)
	}
}

// ────────────────────────────────────────────────────────────
// State machine
// ────────────────────────────────────────────────────────────

func TestRun_StopHasPriorityOverTarget(t *testing.T) {
	candles := flat(70)
	candles[61].High, candles[61].Low = 103, 98 // spans stop 99.05 and target 102.05

	s := &scripted{signals: map[int]strategy.Signal{60: strategy.SignalBuy}}
	res := runScripted(t, candles, s, DefaultParams())

	if res.TotalTrades != 1 {
		t.Fatalf("trades: got %d, want 1", res.TotalTrades)
	}
	tr := res.Trades[0]
	if tr.Reason != ExitStop {
		t.Errorf("reason: got %s, want STOP", tr.Reason)
	}
	assertClose(t, "exit", tr.Exit, 99.05)
	// (99.05 − 100.05) × 2000 − 2×20
	assertClose(t, "pnl", tr.PnL, -2040)
	if tr.Size != 2000 {
		t.Errorf("size: got %d, want 2000", tr.Size)
	}
	if res.StopExits != 1 || res.TargetExits != 0 {
		t.Errorf("exit counts: stop=%d target=%d", res.StopExits, res.TargetExits)
	}
}

func TestRun_TargetExit(t *testing.T) {
	candles := flat(70)
	candles[63].High = 102.1

	s := &scripted{signals: map[int]strategy.Signal{60: strategy.SignalBuy}}
	res := runScripted(t, candles, s, DefaultParams())

	if res.TotalTrades != 1 || res.Trades[0].Reason != ExitTarget {
		t.Fatalf("want one TARGET trade, got %+v", res.Trades)
	}
	assertClose(t, "exit", res.Trades[0].Exit, 102.05)
	assertClose(t, "pnl", res.Trades[0].PnL, 3960)
	assertClose(t, "final capital", res.FinalCapital, 103960)
	assertClose(t, "total return", res.TotalReturn, 3.96)
	if res.WinningTrades != 1 || res.WinRate != 100 {
		t.Errorf("wins: %d, rate %v", res.WinningTrades, res.WinRate)
	}
}

func TestRun_SignalExitLong(t *testing.T) {
	s := &scripted{signals: map[int]strategy.Signal{
		60: strategy.SignalBuy,
		65: strategy.SignalSell,
	}}
	res := runScripted(t, flat(70), s, DefaultParams())

	if res.TotalTrades != 1 {
		t.Fatalf("trades: got %d, want 1", res.TotalTrades)
	}
	tr := res.Trades[0]
	if tr.Reason != ExitSignal || tr.Side != portfolio.Long {
		t.Errorf("got %s %s, want LONG SIGNAL", tr.Side, tr.Reason)
	}
	assertClose(t, "exit", tr.Exit, 99.95)
	// (99.95 − 100.05) × 2000 − 40
	assertClose(t, "pnl", tr.PnL, -240)
	// the SELL that closed the long must not open a short
	if res.OpenPosition != nil {
		t.Errorf("expected flat after signal exit, got %+v", res.OpenPosition)
	}
	if res.LosingTrades != 1 {
		t.Errorf("losing trades: got %d", res.LosingTrades)
	}
	assertClose(t, "avg loss", res.AvgLoss, -240)
}

func TestRun_ShortSide(t *testing.T) {
	candles := flat(80)
	candles[62].High = 101 // short stop at 100.95

	s := &scripted{signals: map[int]strategy.Signal{
		60: strategy.SignalSell,
		70: strategy.SignalSell,
		74: strategy.SignalBuy,
	}}
	res := runScripted(t, candles, s, DefaultParams())

	if res.TotalTrades != 2 {
		t.Fatalf("trades: got %d, want 2: %+v", res.TotalTrades, res.Trades)
	}
	stop, flip := res.Trades[0], res.Trades[1]
	if stop.Side != portfolio.Short || stop.Reason != ExitStop {
		t.Errorf("first trade: got %s %s", stop.Side, stop.Reason)
	}
	assertClose(t, "stop entry", stop.Entry, 99.95)
	assertClose(t, "stop exit", stop.Exit, 100.95)
	assertClose(t, "stop pnl", stop.PnL, -2040)

	if flip.Reason != ExitSignal {
		t.Errorf("second trade: got %s", flip.Reason)
	}
	assertClose(t, "flip exit", flip.Exit, 100.05)
	if res.ShortTrades != 2 || res.LongTrades != 0 {
		t.Errorf("sides: short=%d long=%d", res.ShortTrades, res.LongTrades)
	}
}

func TestRun_NoEntryOnClosingBar(t *testing.T) {
	candles := flat(70)
	candles[61].Low = 98 // stop

	s := &scripted{signals: map[int]strategy.Signal{
		60: strategy.SignalBuy,
		61: strategy.SignalBuy, // same bar as the stop-out
	}}
	res := runScripted(t, candles, s, DefaultParams())

	if res.TotalTrades != 1 {
		t.Fatalf("trades: got %d, want 1", res.TotalTrades)
	}
	if res.OpenPosition != nil {
		t.Errorf("closing bar re-entered: %+v", res.OpenPosition)
	}
}

func TestRun_SinglePosition(t *testing.T) {
	signals := map[int]strategy.Signal{}
	for i := 60; i < 90; i++ {
		signals[i] = strategy.SignalBuy
	}
	res := runScripted(t, flat(90), &scripted{signals: signals}, DefaultParams())

	if res.TotalTrades != 0 {
		t.Errorf("trades: got %d, want 0", res.TotalTrades)
	}
	op := res.OpenPosition
	if op == nil {
		t.Fatal("expected the position to stay open")
	}
	if op.Side != portfolio.Long || !op.EntryTime.Equal(t0.AddDate(0, 0, 60)) || op.Size != 2000 {
		t.Errorf("open position: %+v", op)
	}
	// marked at close 100: (100 − 100.05) × 2000
	assertClose(t, "unrealized", op.UnrealizedPnL, -100)
	assertClose(t, "final capital", res.FinalCapital, 100000)
	assertClose(t, "final equity", res.FinalEquity, 99900)
	if res.TotalReturn != 0 {
		t.Errorf("open position must not count toward return, got %v", res.TotalReturn)
	}
}

func TestRun_SizeZeroStaysFlat(t *testing.T) {
	p := DefaultParams()
	p.InitialCapital = 10 // 10 × 2% / 1.0 → 0 shares

	s := &scripted{signals: map[int]strategy.Signal{60: strategy.SignalBuy}}
	res := runScripted(t, flat(70), s, p)
	if res.OpenPosition != nil || res.TotalTrades != 0 {
		t.Errorf("expected no position, got %+v", res.OpenPosition)
	}
}

func TestRun_FallbackSizingWithZeroStop(t *testing.T) {
	p := DefaultParams()
	p.StopLoss = 0 // stop at entry → 10% of capital

	s := &scripted{signals: map[int]strategy.Signal{60: strategy.SignalBuy}}
	candles := flat(70)
	// stays above the entry-level stop
	for i := 61; i < 70; i++ {
		candles[i].Low = 100.1
		candles[i].Close = 100.2
	}
	res := runScripted(t, candles, s, p)
	if res.OpenPosition == nil {
		t.Fatal("expected an open position")
	}
	// floor(100000 × 0.1 / 100.05) = 99
	if res.OpenPosition.Size != 99 {
		t.Errorf("size: got %d, want 99", res.OpenPosition.Size)
	}
}

// ────────────────────────────────────────────────────────────
// Skips, lookahead, cancellation
// ────────────────────────────────────────────────────────────

func TestRun_SkippedBarLeavesPositionUntouched(t *testing.T) {
	candles := flat(70)
	candles[62].Low = 98 // would stop out, but the bar is skipped

	s := &scripted{
		signals: map[int]strategy.Signal{60: strategy.SignalBuy},
		fail:    map[int]bool{62: true},
	}
	res := runScripted(t, candles, s, DefaultParams())

	if res.TotalTrades != 0 || res.OpenPosition == nil {
		t.Errorf("skipped bar must not close the position: trades=%d open=%v", res.TotalTrades, res.OpenPosition)
	}
	if res.BarsSkipped != 1 || res.BarsEvaluated != 9 {
		t.Errorf("bars: evaluated=%d skipped=%d, want 9/1", res.BarsEvaluated, res.BarsSkipped)
	}
	if len(res.EquityCurve) != 9 {
		t.Errorf("equity points: got %d, want 9", len(res.EquityCurve))
	}
}

func TestRun_NoActiveIndicatorsNeverTrades(t *testing.T) {
	candles := flat(70)

	// only volume is selected and the scripted snapshot never reports a
	// volume ratio
	s := &scripted{signals: map[int]strategy.Signal{60: strategy.SignalBuy, 65: strategy.SignalBuy}}
	s.t = t
	e := NewEngine(s, logger.Discard())
	series := model.NewSeries("TEST", "1d", candles, false)

	res, err := e.Run(context.Background(), series, strategy.Selection{strategy.IndVolume: true}, DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalTrades != 0 || res.OpenPosition != nil {
		t.Errorf("no indicator can vote, nothing should trade: %+v", res.Trades)
	}
	if res.BarsEvaluated != 10 {
		t.Errorf("bars evaluated: got %d, want 10", res.BarsEvaluated)
	}
}

func TestRun_SnapshotSeesOnlyPast(t *testing.T) {
	candles := flat(75)
	s := &scripted{candles: candles}
	runScripted(t, candles, s, DefaultParams())

	if len(s.calls) != 15 {
		t.Fatalf("calls: got %d, want 15", len(s.calls))
	}
	for k, n := range s.calls {
		if want := MinCandles + k + 1; n != want {
			t.Errorf("call %d: history length %d, want %d", k, n, want)
		}
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &scripted{onCall: func(idx int) {
		if idx == 65 {
			cancel()
		}
	}}
	s.t = t
	e := NewEngine(s, logger.Discard())
	series := model.NewSeries("TEST", "1d", flat(80), true)

	res, err := e.Run(ctx, series, rsiOnly(), DefaultParams())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if res != nil {
		t.Error("cancelled run must not return a partial result")
	}
	if n := len(s.calls); n != 6 {
		t.Errorf("bars computed after cancel: got %d calls, want 6", n)
	}
}

// ────────────────────────────────────────────────────────────
// Metrics
// ────────────────────────────────────────────────────────────

func TestRun_EquityCurveCapAndDrawdown(t *testing.T) {
	candles := flat(130)
	candles[61].Low = 98 // −2040 at bar 61

	s := &scripted{signals: map[int]strategy.Signal{60: strategy.SignalBuy}}
	res := runScripted(t, candles, s, DefaultParams())

	if len(res.EquityCurve) != DefaultEquityCurveLimit {
		t.Errorf("curve length: got %d, want %d", len(res.EquityCurve), DefaultEquityCurveLimit)
	}
	last := res.EquityCurve[len(res.EquityCurve)-1]
	if !last.TS.Equal(candles[129].TS) {
		t.Errorf("curve should end at the last bar, got %v", last.TS)
	}
	// peak 99900 (bar 60 marked at −100) → trough 97960
	assertClose(t, "max drawdown", res.MaxDrawdown, 1.94)

	p := DefaultParams()
	p.EquityCurveLimit = 0
	full := runScripted(t, candles, &scripted{signals: s.signals}, p)
	if len(full.EquityCurve) != 70 {
		t.Errorf("uncapped curve: got %d, want 70", len(full.EquityCurve))
	}
}

func TestRun_PnLSignConsistency(t *testing.T) {
	candles := flat(120)
	for i := 60; i < 120; i++ {
		candles[i].Close = 100 + float64(i%7)*0.3
		candles[i].High = candles[i].Close + 0.4
		candles[i].Low = candles[i].Close - 0.4
	}
	signals := map[int]strategy.Signal{}
	for i := 60; i < 120; i++ {
		switch i % 5 {
		case 0:
			signals[i] = strategy.SignalBuy
		case 3:
			signals[i] = strategy.SignalSell
		}
	}
	p := DefaultParams()
	res := runScripted(t, candles, &scripted{signals: signals}, p)
	if res.TotalTrades == 0 {
		t.Fatal("script should produce trades")
	}

	cum := 0.0
	for _, tr := range res.Trades {
		gross := tr.PnL + 2*p.Commission
		move := tr.Exit - tr.Entry
		if tr.Side == portfolio.Short {
			move = -move
		}
		if math.Abs(move) > 0.005 && (gross > 0) != (move > 0) {
			t.Errorf("%s trade %v→%v: gross %.2f has the wrong sign", tr.Side, tr.Entry, tr.Exit, gross)
		}
		cum += tr.PnL
		if math.Abs(cum-tr.CumulativePnL) > 0.05 {
			t.Errorf("cumulative pnl: got %.2f, want %.2f", tr.CumulativePnL, cum)
		}
	}
}

// ────────────────────────────────────────────────────────────
// Real indicators
// ────────────────────────────────────────────────────────────

// wave builds a deterministic oscillating series.
func wave(n int) []model.Candle {
	out := make([]model.Candle, n)
	for i := range out {
		c := 100 + 8*math.Sin(float64(i)/6) + float64(i)*0.05
		out[i] = model.Candle{
			TS:     t0.AddDate(0, 0, i),
			Open:   c - 0.2,
			High:   c + 1.2,
			Low:    c - 1.2,
			Close:  c,
			Volume: 1000 + float64(i%9)*150,
		}
	}
	return out
}

func TestRun_Idempotent(t *testing.T) {
	e := NewEngine(indicator.NewTALib(indicator.DefaultPeriods()), logger.Discard())
	series := model.NewSeries("WAVE", "1d", wave(200), true)

	a, err := e.Run(context.Background(), series, strategy.DefaultSelection(), DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.Run(context.Background(), series, strategy.DefaultSelection(), DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	if string(ja) != string(jb) {
		t.Error("identical inputs produced different results")
	}
}

func TestRun_FutureSpikeDoesNotLeak(t *testing.T) {
	const spikeAt = 150
	base := wave(200)
	spiked := wave(200)
	for i := spikeAt; i < len(spiked); i++ {
		spiked[i].Close *= 3
		spiked[i].High *= 3
		spiked[i].Low *= 3
	}

	e := NewEngine(indicator.NewTALib(indicator.DefaultPeriods()), logger.Discard())
	p := DefaultParams()
	p.EquityCurveLimit = 0

	a, err := e.Run(context.Background(), model.NewSeries("A", "1d", base, true), strategy.DefaultSelection(), p)
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.Run(context.Background(), model.NewSeries("B", "1d", spiked, true), strategy.DefaultSelection(), p)
	if err != nil {
		t.Fatal(err)
	}

	cut := base[spikeAt].TS
	for i, pt := range a.EquityCurve {
		if !pt.TS.Before(cut) {
			break
		}
		if b.EquityCurve[i] != pt {
			t.Fatalf("equity at %v differs before the spike: %v vs %v", pt.TS, pt.Equity, b.EquityCurve[i].Equity)
		}
	}
	for i, tr := range a.Trades {
		if !tr.ExitTime.Before(cut) {
			break
		}
		if i >= len(b.Trades) || b.Trades[i] != tr {
			t.Fatalf("trade %d closed before the spike differs", i)
		}
	}
}

func TestRun_RisingZigzagRSIOnly(t *testing.T) {
	// +1.0 / −0.6 alternating keeps Wilder RSI near 62–66: never overbought.
	candles := make([]model.Candle, 150)
	c := 100.0
	for i := range candles {
		if i > 0 {
			if i%2 == 1 {
				c += 1.0
			} else {
				c -= 0.6
			}
		}
		candles[i] = model.Candle{TS: t0.AddDate(0, 0, i), Open: c, High: c + 0.1, Low: c - 0.1, Close: c, Volume: 1000}
	}

	calc := indicator.NewTALib(indicator.DefaultPeriods())
	for i := MinCandles; i < len(candles); i++ {
		snap, err := calc.Compute(candles[:i+1], true)
		if err != nil {
			t.Fatal(err)
		}
		if snap.RSI >= 70 || snap.RSI <= 30 {
			t.Fatalf("bar %d: RSI %.2f left the neutral band", i, snap.RSI)
		}
	}

	e := NewEngine(calc, logger.Discard())
	res, err := e.Run(context.Background(), model.NewSeries("ZIG", "1d", candles, true), rsiOnly(), DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalTrades != 0 || res.OpenPosition != nil {
		t.Errorf("RSI-only on a steady uptrend should not trade: %+v", res.Trades)
	}
	if res.MaxDrawdown != 0 {
		t.Errorf("max drawdown: got %v, want 0", res.MaxDrawdown)
	}
}

func TestSummarize_BreakEvenCountsAsLosing(t *testing.T) {
	r := &Result{Trades: []Trade{
		{Side: portfolio.Long, Reason: ExitTarget, PnL: 300},
		{Side: portfolio.Long, Reason: ExitStop, PnL: -200},
		{Side: portfolio.Short, Reason: ExitSignal, PnL: 0},
	}}
	r.summarize()

	if r.WinningTrades != 1 || r.LosingTrades != 2 {
		t.Fatalf("win/loss: got %d/%d, want 1/2", r.WinningTrades, r.LosingTrades)
	}
	// -200 summed, divided by both losing trades
	assertClose(t, "avg loss", r.AvgLoss, -100)
	assertClose(t, "avg win", r.AvgWin, 300)
	assertClose(t, "win rate", r.WinRate, 33.33)
	if r.LongTrades != 2 || r.ShortTrades != 1 || r.SignalExits != 1 {
		t.Errorf("counts: long=%d short=%d signal=%d", r.LongTrades, r.ShortTrades, r.SignalExits)
	}
}
