package screener

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"trading-screener/internal/indicator"
	"trading-screener/internal/logger"
	"trading-screener/internal/marketdata"
	"trading-screener/internal/model"
	"trading-screener/internal/strategy"
)

// fakeData serves fixed series; unknown symbols are unavailable.
type fakeData struct {
	series map[string]model.Series
	mu     sync.Mutex
	asked  map[string]string // symbol -> period
}

func (f *fakeData) Fetch(_ context.Context, symbol, period, interval string) (model.Series, error) {
	f.mu.Lock()
	if f.asked == nil {
		f.asked = map[string]string{}
	}
	f.asked[symbol] = period
	f.mu.Unlock()

	s, ok := f.series[symbol]
	if !ok {
		return model.Series{}, fmt.Errorf("%w: %s", marketdata.ErrUnavailable, symbol)
	}
	return s, nil
}

// byClose returns the snapshot registered for the last close of history.
type byClose map[float64]indicator.Snapshot

func (b byClose) Compute(history []model.Candle, _ bool) (indicator.Snapshot, error) {
	last := history[len(history)-1].Close
	snap, ok := b[last]
	if !ok {
		return indicator.Snapshot{}, indicator.ErrUnavailable
	}
	return snap, nil
}

func series(symbol string, n int, lastClose float64) model.Series {
	start := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	candles := make([]model.Candle, n)
	for i := range candles {
		c := 100.0
		if i == n-1 {
			c = lastClose
		}
		candles[i] = model.Candle{TS: start.AddDate(0, 0, i), Open: c, High: c + 1, Low: c - 1, Close: c}
	}
	return model.NewSeries(symbol, "1d", candles, false)
}

func snap(rsi, cci float64) indicator.Snapshot {
	return indicator.Snapshot{RSI: rsi, CCI: cci, ADX: 30, MACD: 1.234}
}

func rsiCCI() strategy.Strategy {
	return strategy.Strategy{Name: "rsi+cci", Indicators: strategy.Selection{strategy.IndRSI: true, strategy.IndCCI: true}}
}

func fixture() (*fakeData, byClose) {
	data := &fakeData{series: map[string]model.Series{
		"AAA":   series("AAA", 80, 101.234),
		"BBB":   series("BBB", 80, 102),
		"CCC":   series("CCC", 80, 103),
		"DDD":   series("DDD", 80, 104),
		"SHORT": series("SHORT", 59, 105),
	}}
	snaps := byClose{
		101.234: snap(25, -150), // buy, buy
		102:     snap(25, 0),    // buy, neutral
		103:     snap(75, 0),    // sell, neutral
		104:     snap(50, 0),    // neutral, neutral
		105:     snap(25, -150),
	}
	return data, snaps
}

func TestScreen_RanksAndSkips(t *testing.T) {
	data, snaps := fixture()
	s := New(data, snaps, 3, logger.Discard())

	input := []string{"ddd", "CCC", " BBB ", "MISSING", "AAA", "SHORT", ""}
	got, err := s.Screen(context.Background(), input, rsiCCI(), "1d")
	if err != nil {
		t.Fatal(err)
	}

	var order []string
	for _, r := range got {
		order = append(order, r.Symbol+":"+string(r.Signal))
	}
	want := "AAA:BUY BBB:BUY CCC:SELL DDD:HOLD"
	if strings.Join(order, " ") != want {
		t.Fatalf("order: got %v, want %s", order, want)
	}

	a := got[0]
	if a.BuyPct != 100 || a.Confidence != 100 || a.BuySignals != 2 || a.Price != 101.23 {
		t.Errorf("AAA: got %+v", a)
	}
	if a.RiskScore != 0 || a.MACD != 1.23 || a.MFI != nil || a.VolumeRatio != nil {
		t.Errorf("AAA readings: got %+v", a)
	}
	if strings.Join(a.Reasons, "; ") != "RSI oversold (25.0); CCI oversold (-150)" {
		t.Errorf("AAA reasons: %v", a.Reasons)
	}

	// one buy against one neutral wins under the inclusive rule
	b := got[1]
	if b.BuyPct != 50 || b.NeutralPct != 50 || b.Confidence != 50 {
		t.Errorf("BBB: got %+v", b)
	}

	d := got[3]
	if d.Reasons == nil || len(d.Reasons) != 0 {
		t.Errorf("HOLD reasons should be an empty list, got %#v", d.Reasons)
	}
	if d.Timeframe != "1d" {
		t.Errorf("timeframe: got %q", d.Timeframe)
	}

	if p := data.asked["AAA"]; p != "6mo" {
		t.Errorf("period for 1d: got %q, want 6mo", p)
	}
}

func TestScreen_StrictTieBreak(t *testing.T) {
	data, snaps := fixture()
	s := New(data, snaps, 2, logger.Discard())
	if s.TieBreak != strategy.TieBreakInclusive {
		t.Fatalf("default tie-break: got %q", s.TieBreak)
	}
	s.TieBreak = strategy.TieBreakStrict

	got, err := s.Screen(context.Background(), []string{"AAA", "BBB", "CCC"}, rsiCCI(), "1d")
	if err != nil {
		t.Fatal(err)
	}
	signals := map[string]strategy.Signal{}
	for _, r := range got {
		signals[r.Symbol] = r.Signal
	}
	// one vote against one neutral no longer wins
	if signals["AAA"] != strategy.SignalBuy || signals["BBB"] != strategy.SignalHold || signals["CCC"] != strategy.SignalHold {
		t.Errorf("signals: %v", signals)
	}
}

func TestScreen_InvalidTieBreak(t *testing.T) {
	data, snaps := fixture()
	s := New(data, snaps, 2, logger.Discard())
	s.TieBreak = "loose"
	if _, err := s.Screen(context.Background(), []string{"AAA"}, rsiCCI(), "1d"); !errors.Is(err, strategy.ErrInvalidTieBreak) {
		t.Errorf("got %v, want ErrInvalidTieBreak", err)
	}
}

func TestScreen_TimeframePeriod(t *testing.T) {
	data, snaps := fixture()
	s := New(data, snaps, 1, logger.Discard())

	if _, err := s.Screen(context.Background(), []string{"AAA"}, rsiCCI(), "15m"); err != nil {
		t.Fatal(err)
	}
	if p := data.asked["AAA"]; p != "60d" {
		t.Errorf("period for 15m: got %q, want 60d", p)
	}
}

func TestScreen_NoActiveIndicatorsSkipsSymbol(t *testing.T) {
	data, snaps := fixture()
	s := New(data, snaps, 2, logger.Discard())

	// volume-only selection on a series without volume
	st := strategy.Strategy{Name: "vol", Indicators: strategy.Selection{strategy.IndVolume: true, strategy.IndMFI: true}}
	got, err := s.Screen(context.Background(), []string{"AAA", "BBB"}, st, "1d")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("got %d results, want 0", len(got))
	}
}

func TestScreen_InvalidSelection(t *testing.T) {
	data, snaps := fixture()
	s := New(data, snaps, 2, logger.Discard())

	st := strategy.Strategy{Indicators: strategy.Selection{"ichimoku": true}}
	if _, err := s.Screen(context.Background(), []string{"AAA"}, st, "1d"); !errors.Is(err, strategy.ErrUnknownIndicator) {
		t.Errorf("got %v, want ErrUnknownIndicator", err)
	}
}

func TestScreen_Cancelled(t *testing.T) {
	data, snaps := fixture()
	s := New(data, snaps, 2, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Screen(ctx, []string{"AAA", "BBB"}, rsiCCI(), "1d"); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

type recorder struct {
	mu       sync.Mutex
	signals  map[string]int
	finished int
}

func (r *recorder) SignalEmitted(signal string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.signals == nil {
		r.signals = map[string]int{}
	}
	r.signals[signal]++
}

func (r *recorder) ScreenFinished(time.Duration) {
	r.mu.Lock()
	r.finished++
	r.mu.Unlock()
}

func TestScreen_HooksAndObserver(t *testing.T) {
	data, snaps := fixture()
	s := New(data, snaps, 4, logger.Discard())

	rec := &recorder{}
	s.Observer = rec
	var mu sync.Mutex
	var seen []string
	s.OnResult = func(r Result) {
		mu.Lock()
		seen = append(seen, r.Symbol)
		mu.Unlock()
	}

	if _, err := s.Screen(context.Background(), []string{"AAA", "BBB", "CCC", "DDD", "SHORT"}, rsiCCI(), "1d"); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 4 {
		t.Errorf("OnResult calls: got %d, want 4", len(seen))
	}
	if rec.signals["BUY"] != 2 || rec.signals["SELL"] != 1 || rec.signals["HOLD"] != 1 || rec.finished != 1 {
		t.Errorf("observer: got %v finished=%d", rec.signals, rec.finished)
	}
}

func TestNewResult_VolumeReadings(t *testing.T) {
	s := indicator.Snapshot{RSI: 50, ADX: 30, HasMFI: true, MFI: 55.556, HasVolumeRatio: true, VolumeRatio: 1.804}
	d := strategy.Decision{Signal: strategy.SignalHold, Neutral: 1, Active: 1, NeutralPct: 100, Confidence: 100}

	r := newResult("TCS", "1d", 3456.754, s, d)
	if r.MFI == nil || *r.MFI != 55.56 {
		t.Errorf("MFI: got %v, want 55.56", r.MFI)
	}
	if r.VolumeRatio == nil || *r.VolumeRatio != 1.8 {
		t.Errorf("volume ratio: got %v, want 1.8", r.VolumeRatio)
	}
	if r.Price != 3456.75 {
		t.Errorf("price: got %v, want 3456.75", r.Price)
	}
}

func TestRank_StableOnTies(t *testing.T) {
	results := []Result{
		{Symbol: "X", Signal: strategy.SignalBuy, BuyPct: 50},
		{Symbol: "H", Signal: strategy.SignalHold, BuyPct: 90},
		{Symbol: "Y", Signal: strategy.SignalBuy, BuyPct: 50},
		{Symbol: "S", Signal: strategy.SignalStrongSell},
		{Symbol: "Z", Signal: strategy.SignalStrongBuy, BuyPct: 10},
		{Symbol: "W", Signal: strategy.SignalBuy, BuyPct: 75},
	}
	Rank(results)

	var got []string
	for _, r := range results {
		got = append(got, r.Symbol)
	}
	if strings.Join(got, "") != "ZWXYSH" {
		t.Errorf("got %v, want Z W X Y S H", got)
	}
}

func TestPicks(t *testing.T) {
	results := []Result{
		{Symbol: "A", Signal: strategy.SignalBuy},
		{Symbol: "B", Signal: strategy.SignalHold},
		{Symbol: "C", Signal: strategy.SignalSell},
	}
	got := Picks(results)
	if len(got) != 2 || got[0].Symbol != "A" || got[1].Symbol != "C" {
		t.Errorf("got %+v", got)
	}
}
