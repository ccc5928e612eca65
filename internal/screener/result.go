package screener

import (
	"math"
	"sort"

	"trading-screener/internal/indicator"
	"trading-screener/internal/strategy"
)

// Result is the screening record for one symbol at its latest bar.
// Percentages, confidence and risk are rounded to 1 decimal, price and
// indicator readings to 2.
type Result struct {
	Symbol    string          `json:"symbol"`
	Timeframe string          `json:"timeframe"`
	Signal    strategy.Signal `json:"signal"`

	Confidence float64 `json:"confidence"`
	Price      float64 `json:"price"`

	BuySignals     int     `json:"buy_signals"`
	SellSignals    int     `json:"sell_signals"`
	NeutralSignals int     `json:"neutral_signals"`
	BuyPct         float64 `json:"buy_percentage"`
	SellPct        float64 `json:"sell_percentage"`
	NeutralPct     float64 `json:"neutral_percentage"`
	RiskScore      float64 `json:"risk_score"`

	RSI   float64 `json:"rsi"`
	MACD  float64 `json:"macd"`
	ADX   float64 `json:"adx"`
	CCI   float64 `json:"cci"`
	WillR float64 `json:"willr"`

	// nil when the series has no volume
	MFI         *float64 `json:"mfi"`
	VolumeRatio *float64 `json:"volume_ratio"`

	Reasons []string `json:"reasons"`
}

func newResult(symbol, timeframe string, price float64, snap indicator.Snapshot, d strategy.Decision) Result {
	r := Result{
		Symbol:         symbol,
		Timeframe:      timeframe,
		Signal:         d.Signal,
		Confidence:     round(d.Confidence, 1),
		Price:          round(price, 2),
		BuySignals:     d.Buy,
		SellSignals:    d.Sell,
		NeutralSignals: d.Neutral,
		BuyPct:         round(d.BuyPct, 1),
		SellPct:        round(d.SellPct, 1),
		NeutralPct:     round(d.NeutralPct, 1),
		RiskScore:      round(d.RiskScore, 1),
		RSI:            round(snap.RSI, 2),
		MACD:           round(snap.MACD, 2),
		ADX:            round(snap.ADX, 2),
		CCI:            round(snap.CCI, 2),
		WillR:          round(snap.WillR, 2),
		Reasons:        d.Reasons(),
	}
	if snap.HasMFI {
		v := round(snap.MFI, 2)
		r.MFI = &v
	}
	if snap.HasVolumeRatio {
		v := round(snap.VolumeRatio, 2)
		r.VolumeRatio = &v
	}
	if r.Reasons == nil {
		r.Reasons = []string{}
	}
	return r
}

// Rank orders results by signal priority, then by buy percentage, both
// descending. Equal keys keep their input order.
func Rank(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		pi, pj := results[i].Signal.Priority(), results[j].Signal.Priority()
		if pi != pj {
			return pi > pj
		}
		return results[i].BuyPct > results[j].BuyPct
	})
}

// Picks returns the results whose signal is actionable (anything but HOLD).
func Picks(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Signal != strategy.SignalHold {
			out = append(out, r)
		}
	}
	return out
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
