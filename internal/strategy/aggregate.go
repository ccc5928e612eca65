package strategy

import (
	"errors"
	"fmt"

	"trading-screener/internal/indicator"
)

// ErrNoActiveIndicators means nothing in the selection can vote on this bar.
var ErrNoActiveIndicators = errors.New("strategy: no active indicators")

// ErrInvalidTieBreak is returned for a TieBreak outside the two modes.
var ErrInvalidTieBreak = errors.New("strategy: invalid tie-break")

// Vote thresholds.
const (
	rsiOversold     = 30.0
	rsiOverbought   = 70.0
	stochLow        = 20.0
	stochHigh       = 80.0
	adxTrending     = 25.0
	volumeSurge     = 1.5
	cciLow          = -100.0
	cciHigh         = 100.0
	willrOversold   = -80.0
	willrOverbought = -20.0
	mfiLow          = 20.0
	mfiHigh         = 80.0

	riskRSIHigh   = 80.0
	riskRSILow    = 20.0
	riskADXWeak   = 20.0
	riskVolumeLow = 0.5
	riskFactors   = 3.0
)

// IndicatorVote is one indicator's contribution to a Decision.
type IndicatorVote struct {
	Name   string  `json:"name"`
	Vote   Vote    `json:"vote"`
	Value  float64 `json:"value"`
	Reason string  `json:"reason"`
}

// Decision is the aggregated outcome for one bar.
type Decision struct {
	Signal     Signal          `json:"signal"`
	Buy        int             `json:"buy_signals"`
	Sell       int             `json:"sell_signals"`
	Neutral    int             `json:"neutral_signals"`
	Active     int             `json:"active_count"`
	BuyPct     float64         `json:"buy_percentage"`
	SellPct    float64         `json:"sell_percentage"`
	NeutralPct float64         `json:"neutral_percentage"`
	Confidence float64         `json:"confidence"`
	RiskScore  float64         `json:"risk_score"`
	Votes      []IndicatorVote `json:"votes"`
}

// Reasons returns the human-readable reason of every non-neutral vote.
func (d Decision) Reasons() []string {
	var out []string
	for _, v := range d.Votes {
		if v.Vote != VoteNeutral {
			out = append(out, v.Reason)
		}
	}
	return out
}

// Aggregate runs every enabled indicator's rule against snap and combines
// the votes by majority. price is the bar's close.
//
// Volume-based indicators whose reading is unavailable neither vote nor
// count as active. With no active indicator it returns ErrNoActiveIndicators.
func Aggregate(snap indicator.Snapshot, price float64, sel Selection, tb TieBreak) (Decision, error) {
	if !tb.Valid() {
		return Decision{}, fmt.Errorf("%w %q", ErrInvalidTieBreak, tb)
	}

	var d Decision
	for _, name := range Names {
		if !sel[name] || !available(name, snap) {
			continue
		}
		v := evaluate(name, snap, price)
		d.Votes = append(d.Votes, v)
		switch v.Vote {
		case VoteBuy:
			d.Buy++
		case VoteSell:
			d.Sell++
		default:
			d.Neutral++
		}
	}

	d.Active = len(d.Votes)
	if d.Active == 0 {
		return Decision{}, ErrNoActiveIndicators
	}

	active := float64(d.Active)
	d.BuyPct = float64(d.Buy) / active * 100
	d.SellPct = float64(d.Sell) / active * 100
	d.NeutralPct = float64(d.Neutral) / active * 100

	switch {
	case d.Buy > d.Sell && tb.beats(d.Buy, d.Neutral):
		d.Signal = SignalBuy
	case d.Sell > d.Buy && tb.beats(d.Sell, d.Neutral):
		d.Signal = SignalSell
	default:
		d.Signal = SignalHold
	}

	d.Confidence = float64(max(d.Buy, d.Sell, d.Neutral)) / active * 100
	d.RiskScore = RiskScore(snap)
	return d, nil
}

// RiskScore is the share of risk factors present, 0–100: extreme RSI,
// weak trend and thin volume. Thin volume only counts when measurable.
func RiskScore(snap indicator.Snapshot) float64 {
	factors := 0
	if snap.RSI > riskRSIHigh || snap.RSI < riskRSILow {
		factors++
	}
	if snap.ADX < riskADXWeak {
		factors++
	}
	if snap.HasVolumeRatio && snap.VolumeRatio < riskVolumeLow {
		factors++
	}
	return float64(factors) / riskFactors * 100
}

func available(name string, snap indicator.Snapshot) bool {
	switch name {
	case IndVolume:
		return snap.HasVolumeRatio
	case IndMFI:
		return snap.HasMFI
	}
	return true
}

func evaluate(name string, s indicator.Snapshot, price float64) IndicatorVote {
	v := IndicatorVote{Name: name, Vote: VoteNeutral}

	switch name {
	case IndRSI:
		v.Value = s.RSI
		switch {
		case s.RSI < rsiOversold:
			v.Vote, v.Reason = VoteBuy, fmt.Sprintf("RSI oversold (%.1f)", s.RSI)
		case s.RSI > rsiOverbought:
			v.Vote, v.Reason = VoteSell, fmt.Sprintf("RSI overbought (%.1f)", s.RSI)
		default:
			v.Reason = fmt.Sprintf("RSI neutral (%.1f)", s.RSI)
		}

	case IndMACD:
		v.Value = s.MACDHist
		switch {
		case s.MACD > s.MACDSignal && s.MACDHist > 0:
			v.Vote, v.Reason = VoteBuy, "MACD bullish crossover"
		case s.MACD < s.MACDSignal && s.MACDHist < 0:
			v.Vote, v.Reason = VoteSell, "MACD bearish crossover"
		default:
			v.Reason = "MACD flat"
		}

	case IndBollinger:
		v.Value = price
		switch {
		case price < s.BBLower:
			v.Vote, v.Reason = VoteBuy, "Price below lower Bollinger band"
		case price > s.BBUpper:
			v.Vote, v.Reason = VoteSell, "Price above upper Bollinger band"
		default:
			v.Reason = "Price inside Bollinger bands"
		}

	case IndStochastic:
		v.Value = s.StochK
		switch {
		case s.StochK < stochLow && s.StochD < stochLow:
			v.Vote, v.Reason = VoteBuy, "Stochastic oversold"
		case s.StochK > stochHigh && s.StochD > stochHigh:
			v.Vote, v.Reason = VoteSell, "Stochastic overbought"
		default:
			v.Reason = "Stochastic neutral"
		}

	case IndADX:
		v.Value = s.ADX
		switch {
		case s.ADX > adxTrending && price > s.SMA20:
			v.Vote, v.Reason = VoteBuy, fmt.Sprintf("Strong uptrend (ADX %.1f)", s.ADX)
		case s.ADX > adxTrending:
			v.Vote, v.Reason = VoteSell, fmt.Sprintf("Strong downtrend (ADX %.1f)", s.ADX)
		default:
			v.Reason = fmt.Sprintf("Weak trend (ADX %.1f)", s.ADX)
		}

	case IndVolume:
		v.Value = s.VolumeRatio
		switch {
		case s.VolumeRatio > volumeSurge && price > s.SMA20:
			v.Vote, v.Reason = VoteBuy, fmt.Sprintf("Volume surge on strength (%.1fx)", s.VolumeRatio)
		case s.VolumeRatio > volumeSurge:
			v.Vote, v.Reason = VoteSell, fmt.Sprintf("Volume surge on weakness (%.1fx)", s.VolumeRatio)
		default:
			v.Reason = fmt.Sprintf("Normal volume (%.1fx)", s.VolumeRatio)
		}

	case IndCCI:
		v.Value = s.CCI
		switch {
		case s.CCI < cciLow:
			v.Vote, v.Reason = VoteBuy, fmt.Sprintf("CCI oversold (%.0f)", s.CCI)
		case s.CCI > cciHigh:
			v.Vote, v.Reason = VoteSell, fmt.Sprintf("CCI overbought (%.0f)", s.CCI)
		default:
			v.Reason = fmt.Sprintf("CCI neutral (%.0f)", s.CCI)
		}

	case IndWillR:
		v.Value = s.WillR
		switch {
		case s.WillR < willrOversold:
			v.Vote, v.Reason = VoteBuy, fmt.Sprintf("Williams %%R oversold (%.1f)", s.WillR)
		case s.WillR > willrOverbought:
			v.Vote, v.Reason = VoteSell, fmt.Sprintf("Williams %%R overbought (%.1f)", s.WillR)
		default:
			v.Reason = fmt.Sprintf("Williams %%R neutral (%.1f)", s.WillR)
		}

	case IndMFI:
		v.Value = s.MFI
		switch {
		case s.MFI < mfiLow:
			v.Vote, v.Reason = VoteBuy, fmt.Sprintf("MFI oversold (%.1f)", s.MFI)
		case s.MFI > mfiHigh:
			v.Vote, v.Reason = VoteSell, fmt.Sprintf("MFI overbought (%.1f)", s.MFI)
		default:
			v.Reason = fmt.Sprintf("MFI neutral (%.1f)", s.MFI)
		}
	}
	return v
}
