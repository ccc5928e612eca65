// Package indicator computes per-bar technical indicator snapshots from
// candle history.
//
// A Snapshot is fixed-shape: every field is always present, and the two
// volume-dependent readings carry an availability flag instead of being
// omitted. Consumers decide what an unavailable reading means.
package indicator

import (
	"errors"
	"math"
)

var (
	// ErrInsufficientHistory means the history is shorter than the longest lookback.
	ErrInsufficientHistory = errors.New("indicator: insufficient history")

	// ErrUnavailable means a required reading came out NaN or infinite.
	ErrUnavailable = errors.New("indicator: reading unavailable")
)

// Snapshot holds every indicator value for a single bar.
type Snapshot struct {
	Close float64 `json:"close"`

	RSI float64 `json:"rsi"`

	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	MACDHist   float64 `json:"macd_hist"`

	BBUpper  float64 `json:"bb_upper"`
	BBMiddle float64 `json:"bb_middle"`
	BBLower  float64 `json:"bb_lower"`

	SMA20 float64 `json:"sma_20"`
	SMA50 float64 `json:"sma_50"`
	EMA12 float64 `json:"ema_12"`
	EMA26 float64 `json:"ema_26"`

	StochK float64 `json:"stoch_k"`
	StochD float64 `json:"stoch_d"`

	ADX   float64 `json:"adx"`
	CCI   float64 `json:"cci"`
	WillR float64 `json:"willr"`
	ATR   float64 `json:"atr"`

	// Volume-dependent readings.
	HasMFI         bool    `json:"has_mfi"`
	MFI            float64 `json:"mfi"`
	HasVolumeRatio bool    `json:"has_volume_ratio"`
	VolumeRatio    float64 `json:"volume_ratio"`
	AvgVolume      float64 `json:"avg_volume"`
	CurrentVolume  float64 `json:"current_volume"`
}

// finite reports whether every value is a real number.
func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// validate checks the always-required readings.
func (s *Snapshot) validate() error {
	if !finite(
		s.Close, s.RSI,
		s.MACD, s.MACDSignal, s.MACDHist,
		s.BBUpper, s.BBMiddle, s.BBLower,
		s.SMA20, s.SMA50, s.EMA12, s.EMA26,
		s.StochK, s.StochD,
		s.ADX, s.CCI, s.WillR, s.ATR,
	) {
		return ErrUnavailable
	}
	return nil
}
