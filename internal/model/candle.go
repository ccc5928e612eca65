package model

import (
	"sort"
	"time"
)

// Candle is one OHLCV bar for a single symbol.
// Volume is zero when the source carries no volume column.
type Candle struct {
	TS     time.Time `json:"ts"` // bar open time
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Series is an ascending, time-ordered candle history for one symbol.
type Series struct {
	Symbol   string   `json:"symbol"`
	Interval string   `json:"interval"`
	Candles  []Candle `json:"candles"`

	// HasVolume reports whether the series carries real volume data.
	// Volume-based indicators abstain when it is false.
	HasVolume bool `json:"has_volume"`
}

// NewSeries sorts candles by timestamp and derives HasVolume.
// volumeColumn is false when the source had no volume field at all; a
// column that is present but zero throughout also counts as no volume.
func NewSeries(symbol, interval string, candles []Candle, volumeColumn bool) Series {
	sorted := make([]Candle, len(candles))
	copy(sorted, candles)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].TS.Before(sorted[j].TS)
	})

	hasVolume := false
	if volumeColumn {
		for _, c := range sorted {
			if c.Volume > 0 {
				hasVolume = true
				break
			}
		}
	}

	return Series{
		Symbol:    symbol,
		Interval:  interval,
		Candles:   sorted,
		HasVolume: hasVolume,
	}
}

// Len returns the number of candles.
func (s Series) Len() int { return len(s.Candles) }

// Last returns the most recent candle. ok is false for an empty series.
func (s Series) Last() (c Candle, ok bool) {
	if len(s.Candles) == 0 {
		return Candle{}, false
	}
	return s.Candles[len(s.Candles)-1], true
}

// Closes extracts the close column.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Columns splits candles into high, low, close and volume slices.
func Columns(candles []Candle) (high, low, closes, volume []float64) {
	n := len(candles)
	high = make([]float64, n)
	low = make([]float64, n)
	closes = make([]float64, n)
	volume = make([]float64, n)
	for i, c := range candles {
		high[i] = c.High
		low[i] = c.Low
		closes[i] = c.Close
		volume[i] = c.Volume
	}
	return high, low, closes, volume
}
