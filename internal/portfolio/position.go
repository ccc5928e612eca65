// Package portfolio holds single-position bookkeeping for a simulated
// account: the open position, its sizing, and drawdown of the equity it
// produces.
package portfolio

import (
	"math"
	"time"

	"trading-screener/internal/model"
)

// Side is the direction of an open position.
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// Position is an open position with its protective levels.
type Position struct {
	Side       Side      `json:"side"`
	EntryPrice float64   `json:"entry_price"`
	EntryTime  time.Time `json:"entry_time"`
	Stop       float64   `json:"stop_loss"`
	Target     float64   `json:"target"`
	Size       int64     `json:"size"`
}

// Open builds a position at entry with stop and target placed
// stopTicks/targetTicks away on the losing and winning side respectively.
func Open(side Side, entry float64, at time.Time, size int64, stopTicks, targetTicks, tickSize float64) *Position {
	p := &Position{
		Side:       side,
		EntryPrice: entry,
		EntryTime:  at,
		Size:       size,
	}
	if side == Long {
		p.Stop = entry - stopTicks*tickSize
		p.Target = entry + targetTicks*tickSize
	} else {
		p.Stop = entry + stopTicks*tickSize
		p.Target = entry - targetTicks*tickSize
	}
	return p
}

// RawPnL is the gross profit of closing at exit, before costs.
func (p *Position) RawPnL(exit float64) float64 {
	if p.Side == Long {
		return (exit - p.EntryPrice) * float64(p.Size)
	}
	return (p.EntryPrice - exit) * float64(p.Size)
}

// StopHit reports whether the bar's range reached the stop.
func (p *Position) StopHit(c model.Candle) bool {
	if p.Side == Long {
		return c.Low <= p.Stop
	}
	return c.High >= p.Stop
}

// TargetHit reports whether the bar's range reached the target.
func (p *Position) TargetHit(c model.Candle) bool {
	if p.Side == Long {
		return c.High >= p.Target
	}
	return c.Low <= p.Target
}

// SizePosition returns the share count that risks riskPct percent of
// capital between entry and stop. When the stop distance is not positive it
// falls back to 10% of capital at the entry price. Zero means do not trade.
func SizePosition(capital, riskPct, entry, stop float64) int64 {
	// price arithmetic leaves noise like 1.0000000000000142
	perShare := math.Round(math.Abs(entry-stop)*1e9) / 1e9
	if perShare > 0 {
		return floorSize(capital * riskPct / 100 / perShare)
	}
	if entry <= 0 {
		return 0
	}
	return floorSize(capital * 0.1 / entry)
}

const sizeEpsilon = 1e-6

func floorSize(v float64) int64 {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int64(math.Floor(v + sizeEpsilon))
}
