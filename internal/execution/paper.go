// Package execution simulates order fills for backtests.
package execution

import (
	"trading-screener/internal/strategy"
)

// Fill is one simulated execution.
type Fill struct {
	Action    strategy.Action `json:"action"`
	RefPrice  float64         `json:"ref_price"`
	FillPrice float64         `json:"fill_price"`
	Slippage  float64         `json:"slippage"` // price units, always adverse
}

// PaperFiller fills market orders at a reference price moved against the
// trader by a fixed number of ticks, and charges a flat commission per side.
type PaperFiller struct {
	slippage   float64
	commission float64
}

// NewPaperFiller creates a filler. slippageTicks × tickSize is added to buys
// and subtracted from sells.
func NewPaperFiller(slippageTicks, tickSize, commission float64) *PaperFiller {
	return &PaperFiller{
		slippage:   slippageTicks * tickSize,
		commission: commission,
	}
}

// Fill simulates a market order at ref.
func (p *PaperFiller) Fill(action strategy.Action, ref float64) Fill {
	price := ref
	if action == strategy.ActionBuy {
		price += p.slippage // buy higher
	} else {
		price -= p.slippage // sell lower
	}
	return Fill{
		Action:    action,
		RefPrice:  ref,
		FillPrice: price,
		Slippage:  p.slippage,
	}
}

// Commission is the cost of one side.
func (p *PaperFiller) Commission() float64 { return p.commission }

// RoundTrip is the commission for an entry plus its exit.
func (p *PaperFiller) RoundTrip() float64 { return 2 * p.commission }
