package backtest

import (
	"errors"
	"fmt"

	"trading-screener/internal/strategy"
)

// MinCandles is the warm-up: bars before this index are never traded.
const MinCandles = 60

// DefaultEquityCurveLimit is how many trailing equity points a Result keeps.
const DefaultEquityCurveLimit = 50

var (
	// ErrInsufficientHistory means the series has fewer than MinCandles bars.
	ErrInsufficientHistory = errors.New("backtest: need at least 60 candles")

	// ErrInvalidParams wraps every parameter validation failure.
	ErrInvalidParams = errors.New("backtest: invalid parameters")
)

// Params configures a run. Stop, target and slippage are in ticks.
type Params struct {
	InitialCapital   float64           `json:"initial_capital" yaml:"initial_capital"`
	RiskPerTrade     float64           `json:"risk_per_trade" yaml:"risk_per_trade"` // percent of capital
	StopLoss         float64           `json:"stop_loss" yaml:"stop_loss"`
	TakeProfit       float64           `json:"take_profit" yaml:"take_profit"`
	TickSize         float64           `json:"tick_size" yaml:"tick_size"`
	Commission       float64           `json:"commission" yaml:"commission"` // per side
	Slippage         float64           `json:"slippage" yaml:"slippage"`
	Interval         string            `json:"interval" yaml:"interval"`
	TieBreak         strategy.TieBreak `json:"tie_break" yaml:"tie_break"`
	EquityCurveLimit int               `json:"equity_curve_limit" yaml:"equity_curve_limit"` // 0 keeps all
}

// DefaultParams returns the standard run configuration.
func DefaultParams() Params {
	return Params{
		InitialCapital:   100000,
		RiskPerTrade:     2.0,
		StopLoss:         20,
		TakeProfit:       40,
		TickSize:         0.05,
		Commission:       20.0,
		Slippage:         1.0,
		Interval:         "1d",
		TieBreak:         strategy.TieBreakStrict,
		EquityCurveLimit: DefaultEquityCurveLimit,
	}
}

// Validate checks every field.
func (p Params) Validate() error {
	switch {
	case p.InitialCapital <= 0:
		return fmt.Errorf("%w: initial_capital must be positive", ErrInvalidParams)
	case p.RiskPerTrade <= 0 || p.RiskPerTrade > 100:
		return fmt.Errorf("%w: risk_per_trade must be in (0, 100]", ErrInvalidParams)
	case p.StopLoss < 0:
		return fmt.Errorf("%w: stop_loss must not be negative", ErrInvalidParams)
	case p.TakeProfit <= 0:
		return fmt.Errorf("%w: take_profit must be positive", ErrInvalidParams)
	case p.TickSize <= 0:
		return fmt.Errorf("%w: tick_size must be positive", ErrInvalidParams)
	case p.Commission < 0:
		return fmt.Errorf("%w: commission must not be negative", ErrInvalidParams)
	case p.Slippage < 0:
		return fmt.Errorf("%w: slippage must not be negative", ErrInvalidParams)
	case !p.TieBreak.Valid():
		return fmt.Errorf("%w: tie_break %q", ErrInvalidParams, p.TieBreak)
	case p.EquityCurveLimit < 0:
		return fmt.Errorf("%w: equity_curve_limit must not be negative", ErrInvalidParams)
	}
	return nil
}
