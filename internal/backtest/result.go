package backtest

import (
	"math"
	"time"

	"github.com/montanaflynn/stats"

	"trading-screener/internal/portfolio"
)

// ExitReason says why a position closed.
type ExitReason string

const (
	ExitStop   ExitReason = "STOP"
	ExitTarget ExitReason = "TARGET"
	ExitSignal ExitReason = "SIGNAL"
)

// Trade is a closed position. Prices and P&L are rounded to 2 decimals.
type Trade struct {
	EntryTime     time.Time      `json:"entry_time"`
	ExitTime      time.Time      `json:"exit_time"`
	Side          portfolio.Side `json:"side"`
	Entry         float64        `json:"entry"`
	Stop          float64        `json:"stop_loss"`
	Target        float64        `json:"target"`
	Exit          float64        `json:"exit"`
	Size          int64          `json:"size"`
	Reason        ExitReason     `json:"reason"`
	PnL           float64        `json:"pnl"`
	CumulativePnL float64        `json:"cumulative_pnl"`
}

// EquityPoint is the marked-to-market account value after one evaluated bar.
type EquityPoint struct {
	TS     time.Time `json:"ts"`
	Equity float64   `json:"equity"`
}

// OpenPosition is a position still open when the series ran out. It is
// marked at the last evaluated close and never counted as a trade.
type OpenPosition struct {
	portfolio.Position
	MarkPrice     float64 `json:"mark_price"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
}

// Result summarises one run. Money fields are rounded to 2 decimals.
type Result struct {
	Symbol   string `json:"symbol,omitempty"`
	Interval string `json:"interval"`

	InitialCapital float64 `json:"initial_capital"`
	FinalCapital   float64 `json:"final_capital"` // realized only
	FinalEquity    float64 `json:"final_equity"`  // includes the open position mark
	TotalReturn    float64 `json:"total_return"`  // percent, realized

	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	LongTrades    int     `json:"long_trades"`
	ShortTrades   int     `json:"short_trades"`
	WinRate       float64 `json:"win_rate"`
	AvgProfit     float64 `json:"avg_profit_per_trade"`
	AvgWin        float64 `json:"avg_win"`
	AvgLoss       float64 `json:"avg_loss"`
	MaxDrawdown   float64 `json:"max_drawdown"`

	StopExits   int `json:"sl_exits"`
	TargetExits int `json:"tp_exits"`
	SignalExits int `json:"signal_exits"`

	BarsEvaluated int `json:"bars_evaluated"`
	BarsSkipped   int `json:"bars_skipped"`

	OpenPosition *OpenPosition `json:"open_position,omitempty"`
	EquityCurve  []EquityPoint `json:"equity_curve"`
	Trades       []Trade       `json:"trades"`
}

// summarize fills the trade statistics from r.Trades.
func (r *Result) summarize() {
	r.TotalTrades = len(r.Trades)

	var pnls, wins, losses []float64
	for _, t := range r.Trades {
		pnls = append(pnls, t.PnL)
		if t.PnL > 0 {
			wins = append(wins, t.PnL)
		} else if t.PnL < 0 {
			losses = append(losses, t.PnL)
		}

		if t.Side == portfolio.Long {
			r.LongTrades++
		} else {
			r.ShortTrades++
		}
		switch t.Reason {
		case ExitStop:
			r.StopExits++
		case ExitTarget:
			r.TargetExits++
		case ExitSignal:
			r.SignalExits++
		}
	}

	r.WinningTrades = len(wins)
	// break-even trades count as losing
	r.LosingTrades = r.TotalTrades - r.WinningTrades

	if r.TotalTrades == 0 {
		return
	}
	r.WinRate = round2(float64(r.WinningTrades) / float64(r.TotalTrades) * 100)
	r.AvgProfit = round2(mean(pnls))
	if r.WinningTrades > 0 {
		r.AvgWin = round2(sum(wins) / float64(r.WinningTrades))
	}
	if r.LosingTrades > 0 {
		r.AvgLoss = round2(sum(losses) / float64(r.LosingTrades))
	}
}

func sum(v []float64) float64 {
	s, err := stats.Sum(v)
	if err != nil {
		return 0
	}
	return s
}

func mean(v []float64) float64 {
	m, err := stats.Mean(v)
	if err != nil {
		return 0
	}
	return m
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
