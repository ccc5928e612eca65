// Package report renders screening and backtest results as terminal tables.
package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"trading-screener/internal/backtest"
	"trading-screener/internal/screener"
)

// Screen writes one row per result in ranked order.
func Screen(w io.Writer, results []screener.Result) {
	t := tablewriter.NewWriter(w)
	t.SetHeader([]string{"Symbol", "Signal", "Conf %", "Price", "Buy/Sell/Neutral", "Risk", "RSI", "ADX", "Reasons"})
	t.SetAutoWrapText(false)
	for _, r := range results {
		reason := ""
		if len(r.Reasons) > 0 {
			reason = r.Reasons[0]
			if len(r.Reasons) > 1 {
				reason += fmt.Sprintf(" (+%d)", len(r.Reasons)-1)
			}
		}
		t.Append([]string{
			r.Symbol,
			string(r.Signal),
			num(r.Confidence, 1),
			num(r.Price, 2),
			fmt.Sprintf("%d/%d/%d", r.BuySignals, r.SellSignals, r.NeutralSignals),
			num(r.RiskScore, 1),
			num(r.RSI, 2),
			num(r.ADX, 2),
			reason,
		})
	}
	t.Render()
}

// Summary writes the headline statistics of a run as a two-column table.
func Summary(w io.Writer, res *backtest.Result) {
	t := tablewriter.NewWriter(w)
	t.SetHeader([]string{"Metric", "Value"})
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	t.SetAutoWrapText(false)
	rows := [][]string{
		{"Symbol", res.Symbol},
		{"Interval", res.Interval},
		{"Initial capital", num(res.InitialCapital, 2)},
		{"Final capital", num(res.FinalCapital, 2)},
		{"Final equity", num(res.FinalEquity, 2)},
		{"Total return %", num(res.TotalReturn, 2)},
		{"Trades", strconv.Itoa(res.TotalTrades)},
		{"Won / lost", fmt.Sprintf("%d / %d", res.WinningTrades, res.LosingTrades)},
		{"Long / short", fmt.Sprintf("%d / %d", res.LongTrades, res.ShortTrades)},
		{"Win rate %", num(res.WinRate, 2)},
		{"Avg P&L", num(res.AvgProfit, 2)},
		{"Avg win / loss", num(res.AvgWin, 2) + " / " + num(res.AvgLoss, 2)},
		{"Max drawdown %", num(res.MaxDrawdown, 2)},
		{"Exits SL / TP / signal", fmt.Sprintf("%d / %d / %d", res.StopExits, res.TargetExits, res.SignalExits)},
		{"Bars evaluated / skipped", fmt.Sprintf("%d / %d", res.BarsEvaluated, res.BarsSkipped)},
	}
	if p := res.OpenPosition; p != nil {
		rows = append(rows, []string{"Open position", fmt.Sprintf("%s x%d @ %s, unrealized %s",
			p.Side, p.Size, num(p.EntryPrice, 2), num(p.UnrealizedPnL, 2))})
	}
	t.AppendBulk(rows)
	t.Render()
}

// Trades writes the closed trades of a run.
func Trades(w io.Writer, trades []backtest.Trade) {
	t := tablewriter.NewWriter(w)
	t.SetHeader([]string{"Entry", "Exit", "Side", "Entry Px", "Exit Px", "Size", "Reason", "P&L", "Cum P&L"})
	for _, tr := range trades {
		t.Append([]string{
			tr.EntryTime.Format("2006-01-02 15:04"),
			tr.ExitTime.Format("2006-01-02 15:04"),
			string(tr.Side),
			num(tr.Entry, 2),
			num(tr.Exit, 2),
			strconv.FormatInt(tr.Size, 10),
			string(tr.Reason),
			num(tr.PnL, 2),
			num(tr.CumulativePnL, 2),
		})
	}
	t.Render()
}

func num(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}
