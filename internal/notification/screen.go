package notification

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"trading-screener/internal/screener"
)

// maxPicks caps the symbols listed in one alert.
const maxPicks = 10

// ScreenSummary builds the alert for a finished screen. ok is false when
// nothing but HOLD came out.
func ScreenSummary(timeframe string, results []screener.Result) (alert Alert, ok bool) {
	picks := screener.Picks(results)
	if len(picks) == 0 {
		return Alert{}, false
	}

	alert = Alert{
		Level:     AlertInfo,
		Title:     fmt.Sprintf("Screen %s: %d of %d symbols actionable", timeframe, len(picks), len(results)),
		Timeframe: timeframe,
	}

	var b strings.Builder
	for i, r := range picks {
		if i == maxPicks {
			fmt.Fprintf(&b, "... and %d more\n", len(picks)-maxPicks)
			break
		}
		p := Pick{
			Symbol:     r.Symbol,
			Signal:     string(r.Signal),
			Price:      r.Price,
			Confidence: r.Confidence,
			RiskScore:  r.RiskScore,
		}
		alert.Picks = append(alert.Picks, p)
		fmt.Fprintf(&b, "%s %s @ %.2f (confidence %.1f%%, risk %.1f)\n",
			p.Signal, p.Symbol, p.Price, p.Confidence, p.RiskScore)
	}
	alert.Message = strings.TrimSuffix(b.String(), "\n")
	return alert, true
}

// ScreenAlerter sends a summary after every screen. Delivery failures are
// logged, never returned.
type ScreenAlerter struct {
	Notifier Notifier
	Log      *slog.Logger
}

// Notify sends the summary of results, if any pick exists.
func (a *ScreenAlerter) Notify(ctx context.Context, timeframe string, results []screener.Result) {
	alert, ok := ScreenSummary(timeframe, results)
	if !ok || a.Notifier == nil {
		return
	}
	if err := a.Notifier.Send(ctx, alert); err != nil && a.Log != nil {
		a.Log.Warn("screen alert failed", "error", err)
	}
}
