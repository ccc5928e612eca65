package marketdata

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"trading-screener/internal/model"
)

var (
	// ErrUnknownInterval is returned for a bar interval outside Intervals.
	ErrUnknownInterval = errors.New("marketdata: unknown interval")

	// ErrBadPeriod is returned for an unparsable lookback period.
	ErrBadPeriod = errors.New("marketdata: bad period")

	// ErrPeriodTooLong means the interval cannot be served that far back.
	ErrPeriodTooLong = errors.New("marketdata: period exceeds interval limit")
)

// Intervals lists the supported bar intervals.
var Intervals = []string{"1m", "5m", "15m", "30m", "1h", "1d"}

// screening lookback per interval
var screenPeriods = map[string]string{
	"1m":  "7d",
	"5m":  "60d",
	"15m": "60d",
	"30m": "60d",
	"1h":  "60d",
	"1d":  "6mo",
}

// longest lookback in days per intraday interval; 1d is unlimited
var maxLookbackDays = map[string]int{
	"1m":  7,
	"5m":  60,
	"15m": 60,
	"30m": 60,
	"1h":  730,
}

// DefaultPeriod is the screening lookback for intervals without a mapping.
const DefaultPeriod = "6mo"

// PeriodForTimeframe returns the screening lookback for an interval.
func PeriodForTimeframe(interval string) string {
	if p, ok := screenPeriods[interval]; ok {
		return p
	}
	return DefaultPeriod
}

// IntervalDuration is the length of one bar.
func IntervalDuration(interval string) (time.Duration, error) {
	switch interval {
	case "1m":
		return time.Minute, nil
	case "5m":
		return 5 * time.Minute, nil
	case "15m":
		return 15 * time.Minute, nil
	case "30m":
		return 30 * time.Minute, nil
	case "1h":
		return time.Hour, nil
	case "1d":
		return 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownInterval, interval)
}

// PeriodStart returns the start of a lookback period ending at end.
// Periods look like "7d", "60d", "6mo", "1y", "2y"; "max" returns the zero
// time.
func PeriodStart(end time.Time, period string) (time.Time, error) {
	p := strings.ToLower(strings.TrimSpace(period))
	if p == "max" {
		return time.Time{}, nil
	}

	var unit string
	switch {
	case strings.HasSuffix(p, "mo"):
		unit = "mo"
	case strings.HasSuffix(p, "d"), strings.HasSuffix(p, "y"):
		unit = p[len(p)-1:]
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadPeriod, period)
	}
	n, err := strconv.Atoi(strings.TrimSuffix(p, unit))
	if err != nil || n <= 0 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadPeriod, period)
	}

	switch unit {
	case "d":
		return end.AddDate(0, 0, -n), nil
	case "mo":
		return end.AddDate(0, -n, 0), nil
	default:
		return end.AddDate(-n, 0, 0), nil
	}
}

// ValidateTimeframe checks that interval is supported and that period does
// not exceed how far back that interval is available.
func ValidateTimeframe(period, interval string) error {
	if _, err := IntervalDuration(interval); err != nil {
		return err
	}
	ref := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	start, err := PeriodStart(ref, period)
	if err != nil {
		return err
	}

	limit, ok := maxLookbackDays[interval]
	if !ok {
		return nil
	}
	if start.IsZero() || start.Before(ref.AddDate(0, 0, -limit)) {
		return fmt.Errorf("%w: %s data is limited to %d days, got %q", ErrPeriodTooLong, interval, limit, period)
	}
	return nil
}

// Window keeps the candles of s that fall inside period, counted back from
// the last candle.
func Window(s model.Series, period string) (model.Series, error) {
	last, ok := s.Last()
	if !ok {
		return s, nil
	}
	start, err := PeriodStart(last.TS, period)
	if err != nil {
		return model.Series{}, err
	}
	i := sort.Search(len(s.Candles), func(i int) bool {
		return !s.Candles[i].TS.Before(start)
	})
	return model.NewSeries(s.Symbol, s.Interval, s.Candles[i:], s.HasVolume), nil
}
