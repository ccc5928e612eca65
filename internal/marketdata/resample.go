package marketdata

import (
	"fmt"
	"time"

	"trading-screener/internal/markethours"
	"trading-screener/internal/model"
)

// Resample folds a finer series into interval bars. Buckets are anchored
// at the 09:15 IST session open, so hourly bars run 09:15, 10:15, ...
// and a daily bar covers one calendar session. The last bucket may be
// partial.
func Resample(s model.Series, interval string) (model.Series, error) {
	target, err := IntervalDuration(interval)
	if err != nil {
		return model.Series{}, err
	}
	src, err := IntervalDuration(s.Interval)
	if err != nil {
		return model.Series{}, err
	}
	if target < src || target%src != 0 {
		return model.Series{}, fmt.Errorf("marketdata: cannot resample %s to %s", s.Interval, interval)
	}
	if target == src {
		return s, nil
	}

	var out []model.Candle
	var bucket time.Time
	for _, c := range s.Candles {
		b := bucketStart(c.TS, target)
		if len(out) == 0 || !b.Equal(bucket) {
			bucket = b
			nc := c
			nc.TS = b
			out = append(out, nc)
			continue
		}
		cur := &out[len(out)-1]
		cur.High = max(cur.High, c.High)
		cur.Low = min(cur.Low, c.Low)
		cur.Close = c.Close
		cur.Volume += c.Volume
	}

	return model.Series{
		Symbol:    s.Symbol,
		Interval:  interval,
		Candles:   out,
		HasVolume: s.HasVolume,
	}, nil
}

func bucketStart(ts time.Time, d time.Duration) time.Time {
	ist := ts.In(markethours.IST)
	open := time.Date(ist.Year(), ist.Month(), ist.Day(),
		markethours.OpenHour, markethours.OpenMinute, 0, 0, markethours.IST)
	if d >= 24*time.Hour {
		return open.UTC()
	}
	off := ts.Sub(open)
	n := off / d
	if off < 0 && off%d != 0 {
		n--
	}
	return open.Add(n * d).UTC()
}
