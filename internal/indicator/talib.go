package indicator

import (
	"github.com/markcheno/go-talib"
	"github.com/montanaflynn/stats"

	"trading-screener/internal/model"
)

// Periods configures indicator lookbacks.
type Periods struct {
	RSI        int     `json:"rsi" yaml:"rsi"`
	MACDFast   int     `json:"macd_fast" yaml:"macd_fast"`
	MACDSlow   int     `json:"macd_slow" yaml:"macd_slow"`
	MACDSignal int     `json:"macd_signal" yaml:"macd_signal"`
	BB         int     `json:"bb" yaml:"bb"`
	BBDev      float64 `json:"bb_dev" yaml:"bb_dev"`
	SMAShort   int     `json:"sma_short" yaml:"sma_short"`
	SMALong    int     `json:"sma_long" yaml:"sma_long"`
	EMAFast    int     `json:"ema_fast" yaml:"ema_fast"`
	EMASlow    int     `json:"ema_slow" yaml:"ema_slow"`
	StochFastK int     `json:"stoch_fast_k" yaml:"stoch_fast_k"`
	StochSlowK int     `json:"stoch_slow_k" yaml:"stoch_slow_k"`
	StochSlowD int     `json:"stoch_slow_d" yaml:"stoch_slow_d"`
	ADX        int     `json:"adx" yaml:"adx"`
	CCI        int     `json:"cci" yaml:"cci"`
	WillR      int     `json:"willr" yaml:"willr"`
	MFI        int     `json:"mfi" yaml:"mfi"`
	ATR        int     `json:"atr" yaml:"atr"`
	VolumeAvg  int     `json:"volume_avg" yaml:"volume_avg"`
}

// DefaultPeriods returns the standard TA-Lib lookbacks.
func DefaultPeriods() Periods {
	return Periods{
		RSI:        14,
		MACDFast:   12,
		MACDSlow:   26,
		MACDSignal: 9,
		BB:         20,
		BBDev:      2,
		SMAShort:   20,
		SMALong:    50,
		EMAFast:    12,
		EMASlow:    26,
		StochFastK: 5,
		StochSlowK: 3,
		StochSlowD: 3,
		ADX:        14,
		CCI:        14,
		WillR:      14,
		MFI:        14,
		ATR:        14,
		VolumeAvg:  20,
	}
}

// MinHistory is the shortest history for which every reading is defined.
func (p Periods) MinHistory() int {
	n := p.SMALong
	for _, v := range []int{
		p.MACDSlow + p.MACDSignal,
		2*p.ADX + 1,
		p.BB,
		p.RSI + 1,
		p.VolumeAvg,
	} {
		if v > n {
			n = v
		}
	}
	return n
}

// TALib computes snapshots with go-talib. It is stateless and safe for
// concurrent use.
type TALib struct {
	periods Periods
}

// NewTALib creates a calculator with the given lookbacks.
func NewTALib(p Periods) *TALib {
	return &TALib{periods: p}
}

// Periods returns the configured lookbacks.
func (t *TALib) Periods() Periods { return t.periods }

// Compute evaluates every indicator on the full history and returns the
// readings for its last bar. The caller controls lookahead by slicing.
func (t *TALib) Compute(history []model.Candle, hasVolume bool) (Snapshot, error) {
	p := t.periods
	if len(history) < p.MinHistory() {
		return Snapshot{}, ErrInsufficientHistory
	}

	high, low, closes, volume := model.Columns(history)

	snap := Snapshot{Close: last(closes)}
	snap.RSI = last(talib.Rsi(closes, p.RSI))

	macd, signal, hist := talib.Macd(closes, p.MACDFast, p.MACDSlow, p.MACDSignal)
	snap.MACD, snap.MACDSignal, snap.MACDHist = last(macd), last(signal), last(hist)

	upper, middle, lower := talib.BBands(closes, p.BB, p.BBDev, p.BBDev, talib.SMA)
	snap.BBUpper, snap.BBMiddle, snap.BBLower = last(upper), last(middle), last(lower)

	snap.SMA20 = last(talib.Sma(closes, p.SMAShort))
	snap.SMA50 = last(talib.Sma(closes, p.SMALong))
	snap.EMA12 = last(talib.Ema(closes, p.EMAFast))
	snap.EMA26 = last(talib.Ema(closes, p.EMASlow))

	k, d := talib.Stoch(high, low, closes, p.StochFastK, p.StochSlowK, talib.SMA, p.StochSlowD, talib.SMA)
	snap.StochK, snap.StochD = last(k), last(d)

	snap.ADX = last(talib.Adx(high, low, closes, p.ADX))
	snap.CCI = last(talib.Cci(high, low, closes, p.CCI))
	snap.WillR = last(talib.WillR(high, low, closes, p.WillR))
	snap.ATR = last(talib.Atr(high, low, closes, p.ATR))

	if err := snap.validate(); err != nil {
		return Snapshot{}, err
	}

	if hasVolume {
		t.volumeReadings(&snap, high, low, closes, volume)
	}
	return snap, nil
}

// volumeReadings fills MFI and the volume ratio. A reading that cannot be
// computed is left unavailable rather than failing the snapshot.
func (t *TALib) volumeReadings(snap *Snapshot, high, low, closes, volume []float64) {
	p := t.periods

	window := volume
	if len(window) > p.VolumeAvg {
		window = window[len(window)-p.VolumeAvg:]
	}
	avg, err := stats.Mean(window)
	cur := last(volume)
	if err == nil && avg > 0 && finite(avg, cur) {
		snap.AvgVolume = avg
		snap.CurrentVolume = cur
		snap.VolumeRatio = cur / avg
		snap.HasVolumeRatio = true
	}

	mfi := last(talib.Mfi(high, low, closes, volume, p.MFI))
	if finite(mfi) {
		snap.MFI = mfi
		snap.HasMFI = true
	}
}

func last(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return v[len(v)-1]
}
