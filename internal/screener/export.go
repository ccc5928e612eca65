package screener

import (
	"strconv"

	"github.com/gocarina/gocsv"
)

// exportRow is the CSV shape of a Result.
type exportRow struct {
	Stock          string  `csv:"Stock"`
	Signal         string  `csv:"Signal"`
	Confidence     float64 `csv:"Confidence"`
	Price          float64 `csv:"Price"`
	BuyPct         float64 `csv:"Buy %"`
	SellPct        float64 `csv:"Sell %"`
	BuySignals     int     `csv:"Buy Signals"`
	SellSignals    int     `csv:"Sell Signals"`
	NeutralSignals int     `csv:"Neutral Signals"`
	RiskScore      float64 `csv:"Risk Score"`
	RSI            float64 `csv:"RSI"`
	MACD           float64 `csv:"MACD"`
	ADX            float64 `csv:"ADX"`
	CCI            float64 `csv:"CCI"`
	WillR          float64 `csv:"Williams %R"`
	MFI            string  `csv:"MFI"`
	VolumeRatio    string  `csv:"Volume Ratio"`
}

// ExportCSV renders results as CSV with a header row. Unavailable volume
// readings are written as "N/A".
func ExportCSV(results []Result) ([]byte, error) {
	rows := make([]*exportRow, 0, len(results))
	for _, r := range results {
		rows = append(rows, &exportRow{
			Stock:          r.Symbol,
			Signal:         string(r.Signal),
			Confidence:     r.Confidence,
			Price:          r.Price,
			BuyPct:         r.BuyPct,
			SellPct:        r.SellPct,
			BuySignals:     r.BuySignals,
			SellSignals:    r.SellSignals,
			NeutralSignals: r.NeutralSignals,
			RiskScore:      r.RiskScore,
			RSI:            r.RSI,
			MACD:           r.MACD,
			ADX:            r.ADX,
			CCI:            r.CCI,
			WillR:          r.WillR,
			MFI:            optional(r.MFI),
			VolumeRatio:    optional(r.VolumeRatio),
		})
	}
	return gocsv.MarshalBytes(&rows)
}

func optional(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
