package marketdata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"trading-screener/internal/model"
)

var (
	// ErrMissingColumns is returned when a CSV lacks a required column.
	ErrMissingColumns = errors.New("marketdata: csv missing required columns")

	// ErrNoRows is returned when no CSV row survives parsing.
	ErrNoRows = errors.New("marketdata: csv has no valid rows")
)

// RequiredColumns must be present in every candle CSV. Volume is optional.
var RequiredColumns = []string{"Date", "Open", "High", "Low", "Close"}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02-01-2006",
	"01/02/2006",
	"2006/01/02",
}

// LoadCSV parses a candle CSV. Header names are matched case-insensitively.
// Rows with an unparsable date or price are dropped. Without a Volume
// column every candle gets zero volume and the series has no volume.
func LoadCSV(r io.Reader, symbol, interval string) (model.Series, error) {
	rows, err := gocsv.CSVToMaps(r)
	if err != nil {
		return model.Series{}, fmt.Errorf("parse csv: %w", err)
	}
	if len(rows) == 0 {
		return model.Series{}, ErrNoRows
	}

	// normalized name → header as written
	cols := make(map[string]string, len(rows[0]))
	for h := range rows[0] {
		cols[normalizeHeader(h)] = h
	}
	var missing []string
	for _, c := range RequiredColumns {
		if _, ok := cols[strings.ToLower(c)]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return model.Series{}, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	volumeKey, hasVolume := cols["volume"]

	candles := make([]model.Candle, 0, len(rows))
	for _, row := range rows {
		c, ok := parseRow(row, cols, volumeKey, hasVolume)
		if ok {
			candles = append(candles, c)
		}
	}
	if len(candles) == 0 {
		return model.Series{}, ErrNoRows
	}
	return model.NewSeries(symbol, interval, candles, hasVolume), nil
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
}

func parseRow(row map[string]string, cols map[string]string, volumeKey string, hasVolume bool) (model.Candle, bool) {
	ts, ok := parseDate(row[cols["date"]])
	if !ok {
		return model.Candle{}, false
	}
	c := model.Candle{TS: ts}
	for _, f := range []struct {
		key string
		dst *float64
	}{
		{"open", &c.Open},
		{"high", &c.High},
		{"low", &c.Low},
		{"close", &c.Close},
	} {
		v, ok := parseNumber(row[cols[f.key]])
		if !ok {
			return model.Candle{}, false
		}
		*f.dst = v
	}
	if hasVolume {
		v, ok := parseNumber(row[volumeKey])
		if !ok {
			return model.Candle{}, false
		}
		c.Volume = v
	}
	return c, true
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func parseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(s, ",", "")), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// CSVDir serves SYMBOL.csv files from a directory.
type CSVDir struct {
	Dir string
}

// NewCSVDir creates a provider over dir.
func NewCSVDir(dir string) *CSVDir {
	return &CSVDir{Dir: dir}
}

// Fetch loads dir/SYMBOL.csv and keeps the trailing period.
func (d *CSVDir) Fetch(ctx context.Context, symbol, period, interval string) (model.Series, error) {
	if err := ctx.Err(); err != nil {
		return model.Series{}, err
	}
	f, err := os.Open(filepath.Join(d.Dir, strings.ToUpper(symbol)+".csv"))
	if errors.Is(err, os.ErrNotExist) {
		return model.Series{}, fmt.Errorf("%w: %s", ErrUnavailable, symbol)
	}
	if err != nil {
		return model.Series{}, err
	}
	defer f.Close()

	s, err := LoadCSV(f, strings.ToUpper(symbol), interval)
	if err != nil {
		return model.Series{}, fmt.Errorf("%s: %w", symbol, err)
	}
	return Window(s, period)
}
