package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"trading-screener/internal/marketdata"
	"trading-screener/internal/model"
)

// Reader provides read-only access to stored candles. It
// implements marketdata.Provider.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading and makes sure the
// schema exists.
func NewReader(dbPath string) (*Reader, error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &Reader{db: db}, nil
}

// DB returns the underlying sql.DB for health checks.
func (r *Reader) DB() *sql.DB { return r.db }

// BaseInterval is the finest stored interval. Fetch resamples from it
// when the requested interval has no rows of its own.
const BaseInterval = "1m"

// Fetch loads the stored series for symbol at interval and keeps the
// trailing period.
func (r *Reader) Fetch(ctx context.Context, symbol, period, interval string) (model.Series, error) {
	symbol = strings.ToUpper(symbol)
	series, err := r.load(ctx, symbol, interval)
	if err != nil {
		return model.Series{}, err
	}
	if series.Len() == 0 && interval != BaseInterval {
		base, err := r.load(ctx, symbol, BaseInterval)
		if err != nil {
			return model.Series{}, err
		}
		if base.Len() > 0 {
			if series, err = marketdata.Resample(base, interval); err != nil {
				return model.Series{}, err
			}
		}
	}
	if series.Len() == 0 {
		return model.Series{}, fmt.Errorf("%w: %s %s", marketdata.ErrUnavailable, symbol, interval)
	}
	return marketdata.Window(series, period)
}

func (r *Reader) load(ctx context.Context, symbol, interval string) (model.Series, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND interval = ?
		ORDER BY ts ASC
	`, symbol, interval)
	if err != nil {
		return model.Series{}, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	var candles []model.Candle
	volumeColumn := false
	for rows.Next() {
		var c model.Candle
		var tsUnix int64
		var vol sql.NullFloat64
		if err := rows.Scan(&tsUnix, &c.Open, &c.High, &c.Low, &c.Close, &vol); err != nil {
			return model.Series{}, fmt.Errorf("sqlite scan candles: %w", err)
		}
		c.TS = time.Unix(tsUnix, 0).UTC()
		if vol.Valid {
			c.Volume = vol.Float64
			volumeColumn = true
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return model.Series{}, err
	}
	return model.NewSeries(symbol, interval, candles, volumeColumn), nil
}

// Symbols lists stored symbols for interval.
func (r *Reader) Symbols(ctx context.Context, interval string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT symbol FROM candles WHERE interval = ? ORDER BY symbol`, interval)
	if err != nil {
		return nil, fmt.Errorf("sqlite query symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
