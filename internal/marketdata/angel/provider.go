// Package angel fetches historical candles from Angel One SmartAPI.
package angel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"

	"trading-screener/internal/marketdata"
	"trading-screener/internal/markethours"
	"trading-screener/internal/model"
	"trading-screener/pkg/smartconnect"
)

// intervals maps bar intervals to SmartAPI interval names.
var intervals = map[string]string{
	"1m":  "ONE_MINUTE",
	"5m":  "FIVE_MINUTE",
	"15m": "FIFTEEN_MINUTE",
	"30m": "THIRTY_MINUTE",
	"1h":  "ONE_HOUR",
	"1d":  "ONE_DAY",
}

// Client is the subset of smartconnect used here.
type Client interface {
	HasSession() bool
	GenerateSession(ctx context.Context, clientCode, password, totp string) error
	SearchScrip(ctx context.Context, exchange, symbol string) (smartconnect.Scrip, error)
	GetCandleData(ctx context.Context, r smartconnect.CandleRequest) ([]smartconnect.CandleRow, error)
}

// Config holds broker credentials.
type Config struct {
	ClientCode string
	Password   string
	TOTPSecret string
	Exchange   string // default NSE
}

// Provider implements marketdata.Provider. It logs in lazily and caches
// symbol tokens.
type Provider struct {
	client Client
	cfg    Config
	log    *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	tokens map[string]string
}

// New creates a provider over client.
func New(client Client, cfg Config, log *slog.Logger) *Provider {
	if cfg.Exchange == "" {
		cfg.Exchange = "NSE"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Provider{
		client: client,
		cfg:    cfg,
		log:    log.With("component", "angel"),
		now:    time.Now,
		tokens: make(map[string]string),
	}
}

func (p *Provider) Fetch(ctx context.Context, symbol, period, interval string) (model.Series, error) {
	apiInterval, ok := intervals[interval]
	if !ok {
		return model.Series{}, fmt.Errorf("%w: %q", marketdata.ErrUnknownInterval, interval)
	}
	if err := marketdata.ValidateTimeframe(period, interval); err != nil {
		return model.Series{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureSession(ctx); err != nil {
		return model.Series{}, err
	}
	token, err := p.token(ctx, symbol)
	if err != nil {
		return model.Series{}, err
	}

	now := p.now()
	from, err := marketdata.PeriodStart(now, period)
	if err != nil {
		return model.Series{}, err
	}
	rows, err := p.client.GetCandleData(ctx, smartconnect.CandleRequest{
		Exchange:    p.cfg.Exchange,
		SymbolToken: token,
		Interval:    apiInterval,
		From:        from.In(markethours.IST),
		To:          now.In(markethours.IST),
	})
	if err != nil {
		return model.Series{}, fmt.Errorf("candles %s: %w", symbol, err)
	}

	barLen, _ := marketdata.IntervalDuration(interval)
	candles := make([]model.Candle, 0, len(rows))
	for _, r := range rows {
		if !closedBy(r.TS, barLen, interval, now) {
			continue
		}
		candles = append(candles, model.Candle{
			TS:     r.TS.UTC(),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		})
	}
	if len(candles) == 0 {
		return model.Series{}, fmt.Errorf("%w: %s", marketdata.ErrUnavailable, symbol)
	}

	p.log.Debug("candles fetched", "symbol", symbol, "interval", interval, "count", len(candles))
	return model.NewSeries(strings.ToUpper(symbol), interval, candles, true), nil
}

func (p *Provider) ensureSession(ctx context.Context) error {
	if p.client.HasSession() {
		return nil
	}
	code, err := totp.GenerateCode(p.cfg.TOTPSecret, p.now())
	if err != nil {
		return fmt.Errorf("totp: %w", err)
	}
	return p.client.GenerateSession(ctx, p.cfg.ClientCode, p.cfg.Password, code)
}

func (p *Provider) token(ctx context.Context, symbol string) (string, error) {
	key := strings.ToUpper(symbol)
	if t, ok := p.tokens[key]; ok {
		return t, nil
	}
	scrip, err := p.client.SearchScrip(ctx, p.cfg.Exchange, key)
	if errors.Is(err, smartconnect.ErrNotFound) {
		return "", fmt.Errorf("%w: %v", marketdata.ErrUnavailable, err)
	}
	if err != nil {
		return "", err
	}
	p.tokens[key] = scrip.SymbolToken
	return scrip.SymbolToken, nil
}

// closedBy reports whether the bar opened at ts has finished by now. A
// daily bar finishes at that day's session close.
func closedBy(ts time.Time, barLen time.Duration, interval string, now time.Time) bool {
	end := ts.Add(barLen)
	if interval == "1d" {
		end = markethours.TodayClose(ts)
	}
	return !end.After(now)
}
