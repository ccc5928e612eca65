// Package app assembles the market data stack and alert channels from
// configuration. The commands share it so that the API server and the
// CLI read candles the same way.
package app

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	goredis "github.com/go-redis/redis/v8"

	"trading-screener/config"
	"trading-screener/internal/marketdata"
	"trading-screener/internal/marketdata/angel"
	"trading-screener/internal/metrics"
	"trading-screener/internal/notification"
	"trading-screener/internal/store/redis"
	"trading-screener/internal/store/sqlite"
	"trading-screener/pkg/smartconnect"
)

// Data is an opened market data stack.
type Data struct {
	Provider marketdata.Provider

	// Set only when the matching backend is in use.
	Redis  *goredis.Client
	SQLite *sql.DB

	closers []func() error
}

// Close releases every backend that was opened.
func (d *Data) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	return errors.Join(errs...)
}

// OpenData builds the provider for cfg.DataSource and, when REDIS_ADDR is
// set and reachable, puts the Redis series cache in front of it. An
// unreachable Redis is logged and skipped. m may be nil.
func OpenData(cfg *config.Config, m *metrics.Metrics, log *slog.Logger) (*Data, error) {
	if log == nil {
		log = slog.Default()
	}
	d := &Data{}

	switch cfg.DataSource {
	case config.SourceSQLite:
		r, err := sqlite.NewReader(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		d.Provider = r
		d.SQLite = r.DB()
		d.closers = append(d.closers, r.Close)
	case config.SourceCSV:
		d.Provider = marketdata.NewCSVDir(cfg.CSVDir)
	case config.SourceAngel:
		sc := smartconnect.NewSmartConnect(smartconnect.Config{APIKey: cfg.AngelAPIKey, Log: log})
		d.Provider = angel.New(sc, angel.Config{
			ClientCode: cfg.AngelClientCode,
			Password:   cfg.AngelPassword,
			TOTPSecret: cfg.AngelTOTPSecret,
			Exchange:   cfg.AngelExchange,
		}, log)
	default:
		return nil, fmt.Errorf("%w: unknown data source %q", config.ErrConfig, cfg.DataSource)
	}
	log.Info("market data source", "source", cfg.DataSource)

	if cfg.RedisAddr == "" {
		return d, nil
	}
	rdb, err := redis.New(redis.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}, log)
	if err != nil {
		log.Warn("redis unavailable, series cache disabled", "addr", cfg.RedisAddr, "error", err)
		return d, nil
	}
	d.Redis = rdb
	d.closers = append(d.closers, rdb.Close)

	cache := redis.NewSeriesCache(rdb, cfg.CacheTTL, log)
	cached := marketdata.NewCached(d.Provider, cache, cfg.DataSource, log)
	if m != nil {
		cached.Observer = m
		logChange := cache.Breaker().OnStateChange
		cache.Breaker().OnStateChange = func(from, to redis.State) {
			logChange(from, to)
			m.BreakerChanged(int(to))
		}
	}
	d.Provider = cached
	return d, nil
}

// Notifier returns the configured alert channels. Alerts always reach the
// log; webhook and Telegram are added when configured.
func Notifier(cfg *config.Config, log *slog.Logger) notification.Notifier {
	channels := notification.Multi{notification.NewLogNotifier(log)}
	if cfg.WebhookURL != "" {
		channels = append(channels, notification.NewWebhookNotifier(cfg.WebhookURL, log))
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		channels = append(channels, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID, log))
	}
	return channels
}
