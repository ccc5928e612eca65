// Package config loads process configuration from the environment (after an
// optional .env file) and the strategy file from YAML.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Data sources.
const (
	SourceSQLite = "sqlite"
	SourceCSV    = "csv"
	SourceAngel  = "angel"
)

// DefaultStocks is the screening universe when none is configured.
var DefaultStocks = []string{
	"RELIANCE", "TCS", "INFY", "HDFCBANK", "ICICIBANK",
	"BAJFINANCE", "WIPRO", "SUNPHARMA", "MARUTI",
	"BHARTIARTL", "KOTAKBANK", "LT", "AXISBANK", "ITC",
}

// ErrConfig wraps every configuration error.
var ErrConfig = errors.New("config")

// Config holds all application configuration loaded from environment variables.
type Config struct {
	HTTPAddr    string
	MetricsAddr string
	LogLevel    string

	// Market data
	DataSource string
	SQLitePath string
	CSVDir     string

	// Series cache; empty RedisAddr disables it
	RedisAddr     string
	RedisPassword string
	CacheTTL      time.Duration

	StrategyFile  string
	ScreenWorkers int
	DefaultStocks string

	// Alerts
	WebhookURL       string
	TelegramBotToken string
	TelegramChatID   string

	// Angel One credentials, required when DataSource is angel
	AngelAPIKey     string
	AngelClientCode string
	AngelPassword   string
	AngelTOTPSecret string
	AngelExchange   string
}

// Load reads .env (if present) and then the environment. Variables already
// set in the environment win over .env.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: load .env: %v", ErrConfig, err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		DataSource: strings.ToLower(getEnv("DATA_SOURCE", SourceSQLite)),
		SQLitePath: getEnv("SQLITE_PATH", "data/candles.db"),
		CSVDir:     getEnv("CSV_DIR", "data/csv"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		StrategyFile:  getEnv("STRATEGY_FILE", ""),
		DefaultStocks: getEnv("DEFAULT_STOCKS", ""),

		WebhookURL:       getEnv("WEBHOOK_URL", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),

		AngelAPIKey:     getEnv("ANGEL_API_KEY", ""),
		AngelClientCode: getEnv("ANGEL_CLIENT_CODE", ""),
		AngelPassword:   getEnv("ANGEL_PASSWORD", ""),
		AngelTOTPSecret: getEnv("ANGEL_TOTP_SECRET", ""),
		AngelExchange:   getEnv("ANGEL_EXCHANGE", "NSE"),
	}

	ttl, err := getInt("CACHE_TTL_SEC", 900)
	if err != nil {
		return nil, err
	}
	cfg.CacheTTL = time.Duration(ttl) * time.Second

	if cfg.ScreenWorkers, err = getInt("SCREEN_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.ScreenWorkers < 1 {
		return nil, fmt.Errorf("%w: SCREEN_WORKERS must be at least 1", ErrConfig)
	}

	switch cfg.DataSource {
	case SourceSQLite, SourceCSV:
	case SourceAngel:
		for _, key := range []string{"ANGEL_API_KEY", "ANGEL_CLIENT_CODE", "ANGEL_PASSWORD", "ANGEL_TOTP_SECRET"} {
			if os.Getenv(key) == "" {
				return nil, fmt.Errorf("%w: required env var %s not set", ErrConfig, key)
			}
		}
	default:
		return nil, fmt.Errorf("%w: unknown DATA_SOURCE %q", ErrConfig, cfg.DataSource)
	}
	return cfg, nil
}

// Stocks returns the configured screening universe, upper-cased.
func (c *Config) Stocks() []string {
	if strings.TrimSpace(c.DefaultStocks) == "" {
		return append([]string(nil), DefaultStocks...)
	}
	return SplitSymbols(c.DefaultStocks)
}

// SplitSymbols parses a comma-separated symbol list.
func SplitSymbols(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer, got %q", ErrConfig, key, v)
	}
	return n, nil
}
