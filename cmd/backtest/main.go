// cmd/backtest runs one backtest from a CSV file or the SQLite candle store
// and prints the summary.
//
// Usage:
//
//	go run ./cmd/backtest --csv=data/RELIANCE.csv --symbol=RELIANCE
//	go run ./cmd/backtest --db=data/candles.db --symbol=TCS --interval=1h --period=60d --trades
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"trading-screener/config"
	"trading-screener/internal/backtest"
	"trading-screener/internal/indicator"
	"trading-screener/internal/logger"
	"trading-screener/internal/marketdata"
	"trading-screener/internal/model"
	"trading-screener/internal/report"
	sqlitestore "trading-screener/internal/store/sqlite"
)

func main() {
	csvPath := flag.String("csv", "", "CSV file with Date,Open,High,Low,Close[,Volume]")
	dbPath := flag.String("db", "data/candles.db", "SQLite candle store, used when --csv is empty")
	symbol := flag.String("symbol", "RELIANCE", "Symbol to test")
	period := flag.String("period", "6mo", "Lookback period")
	interval := flag.String("interval", "1d", "Bar interval")
	strategyFile := flag.String("strategy", "", "Strategy YAML (default: all indicators)")
	capital := flag.Float64("capital", 0, "Initial capital override")
	showTrades := flag.Bool("trades", false, "Print every closed trade")
	asJSON := flag.Bool("json", false, "Print the result as JSON")
	level := flag.String("log-level", "warn", "Log level")
	flag.Parse()

	log := logger.Init("backtest", logger.ParseLevel(*level))

	sf, err := config.LoadStrategyFile(*strategyFile)
	if err != nil {
		fatal(log, "strategy file", err)
	}
	params := sf.Params
	params.Interval = *interval
	if *capital > 0 {
		params.InitialCapital = *capital
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	series, err := loadSeries(ctx, *csvPath, *dbPath, strings.ToUpper(*symbol), *period, *interval)
	if err != nil {
		fatal(log, "load candles", err)
	}

	engine := backtest.NewEngine(indicator.NewTALib(indicator.DefaultPeriods()), log)
	res, err := engine.Run(ctx, series, sf.Strategy.Indicators, params)
	if err != nil {
		fatal(log, "backtest", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			fatal(log, "encode", err)
		}
		return
	}

	fmt.Printf("%s: %s\n", sf.Strategy.Name, strings.Join(sf.Strategy.Indicators.Active(), ", "))
	report.Summary(os.Stdout, res)
	if *showTrades && len(res.Trades) > 0 {
		report.Trades(os.Stdout, res.Trades)
	}
}

func loadSeries(ctx context.Context, csvPath, dbPath, symbol, period, interval string) (model.Series, error) {
	if csvPath != "" {
		f, err := os.Open(csvPath)
		if err != nil {
			return model.Series{}, err
		}
		defer f.Close()
		return marketdata.LoadCSV(f, symbol, interval)
	}

	reader, err := sqlitestore.NewReader(dbPath)
	if err != nil {
		return model.Series{}, err
	}
	defer reader.Close()
	return reader.Fetch(ctx, symbol, period, interval)
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "error", err)
	fmt.Fprintf(os.Stderr, "backtest: %s: %v\n", msg, err)
	os.Exit(1)
}
