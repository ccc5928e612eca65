// cmd/screener screens a symbol list from the terminal and loads CSV
// history into the SQLite candle store.
//
// Usage:
//
//	go run ./cmd/screener screen --timeframe=1d --symbols=TCS,INFY --export=picks.csv
//	go run ./cmd/screener import --db=data/candles.db --interval=1d data/csv/*.csv
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"trading-screener/config"
	"trading-screener/internal/app"
	"trading-screener/internal/indicator"
	"trading-screener/internal/logger"
	"trading-screener/internal/marketdata"
	"trading-screener/internal/notification"
	"trading-screener/internal/report"
	"trading-screener/internal/screener"
	"trading-screener/internal/strategy"
	sqlitestore "trading-screener/internal/store/sqlite"
)

var rootCmd = &cobra.Command{
	Use:           "screener",
	Short:         "Technical signal screener for NSE equities",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var screenCmd = &cobra.Command{
	Use:   "screen",
	Short: "Screen symbols and print ranked signals",
	RunE:  runScreen,
}

var importCmd = &cobra.Command{
	Use:   "import FILE...",
	Short: "Load CSV files into the SQLite candle store; the file name is the symbol",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runImport,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level")

	screenCmd.Flags().String("symbols", "", "Comma-separated symbols (default: DEFAULT_STOCKS)")
	screenCmd.Flags().String("timeframe", "1d", "Bar interval")
	screenCmd.Flags().String("strategy", "", "Strategy YAML (default: STRATEGY_FILE or all indicators)")
	screenCmd.Flags().String("export", "", "Also write the results to this CSV file")
	screenCmd.Flags().Bool("alert", false, "Send a summary to the configured alert channels")
	screenCmd.Flags().String("tie-break", "", "inclusive or strict (default: screen_tie_break of the strategy file)")

	importCmd.Flags().String("db", "data/candles.db", "SQLite candle store")
	importCmd.Flags().String("interval", "1d", "Bar interval of the files")

	rootCmd.AddCommand(screenCmd, importCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "screener:", err)
		os.Exit(1)
	}
}

func runScreen(cmd *cobra.Command, args []string) error {
	level, _ := cmd.Flags().GetString("log-level")
	symbolsFlag, _ := cmd.Flags().GetString("symbols")
	timeframe, _ := cmd.Flags().GetString("timeframe")
	strategyPath, _ := cmd.Flags().GetString("strategy")
	exportPath, _ := cmd.Flags().GetString("export")
	alert, _ := cmd.Flags().GetBool("alert")
	tieBreak, _ := cmd.Flags().GetString("tie-break")

	if _, err := marketdata.IntervalDuration(timeframe); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.Init("screener", logger.ParseLevel(level))

	if strategyPath == "" {
		strategyPath = cfg.StrategyFile
	}
	sf, err := config.LoadStrategyFile(strategyPath)
	if err != nil {
		return err
	}

	data, err := app.OpenData(cfg, nil, log)
	if err != nil {
		return err
	}
	defer data.Close()

	symbols := cfg.Stocks()
	if symbolsFlag != "" {
		symbols = config.SplitSymbols(symbolsFlag)
	}

	s := screener.New(data.Provider, indicator.NewTALib(indicator.DefaultPeriods()), cfg.ScreenWorkers, log)
	s.TieBreak = sf.ScreenTieBreak
	if tieBreak != "" {
		s.TieBreak = strategy.TieBreak(tieBreak)
	}
	results, err := s.Screen(cmd.Context(), symbols, sf.Strategy, timeframe)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s on %s: %d of %d symbols screened\n", sf.Strategy.Name, timeframe, len(results), len(symbols))
	report.Screen(out, results)

	if exportPath != "" && len(results) > 0 {
		b, err := screener.ExportCSV(results)
		if err != nil {
			return err
		}
		if err := os.WriteFile(exportPath, b, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(out, "exported %d rows to %s\n", len(results), exportPath)
	}

	if alert {
		alerter := &notification.ScreenAlerter{Notifier: app.Notifier(cfg, log), Log: log}
		alerter.Notify(cmd.Context(), timeframe, results)
	}
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	dbPath, _ := cmd.Flags().GetString("db")
	interval, _ := cmd.Flags().GetString("interval")

	if _, err := marketdata.IntervalDuration(interval); err != nil {
		return err
	}

	w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: dbPath})
	if err != nil {
		return err
	}
	defer w.Close()

	out := cmd.OutOrStdout()
	for _, path := range args {
		symbol := strings.ToUpper(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
		n, err := importFile(cmd.Context(), w, path, symbol, interval)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Fprintf(out, "%-12s %6d candles\n", symbol, n)
	}
	return nil
}

func importFile(ctx context.Context, w *sqlitestore.Writer, path, symbol, interval string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	series, err := marketdata.LoadCSV(f, symbol, interval)
	if err != nil {
		return 0, err
	}
	return w.WriteSeries(ctx, series)
}
