package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"trading-screener/config"
	"trading-screener/internal/api"
	"trading-screener/internal/app"
	"trading-screener/internal/backtest"
	"trading-screener/internal/gateway"
	"trading-screener/internal/indicator"
	"trading-screener/internal/logger"
	"trading-screener/internal/markethours"
	"trading-screener/internal/metrics"
	"trading-screener/internal/notification"
	"trading-screener/internal/screener"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	log := logger.Init("api_gateway", logger.ParseLevel(cfg.LogLevel))
	log.Info("starting", "market", markethours.Status(time.Now()))

	sf, err := config.LoadStrategyFile(cfg.StrategyFile)
	if err != nil {
		log.Error("strategy file", "path", cfg.StrategyFile, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	data, err := app.OpenData(cfg, m, log)
	if err != nil {
		log.Error("market data", "source", cfg.DataSource, "error", err)
		os.Exit(1)
	}
	defer data.Close()

	health := metrics.NewHealthStatus(data.Redis != nil, data.SQLite != nil)
	health.StartLivenessChecker(ctx, data.Redis, data.SQLite, 15*time.Second)

	talib := indicator.NewTALib(indicator.DefaultPeriods())

	engine := backtest.NewEngine(talib, log)
	engine.Observer = m

	scr := screener.New(data.Provider, talib, cfg.ScreenWorkers, log)
	scr.Observer = m
	scr.TieBreak = sf.ScreenTieBreak

	hub := gateway.NewHub(data.Redis, log)
	hub.OnClientCount = m.SetWSClients
	go hub.Run(ctx)

	router := api.NewRouter(&api.Server{
		Screener: scr,
		Engine:   engine,
		Data:     data.Provider,
		Strategy: sf.Strategy,
		Params:   sf.Params,
		Stocks:   cfg.Stocks(),
		Hub:      hub,
		Alerts:   &notification.ScreenAlerter{Notifier: app.Notifier(cfg, log), Log: log},
		Health:   health,
		Log:      log,
	})

	metricsSrv := metrics.NewServer(cfg.MetricsAddr, reg, health, log)
	metricsSrv.Start()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("serving", "addr", cfg.HTTPAddr, "stocks", len(cfg.Stocks()), "strategy", sf.Strategy.Name, "indicators", sf.Strategy.Indicators.Active())
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			sigCh <- syscall.SIGTERM
		}
	}()

	<-sigCh
	log.Info("shutting down")
	cancel()

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	if err := metricsSrv.Stop(shutdownCtx); err != nil {
		log.Warn("metrics shutdown", "error", err)
	}
}
