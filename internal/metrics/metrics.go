package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics of the screener. It implements
// backtest.Observer, screener.Observer and marketdata.CacheObserver.
type Metrics struct {
	BacktestsTotal   *prometheus.CounterVec // labels: status=ok|error
	BacktestDuration prometheus.Histogram
	BarsEvaluated    prometheus.Counter
	BarsSkipped      prometheus.Counter
	TradesTotal      *prometheus.CounterVec // labels: side, reason

	SignalsTotal   *prometheus.CounterVec // labels: signal
	ScreenDuration prometheus.Histogram

	FetchErrors   *prometheus.CounterVec // labels: source
	CacheRequests *prometheus.CounterVec // labels: result=hit|miss|error

	WSClients prometheus.Gauge

	// Redis circuit breaker
	RedisBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisBreakerTrips prometheus.Counter
}

// NewMetrics creates every metric and registers it on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BacktestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screener_backtests_total",
			Help: "Backtest runs by outcome",
		}, []string{"status"}),
		BacktestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "screener_backtest_duration_seconds",
			Help:    "Wall time of one backtest run",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		BarsEvaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "screener_bars_evaluated_total",
			Help: "Bars evaluated by the backtester",
		}),
		BarsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "screener_bars_skipped_total",
			Help: "Bars skipped because the indicator snapshot failed",
		}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screener_trades_total",
			Help: "Simulated trades closed, by side and exit reason",
		}, []string{"side", "reason"}),

		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screener_signals_total",
			Help: "Screening results by signal",
		}, []string{"signal"}),
		ScreenDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "screener_screen_duration_seconds",
			Help:    "Wall time of one multi-symbol screen",
			Buckets: prometheus.DefBuckets,
		}),

		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screener_fetch_errors_total",
			Help: "Market data fetch failures by source",
		}, []string{"source"}),
		CacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screener_cache_requests_total",
			Help: "Series cache lookups by result",
		}, []string{"result"}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "screener_ws_clients",
			Help: "Connected WebSocket clients",
		}),

		RedisBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "screener_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "screener_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
	}

	reg.MustRegister(
		m.BacktestsTotal,
		m.BacktestDuration,
		m.BarsEvaluated,
		m.BarsSkipped,
		m.TradesTotal,
		m.SignalsTotal,
		m.ScreenDuration,
		m.FetchErrors,
		m.CacheRequests,
		m.WSClients,
		m.RedisBreakerState,
		m.RedisBreakerTrips,
	)
	return m
}

func (m *Metrics) BarEvaluated() { m.BarsEvaluated.Inc() }
func (m *Metrics) BarSkipped()   { m.BarsSkipped.Inc() }

func (m *Metrics) TradeClosed(side, reason string) {
	m.TradesTotal.WithLabelValues(side, reason).Inc()
}

func (m *Metrics) RunFinished(elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.BacktestsTotal.WithLabelValues(status).Inc()
	m.BacktestDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) SignalEmitted(signal string) {
	m.SignalsTotal.WithLabelValues(signal).Inc()
}

func (m *Metrics) ScreenFinished(elapsed time.Duration) {
	m.ScreenDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) CacheResult(result string) { m.CacheRequests.WithLabelValues(result).Inc() }
func (m *Metrics) FetchError(source string)  { m.FetchErrors.WithLabelValues(source).Inc() }

// SetWSClients records the connected client count.
func (m *Metrics) SetWSClients(n int) { m.WSClients.Set(float64(n)) }

// BreakerChanged records a circuit breaker transition. States follow the
// gauge encoding; a move to open counts as a trip.
func (m *Metrics) BreakerChanged(to int) {
	m.RedisBreakerState.Set(float64(to))
	if to == 1 {
		m.RedisBreakerTrips.Inc()
	}
}
