// Package api exposes screening and backtesting over HTTP and streams
// their results over WebSocket.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"trading-screener/internal/backtest"
	"trading-screener/internal/gateway"
	"trading-screener/internal/marketdata"
	"trading-screener/internal/metrics"
	"trading-screener/internal/notification"
	"trading-screener/internal/screener"
	"trading-screener/internal/strategy"
)

// maxBodyBytes bounds request bodies, CSV uploads included.
const maxBodyBytes = 16 << 20

// Server holds the handlers' collaborators. Strategy and Params are the
// server's defaults; requests may override them but never change them.
type Server struct {
	Screener *screener.Screener
	Engine   *backtest.Engine
	Data     marketdata.Provider
	Strategy strategy.Strategy
	Params   backtest.Params
	Stocks   []string

	Hub    *gateway.Hub                // optional
	Alerts *notification.ScreenAlerter // optional
	Health *metrics.HealthStatus       // optional

	Log *slog.Logger
	now func() time.Time
}

// NewRouter sets up HTTP routes for the API server.
func NewRouter(s *Server) *mux.Router {
	if s.Log == nil {
		s.Log = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}

	r := mux.NewRouter()
	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	v1.HandleFunc("/strategy", s.handleStrategy).Methods(http.MethodGet)
	v1.HandleFunc("/screen", s.handleScreen).Methods(http.MethodPost, http.MethodOptions)
	v1.HandleFunc("/screen/export", s.handleExport).Methods(http.MethodPost, http.MethodOptions)
	v1.HandleFunc("/backtest", s.handleBacktest).Methods(http.MethodPost, http.MethodOptions)
	v1.Use(cors)

	if s.Hub != nil {
		v1.HandleFunc("/replay", s.handleReplay).Methods(http.MethodGet)
		r.HandleFunc("/ws", s.Hub.ServeWS)
	}
	return r
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
