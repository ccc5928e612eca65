package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"trading-screener/internal/backtest"
	"trading-screener/internal/marketdata"
	"trading-screener/internal/strategy"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func setResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func setErrorResponse(w http.ResponseWriter, status int, err error) {
	setResponse(w, status, errorResponse{Success: false, Error: err.Error()})
}

// clientErrors are reported as 400; anything else is a 500.
var clientErrors = []error{
	backtest.ErrInsufficientHistory,
	backtest.ErrInvalidParams,
	strategy.ErrUnknownIndicator,
	strategy.ErrInvalidTieBreak,
	marketdata.ErrUnavailable,
	marketdata.ErrUnknownInterval,
	marketdata.ErrBadPeriod,
	marketdata.ErrPeriodTooLong,
	marketdata.ErrMissingColumns,
	marketdata.ErrNoRows,
}

func statusFor(err error) int {
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}
