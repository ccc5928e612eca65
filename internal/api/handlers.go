package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"trading-screener/internal/backtest"
	"trading-screener/internal/gateway"
	"trading-screener/internal/logger"
	"trading-screener/internal/marketdata"
	"trading-screener/internal/markethours"
	"trading-screener/internal/model"
	"trading-screener/internal/screener"
	"trading-screener/internal/strategy"
)

var errBadRequest = errors.New("bad request")

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	body := map[string]any{
		"status":        "ok",
		"market_open":   markethours.IsMarketOpen(now),
		"market_status": markethours.Status(now),
	}
	code := http.StatusOK
	if s.Health != nil {
		report, c := s.Health.Report()
		body["status"] = report.Status
		body["dependencies"] = report
		code = c
	}
	setResponse(w, code, body)
}

func (s *Server) handleStrategy(w http.ResponseWriter, r *http.Request) {
	setResponse(w, http.StatusOK, map[string]any{
		"success":          true,
		"strategy":         s.Strategy.Describe(),
		"params":           s.Params,
		"screen_tie_break": s.Screener.TieBreak,
	})
}

type screenRequest struct {
	Stocks     []string           `json:"stocks"`
	Indicators strategy.Selection `json:"indicators"`
	Timeframe  string             `json:"timeframe"`
	TieBreak   strategy.TieBreak  `json:"tie_break"`
}

type screenResponse struct {
	Success        bool               `json:"success"`
	Results        []screener.Result  `json:"results"`
	Timestamp      string             `json:"timestamp"`
	IndicatorsUsed strategy.Selection `json:"indicators_used"`
	Timeframe      string             `json:"timeframe"`
	TieBreak       strategy.TieBreak  `json:"tie_break"`
}

func (s *Server) handleScreen(w http.ResponseWriter, r *http.Request) {
	var req screenRequest
	if err := decode(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		setErrorResponse(w, http.StatusBadRequest, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	stocks := req.Stocks
	if len(stocks) == 0 {
		stocks = s.Stocks
	}
	timeframe := req.Timeframe
	if timeframe == "" {
		timeframe = "1d"
	}
	if _, err := marketdata.IntervalDuration(timeframe); err != nil {
		setErrorResponse(w, http.StatusBadRequest, err)
		return
	}
	st := s.Strategy
	if len(req.Indicators) > 0 {
		st = strategy.Strategy{Name: "request", Indicators: req.Indicators}
	}

	sc := s.Screener
	if req.TieBreak != "" {
		if !req.TieBreak.Valid() {
			setErrorResponse(w, http.StatusBadRequest, fmt.Errorf("%w %q", strategy.ErrInvalidTieBreak, req.TieBreak))
			return
		}
		override := *s.Screener
		override.TieBreak = req.TieBreak
		sc = &override
	}

	ctx := logger.WithRunID(r.Context(), logger.NewRunID())
	results, err := sc.Screen(ctx, stocks, st, timeframe)
	if err != nil {
		setErrorResponse(w, statusFor(err), err)
		return
	}

	if s.Hub != nil {
		if err := s.Hub.Publish(ctx, gateway.ChannelScreen+":"+timeframe, results); err != nil {
			s.Log.Warn("publish screen failed", "error", err)
		}
	}
	if s.Alerts != nil {
		s.Alerts.Notify(ctx, timeframe, results)
	}

	setResponse(w, http.StatusOK, screenResponse{
		Success:        true,
		Results:        results,
		Timestamp:      s.now().Format("2006-01-02 15:04:05"),
		IndicatorsUsed: st.Indicators,
		Timeframe:      timeframe,
		TieBreak:       sc.TieBreak,
	})
}

type exportRequest struct {
	Results []screener.Result `json:"results"`
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := decode(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		setErrorResponse(w, http.StatusBadRequest, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	if len(req.Results) == 0 {
		setErrorResponse(w, http.StatusBadRequest, errors.New("no results to export"))
		return
	}

	data, err := screener.ExportCSV(req.Results)
	if err != nil {
		setErrorResponse(w, http.StatusInternalServerError, err)
		return
	}
	name := "stock_screening_" + s.now().Format("20060102_150405") + ".csv"
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename="+name)
	w.Write(data)
}

type backtestRequest struct {
	CSVData    string             `json:"csv_data"`
	Stock      string             `json:"stock"`
	Period     string             `json:"period"`
	Interval   string             `json:"interval"`
	Indicators strategy.Selection `json:"indicators"`
	Params     json.RawMessage    `json:"params"`
}

type backtestResponse struct {
	Success bool   `json:"success"`
	RunID   string `json:"run_id"`
	*backtest.Result
}

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	var req backtestRequest
	if err := decode(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		setErrorResponse(w, http.StatusBadRequest, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	if req.Stock == "" {
		req.Stock = "RELIANCE"
	}
	if req.Period == "" {
		req.Period = "6mo"
	}
	if req.Interval == "" {
		req.Interval = s.Params.Interval
	}

	params := s.Params
	if len(req.Params) > 0 && !bytes.Equal(req.Params, []byte("null")) {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			setErrorResponse(w, http.StatusBadRequest, fmt.Errorf("%w: params: %v", backtest.ErrInvalidParams, err))
			return
		}
	}
	params.Interval = req.Interval

	sel := s.Strategy.Indicators
	if len(req.Indicators) > 0 {
		sel = req.Indicators
	}

	runID := logger.NewRunID()
	ctx := logger.WithRunID(r.Context(), runID)

	series, err := s.loadSeries(r, req)
	if err != nil {
		setErrorResponse(w, statusFor(err), err)
		return
	}

	res, err := s.Engine.Run(ctx, series, sel, params)
	if err != nil {
		setErrorResponse(w, statusFor(err), err)
		return
	}

	if s.Hub != nil {
		if err := s.Hub.Publish(ctx, gateway.ChannelBacktest+":"+res.Symbol, res); err != nil {
			s.Log.Warn("publish backtest failed", "error", err)
		}
	}
	setResponse(w, http.StatusOK, backtestResponse{Success: true, RunID: runID, Result: res})
}

func (s *Server) loadSeries(r *http.Request, req backtestRequest) (model.Series, error) {
	symbol := strings.ToUpper(req.Stock)
	if req.CSVData != "" {
		return marketdata.LoadCSV(strings.NewReader(req.CSVData), symbol, req.Interval)
	}
	if err := marketdata.ValidateTimeframe(req.Period, req.Interval); err != nil {
		return model.Series{}, err
	}
	return s.Data.Fetch(r.Context(), symbol, req.Period, req.Interval)
}

func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	channel := q.Get("channel")
	from, err1 := strconv.ParseInt(q.Get("from"), 10, 64)
	to, err2 := strconv.ParseInt(q.Get("to"), 10, 64)
	if channel == "" || err1 != nil || err2 != nil || from > to {
		setErrorResponse(w, http.StatusBadRequest, fmt.Errorf("%w: need channel, from <= to", errBadRequest))
		return
	}

	envelopes := s.Hub.ReplayRange(channel, from, to)
	out := make([]json.RawMessage, len(envelopes))
	for i, e := range envelopes {
		out[i] = e
	}
	setResponse(w, http.StatusOK, map[string]any{
		"channel":     channel,
		"channel_seq": s.Hub.ChannelSeq(channel),
		"events":      out,
	})
}
