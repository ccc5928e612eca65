// Package smartconnect is a minimal Angel One SmartAPI client covering what
// historical candle download needs: password+TOTP login, scrip search and
// the getCandleData endpoint.
//
// Usage example:
//
//	sc := smartconnect.NewSmartConnect(smartconnect.Config{APIKey: "your_api_key"})
//	if err := sc.GenerateSession(ctx, "CLIENTID", "PASSWORD", "TOTP"); err != nil { ... }
//	tok, err := sc.SearchScrip(ctx, "NSE", "SBIN")
//	rows, err := sc.GetCandleData(ctx, smartconnect.CandleRequest{Exchange: "NSE", SymbolToken: tok.SymbolToken, Interval: "ONE_DAY", From: from, To: to})
package smartconnect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ---- Config & client ----

type Config struct {
	APIKey      string
	AccessToken string

	RootURL        string        // default: https://apiconnect.angelone.in
	Timeout        time.Duration // default: 7s
	UserType       string        // default: USER
	SourceID       string        // default: WEB
	ClientPublicIP string        // default: 127.0.0.1
	ClientLocalIP  string        // default: 127.0.0.1
	ClientMAC      string        // default: 00:11:22:33:44:55

	HTTPClient *http.Client // optional
	Log        *slog.Logger // optional
}

type SmartConnect struct {
	apiKey       string
	accessToken  string
	refreshToken string
	feedToken    string

	rootURL    string
	httpClient *http.Client
	log        *slog.Logger

	// header fields
	userType       string
	sourceID       string
	clientPublicIP string
	clientLocalIP  string
	clientMAC      string
}

const defaultRoot = "https://apiconnect.angelone.in"

// CandleTimeLayout is the fromdate/todate format of getCandleData.
const CandleTimeLayout = "2006-01-02 15:04"

var (
	// ErrLoginFailed is returned when the broker rejects the session request.
	ErrLoginFailed = errors.New("smartconnect: login failed")

	// ErrNotFound is returned when a scrip search has no exact match.
	ErrNotFound = errors.New("smartconnect: scrip not found")
)

// APIError is a non-success envelope from the API.
type APIError struct {
	Status    int
	ErrorCode string
	Message   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("smartconnect: http %d %s: %s", e.Status, e.ErrorCode, e.Message)
}

var routes = map[string]string{
	"api.login":        "/rest/auth/angelbroking/user/v1/loginByPassword",
	"api.logout":       "/rest/secure/angelbroking/user/v1/logout",
	"api.candle.data":  "/rest/secure/angelbroking/historical/v1/getCandleData",
	"api.search.scrip": "/rest/secure/angelbroking/order/v1/searchScrip",
}

// NewSmartConnect initializes the client. No network calls are made.
func NewSmartConnect(cfg Config) *SmartConnect {
	if cfg.RootURL == "" {
		cfg.RootURL = defaultRoot
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 7 * time.Second
	}
	if cfg.UserType == "" {
		cfg.UserType = "USER"
	}
	if cfg.SourceID == "" {
		cfg.SourceID = "WEB"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	return &SmartConnect{
		apiKey:         cfg.APIKey,
		accessToken:    cfg.AccessToken,
		rootURL:        strings.TrimRight(cfg.RootURL, "/"),
		httpClient:     cfg.HTTPClient,
		log:            cfg.Log.With("component", "smartconnect"),
		userType:       cfg.UserType,
		sourceID:       cfg.SourceID,
		clientPublicIP: firstNonEmpty(cfg.ClientPublicIP, "127.0.0.1"),
		clientLocalIP:  firstNonEmpty(cfg.ClientLocalIP, "127.0.0.1"),
		clientMAC:      firstNonEmpty(cfg.ClientMAC, "00:11:22:33:44:55"),
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// ---- Helpers ----

func (sc *SmartConnect) requestHeaders() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	h.Set("X-ClientLocalIP", sc.clientLocalIP)
	h.Set("X-ClientPublicIP", sc.clientPublicIP)
	h.Set("X-MACAddress", sc.clientMAC)
	h.Set("X-PrivateKey", sc.apiKey)
	h.Set("X-UserType", sc.userType)
	h.Set("X-SourceID", sc.sourceID)
	if sc.accessToken != "" {
		h.Set("Authorization", "Bearer "+sc.accessToken)
	}
	return h
}

// envelope is the common response wrapper.
type envelope struct {
	Status    bool            `json:"status"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"errorcode"`
	Data      json.RawMessage `json:"data"`
}

// post sends params as JSON and decodes the data field into out.
func (sc *SmartConnect) post(ctx context.Context, route string, params any, out any) error {
	uri, ok := routes[route]
	if !ok {
		return fmt.Errorf("unknown route: %s", route)
	}
	b, err := json.Marshal(params)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sc.rootURL+uri, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header = sc.requestHeaders()

	resp, err := sc.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", route, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	sc.log.Debug("api response", "route", route, "status", resp.StatusCode, "bytes", len(raw))

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("couldn't parse JSON response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !env.Status {
		return &APIError{Status: resp.StatusCode, ErrorCode: env.ErrorCode, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

// ---- Session ----

// GenerateSession logs in with password and a current TOTP code and keeps
// the returned tokens on the client.
func (sc *SmartConnect) GenerateSession(ctx context.Context, clientCode, password, totp string) error {
	var data struct {
		JWTToken     string `json:"jwtToken"`
		RefreshToken string `json:"refreshToken"`
		FeedToken    string `json:"feedToken"`
	}
	params := map[string]string{"clientcode": clientCode, "password": password, "totp": totp}
	if err := sc.post(ctx, "api.login", params, &data); err != nil {
		return fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}
	if data.JWTToken == "" {
		return fmt.Errorf("%w: no token in response", ErrLoginFailed)
	}

	sc.accessToken = data.JWTToken
	sc.refreshToken = data.RefreshToken
	sc.feedToken = data.FeedToken
	sc.log.Info("session established", "client", clientCode)
	return nil
}

// TerminateSession logs out.
func (sc *SmartConnect) TerminateSession(ctx context.Context, clientCode string) error {
	return sc.post(ctx, "api.logout", map[string]string{"clientcode": clientCode}, nil)
}

// HasSession reports whether a JWT is held.
func (sc *SmartConnect) HasSession() bool { return sc.accessToken != "" }

// ---- Market data ----

// Scrip is one searchScrip match.
type Scrip struct {
	Exchange      string `json:"exchange"`
	TradingSymbol string `json:"tradingsymbol"`
	SymbolToken   string `json:"symboltoken"`
}

// SearchScrip resolves a symbol to its instrument token. The cash-segment
// "-EQ" listing wins over other matches.
func (sc *SmartConnect) SearchScrip(ctx context.Context, exchange, symbol string) (Scrip, error) {
	var matches []Scrip
	params := map[string]string{"exchange": exchange, "searchscrip": symbol}
	if err := sc.post(ctx, "api.search.scrip", params, &matches); err != nil {
		return Scrip{}, err
	}

	want := strings.ToUpper(symbol)
	for _, m := range matches {
		if strings.EqualFold(m.TradingSymbol, want+"-EQ") {
			return m, nil
		}
	}
	for _, m := range matches {
		if strings.EqualFold(m.TradingSymbol, want) {
			return m, nil
		}
	}
	return Scrip{}, fmt.Errorf("%w: %s on %s", ErrNotFound, symbol, exchange)
}

// CandleRequest selects a historical window.
type CandleRequest struct {
	Exchange    string
	SymbolToken string
	Interval    string // ONE_MINUTE, FIVE_MINUTE, ..., ONE_DAY
	From        time.Time
	To          time.Time
}

// CandleRow is one bar as returned by the API.
type CandleRow struct {
	TS     time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// GetCandleData downloads bars for the request window.
func (sc *SmartConnect) GetCandleData(ctx context.Context, r CandleRequest) ([]CandleRow, error) {
	params := map[string]string{
		"exchange":    r.Exchange,
		"symboltoken": r.SymbolToken,
		"interval":    r.Interval,
		"fromdate":    r.From.Format(CandleTimeLayout),
		"todate":      r.To.Format(CandleTimeLayout),
	}
	// [["2023-09-06T11:15:00+05:30", o, h, l, c, v], ...]
	var raw [][]json.RawMessage
	if err := sc.post(ctx, "api.candle.data", params, &raw); err != nil {
		return nil, err
	}

	rows := make([]CandleRow, 0, len(raw))
	for i, rec := range raw {
		if len(rec) < 6 {
			return nil, fmt.Errorf("candle %d: want 6 fields, got %d", i, len(rec))
		}
		var ts string
		if err := json.Unmarshal(rec[0], &ts); err != nil {
			return nil, fmt.Errorf("candle %d: %w", i, err)
		}
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("candle %d: %w", i, err)
		}

		row := CandleRow{TS: t}
		for j, dst := range []*float64{&row.Open, &row.High, &row.Low, &row.Close, &row.Volume} {
			if err := json.Unmarshal(rec[j+1], dst); err != nil {
				return nil, fmt.Errorf("candle %d field %d: %w", i, j+1, err)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
