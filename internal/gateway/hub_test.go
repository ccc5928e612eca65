package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"trading-screener/internal/logger"
)

type envelope struct {
	Channel    string          `json:"channel"`
	Data       json.RawMessage `json:"data"`
	TS         string          `json:"ts"`
	Seq        int64           `json:"seq"`
	ChannelSeq int64           `json:"channel_seq"`
	Initial    bool            `json:"initial"`
}

func TestBuildEnvelope(t *testing.T) {
	data := []byte(`[{"symbol":"TCS","signal":"BUY"}]`)
	now := time.Date(2026, 2, 25, 10, 0, 1, 0, time.UTC)

	buf := buildEnvelope("screen:1d", data, now, 42, 7)

	var env envelope
	if err := json.Unmarshal(buf, &env); err != nil {
		t.Fatalf("envelope is not valid JSON: %v\nraw: %s", err, buf)
	}
	if env.Channel != "screen:1d" || env.Seq != 42 || env.ChannelSeq != 7 {
		t.Errorf("got %+v", env)
	}
	if string(env.Data) != string(data) {
		t.Errorf("data: got %s", env.Data)
	}
	ts, err := time.Parse(time.RFC3339Nano, env.TS)
	if err != nil || !ts.Equal(now) {
		t.Errorf("ts: got %q (%v)", env.TS, err)
	}
}

func TestBroadcast_SequencesAndReplay(t *testing.T) {
	h := NewHub(nil, logger.Discard())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := h.Publish(ctx, "screen:1d", map[string]int{"n": i}); err != nil {
			t.Fatal(err)
		}
	}
	if err := h.Publish(ctx, "backtest:TCS", map[string]string{"status": "ok"}); err != nil {
		t.Fatal(err)
	}

	if got := h.ChannelSeq("screen:1d"); got != 3 {
		t.Errorf("screen seq: got %d, want 3", got)
	}
	if got := h.ChannelSeq("backtest:TCS"); got != 1 {
		t.Errorf("backtest seq: got %d, want 1", got)
	}
	if got := string(h.Latest()["screen:1d"]); got != `{"n":2}` {
		t.Errorf("latest: got %s", got)
	}

	missed := h.ReplayRange("screen:1d", 2, 3)
	if len(missed) != 2 {
		t.Fatalf("replay: got %d, want 2", len(missed))
	}
	var env envelope
	if err := json.Unmarshal(missed[0], &env); err != nil || env.ChannelSeq != 2 {
		t.Errorf("first replayed envelope: %+v (%v)", env, err)
	}
	if h.ReplayRange("nope", 1, 10) != nil {
		t.Error("unknown channel should replay nothing")
	}
}

func TestClientMatches(t *testing.T) {
	c := newClient(NewHub(nil, logger.Discard()), nil, []string{"screen", "backtest:TCS"})
	tests := map[string]bool{
		"screen:1d":     true,
		"screen:15m":    true,
		"backtest:TCS":  true,
		"backtest:INFY": false,
	}
	for ch, want := range tests {
		if got := c.matches(ch); got != want {
			t.Errorf("matches(%q): got %v, want %v", ch, got, want)
		}
	}

	all := newClient(NewHub(nil, logger.Discard()), nil, nil)
	if !all.matches("backtest:INFY") {
		t.Error("no subscriptions should receive everything")
	}
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		t.Fatalf("bad envelope %s: %v", msg, err)
	}
	return env
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServeWS_EndToEnd(t *testing.T) {
	h := NewHub(nil, logger.Discard())
	var count atomic.Int64
	h.OnClientCount = func(n int) { count.Store(int64(n)) }

	ctx := context.Background()
	// published before anyone connects: delivered as initial state
	if err := h.Publish(ctx, "screen:1d", []string{"TCS"}); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer srv.Close()

	conn := dial(t, srv, "?channels=screen")
	waitFor(t, func() bool { return h.ClientCount() == 1 })
	if count.Load() != 1 {
		t.Errorf("client count callback: got %d, want 1", count.Load())
	}

	first := readEnvelope(t, conn)
	if !first.Initial || first.Channel != "screen:1d" {
		t.Errorf("initial state: %+v", first)
	}

	// not subscribed
	if err := h.Publish(ctx, "backtest:TCS", map[string]int{"trades": 3}); err != nil {
		t.Fatal(err)
	}
	if err := h.Publish(ctx, "screen:15m", []string{"INFY"}); err != nil {
		t.Fatal(err)
	}
	got := readEnvelope(t, conn)
	if got.Channel != "screen:15m" || string(got.Data) != `["INFY"]` {
		t.Errorf("live event: %+v", got)
	}

	// ping/pong
	if err := conn.WriteJSON(map[string]int64{"ping": 99}); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var pong struct {
		Type string `json:"type"`
		Ping int64  `json:"ping"`
	}
	if err := json.Unmarshal(msg, &pong); err != nil || pong.Type != "pong" || pong.Ping != 99 {
		t.Errorf("pong: %s", msg)
	}

	conn.Close()
	waitFor(t, func() bool { return h.ClientCount() == 0 })
	waitFor(t, func() bool { return count.Load() == 0 })
}
