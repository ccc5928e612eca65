package redis

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"trading-screener/internal/logger"
	"trading-screener/internal/model"
)

// respServer answers GET, SET and PING over RESP from an in-memory map.
type respServer struct {
	ln   net.Listener
	mu   sync.Mutex
	data map[string]string
	ttls map[string]string
}

func newRESPServer(t *testing.T) *respServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	s := &respServer{ln: ln, data: map[string]string{}, ttls: map[string]string{}}
	go s.serve()
	t.Cleanup(func() { ln.Close() })
	return s
}

func (s *respServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *respServer) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		args, err := readCommand(r)
		if err != nil {
			return
		}
		io.WriteString(conn, s.reply(args))
	}
}

func (s *respServer) ttl(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ttls[key]
}

func readCommand(r *bufio.Reader) ([]string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "*")))
	if err != nil {
		return nil, err
	}
	args := make([]string, n)
	for i := range args {
		hdr, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		size, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(hdr, "$")))
		if err != nil {
			return nil, err
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		args[i] = string(buf[:size])
	}
	return args, nil
}

func (s *respServer) reply(args []string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch strings.ToUpper(args[0]) {
	case "PING":
		return "+PONG\r\n"
	case "GET":
		v, ok := s.data[args[1]]
		if !ok {
			return "$-1\r\n"
		}
		return fmt.Sprintf("$%d\r\n%s\r\n", len(v), v)
	case "SET":
		s.data[args[1]] = args[2]
		if len(args) >= 5 {
			s.ttls[args[1]] = strings.ToLower(args[3]) + " " + args[4]
		}
		return "+OK\r\n"
	default:
		return "-ERR unknown command\r\n"
	}
}

func testSeries() model.Series {
	ts := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	return model.NewSeries("TCS", "1d", []model.Candle{
		{TS: ts, Open: 100, High: 102, Low: 99, Close: 101, Volume: 1200},
		{TS: ts.AddDate(0, 0, 1), Open: 101, High: 103, Low: 100, Close: 102.5, Volume: 900},
	}, true)
}

func TestKey(t *testing.T) {
	if got := Key("tcs", "6mo", "1d"); got != "candles:TCS:6mo:1d" {
		t.Errorf("got %q", got)
	}
}

func TestSeriesCache_MissThenHit(t *testing.T) {
	srv := newRESPServer(t)
	client := goredis.NewClient(&goredis.Options{Addr: srv.ln.Addr().String()})
	defer client.Close()

	c := NewSeriesCache(client, time.Minute, logger.Discard())
	ctx := context.Background()

	// many misses must not trip the breaker
	for i := 0; i < breakerFailures+2; i++ {
		_, ok, err := c.Get(ctx, "TCS", "6mo", "1d")
		if err != nil || ok {
			t.Fatalf("miss %d: ok=%v err=%v", i, ok, err)
		}
	}
	if c.Breaker().CurrentState() != StateClosed {
		t.Fatalf("breaker tripped on misses: %v", c.Breaker().CurrentState())
	}

	want := testSeries()
	if err := c.Set(ctx, "tcs", "6mo", "1d", want); err != nil {
		t.Fatal(err)
	}
	if ttl := srv.ttl("candles:TCS:6mo:1d"); ttl != "ex 60" {
		t.Errorf("ttl: got %q, want \"ex 60\"", ttl)
	}

	got, ok, err := c.Get(ctx, "TCS", "6mo", "1d")
	if err != nil || !ok {
		t.Fatalf("hit: ok=%v err=%v", ok, err)
	}
	if got.Symbol != "TCS" || got.Len() != 2 || !got.HasVolume {
		t.Errorf("got %+v", got)
	}
	if !got.Candles[1].TS.Equal(want.Candles[1].TS) || got.Candles[1].Close != 102.5 {
		t.Errorf("candle 1: got %+v", got.Candles[1])
	}
}

func TestSeriesCache_UnreachableOpensBreaker(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	client := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	c := NewSeriesCache(client, 0, logger.Discard())
	ctx := context.Background()

	for i := 0; i < breakerFailures; i++ {
		if _, _, err := c.Get(ctx, "TCS", "6mo", "1d"); err == nil || errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("call %d: expected a dial error, got %v", i, err)
		}
	}
	if _, _, err := c.Get(ctx, "TCS", "6mo", "1d"); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("got %v, want ErrCircuitOpen", err)
	}
	if err := c.Set(ctx, "TCS", "6mo", "1d", testSeries()); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("set: got %v, want ErrCircuitOpen", err)
	}
}
