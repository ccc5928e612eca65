// Package gateway streams screening and backtest events to WebSocket
// clients. Events published on one instance reach clients of every instance
// when a Redis client is configured; otherwise fan-out is local.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
)

// Channel prefixes.
const (
	ChannelScreen   = "screen"   // screen:{interval}
	ChannelBacktest = "backtest" // backtest:{symbol}

	redisPrefix = "pub:"
)

// Hub manages WebSocket clients and event fan-out.
// It delegates to:
//   - PubSubRouter: Redis subscription + message routing
//   - Broadcaster: envelope construction + client-filtered fan-out
type Hub struct {
	Rdb *goredis.Client // optional
	Log *slog.Logger

	// OnClientCount is called with the new total after every connect and
	// disconnect.
	OnClientCount func(n int)

	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]latestEntry
	seq     int64

	// Per-channel monotonic sequence numbers for gap detection
	channelSeqs map[string]int64

	// Per-channel replay buffers for gap backfill
	replayBufs map[string]*ReplayBuffer

	Router      *PubSubRouter
	Broadcaster *Broadcaster
}

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64
}

// NewHub creates a Hub. rdb may be nil.
func NewHub(rdb *goredis.Client, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	h := &Hub{
		Rdb:         rdb,
		Log:         log.With("component", "gateway"),
		clients:     make(map[*Client]bool),
		latest:      make(map[string]latestEntry),
		channelSeqs: make(map[string]int64),
		replayBufs:  make(map[string]*ReplayBuffer),
	}
	h.Router = NewPubSubRouter(h)
	h.Broadcaster = NewBroadcaster(h)
	return h
}

// Run relays Redis events to local clients. Without Redis it just waits
// for ctx. Blocks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	if h.Rdb == nil {
		<-ctx.Done()
		return
	}
	h.Router.Run(ctx)
}

// Publish sends v as JSON on channel to every subscribed client.
func (h *Hub) Publish(ctx context.Context, channel string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if h.Rdb != nil {
		return h.Rdb.Publish(ctx, redisPrefix+channel, data).Err()
	}
	h.Broadcaster.Broadcast(channel, data)
	return nil
}

// Register adds a connected peer and starts its pumps.
func (h *Hub) Register(conn *websocket.Conn, channels []string) *Client {
	client := newClient(h, conn, channels)

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	h.Log.Info("ws client connected", "total", count)
	h.clientCount(count)

	client.sendInitialState()
	go client.writePump()
	go client.readPump()
	return client
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	close(c.send)
	h.mu.Unlock()

	h.Log.Info("ws client disconnected", "total", count)
	h.clientCount(count)
}

func (h *Hub) clientCount(n int) {
	if h.OnClientCount != nil {
		h.OnClientCount(n)
	}
}

// Latest returns the last payload of every channel.
func (h *Hub) Latest() map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := make(map[string]json.RawMessage, len(h.latest))
	for k, v := range h.latest {
		cp[k] = v.Data
	}
	return cp
}

// ReplayRange returns buffered envelopes for a channel in [fromSeq, toSeq].
func (h *Hub) ReplayRange(channel string, fromSeq, toSeq int64) [][]byte {
	h.mu.RLock()
	rb, exists := h.replayBufs[channel]
	h.mu.RUnlock()
	if !exists {
		return nil
	}
	return rb.Range(fromSeq, toSeq)
}

// ChannelSeq returns the current sequence number for a channel.
func (h *Hub) ChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
