package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

const (
	resubscribeMin = 500 * time.Millisecond
	resubscribeMax = 30 * time.Second
)

// PubSubRouter relays screen and backtest events published through Redis
// to the hub's local clients.
type PubSubRouter struct {
	hub *Hub
}

func NewPubSubRouter(hub *Hub) *PubSubRouter {
	return &PubSubRouter{hub: hub}
}

// Run relays until ctx is cancelled. A dropped subscription is re-opened
// with exponential backoff.
func (r *PubSubRouter) Run(ctx context.Context) {
	backoff := resubscribeMin
	for ctx.Err() == nil {
		relayed := r.relay(ctx)
		if ctx.Err() != nil {
			return
		}
		if relayed > 0 {
			backoff = resubscribeMin
		}
		r.hub.Log.Warn("pubsub subscription lost, retrying", "backoff", backoff, "relayed", relayed)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, resubscribeMax)
	}
}

// relay runs one subscription and returns the number of events forwarded.
func (r *PubSubRouter) relay(ctx context.Context) int {
	patterns := []string{
		redisPrefix + ChannelScreen + ":*",
		redisPrefix + ChannelBacktest + ":*",
	}
	pubsub := r.hub.Rdb.PSubscribe(ctx, patterns...)
	defer pubsub.Close()

	r.hub.Log.Info("pubsub relay started", "patterns", patterns)

	n := 0
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return n
		case msg, ok := <-ch:
			if !ok {
				return n
			}
			payload := []byte(msg.Payload)
			if !json.Valid(payload) {
				r.hub.Log.Warn("dropping non-JSON event", "channel", msg.Channel)
				continue
			}
			r.hub.Broadcaster.Broadcast(strings.TrimPrefix(msg.Channel, redisPrefix), payload)
			n++
		}
	}
}
