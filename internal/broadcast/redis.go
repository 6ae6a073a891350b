package broadcast

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"
)

// RedisBus bridges the in-process hub over a Redis pub/sub channel so that
// every API process fans out to its own connected viewers. Subscribers
// still get best-effort semantics; Redis pub/sub has no replay either.
type RedisBus struct {
	client  *redis.Client
	channel string
	hub     *Hub
	cancel  context.CancelFunc
}

// NewRedisBus starts the relay goroutine and returns the bus.
func NewRedisBus(client *redis.Client, channel string, hub *Hub) *RedisBus {
	if channel == "" {
		channel = "attendance:events"
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &RedisBus{client: client, channel: channel, hub: hub, cancel: cancel}
	go b.relay(ctx)
	return b
}

// Publish sends the event to the Redis channel. Local delivery happens via
// the relay like every other process's.
func (b *RedisBus) Publish(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

// Subscribe registers a local subscriber.
func (b *RedisBus) Subscribe() *Subscriber { return b.hub.Subscribe() }

// Unsubscribe removes a local subscriber.
func (b *RedisBus) Unsubscribe(sub *Subscriber) { b.hub.Unsubscribe(sub) }

// Close stops the relay.
func (b *RedisBus) Close() { b.cancel() }

func (b *RedisBus) relay(ctx context.Context) {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()
	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				log.Printf("broadcast relay: bad payload: %v", err)
				continue
			}
			_ = b.hub.Publish(ctx, evt)
		case <-ctx.Done():
			return
		}
	}
}
