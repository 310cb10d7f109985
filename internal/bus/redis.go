package bus

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBus implements Bus over Redis pub/sub.
//
// Publishes run over a short-lived client that is opened, used and closed per
// call so the request path never holds shared connection state. Subscriptions
// hold one long-lived PubSub each, owned by the caller's context.
type RedisBus struct {
	opts *redis.Options
}

// NewRedisBus creates a bus for the given Redis options.
func NewRedisBus(opts *redis.Options) *RedisBus {
	return &RedisBus{opts: opts}
}

// Publish sends payload to channel over a fresh connection.
func (b *RedisBus) Publish(ctx context.Context, channel string, payload []byte) error {
	client := redis.NewClient(b.opts)
	defer client.Close()

	if err := client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe opens a long-lived subscription on channel. Messages are
// forwarded until ctx is cancelled, at which point the subscription and its
// client are closed and the returned channel is closed.
func (b *RedisBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	client := redis.NewClient(b.opts)

	sub := client.Subscribe(ctx, channel)
	// Force the SUBSCRIBE round-trip so a dead Redis surfaces here, not as a
	// silent never-delivering channel.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		client.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	out := make(chan []byte)
	go func() {
		defer close(out)
		defer client.Close()
		defer sub.Close()

		in := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
