// Package redis fans delivery events out across gateway instances over
// Redis pub/sub. Publishing is fire and forget, like the rest of push.
package redis

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"propchat/internal/app/delivery"
)

// NewClient parses a redis:// URL and verifies the connection.
func NewClient(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return client, nil
}

type Bridge struct {
	Channel string
	Source  string
	Local   delivery.Sink
	Logger  *slog.Logger

	client goredis.UniversalClient
}

func NewBridge(client goredis.UniversalClient, channel string, local delivery.Sink, logger *slog.Logger) *Bridge {
	return &Bridge{Channel: channel, Local: local, Logger: logger, client: client}
}

// Deliver publishes the event. Every instance, this one included, receives it
// back through Run and pushes it to its own sessions.
func (b *Bridge) Deliver(ctx context.Context, evt delivery.Event) error {
	payload, _, err := delivery.Encode(evt, b.Source)
	if err != nil {
		return fmt.Errorf("redis: encode event: %w", err)
	}
	if err := b.client.Publish(ctx, b.Channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", evt.ID, err)
	}
	return nil
}

// Run subscribes to the channel until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, b.Channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis: subscribe %s: %w", b.Channel, err)
	}
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.handle(ctx, []byte(msg.Payload))
		}
	}
}

func (b *Bridge) handle(ctx context.Context, payload []byte) {
	evt, err := delivery.Decode(payload)
	if err != nil {
		if b.Logger != nil {
			b.Logger.Warn("skip malformed delivery payload", "channel", b.Channel, "err", err)
		}
		return
	}
	if err := b.Local.Deliver(ctx, evt); err != nil && b.Logger != nil {
		b.Logger.Warn("local delivery failed", "conversation_id", evt.ConversationID, "message_id", evt.Message.ID, "err", err)
	}
}

var _ delivery.Sink = (*Bridge)(nil)
