package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"propchat/internal/app/delivery"
	"propchat/internal/infra/broker/kafka"
	"propchat/internal/infra/broker/redis"
	"propchat/internal/infra/config"
)

// Bridge connects the dispatcher to the sessions hub, directly or through a
// broker shared by every gateway instance.
type Bridge struct {
	// Outbound is where the dispatcher delivers.
	Outbound delivery.Sink
	// Run consumes the broker into the local sink until ctx ends. It is nil
	// when there is nothing to consume.
	Run   func(ctx context.Context) error
	Close func() error
}

// OpenBridge builds the delivery path for DELIVERY_BRIDGE. local is the hub of
// this process and may be nil for processes without sessions, which then only
// publish. inbox, when set, drops Kafka redeliveries.
func OpenBridge(ctx context.Context, cfg config.Config, local delivery.Sink, inbox kafka.Deduper, logger *slog.Logger) (*Bridge, error) {
	nop := func() error { return nil }
	switch cfg.DeliveryBridge {
	case config.BridgeNone:
		if local == nil {
			local = delivery.SinkFunc(func(context.Context, delivery.Event) error { return nil })
		}
		return &Bridge{Outbound: local, Close: nop}, nil
	case config.BridgeKafka:
		pub, err := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, nil)
		if err != nil {
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		b := &Bridge{Outbound: pub, Close: pub.Close}
		if local == nil {
			return b, nil
		}
		consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroup, nil, kafka.DeliveryHandler{Sink: local, Inbox: inbox, Logger: logger})
		if err != nil {
			_ = pub.Close()
			return nil, fmt.Errorf("kafka consumer: %w", err)
		}
		b.Run = func(ctx context.Context) error {
			return consumer.Run(ctx, []string{cfg.KafkaTopic})
		}
		b.Close = func() error {
			return errors.Join(consumer.Close(), pub.Close())
		}
		return b, nil
	case config.BridgeRedis:
		client, err := redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		bridge := redis.NewBridge(client, cfg.RedisChannel, local, logger)
		b := &Bridge{Outbound: bridge, Close: client.Close}
		if local != nil {
			b.Run = bridge.Run
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unsupported delivery bridge %q", cfg.DeliveryBridge)
	}
}
