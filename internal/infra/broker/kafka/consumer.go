package kafka

import (
	"context"
	"errors"
	"log/slog"

	"github.com/IBM/sarama"

	"propchat/internal/app/delivery"
)

type MessageHandler interface {
	Handle(ctx context.Context, msg *sarama.ConsumerMessage) error
}

// Consumer reads the delivery topic in a consumer group. Each gateway instance
// must use its own group so that every instance sees every event.
type Consumer struct {
	group   sarama.ConsumerGroup
	handler MessageHandler
}

func NewConsumer(brokers []string, groupID string, cfg *sarama.Config, handler MessageHandler) (*Consumer, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	g, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, err
	}
	return &Consumer{group: g, handler: handler}, nil
}

func (c *Consumer) Run(ctx context.Context, topics []string) error {
	for {
		if err := c.group.Consume(ctx, topics, consumerGroupHandler{handler: c.handler}); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

type consumerGroupHandler struct {
	handler MessageHandler
}

func (h consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h consumerGroupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		if err := h.handler.Handle(sess.Context(), message); err != nil {
			continue
		}
		sess.MarkMessage(message, "")
	}
	return nil
}

// Deduper records processed event ids. Seen reports true for repeats.
type Deduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
}

// DeliveryHandler decodes envelopes and hands them to the local sink.
// Push is best effort, so undecodable records are logged and acknowledged.
type DeliveryHandler struct {
	Sink   delivery.Sink
	Inbox  Deduper
	Logger *slog.Logger
}

func (h DeliveryHandler) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	evt, err := delivery.Decode(msg.Value)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("skip malformed delivery record", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		}
		return nil
	}
	if h.Inbox != nil && evt.ID != "" {
		seen, err := h.Inbox.Seen(ctx, evt.ID)
		if err != nil {
			// Retried by the group on the next session.
			return err
		}
		if seen {
			return nil
		}
	}
	if err := h.Sink.Deliver(ctx, evt); err != nil && h.Logger != nil {
		h.Logger.Warn("local delivery failed", "conversation_id", evt.ConversationID, "message_id", evt.Message.ID, "err", err)
	}
	return nil
}

var _ MessageHandler = DeliveryHandler{}
