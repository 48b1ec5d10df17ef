package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"

	"propchat/internal/app/delivery"
)

// SyncProducer is the part of sarama.SyncProducer the publisher needs.
type SyncProducer interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
	Close() error
}

// Publisher forwards delivery events to a topic so every gateway instance
// can push them to its own sessions. Messages are keyed by conversation, which
// keeps one conversation's events on one partition and therefore in order.
type Publisher struct {
	Topic  string
	Source string

	sync SyncProducer
}

func NewPublisher(brokers []string, topic string, cfg *sarama.Config) (*Publisher, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Idempotent = true
	cfg.Producer.Return.Successes = true
	cfg.Net.MaxOpenRequests = 1
	sync, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return &Publisher{Topic: topic, sync: sync}, nil
}

// NewPublisherWith wraps an existing producer, e.g. a sarama mock.
func NewPublisherWith(producer SyncProducer, topic string) *Publisher {
	return &Publisher{Topic: topic, sync: producer}
}

func (p *Publisher) Deliver(ctx context.Context, evt delivery.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, headers, err := delivery.Encode(evt, p.Source)
	if err != nil {
		return fmt.Errorf("kafka: encode event: %w", err)
	}
	hs := make([]sarama.RecordHeader, 0, len(headers))
	for k, v := range headers {
		hs = append(hs, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	msg := &sarama.ProducerMessage{
		Topic:   p.Topic,
		Key:     sarama.StringEncoder(evt.ConversationID),
		Value:   sarama.ByteEncoder(payload),
		Headers: hs,
	}
	if _, _, err := p.sync.SendMessage(msg); err != nil {
		return fmt.Errorf("kafka: publish %s: %w", evt.ID, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	if p.sync == nil {
		return nil
	}
	return p.sync.Close()
}

var _ delivery.Sink = (*Publisher)(nil)
