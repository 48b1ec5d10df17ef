package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"

	"propchat/internal/app/delivery"
	"propchat/internal/domain/chat"
)

func sampleEvent() delivery.Event {
	conv := chat.Conversation{ID: "c1", PropertyID: "p1", ParticipantIDs: []string{"buyer", "seller"}}
	msg := chat.Message{
		ID:             "m1",
		ConversationID: "c1",
		SenderID:       "buyer",
		SenderRole:     chat.RoleBuyer,
		Body:           "is it still available?",
		CreatedAt:      time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	return delivery.NewMessageEvent(conv, msg)
}

func TestPublisher_Deliver(t *testing.T) {
	t.Run("should key records by conversation", func(t *testing.T) {
		req := require.New(t)
		producer := mocks.NewSyncProducer(t, nil)
		producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
			key, err := msg.Key.Encode()
			if err != nil {
				return err
			}
			if string(key) != "c1" {
				return errors.New("unexpected key " + string(key))
			}
			if msg.Topic != "chat.messages.v1" {
				return errors.New("unexpected topic " + msg.Topic)
			}
			return nil
		})
		pub := NewPublisherWith(producer, "chat.messages.v1")

		req.NoError(pub.Deliver(context.Background(), sampleEvent()))
		req.NoError(pub.Close())
	})

	t.Run("should surface broker failures", func(t *testing.T) {
		req := require.New(t)
		producer := mocks.NewSyncProducer(t, nil)
		producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
		pub := NewPublisherWith(producer, "chat.messages.v1")

		err := pub.Deliver(context.Background(), sampleEvent())
		req.ErrorIs(err, sarama.ErrOutOfBrokers)
		req.NoError(pub.Close())
	})
}

func TestDeliveryHandler_Handle(t *testing.T) {
	t.Run("should hand decoded events to the sink", func(t *testing.T) {
		req := require.New(t)
		var got []delivery.Event
		h := DeliveryHandler{Sink: delivery.SinkFunc(func(_ context.Context, evt delivery.Event) error {
			got = append(got, evt)
			return nil
		})}
		evt := sampleEvent()
		payload, _, err := delivery.Encode(evt, "")
		req.NoError(err)

		req.NoError(h.Handle(context.Background(), &sarama.ConsumerMessage{Value: payload}))
		req.Len(got, 1)
		req.Equal(evt.ID, got[0].ID)
		req.Equal(evt.Message.Body, got[0].Message.Body)
		req.ElementsMatch([]string{"buyer", "seller"}, got[0].Participants)
	})

	t.Run("should skip events the inbox has seen", func(t *testing.T) {
		req := require.New(t)
		delivered := 0
		h := DeliveryHandler{
			Sink: delivery.SinkFunc(func(context.Context, delivery.Event) error {
				delivered++
				return nil
			}),
			Inbox: &memoryInbox{seen: map[string]bool{}},
		}
		payload, _, err := delivery.Encode(sampleEvent(), "")
		req.NoError(err)
		record := &sarama.ConsumerMessage{Value: payload}

		req.NoError(h.Handle(context.Background(), record))
		req.NoError(h.Handle(context.Background(), record))
		req.Equal(1, delivered)
	})

	t.Run("should acknowledge malformed records", func(t *testing.T) {
		req := require.New(t)
		called := false
		h := DeliveryHandler{Sink: delivery.SinkFunc(func(context.Context, delivery.Event) error {
			called = true
			return nil
		})}
		req.NoError(h.Handle(context.Background(), &sarama.ConsumerMessage{Value: []byte("{nope")}))
		req.False(called)
	})
}

type memoryInbox struct {
	seen map[string]bool
}

func (m *memoryInbox) Seen(_ context.Context, id string) (bool, error) {
	if m.seen[id] {
		return true, nil
	}
	m.seen[id] = true
	return false, nil
}
