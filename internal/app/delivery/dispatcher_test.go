package delivery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"propchat/internal/domain/chat"
)

type countingMetrics struct {
	queued, dropped, failed atomic.Int64
}

func (m *countingMetrics) NotificationQueued()  { m.queued.Add(1) }
func (m *countingMetrics) NotificationDropped() { m.dropped.Add(1) }
func (m *countingMetrics) NotificationFailed()  { m.failed.Add(1) }

func sampleConversation() (chat.Conversation, chat.Message) {
	conv := chat.Conversation{ID: "c1", PropertyID: "p1", ParticipantIDs: []string{"u1", "u2"}}
	msg := chat.Message{
		ID:             "m1",
		ConversationID: "c1",
		SenderID:       "u1",
		SenderRole:     chat.RoleBuyer,
		Body:           "hello",
		CreatedAt:      time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	return conv, msg
}

func TestDispatcher_DeliversQueuedEvents(t *testing.T) {
	req := require.New(t)
	var mu sync.Mutex
	var got []Event
	done := make(chan struct{})
	sink := SinkFunc(func(ctx context.Context, evt Event) error {
		mu.Lock()
		got = append(got, evt)
		mu.Unlock()
		close(done)
		return nil
	})
	metrics := &countingMetrics{}
	d := NewDispatcher(sink, 4, nil, metrics)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Run(ctx) }()

	conv, msg := sampleConversation()
	d.Notify(conv, msg)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
	mu.Lock()
	defer mu.Unlock()
	req.Len(got, 1)
	req.Equal(EventMessageCreated, got[0].Name)
	req.Equal(chat.ConversationID("c1"), got[0].ConversationID)
	req.True(got[0].Addressed("u2"))
	req.False(got[0].Addressed("u3"))
	req.EqualValues(1, metrics.queued.Load())
}

func TestDispatcher_DropsWhenQueueIsFull(t *testing.T) {
	req := require.New(t)
	metrics := &countingMetrics{}
	d := NewDispatcher(SinkFunc(func(context.Context, Event) error { return nil }), 2, nil, metrics)
	conv, msg := sampleConversation()

	req.True(d.Publish(NewMessageEvent(conv, msg)))
	req.True(d.Publish(NewMessageEvent(conv, msg)))

	start := time.Now()
	req.False(d.Publish(NewMessageEvent(conv, msg)))
	req.Less(time.Since(start), time.Second)
	req.EqualValues(1, metrics.dropped.Load())
}

func TestDispatcher_SwallowsSinkFailures(t *testing.T) {
	req := require.New(t)
	metrics := &countingMetrics{}
	calls := make(chan struct{}, 2)
	sink := SinkFunc(func(context.Context, Event) error {
		calls <- struct{}{}
		return errors.New("socket gone")
	})
	d := NewDispatcher(sink, 4, nil, metrics)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Run(ctx) }()

	conv, msg := sampleConversation()
	d.Notify(conv, msg)
	d.Notify(conv, msg)
	for i := 0; i < 2; i++ {
		select {
		case <-calls:
		case <-time.After(2 * time.Second):
			t.Fatal("sink not called")
		}
	}
	req.Eventually(func() bool { return metrics.failed.Load() == 2 }, time.Second, 10*time.Millisecond)
}

func TestDispatcher_RunRequiresSink(t *testing.T) {
	d := NewDispatcher(nil, 1, nil, nil)
	require.ErrorIs(t, d.Run(context.Background()), ErrDispatcherNotConfigured)
}

func TestEnvelope_RoundTrip(t *testing.T) {
	req := require.New(t)
	conv, msg := sampleConversation()
	msg.ReadBy = []chat.ReadReceipt{{UserID: "u2", ReadAt: msg.CreatedAt.Add(time.Minute)}}
	evt := NewMessageEvent(conv, msg)

	payload, headers, err := Encode(evt, "")
	req.NoError(err)
	req.Equal("application/cloudevents+json", headers["content-type"])

	decoded, err := Decode(payload)
	req.NoError(err)
	req.Equal(evt.ID, decoded.ID)
	req.Equal(evt.Name, decoded.Name)
	req.Equal(evt.ConversationID, decoded.ConversationID)
	req.Equal(evt.Participants, decoded.Participants)
	req.Equal(msg.Body, decoded.Message.Body)
	req.True(msg.CreatedAt.Equal(decoded.Message.CreatedAt))
	req.Len(decoded.Message.ReadBy, 1)

	_, err = Decode([]byte("not json"))
	req.ErrorIs(err, ErrMalformedEnvelope)
	_, err = Decode([]byte(`{"id":"x"}`))
	req.ErrorIs(err, ErrMalformedEnvelope)
}
