package delivery

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"propchat/internal/app/messaging"
	"propchat/internal/domain/chat"
)

const (
	DefaultQueueSize      = 1024
	defaultDeliverTimeout = 5 * time.Second
)

var ErrDispatcherNotConfigured = errors.New("delivery: dispatcher missing sink")

// Sink delivers one event somewhere: the local session hub or a broker bridge.
type Sink interface {
	Deliver(ctx context.Context, evt Event) error
}

type SinkFunc func(ctx context.Context, evt Event) error

func (f SinkFunc) Deliver(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}

type Metrics interface {
	NotificationQueued()
	NotificationDropped()
	NotificationFailed()
}

// Dispatcher decouples notification from the append path. Enqueueing never
// blocks; when the queue is full the event is dropped and counted.
type Dispatcher struct {
	Sink    Sink
	Logger  *slog.Logger
	Metrics Metrics
	Timeout time.Duration

	queue chan Event
}

func NewDispatcher(sink Sink, size int, logger *slog.Logger, metrics Metrics) *Dispatcher {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Dispatcher{
		Sink:    sink,
		Logger:  logger,
		Metrics: metrics,
		queue:   make(chan Event, size),
	}
}

// Notify satisfies messaging.Notifier.
func (d *Dispatcher) Notify(conv chat.Conversation, msg chat.Message) {
	d.Publish(NewMessageEvent(conv, msg))
}

// Publish enqueues an event and reports whether it was accepted.
func (d *Dispatcher) Publish(evt Event) bool {
	select {
	case d.queue <- evt:
		if d.Metrics != nil {
			d.Metrics.NotificationQueued()
		}
		return true
	default:
		if d.Metrics != nil {
			d.Metrics.NotificationDropped()
		}
		if d.Logger != nil {
			d.Logger.Warn("notification dropped, queue full", "conversation_id", evt.ConversationID, "message_id", evt.Message.ID)
		}
		return false
	}
}

// Run delivers queued events until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	if d.Sink == nil {
		return ErrDispatcherNotConfigured
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt := <-d.queue:
			d.deliver(ctx, evt)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, evt Event) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = defaultDeliverTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := d.Sink.Deliver(ctx, evt); err != nil {
		if d.Metrics != nil {
			d.Metrics.NotificationFailed()
		}
		if d.Logger != nil {
			d.Logger.Warn("notification failed", "conversation_id", evt.ConversationID, "message_id", evt.Message.ID, "err", err)
		}
	}
}

var _ messaging.Notifier = (*Dispatcher)(nil)
