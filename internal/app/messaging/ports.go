package messaging

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"propchat/internal/domain/chat"
)

// Notifier receives freshly appended messages. Implementations must not block.
type Notifier interface {
	Notify(conv chat.Conversation, msg chat.Message)
}

// Profiles resolves display names for summaries.
type Profiles interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// Metrics is the subset of instrumentation the core reports to.
type Metrics interface {
	ConversationCreated()
	ConversationReused()
	CreationConflict()
	MessageAppended(role chat.Role)
	ReceiptsAdded(n int)
}

type nopMetrics struct{}

func (nopMetrics) ConversationCreated() {}
func (nopMetrics) ConversationReused() {}
func (nopMetrics) CreationConflict() {}
func (nopMetrics) MessageAppended(chat.Role) {}
func (nopMetrics) ReceiptsAdded(int) {}

type nopNotifier struct{}

func (nopNotifier) Notify(chat.Conversation, chat.Message) {}

func metricsOrNop(m Metrics) Metrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}

func clock(now func() time.Time) time.Time {
	if now != nil {
		return now().UTC()
	}
	return time.Now().UTC()
}

func newConversationID() string {
	return uuid.NewString()
}

// newMessageID returns a UUIDv7 so ids created by one process sort in creation order.
func newMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func logWarn(logger *slog.Logger, msg string, attrs ...any) {
	if logger != nil {
		logger.Warn(msg, attrs...)
	}
}
