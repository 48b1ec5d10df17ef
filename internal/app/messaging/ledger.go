package messaging

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"propchat/internal/domain/chat"
)

// MessagePage is one forward page of a conversation history. NextCursor is the
// key of the last returned message (or the request cursor when the page is
// empty) so callers can resume or poll from it.
type MessagePage struct {
	Items      []chat.Message
	NextCursor chat.Cursor
	HasMore    bool
}

// Ledger is the append-only message log of every conversation.
type Ledger struct {
	Registry      *Registry
	Conversations chat.ConversationRepository
	Messages      chat.MessageRepository
	Notifier      Notifier
	Logger        *slog.Logger
	Metrics       Metrics
	Now           func() time.Time
	NewID         func() string
	DefaultPage   int
	MaxPage       int

	locks keyedMutex
}

// Append stores a message from the actor. The message is fetchable before the
// conversation's lastMessageAt moves, and notification happens after both.
func (l *Ledger) Append(ctx context.Context, actor chat.Actor, id chat.ConversationID, body string) (*chat.Message, error) {
	conv, err := l.Registry.Authorize(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	body, err = chat.NormalizeBody(body)
	if err != nil {
		return nil, err
	}

	msg, err := l.appendLocked(ctx, conv, actor, body)
	if err != nil {
		return nil, err
	}

	metricsOrNop(l.Metrics).MessageAppended(msg.SenderRole)
	notifier := l.Notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}
	notifier.Notify(*conv, *msg)
	return msg, nil
}

func (l *Ledger) appendLocked(ctx context.Context, conv *chat.Conversation, actor chat.Actor, body string) (*chat.Message, error) {
	unlock := l.locks.Lock(string(conv.ID))
	defer unlock()

	createdAt := clock(l.Now).Truncate(time.Microsecond)
	latest, err := l.Messages.Latest(ctx, conv.ID)
	switch {
	case err == nil:
		if !createdAt.After(latest.CreatedAt) {
			createdAt = latest.CreatedAt.Add(time.Microsecond)
		}
	case !errors.Is(err, chat.ErrNotFound):
		return nil, fmt.Errorf("load latest message: %w", err)
	}

	newID := l.NewID
	if newID == nil {
		newID = newMessageID
	}
	msg := &chat.Message{
		ID:             chat.MessageID(newID()),
		ConversationID: conv.ID,
		SenderID:       actor.ID,
		SenderRole:     conv.SenderRole(actor),
		Body:           body,
		CreatedAt:      createdAt,
	}
	if err := l.Messages.Append(ctx, msg); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	if err := l.Conversations.TouchLastMessage(ctx, conv.ID, createdAt); err != nil {
		logWarn(l.Logger, "failed to update last message time", "conversation_id", conv.ID, "message_id", msg.ID, "err", err)
	} else if createdAt.After(conv.LastMessageAt) {
		conv.LastMessageAt = createdAt
	}
	return msg, nil
}

// List returns messages strictly after the page cursor in ascending order.
func (l *Ledger) List(ctx context.Context, actor chat.Actor, id chat.ConversationID, page chat.PageRequest) (MessagePage, error) {
	conv, err := l.Registry.Authorize(ctx, actor, id)
	if err != nil {
		return MessagePage{}, err
	}
	page = page.Normalized(l.DefaultPage, l.MaxPage)
	items, err := l.Messages.Page(ctx, conv.ID, page.Cursor, page.Limit)
	if err != nil {
		return MessagePage{}, fmt.Errorf("list messages: %w", err)
	}
	result := MessagePage{Items: items, NextCursor: page.Cursor, HasMore: len(items) == page.Limit}
	if len(items) > 0 {
		result.NextCursor = items[len(items)-1].Key()
	}
	return result, nil
}

// MarkRead records that the actor has read every message up to and including
// upto. An empty upto marks the whole history. Repeating the call adds nothing.
func (l *Ledger) MarkRead(ctx context.Context, actor chat.Actor, id chat.ConversationID, upto chat.MessageID) (int, error) {
	conv, err := l.Registry.Authorize(ctx, actor, id)
	if err != nil {
		return 0, err
	}

	var target *chat.Message
	if strings.TrimSpace(string(upto)) == "" {
		target, err = l.Messages.Latest(ctx, conv.ID)
		if errors.Is(err, chat.ErrNotFound) {
			return 0, nil
		}
	} else {
		target, err = l.Messages.ByID(ctx, conv.ID, upto)
		if errors.Is(err, chat.ErrNotFound) {
			return 0, fmt.Errorf("%w: message %s is not part of this conversation", chat.ErrNotFound, upto)
		}
	}
	if err != nil {
		return 0, fmt.Errorf("load read target: %w", err)
	}

	added, err := l.Messages.MarkRead(ctx, conv.ID, actor.ID, target.Key(), clock(l.Now))
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	if added > 0 {
		metricsOrNop(l.Metrics).ReceiptsAdded(added)
	}
	return added, nil
}

// Stream walks the whole history page by page.
func (l *Ledger) Stream(ctx context.Context, actor chat.Actor, id chat.ConversationID, pageSize int) iter.Seq2[chat.Message, error] {
	return Stream(ctx, l.List, actor, id, pageSize)
}

// PageFunc fetches one page of messages; both Ledger.List and Core.Messages fit.
type PageFunc func(ctx context.Context, actor chat.Actor, id chat.ConversationID, page chat.PageRequest) (MessagePage, error)

// Stream lazily yields every message of a conversation. Pages are fetched on
// demand and iteration stops at the first error or when the consumer breaks.
func Stream(ctx context.Context, fetch PageFunc, actor chat.Actor, id chat.ConversationID, pageSize int) iter.Seq2[chat.Message, error] {
	return func(yield func(chat.Message, error) bool) {
		cursor := chat.Cursor{}
		for {
			page, err := fetch(ctx, actor, id, chat.PageRequest{Cursor: cursor, Limit: pageSize})
			if err != nil {
				yield(chat.Message{}, err)
				return
			}
			for _, msg := range page.Items {
				if !yield(msg, nil) {
					return
				}
			}
			if !page.HasMore || len(page.Items) == 0 {
				return
			}
			cursor = page.NextCursor
		}
	}
}
