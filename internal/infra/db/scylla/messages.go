package scylla

import (
	"context"
	"time"

	"github.com/gocql/gocql"

	"propchat/internal/domain/chat"
)

const messageColumns = `conversation_id, created_at, message_id, sender_id, sender_role, body, read_by`

type MessageRepository struct {
	store *Store
}

func (r *MessageRepository) Append(ctx context.Context, msg *chat.Message) error {
	if r.store.session == nil {
		return errNoSession
	}
	receipts := make(map[string]int64, len(msg.ReadBy))
	for _, rr := range msg.ReadBy {
		receipts[rr.UserID] = micros(rr.ReadAt)
	}
	return r.store.session.
		Query(`INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			string(msg.ConversationID), micros(msg.CreatedAt), string(msg.ID), msg.SenderID, string(msg.SenderRole), msg.Body, receipts).
		WithContext(ctx).
		Consistency(gocql.Quorum).
		Exec()
}

func (r *MessageRepository) Page(ctx context.Context, conversationID chat.ConversationID, after chat.Cursor, limit int) ([]chat.Message, error) {
	if r.store.session == nil {
		return nil, errNoSession
	}
	if limit <= 0 {
		limit = chat.MaxPageSize
	}
	var q *gocql.Query
	if after.IsZero() {
		q = r.store.session.Query(`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? LIMIT ?`,
			string(conversationID), limit)
	} else {
		q = r.store.session.Query(`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? AND (created_at, message_id) > (?, ?) LIMIT ?`,
			string(conversationID), micros(after.At), after.ID, limit)
	}
	return collect(q.WithContext(ctx).Iter())
}

func (r *MessageRepository) Latest(ctx context.Context, conversationID chat.ConversationID) (*chat.Message, error) {
	if r.store.session == nil {
		return nil, errNoSession
	}
	items, err := collect(r.store.session.
		Query(`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? ORDER BY created_at DESC, message_id DESC LIMIT 1`, string(conversationID)).
		WithContext(ctx).
		Iter())
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, chat.ErrNotFound
	}
	return &items[0], nil
}

func (r *MessageRepository) ByID(ctx context.Context, conversationID chat.ConversationID, id chat.MessageID) (*chat.Message, error) {
	if r.store.session == nil {
		return nil, errNoSession
	}
	items, err := collect(r.store.session.
		Query(`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? AND message_id = ? ALLOW FILTERING`, string(conversationID), string(id)).
		WithContext(ctx).
		Iter())
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, chat.ErrNotFound
	}
	return &items[0], nil
}

// MarkRead writes one receipt per unread message up to the cursor. Each write
// is conditional on the user having no receipt yet, so receipts are never
// overwritten and concurrent marks by the same user count each message once.
func (r *MessageRepository) MarkRead(ctx context.Context, conversationID chat.ConversationID, userID string, upto chat.Cursor, at time.Time) (int, error) {
	if r.store.session == nil {
		return 0, errNoSession
	}
	iter := r.store.session.
		Query(`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? AND (created_at, message_id) <= (?, ?)`,
			string(conversationID), micros(upto.At), upto.ID).
		WithContext(ctx).
		Iter()
	pending, err := collect(iter)
	if err != nil {
		return 0, err
	}
	return addReceipts(pending, userID, func(msg chat.Message) (bool, error) {
		return r.store.session.
			Query(`UPDATE messages SET read_by[?] = ? WHERE conversation_id = ? AND created_at = ? AND message_id = ? IF read_by[?] = null`,
				userID, micros(at), string(conversationID), micros(msg.CreatedAt), string(msg.ID), userID).
			WithContext(ctx).
			SerialConsistency(gocql.LocalSerial).
			MapScanCAS(map[string]any{})
	})
}

// addReceipts applies a receipt to every message the user has not read and
// counts the writes that took effect.
func addReceipts(pending []chat.Message, userID string, apply func(chat.Message) (bool, error)) (int, error) {
	added := 0
	for _, msg := range pending {
		if msg.ReadByUser(userID) {
			continue
		}
		applied, err := apply(msg)
		if err != nil {
			return added, err
		}
		if applied {
			added++
		}
	}
	return added, nil
}

func (r *MessageRepository) UnreadCount(ctx context.Context, conversationID chat.ConversationID, userID string) (int, error) {
	if r.store.session == nil {
		return 0, errNoSession
	}
	items, err := collect(r.store.session.
		Query(`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ?`, string(conversationID)).
		WithContext(ctx).
		Iter())
	if err != nil {
		return 0, err
	}
	return unreadAfterLastReceipt(items, userID), nil
}

// unreadAfterLastReceipt counts messages past the user's newest receipt that
// the user did not write. items must be in ledger order.
func unreadAfterLastReceipt(items []chat.Message, userID string) int {
	start := 0
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].ReadByUser(userID) {
			start = i + 1
			break
		}
	}
	unread := 0
	for _, msg := range items[start:] {
		if msg.SenderID != userID {
			unread++
		}
	}
	return unread
}

func collect(iter *gocql.Iter) ([]chat.Message, error) {
	out := make([]chat.Message, 0)
	var row messageRow
	for iter.Scan(row.dest()...) {
		out = append(out, row.toDomain())
		row = messageRow{}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

type messageRow struct {
	ConversationID string
	CreatedAt      int64
	MessageID      string
	SenderID       string
	SenderRole     string
	Body           string
	ReadBy         map[string]int64
}

func (r *messageRow) dest() []any {
	return []any{&r.ConversationID, &r.CreatedAt, &r.MessageID, &r.SenderID, &r.SenderRole, &r.Body, &r.ReadBy}
}

func (r messageRow) toDomain() chat.Message {
	msg := chat.Message{
		ID:             chat.MessageID(r.MessageID),
		ConversationID: chat.ConversationID(r.ConversationID),
		SenderID:       r.SenderID,
		SenderRole:     chat.Role(r.SenderRole),
		Body:           r.Body,
		CreatedAt:      fromMicros(r.CreatedAt),
	}
	for userID, at := range r.ReadBy {
		msg.ReadBy = append(msg.ReadBy, chat.ReadReceipt{UserID: userID, ReadAt: fromMicros(at)})
	}
	sortReceipts(msg.ReadBy)
	return msg
}

var _ chat.MessageRepository = (*MessageRepository)(nil)
