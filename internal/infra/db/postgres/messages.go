package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"propchat/internal/domain/chat"
)

const messageColumns = `id, conversation_id, sender_id, sender_role, body, created_at`

// MessageRepository keeps the ledger in chat_messages and receipts in
// chat_message_reads, one row per (message, reader).
type MessageRepository struct {
	db DB
}

func NewMessageRepository(db DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Append(ctx context.Context, msg *chat.Message) error {
	if r == nil || r.db == nil {
		return errNoPool
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO chat_messages (`+messageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, string(msg.ID), string(msg.ConversationID), msg.SenderID, string(msg.SenderRole), msg.Body, msg.CreatedAt.UTC())
	if err != nil {
		return err
	}
	for _, rr := range msg.ReadBy {
		if _, err := r.db.Exec(ctx,
			`INSERT INTO chat_message_reads (message_id, user_id, read_at) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
			string(msg.ID), rr.UserID, rr.ReadAt.UTC()); err != nil {
			return err
		}
	}
	return nil
}

func (r *MessageRepository) Page(ctx context.Context, conversationID chat.ConversationID, after chat.Cursor, limit int) ([]chat.Message, error) {
	if r == nil || r.db == nil {
		return nil, errNoPool
	}
	if limit <= 0 {
		limit = chat.MaxPageSize
	}
	var (
		rows pgx.Rows
		err  error
	)
	if after.IsZero() {
		rows, err = r.db.Query(ctx, `
			SELECT `+messageColumns+` FROM chat_messages
			WHERE conversation_id = $1
			ORDER BY created_at, id LIMIT $2
		`, string(conversationID), limit)
	} else {
		rows, err = r.db.Query(ctx, `
			SELECT `+messageColumns+` FROM chat_messages
			WHERE conversation_id = $1 AND (created_at, id) > ($2, $3)
			ORDER BY created_at, id LIMIT $4
		`, string(conversationID), after.At.UTC(), after.ID, limit)
	}
	if err != nil {
		return nil, err
	}
	items, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}
	return items, r.attachReceipts(ctx, items)
}

func (r *MessageRepository) Latest(ctx context.Context, conversationID chat.ConversationID) (*chat.Message, error) {
	return r.queryOne(ctx, `
		SELECT `+messageColumns+` FROM chat_messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC, id DESC LIMIT 1
	`, string(conversationID))
}

func (r *MessageRepository) ByID(ctx context.Context, conversationID chat.ConversationID, id chat.MessageID) (*chat.Message, error) {
	return r.queryOne(ctx, `SELECT `+messageColumns+` FROM chat_messages WHERE conversation_id = $1 AND id = $2`,
		string(conversationID), string(id))
}

// MarkRead inserts the missing receipts in one statement; the primary key
// makes repeats no-ops, so the affected row count is exact.
func (r *MessageRepository) MarkRead(ctx context.Context, conversationID chat.ConversationID, userID string, upto chat.Cursor, at time.Time) (int, error) {
	if r == nil || r.db == nil {
		return 0, errNoPool
	}
	tag, err := r.db.Exec(ctx, `
		INSERT INTO chat_message_reads (message_id, user_id, read_at)
		SELECT id, $2::text, $5::timestamptz FROM chat_messages
		WHERE conversation_id = $1 AND (created_at, id) <= ($3, $4)
		ON CONFLICT DO NOTHING
	`, string(conversationID), userID, upto.At.UTC(), upto.ID, at.UTC())
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *MessageRepository) UnreadCount(ctx context.Context, conversationID chat.ConversationID, userID string) (int, error) {
	if r == nil || r.db == nil {
		return 0, errNoPool
	}
	var (
		lastAt time.Time
		lastID string
	)
	err := r.db.QueryRow(ctx, `
		SELECT m.created_at, m.id FROM chat_messages m
		JOIN chat_message_reads rr ON rr.message_id = m.id
		WHERE m.conversation_id = $1 AND rr.user_id = $2
		ORDER BY m.created_at DESC, m.id DESC LIMIT 1
	`, string(conversationID), userID).Scan(&lastAt, &lastID)
	var count int
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		err = r.db.QueryRow(ctx,
			`SELECT count(*) FROM chat_messages WHERE conversation_id = $1 AND sender_id <> $2`,
			string(conversationID), userID).Scan(&count)
	case err == nil:
		err = r.db.QueryRow(ctx, `
			SELECT count(*) FROM chat_messages
			WHERE conversation_id = $1 AND sender_id <> $2 AND (created_at, id) > ($3, $4)
		`, string(conversationID), userID, lastAt, lastID).Scan(&count)
	}
	return count, err
}

func (r *MessageRepository) queryOne(ctx context.Context, sql string, args ...any) (*chat.Message, error) {
	if r == nil || r.db == nil {
		return nil, errNoPool
	}
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	items, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, chat.ErrNotFound
	}
	if err := r.attachReceipts(ctx, items); err != nil {
		return nil, err
	}
	return &items[0], nil
}

func (r *MessageRepository) attachReceipts(ctx context.Context, items []chat.Message) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]string, 0, len(items))
	index := make(map[string]int, len(items))
	for i, msg := range items {
		ids = append(ids, string(msg.ID))
		index[string(msg.ID)] = i
	}
	rows, err := r.db.Query(ctx, `
		SELECT message_id, user_id, read_at FROM chat_message_reads
		WHERE message_id = ANY($1)
		ORDER BY read_at, user_id
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			messageID string
			receipt   chat.ReadReceipt
		)
		if err := rows.Scan(&messageID, &receipt.UserID, &receipt.ReadAt); err != nil {
			return err
		}
		receipt.ReadAt = receipt.ReadAt.UTC()
		if i, ok := index[messageID]; ok {
			items[i].ReadBy = append(items[i].ReadBy, receipt)
		}
	}
	return rows.Err()
}

func collectMessages(rows pgx.Rows) ([]chat.Message, error) {
	defer rows.Close()
	items := make([]chat.Message, 0)
	for rows.Next() {
		var (
			msg                   chat.Message
			id, conversationID, r string
		)
		if err := rows.Scan(&id, &conversationID, &msg.SenderID, &r, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.ID = chat.MessageID(id)
		msg.ConversationID = chat.ConversationID(conversationID)
		msg.SenderRole = chat.Role(r)
		msg.CreatedAt = msg.CreatedAt.UTC()
		items = append(items, msg)
	}
	return items, rows.Err()
}

var _ chat.MessageRepository = (*MessageRepository)(nil)
