package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"propchat/internal/domain/chat"
)

const conversationColumns = `id, property_id, participant_ids, initiator_id, counterpart_id, created_at, last_message_at`

type ConversationRepository struct {
	db DB
}

func NewConversationRepository(db DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// Create relies on the unique dedup_key: a losing concurrent insert affects
// no rows and is reported as a conflict.
func (r *ConversationRepository) Create(ctx context.Context, conv *chat.Conversation) error {
	if r == nil || r.db == nil {
		return errNoPool
	}
	tag, err := r.db.Exec(ctx, `
		INSERT INTO chat_conversations (`+conversationColumns+`, dedup_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT DO NOTHING
	`, string(conv.ID), conv.PropertyID, conv.ParticipantIDs, conv.InitiatorID, conv.CounterpartID,
		conv.CreatedAt, conv.LastActivity(), conv.DedupKey())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return chat.ErrConflict
	}
	return nil
}

func (r *ConversationRepository) ByID(ctx context.Context, id chat.ConversationID) (*chat.Conversation, error) {
	return r.queryOne(ctx, `SELECT `+conversationColumns+` FROM chat_conversations WHERE id = $1`, string(id))
}

func (r *ConversationRepository) ByDedupKey(ctx context.Context, key string) (*chat.Conversation, error) {
	return r.queryOne(ctx, `SELECT `+conversationColumns+` FROM chat_conversations WHERE dedup_key = $1`, key)
}

func (r *ConversationRepository) queryOne(ctx context.Context, sql string, args ...any) (*chat.Conversation, error) {
	if r == nil || r.db == nil {
		return nil, errNoPool
	}
	conv, err := scanConversation(r.db.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, chat.ErrNotFound
	}
	return conv, err
}

func (r *ConversationRepository) TouchLastMessage(ctx context.Context, id chat.ConversationID, at time.Time) error {
	if r == nil || r.db == nil {
		return errNoPool
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE chat_conversations SET last_message_at = GREATEST(last_message_at, $2) WHERE id = $1`,
		string(id), at.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return chat.ErrNotFound
	}
	return nil
}

func (r *ConversationRepository) List(ctx context.Context, filter chat.ConversationFilter) ([]chat.Conversation, error) {
	if r == nil || r.db == nil {
		return nil, errNoPool
	}
	sql, args := listQuery(filter)
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]chat.Conversation, 0)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *conv)
	}
	return items, rows.Err()
}

func listQuery(filter chat.ConversationFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.ParticipantID != "" {
		where = append(where, arg(filter.ParticipantID)+" = ANY(participant_ids)")
	}
	if filter.PropertyID != "" {
		where = append(where, "property_id = "+arg(filter.PropertyID))
	}
	if !filter.Before.IsZero() {
		where = append(where, fmt.Sprintf("(last_message_at, id) < (%s, %s)", arg(filter.Before.At.UTC()), arg(filter.Before.ID)))
	}
	var b strings.Builder
	b.WriteString("SELECT " + conversationColumns + " FROM chat_conversations")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY last_message_at DESC, id DESC")
	if filter.Limit > 0 {
		b.WriteString(" LIMIT " + arg(filter.Limit))
	}
	return b.String(), args
}

func scanConversation(row pgx.Row) (*chat.Conversation, error) {
	var (
		conv chat.Conversation
		id   string
	)
	if err := row.Scan(&id, &conv.PropertyID, &conv.ParticipantIDs, &conv.InitiatorID, &conv.CounterpartID, &conv.CreatedAt, &conv.LastMessageAt); err != nil {
		return nil, err
	}
	conv.ID = chat.ConversationID(id)
	conv.CreatedAt = conv.CreatedAt.UTC()
	conv.LastMessageAt = conv.LastMessageAt.UTC()
	return &conv, nil
}

var _ chat.ConversationRepository = (*ConversationRepository)(nil)
