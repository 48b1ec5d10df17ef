package scylla

import (
	"context"
	"time"

	"github.com/gocql/gocql"

	"propchat/internal/domain/chat"
)

const conversationColumns = `id, property_id, participant_ids, initiator_id, counterpart_id, created_at, last_message_at`

type ConversationRepository struct {
	store *Store
}

// Create claims the dedup key with a lightweight transaction first, so only
// one of several racing creators ever writes a conversation row. The claim
// carries the whole conversation, which lets ByDedupKey restore the row if
// the second write never lands.
func (r *ConversationRepository) Create(ctx context.Context, conv *chat.Conversation) error {
	session := r.store.session
	if session == nil {
		return errNoSession
	}
	claim := newDedupClaim(conv)
	applied, err := session.
		Query(`INSERT INTO conversation_dedup (dedup_key, `+claimColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?) IF NOT EXISTS`,
			append([]any{conv.DedupKey()}, claim.values()...)...).
		WithContext(ctx).
		SerialConsistency(gocql.LocalSerial).
		MapScanCAS(map[string]any{})
	if err != nil {
		return err
	}
	if !applied {
		return chat.ErrConflict
	}
	return session.
		Query(`INSERT INTO conversations (`+conversationColumns+`, dedup_key) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			string(conv.ID), conv.PropertyID, conv.ParticipantIDs, conv.InitiatorID, conv.CounterpartID,
			micros(conv.CreatedAt), micros(conv.LastActivity()), conv.DedupKey()).
		WithContext(ctx).
		Consistency(gocql.Quorum).
		Exec()
}

func (r *ConversationRepository) ByID(ctx context.Context, id chat.ConversationID) (*chat.Conversation, error) {
	if r.store.session == nil {
		return nil, errNoSession
	}
	var row conversationRow
	err := r.store.session.
		Query(`SELECT `+conversationColumns+` FROM conversations WHERE id = ? LIMIT 1`, string(id)).
		WithContext(ctx).
		Scan(row.dest()...)
	if err != nil {
		return nil, notFound(err)
	}
	return row.toDomain(), nil
}

func (r *ConversationRepository) ByDedupKey(ctx context.Context, key string) (*chat.Conversation, error) {
	if r.store.session == nil {
		return nil, errNoSession
	}
	var claim dedupClaim
	err := r.store.session.
		Query(`SELECT `+claimColumns+` FROM conversation_dedup WHERE dedup_key = ?`, key).
		WithContext(ctx).
		SerialConsistency(gocql.LocalSerial).
		Scan(claim.dest()...)
	if err != nil {
		return nil, notFound(err)
	}
	return settleClaim(ctx, claim, r.ByID, r.restore)
}

// restore writes the conversation row a claim points at. IF NOT EXISTS keeps
// a late original write and a concurrent repair from clobbering each other.
func (r *ConversationRepository) restore(ctx context.Context, conv *chat.Conversation) error {
	_, err := r.store.session.
		Query(`INSERT INTO conversations (`+conversationColumns+`, dedup_key) VALUES (?, ?, ?, ?, ?, ?, ?, ?) IF NOT EXISTS`,
			string(conv.ID), conv.PropertyID, conv.ParticipantIDs, conv.InitiatorID, conv.CounterpartID,
			micros(conv.CreatedAt), micros(conv.LastActivity()), conv.DedupKey()).
		WithContext(ctx).
		SerialConsistency(gocql.LocalSerial).
		MapScanCAS(map[string]any{})
	return err
}

func (r *ConversationRepository) TouchLastMessage(ctx context.Context, id chat.ConversationID, at time.Time) error {
	if r.store.session == nil {
		return errNoSession
	}
	var current int64
	applied, err := r.store.session.
		Query(`UPDATE conversations SET last_message_at = ? WHERE id = ? IF last_message_at < ?`, micros(at), string(id), micros(at)).
		WithContext(ctx).
		SerialConsistency(gocql.LocalSerial).
		ScanCAS(&current)
	if err != nil {
		return err
	}
	if applied || current != 0 {
		return nil
	}
	// a failed condition on a missing row reports no current value
	if _, err := r.ByID(ctx, id); err != nil {
		return err
	}
	return nil
}

// List scans with ALLOW FILTERING and orders in memory. Fine for an inbox
// of this size; a per-participant index table is the next step if it grows.
func (r *ConversationRepository) List(ctx context.Context, filter chat.ConversationFilter) ([]chat.Conversation, error) {
	if r.store.session == nil {
		return nil, errNoSession
	}
	var q *gocql.Query
	switch {
	case filter.ParticipantID != "":
		q = r.store.session.Query(`SELECT `+conversationColumns+` FROM conversations WHERE participant_ids CONTAINS ? ALLOW FILTERING`, filter.ParticipantID)
	case filter.PropertyID != "":
		q = r.store.session.Query(`SELECT `+conversationColumns+` FROM conversations WHERE property_id = ? ALLOW FILTERING`, filter.PropertyID)
	default:
		q = r.store.session.Query(`SELECT ` + conversationColumns + ` FROM conversations`)
	}
	iter := q.WithContext(ctx).Consistency(gocql.One).Iter()
	var items []chat.Conversation
	var row conversationRow
	for iter.Scan(row.dest()...) {
		conv := row.toDomain()
		if filter.PropertyID != "" && conv.PropertyID != filter.PropertyID {
			continue
		}
		items = append(items, *conv)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return pageByActivity(items, filter), nil
}

// pageByActivity orders by activity and applies the keyset window.
func pageByActivity(items []chat.Conversation, filter chat.ConversationFilter) []chat.Conversation {
	chat.SortByActivity(items)
	if !filter.Before.IsZero() {
		start := len(items)
		for i := range items {
			if filter.Before.After(items[i].ActivityKey()) {
				start = i
				break
			}
		}
		items = items[start:]
	}
	if filter.Limit > 0 && len(items) > filter.Limit {
		items = items[:filter.Limit]
	}
	if items == nil {
		items = []chat.Conversation{}
	}
	return items
}

type conversationRow struct {
	ID            string
	PropertyID    string
	Participants  []string
	InitiatorID   string
	CounterpartID string
	CreatedAt     int64
	LastMessageAt int64
}

func (r *conversationRow) dest() []any {
	return []any{&r.ID, &r.PropertyID, &r.Participants, &r.InitiatorID, &r.CounterpartID, &r.CreatedAt, &r.LastMessageAt}
}

func (r conversationRow) toDomain() *chat.Conversation {
	return &chat.Conversation{
		ID:             chat.ConversationID(r.ID),
		PropertyID:     r.PropertyID,
		ParticipantIDs: chat.NormalizeParticipants(r.Participants),
		InitiatorID:    r.InitiatorID,
		CounterpartID:  r.CounterpartID,
		CreatedAt:      fromMicros(r.CreatedAt),
		LastMessageAt:  fromMicros(r.LastMessageAt),
	}
}

var _ chat.ConversationRepository = (*ConversationRepository)(nil)
