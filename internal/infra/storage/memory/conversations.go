package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"propchat/internal/domain/chat"
)

// ConversationRepository keeps conversations and their dedup index in memory.
type ConversationRepository struct {
	mu    sync.RWMutex
	byID  map[chat.ConversationID]*chat.Conversation
	byKey map[string]chat.ConversationID
}

func NewConversationRepository() *ConversationRepository {
	return &ConversationRepository{
		byID:  make(map[chat.ConversationID]*chat.Conversation),
		byKey: make(map[string]chat.ConversationID),
	}
}

func (r *ConversationRepository) Create(ctx context.Context, conv *chat.Conversation) error {
	if conv == nil || strings.TrimSpace(string(conv.ID)) == "" {
		return chat.ErrInvalidInput
	}
	key := conv.DedupKey()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byKey[key]; ok {
		return chat.ErrConflict
	}
	if _, ok := r.byID[conv.ID]; ok {
		return chat.ErrConflict
	}
	r.byID[conv.ID] = conv.Clone()
	r.byKey[key] = conv.ID
	return nil
}

func (r *ConversationRepository) ByID(ctx context.Context, id chat.ConversationID) (*chat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conv, ok := r.byID[id]
	if !ok {
		return nil, chat.ErrNotFound
	}
	return conv.Clone(), nil
}

func (r *ConversationRepository) ByDedupKey(ctx context.Context, key string) (*chat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byKey[key]
	if !ok {
		return nil, chat.ErrNotFound
	}
	return r.byID[id].Clone(), nil
}

func (r *ConversationRepository) TouchLastMessage(ctx context.Context, id chat.ConversationID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.byID[id]
	if !ok {
		return chat.ErrNotFound
	}
	if at.After(conv.LastMessageAt) {
		conv.LastMessageAt = at.UTC()
	}
	return nil
}

func (r *ConversationRepository) List(ctx context.Context, filter chat.ConversationFilter) ([]chat.Conversation, error) {
	r.mu.RLock()
	items := make([]chat.Conversation, 0, len(r.byID))
	for _, conv := range r.byID {
		if filter.ParticipantID != "" && !conv.HasParticipant(filter.ParticipantID) {
			continue
		}
		if filter.PropertyID != "" && conv.PropertyID != filter.PropertyID {
			continue
		}
		items = append(items, *conv.Clone())
	}
	r.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
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
	return items, nil
}

var _ chat.ConversationRepository = (*ConversationRepository)(nil)
