package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"propchat/internal/domain/chat"
)

// MessageRepository is an in-memory ledger. Each conversation has its own log
// and lock so writers on different conversations never contend.
type MessageRepository struct {
	mu   sync.RWMutex
	logs map[chat.ConversationID]*messageLog
}

type messageLog struct {
	mu    sync.RWMutex
	items []*chat.Message
}

func NewMessageRepository() *MessageRepository {
	return &MessageRepository{logs: make(map[chat.ConversationID]*messageLog)}
}

func (r *MessageRepository) log(id chat.ConversationID, create bool) *messageLog {
	r.mu.RLock()
	l, ok := r.logs[id]
	r.mu.RUnlock()
	if ok || !create {
		return l
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok = r.logs[id]; ok {
		return l
	}
	l = &messageLog{}
	r.logs[id] = l
	return l
}

func (r *MessageRepository) Append(ctx context.Context, msg *chat.Message) error {
	if msg == nil || msg.ID == "" || msg.ConversationID == "" {
		return chat.ErrInvalidInput
	}
	l := r.log(msg.ConversationID, true)
	l.mu.Lock()
	defer l.mu.Unlock()
	key := msg.Key()
	idx := sort.Search(len(l.items), func(i int) bool {
		return l.items[i].Key().After(key)
	})
	if idx > 0 && l.items[idx-1].ID == msg.ID {
		return chat.ErrConflict
	}
	l.items = append(l.items, nil)
	copy(l.items[idx+1:], l.items[idx:])
	l.items[idx] = msg.Clone()
	return nil
}

func (r *MessageRepository) Page(ctx context.Context, conversationID chat.ConversationID, after chat.Cursor, limit int) ([]chat.Message, error) {
	l := r.log(conversationID, false)
	if l == nil {
		return []chat.Message{}, nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	start := 0
	if !after.IsZero() {
		start = sort.Search(len(l.items), func(i int) bool {
			return l.items[i].Key().After(after)
		})
	}
	end := len(l.items)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	out := make([]chat.Message, 0, end-start)
	for _, msg := range l.items[start:end] {
		out = append(out, *msg.Clone())
	}
	return out, nil
}

func (r *MessageRepository) Latest(ctx context.Context, conversationID chat.ConversationID) (*chat.Message, error) {
	l := r.log(conversationID, false)
	if l == nil {
		return nil, chat.ErrNotFound
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.items) == 0 {
		return nil, chat.ErrNotFound
	}
	return l.items[len(l.items)-1].Clone(), nil
}

func (r *MessageRepository) ByID(ctx context.Context, conversationID chat.ConversationID, id chat.MessageID) (*chat.Message, error) {
	l := r.log(conversationID, false)
	if l == nil {
		return nil, chat.ErrNotFound
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, msg := range l.items {
		if msg.ID == id {
			return msg.Clone(), nil
		}
	}
	return nil, chat.ErrNotFound
}

func (r *MessageRepository) MarkRead(ctx context.Context, conversationID chat.ConversationID, userID string, upto chat.Cursor, at time.Time) (int, error) {
	l := r.log(conversationID, false)
	if l == nil {
		return 0, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	added := 0
	for _, msg := range l.items {
		if msg.Key().After(upto) {
			break
		}
		if msg.ReadByUser(userID) {
			continue
		}
		msg.ReadBy = append(msg.ReadBy, chat.ReadReceipt{UserID: userID, ReadAt: at.UTC()})
		added++
	}
	return added, nil
}

func (r *MessageRepository) UnreadCount(ctx context.Context, conversationID chat.ConversationID, userID string) (int, error) {
	l := r.log(conversationID, false)
	if l == nil {
		return 0, nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	start := 0
	for i := len(l.items) - 1; i >= 0; i-- {
		if l.items[i].ReadByUser(userID) {
			start = i + 1
			break
		}
	}
	unread := 0
	for _, msg := range l.items[start:] {
		if msg.SenderID != userID {
			unread++
		}
	}
	return unread, nil
}

var _ chat.MessageRepository = (*MessageRepository)(nil)
