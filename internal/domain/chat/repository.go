package chat

import (
	"context"
	"time"
)

// ConversationFilter narrows conversation listings. Results are ordered by
// LastActivity descending and start strictly after Before when it is set.
type ConversationFilter struct {
	ParticipantID string
	PropertyID    string
	Before        Cursor
	Limit         int
}

// ConversationRepository owns conversation metadata and the dedup index.
type ConversationRepository interface {
	// Create persists a new conversation or returns ErrConflict when another
	// conversation already holds the same dedup key.
	Create(ctx context.Context, conv *Conversation) error
	ByID(ctx context.Context, id ConversationID) (*Conversation, error)
	ByDedupKey(ctx context.Context, key string) (*Conversation, error)
	// TouchLastMessage advances LastMessageAt; it never moves it backwards.
	TouchLastMessage(ctx context.Context, id ConversationID, at time.Time) error
	List(ctx context.Context, filter ConversationFilter) ([]Conversation, error)
}

// MessageRepository is the append-only ledger storage.
type MessageRepository interface {
	Append(ctx context.Context, msg *Message) error
	// Page returns up to limit messages strictly after the cursor, ascending.
	Page(ctx context.Context, conversationID ConversationID, after Cursor, limit int) ([]Message, error)
	Latest(ctx context.Context, conversationID ConversationID) (*Message, error)
	ByID(ctx context.Context, conversationID ConversationID, id MessageID) (*Message, error)
	// MarkRead adds a receipt for userID to every message up to and including
	// upto that lacks one, returning how many receipts were added.
	MarkRead(ctx context.Context, conversationID ConversationID, userID string, upto Cursor, at time.Time) (int, error)
	// UnreadCount counts messages after the user's latest receipt that the user did not author.
	UnreadCount(ctx context.Context, conversationID ConversationID, userID string) (int, error)
}
