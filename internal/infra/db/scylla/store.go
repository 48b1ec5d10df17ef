package scylla

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/gocql/gocql"

	"propchat/internal/domain/chat"
)

var errNoSession = errors.New("scylla session not initialized")

// Store implements the conversation and message repositories on Scylla.
type Store struct {
	session *gocql.Session
	logger  *slog.Logger
}

func NewStore(session *gocql.Session, logger *slog.Logger) *Store {
	return &Store{session: session, logger: logger}
}

func (s *Store) Ping(ctx context.Context) error {
	if s.session == nil {
		return errNoSession
	}
	return s.session.Query(`SELECT now() FROM system.local`).WithContext(ctx).Exec()
}

// Conversations returns the conversation repository view of the store.
func (s *Store) Conversations() *ConversationRepository { return &ConversationRepository{store: s} }

// Messages returns the message repository view of the store.
func (s *Store) Messages() *MessageRepository { return &MessageRepository{store: s} }

func notFound(err error) error {
	if errors.Is(err, gocql.ErrNotFound) {
		return chat.ErrNotFound
	}
	return err
}

func micros(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

func fromMicros(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}

// sortReceipts keeps receipts in read order; map iteration is random.
func sortReceipts(rs []chat.ReadReceipt) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].ReadAt.Equal(rs[j].ReadAt) {
			return rs[i].ReadAt.Before(rs[j].ReadAt)
		}
		return rs[i].UserID < rs[j].UserID
	})
}
