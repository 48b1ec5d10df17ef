package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"propchat/internal/domain/chat"
)

func TestListQuery(t *testing.T) {
	t.Run("should list everything newest first", func(t *testing.T) {
		req := require.New(t)
		sql, args := listQuery(chat.ConversationFilter{})
		req.Equal("SELECT "+conversationColumns+" FROM chat_conversations ORDER BY last_message_at DESC, id DESC", sql)
		req.Empty(args)
	})

	t.Run("should number placeholders in order", func(t *testing.T) {
		req := require.New(t)
		at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		sql, args := listQuery(chat.ConversationFilter{
			ParticipantID: "buyer-1",
			PropertyID:    "prop-1",
			Before:        chat.Cursor{At: at, ID: "c-9"},
			Limit:         20,
		})
		req.Contains(sql, "WHERE $1 = ANY(participant_ids) AND property_id = $2 AND (last_message_at, id) < ($3, $4)")
		req.Contains(sql, "LIMIT $5")
		req.Equal([]any{"buyer-1", "prop-1", at, "c-9", 20}, args)
	})
}

func TestNormalizeDSN(t *testing.T) {
	req := require.New(t)
	req.Equal("postgres://u:p@db:5432/chat", normalizeDSN("postgresql+asyncpg://u:p@db:5432/chat"))
	req.Equal("postgres://u:p@db/chat", normalizeDSN(" postgres://u:p@db/chat "))
}

func TestSchemaDeclaresDedupUniqueness(t *testing.T) {
	require.Contains(t, schemaSQL, "dedup_key       TEXT        NOT NULL UNIQUE")
	require.Contains(t, schemaSQL, "PRIMARY KEY (message_id, user_id)")
}
