package mongo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"propchat/internal/domain/chat"
)

const duplicateKeyCode = 11000

func TestConversationRepository_Create(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	conv, err := chat.NewConversation(chat.NewConversationParams{
		ID:            "c-1",
		PropertyID:    "prop-1",
		InitiatorID:   "buyer-1",
		CounterpartID: "seller-1",
		Now:           time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	mt.Run("should insert a new conversation", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		require.NoError(mt, NewConversationRepository(mt.DB).Create(context.Background(), conv))
	})

	mt.Run("should map a dedup index violation to a conflict", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    duplicateKeyCode,
			Message: "E11000 duplicate key error collection: propchat.conversations index: dedup_key_1",
		}))
		err := NewConversationRepository(mt.DB).Create(context.Background(), conv)
		require.ErrorIs(mt, err, chat.ErrConflict)
	})

	mt.Run("should pass other write errors through", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 121, Message: "validation failed"}))
		err := NewConversationRepository(mt.DB).Create(context.Background(), conv)
		require.Error(mt, err)
		require.NotErrorIs(mt, err, chat.ErrConflict)
	})
}

func TestMessageRepository_MarkRead(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	upto := chat.Cursor{At: base, ID: "m-2"}

	mt.Run("should count only messages that gained a receipt", func(mt *mtest.T) {
		req := require.New(mt)
		repo := NewMessageRepository(mt.DB)

		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 2}, bson.E{Key: "nModified", Value: 2}))
		n, err := repo.MarkRead(context.Background(), "c-1", "seller-1", upto, base.Add(time.Minute))
		req.NoError(err)
		req.Equal(2, n)

		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))
		n, err = repo.MarkRead(context.Background(), "c-1", "seller-1", upto, base.Add(2*time.Minute))
		req.NoError(err)
		req.Zero(n)
	})
}

func TestUnreadUpTo_GuardsExistingReceipts(t *testing.T) {
	req := require.New(t)
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	filter := unreadUpTo("c-1", "seller-1", chat.Cursor{At: at, ID: "m-2"})

	req.Equal("c-1", filter["conversation_id"])
	req.Equal(bson.M{"$ne": "seller-1"}, filter["read_by.user_id"])
	req.Equal(keyAtOrBefore(chat.Cursor{At: at, ID: "m-2"}), filter["$or"])
}

func TestInbox_Seen(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("should report redelivered events as seen", func(mt *mtest.T) {
		req := require.New(mt)
		inbox := NewInbox(mt.DB, "gateway-a")

		mt.AddMockResponses(mtest.CreateSuccessResponse())
		seen, err := inbox.Seen(context.Background(), "evt-1")
		req.NoError(err)
		req.False(seen)

		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: duplicateKeyCode, Message: "E11000 duplicate key error"}))
		seen, err = inbox.Seen(context.Background(), "evt-1")
		req.NoError(err)
		req.True(seen)
	})
}
