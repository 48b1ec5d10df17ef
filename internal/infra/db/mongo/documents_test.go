package mongo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"propchat/internal/domain/chat"
)

func TestConversationDocument_RoundTrip(t *testing.T) {
	req := require.New(t)
	conv, err := chat.NewConversation(chat.NewConversationParams{
		ID:            "c-1",
		PropertyID:    "prop-1",
		InitiatorID:   "buyer-1",
		CounterpartID: "seller-1",
		Now:           time.Date(2025, 3, 1, 12, 0, 0, 123456789, time.UTC),
	})
	req.NoError(err)

	doc := newConversationDocument(conv)
	req.Equal(conv.DedupKey(), doc.DedupKey)

	raw, err := bson.Marshal(doc)
	req.NoError(err)
	var decoded conversationDocument
	req.NoError(bson.Unmarshal(raw, &decoded))
	req.Equal(conv, decoded.toDomain())
}

func TestMessageDocument_KeepsMicrosecondOrdering(t *testing.T) {
	req := require.New(t)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := chat.Message{
		ID:             "m-1",
		ConversationID: "c-1",
		SenderID:       "buyer-1",
		SenderRole:     chat.RoleBuyer,
		Body:           "hello",
		CreatedAt:      base.Add(time.Microsecond),
		ReadBy:         []chat.ReadReceipt{{UserID: "seller-1", ReadAt: base.Add(time.Second)}},
	}
	doc := newMessageDocument(&msg)
	req.Equal(micros(base)+1, doc.CreatedAt)
	req.Equal(msg, doc.toDomain())
}

func TestConversationQuery(t *testing.T) {
	t.Run("should stay empty without filters", func(t *testing.T) {
		require.Empty(t, conversationQuery(chat.ConversationFilter{}))
	})

	t.Run("should seek strictly past the cursor", func(t *testing.T) {
		req := require.New(t)
		at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		q := conversationQuery(chat.ConversationFilter{
			ParticipantID: "buyer-1",
			PropertyID:    "prop-1",
			Before:        chat.Cursor{At: at, ID: "c-9"},
		})
		req.Equal("buyer-1", q["participant_ids"])
		req.Equal("prop-1", q["property_id"])
		req.Equal(bson.A{
			bson.M{"last_message_at": bson.M{"$lt": micros(at)}},
			bson.M{"last_message_at": micros(at), "_id": bson.M{"$lt": "c-9"}},
		}, q["$or"])
	})
}

func TestListingDocument_ContactFallsBackToHost(t *testing.T) {
	req := require.New(t)
	req.Equal("host-1", listingDocument{ID: "l", HostID: "host-1"}.toProperty().ContactID)
	req.Equal("agent-1", listingDocument{ID: "l", HostID: "host-1", ContactID: "agent-1"}.toProperty().ContactID)
	req.False(listingDocument{ID: "l"}.toProperty().HasContact())
}
