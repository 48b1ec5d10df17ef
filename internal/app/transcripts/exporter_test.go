package transcripts_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"propchat/internal/app/messaging"
	"propchat/internal/app/transcripts"
	"propchat/internal/domain/chat"
	"propchat/internal/domain/properties"
	"propchat/internal/infra/storage/memory"
)

type bufferUploader struct {
	key, contentType string
	body             bytes.Buffer
	fail             error
}

func (u *bufferUploader) Upload(ctx context.Context, key string, reader io.Reader, contentType string) (string, error) {
	if u.fail != nil {
		return "", u.fail
	}
	u.key, u.contentType = key, contentType
	if _, err := io.Copy(&u.body, reader); err != nil {
		return "", err
	}
	return "https://s3.local/" + key, nil
}

var (
	buyer  = chat.Actor{ID: "buyer-1", Role: chat.RoleBuyer}
	seller = chat.Actor{ID: "seller-1", Role: chat.RoleSeller}
	admin  = chat.Actor{ID: "admin-1", Role: chat.RoleAdmin}
)

func seed(t *testing.T, messages int) (*messaging.Service, chat.ConversationID) {
	t.Helper()
	props := memory.NewPropertyDirectory()
	require.NoError(t, props.Put(properties.Property{ID: "p1", ContactID: seller.ID}))
	svc := messaging.NewService(messaging.Deps{
		Conversations: memory.NewConversationRepository(),
		Messages:      memory.NewMessageRepository(),
		Properties:    props,
	})
	conv, _, err := svc.FindOrCreate(context.Background(), buyer, "p1")
	require.NoError(t, err)
	for i := 0; i < messages; i++ {
		_, err := svc.Append(context.Background(), buyer, conv.ID, fmt.Sprintf("message %d", i))
		require.NoError(t, err)
	}
	return svc, conv.ID
}

func TestExporter_Export(t *testing.T) {
	ctx := context.Background()

	t.Run("should stream every message into the upload", func(t *testing.T) {
		req := require.New(t)
		svc, id := seed(t, 7)
		uploader := &bufferUploader{}
		exporter := &transcripts.Exporter{
			Core:     svc,
			Uploader: uploader,
			PageSize: 3,
			Now:      func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) },
		}

		res, err := exporter.Export(ctx, admin, id)
		req.NoError(err)
		req.Equal(7, res.Messages)
		req.Equal(fmt.Sprintf("transcripts/%s/20250301T100000Z.json", id), res.Key)
		req.Equal("https://s3.local/"+res.Key, res.URL)
		req.Equal("application/json", uploader.contentType)

		var doc struct {
			Conversation struct {
				ID string `json:"id"`
			} `json:"conversation"`
			ExportedBy string `json:"exportedBy"`
			Messages   []struct {
				Text string `json:"text"`
			} `json:"messages"`
		}
		req.NoError(json.Unmarshal(uploader.body.Bytes(), &doc))
		req.Equal(string(id), doc.Conversation.ID)
		req.Equal(admin.ID, doc.ExportedBy)
		req.Len(doc.Messages, 7)
		req.Equal("message 0", doc.Messages[0].Text)
		req.Equal("message 6", doc.Messages[6].Text)
	})

	t.Run("should export an empty conversation as valid json", func(t *testing.T) {
		req := require.New(t)
		svc, id := seed(t, 0)
		uploader := &bufferUploader{}
		res, err := (&transcripts.Exporter{Core: svc, Uploader: uploader}).Export(ctx, admin, id)
		req.NoError(err)
		req.Zero(res.Messages)
		req.True(json.Valid(uploader.body.Bytes()))
	})

	t.Run("should be admin only", func(t *testing.T) {
		req := require.New(t)
		svc, id := seed(t, 1)
		exporter := &transcripts.Exporter{Core: svc, Uploader: &bufferUploader{}}
		_, err := exporter.Export(ctx, buyer, id)
		req.ErrorIs(err, chat.ErrForbidden)
		_, err = exporter.Export(ctx, admin, "missing")
		req.ErrorIs(err, chat.ErrNotFound)
	})

	t.Run("should report upload failures", func(t *testing.T) {
		req := require.New(t)
		svc, id := seed(t, 3)
		boom := errors.New("bucket gone")
		_, err := (&transcripts.Exporter{Core: svc, Uploader: &bufferUploader{fail: boom}}).Export(ctx, admin, id)
		req.ErrorIs(err, boom)
	})

	t.Run("should refuse to run unconfigured", func(t *testing.T) {
		var exporter *transcripts.Exporter
		_, err := exporter.Export(ctx, admin, "c")
		require.ErrorIs(t, err, transcripts.ErrNotConfigured)
	})
}
