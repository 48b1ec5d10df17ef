package transcripts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"propchat/internal/app/dto"
	"propchat/internal/app/messaging"
	"propchat/internal/domain/chat"
)

const defaultPageSize = 200

var ErrNotConfigured = errors.New("transcripts: exporter is not configured")

// Uploader stores an object and returns a URL it can be fetched from.
type Uploader interface {
	Upload(ctx context.Context, key string, reader io.Reader, contentType string) (url string, err error)
}

type Result struct {
	URL      string
	Key      string
	Messages int
}

// Exporter writes a conversation transcript for support staff. Messages are
// streamed page by page straight into the upload.
type Exporter struct {
	Core     messaging.Core
	Uploader Uploader
	Logger   *slog.Logger
	PageSize int
	Now      func() time.Time
}

func (e *Exporter) Export(ctx context.Context, actor chat.Actor, id chat.ConversationID) (Result, error) {
	if e == nil || e.Core == nil || e.Uploader == nil {
		return Result{}, ErrNotConfigured
	}
	if !actor.Valid() {
		return Result{}, chat.ErrUnauthenticated
	}
	if !actor.IsAdmin() {
		return Result{}, chat.ErrForbidden
	}
	conv, err := e.Core.Conversation(ctx, actor, id)
	if err != nil {
		return Result{}, err
	}

	now := time.Now().UTC()
	if e.Now != nil {
		now = e.Now().UTC()
	}
	key := fmt.Sprintf("transcripts/%s/%s.json", conv.ID, now.Format("20060102T150405Z"))
	pageSize := e.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	reader, writer := io.Pipe()
	written := make(chan int, 1)
	go func() {
		n, err := e.write(ctx, writer, actor, conv, now, pageSize)
		_ = writer.CloseWithError(err)
		written <- n
	}()

	url, err := e.Uploader.Upload(ctx, key, reader, "application/json")
	// Unblock the writer if the upload gave up early.
	_ = reader.CloseWithError(io.ErrClosedPipe)
	count := <-written
	if err != nil {
		return Result{}, fmt.Errorf("upload transcript: %w", err)
	}
	if e.Logger != nil {
		e.Logger.Info("transcript exported", "conversation_id", conv.ID, "key", key, "messages", count, "admin_id", actor.ID)
	}
	return Result{URL: url, Key: key, Messages: count}, nil
}

type header struct {
	Conversation dto.Conversation `json:"conversation"`
	ExportedAt   time.Time        `json:"exportedAt"`
	ExportedBy   string           `json:"exportedBy"`
}

func (e *Exporter) write(ctx context.Context, w io.Writer, actor chat.Actor, conv chat.Conversation, at time.Time, pageSize int) (int, error) {
	head, err := json.Marshal(header{Conversation: dto.MapConversation(conv), ExportedAt: at, ExportedBy: actor.ID})
	if err != nil {
		return 0, err
	}
	// Reopen the header object to append the messages array.
	if _, err := w.Write(append(head[:len(head)-1], []byte(`,"messages":[`)...)); err != nil {
		return 0, err
	}
	count := 0
	for msg, err := range messaging.Stream(ctx, e.Core.Messages, actor, conv.ID, pageSize) {
		if err != nil {
			return count, err
		}
		raw, err := json.Marshal(dto.MapMessage(msg))
		if err != nil {
			return count, err
		}
		if count > 0 {
			if _, err := w.Write([]byte(",")); err != nil {
				return count, err
			}
		}
		if _, err := w.Write(raw); err != nil {
			return count, err
		}
		count++
	}
	_, err = w.Write([]byte("]}"))
	return count, err
}
