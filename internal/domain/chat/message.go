package chat

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxBodyLength caps message bodies, counted in runes.
const MaxBodyLength = 4000

type MessageID string

type ReadReceipt struct {
	UserID string
	ReadAt time.Time
}

type Message struct {
	ID             MessageID
	ConversationID ConversationID
	SenderID       string
	SenderRole     Role
	Body           string
	CreatedAt      time.Time
	ReadBy         []ReadReceipt
}

// Key returns the total ordering key of the message.
func (m *Message) Key() Cursor {
	return Cursor{At: m.CreatedAt, ID: string(m.ID)}
}

func (m *Message) ReadByUser(userID string) bool {
	for _, r := range m.ReadBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// ReadByOtherThanSender reports whether anybody besides the author has read the message.
func (m *Message) ReadByOtherThanSender() bool {
	for _, r := range m.ReadBy {
		if r.UserID != m.SenderID {
			return true
		}
	}
	return false
}

func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	cp := *m
	cp.ReadBy = append([]ReadReceipt(nil), m.ReadBy...)
	return &cp
}

// NormalizeBody trims the body and rejects blank or oversized payloads.
func NormalizeBody(body string) (string, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return "", fmt.Errorf("%w: message text is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(trimmed) > MaxBodyLength {
		return "", fmt.Errorf("%w: message text exceeds %d characters", ErrInvalidInput, MaxBodyLength)
	}
	return trimmed, nil
}

// Preview shortens a body for list views.
func Preview(body string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(strings.TrimSpace(body))
	if len(runes) <= max {
		return string(runes)
	}
	return string(runes[:max]) + "…"
}
