package realtime

import (
	"encoding/json"

	"propchat/internal/app/dto"
)

const (
	FrameConnected    = "connected"
	FrameMessage      = "message"
	FrameInboxWatch   = "inbox.watch"
	FrameInboxUnwatch = "inbox.unwatch"
	FrameError        = "error"
)

// Frame is the JSON unit exchanged over the push channel in both directions.
type Frame struct {
	Type           string       `json:"type"`
	SessionID      string       `json:"sessionId,omitempty"`
	ConversationID string       `json:"conversationId,omitempty"`
	PropertyID     string       `json:"propertyId,omitempty"`
	Message        *dto.Message `json:"message,omitempty"`
	Error          string       `json:"error,omitempty"`
}

func encodeFrame(f Frame) []byte {
	payload, err := json.Marshal(f)
	if err != nil {
		payload, _ = json.Marshal(Frame{Type: FrameError, Error: "encoding failed"})
	}
	return payload
}
