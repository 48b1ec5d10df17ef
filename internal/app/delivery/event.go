package delivery

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"propchat/internal/app/dto"
	"propchat/internal/domain/chat"
)

const (
	EventMessageCreated = "chat.message.created"
	defaultSource       = "app://propchat"
)

var ErrMalformedEnvelope = errors.New("delivery: malformed envelope")

// Event is one fan-out unit: a freshly stored message and who may see it.
type Event struct {
	ID             string
	Name           string
	ConversationID chat.ConversationID
	PropertyID     string
	Participants   []string
	Message        chat.Message
	OccurredAt     time.Time
}

func NewMessageEvent(conv chat.Conversation, msg chat.Message) Event {
	return Event{
		ID:             uuid.NewString(),
		Name:           EventMessageCreated,
		ConversationID: conv.ID,
		PropertyID:     conv.PropertyID,
		Participants:   append([]string(nil), conv.ParticipantIDs...),
		Message:        msg,
		OccurredAt:     msg.CreatedAt,
	}
}

// Addressed reports whether userID participates in the event's conversation.
func (e Event) Addressed(userID string) bool {
	for _, id := range e.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

type eventData struct {
	ConversationID string      `json:"conversationId"`
	PropertyID     string      `json:"propertyId"`
	Participants   []string    `json:"participants"`
	Message        dto.Message `json:"message"`
}

type envelope struct {
	SpecVersion     string          `json:"specversion"`
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	Source          string          `json:"source"`
	Time            time.Time       `json:"time"`
	DataContentType string          `json:"datacontenttype"`
	Data            json.RawMessage `json:"data"`
}

// Encode wraps the event in a CloudEvents JSON envelope for the bridges.
func Encode(evt Event, source string) ([]byte, map[string]string, error) {
	if source == "" {
		source = defaultSource
	}
	data, err := json.Marshal(eventData{
		ConversationID: string(evt.ConversationID),
		PropertyID:     evt.PropertyID,
		Participants:   evt.Participants,
		Message:        dto.MapMessage(evt.Message),
	})
	if err != nil {
		return nil, nil, err
	}
	payload, err := json.Marshal(envelope{
		SpecVersion:     "1.0",
		ID:              evt.ID,
		Type:            evt.Name + ".v1",
		Source:          source,
		Time:            evt.OccurredAt,
		DataContentType: "application/json",
		Data:            data,
	})
	if err != nil {
		return nil, nil, err
	}
	headers := map[string]string{
		"content-type": "application/cloudevents+json",
		"ce-type":      evt.Name,
	}
	return payload, headers, nil
}

func Decode(payload []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.SpecVersion == "" || len(env.Data) == 0 {
		return Event{}, ErrMalformedEnvelope
	}
	var data eventData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return Event{
		ID:             env.ID,
		Name:           strings.TrimSuffix(env.Type, ".v1"),
		ConversationID: chat.ConversationID(data.ConversationID),
		PropertyID:     data.PropertyID,
		Participants:   data.Participants,
		Message:        data.Message.Domain(),
		OccurredAt:     env.Time,
	}, nil
}
