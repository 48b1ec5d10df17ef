package dto

import (
	"time"

	"propchat/internal/app/messaging"
	"propchat/internal/domain/chat"
)

// Conversation describes chat metadata.
type Conversation struct {
	ID             string    `json:"id"`
	PropertyID     string    `json:"propertyId"`
	ParticipantIDs []string  `json:"participantIds"`
	InitiatorID    string    `json:"initiatorId,omitempty"`
	CounterpartID  string    `json:"counterpartId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	LastMessageAt  time.Time `json:"lastMessageAt"`
}

type ReadReceipt struct {
	UserID string    `json:"userId"`
	ReadAt time.Time `json:"readAt"`
}

// Message contains a single message payload.
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversationId"`
	SenderID       string        `json:"senderId"`
	SenderRole     string        `json:"senderRole"`
	Text           string        `json:"text"`
	CreatedAt      time.Time     `json:"createdAt"`
	ReadBy         []ReadReceipt `json:"readBy"`
}

// MessageList is a forward page of messages.
type MessageList struct {
	Items      []Message `json:"items"`
	NextCursor string    `json:"nextCursor,omitempty"`
	HasMore    bool      `json:"hasMore"`
}

type Party struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

type PropertyRef struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

type MessagePreview struct {
	ID           string    `json:"id"`
	SenderID     string    `json:"senderId"`
	SenderRole   string    `json:"senderRole"`
	Text         string    `json:"text"`
	CreatedAt    time.Time `json:"createdAt"`
	ReadByOthers bool      `json:"readByOthers"`
}

type ConversationSummary struct {
	Conversation
	Property     PropertyRef     `json:"property"`
	Counterpart  *Party          `json:"counterpart,omitempty"`
	Participants []Party         `json:"participants"`
	LastMessage  *MessagePreview `json:"lastMessage,omitempty"`
	UnreadCount  int             `json:"unreadCount"`
}

// ConversationList is a paginated collection.
type ConversationList struct {
	Items      []ConversationSummary `json:"items"`
	NextCursor string                `json:"nextCursor,omitempty"`
}

type FindOrCreateRequest struct {
	PropertyID string `json:"propertyId"`
}

type SendMessageRequest struct {
	Text string `json:"text"`
}

type MarkReadRequest struct {
	UptoMessageID string `json:"uptoMessageId"`
}

type MarkReadResponse struct {
	Marked int `json:"marked"`
}

func MapConversation(conv chat.Conversation) Conversation {
	return Conversation{
		ID:             string(conv.ID),
		PropertyID:     conv.PropertyID,
		ParticipantIDs: append([]string{}, conv.ParticipantIDs...),
		InitiatorID:    conv.InitiatorID,
		CounterpartID:  conv.CounterpartID,
		CreatedAt:      conv.CreatedAt,
		LastMessageAt:  conv.LastMessageAt,
	}
}

func (c Conversation) Domain() chat.Conversation {
	return chat.Conversation{
		ID:             chat.ConversationID(c.ID),
		PropertyID:     c.PropertyID,
		ParticipantIDs: append([]string{}, c.ParticipantIDs...),
		InitiatorID:    c.InitiatorID,
		CounterpartID:  c.CounterpartID,
		CreatedAt:      c.CreatedAt,
		LastMessageAt:  c.LastMessageAt,
	}
}

func MapMessage(msg chat.Message) Message {
	receipts := make([]ReadReceipt, 0, len(msg.ReadBy))
	for _, r := range msg.ReadBy {
		receipts = append(receipts, ReadReceipt{UserID: r.UserID, ReadAt: r.ReadAt})
	}
	return Message{
		ID:             string(msg.ID),
		ConversationID: string(msg.ConversationID),
		SenderID:       msg.SenderID,
		SenderRole:     string(msg.SenderRole),
		Text:           msg.Body,
		CreatedAt:      msg.CreatedAt,
		ReadBy:         receipts,
	}
}

func (m Message) Domain() chat.Message {
	var receipts []chat.ReadReceipt
	for _, r := range m.ReadBy {
		receipts = append(receipts, chat.ReadReceipt{UserID: r.UserID, ReadAt: r.ReadAt})
	}
	return chat.Message{
		ID:             chat.MessageID(m.ID),
		ConversationID: chat.ConversationID(m.ConversationID),
		SenderID:       m.SenderID,
		SenderRole:     chat.Role(m.SenderRole),
		Body:           m.Text,
		CreatedAt:      m.CreatedAt,
		ReadBy:         receipts,
	}
}

func MapMessagePage(page messaging.MessagePage) MessageList {
	items := make([]Message, 0, len(page.Items))
	for _, msg := range page.Items {
		items = append(items, MapMessage(msg))
	}
	return MessageList{Items: items, NextCursor: page.NextCursor.Encode(), HasMore: page.HasMore}
}

func MapSummary(s messaging.Summary) ConversationSummary {
	out := ConversationSummary{
		Conversation: MapConversation(s.Conversation),
		Property:     PropertyRef{ID: s.Property.ID, Title: s.Property.Title},
		Participants: make([]Party, 0, len(s.Participants)),
		UnreadCount:  s.Unread,
	}
	for _, p := range s.Participants {
		out.Participants = append(out.Participants, mapParty(p))
	}
	if s.Counterpart != nil {
		party := mapParty(*s.Counterpart)
		out.Counterpart = &party
	}
	if s.LastMessage != nil {
		out.LastMessage = &MessagePreview{
			ID:           string(s.LastMessage.ID),
			SenderID:     s.LastMessage.SenderID,
			SenderRole:   string(s.LastMessage.SenderRole),
			Text:         s.LastMessage.Text,
			CreatedAt:    s.LastMessage.CreatedAt,
			ReadByOthers: s.LastMessage.ReadByOthers,
		}
	}
	return out
}

func MapSummaryPage(page messaging.SummaryPage) ConversationList {
	items := make([]ConversationSummary, 0, len(page.Items))
	for _, s := range page.Items {
		items = append(items, MapSummary(s))
	}
	return ConversationList{Items: items, NextCursor: page.NextCursor.Encode()}
}

func mapParty(p messaging.Party) Party {
	return Party{ID: p.ID, DisplayName: p.DisplayName, Role: string(p.Role)}
}

// Domain rebuilds a message page received over the wire.
func (l MessageList) Domain() (messaging.MessagePage, error) {
	cursor, err := chat.ParseCursor(l.NextCursor)
	if err != nil {
		return messaging.MessagePage{}, err
	}
	items := make([]chat.Message, 0, len(l.Items))
	for _, msg := range l.Items {
		items = append(items, msg.Domain())
	}
	return messaging.MessagePage{Items: items, NextCursor: cursor, HasMore: l.HasMore}, nil
}

// Domain rebuilds a summary page received over the wire.
func (l ConversationList) Domain() (messaging.SummaryPage, error) {
	cursor, err := chat.ParseCursor(l.NextCursor)
	if err != nil {
		return messaging.SummaryPage{}, err
	}
	items := make([]messaging.Summary, 0, len(l.Items))
	for _, s := range l.Items {
		items = append(items, s.Domain())
	}
	return messaging.SummaryPage{Items: items, NextCursor: cursor}, nil
}

func (s ConversationSummary) Domain() messaging.Summary {
	out := messaging.Summary{
		Conversation: s.Conversation.Domain(),
		Property:     messaging.PropertyRef{ID: s.Property.ID, Title: s.Property.Title},
		Participants: make([]messaging.Party, 0, len(s.Participants)),
		Unread:       s.UnreadCount,
	}
	for _, p := range s.Participants {
		out.Participants = append(out.Participants, p.domain())
	}
	if s.Counterpart != nil {
		party := s.Counterpart.domain()
		out.Counterpart = &party
	}
	if s.LastMessage != nil {
		out.LastMessage = &messaging.MessagePreview{
			ID:           chat.MessageID(s.LastMessage.ID),
			SenderID:     s.LastMessage.SenderID,
			SenderRole:   chat.Role(s.LastMessage.SenderRole),
			Text:         s.LastMessage.Text,
			CreatedAt:    s.LastMessage.CreatedAt,
			ReadByOthers: s.LastMessage.ReadByOthers,
		}
	}
	return out
}

func (p Party) domain() messaging.Party {
	return messaging.Party{ID: p.ID, DisplayName: p.DisplayName, Role: chat.Role(p.Role)}
}
