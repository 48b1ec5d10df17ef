package chat

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

type ConversationID string

// Conversation binds one property and two participants to an ordered message history.
type Conversation struct {
	ID             ConversationID
	PropertyID     string
	ParticipantIDs []string
	InitiatorID    string
	CounterpartID  string
	CreatedAt      time.Time
	LastMessageAt  time.Time
}

type NewConversationParams struct {
	ID            ConversationID
	PropertyID    string
	InitiatorID   string
	CounterpartID string
	Now           time.Time
}

func NewConversation(params NewConversationParams) (*Conversation, error) {
	id := strings.TrimSpace(string(params.ID))
	propertyID := strings.TrimSpace(params.PropertyID)
	initiator := strings.TrimSpace(params.InitiatorID)
	counterpart := strings.TrimSpace(params.CounterpartID)
	switch {
	case id == "":
		return nil, fmt.Errorf("%w: conversation id is required", ErrInvalidInput)
	case propertyID == "":
		return nil, fmt.Errorf("%w: property id is required", ErrInvalidInput)
	case initiator == "" || counterpart == "":
		return nil, fmt.Errorf("%w: both participants are required", ErrInvalidInput)
	case initiator == counterpart:
		return nil, fmt.Errorf("%w: cannot start a conversation with yourself", ErrInvalidOperation)
	}
	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC().Truncate(time.Microsecond)
	return &Conversation{
		ID:             ConversationID(id),
		PropertyID:     propertyID,
		ParticipantIDs: NormalizeParticipants([]string{initiator, counterpart}),
		InitiatorID:    initiator,
		CounterpartID:  counterpart,
		CreatedAt:      now,
		LastMessageAt:  now,
	}, nil
}

// DedupKey identifies the (property, unordered participant pair) a conversation belongs to.
func (c *Conversation) DedupKey() string {
	return DedupKey(c.PropertyID, c.ParticipantIDs)
}

func (c *Conversation) HasParticipant(userID string) bool {
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// CanAccess reports whether the actor may read or write this conversation.
func (c *Conversation) CanAccess(actor Actor) bool {
	return actor.IsAdmin() || c.HasParticipant(actor.ID)
}

// Counterpart returns the other participant from the viewpoint of userID.
func (c *Conversation) Counterpart(userID string) string {
	for _, id := range c.ParticipantIDs {
		if id != userID {
			return id
		}
	}
	return ""
}

// SenderRole resolves the capacity in which the actor writes to this conversation.
func (c *Conversation) SenderRole(actor Actor) Role {
	switch actor.ID {
	case c.InitiatorID:
		return RoleBuyer
	case c.CounterpartID:
		return RoleSeller
	}
	return RoleAdmin
}

// LastActivity is the ordering key used by conversation lists.
func (c *Conversation) LastActivity() time.Time {
	if !c.LastMessageAt.IsZero() {
		return c.LastMessageAt
	}
	return c.CreatedAt
}

// ActivityKey is the keyset position of the conversation in activity-ordered lists.
func (c *Conversation) ActivityKey() Cursor {
	return Cursor{At: c.LastActivity(), ID: string(c.ID)}
}

func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	cp := *c
	cp.ParticipantIDs = append([]string(nil), c.ParticipantIDs...)
	return &cp
}

func DedupKey(propertyID string, participants []string) string {
	parts := NormalizeParticipants(participants)
	return strings.TrimSpace(propertyID) + "|" + strings.Join(parts, "|")
}

func NormalizeParticipants(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// SortByActivity orders conversations most recently active first, ties by id descending.
func SortByActivity(items []Conversation) {
	sort.SliceStable(items, func(i, j int) bool {
		ai, aj := items[i].LastActivity(), items[j].LastActivity()
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return items[i].ID > items[j].ID
	})
}
