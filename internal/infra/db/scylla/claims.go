package scylla

import (
	"context"
	"errors"
	"fmt"

	"propchat/internal/domain/chat"
)

const claimColumns = `conversation_id, property_id, participant_ids, initiator_id, counterpart_id, created_at`

// dedupClaim is the conversation_dedup row. It repeats the conversation's
// immutable fields so the conversation can be rebuilt from the claim alone.
type dedupClaim struct {
	ConversationID string
	PropertyID     string
	Participants   []string
	InitiatorID    string
	CounterpartID  string
	CreatedAt      int64
}

func newDedupClaim(conv *chat.Conversation) dedupClaim {
	return dedupClaim{
		ConversationID: string(conv.ID),
		PropertyID:     conv.PropertyID,
		Participants:   conv.ParticipantIDs,
		InitiatorID:    conv.InitiatorID,
		CounterpartID:  conv.CounterpartID,
		CreatedAt:      micros(conv.CreatedAt),
	}
}

func (c *dedupClaim) dest() []any {
	return []any{&c.ConversationID, &c.PropertyID, &c.Participants, &c.InitiatorID, &c.CounterpartID, &c.CreatedAt}
}

func (c dedupClaim) values() []any {
	return []any{c.ConversationID, c.PropertyID, c.Participants, c.InitiatorID, c.CounterpartID, c.CreatedAt}
}

// complete reports whether the claim holds enough to rebuild a conversation.
// Claims written before the payload columns existed only hold the id.
func (c dedupClaim) complete() bool {
	return c.ConversationID != "" && c.PropertyID != "" && len(c.Participants) == 2 && c.CreatedAt != 0
}

// conversation rebuilds the row as Create would have written it. No message
// can exist yet, so activity equals creation time.
func (c dedupClaim) conversation() *chat.Conversation {
	created := fromMicros(c.CreatedAt)
	return &chat.Conversation{
		ID:             chat.ConversationID(c.ConversationID),
		PropertyID:     c.PropertyID,
		ParticipantIDs: chat.NormalizeParticipants(c.Participants),
		InitiatorID:    c.InitiatorID,
		CounterpartID:  c.CounterpartID,
		CreatedAt:      created,
		LastMessageAt:  created,
	}
}

// settleClaim resolves a claim to its conversation. When the creator claimed
// the key but its conversation write was lost, the row is restored from the
// claim and read back.
func settleClaim(
	ctx context.Context,
	claim dedupClaim,
	load func(context.Context, chat.ConversationID) (*chat.Conversation, error),
	restore func(context.Context, *chat.Conversation) error,
) (*chat.Conversation, error) {
	id := chat.ConversationID(claim.ConversationID)
	conv, err := load(ctx, id)
	if !errors.Is(err, chat.ErrNotFound) {
		return conv, err
	}
	if !claim.complete() {
		return nil, err
	}
	if err := restore(ctx, claim.conversation()); err != nil {
		return nil, fmt.Errorf("restore conversation %s: %w", id, err)
	}
	return load(ctx, id)
}
