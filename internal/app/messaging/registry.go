package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"propchat/internal/domain/chat"
	"propchat/internal/domain/properties"
)

// conflictRereads bounds how often a losing creator re-reads the dedup index
// before giving up. Stores with asynchronous index visibility need a few tries.
const conflictRereads = 5

// Registry owns conversation identity: one conversation per property and participant pair.
type Registry struct {
	Conversations chat.ConversationRepository
	Properties    properties.Directory
	Logger        *slog.Logger
	Metrics       Metrics
	Now           func() time.Time
	NewID         func() string
}

// FindOrCreate returns the conversation between the actor and the property's contact,
// creating it on first contact. created reports whether this call persisted it.
func (r *Registry) FindOrCreate(ctx context.Context, actor chat.Actor, propertyID string) (conv *chat.Conversation, created bool, err error) {
	if !actor.Valid() {
		return nil, false, chat.ErrUnauthenticated
	}
	propertyID = strings.TrimSpace(propertyID)
	if propertyID == "" {
		return nil, false, fmt.Errorf("%w: property id is required", chat.ErrInvalidInput)
	}
	if r.Conversations == nil || r.Properties == nil {
		return nil, false, errors.New("messaging: registry is not configured")
	}

	property, err := r.Properties.Lookup(ctx, propertyID)
	if err != nil {
		switch {
		case errors.Is(err, properties.ErrNotFound), errors.Is(err, properties.ErrNoContact), errors.Is(err, properties.ErrIDRequired):
			return nil, false, fmt.Errorf("%w: property %s has no contact", chat.ErrNotFound, propertyID)
		default:
			return nil, false, fmt.Errorf("lookup property: %w", err)
		}
	}
	if !property.HasContact() {
		return nil, false, fmt.Errorf("%w: property %s has no contact", chat.ErrNotFound, propertyID)
	}
	contactID := strings.TrimSpace(property.ContactID)
	if contactID == actor.ID {
		return nil, false, fmt.Errorf("%w: cannot start a conversation about your own property", chat.ErrInvalidOperation)
	}

	key := chat.DedupKey(propertyID, []string{actor.ID, contactID})
	existing, err := r.Conversations.ByDedupKey(ctx, key)
	switch {
	case err == nil:
		metricsOrNop(r.Metrics).ConversationReused()
		return existing, false, nil
	case !errors.Is(err, chat.ErrNotFound):
		return nil, false, fmt.Errorf("lookup conversation: %w", err)
	}

	newID := r.NewID
	if newID == nil {
		newID = newConversationID
	}
	conv, err = chat.NewConversation(chat.NewConversationParams{
		ID:            chat.ConversationID(newID()),
		PropertyID:    propertyID,
		InitiatorID:   actor.ID,
		CounterpartID: contactID,
		Now:           clock(r.Now),
	})
	if err != nil {
		return nil, false, err
	}

	err = r.Conversations.Create(ctx, conv)
	if err == nil {
		metricsOrNop(r.Metrics).ConversationCreated()
		if r.Logger != nil {
			r.Logger.Info("conversation created", "id", conv.ID, "property_id", propertyID, "participants", conv.ParticipantIDs)
		}
		return conv, true, nil
	}
	if !errors.Is(err, chat.ErrConflict) {
		return nil, false, fmt.Errorf("create conversation: %w", err)
	}

	metricsOrNop(r.Metrics).CreationConflict()
	winner, err := r.rereadWinner(ctx, key)
	if err != nil {
		return nil, false, err
	}
	return winner, false, nil
}

func (r *Registry) rereadWinner(ctx context.Context, key string) (*chat.Conversation, error) {
	backoff := 5 * time.Millisecond
	for attempt := 0; attempt < conflictRereads; attempt++ {
		conv, err := r.Conversations.ByDedupKey(ctx, key)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, chat.ErrNotFound) {
			return nil, fmt.Errorf("reread conversation: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	logWarn(r.Logger, "conversation conflict without visible winner", "dedup_key", key)
	return nil, fmt.Errorf("create conversation: winner for %q not visible", key)
}

// Authorize loads a conversation the actor may access. Non-admins receive
// ErrForbidden both for conversations they are not part of and for unknown ids.
func (r *Registry) Authorize(ctx context.Context, actor chat.Actor, id chat.ConversationID) (*chat.Conversation, error) {
	if !actor.Valid() {
		return nil, chat.ErrUnauthenticated
	}
	if strings.TrimSpace(string(id)) == "" {
		return nil, fmt.Errorf("%w: conversation id is required", chat.ErrInvalidInput)
	}
	if r.Conversations == nil {
		return nil, errors.New("messaging: registry is not configured")
	}
	conv, err := r.Conversations.ByID(ctx, id)
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			if actor.IsAdmin() {
				return nil, chat.ErrNotFound
			}
			return nil, chat.ErrForbidden
		}
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if !conv.CanAccess(actor) {
		return nil, chat.ErrForbidden
	}
	return conv, nil
}
