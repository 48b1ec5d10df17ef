package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"

	"propchat/internal/domain/chat"
	"propchat/internal/domain/properties"
)

// DefaultPreviewLength is the rune budget of last-message previews.
const DefaultPreviewLength = 140

type Party struct {
	ID          string
	DisplayName string
	Role        chat.Role
}

type PropertyRef struct {
	ID    string
	Title string
}

type MessagePreview struct {
	ID           chat.MessageID
	SenderID     string
	SenderRole   chat.Role
	Text         string
	CreatedAt    time.Time
	ReadByOthers bool
}

// Summary is a read-only projection of one conversation for a list view.
type Summary struct {
	Conversation chat.Conversation
	Property     PropertyRef
	// Counterpart is set for participant views only.
	Counterpart  *Party
	Participants []Party
	LastMessage  *MessagePreview
	Unread       int
}

type SummaryPage struct {
	Items      []Summary
	NextCursor chat.Cursor
}

// AdminFilter narrows the admin inbox.
type AdminFilter struct {
	PropertyID     string
	ParticipantID  string
	UnresolvedOnly bool
}

// Projector derives list views from the registry and the ledger on every read.
type Projector struct {
	Conversations chat.ConversationRepository
	Messages      chat.MessageRepository
	Properties    properties.Directory
	Profiles      Profiles
	Logger        *slog.Logger
	PreviewLength int
	DefaultPage   int
	MaxPage       int
}

// ListForParticipant lists the actor's conversations, most recently active first.
func (p *Projector) ListForParticipant(ctx context.Context, actor chat.Actor, page chat.PageRequest) (SummaryPage, error) {
	if !actor.Valid() {
		return SummaryPage{}, chat.ErrUnauthenticated
	}
	page = page.Normalized(p.DefaultPage, p.MaxPage)
	convs, err := p.Conversations.List(ctx, chat.ConversationFilter{
		ParticipantID: actor.ID,
		Before:        page.Cursor,
		Limit:         page.Limit,
	})
	if err != nil {
		return SummaryPage{}, fmt.Errorf("list conversations: %w", err)
	}
	lookups := newLookupCache(p)
	items := make([]Summary, 0, len(convs))
	for i := range convs {
		summary, err := p.summarize(ctx, lookups, actor, &convs[i], nil)
		if err != nil {
			return SummaryPage{}, err
		}
		items = append(items, summary)
	}
	result := SummaryPage{Items: items}
	if len(convs) == page.Limit {
		result.NextCursor = convs[len(convs)-1].ActivityKey()
	}
	return result, nil
}

// ListForAdminInbox lists every conversation matching the filter. Admin only.
func (p *Projector) ListForAdminInbox(ctx context.Context, actor chat.Actor, filter AdminFilter, page chat.PageRequest) (SummaryPage, error) {
	if !actor.Valid() {
		return SummaryPage{}, chat.ErrUnauthenticated
	}
	if !actor.IsAdmin() {
		return SummaryPage{}, chat.ErrForbidden
	}
	page = page.Normalized(p.DefaultPage, p.MaxPage)
	lookups := newLookupCache(p)
	items := make([]Summary, 0, page.Limit)
	cursor := page.Cursor
	var lastIncluded chat.Cursor

	for len(items) < page.Limit {
		batch, err := p.Conversations.List(ctx, chat.ConversationFilter{
			ParticipantID: filter.ParticipantID,
			PropertyID:    filter.PropertyID,
			Before:        cursor,
			Limit:         page.Limit,
		})
		if err != nil {
			return SummaryPage{}, fmt.Errorf("list conversations: %w", err)
		}
		for i := range batch {
			conv := &batch[i]
			cursor = conv.ActivityKey()
			latest, err := p.latest(ctx, conv.ID)
			if err != nil {
				return SummaryPage{}, err
			}
			if filter.UnresolvedOnly && !unresolved(latest) {
				continue
			}
			summary, err := p.summarize(ctx, lookups, actor, conv, latest)
			if err != nil {
				return SummaryPage{}, err
			}
			items = append(items, summary)
			lastIncluded = conv.ActivityKey()
			if len(items) == page.Limit {
				break
			}
		}
		if len(batch) < page.Limit {
			return SummaryPage{Items: items}, nil
		}
	}
	return SummaryPage{Items: items, NextCursor: lastIncluded}, nil
}

// unresolved reports whether the conversation's latest message still waits for a reader.
func unresolved(latest *chat.Message) bool {
	return latest != nil && !latest.ReadByOtherThanSender()
}

func (p *Projector) latest(ctx context.Context, id chat.ConversationID) (*chat.Message, error) {
	msg, err := p.Messages.Latest(ctx, id)
	if errors.Is(err, chat.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load latest message: %w", err)
	}
	return msg, nil
}

func (p *Projector) summarize(ctx context.Context, lookups *lookupCache, viewer chat.Actor, conv *chat.Conversation, latest *chat.Message) (Summary, error) {
	if latest == nil {
		var err error
		if latest, err = p.latest(ctx, conv.ID); err != nil {
			return Summary{}, err
		}
	}
	unread, err := p.Messages.UnreadCount(ctx, conv.ID, viewer.ID)
	if err != nil {
		return Summary{}, fmt.Errorf("count unread: %w", err)
	}

	participants := lo.Map(conv.ParticipantIDs, func(id string, _ int) Party {
		return Party{
			ID:          id,
			DisplayName: lookups.displayName(ctx, id),
			Role:        conv.SenderRole(chat.Actor{ID: id}),
		}
	})
	summary := Summary{
		Conversation: *conv.Clone(),
		Property:     lookups.property(ctx, conv.PropertyID),
		Participants: participants,
		Unread:       unread,
	}
	if conv.HasParticipant(viewer.ID) {
		if other, ok := lo.Find(participants, func(party Party) bool { return party.ID != viewer.ID }); ok {
			summary.Counterpart = &other
		}
	}
	if latest != nil {
		previewLen := p.PreviewLength
		if previewLen <= 0 {
			previewLen = DefaultPreviewLength
		}
		summary.LastMessage = &MessagePreview{
			ID:           latest.ID,
			SenderID:     latest.SenderID,
			SenderRole:   latest.SenderRole,
			Text:         chat.Preview(latest.Body, previewLen),
			CreatedAt:    latest.CreatedAt,
			ReadByOthers: latest.ReadByOtherThanSender(),
		}
	}
	return summary, nil
}

// lookupCache memoizes profile and property lookups for the duration of one list call.
type lookupCache struct {
	p          *Projector
	names      map[string]string
	properties map[string]PropertyRef
}

func newLookupCache(p *Projector) *lookupCache {
	return &lookupCache{p: p, names: map[string]string{}, properties: map[string]PropertyRef{}}
}

func (c *lookupCache) displayName(ctx context.Context, userID string) string {
	if name, ok := c.names[userID]; ok {
		return name
	}
	name := userID
	if c.p.Profiles != nil {
		resolved, err := c.p.Profiles.DisplayName(ctx, userID)
		switch {
		case err == nil && resolved != "":
			name = resolved
		case err != nil:
			if c.p.Logger != nil {
				c.p.Logger.Debug("display name unavailable", "user_id", userID, "err", err)
			}
		}
	}
	c.names[userID] = name
	return name
}

func (c *lookupCache) property(ctx context.Context, propertyID string) PropertyRef {
	if ref, ok := c.properties[propertyID]; ok {
		return ref
	}
	ref := PropertyRef{ID: propertyID}
	if c.p.Properties != nil {
		property, err := c.p.Properties.Lookup(ctx, propertyID)
		if err == nil {
			ref.Title = property.Title
		} else if c.p.Logger != nil {
			c.p.Logger.Debug("property unavailable", "property_id", propertyID, "err", err)
		}
	}
	c.properties[propertyID] = ref
	return ref
}
