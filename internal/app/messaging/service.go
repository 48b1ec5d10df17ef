package messaging

import (
	"context"
	"log/slog"
	"time"

	"propchat/internal/domain/chat"
	"propchat/internal/domain/properties"
)

// Core is the messaging surface the gateway talks to. Service implements it
// in-process; the gRPC client implements it against a remote messaging-service.
type Core interface {
	FindOrCreate(ctx context.Context, actor chat.Actor, propertyID string) (chat.Conversation, bool, error)
	Conversation(ctx context.Context, actor chat.Actor, id chat.ConversationID) (chat.Conversation, error)
	Append(ctx context.Context, actor chat.Actor, id chat.ConversationID, body string) (chat.Message, error)
	Messages(ctx context.Context, actor chat.Actor, id chat.ConversationID, page chat.PageRequest) (MessagePage, error)
	MarkRead(ctx context.Context, actor chat.Actor, id chat.ConversationID, upto chat.MessageID) (int, error)
	ListForParticipant(ctx context.Context, actor chat.Actor, page chat.PageRequest) (SummaryPage, error)
	ListForAdminInbox(ctx context.Context, actor chat.Actor, filter AdminFilter, page chat.PageRequest) (SummaryPage, error)
}

// Deps wires a Service.
type Deps struct {
	Conversations chat.ConversationRepository
	Messages      chat.MessageRepository
	Properties    properties.Directory
	Profiles      Profiles
	Notifier      Notifier
	Metrics       Metrics
	Logger        *slog.Logger
	Now           func() time.Time
	DefaultPage   int
	MaxPage       int
	PreviewLength int
}

// Service bundles the registry, ledger and projector behind Core.
type Service struct {
	Registry  *Registry
	Ledger    *Ledger
	Projector *Projector
}

func NewService(deps Deps) *Service {
	registry := &Registry{
		Conversations: deps.Conversations,
		Properties:    deps.Properties,
		Logger:        deps.Logger,
		Metrics:       deps.Metrics,
		Now:           deps.Now,
	}
	return &Service{
		Registry: registry,
		Ledger: &Ledger{
			Registry:      registry,
			Conversations: deps.Conversations,
			Messages:      deps.Messages,
			Notifier:      deps.Notifier,
			Logger:        deps.Logger,
			Metrics:       deps.Metrics,
			Now:           deps.Now,
			DefaultPage:   deps.DefaultPage,
			MaxPage:       deps.MaxPage,
		},
		Projector: &Projector{
			Conversations: deps.Conversations,
			Messages:      deps.Messages,
			Properties:    deps.Properties,
			Profiles:      deps.Profiles,
			Logger:        deps.Logger,
			PreviewLength: deps.PreviewLength,
			DefaultPage:   deps.DefaultPage,
			MaxPage:       deps.MaxPage,
		},
	}
}

func (s *Service) FindOrCreate(ctx context.Context, actor chat.Actor, propertyID string) (chat.Conversation, bool, error) {
	conv, created, err := s.Registry.FindOrCreate(ctx, actor, propertyID)
	if err != nil {
		return chat.Conversation{}, false, err
	}
	return *conv, created, nil
}

func (s *Service) Conversation(ctx context.Context, actor chat.Actor, id chat.ConversationID) (chat.Conversation, error) {
	conv, err := s.Registry.Authorize(ctx, actor, id)
	if err != nil {
		return chat.Conversation{}, err
	}
	return *conv, nil
}

func (s *Service) Append(ctx context.Context, actor chat.Actor, id chat.ConversationID, body string) (chat.Message, error) {
	msg, err := s.Ledger.Append(ctx, actor, id, body)
	if err != nil {
		return chat.Message{}, err
	}
	return *msg, nil
}

func (s *Service) Messages(ctx context.Context, actor chat.Actor, id chat.ConversationID, page chat.PageRequest) (MessagePage, error) {
	return s.Ledger.List(ctx, actor, id, page)
}

func (s *Service) MarkRead(ctx context.Context, actor chat.Actor, id chat.ConversationID, upto chat.MessageID) (int, error) {
	return s.Ledger.MarkRead(ctx, actor, id, upto)
}

func (s *Service) ListForParticipant(ctx context.Context, actor chat.Actor, page chat.PageRequest) (SummaryPage, error) {
	return s.Projector.ListForParticipant(ctx, actor, page)
}

func (s *Service) ListForAdminInbox(ctx context.Context, actor chat.Actor, filter AdminFilter, page chat.PageRequest) (SummaryPage, error) {
	return s.Projector.ListForAdminInbox(ctx, actor, filter, page)
}

var _ Core = (*Service)(nil)
