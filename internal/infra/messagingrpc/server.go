package messagingrpc

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"propchat/internal/app/dto"
	"propchat/internal/app/messaging"
	"propchat/internal/domain/chat"
)

// Server exposes a messaging.Core over gRPC.
type Server struct {
	Core   messaging.Core
	Logger *slog.Logger
}

func (s *Server) FindOrCreate(ctx context.Context, req *FindOrCreateRequest) (*ConversationResponse, error) {
	if s.Core == nil {
		return nil, status.Error(codes.Unavailable, "messaging unavailable")
	}
	conv, created, err := s.Core.FindOrCreate(ctx, req.Actor.domain(), req.PropertyID)
	if err != nil {
		return nil, s.toStatus(err, "find or create")
	}
	return &ConversationResponse{Conversation: dto.MapConversation(conv), Created: created}, nil
}

func (s *Server) GetConversation(ctx context.Context, req *ConversationRequest) (*ConversationResponse, error) {
	if s.Core == nil {
		return nil, status.Error(codes.Unavailable, "messaging unavailable")
	}
	conv, err := s.Core.Conversation(ctx, req.Actor.domain(), chat.ConversationID(req.ConversationID))
	if err != nil {
		return nil, s.toStatus(err, "get conversation")
	}
	return &ConversationResponse{Conversation: dto.MapConversation(conv)}, nil
}

func (s *Server) Append(ctx context.Context, req *AppendRequest) (*dto.Message, error) {
	if s.Core == nil {
		return nil, status.Error(codes.Unavailable, "messaging unavailable")
	}
	msg, err := s.Core.Append(ctx, req.Actor.domain(), chat.ConversationID(req.ConversationID), req.Text)
	if err != nil {
		return nil, s.toStatus(err, "append")
	}
	out := dto.MapMessage(msg)
	return &out, nil
}

func (s *Server) ListMessages(ctx context.Context, req *ListMessagesRequest) (*dto.MessageList, error) {
	if s.Core == nil {
		return nil, status.Error(codes.Unavailable, "messaging unavailable")
	}
	cursor, err := chat.ParseCursor(req.Cursor)
	if err != nil {
		return nil, s.toStatus(err, "list messages")
	}
	page, err := s.Core.Messages(ctx, req.Actor.domain(), chat.ConversationID(req.ConversationID), chat.PageRequest{Cursor: cursor, Limit: req.Limit})
	if err != nil {
		return nil, s.toStatus(err, "list messages")
	}
	out := dto.MapMessagePage(page)
	return &out, nil
}

func (s *Server) MarkRead(ctx context.Context, req *MarkReadRequest) (*dto.MarkReadResponse, error) {
	if s.Core == nil {
		return nil, status.Error(codes.Unavailable, "messaging unavailable")
	}
	marked, err := s.Core.MarkRead(ctx, req.Actor.domain(), chat.ConversationID(req.ConversationID), chat.MessageID(req.UptoMessageID))
	if err != nil {
		return nil, s.toStatus(err, "mark read")
	}
	return &dto.MarkReadResponse{Marked: marked}, nil
}

func (s *Server) ListForParticipant(ctx context.Context, req *ListConversationsRequest) (*dto.ConversationList, error) {
	if s.Core == nil {
		return nil, status.Error(codes.Unavailable, "messaging unavailable")
	}
	cursor, err := chat.ParseCursor(req.Cursor)
	if err != nil {
		return nil, s.toStatus(err, "list conversations")
	}
	page, err := s.Core.ListForParticipant(ctx, req.Actor.domain(), chat.PageRequest{Cursor: cursor, Limit: req.Limit})
	if err != nil {
		return nil, s.toStatus(err, "list conversations")
	}
	out := dto.MapSummaryPage(page)
	return &out, nil
}

func (s *Server) ListForAdminInbox(ctx context.Context, req *ListConversationsRequest) (*dto.ConversationList, error) {
	if s.Core == nil {
		return nil, status.Error(codes.Unavailable, "messaging unavailable")
	}
	cursor, err := chat.ParseCursor(req.Cursor)
	if err != nil {
		return nil, s.toStatus(err, "list inbox")
	}
	filter := messaging.AdminFilter{PropertyID: req.PropertyID, ParticipantID: req.ParticipantID, UnresolvedOnly: req.Unresolved}
	page, err := s.Core.ListForAdminInbox(ctx, req.Actor.domain(), filter, chat.PageRequest{Cursor: cursor, Limit: req.Limit})
	if err != nil {
		return nil, s.toStatus(err, "list inbox")
	}
	out := dto.MapSummaryPage(page)
	return &out, nil
}

func (s *Server) toStatus(err error, action string) error {
	code := codeFor(err)
	if code == codes.Internal && s.Logger != nil {
		s.Logger.Error("messaging rpc failed", "action", action, "error", err)
	}
	return status.Error(code, err.Error())
}

func codeFor(err error) codes.Code {
	switch {
	case errors.Is(err, chat.ErrUnauthenticated):
		return codes.Unauthenticated
	case errors.Is(err, chat.ErrForbidden):
		return codes.PermissionDenied
	case errors.Is(err, chat.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, chat.ErrInvalidInput):
		return codes.InvalidArgument
	case errors.Is(err, chat.ErrInvalidOperation):
		return codes.FailedPrecondition
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	default:
		return codes.Internal
	}
}

var _ MessagingServer = (*Server)(nil)
