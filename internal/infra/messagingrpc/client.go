package messagingrpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"propchat/internal/app/dto"
	"propchat/internal/app/messaging"
	"propchat/internal/domain/chat"
	"propchat/internal/infra/obs"
)

// Config defines gRPC client settings.
type Config struct {
	Addr        string
	CallTimeout time.Duration
	DialOptions []grpc.DialOption
}

// Client implements messaging.Core against a remote messaging-service, so
// the gateway can run without local storage.
type Client struct {
	conn        *grpc.ClientConn
	callTimeout time.Duration
	logger      *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("messagingrpc: address required")
	}
	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = 5 * time.Second
	}
	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}, cfg.DialOptions...)
	conn, err := grpc.NewClient(cfg.Addr, opts...)
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Info("messaging grpc client ready", "addr", cfg.Addr)
	}
	return &Client{conn: conn, callTimeout: callTimeout, logger: logger}, nil
}

// WaitReady blocks until the channel is connected or ctx expires. It backs the
// gateway's readiness probe.
func (c *Client) WaitReady(ctx context.Context) error {
	c.conn.Connect()
	for {
		state := c.conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return errors.New("messagingrpc: connection closed")
		}
		if !c.conn.WaitForStateChange(ctx, state) {
			return fmt.Errorf("messagingrpc: %s: %w", state, ctx.Err())
		}
	}
}

func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) FindOrCreate(ctx context.Context, actor chat.Actor, propertyID string) (chat.Conversation, bool, error) {
	var resp ConversationResponse
	if err := c.invoke(ctx, "FindOrCreate", &FindOrCreateRequest{Actor: actorFrom(actor), PropertyID: propertyID}, &resp); err != nil {
		return chat.Conversation{}, false, err
	}
	return resp.Conversation.Domain(), resp.Created, nil
}

func (c *Client) Conversation(ctx context.Context, actor chat.Actor, id chat.ConversationID) (chat.Conversation, error) {
	var resp ConversationResponse
	if err := c.invoke(ctx, "GetConversation", &ConversationRequest{Actor: actorFrom(actor), ConversationID: string(id)}, &resp); err != nil {
		return chat.Conversation{}, err
	}
	return resp.Conversation.Domain(), nil
}

func (c *Client) Append(ctx context.Context, actor chat.Actor, id chat.ConversationID, body string) (chat.Message, error) {
	var resp dto.Message
	if err := c.invoke(ctx, "Append", &AppendRequest{Actor: actorFrom(actor), ConversationID: string(id), Text: body}, &resp); err != nil {
		return chat.Message{}, err
	}
	return resp.Domain(), nil
}

func (c *Client) Messages(ctx context.Context, actor chat.Actor, id chat.ConversationID, page chat.PageRequest) (messaging.MessagePage, error) {
	var resp dto.MessageList
	req := &ListMessagesRequest{Actor: actorFrom(actor), ConversationID: string(id), Cursor: page.Cursor.Encode(), Limit: page.Limit}
	if err := c.invoke(ctx, "ListMessages", req, &resp); err != nil {
		return messaging.MessagePage{}, err
	}
	return resp.Domain()
}

func (c *Client) MarkRead(ctx context.Context, actor chat.Actor, id chat.ConversationID, upto chat.MessageID) (int, error) {
	var resp dto.MarkReadResponse
	req := &MarkReadRequest{Actor: actorFrom(actor), ConversationID: string(id), UptoMessageID: string(upto)}
	if err := c.invoke(ctx, "MarkRead", req, &resp); err != nil {
		return 0, err
	}
	return resp.Marked, nil
}

func (c *Client) ListForParticipant(ctx context.Context, actor chat.Actor, page chat.PageRequest) (messaging.SummaryPage, error) {
	var resp dto.ConversationList
	req := &ListConversationsRequest{Actor: actorFrom(actor), Cursor: page.Cursor.Encode(), Limit: page.Limit}
	if err := c.invoke(ctx, "ListForParticipant", req, &resp); err != nil {
		return messaging.SummaryPage{}, err
	}
	return resp.Domain()
}

func (c *Client) ListForAdminInbox(ctx context.Context, actor chat.Actor, filter messaging.AdminFilter, page chat.PageRequest) (messaging.SummaryPage, error) {
	var resp dto.ConversationList
	req := &ListConversationsRequest{
		Actor:         actorFrom(actor),
		Cursor:        page.Cursor.Encode(),
		Limit:         page.Limit,
		PropertyID:    filter.PropertyID,
		ParticipantID: filter.ParticipantID,
		Unresolved:    filter.UnresolvedOnly,
	}
	if err := c.invoke(ctx, "ListForAdminInbox", req, &resp); err != nil {
		return messaging.SummaryPage{}, err
	}
	return resp.Domain()
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	if c == nil || c.conn == nil {
		return status.Error(codes.Unavailable, "messaging client not connected")
	}
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	if id := obs.RequestIDFromContext(ctx); id != "" {
		callCtx = metadata.AppendToOutgoingContext(callCtx, requestIDMetadata, id)
	}
	if err := c.conn.Invoke(callCtx, fullMethod(method), req, resp); err != nil {
		return fromStatus(err)
	}
	return nil
}

// fromStatus restores the chat error taxonomy so callers can keep using errors.Is.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	var sentinel error
	switch st.Code() {
	case codes.Unauthenticated:
		sentinel = chat.ErrUnauthenticated
	case codes.PermissionDenied:
		sentinel = chat.ErrForbidden
	case codes.NotFound:
		sentinel = chat.ErrNotFound
	case codes.InvalidArgument:
		sentinel = chat.ErrInvalidInput
	case codes.FailedPrecondition:
		sentinel = chat.ErrInvalidOperation
	case codes.DeadlineExceeded:
		sentinel = context.DeadlineExceeded
	default:
		return err
	}
	return fmt.Errorf("%w: %s", sentinel, st.Message())
}

var _ messaging.Core = (*Client)(nil)
