package messagingrpc

import (
	"context"

	"google.golang.org/grpc"

	"propchat/internal/app/dto"
	"propchat/internal/domain/chat"
)

const serviceName = "propchat.messaging.v1.Messaging"

// Actor travels with every call. The gateway authenticates; the messaging
// service trusts the identity it is given on the internal network.
type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role"`
	Name string `json:"name,omitempty"`
}

func actorFrom(a chat.Actor) Actor {
	return Actor{ID: a.ID, Role: string(a.Role), Name: a.DisplayName}
}

func (a Actor) domain() chat.Actor {
	return chat.Actor{ID: a.ID, Role: chat.Role(a.Role), DisplayName: a.Name}
}

type FindOrCreateRequest struct {
	Actor      Actor  `json:"actor"`
	PropertyID string `json:"propertyId"`
}

type ConversationRequest struct {
	Actor          Actor  `json:"actor"`
	ConversationID string `json:"conversationId"`
}

type ConversationResponse struct {
	Conversation dto.Conversation `json:"conversation"`
	Created      bool             `json:"created"`
}

type AppendRequest struct {
	Actor          Actor  `json:"actor"`
	ConversationID string `json:"conversationId"`
	Text           string `json:"text"`
}

type ListMessagesRequest struct {
	Actor          Actor  `json:"actor"`
	ConversationID string `json:"conversationId"`
	Cursor         string `json:"cursor,omitempty"`
	Limit          int    `json:"limit,omitempty"`
}

type MarkReadRequest struct {
	Actor          Actor  `json:"actor"`
	ConversationID string `json:"conversationId"`
	UptoMessageID  string `json:"uptoMessageId,omitempty"`
}

type ListConversationsRequest struct {
	Actor         Actor  `json:"actor"`
	Cursor        string `json:"cursor,omitempty"`
	Limit         int    `json:"limit,omitempty"`
	PropertyID    string `json:"propertyId,omitempty"`
	ParticipantID string `json:"participantId,omitempty"`
	Unresolved    bool   `json:"unresolved,omitempty"`
}

// MessagingServer is the server-side contract registered under serviceDesc.
type MessagingServer interface {
	FindOrCreate(ctx context.Context, req *FindOrCreateRequest) (*ConversationResponse, error)
	GetConversation(ctx context.Context, req *ConversationRequest) (*ConversationResponse, error)
	Append(ctx context.Context, req *AppendRequest) (*dto.Message, error)
	ListMessages(ctx context.Context, req *ListMessagesRequest) (*dto.MessageList, error)
	MarkRead(ctx context.Context, req *MarkReadRequest) (*dto.MarkReadResponse, error)
	ListForParticipant(ctx context.Context, req *ListConversationsRequest) (*dto.ConversationList, error)
	ListForAdminInbox(ctx context.Context, req *ListConversationsRequest) (*dto.ConversationList, error)
}

func RegisterMessagingServer(s grpc.ServiceRegistrar, srv MessagingServer) {
	s.RegisterService(&serviceDesc, srv)
}

func fullMethod(name string) string {
	return "/" + serviceName + "/" + name
}

// unary adapts a typed method to the generic grpc handler shape.
func unary[Req any, Resp any](name string, call func(MessagingServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(MessagingServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(MessagingServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*MessagingServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("FindOrCreate", MessagingServer.FindOrCreate),
		unary("GetConversation", MessagingServer.GetConversation),
		unary("Append", MessagingServer.Append),
		unary("ListMessages", MessagingServer.ListMessages),
		unary("MarkRead", MessagingServer.MarkRead),
		unary("ListForParticipant", MessagingServer.ListForParticipant),
		unary("ListForAdminInbox", MessagingServer.ListForAdminInbox),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "propchat/messaging.json",
}
