package ginserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"propchat/internal/app/delivery"
	"propchat/internal/app/dto"
	"propchat/internal/app/messaging"
	authsvc "propchat/internal/app/services/auth"
	"propchat/internal/app/transcripts"
	"propchat/internal/domain/properties"
	domainuser "propchat/internal/domain/user"
	"propchat/internal/infra/obs"
	"propchat/internal/infra/realtime"
	"propchat/internal/infra/security"
	"propchat/internal/infra/storage/memory"
)

type harness struct {
	router *gin.Engine
	props  *memory.PropertyDirectory
	users  *memory.UserRepository
	auth   *authsvc.Service
	hub    *realtime.Hub
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := obs.Discard()

	users := memory.NewUserRepository()
	props := memory.NewPropertyDirectory()
	auth := &authsvc.Service{
		Users:     users,
		Sessions:  memory.NewSessionStore(),
		Passwords: security.BcryptHasher{Cost: bcrypt.MinCost},
		Tokens:    security.RandomTokenGenerator{},
		Logger:    logger,
	}
	metrics := obs.NewMetrics()
	hub := realtime.NewHub(logger, metrics)
	dispatcher := delivery.NewDispatcher(hub, 64, logger, metrics)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = dispatcher.Run(ctx) }()

	svc := messaging.NewService(messaging.Deps{
		Conversations: memory.NewConversationRepository(),
		Messages:      memory.NewMessageRepository(),
		Properties:    props,
		Profiles:      users,
		Notifier:      dispatcher,
		Metrics:       metrics,
		Logger:        logger,
	})

	router := NewRouter(obs.Middleware{Logger: logger, Metrics: metrics}, obs.HealthHandlers{}, Handlers{
		Chat:           ChatHandler{Messaging: svc, Logger: logger},
		Admin:          AdminHandler{Messaging: svc, Exporter: &transcripts.Exporter{Core: svc}, Logger: logger},
		Auth:           AuthHandler{Service: auth, Logger: logger},
		Socket:         NewSocketHandler(hub, logger),
		AuthMiddleware: AuthMiddleware{Gate: auth, Logger: logger}.Handle,
	})
	return &harness{router: router, props: props, users: users, auth: auth, hub: hub}
}

func (h *harness) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	req := httptest.NewRequest(method, path, &payload)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func (h *harness) register(t *testing.T, email, name, role string) dto.AuthResponse {
	t.Helper()
	rec := h.do(t, http.MethodPost, "/api/v1/auth/register", "", dto.RegisterRequest{
		Email: email, Name: name, Password: "correct-horse", Role: role,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[dto.AuthResponse](t, rec)
}

// admin accounts cannot self-register, so they are seeded and then log in.
func (h *harness) admin(t *testing.T) dto.AuthResponse {
	t.Helper()
	hash, err := security.BcryptHasher{Cost: bcrypt.MinCost}.Hash("correct-horse")
	require.NoError(t, err)
	user, err := domainuser.NewUser(domainuser.CreateParams{
		ID: "admin-1", Email: "support@example.com", Name: "Support", PasswordHash: hash, Role: domainuser.RoleAdmin,
	})
	require.NoError(t, err)
	require.NoError(t, h.users.Save(context.Background(), user))

	rec := h.do(t, http.MethodPost, "/api/v1/auth/login", "", dto.LoginRequest{Email: "support@example.com", Password: "correct-horse"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[dto.AuthResponse](t, rec)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type marketplace struct {
	buyer, seller, outsider, admin dto.AuthResponse
}

func (h *harness) marketplace(t *testing.T) marketplace {
	t.Helper()
	m := marketplace{
		buyer:    h.register(t, "bea@example.com", "Bea Buyer", "buyer"),
		seller:   h.register(t, "sam@example.com", "Sam Seller", "seller"),
		outsider: h.register(t, "olly@example.com", "Olly Outsider", "buyer"),
		admin:    h.admin(t),
	}
	require.NoError(t, h.props.Put(properties.Property{ID: "prop-1", Title: "Sunny loft", ContactID: m.seller.User.ID}))
	require.NoError(t, h.props.Put(properties.Property{ID: "prop-2", Title: "Garden flat", ContactID: m.seller.User.ID}))
	return m
}

func TestServer_BuyerStartsConversationAndSellerReplies(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	m := h.marketplace(t)

	rec := h.do(t, http.MethodPost, "/api/v1/conversations/find-or-create", m.buyer.Token, dto.FindOrCreateRequest{PropertyID: "prop-1"})
	req.Equal(http.StatusCreated, rec.Code, rec.Body.String())
	conv := decode[dto.Conversation](t, rec)
	req.Equal("prop-1", conv.PropertyID)
	req.ElementsMatch([]string{m.buyer.User.ID, m.seller.User.ID}, conv.ParticipantIDs)

	again := h.do(t, http.MethodPost, "/api/v1/conversations/find-or-create", m.buyer.Token, dto.FindOrCreateRequest{PropertyID: "prop-1"})
	req.Equal(http.StatusOK, again.Code)
	req.Equal(conv.ID, decode[dto.Conversation](t, again).ID)

	messagesPath := "/api/v1/conversations/" + conv.ID + "/messages"
	rec = h.do(t, http.MethodPost, messagesPath, m.buyer.Token, dto.SendMessageRequest{Text: "Is it still available?"})
	req.Equal(http.StatusCreated, rec.Code, rec.Body.String())
	sent := decode[dto.Message](t, rec)
	req.Equal("buyer", sent.SenderRole)

	rec = h.do(t, http.MethodGet, "/api/v1/conversations/my", m.seller.Token, nil)
	req.Equal(http.StatusOK, rec.Code)
	inbox := decode[dto.ConversationList](t, rec)
	req.Len(inbox.Items, 1)
	req.Equal(1, inbox.Items[0].UnreadCount)
	req.Equal("Sunny loft", inbox.Items[0].Property.Title)
	req.Equal("Bea Buyer", inbox.Items[0].Counterpart.DisplayName)

	rec = h.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/read", m.seller.Token, dto.MarkReadRequest{UptoMessageID: sent.ID})
	req.Equal(http.StatusOK, rec.Code, rec.Body.String())
	req.Equal(1, decode[dto.MarkReadResponse](t, rec).Marked)

	rec = h.do(t, http.MethodPost, messagesPath, m.seller.Token, dto.SendMessageRequest{Text: "Yes, viewing on Saturday?"})
	req.Equal(http.StatusCreated, rec.Code)
	req.Equal("seller", decode[dto.Message](t, rec).SenderRole)

	rec = h.do(t, http.MethodGet, messagesPath, m.buyer.Token, nil)
	req.Equal(http.StatusOK, rec.Code)
	list := decode[dto.MessageList](t, rec)
	req.Len(list.Items, 2)
	req.Equal(sent.ID, list.Items[0].ID)
	req.Len(list.Items[0].ReadBy, 1)
	req.Equal(m.seller.User.ID, list.Items[0].ReadBy[0].UserID)
}

func TestServer_MarkReadWithoutBody(t *testing.T) {
	h := newHarness(t)
	m := h.marketplace(t)
	rec := h.do(t, http.MethodPost, "/api/v1/conversations/find-or-create", m.buyer.Token, dto.FindOrCreateRequest{PropertyID: "prop-1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	conv := decode[dto.Conversation](t, rec)
	readPath := "/api/v1/conversations/" + conv.ID + "/read"

	markRead := func(t *testing.T, contentLength int64) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, readPath, strings.NewReader(""))
		req.ContentLength = contentLength
		if contentLength < 0 {
			req.TransferEncoding = []string{"chunked"}
		}
		req.Header.Set("Authorization", "Bearer "+m.seller.Token)
		rec := httptest.NewRecorder()
		h.router.ServeHTTP(rec, req)
		return rec
	}

	t.Run("should mark up to the latest message for an empty chunked body", func(t *testing.T) {
		req := require.New(t)
		rec := h.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", m.buyer.Token, dto.SendMessageRequest{Text: "Still listed?"})
		req.Equal(http.StatusCreated, rec.Code)

		rec = markRead(t, -1)
		req.Equal(http.StatusOK, rec.Code, rec.Body.String())
		req.Equal(1, decode[dto.MarkReadResponse](t, rec).Marked)
	})

	t.Run("should treat a repeat with no content as a no-op", func(t *testing.T) {
		rec := markRead(t, 0)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.Zero(t, decode[dto.MarkReadResponse](t, rec).Marked)
	})

	t.Run("should still reject malformed bodies", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, readPath, strings.NewReader("{"))
		req.Header.Set("Authorization", "Bearer "+m.seller.Token)
		rec := httptest.NewRecorder()
		h.router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestServer_AccessControl(t *testing.T) {
	h := newHarness(t)
	m := h.marketplace(t)
	rec := h.do(t, http.MethodPost, "/api/v1/conversations/find-or-create", m.buyer.Token, dto.FindOrCreateRequest{PropertyID: "prop-1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	conv := decode[dto.Conversation](t, rec)

	t.Run("should require authentication", func(t *testing.T) {
		req := require.New(t)
		for _, path := range []string{"/api/v1/conversations/my", "/api/v1/conversations/" + conv.ID + "/messages"} {
			rec := h.do(t, http.MethodGet, path, "", nil)
			req.Equal(http.StatusUnauthorized, rec.Code, path)
		}
		rec := h.do(t, http.MethodGet, "/api/v1/conversations/my", "not-a-token", nil)
		req.Equal(http.StatusUnauthorized, rec.Code)
	})

	t.Run("should hide conversations from outsiders", func(t *testing.T) {
		req := require.New(t)
		for _, id := range []string{conv.ID, "does-not-exist"} {
			rec := h.do(t, http.MethodGet, "/api/v1/conversations/"+id+"/messages", m.outsider.Token, nil)
			req.Equal(http.StatusForbidden, rec.Code)
		}
		rec := h.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", m.outsider.Token, dto.SendMessageRequest{Text: "let me in"})
		req.Equal(http.StatusForbidden, rec.Code)
	})

	t.Run("should let admins read any conversation", func(t *testing.T) {
		req := require.New(t)
		rec := h.do(t, http.MethodGet, "/api/v1/conversations/"+conv.ID, m.admin.Token, nil)
		req.Equal(http.StatusOK, rec.Code)
		rec = h.do(t, http.MethodGet, "/api/v1/conversations/does-not-exist", m.admin.Token, nil)
		req.Equal(http.StatusNotFound, rec.Code)
	})

	t.Run("should reject invalid input", func(t *testing.T) {
		req := require.New(t)
		rec := h.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", m.buyer.Token, dto.SendMessageRequest{Text: "   "})
		req.Equal(http.StatusBadRequest, rec.Code)
		rec = h.do(t, http.MethodPost, "/api/v1/conversations/find-or-create", m.seller.Token, dto.FindOrCreateRequest{PropertyID: "prop-1"})
		req.Equal(http.StatusBadRequest, rec.Code)
		rec = h.do(t, http.MethodPost, "/api/v1/conversations/find-or-create", m.buyer.Token, dto.FindOrCreateRequest{PropertyID: "prop-unknown"})
		req.Equal(http.StatusNotFound, rec.Code)
		rec = h.do(t, http.MethodGet, "/api/v1/conversations/my?cursor=@@@", m.buyer.Token, nil)
		req.Equal(http.StatusBadRequest, rec.Code)
	})
}

func TestServer_MessagePaginationAndPolling(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	m := h.marketplace(t)
	rec := h.do(t, http.MethodPost, "/api/v1/conversations/find-or-create", m.buyer.Token, dto.FindOrCreateRequest{PropertyID: "prop-2"})
	req.Equal(http.StatusCreated, rec.Code)
	conv := decode[dto.Conversation](t, rec)
	path := "/api/v1/conversations/" + conv.ID + "/messages"
	for i := 0; i < 5; i++ {
		req.Equal(http.StatusCreated, h.do(t, http.MethodPost, path, m.buyer.Token, dto.SendMessageRequest{Text: strings.Repeat("x", i+1)}).Code)
	}

	first := decode[dto.MessageList](t, h.do(t, http.MethodGet, path+"?limit=3", m.seller.Token, nil))
	req.Len(first.Items, 3)
	req.True(first.HasMore)
	req.NotEmpty(first.NextCursor)

	rest := decode[dto.MessageList](t, h.do(t, http.MethodGet, path+"?limit=3&cursor="+first.NextCursor, m.seller.Token, nil))
	req.Len(rest.Items, 2)
	req.False(rest.HasMore)
	req.Equal("xxxxx", rest.Items[1].Text)

	poll := decode[dto.MessageList](t, h.do(t, http.MethodGet, path+"?cursor="+rest.NextCursor, m.seller.Token, nil))
	req.Empty(poll.Items)
	req.Equal(rest.NextCursor, poll.NextCursor)
}

func TestServer_AdminInbox(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	m := h.marketplace(t)
	rec := h.do(t, http.MethodPost, "/api/v1/conversations/find-or-create", m.buyer.Token, dto.FindOrCreateRequest{PropertyID: "prop-1"})
	conv := decode[dto.Conversation](t, rec)
	h.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", m.buyer.Token, dto.SendMessageRequest{Text: "hello?"})
	h.do(t, http.MethodPost, "/api/v1/conversations/find-or-create", m.outsider.Token, dto.FindOrCreateRequest{PropertyID: "prop-2"})

	req.Equal(http.StatusForbidden, h.do(t, http.MethodGet, "/api/v1/admin/conversations", m.seller.Token, nil).Code)

	all := decode[dto.ConversationList](t, h.do(t, http.MethodGet, "/api/v1/admin/conversations", m.admin.Token, nil))
	req.Len(all.Items, 2)
	for _, item := range all.Items {
		req.Nil(item.Counterpart)
		req.Len(item.Participants, 2)
	}

	unresolved := decode[dto.ConversationList](t, h.do(t, http.MethodGet, "/api/v1/admin/conversations?unresolved=true", m.admin.Token, nil))
	req.Len(unresolved.Items, 1)
	req.Equal(conv.ID, unresolved.Items[0].ID)

	byProperty := decode[dto.ConversationList](t, h.do(t, http.MethodGet, "/api/v1/admin/conversations?property_id=prop-2", m.admin.Token, nil))
	req.Len(byProperty.Items, 1)
	req.Equal("prop-2", byProperty.Items[0].PropertyID)

	rec = h.do(t, http.MethodPost, "/api/v1/admin/conversations/"+conv.ID+"/export", m.admin.Token, nil)
	req.Equal(http.StatusServiceUnavailable, rec.Code)
}

func TestServer_AuthEndpoints(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	m := h.marketplace(t)

	rec := h.do(t, http.MethodGet, "/api/v1/auth/me", m.seller.Token, nil)
	req.Equal(http.StatusOK, rec.Code)
	profile := decode[dto.UserProfile](t, rec)
	req.Equal("seller", profile.Role)
	req.Equal("Sam Seller", profile.Name)

	rec = h.do(t, http.MethodPost, "/api/v1/auth/register", "", dto.RegisterRequest{Email: "x@example.com", Name: "X", Password: "correct-horse", Role: "admin"})
	req.Equal(http.StatusBadRequest, rec.Code)
	rec = h.do(t, http.MethodPost, "/api/v1/auth/register", "", dto.RegisterRequest{Email: "bea@example.com", Name: "Bea", Password: "correct-horse"})
	req.Equal(http.StatusConflict, rec.Code)
	rec = h.do(t, http.MethodPost, "/api/v1/auth/login", "", dto.LoginRequest{Email: "bea@example.com", Password: "wrong-password"})
	req.Equal(http.StatusUnauthorized, rec.Code)

	req.Equal(http.StatusNoContent, h.do(t, http.MethodPost, "/api/v1/auth/logout", m.seller.Token, nil).Code)
	req.Equal(http.StatusUnauthorized, h.do(t, http.MethodGet, "/api/v1/auth/me", m.seller.Token, nil).Code)
}

func TestServer_PushesNewMessagesOverWebsocket(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	m := h.marketplace(t)
	rec := h.do(t, http.MethodPost, "/api/v1/conversations/find-or-create", m.buyer.Token, dto.FindOrCreateRequest{PropertyID: "prop-1"})
	conv := decode[dto.Conversation](t, rec)

	srv := httptest.NewServer(h.router)
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?access_token=" + m.seller.Token

	ws, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	req.NoError(err)
	t.Cleanup(func() { _ = ws.Close() })
	req.Equal(http.StatusSwitchingProtocols, resp.StatusCode)

	var hello realtime.Frame
	req.NoError(ws.SetReadDeadline(time.Now().Add(5 * time.Second)))
	req.NoError(ws.ReadJSON(&hello))
	req.Equal(realtime.FrameConnected, hello.Type)
	req.Eventually(func() bool { return h.hub.Connected(m.seller.User.ID) == 1 }, 2*time.Second, 10*time.Millisecond)

	sent := h.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", m.buyer.Token, dto.SendMessageRequest{Text: "ping"})
	req.Equal(http.StatusCreated, sent.Code)

	var pushed realtime.Frame
	req.NoError(ws.ReadJSON(&pushed))
	req.Equal(realtime.FrameMessage, pushed.Type)
	req.Equal(conv.ID, pushed.ConversationID)
	req.NotNil(pushed.Message)
	req.Equal("ping", pushed.Message.Text)

	_, _, err = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	req.ErrorIs(err, websocket.ErrBadHandshake)
}
