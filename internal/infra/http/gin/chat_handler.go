package ginserver

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"propchat/internal/app/dto"
	"propchat/internal/app/messaging"
	"propchat/internal/domain/chat"
)

// ChatHTTP exposes participant chat endpoints.
type ChatHTTP interface {
	FindOrCreate(c *gin.Context)
	Get(c *gin.Context)
	ListMessages(c *gin.Context)
	SendMessage(c *gin.Context)
	MarkRead(c *gin.Context)
	ListMine(c *gin.Context)
}

// ChatHandler bridges HTTP with the messaging core, local or remote.
type ChatHandler struct {
	Messaging messaging.Core
	Logger    *slog.Logger
}

// FindOrCreate answers 201 for a new conversation and 200 for an existing one.
func (h ChatHandler) FindOrCreate(c *gin.Context) {
	actor, ok := requireActor(c, false)
	if !ok || !h.available(c) {
		return
	}
	var req dto.FindOrCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	conv, created, err := h.Messaging.FindOrCreate(c.Request.Context(), actor, strings.TrimSpace(req.PropertyID))
	if err != nil {
		respondChatError(c, h.Logger, err, "find or create conversation", "property_id", req.PropertyID, "user_id", actor.ID)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, dto.MapConversation(conv))
}

func (h ChatHandler) Get(c *gin.Context) {
	actor, ok := requireActor(c, false)
	if !ok || !h.available(c) {
		return
	}
	id := chat.ConversationID(c.Param("id"))
	conv, err := h.Messaging.Conversation(c.Request.Context(), actor, id)
	if err != nil {
		respondChatError(c, h.Logger, err, "load conversation", "conversation_id", id, "user_id", actor.ID)
		return
	}
	c.JSON(http.StatusOK, dto.MapConversation(conv))
}

// ListMessages returns messages oldest first. Clients poll with the returned
// cursor to pick up anything newer.
func (h ChatHandler) ListMessages(c *gin.Context) {
	actor, ok := requireActor(c, false)
	if !ok || !h.available(c) {
		return
	}
	id := chat.ConversationID(c.Param("id"))
	page, err := pageFromQuery(c)
	if err != nil {
		respondChatError(c, h.Logger, err, "list messages")
		return
	}
	result, err := h.Messaging.Messages(c.Request.Context(), actor, id, page)
	if err != nil {
		respondChatError(c, h.Logger, err, "list messages", "conversation_id", id, "user_id", actor.ID)
		return
	}
	c.JSON(http.StatusOK, dto.MapMessagePage(result))
}

func (h ChatHandler) SendMessage(c *gin.Context) {
	actor, ok := requireActor(c, false)
	if !ok || !h.available(c) {
		return
	}
	id := chat.ConversationID(c.Param("id"))
	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	msg, err := h.Messaging.Append(c.Request.Context(), actor, id, req.Text)
	if err != nil {
		respondChatError(c, h.Logger, err, "send message", "conversation_id", id, "user_id", actor.ID)
		return
	}
	c.JSON(http.StatusCreated, dto.MapMessage(msg))
}

// MarkRead accepts an empty body, meaning everything up to the latest message.
func (h ChatHandler) MarkRead(c *gin.Context) {
	actor, ok := requireActor(c, false)
	if !ok || !h.available(c) {
		return
	}
	id := chat.ConversationID(c.Param("id"))
	var req dto.MarkReadRequest
	// chunked requests report ContentLength -1, so an empty body shows up as EOF
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	marked, err := h.Messaging.MarkRead(c.Request.Context(), actor, id, chat.MessageID(strings.TrimSpace(req.UptoMessageID)))
	if err != nil {
		respondChatError(c, h.Logger, err, "mark read", "conversation_id", id, "user_id", actor.ID)
		return
	}
	c.JSON(http.StatusOK, dto.MarkReadResponse{Marked: marked})
}

// ListMine returns the caller's conversations, most recent activity first.
func (h ChatHandler) ListMine(c *gin.Context) {
	actor, ok := requireActor(c, false)
	if !ok || !h.available(c) {
		return
	}
	page, err := pageFromQuery(c)
	if err != nil {
		respondChatError(c, h.Logger, err, "list conversations")
		return
	}
	result, err := h.Messaging.ListForParticipant(c.Request.Context(), actor, page)
	if err != nil {
		respondChatError(c, h.Logger, err, "list conversations", "user_id", actor.ID)
		return
	}
	c.JSON(http.StatusOK, dto.MapSummaryPage(result))
}

func (h ChatHandler) available(c *gin.Context) bool {
	if h.Messaging == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "messaging unavailable"})
		return false
	}
	return true
}
