package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"propchat/internal/app/dto"
	"propchat/internal/app/messaging"
	"propchat/internal/app/transcripts"
	"propchat/internal/domain/chat"
)

type AdminHTTP interface {
	ListInbox(c *gin.Context)
	Export(c *gin.Context)
}

// AdminHandler serves the support inbox.
type AdminHandler struct {
	Messaging messaging.Core
	Exporter  *transcripts.Exporter
	Logger    *slog.Logger
}

type exportResponse struct {
	URL      string `json:"url"`
	Key      string `json:"key"`
	Messages int    `json:"messages"`
}

func (h AdminHandler) ListInbox(c *gin.Context) {
	actor, ok := requireActor(c, true)
	if !ok {
		return
	}
	if h.Messaging == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "messaging unavailable"})
		return
	}
	page, err := pageFromQuery(c)
	if err != nil {
		respondChatError(c, h.Logger, err, "list inbox")
		return
	}
	filter := messaging.AdminFilter{
		PropertyID:     strings.TrimSpace(c.Query("property_id")),
		ParticipantID:  strings.TrimSpace(c.Query("participant_id")),
		UnresolvedOnly: parseBool(c.Query("unresolved")),
	}
	result, err := h.Messaging.ListForAdminInbox(c.Request.Context(), actor, filter, page)
	if err != nil {
		respondChatError(c, h.Logger, err, "list inbox", "user_id", actor.ID)
		return
	}
	c.JSON(http.StatusOK, dto.MapSummaryPage(result))
}

// Export uploads a transcript and returns a time-limited download link.
func (h AdminHandler) Export(c *gin.Context) {
	actor, ok := requireActor(c, true)
	if !ok {
		return
	}
	id := chat.ConversationID(c.Param("id"))
	result, err := h.Exporter.Export(c.Request.Context(), actor, id)
	if err != nil {
		if errors.Is(err, transcripts.ErrNotConfigured) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "transcript storage is not configured"})
			return
		}
		respondChatError(c, h.Logger, err, "export transcript", "conversation_id", id)
		return
	}
	c.JSON(http.StatusOK, exportResponse{URL: result.URL, Key: result.Key, Messages: result.Messages})
}
