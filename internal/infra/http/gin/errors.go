package ginserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"propchat/internal/domain/chat"
)

// respondChatError maps the messaging error taxonomy onto HTTP. Forbidden
// responses never reveal whether the conversation exists.
func respondChatError(c *gin.Context, logger *slog.Logger, err error, action string, attrs ...any) {
	switch {
	case errors.Is(err, chat.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "auth required"})
	case errors.Is(err, chat.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, chat.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, chat.ErrInvalidInput), errors.Is(err, chat.ErrInvalidOperation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "messaging unavailable"})
	default:
		if logger != nil {
			logger.Error("messaging call failed", append([]any{"action", action, "error", err}, attrs...)...)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if logger != nil {
		logger.Debug("messaging call rejected", append([]any{"action", action, "error", err}, attrs...)...)
	}
}
