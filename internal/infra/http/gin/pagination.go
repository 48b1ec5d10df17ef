package ginserver

import (
	"strconv"
	"strings"

	gin "github.com/gin-gonic/gin"

	"propchat/internal/domain/chat"
)

// pageFromQuery reads limit and cursor. A malformed cursor is an input error.
func pageFromQuery(c *gin.Context) (chat.PageRequest, error) {
	cursor, err := chat.ParseCursor(c.Query("cursor"))
	if err != nil {
		return chat.PageRequest{}, err
	}
	return chat.PageRequest{Cursor: cursor, Limit: parsePositiveIntStrict(c.Query("limit"), 0)}, nil
}

func parsePositiveIntStrict(raw string, def int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return def
	}
	return value
}

func parseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}
