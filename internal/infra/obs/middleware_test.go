package obs

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_RequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var seen string
	router := gin.New()
	router.Use(Middleware{Logger: Discard()}.RequestID())
	router.GET("/ping", func(c *gin.Context) {
		seen = RequestIDFromContext(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	serve := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		if header != "" {
			req.Header.Set(RequestIDHeader, header)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	t.Run("should keep a caller supplied id", func(t *testing.T) {
		rec := serve("req-42")
		require.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
		require.Equal(t, "req-42", seen)
	})

	t.Run("should mint an id when missing or unusable", func(t *testing.T) {
		req := require.New(t)
		for _, header := range []string{"", "has space", strings.Repeat("x", maxRequestIDLen+1)} {
			rec := serve(header)
			id := rec.Header().Get(RequestIDHeader)
			req.NotEqual(header, id)
			req.Len(id, 36)
			req.Equal(id, seen)
		}
	})
}
