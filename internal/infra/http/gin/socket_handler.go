package ginserver

import (
	"errors"
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"propchat/internal/infra/realtime"
)

type SocketHTTP interface {
	Connect(c *gin.Context)
}

// SocketHandler upgrades authenticated requests to push sessions. The
// socket only carries notifications; writes still go through HTTP.
type SocketHandler struct {
	Hub      *realtime.Hub
	Upgrader websocket.Upgrader
	Logger   *slog.Logger
}

func NewSocketHandler(hub *realtime.Hub, logger *slog.Logger) *SocketHandler {
	return &SocketHandler{
		Hub:    hub,
		Logger: logger,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *SocketHandler) Connect(c *gin.Context) {
	actor, ok := requireActor(c, false)
	if !ok {
		return
	}
	ws, err := h.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Debug("websocket upgrade failed", "error", err, "user_id", actor.ID)
		}
		return
	}
	conn := realtime.NewConnection(actor.ID, ws)
	conn.Start()
	h.Hub.Attach(conn, actor)
	defer h.Hub.Detach(conn)

	err = conn.ReadLoop(func(payload []byte) {
		h.Hub.HandleFrame(conn, payload)
	})
	if err != nil && !errors.Is(err, realtime.ErrConnectionClosed) && h.Logger != nil {
		h.Logger.Debug("websocket session ended", "error", err, "user_id", actor.ID, "session_id", conn.ID())
	}
	conn.Close(websocket.CloseNormalClosure, "")
}
