package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/samber/lo"

	"propchat/internal/app/delivery"
	"propchat/internal/app/dto"
	"propchat/internal/domain/chat"
)

// Session is one connected push channel. Sessions go Connected -> Disconnected
// exactly once; nothing is replayed when a user reconnects.
type Session interface {
	ID() string
	UserID() string
	Send(payload []byte) error
	Close(code int, reason string)
}

type SessionMetrics interface {
	SessionOpened()
	SessionClosed()
}

type member struct {
	session Session
	actor   chat.Actor
	watch   bool
}

// Hub tracks connected sessions on this instance and fans events out to them.
// A user may hold several sessions (devices) at once.
type Hub struct {
	Logger  *slog.Logger
	Metrics SessionMetrics

	mu       sync.RWMutex
	sessions map[string]*member
	byUser   map[string]map[string]struct{}
}

func NewHub(logger *slog.Logger, metrics SessionMetrics) *Hub {
	return &Hub{
		Logger:   logger,
		Metrics:  metrics,
		sessions: make(map[string]*member),
		byUser:   make(map[string]map[string]struct{}),
	}
}

// Attach registers a session for the actor and greets it.
func (h *Hub) Attach(sess Session, actor chat.Actor) {
	h.mu.Lock()
	h.sessions[sess.ID()] = &member{session: sess, actor: actor}
	ids, ok := h.byUser[actor.ID]
	if !ok {
		ids = make(map[string]struct{})
		h.byUser[actor.ID] = ids
	}
	ids[sess.ID()] = struct{}{}
	h.mu.Unlock()

	if h.Metrics != nil {
		h.Metrics.SessionOpened()
	}
	_ = sess.Send(encodeFrame(Frame{Type: FrameConnected, SessionID: sess.ID()}))
}

// Detach forgets a session. Unknown sessions are ignored.
func (h *Hub) Detach(sess Session) {
	h.mu.Lock()
	m, ok := h.sessions[sess.ID()]
	if ok {
		delete(h.sessions, sess.ID())
		if ids := h.byUser[m.actor.ID]; ids != nil {
			delete(ids, sess.ID())
			if len(ids) == 0 {
				delete(h.byUser, m.actor.ID)
			}
		}
	}
	h.mu.Unlock()
	if ok && h.Metrics != nil {
		h.Metrics.SessionClosed()
	}
}

// HandleFrame applies a client frame to the session's subscription state.
func (h *Hub) HandleFrame(sess Session, payload []byte) {
	var f Frame
	if err := json.Unmarshal(payload, &f); err != nil {
		_ = sess.Send(encodeFrame(Frame{Type: FrameError, Error: "malformed frame"}))
		return
	}
	switch f.Type {
	case FrameInboxWatch, FrameInboxUnwatch:
		h.mu.Lock()
		m, ok := h.sessions[sess.ID()]
		allowed := ok && m.actor.IsAdmin()
		if allowed {
			m.watch = f.Type == FrameInboxWatch
		}
		h.mu.Unlock()
		if !allowed {
			_ = sess.Send(encodeFrame(Frame{Type: FrameError, Error: "inbox watch requires admin role"}))
		}
	default:
		_ = sess.Send(encodeFrame(Frame{Type: FrameError, Error: "unsupported frame type"}))
	}
}

// Deliver pushes a message event to the conversation's connected participants
// and to admins watching the inbox. Send failures only affect that session.
func (h *Hub) Deliver(ctx context.Context, evt delivery.Event) error {
	msg := dto.MapMessage(evt.Message)
	payload := encodeFrame(Frame{
		Type:           FrameMessage,
		ConversationID: string(evt.ConversationID),
		PropertyID:     evt.PropertyID,
		Message:        &msg,
	})

	h.mu.RLock()
	targets := make([]Session, 0, 4)
	for _, userID := range evt.Participants {
		for id := range h.byUser[userID] {
			targets = append(targets, h.sessions[id].session)
		}
	}
	for _, m := range h.sessions {
		if m.watch {
			targets = append(targets, m.session)
		}
	}
	h.mu.RUnlock()

	targets = lo.UniqBy(targets, func(s Session) string { return s.ID() })
	for _, sess := range targets {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := sess.Send(payload); err != nil {
			if h.Logger != nil {
				h.Logger.Debug("push failed", "session_id", sess.ID(), "user_id", sess.UserID(), "err", err)
			}
			h.Detach(sess)
		}
	}
	return nil
}

// Connected reports how many sessions the user currently holds.
func (h *Hub) Connected(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID])
}

// Close disconnects every session.
func (h *Hub) Close() {
	h.mu.Lock()
	members := lo.Values(h.sessions)
	h.sessions = make(map[string]*member)
	h.byUser = make(map[string]map[string]struct{})
	h.mu.Unlock()
	for _, m := range members {
		m.session.Close(1001, "server shutdown")
		if h.Metrics != nil {
			h.Metrics.SessionClosed()
		}
	}
}

var _ delivery.Sink = (*Hub)(nil)
