package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"propchat/internal/app/delivery"
	"propchat/internal/domain/chat"
)

type fakeSession struct {
	id, user string
	fail     bool

	mu     sync.Mutex
	frames []Frame
	closed bool
}

func (s *fakeSession) ID() string     { return s.id }
func (s *fakeSession) UserID() string { return s.user }

func (s *fakeSession) Send(payload []byte) error {
	if s.fail {
		return errors.New("broken pipe")
	}
	var f Frame
	if err := json.Unmarshal(payload, &f); err != nil {
		return err
	}
	s.mu.Lock()
	s.frames = append(s.frames, f)
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) Close(int, string) {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *fakeSession) messages() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Frame
	for _, f := range s.frames {
		if f.Type == FrameMessage {
			out = append(out, f)
		}
	}
	return out
}

func (s *fakeSession) last() Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames[len(s.frames)-1]
}

func messageEvent() delivery.Event {
	return delivery.NewMessageEvent(
		chat.Conversation{ID: "c1", PropertyID: "p1", ParticipantIDs: []string{"buyer", "seller"}},
		chat.Message{ID: "m1", ConversationID: "c1", SenderID: "buyer", SenderRole: chat.RoleBuyer, Body: "hi", CreatedAt: time.Now().UTC()},
	)
}

func TestHub_DeliversToParticipantsAndWatchingAdmins(t *testing.T) {
	req := require.New(t)
	hub := NewHub(nil, nil)

	buyerPhone := &fakeSession{id: "s1", user: "buyer"}
	buyerLaptop := &fakeSession{id: "s2", user: "buyer"}
	seller := &fakeSession{id: "s3", user: "seller"}
	stranger := &fakeSession{id: "s4", user: "stranger"}
	watcher := &fakeSession{id: "s5", user: "admin"}
	idleAdmin := &fakeSession{id: "s6", user: "admin2"}

	hub.Attach(buyerPhone, chat.Actor{ID: "buyer", Role: chat.RoleBuyer})
	hub.Attach(buyerLaptop, chat.Actor{ID: "buyer", Role: chat.RoleBuyer})
	hub.Attach(seller, chat.Actor{ID: "seller", Role: chat.RoleSeller})
	hub.Attach(stranger, chat.Actor{ID: "stranger", Role: chat.RoleBuyer})
	hub.Attach(watcher, chat.Actor{ID: "admin", Role: chat.RoleAdmin})
	hub.Attach(idleAdmin, chat.Actor{ID: "admin2", Role: chat.RoleAdmin})
	hub.HandleFrame(watcher, []byte(`{"type":"inbox.watch"}`))

	req.Equal(FrameConnected, buyerPhone.frames[0].Type)
	req.Equal(2, hub.Connected("buyer"))

	req.NoError(hub.Deliver(context.Background(), messageEvent()))

	for _, s := range []*fakeSession{buyerPhone, buyerLaptop, seller, watcher} {
		got := s.messages()
		req.Len(got, 1, s.id)
		req.Equal("c1", got[0].ConversationID)
		req.Equal("hi", got[0].Message.Text)
	}
	req.Empty(stranger.messages())
	req.Empty(idleAdmin.messages())
}

func TestHub_InboxWatchRequiresAdmin(t *testing.T) {
	req := require.New(t)
	hub := NewHub(nil, nil)
	sess := &fakeSession{id: "s1", user: "buyer"}
	hub.Attach(sess, chat.Actor{ID: "buyer", Role: chat.RoleBuyer})

	hub.HandleFrame(sess, []byte(`{"type":"inbox.watch"}`))
	req.Equal(FrameError, sess.last().Type)

	hub.HandleFrame(sess, []byte(`not json`))
	req.Equal(FrameError, sess.last().Type)

	req.NoError(hub.Deliver(context.Background(), delivery.NewMessageEvent(
		chat.Conversation{ID: "c2", ParticipantIDs: []string{"x", "y"}},
		chat.Message{ID: "m", Body: "secret"},
	)))
	req.Empty(sess.messages())
}

func TestHub_DropsBrokenSessionsWithoutFailingDelivery(t *testing.T) {
	req := require.New(t)
	hub := NewHub(nil, nil)
	broken := &fakeSession{id: "s1", user: "buyer"}
	healthy := &fakeSession{id: "s2", user: "seller"}
	hub.Attach(healthy, chat.Actor{ID: "seller", Role: chat.RoleSeller})
	hub.Attach(broken, chat.Actor{ID: "buyer", Role: chat.RoleBuyer})
	broken.fail = true

	req.NoError(hub.Deliver(context.Background(), messageEvent()))
	req.Len(healthy.messages(), 1)
	req.Zero(hub.Connected("buyer"))
}

func TestHub_NoReplayAfterReconnect(t *testing.T) {
	req := require.New(t)
	hub := NewHub(nil, nil)
	first := &fakeSession{id: "s1", user: "buyer"}
	hub.Attach(first, chat.Actor{ID: "buyer", Role: chat.RoleBuyer})
	hub.Detach(first)

	req.NoError(hub.Deliver(context.Background(), messageEvent()))

	second := &fakeSession{id: "s2", user: "buyer"}
	hub.Attach(second, chat.Actor{ID: "buyer", Role: chat.RoleBuyer})
	req.Empty(second.messages())
	req.Empty(first.messages())
}

func TestHub_CloseDisconnectsEveryone(t *testing.T) {
	req := require.New(t)
	hub := NewHub(nil, nil)
	sess := &fakeSession{id: "s1", user: "buyer"}
	hub.Attach(sess, chat.Actor{ID: "buyer", Role: chat.RoleBuyer})

	hub.Close()
	req.True(sess.closed)
	req.Zero(hub.Connected("buyer"))
}
