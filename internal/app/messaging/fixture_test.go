package messaging

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"propchat/internal/domain/chat"
	"propchat/internal/domain/properties"
	domainuser "propchat/internal/domain/user"
	"propchat/internal/infra/storage/memory"
)

var (
	buyer    = chat.Actor{ID: "buyer-1", Role: chat.RoleBuyer}
	buyer2   = chat.Actor{ID: "buyer-2", Role: chat.RoleBuyer}
	outsider = chat.Actor{ID: "buyer-3", Role: chat.RoleBuyer}
	seller   = chat.Actor{ID: "seller-1", Role: chat.RoleSeller}
	admin    = chat.Actor{ID: "admin-1", Role: chat.RoleAdmin}
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []chat.Message
}

func (n *recordingNotifier) Notify(_ chat.Conversation, msg chat.Message) {
	n.mu.Lock()
	n.events = append(n.events, msg)
	n.mu.Unlock()
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

// steppingClock advances by step on every read so ordering does not depend on wall time.
type steppingClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

type fixture struct {
	svc      *Service
	convs    *memory.ConversationRepository
	msgs     *memory.MessageRepository
	props    *memory.PropertyDirectory
	notifier *recordingNotifier
	clock    *steppingClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	req := require.New(t)

	props := memory.NewPropertyDirectory()
	req.NoError(props.Put(properties.Property{ID: "prop-1", Title: "Sunny loft", ContactID: seller.ID}))
	req.NoError(props.Put(properties.Property{ID: "prop-2", Title: "Garden flat", ContactID: seller.ID}))
	req.NoError(props.Put(properties.Property{ID: "prop-orphan", Title: "No agent yet"}))

	users := memory.NewUserRepository()
	for _, u := range []struct{ id, name string }{
		{buyer.ID, "Bea Buyer"},
		{buyer2.ID, "Ben Buyer"},
		{seller.ID, "Sam Seller"},
	} {
		req.NoError(users.Save(context.Background(), &domainuser.User{
			ID:           domainuser.ID(u.id),
			Email:        u.id + "@example.com",
			Name:         u.name,
			PasswordHash: "x",
			Role:         domainuser.RoleBuyer,
		}))
	}

	f := &fixture{
		convs:    memory.NewConversationRepository(),
		msgs:     memory.NewMessageRepository(),
		props:    props,
		notifier: &recordingNotifier{},
		clock:    &steppingClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), step: time.Second},
	}
	f.svc = NewService(Deps{
		Conversations: f.convs,
		Messages:      f.msgs,
		Properties:    props,
		Profiles:      users,
		Notifier:      f.notifier,
		Now:           f.clock.Now,
	})
	return f
}

func (f *fixture) conversation(t *testing.T, actor chat.Actor, propertyID string) chat.Conversation {
	t.Helper()
	conv, _, err := f.svc.FindOrCreate(context.Background(), actor, propertyID)
	require.NoError(t, err)
	return conv
}

func (f *fixture) send(t *testing.T, actor chat.Actor, id chat.ConversationID, body string) chat.Message {
	t.Helper()
	msg, err := f.svc.Append(context.Background(), actor, id, body)
	require.NoError(t, err)
	return msg
}
