package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	domainauth "propchat/internal/domain/auth"
	domainuser "propchat/internal/domain/user"
)

// SessionStore keeps bearer sessions in memory. Expired sessions are dropped
// lazily on lookup and swept on every save.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[domainauth.Token]domainauth.Session
	now      func() time.Time
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: map[domainauth.Token]domainauth.Session{},
		now:      time.Now,
	}
}

func (s *SessionStore) Save(_ context.Context, session *domainauth.Session) error {
	if session == nil || session.Token == "" {
		return domainauth.ErrTokenRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	maps.DeleteFunc(s.sessions, func(_ domainauth.Token, v domainauth.Session) bool {
		return v.Expired(now)
	})
	s.sessions[session.Token] = *session
	return nil
}

func (s *SessionStore) Get(_ context.Context, token domainauth.Token) (*domainauth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[token]
	if !ok {
		return nil, domainauth.ErrSessionNotFound
	}
	if session.Expired(s.now()) {
		delete(s.sessions, token)
		return nil, domainauth.ErrSessionNotFound
	}
	return &session, nil
}

func (s *SessionStore) Delete(_ context.Context, token domainauth.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

func (s *SessionStore) DeleteByUser(_ context.Context, userID domainuser.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	maps.DeleteFunc(s.sessions, func(_ domainauth.Token, v domainauth.Session) bool {
		return v.UserID == userID
	})
	return nil
}

var _ domainauth.SessionStore = (*SessionStore)(nil)
