package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	domainauth "propchat/internal/domain/auth"
	"propchat/internal/domain/chat"
	domainuser "propchat/internal/domain/user"
)

const (
	minPasswordRunes  = 8
	defaultSessionTTL = 24 * time.Hour
)

var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrPasswordTooShort   = errors.New("auth: password must be at least 8 characters")
	ErrUserBlocked        = errors.New("auth: user blocked")
	ErrRoleNotAllowed     = errors.New("auth: role cannot be self-assigned")
)

// Gate turns a credential into an actor. Any failure is reported as
// chat.ErrUnauthenticated so callers never learn why a credential was refused.
type Gate interface {
	Authenticate(ctx context.Context, cred domainauth.Credential) (chat.Actor, error)
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

type TokenGenerator interface {
	NewToken() (string, error)
	// WellFormed lets malformed tokens be refused without a store lookup.
	WellFormed(token string) bool
}

// Service registers chat participants and issues the opaque bearer sessions
// the gateway resolves into actors.
type Service struct {
	Users      domainuser.Repository
	Sessions   domainauth.SessionStore
	Passwords  PasswordHasher
	Tokens     TokenGenerator
	SessionTTL time.Duration
	Logger     *slog.Logger
	Now        func() time.Time
}

type RegisterParams struct {
	Email    string
	Name     string
	Password string
	Role     string
}

type LoginParams struct {
	Email    string
	Password string
}

type AuthResult struct {
	User  *domainuser.User
	Token string
}

type ResolveResult struct {
	User    *domainuser.User
	Session *domainauth.Session
}

// Register creates a buyer or seller account and signs it in. Admin accounts
// only come from fixtures.
func (s *Service) Register(ctx context.Context, params RegisterParams) (*AuthResult, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	role, err := selfAssignedRole(params.Role)
	if err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(params.Password) < minPasswordRunes {
		return nil, ErrPasswordTooShort
	}
	hash, err := s.Passwords.Hash(params.Password)
	if err != nil {
		return nil, err
	}
	user, err := domainuser.NewUser(domainuser.CreateParams{
		ID:           domainuser.ID(uuid.NewString()),
		Email:        params.Email,
		Name:         params.Name,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    s.now(),
	})
	if err != nil {
		return nil, err
	}
	if err := s.Users.Save(ctx, user); err != nil {
		return nil, err
	}
	return s.signIn(ctx, user, "user registered")
}

func (s *Service) Login(ctx context.Context, params LoginParams) (*AuthResult, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	email := domainuser.NormalizeEmail(params.Email)
	if email == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := s.Users.ByEmail(ctx, email)
	switch {
	case errors.Is(err, domainuser.ErrNotFound):
		return nil, ErrInvalidCredentials
	case err != nil:
		return nil, err
	case user.Blocked:
		return nil, ErrUserBlocked
	}
	if err := s.Passwords.Compare(user.PasswordHash, params.Password); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.signIn(ctx, user, "user authenticated")
}

// Logout drops a session. Unknown or empty tokens are not an error.
func (s *Service) Logout(ctx context.Context, token string) error {
	if err := s.ready(); err != nil {
		return err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	if err := s.Sessions.Delete(ctx, domainauth.Token(token)); err != nil {
		return err
	}
	s.info("session terminated")
	return nil
}

// ResolveToken loads the session and its owner. Sessions of deleted users are
// discarded, and a blocked user loses every session at once.
func (s *Service) ResolveToken(ctx context.Context, token string) (*ResolveResult, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	token = strings.TrimSpace(token)
	switch {
	case token == "":
		return nil, domainauth.ErrTokenRequired
	case !s.Tokens.WellFormed(token):
		return nil, domainauth.ErrSessionNotFound
	}
	session, err := s.Sessions.Get(ctx, domainauth.Token(token))
	if err != nil {
		return nil, err
	}
	user, err := s.Users.ByID(ctx, session.UserID)
	if errors.Is(err, domainuser.ErrNotFound) {
		_ = s.Sessions.Delete(ctx, session.Token)
		return nil, domainauth.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if user.Blocked {
		_ = s.Sessions.DeleteByUser(ctx, user.ID)
		return nil, ErrUserBlocked
	}
	return &ResolveResult{User: user, Session: session}, nil
}

// Authenticate resolves a session credential into an actor.
func (s *Service) Authenticate(ctx context.Context, cred domainauth.Credential) (chat.Actor, error) {
	if cred.Empty() {
		return chat.Actor{}, chat.ErrUnauthenticated
	}
	resolved, err := s.ResolveToken(ctx, cred.Token)
	if err != nil {
		if s.Logger != nil && !errors.Is(err, domainauth.ErrSessionNotFound) {
			s.Logger.Debug("session rejected", "err", err)
		}
		return chat.Actor{}, chat.ErrUnauthenticated
	}
	return actorOf(resolved.User)
}

func actorOf(u *domainuser.User) (chat.Actor, error) {
	role, ok := chat.ParseRole(string(u.Role))
	if !ok {
		return chat.Actor{}, chat.ErrUnauthenticated
	}
	return chat.Actor{ID: string(u.ID), Role: role, DisplayName: u.Name}, nil
}

func selfAssignedRole(raw string) (domainuser.Role, error) {
	if strings.TrimSpace(raw) == "" {
		return domainuser.RoleBuyer, nil
	}
	role, err := domainuser.ParseRole(raw)
	if err != nil {
		return "", err
	}
	if role == domainuser.RoleAdmin {
		return "", ErrRoleNotAllowed
	}
	return role, nil
}

func (s *Service) signIn(ctx context.Context, user *domainuser.User, event string) (*AuthResult, error) {
	token, err := s.Tokens.NewToken()
	if err != nil {
		return nil, err
	}
	ttl := s.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	session, err := domainauth.NewSession(domainauth.CreateSessionParams{
		Token:  domainauth.Token(token),
		UserID: user.ID,
		Role:   user.Role,
		TTL:    ttl,
		Now:    s.now(),
	})
	if err != nil {
		return nil, err
	}
	if err := s.Sessions.Save(ctx, session); err != nil {
		return nil, err
	}
	s.info(event, "user_id", user.ID, "role", user.Role)
	return &AuthResult{User: user, Token: token}, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) info(msg string, args ...any) {
	if s.Logger != nil {
		s.Logger.Info(msg, args...)
	}
}

func (s *Service) ready() error {
	var missing []string
	if s.Users == nil {
		missing = append(missing, "user repository")
	}
	if s.Sessions == nil {
		missing = append(missing, "session store")
	}
	if s.Passwords == nil {
		missing = append(missing, "password hasher")
	}
	if s.Tokens == nil {
		missing = append(missing, "token generator")
	}
	if len(missing) > 0 {
		return errors.New("auth: missing " + strings.Join(missing, ", "))
	}
	return nil
}

var _ Gate = (*Service)(nil)
