package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	appauth "propchat/internal/app/services/auth"
	domainauth "propchat/internal/domain/auth"
	"propchat/internal/domain/chat"
	domainuser "propchat/internal/domain/user"
	"propchat/internal/infra/security"
	"propchat/internal/infra/storage/memory"
)

func newService() *appauth.Service {
	return &appauth.Service{
		Users:      memory.NewUserRepository(),
		Sessions:   memory.NewSessionStore(),
		Passwords:  security.BcryptHasher{Cost: bcrypt.MinCost},
		Tokens:     security.RandomTokenGenerator{},
		SessionTTL: time.Hour,
	}
}

func TestService_RegisterLoginAuthenticate(t *testing.T) {
	ctx := context.Background()
	svc := newService()

	t.Run("should register a seller and authenticate the issued token", func(t *testing.T) {
		req := require.New(t)
		res, err := svc.Register(ctx, appauth.RegisterParams{
			Email: "Agent@Example.com", Name: "Agent Smith", Password: "longenough", Role: "agent",
		})
		req.NoError(err)
		req.NotEmpty(res.Token)
		req.Equal(domainuser.RoleSeller, res.User.Role)
		req.Equal("agent@example.com", res.User.Email)

		actor, err := svc.Authenticate(ctx, domainauth.Credential{Token: res.Token})
		req.NoError(err)
		req.Equal(string(res.User.ID), actor.ID)
		req.Equal(chat.RoleSeller, actor.Role)
		req.Equal("Agent Smith", actor.DisplayName)
	})

	t.Run("should refuse self-assigned admin and short passwords", func(t *testing.T) {
		req := require.New(t)
		_, err := svc.Register(ctx, appauth.RegisterParams{Email: "a@b.c", Name: "A", Password: "longenough", Role: "admin"})
		req.ErrorIs(err, appauth.ErrRoleNotAllowed)
		_, err = svc.Register(ctx, appauth.RegisterParams{Email: "a@b.c", Name: "A", Password: "short"})
		req.ErrorIs(err, appauth.ErrPasswordTooShort)
	})

	t.Run("should log in with the right password only", func(t *testing.T) {
		req := require.New(t)
		_, err := svc.Register(ctx, appauth.RegisterParams{Email: "buyer@example.com", Name: "Bea", Password: "password1"})
		req.NoError(err)

		res, err := svc.Login(ctx, appauth.LoginParams{Email: "buyer@example.com", Password: "password1"})
		req.NoError(err)
		req.Equal(domainuser.RoleBuyer, res.User.Role)

		_, err = svc.Login(ctx, appauth.LoginParams{Email: "buyer@example.com", Password: "wrong-password"})
		req.ErrorIs(err, appauth.ErrInvalidCredentials)
		_, err = svc.Login(ctx, appauth.LoginParams{Email: "nobody@example.com", Password: "password1"})
		req.ErrorIs(err, appauth.ErrInvalidCredentials)
	})

	t.Run("should stop authenticating after logout", func(t *testing.T) {
		req := require.New(t)
		res, err := svc.Login(ctx, appauth.LoginParams{Email: "buyer@example.com", Password: "password1"})
		req.NoError(err)
		req.NoError(svc.Logout(ctx, res.Token))

		_, err = svc.Authenticate(ctx, domainauth.Credential{Token: res.Token})
		req.ErrorIs(err, chat.ErrUnauthenticated)
	})

	t.Run("should reject tokens that were never issued", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, domainauth.Credential{Token: "not-a-session"})
		require.ErrorIs(t, err, chat.ErrUnauthenticated)
	})

	t.Run("should treat missing credentials as unauthenticated", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, domainauth.Credential{})
		require.ErrorIs(t, err, chat.ErrUnauthenticated)
	})
}

func TestService_BlockedUsersLoseSessions(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	users := memory.NewUserRepository()
	svc := newService()
	svc.Users = users

	res, err := svc.Register(ctx, appauth.RegisterParams{Email: "x@example.com", Name: "X", Password: "password1"})
	req.NoError(err)

	user, err := users.ByID(ctx, res.User.ID)
	req.NoError(err)
	user.Block(time.Now())
	req.NoError(users.Save(ctx, user))

	_, err = svc.Authenticate(ctx, domainauth.Credential{Token: res.Token})
	req.ErrorIs(err, chat.ErrUnauthenticated)
	_, err = svc.Login(ctx, appauth.LoginParams{Email: "x@example.com", Password: "password1"})
	req.ErrorIs(err, appauth.ErrUserBlocked)
}
