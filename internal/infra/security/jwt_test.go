package security

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domainauth "propchat/internal/domain/auth"
	"propchat/internal/domain/chat"
)

func TestJWTGate_Authenticate(t *testing.T) {
	ctx := context.Background()
	gate, err := NewJWTGate("test-secret", "propchat", nil)
	require.NoError(t, err)

	t.Run("should resolve a valid token into an actor", func(t *testing.T) {
		req := require.New(t)
		token, err := gate.Issue(chat.Actor{ID: "u1", Role: chat.RoleSeller, DisplayName: "Sam"}, time.Hour)
		req.NoError(err)

		actor, err := gate.Authenticate(ctx, domainauth.CredentialFromHeader("Bearer "+token))
		req.NoError(err)
		req.Equal(chat.Actor{ID: "u1", Role: chat.RoleSeller, DisplayName: "Sam"}, actor)
	})

	t.Run("should reject expired, foreign and empty tokens", func(t *testing.T) {
		req := require.New(t)
		expired, err := gate.Issue(chat.Actor{ID: "u1", Role: chat.RoleBuyer}, -time.Minute)
		req.NoError(err)
		other, err := NewJWTGate("other-secret", "propchat", nil)
		req.NoError(err)
		foreign, err := other.Issue(chat.Actor{ID: "u1", Role: chat.RoleBuyer}, time.Hour)
		req.NoError(err)
		wrongIssuer, err := NewJWTGate("test-secret", "elsewhere", nil)
		req.NoError(err)
		misissued, err := wrongIssuer.Issue(chat.Actor{ID: "u1", Role: chat.RoleBuyer}, time.Hour)
		req.NoError(err)

		for _, token := range []string{expired, foreign, misissued, "garbage", ""} {
			_, err := gate.Authenticate(ctx, domainauth.Credential{Token: token})
			req.ErrorIs(err, chat.ErrUnauthenticated)
		}
	})

	t.Run("should reject unknown roles", func(t *testing.T) {
		req := require.New(t)
		token, err := gate.Issue(chat.Actor{ID: "u1", Role: "overlord"}, time.Hour)
		req.NoError(err)
		_, err = gate.Authenticate(ctx, domainauth.Credential{Token: token})
		req.ErrorIs(err, chat.ErrUnauthenticated)
	})

	t.Run("should require a secret", func(t *testing.T) {
		_, err := NewJWTGate(" ", "", nil)
		require.ErrorIs(t, err, ErrJWTSecretMissing)
	})
}
