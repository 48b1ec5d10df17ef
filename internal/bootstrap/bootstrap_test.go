package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	domainprops "propchat/internal/domain/properties"
	domainuser "propchat/internal/domain/user"
	"propchat/internal/infra/config"
	"propchat/internal/infra/obs"
	"propchat/internal/infra/security"
	"propchat/internal/infra/storage/memory"
)

func TestLoadFixtures(t *testing.T) {
	ctx := context.Background()
	logger := obs.Discard()

	t.Run("should seed properties and users", func(t *testing.T) {
		req := require.New(t)
		path := filepath.Join(t.TempDir(), "fixtures.json")
		req.NoError(os.WriteFile(path, []byte(`{
			"properties": [
				{"id": "flat-1", "title": "Flat", "contactId": "agent-1"},
				{"id": "house-2", "title": "House", "hostId": "owner-2"},
				{"id": "", "title": "broken"}
			],
			"users": [
				{"id": "admin-1", "email": "ops@example.com", "name": "Ops", "role": "admin", "password": "correct-horse"},
				{"id": "bad", "email": "", "name": "No Email", "role": "buyer", "password": "whatever1"}
			]
		}`), 0o600))
		props := memory.NewPropertyDirectory()
		users := memory.NewUserRepository()

		req.NoError(LoadFixtures(ctx, path, props, users, security.BcryptHasher{Cost: bcrypt.MinCost}, logger))

		p, err := props.Lookup(ctx, "house-2")
		req.NoError(err)
		req.Equal("owner-2", p.ContactID)
		_, err = props.Lookup(ctx, "missing")
		req.ErrorIs(err, domainprops.ErrNotFound)

		u, err := users.ByEmail(ctx, "ops@example.com")
		req.NoError(err)
		req.Equal(domainuser.RoleAdmin, u.Role)
		req.NotEqual("correct-horse", u.PasswordHash)
	})

	t.Run("should skip a missing file", func(t *testing.T) {
		require.NoError(t, LoadFixtures(ctx, filepath.Join(t.TempDir(), "none.json"), nil, memory.NewUserRepository(), security.BcryptHasher{}, logger))
	})
}

func TestOpenStorage_Memory(t *testing.T) {
	req := require.New(t)
	cfg := config.Config{StorageDriver: config.StorageMemory}
	st, err := OpenStorage(context.Background(), cfg, obs.Discard())
	req.NoError(err)
	req.NotNil(st.Conversations)
	req.NotNil(st.Messages)
	req.Nil(st.Mongo)
	req.NoError(st.Ready(context.Background()))
	req.NoError(st.Close(context.Background()))
}

func TestOpenProperties(t *testing.T) {
	t.Run("should expose the memory directory for fixtures", func(t *testing.T) {
		req := require.New(t)
		dir, fixtures, err := OpenProperties(config.Config{PropertySource: config.PropertiesMemory}, nil)
		req.NoError(err)
		req.NotNil(fixtures)
		req.Same(fixtures, dir)
	})

	t.Run("should refuse mongo without a connection", func(t *testing.T) {
		_, _, err := OpenProperties(config.Config{PropertySource: config.PropertiesMongo}, &Storage{})
		require.Error(t, err)
	})
}

func TestOpenBridge_None(t *testing.T) {
	req := require.New(t)
	b, err := OpenBridge(context.Background(), config.Config{DeliveryBridge: config.BridgeNone}, nil, nil, obs.Discard())
	req.NoError(err)
	req.Nil(b.Run)
	req.NotNil(b.Outbound)
	req.NoError(b.Close())
}
