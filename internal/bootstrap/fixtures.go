package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	domainprops "propchat/internal/domain/properties"
	domainuser "propchat/internal/domain/user"
)

// PasswordHasher hashes fixture passwords before users are stored.
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// PropertySink accepts fixture properties.
type PropertySink interface {
	Put(p domainprops.Property) error
}

type fixtureFile struct {
	Properties []propertyFixture `json:"properties"`
	Users      []userFixture     `json:"users"`
}

type propertyFixture struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	ContactID string `json:"contactId"`
	HostID    string `json:"hostId"`
}

type userFixture struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	Password string `json:"password"`
}

// LoadFixtures seeds demo properties and users from a JSON file. A missing
// file is not an error; invalid entries are logged and skipped.
func LoadFixtures(ctx context.Context, path string, props PropertySink, users domainuser.Repository, hasher PasswordHasher, logger *slog.Logger) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("fixtures file not found, skipping", "path", path)
			return nil
		}
		return fmt.Errorf("read fixtures: %w", err)
	}
	var file fixtureFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("decode fixtures: %w", err)
	}

	if props != nil {
		for _, fx := range file.Properties {
			contact := fx.ContactID
			if contact == "" {
				contact = fx.HostID
			}
			if err := props.Put(domainprops.Property{ID: fx.ID, Title: fx.Title, ContactID: contact}); err != nil {
				logger.Error("fixture property invalid", "property_id", fx.ID, "error", err)
			}
		}
	}

	now := time.Now().UTC()
	for _, fx := range file.Users {
		if _, err := users.ByEmail(ctx, fx.Email); err == nil {
			continue
		}
		hash, err := hasher.Hash(fx.Password)
		if err != nil {
			logger.Error("fixture password hash failed", "user_id", fx.ID, "error", err)
			continue
		}
		u, err := domainuser.NewUser(domainuser.CreateParams{
			ID:           domainuser.ID(fx.ID),
			Email:        fx.Email,
			Name:         fx.Name,
			PasswordHash: hash,
			Role:         domainuser.Role(fx.Role),
			CreatedAt:    now,
		})
		if err != nil {
			logger.Error("fixture user invalid", "user_id", fx.ID, "error", err)
			continue
		}
		if err := users.Save(ctx, u); err != nil {
			logger.Error("cannot store fixture user", "user_id", fx.ID, "error", err)
			continue
		}
	}
	logger.Info("fixtures imported", "path", path, "properties", len(file.Properties), "users", len(file.Users))
	return nil
}
