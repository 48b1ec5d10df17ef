// Package bootstrap assembles the storage, directory and delivery layers
// selected by configuration. Both binaries share it.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"propchat/internal/domain/auth"
	"propchat/internal/domain/chat"
	"propchat/internal/domain/user"
	"propchat/internal/infra/config"
	mongostore "propchat/internal/infra/db/mongo"
	"propchat/internal/infra/db/postgres"
	"propchat/internal/infra/db/scylla"
	"propchat/internal/infra/storage/memory"
)

// UserStore is a user repository that can also resolve display names.
type UserStore interface {
	user.Repository
	DisplayName(ctx context.Context, id string) (string, error)
}

// Storage is the set of repositories behind one STORAGE_DRIVER.
type Storage struct {
	Conversations chat.ConversationRepository
	Messages      chat.MessageRepository
	Users         UserStore
	Sessions      auth.SessionStore
	// Mongo is set whenever a Mongo connection was opened, so the property
	// directory can share it.
	Mongo *mongostore.Client

	checks  []func(ctx context.Context) error
	closers []func(ctx context.Context) error
}

// Ready runs every backend health check.
func (s *Storage) Ready(ctx context.Context) error {
	for _, check := range s.checks {
		if err := check(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close releases connections in reverse order of opening.
func (s *Storage) Close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i](ctx))
	}
	return errors.Join(errs...)
}

// OpenStorage connects the configured chat store. Users and sessions live in
// Mongo when MONGO_URI is set and in memory otherwise, since the column and
// relational stores only hold chat data.
func OpenStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Storage, error) {
	st := &Storage{}
	if cfg.MongoURI != "" {
		client, err := mongostore.New(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("mongo connect: %w", err)
		}
		st.Mongo = client
		st.checks = append(st.checks, client.Ping)
		st.closers = append(st.closers, client.Close)
		if err := client.EnsureIndexes(ctx); err != nil {
			_ = st.Close(ctx)
			return nil, fmt.Errorf("mongo indexes: %w", err)
		}
		st.Users = mongostore.NewUserRepository(client.DB)
		st.Sessions = mongostore.NewSessionStore(client.DB)
	} else {
		st.Users = memory.NewUserRepository()
		st.Sessions = memory.NewSessionStore()
	}

	switch cfg.StorageDriver {
	case config.StorageMemory:
		st.Conversations = memory.NewConversationRepository()
		st.Messages = memory.NewMessageRepository()
	case config.StorageMongo:
		st.Conversations = mongostore.NewConversationRepository(st.Mongo.DB)
		st.Messages = mongostore.NewMessageRepository(st.Mongo.DB)
	case config.StorageScylla:
		session, err := scylla.NewSession(scylla.Options{
			Hosts:             cfg.ScyllaHosts,
			Keyspace:          cfg.ScyllaKeyspace,
			Username:          cfg.ScyllaUsername,
			Password:          cfg.ScyllaPassword,
			Consistency:       cfg.ScyllaConsistency,
			Timeout:           cfg.ScyllaTimeout,
			ReplicationFactor: cfg.ScyllaReplicationFactor,
		}, logger)
		if err != nil {
			_ = st.Close(ctx)
			return nil, fmt.Errorf("scylla init: %w", err)
		}
		store := scylla.NewStore(session, logger)
		st.checks = append(st.checks, store.Ping)
		st.closers = append(st.closers, func(context.Context) error {
			session.Close()
			return nil
		})
		st.Conversations = store.Conversations()
		st.Messages = store.Messages()
	case config.StoragePostgres:
		pool, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			_ = st.Close(ctx)
			return nil, err
		}
		st.checks = append(st.checks, pool.Ping)
		st.closers = append(st.closers, func(context.Context) error {
			pool.Close()
			return nil
		})
		if err := postgres.Migrate(ctx, pool); err != nil {
			_ = st.Close(ctx)
			return nil, err
		}
		st.Conversations = postgres.NewConversationRepository(pool)
		st.Messages = postgres.NewMessageRepository(pool)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
	if logger != nil {
		logger.Info("storage ready", "driver", cfg.StorageDriver, "users_in_mongo", st.Mongo != nil)
	}
	return st, nil
}
