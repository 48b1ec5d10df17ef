package scylla

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/gocql/gocql"
)

var keyspacePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

type Options struct {
	Hosts             []string
	Keyspace          string
	Username          string
	Password          string
	Consistency       string
	Timeout           time.Duration
	ReplicationFactor int
}

// NewSession ensures schema exists and returns a connected Scylla session.
func NewSession(opts Options, logger *slog.Logger) (*gocql.Session, error) {
	if !keyspacePattern.MatchString(opts.Keyspace) {
		return nil, fmt.Errorf("invalid keyspace name: %s", opts.Keyspace)
	}
	consistency := gocql.LocalQuorum
	if opts.Consistency != "" {
		parsed, err := gocql.ParseConsistencyWrapper(opts.Consistency)
		if err != nil {
			return nil, fmt.Errorf("scylla consistency: %w", err)
		}
		consistency = parsed
	}

	baseCluster := newCluster(opts, consistency)
	baseSession, err := baseCluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connect to scylla: %w", err)
	}
	defer baseSession.Close()

	if err := ensureKeyspace(context.Background(), baseSession, opts); err != nil {
		return nil, err
	}

	cluster := newCluster(opts, consistency)
	cluster.Keyspace = opts.Keyspace
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connect to keyspace %s: %w", opts.Keyspace, err)
	}
	if err := ensureTables(context.Background(), session, opts.Keyspace); err != nil {
		session.Close()
		return nil, err
	}
	if logger != nil {
		logger.Info("scylla connected", "hosts", opts.Hosts, "keyspace", opts.Keyspace)
	}
	return session, nil
}

func newCluster(opts Options, consistency gocql.Consistency) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(opts.Hosts...)
	if opts.Timeout > 0 {
		cluster.Timeout = opts.Timeout
		cluster.ConnectTimeout = opts.Timeout
	}
	cluster.Consistency = consistency
	if opts.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: opts.Username,
			Password: opts.Password,
		}
	}
	return cluster
}

func ensureKeyspace(ctx context.Context, session *gocql.Session, opts Options) error {
	rf := opts.ReplicationFactor
	if rf <= 0 {
		rf = 1
	}
	cql := fmt.Sprintf(
		"CREATE KEYSPACE IF NOT EXISTS %s WITH replication = {'class': 'SimpleStrategy', 'replication_factor': %d}",
		opts.Keyspace, rf,
	)
	if err := session.Query(cql).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("create keyspace: %w", err)
	}
	return nil
}

// Timestamps are bigint microseconds. Messages cluster on (created_at, message_id)
// so a partition scan is already in ledger order.
var schema = []struct{ name, cql string }{
	{"conversations", `
CREATE TABLE IF NOT EXISTS %s.conversations (
	id text PRIMARY KEY,
	property_id text,
	participant_ids set<text>,
	initiator_id text,
	counterpart_id text,
	dedup_key text,
	created_at bigint,
	last_message_at bigint
);`},
	{"conversation_dedup", `
CREATE TABLE IF NOT EXISTS %s.conversation_dedup (
	dedup_key text PRIMARY KEY,
	conversation_id text,
	property_id text,
	participant_ids set<text>,
	initiator_id text,
	counterpart_id text,
	created_at bigint
);`},
	{"messages", `
CREATE TABLE IF NOT EXISTS %s.messages (
	conversation_id text,
	created_at bigint,
	message_id text,
	sender_id text,
	sender_role text,
	body text,
	read_by map<text, bigint>,
	PRIMARY KEY (conversation_id, created_at, message_id)
) WITH CLUSTERING ORDER BY (created_at ASC, message_id ASC);`},
}

// Columns added to tables that may predate them. CQL has no ADD IF NOT EXISTS,
// so an "already exists" answer counts as success.
var columnAdditions = []string{
	`ALTER TABLE %s.conversation_dedup ADD property_id text`,
	`ALTER TABLE %s.conversation_dedup ADD participant_ids set<text>`,
	`ALTER TABLE %s.conversation_dedup ADD initiator_id text`,
	`ALTER TABLE %s.conversation_dedup ADD counterpart_id text`,
	`ALTER TABLE %s.conversation_dedup ADD created_at bigint`,
}

func ensureTables(ctx context.Context, session *gocql.Session, keyspace string) error {
	for _, table := range schema {
		if err := session.Query(fmt.Sprintf(table.cql, keyspace)).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("create %s table: %w", table.name, err)
		}
	}
	for _, alter := range columnAdditions {
		err := session.Query(fmt.Sprintf(alter, keyspace)).WithContext(ctx).Exec()
		if err != nil && !columnExists(err) {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func columnExists(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exist") || strings.Contains(msg, "conflicts with an existing column")
}
