package scylla

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/gocql/gocql"

	"carchat/internal/infra/config"
)

var keyspacePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// NewSession creates the keyspace and tables when missing and returns a session bound to the keyspace.
func NewSession(ctx context.Context, cfg config.Config, logger *slog.Logger) (*gocql.Session, error) {
	if !keyspacePattern.MatchString(cfg.ScyllaKeyspace) {
		return nil, fmt.Errorf("scylla: invalid keyspace name: %s", cfg.ScyllaKeyspace)
	}

	bootstrap, err := cluster(cfg, "").CreateSession()
	if err != nil {
		return nil, fmt.Errorf("scylla: connect: %w", err)
	}
	defer bootstrap.Close()
	if err := ensureKeyspace(ctx, bootstrap, cfg); err != nil {
		return nil, err
	}

	session, err := cluster(cfg, cfg.ScyllaKeyspace).CreateSession()
	if err != nil {
		return nil, fmt.Errorf("scylla: connect to keyspace %s: %w", cfg.ScyllaKeyspace, err)
	}
	if err := ensureTables(ctx, session); err != nil {
		session.Close()
		return nil, err
	}
	if logger != nil {
		logger.Info("scylla connected", "hosts", cfg.ScyllaHosts, "keyspace", cfg.ScyllaKeyspace)
	}
	return session, nil
}

func cluster(cfg config.Config, keyspace string) *gocql.ClusterConfig {
	c := gocql.NewCluster(cfg.ScyllaHosts...)
	c.Keyspace = keyspace
	c.Timeout = cfg.ScyllaTimeout
	c.ConnectTimeout = cfg.ScyllaTimeout
	c.Consistency = cfg.ScyllaConsistency
	c.SerialConsistency = gocql.LocalSerial
	if cfg.ScyllaUsername != "" {
		c.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.ScyllaUsername,
			Password: cfg.ScyllaPassword,
		}
	}
	return c
}

func ensureKeyspace(ctx context.Context, session *gocql.Session, cfg config.Config) error {
	rf := cfg.ReplicationFactor
	if rf <= 0 {
		rf = 1
	}
	cql := fmt.Sprintf(
		"CREATE KEYSPACE IF NOT EXISTS %s WITH replication = {'class': 'SimpleStrategy', 'replication_factor': %d}",
		cfg.ScyllaKeyspace, rf,
	)
	if err := session.Query(cql).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("scylla: create keyspace: %w", err)
	}
	return nil
}

// The summary lives in static columns of the conversation partition and every message is a
// clustering row, so an append and its summary update fit in one conditional batch.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS conversation_timeline (
	conversation_id text,
	message_at timestamp,
	message_id text,
	dedup_key text static,
	kind text static,
	participant_a text static,
	participant_b text static,
	listing_kind text static,
	listing_id text static,
	created_at timestamp static,
	last_message_at timestamp static,
	last_message_id text static,
	last_sender_id text static,
	last_message_preview text static,
	unread_count_a int static,
	unread_count_b int static,
	version bigint static,
	sender_id text,
	body text,
	media_url text,
	is_read boolean,
	read_at timestamp,
	PRIMARY KEY (conversation_id, message_at, message_id)
) WITH CLUSTERING ORDER BY (message_at ASC, message_id ASC)`,
	`CREATE TABLE IF NOT EXISTS conversation_keys (
	dedup_key text PRIMARY KEY,
	conversation_id text
)`,
	`CREATE TABLE IF NOT EXISTS conversations_by_participant (
	participant text,
	conversation_id text,
	PRIMARY KEY (participant, conversation_id)
)`,
}

func ensureTables(ctx context.Context, session *gocql.Session) error {
	for _, stmt := range schema {
		if err := session.Query(stmt).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("scylla: create table: %w", err)
		}
	}
	return nil
}
