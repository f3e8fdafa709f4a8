package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gocql/gocql"
	"github.com/joho/godotenv"
)

const (
	StoreMemory = "memory"
	StoreMongo  = "mongo"
	StoreScylla = "scylla"

	CatalogMemory   = "memory"
	CatalogPostgres = "postgres"
)

// Config aggregates application configuration values loaded from environment variables.
type Config struct {
	Env      string
	HTTPAddr string
	GRPCAddr string

	StoreDriver string
	MongoURI    string
	MongoDB     string

	ScyllaHosts       []string
	ScyllaKeyspace    string
	ScyllaUsername    string
	ScyllaPassword    string
	ScyllaConsistency gocql.Consistency
	ScyllaTimeout     time.Duration
	ReplicationFactor int

	CatalogDriver    string
	CatalogDSN       string
	ListingsFixtures string

	KafkaBrokers       []string
	KafkaTopicPrefix   string
	KafkaRealtimeGroup string
	AMQPURL            string
	AMQPExchange       string

	OutboxPollInterval     time.Duration
	RetryBackoff           []time.Duration
	EnsureConflictAttempts int
	IdempotencyTTL         time.Duration
	SendRatePerSec         float64
	SendBurst              int
}

// Load reads an optional .env file and parses configuration from the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv parses configuration from the current environment only.
func FromEnv() (Config, error) {
	cfg := Config{
		Env:                strings.ToLower(getEnv("APP_ENV", "dev")),
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		GRPCAddr:           getEnv("GRPC_ADDR", ":9090"),
		StoreDriver:        strings.ToLower(getEnv("STORE_DRIVER", StoreMemory)),
		MongoURI:           os.Getenv("MONGO_URI"),
		MongoDB:            getEnv("MONGO_DB", "carchat"),
		ScyllaHosts:        splitAndTrim(getEnv("SCYLLA_HOSTS", "localhost")),
		ScyllaKeyspace:     strings.TrimSpace(getEnv("SCYLLA_KEYSPACE", "carchat")),
		ScyllaUsername:     strings.TrimSpace(os.Getenv("SCYLLA_USERNAME")),
		ScyllaPassword:     strings.TrimSpace(os.Getenv("SCYLLA_PASSWORD")),
		ReplicationFactor:  parseIntWithDefault(strings.TrimSpace(os.Getenv("SCYLLA_REPLICATION_FACTOR")), 1),
		CatalogDriver:      strings.ToLower(getEnv("CATALOG_DRIVER", CatalogMemory)),
		CatalogDSN:         os.Getenv("CATALOG_DSN"),
		ListingsFixtures:   os.Getenv("LISTINGS_FIXTURES"),
		KafkaBrokers:       splitAndTrim(os.Getenv("KAFKA_BROKERS")),
		KafkaTopicPrefix:   getEnv("KAFKA_TOPIC_PREFIX", ""),
		KafkaRealtimeGroup: getEnv("KAFKA_REALTIME_GROUP", "carchat-realtime"),
		AMQPURL:            os.Getenv("AMQP_URL"),
		AMQPExchange:       getEnv("AMQP_EXCHANGE", "carchat.notifications"),
		SendBurst:          parseIntWithDefault(strings.TrimSpace(os.Getenv("SEND_BURST")), 10),
	}
	if cfg.ReplicationFactor < 1 {
		cfg.ReplicationFactor = 1
	}

	var err error
	if cfg.ScyllaTimeout, err = parseDurationEnv("SCYLLA_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.ScyllaConsistency, err = parseConsistency(getEnv("SCYLLA_CONSISTENCY", "quorum")); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = parseDurationEnv("IDEMP_TTL", 24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.OutboxPollInterval, err = parseDurationEnv("OUTBOX_POLL_INTERVAL", 500*time.Millisecond); err != nil {
		return Config{}, err
	}
	if cfg.RetryBackoff, err = parseDurationList("RETRY_BACKOFF", "10ms,50ms,200ms"); err != nil {
		return Config{}, err
	}
	cfg.EnsureConflictAttempts = parseIntWithDefault(strings.TrimSpace(os.Getenv("ENSURE_CONFLICT_ATTEMPTS")), 3)
	if cfg.SendRatePerSec, err = parseFloatEnv("SEND_RATE_PER_SEC", 5); err != nil {
		return Config{}, err
	}

	switch cfg.StoreDriver {
	case StoreMemory:
	case StoreMongo:
		if cfg.MongoURI == "" {
			return Config{}, fmt.Errorf("MONGO_URI is required for STORE_DRIVER=mongo")
		}
	case StoreScylla:
		if cfg.ScyllaKeyspace == "" {
			return Config{}, fmt.Errorf("SCYLLA_KEYSPACE is required")
		}
		if len(cfg.ScyllaHosts) == 0 {
			return Config{}, fmt.Errorf("SCYLLA_HOSTS is required")
		}
	default:
		return Config{}, fmt.Errorf("unsupported STORE_DRIVER: %s", cfg.StoreDriver)
	}
	switch cfg.CatalogDriver {
	case CatalogMemory:
	case CatalogPostgres:
		if cfg.CatalogDSN == "" {
			return Config{}, fmt.Errorf("CATALOG_DSN is required for CATALOG_DRIVER=postgres")
		}
	default:
		return Config{}, fmt.Errorf("unsupported CATALOG_DRIVER: %s", cfg.CatalogDriver)
	}
	return cfg, nil
}

// ConflictBackoff spreads the ensure lookups over the configured retry waits.
func (c Config) ConflictBackoff() []time.Duration {
	if c.EnsureConflictAttempts <= 0 || len(c.RetryBackoff) == 0 {
		return nil
	}
	out := make([]time.Duration, 0, c.EnsureConflictAttempts)
	for i := 0; i < c.EnsureConflictAttempts; i++ {
		idx := i
		if idx >= len(c.RetryBackoff) {
			idx = len(c.RetryBackoff) - 1
		}
		out = append(out, c.RetryBackoff[idx])
	}
	return out
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}

func parseDurationList(key, def string) ([]time.Duration, error) {
	var out []time.Duration
	for _, raw := range splitAndTrim(getEnv(key, def)) {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s component %q: %w", key, raw, err)
		}
		out = append(out, d)
	}
	return out, nil
}

func parseFloatEnv(key string, def float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s number: %w", key, err)
	}
	return v, nil
}

func parseIntWithDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v == 0 {
		return def
	}
	return v
}

func parseConsistency(raw string) (gocql.Consistency, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "quorum":
		return gocql.Quorum, nil
	case "one":
		return gocql.One, nil
	case "local_quorum", "localquorum":
		return gocql.LocalQuorum, nil
	case "all":
		return gocql.All, nil
	default:
		return gocql.Quorum, fmt.Errorf("unsupported SCYLLA_CONSISTENCY: %s", raw)
	}
}
