package config

import (
	"testing"
	"time"

	"github.com/gocql/gocql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"APP_ENV", "STORE_DRIVER", "CATALOG_DRIVER", "RETRY_BACKOFF", "KAFKA_BROKERS", "SEND_RATE_PER_SEC", "ENSURE_CONFLICT_ATTEMPTS"} {
		t.Setenv(key, "")
	}
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.StoreDriver)
	assert.Equal(t, CatalogMemory, cfg.CatalogDriver)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 50 * time.Millisecond, 200 * time.Millisecond}, cfg.RetryBackoff)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, 5.0, cfg.SendRatePerSec)
	assert.Equal(t, gocql.Quorum, cfg.ScyllaConsistency)
	assert.Len(t, cfg.ConflictBackoff(), 3)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Scylla")
	t.Setenv("SCYLLA_HOSTS", " a:9042, ,b:9042 ")
	t.Setenv("SCYLLA_CONSISTENCY", "local_quorum")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("RETRY_BACKOFF", "5ms, 1s")
	t.Setenv("ENSURE_CONFLICT_ATTEMPTS", "4")
	t.Setenv("CATALOG_DRIVER", "")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, StoreScylla, cfg.StoreDriver)
	assert.Equal(t, []string{"a:9042", "b:9042"}, cfg.ScyllaHosts)
	assert.Equal(t, gocql.LocalQuorum, cfg.ScyllaConsistency)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, []time.Duration{5 * time.Millisecond, time.Second, time.Second, time.Second}, cfg.ConflictBackoff())
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	cases := map[string]map[string]string{
		"mongo without uri":    {"STORE_DRIVER": "mongo", "MONGO_URI": ""},
		"unknown store":        {"STORE_DRIVER": "redis"},
		"postgres without dsn": {"STORE_DRIVER": "memory", "CATALOG_DRIVER": "postgres", "CATALOG_DSN": ""},
		"bad backoff":          {"STORE_DRIVER": "memory", "RETRY_BACKOFF": "10ms,soon"},
		"bad consistency":      {"STORE_DRIVER": "memory", "SCYLLA_CONSISTENCY": "some"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("CATALOG_DRIVER", "")
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			require.Error(t, err)
		})
	}
}
