package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"HTTP_ADDRESS", "STORE_DRIVER", "KAFKA_BROKERS", "OUTBOX_BATCH_SIZE", "OUTBOX_CLAIM_LEASE", "GAME_RULES_PATH"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, ":8080", cfg.HTTPAddress)
	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "tracker.activity_completed", cfg.ActivityTopic)
	assert.Equal(t, 25, cfg.OutboxBatchSize)
	assert.Equal(t, 2*time.Second, cfg.OutboxPollInterval)
	assert.Equal(t, 30*time.Second, cfg.OutboxClaimLease)
	assert.Empty(t, cfg.GameRulesPath)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/conquest.db")
	t.Setenv("KAFKA_BROKERS", " broker-1:9092 , ,broker-2:9092 ")
	t.Setenv("OUTBOX_BATCH_SIZE", "100")
	t.Setenv("DLQ_BASE_DELAY", "5s")
	t.Setenv("CONSUMER_MAX_ATTEMPTS", "not-a-number")

	cfg := Load()
	assert.Equal(t, StoreDriverSQLite, cfg.StoreDriver)
	assert.Equal(t, "/tmp/conquest.db", cfg.SQLitePath)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 100, cfg.OutboxBatchSize)
	assert.Equal(t, 5*time.Second, cfg.DLQBaseDelay)
	assert.Equal(t, 3, cfg.ConsumerMaxAttempts, "unparseable values fall back to the default")
}
