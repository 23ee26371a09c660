package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("SCAN_COUNT_REPEATS", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg := Load()

	assert.Equal(t, ":8085", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.True(t, cfg.Scan.CountRepeatScans)
	assert.Equal(t, 5*time.Second, cfg.Scan.Timeout)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "checkin.ticket.scanned", cfg.Kafka.Topics.TicketScanned)
	assert.Contains(t, cfg.Kafka.GroupID, "checkin-live-")
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SCAN_COUNT_REPEATS", "false")
	t.Setenv("SCAN_TIMEOUT", "750ms")
	t.Setenv("KAFKA_BROKERS", "k1:9092, ,k2:9092")
	t.Setenv("DB_MAX_OPEN_CONNS", "not-a-number")

	cfg := Load()

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.False(t, cfg.Scan.CountRepeatScans)
	assert.Equal(t, 750*time.Millisecond, cfg.Scan.Timeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
}

func TestDatabaseDSNPrecedence(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://legacy")
	t.Setenv("DATABASE_DSN", "")
	assert.Equal(t, "postgres://legacy", Load().Database.DSN)

	t.Setenv("DATABASE_DSN", "file::memory:?cache=shared")
	assert.Equal(t, "file::memory:?cache=shared", Load().Database.DSN)
}
