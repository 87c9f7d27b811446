package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "GRPC_PORT", "STORE_DRIVER", "LATEST_LIMIT", "REPLENISH_ON_TRANSFER_DELETE", "REDIS_ADDR", "NATS_URL"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, 50051, cfg.GRPCPort)
	assert.Equal(t, StoreMySQL, cfg.StoreDriver)
	assert.Equal(t, 6, cfg.LatestLimit)
	assert.False(t, cfg.ReplenishOnTransferDelete)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	require.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "8081")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("REPLENISH_ON_TRANSFER_DELETE", "true")
	t.Setenv("IDEMPOTENCY_TTL", "90s")
	t.Setenv("LATEST_LIMIT", "not-a-number")

	cfg := Load()
	assert.Equal(t, 8081, cfg.Port)
	assert.Equal(t, StoreMemory, cfg.StoreDriver)
	assert.True(t, cfg.ReplenishOnTransferDelete)
	assert.Equal(t, 90*time.Second, cfg.IdempotencyTTL)
	assert.Equal(t, 6, cfg.LatestLimit)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{StoreDriver: StoreMemory, Port: 5000, GRPCPort: 50051, LatestLimit: 6}
	}

	cfg := base()
	cfg.StoreDriver = "mongo"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.GRPCPort = cfg.Port
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.LatestLimit = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Port = -1
	assert.Error(t, cfg.Validate())
}
