package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
	assert.Equal(t, "localhost:6379", cfg.Redis.Address())
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, "mutex", cfg.Cache.Policy)
	assert.Equal(t, 2*time.Second, cfg.Seckill.BlockTimeout)
	assert.EqualValues(t, 5, cfg.Seckill.MaxDeliveries)
	assert.True(t, cfg.App.IsDevelopment())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_TYPE", "mysql")
	t.Setenv("DB_USER", "flash")
	t.Setenv("DB_PASS", "secret")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_NAME", "deals")
	t.Setenv("CACHE_POLICY", "logical")
	t.Setenv("SECKILL_GROUP", "orders-a")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Database.Type)
	assert.Equal(t, "flash:secret@tcp(db.internal:3306)/deals?parseTime=true", cfg.Database.MySQLDSN())
	assert.Equal(t, "logical", cfg.Cache.Policy)
	assert.Equal(t, "orders-a", cfg.Seckill.Group)
}
