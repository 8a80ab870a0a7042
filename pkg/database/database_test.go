package database

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/d60-Lab/postsync/config"
)

func TestInitDB_SQLiteMemory(t *testing.T) {
	cfg := &config.Config{Database: config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:", LogLevel: "silent"}}

	db, err := InitDB(cfg)
	require.NoError(t, err)

	var one int
	require.NoError(t, db.Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)
}

func TestInitDB_UnknownDriver(t *testing.T) {
	cfg := &config.Config{Database: config.DatabaseConfig{Driver: "oracle", DSN: "x"}}

	_, err := InitDB(cfg)
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestInitRedis(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		rdb, err := InitRedis(ctx, &config.Config{})
		require.NoError(t, err)
		assert.Nil(t, rdb)
	})

	t.Run("enabled", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := &config.Config{Redis: config.RedisConfig{Enabled: true, Addr: mr.Addr()}}

		rdb, err := InitRedis(ctx, cfg)
		require.NoError(t, err)
		defer rdb.Close()
		assert.NoError(t, rdb.Ping(ctx).Err())
	})
}

func TestGormLogLevel(t *testing.T) {
	assert.Equal(t, logger.Silent, gormLogLevel("silent"))
	assert.Equal(t, logger.Info, gormLogLevel("info"))
	assert.Equal(t, logger.Warn, gormLogLevel(""))
}
