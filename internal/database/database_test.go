package database_test

import (
	"context"
	"path/filepath"
	"testing"

	"ms-events/internal/config"
	"ms-events/internal/database"
	"ms-events/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun/dialect"
)

func TestOpen_SQLite(t *testing.T) {
	cfg := config.DatabaseConfig{
		Driver:     database.DriverSQLite,
		DSN:        filepath.Join(t.TempDir(), "events.db"),
		MaxRetries: 1,
	}

	db, err := database.Open(context.Background(), cfg, logger.Discard())
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, dialect.SQLite, db.Dialect().Name())

	var one int
	require.NoError(t, db.NewSelect().ColumnExpr("1").Scan(context.Background(), &one))
	assert.Equal(t, 1, one)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := database.Open(context.Background(), config.DatabaseConfig{Driver: "oracle"}, logger.Discard())
	assert.Error(t, err)
}
