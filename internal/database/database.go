package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ms-events/internal/config"
	"ms-events/internal/logger"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// OpenSQL opens and pings a *sql.DB for the configured driver, retrying
// with a fixed back-off.
func OpenSQL(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*sql.DB, error) {
	driverName, err := sqlDriverName(cfg.Driver)
	if err != nil {
		return nil, err
	}

	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	var sqldb *sql.DB
	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to %s (attempt %d/%d)", cfg.Driver, i+1, maxRetries))
		sqldb, err = sql.Open(driverName, cfg.DSN)
		if err != nil {
			log.Error("DATABASE", fmt.Sprintf("Failed to open %s: %v", cfg.Driver, err))
		} else if err = sqldb.PingContext(ctx); err == nil {
			break
		} else {
			log.Error("DATABASE", fmt.Sprintf("Failed to connect to %s: %v", cfg.Driver, err))
			sqldb.Close()
		}
		if i < maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(2 * time.Second):
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to %s after %d attempts: %w", cfg.Driver, maxRetries, err)
	}

	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxLifetime > 0 {
		sqldb.SetConnMaxLifetime(cfg.MaxLifetime)
	}
	return sqldb, nil
}

// Open returns a bun.DB with the dialect matching cfg.Driver.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*bun.DB, error) {
	sqldb, err := OpenSQL(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	log.Info("DATABASE", fmt.Sprintf("✅ %s connection successful", cfg.Driver))
	return Wrap(sqldb, cfg.Driver)
}

// Wrap puts an open *sql.DB behind bun.
func Wrap(sqldb *sql.DB, driver string) (*bun.DB, error) {
	switch driver {
	case DriverSQLite:
		return bun.NewDB(sqldb, sqlitedialect.New()), nil
	case DriverPostgres:
		return bun.NewDB(sqldb, pgdialect.New()), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func sqlDriverName(driver string) (string, error) {
	switch driver {
	case DriverSQLite:
		return sqliteshim.ShimName, nil
	case DriverPostgres:
		return "postgres", nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}
