package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"ms-events/internal/config"
	"ms-events/internal/database"
	"ms-events/internal/logger"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// MigrateOptions defines configuration options for migration
type MigrateOptions struct {
	// MigrationsDir holds one sub-directory of SQL files per driver
	MigrationsDir string
	// AutoMigrate determines whether to run migrations automatically on startup
	AutoMigrate bool
}

// OptionsFromConfig maps the service configuration onto MigrateOptions
func OptionsFromConfig(cfg config.MigrationsConfig) MigrateOptions {
	return MigrateOptions{
		MigrationsDir: cfg.Dir,
		AutoMigrate:   cfg.AutoMigrate,
	}
}

// Runner handles versioned database migrations. It owns a connection of its
// own because closing the migrator closes the underlying database.
type Runner struct {
	dbConfig config.DatabaseConfig
	options  MigrateOptions
	log      *logger.Logger
	sqlDB    *sql.DB
	migrator *migrate.Migrate
}

// NewRunner creates a new migration runner
func NewRunner(dbConfig config.DatabaseConfig, opts MigrateOptions, log *logger.Logger) *Runner {
	return &Runner{
		dbConfig: dbConfig,
		options:  opts,
		log:      log,
	}
}

// Initialize prepares the migration system
func (r *Runner) Initialize(ctx context.Context) error {
	sourceDir, err := filepath.Abs(filepath.Join(r.options.MigrationsDir, r.dbConfig.Driver))
	if err != nil {
		return fmt.Errorf("failed to resolve migrations directory: %w", err)
	}
	if _, err := os.Stat(sourceDir); os.IsNotExist(err) {
		return fmt.Errorf("migrations directory does not exist: %s", sourceDir)
	}

	sqlDB, err := database.OpenSQL(ctx, r.dbConfig, r.log)
	if err != nil {
		return err
	}

	var driver migratedb.Driver
	switch r.dbConfig.Driver {
	case database.DriverPostgres:
		driver, err = postgres.WithInstance(sqlDB, &postgres.Config{})
	case database.DriverSQLite:
		driver, err = sqlite.WithInstance(sqlDB, &sqlite.Config{})
	default:
		err = fmt.Errorf("unsupported database driver %q", r.dbConfig.Driver)
	}
	if err != nil {
		sqlDB.Close()
		return fmt.Errorf("failed to create %s migration driver: %w", r.dbConfig.Driver, err)
	}

	migrator, err := migrate.NewWithDatabaseInstance("file://"+filepath.ToSlash(sourceDir), r.dbConfig.Driver, driver)
	if err != nil {
		sqlDB.Close()
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	r.sqlDB = sqlDB
	r.migrator = migrator
	return nil
}

func (r *Runner) ensure(ctx context.Context) error {
	if r.migrator != nil {
		return nil
	}
	return r.Initialize(ctx)
}

// RunMigrations applies pending migrations, repairing a dirty version first
func (r *Runner) RunMigrations(ctx context.Context) error {
	if err := r.ensure(ctx); err != nil {
		return err
	}

	version, dirty, err := r.migrator.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	if dirty {
		r.log.Warn("MIGRATE", fmt.Sprintf("Detected dirty migration at version %d, forcing it clean", version))
		if err := r.migrator.Force(int(version)); err != nil {
			return fmt.Errorf("failed to fix dirty migration: %w", err)
		}
	}

	if err := r.MigrateUp(ctx); err != nil {
		return err
	}

	if version, _, err := r.Version(ctx); err == nil {
		r.log.Info("MIGRATE", fmt.Sprintf("Current schema version: %d", version))
	}
	return nil
}

// MigrateUp runs all pending migrations
func (r *Runner) MigrateUp(ctx context.Context) error {
	if err := r.ensure(ctx); err != nil {
		return err
	}
	if err := r.migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateDown rolls back all migrations
func (r *Runner) MigrateDown(ctx context.Context) error {
	if err := r.ensure(ctx); err != nil {
		return err
	}
	if err := r.migrator.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

// MigrateTo migrates up or down to a specific version
func (r *Runner) MigrateTo(ctx context.Context, version uint) error {
	if err := r.ensure(ctx); err != nil {
		return err
	}
	if err := r.migrator.Migrate(version); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration to version %d failed: %w", version, err)
	}
	return nil
}

// Version returns the applied version; zero when nothing has run yet
func (r *Runner) Version(ctx context.Context) (uint, bool, error) {
	if err := r.ensure(ctx); err != nil {
		return 0, false, err
	}
	version, dirty, err := r.migrator.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}

// Close frees resources associated with the migrator
func (r *Runner) Close() error {
	if r.migrator == nil {
		return nil
	}
	sourceErr, databaseErr := r.migrator.Close()
	r.migrator = nil
	if sourceErr != nil {
		return fmt.Errorf("error closing migrator source: %w", sourceErr)
	}
	if databaseErr != nil {
		return fmt.Errorf("error closing migrator database: %w", databaseErr)
	}
	return nil
}
