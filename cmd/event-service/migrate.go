package main

import (
	"context"
	"fmt"
	"strconv"

	"ms-events/internal/database/migrations"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage versioned schema migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrations(cmd.Context())
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back every migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRunner(cmd.Context(), func(r *migrations.Runner) error {
			if err := r.MigrateDown(cmd.Context()); err != nil {
				return err
			}
			log.Info("MIGRATE", "All migrations rolled back")
			return nil
		})
	},
}

var migrateToCmd = &cobra.Command{
	Use:   "to <version>",
	Short: "Migrate up or down to a specific version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[0], err)
		}
		return withRunner(cmd.Context(), func(r *migrations.Runner) error {
			if err := r.MigrateTo(cmd.Context(), uint(version)); err != nil {
				return err
			}
			log.Info("MIGRATE", fmt.Sprintf("Migrated to version %d", version))
			return nil
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the applied schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRunner(cmd.Context(), func(r *migrations.Runner) error {
			version, dirty, err := r.Version(cmd.Context())
			if err != nil {
				return err
			}
			if dirty {
				fmt.Printf("%d (dirty)\n", version)
			} else {
				fmt.Println(version)
			}
			return nil
		})
	},
}

func withRunner(ctx context.Context, fn func(r *migrations.Runner) error) error {
	runner := migrations.NewRunner(cfg.Database, migrations.OptionsFromConfig(cfg.Migrations), log)
	defer func() {
		if err := runner.Close(); err != nil {
			log.Warn("MIGRATE", fmt.Sprintf("Failed to close migration runner: %v", err))
		}
	}()
	if err := runner.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	return fn(runner)
}

func runMigrations(ctx context.Context) error {
	log.Info("MIGRATE", "Running database migrations")
	return withRunner(ctx, func(r *migrations.Runner) error {
		return r.RunMigrations(ctx)
	})
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateToCmd, migrateVersionCmd)
	rootCmd.AddCommand(migrateCmd)
}
