package main

import (
	"context"
	"fmt"

	"ms-events/internal/config"
	"ms-events/internal/database"
	"ms-events/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
)

var (
	cfg *config.Config
	log *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:           "event-service",
	Short:         "Event entity service",
	Long:          `Serves the event entity API and its developer pages, and manages the event schema.`,
	Version:       fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		envErr := godotenv.Load()
		cfg = config.Load()
		log = logger.NewLogger(cfg.Log.Dir, logger.ParseLevel(cfg.Log.Level))
		if envErr != nil {
			log.Debug("CONFIG", ".env file not found, using environment variables")
		} else {
			log.Info("CONFIG", "Loaded environment variables from .env file")
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		log.Close()
	},
}

// Execute runs the root command and reports any error through the logger.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		if log != nil {
			log.Error("APP", err.Error())
			log.Close()
		} else {
			fmt.Println("Error:", err)
		}
	}
	return err
}

// openDB connects to the configured database, applying migrations first
// when auto-migrate is on.
func openDB(ctx context.Context, migrate bool) (*bun.DB, error) {
	if migrate && cfg.Migrations.AutoMigrate {
		if err := runMigrations(ctx); err != nil {
			return nil, err
		}
	}
	return database.Open(ctx, cfg.Database, log)
}
