package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"ms-events/internal/auth"
	"ms-events/internal/devel/devel_api"
	"ms-events/internal/events/cache"
	eventdb "ms-events/internal/events/db"
	"ms-events/internal/events/event_api"
	"ms-events/internal/events/service"
	"ms-events/internal/kafka"
	"ms-events/internal/models"
	"ms-events/internal/schema"
	"ms-events/internal/server"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func serve(ctx context.Context) error {
	log.Info("APP", "Starting Event Service initialization")

	db, err := openDB(ctx, true)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := service.NewEventService(&eventdb.DB{Bun: db}, nil, nil, log)
	updates := schema.NewUpdateManager(db, models.EntityTypes, log)

	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn("REDIS", fmt.Sprintf("Redis unreachable at %s, running without the event cache: %v", cfg.Redis.Addr, err))
			redisClient.Close()
		} else {
			defer redisClient.Close()
			svc.Cache = cache.NewRedis(redisClient, cfg.Redis.CacheTTL)
			updates.WithLock(schema.NewRedisLock(redisClient))
			log.Info("REDIS", fmt.Sprintf("✅ Event cache enabled on %s (ttl %s)", cfg.Redis.Addr, cfg.Redis.CacheTTL))
		}
	}

	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, []string{cfg.Kafka.Topic}, log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer producer.Close()
		svc.Publisher = producer
		log.Info("KAFKA", fmt.Sprintf("Publishing event notifications to %s", cfg.Kafka.Topic))
	}

	deps := server.Deps{
		Events: event_api.NewHandler(svc, log),
		Devel:  devel_api.NewHandler(svc, updates, log),
		DB:     db,
		Logger: log,
	}
	if cfg.Auth.OIDCIssuer != "" {
		verifier, err := auth.NewVerifier(ctx, cfg.Auth.OIDCIssuer)
		if err != nil {
			return err
		}
		deps.Verifier = verifier
	}

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      server.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Event Service running on %s", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")

	select {
	case <-stop:
		log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	case err := <-errCh:
		return fmt.Errorf("HTTP server error: %w", err)
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	log.Info("HTTP", "✅ Event Service shutdown complete")
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
