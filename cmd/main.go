/**
 * @description
 * This is the main entry point for the pass-service. It is responsible for
 * initializing all components of the service, including configuration, database
 * connection and migrations, message brokers, repositories, the core application
 * service, the cron scheduler, and the HTTP server. It wires everything together
 * and starts the service.
 *
 * @dependencies
 * - log/slog, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/pressly/goose/v3: Schema migrations applied at startup.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"

	"github.com/campuspass/pass-service/internal/api"
	"github.com/campuspass/pass-service/internal/app"
	"github.com/campuspass/pass-service/internal/config"
	"github.com/campuspass/pass-service/internal/store"
	"github.com/campuspass/pass-service/pkg/rabbitmq"
)

func runMigrations(dsn string) error {
	sqlDB, err := goose.OpenDBWithDriver("postgres", dsn)
	if err != nil {
		return err
	}
	defer func() { _ = sqlDB.Close() }()
	return goose.Up(sqlDB, "migrations")
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("config load failed", "err", err)
		os.Exit(1)
	}
	if strings.TrimSpace(cfg.InternalAPIKey) == "" {
		logger.Error("internal api key must be configured", "env", "INTERNAL_API_KEY")
		os.Exit(1)
	}

	logger.Info("starting pass-service", "port", cfg.ServerPort)

	// Apply schema migrations before opening the pool.
	if err := runMigrations(cfg.DatabaseURL); err != nil {
		logger.Error("migrations failed", "err", err)
		os.Exit(1)
	}
	logger.Info("migrations applied")

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("database url parse failed", "err", err)
		os.Exit(1)
	}

	// Bulk mutations fan out across the pool; keep it wide enough for the
	// configured chunk concurrency plus interactive traffic.
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		logger.Error("database connection failed", "err", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connected")

	// Initialize the RabbitMQ producer to publish pass lifecycle events.
	// A dead broker degrades event publishing, not the service.
	var producer rabbitmq.Publisher
	eventProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, cfg.PassEventExchange, logger)
	if err != nil {
		logger.Warn("rabbitmq producer unavailable; events disabled", "err", err)
		producer = rabbitmq.NopPublisher{}
	} else {
		defer eventProducer.Close()
		producer = eventProducer
		logger.Info("rabbitmq producer connected")
	}

	// The bulk guard prefers Redis so the single-flight window spans
	// replicas; without Redis it falls back to a per-process guard.
	var guard app.BulkGuard = app.NewLocalBulkGuard()
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			logger.Warn("redis url parse failed; using local bulk guard", "err", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			pingErr := redisClient.Ping(pingCtx).Err()
			cancelPing()
			if pingErr != nil {
				logger.Warn("redis ping failed; using local bulk guard", "err", pingErr)
				redisClient.Close()
			} else {
				defer redisClient.Close()
				guard = app.NewRedisBulkGuard(redisClient, "pass_service:bulk")
				logger.Info("redis connected")
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Initialize the core application service with its dependencies.
	passService := app.NewService(
		repository,
		producer,
		guard,
		logger,
		cfg.BulkChunkSize,
		cfg.BulkConcurrency,
		cfg.ScanPageSize,
	)

	// Wire up the wallet installation consumer so device installs reflect on
	// passes without polling.
	installationConsumer := app.NewInstallationConsumer(repository, logger)
	rabbitConsumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Warn("rabbitmq consumer unavailable; installation updates disabled", "err", err)
	} else {
		defer rabbitConsumer.Close()
		installationBindings := map[string]func([]byte) bool{
			"wallet.installed.google": installationConsumer.HandleMessage,
			"wallet.installed.apple":  installationConsumer.HandleMessage,
		}
		if err := rabbitConsumer.ConsumeWithBindings(cfg.PassEventExchange, cfg.InstallationQueue, installationBindings); err != nil {
			logger.Error("installation consumer start failed", "err", err)
			os.Exit(1)
		}
	}

	// Start the cron scheduler for the periodic maintenance jobs.
	jobs := app.NewJobs(passService, producer, logger, cfg.DueSoonWindowDays)
	scheduler := app.NewScheduler(jobs, logger, app.JobSchedules{
		Overdue:           cfg.OverdueJobSchedule,
		NotificationReset: cfg.NotificationResetSchedule,
		DueSoon:           cfg.DueSoonJobSchedule,
	})
	scheduler.Start()
	defer scheduler.Stop()

	// Initialize the API handlers and router.
	passHandlers := api.NewPassHandlers(passService, logger, cfg.IngestEventBuffer)
	router := api.PassRoutes(passHandlers, cfg.InternalAPIKey, cfg.MetricsEnabled)

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	logger.Info("server listening", "addr", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped unexpectedly", "err", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutdown started")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", "err", err)
	}

	logger.Info("shutdown complete")
}
