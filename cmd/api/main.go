/**
 * @description
 * This is the main entry point for the Estien Capital API server. It loads the
 * configuration, connects to PostgreSQL (and Redis when configured), wires the
 * application service, starts the outbox dispatcher and the cron scheduler, and
 * serves the HTTP API until it receives SIGINT or SIGTERM.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: Shared rate-limit counters.
 * - github.com/joho/godotenv: Optional .env file for local runs.
 * - internal/api, internal/app, internal/config, internal/store, internal/notify.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BenyBen1/EstienCapital-sub000/internal/api"
	"github.com/BenyBen1/EstienCapital-sub000/internal/app"
	"github.com/BenyBen1/EstienCapital-sub000/internal/config"
	"github.com/BenyBen1/EstienCapital-sub000/internal/logging"
	"github.com/BenyBen1/EstienCapital-sub000/internal/notify"
	"github.com/BenyBen1/EstienCapital-sub000/internal/store"
	"github.com/BenyBen1/EstienCapital-sub000/pkg/authclient"
	"github.com/BenyBen1/EstienCapital-sub000/pkg/rabbitmq"
	"github.com/BenyBen1/EstienCapital-sub000/pkg/storageclient"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("level=warn component=bootstrap msg=\"could not load .env file\" err=%v", err)
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}

	logger, syncLogger := logging.Init(cfg.LogLevel, cfg.LogFormat)
	defer syncLogger()

	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		logger.Fatal("database url must be configured", zap.String("env", "DATABASE_URL"))
	}
	if strings.TrimSpace(cfg.SupabaseJWTSecret) == "" {
		logger.Fatal("jwt secret must be configured", zap.String("env", "SUPABASE_JWT_SECRET"))
	}
	logger.Info("starting api server", zap.String("component", "bootstrap"), zap.String("port", cfg.ServerPort))

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database url parse failed", zap.Error(err))
	}
	poolConfig.MaxConns = cfg.DBMaxConns
	poolConfig.MinConns = cfg.DBMinConns
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer dbpool.Close()

	schemaCtx, cancelSchema := context.WithTimeout(context.Background(), 30*time.Second)
	if err := store.EnsureSchema(schemaCtx, dbpool); err != nil {
		cancelSchema()
		logger.Fatal("schema migration failed", zap.Error(err))
	}
	cancelSchema()
	logger.Info("database connected", zap.String("component", "bootstrap"))

	repository := store.NewPostgresRepository(dbpool, cfg.EventsExchange)

	var storage app.DocumentStorage
	if cfg.SupabaseURL != "" && cfg.SupabaseServiceKey != "" {
		documents := storageclient.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.StorageBucket)
		logger.Info("document storage configured", zap.String("component", "bootstrap"), zap.String("bucket", documents.Bucket()))
		storage = documents
	} else {
		logger.Warn("storage not configured; kyc submissions disabled",
			zap.String("component", "bootstrap"),
			zap.Bool("supabase_url_set", cfg.SupabaseURL != ""),
			zap.Bool("service_key_set", cfg.SupabaseServiceKey != ""),
		)
	}

	var identity app.IdentityProvider
	if cfg.SupabaseURL != "" && cfg.SupabaseAnonKey != "" {
		identity = authclient.NewClient(cfg.SupabaseURL, cfg.SupabaseAnonKey)
	} else {
		logger.Warn("identity provider not configured; admin login disabled", zap.String("component", "bootstrap"))
	}

	service := app.NewService(repository, storage, identity, app.Settings{
		DefaultCurrency:               cfg.DefaultCurrency,
		AdminNotificationEmail:        cfg.AdminNotificationEmail,
		FirmNotificationEmail:         cfg.FirmNotificationEmail,
		TransactionRateLimitPerMinute: cfg.TransactionRateLimitPerMinute,
		LoginRateLimitPerMinute:       cfg.LoginRateLimitPerMinute,
		TransactionPINMaxAttempts:     cfg.TransactionPINMaxAttempts,
		TransactionPINLockoutSeconds:  cfg.TransactionPINLockoutSeconds,
		MaxTransactionAmountMinor:     cfg.MaxTransactionAmountMinor,
	})

	redisClient := connectRedis(logger, cfg.RedisURL)
	if redisClient != nil {
		defer redisClient.Close()
		service.SetRateLimiter(app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix))
	} else {
		service.SetRateLimiter(app.NewMemoryRateLimiter())
	}

	rootCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	if cfg.OutboxDispatcherEnabled {
		connect, err := publisherFactory(cfg, logger)
		if err != nil {
			logger.Fatal("notification delivery setup failed", zap.Error(err))
		}
		dispatcher := app.NewOutboxDispatcher(
			repository,
			connect,
			cfg.OutboxBatchSize,
			time.Duration(cfg.OutboxPollIntervalMS)*time.Millisecond,
		)
		go dispatcher.Run(rootCtx)
	}

	var scheduler *app.Scheduler
	if cfg.SchedulerEnabled {
		scheduler = app.NewScheduler(app.NewJobs(repository, logger), logger, app.ScheduleConfig{
			GroupReconcile: cfg.GroupReconcileSchedule,
			OutboxBacklog:  cfg.OutboxBacklogSchedule,
		})
		scheduler.Start()
	}

	handler := api.NewHandler(service)
	router := api.NewRouter(handler, api.AuthMiddlewareConfig{
		JWTSecret:        cfg.SupabaseJWTSecret,
		ExpectedIssuer:   cfg.SupabaseJWTIssuer,
		ExpectedAudience: "authenticated",
	}, cfg.AllowedOrigins())

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("component", "http"), zap.String("addr", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server stopped unexpectedly", zap.String("component", "http"), zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutdown started", zap.String("component", "http"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", zap.String("component", "http"), zap.Error(err))
	}
	stopBackground()
	if scheduler != nil {
		select {
		case <-scheduler.Stop().Done():
		case <-ctx.Done():
			logger.Warn("scheduler jobs still running at shutdown", zap.String("component", "scheduler"))
		}
	}

	logger.Info("shutdown complete", zap.String("component", "http"))
}

// connectRedis returns nil when Redis is not configured or unreachable; the
// caller falls back to in-process rate limiting.
func connectRedis(logger *zap.Logger, redisURL string) *redis.Client {
	if redisURL == "" {
		logger.Info("redis url missing; using in-process rate limiting", zap.String("component", "bootstrap"))
		return nil
	}
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("redis url parse failed; using in-process rate limiting", zap.String("component", "bootstrap"), zap.Error(err))
		return nil
	}
	client := redis.NewClient(options)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis ping failed; using in-process rate limiting", zap.String("component", "bootstrap"), zap.Error(err))
		client.Close()
		return nil
	}
	logger.Info("redis connected", zap.String("component", "bootstrap"))
	return client
}

// publisherFactory publishes through RabbitMQ when it is configured. Without a
// broker the outbox is delivered in-process straight to the mailer.
func publisherFactory(cfg config.Config, logger *zap.Logger) (app.PublisherFactory, error) {
	if strings.TrimSpace(cfg.RabbitMQURL) != "" {
		return func() (rabbitmq.Publisher, error) {
			producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
			if err != nil {
				return nil, err
			}
			return producer, nil
		}, nil
	}

	renderer, err := notify.NewRenderer()
	if err != nil {
		return nil, err
	}
	mailer, err := notify.NewMailer(mailerConfig(cfg))
	if err != nil {
		return nil, err
	}
	logger.Warn("rabbitmq url missing; delivering notifications in-process", zap.String("component", "bootstrap"))
	direct := notify.NewDirectPublisher(notify.NewNotifier(renderer, mailer))
	return func() (rabbitmq.Publisher, error) {
		return direct, nil
	}, nil
}

func mailerConfig(cfg config.Config) notify.MailerConfig {
	return notify.MailerConfig{
		Provider:       cfg.MailProvider,
		From:           cfg.MailFrom,
		FromName:       cfg.MailFromName,
		SMTPHost:       cfg.SMTPHost,
		SMTPPort:       cfg.SMTPPort,
		SMTPUsername:   cfg.SMTPUsername,
		SMTPPassword:   cfg.SMTPPassword,
		SendGridAPIKey: cfg.SendGridAPIKey,
	}
}
