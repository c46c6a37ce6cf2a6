/**
 * @description
 * Entry point for the notification worker. It consumes notification events from
 * the events exchange, renders the matching email template and sends it through
 * the configured mail provider.
 *
 * @dependencies
 * - github.com/rabbitmq/amqp091-go (via pkg/rabbitmq): event consumption.
 * - internal/notify: templates and mail delivery.
 */

package main

import (
	"errors"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BenyBen1/EstienCapital-sub000/internal/config"
	"github.com/BenyBen1/EstienCapital-sub000/internal/domain"
	"github.com/BenyBen1/EstienCapital-sub000/internal/logging"
	"github.com/BenyBen1/EstienCapital-sub000/internal/notify"
	"github.com/BenyBen1/EstienCapital-sub000/pkg/rabbitmq"
	"github.com/joho/godotenv"
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

	if strings.TrimSpace(cfg.RabbitMQURL) == "" {
		logger.Fatal("rabbitmq url must be configured for the notifier", zap.String("env", "RABBITMQ_URL"))
	}

	renderer, err := notify.NewRenderer()
	if err != nil {
		logger.Fatal("template parse failed", zap.Error(err))
	}
	mailer, err := notify.NewMailer(notify.MailerConfig{
		Provider:       cfg.MailProvider,
		From:           cfg.MailFrom,
		FromName:       cfg.MailFromName,
		SMTPHost:       cfg.SMTPHost,
		SMTPPort:       cfg.SMTPPort,
		SMTPUsername:   cfg.SMTPUsername,
		SMTPPassword:   cfg.SMTPPassword,
		SendGridAPIKey: cfg.SendGridAPIKey,
	})
	if err != nil {
		logger.Fatal("mailer setup failed", zap.Error(err))
	}
	notifier := notify.NewNotifier(renderer, mailer)

	consumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL, cfg.NotificationPrefetch)
	if err != nil {
		logger.Fatal("rabbitmq consumer init failed", zap.Error(err))
	}
	defer consumer.Close()
	consumer.RetryDelay = time.Duration(cfg.NotificationRetryDelayMS) * time.Millisecond
	consumer.MaxAttempts = cfg.NotificationMaxAttempts

	bindings := map[string]func([]byte) bool{
		domain.NotificationRoutingKeyWildcard: notifier.HandleMessage,
	}
	if err := consumer.ConsumeWithBindings(cfg.EventsExchange, cfg.NotificationQueue, bindings); err != nil {
		logger.Fatal("notification consumer start failed", zap.Error(err))
	}
	logger.Info("notifier consuming",
		zap.String("component", "bootstrap"),
		zap.String("exchange", cfg.EventsExchange),
		zap.String("queue", cfg.NotificationQueue),
		zap.String("mail_provider", cfg.MailProvider),
		zap.Duration("retry_delay", consumer.RetryDelay),
		zap.Int("max_attempts", consumer.MaxAttempts),
	)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-stop:
		logger.Info("notifier shutting down", zap.String("component", "bootstrap"))
	case reason := <-consumer.Done():
		// Exit non-zero so the supervisor restarts the worker with a fresh connection.
		logger.Fatal("broker connection lost", zap.String("component", "rabbitmq"), zap.Any("reason", reason))
	}
}
