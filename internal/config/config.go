/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables and an optional
 * .env file, providing a centralized way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the API server and the notifier.
type Config struct {
	ServerPort                    string `mapstructure:"SERVER_PORT"`
	DatabaseURL                   string `mapstructure:"DATABASE_URL"`
	DBMaxConns                    int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns                    int32  `mapstructure:"DB_MIN_CONNS"`
	SupabaseURL                   string `mapstructure:"SUPABASE_URL"`
	SupabaseServiceKey            string `mapstructure:"SUPABASE_SERVICE_KEY"`
	SupabaseAnonKey               string `mapstructure:"SUPABASE_ANON_KEY"`
	SupabaseJWTSecret             string `mapstructure:"SUPABASE_JWT_SECRET"`
	SupabaseJWTIssuer             string `mapstructure:"SUPABASE_JWT_ISSUER"`
	StorageBucket                 string `mapstructure:"STORAGE_BUCKET"`
	RabbitMQURL                   string `mapstructure:"RABBITMQ_URL"`
	EventsExchange                string `mapstructure:"EVENTS_EXCHANGE"`
	NotificationQueue             string `mapstructure:"NOTIFICATION_QUEUE"`
	RedisURL                      string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix          string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	TransactionRateLimitPerMinute int    `mapstructure:"TRANSACTION_RATE_LIMIT_PER_MINUTE"`
	LoginRateLimitPerMinute       int    `mapstructure:"LOGIN_RATE_LIMIT_PER_MINUTE"`
	TransactionPINMaxAttempts     int    `mapstructure:"TRANSACTION_PIN_MAX_ATTEMPTS"`
	TransactionPINLockoutSeconds  int    `mapstructure:"TRANSACTION_PIN_LOCKOUT_SECONDS"`
	MaxTransactionAmountMinor     int64  `mapstructure:"MAX_TRANSACTION_AMOUNT_MINOR"`
	AdminNotificationEmail        string `mapstructure:"ADMIN_NOTIFICATION_EMAIL"`
	FirmNotificationEmail         string `mapstructure:"FIRM_NOTIFICATION_EMAIL"`
	MailProvider                  string `mapstructure:"MAIL_PROVIDER"`
	MailFrom                      string `mapstructure:"MAIL_FROM"`
	MailFromName                  string `mapstructure:"MAIL_FROM_NAME"`
	SMTPHost                      string `mapstructure:"SMTP_HOST"`
	SMTPPort                      int    `mapstructure:"SMTP_PORT"`
	SMTPUsername                  string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword                  string `mapstructure:"SMTP_PASSWORD"`
	SendGridAPIKey                string `mapstructure:"SENDGRID_API_KEY"`
	DefaultCurrency               string `mapstructure:"DEFAULT_CURRENCY"`
	GroupReconcileSchedule        string `mapstructure:"GROUP_RECONCILE_SCHEDULE"`
	OutboxBacklogSchedule         string `mapstructure:"OUTBOX_BACKLOG_SCHEDULE"`
	OutboxPollIntervalMS          int    `mapstructure:"OUTBOX_POLL_INTERVAL_MS"`
	OutboxBatchSize               int    `mapstructure:"OUTBOX_BATCH_SIZE"`
	CORSAllowedOrigins            string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	LogLevel                      string `mapstructure:"LOG_LEVEL"`
	LogFormat                     string `mapstructure:"LOG_FORMAT"`
	SchedulerEnabled              bool   `mapstructure:"SCHEDULER_ENABLED"`
	OutboxDispatcherEnabled       bool   `mapstructure:"OUTBOX_DISPATCHER_ENABLED"`
	NotificationPrefetch          int    `mapstructure:"NOTIFICATION_CONSUMER_PREFETCH"`
	NotificationRetryDelayMS      int    `mapstructure:"NOTIFICATION_RETRY_DELAY_MS"`
	NotificationMaxAttempts       int    `mapstructure:"NOTIFICATION_MAX_ATTEMPTS"`
}

const (
	defaultServerPort                    = "8080"
	defaultStorageBucket                 = "documents"
	defaultEventsExchange                = "estien.events"
	defaultNotificationQueue             = "estien.notifications.email"
	defaultRedisRateLimitPrefix          = "estien:rate_limit"
	defaultTransactionRateLimitPerMinute = 10
	defaultLoginRateLimitPerMinute       = 5
	defaultTransactionPINMaxAttempts     = 5
	defaultTransactionPINLockoutSeconds  = 900
	defaultCurrency                      = "KES"
	defaultGroupReconcileSchedule        = "@every 15m"
	defaultOutboxBacklogSchedule         = "@every 5m"
	defaultOutboxPollIntervalMS          = 1200
	defaultOutboxBatchSize               = 50
	defaultMailProvider                  = "log"
	defaultSMTPPort                      = 587
	defaultDBMaxConns                    = 25
	defaultDBMinConns                    = 2
)

// LoadConfig reads configuration from environment variables and the optional
// .env file found in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", defaultServerPort)
	viper.SetDefault("DB_MAX_CONNS", defaultDBMaxConns)
	viper.SetDefault("DB_MIN_CONNS", defaultDBMinConns)
	viper.SetDefault("STORAGE_BUCKET", defaultStorageBucket)
	viper.SetDefault("EVENTS_EXCHANGE", defaultEventsExchange)
	viper.SetDefault("NOTIFICATION_QUEUE", defaultNotificationQueue)
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", defaultRedisRateLimitPrefix)
	viper.SetDefault("TRANSACTION_RATE_LIMIT_PER_MINUTE", defaultTransactionRateLimitPerMinute)
	viper.SetDefault("LOGIN_RATE_LIMIT_PER_MINUTE", defaultLoginRateLimitPerMinute)
	viper.SetDefault("TRANSACTION_PIN_MAX_ATTEMPTS", defaultTransactionPINMaxAttempts)
	viper.SetDefault("TRANSACTION_PIN_LOCKOUT_SECONDS", defaultTransactionPINLockoutSeconds)
	viper.SetDefault("MAX_TRANSACTION_AMOUNT_MINOR", 0)
	viper.SetDefault("MAIL_PROVIDER", defaultMailProvider)
	viper.SetDefault("MAIL_FROM_NAME", "Estien Capital")
	viper.SetDefault("SMTP_PORT", defaultSMTPPort)
	viper.SetDefault("DEFAULT_CURRENCY", defaultCurrency)
	viper.SetDefault("GROUP_RECONCILE_SCHEDULE", defaultGroupReconcileSchedule)
	viper.SetDefault("OUTBOX_BACKLOG_SCHEDULE", defaultOutboxBacklogSchedule)
	viper.SetDefault("OUTBOX_POLL_INTERVAL_MS", defaultOutboxPollIntervalMS)
	viper.SetDefault("OUTBOX_BATCH_SIZE", defaultOutboxBatchSize)
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "https://*,http://*")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "json")
	viper.SetDefault("SCHEDULER_ENABLED", true)
	viper.SetDefault("OUTBOX_DISPATCHER_ENABLED", true)
	viper.SetDefault("NOTIFICATION_CONSUMER_PREFETCH", 10)
	viper.SetDefault("NOTIFICATION_RETRY_DELAY_MS", 30000)
	viper.SetDefault("NOTIFICATION_MAX_ATTEMPTS", 5)

	// Bind environment variables explicitly so they appear in Unmarshal.
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL", "DATABASE_URL", "SUPABASE_DB_URL")
	_ = viper.BindEnv("DB_MAX_CONNS")
	_ = viper.BindEnv("DB_MIN_CONNS")
	_ = viper.BindEnv("SUPABASE_URL")
	_ = viper.BindEnv("SUPABASE_SERVICE_KEY", "SUPABASE_SERVICE_KEY", "SUPABASE_SERVICE_ROLE_KEY")
	_ = viper.BindEnv("SUPABASE_ANON_KEY")
	_ = viper.BindEnv("SUPABASE_JWT_SECRET")
	_ = viper.BindEnv("SUPABASE_JWT_ISSUER")
	_ = viper.BindEnv("STORAGE_BUCKET")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENTS_EXCHANGE")
	_ = viper.BindEnv("NOTIFICATION_QUEUE")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("TRANSACTION_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("LOGIN_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("TRANSACTION_PIN_MAX_ATTEMPTS")
	_ = viper.BindEnv("TRANSACTION_PIN_LOCKOUT_SECONDS")
	_ = viper.BindEnv("MAX_TRANSACTION_AMOUNT_MINOR")
	_ = viper.BindEnv("MAX_TRANSACTION_AMOUNT")
	_ = viper.BindEnv("ADMIN_NOTIFICATION_EMAIL")
	_ = viper.BindEnv("FIRM_NOTIFICATION_EMAIL")
	_ = viper.BindEnv("MAIL_PROVIDER")
	_ = viper.BindEnv("MAIL_FROM")
	_ = viper.BindEnv("MAIL_FROM_NAME")
	_ = viper.BindEnv("SMTP_HOST")
	_ = viper.BindEnv("SMTP_PORT")
	_ = viper.BindEnv("SMTP_USERNAME")
	_ = viper.BindEnv("SMTP_PASSWORD")
	_ = viper.BindEnv("SENDGRID_API_KEY")
	_ = viper.BindEnv("DEFAULT_CURRENCY")
	_ = viper.BindEnv("GROUP_RECONCILE_SCHEDULE")
	_ = viper.BindEnv("OUTBOX_BACKLOG_SCHEDULE")
	_ = viper.BindEnv("OUTBOX_POLL_INTERVAL_MS")
	_ = viper.BindEnv("OUTBOX_BATCH_SIZE")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")
	_ = viper.BindEnv("LOG_LEVEL")
	_ = viper.BindEnv("LOG_FORMAT")
	_ = viper.BindEnv("SCHEDULER_ENABLED")
	_ = viper.BindEnv("OUTBOX_DISPATCHER_ENABLED")
	_ = viper.BindEnv("NOTIFICATION_CONSUMER_PREFETCH")
	_ = viper.BindEnv("NOTIFICATION_RETRY_DELAY_MS")
	_ = viper.BindEnv("NOTIFICATION_MAX_ATTEMPTS")

	// A missing .env file is fine; anything else is logged and ignored.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
		err = nil
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.SupabaseURL = strings.TrimRight(strings.TrimSpace(config.SupabaseURL), "/")
	if strings.TrimSpace(config.SupabaseJWTIssuer) == "" && config.SupabaseURL != "" {
		config.SupabaseJWTIssuer = config.SupabaseURL + "/auth/v1"
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = defaultRedisRateLimitPrefix
	}
	config.DefaultCurrency = strings.ToUpper(strings.TrimSpace(config.DefaultCurrency))
	if len(config.DefaultCurrency) != 3 {
		log.Printf("level=warn component=config msg=\"invalid DEFAULT_CURRENCY; using default\" value=%q", config.DefaultCurrency)
		config.DefaultCurrency = defaultCurrency
	}
	config.MailProvider = strings.ToLower(strings.TrimSpace(config.MailProvider))
	switch config.MailProvider {
	case "smtp", "sendgrid", "log":
	default:
		log.Printf("level=warn component=config msg=\"unknown MAIL_PROVIDER; falling back to log\" value=%q", config.MailProvider)
		config.MailProvider = defaultMailProvider
	}
	config.LogFormat = strings.ToLower(strings.TrimSpace(config.LogFormat))

	// Allow the cap in whole currency units via MAX_TRANSACTION_AMOUNT.
	if viper.IsSet("MAX_TRANSACTION_AMOUNT") {
		amountStr := strings.TrimSpace(viper.GetString("MAX_TRANSACTION_AMOUNT"))
		if amountStr != "" {
			amountValue, parseErr := strconv.ParseFloat(amountStr, 64)
			if parseErr != nil {
				log.Printf("level=warn component=config msg=\"invalid MAX_TRANSACTION_AMOUNT\" value=%q err=%v", amountStr, parseErr)
			} else {
				config.MaxTransactionAmountMinor = int64(math.Round(amountValue * 100))
			}
		}
	}
	if config.MaxTransactionAmountMinor < 0 {
		log.Printf("level=warn component=config msg=\"negative transaction cap configured; disabling cap\" amount_minor=%d", config.MaxTransactionAmountMinor)
		config.MaxTransactionAmountMinor = 0
	}

	if config.TransactionRateLimitPerMinute <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive transaction rate limit; using default\" value=%d", config.TransactionRateLimitPerMinute)
		config.TransactionRateLimitPerMinute = defaultTransactionRateLimitPerMinute
	}
	if config.LoginRateLimitPerMinute <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive login rate limit; using default\" value=%d", config.LoginRateLimitPerMinute)
		config.LoginRateLimitPerMinute = defaultLoginRateLimitPerMinute
	}
	if config.TransactionPINMaxAttempts <= 0 {
		config.TransactionPINMaxAttempts = defaultTransactionPINMaxAttempts
	}
	if config.TransactionPINLockoutSeconds <= 0 {
		config.TransactionPINLockoutSeconds = defaultTransactionPINLockoutSeconds
	}
	if config.OutboxPollIntervalMS <= 0 {
		config.OutboxPollIntervalMS = defaultOutboxPollIntervalMS
	}
	if config.OutboxBatchSize <= 0 {
		config.OutboxBatchSize = defaultOutboxBatchSize
	}
	if config.SMTPPort <= 0 {
		config.SMTPPort = defaultSMTPPort
	}
	if config.DBMaxConns <= 0 {
		config.DBMaxConns = defaultDBMaxConns
	}
	if config.DBMinConns < 0 || config.DBMinConns > config.DBMaxConns {
		config.DBMinConns = defaultDBMinConns
		if config.DBMinConns > config.DBMaxConns {
			config.DBMinConns = config.DBMaxConns
		}
	}
	if strings.TrimSpace(config.GroupReconcileSchedule) == "" {
		config.GroupReconcileSchedule = defaultGroupReconcileSchedule
	}
	if strings.TrimSpace(config.OutboxBacklogSchedule) == "" {
		config.OutboxBacklogSchedule = defaultOutboxBacklogSchedule
	}

	return
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas.
func (c Config) AllowedOrigins() []string {
	origins := []string{}
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
