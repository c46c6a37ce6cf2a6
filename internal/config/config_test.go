package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	for _, key := range []string{
		"PORT", "SERVER_PORT", "STORAGE_BUCKET", "EVENTS_EXCHANGE", "DEFAULT_CURRENCY",
		"TRANSACTION_RATE_LIMIT_PER_MINUTE", "MAIL_PROVIDER", "GROUP_RECONCILE_SCHEDULE",
		"MAX_TRANSACTION_AMOUNT", "MAX_TRANSACTION_AMOUNT_MINOR",
		"NOTIFICATION_RETRY_DELAY_MS", "NOTIFICATION_MAX_ATTEMPTS",
	} {
		unsetEnvWithCleanup(t, key)
	}

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.ServerPort)
	}
	if cfg.StorageBucket != "documents" {
		t.Fatalf("expected documents bucket, got %q", cfg.StorageBucket)
	}
	if cfg.EventsExchange != "estien.events" {
		t.Fatalf("expected default exchange, got %q", cfg.EventsExchange)
	}
	if cfg.DefaultCurrency != "KES" {
		t.Fatalf("expected KES, got %q", cfg.DefaultCurrency)
	}
	if cfg.TransactionRateLimitPerMinute != 10 {
		t.Fatalf("expected 10 per minute, got %d", cfg.TransactionRateLimitPerMinute)
	}
	if cfg.MailProvider != "log" {
		t.Fatalf("expected log mail provider, got %q", cfg.MailProvider)
	}
	if cfg.GroupReconcileSchedule != "@every 15m" {
		t.Fatalf("unexpected reconcile schedule %q", cfg.GroupReconcileSchedule)
	}
	if cfg.MaxTransactionAmountMinor != 0 {
		t.Fatalf("expected no transaction cap, got %d", cfg.MaxTransactionAmountMinor)
	}
	if cfg.NotificationRetryDelayMS != 30000 || cfg.NotificationMaxAttempts != 5 {
		t.Fatalf("unexpected notification retry policy %dms x%d", cfg.NotificationRetryDelayMS, cfg.NotificationMaxAttempts)
	}
}

func TestLoadConfig_PortOverridesServerPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "9000")
	setEnvWithCleanup(t, "PORT", "7000")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "7000" {
		t.Fatalf("expected PORT to win, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_ServiceRoleKeyAlias(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "SUPABASE_SERVICE_KEY")
	setEnvWithCleanup(t, "SUPABASE_SERVICE_ROLE_KEY", "alias-service-key")
	setEnvWithCleanup(t, "SUPABASE_URL", "https://project.supabase.co/")
	unsetEnvWithCleanup(t, "SUPABASE_JWT_ISSUER")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.SupabaseServiceKey != "alias-service-key" {
		t.Fatalf("expected service key from alias, got %q", cfg.SupabaseServiceKey)
	}
	if cfg.SupabaseURL != "https://project.supabase.co" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.SupabaseURL)
	}
	if cfg.SupabaseJWTIssuer != "https://project.supabase.co/auth/v1" {
		t.Fatalf("expected issuer derived from url, got %q", cfg.SupabaseJWTIssuer)
	}
}

func TestLoadConfig_CoercesInvalidValues(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "TRANSACTION_RATE_LIMIT_PER_MINUTE", "-3")
	setEnvWithCleanup(t, "LOGIN_RATE_LIMIT_PER_MINUTE", "0")
	setEnvWithCleanup(t, "DEFAULT_CURRENCY", "shilling")
	setEnvWithCleanup(t, "MAIL_PROVIDER", "Carrier-Pigeon")
	setEnvWithCleanup(t, "OUTBOX_BATCH_SIZE", "0")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.TransactionRateLimitPerMinute != 10 || cfg.LoginRateLimitPerMinute != 5 {
		t.Fatalf("expected default rate limits, got %d/%d", cfg.TransactionRateLimitPerMinute, cfg.LoginRateLimitPerMinute)
	}
	if cfg.DefaultCurrency != "KES" {
		t.Fatalf("expected invalid currency replaced, got %q", cfg.DefaultCurrency)
	}
	if cfg.MailProvider != "log" {
		t.Fatalf("expected unknown mail provider replaced, got %q", cfg.MailProvider)
	}
	if cfg.OutboxBatchSize != 50 {
		t.Fatalf("expected default batch size, got %d", cfg.OutboxBatchSize)
	}
}

func TestLoadConfig_MaxTransactionAmountInMajorUnits(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "MAX_TRANSACTION_AMOUNT", "250000.50")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.MaxTransactionAmountMinor != 25000050 {
		t.Fatalf("expected 25000050 minor units, got %d", cfg.MaxTransactionAmountMinor)
	}
}

func TestAllowedOrigins(t *testing.T) {
	cfg := Config{CORSAllowedOrigins: " https://app.estien.co ,, http://localhost:3000 "}
	got := cfg.AllowedOrigins()
	if len(got) != 2 || got[0] != "https://app.estien.co" || got[1] != "http://localhost:3000" {
		t.Fatalf("unexpected origins %v", got)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
		}
	})
}
