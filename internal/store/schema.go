package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaStatements bootstraps the tables this service owns. Statements are
// idempotent so they can run on every start.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS profiles (
		id UUID PRIMARY KEY,
		email TEXT NOT NULL,
		full_name TEXT,
		phone_number TEXT,
		role TEXT NOT NULL DEFAULT 'user',
		account_type TEXT NOT NULL DEFAULT 'individual',
		kyc_status TEXT NOT NULL DEFAULT 'pending' CHECK (kyc_status IN ('pending', 'approved', 'rejected')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS wallets (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id UUID NOT NULL REFERENCES profiles(id),
		balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
		currency TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (user_id, currency)
	)`,
	`CREATE TABLE IF NOT EXISTS security_settings (
		user_id UUID PRIMARY KEY REFERENCES profiles(id),
		transaction_pin_hash TEXT NOT NULL DEFAULT '',
		failed_attempts INT NOT NULL DEFAULT 0,
		last_failed_at TIMESTAMPTZ,
		locked_until TIMESTAMPTZ,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS account_groups (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		currency TEXT NOT NULL,
		member_count INT NOT NULL DEFAULT 0,
		simple_balance BIGINT NOT NULL DEFAULT 0,
		created_by UUID NOT NULL REFERENCES profiles(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS group_members (
		id UUID PRIMARY KEY,
		group_id UUID NOT NULL REFERENCES account_groups(id),
		user_id UUID NOT NULL REFERENCES profiles(id),
		role TEXT NOT NULL DEFAULT 'member',
		status TEXT NOT NULL DEFAULT 'active',
		account_number TEXT NOT NULL UNIQUE,
		joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (group_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES profiles(id),
		group_id UUID REFERENCES account_groups(id),
		type TEXT NOT NULL CHECK (type IN ('deposit', 'withdrawal')),
		transaction_context TEXT NOT NULL DEFAULT 'personal',
		amount BIGINT NOT NULL CHECK (amount > 0),
		currency TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('pending', 'completed', 'rejected', 'failed')),
		reference TEXT NOT NULL,
		payment_method TEXT NOT NULL DEFAULT '',
		account_details JSONB,
		description TEXT,
		notes TEXT,
		reviewed_by UUID,
		reviewed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_created_at ON transactions (created_at DESC, id DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_group ON transactions (group_id) WHERE group_id IS NOT NULL`,
	`CREATE TABLE IF NOT EXISTS kyc_submissions (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES profiles(id),
		status TEXT NOT NULL CHECK (status IN ('pending', 'approved', 'rejected')),
		id_document_path TEXT NOT NULL,
		passport_photo_path TEXT NOT NULL,
		personal_details JSONB NOT NULL DEFAULT '{}'::jsonb,
		rejection_reason TEXT,
		notes TEXT,
		reviewed_by UUID,
		reviewed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_kyc_submissions_user ON kyc_submissions (user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS event_outbox (
		id BIGSERIAL PRIMARY KEY,
		exchange TEXT NOT NULL,
		routing_key TEXT NOT NULL,
		payload JSONB NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		attempts INT NOT NULL DEFAULT 0,
		next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		processing_started_at TIMESTAMPTZ,
		published_at TIMESTAMPTZ,
		last_error TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_event_outbox_due ON event_outbox (status, next_attempt_at)`,
}

// EnsureSchema creates missing tables and indexes.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	for i, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
