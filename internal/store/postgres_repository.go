/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface for
 * profiles, wallets and security settings. Transactions, KYC submissions, groups and
 * the outbox live in sibling files on the same `PostgresRepository` type.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/BenyBen1/EstienCapital-sub000/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrProfileNotFound       = fmt.Errorf("profile %w", domain.ErrNotFound)
	ErrWalletNotFound        = fmt.Errorf("wallet %w", domain.ErrNotFound)
	ErrTransactionNotFound   = fmt.Errorf("transaction %w", domain.ErrNotFound)
	ErrKYCSubmissionNotFound = fmt.Errorf("kyc submission %w", domain.ErrNotFound)
	ErrGroupNotFound         = fmt.Errorf("group %w", domain.ErrNotFound)
	ErrGroupMemberExists     = fmt.Errorf("group member already exists: %w", domain.ErrConflict)
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db             *pgxpool.Pool
	eventsExchange string
}

// NewPostgresRepository creates a new instance of PostgresRepository. Outbox rows
// written by this repository target eventsExchange.
func NewPostgresRepository(db *pgxpool.Pool, eventsExchange string) *PostgresRepository {
	return &PostgresRepository{db: db, eventsExchange: strings.TrimSpace(eventsExchange)}
}

const profileColumns = `id, email, full_name, phone_number, role, account_type, kyc_status, created_at, updated_at`

func scanProfile(row pgx.Row) (*domain.Profile, error) {
	var p domain.Profile
	err := row.Scan(
		&p.ID, &p.Email, &p.FullName, &p.PhoneNumber, &p.Role,
		&p.AccountType, &p.KYCStatus, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProfileWithWallet inserts the profile and its zero-balance wallet in one
// database transaction. Calling it again for an existing user returns the stored rows.
func (r *PostgresRepository) CreateProfileWithWallet(ctx context.Context, profile *domain.Profile, currency string) (*domain.Profile, *domain.Wallet, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO profiles (id, email, full_name, phone_number, role, account_type, kyc_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`,
		profile.ID,
		profile.Email,
		profile.FullName,
		profile.PhoneNumber,
		profile.Role,
		profile.AccountType,
		profile.KYCStatus,
	)
	if err != nil {
		return nil, nil, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO wallets (user_id, balance, currency)
		VALUES ($1, 0, $2)
		ON CONFLICT (user_id, currency) DO NOTHING
	`, profile.ID, currency)
	if err != nil {
		return nil, nil, err
	}

	stored, err := scanProfile(tx.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, profile.ID))
	if err != nil {
		return nil, nil, err
	}

	var wallet domain.Wallet
	err = tx.QueryRow(ctx, `
		SELECT id, user_id, balance, currency, created_at, updated_at
		FROM wallets
		WHERE user_id = $1 AND currency = $2
	`, profile.ID, currency).Scan(&wallet.ID, &wallet.UserID, &wallet.Balance, &wallet.Currency, &wallet.CreatedAt, &wallet.UpdatedAt)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return stored, &wallet, nil
}

// FindProfileByID retrieves a profile by the identity provider's user id.
func (r *PostgresRepository) FindProfileByID(ctx context.Context, userID uuid.UUID) (*domain.Profile, error) {
	profile, err := scanProfile(r.db.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return profile, nil
}

// FindWalletByUserID retrieves the user's wallet in the given currency.
func (r *PostgresRepository) FindWalletByUserID(ctx context.Context, userID uuid.UUID, currency string) (*domain.Wallet, error) {
	var wallet domain.Wallet
	query := `
		SELECT id, user_id, balance, currency, created_at, updated_at
		FROM wallets
		WHERE user_id = $1 AND currency = $2
	`
	err := r.db.QueryRow(ctx, query, userID, currency).Scan(
		&wallet.ID, &wallet.UserID, &wallet.Balance, &wallet.Currency, &wallet.CreatedAt, &wallet.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

// GetSecuritySettings returns transaction PIN security metadata for a user.
func (r *PostgresRepository) GetSecuritySettings(ctx context.Context, userID uuid.UUID) (*domain.SecuritySettings, error) {
	var settings domain.SecuritySettings
	query := `
		SELECT user_id, transaction_pin_hash, failed_attempts, locked_until
		FROM security_settings
		WHERE user_id = $1
	`
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&settings.UserID,
		&settings.TransactionPINHash,
		&settings.FailedAttempts,
		&settings.LockedUntil,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransactionPINNotSet
		}
		return nil, err
	}
	if settings.TransactionPINHash == "" {
		return nil, domain.ErrTransactionPINNotSet
	}
	return &settings, nil
}

// UpsertTransactionPIN stores a new PIN hash and clears any lockout.
func (r *PostgresRepository) UpsertTransactionPIN(ctx context.Context, userID uuid.UUID, pinHash string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO security_settings (user_id, transaction_pin_hash)
		VALUES ($1, $2)
		ON CONFLICT (user_id)
		DO UPDATE SET
			transaction_pin_hash = EXCLUDED.transaction_pin_hash,
			failed_attempts = 0,
			last_failed_at = NULL,
			locked_until = NULL,
			updated_at = NOW()
	`, userID, pinHash)
	return err
}

// RecordFailedTransactionPINAttempt atomically increments failed attempts and applies lockout.
func (r *PostgresRepository) RecordFailedTransactionPINAttempt(ctx context.Context, userID uuid.UUID, maxAttempts int, lockoutDurationSeconds int) (*domain.SecuritySettings, error) {
	var settings domain.SecuritySettings
	query := `
		UPDATE security_settings
		SET
			failed_attempts = CASE
				WHEN (locked_until IS NOT NULL AND locked_until <= NOW())
					OR (locked_until IS NULL AND failed_attempts >= $2) THEN 1
				ELSE failed_attempts + 1
			END,
			last_failed_at = NOW(),
			locked_until = CASE
				WHEN (
					CASE
						WHEN (locked_until IS NOT NULL AND locked_until <= NOW())
							OR (locked_until IS NULL AND failed_attempts >= $2) THEN 1
						ELSE failed_attempts + 1
					END
				) >= $2 THEN NOW() + ($3 * INTERVAL '1 second')
				ELSE NULL
			END,
			updated_at = NOW()
		WHERE user_id = $1
		RETURNING user_id, transaction_pin_hash, failed_attempts, locked_until
	`
	err := r.db.QueryRow(ctx, query, userID, maxAttempts, lockoutDurationSeconds).Scan(
		&settings.UserID,
		&settings.TransactionPINHash,
		&settings.FailedAttempts,
		&settings.LockedUntil,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransactionPINNotSet
		}
		return nil, err
	}
	return &settings, nil
}

// ResetTransactionPINFailureState clears failed-attempt counters after a successful PIN verification.
func (r *PostgresRepository) ResetTransactionPINFailureState(ctx context.Context, userID uuid.UUID) error {
	query := `
		UPDATE security_settings
		SET failed_attempts = 0, last_failed_at = NULL, locked_until = NULL, updated_at = NOW()
		WHERE user_id = $1
	`
	result, err := r.db.Exec(ctx, query, userID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrTransactionPINNotSet
	}
	return nil
}

// GetDashboardMetrics reads every admin counter in one statement so the numbers
// describe a single snapshot.
func (r *PostgresRepository) GetDashboardMetrics(ctx context.Context) (*domain.DashboardMetrics, error) {
	var m domain.DashboardMetrics
	query := `
		SELECT
			(SELECT COUNT(*) FROM profiles),
			(SELECT COUNT(*) FROM profiles WHERE kyc_status = 'pending'),
			(SELECT COUNT(*) FROM profiles WHERE kyc_status = 'approved'),
			(SELECT COUNT(*) FROM transactions WHERE status = 'pending'),
			(SELECT COUNT(*) FROM transactions WHERE status = 'pending' AND type = 'deposit'),
			(SELECT COUNT(*) FROM transactions WHERE status = 'pending' AND type = 'withdrawal'),
			(SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE status = 'completed' AND type = 'deposit' AND transaction_context = 'personal'),
			(SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE status = 'completed' AND type = 'withdrawal' AND transaction_context = 'personal'),
			(SELECT COALESCE(SUM(balance), 0) FROM wallets),
			(SELECT COUNT(*) FROM account_groups)
	`
	err := r.db.QueryRow(ctx, query).Scan(
		&m.TotalUsers,
		&m.PendingKYC,
		&m.ApprovedKYC,
		&m.PendingTransactions,
		&m.PendingDeposits,
		&m.PendingWithdrawals,
		&m.CompletedDepositsSum,
		&m.CompletedWithdrawalSum,
		&m.TotalWalletBalance,
		&m.TotalGroups,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
