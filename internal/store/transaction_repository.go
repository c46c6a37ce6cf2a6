package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/BenyBen1/EstienCapital-sub000/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const transactionColumns = `id, user_id, group_id, type, transaction_context, amount, currency, status,
	reference, payment_method, account_details, description, notes, reviewed_by, reviewed_at,
	created_at, updated_at`

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		t              domain.Transaction
		accountDetails []byte
	)
	err := row.Scan(
		&t.ID, &t.UserID, &t.GroupID, &t.Type, &t.Context, &t.Amount, &t.Currency, &t.Status,
		&t.Reference, &t.PaymentMethod, &accountDetails, &t.Description, &t.Notes, &t.ReviewedBy, &t.ReviewedAt,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(accountDetails) > 0 {
		if err := json.Unmarshal(accountDetails, &t.AccountDetails); err != nil {
			return nil, fmt.Errorf("decode account_details for transaction %s: %w", t.ID, err)
		}
	}
	return &t, nil
}

func marshalNullableJSON(v map[string]any) (*string, error) {
	if len(v) == 0 {
		return nil, nil
	}
	blob, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(blob)
	return &s, nil
}

// CreateTransactionRequest inserts a pending deposit or withdrawal and its
// notifications. Personal withdrawals are checked against the wallet balance
// under a row lock; an insufficient balance inserts nothing.
func (r *PostgresRepository) CreateTransactionRequest(ctx context.Context, txn *domain.Transaction, events []domain.NotificationEvent) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if txn.Type == domain.TransactionTypeWithdrawal && txn.Context == domain.TransactionContextPersonal {
		var balance int64
		err = tx.QueryRow(ctx, `
			SELECT balance FROM wallets WHERE user_id = $1 AND currency = $2 FOR UPDATE
		`, txn.UserID, txn.Currency).Scan(&balance)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrWalletNotFound
			}
			return err
		}
		if balance < txn.Amount {
			return domain.ErrInsufficientBalance
		}
	}

	if err := insertTransactionTx(ctx, tx, txn); err != nil {
		return err
	}
	for _, event := range events {
		if err := r.enqueueEventTx(ctx, tx, event); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func insertTransactionTx(ctx context.Context, tx pgx.Tx, txn *domain.Transaction) error {
	accountDetails, err := marshalNullableJSON(txn.AccountDetails)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO transactions (
			id,
			user_id,
			group_id,
			type,
			transaction_context,
			amount,
			currency,
			status,
			reference,
			payment_method,
			account_details,
			description,
			notes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb, $12, $13)
		RETURNING created_at, updated_at
	`
	return tx.QueryRow(ctx, query,
		txn.ID,
		txn.UserID,
		txn.GroupID,
		txn.Type,
		txn.Context,
		txn.Amount,
		txn.Currency,
		txn.Status,
		txn.Reference,
		txn.PaymentMethod,
		accountDetails,
		txn.Description,
		txn.Notes,
	).Scan(&txn.CreatedAt, &txn.UpdatedAt)
}

// FindTransactionByID retrieves a single transaction.
func (r *PostgresRepository) FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	txn, err := scanTransaction(r.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, transactionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return txn, nil
}

// ListTransactions returns one page ordered by created_at desc plus the total
// row count. Both reads share a repeatable-read snapshot so total and page agree.
func (r *PostgresRepository) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, int, error) {
	conditions := make([]string, 0, 3)
	args := make([]any, 0, 5)
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback(ctx)

	var total int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM transactions`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	pageArgs := append(append([]any{}, args...), filter.Limit, filter.Offset())
	query := fmt.Sprintf(
		`SELECT %s FROM transactions%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		transactionColumns, where, len(args)+1, len(args)+2,
	)
	rows, err := tx.Query(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	transactions := make([]domain.Transaction, 0, filter.Limit)
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		transactions = append(transactions, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return transactions, total, tx.Commit(ctx)
}

// ApplyTransactionDecision flips the status, applies the wallet delta (or the group
// recompute) and enqueues notifications in a single database transaction. The
// status flip is conditional on FromStatus, so of two concurrent decisions on the
// same row exactly one succeeds.
func (r *PostgresRepository) ApplyTransactionDecision(ctx context.Context, decision domain.TransactionDecision) (*domain.Transaction, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// The group row lock is taken before the flip so the recompute below reads
	// every approval committed ahead of this one.
	if decision.RecomputeGroupID != nil {
		if _, err := lockGroupTx(ctx, tx, *decision.RecomputeGroupID); err != nil {
			return nil, err
		}
	}

	query := `
		UPDATE transactions
		SET status = $3,
			notes = COALESCE($4, notes),
			reviewed_by = $5,
			reviewed_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING ` + transactionColumns
	updated, err := scanTransaction(tx.QueryRow(ctx, query,
		decision.TransactionID,
		decision.FromStatus,
		decision.ToStatus,
		decision.Notes,
		decision.ReviewerID,
	))
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		var current string
		lookupErr := tx.QueryRow(ctx, `SELECT status FROM transactions WHERE id = $1`, decision.TransactionID).Scan(&current)
		if errors.Is(lookupErr, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		if lookupErr != nil {
			return nil, lookupErr
		}
		return nil, fmt.Errorf("transaction %s is %s: %w", decision.TransactionID, current, domain.ErrInvalidTransition)
	}

	if decision.WalletDelta != 0 {
		if err := applyWalletDeltaTx(ctx, tx, updated.UserID, updated.Currency, decision.WalletDelta); err != nil {
			return nil, err
		}
	}
	if decision.RecomputeGroupID != nil {
		group, err := recomputeGroupTx(ctx, tx, *decision.RecomputeGroupID)
		if err != nil {
			return nil, err
		}
		if group.SimpleBalance < 0 {
			return nil, domain.ErrInsufficientBalance
		}
	}
	for _, event := range decision.Events {
		if err := r.enqueueEventTx(ctx, tx, event); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return updated, nil
}

// applyWalletDeltaTx adds delta to the wallet balance without ever taking it below zero.
func applyWalletDeltaTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, currency string, delta int64) error {
	var balance int64
	err := tx.QueryRow(ctx, `
		UPDATE wallets
		SET balance = balance + $3, updated_at = NOW()
		WHERE user_id = $1 AND currency = $2 AND balance + $3 >= 0
		RETURNING balance
	`, userID, currency, delta).Scan(&balance)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM wallets WHERE user_id = $1 AND currency = $2)`, userID, currency).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrWalletNotFound
	}
	return domain.ErrInsufficientBalance
}
