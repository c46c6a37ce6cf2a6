package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/BenyBen1/EstienCapital-sub000/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const kycColumns = `id, user_id, status, id_document_path, passport_photo_path, personal_details,
	rejection_reason, notes, reviewed_by, reviewed_at, created_at, updated_at`

func scanKYCSubmission(row pgx.Row) (*domain.KYCSubmission, error) {
	var (
		s       domain.KYCSubmission
		details []byte
	)
	err := row.Scan(
		&s.ID, &s.UserID, &s.Status, &s.IDDocumentPath, &s.PassportPhotoPath, &details,
		&s.RejectionReason, &s.Notes, &s.ReviewedBy, &s.ReviewedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &s.PersonalDetails); err != nil {
			return nil, fmt.Errorf("decode personal_details for kyc submission %s: %w", s.ID, err)
		}
	}
	return &s, nil
}

// CreateKYCSubmission inserts a pending submission, marks the profile pending and
// enqueues the admin notification atomically.
func (r *PostgresRepository) CreateKYCSubmission(ctx context.Context, submission *domain.KYCSubmission, events []domain.NotificationEvent) error {
	details, err := json.Marshal(submission.PersonalDetails)
	if err != nil {
		return err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO kyc_submissions (id, user_id, status, id_document_path, passport_photo_path, personal_details)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb)
		RETURNING created_at, updated_at
	`,
		submission.ID,
		submission.UserID,
		submission.Status,
		submission.IDDocumentPath,
		submission.PassportPhotoPath,
		string(details),
	).Scan(&submission.CreatedAt, &submission.UpdatedAt)
	if err != nil {
		return err
	}

	if err := mirrorKYCStatusTx(ctx, tx, submission.UserID); err != nil {
		return err
	}
	for _, event := range events {
		if err := r.enqueueEventTx(ctx, tx, event); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// mirrorKYCStatusTx copies the status of the user's most recent submission onto
// the profile, so reviewing an older submission never overwrites a newer one.
func mirrorKYCStatusTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error {
	result, err := tx.Exec(ctx, `
		UPDATE profiles AS p
		SET kyc_status = latest.status, updated_at = NOW()
		FROM (
			SELECT status
			FROM kyc_submissions
			WHERE user_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		) AS latest
		WHERE p.id = $1
	`, userID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// FindKYCSubmissionByID retrieves a single submission.
func (r *PostgresRepository) FindKYCSubmissionByID(ctx context.Context, submissionID uuid.UUID) (*domain.KYCSubmission, error) {
	s, err := scanKYCSubmission(r.db.QueryRow(ctx, `SELECT `+kycColumns+` FROM kyc_submissions WHERE id = $1`, submissionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrKYCSubmissionNotFound
		}
		return nil, err
	}
	return s, nil
}

// FindLatestKYCSubmissionByUserID returns the user's most recent submission.
func (r *PostgresRepository) FindLatestKYCSubmissionByUserID(ctx context.Context, userID uuid.UUID) (*domain.KYCSubmission, error) {
	query := `SELECT ` + kycColumns + ` FROM kyc_submissions WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`
	s, err := scanKYCSubmission(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrKYCSubmissionNotFound
		}
		return nil, err
	}
	return s, nil
}

// ListKYCSubmissions returns one page of the review queue, newest first.
func (r *PostgresRepository) ListKYCSubmissions(ctx context.Context, filter domain.KYCFilter) ([]domain.KYCSubmission, int, error) {
	where := ""
	args := []any{}
	if filter.Status != "" {
		where = " WHERE status = $1"
		args = append(args, filter.Status)
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback(ctx)

	var total int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM kyc_submissions`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(
		`SELECT %s FROM kyc_submissions%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		kycColumns, where, len(args)+1, len(args)+2,
	)
	rows, err := tx.Query(ctx, query, append(args, filter.Limit, filter.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	submissions := make([]domain.KYCSubmission, 0, filter.Limit)
	for rows.Next() {
		s, err := scanKYCSubmission(rows)
		if err != nil {
			return nil, 0, err
		}
		submissions = append(submissions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return submissions, total, tx.Commit(ctx)
}

// ReviewKYCSubmission applies an admin decision: conditional status flip, profile
// mirror and notification enqueue in one database transaction.
func (r *PostgresRepository) ReviewKYCSubmission(ctx context.Context, review domain.KYCReview) (*domain.KYCSubmission, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE kyc_submissions
		SET status = $3,
			rejection_reason = $4,
			notes = COALESCE($5, notes),
			reviewed_by = $6,
			reviewed_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING ` + kycColumns
	updated, err := scanKYCSubmission(tx.QueryRow(ctx, query,
		review.SubmissionID,
		review.FromStatus,
		review.ToStatus,
		review.RejectionReason,
		review.Notes,
		review.ReviewerID,
	))
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		var current string
		lookupErr := tx.QueryRow(ctx, `SELECT status FROM kyc_submissions WHERE id = $1`, review.SubmissionID).Scan(&current)
		if errors.Is(lookupErr, pgx.ErrNoRows) {
			return nil, ErrKYCSubmissionNotFound
		}
		if lookupErr != nil {
			return nil, lookupErr
		}
		return nil, fmt.Errorf("kyc submission %s is %s: %w", review.SubmissionID, current, domain.ErrInvalidTransition)
	}

	if err := mirrorKYCStatusTx(ctx, tx, updated.UserID); err != nil {
		return nil, err
	}
	for _, event := range review.Events {
		if err := r.enqueueEventTx(ctx, tx, event); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return updated, nil
}
