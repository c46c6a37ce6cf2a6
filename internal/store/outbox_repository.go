package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/BenyBen1/EstienCapital-sub000/internal/domain"
	"github.com/jackc/pgx/v5"
)

type OutboxMessage struct {
	ID         int64
	Exchange   string
	RoutingKey string
	Payload    []byte
	Attempts   int
}

// OutboxBacklog summarizes undelivered outbox rows.
type OutboxBacklog struct {
	Pending       int64
	Processing    int64
	Retrying      int64
	OldestPending *time.Time
}

func (r *PostgresRepository) ClaimOutboxMessages(
	ctx context.Context,
	limit int,
	staleAfterSeconds int,
) ([]OutboxMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	if staleAfterSeconds <= 0 {
		staleAfterSeconds = 120
	}

	query := `
		WITH candidates AS (
			SELECT id
			FROM event_outbox
			WHERE (
				(status = 'pending' AND next_attempt_at <= NOW())
				OR (status = 'processing' AND processing_started_at < NOW() - ($2 * INTERVAL '1 second'))
			)
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE event_outbox AS o
		SET status = 'processing',
			processing_started_at = NOW(),
			attempts = o.attempts + 1
		FROM candidates
		WHERE o.id = candidates.id
		RETURNING o.id, o.exchange, o.routing_key, o.payload::text, o.attempts
	`

	rows, err := r.db.Query(ctx, query, limit, staleAfterSeconds)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]OutboxMessage, 0, limit)
	for rows.Next() {
		var (
			msg         OutboxMessage
			payloadText string
		)
		if err := rows.Scan(&msg.ID, &msg.Exchange, &msg.RoutingKey, &payloadText, &msg.Attempts); err != nil {
			return nil, err
		}
		msg.Payload = []byte(payloadText)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (r *PostgresRepository) MarkOutboxPublished(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE event_outbox
		SET status = 'published',
			published_at = NOW(),
			processing_started_at = NULL,
			last_error = NULL
		WHERE id = $1
	`, id)
	return err
}

func (r *PostgresRepository) MarkOutboxFailed(
	ctx context.Context,
	id int64,
	retryAfterSeconds int,
	reason string,
) error {
	if retryAfterSeconds < 1 {
		retryAfterSeconds = 1
	}
	if len(reason) > 2000 {
		reason = reason[:2000]
	}
	_, err := r.db.Exec(ctx, `
		UPDATE event_outbox
		SET status = 'pending',
			next_attempt_at = NOW() + ($2 * INTERVAL '1 second'),
			processing_started_at = NULL,
			last_error = $3
		WHERE id = $1
	`, id, retryAfterSeconds, reason)
	return err
}

// GetOutboxBacklog counts rows that have not been published yet.
func (r *PostgresRepository) GetOutboxBacklog(ctx context.Context) (*OutboxBacklog, error) {
	var backlog OutboxBacklog
	err := r.db.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'pending' AND attempts > 0),
			MIN(created_at) FILTER (WHERE status = 'pending')
		FROM event_outbox
		WHERE status <> 'published'
	`).Scan(&backlog.Pending, &backlog.Processing, &backlog.Retrying, &backlog.OldestPending)
	if err != nil {
		return nil, err
	}
	return &backlog, nil
}

func (r *PostgresRepository) enqueueEventTx(ctx context.Context, tx pgx.Tx, event domain.NotificationEvent) error {
	if !event.Deliverable() {
		return nil
	}
	blob, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO event_outbox (exchange, routing_key, payload)
		VALUES ($1, $2, $3::jsonb)
	`, r.eventsExchange, strings.TrimSpace(event.RoutingKey()), string(blob))
	if err != nil {
		return fmt.Errorf("failed to enqueue outbox event: %w", err)
	}
	return nil
}
