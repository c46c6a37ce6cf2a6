package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BenyBen1/EstienCapital-sub000/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrGroupMemberNotFound = fmt.Errorf("active group member %w", domain.ErrNotFound)

const groupColumns = `id, name, type, status, currency, member_count, simple_balance, created_by, created_at, updated_at`

// groupAggregateSQL computes the denormalized aggregates from the source rows.
// It is shared by the single-group and reconcile-all recomputes.
const groupAggregateSQL = `
	SELECT g.id,
		(
			SELECT COUNT(*)
			FROM group_members m
			WHERE m.group_id = g.id AND m.status = 'active'
		) AS member_count,
		(
			SELECT COALESCE(SUM(CASE WHEN t.type = 'deposit' THEN t.amount ELSE -t.amount END), 0)
			FROM transactions t
			WHERE t.group_id = g.id AND t.transaction_context = 'group' AND t.status = 'completed'
		) AS simple_balance
	FROM account_groups g
`

func scanGroup(row pgx.Row) (*domain.AccountGroup, error) {
	var g domain.AccountGroup
	err := row.Scan(
		&g.ID, &g.Name, &g.Type, &g.Status, &g.Currency, &g.MemberCount,
		&g.SimpleBalance, &g.CreatedBy, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// CreateGroup inserts a group with zeroed aggregates.
func (r *PostgresRepository) CreateGroup(ctx context.Context, group *domain.AccountGroup) error {
	query := `
		INSERT INTO account_groups (id, name, type, status, currency, member_count, simple_balance, created_by)
		VALUES ($1, $2, $3, $4, $5, 0, 0, $6)
		RETURNING member_count, simple_balance, created_at, updated_at
	`
	return r.db.QueryRow(ctx, query,
		group.ID,
		group.Name,
		group.Type,
		group.Status,
		group.Currency,
		group.CreatedBy,
	).Scan(&group.MemberCount, &group.SimpleBalance, &group.CreatedAt, &group.UpdatedAt)
}

// FindGroupByID retrieves a group row.
func (r *PostgresRepository) FindGroupByID(ctx context.Context, groupID uuid.UUID) (*domain.AccountGroup, error) {
	g, err := scanGroup(r.db.QueryRow(ctx, `SELECT `+groupColumns+` FROM account_groups WHERE id = $1`, groupID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		return nil, err
	}
	return g, nil
}

// ListGroups returns one page of groups, newest first.
func (r *PostgresRepository) ListGroups(ctx context.Context, page, limit int) ([]domain.AccountGroup, int, error) {
	offset := 0
	if page > 1 {
		offset = (page - 1) * limit
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback(ctx)

	var total int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM account_groups`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := tx.Query(ctx, `
		SELECT `+groupColumns+`
		FROM account_groups
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	groups := make([]domain.AccountGroup, 0, limit)
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, 0, err
		}
		groups = append(groups, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return groups, total, tx.Commit(ctx)
}

func lockGroupTx(ctx context.Context, tx pgx.Tx, groupID uuid.UUID) (*domain.AccountGroup, error) {
	g, err := scanGroup(tx.QueryRow(ctx, `SELECT `+groupColumns+` FROM account_groups WHERE id = $1 FOR UPDATE`, groupID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		return nil, err
	}
	return g, nil
}

// AddGroupMember inserts an active membership with a generated account number
// and recomputes the group's member_count in the same database transaction.
func (r *PostgresRepository) AddGroupMember(ctx context.Context, member *domain.GroupMember) (*domain.GroupMember, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := lockGroupTx(ctx, tx, member.GroupID); err != nil {
		return nil, err
	}

	var existing int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM group_members WHERE group_id = $1`, member.GroupID).Scan(&existing); err != nil {
		return nil, err
	}
	member.AccountNumber = groupAccountNumber(member.GroupID, existing+1)

	err = tx.QueryRow(ctx, `
		INSERT INTO group_members (id, group_id, user_id, role, status, account_number)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING joined_at
	`,
		member.ID,
		member.GroupID,
		member.UserID,
		member.Role,
		member.Status,
		member.AccountNumber,
	).Scan(&member.JoinedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrGroupMemberExists
		}
		return nil, err
	}

	if _, err := recomputeGroupTx(ctx, tx, member.GroupID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return member, nil
}

func groupAccountNumber(groupID uuid.UUID, sequence int) string {
	prefix := strings.ToUpper(strings.ReplaceAll(groupID.String(), "-", "")[:8])
	return fmt.Sprintf("GRP-%s-%04d", prefix, sequence)
}

// ListGroupMembers returns the group's memberships in join order.
func (r *PostgresRepository) ListGroupMembers(ctx context.Context, groupID uuid.UUID) ([]domain.GroupMember, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, group_id, user_id, role, status, account_number, joined_at
		FROM group_members
		WHERE group_id = $1
		ORDER BY joined_at, account_number
	`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := []domain.GroupMember{}
	for rows.Next() {
		var m domain.GroupMember
		if err := rows.Scan(&m.ID, &m.GroupID, &m.UserID, &m.Role, &m.Status, &m.AccountNumber, &m.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// RecordGroupTransaction inserts a completed group-context ledger entry for an
// active member and recomputes the group aggregates before committing.
func (r *PostgresRepository) RecordGroupTransaction(ctx context.Context, txn *domain.Transaction) (*domain.AccountGroup, error) {
	if txn.GroupID == nil {
		return nil, domain.NewValidationError("group_id", "is required")
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	group, err := lockGroupTx(ctx, tx, *txn.GroupID)
	if err != nil {
		return nil, err
	}

	var isMember bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2 AND status = 'active'
		)
	`, group.ID, txn.UserID).Scan(&isMember)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, ErrGroupMemberNotFound
	}

	if txn.Type == domain.TransactionTypeWithdrawal {
		current, err := recomputeGroupTx(ctx, tx, group.ID)
		if err != nil {
			return nil, err
		}
		if current.SimpleBalance < txn.Amount {
			return nil, domain.ErrInsufficientBalance
		}
	}

	if err := insertTransactionTx(ctx, tx, txn); err != nil {
		return nil, err
	}
	updated, err := recomputeGroupTx(ctx, tx, group.ID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return updated, nil
}

// RecomputeGroupAggregates refreshes member_count and simple_balance for one group.
func (r *PostgresRepository) RecomputeGroupAggregates(ctx context.Context, groupID uuid.UUID) (*domain.AccountGroup, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	g, err := recomputeGroupTx(ctx, tx, groupID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return g, nil
}

func recomputeGroupTx(ctx context.Context, tx pgx.Tx, groupID uuid.UUID) (*domain.AccountGroup, error) {
	query := `
		WITH agg AS (` + groupAggregateSQL + ` WHERE g.id = $1)
		UPDATE account_groups AS g
		SET member_count = agg.member_count,
			simple_balance = agg.simple_balance,
			updated_at = NOW()
		FROM agg
		WHERE g.id = agg.id
		RETURNING g.id, g.name, g.type, g.status, g.currency, g.member_count, g.simple_balance,
			g.created_by, g.created_at, g.updated_at
	`
	g, err := scanGroup(tx.QueryRow(ctx, query, groupID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		return nil, err
	}
	return g, nil
}

// RecomputeAllGroupAggregates reconciles every group and returns how many rows
// had drifted from their source data.
func (r *PostgresRepository) RecomputeAllGroupAggregates(ctx context.Context) (int64, error) {
	query := `
		WITH agg AS (` + groupAggregateSQL + `)
		UPDATE account_groups AS g
		SET member_count = agg.member_count,
			simple_balance = agg.simple_balance,
			updated_at = NOW()
		FROM agg
		WHERE g.id = agg.id
			AND (g.member_count, g.simple_balance) IS DISTINCT FROM (agg.member_count::int, agg.simple_balance::bigint)
	`
	result, err := r.db.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// GetGroupEquity derives each active member's share from completed group
// deposits. Numerators and the denominator come from one statement, so they
// always describe the same snapshot.
func (r *PostgresRepository) GetGroupEquity(ctx context.Context, groupID uuid.UUID) (*domain.GroupEquity, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM account_groups WHERE id = $1)`, groupID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrGroupNotFound
	}

	rows, err := tx.Query(ctx, `
		WITH contributions AS (
			SELECT m.user_id,
				m.account_number,
				COALESCE(SUM(t.amount) FILTER (WHERE t.type = 'deposit'), 0)::bigint AS total_contributed
			FROM group_members m
			LEFT JOIN transactions t
				ON t.group_id = m.group_id
				AND t.user_id = m.user_id
				AND t.transaction_context = 'group'
				AND t.status = 'completed'
			WHERE m.group_id = $1 AND m.status = 'active'
			GROUP BY m.user_id, m.account_number
		)
		SELECT user_id, account_number, total_contributed, (SUM(total_contributed) OVER ())::bigint AS total
		FROM contributions
		ORDER BY total_contributed DESC, account_number
	`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	equity := &domain.GroupEquity{
		GroupID:    groupID,
		Members:    []domain.MemberEquity{},
		ComputedAt: time.Now().UTC(),
	}
	for rows.Next() {
		var m domain.MemberEquity
		if err := rows.Scan(&m.UserID, &m.AccountNumber, &m.TotalContributed, &equity.TotalContributions); err != nil {
			return nil, err
		}
		equity.Members = append(equity.Members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range equity.Members {
		equity.Members[i].EquityPercentage = domain.Percentage(equity.Members[i].TotalContributed, equity.TotalContributions)
	}
	return equity, tx.Commit(ctx)
}
