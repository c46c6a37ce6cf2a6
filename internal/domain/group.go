/**
 * @description
 * Group (SACCO / investment club / joint account) ledger models.
 *
 * @notes
 * - member_count and simple_balance on AccountGroup are denormalized aggregates.
 *   They are recomputed after every membership or contribution change and by
 *   the periodic reconciliation job, so a reader may see a value that lags the
 *   underlying rows by at most one reconciliation interval.
 * - Equity percentages are derived on read and never stored authoritatively.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	GroupTypeSACCO          = "sacco"
	GroupTypeInvestmentClub = "investment_club"
	GroupTypeJoint          = "joint"

	GroupStatusActive = "active"

	MemberRoleAdmin     = "admin"
	MemberRoleTreasurer = "treasurer"
	MemberRoleMember    = "member"

	MemberStatusPending = "pending"
	MemberStatusActive  = "active"
)

// AccountGroup maps to the `account_groups` table.
type AccountGroup struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Type          string    `json:"type"`
	Status        string    `json:"status"`
	Currency      string    `json:"currency"`
	MemberCount   int       `json:"member_count"`
	SimpleBalance int64     `json:"simple_balance"`
	CreatedBy     uuid.UUID `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// GroupMember maps to the `group_members` table.
type GroupMember struct {
	ID            uuid.UUID `json:"id"`
	GroupID       uuid.UUID `json:"group_id"`
	UserID        uuid.UUID `json:"user_id"`
	Role          string    `json:"role"`
	Status        string    `json:"status"`
	AccountNumber string    `json:"account_number"`
	JoinedAt      time.Time `json:"joined_at"`
}

// MemberEquity is a member's derived share of the group's contributions.
type MemberEquity struct {
	UserID           uuid.UUID       `json:"user_id"`
	AccountNumber    string          `json:"account_number"`
	TotalContributed int64           `json:"total_contributed"`
	EquityPercentage decimal.Decimal `json:"equity_percentage"`
}

// GroupEquity is a point-in-time equity breakdown. Numerators and the
// denominator come from the same snapshot.
type GroupEquity struct {
	GroupID            uuid.UUID      `json:"group_id"`
	TotalContributions int64          `json:"total_contributions"`
	Members            []MemberEquity `json:"members"`
	ComputedAt         time.Time      `json:"computed_at"`
}

// CreateGroupRequest is the DTO for POST /api/admin/groups.
type CreateGroupRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Type     string `json:"type" validate:"required,oneof=sacco investment_club joint"`
	Currency string `json:"currency" validate:"omitempty,len=3,alpha"`
}

// AddMemberRequest is the DTO for POST /api/admin/groups/:id/members.
type AddMemberRequest struct {
	UserID uuid.UUID `json:"user_id" validate:"required"`
	Role   string    `json:"role" validate:"omitempty,oneof=admin treasurer member"`
}

// GroupTransactionRequest is the DTO for POST /api/admin/groups/:id/transactions.
type GroupTransactionRequest struct {
	UserID      uuid.UUID `json:"user_id" validate:"required"`
	Amount      int64     `json:"amount" validate:"required,gt=0"`
	Type        string    `json:"type" validate:"required,oneof=deposit withdrawal"`
	Description string    `json:"description" validate:"omitempty,max=500"`
	Status      string    `json:"status" validate:"omitempty,oneof=pending completed"`
}
