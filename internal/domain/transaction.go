/**
 * @description
 * Core money-movement models: deposit and withdrawal requests, their list
 * filters and the admin decision payloads.
 *
 * @notes
 * - A Transaction is created pending and reaches completed or rejected exactly
 *   once (see status.go). Amount and type never change after creation.
 * - Group ledger entries share the table and carry context "group".
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	TransactionTypeDeposit    = "deposit"
	TransactionTypeWithdrawal = "withdrawal"

	TransactionContextPersonal = "personal"
	TransactionContextGroup    = "group"
)

// Transaction maps to the `transactions` table.
type Transaction struct {
	ID             uuid.UUID      `json:"id"`
	UserID         uuid.UUID      `json:"user_id"`
	GroupID        *uuid.UUID     `json:"group_id,omitempty"`
	Type           string         `json:"type"`
	Context        string         `json:"transaction_context"`
	Amount         int64          `json:"amount"`
	Currency       string         `json:"currency"`
	Status         string         `json:"status"`
	Reference      string         `json:"reference"`
	PaymentMethod  string         `json:"payment_method"`
	AccountDetails map[string]any `json:"account_details,omitempty"`
	Description    *string        `json:"description,omitempty"`
	Notes          *string        `json:"notes,omitempty"`
	ReviewedBy     *uuid.UUID     `json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time     `json:"reviewed_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// SignedAmount is the wallet delta applied when the transaction completes.
func (t *Transaction) SignedAmount() int64 {
	if t.Type == TransactionTypeWithdrawal {
		return -t.Amount
	}
	return t.Amount
}

// DepositRequest is the DTO for POST /api/transactions/deposit.
type DepositRequest struct {
	Amount        int64  `json:"amount" validate:"required,gt=0"`
	PaymentMethod string `json:"payment_method" validate:"required,max=50"`
	Reference     string `json:"reference" validate:"omitempty,max=100"`
	Currency      string `json:"currency" validate:"omitempty,len=3,alpha"`
}

// WithdrawalRequest is the DTO for POST /api/transactions/withdraw.
type WithdrawalRequest struct {
	Amount         int64          `json:"amount" validate:"required,gt=0"`
	PaymentMethod  string         `json:"payment_method" validate:"required,max=50"`
	AccountDetails map[string]any `json:"account_details" validate:"required,min=1"`
	Currency       string         `json:"currency" validate:"omitempty,len=3,alpha"`
	TransactionPIN string         `json:"transaction_pin" validate:"required,numeric"`
}

// RejectRequest carries the mandatory reason for a rejection.
type RejectRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// TransactionFilter narrows a transaction listing. Zero values mean "any".
type TransactionFilter struct {
	UserID *uuid.UUID
	Type   string
	Status string
	Page   int
	Limit  int
}

// Offset converts the 1-based page into a row offset.
func (f TransactionFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// Page is an offset-paginated result.
type Page[T any] struct {
	Data       []T `json:"data"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

// NewPage computes TotalPages from total and limit.
func NewPage[T any](data []T, total, page, limit int) Page[T] {
	if data == nil {
		data = []T{}
	}
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return Page[T]{Data: data, Total: total, Page: page, Limit: limit, TotalPages: totalPages}
}

// TransactionDecision is what the store applies atomically when an admin
// approves or rejects a transaction.
type TransactionDecision struct {
	TransactionID uuid.UUID
	FromStatus    string
	ToStatus      string
	Notes         *string
	ReviewerID    *uuid.UUID
	Events        []NotificationEvent

	// WalletDelta is applied to the owner's wallet in the same database
	// transaction. Zero leaves the wallet untouched. A negative delta never
	// takes the balance below zero.
	WalletDelta int64

	// RecomputeGroupID is set for group-context entries; the group's
	// aggregates are recomputed in the same database transaction.
	RecomputeGroupID *uuid.UUID
}
