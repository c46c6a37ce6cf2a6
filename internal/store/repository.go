/**
 * @description
 * This file defines the `Repository` interface, the contract for all data access
 * required by the Estien Capital backend. Services depend on this interface only,
 * so the PostgreSQL implementation can be replaced by a stub in tests.
 *
 * @notes
 * - Every method that changes a workflow status also writes the matching
 *   notification rows to the outbox inside the same database transaction.
 * - Conditional updates (status = 'pending', balance + delta >= 0) are what make
 *   approvals safe under concurrency; callers never read-modify-write a balance.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the domain models.
 */

package store

import (
	"context"

	"github.com/BenyBen1/EstienCapital-sub000/internal/domain"
	"github.com/google/uuid"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	OutboxRepository

	// Profile, wallet and security methods
	CreateProfileWithWallet(ctx context.Context, profile *domain.Profile, currency string) (*domain.Profile, *domain.Wallet, error)
	FindProfileByID(ctx context.Context, userID uuid.UUID) (*domain.Profile, error)
	FindWalletByUserID(ctx context.Context, userID uuid.UUID, currency string) (*domain.Wallet, error)
	GetSecuritySettings(ctx context.Context, userID uuid.UUID) (*domain.SecuritySettings, error)
	UpsertTransactionPIN(ctx context.Context, userID uuid.UUID, pinHash string) error
	RecordFailedTransactionPINAttempt(ctx context.Context, userID uuid.UUID, maxAttempts int, lockoutDurationSeconds int) (*domain.SecuritySettings, error)
	ResetTransactionPINFailureState(ctx context.Context, userID uuid.UUID) error

	// Transaction methods
	CreateTransactionRequest(ctx context.Context, txn *domain.Transaction, events []domain.NotificationEvent) error
	FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, int, error)
	ApplyTransactionDecision(ctx context.Context, decision domain.TransactionDecision) (*domain.Transaction, error)

	// KYC methods
	CreateKYCSubmission(ctx context.Context, submission *domain.KYCSubmission, events []domain.NotificationEvent) error
	FindKYCSubmissionByID(ctx context.Context, submissionID uuid.UUID) (*domain.KYCSubmission, error)
	FindLatestKYCSubmissionByUserID(ctx context.Context, userID uuid.UUID) (*domain.KYCSubmission, error)
	ListKYCSubmissions(ctx context.Context, filter domain.KYCFilter) ([]domain.KYCSubmission, int, error)
	ReviewKYCSubmission(ctx context.Context, review domain.KYCReview) (*domain.KYCSubmission, error)

	// Group ledger methods
	CreateGroup(ctx context.Context, group *domain.AccountGroup) error
	FindGroupByID(ctx context.Context, groupID uuid.UUID) (*domain.AccountGroup, error)
	ListGroups(ctx context.Context, page, limit int) ([]domain.AccountGroup, int, error)
	AddGroupMember(ctx context.Context, member *domain.GroupMember) (*domain.GroupMember, error)
	ListGroupMembers(ctx context.Context, groupID uuid.UUID) ([]domain.GroupMember, error)
	RecordGroupTransaction(ctx context.Context, txn *domain.Transaction) (*domain.AccountGroup, error)
	RecomputeGroupAggregates(ctx context.Context, groupID uuid.UUID) (*domain.AccountGroup, error)
	RecomputeAllGroupAggregates(ctx context.Context) (int64, error)
	GetGroupEquity(ctx context.Context, groupID uuid.UUID) (*domain.GroupEquity, error)

	// Admin methods
	GetDashboardMetrics(ctx context.Context) (*domain.DashboardMetrics, error)
}

// OutboxRepository is the subset used by the outbox dispatcher and backlog job.
type OutboxRepository interface {
	ClaimOutboxMessages(ctx context.Context, limit int, staleAfterSeconds int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, id int64) error
	MarkOutboxFailed(ctx context.Context, id int64, retryAfterSeconds int, reason string) error
	GetOutboxBacklog(ctx context.Context) (*OutboxBacklog, error)
}
