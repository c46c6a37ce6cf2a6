package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/BenyBen1/EstienCapital-sub000/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	rateLimitScopeTransactions = "transactions"

	depositReferencePrefix    = "DEP_"
	withdrawalReferencePrefix = "WDR_"
	groupReferencePrefix      = "GRP_"
)

const insufficientBalanceAtApprovalNote = "insufficient wallet balance at approval"

func (s *Service) validateAmount(amount int64) error {
	if amount <= 0 {
		return domain.NewValidationError("amount", "must be greater than zero")
	}
	if s.settings.MaxTransactionAmountMinor > 0 && amount > s.settings.MaxTransactionAmountMinor {
		return domain.NewValidationError("amount", fmt.Sprintf("must not exceed %d", s.settings.MaxTransactionAmountMinor))
	}
	return nil
}

func (s *Service) currencyOrDefault(currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return s.settings.DefaultCurrency
	}
	return currency
}

func (s *Service) newReference(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, s.now().UnixMilli())
}

// CreateDeposit records a pending deposit request. The wallet is credited only
// when an admin approves it.
func (s *Service) CreateDeposit(ctx context.Context, userID uuid.UUID, req domain.DepositRequest) (*domain.Transaction, error) {
	if err := s.validateAmount(req.Amount); err != nil {
		return nil, err
	}
	if err := s.enforceRateLimit(ctx, rateLimitScopeTransactions, userID.String(), s.settings.TransactionRateLimitPerMinute); err != nil {
		return nil, err
	}
	profile, err := s.repo.FindProfileByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	// Approval credits the wallet in the deposit's currency, so it must exist now.
	currency := s.currencyOrDefault(req.Currency)
	if _, err := s.repo.FindWalletByUserID(ctx, userID, currency); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewValidationError("currency", "no wallet in this currency")
		}
		return nil, err
	}
	status, err := domain.TransitionTransaction("", domain.EventSubmit)
	if err != nil {
		return nil, err
	}

	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		reference = s.newReference(depositReferencePrefix)
	}
	now := s.now().UTC()
	txn := &domain.Transaction{
		ID:            uuid.New(),
		UserID:        userID,
		Type:          domain.TransactionTypeDeposit,
		Context:       domain.TransactionContextPersonal,
		Amount:        req.Amount,
		Currency:      currency,
		Status:        status,
		Reference:     reference,
		PaymentMethod: strings.TrimSpace(req.PaymentMethod),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	events := transactionRequestedEvents(s.settings.FirmNotificationEmail, profile, txn, now)
	if err := s.repo.CreateTransactionRequest(ctx, txn, events); err != nil {
		return nil, fmt.Errorf("failed to create deposit request: %w", err)
	}

	zap.L().Info("deposit requested",
		zap.String("component", "transactions"),
		zap.String("transaction_id", txn.ID.String()),
		zap.Int64("amount", txn.Amount),
	)
	return txn, nil
}

// CreateWithdrawal verifies the transaction PIN and records a pending
// withdrawal. The store rejects the request when the wallet cannot cover it;
// no row is written in that case.
func (s *Service) CreateWithdrawal(ctx context.Context, userID uuid.UUID, req domain.WithdrawalRequest) (*domain.Transaction, error) {
	if err := s.validateAmount(req.Amount); err != nil {
		return nil, err
	}
	if len(req.AccountDetails) == 0 {
		return nil, domain.NewValidationError("account_details", "is required")
	}
	if err := s.enforceRateLimit(ctx, rateLimitScopeTransactions, userID.String(), s.settings.TransactionRateLimitPerMinute); err != nil {
		return nil, err
	}
	if err := s.verifyTransactionPIN(ctx, userID, req.TransactionPIN); err != nil {
		return nil, err
	}
	profile, err := s.repo.FindProfileByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	status, err := domain.TransitionTransaction("", domain.EventSubmit)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	txn := &domain.Transaction{
		ID:             uuid.New(),
		UserID:         userID,
		Type:           domain.TransactionTypeWithdrawal,
		Context:        domain.TransactionContextPersonal,
		Amount:         req.Amount,
		Currency:       s.currencyOrDefault(req.Currency),
		Status:         status,
		Reference:      s.newReference(withdrawalReferencePrefix),
		PaymentMethod:  strings.TrimSpace(req.PaymentMethod),
		AccountDetails: req.AccountDetails,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	events := transactionRequestedEvents(s.settings.FirmNotificationEmail, profile, txn, now)
	if err := s.repo.CreateTransactionRequest(ctx, txn, events); err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create withdrawal request: %w", err)
	}

	zap.L().Info("withdrawal requested",
		zap.String("component", "transactions"),
		zap.String("transaction_id", txn.ID.String()),
		zap.Int64("amount", txn.Amount),
	)
	return txn, nil
}

// GetTransaction returns one transaction. Non-admin callers only see their own.
func (s *Service) GetTransaction(ctx context.Context, transactionID uuid.UUID, callerID uuid.UUID, isAdmin bool) (*domain.Transaction, error) {
	txn, err := s.repo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && txn.UserID != callerID {
		return nil, fmt.Errorf("transaction %s: %w", transactionID, domain.ErrNotFound)
	}
	return txn, nil
}

// ListTransactions returns a page of transactions matching filter, newest first.
func (s *Service) ListTransactions(ctx context.Context, filter domain.TransactionFilter) (domain.Page[domain.Transaction], error) {
	filter.Page, filter.Limit = normalizePaging(filter.Page, filter.Limit)
	items, total, err := s.repo.ListTransactions(ctx, filter)
	if err != nil {
		return domain.Page[domain.Transaction]{}, err
	}
	return domain.NewPage(items, total, filter.Page, filter.Limit), nil
}

// ApproveTransaction completes a pending transaction. A personal entry moves the
// owner's wallet by its signed amount; a group entry refreshes the group's
// aggregates. If an approved withdrawal can no longer be covered, the request is
// marked failed and ErrInsufficientBalance is returned.
func (s *Service) ApproveTransaction(ctx context.Context, transactionID, reviewerID uuid.UUID) (*domain.Transaction, error) {
	current, err := s.repo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	next, err := domain.TransitionTransaction(current.Status, domain.EventApprove)
	if err != nil {
		return nil, err
	}
	profile, err := s.repo.FindProfileByID(ctx, current.UserID)
	if err != nil {
		return nil, err
	}

	decision := domain.TransactionDecision{
		TransactionID: current.ID,
		FromStatus:    current.Status,
		ToStatus:      next,
		ReviewerID:    &reviewerID,
		Events:        []domain.NotificationEvent{
			transactionDecisionEvent(domain.NotificationTransactionCompleted, profile, current, "", s.now().UTC()),
		},
	}
	if current.Context == domain.TransactionContextGroup && current.GroupID != nil {
		decision.RecomputeGroupID = current.GroupID
	} else {
		decision.WalletDelta = current.SignedAmount()
	}

	updated, err := s.repo.ApplyTransactionDecision(ctx, decision)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			return nil, s.failTransaction(ctx, current, profile, reviewerID, err)
		}
		return nil, err
	}

	zap.L().Info("transaction approved",
		zap.String("component", "transactions"),
		zap.String("transaction_id", updated.ID.String()),
		zap.String("type", updated.Type),
		zap.Int64("amount", updated.Amount),
	)
	return updated, nil
}

// failTransaction records a withdrawal that could not be covered at approval.
// A transaction that is already decided is left as it is.
func (s *Service) failTransaction(ctx context.Context, current *domain.Transaction, profile *domain.Profile, reviewerID uuid.UUID, cause error) error {
	if domain.IsTerminalTransactionStatus(current.Status) {
		return cause
	}
	next, err := domain.TransitionTransaction(current.Status, domain.EventFail)
	if err != nil {
		return cause
	}
	note := insufficientBalanceAtApprovalNote
	_, err = s.repo.ApplyTransactionDecision(ctx, domain.TransactionDecision{
		TransactionID: current.ID,
		FromStatus:    current.Status,
		ToStatus:      next,
		Notes:         &note,
		ReviewerID:    &reviewerID,
		Events:        []domain.NotificationEvent{
			transactionDecisionEvent(domain.NotificationTransactionRejected, profile, current, note, s.now().UTC()),
		},
	})
	if err != nil {
		zap.L().Warn("failed to mark uncovered withdrawal as failed",
			zap.String("component", "transactions"),
			zap.String("transaction_id", current.ID.String()),
			zap.Error(err),
		)
	}
	return cause
}

// RejectTransaction closes a pending transaction with a mandatory reason. The
// wallet is never touched.
func (s *Service) RejectTransaction(ctx context.Context, transactionID, reviewerID uuid.UUID, reason string) (*domain.Transaction, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.NewValidationError("reason", "is required when rejecting")
	}

	current, err := s.repo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	next, err := domain.TransitionTransaction(current.Status, domain.EventReject)
	if err != nil {
		return nil, err
	}
	profile, err := s.repo.FindProfileByID(ctx, current.UserID)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.ApplyTransactionDecision(ctx, domain.TransactionDecision{
		TransactionID: current.ID,
		FromStatus:    current.Status,
		ToStatus:      next,
		Notes:         &reason,
		ReviewerID:    &reviewerID,
		Events:        []domain.NotificationEvent{
			transactionDecisionEvent(domain.NotificationTransactionRejected, profile, current, reason, s.now().UTC()),
		},
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("transaction rejected",
		zap.String("component", "transactions"),
		zap.String("transaction_id", updated.ID.String()),
	)
	return updated, nil
}
