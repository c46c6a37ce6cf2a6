/**
 * @description
 * This file contains the core business logic for the Estien Capital backend. The
 * `Service` struct orchestrates the KYC, transaction-request, group-ledger and admin
 * workflows, coordinating between the repository, document storage and the
 * identity provider.
 *
 * Key features:
 * - Every status change goes through the transition functions in internal/domain.
 * - Status flips, wallet mutations and notification rows are committed together by
 *   the repository; this package never read-modify-writes a balance.
 * - Notifications are written to the outbox and delivered asynchronously, so an
 *   email failure can never fail a request.
 *
 * @dependencies
 * - github.com/google/uuid: For UUID generation.
 * - go.uber.org/zap: Structured logging.
 * - internal/domain, internal/store: For domain models and data access.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BenyBen1/EstienCapital-sub000/internal/domain"
	"github.com/BenyBen1/EstienCapital-sub000/internal/store"
	"github.com/BenyBen1/EstienCapital-sub000/pkg/authclient"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100

	storageCleanupTimeout = 10 * time.Second
)

// DocumentStorage stores uploaded KYC documents.
type DocumentStorage interface {
	Upload(ctx context.Context, objectPath, contentType string, data []byte) error
	Remove(ctx context.Context, objectPaths ...string) error
}

// IdentityProvider verifies admin credentials.
type IdentityProvider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*authclient.Session, error)
}

// RateLimiter counts events per scope and subject inside a fixed window.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Settings carries the tunables the service reads from configuration.
type Settings struct {
	DefaultCurrency               string
	AdminNotificationEmail        string
	FirmNotificationEmail         string
	TransactionRateLimitPerMinute int
	LoginRateLimitPerMinute       int
	TransactionPINMaxAttempts     int
	TransactionPINLockoutSeconds  int
	MaxTransactionAmountMinor     int64
}

// Service provides the core business logic.
type Service struct {
	repo     store.Repository
	storage  DocumentStorage
	identity IdentityProvider
	limiter  RateLimiter
	settings Settings
	now      func() time.Time
}

// NewService creates a new service instance.
func NewService(repo store.Repository, storage DocumentStorage, identity IdentityProvider, settings Settings) *Service {
	if strings.TrimSpace(settings.DefaultCurrency) == "" {
		settings.DefaultCurrency = "KES"
	}
	if settings.TransactionPINMaxAttempts <= 0 {
		settings.TransactionPINMaxAttempts = 5
	}
	if settings.TransactionPINLockoutSeconds <= 0 {
		settings.TransactionPINLockoutSeconds = 900
	}
	return &Service{
		repo:     repo,
		storage:  storage,
		identity: identity,
		settings: settings,
		now:      time.Now,
	}
}

// SetRateLimiter enables throttling of money-movement requests and admin logins.
func (s *Service) SetRateLimiter(limiter RateLimiter) {
	s.limiter = limiter
}

// RateLimitError is returned when a caller exceeds a limit.
type RateLimitError struct {
	Scope             string
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s; retry after %ds", e.Scope, e.RetryAfterSeconds)
}

func (e *RateLimitError) Unwrap() error { return domain.ErrRateLimited }

// enforceRateLimit fails open when the limiter is unavailable.
func (s *Service) enforceRateLimit(ctx context.Context, scope, subject string, limit int) error {
	if s.limiter == nil || limit <= 0 {
		return nil
	}
	count, retryAfter, err := s.limiter.ConsumeRateLimit(ctx, scope, subject, limit, time.Minute)
	if err != nil {
		zap.L().Warn("rate limiter unavailable; allowing request",
			zap.String("component", "rate_limiter"),
			zap.String("scope", scope),
			zap.Error(err),
		)
		return nil
	}
	if count > limit {
		return &RateLimitError{Scope: scope, RetryAfterSeconds: retryAfter}
	}
	return nil
}

func normalizePaging(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

// RegisterProfile creates the caller's profile and zero-balance wallet. It is
// idempotent: a second call returns the existing rows unchanged.
func (s *Service) RegisterProfile(ctx context.Context, userID uuid.UUID, email string, req domain.RegisterProfileRequest) (*domain.ProfileOverview, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, domain.NewValidationError("email", "token carries no email address")
	}
	accountType := req.AccountType
	if accountType == "" {
		accountType = domain.AccountTypeIndividual
	}
	profile := &domain.Profile{
		ID:          userID,
		Email:       email,
		FullName:    optionalString(req.FullName),
		PhoneNumber: optionalString(req.PhoneNumber),
		Role:        domain.RoleUser,
		AccountType: accountType,
		KYCStatus:   domain.StatusPending,
	}
	stored, wallet, err := s.repo.CreateProfileWithWallet(ctx, profile, s.settings.DefaultCurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to register profile: %w", err)
	}
	return &domain.ProfileOverview{Profile: stored, Wallet: wallet}, nil
}

// GetProfileOverview returns the caller's profile and default-currency wallet.
func (s *Service) GetProfileOverview(ctx context.Context, userID uuid.UUID) (*domain.ProfileOverview, error) {
	profile, err := s.repo.FindProfileByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	wallet, err := s.repo.FindWalletByUserID(ctx, userID, s.settings.DefaultCurrency)
	if err != nil && !errors.Is(err, store.ErrWalletNotFound) {
		return nil, err
	}
	return &domain.ProfileOverview{Profile: profile, Wallet: wallet}, nil
}

// GetWallet returns the caller's default-currency wallet.
func (s *Service) GetWallet(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	return s.repo.FindWalletByUserID(ctx, userID, s.settings.DefaultCurrency)
}

// IsAdmin reports whether userID belongs to an admin profile.
func (s *Service) IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	profile, err := s.repo.FindProfileByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrProfileNotFound) {
			return false, nil
		}
		return false, err
	}
	return profile.IsAdmin(), nil
}
