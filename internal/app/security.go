package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/BenyBen1/EstienCapital-sub000/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// SetTransactionPIN stores a bcrypt hash of pin and clears any lockout.
func (s *Service) SetTransactionPIN(ctx context.Context, userID uuid.UUID, pin string) error {
	pin = strings.TrimSpace(pin)
	if !isValidPIN(pin) {
		return domain.NewValidationError("pin", "must be 4 or 6 digits")
	}
	if _, err := s.repo.FindProfileByID(ctx, userID); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash transaction pin: %w", err)
	}
	return s.repo.UpsertTransactionPIN(ctx, userID, string(hash))
}

// verifyTransactionPIN checks pin against the stored hash. Failed attempts are
// counted and lock the PIN once the configured maximum is reached.
func (s *Service) verifyTransactionPIN(ctx context.Context, userID uuid.UUID, pin string) error {
	settings, err := s.repo.GetSecuritySettings(ctx, userID)
	if err != nil {
		return err
	}
	if settings.TransactionPINHash == "" {
		return domain.ErrTransactionPINNotSet
	}
	if settings.LockedUntil != nil && settings.LockedUntil.After(s.now()) {
		return domain.ErrTransactionPINLocked
	}

	err = bcrypt.CompareHashAndPassword([]byte(settings.TransactionPINHash), []byte(strings.TrimSpace(pin)))
	if err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return fmt.Errorf("failed to verify transaction pin: %w", err)
		}
		updated, recordErr := s.repo.RecordFailedTransactionPINAttempt(
			ctx,
			userID,
			s.settings.TransactionPINMaxAttempts,
			s.settings.TransactionPINLockoutSeconds,
		)
		if recordErr != nil {
			return recordErr
		}
		if updated.LockedUntil != nil && updated.LockedUntil.After(s.now()) {
			zap.L().Warn("transaction pin locked",
				zap.String("component", "security"),
				zap.String("user_id", userID.String()),
				zap.Int("failed_attempts", updated.FailedAttempts),
			)
			return domain.ErrTransactionPINLocked
		}
		return domain.ErrInvalidTransactionPIN
	}

	if settings.FailedAttempts > 0 || settings.LockedUntil != nil {
		if err := s.repo.ResetTransactionPINFailureState(ctx, userID); err != nil {
			return err
		}
	}
	return nil
}

func isValidPIN(pin string) bool {
	if len(pin) != 4 && len(pin) != 6 {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
