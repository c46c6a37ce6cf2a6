/**
 * @description
 * Identity-side models: the user profile, the per-currency wallet and the
 * security settings that hold the transaction PIN.
 *
 * @notes
 * - Amounts are int64 minor units (cents) to avoid floating-point drift.
 * - A profile is never deleted; kyc_status only moves through the KYC workflow.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"

	AccountTypeIndividual = "individual"
	AccountTypeGroup      = "group"
)

// Profile maps to the `profiles` table.
type Profile struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	FullName    *string   `json:"full_name,omitempty"`
	PhoneNumber *string   `json:"phone_number,omitempty"`
	Role        string    `json:"role"`
	AccountType string    `json:"account_type"`
	KYCStatus   string    `json:"kyc_status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsAdmin reports whether the profile may use the admin surface.
func (p *Profile) IsAdmin() bool {
	return p != nil && (p.Role == RoleAdmin || p.Role == RoleSuperAdmin)
}

// DisplayName falls back to the email when no full name is recorded.
func (p *Profile) DisplayName() string {
	if p.FullName != nil && *p.FullName != "" {
		return *p.FullName
	}
	return p.Email
}

// Wallet maps to the `wallets` table. One row per user per currency.
type Wallet struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Balance   int64     `json:"balance"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SecuritySettings maps to the `security_settings` table.
type SecuritySettings struct {
	UserID             uuid.UUID  `json:"user_id"`
	TransactionPINHash string     `json:"-"`
	FailedAttempts     int        `json:"failed_attempts"`
	LockedUntil        *time.Time `json:"locked_until,omitempty"`
}

// RegisterProfileRequest is the DTO for POST /api/profile.
type RegisterProfileRequest struct {
	FullName    string `json:"full_name" validate:"omitempty,max=200"`
	PhoneNumber string `json:"phone_number" validate:"omitempty,e164"`
	AccountType string `json:"account_type" validate:"omitempty,oneof=individual group"`
}

// SetTransactionPINRequest is the DTO for PUT /api/security/pin.
type SetTransactionPINRequest struct {
	PIN string `json:"pin" validate:"required,numeric,len=4|len=6"`
}

// ProfileOverview is returned by GET /api/profile.
type ProfileOverview struct {
	Profile *Profile `json:"profile"`
	Wallet  *Wallet  `json:"wallet,omitempty"`
}
