package domain

import "github.com/google/uuid"

// DashboardMetrics is the aggregate view returned to the admin dashboard.
// All counts are read in a single statement so they describe one snapshot.
type DashboardMetrics struct {
	TotalUsers             int64 `json:"total_users"`
	PendingKYC             int64 `json:"pending_kyc"`
	ApprovedKYC            int64 `json:"approved_kyc"`
	PendingTransactions    int64 `json:"pending_transactions"`
	PendingDeposits        int64 `json:"pending_deposits"`
	PendingWithdrawals     int64 `json:"pending_withdrawals"`
	CompletedDepositsSum   int64 `json:"completed_deposits_total"`
	CompletedWithdrawalSum int64 `json:"completed_withdrawals_total"`
	TotalWalletBalance     int64 `json:"total_wallet_balance"`
	TotalGroups            int64 `json:"total_groups"`
}

// AdminLoginRequest is the DTO for POST /api/admin/login.
type AdminLoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=6,max=128"`
}

// AdminUser is the identity echoed back after a successful admin login.
type AdminUser struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name,omitempty"`
	Role     string    `json:"role"`
}

// AdminLoginResponse mirrors the identity provider session for admins.
type AdminLoginResponse struct {
	User         AdminUser `json:"user"`
	Token        string    `json:"token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresIn    int       `json:"expires_in,omitempty"`
}
