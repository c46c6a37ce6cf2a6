package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/BenyBen1/EstienCapital-sub000/internal/domain"
	"github.com/BenyBen1/EstienCapital-sub000/internal/store"
	"github.com/BenyBen1/EstienCapital-sub000/pkg/authclient"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const rateLimitScopeAdminLogin = "admin_login"

// ErrIdentityUnavailable is returned when no identity provider is configured.
var ErrIdentityUnavailable = errors.New("identity provider not configured")

// AdminLogin verifies credentials with the identity provider and then requires
// an admin profile. Unknown users and non-admins get the same error.
func (s *Service) AdminLogin(ctx context.Context, req domain.AdminLoginRequest, clientIP string) (*domain.AdminLoginResponse, error) {
	if s.identity == nil {
		return nil, ErrIdentityUnavailable
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	subject := clientIP
	if subject == "" {
		subject = email
	}
	if err := s.enforceRateLimit(ctx, rateLimitScopeAdminLogin, subject, s.settings.LoginRateLimitPerMinute); err != nil {
		return nil, err
	}

	session, err := s.identity.SignInWithPassword(ctx, email, req.Password)
	if err != nil {
		if errors.Is(err, authclient.ErrInvalidCredentials) {
			return nil, fmt.Errorf("invalid email or password: %w", domain.ErrUnauthorized)
		}
		return nil, fmt.Errorf("identity provider sign-in failed: %w", err)
	}

	userID, err := uuid.Parse(session.User.ID)
	if err != nil {
		return nil, fmt.Errorf("identity provider returned invalid user id: %w", domain.ErrUnauthorized)
	}
	profile, err := s.repo.FindProfileByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrProfileNotFound) {
			return nil, fmt.Errorf("no admin profile: %w", domain.ErrUnauthorized)
		}
		return nil, err
	}
	if !profile.IsAdmin() {
		zap.L().Warn("non-admin attempted admin login",
			zap.String("component", "admin"),
			zap.String("user_id", userID.String()),
		)
		return nil, fmt.Errorf("admin access required: %w", domain.ErrUnauthorized)
	}

	fullName := ""
	if profile.FullName != nil {
		fullName = *profile.FullName
	}
	return &domain.AdminLoginResponse{
		User: domain.AdminUser{
			ID:       profile.ID,
			Email:    profile.Email,
			FullName: fullName,
			Role:     profile.Role,
		},
		Token:        session.AccessToken,
		RefreshToken: session.RefreshToken,
		ExpiresIn:    session.ExpiresIn,
	}, nil
}

// DashboardMetrics returns the admin dashboard counters.
func (s *Service) DashboardMetrics(ctx context.Context) (*domain.DashboardMetrics, error) {
	return s.repo.GetDashboardMetrics(ctx)
}
