package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

const (
	userIDContextKey    contextKey = "userID"
	userEmailContextKey contextKey = "userEmail"
)

// AuthMiddlewareConfig controls how bearer tokens issued by the identity
// provider are verified.
type AuthMiddlewareConfig struct {
	JWTSecret        string
	ExpectedIssuer   string
	ExpectedAudience string
}

type supabaseClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// SupabaseAuthMiddleware validates HS256 access tokens and injects the caller's
// user ID and email into the request context.
func SupabaseAuthMiddleware(cfg AuthMiddlewareConfig) func(http.Handler) http.Handler {
	secret := []byte(strings.TrimSpace(cfg.JWTSecret))
	issuer := strings.TrimSpace(cfg.ExpectedIssuer)
	audience := strings.TrimSpace(cfg.ExpectedAudience)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(strings.TrimSpace(r.Header.Get("Authorization")))
			if !ok {
				writeError(w, http.StatusUnauthorized, "Authorization required")
				return
			}
			if len(secret) == 0 {
				zap.L().Error("auth secret not configured", zap.String("component", "api"))
				writeError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			userID, email, err := validateToken(tokenString, secret, issuer, audience)
			if err != nil {
				zap.L().Debug("token rejected",
					zap.String("component", "api"),
					zap.String("path", r.URL.Path),
					zap.Error(err),
				)
				writeError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), userIDContextKey, userID)
			if email != "" {
				ctx = context.WithValue(ctx, userEmailContextKey, email)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func validateToken(tokenString string, secret []byte, issuer, audience string) (uuid.UUID, string, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(30 * time.Second),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		options = append(options, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		options = append(options, jwt.WithAudience(audience))
	}

	claims := &supabaseClaims{}
	token, err := jwt.NewParser(options...).ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return uuid.Nil, "", err
	}
	if !token.Valid {
		return uuid.Nil, "", errors.New("token is not valid")
	}

	userID, err := uuid.Parse(strings.TrimSpace(claims.Subject))
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("invalid subject claim: %w", err)
	}
	return userID, strings.ToLower(strings.TrimSpace(claims.Email)), nil
}

// AdminChecker reports whether a user may use the admin surface.
type AdminChecker func(ctx context.Context, userID uuid.UUID) (bool, error)

// RequireAdmin rejects authenticated callers whose profile is not an admin.
// It must run after SupabaseAuthMiddleware.
func RequireAdmin(isAdmin AdminChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := GetUserID(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "Authorization required")
				return
			}
			allowed, err := isAdmin(r.Context(), userID)
			if err != nil {
				zap.L().Error("admin check failed",
					zap.String("component", "api"),
					zap.String("user_id", userID.String()),
					zap.Error(err),
				)
				writeError(w, http.StatusInternalServerError, "Internal server error")
				return
			}
			if !allowed {
				writeError(w, http.StatusForbidden, "Admin access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetUserID returns the authenticated user ID from request context.
func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(userIDContextKey).(uuid.UUID)
	return userID, ok
}

// GetUserEmail returns the authenticated email from request context when available.
func GetUserEmail(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(userEmailContextKey).(string)
	return email, ok
}

func bearerToken(authHeader string) (string, bool) {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	return token, token != ""
}
