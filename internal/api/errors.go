package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/BenyBen1/EstienCapital-sub000/internal/app"
	"github.com/BenyBen1/EstienCapital-sub000/internal/domain"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode response", zap.String("component", "api"), zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeServiceError maps a service error onto the HTTP status the clients
// expect. Unexpected errors are logged and hidden behind a generic 500.
func writeServiceError(w http.ResponseWriter, endpoint string, err error) {
	var validationErr *domain.ValidationError
	var rateErr *app.RateLimitError

	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Validation failed", Fields: validationErr.Fields})
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInsufficientBalance):
		logReject(endpoint, "insufficient_balance", err)
		writeError(w, http.StatusBadRequest, "Insufficient balance")
	case errors.Is(err, domain.ErrTransactionPINNotSet):
		writeError(w, http.StatusPreconditionFailed, "Transaction PIN is not set. Please set your PIN.")
	case errors.Is(err, domain.ErrTransactionPINLocked):
		logReject(endpoint, "pin_locked", err)
		writeError(w, http.StatusLocked, "Transaction PIN is temporarily locked. Please try again later.")
	case errors.Is(err, domain.ErrInvalidTransactionPIN):
		logReject(endpoint, "pin_invalid", err)
		writeError(w, http.StatusUnauthorized, "Invalid transaction PIN.")
	case errors.Is(err, domain.ErrUnauthorized):
		logReject(endpoint, "unauthorized", err)
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrConflict):
		logReject(endpoint, "conflict", err)
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &rateErr):
		w.Header().Set("Retry-After", strconv.Itoa(rateErr.RetryAfterSeconds))
		logReject(endpoint, "rate_limited", err)
		writeError(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
	case errors.Is(err, domain.ErrStorage):
		zap.L().Error("document storage failed",
			zap.String("component", "api"),
			zap.String("endpoint", endpoint),
			zap.Error(err),
		)
		writeError(w, http.StatusBadGateway, "Document storage is unavailable. Please try again.")
	case errors.Is(err, app.ErrIdentityUnavailable):
		writeError(w, http.StatusServiceUnavailable, "Login is not available")
	default:
		zap.L().Error("request failed",
			zap.String("component", "api"),
			zap.String("endpoint", endpoint),
			zap.String("outcome", "error"),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func logReject(endpoint, reason string, err error) {
	zap.L().Warn("request rejected",
		zap.String("component", "api"),
		zap.String("endpoint", endpoint),
		zap.String("outcome", "reject"),
		zap.String("reason", reason),
		zap.Error(err),
	)
}
