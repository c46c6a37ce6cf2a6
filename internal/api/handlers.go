/**
 * @description
 * HTTP handlers for the Estien Capital API. Handlers decode and validate the
 * request, call the application service and translate its errors.
 *
 * @dependencies
 * - internal/app: business logic.
 * - internal/domain: request/response DTOs.
 * - github.com/go-chi/chi/v5: URL parameters.
 */
package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/BenyBen1/EstienCapital-sub000/internal/app"
	"github.com/BenyBen1/EstienCapital-sub000/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Service is the application surface the handlers depend on. *app.Service
// satisfies it.
type Service interface {
	RegisterProfile(ctx context.Context, userID uuid.UUID, email string, req domain.RegisterProfileRequest) (*domain.ProfileOverview, error)
	GetProfileOverview(ctx context.Context, userID uuid.UUID) (*domain.ProfileOverview, error)
	GetWallet(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error)
	SetTransactionPIN(ctx context.Context, userID uuid.UUID, pin string) error

	SubmitKYC(ctx context.Context, userID uuid.UUID, req domain.KYCSubmitRequest) (*domain.KYCSubmission, error)
	GetKYCStatus(ctx context.Context, userID uuid.UUID) (*domain.KYCSubmission, error)
	GetKYCSubmission(ctx context.Context, submissionID uuid.UUID) (*domain.KYCSubmission, error)
	ListKYCSubmissions(ctx context.Context, filter domain.KYCFilter) (domain.Page[domain.KYCSubmission], error)
	UpdateKYCStatus(ctx context.Context, submissionID, reviewerID uuid.UUID, req domain.KYCStatusUpdateRequest) (*domain.KYCSubmission, error)

	CreateDeposit(ctx context.Context, userID uuid.UUID, req domain.DepositRequest) (*domain.Transaction, error)
	CreateWithdrawal(ctx context.Context, userID uuid.UUID, req domain.WithdrawalRequest) (*domain.Transaction, error)
	GetTransaction(ctx context.Context, transactionID, callerID uuid.UUID, isAdmin bool) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, filter domain.TransactionFilter) (domain.Page[domain.Transaction], error)
	ApproveTransaction(ctx context.Context, transactionID, reviewerID uuid.UUID) (*domain.Transaction, error)
	RejectTransaction(ctx context.Context, transactionID, reviewerID uuid.UUID, reason string) (*domain.Transaction, error)

	CreateGroup(ctx context.Context, creatorID uuid.UUID, req domain.CreateGroupRequest) (*domain.AccountGroup, error)
	ListGroups(ctx context.Context, page, limit int) (domain.Page[domain.AccountGroup], error)
	GetGroup(ctx context.Context, groupID uuid.UUID) (*app.GroupDetail, error)
	AddGroupMember(ctx context.Context, groupID uuid.UUID, req domain.AddMemberRequest) (*domain.GroupMember, error)
	RecordGroupTransaction(ctx context.Context, groupID uuid.UUID, req domain.GroupTransactionRequest) (*domain.Transaction, *domain.AccountGroup, error)
	RecomputeGroup(ctx context.Context, groupID uuid.UUID) (*domain.AccountGroup, error)
	GetGroupEquity(ctx context.Context, groupID uuid.UUID) (*domain.GroupEquity, error)

	AdminLogin(ctx context.Context, req domain.AdminLoginRequest, clientIP string) (*domain.AdminLoginResponse, error)
	DashboardMetrics(ctx context.Context) (*domain.DashboardMetrics, error)
}

// Handler holds the dependencies for the HTTP handlers.
type Handler struct {
	service Service
}

// NewHandler creates a new Handler.
func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// ProfileRegisterHandler creates the caller's profile and wallet, or returns
// them unchanged when they already exist.
func (h *Handler) ProfileRegisterHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	email, _ := GetUserEmail(r.Context())
	if email == "" {
		writeError(w, http.StatusBadRequest, "Token does not carry an email address")
		return
	}

	// The body is optional; an empty POST registers with defaults.
	var req domain.RegisterProfileRequest
	if r.ContentLength != 0 {
		if err := decodeAndValidate(w, r, &req, defaultBodyLimit); err != nil {
			writeServiceError(w, "profile_register", err)
			return
		}
	}

	overview, err := h.service.RegisterProfile(r.Context(), userID, email, req)
	if err != nil {
		writeServiceError(w, "profile_register", err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

// ProfileHandler returns the caller's profile and wallet.
func (h *Handler) ProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	overview, err := h.service.GetProfileOverview(r.Context(), userID)
	if err != nil {
		writeServiceError(w, "profile", err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

// WalletHandler returns the caller's wallet balance.
func (h *Handler) WalletHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	wallet, err := h.service.GetWallet(r.Context(), userID)
	if err != nil {
		writeServiceError(w, "wallet", err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

// SetTransactionPINHandler stores a new transaction PIN for the caller.
func (h *Handler) SetTransactionPINHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var req domain.SetTransactionPINRequest
	if err := decodeAndValidate(w, r, &req, defaultBodyLimit); err != nil {
		writeServiceError(w, "security_pin", err)
		return
	}
	if err := h.service.SetTransactionPIN(r.Context(), userID, req.PIN); err != nil {
		writeServiceError(w, "security_pin", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Transaction PIN updated"})
}

func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Could not identify user from token")
		return uuid.Nil, false
	}
	return userID, true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:  "Validation failed",
			Fields: map[string]string{name: "must be a valid UUID"},
		})
		return uuid.Nil, false
	}
	return id, true
}

// pagingParams reads page and limit; absent values stay zero and the service
// applies its defaults.
func pagingParams(r *http.Request) (int, int, error) {
	query := r.URL.Query()
	page, err := optionalInt(query.Get("page"), "page")
	if err != nil {
		return 0, 0, err
	}
	limit, err := optionalInt(query.Get("limit"), "limit")
	if err != nil {
		return 0, 0, err
	}
	return page, limit, nil
}

func optionalInt(raw, field string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return 0, domain.NewValidationError(field, "must be a positive integer")
	}
	return value, nil
}

func oneOfParam(raw, field string, allowed ...string) (string, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return "", nil
	}
	for _, candidate := range allowed {
		if raw == candidate {
			return raw, nil
		}
	}
	return "", domain.NewValidationError(field, "must be one of: "+strings.Join(allowed, " "))
}

// clientIP relies on middleware.RealIP having rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
