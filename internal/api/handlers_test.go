package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BenyBen1/EstienCapital-sub000/internal/app"
	"github.com/BenyBen1/EstienCapital-sub000/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	testSecret   = "test-jwt-secret"
	testIssuer   = "https://project.supabase.co/auth/v1"
	testAudience = "authenticated"
)

var (
	testUserID  = uuid.MustParse("7d0f7c1e-4a38-4c3b-9a56-1f4c1b2f9a01")
	testAdminID = uuid.MustParse("0c9a6d58-2b7e-4b07-8f0e-6d5e3a1b2c03")
)

type serviceStub struct {
	Service

	admins map[uuid.UUID]bool

	createDeposit    func(ctx context.Context, userID uuid.UUID, req domain.DepositRequest) (*domain.Transaction, error)
	createWithdrawal func(ctx context.Context, userID uuid.UUID, req domain.WithdrawalRequest) (*domain.Transaction, error)
	approve          func(ctx context.Context, transactionID, reviewerID uuid.UUID) (*domain.Transaction, error)
	listTransactions func(ctx context.Context, filter domain.TransactionFilter) (domain.Page[domain.Transaction], error)
	adminLogin       func(ctx context.Context, req domain.AdminLoginRequest, clientIP string) (*domain.AdminLoginResponse, error)

	submitKYCCalls int
	rejectCalls    int
}

func (s *serviceStub) IsAdmin(_ context.Context, userID uuid.UUID) (bool, error) {
	return s.admins[userID], nil
}

func (s *serviceStub) CreateDeposit(ctx context.Context, userID uuid.UUID, req domain.DepositRequest) (*domain.Transaction, error) {
	return s.createDeposit(ctx, userID, req)
}

func (s *serviceStub) CreateWithdrawal(ctx context.Context, userID uuid.UUID, req domain.WithdrawalRequest) (*domain.Transaction, error) {
	return s.createWithdrawal(ctx, userID, req)
}

func (s *serviceStub) ApproveTransaction(ctx context.Context, transactionID, reviewerID uuid.UUID) (*domain.Transaction, error) {
	return s.approve(ctx, transactionID, reviewerID)
}

func (s *serviceStub) RejectTransaction(context.Context, uuid.UUID, uuid.UUID, string) (*domain.Transaction, error) {
	s.rejectCalls++
	return &domain.Transaction{Status: domain.StatusRejected}, nil
}

func (s *serviceStub) ListTransactions(ctx context.Context, filter domain.TransactionFilter) (domain.Page[domain.Transaction], error) {
	return s.listTransactions(ctx, filter)
}

func (s *serviceStub) SubmitKYC(context.Context, uuid.UUID, domain.KYCSubmitRequest) (*domain.KYCSubmission, error) {
	s.submitKYCCalls++
	return &domain.KYCSubmission{Status: domain.StatusPending}, nil
}

func (s *serviceStub) AdminLogin(ctx context.Context, req domain.AdminLoginRequest, clientIP string) (*domain.AdminLoginResponse, error) {
	return s.adminLogin(ctx, req, clientIP)
}

func newTestServer(stub *serviceStub) http.Handler {
	if stub.admins == nil {
		stub.admins = map[uuid.UUID]bool{testAdminID: true}
	}
	return NewRouter(NewHandler(stub), AuthMiddlewareConfig{
		JWTSecret:        testSecret,
		ExpectedIssuer:   testIssuer,
		ExpectedAudience: testAudience,
	}, []string{"*"})
}

func signToken(t *testing.T, userID uuid.UUID, mutate func(jwt.MapClaims)) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":   userID.String(),
		"email": "user@estien.test",
		"aud":   testAudience,
		"iss":   testIssuer,
		"role":  "authenticated",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	if mutate != nil {
		mutate(claims)
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func doRequest(t *testing.T, srv http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestAuthMiddlewareRejectsBadTokens(t *testing.T) {
	srv := newTestServer(&serviceStub{})

	tests := []struct {
		name  string
		token string
	}{
		{name: "missing token", token: ""},
		{name: "garbage token", token: "not-a-jwt"},
		{name: "expired", token: signToken(t, testUserID, func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Hour).Unix() })},
		{name: "wrong issuer", token: signToken(t, testUserID, func(c jwt.MapClaims) { c["iss"] = "https://evil.example/auth/v1" })},
		{name: "wrong audience", token: signToken(t, testUserID, func(c jwt.MapClaims) { c["aud"] = "anon" })},
		{name: "subject not a uuid", token: signToken(t, testUserID, func(c jwt.MapClaims) { c["sub"] = "user_123" })},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, srv, http.MethodPost, "/api/transactions/deposit", tc.token, `{"amount":100,"payment_method":"mpesa"}`)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestAuthMiddlewareRejectsForeignSigningKey(t *testing.T) {
	srv := newTestServer(&serviceStub{})
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": testUserID.String(),
		"aud": testAudience,
		"iss": testIssuer,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("some-other-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	rec := doRequest(t, srv, http.MethodGet, "/api/transactions", token, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAdminRoutesRequireAdminProfile(t *testing.T) {
	srv := newTestServer(&serviceStub{
		approve: func(context.Context, uuid.UUID, uuid.UUID) (*domain.Transaction, error) {
			return &domain.Transaction{Status: domain.StatusCompleted}, nil
		},
	})
	path := "/api/transactions/" + uuid.NewString() + "/approve"

	rec := doRequest(t, srv, http.MethodPost, path, signToken(t, testUserID, nil), "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, path, signToken(t, testAdminID, nil), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestDepositHandler(t *testing.T) {
	var gotUser uuid.UUID
	stub := &serviceStub{
		createDeposit: func(_ context.Context, userID uuid.UUID, req domain.DepositRequest) (*domain.Transaction, error) {
			gotUser = userID
			return &domain.Transaction{
				ID:     uuid.New(),
				UserID: userID,
				Type:   domain.TransactionTypeDeposit,
				Amount: req.Amount,
				Status: domain.StatusPending,
			}, nil
		},
	}
	srv := newTestServer(stub)
	token := signToken(t, testUserID, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/transactions/deposit", token, `{"amount":100000,"payment_method":"mpesa"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Transaction domain.Transaction `json:"transaction"`
		Message     string             `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Transaction.Amount != 100000 || resp.Transaction.Status != domain.StatusPending || resp.Message == "" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if gotUser != testUserID {
		t.Fatalf("expected deposit for token subject, got %s", gotUser)
	}
}

func TestDepositHandlerValidation(t *testing.T) {
	called := false
	srv := newTestServer(&serviceStub{
		createDeposit: func(context.Context, uuid.UUID, domain.DepositRequest) (*domain.Transaction, error) {
			called = true
			return nil, nil
		},
	})
	token := signToken(t, testUserID, nil)

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{name: "zero amount", body: `{"amount":0,"payment_method":"mpesa"}`, field: "amount"},
		{name: "negative amount", body: `{"amount":-5,"payment_method":"mpesa"}`, field: "amount"},
		{name: "missing payment method", body: `{"amount":100}`, field: "payment_method"},
		{name: "bad currency", body: `{"amount":100,"payment_method":"mpesa","currency":"KE1"}`, field: "currency"},
		{name: "malformed json", body: `{"amount":`, field: "body"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, srv, http.MethodPost, "/api/transactions/deposit", token, tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			resp := decodeError(t, rec)
			if _, ok := resp.Fields[tc.field]; !ok {
				t.Fatalf("expected field error on %q, got %+v", tc.field, resp.Fields)
			}
		})
	}
	if called {
		t.Fatal("service must not be called for invalid input")
	}
}

func TestWithdrawHandlerErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "insufficient balance", err: fmt.Errorf("wallet: %w", domain.ErrInsufficientBalance), wantStatus: http.StatusBadRequest},
		{name: "pin not set", err: domain.ErrTransactionPINNotSet, wantStatus: http.StatusPreconditionFailed},
		{name: "pin invalid", err: domain.ErrInvalidTransactionPIN, wantStatus: http.StatusUnauthorized},
		{name: "pin locked", err: domain.ErrTransactionPINLocked, wantStatus: http.StatusLocked},
		{name: "profile missing", err: fmt.Errorf("profile: %w", domain.ErrNotFound), wantStatus: http.StatusNotFound},
		{name: "unexpected", err: fmt.Errorf("connection reset"), wantStatus: http.StatusInternalServerError},
	}

	body := `{"amount":60000,"payment_method":"bank","account_details":{"account":"123"},"transaction_pin":"1234"}`
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(&serviceStub{
				createWithdrawal: func(context.Context, uuid.UUID, domain.WithdrawalRequest) (*domain.Transaction, error) {
					return nil, tc.err
				},
			})
			rec := doRequest(t, srv, http.MethodPost, "/api/transactions/withdraw", signToken(t, testUserID, nil), body)
			if rec.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tc.wantStatus, rec.Code, rec.Body.String())
			}
			if tc.wantStatus == http.StatusInternalServerError && strings.Contains(rec.Body.String(), "connection reset") {
				t.Fatal("internal error detail leaked to client")
			}
		})
	}
}

func TestWithdrawHandlerRateLimited(t *testing.T) {
	srv := newTestServer(&serviceStub{
		createWithdrawal: func(context.Context, uuid.UUID, domain.WithdrawalRequest) (*domain.Transaction, error) {
			return nil, &app.RateLimitError{Scope: "transactions", RetryAfterSeconds: 42}
		},
	})
	body := `{"amount":100,"payment_method":"bank","account_details":{"account":"123"},"transaction_pin":"1234"}`
	rec := doRequest(t, srv, http.MethodPost, "/api/transactions/withdraw", signToken(t, testUserID, nil), body)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "42" {
		t.Fatalf("expected Retry-After 42, got %q", got)
	}
}

func TestWithdrawHandlerRequiresAccountDetails(t *testing.T) {
	srv := newTestServer(&serviceStub{})
	body := `{"amount":100,"payment_method":"bank","account_details":{},"transaction_pin":"1234"}`
	rec := doRequest(t, srv, http.MethodPost, "/api/transactions/withdraw", signToken(t, testUserID, nil), body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if _, ok := decodeError(t, rec).Fields["account_details"]; !ok {
		t.Fatalf("expected account_details field error, got %s", rec.Body.String())
	}
}

func TestApproveHandlerErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "not found", err: fmt.Errorf("transaction: %w", domain.ErrNotFound), wantStatus: http.StatusNotFound},
		{name: "already decided", err: &domain.InvalidTransitionError{Entity: "transaction", From: domain.StatusCompleted, Event: domain.EventApprove}, wantStatus: http.StatusConflict},
		{name: "lost race", err: fmt.Errorf("transaction changed: %w", domain.ErrConflict), wantStatus: http.StatusConflict},
		{name: "uncovered withdrawal", err: domain.ErrInsufficientBalance, wantStatus: http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(&serviceStub{
				approve: func(context.Context, uuid.UUID, uuid.UUID) (*domain.Transaction, error) {
					return nil, tc.err
				},
			})
			path := "/api/transactions/" + uuid.NewString() + "/approve"
			rec := doRequest(t, srv, http.MethodPost, path, signToken(t, testAdminID, nil), "")
			if rec.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tc.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestApproveHandlerRejectsMalformedID(t *testing.T) {
	srv := newTestServer(&serviceStub{})
	rec := doRequest(t, srv, http.MethodPost, "/api/transactions/not-a-uuid/approve", signToken(t, testAdminID, nil), "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRejectHandlerRequiresReason(t *testing.T) {
	stub := &serviceStub{}
	srv := newTestServer(stub)
	path := "/api/transactions/" + uuid.NewString() + "/reject"

	rec := doRequest(t, srv, http.MethodPost, path, signToken(t, testAdminID, nil), `{"reason":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if _, ok := decodeError(t, rec).Fields["reason"]; !ok {
		t.Fatalf("expected reason field error, got %s", rec.Body.String())
	}
	if stub.rejectCalls != 0 {
		t.Fatal("reject without reason must not reach the service")
	}

	rec = doRequest(t, srv, http.MethodPost, path, signToken(t, testAdminID, nil), `{"reason":"duplicate request"}`)
	if rec.Code != http.StatusOK || stub.rejectCalls != 1 {
		t.Fatalf("expected 200 and one call, got %d and %d", rec.Code, stub.rejectCalls)
	}
}

func TestKYCSubmitHandlerMissingPassportPhoto(t *testing.T) {
	stub := &serviceStub{}
	srv := newTestServer(stub)
	body := `{
		"idDocument": {"fileName": "id.png", "contentType": "image/png", "data": "iVBORw0KGgo="},
		"personalDetails": {"full_name": "Jane Wanjiku", "date_of_birth": "1990-04-12", "nationality": "Kenyan", "id_number": "12345678"}
	}`
	rec := doRequest(t, srv, http.MethodPost, "/api/kyc/submit", signToken(t, testUserID, nil), body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if _, ok := decodeError(t, rec).Fields["passportPhoto"]; !ok {
		t.Fatalf("expected passportPhoto field error, got %s", rec.Body.String())
	}
	if stub.submitKYCCalls != 0 {
		t.Fatal("invalid submission must not reach the service")
	}
}

func TestKYCSubmitHandlerNestedFieldNames(t *testing.T) {
	srv := newTestServer(&serviceStub{})
	body := `{
		"idDocument": {"fileName": "id.png", "data": "iVBORw0KGgo="},
		"passportPhoto": {"fileName": "me.jpg", "data": "/9j/4AAQ"},
		"personalDetails": {"full_name": "Jane Wanjiku", "date_of_birth": "12/04/1990", "nationality": "Kenyan"}
	}`
	rec := doRequest(t, srv, http.MethodPost, "/api/kyc/submit", signToken(t, testUserID, nil), body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	fields := decodeError(t, rec).Fields
	for _, key := range []string{"personalDetails.date_of_birth", "personalDetails.id_number"} {
		if _, ok := fields[key]; !ok {
			t.Fatalf("expected field error on %q, got %+v", key, fields)
		}
	}
}

func TestAdminLoginHandler(t *testing.T) {
	var gotIP string
	srv := newTestServer(&serviceStub{
		adminLogin: func(_ context.Context, req domain.AdminLoginRequest, ip string) (*domain.AdminLoginResponse, error) {
			gotIP = ip
			if req.Password != "correct-horse" {
				return nil, fmt.Errorf("invalid email or password: %w", domain.ErrUnauthorized)
			}
			return &domain.AdminLoginResponse{
				User:  domain.AdminUser{ID: testAdminID, Email: req.Email, Role: domain.RoleAdmin},
				Token: "access-token",
			}, nil
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/admin/login", strings.NewReader(`{"email":"ops@estien.test","password":"correct-horse"}`))
	req.Header.Set("X-Real-IP", "203.0.113.9")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp domain.AdminLoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Token != "access-token" || resp.User.Role != domain.RoleAdmin {
		t.Fatalf("unexpected response %+v", resp)
	}
	if gotIP != "203.0.113.9" {
		t.Fatalf("expected client IP from X-Real-IP, got %q", gotIP)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/admin/login", "", `{"email":"ops@estien.test","password":"wrong-pass"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	rec = doRequest(t, srv, http.MethodPost, "/api/admin/login", "", `{"email":"not-an-email","password":"whatever"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid email, got %d", rec.Code)
	}
}

func TestTransactionListingFilters(t *testing.T) {
	var got domain.TransactionFilter
	srv := newTestServer(&serviceStub{
		listTransactions: func(_ context.Context, filter domain.TransactionFilter) (domain.Page[domain.Transaction], error) {
			got = filter
			return domain.NewPage[domain.Transaction](nil, 41, filter.Page, filter.Limit), nil
		},
	})

	rec := doRequest(t, srv, http.MethodGet, "/api/transactions?page=2&limit=20&type=deposit", signToken(t, testUserID, nil), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got.UserID == nil || *got.UserID != testUserID {
		t.Fatalf("user listing must be scoped to the caller, got %+v", got.UserID)
	}
	if got.Page != 2 || got.Limit != 20 || got.Type != domain.TransactionTypeDeposit {
		t.Fatalf("unexpected filter %+v", got)
	}
	var page domain.Page[domain.Transaction]
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Total != 41 || page.TotalPages != 3 {
		t.Fatalf("unexpected page %+v", page)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/admin/transaction-requests?status=pending", signToken(t, testAdminID, nil), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got.UserID != nil || got.Status != domain.StatusPending {
		t.Fatalf("admin listing must not be scoped to a user, got %+v", got)
	}

	for _, query := range []string{"page=0", "limit=abc", "status=processing", "type=transfer"} {
		rec = doRequest(t, srv, http.MethodGet, "/api/admin/transaction-requests?"+query, signToken(t, testAdminID, nil), "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", query, rec.Code)
		}
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(&serviceStub{})
	rec := doRequest(t, srv, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
