package api

import (
	"net/http"

	"github.com/BenyBen1/EstienCapital-sub000/internal/domain"
)

// DepositHandler records a client-asserted deposit awaiting admin confirmation.
func (h *Handler) DepositHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req domain.DepositRequest
	if err := decodeAndValidate(w, r, &req, defaultBodyLimit); err != nil {
		writeServiceError(w, "deposit", err)
		return
	}

	txn, err := h.service.CreateDeposit(r.Context(), userID, req)
	if err != nil {
		writeServiceError(w, "deposit", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"transaction": txn,
		"message":     "Deposit request submitted. It will be credited once confirmed.",
	})
}

// WithdrawHandler records a PIN-authorised withdrawal request.
func (h *Handler) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req domain.WithdrawalRequest
	if err := decodeAndValidate(w, r, &req, defaultBodyLimit); err != nil {
		writeServiceError(w, "withdraw", err)
		return
	}

	txn, err := h.service.CreateWithdrawal(r.Context(), userID, req)
	if err != nil {
		writeServiceError(w, "withdraw", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"transaction": txn,
		"message":     "Withdrawal request submitted for review.",
	})
}

// ListTransactionsHandler returns the caller's own transactions.
func (h *Handler) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	filter, err := transactionFilter(r)
	if err != nil {
		writeServiceError(w, "transactions_list", err)
		return
	}
	filter.UserID = &userID

	result, err := h.service.ListTransactions(r.Context(), filter)
	if err != nil {
		writeServiceError(w, "transactions_list", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetTransactionHandler returns one transaction to its owner or to an admin.
func (h *Handler) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	transactionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	isAdmin, err := h.service.IsAdmin(r.Context(), userID)
	if err != nil {
		writeServiceError(w, "transaction_get", err)
		return
	}

	txn, err := h.service.GetTransaction(r.Context(), transactionID, userID, isAdmin)
	if err != nil {
		writeServiceError(w, "transaction_get", err)
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

// ApproveTransactionHandler completes a pending transaction.
func (h *Handler) ApproveTransactionHandler(w http.ResponseWriter, r *http.Request) {
	reviewerID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	transactionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	txn, err := h.service.ApproveTransaction(r.Context(), transactionID, reviewerID)
	if err != nil {
		writeServiceError(w, "transaction_approve", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transaction": txn,
		"message":     "Transaction approved",
	})
}

// RejectTransactionHandler rejects a pending transaction with a reason.
func (h *Handler) RejectTransactionHandler(w http.ResponseWriter, r *http.Request) {
	reviewerID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	transactionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req domain.RejectRequest
	if err := decodeAndValidate(w, r, &req, defaultBodyLimit); err != nil {
		writeServiceError(w, "transaction_reject", err)
		return
	}

	txn, err := h.service.RejectTransaction(r.Context(), transactionID, reviewerID, req.Reason)
	if err != nil {
		writeServiceError(w, "transaction_reject", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transaction": txn,
		"message":     "Transaction rejected",
	})
}

func transactionFilter(r *http.Request) (domain.TransactionFilter, error) {
	page, limit, err := pagingParams(r)
	if err != nil {
		return domain.TransactionFilter{}, err
	}
	query := r.URL.Query()
	txnType, err := oneOfParam(query.Get("type"), "type",
		domain.TransactionTypeDeposit, domain.TransactionTypeWithdrawal)
	if err != nil {
		return domain.TransactionFilter{}, err
	}
	status, err := oneOfParam(query.Get("status"), "status",
		domain.StatusPending, domain.StatusCompleted, domain.StatusRejected, domain.StatusFailed)
	if err != nil {
		return domain.TransactionFilter{}, err
	}
	return domain.TransactionFilter{Type: txnType, Status: status, Page: page, Limit: limit}, nil
}
