package api

import (
	"net/http"

	"github.com/BenyBen1/EstienCapital-sub000/internal/domain"
)

// AdminLoginHandler exchanges admin credentials for a session token.
func (h *Handler) AdminLoginHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.AdminLoginRequest
	if err := decodeAndValidate(w, r, &req, defaultBodyLimit); err != nil {
		writeServiceError(w, "admin_login", err)
		return
	}

	resp, err := h.service.AdminLogin(r.Context(), req, clientIP(r))
	if err != nil {
		writeServiceError(w, "admin_login", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// AdminTransactionRequestsHandler lists transactions across all users.
func (h *Handler) AdminTransactionRequestsHandler(w http.ResponseWriter, r *http.Request) {
	filter, err := transactionFilter(r)
	if err != nil {
		writeServiceError(w, "admin_transaction_requests", err)
		return
	}
	result, err := h.service.ListTransactions(r.Context(), filter)
	if err != nil {
		writeServiceError(w, "admin_transaction_requests", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// AdminDashboardMetricsHandler returns the aggregate dashboard counts.
func (h *Handler) AdminDashboardMetricsHandler(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.service.DashboardMetrics(r.Context())
	if err != nil {
		writeServiceError(w, "admin_dashboard_metrics", err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

// CreateGroupHandler opens a new group owned by the calling admin.
func (h *Handler) CreateGroupHandler(w http.ResponseWriter, r *http.Request) {
	adminID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var req domain.CreateGroupRequest
	if err := decodeAndValidate(w, r, &req, defaultBodyLimit); err != nil {
		writeServiceError(w, "group_create", err)
		return
	}
	group, err := h.service.CreateGroup(r.Context(), adminID, req)
	if err != nil {
		writeServiceError(w, "group_create", err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

func (h *Handler) ListGroupsHandler(w http.ResponseWriter, r *http.Request) {
	page, limit, err := pagingParams(r)
	if err != nil {
		writeServiceError(w, "group_list", err)
		return
	}
	result, err := h.service.ListGroups(r.Context(), page, limit)
	if err != nil {
		writeServiceError(w, "group_list", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) GetGroupHandler(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	detail, err := h.service.GetGroup(r.Context(), groupID)
	if err != nil {
		writeServiceError(w, "group_get", err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// AddGroupMemberHandler adds an existing user to a group.
func (h *Handler) AddGroupMemberHandler(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req domain.AddMemberRequest
	if err := decodeAndValidate(w, r, &req, defaultBodyLimit); err != nil {
		writeServiceError(w, "group_add_member", err)
		return
	}
	member, err := h.service.AddGroupMember(r.Context(), groupID, req)
	if err != nil {
		writeServiceError(w, "group_add_member", err)
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

// GroupTransactionHandler records a contribution or payout on the group ledger.
func (h *Handler) GroupTransactionHandler(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req domain.GroupTransactionRequest
	if err := decodeAndValidate(w, r, &req, defaultBodyLimit); err != nil {
		writeServiceError(w, "group_transaction", err)
		return
	}
	txn, group, err := h.service.RecordGroupTransaction(r.Context(), groupID, req)
	if err != nil {
		writeServiceError(w, "group_transaction", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"transaction": txn,
		"group":       group,
	})
}

func (h *Handler) RecomputeGroupHandler(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	group, err := h.service.RecomputeGroup(r.Context(), groupID)
	if err != nil {
		writeServiceError(w, "group_recompute", err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

// GroupEquityHandler returns each member's share of completed contributions.
func (h *Handler) GroupEquityHandler(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	equity, err := h.service.GetGroupEquity(r.Context(), groupID)
	if err != nil {
		writeServiceError(w, "group_equity", err)
		return
	}
	writeJSON(w, http.StatusOK, equity)
}
