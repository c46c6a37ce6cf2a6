package api

import (
	"net/http"

	"github.com/BenyBen1/EstienCapital-sub000/internal/domain"
)

// KYCSubmitHandler accepts the caller's identity documents and personal details.
func (h *Handler) KYCSubmitHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req domain.KYCSubmitRequest
	if err := decodeAndValidate(w, r, &req, kycBodyLimit); err != nil {
		writeServiceError(w, "kyc_submit", err)
		return
	}

	submission, err := h.service.SubmitKYC(r.Context(), userID, req)
	if err != nil {
		writeServiceError(w, "kyc_submit", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"submission": submission,
		"message":    "KYC submitted successfully. Your documents are under review.",
	})
}

// KYCStatusHandler returns the caller's latest submission.
func (h *Handler) KYCStatusHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	submission, err := h.service.GetKYCStatus(r.Context(), userID)
	if err != nil {
		writeServiceError(w, "kyc_status", err)
		return
	}
	writeJSON(w, http.StatusOK, submission)
}

// KYCUpdateStatusHandler records an admin approve or reject decision.
func (h *Handler) KYCUpdateStatusHandler(w http.ResponseWriter, r *http.Request) {
	reviewerID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	submissionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req domain.KYCStatusUpdateRequest
	if err := decodeAndValidate(w, r, &req, defaultBodyLimit); err != nil {
		writeServiceError(w, "kyc_update_status", err)
		return
	}

	submission, err := h.service.UpdateKYCStatus(r.Context(), submissionID, reviewerID, req)
	if err != nil {
		writeServiceError(w, "kyc_update_status", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"submission": submission,
		"message":    "KYC status updated to " + submission.Status,
	})
}

// AdminKYCSubmissionsHandler lists the review queue.
func (h *Handler) AdminKYCSubmissionsHandler(w http.ResponseWriter, r *http.Request) {
	page, limit, err := pagingParams(r)
	if err != nil {
		writeServiceError(w, "admin_kyc_list", err)
		return
	}
	status, err := oneOfParam(r.URL.Query().Get("status"), "status",
		domain.StatusPending, domain.StatusApproved, domain.StatusRejected)
	if err != nil {
		writeServiceError(w, "admin_kyc_list", err)
		return
	}

	result, err := h.service.ListKYCSubmissions(r.Context(), domain.KYCFilter{Status: status, Page: page, Limit: limit})
	if err != nil {
		writeServiceError(w, "admin_kyc_list", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// AdminKYCSubmissionHandler returns one submission.
func (h *Handler) AdminKYCSubmissionHandler(w http.ResponseWriter, r *http.Request) {
	submissionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	submission, err := h.service.GetKYCSubmission(r.Context(), submissionID)
	if err != nil {
		writeServiceError(w, "admin_kyc_get", err)
		return
	}
	writeJSON(w, http.StatusOK, submission)
}
