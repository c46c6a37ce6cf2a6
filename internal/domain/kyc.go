package domain

import (
	"time"

	"github.com/google/uuid"
)

// KYCSubmission maps to the `kyc_submissions` table.
type KYCSubmission struct {
	ID                uuid.UUID       `json:"id"`
	UserID            uuid.UUID       `json:"user_id"`
	Status            string          `json:"status"`
	IDDocumentPath    string          `json:"id_document_path"`
	PassportPhotoPath string          `json:"passport_photo_path"`
	PersonalDetails   PersonalDetails `json:"personal_details"`
	RejectionReason   *string         `json:"rejection_reason,omitempty"`
	Notes             *string         `json:"notes,omitempty"`
	ReviewedBy        *uuid.UUID      `json:"reviewed_by,omitempty"`
	ReviewedAt        *time.Time      `json:"reviewed_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// PersonalDetails is stored as jsonb alongside the submission.
type PersonalDetails struct {
	FullName    string `json:"full_name" validate:"required,max=200"`
	DateOfBirth string `json:"date_of_birth" validate:"required,datetime=2006-01-02"`
	Nationality string `json:"nationality" validate:"required,max=100"`
	IDNumber    string `json:"id_number" validate:"required,max=50"`
	Address     string `json:"address" validate:"omitempty,max=500"`
	Occupation  string `json:"occupation" validate:"omitempty,max=100"`
}

// KYCDocument is an uploaded file carried inline as base64.
type KYCDocument struct {
	FileName    string `json:"fileName" validate:"required,max=255"`
	ContentType string `json:"contentType" validate:"omitempty,max=100"`
	Data        string `json:"data" validate:"required"`
}

// KYCSubmitRequest is the DTO for POST /api/kyc/submit.
type KYCSubmitRequest struct {
	IDDocument      *KYCDocument    `json:"idDocument" validate:"required"`
	PassportPhoto   *KYCDocument    `json:"passportPhoto" validate:"required"`
	PersonalDetails PersonalDetails `json:"personalDetails"`
}

// KYCStatusUpdateRequest is the DTO for PUT /api/kyc/update-status/:id.
type KYCStatusUpdateRequest struct {
	Status          string `json:"status" validate:"required,oneof=approved rejected"`
	RejectionReason string `json:"rejection_reason" validate:"required_if=Status rejected,max=500"`
	Notes           string `json:"notes" validate:"omitempty,max=1000"`
}

// KYCReview is what the store applies atomically on an admin decision.
type KYCReview struct {
	SubmissionID    uuid.UUID
	FromStatus      string
	ToStatus        string
	RejectionReason *string
	Notes           *string
	ReviewerID      *uuid.UUID
	Events          []NotificationEvent
}

// KYCFilter narrows the admin KYC queue.
type KYCFilter struct {
	Status string
	Page   int
	Limit  int
}

func (f KYCFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}
