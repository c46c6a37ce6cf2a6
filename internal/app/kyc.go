package app

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/BenyBen1/EstienCapital-sub000/internal/domain"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxKYCDocumentBytes = 10 << 20

var allowedKYCContentTypes = []string{"image/jpeg", "image/png", "image/webp", "application/pdf"}

var unsafeFileNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

type decodedDocument struct {
	fileName    string
	contentType string
	extension   string
	data        []byte
}

// decodeDocument accepts plain base64 or a data URL. The content type is sniffed
// from the bytes; a declared type is ignored when it disagrees.
func decodeDocument(doc *domain.KYCDocument) (*decodedDocument, string) {
	if doc == nil {
		return nil, "is required"
	}
	fileName := strings.TrimSpace(doc.FileName)
	if fileName == "" {
		return nil, "fileName is required"
	}

	raw := strings.TrimSpace(doc.Data)
	if strings.HasPrefix(raw, "data:") {
		comma := strings.IndexByte(raw, ',')
		if comma < 0 {
			return nil, "malformed data URL"
		}
		raw = raw[comma+1:]
	}
	if raw == "" {
		return nil, "data is required"
	}

	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(raw, "="))
	}
	if err != nil {
		return nil, "data is not valid base64"
	}
	if len(data) == 0 {
		return nil, "data is empty"
	}
	if len(data) > maxKYCDocumentBytes {
		return nil, "file exceeds 10MB"
	}

	detected := mimetype.Detect(data)
	if !mimetype.EqualsAny(detected.String(), allowedKYCContentTypes...) {
		return nil, fmt.Sprintf("unsupported file type %s", detected.String())
	}

	return &decodedDocument{
		fileName:    fileName,
		contentType: detected.String(),
		extension:   detected.Extension(),
		data:        data,
	}, ""
}

// kycObjectPath is kyc/<user>/<unix-millis>_<kind>_<sanitized name><ext>.
func kycObjectPath(userID uuid.UUID, stamp int64, kind string, doc *decodedDocument) string {
	base := strings.TrimSuffix(path.Base(doc.fileName), path.Ext(doc.fileName))
	base = strings.Trim(unsafeFileNameChars.ReplaceAllString(base, "_"), "_")
	if base == "" {
		base = "document"
	}
	if len(base) > 64 {
		base = base[:64]
	}
	return fmt.Sprintf("kyc/%s/%d_%s_%s%s", userID, stamp, kind, base, doc.extension)
}

// SubmitKYC validates and uploads both documents, then records a pending
// submission. Nothing is uploaded when either document is invalid, and uploaded
// blobs are removed again when a later step fails.
func (s *Service) SubmitKYC(ctx context.Context, userID uuid.UUID, req domain.KYCSubmitRequest) (*domain.KYCSubmission, error) {
	fields := map[string]string{}
	idDoc, msg := decodeDocument(req.IDDocument)
	if msg != "" {
		fields["idDocument"] = msg
	}
	passport, msg := decodeDocument(req.PassportPhoto)
	if msg != "" {
		fields["passportPhoto"] = msg
	}
	if len(fields) > 0 {
		return nil, &domain.ValidationError{Fields: fields}
	}
	if s.storage == nil {
		return nil, fmt.Errorf("%w: storage not configured", domain.ErrStorage)
	}

	profile, err := s.repo.FindProfileByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	status, err := domain.TransitionKYC("", domain.EventSubmit)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	stamp := now.UnixMilli()
	idPath := kycObjectPath(userID, stamp, "id", idDoc)
	passportPath := kycObjectPath(userID, stamp, "passport", passport)

	if err := s.storage.Upload(ctx, idPath, idDoc.contentType, idDoc.data); err != nil {
		return nil, fmt.Errorf("%w: upload id document: %v", domain.ErrStorage, err)
	}
	if err := s.storage.Upload(ctx, passportPath, passport.contentType, passport.data); err != nil {
		s.removeDocuments(idPath)
		return nil, fmt.Errorf("%w: upload passport photo: %v", domain.ErrStorage, err)
	}

	submission := &domain.KYCSubmission{
		ID:                uuid.New(),
		UserID:            userID,
		Status:            status,
		IDDocumentPath:    idPath,
		PassportPhotoPath: passportPath,
		PersonalDetails:   req.PersonalDetails,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	events := []domain.NotificationEvent{kycSubmittedEvent(s.settings.AdminNotificationEmail, profile, submission)}
	if err := s.repo.CreateKYCSubmission(ctx, submission, events); err != nil {
		s.removeDocuments(idPath, passportPath)
		return nil, fmt.Errorf("failed to record kyc submission: %w", err)
	}

	zap.L().Info("kyc submitted",
		zap.String("component", "kyc"),
		zap.String("user_id", userID.String()),
		zap.String("submission_id", submission.ID.String()),
	)
	return submission, nil
}

// removeDocuments is best effort; orphaned blobs are logged for manual cleanup.
func (s *Service) removeDocuments(paths ...string) {
	ctx, cancel := context.WithTimeout(context.Background(), storageCleanupTimeout)
	defer cancel()
	if err := s.storage.Remove(ctx, paths...); err != nil {
		zap.L().Warn("failed to remove orphaned kyc documents",
			zap.String("component", "kyc"),
			zap.Strings("paths", paths),
			zap.Error(err),
		)
	}
}

// GetKYCStatus returns the caller's most recent submission.
func (s *Service) GetKYCStatus(ctx context.Context, userID uuid.UUID) (*domain.KYCSubmission, error) {
	return s.repo.FindLatestKYCSubmissionByUserID(ctx, userID)
}

// GetKYCSubmission returns one submission for admin review.
func (s *Service) GetKYCSubmission(ctx context.Context, submissionID uuid.UUID) (*domain.KYCSubmission, error) {
	return s.repo.FindKYCSubmissionByID(ctx, submissionID)
}

// ListKYCSubmissions returns the admin review queue, newest first.
func (s *Service) ListKYCSubmissions(ctx context.Context, filter domain.KYCFilter) (domain.Page[domain.KYCSubmission], error) {
	filter.Page, filter.Limit = normalizePaging(filter.Page, filter.Limit)
	items, total, err := s.repo.ListKYCSubmissions(ctx, filter)
	if err != nil {
		return domain.Page[domain.KYCSubmission]{}, err
	}
	return domain.NewPage(items, total, filter.Page, filter.Limit), nil
}

// UpdateKYCStatus dispatches an admin decision to approve or reject.
func (s *Service) UpdateKYCStatus(ctx context.Context, submissionID, reviewerID uuid.UUID, req domain.KYCStatusUpdateRequest) (*domain.KYCSubmission, error) {
	switch req.Status {
	case domain.StatusApproved:
		return s.ApproveKYC(ctx, submissionID, reviewerID, req.Notes)
	case domain.StatusRejected:
		return s.RejectKYC(ctx, submissionID, reviewerID, req.RejectionReason, req.Notes)
	default:
		return nil, domain.NewValidationError("status", "must be approved or rejected")
	}
}

// ApproveKYC moves a pending submission to approved and mirrors it on the profile.
func (s *Service) ApproveKYC(ctx context.Context, submissionID, reviewerID uuid.UUID, notes string) (*domain.KYCSubmission, error) {
	return s.reviewKYC(ctx, submissionID, reviewerID, domain.EventApprove, "", notes)
}

// RejectKYC requires a reason; nothing is read or written without one.
func (s *Service) RejectKYC(ctx context.Context, submissionID, reviewerID uuid.UUID, reason, notes string) (*domain.KYCSubmission, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.NewValidationError("rejection_reason", "is required when rejecting")
	}
	return s.reviewKYC(ctx, submissionID, reviewerID, domain.EventReject, reason, notes)
}

func (s *Service) reviewKYC(ctx context.Context, submissionID, reviewerID uuid.UUID, event domain.Event, reason, notes string) (*domain.KYCSubmission, error) {
	current, err := s.repo.FindKYCSubmissionByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	next, err := domain.TransitionKYC(current.Status, event)
	if err != nil {
		return nil, err
	}
	profile, err := s.repo.FindProfileByID(ctx, current.UserID)
	if err != nil {
		return nil, err
	}

	kind := domain.NotificationKYCApproved
	if next == domain.StatusRejected {
		kind = domain.NotificationKYCRejected
	}
	review := domain.KYCReview{
		SubmissionID:    submissionID,
		FromStatus:      current.Status,
		ToStatus:        next,
		RejectionReason: optionalString(reason),
		Notes:           optionalString(notes),
		ReviewerID:      &reviewerID,
		Events:          []domain.NotificationEvent{kycDecisionEvent(kind, profile, reason)},
	}
	updated, err := s.repo.ReviewKYCSubmission(ctx, review)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			zap.L().Info("kyc review lost race",
				zap.String("component", "kyc"),
				zap.String("submission_id", submissionID.String()),
			)
		}
		return nil, err
	}

	zap.L().Info("kyc reviewed",
		zap.String("component", "kyc"),
		zap.String("submission_id", submissionID.String()),
		zap.String("outcome", next),
	)
	return updated, nil
}
