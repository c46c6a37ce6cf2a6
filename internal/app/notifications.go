package app

import (
	"time"

	"github.com/BenyBen1/EstienCapital-sub000/internal/domain"
)

const notificationDateLayout = "02 Jan 2006 15:04 MST"

func kycSubmittedEvent(adminEmail string, profile *domain.Profile, submission *domain.KYCSubmission) domain.NotificationEvent {
	return domain.NewNotificationEvent(domain.NotificationKYCSubmitted, map[string]string{
		"name":          submission.PersonalDetails.FullName,
		"user_email":    profile.Email,
		"submission_id": submission.ID.String(),
		"nationality":   submission.PersonalDetails.Nationality,
		"date":          submission.CreatedAt.Format(notificationDateLayout),
	}, adminEmail)
}

func kycDecisionEvent(kind string, profile *domain.Profile, reason string) domain.NotificationEvent {
	data := map[string]string{
		"name": profile.DisplayName(),
	}
	if reason != "" {
		data["reason"] = reason
	}
	return domain.NewNotificationEvent(kind, data, profile.Email)
}

func transactionData(profile *domain.Profile, txn *domain.Transaction, at time.Time) map[string]string {
	return map[string]string{
		"name":           profile.DisplayName(),
		"user_email":     profile.Email,
		"transaction_id": txn.ID.String(),
		"type":           txn.Type,
		"amount":         domain.FormatAmount(txn.Amount, txn.Currency),
		"reference":      txn.Reference,
		"payment_method": txn.PaymentMethod,
		"date":           at.Format(notificationDateLayout),
	}
}

// transactionRequestedEvents notifies the user and the firm's operations inbox.
func transactionRequestedEvents(firmEmail string, profile *domain.Profile, txn *domain.Transaction, at time.Time) []domain.NotificationEvent {
	kind := domain.NotificationDepositRequested
	if txn.Type == domain.TransactionTypeWithdrawal {
		kind = domain.NotificationWithdrawalRequested
	}
	return []domain.NotificationEvent{
		domain.NewNotificationEvent(kind, transactionData(profile, txn, at), profile.Email),
		domain.NewNotificationEvent(domain.NotificationFirmTransactionAlert, transactionData(profile, txn, at), firmEmail),
	}
}

func transactionDecisionEvent(kind string, profile *domain.Profile, txn *domain.Transaction, reason string, at time.Time) domain.NotificationEvent {
	data := transactionData(profile, txn, at)
	if reason != "" {
		data["reason"] = reason
	}
	return domain.NewNotificationEvent(kind, data, profile.Email)
}
