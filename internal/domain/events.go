package domain

import "strings"

// Notification kinds. Each kind maps to one email template and one routing key.
const (
	NotificationKYCSubmitted         = "kyc.submitted"
	NotificationKYCApproved          = "kyc.approved"
	NotificationKYCRejected          = "kyc.rejected"
	NotificationDepositRequested     = "transaction.deposit_requested"
	NotificationWithdrawalRequested  = "transaction.withdrawal_requested"
	NotificationTransactionCompleted = "transaction.completed"
	NotificationTransactionRejected  = "transaction.rejected"
	NotificationFirmTransactionAlert = "transaction.firm_alert"
)

const (
	NotificationRoutingKeyPrefix   = "notification."
	NotificationRoutingKeyWildcard = NotificationRoutingKeyPrefix + "#"
	NotificationEventSchemaVersion = 1

	notificationMaxRecipients         = 10
	notificationRecipientMaxByteCount = 254
)

// NotificationEvent is the payload stored in the outbox and published to the
// events exchange. Data carries template variables already formatted for display.
type NotificationEvent struct {
	Version    int               `json:"version"`
	Kind       string            `json:"kind"`
	Recipients []string          `json:"recipients"`
	Data       map[string]string `json:"data,omitempty"`
}

// NewNotificationEvent drops blank and duplicate recipients.
func NewNotificationEvent(kind string, data map[string]string, recipients ...string) NotificationEvent {
	seen := make(map[string]struct{}, len(recipients))
	cleaned := make([]string, 0, len(recipients))
	for _, r := range recipients {
		r = strings.TrimSpace(r)
		if r == "" || len(r) > notificationRecipientMaxByteCount {
			continue
		}
		key := strings.ToLower(r)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		cleaned = append(cleaned, r)
		if len(cleaned) == notificationMaxRecipients {
			break
		}
	}
	return NotificationEvent{
		Version:    NotificationEventSchemaVersion,
		Kind:       kind,
		Recipients: cleaned,
		Data:       data,
	}
}

// RoutingKey is the key the event is published under.
func (e NotificationEvent) RoutingKey() string {
	return NotificationRoutingKeyPrefix + e.Kind
}

// Deliverable reports whether there is anyone to send the event to.
func (e NotificationEvent) Deliverable() bool {
	return e.Kind != "" && len(e.Recipients) > 0
}
