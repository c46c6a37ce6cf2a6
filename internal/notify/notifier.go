/**
 * @description
 * Notifier turns notification events from the broker (or the outbox directly)
 * into emails.
 *
 * Key features:
 * - Malformed or unknown events are acknowledged and dropped; redelivering them
 *   can never succeed.
 * - Delivery failures are reported so the consumer schedules a delayed retry.
 */

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BenyBen1/EstienCapital-sub000/internal/domain"
	"go.uber.org/zap"
)

const defaultSendTimeout = 20 * time.Second

// ErrMalformedEvent marks payloads that can never be delivered.
var ErrMalformedEvent = errors.New("malformed notification event")

// Notifier renders and sends notification emails.
type Notifier struct {
	renderer    *Renderer
	mailer      Mailer
	sendTimeout time.Duration
	logger      *zap.Logger
}

func NewNotifier(renderer *Renderer, mailer Mailer) *Notifier {
	return &Notifier{
		renderer:    renderer,
		mailer:      mailer,
		sendTimeout: defaultSendTimeout,
		logger:      zap.L().With(zap.String("component", "notifier")),
	}
}

// Deliver decodes payload and emails its recipients.
func (n *Notifier) Deliver(ctx context.Context, payload []byte) error {
	var event domain.NotificationEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if event.Version != domain.NotificationEventSchemaVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrMalformedEvent, event.Version)
	}
	if !event.Deliverable() {
		return fmt.Errorf("%w: no recipients", ErrMalformedEvent)
	}

	msg, err := n.renderer.Render(event)
	if err != nil {
		if errors.Is(err, ErrUnknownKind) {
			return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, n.sendTimeout)
	defer cancel()
	if err := n.mailer.Send(ctx, event.Recipients, msg); err != nil {
		return err
	}

	n.logger.Info("notification sent",
		zap.String("kind", event.Kind),
		zap.Int("recipients", len(event.Recipients)),
		zap.String("outcome", "sent"),
	)
	return nil
}

// HandleMessage is the broker callback. It returns false only when the message
// should be retried later.
func (n *Notifier) HandleMessage(body []byte) bool {
	err := n.Deliver(context.Background(), body)
	if err == nil {
		return true
	}
	if errors.Is(err, ErrMalformedEvent) {
		n.logger.Warn("dropping undeliverable notification", zap.String("outcome", "dropped"), zap.Error(err))
		return true
	}
	n.logger.Error("notification delivery failed", zap.String("outcome", "retry"), zap.Error(err))
	return false
}
