package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/BenyBen1/EstienCapital-sub000/internal/domain"
	"go.uber.org/zap"
)

// DirectPublisher satisfies rabbitmq.Publisher by delivering notification events
// in-process. It lets the outbox dispatcher run without a broker.
type DirectPublisher struct {
	notifier *Notifier
}

func NewDirectPublisher(notifier *Notifier) *DirectPublisher {
	return &DirectPublisher{notifier: notifier}
}

func (p *DirectPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	var payload []byte
	switch b := body.(type) {
	case json.RawMessage:
		payload = b
	case []byte:
		payload = b
	default:
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = encoded
	}

	if !strings.HasPrefix(routingKey, domain.NotificationRoutingKeyPrefix) {
		zap.L().Debug("direct publisher ignoring non-notification event",
			zap.String("component", "notifier"),
			zap.String("routing_key", routingKey),
		)
		return nil
	}

	err := p.notifier.Deliver(ctx, payload)
	if errors.Is(err, ErrMalformedEvent) {
		zap.L().Warn("dropping undeliverable notification",
			zap.String("component", "notifier"),
			zap.String("routing_key", routingKey),
			zap.Error(err),
		)
		return nil
	}
	return err
}

func (p *DirectPublisher) Close() {}
