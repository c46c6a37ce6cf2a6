/**
 * @description
 * RabbitMQ publisher used by the outbox dispatcher. Events are published as JSON
 * to a durable topic exchange.
 *
 * @dependencies
 * - github.com/rabbitmq/amqp091-go: AMQP 0-9-1 client.
 * - go.uber.org/zap: Structured logging.
 */

package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher is the interface implemented by types that can publish events.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
	Close()
}

// EventProducer is responsible for publishing events to a RabbitMQ exchange.
type EventProducer struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	declared map[string]bool
}

// EventProducerFallback is a no-op publisher used when RabbitMQ is unavailable.
// It logs what would have been published so events are not lost silently.
type EventProducerFallback struct{}

func (p *EventProducerFallback) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	zap.L().Warn("rabbitmq fallback publish",
		zap.String("component", "rabbitmq"),
		zap.String("exchange", exchange),
		zap.String("routing_key", routingKey),
		zap.Any("body", body),
	)
	return nil
}

func (p *EventProducerFallback) Close() {}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	// Slice off stray characters that precede the scheme.
	idx := strings.Index(strings.ToLower(clean), "amqp")
	if idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewEventProducer dials RabbitMQ and opens a channel.
func NewEventProducer(amqpURL string) (*EventProducer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	// Bounded dial timeout so startup does not hang.
	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &EventProducer{conn: conn, channel: ch, declared: map[string]bool{}}, nil
}

func (p *EventProducer) declareExchange(exchange string) error {
	if p.declared[exchange] {
		return nil
	}
	if err := p.channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	p.declared[exchange] = true
	return nil
}

func (p *EventProducer) reopenChannel() error {
	if p.conn == nil || p.conn.IsClosed() {
		return amqp.ErrClosed
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	p.channel = ch
	p.declared = map[string]bool{}
	return nil
}

// Publish sends body as persistent JSON. A json.RawMessage body is sent as is.
// On a channel error the channel is reopened once and the publish retried.
func (p *EventProducer) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return err
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         jsonBody,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	publish := func() error {
		if err := p.declareExchange(exchange); err != nil {
			return err
		}
		return p.channel.PublishWithContext(ctx, exchange, routingKey, false, false, msg)
	}

	if err := publish(); err != nil {
		zap.L().Warn("rabbitmq publish failed; reopening channel",
			zap.String("component", "rabbitmq"),
			zap.String("exchange", exchange),
			zap.String("routing_key", routingKey),
			zap.Error(err),
		)
		if reopenErr := p.reopenChannel(); reopenErr != nil {
			return errors.Join(err, reopenErr)
		}
		if retryErr := publish(); retryErr != nil {
			return retryErr
		}
	}

	zap.L().Debug("rabbitmq message published",
		zap.String("component", "rabbitmq"),
		zap.String("exchange", exchange),
		zap.String("routing_key", routingKey),
	)
	return nil
}

// Close closes the RabbitMQ channel and connection.
func (p *EventProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
