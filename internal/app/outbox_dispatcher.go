package app

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/BenyBen1/EstienCapital-sub000/internal/store"
	"github.com/BenyBen1/EstienCapital-sub000/pkg/rabbitmq"
	"go.uber.org/zap"
)

const (
	defaultBatchSize       = 50
	defaultPollInterval    = 1200 * time.Millisecond
	defaultStaleProcessing = 2 * time.Minute
)

var errInvalidOutboxPayload = errors.New("outbox payload is not valid JSON")

// PublisherFactory opens a publisher. It is called lazily and again after a
// publish failure closes the previous one.
type PublisherFactory func() (rabbitmq.Publisher, error)

// OutboxDispatcher relays committed outbox rows to the broker.
type OutboxDispatcher struct {
	repo                store.OutboxRepository
	connect             PublisherFactory
	batchSize           int
	pollInterval        time.Duration
	staleProcessingTime time.Duration
	producer            rabbitmq.Publisher
	logger              *zap.Logger
}

func NewOutboxDispatcher(repo store.OutboxRepository, connect PublisherFactory, batchSize int, pollInterval time.Duration) *OutboxDispatcher {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &OutboxDispatcher{
		repo:                repo,
		connect:             connect,
		batchSize:           batchSize,
		pollInterval:        pollInterval,
		staleProcessingTime: defaultStaleProcessing,
		logger:              zap.L().With(zap.String("component", "outbox_dispatcher")),
	}
}

func (d *OutboxDispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()
	defer d.closeProducer()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.flushOnce(ctx); err != nil {
				d.logger.Error("outbox flush failed", zap.Error(err))
			}
		}
	}
}

// flushOnce publishes one claimed batch and returns how many rows were delivered.
func (d *OutboxDispatcher) flushOnce(ctx context.Context) (int, error) {
	staleAfterSeconds := int(d.staleProcessingTime.Seconds())
	messages, err := d.repo.ClaimOutboxMessages(ctx, d.batchSize, staleAfterSeconds)
	if err != nil {
		return 0, err
	}
	if len(messages) == 0 {
		return 0, nil
	}

	delivered := 0
	for _, message := range messages {
		if err := d.publishMessage(ctx, message); err != nil {
			retryAfter := retryDelaySeconds(message.Attempts)
			d.logger.Warn("outbox publish failed",
				zap.Int64("outbox_id", message.ID),
				zap.String("routing_key", message.RoutingKey),
				zap.Int("attempts", message.Attempts),
				zap.Int("retry_after_seconds", retryAfter),
				zap.Error(err),
			)
			if markErr := d.repo.MarkOutboxFailed(ctx, message.ID, retryAfter, err.Error()); markErr != nil {
				d.logger.Error("failed to mark outbox message as failed", zap.Int64("outbox_id", message.ID), zap.Error(markErr))
			}
			continue
		}
		if err := d.repo.MarkOutboxPublished(ctx, message.ID); err != nil {
			d.logger.Error("failed to mark outbox message as published", zap.Int64("outbox_id", message.ID), zap.Error(err))
			continue
		}
		delivered++
	}
	return delivered, nil
}

func (d *OutboxDispatcher) publishMessage(ctx context.Context, message store.OutboxMessage) error {
	if d.producer == nil {
		producer, err := d.connect()
		if err != nil {
			return err
		}
		d.producer = producer
	}

	if !json.Valid(message.Payload) {
		return errInvalidOutboxPayload
	}

	if err := d.producer.Publish(ctx, message.Exchange, message.RoutingKey, json.RawMessage(message.Payload)); err != nil {
		d.closeProducer()
		return err
	}
	return nil
}

func (d *OutboxDispatcher) closeProducer() {
	if d.producer != nil {
		d.producer.Close()
		d.producer = nil
	}
}

func retryDelaySeconds(attempt int) int {
	if attempt < 1 {
		return 1
	}
	delay := 1 << min(attempt, 8)
	if delay > 300 {
		return 300
	}
	return delay
}
