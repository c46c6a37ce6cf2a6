package rabbitmq

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Consumer reads from one queue. Deliveries its handler cannot process are
// dead-lettered into "<queue>.retry", which holds them for RetryDelay and then
// routes them back. After MaxAttempts they are parked in "<queue>.dead".
type Consumer struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	done chan *amqp.Error

	RetryDelay  time.Duration
	MaxAttempts int
}

const (
	defaultRetryDelay  = 30 * time.Second
	defaultMaxAttempts = 5
)

func sanitizeURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	if !strings.HasSuffix(clean, "/") {
		clean += "/"
	}
	parsed, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
		return "", fmt.Errorf("invalid AMQP scheme: %s", parsed.Scheme)
	}
	return clean, nil
}

// NewConsumer dials the broker and limits unacknowledged deliveries to prefetch
// (10 when prefetch is not positive).
func NewConsumer(amqpURL string, prefetch int) (*Consumer, error) {
	if prefetch <= 0 {
		prefetch = 10
	}
	cleanURL, err := sanitizeURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp.Dial(cleanURL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	c := &Consumer{
		conn:        conn,
		ch:          ch,
		done:        make(chan *amqp.Error, 1),
		RetryDelay:  defaultRetryDelay,
		MaxAttempts: defaultMaxAttempts,
	}
	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		var reason *amqp.Error
		select {
		case reason = <-connClosed:
		case reason = <-chClosed:
		}
		c.done <- reason
		close(c.done)
	}()
	return c, nil
}

// Done yields once when the connection or channel closes. The value is nil
// after Close and the broker's error otherwise.
func (c *Consumer) Done() <-chan *amqp.Error {
	return c.done
}

// ConsumeWithBindings binds queueName to exchange once per pattern and dispatches
// each delivery to the handler whose pattern matches its routing key. A handler
// returning false sends the message through the retry queue.
func (c *Consumer) ConsumeWithBindings(exchange, queueName string, bindings map[string]func([]byte) bool) error {
	if len(bindings) == 0 {
		return fmt.Errorf("no bindings provided")
	}

	if err := c.ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}

	q, err := c.ch.QueueDeclare(queueName, true, false, false, false, workQueueArgs(queueName))
	if err != nil {
		return err
	}
	if _, err := c.ch.QueueDeclare(retryQueueName(queueName), true, false, false, false, retryQueueArgs(queueName, c.RetryDelay)); err != nil {
		return err
	}
	if _, err := c.ch.QueueDeclare(deadQueueName(queueName), true, false, false, false, nil); err != nil {
		return err
	}

	handlers := make(map[string]func([]byte) bool)
	for pattern, handler := range bindings {
		if handler == nil {
			continue
		}
		handlers[pattern] = handler
		if err := c.ch.QueueBind(q.Name, pattern, exchange, false, nil); err != nil {
			return err
		}
	}

	msgs, err := c.ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	go func() {
		for d := range msgs {
			handler := findHandler(handlers, d.RoutingKey)
			if handler == nil {
				zap.L().Warn("no handler for routing key; dropping",
					zap.String("component", "rabbitmq"),
					zap.String("routing_key", d.RoutingKey),
				)
				d.Ack(false)
				continue
			}
			c.settle(d, q.Name, handler(d.Body))
		}
	}()

	return nil
}

type settlement int

const (
	settleAck settlement = iota
	settleRetry
	settlePark
)

// decideSettlement picks what happens to a delivery that has already been
// retried attempts times.
func decideSettlement(handled bool, attempts int64, maxAttempts int) settlement {
	switch {
	case handled:
		return settleAck
	case maxAttempts > 0 && attempts+1 >= int64(maxAttempts):
		return settlePark
	default:
		return settleRetry
	}
}

func (c *Consumer) settle(d amqp.Delivery, queueName string, handled bool) {
	attempts := retryCount(d.Headers, queueName)
	switch decideSettlement(handled, attempts, c.MaxAttempts) {
	case settleAck:
		d.Ack(false)
	case settleRetry:
		zap.L().Warn("handler failed; scheduling retry",
			zap.String("component", "rabbitmq"),
			zap.String("routing_key", d.RoutingKey),
			zap.Int64("attempt", attempts+1),
			zap.Duration("delay", c.RetryDelay),
		)
		d.Nack(false, false)
	case settlePark:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := c.ch.PublishWithContext(ctx, "", deadQueueName(queueName), false, false, amqp.Publishing{
			ContentType:  d.ContentType,
			DeliveryMode: amqp.Persistent,
			Headers:      amqp.Table{"x-original-routing-key": d.RoutingKey},
			Body:         d.Body,
		})
		if err != nil {
			zap.L().Error("failed to park message; retrying instead",
				zap.String("component", "rabbitmq"),
				zap.String("routing_key", d.RoutingKey),
				zap.Error(err),
			)
			d.Nack(false, false)
			return
		}
		zap.L().Error("handler failed too many times; message parked",
			zap.String("component", "rabbitmq"),
			zap.String("routing_key", d.RoutingKey),
			zap.String("queue", deadQueueName(queueName)),
			zap.Int64("attempts", attempts+1),
		)
		d.Ack(false)
	}
}

func retryQueueName(queueName string) string { return queueName + ".retry" }

func deadQueueName(queueName string) string { return queueName + ".dead" }

// workQueueArgs dead-letters rejected deliveries into the retry queue through
// the default exchange.
func workQueueArgs(queueName string) amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": retryQueueName(queueName),
	}
}

// retryQueueArgs expires messages after delay and routes them back to the work queue.
func retryQueueArgs(queueName string, delay time.Duration) amqp.Table {
	if delay <= 0 {
		delay = defaultRetryDelay
	}
	return amqp.Table{
		"x-message-ttl":             delay.Milliseconds(),
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": queueName,
	}
}

// retryCount reads how often the broker has rejected this message out of
// queueName, from the x-death header it maintains.
func retryCount(headers amqp.Table, queueName string) int64 {
	deaths, ok := headers["x-death"].([]interface{})
	if !ok {
		return 0
	}
	for _, raw := range deaths {
		death, ok := raw.(amqp.Table)
		if !ok {
			continue
		}
		if death["queue"] != queueName || death["reason"] != "rejected" {
			continue
		}
		if count, ok := death["count"].(int64); ok {
			return count
		}
	}
	return 0
}

func findHandler(handlers map[string]func([]byte) bool, routingKey string) func([]byte) bool {
	if h, ok := handlers[routingKey]; ok {
		return h
	}
	for pattern, h := range handlers {
		if MatchRoutingKey(pattern, routingKey) {
			return h
		}
	}
	return nil
}

// MatchRoutingKey reports whether key matches an AMQP topic pattern, where "*"
// matches exactly one word and "#" matches zero or more words.
func MatchRoutingKey(pattern, key string) bool {
	return matchWords(strings.Split(pattern, "."), strings.Split(key, "."))
}

func matchWords(pattern, key []string) bool {
	if len(pattern) == 0 {
		return len(key) == 0
	}
	switch pattern[0] {
	case "#":
		for i := 0; i <= len(key); i++ {
			if matchWords(pattern[1:], key[i:]) {
				return true
			}
		}
		return false
	case "*":
		return len(key) > 0 && matchWords(pattern[1:], key[1:])
	default:
		return len(key) > 0 && pattern[0] == key[0] && matchWords(pattern[1:], key[1:])
	}
}

func (c *Consumer) Close() {
	if c.ch != nil {
		c.ch.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
