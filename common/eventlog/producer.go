// Package eventlog wraps the durable partitioned event log between the
// inference worker, the identity resolver, and downstream consumers.
// The backing store is Kafka; producers hash the message key onto a
// partition and consumers commit offsets manually.
package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	defaultRetries      = 5
	defaultRetryBackoff = 100 * time.Millisecond
	publishAckTimeout   = 2 * time.Second
)

// Producer publishes JSON events with bounded retries and exponential
// backoff. Safe for concurrent use.
type Producer struct {
	writer  *kafka.Writer
	write   func(ctx context.Context, msgs ...kafka.Message) error
	retries int
	backoff time.Duration
}

// NewProducer builds a producer for the given brokers. The hash
// balancer keys messages onto partitions, so per-key ordering is
// preserved through the log.
func NewProducer(brokers []string) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 5 * time.Millisecond,
		WriteTimeout: publishAckTimeout,
		Compression:  kafka.Lz4,
	}
	return &Producer{
		writer:  w,
		write:   w.WriteMessages,
		retries: defaultRetries,
		backoff: defaultRetryBackoff,
	}
}

// Publish marshals v and appends it to topic under key. Retries
// transient failures up to the retry budget; the caller decides what an
// exhausted budget means (the worker accepts the loss, the resolver
// refuses to advance its offset).
func (p *Producer) Publish(ctx context.Context, topic, key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("eventlog: marshal for %s: %w", topic, err)
	}
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: payload,
	}

	delay := p.backoff
	var lastErr error
	for attempt := 0; attempt <= p.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
		}
		if lastErr = p.write(ctx, msg); lastErr == nil {
			return nil
		}
		slog.Warn("eventlog publish failed",
			slog.String("topic", topic),
			slog.Int("attempt", attempt+1),
			slog.String("error", lastErr.Error()),
		)
	}
	return fmt.Errorf("eventlog: publish to %s after %d attempts: %w", topic, p.retries+1, lastErr)
}

// Close flushes and closes the underlying writer.
func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
