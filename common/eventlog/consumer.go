package eventlog

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Consumer reads one topic as part of a consumer group with manual
// offset commit. The resolver's replay discipline depends on commits
// being explicit: an event is committed only after its identity event
// was durably published.
type Consumer struct {
	reader *kafka.Reader
}

// NewConsumer builds a group consumer for topic. MaxWait keeps the
// fetch loop responsive to shutdown; CommitInterval zero selects
// synchronous manual commits.
func NewConsumer(brokers []string, group, topic string) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			GroupID:        group,
			Topic:          topic,
			MinBytes:       1,
			MaxBytes:       10e6,
			MaxWait:        50 * time.Millisecond,
			CommitInterval: 0,
		}),
	}
}

// Fetch returns the next message without committing its offset.
func (c *Consumer) Fetch(ctx context.Context) (kafka.Message, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("eventlog: fetch: %w", err)
	}
	return msg, nil
}

// Commit advances the group offset past the given messages.
func (c *Consumer) Commit(ctx context.Context, msgs ...kafka.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	if err := c.reader.CommitMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("eventlog: commit: %w", err)
	}
	return nil
}

// Lag returns the consumer's current total lag estimate.
func (c *Consumer) Lag() int64 {
	return c.reader.Lag()
}

// Close leaves the group and releases connections.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
