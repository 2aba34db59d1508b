package eventlog

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/segmentio/kafka-go"
)

// Topic names. Partition keys: detections by camera_id (preserves
// per-camera order end to end), identities by customer_id, alerts by kind.
const (
	TopicDetections = "trinetra.detections"
	TopicIdentities = "trinetra.identities"
	TopicAlerts     = "trinetra.alerts"
)

// retentionMS keeps events replayable for 24 h.
const retentionMS = 24 * 60 * 60 * 1000

type topicSpec struct {
	name       string
	partitions int
}

var topicSpecs = []topicSpec{
	{TopicDetections, 8},
	{TopicIdentities, 8},
	{TopicAlerts, 3},
}

// EnsureTopics creates the TRINETRA topics if they do not exist.
// Existing topics are left untouched.
func EnsureTopics(ctx context.Context, brokers []string) error {
	if len(brokers) == 0 {
		return fmt.Errorf("eventlog: no brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("eventlog: dial %s: %w", brokers[0], err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("eventlog: controller lookup: %w", err)
	}
	ctrlConn, err := kafka.DialContext(ctx, "tcp",
		net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("eventlog: dial controller: %w", err)
	}
	defer ctrlConn.Close()

	configs := make([]kafka.TopicConfig, 0, len(topicSpecs))
	for _, spec := range topicSpecs {
		configs = append(configs, kafka.TopicConfig{
			Topic:             spec.name,
			NumPartitions:     spec.partitions,
			ReplicationFactor: 1,
			ConfigEntries: []kafka.ConfigEntry{
				{ConfigName: "retention.ms", ConfigValue: strconv.Itoa(retentionMS)},
			},
		})
	}
	if err := ctrlConn.CreateTopics(configs...); err != nil {
		return fmt.Errorf("eventlog: create topics: %w", err)
	}
	return nil
}

// DetectionsLagAlertThreshold is the consumer lag on the detections
// topic above which operators should be alerted.
const DetectionsLagAlertThreshold = 5000
