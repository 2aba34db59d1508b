// Package framebus implements the bounded ordered per-camera frame
// stream between the ingestor and the inference workers, backed by
// Redis Streams.
//
// Each camera gets a distinct stream keyed frames:{camera_id} with an
// approximate MAXLEN cap; excess oldest entries are trimmed (tail-drop
// from the head, recency wins). Consumer groups give at-least-once
// delivery: entries stay on the pending list until acked and can be
// reclaimed from a crashed consumer with XAUTOCLAIM.
package framebus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

// malformedEntries counts stream entries that failed deserialization.
// They are acked on sight so a poison entry cannot pin the pending list.
var malformedEntries = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "trinetra_framebus_deserialization_errors_total",
		Help: "Stream entries dropped because their fields failed to parse",
	},
)

// DefaultMaxLen is the per-camera stream cap when none is configured.
const DefaultMaxLen = 100

const (
	streamPrefix     = "frames:"
	checkpointPrefix = "tracker:"
)

// StreamKey returns the Redis stream key for a camera.
func StreamKey(cameraID string) string {
	return streamPrefix + cameraID
}

// CameraOf is the inverse of StreamKey.
func CameraOf(streamKey string) string {
	return strings.TrimPrefix(streamKey, streamPrefix)
}

// Entry is one frame delivered from a stream, identified by its
// bus-assigned monotonic ID. The entry belongs to the consumer group's
// pending list until acked.
type Entry struct {
	Stream string
	ID     string
	Frame  FrameMessage
}

// Bus is a FrameBus client. Safe for concurrent use.
type Bus struct {
	rdb    *redis.Client
	maxLen int64
}

// New connects to the backing store at the given redis:// URL.
func New(url string, maxLen int) (*Bus, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("framebus: parse url: %w", err)
	}
	return NewWithClient(redis.NewClient(opts), maxLen), nil
}

// NewWithClient wraps an existing client. Used by tests.
func NewWithClient(rdb *redis.Client, maxLen int) *Bus {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	return &Bus{rdb: rdb, maxLen: int64(maxLen)}
}

// Ping verifies connectivity to the backing store.
func (b *Bus) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (b *Bus) Close() error {
	return b.rdb.Close()
}

// MaxLen returns the configured per-stream cap.
func (b *Bus) MaxLen() int64 {
	return b.maxLen
}

// Publish appends a frame to the camera's stream and returns the
// bus-assigned entry ID. Never blocks for capacity: the stream is
// trimmed approximately to MaxLen, discarding oldest entries.
func (b *Bus) Publish(ctx context.Context, msg FrameMessage) (string, error) {
	id, err := b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey(msg.CameraID),
		MaxLen: b.maxLen,
		Approx: true,
		Values: msg.values(),
	}).Result()
	if err != nil {
		return "", fmt.Errorf("framebus: publish %s: %w", msg.CameraID, err)
	}
	return id, nil
}

// EnsureGroup creates the consumer group on every camera stream,
// creating streams that do not exist yet. Idempotent: an existing
// group is not an error.
func (b *Bus) EnsureGroup(ctx context.Context, group string, cameraIDs []string) error {
	for _, id := range cameraIDs {
		err := b.rdb.XGroupCreateMkStream(ctx, StreamKey(id), group, "0").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("framebus: create group %s on %s: %w", group, id, err)
		}
	}
	return nil
}

// Consume reads at most count new entries across the given camera
// streams on behalf of the consumer group, blocking up to block for at
// least one entry. Within a group each entry is delivered to exactly
// one consumer. A timeout returns an empty slice, not an error.
func (b *Bus) Consume(ctx context.Context, group, consumer string, cameraIDs []string, count int64, block time.Duration) ([]Entry, error) {
	streams := make([]string, 0, len(cameraIDs)*2)
	for _, id := range cameraIDs {
		streams = append(streams, StreamKey(id))
	}
	for range cameraIDs {
		streams = append(streams, ">")
	}

	res, err := b.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  streams,
		Count:    count,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("framebus: consume: %w", err)
	}
	return b.collect(ctx, group, res), nil
}

// Ack marks entries as processed, removing them from the group's
// pending list. After ack the bus is free to discard them.
func (b *Bus) Ack(ctx context.Context, group, stream string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := b.rdb.XAck(ctx, stream, group, ids...).Err(); err != nil {
		return fmt.Errorf("framebus: ack %s: %w", stream, err)
	}
	return nil
}

// Reclaim reassigns entries whose owner has been idle at least minIdle
// to the calling consumer. This is the crash-recovery primitive: a
// restarted worker takes over the frames its predecessor consumed but
// never acked.
func (b *Bus) Reclaim(ctx context.Context, group, consumer string, cameraIDs []string, minIdle time.Duration) ([]Entry, error) {
	var entries []Entry
	for _, id := range cameraIDs {
		stream := StreamKey(id)
		start := "0-0"
		for {
			msgs, next, err := b.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
				Stream:   stream,
				Group:    group,
				Consumer: consumer,
				MinIdle:  minIdle,
				Start:    start,
				Count:    100,
			}).Result()
			if err != nil {
				// NOGROUP means nothing was ever consumed from this stream.
				if strings.Contains(err.Error(), "NOGROUP") {
					break
				}
				return entries, fmt.Errorf("framebus: reclaim %s: %w", stream, err)
			}
			for _, m := range msgs {
				frame, perr := parseMessage(m.Values)
				if perr != nil {
					b.dropMalformed(ctx, group, stream, m.ID)
					continue
				}
				entries = append(entries, Entry{Stream: stream, ID: m.ID, Frame: frame})
			}
			if next == "0-0" || len(msgs) == 0 {
				break
			}
			start = next
		}
	}
	return entries, nil
}

// Length returns the current number of entries in a camera's stream.
func (b *Bus) Length(ctx context.Context, cameraID string) (int64, error) {
	n, err := b.rdb.XLen(ctx, StreamKey(cameraID)).Result()
	if err != nil {
		return 0, fmt.Errorf("framebus: xlen %s: %w", cameraID, err)
	}
	return n, nil
}

// FillRatio returns Length/MaxLen for a camera's stream. May exceed
// 1.0 briefly because trimming is approximate.
func (b *Bus) FillRatio(ctx context.Context, cameraID string) (float64, error) {
	n, err := b.Length(ctx, cameraID)
	if err != nil {
		return 0, err
	}
	return float64(n) / float64(b.maxLen), nil
}

// SaveCheckpoint persists a tracker state blob for a camera. The
// tracker's Kalman-style state survives clean worker restarts this way;
// short crashes are absorbed by pending-list reclaim instead.
func (b *Bus) SaveCheckpoint(ctx context.Context, cameraID string, blob []byte) error {
	if err := b.rdb.Set(ctx, checkpointPrefix+cameraID, blob, 0).Err(); err != nil {
		return fmt.Errorf("framebus: save checkpoint %s: %w", cameraID, err)
	}
	return nil
}

// LoadCheckpoint returns the stored tracker state for a camera, or nil
// when none exists.
func (b *Bus) LoadCheckpoint(ctx context.Context, cameraID string) ([]byte, error) {
	blob, err := b.rdb.Get(ctx, checkpointPrefix+cameraID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("framebus: load checkpoint %s: %w", cameraID, err)
	}
	return blob, nil
}

func (b *Bus) collect(ctx context.Context, group string, res []redis.XStream) []Entry {
	var entries []Entry
	for _, stream := range res {
		for _, m := range stream.Messages {
			frame, err := parseMessage(m.Values)
			if err != nil {
				b.dropMalformed(ctx, group, stream.Stream, m.ID)
				continue
			}
			entries = append(entries, Entry{Stream: stream.Stream, ID: m.ID, Frame: frame})
		}
	}
	return entries
}

// dropMalformed acks an undeserializable entry so it leaves the pending
// list immediately instead of being redelivered on every reclaim.
func (b *Bus) dropMalformed(ctx context.Context, group, stream, id string) {
	malformedEntries.Inc()
	b.rdb.XAck(ctx, stream, group, id)
}
