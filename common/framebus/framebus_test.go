package framebus

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trinetra-vision/trinetra/common/event"
)

func setupBus(t *testing.T, maxLen int) (*miniredis.Miniredis, *Bus) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, NewWithClient(client, maxLen)
}

func publishFrames(t *testing.T, bus *Bus, camera string, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		_, err := bus.Publish(ctx, FrameMessage{
			CameraID:   camera,
			CameraType: event.CameraTracking,
			FrameIndex: int64(i),
			IngestTS:   1000.0 + float64(i),
			JPEG:       []byte(fmt.Sprintf("jpeg-%d", i)),
		})
		require.NoError(t, err)
	}
}

func TestPublishConsumeAck(t *testing.T) {
	_, bus := setupBus(t, 100)
	ctx := context.Background()
	cameras := []string{"cam_01"}

	require.NoError(t, bus.EnsureGroup(ctx, "inference-workers", cameras))
	publishFrames(t, bus, "cam_01", 3)

	entries, err := bus.Consume(ctx, "inference-workers", "w1", cameras, 10, 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// Per-stream FIFO: frame_index order is preserved.
	for i, e := range entries {
		assert.Equal(t, int64(i), e.Frame.FrameIndex)
		assert.Equal(t, "cam_01", e.Frame.CameraID)
		assert.Equal(t, []byte(fmt.Sprintf("jpeg-%d", i)), e.Frame.JPEG)
	}

	ids := []string{entries[0].ID, entries[1].ID, entries[2].ID}
	require.NoError(t, bus.Ack(ctx, "inference-workers", entries[0].Stream, ids...))

	// Nothing left to read.
	entries, err = bus.Consume(ctx, "inference-workers", "w1", cameras, 10, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTailDrop(t *testing.T) {
	_, bus := setupBus(t, 10)
	ctx := context.Background()

	publishFrames(t, bus, "cam_01", 50)

	length, err := bus.Length(ctx, "cam_01")
	require.NoError(t, err)
	// Approximate trim: cap plus small slack.
	assert.LessOrEqual(t, length, int64(20))
	assert.Greater(t, length, int64(0))

	// Oldest entries were dropped; survivors are the most recent.
	require.NoError(t, bus.EnsureGroup(ctx, "g", []string{"cam_01"}))
	entries, err := bus.Consume(ctx, "g", "c1", []string{"cam_01"}, 100, 10*time.Millisecond)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Greater(t, entries[0].Frame.FrameIndex, int64(0))
	assert.Equal(t, int64(49), entries[len(entries)-1].Frame.FrameIndex)
}

func TestGroupDistribution(t *testing.T) {
	_, bus := setupBus(t, 100)
	ctx := context.Background()
	cameras := []string{"cam_01"}

	require.NoError(t, bus.EnsureGroup(ctx, "g", cameras))
	publishFrames(t, bus, "cam_01", 6)

	a, err := bus.Consume(ctx, "g", "worker-a", cameras, 3, 10*time.Millisecond)
	require.NoError(t, err)
	b, err := bus.Consume(ctx, "g", "worker-b", cameras, 3, 10*time.Millisecond)
	require.NoError(t, err)

	require.Len(t, a, 3)
	require.Len(t, b, 3)

	// Each entry delivered to exactly one consumer in the group.
	seen := map[string]bool{}
	for _, e := range append(a, b...) {
		assert.False(t, seen[e.ID], "entry %s delivered twice", e.ID)
		seen[e.ID] = true
	}
}

func TestReclaimIdleEntries(t *testing.T) {
	mr, bus := setupBus(t, 100)
	ctx := context.Background()
	cameras := []string{"cam_01"}

	require.NoError(t, bus.EnsureGroup(ctx, "g", cameras))
	publishFrames(t, bus, "cam_01", 10)

	entries, err := bus.Consume(ctx, "g", "dead-worker", cameras, 10, 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, entries, 10)

	// Ack the first four, crash before the rest.
	var acked []string
	for _, e := range entries[:4] {
		acked = append(acked, e.ID)
	}
	require.NoError(t, bus.Ack(ctx, "g", StreamKey("cam_01"), acked...))

	mr.FastForward(70 * time.Second)

	reclaimed, err := bus.Reclaim(ctx, "g", "new-worker", cameras, time.Minute)
	require.NoError(t, err)
	require.Len(t, reclaimed, 6)
	for i, e := range reclaimed {
		assert.Equal(t, int64(4+i), e.Frame.FrameIndex)
	}
}

func TestReclaimFreshEntriesNotTaken(t *testing.T) {
	_, bus := setupBus(t, 100)
	ctx := context.Background()
	cameras := []string{"cam_01"}

	require.NoError(t, bus.EnsureGroup(ctx, "g", cameras))
	publishFrames(t, bus, "cam_01", 2)

	_, err := bus.Consume(ctx, "g", "live-worker", cameras, 10, 10*time.Millisecond)
	require.NoError(t, err)

	reclaimed, err := bus.Reclaim(ctx, "g", "other-worker", cameras, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, reclaimed)
}

func TestFillRatio(t *testing.T) {
	_, bus := setupBus(t, 100)
	ctx := context.Background()

	publishFrames(t, bus, "cam_01", 25)

	ratio, err := bus.FillRatio(ctx, "cam_01")
	require.NoError(t, err)
	assert.InDelta(t, 0.25, ratio, 0.01)
}

func TestEffectiveTS(t *testing.T) {
	msg := FrameMessage{IngestTS: 100}
	assert.Equal(t, 100.0, msg.EffectiveTS())

	msg.FrameTS = 99.5
	assert.Equal(t, 99.5, msg.EffectiveTS())
}

func TestCheckpointRoundTrip(t *testing.T) {
	_, bus := setupBus(t, 100)
	ctx := context.Background()

	blob, err := bus.LoadCheckpoint(ctx, "cam_01")
	require.NoError(t, err)
	assert.Nil(t, blob)

	require.NoError(t, bus.SaveCheckpoint(ctx, "cam_01", []byte(`{"tracks":[]}`)))

	blob, err = bus.LoadCheckpoint(ctx, "cam_01")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"tracks":[]}`), blob)
}

func TestMalformedEntryAckedAndCounted(t *testing.T) {
	_, bus := setupBus(t, 100)
	ctx := context.Background()
	cameras := []string{"cam_01"}

	require.NoError(t, bus.EnsureGroup(ctx, "g", cameras))
	publishFrames(t, bus, "cam_01", 1)
	// An entry without its frame payload can never parse.
	_, err := bus.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey("cam_01"),
		Values: map[string]interface{}{"camera_id": "cam_01"},
	}).Result()
	require.NoError(t, err)

	before := testutil.ToFloat64(malformedEntries)

	entries, err := bus.Consume(ctx, "g", "w1", cameras, 10, 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(0), entries[0].Frame.FrameIndex)
	assert.Equal(t, before+1, testutil.ToFloat64(malformedEntries))

	// Acked on sight: only the unacked good entry is still pending, so
	// the malformed one cannot be redelivered by reclaim.
	reclaimed, err := bus.Reclaim(ctx, "g", "w2", cameras, 0)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)
	assert.Equal(t, entries[0].ID, reclaimed[0].ID)
	assert.Equal(t, before+1, testutil.ToFloat64(malformedEntries))
}

func TestParseMessageErrors(t *testing.T) {
	_, err := parseMessage(map[string]interface{}{"frame": "x"})
	assert.Error(t, err)

	_, err = parseMessage(map[string]interface{}{"camera_id": "cam_01"})
	assert.Error(t, err)

	_, err = parseMessage(map[string]interface{}{
		"camera_id": "cam_01", "frame": "x", "frame_index": "not-a-number",
	})
	assert.Error(t, err)
}
