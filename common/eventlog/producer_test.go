package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trinetra-vision/trinetra/common/event"
)

func testProducer(write func(ctx context.Context, msgs ...kafka.Message) error) *Producer {
	return &Producer{
		write:   write,
		retries: 3,
		backoff: time.Millisecond,
	}
}

func TestPublishSuccess(t *testing.T) {
	var got kafka.Message
	p := testProducer(func(_ context.Context, msgs ...kafka.Message) error {
		got = msgs[0]
		return nil
	})

	ev := event.DetectionEvent{CameraID: "cam_01", FrameIndex: 7, EffectiveTS: 1000.5}
	require.NoError(t, p.Publish(context.Background(), TopicDetections, "cam_01", ev))

	assert.Equal(t, TopicDetections, got.Topic)
	assert.Equal(t, []byte("cam_01"), got.Key)

	var decoded event.DetectionEvent
	require.NoError(t, json.Unmarshal(got.Value, &decoded))
	assert.Equal(t, int64(7), decoded.FrameIndex)
}

func TestPublishRetriesThenSucceeds(t *testing.T) {
	attempts := 0
	p := testProducer(func(context.Context, ...kafka.Message) error {
		attempts++
		if attempts < 3 {
			return errors.New("broker unavailable")
		}
		return nil
	})

	require.NoError(t, p.Publish(context.Background(), TopicAlerts, "k", map[string]string{"a": "b"}))
	assert.Equal(t, 3, attempts)
}

func TestPublishExhaustsRetries(t *testing.T) {
	attempts := 0
	p := testProducer(func(context.Context, ...kafka.Message) error {
		attempts++
		return errors.New("broker unavailable")
	})

	err := p.Publish(context.Background(), TopicIdentities, "k", struct{}{})
	require.Error(t, err)
	assert.Equal(t, 4, attempts) // initial try plus 3 retries
}

func TestPublishStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := testProducer(func(context.Context, ...kafka.Message) error {
		cancel()
		return errors.New("broker unavailable")
	})

	err := p.Publish(ctx, TopicDetections, "k", struct{}{})
	assert.ErrorIs(t, err, context.Canceled)
}
