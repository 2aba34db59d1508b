package pipeline

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trinetra-vision/trinetra/common/camera"
	"github.com/trinetra-vision/trinetra/common/event"
	"github.com/trinetra-vision/trinetra/common/framebus"
	"github.com/trinetra-vision/trinetra/ingestor/internal/capture"
	"github.com/trinetra-vision/trinetra/ingestor/internal/config"
	"github.com/trinetra-vision/trinetra/ingestor/internal/sampler"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSamplerForTest(cfg config.IngestConfig, targetFPS int) *sampler.Adaptive {
	return sampler.NewAdaptive(cfg.CaptureFPS, targetFPS, cfg.HighWaterRatio, cfg.MotionThreshold)
}

type fakeSource struct {
	ch chan capture.Frame
}

func (f *fakeSource) Start(ctx context.Context) (<-chan capture.Frame, error) {
	return f.ch, nil
}

func (f *fakeSource) Stop() error          { return nil }
func (f *fakeSource) Stats() capture.Stats { return capture.Stats{} }

func noisyFrame(seq uint64, seed int64) capture.Frame {
	rng := rand.New(rand.NewSource(seed))
	data := make([]byte, 64*64*3)
	for i := range data {
		data[i] = uint8(rng.Intn(256))
	}
	return capture.Frame{Seq: seq, Timestamp: time.Now(), Width: 64, Height: 64, Data: data}
}

func blankFrame(seq uint64) capture.Frame {
	return capture.Frame{Seq: seq, Timestamp: time.Now(), Width: 64, Height: 64, Data: make([]byte, 64*64*3)}
}

func testBus(t *testing.T) (*framebus.Bus, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return framebus.NewWithClient(rdb, 100), rdb
}

func testConfig() config.IngestConfig {
	cfg := config.Default().Ingest
	cfg.CaptureFPS = 30
	return cfg
}

func runPipeline(t *testing.T, p *Pipeline, src *fakeSource, frames []capture.Frame) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		require.NoError(t, p.Run(ctx))
	}()
	for _, f := range frames {
		src.ch <- f
	}
	// Queue depth exceeds the frame count in every test, so once the
	// sends return the publisher only needs time to drain.
	require.Eventually(t, func() bool {
		return len(src.ch) == 0 && len(p.queue) == 0
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done
}

func TestPipelinePublishesSequentially(t *testing.T) {
	bus, rdb := testBus(t)
	// High target rate keeps the token bucket out of the way.
	cam := camera.Camera{ID: "cam-a", Type: event.CameraTracking, RTSPURL: "rtsp://x", TargetFPS: 1000}
	src := &fakeSource{ch: make(chan capture.Frame, 16)}
	p := New(cam, src, bus, testConfig(), testLogger())

	frames := make([]capture.Frame, 8)
	for i := range frames {
		frames[i] = noisyFrame(uint64(i), int64(i+1))
	}
	runPipeline(t, p, src, frames)

	msgs, err := rdb.XRange(context.Background(), framebus.StreamKey("cam-a"), "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 8)
	for i, m := range msgs {
		idx, err := strconv.ParseInt(m.Values["frame_index"].(string), 10, 64)
		require.NoError(t, err)
		assert.Equal(t, int64(i), idx)
		assert.NotEmpty(t, m.Values["frame"])
	}
	assert.Equal(t, int64(8), p.FrameIndex())
}

func TestPipelineDropsBlankFrames(t *testing.T) {
	bus, _ := testBus(t)
	cam := camera.Camera{ID: "cam-b", Type: event.CameraTracking, RTSPURL: "rtsp://x", TargetFPS: 1000}
	src := &fakeSource{ch: make(chan capture.Frame, 16)}
	p := New(cam, src, bus, testConfig(), testLogger())

	frames := []capture.Frame{
		blankFrame(0),
		noisyFrame(1, 7),
		blankFrame(2),
		noisyFrame(3, 8),
	}
	runPipeline(t, p, src, frames)

	n, err := bus.Length(context.Background(), "cam-b")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, int64(2), p.FrameIndex())
}

func TestPipelineDropsTruncatedFrames(t *testing.T) {
	bus, _ := testBus(t)
	cam := camera.Camera{ID: "cam-t", Type: event.CameraTracking, RTSPURL: "rtsp://x", TargetFPS: 1000}
	src := &fakeSource{ch: make(chan capture.Frame, 16)}
	p := New(cam, src, bus, testConfig(), testLogger())

	// A capture buffer shorter than width*height*3 must be dropped
	// without panicking the publisher goroutine.
	short := capture.Frame{Seq: 0, Timestamp: time.Now(), Width: 64, Height: 64, Data: make([]byte, 10)}
	frames := []capture.Frame{
		short,
		noisyFrame(1, 7),
	}
	runPipeline(t, p, src, frames)

	n, err := bus.Length(context.Background(), "cam-t")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int64(1), p.FrameIndex())
}

func TestPipelineBurstSuppression(t *testing.T) {
	bus, _ := testBus(t)
	// 1 fps target, billing type so the sampler never drops; the token
	// bucket (capacity 5) is the only thing standing between a 20-frame
	// burst and the bus.
	cam := camera.Camera{ID: "cam-c", Type: event.CameraBilling, RTSPURL: "rtsp://x", TargetFPS: 1}
	src := &fakeSource{ch: make(chan capture.Frame, 32)}
	p := New(cam, src, bus, testConfig(), testLogger())

	frames := make([]capture.Frame, 20)
	for i := range frames {
		frames[i] = noisyFrame(uint64(i), int64(i+1))
	}
	runPipeline(t, p, src, frames)

	n, err := bus.Length(context.Background(), "cam-c")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(5))
	assert.LessOrEqual(t, n, int64(7))
}

func TestPipelinePriorityBypassesSampler(t *testing.T) {
	bus, _ := testBus(t)
	// target 1 fps against 30 fps capture gives a base skip interval of
	// 30; a billing camera must ignore it. High target rate keeps the
	// token bucket out of the way.
	cfg := testConfig()
	cam := camera.Camera{ID: "cam-d", Type: event.CameraBilling, RTSPURL: "rtsp://x", TargetFPS: 1000}
	src := &fakeSource{ch: make(chan capture.Frame, 16)}
	p := New(cam, src, bus, cfg, testLogger())
	p.sampler = newSamplerForTest(cfg, 1)

	frames := make([]capture.Frame, 10)
	for i := range frames {
		frames[i] = noisyFrame(uint64(i), int64(i+1))
	}
	runPipeline(t, p, src, frames)

	n, err := bus.Length(context.Background(), "cam-d")
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)
}

func TestPipelineSamplerDropsNonPriority(t *testing.T) {
	bus, _ := testBus(t)
	cfg := testConfig()
	cam := camera.Camera{ID: "cam-e", Type: event.CameraTracking, RTSPURL: "rtsp://x", TargetFPS: 1000}
	src := &fakeSource{ch: make(chan capture.Frame, 16)}
	p := New(cam, src, bus, cfg, testLogger())
	// Base interval 5: only every fifth frame forwards.
	p.sampler = newSamplerForTest(cfg, 6)

	// Reuse one seed so consecutive frames are identical and motion
	// never pulls the interval down.
	frames := make([]capture.Frame, 10)
	for i := range frames {
		frames[i] = noisyFrame(uint64(i), 42)
	}
	runPipeline(t, p, src, frames)

	n, err := bus.Length(context.Background(), "cam-e")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
