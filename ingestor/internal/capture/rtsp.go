package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

const (
	// Reconnect backoff: 1s -> 2s -> 4s -> ... -> 30s ceiling, reset on success.
	reconnectInitialDelay = time.Second
	reconnectCeiling      = 30 * time.Second

	// No frame for this long is treated as a dead stream.
	readTimeout = 5 * time.Second

	frameChanDepth = 4
)

// RTSPConfig configures one RTSP source.
type RTSPConfig struct {
	URL    string
	Width  int
	Height int

	// OnReconnect is invoked before each reconnect attempt (metrics hook).
	OnReconnect func()
}

// RTSPSource captures frames from an RTSP camera over TCP through a
// GStreamer pipeline:
//
//	rtspsrc(protocols=tcp) -> rtph264depay -> avdec_h264 ->
//	videoconvert -> videoscale -> capsfilter(RGB) -> appsink
//
// On read failure the pipeline is torn down and rebuilt with
// exponential backoff.
type RTSPSource struct {
	cfg RTSPConfig

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	out     chan Frame

	frames     atomic.Uint64
	dropped    atomic.Uint64
	reconnects atomic.Uint64
	connected  atomic.Bool
	lastFrame  atomic.Int64 // unix nanos
}

// NewRTSPSource builds a source for one camera URL.
func NewRTSPSource(cfg RTSPConfig) *RTSPSource {
	if cfg.Width == 0 {
		cfg.Width = 640
	}
	if cfg.Height == 0 {
		cfg.Height = 640
	}
	return &RTSPSource{cfg: cfg}
}

// Start begins capturing. The returned channel stays open until Stop.
func (s *RTSPSource) Start(ctx context.Context) (<-chan Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil, fmt.Errorf("capture: source already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.out = make(chan Frame, frameChanDepth)
	s.running = true

	go s.run(runCtx)
	return s.out, nil
}

// Stop tears down the pipeline and closes the frame channel.
// Idempotent.
func (s *RTSPSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.cancel()
	select {
	case <-s.done:
	case <-time.After(3 * time.Second):
		return fmt.Errorf("capture: shutdown timeout for %s", s.cfg.URL)
	}
	s.running = false
	return nil
}

// Stats returns a snapshot of the source counters.
func (s *RTSPSource) Stats() Stats {
	return Stats{
		Frames:     s.frames.Load(),
		Dropped:    s.dropped.Load(),
		Reconnects: s.reconnects.Load(),
		Connected:  s.connected.Load(),
	}
}

// run owns the connect/reconnect loop. It is the only goroutine that
// touches GStreamer state.
func (s *RTSPSource) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.out)

	delay := reconnectInitialDelay
	for {
		if ctx.Err() != nil {
			return
		}

		err := s.captureUntilFailure(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			slog.Warn("rtsp stream lost",
				slog.String("url", s.cfg.URL),
				slog.String("error", err.Error()),
				slog.Duration("retry_in", delay),
			)
		}

		s.connected.Store(false)
		s.reconnects.Add(1)
		if s.cfg.OnReconnect != nil {
			s.cfg.OnReconnect()
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
		delay = min(delay*2, reconnectCeiling)

		// Backoff resets only once frames actually flow again; see
		// captureUntilFailure.
		if s.frames.Load() > 0 && time.Since(time.Unix(0, s.lastFrame.Load())) < readTimeout {
			delay = reconnectInitialDelay
		}
	}
}

// captureUntilFailure builds the pipeline and pumps frames until the
// stream errors, stalls, or ctx is cancelled.
func (s *RTSPSource) captureUntilFailure(ctx context.Context) error {
	pipeline, err := s.buildPipeline()
	if err != nil {
		return err
	}
	defer func() {
		_ = pipeline.SetState(gst.StateNull)
	}()

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("capture: set playing: %w", err)
	}

	s.lastFrame.Store(time.Now().UnixNano())
	bus := pipeline.GetPipelineBus()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if msg := bus.Pop(); msg != nil {
				switch msg.Type() {
				case gst.MessageError:
					return fmt.Errorf("capture: pipeline error: %s", msg.String())
				case gst.MessageEOS:
					return fmt.Errorf("capture: end of stream")
				}
			}
			if time.Since(time.Unix(0, s.lastFrame.Load())) > readTimeout {
				return fmt.Errorf("capture: no frames for %s", readTimeout)
			}
		}
	}
}

func (s *RTSPSource) buildPipeline() (*gst.Pipeline, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("capture: create pipeline: %w", err)
	}

	src, err := gst.NewElement("rtspsrc")
	if err != nil {
		return nil, fmt.Errorf("capture: create rtspsrc: %w", err)
	}
	src.SetProperty("location", s.cfg.URL)
	src.SetProperty("protocols", 4) // TCP only
	src.SetProperty("latency", 200)
	src.SetProperty("tcp-timeout", uint64(readTimeout.Microseconds()))

	depay, err := gst.NewElement("rtph264depay")
	if err != nil {
		return nil, fmt.Errorf("capture: create depay: %w", err)
	}
	decoder, err := gst.NewElement("avdec_h264")
	if err != nil {
		return nil, fmt.Errorf("capture: create decoder: %w", err)
	}
	convert, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("capture: create videoconvert: %w", err)
	}
	scale, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, fmt.Errorf("capture: create videoscale: %w", err)
	}
	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("capture: create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(fmt.Sprintf(
		"video/x-raw,format=RGB,width=%d,height=%d", s.cfg.Width, s.cfg.Height)))

	sink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("capture: create appsink: %w", err)
	}
	// Prefer freshness over completeness: buffer one sample, drop old.
	sink.SetProperty("max-buffers", uint(1))
	sink.SetProperty("drop", true)
	sink.SetProperty("sync", false)

	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: s.onNewSample,
	})

	elements := []*gst.Element{src, depay, decoder, convert, scale, capsfilter, sink.Element}
	if err := pipeline.AddMany(elements...); err != nil {
		return nil, fmt.Errorf("capture: assemble pipeline: %w", err)
	}
	if err := gst.ElementLinkMany(depay, decoder, convert, scale, capsfilter, sink.Element); err != nil {
		return nil, fmt.Errorf("capture: link pipeline: %w", err)
	}

	// rtspsrc pads appear only once the stream is negotiated.
	src.Connect("pad-added", func(_ *gst.Element, pad *gst.Pad) {
		sinkPad := depay.GetStaticPad("sink")
		if sinkPad != nil && !sinkPad.IsLinked() {
			pad.Link(sinkPad)
		}
	})

	return pipeline, nil
}

// onNewSample copies the decoded frame out of the GStreamer buffer and
// forwards it without blocking; when the channel is full the frame is
// dropped.
func (s *RTSPSource) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		return gst.FlowOK
	}
	frameData := make([]byte, len(data))
	copy(frameData, data)
	buffer.Unmap()

	s.connected.Store(true)
	s.lastFrame.Store(time.Now().UnixNano())
	seq := s.frames.Add(1)

	frame := Frame{
		Seq:       seq,
		Timestamp: time.Now(),
		Width:     s.cfg.Width,
		Height:    s.cfg.Height,
		Data:      frameData,
	}
	select {
	case s.out <- frame:
	default:
		s.dropped.Add(1)
	}
	return gst.FlowOK
}
