// Package pipeline runs one independent ingest pipeline per camera:
// blocking reader feeding a bounded in-process queue, then validate,
// adaptive sample, burst suppress, resize/encode, FrameBus publish.
//
// Pipelines share nothing with their siblings. All per-camera state
// (frame counter, skip interval, motion history, token bucket) lives
// here and does not survive a restart.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/trinetra-vision/trinetra/common/camera"
	"github.com/trinetra-vision/trinetra/common/framebus"
	"github.com/trinetra-vision/trinetra/common/logging"
	"github.com/trinetra-vision/trinetra/ingestor/internal/capture"
	"github.com/trinetra-vision/trinetra/ingestor/internal/config"
	"github.com/trinetra-vision/trinetra/ingestor/internal/metrics"
	"github.com/trinetra-vision/trinetra/ingestor/internal/sampler"
)

// burstCapacity is the token bucket size of the burst suppressor.
const burstCapacity = 5

// Pipeline ingests one camera.
type Pipeline struct {
	cam    camera.Camera
	source capture.Source
	bus    *framebus.Bus
	cfg    config.IngestConfig
	logger *slog.Logger

	sampler *sampler.Adaptive
	motion  sampler.MotionEstimator
	limiter *rate.Limiter

	queue      chan capture.Frame
	frameIndex int64
}

// New wires a pipeline for one camera.
func New(cam camera.Camera, source capture.Source, bus *framebus.Bus, cfg config.IngestConfig, logger *slog.Logger) *Pipeline {
	depth := cfg.QueueDepth
	if depth <= 0 {
		depth = 30
	}
	return &Pipeline{
		cam:     cam,
		source:  source,
		bus:     bus,
		cfg:     cfg,
		logger:  logger.With(logging.Camera(cam.ID)),
		sampler: sampler.NewAdaptive(cfg.CaptureFPS, cam.TargetFPS, cfg.HighWaterRatio, cfg.MotionThreshold),
		limiter: rate.NewLimiter(rate.Limit(cam.TargetFPS), burstCapacity),
		queue:   make(chan capture.Frame, depth),
	}
}

// Run blocks until ctx is cancelled. The reader goroutine is the only
// place that blocks on camera I/O; the publisher drains the bounded
// queue and owns all FrameBus interaction.
func (p *Pipeline) Run(ctx context.Context) error {
	frames, err := p.source.Start(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.source.Stop(); err != nil {
			p.logger.Warn("capture stop failed", logging.Error(err))
		}
	}()

	go p.read(ctx, frames)
	p.publish(ctx)
	return nil
}

// read moves frames from the capture source into the bounded queue,
// dropping the oldest queued frame when full. Recency wins.
func (p *Pipeline) read(ctx context.Context, frames <-chan capture.Frame) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			select {
			case p.queue <- frame:
			default:
				select {
				case <-p.queue:
					metrics.FramesDropped.WithLabelValues(p.cam.ID, metrics.ReasonQueueFull).Inc()
				default:
				}
				select {
				case p.queue <- frame:
				default:
					metrics.FramesDropped.WithLabelValues(p.cam.ID, metrics.ReasonQueueFull).Inc()
				}
			}
		}
	}
}

func (p *Pipeline) publish(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-p.queue:
			p.process(ctx, frame)
		}
	}
}

func (p *Pipeline) process(ctx context.Context, frame capture.Frame) {
	if len(frame.Data) < frame.Width*frame.Height*3 {
		metrics.FramesDropped.WithLabelValues(p.cam.ID, metrics.ReasonInvalid).Inc()
		p.logger.Debug("dropping truncated frame buffer",
			slog.Int("got", len(frame.Data)), slog.Int("want", frame.Width*frame.Height*3))
		return
	}

	luma := sampler.LumaFromRGB(frame.Data, frame.Width, frame.Height)
	mean, std := luma.MeanStd()
	if !sampler.Valid(mean, std) {
		metrics.FramesDropped.WithLabelValues(p.cam.ID, metrics.ReasonInvalid).Inc()
		p.logger.Debug("dropping blank or corrupted frame",
			slog.Float64("mean", mean), slog.Float64("std", std))
		return
	}

	fill, err := p.bus.FillRatio(ctx, p.cam.ID)
	if err != nil {
		fill = 0
	}
	metrics.StreamFillRatio.WithLabelValues(p.cam.ID).Set(fill)

	motion := p.motion.Score(luma)
	forward := p.sampler.ShouldForward(fill, motion)

	// Billing and entrance feeds bypass the sampler drop branch: footfall
	// monotonicity and financial correlation outweigh backpressure.
	if !forward && !p.cam.Type.Priority() {
		metrics.FramesDropped.WithLabelValues(p.cam.ID, metrics.ReasonSampled).Inc()
		return
	}

	if !p.limiter.Allow() {
		metrics.FramesDropped.WithLabelValues(p.cam.ID, metrics.ReasonBurst).Inc()
		return
	}

	jpegBytes, err := encodeFrame(frame, p.cfg.JPEGQuality)
	if err != nil {
		metrics.FramesDropped.WithLabelValues(p.cam.ID, metrics.ReasonInvalid).Inc()
		p.logger.Warn("frame encode failed", logging.Error(err))
		return
	}

	msg := framebus.FrameMessage{
		CameraID:   p.cam.ID,
		CameraType: p.cam.Type,
		FrameIndex: p.frameIndex,
		IngestTS:   float64(frame.Timestamp.UnixNano()) / 1e9,
		JPEG:       jpegBytes,
	}
	if _, err := p.bus.Publish(ctx, msg); err != nil {
		metrics.FramesDropped.WithLabelValues(p.cam.ID, metrics.ReasonPublishError).Inc()
		p.logger.Warn("framebus publish failed", logging.Error(err))
		return
	}

	p.frameIndex++
	metrics.FramesIngested.WithLabelValues(p.cam.ID, string(p.cam.Type)).Inc()
	metrics.FrameLatency.Observe(time.Since(frame.Timestamp).Seconds())
}

// FrameIndex returns the next frame index to be assigned (equals the
// count of frames published so far this epoch).
func (p *Pipeline) FrameIndex() int64 {
	return p.frameIndex
}
