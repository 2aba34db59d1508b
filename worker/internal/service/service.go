// Package service runs the inference worker loop: consume frames from
// the FrameBus as a consumer group member, micro-batch them through the
// detector and embedder, assign track IDs, and publish one
// DetectionEvent per frame to the EventLog.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/trinetra-vision/trinetra/common/event"
	"github.com/trinetra-vision/trinetra/common/eventlog"
	"github.com/trinetra-vision/trinetra/common/framebus"
	"github.com/trinetra-vision/trinetra/common/logging"
	"github.com/trinetra-vision/trinetra/worker/internal/batch"
	"github.com/trinetra-vision/trinetra/worker/internal/config"
	"github.com/trinetra-vision/trinetra/worker/internal/metrics"
	"github.com/trinetra-vision/trinetra/worker/internal/operator"
	"github.com/trinetra-vision/trinetra/worker/internal/tracker"
)

// Publisher is the EventLog surface the worker needs.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, v any) error
}

// Worker consumes frames and produces detection events.
type Worker struct {
	bus       *framebus.Bus
	publisher Publisher
	detector  operator.Detector
	embedder  operator.Embedder
	cfg       config.WorkerConfig
	logger    *slog.Logger

	consumer  string
	cameraIDs []string
	acc       *batch.Accumulator

	// trackerMu covers trackers against the checkpoint goroutine.
	trackerMu sync.Mutex
	trackers  map[string]*tracker.Tracker
}

// New wires a worker. consumer must be unique within the group.
func New(bus *framebus.Bus, publisher Publisher, detector operator.Detector, embedder operator.Embedder,
	cfg config.WorkerConfig, cameraIDs []string, consumer string, logger *slog.Logger) *Worker {
	trackers := make(map[string]*tracker.Tracker, len(cameraIDs))
	for _, id := range cameraIDs {
		trackers[id] = tracker.New(id, float64(cfg.TrackStaleSeconds))
	}
	return &Worker{
		bus:       bus,
		publisher: publisher,
		detector:  detector,
		embedder:  embedder,
		cfg:       cfg,
		logger:    logger,
		consumer:  consumer,
		cameraIDs: cameraIDs,
		trackers:  trackers,
		acc:       batch.New(cfg.BatchSize, cfg.BatchTimeout()),
	}
}

// Run blocks until ctx is cancelled.
//
// Startup order matters: the consumer group must exist before reclaim,
// and reclaimed frames from a crashed predecessor are processed before
// any new ones so their detections are not reordered behind fresh
// frames from the same camera.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.bus.EnsureGroup(ctx, w.cfg.Group, w.cameraIDs); err != nil {
		return err
	}
	w.restoreTrackers(ctx)

	reclaimed, err := w.bus.Reclaim(ctx, w.cfg.Group, w.consumer, w.cameraIDs, w.cfg.ReclaimIdle())
	if err != nil {
		w.logger.Warn("reclaim failed, continuing with new frames only", logging.Error(err))
	}
	if len(reclaimed) > 0 {
		metrics.ReclaimedEntries.Add(float64(len(reclaimed)))
		w.logger.Info("reclaimed pending frames", slog.Int("count", len(reclaimed)))
		for i := 0; i < len(reclaimed); i += w.cfg.BatchSize {
			end := min(i+w.cfg.BatchSize, len(reclaimed))
			w.flush(ctx, reclaimed[i:end])
		}
	}

	go w.checkpointLoop(ctx)

	for {
		if ctx.Err() != nil {
			// Final partial batch drains before shutdown; frames already
			// consumed should not wait out the reclaim window.
			if w.acc.Len() > 0 {
				w.flush(context.WithoutCancel(ctx), w.acc.Flush())
			}
			return ctx.Err()
		}

		want := int64(w.cfg.BatchSize - w.acc.Len())
		entries, err := w.bus.Consume(ctx, w.cfg.Group, w.consumer, w.cameraIDs, want, w.acc.Wait())
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Error("framebus consume failed", logging.Error(err))
			time.Sleep(time.Second)
			continue
		}
		for _, e := range entries {
			if full := w.acc.Add(e); full != nil {
				w.flush(ctx, full)
			}
		}
		if w.acc.Due() {
			w.flush(ctx, w.acc.Flush())
		}
	}
}

// flush runs one micro-batch end to end. Frames are acked after their
// DetectionEvent is published; a publish failure still acks (the frame
// is lost, counted, and the pipeline moves on), while a non-OOM
// inference failure leaves the batch pending for reclaim. An OOM that
// survives the halved retry acks the batch with empty events instead:
// replaying the same frames would just hit the same OOM again.
func (w *Worker) flush(ctx context.Context, entries []framebus.Entry) {
	metrics.BatchSize.Observe(float64(len(entries)))

	frames := make([][]byte, len(entries))
	for i, e := range entries {
		frames[i] = e.Frame.JPEG
	}

	start := time.Now()
	detections, err := w.detect(ctx, frames)
	if err != nil {
		if errors.Is(err, operator.ErrOOM) {
			w.logger.Error("detection OOM after halved retry, emitting empty events",
				logging.Error(err), slog.Int("batch", len(entries)))
			for _, e := range entries {
				w.emit(ctx, e, nil)
			}
			return
		}
		w.logger.Error("detection failed, leaving batch pending", logging.Error(err),
			slog.Int("batch", len(entries)))
		return
	}
	metrics.InferenceLatency.WithLabelValues("detect").Observe(time.Since(start).Seconds())

	if err := w.embedFaces(ctx, detections); err != nil {
		if !errors.Is(err, operator.ErrOOM) {
			w.logger.Error("embedding failed, leaving batch pending", logging.Error(err))
			return
		}
		// Detections still carry value without embeddings; the resolver
		// skips embedding-less detections on its own.
		w.logger.Error("embedding OOM after halved retry, publishing without embeddings",
			logging.Error(err))
	}

	for i, e := range entries {
		w.emit(ctx, e, detections[i])
	}
}

// detect calls the detector, halving the batch and retrying once when
// the model server reports memory exhaustion.
func (w *Worker) detect(ctx context.Context, frames [][]byte) ([][]operator.RawDetection, error) {
	results, err := w.detector.Detect(ctx, frames)
	if err == nil {
		return results, nil
	}
	if !errors.Is(err, operator.ErrOOM) || len(frames) <= 1 {
		return nil, err
	}

	metrics.OOMRetries.Inc()
	w.logger.Warn("model server OOM, retrying with halved batch", slog.Int("batch", len(frames)))

	mid := len(frames) / 2
	first, err := w.detector.Detect(ctx, frames[:mid])
	if err != nil {
		return nil, fmt.Errorf("halved batch retry: %w", err)
	}
	second, err := w.detector.Detect(ctx, frames[mid:])
	if err != nil {
		return nil, fmt.Errorf("halved batch retry: %w", err)
	}
	return append(first, second...), nil
}

// embedFaces collects every face crop in the batch, embeds them in
// bounded sub-batches, and writes the embeddings back onto their
// detections. Embeddings failing the unit-norm contract are dropped.
func (w *Worker) embedFaces(ctx context.Context, detections [][]operator.RawDetection) error {
	type slot struct{ frame, det int }
	var crops [][]byte
	var slots []slot
	for i, dets := range detections {
		for j, d := range dets {
			if len(d.FaceJPEG) > 0 {
				crops = append(crops, d.FaceJPEG)
				slots = append(slots, slot{frame: i, det: j})
			}
		}
	}
	if len(crops) == 0 {
		return nil
	}

	start := time.Now()
	embeddings := make([][]float32, 0, len(crops))
	for i := 0; i < len(crops); i += w.cfg.CropSubBatch {
		end := min(i+w.cfg.CropSubBatch, len(crops))
		embs, err := w.embed(ctx, crops[i:end])
		if err != nil {
			return err
		}
		embeddings = append(embeddings, embs...)
	}
	metrics.InferenceLatency.WithLabelValues("embed").Observe(time.Since(start).Seconds())

	for k, emb := range embeddings {
		if !event.IsUnitNorm(emb) {
			metrics.InvalidEmbeddings.Inc()
			w.logger.Warn("dropping non-unit-norm embedding",
				slog.Float64("norm", event.Norm(emb)))
			continue
		}
		s := slots[k]
		detections[s.frame][s.det].Embedding = emb
	}
	return nil
}

func (w *Worker) embed(ctx context.Context, crops [][]byte) ([][]float32, error) {
	embs, err := w.embedder.Embed(ctx, crops)
	if err == nil {
		return embs, nil
	}
	if !errors.Is(err, operator.ErrOOM) || len(crops) <= 1 {
		return nil, err
	}

	metrics.OOMRetries.Inc()
	mid := len(crops) / 2
	first, err := w.embedder.Embed(ctx, crops[:mid])
	if err != nil {
		return nil, fmt.Errorf("halved sub-batch retry: %w", err)
	}
	second, err := w.embedder.Embed(ctx, crops[mid:])
	if err != nil {
		return nil, fmt.Errorf("halved sub-batch retry: %w", err)
	}
	return append(first, second...), nil
}

// emit publishes the frame's DetectionEvent and acks it.
func (w *Worker) emit(ctx context.Context, e framebus.Entry, dets []operator.RawDetection) {
	frame := e.Frame
	ts := frame.EffectiveTS()

	boxes := make([]operator.BBox, len(dets))
	for i, d := range dets {
		boxes[i] = d.BBox
	}
	w.trackerMu.Lock()
	tr, ok := w.trackers[frame.CameraID]
	if !ok {
		// Frame from a camera added after startup; track without state.
		tr = tracker.New(frame.CameraID, float64(w.cfg.TrackStaleSeconds))
		w.trackers[frame.CameraID] = tr
	}
	trackIDs := tr.Assign(ts, boxes)
	w.trackerMu.Unlock()

	out := event.DetectionEvent{
		CameraID:    frame.CameraID,
		CameraType:  frame.CameraType,
		FrameIndex:  frame.FrameIndex,
		EffectiveTS: ts,
		Detections:  make([]event.Detection, len(dets)),
	}
	for i, d := range dets {
		out.Detections[i] = event.Detection{
			BBox:      d.BBox,
			Conf:      d.Conf,
			TrackID:   trackIDs[i],
			Embedding: d.Embedding,
		}
	}

	if err := w.publisher.Publish(ctx, eventlog.TopicDetections, frame.CameraID, out); err != nil {
		metrics.PublishErrors.Inc()
		w.logger.Error("detection event lost", logging.Camera(frame.CameraID),
			slog.Int64("frame_index", frame.FrameIndex), logging.Error(err))
	}

	if err := w.bus.Ack(ctx, w.cfg.Group, e.Stream, e.ID); err != nil {
		w.logger.Warn("ack failed", logging.Camera(frame.CameraID), logging.Error(err))
	}

	metrics.FramesProcessed.WithLabelValues(frame.CameraID).Inc()
	metrics.DetectionsTotal.WithLabelValues(frame.CameraID).Add(float64(len(dets)))
}

func (w *Worker) restoreTrackers(ctx context.Context) {
	w.trackerMu.Lock()
	defer w.trackerMu.Unlock()
	for id, tr := range w.trackers {
		blob, err := w.bus.LoadCheckpoint(ctx, id)
		if err != nil || blob == nil {
			continue
		}
		if err := tr.Restore(blob); err != nil {
			w.logger.Warn("discarding bad tracker checkpoint",
				logging.Camera(id), logging.Error(err))
		}
	}
}

func (w *Worker) checkpointLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.CheckpointInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.saveTrackers(context.WithoutCancel(ctx))
			return
		case <-ticker.C:
			w.saveTrackers(ctx)
		}
	}
}

func (w *Worker) saveTrackers(ctx context.Context) {
	w.trackerMu.Lock()
	defer w.trackerMu.Unlock()
	for id, tr := range w.trackers {
		blob, err := tr.Checkpoint()
		if err != nil {
			w.logger.Warn("tracker checkpoint failed", logging.Camera(id), logging.Error(err))
			continue
		}
		if err := w.bus.SaveCheckpoint(ctx, id, blob); err != nil {
			w.logger.Warn("tracker checkpoint save failed", logging.Camera(id), logging.Error(err))
		}
	}
}
