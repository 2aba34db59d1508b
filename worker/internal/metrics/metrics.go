package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trinetra_worker_frames_processed_total",
			Help: "Frames run through detection per camera",
		},
		[]string{"camera_id"},
	)

	DetectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trinetra_worker_detections_total",
			Help: "Person detections emitted per camera",
		},
		[]string{"camera_id"},
	)

	BatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trinetra_worker_batch_size",
			Help:    "Micro-batch sizes at flush time",
			Buckets: []float64{1, 2, 3, 4, 8},
		},
	)

	InferenceLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trinetra_worker_inference_seconds",
			Help:    "Model server round-trip time per stage",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"stage"},
	)

	OOMRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trinetra_worker_oom_retries_total",
			Help: "Batches halved and retried after model server OOM",
		},
	)

	InvalidEmbeddings = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trinetra_worker_invalid_embeddings_total",
			Help: "Embeddings discarded for failing the unit-norm check",
		},
	)

	PublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trinetra_worker_publish_errors_total",
			Help: "Detection events that failed to reach the EventLog",
		},
	)

	ReclaimedEntries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trinetra_worker_reclaimed_entries_total",
			Help: "Pending frames taken over from crashed consumers at startup",
		},
	)

	// GPUMemoryBytes stays zero unless a sampler is wired via PollGPU.
	GPUMemoryBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trinetra_worker_gpu_memory_bytes",
			Help: "GPU memory in use on the inference device",
		},
	)
)

// PollGPU feeds GPUMemoryBytes from sample every interval until ctx is
// done. Deployments without GPU telemetry simply never start it.
func PollGPU(ctx context.Context, interval time.Duration, sample func() (float64, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if used, err := sample(); err == nil {
				GPUMemoryBytes.Set(used)
			}
		}
	}
}
