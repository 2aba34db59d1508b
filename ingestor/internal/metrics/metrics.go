package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons for FramesDropped.
const (
	ReasonInvalid      = "invalid"
	ReasonSampled      = "sampled"
	ReasonBurst        = "burst"
	ReasonQueueFull    = "queue_full"
	ReasonPublishError = "publish_error"
)

var (
	FramesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trinetra_ingestor_frames_total",
			Help: "Total frames published to the FrameBus per camera",
		},
		[]string{"camera_id", "camera_type"},
	)

	FramesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trinetra_ingestor_frames_dropped_total",
			Help: "Frames dropped before reaching the FrameBus",
		},
		[]string{"camera_id", "reason"},
	)

	Reconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trinetra_ingestor_reconnects_total",
			Help: "RTSP stream reconnect attempts per camera",
		},
		[]string{"camera_id"},
	)

	StreamFillRatio = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trinetra_stream_fill_ratio",
			Help: "Current FrameBus fill ratio per camera",
		},
		[]string{"camera_id"},
	)

	FrameLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trinetra_ingestor_frame_latency_seconds",
			Help:    "Time from frame capture to FrameBus publish",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		},
	)
)
