package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gate rejection reasons.
const (
	ReasonImpossibleTransition = "impossible_transition"
)

var (
	IdentityEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trinetra_resolver_identity_events_total",
			Help: "Identity events emitted by resolution outcome",
		},
		[]string{"source"},
	)

	GateRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trinetra_resolver_gate_rejections_total",
			Help: "Candidates rejected by the spatiotemporal gate",
		},
		[]string{"reason"},
	)

	SearchLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trinetra_resolver_search_seconds",
			Help:    "Similarity search round-trip time",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
	)

	SearchErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trinetra_resolver_search_errors_total",
			Help: "Similarity search failures (backend unavailable)",
		},
	)

	Flickers = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trinetra_resolver_identity_flickers_total",
			Help: "Resolved tracks demoted or swung by disagreeing assignments",
		},
	)

	AlertsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trinetra_resolver_alerts_total",
			Help: "Alert events emitted by kind",
		},
		[]string{"kind"},
	)

	DeserializationErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trinetra_resolver_deserialization_errors_total",
			Help: "Detection events skipped as malformed",
		},
	)

	RegistrySize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trinetra_resolver_registry_size",
			Help: "Active customers in the identity registry",
		},
	)

	RegistryEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trinetra_resolver_registry_evictions_total",
			Help: "Registry entries dropped by the expiry sweep",
		},
	)

	EMAUpdates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trinetra_resolver_ema_updates_total",
			Help: "Gallery embeddings refreshed by high-confidence matches",
		},
	)

	UncommittedBatches = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trinetra_resolver_uncommitted_batches",
			Help: "Consecutive batches held uncommitted during an ANN outage",
		},
	)
)
