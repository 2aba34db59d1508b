// Package service runs the identity resolver loop: consume detection
// events with manual offset commit, resolve each embedding against the
// similarity gallery through the spatiotemporal gate and the history
// ring, and publish identity and alert events.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/trinetra-vision/trinetra/common/event"
	"github.com/trinetra-vision/trinetra/common/eventlog"
	"github.com/trinetra-vision/trinetra/common/logging"
	"github.com/trinetra-vision/trinetra/resolver/internal/config"
	"github.com/trinetra-vision/trinetra/resolver/internal/gate"
	"github.com/trinetra-vision/trinetra/resolver/internal/history"
	"github.com/trinetra-vision/trinetra/resolver/internal/metrics"
	"github.com/trinetra-vision/trinetra/resolver/internal/registry"
	"github.com/trinetra-vision/trinetra/resolver/search"
)

// Consumer is the EventLog fetch/commit surface the resolver needs.
type Consumer interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msgs ...kafka.Message) error
}

// Publisher is the EventLog publish surface.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, v any) error
}

// Resolver turns detection events into identity events. All mutable
// state is owned by the single Run goroutine.
type Resolver struct {
	consumer  Consumer
	publisher Publisher
	searcher  search.Searcher
	gate      *gate.Gate
	registry  *registry.Registry
	tracks    *history.Tracks
	searchCfg config.SearchConfig
	cfg       config.ResolveConfig
	logger    *slog.Logger

	eventsProcessed int
	lastSweep       time.Time
	uncommitted     int
}

// New wires a resolver.
func New(consumer Consumer, publisher Publisher, searcher search.Searcher, g *gate.Gate,
	searchCfg config.SearchConfig, cfg config.ResolveConfig, logger *slog.Logger) *Resolver {
	return &Resolver{
		consumer:  consumer,
		publisher: publisher,
		searcher:  searcher,
		gate:      g,
		registry:  registry.New(cfg.TemporalGateWindowS),
		tracks:    history.New(cfg.HistoryThreshold, float64(cfg.TrackStaleSeconds)),
		searchCfg: searchCfg,
		cfg:       cfg,
		logger:    logger,
		lastSweep: time.Now(),
	}
}

// Run blocks until ctx is cancelled or publishing fails past the retry
// budget (losing events is the one thing worth crashing for).
func (r *Resolver) Run(ctx context.Context) error {
	for {
		msg, err := r.consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Error("fetch failed", logging.Error(err))
			time.Sleep(time.Second)
			continue
		}

		var de event.DetectionEvent
		if err := json.Unmarshal(msg.Value, &de); err != nil {
			// Malformed events are skipped and committed; replaying them
			// can never succeed.
			metrics.DeserializationErrors.Inc()
			if err := r.consumer.Commit(ctx, msg); err != nil {
				r.logger.Warn("commit of malformed event failed", logging.Error(err))
			}
			continue
		}

		committable, err := r.resolveEvent(ctx, de)
		if err != nil {
			return err
		}

		if committable {
			if err := r.consumer.Commit(ctx, msg); err != nil {
				r.logger.Error("offset commit failed", logging.Error(err))
			} else {
				r.uncommitted = 0
			}
		} else {
			// ANN outage: the unknowns were published, but the offset
			// stays put so the detections replay after recovery.
			r.uncommitted++
			if r.cfg.MaxUncommittedFailures > 0 && r.uncommitted >= r.cfg.MaxUncommittedFailures {
				r.logger.Warn("committing past ANN outage to bound lag",
					slog.Int("uncommitted_batches", r.uncommitted))
				if err := r.consumer.Commit(ctx, msg); err == nil {
					r.uncommitted = 0
				}
			}
		}
		metrics.UncommittedBatches.Set(float64(r.uncommitted))

		r.housekeeping(ctx, de.EffectiveTS)
	}
}

// resolveEvent resolves every embedded detection in one event. The
// returned flag is false when any resolution hit an ANN outage, in
// which case the caller must not commit the offset.
func (r *Resolver) resolveEvent(ctx context.Context, de event.DetectionEvent) (bool, error) {
	committable := true
	for _, det := range de.Detections {
		if len(det.Embedding) == 0 {
			continue
		}
		res := r.resolveDetection(ctx, de, det)
		if res.annDown {
			committable = false
		}

		metrics.IdentityEvents.WithLabelValues(string(res.identity.Source)).Inc()
		if err := r.publisher.Publish(ctx, eventlog.TopicIdentities, res.identity.CustomerID, res.identity); err != nil {
			return false, err
		}

		if err := r.alerts(ctx, de, res); err != nil {
			return false, err
		}
	}
	r.eventsProcessed++
	return committable, nil
}

// resolution is the outcome of one detection.
type resolution struct {
	identity event.IdentityEvent
	vip      bool
	annDown  bool
}

// resolveDetection runs the per-detection algorithm: ANN lookup,
// threshold filter, spatiotemporal gate, history confirmation, registry
// update with EMA writeback.
func (r *Resolver) resolveDetection(ctx context.Context, de event.DetectionEvent, det event.Detection) resolution {
	unknown := func(source event.Source) resolution {
		return resolution{identity: event.IdentityEvent{
			CameraID:    de.CameraID,
			TrackID:     det.TrackID,
			EffectiveTS: de.EffectiveTS,
			CustomerID:  event.UnknownCustomer,
			Source:      source,
		}}
	}

	ef := r.searchCfg.EFDefault
	if de.CameraType == event.CameraBilling {
		ef = r.searchCfg.EFBilling
	}

	searchCtx, cancel := context.WithTimeout(ctx, r.searchCfg.Timeout())
	start := time.Now()
	matches, err := r.searcher.TopK(searchCtx, det.Embedding, r.searchCfg.TopK, ef)
	cancel()
	metrics.SearchLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SearchErrors.Inc()
		r.logger.Error("similarity search unavailable",
			logging.Camera(de.CameraID), logging.Error(err))
		res := unknown(event.SourceQdrantUnavailable)
		res.annDown = true
		return res
	}

	// Threshold filter, then gate each surviving candidate against its
	// last confirmed sighting.
	var survivor *search.Match
	crossed := false
	for i := range matches {
		m := &matches[i]
		if m.Score < r.cfg.CosineThreshold {
			continue
		}
		crossed = true

		if s, ok := r.registry.Get(m.CustomerID); ok {
			switch r.gate.Check(s.Camera, s.TS, de.CameraID, de.EffectiveTS) {
			case gate.RejectPhysics:
				metrics.GateRejections.WithLabelValues(metrics.ReasonImpossibleTransition).Inc()
				r.registry.RecordCandidate(m.CustomerID, de.CameraID, det.TrackID, de.EffectiveTS)
				continue
			case gate.Expired:
				r.registry.Delete(m.CustomerID)
			}
		}
		if survivor == nil || m.Score > survivor.Score {
			survivor = m
		}
	}

	if survivor == nil {
		if crossed {
			return unknown(event.SourceGatedUnknown)
		}
		return unknown(event.SourceInsufficientHistory)
	}

	out := r.tracks.Observe(de.CameraID, det.TrackID, de.EffectiveTS, survivor.CustomerID, survivor.Score)
	if out.Flicker {
		metrics.Flickers.Inc()
	}
	if !out.Matched {
		return unknown(event.SourceInsufficientHistory)
	}

	r.confirm(ctx, de, det, out, survivor)

	return resolution{
		identity: event.IdentityEvent{
			CameraID:    de.CameraID,
			TrackID:     det.TrackID,
			EffectiveTS: de.EffectiveTS,
			CustomerID:  out.CustomerID,
			Confidence:  out.Confidence,
			Source:      event.SourceMatched,
		},
		vip: survivor.VIP && survivor.CustomerID == out.CustomerID,
	}
}

// confirm updates the registry for a matched identity and, when the
// current sighting's own score clears the stricter EMA bar, refreshes
// the gallery embedding. The ring average decides the match; it must
// not launder a weak frame into the gallery. The blend chains across
// the session: each stored sighting embedding is the previous EMA
// state.
func (r *Resolver) confirm(ctx context.Context, de event.DetectionEvent, det event.Detection, out history.Outcome, survivor *search.Match) {
	stored := det.Embedding
	if survivor.CustomerID == out.CustomerID && survivor.Score >= r.cfg.EMAMinScore {
		if prev, ok := r.registry.Get(out.CustomerID); ok && len(prev.Embedding) == len(det.Embedding) {
			stored = emaBlend(prev.Embedding, det.Embedding, r.cfg.EMAAlpha)
		}
		if err := r.searcher.UpdateVector(ctx, out.CustomerID, stored); err != nil {
			// Gallery refresh is best-effort; the match already happened.
			r.logger.Warn("gallery update failed",
				logging.Customer(out.CustomerID), logging.Error(err))
		} else {
			metrics.EMAUpdates.Inc()
		}
	}
	r.registry.Set(out.CustomerID, de.CameraID, det.TrackID, de.EffectiveTS, stored)
	metrics.RegistrySize.Set(float64(r.registry.Len()))
}

// alerts evaluates the per-event alert triggers.
func (r *Resolver) alerts(ctx context.Context, de event.DetectionEvent, res resolution) error {
	id := res.identity

	if id.Source != event.SourceMatched && de.CameraType == event.CameraBilling {
		err := r.publishAlert(ctx, event.AlertEvent{
			Kind:     event.AlertUnknownAtBilling,
			Severity: event.SeverityHigh,
			CameraID: de.CameraID,
			TS:       de.EffectiveTS,
			Details: map[string]string{
				"source":   string(id.Source),
				"track_id": itoa(id.TrackID),
			},
		})
		if err != nil {
			return err
		}
	}

	if id.Source == event.SourceMatched && res.vip {
		customer := id.CustomerID
		err := r.publishAlert(ctx, event.AlertEvent{
			Kind:       event.AlertVIPDetected,
			Severity:   event.SeverityMedium,
			CameraID:   de.CameraID,
			CustomerID: &customer,
			TS:         de.EffectiveTS,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) publishAlert(ctx context.Context, a event.AlertEvent) error {
	metrics.AlertsEmitted.WithLabelValues(a.Kind).Inc()
	return r.publisher.Publish(ctx, eventlog.TopicAlerts, a.Kind, a)
}

// housekeeping runs the registry sweep and the false-merge check on
// their event/time cadences.
func (r *Resolver) housekeeping(ctx context.Context, now float64) {
	sweepDue := r.eventsProcessed%r.cfg.SweepEveryEvents == 0 ||
		time.Since(r.lastSweep) >= r.cfg.SweepInterval()
	if sweepDue {
		evicted := r.registry.SweepExpired(now)
		dropped := r.tracks.Sweep(now)
		if evicted > 0 || dropped > 0 {
			r.logger.Debug("sweep complete",
				slog.Int("registry_evicted", evicted), slog.Int("tracks_dropped", dropped))
		}
		metrics.RegistryEvictions.Add(float64(evicted))
		metrics.RegistrySize.Set(float64(r.registry.Len()))
		r.lastSweep = time.Now()
	}

	if r.eventsProcessed%r.cfg.FalseMergeEveryEvents == 0 {
		for _, s := range r.registry.FalseMerges(r.gate, now, float64(r.cfg.TrackStaleSeconds)) {
			customer := s.CustomerID
			err := r.publishAlert(ctx, event.AlertEvent{
				Kind:       event.AlertFalseMerge,
				Severity:   event.SeverityHigh,
				CameraID:   s.B.Camera,
				CustomerID: &customer,
				TS:         now,
				Details: map[string]string{
					"camera_a": s.A.Camera,
					"camera_b": s.B.Camera,
					"track_a":  itoa(s.A.TrackID),
					"track_b":  itoa(s.B.TrackID),
				},
			})
			if err != nil {
				r.logger.Error("false-merge alert publish failed", logging.Error(err))
			}
		}
	}
}

func emaBlend(old, current []float32, alpha float64) []float32 {
	blended := make([]float32, len(old))
	for i := range old {
		blended[i] = float32((1-alpha)*float64(old[i]) + alpha*float64(current[i]))
	}
	event.Normalize(blended)
	return blended
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
