// Package server exposes the ingestor's operational HTTP surface:
// health, readiness, metrics and a read-only camera status view.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trinetra-vision/trinetra/common/camera"
	"github.com/trinetra-vision/trinetra/ingestor/internal/capture"
)

// CameraStatus is one row of the /cameras response.
type CameraStatus struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	TargetFPS  int    `json:"target_fps"`
	Connected  bool   `json:"connected"`
	Frames     uint64 `json:"frames"`
	Dropped    uint64 `json:"dropped"`
	Reconnects uint64 `json:"reconnects"`
}

// Handler serves the operational endpoints.
type Handler struct {
	cameras []camera.Camera
	sources map[string]capture.Source
	ping    func(context.Context) error
}

// NewHandler builds the handler. ping is called by /readyz to verify
// the FrameBus connection.
func NewHandler(cameras []camera.Camera, sources map[string]capture.Source, ping func(context.Context) error) *Handler {
	return &Handler{cameras: cameras, sources: sources, ping: ping}
}

// Health reports process liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Ready reports whether the FrameBus is reachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Cameras lists configured cameras with live capture counters.
func (h *Handler) Cameras(w http.ResponseWriter, r *http.Request) {
	out := make([]CameraStatus, 0, len(h.cameras))
	for _, cam := range h.cameras {
		status := CameraStatus{
			ID:        cam.ID,
			Type:      string(cam.Type),
			TargetFPS: cam.TargetFPS,
		}
		if src, ok := h.sources[cam.ID]; ok {
			stats := src.Stats()
			status.Connected = stats.Connected
			status.Frames = stats.Frames
			status.Dropped = stats.Dropped
			status.Reconnects = stats.Reconnects
		}
		out = append(out, status)
	}
	writeJSON(w, http.StatusOK, map[string]any{"cameras": out})
}

// NewRouter constructs a ServeMux with the ingestor routes registered.
func NewRouter(h *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/healthz", h.Health)
	mux.HandleFunc("/readyz", h.Ready)
	mux.HandleFunc("/cameras", h.Cameras)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
