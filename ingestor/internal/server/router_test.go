package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trinetra-vision/trinetra/common/camera"
	"github.com/trinetra-vision/trinetra/common/event"
	"github.com/trinetra-vision/trinetra/ingestor/internal/capture"
)

type stubSource struct {
	stats capture.Stats
}

func (s *stubSource) Start(ctx context.Context) (<-chan capture.Frame, error) { return nil, nil }
func (s *stubSource) Stop() error                                             { return nil }
func (s *stubSource) Stats() capture.Stats                                    { return s.stats }

func testHandler(pingErr error) *Handler {
	cams := []camera.Camera{
		{ID: "cam-1", Type: event.CameraBilling, RTSPURL: "rtsp://x", TargetFPS: 15},
		{ID: "cam-2", Type: event.CameraTracking, RTSPURL: "rtsp://y", TargetFPS: 10},
	}
	sources := map[string]capture.Source{
		"cam-1": &stubSource{stats: capture.Stats{Frames: 42, Dropped: 3, Reconnects: 1, Connected: true}},
	}
	return NewHandler(cams, sources, func(context.Context) error { return pingErr })
}

func TestHealthEndpoints(t *testing.T) {
	router := NewRouter(testHandler(nil))

	for _, path := range []string{"/health", "/healthz", "/readyz"} {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}

func TestReadyzReportsBusOutage(t *testing.T) {
	router := NewRouter(testHandler(errors.New("connection refused")))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestCamerasStatus(t *testing.T) {
	router := NewRouter(testHandler(nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cameras", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Cameras []CameraStatus `json:"cameras"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Cameras, 2)

	assert.Equal(t, "cam-1", body.Cameras[0].ID)
	assert.True(t, body.Cameras[0].Connected)
	assert.Equal(t, uint64(42), body.Cameras[0].Frames)

	// No live source registered for cam-2: counters stay zero.
	assert.Equal(t, "cam-2", body.Cameras[1].ID)
	assert.False(t, body.Cameras[1].Connected)
}

func TestMetricsEndpoint(t *testing.T) {
	router := NewRouter(testHandler(nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
