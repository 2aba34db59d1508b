package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trinetra-vision/trinetra/common/event"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

const validCameras = `
cameras:
  - id: entrance-01
    type: entrance
    rtsp_url: rtsp://10.20.1.10:554/stream
    target_fps: 15
  - id: billing-01
    type: billing
    rtsp_url: rtsp://10.20.1.20:554/stream
    target_fps: 20
`

func TestCamerasValidateAcceptsGoodConfig(t *testing.T) {
	path := writeTempFile(t, "cameras.yaml", validCameras)
	assert.NoError(t, execute(t, "cameras", "validate", path))
}

func TestCamerasValidateRejectsUnknownType(t *testing.T) {
	path := writeTempFile(t, "cameras.yaml", `
cameras:
  - id: cam-1
    type: thermal
    rtsp_url: rtsp://10.20.1.10:554/stream
`)
	err := execute(t, "cameras", "validate", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown type")
}

func TestCamerasValidateEnforcesAllowlist(t *testing.T) {
	path := writeTempFile(t, "cameras.yaml", validCameras)
	defer func() { camerasAllowlist = "" }()

	err := execute(t, "cameras", "validate", "--allowlist", "192.168.0.0/16", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in allowed ranges")
}

func galleryFile(t *testing.T, embedding []float32) string {
	t.Helper()
	data, err := json.Marshal([]galleryEntry{
		{CustomerID: "cust_0001", VIP: true, Embedding: embedding},
	})
	require.NoError(t, err)
	return writeTempFile(t, "gallery.json", string(data))
}

func unitEmbedding() []float32 {
	vec := make([]float32, event.EmbeddingDim)
	vec[0] = 1
	return vec
}

func TestGalleryLoadRejectsNonUnitEmbedding(t *testing.T) {
	vec := unitEmbedding()
	vec[0] = 2
	path := galleryFile(t, vec)

	err := execute(t, "gallery", "load", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not unit-norm")
}

func TestGalleryLoadUpsertsEntries(t *testing.T) {
	upserts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			upserts++
		}
		fmt.Fprint(w, `{"status":"ok"}`)
	}))
	defer srv.Close()
	defer func() { gallerySearchURL = "http://localhost:6333" }()

	path := galleryFile(t, unitEmbedding())
	require.NoError(t, execute(t, "gallery", "load", "--search-url", srv.URL, path))
	assert.Equal(t, 1, upserts)
}
