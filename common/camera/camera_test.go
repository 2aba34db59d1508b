package camera

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trinetra-vision/trinetra/common/event"
)

const validYAML = `
cameras:
  - id: cam_entrance_01
    type: entrance
    rtsp_url: rtsp://10.0.1.10:554/stream
    target_fps: 15
    priority: 0
  - id: cam_billing_01
    type: billing
    rtsp_url: rtsp://10.0.1.11:554/stream
    target_fps: 10
    priority: 1
`

func TestParse(t *testing.T) {
	cams, err := Parse([]byte(validYAML))
	require.NoError(t, err)
	require.Len(t, cams, 2)

	assert.Equal(t, "cam_entrance_01", cams[0].ID)
	assert.Equal(t, event.CameraEntrance, cams[0].Type)
	assert.Equal(t, 15, cams[0].TargetFPS)
	assert.Equal(t, []string{"cam_entrance_01", "cam_billing_01"}, IDs(cams))
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", `cameras: []`},
		{"missing id", "cameras:\n  - type: entrance\n    rtsp_url: rtsp://10.0.0.1/s"},
		{"duplicate id", "cameras:\n  - id: a\n    type: entrance\n    rtsp_url: rtsp://10.0.0.1/s\n  - id: a\n    type: billing\n    rtsp_url: rtsp://10.0.0.2/s"},
		{"bad type", "cameras:\n  - id: a\n    type: drone\n    rtsp_url: rtsp://10.0.0.1/s"},
		{"missing url", "cameras:\n  - id: a\n    type: entrance"},
		{"priority out of range", "cameras:\n  - id: a\n    type: entrance\n    rtsp_url: rtsp://10.0.0.1/s\n    priority: 9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParseDefaultsFPS(t *testing.T) {
	cams, err := Parse([]byte("cameras:\n  - id: a\n    type: tracking\n    rtsp_url: rtsp://10.0.0.1/s"))
	require.NoError(t, err)
	assert.Equal(t, 15, cams[0].TargetFPS)
}

func TestAllowlist(t *testing.T) {
	al, err := ParseAllowlist([]string{"10.0.1.0/24", "192.168.0.0/16"})
	require.NoError(t, err)

	assert.NoError(t, al.Validate("rtsp://10.0.1.10:554/stream"))
	assert.NoError(t, al.Validate("rtsp://192.168.4.2/live"))
	assert.Error(t, al.Validate("rtsp://8.8.8.8/stream"))
	assert.Error(t, al.Validate("rtsp://camera.example.com/stream"), "hostnames rejected with allowlist")
	assert.Error(t, al.Validate("http://10.0.1.10/stream"))
}

func TestAllowlistEmptyPermitsAll(t *testing.T) {
	al, err := ParseAllowlist(nil)
	require.NoError(t, err)
	assert.NoError(t, al.Validate("rtsp://camera.example.com/stream"))
}

func TestAllowlistBadCIDR(t *testing.T) {
	_, err := ParseAllowlist([]string{"not-a-cidr"})
	assert.Error(t, err)
}
