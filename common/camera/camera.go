// Package camera loads and validates the static per-camera
// configuration. The camera set is immutable for a service lifetime;
// it is reloaded only on restart.
package camera

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/trinetra-vision/trinetra/common/event"
)

// Camera is one configured RTSP input.
type Camera struct {
	ID        string           `yaml:"id"`
	Type      event.CameraType `yaml:"type"`
	RTSPURL   string           `yaml:"rtsp_url"`
	TargetFPS int              `yaml:"target_fps"`
	// Priority tier: 0 highest, 5 lowest.
	Priority int `yaml:"priority"`
}

type cameraFile struct {
	Cameras []Camera `yaml:"cameras"`
}

// Load reads and validates a cameras.yaml file.
func Load(path string) ([]Camera, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("camera: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse validates raw YAML camera config.
func Parse(data []byte) ([]Camera, error) {
	var file cameraFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("camera: parse yaml: %w", err)
	}
	if len(file.Cameras) == 0 {
		return nil, fmt.Errorf("camera: no cameras configured")
	}

	seen := make(map[string]bool, len(file.Cameras))
	for i := range file.Cameras {
		cam := &file.Cameras[i]
		if cam.ID == "" {
			return nil, fmt.Errorf("camera: entry %d missing id", i)
		}
		if seen[cam.ID] {
			return nil, fmt.Errorf("camera: duplicate id %q", cam.ID)
		}
		seen[cam.ID] = true
		if !cam.Type.Valid() {
			return nil, fmt.Errorf("camera %s: unknown type %q", cam.ID, cam.Type)
		}
		if cam.RTSPURL == "" {
			return nil, fmt.Errorf("camera %s: missing rtsp_url", cam.ID)
		}
		if cam.TargetFPS <= 0 {
			cam.TargetFPS = 15
		}
		if cam.Priority < 0 || cam.Priority > 5 {
			return nil, fmt.Errorf("camera %s: priority %d out of range [0,5]", cam.ID, cam.Priority)
		}
	}
	return file.Cameras, nil
}

// IDs returns the camera IDs in config order.
func IDs(cams []Camera) []string {
	ids := make([]string, len(cams))
	for i, c := range cams {
		ids[i] = c.ID
	}
	return ids
}
