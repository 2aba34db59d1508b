package framebus

import (
	"fmt"
	"strconv"

	"github.com/trinetra-vision/trinetra/common/event"
)

// FrameMessage is the payload carried by one FrameBus entry: a single
// JPEG-encoded 640x640 frame plus its metadata. camera_type travels
// with the frame so the worker can stamp DetectionEvents without a
// camera-config dependency.
type FrameMessage struct {
	CameraID   string
	CameraType event.CameraType
	FrameIndex int64
	IngestTS   float64
	FrameTS    float64 // camera-reported; 0 means absent
	JPEG       []byte
}

// EffectiveTS returns the camera-reported timestamp when present,
// falling back to the ingestor wall clock.
func (m FrameMessage) EffectiveTS() float64 {
	if m.FrameTS > 0 {
		return m.FrameTS
	}
	return m.IngestTS
}

func (m FrameMessage) values() map[string]interface{} {
	vals := map[string]interface{}{
		"camera_id":   m.CameraID,
		"camera_type": string(m.CameraType),
		"frame_index": strconv.FormatInt(m.FrameIndex, 10),
		"ingest_ts":   strconv.FormatFloat(m.IngestTS, 'f', -1, 64),
		"frame":       string(m.JPEG),
	}
	if m.FrameTS > 0 {
		vals["frame_ts"] = strconv.FormatFloat(m.FrameTS, 'f', -1, 64)
	}
	return vals
}

func parseMessage(values map[string]interface{}) (FrameMessage, error) {
	var msg FrameMessage

	str := func(key string) string {
		if v, ok := values[key].(string); ok {
			return v
		}
		return ""
	}

	msg.CameraID = str("camera_id")
	if msg.CameraID == "" {
		return msg, fmt.Errorf("framebus: entry missing camera_id")
	}
	msg.CameraType = event.CameraType(str("camera_type"))

	frame := str("frame")
	if frame == "" {
		return msg, fmt.Errorf("framebus: entry for %s missing frame bytes", msg.CameraID)
	}
	msg.JPEG = []byte(frame)

	if v := str("frame_index"); v != "" {
		idx, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return msg, fmt.Errorf("framebus: bad frame_index %q: %w", v, err)
		}
		msg.FrameIndex = idx
	}
	if v := str("ingest_ts"); v != "" {
		ts, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return msg, fmt.Errorf("framebus: bad ingest_ts %q: %w", v, err)
		}
		msg.IngestTS = ts
	}
	if v := str("frame_ts"); v != "" {
		ts, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return msg, fmt.Errorf("framebus: bad frame_ts %q: %w", v, err)
		}
		msg.FrameTS = ts
	}
	return msg, nil
}
