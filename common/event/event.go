// Package event defines the wire types shared by the TRINETRA core
// services: detection events published by the inference worker, identity
// and alert events published by the identity resolver.
//
// All events are JSON on the wire and partition-keyed as documented on
// each type.
package event

// EmbeddingDim is the dimensionality of face embeddings on the wire.
const EmbeddingDim = 512

// UnknownCustomer is the customer_id emitted when no identity resolved.
const UnknownCustomer = "UNKNOWN"

// CameraType classifies a configured camera.
type CameraType string

const (
	CameraEntrance    CameraType = "entrance"
	CameraFaceCapture CameraType = "face_capture"
	CameraTracking    CameraType = "tracking"
	CameraBilling     CameraType = "billing"
	CameraVehicle     CameraType = "vehicle"
	CameraEmotion     CameraType = "emotion"
)

// Valid reports whether the camera type is one of the known values.
func (t CameraType) Valid() bool {
	switch t {
	case CameraEntrance, CameraFaceCapture, CameraTracking,
		CameraBilling, CameraVehicle, CameraEmotion:
		return true
	}
	return false
}

// Priority reports whether frames from this camera type bypass the
// adaptive sampler drop branch. Billing and entrance feeds carry
// financial and footfall correlation and may only be dropped by the
// burst suppressor.
func (t CameraType) Priority() bool {
	return t == CameraBilling || t == CameraEntrance
}

// Detection is one person detected in one frame. The embedding is
// present only when a face crop was extractable, and must be
// L2-normalized (see Validate).
type Detection struct {
	BBox      [4]float64 `json:"bbox"`
	Conf      float64    `json:"conf"`
	TrackID   int64      `json:"track_id,omitempty"`
	Embedding []float32  `json:"embedding,omitempty"`
}

// DetectionEvent is the single record published per processed frame.
// Partition key: camera_id.
type DetectionEvent struct {
	CameraID    string      `json:"camera_id"`
	CameraType  CameraType  `json:"camera_type,omitempty"`
	FrameIndex  int64       `json:"frame_index"`
	EffectiveTS float64     `json:"effective_ts"`
	Detections  []Detection `json:"detections"`
}

// Source enumerates the outcome of one identity resolution. Every
// resolved detection produces exactly one IdentityEvent; callers branch
// on Source, never on errors.
type Source string

const (
	SourceMatched             Source = "matched"
	SourceGatedUnknown        Source = "gated_unknown"
	SourceQdrantUnavailable   Source = "qdrant_unavailable"
	SourceInsufficientHistory Source = "insufficient_history"
)

// IdentityEvent is published per resolved detection.
// Partition key: customer_id.
type IdentityEvent struct {
	CameraID    string  `json:"camera_id"`
	TrackID     int64   `json:"track_id"`
	EffectiveTS float64 `json:"effective_ts"`
	CustomerID  string  `json:"customer_id"`
	Confidence  float64 `json:"confidence"`
	Source      Source  `json:"source"`
}

// Alert kinds.
const (
	AlertUnknownAtBilling = "UNKNOWN_AT_BILLING"
	AlertFalseMerge       = "FALSE_MERGE_SUSPECT"
	AlertVIPDetected      = "VIP_DETECTED"
	AlertDriftWarning     = "DRIFT_WARNING"
)

// Alert severities.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// AlertEvent is published on policy-triggered conditions.
// Partition key: kind.
type AlertEvent struct {
	Kind       string            `json:"kind"`
	Severity   string            `json:"severity"`
	CameraID   string            `json:"camera_id"`
	CustomerID *string           `json:"customer_id"`
	TS         float64           `json:"ts"`
	Details    map[string]string `json:"details,omitempty"`
}
