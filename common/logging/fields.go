package logging

import "log/slog"

// Common field names for consistent logging across services.
const (
	FieldService    = "service"
	FieldCameraID   = "camera_id"
	FieldCustomerID = "customer_id"
	FieldTrackID    = "track_id"
	FieldStream     = "stream"
	FieldTopic      = "topic"
	FieldEntryID    = "entry_id"
	FieldDuration   = "duration_ms"
	FieldError      = "error"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// Camera returns a slog attribute for the camera ID.
func Camera(id string) slog.Attr {
	return slog.String(FieldCameraID, id)
}

// Customer returns a slog attribute for the customer ID.
func Customer(id string) slog.Attr {
	return slog.String(FieldCustomerID, id)
}

// Track returns a slog attribute for the tracker-assigned track ID.
func Track(id int64) slog.Attr {
	return slog.Int64(FieldTrackID, id)
}

// Stream returns a slog attribute for a FrameBus stream key.
func Stream(key string) slog.Attr {
	return slog.String(FieldStream, key)
}

// Topic returns a slog attribute for an EventLog topic.
func Topic(name string) slog.Attr {
	return slog.String(FieldTopic, name)
}

// Duration returns a slog attribute for duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

// Error returns a slog attribute for an error value.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}
