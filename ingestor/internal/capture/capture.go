// Package capture acquires decoded video frames from RTSP cameras.
// The production source runs a GStreamer pipeline; tests use a
// synthetic source.
package capture

import (
	"context"
	"time"
)

// Frame is one decoded image handed to the ingest pipeline. Data is
// packed RGB, 3 bytes per pixel.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Width     int
	Height    int
	Data      []byte
}

// Stats are cumulative per-source counters. All fields are read with
// atomic snapshots; safe to call from any goroutine.
type Stats struct {
	Frames     uint64
	Dropped    uint64
	Reconnects uint64
	Connected  bool
}

// Source is the contract for video stream acquisition.
//
// Start returns immediately; frames arrive asynchronously on the
// returned channel, which stays open until Stop. When the internal
// buffer is full the newest frame is dropped rather than queued, so
// the consumer always sees recent frames.
type Source interface {
	Start(ctx context.Context) (<-chan Frame, error)
	Stop() error
	Stats() Stats
}
