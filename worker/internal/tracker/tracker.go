// Package tracker assigns stable per-camera track IDs to detections by
// greedy IoU association across consecutive frames. State is
// per-camera and checkpointable so clean restarts keep track identity.
package tracker

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/trinetra-vision/trinetra/worker/internal/operator"
)

// matchThreshold is the minimum IoU to continue an existing track.
const matchThreshold = 0.3

// Tracker tracks one camera. Not safe for concurrent use; the worker
// owns one tracker per camera on a single goroutine.
type Tracker struct {
	cameraID   string
	staleAfter float64
	nextID     int64
	tracks     map[int64]*track
}

type track struct {
	ID       int64         `json:"id"`
	BBox     operator.BBox `json:"bbox"`
	LastSeen float64       `json:"last_seen"`
}

// checkpoint is the serialized tracker state.
type checkpoint struct {
	CameraID string   `json:"camera_id"`
	NextID   int64    `json:"next_id"`
	Tracks   []*track `json:"tracks"`
}

// New builds a tracker for a camera. staleAfter is in seconds of
// effective timestamp; tracks unseen that long are evicted.
func New(cameraID string, staleAfter float64) *Tracker {
	return &Tracker{
		cameraID:   cameraID,
		staleAfter: staleAfter,
		nextID:     1,
		tracks:     make(map[int64]*track),
	}
}

// Assign matches boxes against live tracks and returns one track ID per
// box, positionally aligned. Unmatched boxes open new tracks. ts is the
// frame's effective timestamp in seconds; it also drives stale eviction.
func (t *Tracker) Assign(ts float64, boxes []operator.BBox) []int64 {
	t.evict(ts)

	type pair struct {
		box   int
		track int64
		iou   float64
	}
	var pairs []pair
	for i, b := range boxes {
		for id, tr := range t.tracks {
			if iou := IoU(b, tr.BBox); iou >= matchThreshold {
				pairs = append(pairs, pair{box: i, track: id, iou: iou})
			}
		}
	}
	sort.Slice(pairs, func(a, b int) bool { return pairs[a].iou > pairs[b].iou })

	ids := make([]int64, len(boxes))
	usedBox := make(map[int]bool, len(boxes))
	usedTrack := make(map[int64]bool, len(t.tracks))
	for _, p := range pairs {
		if usedBox[p.box] || usedTrack[p.track] {
			continue
		}
		usedBox[p.box] = true
		usedTrack[p.track] = true
		ids[p.box] = p.track
		tr := t.tracks[p.track]
		tr.BBox = boxes[p.box]
		tr.LastSeen = ts
	}

	for i, b := range boxes {
		if usedBox[i] {
			continue
		}
		id := t.nextID
		t.nextID++
		t.tracks[id] = &track{ID: id, BBox: b, LastSeen: ts}
		ids[i] = id
	}
	return ids
}

// Live returns the number of live tracks.
func (t *Tracker) Live() int {
	return len(t.tracks)
}

func (t *Tracker) evict(ts float64) {
	for id, tr := range t.tracks {
		if ts-tr.LastSeen > t.staleAfter {
			delete(t.tracks, id)
		}
	}
}

// Checkpoint serializes the tracker state.
func (t *Tracker) Checkpoint() ([]byte, error) {
	cp := checkpoint{CameraID: t.cameraID, NextID: t.nextID}
	for _, tr := range t.tracks {
		cp.Tracks = append(cp.Tracks, tr)
	}
	blob, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("tracker: checkpoint %s: %w", t.cameraID, err)
	}
	return blob, nil
}

// Restore replaces the tracker state from a checkpoint blob. A blob
// saved for a different camera is rejected.
func (t *Tracker) Restore(blob []byte) error {
	var cp checkpoint
	if err := json.Unmarshal(blob, &cp); err != nil {
		return fmt.Errorf("tracker: restore %s: %w", t.cameraID, err)
	}
	if cp.CameraID != t.cameraID {
		return fmt.Errorf("tracker: checkpoint for %s applied to %s", cp.CameraID, t.cameraID)
	}
	t.nextID = cp.NextID
	if t.nextID < 1 {
		t.nextID = 1
	}
	t.tracks = make(map[int64]*track, len(cp.Tracks))
	for _, tr := range cp.Tracks {
		t.tracks[tr.ID] = tr
	}
	return nil
}

// IoU computes intersection-over-union of two boxes.
func IoU(a, b operator.BBox) float64 {
	x1 := max(a[0], b[0])
	y1 := max(a[1], b[1])
	x2 := min(a[2], b[2])
	y2 := min(a[3], b[3])
	if x2 <= x1 || y2 <= y1 {
		return 0
	}
	inter := (x2 - x1) * (y2 - y1)
	areaA := (a[2] - a[0]) * (a[3] - a[1])
	areaB := (b[2] - b[0]) * (b[3] - b[1])
	union := areaA + areaB - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
