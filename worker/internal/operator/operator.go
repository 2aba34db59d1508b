// Package operator defines the model inference contracts for the
// worker: person detection on full frames and face embedding on crops.
// The production implementation calls an HTTP model server; tests use
// in-memory fakes.
package operator

import (
	"context"
	"errors"
)

// ErrOOM signals the model server ran out of accelerator memory on a
// batch. The caller halves the batch and retries once before failing.
var ErrOOM = errors.New("operator: out of memory")

// CropSize is the face crop side length expected by the embedder.
const CropSize = 112

// BBox is [x1, y1, x2, y2] in pixels of the 640x640 inference frame.
type BBox [4]float64

// RawDetection is one person found in one frame, before tracking.
type RawDetection struct {
	BBox BBox
	Conf float64
	// FaceJPEG is the 112x112 aligned face crop, empty when no face was
	// extractable from the detection.
	FaceJPEG []byte
	// Embedding is filled in after the embed stage.
	Embedding []float32
}

// Detector finds people in a batch of JPEG frames. Results are
// positionally aligned with the input: result[i] holds the detections
// of frames[i].
type Detector interface {
	Detect(ctx context.Context, frames [][]byte) ([][]RawDetection, error)
}

// Embedder produces L2-normalized face embeddings for a batch of JPEG
// face crops, positionally aligned with the input.
type Embedder interface {
	Embed(ctx context.Context, crops [][]byte) ([][]float32, error)
}
