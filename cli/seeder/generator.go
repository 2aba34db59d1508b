package seeder

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/trinetra-vision/trinetra/common/camera"
	"github.com/trinetra-vision/trinetra/common/event"
)

// frameSide matches the ingestor's resize target, so synthetic bboxes
// land in the same coordinate space as real detections.
const frameSide = 640

// Generator produces a deterministic stream of synthetic detection
// events: a fixed population of identities wandering across the camera
// set, with track IDs that persist per camera.
type Generator struct {
	cfg     *Config
	rng     *rand.Rand
	faker   *gofakeit.Faker
	cameras []camera.Camera
	// identity embeddings; detections sample one and add noise.
	faces      [][]float32
	nextTrack  map[string]int64
	liveTracks map[string]int64
	start      time.Time
}

// syntheticFloor is the fallback camera set when no cameras.yaml is
// given.
func syntheticFloor() []camera.Camera {
	return []camera.Camera{
		{ID: "entrance-01", Type: event.CameraEntrance, TargetFPS: 15},
		{ID: "aisle-03", Type: event.CameraTracking, TargetFPS: 10},
		{ID: "aisle-07", Type: event.CameraTracking, TargetFPS: 10},
		{ID: "billing-01", Type: event.CameraBilling, TargetFPS: 20},
		{ID: "billing-02", Type: event.CameraBilling, TargetFPS: 20},
	}
}

// NewGenerator builds a generator. cams may be nil for the synthetic
// floor plan.
func NewGenerator(cfg *Config, cams []camera.Camera) *Generator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if len(cams) == 0 {
		cams = syntheticFloor()
	}

	rng := rand.New(rand.NewSource(seed))
	g := &Generator{
		cfg:        cfg,
		rng:        rng,
		faker:      gofakeit.New(seed),
		cameras:    cams,
		nextTrack:  make(map[string]int64),
		liveTracks: make(map[string]int64),
		start:      time.Now(),
	}
	for i := 0; i < cfg.Identities; i++ {
		g.faces = append(g.faces, g.randomFace())
	}
	return g
}

// Next returns the i-th synthetic detection event of a count-sized run.
func (g *Generator) Next(i int) event.DetectionEvent {
	cam := g.cameras[g.rng.Intn(len(g.cameras))]

	ts := g.start
	if g.cfg.TimeSpread > 0 {
		offset := g.cfg.TimeSpread - time.Duration(i)*g.cfg.TimeSpread/time.Duration(g.cfg.Count)
		jitter := time.Duration(g.rng.Int63n(int64(time.Second)))
		ts = g.start.Add(-offset + jitter)
	}

	n := 1 + g.rng.Intn(3)
	detections := make([]event.Detection, 0, n)
	for d := 0; d < n; d++ {
		det := event.Detection{
			BBox:    g.randomBBox(),
			Conf:    0.5 + g.rng.Float64()*0.49,
			TrackID: g.trackFor(cam.ID),
		}
		if g.rng.Float64() < g.cfg.EmbeddingRate {
			det.Embedding = g.noisyFace(g.faces[g.rng.Intn(len(g.faces))])
		}
		detections = append(detections, det)
	}

	return event.DetectionEvent{
		CameraID:    cam.ID,
		CameraType:  cam.Type,
		FrameIndex:  int64(i),
		EffectiveTS: float64(ts.UnixNano()) / 1e9,
		Detections:  detections,
	}
}

// GalleryEntry pairs a synthetic identity with its gallery embedding.
type GalleryEntry struct {
	CustomerID string    `json:"customer_id"`
	Name       string    `json:"name"`
	VIP        bool      `json:"vip"`
	Embedding  []float32 `json:"embedding"`
}

// Gallery exports the synthetic identity population in the format
// `trinetra gallery load` accepts, closing the loop for local
// end-to-end runs.
func (g *Generator) Gallery() []GalleryEntry {
	entries := make([]GalleryEntry, len(g.faces))
	for i, face := range g.faces {
		entries[i] = GalleryEntry{
			CustomerID: fmt.Sprintf("cust_%04d", i+1),
			Name:       g.faker.Name(),
			VIP:        g.rng.Float64() < 0.05,
			Embedding:  face,
		}
	}
	return entries
}

// trackFor keeps tracks alive for a handful of events before rotating,
// so the resolver's history rings see realistic continuity.
func (g *Generator) trackFor(cameraID string) int64 {
	if id, ok := g.liveTracks[cameraID]; ok && g.rng.Float64() < 0.85 {
		return id
	}
	g.nextTrack[cameraID]++
	id := g.nextTrack[cameraID]
	g.liveTracks[cameraID] = id
	return id
}

func (g *Generator) randomBBox() [4]float64 {
	w := 40 + g.rng.Float64()*160
	h := 80 + g.rng.Float64()*240
	x := g.rng.Float64() * (frameSide - w)
	y := g.rng.Float64() * (frameSide - h)
	return [4]float64{x, y, x + w, y + h}
}

func (g *Generator) randomFace() []float32 {
	vec := make([]float32, event.EmbeddingDim)
	for i := range vec {
		vec[i] = float32(g.rng.NormFloat64())
	}
	event.Normalize(vec)
	return vec
}

// noisyFace perturbs an identity embedding so repeated sightings score
// high but not perfect cosine against the gallery.
func (g *Generator) noisyFace(face []float32) []float32 {
	vec := make([]float32, len(face))
	for i := range face {
		vec[i] = face[i] + float32(g.rng.NormFloat64())*0.02
	}
	event.Normalize(vec)
	return vec
}
