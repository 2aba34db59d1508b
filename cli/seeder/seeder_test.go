package seeder

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trinetra-vision/trinetra/common/camera"
	"github.com/trinetra-vision/trinetra/common/event"
	"github.com/trinetra-vision/trinetra/common/eventlog"
)

func testConfig() *Config {
	return &Config{
		Bootstrap:     []string{"localhost:9092"},
		Count:         50,
		TimeSpread:    time.Hour,
		Identities:    5,
		EmbeddingRate: 1.0,
		Seed:          1,
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seeder.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
bootstrap:
  - kafka-1:9092
  - kafka-2:9092
count: 250
identities: 10
embedding_rate: 0.5
time_spread: 30m
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Bootstrap)
	assert.Equal(t, 250, cfg.Count)
	assert.Equal(t, 10, cfg.Identities)
	assert.Equal(t, 0.5, cfg.EmbeddingRate)
	assert.Equal(t, 30*time.Minute, cfg.TimeSpread)
}

func TestConfigValidate(t *testing.T) {
	cfg := testConfig()
	cfg.Count = 0
	assert.Error(t, cfg.Validate())

	cfg = testConfig()
	cfg.EmbeddingRate = 1.5
	assert.Error(t, cfg.Validate())

	cfg = testConfig()
	cfg.Bootstrap = nil
	assert.Error(t, cfg.Validate())

	assert.NoError(t, testConfig().Validate())
}

func TestGeneratorIsDeterministicForFixedSeed(t *testing.T) {
	a := NewGenerator(testConfig(), nil)
	b := NewGenerator(testConfig(), nil)
	b.start = a.start

	for i := 0; i < 10; i++ {
		ea, err := json.Marshal(a.Next(i))
		require.NoError(t, err)
		eb, err := json.Marshal(b.Next(i))
		require.NoError(t, err)
		assert.JSONEq(t, string(ea), string(eb))
	}
}

func TestGeneratorEmbeddingsAreUnitNorm(t *testing.T) {
	gen := NewGenerator(testConfig(), nil)
	for i := 0; i < 20; i++ {
		de := gen.Next(i)
		require.NotEmpty(t, de.Detections)
		for _, d := range de.Detections {
			require.Len(t, d.Embedding, event.EmbeddingDim)
			assert.True(t, event.IsUnitNorm(d.Embedding))
		}
	}
}

func TestGeneratorHonorsEmbeddingRateZero(t *testing.T) {
	cfg := testConfig()
	cfg.EmbeddingRate = 0
	gen := NewGenerator(cfg, nil)
	for i := 0; i < 20; i++ {
		for _, d := range gen.Next(i).Detections {
			assert.Empty(t, d.Embedding)
		}
	}
}

func TestGeneratorUsesConfiguredCameras(t *testing.T) {
	cams := []camera.Camera{
		{ID: "dock-01", Type: event.CameraTracking, TargetFPS: 10},
		{ID: "dock-02", Type: event.CameraTracking, TargetFPS: 10},
	}
	gen := NewGenerator(testConfig(), cams)
	for i := 0; i < 20; i++ {
		de := gen.Next(i)
		assert.Contains(t, []string{"dock-01", "dock-02"}, de.CameraID)
		assert.Equal(t, event.CameraTracking, de.CameraType)
	}
}

func TestGeneratorBBoxesInsideFrame(t *testing.T) {
	gen := NewGenerator(testConfig(), nil)
	for i := 0; i < 20; i++ {
		for _, d := range gen.Next(i).Detections {
			assert.GreaterOrEqual(t, d.BBox[0], 0.0)
			assert.GreaterOrEqual(t, d.BBox[1], 0.0)
			assert.LessOrEqual(t, d.BBox[2], float64(frameSide))
			assert.LessOrEqual(t, d.BBox[3], float64(frameSide))
			assert.Less(t, d.BBox[0], d.BBox[2])
			assert.Less(t, d.BBox[1], d.BBox[3])
		}
	}
}

type countingPublisher struct {
	topics []string
	keys   []string
}

func (p *countingPublisher) Publish(ctx context.Context, topic, key string, v any) error {
	p.topics = append(p.topics, topic)
	p.keys = append(p.keys, key)
	return nil
}

func TestRunnerPublishesAllEvents(t *testing.T) {
	cfg := testConfig()
	pub := &countingPublisher{}
	r := &Runner{Config: cfg, Publisher: pub}

	require.NoError(t, r.Run(context.Background(), ""))
	require.Len(t, pub.topics, cfg.Count)
	for i, topic := range pub.topics {
		assert.Equal(t, eventlog.TopicDetections, topic)
		assert.NotEmpty(t, pub.keys[i], "events are keyed by camera id")
	}
}

func TestRunnerWritesGalleryExport(t *testing.T) {
	cfg := testConfig()
	out := filepath.Join(t.TempDir(), "gallery.json")
	r := &Runner{Config: cfg, Publisher: &countingPublisher{}}

	require.NoError(t, r.Run(context.Background(), out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var entries []GalleryEntry
	require.NoError(t, json.Unmarshal(data, &entries))
	require.Len(t, entries, cfg.Identities)
	for _, e := range entries {
		assert.NotEmpty(t, e.CustomerID)
		assert.True(t, event.IsUnitNorm(e.Embedding))
	}
}
