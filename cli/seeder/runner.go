package seeder

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/trinetra-vision/trinetra/common/camera"
	"github.com/trinetra-vision/trinetra/common/eventlog"
)

// Publisher is the event log publish surface the runner needs.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, v any) error
}

// Runner drives the seeding process.
type Runner struct {
	Config    *Config
	Publisher Publisher
}

// NewRunner creates a runner with a Kafka producer for the configured
// brokers.
func NewRunner(config *Config) *Runner {
	return &Runner{
		Config:    config,
		Publisher: eventlog.NewProducer(config.Bootstrap),
	}
}

// Run generates and publishes the configured number of detection
// events. galleryOut, when non-empty, also writes the synthetic
// identity population as a gallery export file.
func (r *Runner) Run(ctx context.Context, galleryOut string) error {
	var cams []camera.Camera
	if r.Config.CamerasConfig != "" {
		loaded, err := camera.Load(r.Config.CamerasConfig)
		if err != nil {
			return fmt.Errorf("load cameras: %w", err)
		}
		cams = loaded
	}

	gen := NewGenerator(r.Config, cams)

	log.Printf("Starting detection seeder:")
	log.Printf("  Brokers: %v", r.Config.Bootstrap)
	log.Printf("  Event count: %d", r.Config.Count)
	log.Printf("  Identities: %d", r.Config.Identities)
	log.Printf("  Embedding rate: %.2f", r.Config.EmbeddingRate)
	log.Printf("  Time spread: %v", r.Config.TimeSpread)

	if galleryOut != "" {
		if err := writeGallery(galleryOut, gen.Gallery()); err != nil {
			return err
		}
		log.Printf("  Gallery export: %s", galleryOut)
	}

	successCount := 0
	failCount := 0
	progressEvery := r.Config.Count / 20
	if progressEvery < 100 {
		progressEvery = 100
	}

	for i := 0; i < r.Config.Count; i++ {
		if ctx.Err() != nil {
			break
		}
		de := gen.Next(i)
		if err := r.Publisher.Publish(ctx, eventlog.TopicDetections, de.CameraID, de); err != nil {
			log.Printf("Failed to publish event %d: %v", i, err)
			failCount++
		} else {
			successCount++
			if successCount%progressEvery == 0 {
				log.Printf("Progress: %d/%d events published (%.1f%%)",
					successCount, r.Config.Count,
					float64(successCount)*100.0/float64(r.Config.Count))
			}
		}

		if r.Config.Interval > 0 && i < r.Config.Count-1 {
			select {
			case <-time.After(r.Config.Interval):
			case <-ctx.Done():
			}
		}
	}

	log.Printf("Seeding complete:")
	log.Printf("  Success: %d events", successCount)
	log.Printf("  Failed: %d events", failCount)

	if failCount > 0 {
		return fmt.Errorf("%d of %d events failed to publish", failCount, r.Config.Count)
	}
	return nil
}

func writeGallery(path string, entries []GalleryEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal gallery: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write gallery: %w", err)
	}
	return nil
}
