// detection-seeder floods the trinetra.detections topic with synthetic
// events for load and soak testing. The richer configuration cascade
// lives in `trinetra seed`; this tool is flags-only for CI scripts.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/trinetra-vision/trinetra/cli/seeder"
)

var (
	bootstrap     = flag.String("bootstrap", "localhost:9092", "comma-separated Kafka brokers")
	count         = flag.Int("count", 1000, "number of events to generate")
	interval      = flag.Duration("interval", 0, "interval between events (0 for full speed)")
	timeSpread    = flag.Duration("time-spread", time.Hour, "spread events over this period (0 for real-time)")
	identities    = flag.Int("identities", 25, "distinct synthetic identities")
	embeddingRate = flag.Float64("embedding-rate", 0.8, "fraction of detections carrying embeddings")
	camerasConfig = flag.String("cameras", "", "cameras.yaml to source camera IDs from")
	galleryOut    = flag.String("gallery-out", "", "write the synthetic gallery export here")
	seed          = flag.Int64("seed", 0, "random seed (0 for time-based)")
)

func main() {
	flag.Parse()

	cfg := &seeder.Config{
		Bootstrap:     strings.Split(*bootstrap, ","),
		CamerasConfig: *camerasConfig,
		Count:         *count,
		Interval:      *interval,
		TimeSpread:    *timeSpread,
		Identities:    *identities,
		EmbeddingRate: *embeddingRate,
		Seed:          *seed,
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := seeder.NewRunner(cfg).Run(ctx, *galleryOut); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
}
