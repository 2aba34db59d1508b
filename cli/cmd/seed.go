package cmd

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/trinetra-vision/trinetra/cli/seeder"
)

var (
	seedCfgFile    string
	seedBootstrap  string
	seedCount      int
	seedInterval   time.Duration
	seedSpread     time.Duration
	seedIdentities int
	seedCameras    string
	seedGalleryOut string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Publish synthetic detection events",
	Long: `Generate synthetic detection events and publish them to the
trinetra.detections topic, exercising the resolver without a live
camera floor.

Configuration cascade (priority order):
  1. Command-line flags
  2. ./seeder.yaml (project directory)
  3. ~/.trinetra/seeder.yaml (user directory)
  4. Built-in defaults

Examples:
  # Defaults: 1000 events over the last hour
  trinetra seed

  # Real-time trickle against a remote broker
  trinetra seed --bootstrap kafka:9092 --count 10000 --interval 50ms --time-spread 0

  # Also write the synthetic gallery for ` + "`trinetra gallery load`" + `
  trinetra seed --gallery-out gallery.json`,
	RunE: runSeed,
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := seeder.LoadConfig(seedCfgFile)
	if err != nil {
		return err
	}

	// Flags override the config cascade.
	if cmd.Flags().Changed("bootstrap") {
		cfg.Bootstrap = strings.Split(seedBootstrap, ",")
	}
	if cmd.Flags().Changed("count") {
		cfg.Count = seedCount
	}
	if cmd.Flags().Changed("interval") {
		cfg.Interval = seedInterval
	}
	if cmd.Flags().Changed("time-spread") {
		cfg.TimeSpread = seedSpread
	}
	if cmd.Flags().Changed("identities") {
		cfg.Identities = seedIdentities
	}
	if cmd.Flags().Changed("cameras") {
		cfg.CamerasConfig = seedCameras
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	return seeder.NewRunner(cfg).Run(cmd.Context(), seedGalleryOut)
}

func init() {
	seedCmd.Flags().StringVar(&seedCfgFile, "config", "", "seeder config file")
	seedCmd.Flags().StringVar(&seedBootstrap, "bootstrap", "localhost:9092", "comma-separated Kafka brokers")
	seedCmd.Flags().IntVar(&seedCount, "count", 1000, "number of events to publish")
	seedCmd.Flags().DurationVar(&seedInterval, "interval", 0, "delay between events (0 for full speed)")
	seedCmd.Flags().DurationVar(&seedSpread, "time-spread", time.Hour, "backdate events over this period (0 for real-time)")
	seedCmd.Flags().IntVar(&seedIdentities, "identities", 25, "distinct synthetic identities")
	seedCmd.Flags().StringVar(&seedCameras, "cameras", "", "cameras.yaml to source camera IDs from")
	seedCmd.Flags().StringVar(&seedGalleryOut, "gallery-out", "", "write the synthetic gallery export here")

	rootCmd.AddCommand(seedCmd)
}
