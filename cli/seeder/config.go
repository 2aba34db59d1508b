// Package seeder generates synthetic detection events and publishes
// them to the event log, so the resolver and downstream consumers can
// be exercised without a live camera floor.
package seeder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the seeder settings.
type Config struct {
	Bootstrap []string `mapstructure:"bootstrap" yaml:"bootstrap"`
	// CamerasConfig optionally points at a cameras.yaml; empty uses a
	// built-in synthetic floor plan.
	CamerasConfig string        `mapstructure:"cameras_config" yaml:"cameras_config"`
	Count         int           `mapstructure:"count" yaml:"count"`
	Interval      time.Duration `mapstructure:"interval" yaml:"interval"`
	// TimeSpread backdates events over this period; 0 emits real-time
	// timestamps.
	TimeSpread time.Duration `mapstructure:"time_spread" yaml:"time_spread"`
	// Identities is how many distinct synthetic faces to rotate through.
	Identities int `mapstructure:"identities" yaml:"identities"`
	// EmbeddingRate is the fraction of detections that carry a face
	// embedding, mirroring real crops that fail extraction.
	EmbeddingRate float64 `mapstructure:"embedding_rate" yaml:"embedding_rate"`
	// Seed fixes the random source for reproducible runs; 0 uses time.
	Seed int64 `mapstructure:"seed" yaml:"seed"`
}

// LoadConfig loads configuration with cascade:
// flags > ./seeder.yaml > ~/.trinetra/seeder.yaml > defaults.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("seeder")
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SEEDER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".trinetra"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bootstrap", []string{"localhost:9092"})
	v.SetDefault("cameras_config", "")
	v.SetDefault("count", 1000)
	v.SetDefault("interval", 0)
	v.SetDefault("time_spread", time.Hour)
	v.SetDefault("identities", 25)
	v.SetDefault("embedding_rate", 0.8)
	v.SetDefault("seed", 0)
}

// Validate checks the configuration bounds.
func (c *Config) Validate() error {
	if len(c.Bootstrap) == 0 {
		return fmt.Errorf("bootstrap brokers required")
	}
	if c.Count <= 0 {
		return fmt.Errorf("count must be positive, got %d", c.Count)
	}
	if c.Identities <= 0 {
		return fmt.Errorf("identities must be positive, got %d", c.Identities)
	}
	if c.EmbeddingRate < 0 || c.EmbeddingRate > 1 {
		return fmt.Errorf("embedding_rate must be in [0,1], got %g", c.EmbeddingRate)
	}
	return nil
}
