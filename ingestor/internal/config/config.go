package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config captures runtime settings for the stream ingestor.
type Config struct {
	Server   ServerConfig  `json:"server"`
	Logging  LoggingConfig `json:"logging"`
	FrameBus FrameBus      `json:"frame_bus"`
	Ingest   IngestConfig  `json:"ingest"`
}

// ServerConfig holds HTTP server settings for health and metrics.
type ServerConfig struct {
	Port                int `json:"port"`
	ReadTimeoutSeconds  int `json:"read_timeout_seconds"`
	WriteTimeoutSeconds int `json:"write_timeout_seconds"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// FrameBus points at the Redis Streams backing store.
type FrameBus struct {
	URL    string `json:"url"`
	MaxLen int    `json:"maxlen"`
}

// IngestConfig controls per-camera capture and sampling behaviour.
type IngestConfig struct {
	CamerasConfig string `json:"cameras_config"`
	// QueueDepth bounds the in-process reader->publisher queue per camera.
	QueueDepth int `json:"queue_depth"`
	// JPEGQuality balances size vs. model accuracy impact.
	JPEGQuality int `json:"jpeg_quality"`
	// HighWaterRatio is the FrameBus fill ratio above which the sampler
	// increases its skip interval.
	HighWaterRatio float64 `json:"high_water_ratio"`
	// MotionThreshold is the mean motion score above which the sampler
	// decreases its skip interval.
	MotionThreshold float64 `json:"motion_threshold"`
	// AllowedCIDRs restricts RTSP targets. Empty means unrestricted.
	AllowedCIDRs []string `json:"allowed_cidrs"`
	// CaptureFPS is the assumed camera capture rate used to derive the
	// base skip interval from a camera's target FPS.
	CaptureFPS int `json:"capture_fps"`
}

// Default returns Config populated with sane defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:                8001,
			ReadTimeoutSeconds:  15,
			WriteTimeoutSeconds: 15,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		FrameBus: FrameBus{
			URL:    "redis://localhost:6379",
			MaxLen: 100,
		},
		Ingest: IngestConfig{
			CamerasConfig:   "/etc/trinetra/cameras.yaml",
			QueueDepth:      30,
			JPEGQuality:     85,
			HighWaterRatio:  0.80,
			MotionThreshold: 2.5,
			CaptureFPS:      30,
		},
	}
}

// Load reads configuration from disk and environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FRAME_BUS_URL"); v != "" {
		cfg.FrameBus.URL = v
	}
	if v := os.Getenv("FRAME_BUFFER_MAXLEN"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.FrameBus.MaxLen = parsed
		}
	}
	if v := os.Getenv("CAMERAS_CONFIG"); v != "" {
		cfg.Ingest.CamerasConfig = v
	}
	if v := os.Getenv("METRICS_PORT"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = parsed
		}
	}
}

// ReadTimeout returns read timeout duration.
func (s ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutSeconds) * time.Second
}

// WriteTimeout returns write timeout duration.
func (s ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutSeconds) * time.Second
}
