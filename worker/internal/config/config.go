package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures runtime settings for the inference worker.
type Config struct {
	Server   ServerConfig  `json:"server"`
	Logging  LoggingConfig `json:"logging"`
	FrameBus FrameBus      `json:"frame_bus"`
	EventLog EventLog      `json:"event_log"`
	Worker   WorkerConfig  `json:"worker"`
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

// EventLog points at the Kafka bootstrap brokers.
type EventLog struct {
	Bootstrap []string `json:"bootstrap"`
}

// WorkerConfig controls batching, inference and crash recovery.
type WorkerConfig struct {
	CamerasConfig string `json:"cameras_config"`
	// Group is the FrameBus consumer group shared by all workers.
	Group string `json:"group"`
	// BatchSize is the micro-batch flush threshold.
	BatchSize int `json:"batch_size"`
	// BatchTimeoutMS flushes a partial batch after this long.
	BatchTimeoutMS int `json:"batch_timeout_ms"`
	// ReclaimIdleSeconds: pending entries idle at least this long are
	// taken over from crashed consumers at startup.
	ReclaimIdleSeconds int `json:"reclaim_idle_seconds"`
	// CropSubBatch bounds how many face crops go to the embedder at once.
	CropSubBatch int `json:"crop_sub_batch"`
	// ModelServerURL is the HTTP inference endpoint for detect and embed.
	ModelServerURL string `json:"model_server_url"`
	// ModelTimeoutMS bounds each model server call.
	ModelTimeoutMS int `json:"model_timeout_ms"`
	// TrackStaleSeconds: tracks unseen this long are dropped.
	TrackStaleSeconds int `json:"track_stale_seconds"`
	// CheckpointIntervalSeconds between tracker state saves.
	CheckpointIntervalSeconds int `json:"checkpoint_interval_seconds"`
}

// Default returns Config populated with sane defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:                8002,
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
		EventLog: EventLog{
			Bootstrap: []string{"localhost:9092"},
		},
		Worker: WorkerConfig{
			CamerasConfig:             "/etc/trinetra/cameras.yaml",
			Group:                     "inference-workers",
			BatchSize:                 4,
			BatchTimeoutMS:            20,
			ReclaimIdleSeconds:        60,
			CropSubBatch:              16,
			ModelServerURL:            "http://localhost:8500",
			ModelTimeoutMS:            500,
			TrackStaleSeconds:         30,
			CheckpointIntervalSeconds: 30,
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
	if v := os.Getenv("EVENT_LOG_BOOTSTRAP"); v != "" {
		cfg.EventLog.Bootstrap = strings.Split(v, ",")
	}
	if v := os.Getenv("BATCH_SIZE"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Worker.BatchSize = parsed
		}
	}
	if v := os.Getenv("BATCH_TIMEOUT_MS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Worker.BatchTimeoutMS = parsed
		}
	}
	if v := os.Getenv("CAMERAS_CONFIG"); v != "" {
		cfg.Worker.CamerasConfig = v
	}
	if v := os.Getenv("METRICS_PORT"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = parsed
		}
	}
}

// ModelTimeout returns the per-call model server deadline.
func (w WorkerConfig) ModelTimeout() time.Duration {
	return time.Duration(w.ModelTimeoutMS) * time.Millisecond
}

// BatchTimeout returns the micro-batch flush timeout.
func (w WorkerConfig) BatchTimeout() time.Duration {
	return time.Duration(w.BatchTimeoutMS) * time.Millisecond
}

// ReclaimIdle returns the pending-entry takeover threshold.
func (w WorkerConfig) ReclaimIdle() time.Duration {
	return time.Duration(w.ReclaimIdleSeconds) * time.Second
}

// TrackStale returns the track expiry age.
func (w WorkerConfig) TrackStale() time.Duration {
	return time.Duration(w.TrackStaleSeconds) * time.Second
}

// CheckpointInterval returns the tracker checkpoint cadence.
func (w WorkerConfig) CheckpointInterval() time.Duration {
	return time.Duration(w.CheckpointIntervalSeconds) * time.Second
}

// ReadTimeout returns read timeout duration.
func (s ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutSeconds) * time.Second
}

// WriteTimeout returns write timeout duration.
func (s ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutSeconds) * time.Second
}
