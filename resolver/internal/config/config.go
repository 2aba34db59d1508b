package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures runtime settings for the identity resolver.
type Config struct {
	Server   ServerConfig  `json:"server"`
	Logging  LoggingConfig `json:"logging"`
	EventLog EventLog      `json:"event_log"`
	Search   SearchConfig  `json:"search"`
	Resolve  ResolveConfig `json:"resolve"`
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

// EventLog points at the Kafka bootstrap brokers.
type EventLog struct {
	Bootstrap []string `json:"bootstrap"`
	// Group is the detections consumer group.
	Group string `json:"group"`
}

// SearchConfig points at the similarity search backend.
type SearchConfig struct {
	URL        string `json:"url"`
	Collection string `json:"collection"`
	TopK       int    `json:"top_k"`
	// EFBilling and EFDefault are the HNSW search breadth per camera
	// class. Billing cameras pay more for better recall.
	EFBilling int `json:"ef_billing"`
	EFDefault int `json:"ef_default"`
	TimeoutMS int `json:"timeout_ms"`
}

// ResolveConfig controls matching, gating and registry hygiene.
type ResolveConfig struct {
	CosineThreshold  float64 `json:"cosine_threshold"`
	HistoryThreshold float64 `json:"history_threshold"`
	// TemporalGateWindowS doubles as max session length and registry TTL.
	TemporalGateWindowS float64 `json:"temporal_gate_window_s"`
	TravelTimesConfig   string  `json:"travel_times_config"`
	// EMAAlpha and EMAMinScore control gallery embedding updates:
	// updates apply only above the stricter score to prevent drift loops.
	EMAAlpha    float64 `json:"ema_alpha"`
	EMAMinScore float64 `json:"ema_min_score"`
	// SweepEveryEvents / SweepIntervalS: registry sweep cadence,
	// whichever fires first.
	SweepEveryEvents int `json:"sweep_every_events"`
	SweepIntervalS   int `json:"sweep_interval_s"`
	// FalseMergeEveryEvents: reverse-index consistency check cadence.
	FalseMergeEveryEvents int `json:"false_merge_every_events"`
	// TrackStaleSeconds: history rings idle this long are cleared.
	TrackStaleSeconds int `json:"track_stale_seconds"`
	// MaxUncommittedFailures bounds consumer lag during an ANN outage:
	// after this many consecutive uncommitted batches the offset is
	// committed anyway. 0 means never (strict replay).
	MaxUncommittedFailures int `json:"max_uncommitted_failures"`
}

// Default returns Config populated with sane defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:                8003,
			ReadTimeoutSeconds:  15,
			WriteTimeoutSeconds: 15,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		EventLog: EventLog{
			Bootstrap: []string{"localhost:9092"},
			Group:     "identity-resolvers",
		},
		Search: SearchConfig{
			URL:        "http://localhost:6333",
			Collection: "gallery",
			TopK:       5,
			EFBilling:  128,
			EFDefault:  50,
			TimeoutMS:  500,
		},
		Resolve: ResolveConfig{
			CosineThreshold:        0.72,
			HistoryThreshold:       0.74,
			TemporalGateWindowS:    3600,
			TravelTimesConfig:      "/etc/trinetra/travel_times.yaml",
			EMAAlpha:               0.05,
			EMAMinScore:            0.85,
			SweepEveryEvents:       1000,
			SweepIntervalS:         60,
			FalseMergeEveryEvents:  100,
			TrackStaleSeconds:      30,
			MaxUncommittedFailures: 0,
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
	if v := os.Getenv("EVENT_LOG_BOOTSTRAP"); v != "" {
		cfg.EventLog.Bootstrap = strings.Split(v, ",")
	}
	if v := os.Getenv("SIM_SEARCH_URL"); v != "" {
		cfg.Search.URL = v
	}
	if v := os.Getenv("COSINE_THRESHOLD"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Resolve.CosineThreshold = parsed
		}
	}
	if v := os.Getenv("HISTORY_THRESHOLD"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Resolve.HistoryThreshold = parsed
		}
	}
	if v := os.Getenv("TEMPORAL_GATE_WINDOW_S"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Resolve.TemporalGateWindowS = parsed
		}
	}
	if v := os.Getenv("METRICS_PORT"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = parsed
		}
	}
}

// Timeout returns the similarity search query deadline.
func (s SearchConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutMS) * time.Millisecond
}

// SweepInterval returns the time-based registry sweep cadence.
func (r ResolveConfig) SweepInterval() time.Duration {
	return time.Duration(r.SweepIntervalS) * time.Second
}

// ReadTimeout returns read timeout duration.
func (s ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutSeconds) * time.Second
}

// WriteTimeout returns write timeout duration.
func (s ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutSeconds) * time.Second
}
