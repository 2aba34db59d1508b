package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/trinetra-vision/trinetra/common/camera"
	"github.com/trinetra-vision/trinetra/common/framebus"
	"github.com/trinetra-vision/trinetra/common/logging"
	"github.com/trinetra-vision/trinetra/ingestor/internal/capture"
	"github.com/trinetra-vision/trinetra/ingestor/internal/config"
	"github.com/trinetra-vision/trinetra/ingestor/internal/metrics"
	"github.com/trinetra-vision/trinetra/ingestor/internal/pipeline"
	"github.com/trinetra-vision/trinetra/ingestor/internal/server"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("ingestor"))
	logging.SetDefault(logger)

	slog.Info("Starting Stream Ingestor",
		slog.Int("port", cfg.Server.Port),
		slog.String("framebus_url", cfg.FrameBus.URL),
		slog.String("cameras_config", cfg.Ingest.CamerasConfig),
	)

	cameras, err := camera.Load(cfg.Ingest.CamerasConfig)
	if err != nil {
		log.Fatalf("Failed to load camera config: %v", err)
	}

	allowlist, err := camera.ParseAllowlist(cfg.Ingest.AllowedCIDRs)
	if err != nil {
		log.Fatalf("Failed to parse allowed CIDRs: %v", err)
	}
	for _, cam := range cameras {
		if err := allowlist.Validate(cam.RTSPURL); err != nil {
			log.Fatalf("Camera %s rejected: %v", cam.ID, err)
		}
	}
	slog.Info("Loaded camera configuration", slog.Int("cameras", len(cameras)))

	// Connect to the FrameBus and verify it is reachable before any
	// pipeline starts.
	bus, err := framebus.New(cfg.FrameBus.URL, cfg.FrameBus.MaxLen)
	if err != nil {
		log.Fatalf("Failed to configure FrameBus: %v", err)
	}
	defer bus.Close()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := bus.Ping(pingCtx); err != nil {
		pingCancel()
		log.Fatalf("FrameBus unreachable: %v", err)
	}
	pingCancel()
	slog.Info("FrameBus connected", slog.Int64("stream_maxlen", bus.MaxLen()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// One capture source and one pipeline per camera, each failing and
	// reconnecting independently.
	sources := make(map[string]capture.Source, len(cameras))
	var wg sync.WaitGroup
	for _, cam := range cameras {
		cam := cam
		src := capture.NewRTSPSource(capture.RTSPConfig{
			URL: cam.RTSPURL,
			OnReconnect: func() {
				metrics.Reconnects.WithLabelValues(cam.ID).Inc()
			},
		})
		sources[cam.ID] = src

		p := pipeline.New(cam, src, bus, cfg.Ingest, logger.Logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Run(ctx); err != nil {
				slog.Error("Pipeline exited",
					logging.Camera(cam.ID), logging.Error(err))
			}
		}()
	}

	// Operational HTTP surface
	handler := server.NewHandler(cameras, sources, bus.Ping)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.NewRouter(handler),
		ReadTimeout:  cfg.Server.ReadTimeout(),
		WriteTimeout: cfg.Server.WriteTimeout(),
	}
	go func() {
		slog.Info("Ingestor listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down, draining pipelines")

	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(10 * time.Second):
		slog.Warn("Drain timeout exceeded, exiting with frames in flight")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", logging.Error(err))
	}

	slog.Info("Ingestor stopped")
}
