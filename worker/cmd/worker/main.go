package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/trinetra-vision/trinetra/common/camera"
	"github.com/trinetra-vision/trinetra/common/eventlog"
	"github.com/trinetra-vision/trinetra/common/framebus"
	"github.com/trinetra-vision/trinetra/common/logging"
	"github.com/trinetra-vision/trinetra/worker/internal/config"
	"github.com/trinetra-vision/trinetra/worker/internal/operator"
	"github.com/trinetra-vision/trinetra/worker/internal/server"
	"github.com/trinetra-vision/trinetra/worker/internal/service"
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

	// Each worker instance gets a unique consumer name within the group
	// so pending-list ownership is attributable.
	hostname, _ := os.Hostname()
	consumer := fmt.Sprintf("%s-%s", hostname, uuid.NewString()[:8])

	// Initialize structured logging
	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("worker"), slog.String("consumer", consumer))
	logging.SetDefault(logger)

	slog.Info("Starting Inference Worker",
		slog.Int("port", cfg.Server.Port),
		slog.String("group", cfg.Worker.Group),
		slog.Int("batch_size", cfg.Worker.BatchSize),
		slog.Int("batch_timeout_ms", cfg.Worker.BatchTimeoutMS),
	)

	cameras, err := camera.Load(cfg.Worker.CamerasConfig)
	if err != nil {
		log.Fatalf("Failed to load camera config: %v", err)
	}
	cameraIDs := camera.IDs(cameras)

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

	topicCtx, topicCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := eventlog.EnsureTopics(topicCtx, cfg.EventLog.Bootstrap); err != nil {
		slog.Warn("Topic provisioning failed, assuming topics exist", logging.Error(err))
	}
	topicCancel()

	producer := eventlog.NewProducer(cfg.EventLog.Bootstrap)
	defer producer.Close()

	model := operator.NewClient(cfg.Worker.ModelServerURL, cfg.Worker.ModelTimeout())
	worker := service.New(bus, producer, model, model, cfg.Worker, cameraIDs, consumer, logger.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Operational HTTP surface
	handler := server.NewHandler(consumer, bus.Ping)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.NewRouter(handler),
		ReadTimeout:  cfg.Server.ReadTimeout(),
		WriteTimeout: cfg.Server.WriteTimeout(),
	}
	go func() {
		slog.Info("Worker listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("Worker failed: %v", err)
	}

	slog.Info("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", logging.Error(err))
	}

	slog.Info("Worker stopped")
}
