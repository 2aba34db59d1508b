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

	"github.com/trinetra-vision/trinetra/common/eventlog"
	"github.com/trinetra-vision/trinetra/common/logging"
	"github.com/trinetra-vision/trinetra/resolver/internal/config"
	"github.com/trinetra-vision/trinetra/resolver/internal/gate"
	"github.com/trinetra-vision/trinetra/resolver/search"
	"github.com/trinetra-vision/trinetra/resolver/internal/server"
	"github.com/trinetra-vision/trinetra/resolver/internal/service"
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
	).With(logging.Service("resolver"))
	logging.SetDefault(logger)

	slog.Info("Starting Identity Resolver",
		slog.Int("port", cfg.Server.Port),
		slog.String("group", cfg.EventLog.Group),
		slog.String("search_url", cfg.Search.URL),
		slog.Float64("cosine_threshold", cfg.Resolve.CosineThreshold),
	)

	g, err := gate.Load(cfg.Resolve.TravelTimesConfig, cfg.Resolve.TemporalGateWindowS)
	if err != nil {
		log.Fatalf("Failed to load travel times: %v", err)
	}

	searcher := search.NewQdrant(cfg.Search.URL, cfg.Search.Collection, cfg.Search.Timeout())
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := searcher.Ping(pingCtx); err != nil {
		slog.Warn("Search backend not ready at startup", logging.Error(err))
	}
	pingCancel()

	topicCtx, topicCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := eventlog.EnsureTopics(topicCtx, cfg.EventLog.Bootstrap); err != nil {
		slog.Warn("Topic provisioning failed, assuming topics exist", logging.Error(err))
	}
	topicCancel()

	consumer := eventlog.NewConsumer(cfg.EventLog.Bootstrap, cfg.EventLog.Group, eventlog.TopicDetections)
	defer consumer.Close()

	producer := eventlog.NewProducer(cfg.EventLog.Bootstrap)
	defer producer.Close()

	resolver := service.New(consumer, producer, searcher, g, cfg.Search, cfg.Resolve, logger.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Operational HTTP surface
	handler := server.NewHandler(searcher.Ping, consumer.Lag)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.NewRouter(handler),
		ReadTimeout:  cfg.Server.ReadTimeout(),
		WriteTimeout: cfg.Server.WriteTimeout(),
	}
	go func() {
		slog.Info("Resolver listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	if err := resolver.Run(ctx); err != nil && ctx.Err() == nil {
		// Publish failures past the producer's retry budget land here;
		// crashing hands the partition to another group member.
		slog.Error("Resolver failed", logging.Error(err))
		os.Exit(1)
	}

	slog.Info("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", logging.Error(err))
	}

	slog.Info("Resolver stopped")
}
