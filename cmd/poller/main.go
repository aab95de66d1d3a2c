package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/transit-tracker/ingest/internal/config"
	"github.com/transit-tracker/ingest/internal/logging"
	"github.com/transit-tracker/ingest/internal/metrics"
	"github.com/transit-tracker/ingest/internal/realtime"
	"github.com/transit-tracker/ingest/internal/refcache"
	"github.com/transit-tracker/ingest/internal/relay"
	"github.com/transit-tracker/ingest/internal/server"
	"github.com/transit-tracker/ingest/internal/snapshot"
	"github.com/transit-tracker/ingest/internal/static"
	"github.com/transit-tracker/ingest/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger(os.Stdout, logging.ParseLevel(cfg.LogLevel))
	slog.SetDefault(logger)
	logger.Info("starting GTFS-realtime ingestion service",
		slog.Duration("poll_interval", cfg.PollInterval),
		slog.String("store", cfg.Store.Driver),
		slog.Bool("kafka", cfg.Kafka.Enabled))

	if err := run(cfg, logger); err != nil {
		logging.LogError(logger, "service failed", err)
		os.Exit(1)
	}
	logger.Info("goodbye")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	caches := refcache.NewHolder()
	repo := snapshot.New(cfg.SubscriberBuffer, logger)
	defer repo.Close()
	stats := metrics.NewFeedStats()
	manifestPath := filepath.Join(cfg.CacheDir, "manifest.json")

	// ═══════════════════════════════════════════════════════
	// PHASE 1: Ops server (reports "starting" until reference data is loaded)
	// ═══════════════════════════════════════════════════════
	var ready atomic.Bool
	ops := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: server.New(server.Deps{
			Snapshot:     repo,
			Caches:       caches,
			Stats:        stats,
			Ready:        ready.Load,
			ManifestPath: manifestPath,
			CORSOrigins:  cfg.CORSOrigins,
			Logger:       logger,
		}).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("ops server listening", slog.String("addr", cfg.HTTPAddr))
		if err := ops.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.LogError(logger, "ops server failed", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ops.Shutdown(shutdownCtx); err != nil {
			logging.LogError(logger, "ops server shutdown failed", err)
		}
	}()

	// ═══════════════════════════════════════════════════════
	// PHASE 2: Reference store
	// ═══════════════════════════════════════════════════════
	entities, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer logging.SafeCloseWithLogging(entities, logger, "entity store")
	logger.Info("reference store ready", slog.String("driver", cfg.Store.Driver))

	// ═══════════════════════════════════════════════════════
	// PHASE 3: Static reference data (startup load)
	// ═══════════════════════════════════════════════════════
	if err := os.MkdirAll(cfg.CacheDir, 0755); err != nil {
		return err
	}
	loader := static.NewLoader(entities, caches, static.Options{
		TempDir:      cfg.CacheDir,
		ManifestPath: manifestPath,
		Logger:       logger,
	})
	if len(cfg.StaticURLs) > 0 {
		if _, err := loader.Load(ctx, cfg.StaticURLs); err != nil {
			// Continue with whatever the store already holds
			logging.LogError(logger, "static reference load failed", err)
			if _, err := loader.RebuildCache(ctx); err != nil {
				logging.LogError(logger, "failed to rebuild reference cache", err)
			}
		}
	} else {
		logger.Warn("no static archives configured, enriching from stored entities only")
		if _, err := loader.RebuildCache(ctx); err != nil {
			logging.LogError(logger, "failed to rebuild reference cache", err)
		}
	}
	ready.Store(true)

	// ═══════════════════════════════════════════════════════
	// PHASE 4: Publisher (direct or through Kafka)
	// ═══════════════════════════════════════════════════════
	var publisher realtime.Publisher = realtime.NewDirectPublisher(repo)
	if cfg.Kafka.Enabled {
		producer, err := relay.NewProducer(cfg.Kafka, repo, logger)
		if err != nil {
			return err
		}
		defer producer.Close()

		consumer, err := relay.NewConsumer(cfg.Kafka, repo, logger)
		if err != nil {
			return err
		}
		go func() {
			if err := consumer.Run(ctx); err != nil {
				logging.LogError(logger, "kafka consumer stopped", err)
			}
		}()
		publisher = producer
		logger.Info("trip updates relayed through kafka",
			slog.String("topic", cfg.Kafka.TripUpdatesTopic),
			slog.String("bootstrap_servers", cfg.Kafka.BootstrapServers))
	}

	// ═══════════════════════════════════════════════════════
	// PHASE 5: Pollers and refresh loop
	// ═══════════════════════════════════════════════════════
	poller, err := realtime.NewPoller(
		realtime.NewFetcher(cfg.FetchTimeout),
		realtime.NewDecoder(caches),
		publisher,
		realtime.Options{
			Feeds: []realtime.Feed{
				{Name: "trip-updates", URL: cfg.TripUpdatesURL, Mode: realtime.ModeTripUpdates},
				{Name: "vehicle-positions", URL: cfg.VehiclePositionsURL, Mode: realtime.ModeVehiclePositions},
			},
			Interval:     cfg.PollInterval,
			InitialDelay: cfg.InitialDelay,
			Logger:       logger,
			Stats:        stats,
		},
	)
	if err != nil {
		return err
	}

	if len(cfg.StaticURLs) > 0 {
		go static.RefreshPeriodically(ctx, loader, cfg.StaticURLs, cfg.StaticRefreshInterval, cfg.StaticMaxAge)
	}

	// ═══════════════════════════════════════════════════════
	// PHASE 6: Run until signaled
	// ═══════════════════════════════════════════════════════
	err = poller.Run(ctx)
	logger.Info("shutting down")
	return err
}
