package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/transit-tracker/ingest/internal/config"
	"github.com/transit-tracker/ingest/internal/logging"
	"github.com/transit-tracker/ingest/internal/refcache"
	"github.com/transit-tracker/ingest/internal/static"
	"github.com/transit-tracker/ingest/internal/store"
)

func main() {
	defaults := config.Default()

	driver := flag.String("driver", getEnv("STORE_DRIVER", defaults.Store.Driver), "Entity store: memory, sqlite, postgres or redis")
	dbPath := flag.String("db", getEnv("SQLITE_DATABASE", defaults.Store.SQLitePath), "Path to SQLite database")
	postgresURL := flag.String("postgres", os.Getenv("DATABASE_URL"), "PostgreSQL connection URL")
	redisAddr := flag.String("redis", getEnv("REDIS_ADDR", defaults.Store.RedisAddr), "Redis address")
	gtfsDir := flag.String("gtfs-dir", "", "Directory containing GTFS zip files")
	cacheDir := flag.String("cache-dir", getEnv("CACHE_DIR", defaults.CacheDir), "Directory for the load manifest and working files")
	verbose := flag.Bool("v", false, "Debug logging")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [archive-url-or-path ...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := logging.NewStructuredLogger(os.Stderr, level)

	archives := flag.Args()
	if *gtfsDir != "" {
		found, err := zipFiles(*gtfsDir)
		if err != nil {
			logging.LogError(logger, "failed to read GTFS directory", err, slog.String("dir", *gtfsDir))
			os.Exit(1)
		}
		archives = append(archives, found...)
	}
	if len(archives) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	storeCfg := defaults.Store
	storeCfg.Driver = *driver
	storeCfg.SQLitePath = *dbPath
	storeCfg.PostgresURL = *postgresURL
	storeCfg.RedisAddr = *redisAddr

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := importArchives(ctx, storeCfg, *cacheDir, archives, logger); err != nil {
		logging.LogError(logger, "import failed", err)
		os.Exit(1)
	}
}

func importArchives(ctx context.Context, storeCfg config.StoreConfig, cacheDir string, archives []string, logger *slog.Logger) error {
	entities, err := store.Open(ctx, storeCfg, logger)
	if err != nil {
		return err
	}
	defer logging.SafeCloseWithLogging(entities, logger, "entity store")

	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return err
	}

	loader := static.NewLoader(entities, refcache.NewHolder(), static.Options{
		TempDir:      cacheDir,
		ManifestPath: filepath.Join(cacheDir, "manifest.json"),
		Logger:       logger,
	})

	res, err := loader.Load(ctx, archives)
	if err != nil {
		return err
	}

	fmt.Printf("load %s: %d archive(s), %d failed\n", res.LoadID, res.Archives, len(res.Failures))
	for _, f := range res.Failures {
		fmt.Printf("  FAILED %s\n", f.Error())
	}
	fmt.Printf("parsed: %d routes, %d stops, %d trips (skipped rows: %d/%d/%d)\n",
		len(res.Parsed.Routes), len(res.Parsed.Stops), len(res.Parsed.Trips),
		res.Skipped.SkippedRoutes, res.Skipped.SkippedStops, res.Skipped.SkippedTrips)
	fmt.Printf("cache: %d route names, %d stop names, %d trip headsigns\n",
		res.Cache.Routes, res.Cache.Stops, res.Cache.Trips)

	if len(res.Failures) == res.Archives {
		return fmt.Errorf("all %d archive(s) failed", res.Archives)
	}
	return nil
}

func zipFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".zip") {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	return paths, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
