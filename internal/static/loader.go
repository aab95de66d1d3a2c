package static

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/transit-tracker/ingest/internal/db"
	"github.com/transit-tracker/ingest/internal/logging"
	"github.com/transit-tracker/ingest/internal/refcache"
	"github.com/transit-tracker/ingest/internal/static/gtfs"
	"github.com/transit-tracker/ingest/internal/store"
)

// Options tunes a Loader
type Options struct {
	// HTTPClient downloads archives. Defaults to a client with a 2 minute timeout.
	HTTPClient *http.Client
	// TempDir is the parent of per-archive working directories. Defaults to os.TempDir().
	TempDir string
	// ManifestPath, when set, receives a manifest after each load.
	ManifestPath string
	Logger       *slog.Logger
}

// Result summarises one Load call
type Result struct {
	LoadID   string
	Archives int
	Failures []*ArchiveFailure
	Parsed   gtfs.Data
	Skipped  gtfs.ParseStats
	Cache    refcache.Sizes
}

// Loader downloads static archives, persists their entities and rebuilds the
// reference cache from the store.
type Loader struct {
	store  store.EntityStore
	holder *refcache.Holder
	opts   Options
	logger *slog.Logger
}

// loadRecorder is implemented by stores that keep a history of loads
type loadRecorder interface {
	RecordLoad(ctx context.Context, rec db.LoadRecord) (string, error)
}

func NewLoader(entities store.EntityStore, holder *refcache.Holder, opts Options) *Loader {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Loader{
		store:  entities,
		holder: holder,
		opts:   opts,
		logger: logging.OrDefault(opts.Logger),
	}
}

// Load processes every archive independently, persists what parsed and then
// rebuilds the cache. A failing archive is logged and reported in the result;
// the returned error is reserved for persistence and rebuild failures.
func (l *Loader) Load(ctx context.Context, urls []string) (*Result, error) {
	started := time.Now()
	res := &Result{LoadID: uuid.New().String(), Archives: len(urls)}

	l.logger.Info("loading static reference data",
		slog.String("load_id", res.LoadID), slog.Int("archives", len(urls)))

	for _, url := range urls {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		data, stats, err := l.loadArchive(ctx, url)
		if err != nil {
			var failure *ArchiveFailure
			if !errors.As(err, &failure) {
				failure = &ArchiveFailure{URL: url, Stage: StageParse, Err: err}
			}
			res.Failures = append(res.Failures, failure)
			logging.LogError(l.logger, "static archive failed", failure.Err,
				slog.String("archive", url), slog.String("stage", failure.Stage))
			continue
		}

		res.Parsed.Append(data)
		res.Skipped.Add(stats)
		l.logger.Info("static archive parsed",
			slog.String("archive", url),
			slog.Int("routes", len(data.Routes)),
			slog.Int("stops", len(data.Stops)),
			slog.Int("trips", len(data.Trips)),
			slog.Int("skipped_rows", stats.SkippedRoutes+stats.SkippedStops+stats.SkippedTrips))
	}

	if err := l.store.SaveEntities(ctx, &res.Parsed); err != nil {
		return res, fmt.Errorf("failed to persist entities: %w", err)
	}

	sizes, err := l.RebuildCache(ctx)
	if err != nil {
		return res, err
	}
	res.Cache = sizes

	l.finish(ctx, res, started)
	return res, nil
}

// RebuildCache builds a new cache from every entity in the store and swaps it in
func (l *Loader) RebuildCache(ctx context.Context) (refcache.Sizes, error) {
	data, err := l.store.LoadEntities(ctx)
	if err != nil {
		return refcache.Sizes{}, fmt.Errorf("failed to load entities: %w", err)
	}

	cache := refcache.Build(data)
	l.holder.Store(cache)
	return cache.Sizes(), nil
}

func (l *Loader) finish(ctx context.Context, res *Result, started time.Time) {
	now := time.Now().UTC()

	if rec, ok := l.store.(loadRecorder); ok {
		_, err := rec.RecordLoad(ctx, db.LoadRecord{
			LoadID:         res.LoadID,
			LoadedAt:       now,
			Archives:       res.Archives,
			FailedArchives: len(res.Failures),
			Routes:         len(res.Parsed.Routes),
			Stops:          len(res.Parsed.Stops),
			Trips:          len(res.Parsed.Trips),
		})
		if err != nil {
			logging.LogError(l.logger, "failed to record static load", err)
		}
	}

	if l.opts.ManifestPath != "" {
		if err := writeManifest(l.opts.ManifestPath, Manifest{
			UpdatedAt:      now.Format(time.RFC3339),
			LoadID:         res.LoadID,
			Archives:       res.Archives,
			FailedArchives: len(res.Failures),
		}); err != nil {
			logging.LogError(l.logger, "failed to write static manifest", err,
				slog.String("path", l.opts.ManifestPath))
		}
	}

	logging.LogOperation(l.logger, "static reference data loaded",
		slog.String("load_id", res.LoadID),
		slog.Int("failed_archives", len(res.Failures)),
		slog.Int("route_names", res.Cache.Routes),
		slog.Int("stop_names", res.Cache.Stops),
		slog.Int("trip_headsigns", res.Cache.Trips),
		slog.Duration("duration", time.Since(started)))
}

// loadArchive downloads, extracts and parses one archive inside its own
// working directory, which is removed before returning.
func (l *Loader) loadArchive(ctx context.Context, url string) (*gtfs.Data, gtfs.ParseStats, error) {
	var stats gtfs.ParseStats

	workDir, err := os.MkdirTemp(l.opts.TempDir, "gtfs-static-*")
	if err != nil {
		return nil, stats, &ArchiveFailure{URL: url, Stage: StageDownload, Err: err}
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logging.LogError(l.logger, "failed to remove working directory", err,
				slog.String("path", workDir))
		}
	}()

	zipPath := filepath.Join(workDir, "archive.zip")
	if err := gtfs.Download(ctx, l.opts.HTTPClient, url, zipPath); err != nil {
		return nil, stats, &ArchiveFailure{URL: url, Stage: StageDownload, Err: err}
	}

	extractDir := filepath.Join(workDir, "extracted")
	if err := gtfs.Extract(zipPath, extractDir); err != nil {
		return nil, stats, &ArchiveFailure{URL: url, Stage: StageExtract, Err: err}
	}

	dataDir, err := gtfs.FindDataDir(extractDir)
	if err != nil {
		return nil, stats, &ArchiveFailure{URL: url, Stage: StageLocate, Err: err}
	}

	data, stats, err := gtfs.ParseDir(dataDir)
	if err != nil {
		return nil, stats, &ArchiveFailure{URL: url, Stage: StageParse, Err: err}
	}
	return data, stats, nil
}
