package static

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/transit-tracker/ingest/internal/logging"
)

// Manifest records when static data was last loaded
type Manifest struct {
	UpdatedAt      string `json:"updatedAt"`
	LoadID         string `json:"loadId,omitempty"`
	Archives       int    `json:"archives"`
	FailedArchives int    `json:"failedArchives"`
}

// RefreshIfStale reloads urls when the manifest is missing, unreadable or
// older than maxAge. It reports whether a load ran.
func RefreshIfStale(ctx context.Context, loader *Loader, urls []string, maxAge time.Duration) (bool, error) {
	if !isStaleOrMissing(loader.opts.ManifestPath, maxAge) {
		loader.logger.Debug("static data is fresh, skipping refresh")
		return false, nil
	}

	_, err := loader.Load(ctx, urls)
	return true, err
}

// RefreshPeriodically checks staleness every interval until ctx is done
func RefreshPeriodically(ctx context.Context, loader *Loader, urls []string, interval, maxAge time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := RefreshIfStale(ctx, loader, urls, maxAge); err != nil {
				logging.LogError(loader.logger, "static refresh failed", err)
			}
		case <-ctx.Done():
			loader.logger.Info("static refresh loop stopped")
			return
		}
	}
}

func isStaleOrMissing(manifestPath string, maxAge time.Duration) bool {
	if manifestPath == "" {
		return true
	}

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return true
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return true
	}

	updatedAt, err := time.Parse(time.RFC3339, manifest.UpdatedAt)
	if err != nil {
		return true
	}

	return time.Since(updatedAt) > maxAge
}

func writeManifest(path string, manifest Manifest) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadManifest returns the manifest at path
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, err
	}
	return &manifest, nil
}

