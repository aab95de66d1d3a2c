package static

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transit-tracker/ingest/internal/store"
)

func writeTestManifest(t *testing.T, manifest Manifest) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "manifest.json")
	data, err := json.Marshal(manifest)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestIsStaleOrMissing(t *testing.T) {
	corrupt := filepath.Join(t.TempDir(), "manifest.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{invalid json"), 0644))

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"no path configured", "", true},
		{"missing file", filepath.Join(t.TempDir(), "does-not-exist.json"), true},
		{"corrupt json", corrupt, true},
		{"bad timestamp", writeTestManifest(t, Manifest{UpdatedAt: "yesterday"}), true},
		{"fresh", writeTestManifest(t, Manifest{UpdatedAt: time.Now().UTC().Format(time.RFC3339)}), false},
		{"stale", writeTestManifest(t, Manifest{UpdatedAt: time.Now().Add(-48 * time.Hour).UTC().Format(time.RFC3339)}), true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isStaleOrMissing(tc.path, 24*time.Hour))
		})
	}
}

func TestWriteManifestCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cache", "manifest.json")
	require.NoError(t, writeManifest(path, Manifest{UpdatedAt: "2026-01-01T00:00:00Z", Archives: 3}))

	got, err := ReadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Archives)
	assert.NoFileExists(t, path+".tmp")
}

func TestRefreshPeriodicallyStopsOnCancel(t *testing.T) {
	loader, _, _ := newTestLoader(t, store.NewMemory())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		RefreshPeriodically(ctx, loader, nil, time.Hour, time.Hour)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh loop did not stop")
	}

	// a zero interval disables the loop entirely
	RefreshPeriodically(context.Background(), loader, nil, 0, time.Hour)
}
