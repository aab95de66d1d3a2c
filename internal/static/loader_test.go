package static

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transit-tracker/ingest/internal/db"
	"github.com/transit-tracker/ingest/internal/refcache"
	"github.com/transit-tracker/ingest/internal/static/gtfs"
	"github.com/transit-tracker/ingest/internal/store"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// archiveServer serves each zip under /<name>
func archiveServer(t *testing.T, archives map[string][]byte) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, ok := archives[r.URL.Path[1:]]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		w.Write(payload)
	}))
	t.Cleanup(server.Close)
	return server
}

var cityFiles = map[string]string{
	"routes.txt": "route_id,route_short_name,route_long_name,route_type\n" +
		"R1,King,King Street,3\n" +
		"R2,,\"Main, \"\"Elm\"\" St\",3\n",
	"stops.txt": "stop_id,stop_name,stop_lat,stop_lon\n" +
		"S1,Central,41.38,2.17\n" +
		"S2,,41.39,2.18\n",
	"trips.txt": "route_id,service_id,trip_id,trip_headsign,direction_id\n" +
		"R1,WK,T1,Airport,0\n" +
		"R2,WK,T2,,1\n",
}

func newTestLoader(t *testing.T, s store.EntityStore) (*Loader, *refcache.Holder, string) {
	t.Helper()
	holder := refcache.NewHolder()
	tmp := t.TempDir()
	loader := NewLoader(s, holder, Options{
		TempDir:      tmp,
		ManifestPath: filepath.Join(t.TempDir(), "manifest.json"),
	})
	return loader, holder, tmp
}

func TestLoad_SuccessBuildsCache(t *testing.T) {
	server := archiveServer(t, map[string][]byte{
		"city.zip": buildZip(t, cityFiles),
	})
	loader, holder, tmp := newTestLoader(t, store.NewMemory())

	res, err := loader.Load(context.Background(), []string{server.URL + "/city.zip"})
	require.NoError(t, err)
	assert.Empty(t, res.Failures)
	assert.NotEmpty(t, res.LoadID)
	assert.Equal(t, refcache.Sizes{Routes: 2, Stops: 2, Trips: 1}, res.Cache)

	cache := holder.Load()
	name, ok := cache.RouteName("R1")
	assert.True(t, ok)
	assert.Equal(t, "King", name)

	name, _ = cache.RouteName("R2")
	assert.Equal(t, `Main, "Elm" St`, name)

	name, _ = cache.StopName("S2")
	assert.Equal(t, "S2", name)

	headsign, ok := cache.TripHeadsign("T1")
	assert.True(t, ok)
	assert.Equal(t, "Airport", headsign)

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries, "working directories are removed")

	manifest, err := ReadManifest(loader.opts.ManifestPath)
	require.NoError(t, err)
	assert.Equal(t, res.LoadID, manifest.LoadID)
	assert.Equal(t, 1, manifest.Archives)
}

func TestLoad_FailuresAreIsolatedPerArchive(t *testing.T) {
	nestedFiles := map[string]string{
		"gtfs/routes.txt": "route_id,route_long_name\nN1,Night Line\n",
		"gtfs/stops.txt":  "stop_id,stop_name\nNS1,Depot\n",
		"gtfs/trips.txt":  "trip_id,trip_headsign\nNT1,Depot\n",
	}
	server := archiveServer(t, map[string][]byte{
		"nested.zip":   buildZip(t, nestedFiles),
		"nostops.zip":  buildZip(t, map[string]string{"routes.txt": "route_id\nX1\n", "trips.txt": "trip_id\nXT\n"}),
		"noroutes.zip": buildZip(t, map[string]string{"stops.txt": "stop_id\nY1\n"}),
		"garbage.zip":  []byte("not a zip"),
	})
	loader, holder, tmp := newTestLoader(t, store.NewMemory())

	res, err := loader.Load(context.Background(), []string{
		server.URL + "/missing.zip",
		server.URL + "/garbage.zip",
		server.URL + "/noroutes.zip",
		server.URL + "/nostops.zip",
		server.URL + "/nested.zip",
	})
	require.NoError(t, err)
	require.Len(t, res.Failures, 4)

	stages := []string{StageDownload, StageExtract, StageLocate, StageParse}
	for i, failure := range res.Failures {
		assert.Equal(t, stages[i], failure.Stage, failure.Error())
	}
	assert.ErrorIs(t, res.Failures[2], gtfs.ErrDataDirNotFound)
	assert.ErrorIs(t, res.Failures[3], gtfs.ErrMissingFile)

	// the good archive still loaded
	name, ok := holder.Load().RouteName("N1")
	assert.True(t, ok)
	assert.Equal(t, "Night Line", name)
	_, ok = holder.Load().RouteName("X1")
	assert.False(t, ok, "entities of a failed archive are not persisted")

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLoad_RoutesWithoutRouteType(t *testing.T) {
	files := map[string]string{
		"routes.txt": "route_id,route_short_name\nR1,1\nR2,2\nR3,3\n",
		"stops.txt":  "stop_id\n",
		"trips.txt":  "trip_id\n",
	}
	server := archiveServer(t, map[string][]byte{"a.zip": buildZip(t, files)})
	memory := store.NewMemory()
	loader, _, _ := newTestLoader(t, memory)

	res, err := loader.Load(context.Background(), []string{server.URL + "/a.zip"})
	require.NoError(t, err)
	require.Len(t, res.Parsed.Routes, 3)

	persisted, err := memory.LoadEntities(context.Background())
	require.NoError(t, err)
	require.Len(t, persisted.Routes, 3)
	for _, r := range persisted.Routes {
		assert.Nil(t, r.RouteType, r.RouteID)
	}
}

func TestLoad_IsIdempotent(t *testing.T) {
	server := archiveServer(t, map[string][]byte{"city.zip": buildZip(t, cityFiles)})
	loader, holder, _ := newTestLoader(t, store.NewMemory())
	urls := []string{server.URL + "/city.zip"}

	_, err := loader.Load(context.Background(), urls)
	require.NoError(t, err)
	first := holder.Load()

	_, err = loader.Load(context.Background(), urls)
	require.NoError(t, err)
	second := holder.Load()

	assert.NotSame(t, first, second, "each load swaps in a new cache")
	assert.Equal(t, first, second)
}

func TestLoad_SQLiteStoreRecordsLoad(t *testing.T) {
	database, err := db.Connect(filepath.Join(t.TempDir(), "ref.db"), nil)
	require.NoError(t, err)
	defer database.Close()
	require.NoError(t, database.EnsureSchema(context.Background()))

	server := archiveServer(t, map[string][]byte{"city.zip": buildZip(t, cityFiles)})
	loader, holder, _ := newTestLoader(t, database)

	res, err := loader.Load(context.Background(), []string{server.URL + "/city.zip", server.URL + "/gone.zip"})
	require.NoError(t, err)

	latest, err := database.LatestLoad(context.Background())
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, res.LoadID, latest.LoadID)
	assert.Equal(t, 2, latest.Archives)
	assert.Equal(t, 1, latest.FailedArchives)
	assert.Equal(t, 2, latest.Routes)

	name, _ := holder.Load().RouteName("R1")
	assert.Equal(t, "King", name)
}

func TestLoad_KeepsPreviouslyPersistedEntities(t *testing.T) {
	memory := store.NewMemory()
	require.NoError(t, memory.SaveEntities(context.Background(), &gtfs.Data{
		Routes: []gtfs.Route{{RouteID: "OLD"}},
	}))
	loader, holder, _ := newTestLoader(t, memory)

	res, err := loader.Load(context.Background(), []string{"http://127.0.0.1:1/unreachable.zip"})
	require.NoError(t, err)
	assert.Len(t, res.Failures, 1)

	_, ok := holder.Load().RouteName("OLD")
	assert.True(t, ok)
}

func TestLoad_CanceledContext(t *testing.T) {
	loader, _, _ := newTestLoader(t, store.NewMemory())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := loader.Load(ctx, []string{"http://example.invalid/a.zip"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRefreshIfStale(t *testing.T) {
	server := archiveServer(t, map[string][]byte{"city.zip": buildZip(t, cityFiles)})
	loader, _, _ := newTestLoader(t, store.NewMemory())
	urls := []string{server.URL + "/city.zip"}

	ran, err := RefreshIfStale(context.Background(), loader, urls, time.Hour)
	require.NoError(t, err)
	assert.True(t, ran, "missing manifest triggers a load")

	ran, err = RefreshIfStale(context.Background(), loader, urls, time.Hour)
	require.NoError(t, err)
	assert.False(t, ran, "fresh manifest skips the load")
}
