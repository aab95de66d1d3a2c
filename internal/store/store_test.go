package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transit-tracker/ingest/internal/config"
	"github.com/transit-tracker/ingest/internal/static/gtfs"
)

func ptr[T any](v T) *T { return &v }

func sampleData() *gtfs.Data {
	return &gtfs.Data{
		Routes: []gtfs.Route{
			{RouteID: "R2", RouteLongName: ptr("Queen Street"), RouteType: ptr(3)},
			{RouteID: "R1", RouteShortName: ptr("King")},
		},
		Stops: []gtfs.Stop{
			{StopID: "S1", StopName: ptr("Central"), StopLat: ptr(41.38), StopLon: ptr(2.17)},
		},
		Trips: []gtfs.Trip{
			{TripID: "T1", RouteID: ptr("R1"), TripHeadsign: ptr("Airport"), DirectionID: ptr(1)},
			{TripID: "T0"},
		},
	}
}

// exerciseStore checks upsert and load semantics shared by every driver
func exerciseStore(t *testing.T, s EntityStore) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.SaveEntities(ctx, sampleData()))
	require.NoError(t, s.SaveEntities(ctx, &gtfs.Data{
		Routes: []gtfs.Route{{RouteID: "R1", RouteShortName: ptr("King Line")}},
	}))
	require.NoError(t, s.SaveEntities(ctx, nil))

	data, err := s.LoadEntities(ctx)
	require.NoError(t, err)

	require.Len(t, data.Routes, 2)
	assert.Equal(t, "R1", data.Routes[0].RouteID)
	assert.Equal(t, "King Line", *data.Routes[0].RouteShortName)
	assert.Equal(t, gtfs.Route{RouteID: "R2", RouteLongName: ptr("Queen Street"), RouteType: ptr(3)}, data.Routes[1])

	require.Len(t, data.Stops, 1)
	assert.Equal(t, sampleData().Stops[0], data.Stops[0])

	require.Len(t, data.Trips, 2)
	assert.Equal(t, gtfs.Trip{TripID: "T0"}, data.Trips[0])
	assert.Equal(t, sampleData().Trips[0], data.Trips[1])
}

func TestMemoryStore(t *testing.T) {
	s := NewMemory()
	defer s.Close()
	exerciseStore(t, s)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, config.StoreConfig{Driver: "memory"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	s, err = Open(ctx, config.StoreConfig{Driver: "sqlite", SQLitePath: t.TempDir() + "/ref.db"}, nil)
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)

	_, err = Open(ctx, config.StoreConfig{Driver: "cassandra"}, nil)
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func clearRedis(ctx context.Context, r *Redis) error {
	return r.rdb.Del(ctx, r.key("routes"), r.key("stops"), r.key("trips")).Err()
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set - skipping integration test")
	}

	ctx := context.Background()
	s, err := NewRedis(ctx, addr, "gtfs-test")
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, clearRedis(ctx, s))
	t.Cleanup(func() { clearRedis(context.Background(), s) })

	exerciseStore(t, s)
}

func TestPostgresStore(t *testing.T) {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		t.Skip("DATABASE_URL not set - skipping integration test")
	}

	ctx := context.Background()
	s, err := NewPostgres(ctx, databaseURL)
	require.NoError(t, err)
	defer s.Close()
	_, err = s.pool.Exec(ctx, `TRUNCATE gtfs_routes, gtfs_stops, gtfs_trips`)
	require.NoError(t, err)

	exerciseStore(t, s)
}
