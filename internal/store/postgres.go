package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/transit-tracker/ingest/internal/static/gtfs"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS gtfs_routes (
	route_id         TEXT PRIMARY KEY,
	route_short_name TEXT,
	route_long_name  TEXT,
	route_type       INTEGER,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS gtfs_stops (
	stop_id    TEXT PRIMARY KEY,
	stop_name  TEXT,
	stop_lat   DOUBLE PRECISION,
	stop_lon   DOUBLE PRECISION,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS gtfs_trips (
	trip_id       TEXT PRIMARY KEY,
	route_id      TEXT,
	trip_headsign TEXT,
	direction_id  INTEGER,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

// Postgres stores entities in PostgreSQL through a pgx pool
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to databaseURL and creates the tables if needed
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

func (p *Postgres) SaveEntities(ctx context.Context, data *gtfs.Data) error {
	if data == nil {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range data.Routes {
		batch.Queue(`
			INSERT INTO gtfs_routes (route_id, route_short_name, route_long_name, route_type)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (route_id) DO UPDATE SET
				route_short_name = EXCLUDED.route_short_name,
				route_long_name = EXCLUDED.route_long_name,
				route_type = EXCLUDED.route_type,
				updated_at = NOW()`,
			r.RouteID, r.RouteShortName, r.RouteLongName, r.RouteType)
	}
	for _, s := range data.Stops {
		batch.Queue(`
			INSERT INTO gtfs_stops (stop_id, stop_name, stop_lat, stop_lon)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (stop_id) DO UPDATE SET
				stop_name = EXCLUDED.stop_name,
				stop_lat = EXCLUDED.stop_lat,
				stop_lon = EXCLUDED.stop_lon,
				updated_at = NOW()`,
			s.StopID, s.StopName, s.StopLat, s.StopLon)
	}
	for _, t := range data.Trips {
		batch.Queue(`
			INSERT INTO gtfs_trips (trip_id, route_id, trip_headsign, direction_id)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (trip_id) DO UPDATE SET
				route_id = EXCLUDED.route_id,
				trip_headsign = EXCLUDED.trip_headsign,
				direction_id = EXCLUDED.direction_id,
				updated_at = NOW()`,
			t.TripID, t.RouteID, t.TripHeadsign, t.DirectionID)
	}
	if batch.Len() == 0 {
		return nil
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to upsert entities: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit entities: %w", err)
	}
	return nil
}

func (p *Postgres) LoadEntities(ctx context.Context) (*gtfs.Data, error) {
	data := &gtfs.Data{}

	rows, err := p.pool.Query(ctx,
		`SELECT route_id, route_short_name, route_long_name, route_type FROM gtfs_routes ORDER BY route_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query routes: %w", err)
	}
	data.Routes, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (gtfs.Route, error) {
		var r gtfs.Route
		err := row.Scan(&r.RouteID, &r.RouteShortName, &r.RouteLongName, &r.RouteType)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan routes: %w", err)
	}

	rows, err = p.pool.Query(ctx,
		`SELECT stop_id, stop_name, stop_lat, stop_lon FROM gtfs_stops ORDER BY stop_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stops: %w", err)
	}
	data.Stops, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (gtfs.Stop, error) {
		var s gtfs.Stop
		err := row.Scan(&s.StopID, &s.StopName, &s.StopLat, &s.StopLon)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan stops: %w", err)
	}

	rows, err = p.pool.Query(ctx,
		`SELECT trip_id, route_id, trip_headsign, direction_id FROM gtfs_trips ORDER BY trip_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query trips: %w", err)
	}
	data.Trips, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (gtfs.Trip, error) {
		var t gtfs.Trip
		err := row.Scan(&t.TripID, &t.RouteID, &t.TripHeadsign, &t.DirectionID)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan trips: %w", err)
	}

	return data, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
