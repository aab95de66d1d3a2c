package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/transit-tracker/ingest/internal/static/gtfs"
)

// LoadRecord summarises one static loader run
type LoadRecord struct {
	LoadID         string
	LoadedAt       time.Time
	Archives       int
	FailedArchives int
	Routes         int
	Stops          int
	Trips          int
}

// SaveEntities upserts routes, stops and trips in one transaction
func (db *DB) SaveEntities(ctx context.Context, data *gtfs.Data) error {
	if data == nil {
		return nil
	}

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	routeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO gtfs_routes (route_id, route_short_name, route_long_name, route_type, updated_at)
		VALUES (?, ?, ?, ?, datetime('now'))
		ON CONFLICT (route_id) DO UPDATE SET
			route_short_name = excluded.route_short_name,
			route_long_name = excluded.route_long_name,
			route_type = excluded.route_type,
			updated_at = datetime('now')
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare route statement: %w", err)
	}
	defer routeStmt.Close()

	for _, r := range data.Routes {
		if _, err := routeStmt.ExecContext(ctx, r.RouteID, nullable(r.RouteShortName), nullable(r.RouteLongName), nullable(r.RouteType)); err != nil {
			return fmt.Errorf("failed to upsert route %s: %w", r.RouteID, err)
		}
	}

	stopStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO gtfs_stops (stop_id, stop_name, stop_lat, stop_lon, updated_at)
		VALUES (?, ?, ?, ?, datetime('now'))
		ON CONFLICT (stop_id) DO UPDATE SET
			stop_name = excluded.stop_name,
			stop_lat = excluded.stop_lat,
			stop_lon = excluded.stop_lon,
			updated_at = datetime('now')
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare stop statement: %w", err)
	}
	defer stopStmt.Close()

	for _, s := range data.Stops {
		if _, err := stopStmt.ExecContext(ctx, s.StopID, nullable(s.StopName), nullable(s.StopLat), nullable(s.StopLon)); err != nil {
			return fmt.Errorf("failed to upsert stop %s: %w", s.StopID, err)
		}
	}

	tripStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO gtfs_trips (trip_id, route_id, trip_headsign, direction_id, updated_at)
		VALUES (?, ?, ?, ?, datetime('now'))
		ON CONFLICT (trip_id) DO UPDATE SET
			route_id = excluded.route_id,
			trip_headsign = excluded.trip_headsign,
			direction_id = excluded.direction_id,
			updated_at = datetime('now')
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare trip statement: %w", err)
	}
	defer tripStmt.Close()

	for _, t := range data.Trips {
		if _, err := tripStmt.ExecContext(ctx, t.TripID, nullable(t.RouteID), nullable(t.TripHeadsign), nullable(t.DirectionID)); err != nil {
			return fmt.Errorf("failed to upsert trip %s: %w", t.TripID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit entities: %w", err)
	}
	return nil
}

// RecordLoad stores a loader run summary. An empty LoadID gets a new UUID.
func (db *DB) RecordLoad(ctx context.Context, rec LoadRecord) (string, error) {
	if rec.LoadID == "" {
		rec.LoadID = uuid.New().String()
	}

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO static_loads (load_id, loaded_at_utc, archives, failed_archives, routes, stops, trips)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.LoadID, rec.LoadedAt.UTC().Format(time.RFC3339), rec.Archives, rec.FailedArchives,
		rec.Routes, rec.Stops, rec.Trips,
	)
	if err != nil {
		return "", fmt.Errorf("failed to record load: %w", err)
	}
	return rec.LoadID, nil
}

// nullable turns an absent optional column into SQL NULL
func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
