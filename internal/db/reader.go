package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/transit-tracker/ingest/internal/static/gtfs"
)

// LoadEntities returns every persisted route, stop and trip ordered by id
func (db *DB) LoadEntities(ctx context.Context) (*gtfs.Data, error) {
	data := &gtfs.Data{}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT route_id, route_short_name, route_long_name, route_type FROM gtfs_routes ORDER BY route_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query routes: %w", err)
	}
	for rows.Next() {
		var r gtfs.Route
		var short, long sql.NullString
		var routeType sql.NullInt64
		if err := rows.Scan(&r.RouteID, &short, &long, &routeType); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan route: %w", err)
		}
		r.RouteShortName = nullString(short)
		r.RouteLongName = nullString(long)
		r.RouteType = nullInt(routeType)
		data.Routes = append(data.Routes, r)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	rows, err = db.conn.QueryContext(ctx,
		`SELECT stop_id, stop_name, stop_lat, stop_lon FROM gtfs_stops ORDER BY stop_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stops: %w", err)
	}
	for rows.Next() {
		var s gtfs.Stop
		var name sql.NullString
		var lat, lon sql.NullFloat64
		if err := rows.Scan(&s.StopID, &name, &lat, &lon); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan stop: %w", err)
		}
		s.StopName = nullString(name)
		s.StopLat = nullFloat(lat)
		s.StopLon = nullFloat(lon)
		data.Stops = append(data.Stops, s)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	rows, err = db.conn.QueryContext(ctx,
		`SELECT trip_id, route_id, trip_headsign, direction_id FROM gtfs_trips ORDER BY trip_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query trips: %w", err)
	}
	for rows.Next() {
		var t gtfs.Trip
		var routeID, headsign sql.NullString
		var direction sql.NullInt64
		if err := rows.Scan(&t.TripID, &routeID, &headsign, &direction); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan trip: %w", err)
		}
		t.RouteID = nullString(routeID)
		t.TripHeadsign = nullString(headsign)
		t.DirectionID = nullInt(direction)
		data.Trips = append(data.Trips, t)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	return data, nil
}

// LatestLoad returns the most recent loader run, or nil when none was recorded
func (db *DB) LatestLoad(ctx context.Context) (*LoadRecord, error) {
	var rec LoadRecord
	var loadedAt string
	err := db.conn.QueryRowContext(ctx, `
		SELECT load_id, loaded_at_utc, archives, failed_archives, routes, stops, trips
		FROM static_loads ORDER BY loaded_at_utc DESC LIMIT 1`,
	).Scan(&rec.LoadID, &loadedAt, &rec.Archives, &rec.FailedArchives, &rec.Routes, &rec.Stops, &rec.Trips)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest load: %w", err)
	}

	rec.LoadedAt, err = time.Parse(time.RFC3339, loadedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid loaded_at_utc %q: %w", loadedAt, err)
	}
	return &rec, nil
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("failed to iterate rows: %w", err)
	}
	return rows.Close()
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}
