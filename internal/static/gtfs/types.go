package gtfs

// Data holds the reference entities parsed from one or more archives
type Data struct {
	Routes []Route
	Stops  []Stop
	Trips  []Trip
}

// Route represents a route from routes.txt
type Route struct {
	RouteID        string  `json:"route_id"`
	RouteShortName *string `json:"route_short_name,omitempty"`
	RouteLongName  *string `json:"route_long_name,omitempty"`
	RouteType      *int    `json:"route_type,omitempty"`
}

// Stop represents a stop from stops.txt
type Stop struct {
	StopID   string   `json:"stop_id"`
	StopName *string  `json:"stop_name,omitempty"`
	StopLat  *float64 `json:"stop_lat,omitempty"`
	StopLon  *float64 `json:"stop_lon,omitempty"`
}

// Trip represents a trip from trips.txt
type Trip struct {
	TripID       string  `json:"trip_id"`
	RouteID      *string `json:"route_id,omitempty"`
	TripHeadsign *string `json:"trip_headsign,omitempty"`
	DirectionID  *int    `json:"direction_id,omitempty"`
}

// Append adds the entities of other to d. A nil other is a no-op.
func (d *Data) Append(other *Data) {
	if other == nil {
		return
	}
	d.Routes = append(d.Routes, other.Routes...)
	d.Stops = append(d.Stops, other.Stops...)
	d.Trips = append(d.Trips, other.Trips...)
}

// Empty reports whether d holds no entities at all
func (d *Data) Empty() bool {
	return d == nil || len(d.Routes)+len(d.Stops)+len(d.Trips) == 0
}

// ParseStats counts data rows dropped for lacking their id column
type ParseStats struct {
	SkippedRoutes int
	SkippedStops  int
	SkippedTrips  int
}

// Add accumulates other into s
func (s *ParseStats) Add(other ParseStats) {
	s.SkippedRoutes += other.SkippedRoutes
	s.SkippedStops += other.SkippedStops
	s.SkippedTrips += other.SkippedTrips
}
