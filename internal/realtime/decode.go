package realtime

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"

	"github.com/transit-tracker/ingest/internal/model"
	"github.com/transit-tracker/ingest/internal/refcache"
)

// Result is a decoded feed. Only the list matching the decode mode is set.
type Result struct {
	Header           model.FeedHeader
	Trips            []model.Trip
	VehiclePositions []model.VehiclePosition
}

// Decoder turns GTFS-RT payloads into model entities enriched from the
// reference cache.
type Decoder struct {
	caches *refcache.Holder
}

func NewDecoder(caches *refcache.Holder) *Decoder {
	return &Decoder{caches: caches}
}

// Decode parses data according to mode. Malformed payloads yield a *DecodeFailure.
func (d *Decoder) Decode(data []byte, mode Mode) (*Result, error) {
	if mode != ModeTripUpdates && mode != ModeVehiclePositions {
		return nil, &DecodeFailure{Mode: mode, Err: fmt.Errorf("unknown feed mode %q", mode)}
	}

	feed := &gtfs.FeedMessage{}
	if err := proto.Unmarshal(data, feed); err != nil {
		return nil, &DecodeFailure{Mode: mode, Err: fmt.Errorf("failed to parse protobuf: %w", err)}
	}

	// One cache version for the whole message
	cache := d.caches.Load()

	res := &Result{Header: convertHeader(feed.Header)}
	switch mode {
	case ModeTripUpdates:
		res.Trips = convertTrips(feed.Entity, cache)
	case ModeVehiclePositions:
		res.VehiclePositions = convertVehiclePositions(feed.Entity, cache)
	}
	return res, nil
}

// DecodeTripUpdates decodes a trip-updates payload
func (d *Decoder) DecodeTripUpdates(data []byte) ([]model.Trip, error) {
	res, err := d.Decode(data, ModeTripUpdates)
	if err != nil {
		return nil, err
	}
	return res.Trips, nil
}

// DecodeVehiclePositions decodes a vehicle-positions payload
func (d *Decoder) DecodeVehiclePositions(data []byte) ([]model.VehiclePosition, error) {
	res, err := d.Decode(data, ModeVehiclePositions)
	if err != nil {
		return nil, err
	}
	return res.VehiclePositions, nil
}

func convertHeader(h *gtfs.FeedHeader) model.FeedHeader {
	var header model.FeedHeader
	if h == nil {
		return header
	}

	header.Version = h.GetGtfsRealtimeVersion()
	if h.Incrementality != nil {
		header.Incrementality = enumTag(IncrementalityMap, int32(*h.Incrementality))
	}
	if h.Timestamp != nil {
		ts := time.Unix(int64(*h.Timestamp), 0).UTC()
		header.Timestamp = &ts
	}
	return header
}

func convertTrips(entities []*gtfs.FeedEntity, cache *refcache.Cache) []model.Trip {
	trips := make([]model.Trip, 0, len(entities))
	for _, entity := range entities {
		if entity.TripUpdate == nil {
			continue
		}
		trips = append(trips, convertTrip(entity.TripUpdate, cache))
	}
	return trips
}

func convertTrip(tu *gtfs.TripUpdate, cache *refcache.Cache) model.Trip {
	trip := model.Trip{
		TripID:  tu.GetTrip().GetTripId(),
		RouteID: tu.GetTrip().GetRouteId(),
	}

	if trip.RouteID != "" {
		if name, ok := cache.RouteName(trip.RouteID); ok {
			trip.RouteName = &name
		}
	}
	if trip.TripID != "" {
		if headsign, ok := cache.TripHeadsign(trip.TripID); ok {
			trip.Headsign = &headsign
		}
	}

	if tu.Trip != nil && tu.Trip.ScheduleRelationship != nil {
		tag := enumTag(ScheduleRelationshipMap, int32(*tu.Trip.ScheduleRelationship))
		trip.ScheduleRelationship = &tag
	}

	if tu.Vehicle != nil {
		trip.Vehicle = &model.Vehicle{
			VehicleID: tu.Vehicle.GetId(),
			Label:     copyString(tu.Vehicle.Label),
		}
	}

	// Input order is kept; updates are not re-sorted by sequence
	trip.StopTimeUpdates = make([]model.StopTimeUpdate, 0, len(tu.StopTimeUpdate))
	for _, stu := range tu.StopTimeUpdate {
		trip.StopTimeUpdates = append(trip.StopTimeUpdates, convertStopTimeUpdate(stu, cache))
	}

	return trip
}

func convertStopTimeUpdate(stu *gtfs.TripUpdate_StopTimeUpdate, cache *refcache.Cache) model.StopTimeUpdate {
	update := model.StopTimeUpdate{
		StopSequence: int(stu.GetStopSequence()),
		StopID:       copyString(stu.StopId),
		Arrival:      convertStopTimeEvent(stu.Arrival),
		Departure:    convertStopTimeEvent(stu.Departure),
	}

	if stu.StopId != nil {
		if name, ok := cache.StopName(*stu.StopId); ok {
			update.StopName = &name
		}
	}
	return update
}

// convertStopTimeEvent maps an unset delay to 0
func convertStopTimeEvent(ev *gtfs.TripUpdate_StopTimeEvent) *model.StopTimeEvent {
	if ev == nil {
		return nil
	}
	return &model.StopTimeEvent{
		Time:  ev.GetTime(),
		Delay: ev.GetDelay(),
	}
}

func convertVehiclePositions(entities []*gtfs.FeedEntity, cache *refcache.Cache) []model.VehiclePosition {
	positions := make([]model.VehiclePosition, 0, len(entities))
	for _, entity := range entities {
		if entity.Vehicle == nil {
			continue
		}
		positions = append(positions, convertVehiclePosition(entity.Vehicle, cache))
	}
	return positions
}

func convertVehiclePosition(v *gtfs.VehiclePosition, cache *refcache.Cache) model.VehiclePosition {
	var pos model.VehiclePosition

	if v.Vehicle != nil {
		pos.VehicleID = copyString(v.Vehicle.Id)
		pos.Label = copyString(v.Vehicle.Label)
	}

	if v.Position != nil {
		lat := float64(v.Position.GetLatitude())
		lon := float64(v.Position.GetLongitude())
		pos.Latitude = &lat
		pos.Longitude = &lon

		if v.Position.Bearing != nil {
			bearing := float64(*v.Position.Bearing)
			pos.Bearing = &bearing
		}
		if v.Position.Speed != nil {
			speed := float64(*v.Position.Speed)
			pos.Speed = &speed
		}
	}

	if v.Timestamp != nil {
		ts := time.Unix(int64(*v.Timestamp), 0).UTC()
		pos.Timestamp = &ts
	}

	if v.Trip != nil {
		pos.TripID = copyString(v.Trip.TripId)
		pos.RouteID = copyString(v.Trip.RouteId)
		if pos.RouteID != nil {
			if name, ok := cache.RouteName(*pos.RouteID); ok {
				pos.RouteName = &name
			}
		}
	}

	return pos
}

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	s := *p
	return &s
}
