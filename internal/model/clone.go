package model

// CloneTrips returns a deep copy of trips. A nil input stays nil.
func CloneTrips(trips []Trip) []Trip {
	if trips == nil {
		return nil
	}
	out := make([]Trip, len(trips))
	for i := range trips {
		out[i] = trips[i].Clone()
	}
	return out
}

// CloneVehiclePositions returns a deep copy of positions. A nil input stays nil.
func CloneVehiclePositions(positions []VehiclePosition) []VehiclePosition {
	if positions == nil {
		return nil
	}
	out := make([]VehiclePosition, len(positions))
	for i := range positions {
		out[i] = positions[i].Clone()
	}
	return out
}

// Clone returns a copy of t sharing no memory with it
func (t Trip) Clone() Trip {
	c := t
	c.RouteName = clonePtr(t.RouteName)
	c.Headsign = clonePtr(t.Headsign)
	c.ScheduleRelationship = clonePtr(t.ScheduleRelationship)
	if t.Vehicle != nil {
		v := *t.Vehicle
		v.Label = clonePtr(t.Vehicle.Label)
		c.Vehicle = &v
	}
	if t.StopTimeUpdates != nil {
		c.StopTimeUpdates = make([]StopTimeUpdate, len(t.StopTimeUpdates))
		for i, stu := range t.StopTimeUpdates {
			stu.StopID = clonePtr(stu.StopID)
			stu.StopName = clonePtr(stu.StopName)
			stu.Arrival = clonePtr(stu.Arrival)
			stu.Departure = clonePtr(stu.Departure)
			c.StopTimeUpdates[i] = stu
		}
	}
	return c
}

// Clone returns a copy of p sharing no memory with it
func (p VehiclePosition) Clone() VehiclePosition {
	return VehiclePosition{
		VehicleID: clonePtr(p.VehicleID),
		Label:     clonePtr(p.Label),
		Latitude:  clonePtr(p.Latitude),
		Longitude: clonePtr(p.Longitude),
		Bearing:   clonePtr(p.Bearing),
		Speed:     clonePtr(p.Speed),
		Timestamp: clonePtr(p.Timestamp),
		TripID:    clonePtr(p.TripID),
		RouteID:   clonePtr(p.RouteID),
		RouteName: clonePtr(p.RouteName),
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
