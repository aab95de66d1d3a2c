package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestTripCloneIsIndependent(t *testing.T) {
	original := Trip{
		TripID:               "T1",
		RouteID:              "R1",
		RouteName:            strPtr("King"),
		ScheduleRelationship: strPtr("SCHEDULED"),
		Vehicle:              &Vehicle{VehicleID: "V1", Label: strPtr("Bus 1")},
		StopTimeUpdates: []StopTimeUpdate{
			{StopSequence: 3, StopID: strPtr("S1"), Arrival: &StopTimeEvent{Time: 1000, Delay: 30}},
		},
	}

	clone := original.Clone()
	require.Equal(t, original, clone)

	*clone.RouteName = "Queen"
	clone.Vehicle.VehicleID = "V2"
	*clone.Vehicle.Label = "Bus 2"
	clone.StopTimeUpdates[0].Arrival.Delay = 99
	*clone.StopTimeUpdates[0].StopID = "S9"

	assert.Equal(t, "King", *original.RouteName)
	assert.Equal(t, "V1", original.Vehicle.VehicleID)
	assert.Equal(t, "Bus 1", *original.Vehicle.Label)
	assert.Equal(t, int32(30), original.StopTimeUpdates[0].Arrival.Delay)
	assert.Equal(t, "S1", *original.StopTimeUpdates[0].StopID)
}

func TestCloneTripsPreservesNilAndOrder(t *testing.T) {
	assert.Nil(t, CloneTrips(nil))
	assert.NotNil(t, CloneTrips([]Trip{}))

	trips := []Trip{{TripID: "B"}, {TripID: "A"}, {TripID: "B"}}
	clone := CloneTrips(trips)
	assert.Equal(t, trips, clone)

	clone[0].TripID = "Z"
	assert.Equal(t, "B", trips[0].TripID)
}

func TestVehiclePositionClone(t *testing.T) {
	lat, lon := 52.5, 13.4
	ts := time.Unix(1700000000, 0).UTC()
	original := []VehiclePosition{{
		VehicleID: strPtr("V1"),
		Latitude:  &lat,
		Longitude: &lon,
		Timestamp: &ts,
	}}

	clone := CloneVehiclePositions(original)
	require.Equal(t, original, clone)

	*clone[0].Latitude = 0
	*clone[0].VehicleID = "V2"
	assert.Equal(t, 52.5, *original[0].Latitude)
	assert.Equal(t, "V1", *original[0].VehicleID)
	assert.Nil(t, CloneVehiclePositions(nil))
}
