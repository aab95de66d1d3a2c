// Package model holds the decoded real-time entities shared by the decoder,
// the snapshot repository and the relay.
package model

import "time"

// Trip is one decoded trip-update entity
type Trip struct {
	TripID               string           `json:"tripId"`
	RouteID              string           `json:"routeId"`
	RouteName            *string          `json:"routeName,omitempty"`
	Headsign             *string          `json:"headsign,omitempty"`
	ScheduleRelationship *string          `json:"scheduleRelationship,omitempty"`
	Vehicle              *Vehicle         `json:"vehicle,omitempty"`
	StopTimeUpdates      []StopTimeUpdate `json:"stopTimeUpdates"`
}

// Vehicle identifies the vehicle serving a trip
type Vehicle struct {
	VehicleID string  `json:"vehicleId"`
	Label     *string `json:"label,omitempty"`
}

// StopTimeUpdate is a prediction for one stop of a trip. StopSequence orders
// updates within a trip only.
type StopTimeUpdate struct {
	StopSequence int            `json:"stopSequence"`
	StopID       *string        `json:"stopId,omitempty"`
	StopName     *string        `json:"stopName,omitempty"`
	Arrival      *StopTimeEvent `json:"arrival,omitempty"`
	Departure    *StopTimeEvent `json:"departure,omitempty"`
}

// StopTimeEvent is a predicted arrival or departure.
// Delay is 0 both for "on time" and for "not reported".
type StopTimeEvent struct {
	Time  int64 `json:"time"`
	Delay int32 `json:"delay"`
}

// VehiclePosition is one decoded vehicle entity
type VehiclePosition struct {
	VehicleID *string    `json:"vehicleId,omitempty"`
	Label     *string    `json:"label,omitempty"`
	Latitude  *float64   `json:"latitude,omitempty"`
	Longitude *float64   `json:"longitude,omitempty"`
	Bearing   *float64   `json:"bearing,omitempty"`
	Speed     *float64   `json:"speed,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	TripID    *string    `json:"tripId,omitempty"`
	RouteID   *string    `json:"routeId,omitempty"`
	RouteName *string    `json:"routeName,omitempty"`
}

// FeedHeader is the header of a decoded feed message
type FeedHeader struct {
	Version        string     `json:"gtfsRealtimeVersion"`
	Incrementality string     `json:"incrementality,omitempty"`
	Timestamp      *time.Time `json:"timestamp,omitempty"`
}

// TripUpdateEvent announces a newly installed trip list
type TripUpdateEvent struct {
	ID        string    `json:"id"`
	Trips     []Trip    `json:"trips"`
	Timestamp time.Time `json:"-"`
}
