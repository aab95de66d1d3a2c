package store

import (
	"context"
	"sort"
	"sync"

	"github.com/transit-tracker/ingest/internal/static/gtfs"
)

// Memory keeps entities in process memory
type Memory struct {
	mu     sync.RWMutex
	routes map[string]gtfs.Route
	stops  map[string]gtfs.Stop
	trips  map[string]gtfs.Trip
}

func NewMemory() *Memory {
	return &Memory{
		routes: make(map[string]gtfs.Route),
		stops:  make(map[string]gtfs.Stop),
		trips:  make(map[string]gtfs.Trip),
	}
}

func (m *Memory) SaveEntities(_ context.Context, data *gtfs.Data) error {
	if data == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range data.Routes {
		m.routes[r.RouteID] = r
	}
	for _, s := range data.Stops {
		m.stops[s.StopID] = s
	}
	for _, t := range data.Trips {
		m.trips[t.TripID] = t
	}
	return nil
}

func (m *Memory) LoadEntities(_ context.Context) (*gtfs.Data, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data := &gtfs.Data{
		Routes: make([]gtfs.Route, 0, len(m.routes)),
		Stops:  make([]gtfs.Stop, 0, len(m.stops)),
		Trips:  make([]gtfs.Trip, 0, len(m.trips)),
	}
	for _, r := range m.routes {
		data.Routes = append(data.Routes, r)
	}
	for _, s := range m.stops {
		data.Stops = append(data.Stops, s)
	}
	for _, t := range m.trips {
		data.Trips = append(data.Trips, t)
	}
	sortData(data)
	return data, nil
}

func (m *Memory) Close() error { return nil }

func sortData(data *gtfs.Data) {
	sort.Slice(data.Routes, func(i, j int) bool { return data.Routes[i].RouteID < data.Routes[j].RouteID })
	sort.Slice(data.Stops, func(i, j int) bool { return data.Stops[i].StopID < data.Stops[j].StopID })
	sort.Slice(data.Trips, func(i, j int) bool { return data.Trips[i].TripID < data.Trips[j].TripID })
}
