// Package refcache holds the lookup maps used to enrich decoded feeds with
// human readable names. A Cache is never modified after Build returns; a new
// load produces a new Cache that replaces the old one through a Holder.
package refcache

import (
	"sync/atomic"

	"github.com/transit-tracker/ingest/internal/static/gtfs"
)

// Cache maps reference ids to display values
type Cache struct {
	routeNames    map[string]string
	stopNames     map[string]string
	tripHeadsigns map[string]string
}

// Sizes reports the number of entries in each map
type Sizes struct {
	Routes int `json:"routes"`
	Stops  int `json:"stops"`
	Trips  int `json:"trips"`
}

// Empty returns a cache with no entries
func Empty() *Cache {
	return &Cache{
		routeNames:    map[string]string{},
		stopNames:     map[string]string{},
		tripHeadsigns: map[string]string{},
	}
}

// Build derives a cache from parsed entities.
//
// Route name: short name, else long name, else the route id.
// Stop name: stop name, else the stop id.
// Trip headsign: only trips with a headsign get an entry.
//
// When an id repeats, the last entity wins.
func Build(data *gtfs.Data) *Cache {
	c := Empty()
	if data == nil {
		return c
	}

	for _, r := range data.Routes {
		c.routeNames[r.RouteID] = routeName(r)
	}
	for _, s := range data.Stops {
		if s.StopName != nil {
			c.stopNames[s.StopID] = *s.StopName
		} else {
			c.stopNames[s.StopID] = s.StopID
		}
	}
	for _, t := range data.Trips {
		if t.TripHeadsign != nil {
			c.tripHeadsigns[t.TripID] = *t.TripHeadsign
		}
	}
	return c
}

func routeName(r gtfs.Route) string {
	if r.RouteShortName != nil {
		return *r.RouteShortName
	}
	if r.RouteLongName != nil {
		return *r.RouteLongName
	}
	return r.RouteID
}

// RouteName looks up the display name of a route
func (c *Cache) RouteName(routeID string) (string, bool) {
	name, ok := c.routeNames[routeID]
	return name, ok
}

// StopName looks up the display name of a stop
func (c *Cache) StopName(stopID string) (string, bool) {
	name, ok := c.stopNames[stopID]
	return name, ok
}

// TripHeadsign looks up the headsign of a trip
func (c *Cache) TripHeadsign(tripID string) (string, bool) {
	headsign, ok := c.tripHeadsigns[tripID]
	return headsign, ok
}

func (c *Cache) Sizes() Sizes {
	return Sizes{
		Routes: len(c.routeNames),
		Stops:  len(c.stopNames),
		Trips:  len(c.tripHeadsigns),
	}
}

// Holder publishes the current Cache to concurrent readers.
// The zero value holds an empty cache.
type Holder struct {
	current atomic.Pointer[Cache]
}

// NewHolder returns a holder initialised with an empty cache
func NewHolder() *Holder {
	h := &Holder{}
	h.current.Store(Empty())
	return h
}

// Load returns the current cache. Callers should load once per operation.
// A nil holder yields an empty cache.
func (h *Holder) Load() *Cache {
	if h == nil {
		return Empty()
	}
	if c := h.current.Load(); c != nil {
		return c
	}
	return Empty()
}

// Store replaces the current cache
func (h *Holder) Store(c *Cache) {
	if c == nil {
		c = Empty()
	}
	h.current.Store(c)
}
