// Package snapshot holds the latest decoded trip and vehicle-position lists
// and broadcasts trip updates to subscribers.
package snapshot

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/transit-tracker/ingest/internal/logging"
	"github.com/transit-tracker/ingest/internal/model"
)

// DefaultBufferSize is the per-subscriber event buffer used when none is given
const DefaultBufferSize = 16

// ErrClosed is returned by Subscribe after Close
var ErrClosed = errors.New("snapshot repository closed")

type tripSnapshot struct {
	id          string
	trips       []model.Trip
	publishedAt time.Time
}

type positionSnapshot struct {
	positions []model.VehiclePosition
	updatedAt time.Time
}

// Repository keeps the current snapshot. Lists are replaced whole and never
// modified in place, so readers never block on writers.
type Repository struct {
	trips     atomic.Pointer[tripSnapshot]
	positions atomic.Pointer[positionSnapshot]

	// mu orders publications and guards the subscriber registry
	mu          sync.Mutex
	subscribers map[uint64]*Subscription
	nextID      uint64
	closed      bool

	bufferSize int
	logger     *slog.Logger
}

// New returns an empty repository. bufferSize below 1 uses DefaultBufferSize.
func New(bufferSize int, logger *slog.Logger) *Repository {
	if bufferSize < 1 {
		bufferSize = DefaultBufferSize
	}
	r := &Repository{
		subscribers: make(map[uint64]*Subscription),
		bufferSize:  bufferSize,
		logger:      logging.OrDefault(logger),
	}
	r.trips.Store(&tripSnapshot{trips: []model.Trip{}})
	r.positions.Store(&positionSnapshot{positions: []model.VehiclePosition{}})
	return r
}

// UpdateTrips installs trips as the current trip list and sends one event to
// every subscriber. It never waits on a subscriber.
func (r *Repository) UpdateTrips(trips []model.Trip) {
	stored := model.CloneTrips(trips)
	if stored == nil {
		stored = []model.Trip{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if prev := r.trips.Load(); now.Before(prev.publishedAt) {
		now = prev.publishedAt
	}

	snap := &tripSnapshot{id: uuid.New().String(), trips: stored, publishedAt: now}
	r.trips.Store(snap)

	if r.closed || len(r.subscribers) == 0 {
		return
	}

	// Subscribers share one copy, separate from the stored list
	event := model.TripUpdateEvent{
		ID:        snap.id,
		Trips:     model.CloneTrips(stored),
		Timestamp: now,
	}
	for _, sub := range r.subscribers {
		if !sub.deliver(event) {
			r.logger.Warn("subscriber buffer full, dropped oldest event",
				slog.Uint64("subscriber", sub.id),
				slog.Uint64("dropped_total", sub.Dropped()))
		}
	}
}

// UpdateVehiclePositions installs positions as the current list. No event is sent.
func (r *Repository) UpdateVehiclePositions(positions []model.VehiclePosition) {
	stored := model.CloneVehiclePositions(positions)
	if stored == nil {
		stored = []model.VehiclePosition{}
	}
	r.positions.Store(&positionSnapshot{positions: stored, updatedAt: time.Now()})
}

// AllTrips returns a copy of the current trip list
func (r *Repository) AllTrips() []model.Trip {
	return model.CloneTrips(r.trips.Load().trips)
}

// AllVehiclePositions returns a copy of the current vehicle-position list
func (r *Repository) AllVehiclePositions() []model.VehiclePosition {
	return model.CloneVehiclePositions(r.positions.Load().positions)
}

// LastPublished returns the timestamp of the latest trip publication, zero before the first
func (r *Repository) LastPublished() time.Time {
	return r.trips.Load().publishedAt
}

// VehiclePositionsUpdated returns when the vehicle-position list was last replaced
func (r *Repository) VehiclePositionsUpdated() time.Time {
	return r.positions.Load().updatedAt
}

// Counts returns the sizes of the current lists without copying them
func (r *Repository) Counts() (trips, positions int) {
	return len(r.trips.Load().trips), len(r.positions.Load().positions)
}

// Subscribe registers a subscriber that receives every trip update published
// after this call. Events are delivered in publication order; when the
// buffer is full the oldest pending event is dropped.
func (r *Repository) Subscribe() (*Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}

	r.nextID++
	sub := &Subscription{
		id:   r.nextID,
		ch:   make(chan model.TripUpdateEvent, r.bufferSize),
		repo: r,
	}
	r.subscribers[sub.id] = sub
	return sub, nil
}

// SubscriberCount returns the number of registered subscribers
func (r *Repository) SubscriberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subscribers)
}

// Close ends every subscription. The snapshot stays readable and updatable.
func (r *Repository) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	for id, sub := range r.subscribers {
		close(sub.ch)
		delete(r.subscribers, id)
	}
}

func (r *Repository) unsubscribe(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subscribers[sub.id]; !ok {
		return
	}
	delete(r.subscribers, sub.id)
	close(sub.ch)
}
