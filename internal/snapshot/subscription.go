package snapshot

import (
	"sync/atomic"

	"github.com/transit-tracker/ingest/internal/model"
)

// Subscription is one consumer of trip update events.
// Events carry lists shared with other subscribers; treat them as read-only.
type Subscription struct {
	id      uint64
	ch      chan model.TripUpdateEvent
	repo    *Repository
	dropped atomic.Uint64
}

// Events returns the event channel. It is closed by Close or Repository.Close.
func (s *Subscription) Events() <-chan model.TripUpdateEvent {
	return s.ch
}

// Dropped returns how many events were discarded because the buffer was full
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unregisters the subscription and closes its channel. Safe to call twice.
func (s *Subscription) Close() {
	s.repo.unsubscribe(s)
}

// deliver enqueues ev, evicting the oldest queued event when full.
// It reports false when an event had to be dropped. Called with repo.mu held.
func (s *Subscription) deliver(ev model.TripUpdateEvent) bool {
	select {
	case s.ch <- ev:
		return true
	default:
	}

	select {
	case <-s.ch:
		s.dropped.Add(1)
	default:
	}

	select {
	case s.ch <- ev:
	default:
		s.dropped.Add(1)
	}
	return false
}
