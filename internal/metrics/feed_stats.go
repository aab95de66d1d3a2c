package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/transit-tracker/ingest/internal/model"
)

// FeedSnapshot is a point-in-time copy of one feed's statistics
type FeedSnapshot struct {
	Feed          string            `json:"feed"`
	Successes     int               `json:"successes"`
	Failures      int               `json:"failures"`
	Skipped       int               `json:"skippedTicks"`
	LastSuccess   *time.Time        `json:"lastSuccess,omitempty"`
	LastFailure   *time.Time        `json:"lastFailure,omitempty"`
	LastError     string            `json:"lastError,omitempty"`
	LastEntities  int               `json:"lastEntities"`
	LastHeader    *model.FeedHeader `json:"lastHeader,omitempty"`
	MeanLatencyMs float64           `json:"meanLatencyMs"`
	StdLatencyMs  float64           `json:"stddevLatencyMs"`
}

type feedState struct {
	snapshot FeedSnapshot
	latency  WelfordState
}

// FeedStats tracks poll outcomes per feed. Safe for concurrent use.
type FeedStats struct {
	mu    sync.Mutex
	feeds map[string]*feedState
}

func NewFeedStats() *FeedStats {
	return &FeedStats{feeds: make(map[string]*feedState)}
}

func (s *FeedStats) state(feed string) *feedState {
	st, ok := s.feeds[feed]
	if !ok {
		st = &feedState{snapshot: FeedSnapshot{Feed: feed}}
		s.feeds[feed] = st
	}
	return st
}

// RecordSuccess notes a published poll of feed with its latency and entity count
func (s *FeedStats) RecordSuccess(feed string, latency time.Duration, entities int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(feed)
	now := time.Now().UTC()
	st.snapshot.Successes++
	st.snapshot.LastSuccess = &now
	st.snapshot.LastEntities = entities
	st.latency.Update(float64(latency) / float64(time.Millisecond))
}

// RecordHeader keeps header as the last decoded header of feed
func (s *FeedStats) RecordHeader(feed string, header model.FeedHeader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state(feed).snapshot.LastHeader = &header
}

// LastHeader returns the last header recorded for feed
func (s *FeedStats) LastHeader(feed string) (model.FeedHeader, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.feeds[feed]
	if !ok || st.snapshot.LastHeader == nil {
		return model.FeedHeader{}, false
	}
	return *st.snapshot.LastHeader, true
}

// RecordFailure notes a failed poll of feed
func (s *FeedStats) RecordFailure(feed string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(feed)
	now := time.Now().UTC()
	st.snapshot.Failures++
	st.snapshot.LastFailure = &now
	if err != nil {
		st.snapshot.LastError = err.Error()
	}
}

// RecordSkip notes a tick skipped because the previous one was still running
func (s *FeedStats) RecordSkip(feed string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state(feed).snapshot.Skipped++
}

// Snapshot returns every feed's statistics ordered by feed name
func (s *FeedStats) Snapshot() []FeedSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]FeedSnapshot, 0, len(s.feeds))
	for _, st := range s.feeds {
		snap := st.snapshot
		snap.MeanLatencyMs = st.latency.Mean
		snap.StdLatencyMs = st.latency.StdDev()
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Feed < out[j].Feed })
	return out
}
