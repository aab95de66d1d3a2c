// Package server exposes the operational HTTP surface of the ingestion
// service: liveness, readiness and a status summary.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/transit-tracker/ingest/internal/logging"
	"github.com/transit-tracker/ingest/internal/metrics"
	"github.com/transit-tracker/ingest/internal/refcache"
	"github.com/transit-tracker/ingest/internal/static"
)

// SnapshotReader is the read side of the snapshot repository
type SnapshotReader interface {
	Counts() (trips, positions int)
	LastPublished() time.Time
	VehiclePositionsUpdated() time.Time
	SubscriberCount() int
}

// Deps are the collaborators the handlers report on
type Deps struct {
	Snapshot SnapshotReader
	Caches   *refcache.Holder
	Stats    *metrics.FeedStats
	// Ready reports whether the startup reference load has completed
	Ready        func() bool
	ManifestPath string
	CORSOrigins  []string
	Logger       *slog.Logger
}

type Server struct {
	deps   Deps
	logger *slog.Logger
}

func New(deps Deps) *Server {
	return &Server{deps: deps, logger: logging.OrDefault(deps.Logger)}
}

// HealthResponse is the JSON body of GET /health
type HealthResponse struct {
	Status        string    `json:"status"`
	ReferenceData string    `json:"referenceData"`
	Timestamp     time.Time `json:"timestamp"`
}

// StatusResponse is the JSON body of GET /status
type StatusResponse struct {
	Trips                   int                    `json:"trips"`
	VehiclePositions        int                    `json:"vehiclePositions"`
	LastPublished           *time.Time             `json:"lastPublished,omitempty"`
	VehiclePositionsUpdated *time.Time             `json:"vehiclePositionsUpdated,omitempty"`
	Subscribers             int                    `json:"subscribers"`
	ReferenceCache          refcache.Sizes         `json:"referenceCache"`
	Feeds                   []metrics.FeedSnapshot `json:"feeds"`
	StaticManifest          *static.Manifest       `json:"staticManifest,omitempty"`
	GeneratedAt             time.Time              `json:"generatedAt"`
}

// ErrorResponse is the JSON error body
type ErrorResponse struct {
	Error string `json:"error"`
}

// Handler builds the router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	if len(s.deps.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.deps.CORSOrigins,
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}))
	}

	r.Get("/health", s.health)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/status", s.status)
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil && !s.deps.Ready() {
		s.writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:        "starting",
			ReferenceData: "loading",
			Timestamp:     time.Now().UTC(),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		ReferenceData: "loaded",
		Timestamp:     time.Now().UTC(),
	})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	if s.deps.Snapshot == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "snapshot repository not configured"})
		return
	}

	resp := StatusResponse{
		Subscribers:    s.deps.Snapshot.SubscriberCount(),
		ReferenceCache: s.deps.Caches.Load().Sizes(),
		Feeds:          []metrics.FeedSnapshot{},
		GeneratedAt:    time.Now().UTC(),
	}
	resp.Trips, resp.VehiclePositions = s.deps.Snapshot.Counts()
	resp.LastPublished = optionalTime(s.deps.Snapshot.LastPublished())
	resp.VehiclePositionsUpdated = optionalTime(s.deps.Snapshot.VehiclePositionsUpdated())

	if s.deps.Stats != nil {
		resp.Feeds = s.deps.Stats.Snapshot()
	}

	if s.deps.ManifestPath != "" {
		manifest, err := static.ReadManifest(s.deps.ManifestPath)
		if err != nil {
			s.logger.Debug("static manifest unavailable", slog.String("error", err.Error()))
		} else {
			resp.StaticManifest = manifest
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.LogError(s.logger, "failed to encode response", err)
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}
