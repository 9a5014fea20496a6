// Package api provides the operator-facing HTTP server: training job
// lifecycle, device fleet, model registry, architectures, health and
// Prometheus metrics.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/edgeorchestra/edgeorchestra/internal/coordinator"
	"github.com/edgeorchestra/edgeorchestra/internal/domain"
	"github.com/edgeorchestra/edgeorchestra/internal/infra/blob"
)

// Store is the slice of the repositories the API serves from.
type Store interface {
	CreateJob(j *domain.TrainingJob) error
	GetJob(id uuid.UUID) (*domain.TrainingJob, error)
	ListJobs(status domain.JobStatus) ([]domain.TrainingJob, error)
	UpdateJobStatus(id uuid.UUID, status domain.JobStatus) error
	CompleteJob(id uuid.UUID, status domain.JobStatus) error

	CreateModel(m *domain.Model) error
	GetModel(id uuid.UUID) (*domain.Model, error)
	ListModels() ([]domain.Model, error)
	DeleteModel(id uuid.UUID) (bool, error)
	JobsReferencingModel(id uuid.UUID, statuses ...domain.JobStatus) (int, error)

	GetDevice(id uuid.UUID) (*domain.Device, error)
	ListDevices(status domain.DeviceStatus) ([]domain.Device, error)
	DeleteDevice(id uuid.UUID) (bool, error)
}

// HealthReporter produces the /health payload.
type HealthReporter interface {
	Report(r *http.Request) (healthy bool, detail map[string]string)
}

// Server is the operator HTTP API.
type Server struct {
	store  Store
	blobs  blob.Store
	coord  *coordinator.Coordinator
	apiKey string
	health HealthReporter
	log    zerolog.Logger
}

// NewServer creates the operator API server. An empty apiKey disables
// authentication.
func NewServer(store Store, blobs blob.Store, coord *coordinator.Coordinator, apiKey string, log zerolog.Logger) *Server {
	return &Server{
		store:  store,
		blobs:  blobs,
		coord:  coord,
		apiKey: apiKey,
		log:    log.With().Str("component", "api").Logger(),
	}
}

// SetHealthReporter wires the health checker into /health.
func (s *Server) SetHealthReporter(h HealthReporter) { s.health = h }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(s.logRequests)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.requireAPIKey)

		r.Route("/training/jobs", func(r chi.Router) {
			r.Post("/", s.handleCreateJob)
			r.Get("/", s.handleListJobs)
			r.Get("/{id}", s.handleGetJob)
			r.Post("/{id}/stop", s.handleStopJob)
			r.Post("/{id}/retry", s.handleRetryJob)
			r.Get("/{id}/model", s.handleDownloadJobModel)
		})

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Get("/{id}", s.handleGetDevice)
			r.Delete("/{id}", s.handleDeleteDevice)
		})

		r.Route("/models", func(r chi.Router) {
			r.Post("/", s.handleCreateModel)
			r.Get("/", s.handleListModels)
			r.Get("/{id}", s.handleGetModel)
			r.Delete("/{id}", s.handleDeleteModel)
		})

		r.Get("/architectures", s.handleListArchitectures)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	healthy, detail := s.health.Report(r)
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, detail)
}

// requireAPIKey rejects requests without the configured key. With no key
// configured every request passes.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("X-API-Key") != s.apiKey {
			writeError(w, domain.E(domain.KindUnauthenticated, "missing or invalid API key"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps a classified error to its status code and JSON body.
func writeError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	msg := err.Error()
	if kind == domain.KindInternal {
		// Unclassified errors must not leak details.
		msg = "internal error"
	}
	writeJSON(w, kind.HTTPStatus(), map[string]any{
		"error": map[string]string{
			"type":    kind.String(),
			"message": msg,
		},
	})
}

// pathID parses the {id} route parameter.
func pathID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, domain.E(domain.KindInvalidArgument, "invalid id %q", raw)
	}
	return id, nil
}
