package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/edgeorchestra/edgeorchestra/internal/domain"
	"github.com/edgeorchestra/edgeorchestra/internal/fed/arch"
	"github.com/edgeorchestra/edgeorchestra/internal/infra/blob"
)

type createJobRequest struct {
	ModelID      *uuid.UUID        `json:"model_id,omitempty"`
	NumRounds    int               `json:"num_rounds"`
	MinDevices   *int              `json:"min_devices,omitempty"`
	LearningRate float64           `json:"learning_rate,omitempty"`
	Config       *domain.JobConfig `json:"config,omitempty"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.E(domain.KindInvalidArgument, "malformed request body"))
		return
	}
	if req.NumRounds < 1 {
		writeError(w, domain.E(domain.KindInvalidArgument, "num_rounds must be >= 1"))
		return
	}
	minDevices := 1
	if req.MinDevices != nil {
		if *req.MinDevices < 1 {
			writeError(w, domain.E(domain.KindInvalidArgument, "min_devices must be >= 1"))
			return
		}
		minDevices = *req.MinDevices
	}
	if req.LearningRate < 0 {
		writeError(w, domain.E(domain.KindInvalidArgument, "learning_rate must be >= 0"))
		return
	}
	if req.LearningRate == 0 {
		req.LearningRate = 0.01
	}
	if req.ModelID != nil {
		model, err := s.store.GetModel(*req.ModelID)
		if err != nil {
			writeError(w, err)
			return
		}
		if model == nil {
			writeError(w, domain.E(domain.KindNotFound, "model %s not found", req.ModelID))
			return
		}
	}

	now := time.Now().UTC()
	job := &domain.TrainingJob{
		ID:           uuid.New(),
		ModelID:      req.ModelID,
		Status:       domain.JobPending,
		NumRounds:    req.NumRounds,
		MinDevices:   minDevices,
		LearningRate: req.LearningRate,
		Config:       req.Config,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateJob(job); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	status := domain.JobStatus(r.URL.Query().Get("status"))
	if status != "" {
		switch status {
		case domain.JobPending, domain.JobRunning, domain.JobCompleted, domain.JobStopped, domain.JobFailed:
		default:
			writeError(w, domain.E(domain.KindInvalidArgument, "unknown job status %q", status))
			return
		}
	}
	jobs, err := s.store.ListJobs(status)
	if err != nil {
		writeError(w, err)
		return
	}
	if jobs == nil {
		jobs = []domain.TrainingJob{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleStopJob requests a graceful stop. Pending jobs stop immediately;
// running jobs get a stop flag the coordinator consumes at the next
// round boundary.
func (s *Server) handleStopJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	switch job.Status {
	case domain.JobPending:
		if err := s.store.CompleteJob(job.ID, domain.JobStopped); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": job.ID.String(), "status": string(domain.JobStopped)})
	case domain.JobRunning:
		if err := s.coord.StopJob(r.Context(), job.ID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": job.ID.String(), "status": "stopping"})
	default:
		writeError(w, domain.E(domain.KindFailedPrecondition, "job is %s, cannot stop", job.Status))
	}
}

// handleRetryJob re-arms a failed job. The coordinator re-owns it and
// resumes from the round after the last persisted checkpoint.
func (s *Server) handleRetryJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	if job.Status != domain.JobFailed {
		writeError(w, domain.E(domain.KindFailedPrecondition, "job is %s, only failed jobs can be retried", job.Status))
		return
	}
	if err := s.store.UpdateJobStatus(job.ID, domain.JobRunning); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":                job.ID.String(),
		"status":            string(domain.JobRunning),
		"resume_from_round": job.CurrentRound + 1,
	})
}

// handleDownloadJobModel streams the job's current global model blob.
func (s *Server) handleDownloadJobModel(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	modelKey := job.ID.String()
	if job.ModelID != nil {
		modelKey = job.ModelID.String()
	}
	encoded, exists, err := s.blobs.Get(r.Context(), blob.ModelGlobalKey(modelKey))
	if err != nil {
		writeError(w, err)
		return
	}
	if !exists {
		writeError(w, domain.E(domain.KindNotFound, "no model blob for job %s", job.ID))
		return
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		writeError(w, domain.Wrap(domain.KindInternal, err, "corrupt model blob"))
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}

func (s *Server) handleListArchitectures(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"architectures": arch.List()})
}

func (s *Server) loadJob(w http.ResponseWriter, r *http.Request) (*domain.TrainingJob, bool) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	job, err := s.store.GetJob(id)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	if job == nil {
		writeError(w, domain.E(domain.KindNotFound, "job %s not found", id))
		return nil, false
	}
	return job, true
}
