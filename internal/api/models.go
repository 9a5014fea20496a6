package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/edgeorchestra/edgeorchestra/internal/domain"
	"github.com/edgeorchestra/edgeorchestra/internal/fed/arch"
	"github.com/edgeorchestra/edgeorchestra/internal/infra/blob"
)

type createModelRequest struct {
	Name          string     `json:"name"`
	Architecture  string     `json:"architecture"`
	ParentModelID *uuid.UUID `json:"parent_model_id,omitempty"`
}

func (s *Server) handleCreateModel(w http.ResponseWriter, r *http.Request) {
	var req createModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.E(domain.KindInvalidArgument, "malformed request body"))
		return
	}
	if req.Name == "" {
		writeError(w, domain.E(domain.KindInvalidArgument, "name is required"))
		return
	}
	if req.Architecture == "" {
		req.Architecture = arch.DefaultKey
	}
	if _, err := arch.Get(req.Architecture); err != nil {
		writeError(w, domain.E(domain.KindInvalidArgument, "unknown architecture %q", req.Architecture))
		return
	}
	if req.ParentModelID != nil {
		parent, err := s.store.GetModel(*req.ParentModelID)
		if err != nil {
			writeError(w, err)
			return
		}
		if parent == nil {
			writeError(w, domain.E(domain.KindNotFound, "parent model %s not found", req.ParentModelID))
			return
		}
	}

	now := time.Now().UTC()
	model := &domain.Model{
		ID:            uuid.New(),
		Name:          req.Name,
		Architecture:  req.Architecture,
		Status:        domain.ModelInitial,
		ParentModelID: req.ParentModelID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateModel(model); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, model)
}

func (s *Server) handleListModels(w http.ResponseWriter, _ *http.Request) {
	models, err := s.store.ListModels()
	if err != nil {
		writeError(w, err)
		return
	}
	if models == nil {
		models = []domain.Model{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": models})
}

func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	model, err := s.store.GetModel(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if model == nil {
		writeError(w, domain.E(domain.KindNotFound, "model %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, model)
}

// handleDeleteModel removes a model and its blob-store keys. Deletion is
// refused while an active training job references the model.
func (s *Server) handleDeleteModel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	active, err := s.store.JobsReferencingModel(id, domain.JobPending, domain.JobRunning)
	if err != nil {
		writeError(w, err)
		return
	}
	if active > 0 {
		writeError(w, domain.E(domain.KindFailedPrecondition, "model %s is referenced by %d active training job(s)", id, active))
		return
	}
	deleted, err := s.store.DeleteModel(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !deleted {
		writeError(w, domain.E(domain.KindNotFound, "model %s not found", id))
		return
	}
	s.blobs.DeletePattern(r.Context(), blob.ModelPattern(id.String()))
	s.blobs.DeletePattern(r.Context(), blob.GradientsPattern(id.String()))
	writeJSON(w, http.StatusOK, map[string]string{"id": id.String(), "status": "deleted"})
}
