package domain

import (
	"time"

	"github.com/google/uuid"
)

// ModelStatus tracks the lifecycle of a federated model.
type ModelStatus string

const (
	ModelInitial  ModelStatus = "initial"
	ModelTraining ModelStatus = "training"
	ModelTrained  ModelStatus = "trained"
	ModelError    ModelStatus = "error"
)

// Model is the durable record of a federated model. The current global
// weights live in the blob store under model:<id>:global; the row holds
// only version and status.
type Model struct {
	ID            uuid.UUID   `json:"id"`
	Name          string      `json:"name"`
	Architecture  string      `json:"architecture"`
	Version       int         `json:"version"`
	Status        ModelStatus `json:"status"`
	ParentModelID *uuid.UUID  `json:"parent_model_id,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// ModelMeta is the JSON metadata record stored next to the global model
// blob under model:<id>:meta.
type ModelMeta struct {
	ModelID   string `json:"model_id"`
	Name      string `json:"name"`
	Version   string `json:"version"`
	Framework string `json:"framework"`
	SizeBytes int    `json:"size_bytes"`
}
