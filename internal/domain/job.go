package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus tracks the lifecycle of a training job. Terminal statuses are
// sticky except for the explicit failed → running retry transition.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobStopped   JobStatus = "stopped"
	JobFailed    JobStatus = "failed"
)

// IsTerminal reports whether s is a final job state.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobStopped || s == JobFailed
}

// TrainingJob drives a model through NumRounds federated rounds.
// CurrentRound is the checkpoint: the last round whose aggregation was
// persisted, 0 at creation. Invariant: CurrentRound <= NumRounds.
type TrainingJob struct {
	ID           uuid.UUID     `json:"id"`
	ModelID      *uuid.UUID    `json:"model_id,omitempty"`
	Status       JobStatus     `json:"status"`
	NumRounds    int           `json:"num_rounds"`
	CurrentRound int           `json:"current_round"`
	MinDevices   int           `json:"min_devices"`
	LearningRate float64       `json:"learning_rate"`
	RoundMetrics *RoundMetrics `json:"round_metrics,omitempty"`
	Config       *JobConfig    `json:"config,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
}

// JobConfig carries optional per-job overrides.
type JobConfig struct {
	Scheduler *SchedulerPolicy `json:"scheduler,omitempty"`
}

// SchedulerPolicy is the per-job device-selection override. Nil fields fall
// back to the scheduler defaults.
type SchedulerPolicy struct {
	Enabled            bool               `json:"enabled"`
	TargetDevices      *int               `json:"target_devices,omitempty"`
	MinBattery         *float64           `json:"min_battery,omitempty"`
	AllowLowPowerMode  *bool              `json:"allow_low_power_mode,omitempty"`
	MaxThermalPressure *float64           `json:"max_thermal_pressure,omitempty"`
	MaxCPUUsage        *float64           `json:"max_cpu_usage,omitempty"`
	Weights            map[string]float64 `json:"weights,omitempty"`
}

// RoundMetrics is the persisted per-job sequence of round outcomes,
// stored as JSON in the training_jobs row and rewritten whole on every
// append.
type RoundMetrics struct {
	Rounds []RoundRecord `json:"rounds"`
}

// Skip reasons recorded on rounds that produced no aggregation.
const (
	SkipNoSubmissions = "no_submissions"
	SkipAllInvalid    = "all_invalid"
)

// RoundRecord is the outcome of one training round. Skipped rounds carry
// Reason to distinguish "no device submitted" from "every submission was
// invalid".
type RoundRecord struct {
	Round         int                 `json:"round"`
	Participants  int                 `json:"participants"`
	Dispatched    int                 `json:"dispatched,omitempty"`
	AvgLoss       *float64            `json:"avg_loss"`
	AvgAccuracy   *float64            `json:"avg_accuracy"`
	Skipped       bool                `json:"skipped,omitempty"`
	Reason        string              `json:"reason,omitempty"`
	Retries       int                 `json:"retries,omitempty"`
	DeviceMetrics []DeviceRoundMetric `json:"device_metrics,omitempty"`
}

// DeviceRoundMetric is one device's contribution to a round.
type DeviceRoundMetric struct {
	DeviceID   string             `json:"device_id"`
	NumSamples int                `json:"num_samples"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
}

// LatestMetrics is published to the blob store after every round so
// heartbeat responses can piggy-back the newest training scalars.
type LatestMetrics struct {
	ServerAccuracy float64 `json:"server_accuracy"`
	ServerLoss     float64 `json:"server_loss"`
	Round          int     `json:"round"`
	JobID          string  `json:"job_id"`
}
