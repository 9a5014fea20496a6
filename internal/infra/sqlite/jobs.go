package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/edgeorchestra/edgeorchestra/internal/domain"
)

// CreateJob inserts a new training job row.
func (d *DB) CreateJob(j *domain.TrainingJob) error {
	config, err := marshalNullable(j.Config)
	if err != nil {
		return fmt.Errorf("marshal job config: %w", err)
	}
	metrics, err := marshalNullable(j.RoundMetrics)
	if err != nil {
		return fmt.Errorf("marshal round metrics: %w", err)
	}

	var modelID any
	if j.ModelID != nil {
		modelID = j.ModelID.String()
	}

	_, err = d.db.Exec(`
		INSERT INTO training_jobs (id, model_id, status, num_rounds, current_round,
			min_devices, learning_rate, round_metrics, config, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID.String(), modelID, string(j.Status), j.NumRounds, j.CurrentRound,
		j.MinDevices, j.LearningRate, metrics, config,
		j.CreatedAt.Unix(), j.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob returns the job or (nil, nil) when absent.
func (d *DB) GetJob(id uuid.UUID) (*domain.TrainingJob, error) {
	row := d.db.QueryRow(`
		SELECT id, model_id, status, num_rounds, current_round, min_devices,
			learning_rate, round_metrics, config, created_at, updated_at, completed_at
		FROM training_jobs WHERE id = ?`, id.String())
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return j, err
}

// ListJobs returns jobs newest-first, optionally filtered by status.
func (d *DB) ListJobs(status domain.JobStatus) ([]domain.TrainingJob, error) {
	query := `
		SELECT id, model_id, status, num_rounds, current_round, min_devices,
			learning_rate, round_metrics, config, created_at, updated_at, completed_at
		FROM training_jobs`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.TrainingJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// UpdateJobStatus transitions a job's lifecycle state.
func (d *DB) UpdateJobStatus(id uuid.UUID, status domain.JobStatus) error {
	_, err := d.db.Exec(`UPDATE training_jobs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().Unix(), id.String())
	return err
}

// CompleteJob marks a job terminal and stamps completed_at.
func (d *DB) CompleteJob(id uuid.UUID, status domain.JobStatus) error {
	now := time.Now().Unix()
	_, err := d.db.Exec(`
		UPDATE training_jobs SET status = ?, updated_at = ?, completed_at = ? WHERE id = ?`,
		string(status), now, now, id.String())
	return err
}

// SetJobModel attaches an auto-created model to a job started without one.
func (d *DB) SetJobModel(id, modelID uuid.UUID) error {
	_, err := d.db.Exec(`UPDATE training_jobs SET model_id = ?, updated_at = ? WHERE id = ?`,
		modelID.String(), time.Now().Unix(), id.String())
	return err
}

// SetJobRound persists the round checkpoint.
func (d *DB) SetJobRound(id uuid.UUID, round int) error {
	_, err := d.db.Exec(`UPDATE training_jobs SET current_round = ?, updated_at = ? WHERE id = ?`,
		round, time.Now().Unix(), id.String())
	return err
}

// SetJobMetrics rewrites the accumulated round metrics JSON.
func (d *DB) SetJobMetrics(id uuid.UUID, metrics *domain.RoundMetrics) error {
	raw, err := marshalNullable(metrics)
	if err != nil {
		return fmt.Errorf("marshal round metrics: %w", err)
	}
	_, err = d.db.Exec(`UPDATE training_jobs SET round_metrics = ?, updated_at = ? WHERE id = ?`,
		raw, time.Now().Unix(), id.String())
	return err
}

func marshalNullable(v any) (any, error) {
	switch t := v.(type) {
	case *domain.JobConfig:
		if t == nil {
			return nil, nil
		}
	case *domain.RoundMetrics:
		if t == nil {
			return nil, nil
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func scanJob(row rowScanner) (*domain.TrainingJob, error) {
	var (
		j           domain.TrainingJob
		id          string
		modelID     sql.NullString
		status      string
		metrics     sql.NullString
		config      sql.NullString
		createdAt   int64
		updatedAt   int64
		completedAt sql.NullInt64
	)
	err := row.Scan(&id, &modelID, &status, &j.NumRounds, &j.CurrentRound,
		&j.MinDevices, &j.LearningRate, &metrics, &config,
		&createdAt, &updatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	j.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("job id %q: %w", id, err)
	}
	if modelID.Valid {
		mid, err := uuid.Parse(modelID.String)
		if err != nil {
			return nil, fmt.Errorf("job model id %q: %w", modelID.String, err)
		}
		j.ModelID = &mid
	}
	j.Status = domain.JobStatus(status)
	if metrics.Valid {
		j.RoundMetrics = &domain.RoundMetrics{}
		if err := json.Unmarshal([]byte(metrics.String), j.RoundMetrics); err != nil {
			return nil, fmt.Errorf("job round metrics: %w", err)
		}
	}
	if config.Valid {
		j.Config = &domain.JobConfig{}
		if err := json.Unmarshal([]byte(config.String), j.Config); err != nil {
			return nil, fmt.Errorf("job config: %w", err)
		}
	}
	j.CreatedAt = time.Unix(createdAt, 0).UTC()
	j.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0).UTC()
		j.CompletedAt = &t
	}
	return &j, nil
}
