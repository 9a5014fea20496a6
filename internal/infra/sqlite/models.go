package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/edgeorchestra/edgeorchestra/internal/domain"
)

// CreateModel inserts a new model row.
func (d *DB) CreateModel(m *domain.Model) error {
	var parent any
	if m.ParentModelID != nil {
		parent = m.ParentModelID.String()
	}
	_, err := d.db.Exec(`
		INSERT INTO models (id, name, architecture, version, status, parent_model_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID.String(), m.Name, m.Architecture, m.Version, string(m.Status),
		parent, m.CreatedAt.Unix(), m.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert model: %w", err)
	}
	return nil
}

// GetModel returns the model or (nil, nil) when absent.
func (d *DB) GetModel(id uuid.UUID) (*domain.Model, error) {
	row := d.db.QueryRow(`
		SELECT id, name, architecture, version, status, parent_model_id, created_at, updated_at
		FROM models WHERE id = ?`, id.String())
	m, err := scanModel(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

// ListModels returns all models newest-first.
func (d *DB) ListModels() ([]domain.Model, error) {
	rows, err := d.db.Query(`
		SELECT id, name, architecture, version, status, parent_model_id, created_at, updated_at
		FROM models ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	var models []domain.Model
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		models = append(models, *m)
	}
	return models, rows.Err()
}

// UpdateModelVersion bumps the version counter after an aggregation round.
func (d *DB) UpdateModelVersion(id uuid.UUID, version int) error {
	_, err := d.db.Exec(`UPDATE models SET version = ?, updated_at = ? WHERE id = ?`,
		version, time.Now().Unix(), id.String())
	return err
}

// UpdateModelStatus transitions a model's lifecycle state.
func (d *DB) UpdateModelStatus(id uuid.UUID, status domain.ModelStatus) error {
	_, err := d.db.Exec(`UPDATE models SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().Unix(), id.String())
	return err
}

// DeleteModel removes a model, reporting whether it existed.
func (d *DB) DeleteModel(id uuid.UUID) (bool, error) {
	res, err := d.db.Exec(`DELETE FROM models WHERE id = ?`, id.String())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// JobsReferencingModel counts training jobs bound to a model with any of
// the given statuses.
func (d *DB) JobsReferencingModel(id uuid.UUID, statuses ...domain.JobStatus) (int, error) {
	query := `SELECT COUNT(*) FROM training_jobs WHERE model_id = ?`
	args := []any{id.String()}
	if len(statuses) > 0 {
		query += ` AND status IN (`
		for i, s := range statuses {
			if i > 0 {
				query += `, `
			}
			query += `?`
			args = append(args, string(s))
		}
		query += `)`
	}
	var n int
	err := d.db.QueryRow(query, args...).Scan(&n)
	return n, err
}

func scanModel(row rowScanner) (*domain.Model, error) {
	var (
		m         domain.Model
		id        string
		status    string
		parentID  sql.NullString
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(&id, &m.Name, &m.Architecture, &m.Version, &status, &parentID, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	m.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("model id %q: %w", id, err)
	}
	m.Status = domain.ModelStatus(status)
	if parentID.Valid {
		pid, err := uuid.Parse(parentID.String)
		if err != nil {
			return nil, fmt.Errorf("model parent id %q: %w", parentID.String, err)
		}
		m.ParentModelID = &pid
	}
	m.CreatedAt = time.Unix(createdAt, 0).UTC()
	m.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &m, nil
}
