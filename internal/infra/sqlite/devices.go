package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/edgeorchestra/edgeorchestra/internal/domain"
)

// CreateDevice inserts a new device row.
func (d *DB) CreateDevice(dev *domain.Device) error {
	metrics, err := json.Marshal(dev.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}

	_, err = d.db.Exec(`
		INSERT INTO devices (id, name, device_model, os_version, chip, memory_bytes,
			cpu_cores, gpu_cores, neural_engine_cores, battery_level, battery_state,
			status, metrics, registered_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		dev.ID.String(), dev.Name, dev.DeviceModel, dev.OSVersion, dev.Chip,
		dev.MemoryBytes, dev.CPUCores, dev.GPUCores, dev.NeuralEngineCores,
		dev.BatteryLevel, dev.BatteryState, string(dev.Status), string(metrics),
		dev.RegisteredAt.Unix(), dev.LastSeenAt.Unix())
	if err != nil {
		return fmt.Errorf("insert device: %w", err)
	}
	return nil
}

// GetDevice returns the device or (nil, nil) when absent.
func (d *DB) GetDevice(id uuid.UUID) (*domain.Device, error) {
	row := d.db.QueryRow(`
		SELECT id, name, device_model, os_version, chip, memory_bytes,
			cpu_cores, gpu_cores, neural_engine_cores, battery_level, battery_state,
			status, metrics, registered_at, last_seen_at
		FROM devices WHERE id = ?`, id.String())
	dev, err := scanDevice(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return dev, err
}

// ListDevices returns devices newest-first, optionally filtered by status.
func (d *DB) ListDevices(status domain.DeviceStatus) ([]domain.Device, error) {
	query := `
		SELECT id, name, device_model, os_version, chip, memory_bytes,
			cpu_cores, gpu_cores, neural_engine_cores, battery_level, battery_state,
			status, metrics, registered_at, last_seen_at
		FROM devices`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY registered_at DESC`

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var devices []domain.Device
	for rows.Next() {
		dev, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *dev)
	}
	return devices, rows.Err()
}

// UpdateDeviceStatus transitions a device and bumps last_seen_at.
func (d *DB) UpdateDeviceStatus(id uuid.UUID, status domain.DeviceStatus) error {
	_, err := d.db.Exec(`UPDATE devices SET status = ?, last_seen_at = ? WHERE id = ?`,
		string(status), time.Now().Unix(), id.String())
	return err
}

// UpdateDeviceTelemetry stores the latest heartbeat snapshot.
func (d *DB) UpdateDeviceTelemetry(id uuid.UUID, batteryLevel *float64, batteryState string, metrics map[string]float64) error {
	raw, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	_, err = d.db.Exec(`
		UPDATE devices SET battery_level = ?, battery_state = ?, metrics = ?, last_seen_at = ?
		WHERE id = ?`,
		batteryLevel, batteryState, string(raw), time.Now().Unix(), id.String())
	return err
}

// DeleteDevice removes a device, reporting whether it existed.
func (d *DB) DeleteDevice(id uuid.UUID) (bool, error) {
	res, err := d.db.Exec(`DELETE FROM devices WHERE id = ?`, id.String())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*domain.Device, error) {
	var (
		dev          domain.Device
		id           string
		status       string
		metrics      string
		registeredAt int64
		lastSeenAt   int64
	)
	err := row.Scan(&id, &dev.Name, &dev.DeviceModel, &dev.OSVersion, &dev.Chip,
		&dev.MemoryBytes, &dev.CPUCores, &dev.GPUCores, &dev.NeuralEngineCores,
		&dev.BatteryLevel, &dev.BatteryState, &status, &metrics,
		&registeredAt, &lastSeenAt)
	if err != nil {
		return nil, err
	}

	dev.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("device id %q: %w", id, err)
	}
	dev.Status = domain.DeviceStatus(status)
	if err := json.Unmarshal([]byte(metrics), &dev.Metrics); err != nil {
		return nil, fmt.Errorf("device metrics: %w", err)
	}
	dev.RegisteredAt = time.Unix(registeredAt, 0).UTC()
	dev.LastSeenAt = time.Unix(lastSeenAt, 0).UTC()
	return &dev, nil
}
