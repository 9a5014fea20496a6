// Package domain holds the core EdgeOrchestra types shared across the
// orchestrator: devices, models, training jobs, commands, and the error
// kinds the API surfaces translate to status codes.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// DeviceStatus tracks the lifecycle of a registered edge device.
type DeviceStatus string

const (
	DeviceOnline   DeviceStatus = "online"
	DeviceOffline  DeviceStatus = "offline"
	DeviceTraining DeviceStatus = "training"
	DeviceError    DeviceStatus = "error"
)

// ValidDeviceStatus reports whether s is one of the four device states.
func ValidDeviceStatus(s DeviceStatus) bool {
	switch s {
	case DeviceOnline, DeviceOffline, DeviceTraining, DeviceError:
		return true
	}
	return false
}

// Metric keys reported by devices over heartbeats. is_low_power_mode is
// encoded as 0/1 in the metrics map.
const (
	MetricCPUUsage        = "cpu_usage"
	MetricMemoryUsage     = "memory_usage"
	MetricThermalPressure = "thermal_pressure"
	MetricLowPowerMode    = "is_low_power_mode"
)

// Device is a registered edge device and its latest telemetry.
type Device struct {
	ID                uuid.UUID          `json:"id"`
	Name              string             `json:"name"`
	DeviceModel       string             `json:"device_model"`
	OSVersion         string             `json:"os_version"`
	Chip              string             `json:"chip,omitempty"`
	MemoryBytes       int64              `json:"memory_bytes,omitempty"`
	CPUCores          int                `json:"cpu_cores,omitempty"`
	GPUCores          int                `json:"gpu_cores,omitempty"`
	NeuralEngineCores int                `json:"neural_engine_cores,omitempty"`
	BatteryLevel      *float64           `json:"battery_level,omitempty"`
	BatteryState      string             `json:"battery_state,omitempty"`
	Status            DeviceStatus       `json:"status"`
	Metrics           map[string]float64 `json:"metrics,omitempty"`
	RegisteredAt      time.Time          `json:"registered_at"`
	LastSeenAt        time.Time          `json:"last_seen_at"`
}

// Metric returns a telemetry value and whether the device has reported it.
func (d *Device) Metric(key string) (float64, bool) {
	if d.Metrics == nil {
		return 0, false
	}
	v, ok := d.Metrics[key]
	return v, ok
}

// Battery states reported by devices. Unknown is represented by "".
const (
	BatteryCharging    = "charging"
	BatteryDischarging = "discharging"
	BatteryFull        = "full"
	BatteryNotCharging = "not_charging"
)
