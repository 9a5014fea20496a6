// Package heartbeat tracks device liveness and delivers queued commands.
// Liveness is a TTL key in the blob store; the durable device row only
// changes on heartbeats and on the stale-device sweep.
package heartbeat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edgeorchestra/edgeorchestra/internal/domain"
	"github.com/edgeorchestra/edgeorchestra/internal/infra/blob"
	"github.com/edgeorchestra/edgeorchestra/internal/infra/metrics"
)

// DeviceStore is the slice of the device repository the monitor needs.
type DeviceStore interface {
	GetDevice(id uuid.UUID) (*domain.Device, error)
	ListDevices(status domain.DeviceStatus) ([]domain.Device, error)
	UpdateDeviceStatus(id uuid.UUID, status domain.DeviceStatus) error
	UpdateDeviceTelemetry(id uuid.UUID, batteryLevel *float64, batteryState string, metrics map[string]float64) error
}

// Telemetry is the payload of one inbound heartbeat.
type Telemetry struct {
	BatteryLevel *float64
	BatteryState string
	Metrics      map[string]float64
}

// Monitor processes heartbeats and sweeps stale devices.
type Monitor struct {
	store    blob.Store
	devices  DeviceStore
	interval time.Duration
	// timeout = interval × multiplier; both the TTL and the sweep cutoff.
	multiplier int
	log        zerolog.Logger
	now        func() time.Time
}

// New creates a monitor. interval is the expected heartbeat cadence.
func New(store blob.Store, devices DeviceStore, interval time.Duration, multiplier int, log zerolog.Logger) *Monitor {
	return &Monitor{
		store:      store,
		devices:    devices,
		interval:   interval,
		multiplier: multiplier,
		log:        log.With().Str("component", "heartbeat").Logger(),
		now:        time.Now,
	}
}

// Timeout is how long a device may go silent before the sweep marks it
// offline.
func (m *Monitor) Timeout() time.Duration {
	return m.interval * time.Duration(m.multiplier)
}

// ProcessHeartbeat refreshes the liveness key and folds telemetry into
// the device row. A heartbeat never downgrades a training device to
// online; telemetry still lands.
func (m *Monitor) ProcessHeartbeat(ctx context.Context, deviceID uuid.UUID, t Telemetry) error {
	now := m.now()
	key := blob.HeartbeatKey(deviceID.String())
	if err := m.store.SetTTL(ctx, key, now.UTC().Format(time.RFC3339), m.Timeout()); err != nil {
		return fmt.Errorf("set liveness key: %w", err)
	}

	dev, err := m.devices.GetDevice(deviceID)
	if err != nil {
		return err
	}
	if dev == nil {
		return domain.E(domain.KindNotFound, "device %s not registered", deviceID)
	}

	if t.BatteryLevel != nil || len(t.Metrics) > 0 {
		merged := make(map[string]float64, len(dev.Metrics)+len(t.Metrics))
		for k, v := range dev.Metrics {
			merged[k] = v
		}
		for k, v := range t.Metrics {
			merged[k] = v
		}
		battery := t.BatteryLevel
		if battery == nil {
			battery = dev.BatteryLevel
		}
		state := t.BatteryState
		if state == "" {
			state = dev.BatteryState
		}
		if err := m.devices.UpdateDeviceTelemetry(deviceID, battery, state, merged); err != nil {
			return err
		}
	}

	switch {
	case dev.Status == domain.DeviceOffline:
		if err := m.devices.UpdateDeviceStatus(deviceID, domain.DeviceOnline); err != nil {
			return err
		}
		m.log.Info().Str("device", deviceID.String()).Msg("device back online")
	case dev.Status == domain.DeviceOnline && t.BatteryLevel == nil && len(t.Metrics) == 0:
		// Plain heartbeat: bump last_seen_at via a same-status update.
		if err := m.devices.UpdateDeviceStatus(deviceID, domain.DeviceOnline); err != nil {
			return err
		}
	}

	metrics.HeartbeatsTotal.Inc()
	return nil
}

// QueueCommand appends a command to the device's FIFO.
func (m *Monitor) QueueCommand(ctx context.Context, deviceID uuid.UUID, cmd domain.Command) error {
	raw, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	return m.store.RPush(ctx, blob.CommandQueueKey(deviceID.String()), string(raw))
}

// PopPendingCommand removes and returns the head of the device's command
// FIFO, or nil if the queue is empty.
func (m *Monitor) PopPendingCommand(ctx context.Context, deviceID uuid.UUID) (*domain.Command, error) {
	raw, ok, err := m.store.LPop(ctx, blob.CommandQueueKey(deviceID.String()))
	if err != nil || !ok {
		return nil, err
	}
	var cmd domain.Command
	if err := json.Unmarshal([]byte(raw), &cmd); err != nil {
		return nil, fmt.Errorf("decode command: %w", err)
	}
	return &cmd, nil
}

// RunSweeper marks silent online devices offline until ctx is canceled.
// It runs at the heartbeat interval.
func (m *Monitor) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.SweepOnce(ctx); err != nil {
				m.log.Warn().Err(err).Msg("stale-device sweep failed")
			}
		}
	}
}

// SweepOnce transitions online devices to offline when the liveness key
// has expired and last_seen_at is older than the timeout. Training
// devices are never touched; the coordinator owns those.
func (m *Monitor) SweepOnce(ctx context.Context) error {
	online, err := m.devices.ListDevices(domain.DeviceOnline)
	if err != nil {
		return err
	}
	now := m.now()
	for _, dev := range online {
		alive, err := m.store.Exists(ctx, blob.HeartbeatKey(dev.ID.String()))
		if err != nil {
			return err
		}
		if alive {
			continue
		}
		if now.Sub(dev.LastSeenAt) <= m.Timeout() {
			continue
		}
		if err := m.devices.UpdateDeviceStatus(dev.ID, domain.DeviceOffline); err != nil {
			return err
		}
		metrics.DevicesMarkedOffline.Inc()
		m.log.Info().Str("device", dev.ID.String()).Msg("device marked offline")
	}
	return nil
}
