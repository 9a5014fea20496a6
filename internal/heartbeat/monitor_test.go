package heartbeat

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edgeorchestra/edgeorchestra/internal/domain"
	"github.com/edgeorchestra/edgeorchestra/internal/infra/blob"
)

// fakeDevices is an in-memory DeviceStore for monitor tests.
type fakeDevices struct {
	devices map[uuid.UUID]*domain.Device
}

func newFakeDevices() *fakeDevices {
	return &fakeDevices{devices: make(map[uuid.UUID]*domain.Device)}
}

func (f *fakeDevices) add(status domain.DeviceStatus, lastSeen time.Time) uuid.UUID {
	id := uuid.New()
	f.devices[id] = &domain.Device{ID: id, Status: status, LastSeenAt: lastSeen}
	return id
}

func (f *fakeDevices) GetDevice(id uuid.UUID) (*domain.Device, error) {
	dev, ok := f.devices[id]
	if !ok {
		return nil, nil
	}
	clone := *dev
	return &clone, nil
}

func (f *fakeDevices) ListDevices(status domain.DeviceStatus) ([]domain.Device, error) {
	var out []domain.Device
	for _, dev := range f.devices {
		if status == "" || dev.Status == status {
			out = append(out, *dev)
		}
	}
	return out, nil
}

func (f *fakeDevices) UpdateDeviceStatus(id uuid.UUID, status domain.DeviceStatus) error {
	f.devices[id].Status = status
	f.devices[id].LastSeenAt = time.Now()
	return nil
}

func (f *fakeDevices) UpdateDeviceTelemetry(id uuid.UUID, battery *float64, state string, metrics map[string]float64) error {
	dev := f.devices[id]
	dev.BatteryLevel = battery
	dev.BatteryState = state
	dev.Metrics = metrics
	dev.LastSeenAt = time.Now()
	return nil
}

func newTestMonitor(t *testing.T) (*Monitor, *blob.MemoryStore, *fakeDevices) {
	t.Helper()
	store := blob.NewMemoryStore()
	devices := newFakeDevices()
	m := New(store, devices, 30*time.Second, 3, zerolog.Nop())
	return m, store, devices
}

func TestTimeout(t *testing.T) {
	m, _, _ := newTestMonitor(t)
	if m.Timeout() != 90*time.Second {
		t.Errorf("Timeout() = %v, want 90s", m.Timeout())
	}
}

func TestProcessHeartbeatSetsLiveness(t *testing.T) {
	ctx := context.Background()
	m, store, devices := newTestMonitor(t)
	id := devices.add(domain.DeviceOnline, time.Now())

	if err := m.ProcessHeartbeat(ctx, id, Telemetry{}); err != nil {
		t.Fatalf("ProcessHeartbeat() error: %v", err)
	}
	if ok, _ := store.Exists(ctx, blob.HeartbeatKey(id.String())); !ok {
		t.Error("liveness key should exist after heartbeat")
	}
}

func TestProcessHeartbeatUnknownDevice(t *testing.T) {
	m, _, _ := newTestMonitor(t)
	err := m.ProcessHeartbeat(context.Background(), uuid.New(), Telemetry{})
	if domain.KindOf(err) != domain.KindNotFound {
		t.Errorf("heartbeat from unregistered device: kind = %v, want not_found", domain.KindOf(err))
	}
}

func TestProcessHeartbeatRevivesOffline(t *testing.T) {
	m, _, devices := newTestMonitor(t)
	id := devices.add(domain.DeviceOffline, time.Now().Add(-time.Hour))

	if err := m.ProcessHeartbeat(context.Background(), id, Telemetry{}); err != nil {
		t.Fatalf("ProcessHeartbeat() error: %v", err)
	}
	if devices.devices[id].Status != domain.DeviceOnline {
		t.Errorf("status = %v, want online", devices.devices[id].Status)
	}
}

func TestProcessHeartbeatNeverDowngradesTraining(t *testing.T) {
	m, _, devices := newTestMonitor(t)
	id := devices.add(domain.DeviceTraining, time.Now())

	battery := 0.6
	err := m.ProcessHeartbeat(context.Background(), id, Telemetry{
		BatteryLevel: &battery,
		Metrics:      map[string]float64{domain.MetricCPUUsage: 0.5},
	})
	if err != nil {
		t.Fatalf("ProcessHeartbeat() error: %v", err)
	}
	dev := devices.devices[id]
	if dev.Status != domain.DeviceTraining {
		t.Errorf("status = %v, training must not be downgraded", dev.Status)
	}
	if dev.BatteryLevel == nil || *dev.BatteryLevel != 0.6 {
		t.Error("telemetry should still land on a training device")
	}
}

func TestProcessHeartbeatMergesMetrics(t *testing.T) {
	m, _, devices := newTestMonitor(t)
	id := devices.add(domain.DeviceOnline, time.Now())
	devices.devices[id].Metrics = map[string]float64{
		domain.MetricThermalPressure: 0.3,
		domain.MetricCPUUsage:        0.9,
	}

	err := m.ProcessHeartbeat(context.Background(), id, Telemetry{
		Metrics: map[string]float64{domain.MetricCPUUsage: 0.1},
	})
	if err != nil {
		t.Fatalf("ProcessHeartbeat() error: %v", err)
	}
	got := devices.devices[id].Metrics
	if got[domain.MetricCPUUsage] != 0.1 {
		t.Errorf("cpu_usage = %v, want updated 0.1", got[domain.MetricCPUUsage])
	}
	if got[domain.MetricThermalPressure] != 0.3 {
		t.Errorf("thermal_pressure = %v, existing metrics must survive the merge", got[domain.MetricThermalPressure])
	}
}

func TestCommandQueueFIFO(t *testing.T) {
	ctx := context.Background()
	m, _, devices := newTestMonitor(t)
	id := devices.add(domain.DeviceOnline, time.Now())

	first := domain.Command{Type: domain.CommandStartTraining, Parameters: map[string]string{domain.ParamRound: "1"}}
	second := domain.Command{Type: domain.CommandStopTraining}
	if err := m.QueueCommand(ctx, id, first); err != nil {
		t.Fatalf("QueueCommand() error: %v", err)
	}
	if err := m.QueueCommand(ctx, id, second); err != nil {
		t.Fatalf("QueueCommand() error: %v", err)
	}

	got, err := m.PopPendingCommand(ctx, id)
	if err != nil || got == nil {
		t.Fatalf("PopPendingCommand() = (%v, %v)", got, err)
	}
	if got.Type != domain.CommandStartTraining || got.Parameters[domain.ParamRound] != "1" {
		t.Errorf("first pop = %+v", got)
	}

	got, _ = m.PopPendingCommand(ctx, id)
	if got == nil || got.Type != domain.CommandStopTraining {
		t.Errorf("second pop = %+v", got)
	}

	got, err = m.PopPendingCommand(ctx, id)
	if err != nil || got != nil {
		t.Errorf("empty queue pop = (%v, %v), want (nil, nil)", got, err)
	}
}

func TestSweepMarksSilentDevicesOffline(t *testing.T) {
	ctx := context.Background()
	m, _, devices := newTestMonitor(t)
	stale := devices.add(domain.DeviceOnline, time.Now().Add(-10*time.Minute))

	if err := m.SweepOnce(ctx); err != nil {
		t.Fatalf("SweepOnce() error: %v", err)
	}
	if devices.devices[stale].Status != domain.DeviceOffline {
		t.Errorf("stale device status = %v, want offline", devices.devices[stale].Status)
	}
}

func TestSweepRequiresBothConditions(t *testing.T) {
	ctx := context.Background()
	m, store, devices := newTestMonitor(t)

	// Liveness key present: survives even with an old last_seen_at.
	keyed := devices.add(domain.DeviceOnline, time.Now().Add(-10*time.Minute))
	store.SetTTL(ctx, blob.HeartbeatKey(keyed.String()), "now", time.Minute)

	// Recent last_seen_at: survives a missing liveness key.
	recent := devices.add(domain.DeviceOnline, time.Now())

	if err := m.SweepOnce(ctx); err != nil {
		t.Fatalf("SweepOnce() error: %v", err)
	}
	if devices.devices[keyed].Status != domain.DeviceOnline {
		t.Error("device with a live key must stay online")
	}
	if devices.devices[recent].Status != domain.DeviceOnline {
		t.Error("recently seen device must stay online")
	}
}

func TestSweepNeverTouchesTraining(t *testing.T) {
	ctx := context.Background()
	m, _, devices := newTestMonitor(t)
	training := devices.add(domain.DeviceTraining, time.Now().Add(-time.Hour))

	if err := m.SweepOnce(ctx); err != nil {
		t.Fatalf("SweepOnce() error: %v", err)
	}
	if devices.devices[training].Status != domain.DeviceTraining {
		t.Errorf("training device status = %v, sweep must not touch it", devices.devices[training].Status)
	}
}
