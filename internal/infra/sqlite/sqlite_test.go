package sqlite

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/edgeorchestra/edgeorchestra/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestDevice() *domain.Device {
	battery := 0.8
	now := time.Now().UTC().Truncate(time.Second)
	return &domain.Device{
		ID:           uuid.New(),
		Name:         "iPhone of Test",
		DeviceModel:  "iPhone16,2",
		OSVersion:    "18.1",
		Chip:         "A17 Pro",
		MemoryBytes:  8 << 30,
		CPUCores:     6,
		GPUCores:     6,
		BatteryLevel: &battery,
		BatteryState: domain.BatteryCharging,
		Status:       domain.DeviceOnline,
		Metrics:      map[string]float64{domain.MetricCPUUsage: 0.2},
		RegisteredAt: now,
		LastSeenAt:   now,
	}
}

func TestDeviceCRUD(t *testing.T) {
	db := newTestDB(t)
	dev := newTestDevice()

	if err := db.CreateDevice(dev); err != nil {
		t.Fatalf("CreateDevice() error: %v", err)
	}

	got, err := db.GetDevice(dev.ID)
	if err != nil {
		t.Fatalf("GetDevice() error: %v", err)
	}
	if got == nil {
		t.Fatal("GetDevice() returned nil for existing device")
	}
	if got.Name != dev.Name || got.Chip != dev.Chip || got.Status != domain.DeviceOnline {
		t.Errorf("GetDevice() = %+v, want %+v", got, dev)
	}
	if got.BatteryLevel == nil || *got.BatteryLevel != 0.8 {
		t.Errorf("battery level = %v, want 0.8", got.BatteryLevel)
	}
	if got.Metrics[domain.MetricCPUUsage] != 0.2 {
		t.Errorf("metrics = %v", got.Metrics)
	}

	if missing, err := db.GetDevice(uuid.New()); err != nil || missing != nil {
		t.Errorf("GetDevice(unknown) = (%v, %v), want (nil, nil)", missing, err)
	}

	deleted, err := db.DeleteDevice(dev.ID)
	if err != nil || !deleted {
		t.Errorf("DeleteDevice() = (%v, %v), want (true, nil)", deleted, err)
	}
	deleted, err = db.DeleteDevice(dev.ID)
	if err != nil || deleted {
		t.Errorf("second DeleteDevice() = (%v, %v), want (false, nil)", deleted, err)
	}
}

func TestListDevicesFiltersByStatus(t *testing.T) {
	db := newTestDB(t)

	online := newTestDevice()
	training := newTestDevice()
	training.Status = domain.DeviceTraining
	for _, dev := range []*domain.Device{online, training} {
		if err := db.CreateDevice(dev); err != nil {
			t.Fatalf("CreateDevice() error: %v", err)
		}
	}

	all, err := db.ListDevices("")
	if err != nil {
		t.Fatalf("ListDevices() error: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("ListDevices() returned %d devices, want 2", len(all))
	}

	got, err := db.ListDevices(domain.DeviceTraining)
	if err != nil {
		t.Fatalf("ListDevices(training) error: %v", err)
	}
	if len(got) != 1 || got[0].ID != training.ID {
		t.Errorf("ListDevices(training) = %v", got)
	}
}

func TestUpdateDeviceStatusBumpsLastSeen(t *testing.T) {
	db := newTestDB(t)
	dev := newTestDevice()
	dev.LastSeenAt = time.Now().Add(-time.Hour).UTC()
	db.CreateDevice(dev)

	if err := db.UpdateDeviceStatus(dev.ID, domain.DeviceTraining); err != nil {
		t.Fatalf("UpdateDeviceStatus() error: %v", err)
	}
	got, _ := db.GetDevice(dev.ID)
	if got.Status != domain.DeviceTraining {
		t.Errorf("status = %v, want training", got.Status)
	}
	if !got.LastSeenAt.After(dev.LastSeenAt) {
		t.Error("last_seen_at should move forward on status update")
	}
}

func TestUpdateDeviceTelemetry(t *testing.T) {
	db := newTestDB(t)
	dev := newTestDevice()
	db.CreateDevice(dev)

	battery := 0.35
	metrics := map[string]float64{
		domain.MetricCPUUsage:        0.9,
		domain.MetricThermalPressure: 0.4,
	}
	if err := db.UpdateDeviceTelemetry(dev.ID, &battery, domain.BatteryDischarging, metrics); err != nil {
		t.Fatalf("UpdateDeviceTelemetry() error: %v", err)
	}

	got, _ := db.GetDevice(dev.ID)
	if *got.BatteryLevel != 0.35 || got.BatteryState != domain.BatteryDischarging {
		t.Errorf("battery = (%v, %s)", got.BatteryLevel, got.BatteryState)
	}
	if got.Metrics[domain.MetricThermalPressure] != 0.4 {
		t.Errorf("metrics = %v", got.Metrics)
	}
}

func TestModelCRUD(t *testing.T) {
	db := newTestDB(t)
	now := time.Now().UTC().Truncate(time.Second)
	m := &domain.Model{
		ID:           uuid.New(),
		Name:         "digits",
		Architecture: "mnist",
		Status:       domain.ModelInitial,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := db.CreateModel(m); err != nil {
		t.Fatalf("CreateModel() error: %v", err)
	}
	got, err := db.GetModel(m.ID)
	if err != nil || got == nil {
		t.Fatalf("GetModel() = (%v, %v)", got, err)
	}
	if got.Architecture != "mnist" || got.Version != 0 {
		t.Errorf("GetModel() = %+v", got)
	}

	if err := db.UpdateModelVersion(m.ID, 5); err != nil {
		t.Fatalf("UpdateModelVersion() error: %v", err)
	}
	if err := db.UpdateModelStatus(m.ID, domain.ModelTraining); err != nil {
		t.Fatalf("UpdateModelStatus() error: %v", err)
	}
	got, _ = db.GetModel(m.ID)
	if got.Version != 5 || got.Status != domain.ModelTraining {
		t.Errorf("after updates: %+v", got)
	}

	deleted, err := db.DeleteModel(m.ID)
	if err != nil || !deleted {
		t.Errorf("DeleteModel() = (%v, %v)", deleted, err)
	}
}

func TestJobLifecycle(t *testing.T) {
	db := newTestDB(t)
	now := time.Now().UTC().Truncate(time.Second)
	modelID := uuid.New()
	db.CreateModel(&domain.Model{
		ID: modelID, Name: "m", Architecture: "mnist",
		Status: domain.ModelInitial, CreatedAt: now, UpdatedAt: now,
	})

	target := 3
	j := &domain.TrainingJob{
		ID:           uuid.New(),
		ModelID:      &modelID,
		Status:       domain.JobPending,
		NumRounds:    10,
		MinDevices:   1,
		LearningRate: 0.01,
		Config: &domain.JobConfig{
			Scheduler: &domain.SchedulerPolicy{Enabled: true, TargetDevices: &target},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.CreateJob(j); err != nil {
		t.Fatalf("CreateJob() error: %v", err)
	}

	got, err := db.GetJob(j.ID)
	if err != nil || got == nil {
		t.Fatalf("GetJob() = (%v, %v)", got, err)
	}
	if got.ModelID == nil || *got.ModelID != modelID {
		t.Errorf("model id = %v, want %v", got.ModelID, modelID)
	}
	if got.Config == nil || got.Config.Scheduler == nil || *got.Config.Scheduler.TargetDevices != 3 {
		t.Errorf("config round-trip lost data: %+v", got.Config)
	}
	if got.CompletedAt != nil {
		t.Error("new job should not have completed_at")
	}

	if err := db.UpdateJobStatus(j.ID, domain.JobRunning); err != nil {
		t.Fatalf("UpdateJobStatus() error: %v", err)
	}
	if err := db.SetJobRound(j.ID, 4); err != nil {
		t.Fatalf("SetJobRound() error: %v", err)
	}
	loss := 0.5
	if err := db.SetJobMetrics(j.ID, &domain.RoundMetrics{
		Rounds: []domain.RoundRecord{{Round: 1, Participants: 2, AvgLoss: &loss}},
	}); err != nil {
		t.Fatalf("SetJobMetrics() error: %v", err)
	}

	got, _ = db.GetJob(j.ID)
	if got.Status != domain.JobRunning || got.CurrentRound != 4 {
		t.Errorf("after updates: status=%v round=%d", got.Status, got.CurrentRound)
	}
	if got.RoundMetrics == nil || len(got.RoundMetrics.Rounds) != 1 || *got.RoundMetrics.Rounds[0].AvgLoss != 0.5 {
		t.Errorf("round metrics = %+v", got.RoundMetrics)
	}

	if err := db.CompleteJob(j.ID, domain.JobCompleted); err != nil {
		t.Fatalf("CompleteJob() error: %v", err)
	}
	got, _ = db.GetJob(j.ID)
	if got.Status != domain.JobCompleted || got.CompletedAt == nil {
		t.Errorf("after complete: status=%v completed_at=%v", got.Status, got.CompletedAt)
	}

	n, err := db.JobsReferencingModel(modelID, domain.JobRunning, domain.JobPending)
	if err != nil {
		t.Fatalf("JobsReferencingModel() error: %v", err)
	}
	if n != 0 {
		t.Errorf("JobsReferencingModel(active) = %d, want 0", n)
	}
	n, _ = db.JobsReferencingModel(modelID)
	if n != 1 {
		t.Errorf("JobsReferencingModel(all) = %d, want 1", n)
	}
}

func TestListJobsNewestFirst(t *testing.T) {
	db := newTestDB(t)
	older := &domain.TrainingJob{
		ID: uuid.New(), Status: domain.JobCompleted, NumRounds: 1, MinDevices: 1,
		LearningRate: 0.01,
		CreatedAt:    time.Now().Add(-time.Hour), UpdatedAt: time.Now().Add(-time.Hour),
	}
	newer := &domain.TrainingJob{
		ID: uuid.New(), Status: domain.JobPending, NumRounds: 1, MinDevices: 1,
		LearningRate: 0.01,
		CreatedAt:    time.Now(), UpdatedAt: time.Now(),
	}
	db.CreateJob(older)
	db.CreateJob(newer)

	jobs, err := db.ListJobs("")
	if err != nil {
		t.Fatalf("ListJobs() error: %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != newer.ID {
		t.Errorf("ListJobs() order wrong: %v", jobs)
	}

	pending, _ := db.ListJobs(domain.JobPending)
	if len(pending) != 1 || pending[0].ID != newer.ID {
		t.Errorf("ListJobs(pending) = %v", pending)
	}
}
