package scheduler

import (
	"testing"

	"github.com/google/uuid"

	"github.com/edgeorchestra/edgeorchestra/internal/domain"
)

func dev(battery float64, metrics map[string]float64) domain.Device {
	return domain.Device{
		ID:           uuid.New(),
		Status:       domain.DeviceOnline,
		BatteryLevel: &battery,
		Metrics:      metrics,
	}
}

func TestSelectDisabledPassesThrough(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false

	low := dev(0.01, map[string]float64{domain.MetricLowPowerMode: 1})
	got, ok := Select([]domain.Device{low}, cfg, 1)
	if !ok || len(got) != 1 || got[0].ID != low.ID {
		t.Errorf("disabled scheduler should return input verbatim, got (%v, %v)", got, ok)
	}
}

func TestEligibilityFilter(t *testing.T) {
	cfg := DefaultConfig()

	cases := []struct {
		name string
		d    domain.Device
		want bool
	}{
		{"healthy", dev(0.9, nil), true},
		{"low battery", dev(0.1, nil), false},
		{"low power mode", dev(0.9, map[string]float64{domain.MetricLowPowerMode: 1}), false},
		{"hot", dev(0.9, map[string]float64{domain.MetricThermalPressure: 0.8}), false},
		{"busy cpu", dev(0.9, map[string]float64{domain.MetricCPUUsage: 0.95}), false},
		{"missing metrics pass", domain.Device{ID: uuid.New()}, true},
	}
	for _, tc := range cases {
		if got := Eligible(tc.d, cfg); got != tc.want {
			t.Errorf("Eligible(%s) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestSelectInsufficientPool(t *testing.T) {
	cfg := DefaultConfig()
	pool := []domain.Device{
		dev(0.05, nil), // below min battery
		dev(0.9, nil),
	}

	got, ok := Select(pool, cfg, 2)
	if ok || got != nil {
		t.Errorf("Select() with 1 eligible of 2 required = (%v, %v), want (nil, false)", got, ok)
	}
}

func TestSelectRanksByScore(t *testing.T) {
	cfg := DefaultConfig()
	strong := dev(0.95, map[string]float64{domain.MetricCPUUsage: 0.1})
	strong.BatteryState = domain.BatteryCharging
	weak := dev(0.3, map[string]float64{domain.MetricCPUUsage: 0.8})

	got, ok := Select([]domain.Device{weak, strong}, cfg, 1)
	if !ok || len(got) != 2 {
		t.Fatalf("Select() = (%v, %v)", got, ok)
	}
	if got[0].ID != strong.ID {
		t.Error("stronger device should rank first")
	}
}

func TestSelectTargetClampedToMinDevices(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TargetDevices = 1

	pool := []domain.Device{dev(0.9, nil), dev(0.8, nil), dev(0.7, nil)}
	got, ok := Select(pool, cfg, 2)
	if !ok {
		t.Fatal("Select() reported insufficient pool")
	}
	if len(got) != 2 {
		t.Errorf("Select() took %d devices, want 2 (target raised to min)", len(got))
	}
}

func TestSelectTargetTruncates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TargetDevices = 2

	pool := []domain.Device{dev(0.9, nil), dev(0.8, nil), dev(0.7, nil)}
	got, ok := Select(pool, cfg, 1)
	if !ok || len(got) != 2 {
		t.Errorf("Select() = %d devices, want 2", len(got))
	}
}

func TestScoreMonotoneInBattery(t *testing.T) {
	cfg := DefaultConfig()
	pool := poolMax{}

	prev := -1.0
	for _, level := range []float64{0.2, 0.4, 0.6, 0.8, 1.0} {
		s := Score(dev(level, nil), cfg, pool)
		if s < prev {
			t.Errorf("score decreased when battery rose to %v", level)
		}
		prev = s
	}
}

func TestScoreChargingBonusCapped(t *testing.T) {
	cfg := DefaultConfig()
	pool := poolMax{}

	full := dev(1.0, nil)
	full.BatteryState = domain.BatteryCharging
	plain := dev(1.0, nil)

	if Score(full, cfg, pool) != Score(plain, cfg, pool) {
		t.Error("battery sub-score must cap at 1.0")
	}
}

func TestScoreUnknownTelemetryNeutral(t *testing.T) {
	cfg := DefaultConfig()
	unknown := domain.Device{ID: uuid.New()}

	got := Score(unknown, cfg, poolMax{})
	if got != 0.5 {
		t.Errorf("all-unknown device score = %v, want 0.5", got)
	}
}

func TestFromPolicyOverrides(t *testing.T) {
	minBattery := 0.5
	target := 4
	allow := true
	p := &domain.SchedulerPolicy{
		Enabled:           true,
		TargetDevices:     &target,
		MinBattery:        &minBattery,
		AllowLowPowerMode: &allow,
		Weights:           map[string]float64{WeightBattery: 0.9},
	}

	cfg := FromPolicy(p)
	if !cfg.Enabled || cfg.TargetDevices != 4 || cfg.MinBattery != 0.5 || !cfg.AllowLowPowerMode {
		t.Errorf("FromPolicy() = %+v", cfg)
	}
	if cfg.Weights[WeightBattery] != 0.9 {
		t.Errorf("battery weight = %v, want 0.9", cfg.Weights[WeightBattery])
	}
	if cfg.Weights[WeightThermal] != 0.25 {
		t.Error("unspecified weights should keep defaults")
	}

	if FromPolicy(nil).Enabled {
		t.Error("nil policy should disable scheduling")
	}
}
