// Package scheduler selects which online devices participate in a
// training round. Selection is a deterministic pure function of the
// candidate pool and the policy: an eligibility filter followed by
// weighted scoring and a stable descending sort.
package scheduler

import (
	"sort"

	"github.com/edgeorchestra/edgeorchestra/internal/domain"
)

// Weight keys accepted in a policy's weights map.
const (
	WeightBattery    = "battery"
	WeightThermal    = "thermal"
	WeightCPULoad    = "cpu_load"
	WeightMemoryLoad = "memory_load"
	WeightHardware   = "hardware"
)

// Config is a fully-resolved scheduler policy.
type Config struct {
	Enabled            bool
	TargetDevices      int // 0 means "all eligible"
	MinBattery         float64
	AllowLowPowerMode  bool
	MaxThermalPressure float64
	MaxCPUUsage        float64
	Weights            map[string]float64
}

// DefaultConfig returns the stock policy: conservative eligibility
// thresholds and battery-heavy scoring.
func DefaultConfig() Config {
	return Config{
		Enabled:            true,
		MinBattery:         0.20,
		AllowLowPowerMode:  false,
		MaxThermalPressure: 0.70,
		MaxCPUUsage:        0.90,
		Weights: map[string]float64{
			WeightBattery:    0.35,
			WeightThermal:    0.25,
			WeightCPULoad:    0.20,
			WeightMemoryLoad: 0.10,
			WeightHardware:   0.10,
		},
	}
}

// FromPolicy resolves a per-job override against the defaults. A nil
// policy disables scheduling (candidates pass through verbatim).
func FromPolicy(p *domain.SchedulerPolicy) Config {
	cfg := DefaultConfig()
	if p == nil {
		cfg.Enabled = false
		return cfg
	}
	cfg.Enabled = p.Enabled
	if p.TargetDevices != nil {
		cfg.TargetDevices = *p.TargetDevices
	}
	if p.MinBattery != nil {
		cfg.MinBattery = *p.MinBattery
	}
	if p.AllowLowPowerMode != nil {
		cfg.AllowLowPowerMode = *p.AllowLowPowerMode
	}
	if p.MaxThermalPressure != nil {
		cfg.MaxThermalPressure = *p.MaxThermalPressure
	}
	if p.MaxCPUUsage != nil {
		cfg.MaxCPUUsage = *p.MaxCPUUsage
	}
	for k, v := range p.Weights {
		cfg.Weights[k] = v
	}
	return cfg
}

// Select returns the devices chosen for a round and whether the pool was
// sufficient. With scheduling disabled the input is returned verbatim.
// With fewer than minDevices eligible it returns (nil, false) and the
// caller waits for the pool to recover.
func Select(candidates []domain.Device, cfg Config, minDevices int) ([]domain.Device, bool) {
	if !cfg.Enabled {
		return candidates, true
	}

	eligible := make([]domain.Device, 0, len(candidates))
	for _, d := range candidates {
		if Eligible(d, cfg) {
			eligible = append(eligible, d)
		}
	}
	if len(eligible) < minDevices {
		return nil, false
	}

	pool := poolMaxima(eligible)
	scores := make(map[int]float64, len(eligible))
	for i := range eligible {
		scores[i] = Score(eligible[i], cfg, pool)
	}
	order := make([]int, len(eligible))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	selected := make([]domain.Device, len(eligible))
	for i, idx := range order {
		selected[i] = eligible[idx]
	}

	if cfg.TargetDevices > 0 {
		target := cfg.TargetDevices
		if target < minDevices {
			target = minDevices
		}
		if target < len(selected) {
			selected = selected[:target]
		}
	}
	return selected, true
}

// Eligible applies the pass/fail predicates. Missing metrics pass.
func Eligible(d domain.Device, cfg Config) bool {
	if d.BatteryLevel != nil && *d.BatteryLevel < cfg.MinBattery {
		return false
	}
	if lp, ok := d.Metric(domain.MetricLowPowerMode); ok && lp != 0 && !cfg.AllowLowPowerMode {
		return false
	}
	if tp, ok := d.Metric(domain.MetricThermalPressure); ok && tp > cfg.MaxThermalPressure {
		return false
	}
	if cpu, ok := d.Metric(domain.MetricCPUUsage); ok && cpu > cfg.MaxCPUUsage {
		return false
	}
	return true
}

// poolMax carries the per-pool hardware maxima used to normalize the
// hardware sub-score.
type poolMax struct {
	neuralCores int
	memoryBytes int64
}

func poolMaxima(devices []domain.Device) poolMax {
	var p poolMax
	for _, d := range devices {
		if d.NeuralEngineCores > p.neuralCores {
			p.neuralCores = d.NeuralEngineCores
		}
		if d.MemoryBytes > p.memoryBytes {
			p.memoryBytes = d.MemoryBytes
		}
	}
	return p
}

// Score computes the weighted suitability of one device. Every sub-score
// lies in [0,1]; unknown telemetry scores a neutral 0.5.
func Score(d domain.Device, cfg Config, pool poolMax) float64 {
	battery := 0.5
	if d.BatteryLevel != nil {
		battery = *d.BatteryLevel
		if d.BatteryState == domain.BatteryCharging || d.BatteryState == domain.BatteryFull {
			battery += 0.15
		}
		if battery > 1.0 {
			battery = 1.0
		}
	}

	sub := map[string]float64{
		WeightBattery:    battery,
		WeightThermal:    inverted(d, domain.MetricThermalPressure),
		WeightCPULoad:    inverted(d, domain.MetricCPUUsage),
		WeightMemoryLoad: inverted(d, domain.MetricMemoryUsage),
		WeightHardware:   hardwareScore(d, pool),
	}

	var total float64
	for key, weight := range cfg.Weights {
		total += weight * sub[key]
	}
	return total
}

func inverted(d domain.Device, key string) float64 {
	v, ok := d.Metric(key)
	if !ok {
		return 0.5
	}
	s := 1 - v
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

func hardwareScore(d domain.Device, pool poolMax) float64 {
	if pool.neuralCores == 0 && pool.memoryBytes == 0 {
		return 0.5
	}
	var sum float64
	n := 0
	if pool.neuralCores > 0 {
		sum += float64(d.NeuralEngineCores) / float64(pool.neuralCores)
		n++
	}
	if pool.memoryBytes > 0 {
		sum += float64(d.MemoryBytes) / float64(pool.memoryBytes)
		n++
	}
	return sum / float64(n)
}
