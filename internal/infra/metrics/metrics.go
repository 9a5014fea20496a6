// Package metrics provides Prometheus metrics for EdgeOrchestra —
// counters, gauges, histograms for training rounds, gradient traffic,
// the device fleet, and health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Training ───────────────────────────────────────────────────────────────

// TrainingJobsActive tracks jobs currently in the running state.
var TrainingJobsActive = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "edgeorchestra",
	Name:      "training_jobs_active",
	Help:      "Number of training jobs currently running.",
})

// TrainingRoundsTotal tracks finished rounds by outcome.
var TrainingRoundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "edgeorchestra",
	Name:      "training_rounds_total",
	Help:      "Total training rounds by outcome.",
}, []string{"outcome"})

// TrainingRoundDuration tracks wall-clock time per round.
var TrainingRoundDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "edgeorchestra",
	Name:      "training_round_duration_seconds",
	Help:      "Wall-clock duration of one training round.",
	Buckets:   []float64{1, 5, 15, 30, 60, 120, 180, 300},
})

// ─── Gradients ──────────────────────────────────────────────────────────────

// GradientSubmissionsTotal tracks gradient uploads by result.
var GradientSubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "edgeorchestra",
	Name:      "gradient_submissions_total",
	Help:      "Total gradient submissions by result.",
}, []string{"result"})

// GradientPayloadBytes tracks decoded gradient payload sizes.
var GradientPayloadBytes = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "edgeorchestra",
	Name:      "gradient_payload_bytes",
	Help:      "Size of decoded gradient payloads in bytes.",
	Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
})

// ─── Fleet ──────────────────────────────────────────────────────────────────

// HeartbeatsTotal tracks processed device heartbeats.
var HeartbeatsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "edgeorchestra",
	Name:      "heartbeats_total",
	Help:      "Total device heartbeats processed.",
})

// DevicesMarkedOffline tracks devices swept offline for missed heartbeats.
var DevicesMarkedOffline = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "edgeorchestra",
	Name:      "devices_marked_offline_total",
	Help:      "Total devices marked offline by the heartbeat sweeper.",
})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "edgeorchestra",
	Name:      "health_check_status",
	Help:      "Health check result per component (1=healthy, 0=unhealthy).",
}, []string{"check"})
