// Package health runs periodic readiness checks over the orchestrator's
// backing stores and exposes the result to the operator API.
package health

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/edgeorchestra/edgeorchestra/internal/infra/blob"
	"github.com/edgeorchestra/edgeorchestra/internal/infra/metrics"
	"github.com/edgeorchestra/edgeorchestra/internal/infra/sqlite"
)

// Check is a single named health probe.
type Check struct {
	Name    string
	CheckFn func(ctx context.Context) error
}

// Status is the latest result of one check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker runs the checks on a fixed interval and caches the results.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
	log      zerolog.Logger
}

// NewChecker creates a checker covering the sqlite state store, the blob
// store, and the data directory.
func NewChecker(db *sqlite.DB, blobs blob.Store, dataDir string, log zerolog.Logger) *Checker {
	return &Checker{
		interval: 60 * time.Second,
		log:      log.With().Str("component", "health").Logger(),
		checks: []Check{
			{
				Name: "sqlite",
				CheckFn: func(ctx context.Context) error {
					return db.Ping()
				},
			},
			{
				Name: "blob_store",
				CheckFn: func(ctx context.Context) error {
					return blobs.Ping(ctx)
				},
			},
			{
				Name: "data_dir",
				CheckFn: func(ctx context.Context) error {
					return checkDataDir(dataDir)
				},
			},
		},
	}
}

// Run starts the check loop. Call in a goroutine; returns when ctx ends.
func (c *Checker) Run(ctx context.Context) {
	c.runAll(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runAll(ctx)
		}
	}
}

func (c *Checker) runAll(ctx context.Context) {
	statuses := make([]Status, len(c.checks))
	for i, check := range c.checks {
		s := Status{
			Name:      check.Name,
			CheckedAt: time.Now().UTC(),
		}
		if err := check.CheckFn(ctx); err != nil {
			s.Error = err.Error()
			metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(0)
			c.log.Warn().Str("check", check.Name).Err(err).Msg("health check failed")
		} else {
			s.Healthy = true
			metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(1)
		}
		statuses[i] = s
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

// Statuses returns a copy of the latest results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy reports whether every check passed on the last run. Before
// the first run it is vacuously true.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}

// Report implements the operator API's health reporter. The detail map
// carries "ok" or the failing check's error string per check name.
func (c *Checker) Report(_ *http.Request) (bool, map[string]string) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	healthy := true
	detail := make(map[string]string, len(c.statuses)+1)
	for _, s := range c.statuses {
		if s.Healthy {
			detail[s.Name] = "ok"
		} else {
			detail[s.Name] = s.Error
			healthy = false
		}
	}
	if healthy {
		detail["status"] = "ok"
	} else {
		detail["status"] = "degraded"
	}
	return healthy, detail
}

// ─── Check Implementations ──────────────────────────────────────────────────

// checkDataDir verifies the data directory exists, is a directory, and is
// writable by creating and removing a probe file.
func checkDataDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("check data dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data path %s is not a directory", dir)
	}
	probe := filepath.Join(dir, ".health-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("data dir not writable: %w", err)
	}
	return os.Remove(probe)
}
