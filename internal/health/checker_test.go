package health

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/edgeorchestra/edgeorchestra/internal/infra/blob"
	"github.com/edgeorchestra/edgeorchestra/internal/infra/sqlite"
)

func newTestChecker(t *testing.T) *Checker {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewChecker(db, blob.NewMemoryStore(), t.TempDir(), zerolog.Nop())
}

func TestRunAllHealthy(t *testing.T) {
	c := newTestChecker(t)
	c.runAll(context.Background())

	statuses := c.Statuses()
	if len(statuses) != 3 {
		t.Fatalf("Statuses() = %d, want 3", len(statuses))
	}
	for _, s := range statuses {
		if !s.Healthy {
			t.Errorf("check %q should be healthy, got error: %s", s.Name, s.Error)
		}
	}
	if !c.IsHealthy() {
		t.Error("IsHealthy() should be true when all checks pass")
	}
}

func TestIsHealthyBeforeFirstRun(t *testing.T) {
	c := newTestChecker(t)
	if !c.IsHealthy() {
		t.Error("IsHealthy() should be true before the first run")
	}
}

func TestDataDirCheckFailsOnFile(t *testing.T) {
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	dataDir := filepath.Join(t.TempDir(), "data")
	os.WriteFile(dataDir, []byte("not a dir"), 0o644)

	c := NewChecker(db, blob.NewMemoryStore(), dataDir, zerolog.Nop())
	c.runAll(context.Background())

	for _, s := range c.Statuses() {
		if s.Name == "data_dir" && s.Healthy {
			t.Error("data_dir should fail when the path is a file")
		}
	}
	if c.IsHealthy() {
		t.Error("IsHealthy() should be false with a failing check")
	}
}

func TestFailingCheckPopulatesError(t *testing.T) {
	c := &Checker{
		checks: []Check{
			{
				Name: "always_fail",
				CheckFn: func(ctx context.Context) error {
					return errors.New("backend down")
				},
			},
		},
	}
	c.runAll(context.Background())

	statuses := c.Statuses()
	if statuses[0].Healthy {
		t.Error("always_fail check should not be healthy")
	}
	if statuses[0].Error != "backend down" {
		t.Errorf("error = %q", statuses[0].Error)
	}
}

func TestReport(t *testing.T) {
	c := newTestChecker(t)
	c.runAll(context.Background())

	healthy, detail := c.Report(nil)
	if !healthy {
		t.Fatalf("Report() unhealthy: %v", detail)
	}
	if detail["status"] != "ok" || detail["sqlite"] != "ok" || detail["blob_store"] != "ok" {
		t.Errorf("detail = %v", detail)
	}
}

func TestReportDegraded(t *testing.T) {
	c := &Checker{
		checks: []Check{
			{Name: "always_fail", CheckFn: func(ctx context.Context) error { return errors.New("down") }},
		},
	}
	c.runAll(context.Background())

	healthy, detail := c.Report(nil)
	if healthy {
		t.Error("Report() should be unhealthy")
	}
	if detail["status"] != "degraded" || detail["always_fail"] != "down" {
		t.Errorf("detail = %v", detail)
	}
}

func TestStatusesReturnsCopy(t *testing.T) {
	c := newTestChecker(t)
	c.runAll(context.Background())

	s1 := c.Statuses()
	s2 := c.Statuses()
	s1[0].Healthy = false
	if !s2[0].Healthy {
		t.Error("Statuses() should return a copy, not a reference")
	}
}
