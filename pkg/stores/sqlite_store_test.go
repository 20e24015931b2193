package stores

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/buildwave/buildwave/pkg/runner"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{Path: filepath.Join(t.TempDir(), "history.db")})
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	return store
}

func TestSQLiteStore_RunLifecycle(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	run := &Run{
		ID:        "run-1",
		Mode:      "hardened",
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	results := []runner.PackageResult{
		{Package: "b/base", Result: runner.ResultSuccess, Attempts: 1, BuildTimeSeconds: 240},
		{Package: "l/lib", Result: runner.ResultFailed, Attempts: 3, ExitCode: 2, Reason: "exit code 2"},
		{Package: "a/app", Result: runner.ResultSkipped, Reason: "dependency_failed"},
	}
	for _, res := range results {
		if err := store.RecordPackageResult(ctx, run.ID, res); err != nil {
			t.Fatalf("RecordPackageResult failed: %v", err)
		}
	}

	summary := &runner.Summary{
		TotalPackages: 3,
		ByResult: map[runner.ResultKind]int{
			runner.ResultSuccess: 1,
			runner.ResultFailed:  1,
			runner.ResultSkipped: 1,
		},
	}
	if err := store.FinishRun(ctx, run.ID, RunStatusCompleted, summary); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	got, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Status != RunStatusCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}
	if got.TotalPackages != 3 || got.Succeeded != 1 || got.Failed != 1 || got.Skipped != 1 {
		t.Errorf("counters wrong: %+v", got)
	}
	if got.CompletedAt == nil {
		t.Error("completed_at not set")
	}

	rows, err := store.ListPackageResults(ctx, run.ID)
	if err != nil {
		t.Fatalf("ListPackageResults failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].Package != "b/base" || rows[2].Result != "skipped" {
		t.Errorf("rows out of order or wrong: %+v", rows)
	}
	if rows[1].Attempts != 3 {
		t.Errorf("attempts not recorded: %+v", rows[1])
	}
}

func TestSQLiteStore_ResumedRunReopens(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	run := &Run{ID: "run-1", Mode: "hardened", Status: RunStatusRunning, StartedAt: time.Now().UTC()}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	summary := &runner.Summary{TotalPackages: 1, ByResult: map[runner.ResultKind]int{runner.ResultFailed: 1}}
	if err := store.FinishRun(ctx, run.ID, RunStatusStopped, summary); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	// Same run id comes back on resume.
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun on resume failed: %v", err)
	}
	got, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Status != RunStatusRunning {
		t.Errorf("resume must reopen the run, got %s", got.Status)
	}
	if got.CompletedAt != nil {
		t.Error("resume must clear completed_at")
	}
}

func TestSQLiteStore_ListRunsNewestFirst(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i, id := range []string{"run-a", "run-b", "run-c"} {
		run := &Run{ID: id, Mode: "hardened", Status: RunStatusCompleted, StartedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.CreateRun(ctx, run); err != nil {
			t.Fatalf("CreateRun failed: %v", err)
		}
	}

	runs, err := store.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "run-c" || runs[1].ID != "run-b" {
		t.Errorf("wrong order: %s, %s", runs[0].ID, runs[1].ID)
	}
}

func TestSQLiteStore_GetRunNotFound(t *testing.T) {
	store := testStore(t)
	if _, err := store.GetRun(context.Background(), "absent"); err == nil {
		t.Fatal("expected not-found error")
	}
}

func TestNewSQLiteStore_RequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestSQLiteStore_MigrateIdempotent(t *testing.T) {
	store := testStore(t)
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}
}
