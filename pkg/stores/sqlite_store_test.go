package stores

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/forgearch/forge/pkg/engine"
)

// setupTestStore creates a migrated SQLite store in a temporary directory
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "history", "forge.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleReport(started time.Time) *engine.RunReport {
	return &engine.RunReport{
		ID:             "run-1",
		Mode:           engine.RunModeProfile,
		Profile:        "workstation",
		Platform:       "arch",
		Status:         engine.RunStatusPartial,
		Completed:      true,
		PolicyWarnings: []string{"empty-profile: nothing to do"},
		StartedAt:      started,
		FinishedAt:     started.Add(90 * time.Second),
		Stages: []*engine.StageResult{
			{
				Kind:      engine.StageKindBootstrap,
				Name:      "bootstrap",
				Status:    engine.StageSucceeded,
				StartedAt: started,
				Duration:  10 * time.Second,
				Steps: []*engine.StepResult{
					{
						Step:      engine.Step{Name: "arch", Kind: engine.StepKindScript, Path: "bootstrap/arch.sh"},
						Outcome:   engine.StepSucceeded,
						StartedAt: started,
						Duration:  10 * time.Second,
					},
				},
			},
			{
				Kind:      engine.StageKindPillar,
				Name:      "gaming",
				Status:    engine.StageFailed,
				Err:       engine.NewRecoverableError("exit status 2", nil),
				StartedAt: started.Add(10 * time.Second),
				Duration:  20 * time.Second,
				Steps: []*engine.StepResult{
					{
						Step:      engine.Step{Name: "steam", Kind: engine.StepKindScript, Path: "pillars/gaming/steam.sh"},
						Outcome:   engine.StepFailed,
						ExitCode:  2,
						Message:   "exit status 2",
						StartedAt: started.Add(10 * time.Second),
						Duration:  5 * time.Second,
					},
					{
						Step:      engine.Step{Name: "lutris", Kind: engine.StepKindScript, Path: "pillars/gaming/lutris.sh"},
						Outcome:   engine.StepSucceeded,
						StartedAt: started.Add(15 * time.Second),
						Duration:  15 * time.Second,
					},
				},
				Prompts: []engine.PromptRecord{
					{Stage: "gaming", Reason: "steam failed", Continue: true, AskedAt: started.Add(15 * time.Second)},
				},
			},
		},
		Prompts: []engine.PromptRecord{
			{Stage: "gaming", Reason: "pillar failed", Continue: true, AskedAt: started.Add(30 * time.Second)},
		},
	}
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.HealthCheck(ctx); err == nil {
		t.Error("expected health check to fail before Init")
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}
	// A second migration is a no-op.
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}
	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}

	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Error("expected error for empty path")
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tables := []string{"runs", "stage_results", "step_results", "prompts"}
	for _, table := range tables {
		var count int
		err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count)
		if err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}
}

func TestRecordAndGetRun(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := store.RecordRun(ctx, sampleReport(started)); err != nil {
		t.Fatalf("RecordRun() error = %v", err)
	}

	run, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}

	if run.Mode != engine.RunModeProfile || run.Profile != "workstation" || run.Platform != "arch" {
		t.Errorf("run = %+v", run)
	}
	if run.Status != engine.RunStatusPartial || !run.Completed || run.DryRun {
		t.Errorf("status = %s completed = %v dry_run = %v", run.Status, run.Completed, run.DryRun)
	}
	if !run.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", run.StartedAt, started)
	}
	if run.Duration() != 90*time.Second {
		t.Errorf("Duration() = %v", run.Duration())
	}
	if len(run.PolicyWarnings) != 1 || run.PolicyWarnings[0] != "empty-profile: nothing to do" {
		t.Errorf("PolicyWarnings = %v", run.PolicyWarnings)
	}

	if len(run.Stages) != 2 {
		t.Fatalf("stages = %d, want 2", len(run.Stages))
	}
	gaming := run.Stages[1]
	if gaming.Name != "gaming" || gaming.Status != engine.StageFailed || gaming.Error == nil {
		t.Errorf("gaming stage = %+v", gaming)
	}
	if gaming.Duration != 20*time.Second {
		t.Errorf("gaming duration = %v", gaming.Duration)
	}
	if len(gaming.Steps) != 2 || gaming.Steps[0].Name != "steam" || gaming.Steps[1].Name != "lutris" {
		t.Fatalf("gaming steps = %+v", gaming.Steps)
	}
	if gaming.Steps[0].ExitCode != 2 || gaming.Steps[0].Outcome != engine.StepFailed {
		t.Errorf("steam step = %+v", gaming.Steps[0])
	}

	if len(run.Prompts) != 2 {
		t.Fatalf("prompts = %d, want 2", len(run.Prompts))
	}
	if run.Prompts[0].StageID == nil || *run.Prompts[0].StageID != gaming.ID {
		t.Errorf("in-stage prompt not linked to stage: %+v", run.Prompts[0])
	}
	if run.Prompts[1].StageID != nil || !run.Prompts[1].Continue {
		t.Errorf("boundary prompt = %+v", run.Prompts[1])
	}
}

func TestRecordRun_AssignsID(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	report := &engine.RunReport{Mode: engine.RunModeDirect, Status: engine.RunStatusSucceeded, StartedAt: time.Now()}
	if err := store.RecordRun(ctx, report); err != nil {
		t.Fatalf("RecordRun() error = %v", err)
	}
	if report.ID == "" {
		t.Fatal("expected an id to be assigned")
	}
	run, err := store.GetRun(ctx, report.ID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if len(run.Stages) != 0 || len(run.Prompts) != 0 || len(run.PolicyWarnings) != 0 {
		t.Errorf("run = %+v", run)
	}

	if err := store.RecordRun(ctx, report); err == nil {
		t.Error("expected duplicate id to fail")
	}
}

func TestListRuns(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		report := &engine.RunReport{
			ID:        id,
			Mode:      engine.RunModeProfile,
			Profile:   "p",
			Status:    engine.RunStatusSucceeded,
			StartedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := store.RecordRun(ctx, report); err != nil {
			t.Fatalf("RecordRun(%s) error = %v", id, err)
		}
	}

	runs, err := store.ListRuns(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "c" || runs[1].ID != "b" {
		t.Errorf("ListRuns(2, 0) = %v", ids(runs))
	}

	runs, err = store.ListRuns(ctx, 10, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != "a" {
		t.Errorf("ListRuns(10, 2) = %v", ids(runs))
	}
}

func TestDeleteRun(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.RecordRun(ctx, sampleReport(time.Now())); err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteRun(ctx, "run-1"); err != nil {
		t.Fatalf("DeleteRun() error = %v", err)
	}

	if _, err := store.GetRun(ctx, "run-1"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun() error = %v, want ErrRunNotFound", err)
	}
	var steps int
	if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM step_results").Scan(&steps); err != nil {
		t.Fatal(err)
	}
	if steps != 0 {
		t.Errorf("steps left after delete: %d", steps)
	}

	if err := store.DeleteRun(ctx, "run-1"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("second DeleteRun() error = %v", err)
	}
}

func ids(runs []*Run) []string {
	out := make([]string, len(runs))
	for i, r := range runs {
		out[i] = r.ID
	}
	return out
}
