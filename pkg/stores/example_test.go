package stores_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/forgearch/forge/pkg/engine"
	"github.com/forgearch/forge/pkg/stores"
)

// ExampleNewSQLiteStore demonstrates creating and initializing a new SQLite store.
func ExampleNewSQLiteStore() {
	store, err := stores.NewSQLiteStore(stores.Config{
		Path: ":memory:", // Use in-memory database for example
	})
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}

	if err := store.Migrate(ctx); err != nil {
		log.Fatal(err)
	}

	defer store.Close()

	fmt.Println("Store initialized successfully")
	// Output: Store initialized successfully
}

// ExampleSQLiteStore_RecordRun demonstrates recording a finished run and
// reading it back.
func ExampleSQLiteStore_RecordRun() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	now := time.Now()
	report := &engine.RunReport{
		ID:        "run-001",
		Mode:      engine.RunModeDirect,
		Status:    engine.RunStatusSucceeded,
		Completed: true,
		StartedAt: now,
		Stages: []*engine.StageResult{{
			Kind:      engine.StageKindPillar,
			Name:      "developer",
			Status:    engine.StageSucceeded,
			StartedAt: now,
			Steps: []*engine.StepResult{{
				Step:      engine.Step{Name: "go", Kind: engine.StepKindScript, Path: "pillars/developer/go.sh"},
				Outcome:   engine.StepSucceeded,
				StartedAt: now,
			}},
		}},
	}

	if err := store.RecordRun(ctx, report); err != nil {
		log.Fatal(err)
	}

	run, err := store.GetRun(ctx, "run-001")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Run ID: %s, Status: %s\n", run.ID, run.Status)
	for _, stage := range run.Stages {
		fmt.Printf("%s: %s (%d steps)\n", stage.Name, stage.Status, len(stage.Steps))
	}
	// Output:
	// Run ID: run-001, Status: succeeded
	// developer: succeeded (1 steps)
}
