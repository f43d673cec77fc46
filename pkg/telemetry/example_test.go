package telemetry_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/forgearch/forge/pkg/engine"
	"github.com/forgearch/forge/pkg/telemetry"
)

// Example_metricsTextfile records a run and exports it for node_exporter.
func Example_metricsTextfile() {
	dir, err := os.MkdirTemp("", "forge-metrics")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(dir)

	cfg := telemetry.DefaultConfig()
	cfg.Metrics.TextFile = filepath.Join(dir, "forge.prom")

	m := telemetry.NewMetrics(cfg.Metrics)
	m.ObserveStep(engine.StepKindScript, engine.StepSucceeded, 2*time.Second)
	m.ObserveStage(engine.StageKindPillar, engine.StageSucceeded, 2*time.Second)
	m.ObserveRun(engine.RunModeProfile, engine.RunStatusSucceeded, 3*time.Second)

	if err := m.WriteTextfile(); err != nil {
		panic(err)
	}
	_, err = os.Stat(cfg.Metrics.TextFile)
	fmt.Println("written:", err == nil)
	// Output: written: true
}

// Example_instrumentedOperation wraps one operation in a span and a logger.
func Example_instrumentedOperation() {
	cfg := telemetry.DefaultConfig()
	cfg.Logging.Writer = os.Stderr

	tel, err := telemetry.NewTelemetry(context.Background(), cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())
	ic := telemetry.StartOperation(ctx, "profile.validate",
		telemetry.AttrProfile.String("developer"))
	ic.Logger.Info("Validating profile")
	ic.End(nil)

	fmt.Println(telemetry.TraceID(ic.Ctx) != "")
	// Output: true
}
