package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/forgearch/forge/pkg/config"
	"github.com/forgearch/forge/pkg/engine"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "default", mutate: func(*Config) {}},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: true},
		{name: "bad format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: true},
		{name: "bad exporter", mutate: func(c *Config) { c.Tracing.Exporter = "jaeger" }, wantErr: true},
		{name: "otlp without endpoint", mutate: func(c *Config) { c.Tracing.Exporter = "otlp" }, wantErr: true},
		{name: "otlp", mutate: func(c *Config) {
			c.Tracing.Exporter = "otlp"
			c.Tracing.Endpoint = "localhost:4317"
		}},
		{name: "sampling rate", mutate: func(c *Config) { c.Tracing.SamplingRate = 1.5 }, wantErr: true},
		{name: "no service", mutate: func(c *Config) { c.ServiceName = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFromSettings(t *testing.T) {
	cfg := FromSettings(config.TelemetrySettings{
		LogLevel:      "debug",
		LogFormat:     "json",
		MetricsFile:   "/var/lib/node_exporter/forge.prom",
		TraceExporter: "otlp",
		TraceEndpoint: "collector:4317",
	}, "1.0.0")

	if cfg.ServiceVersion != "1.0.0" {
		t.Errorf("ServiceVersion = %q", cfg.ServiceVersion)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" || !cfg.Logging.EnableCaller {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if cfg.Tracing.Exporter != "otlp" || cfg.Tracing.Endpoint != "collector:4317" {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}
	if cfg.Metrics.TextFile != "/var/lib/node_exporter/forge.prom" {
		t.Errorf("TextFile = %q", cfg.Metrics.TextFile)
	}

	defaults := FromSettings(config.TelemetrySettings{}, "")
	if defaults.Logging.Level != "info" || defaults.Tracing.Exporter != "none" || defaults.ServiceVersion != "dev" {
		t.Errorf("defaults = %+v", defaults)
	}
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(LoggingConfig{Level: "info", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}

	logger.NewComponentLogger("runner").
		WithRunID("run-1").
		WithProfile("developer").
		WithStage("pillar", "gaming").
		WithStep("steam").
		Info("step started")
	logger.Debug("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"component":  "runner",
		"run_id":     "run-1",
		"profile":    "developer",
		"stage_kind": "pillar",
		"stage":      "gaming",
		"step":       "steam",
		"message":    "step started",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %v, want %q", k, entry[k], v)
		}
	}
}

func TestLogger_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forge.log")
	logger, err := NewLogger(LoggingConfig{Level: "warn", Format: "json", Output: path})
	if err != nil {
		t.Fatal(err)
	}
	logger.WithError(errors.New("boom")).Warn("pillar failed")
	if err := logger.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"error":"boom"`) {
		t.Errorf("log file = %q", data)
	}
}

func TestFromContext_Default(t *testing.T) {
	// A logger is always returned, even without one in the context.
	FromContext(context.Background()).Info("dropped")
}

func TestMetrics_Observer(t *testing.T) {
	m := NewMetrics(DefaultConfig().Metrics)

	m.ObserveStep(engine.StepKindScript, engine.StepSucceeded, time.Second)
	m.ObserveStep(engine.StepKindScript, engine.StepFailed, time.Second)
	m.ObserveStep(engine.StepKindPackage, engine.StepMissing, 0)
	m.ObserveStage(engine.StageKindPillar, engine.StageFailed, 2*time.Second)
	m.ObservePrompt("gaming", true)
	m.ObservePrompt("gaming", true)
	m.ObserveRun(engine.RunModeDirect, engine.RunStatusPartial, 3*time.Second)

	if got := testutil.ToFloat64(m.stepsTotal.WithLabelValues("script", "failed")); got != 1 {
		t.Errorf("failed script steps = %v", got)
	}
	if got := testutil.ToFloat64(m.stepsTotal.WithLabelValues("package", "missing")); got != 1 {
		t.Errorf("missing package steps = %v", got)
	}
	if got := testutil.CollectAndCount(m.stepDuration); got != 1 {
		t.Errorf("step duration series = %d, want 1", got)
	}
	if got := testutil.ToFloat64(m.stagesTotal.WithLabelValues("pillar", "failed")); got != 1 {
		t.Errorf("failed pillar stages = %v", got)
	}
	if got := testutil.ToFloat64(m.promptsTotal.WithLabelValues("gaming", "true")); got != 2 {
		t.Errorf("prompts = %v", got)
	}
	if got := testutil.ToFloat64(m.runsTotal.WithLabelValues("direct", "partial")); got != 1 {
		t.Errorf("runs = %v", got)
	}
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := NewMetrics(MetricsConfig{Namespace: "forge"})
	if err := m.WriteTextfile(); err != nil {
		t.Fatalf("WriteTextfile() without a file = %v", err)
	}

	path := filepath.Join(t.TempDir(), "textfile", "forge.prom")
	m = NewMetrics(MetricsConfig{Namespace: "forge", TextFile: path})
	m.ObserveRun(engine.RunModeProfile, engine.RunStatusSucceeded, time.Minute)
	if err := m.WriteTextfile(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `forge_runs_total{mode="profile",status="succeeded"} 1`) {
		t.Errorf("textfile = %s", data)
	}
}

func TestTracer_StdoutExporter(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig().Tracing
	cfg.Exporter = "stdout"
	cfg.Writer = &buf

	tracer, err := NewTracer(context.Background(), cfg, "forge", "test")
	if err != nil {
		t.Fatal(err)
	}

	_, span := tracer.StartValidateSpan(context.Background(), "developer")
	RecordError(span, errors.New("invalid"))
	span.End()

	if err := tracer.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "profile.validate") || !strings.Contains(out, "developer") {
		t.Errorf("exported spans = %s", out)
	}
}

func TestTracer_UnknownExporter(t *testing.T) {
	cfg := DefaultConfig().Tracing
	cfg.Exporter = "zipkin"
	if _, err := NewTracer(context.Background(), cfg, "forge", "test"); err == nil {
		t.Error("expected error for unknown exporter")
	}
}

func TestTelemetry_Shutdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Writer = &bytes.Buffer{}
	cfg.Metrics.TextFile = filepath.Join(t.TempDir(), "forge.prom")

	tel, err := NewTelemetry(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}

	ctx := tel.WithContext(context.Background())
	if FromTelemetryContext(ctx) != tel {
		t.Error("telemetry not found in context")
	}
	ic := StartOperation(ctx, "command.list")
	ic.End(nil)

	if err := tel.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if _, err := os.Stat(cfg.Metrics.TextFile); err != nil {
		t.Errorf("metrics file not written: %v", err)
	}
}

func TestStartOperation_WithoutTelemetry(t *testing.T) {
	ic := StartOperation(context.Background(), "noop")
	if ic.Span != nil {
		t.Error("expected no span without telemetry")
	}
	ic.End(errors.New("ignored"))
}
