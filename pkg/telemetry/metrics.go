package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/forgearch/forge/pkg/engine"
)

// Metrics collects Prometheus metrics for one forge invocation. A CLI run
// is short lived, so metrics are exported to a node_exporter textfile
// instead of being scraped.
type Metrics struct {
	config MetricsConfig

	stepsTotal    *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	stagesTotal   *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	promptsTotal  *prometheus.CounterVec
	runsTotal     *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	lastRun       *prometheus.GaugeVec

	registry *prometheus.Registry
}

var _ engine.Observer = (*Metrics)(nil)

// NewMetrics creates a metrics collector on its own registry.
func NewMetrics(cfg MetricsConfig) *Metrics {
	namespace := cfg.Namespace
	buckets := cfg.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		stepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_total",
				Help:      "Total number of steps by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Duration of step execution in seconds",
				Buckets:   buckets,
			},
			[]string{"kind"},
		),
		stagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stages_total",
				Help:      "Total number of stages by kind and status",
			},
			[]string{"kind", "status"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of stage execution in seconds",
				Buckets:   buckets,
			},
			[]string{"kind"},
		),
		promptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "prompts_total",
				Help:      "Total number of continuation prompts by answer",
			},
			[]string{"stage", "continue"},
		),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of runs by mode and status",
			},
			[]string{"mode", "status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of runs in seconds",
				Buckets:   buckets,
			},
			[]string{"mode"},
		),
		lastRun: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time the last run finished",
			},
			[]string{"mode", "status"},
		),
	}

	registry.MustRegister(
		m.stepsTotal,
		m.stepDuration,
		m.stagesTotal,
		m.stageDuration,
		m.promptsTotal,
		m.runsTotal,
		m.runDuration,
		m.lastRun,
	)

	return m
}

// ObserveStep implements engine.Observer.
func (m *Metrics) ObserveStep(kind engine.StepKind, outcome engine.StepOutcome, d time.Duration) {
	m.stepsTotal.WithLabelValues(string(kind), string(outcome)).Inc()
	if outcome != engine.StepMissing && outcome != engine.StepSkipped {
		m.stepDuration.WithLabelValues(string(kind)).Observe(d.Seconds())
	}
}

// ObserveStage implements engine.Observer.
func (m *Metrics) ObserveStage(kind engine.StageKind, status engine.StageStatus, d time.Duration) {
	m.stagesTotal.WithLabelValues(string(kind), string(status)).Inc()
	m.stageDuration.WithLabelValues(string(kind)).Observe(d.Seconds())
}

// ObservePrompt implements engine.Observer.
func (m *Metrics) ObservePrompt(stage string, cont bool) {
	m.promptsTotal.WithLabelValues(stage, strconv.FormatBool(cont)).Inc()
}

// ObserveRun implements engine.Observer.
func (m *Metrics) ObserveRun(mode engine.RunMode, status engine.RunStatus, d time.Duration) {
	m.runsTotal.WithLabelValues(string(mode), string(status)).Inc()
	m.runDuration.WithLabelValues(string(mode)).Observe(d.Seconds())
	m.lastRun.WithLabelValues(string(mode), string(status)).SetToCurrentTime()
}

// Registry returns the registry holding forge's metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the current metrics to the configured text file. It
// does nothing when no file is configured.
func (m *Metrics) WriteTextfile() error {
	if m.config.TextFile == "" {
		return nil
	}
	if dir := filepath.Dir(m.config.TextFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create metrics directory: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(m.config.TextFile, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

// Timer measures elapsed time.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
