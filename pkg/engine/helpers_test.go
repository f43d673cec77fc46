package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/rs/zerolog"

	"github.com/forgearch/forge/pkg/config"
)

// recordingRunner records every step it is asked to run. Steps listed in
// fail exit non-zero; everything else succeeds.
type recordingRunner struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls []string
	// onRun is called after each step is recorded.
	onRun func(step Step)
}

func newRecordingRunner(failing ...string) *recordingRunner {
	r := &recordingRunner{fail: make(map[string]bool)}
	for _, f := range failing {
		r.fail[f] = true
	}
	return r
}

func (r *recordingRunner) Run(ctx context.Context, step Step) *StepResult {
	key := step.Path
	if step.Kind == StepKindPackage {
		key = "pkg:" + step.Package
	}

	r.mu.Lock()
	r.calls = append(r.calls, key)
	r.mu.Unlock()
	if r.onRun != nil {
		r.onRun(step)
	}

	res := &StepResult{Step: step, Outcome: StepSucceeded, StartedAt: time.Now()}
	if r.fail[key] {
		res.Outcome = StepFailed
		res.ExitCode = 1
		res.Err = fmt.Errorf("exit status 1")
	}
	return res
}

func (r *recordingRunner) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

// scriptedDecision answers from a fixed list and refuses once it runs out.
type scriptedDecision struct {
	answers []bool
	asked   []string
}

func (d *scriptedDecision) Ask(_ context.Context, stage, _ string) bool {
	d.asked = append(d.asked, stage)
	if len(d.answers) == 0 {
		return false
	}
	a := d.answers[0]
	d.answers = d.answers[1:]
	return a
}

type recordingReporter struct {
	nopReporter
	started   []string
	missing   []string
	failed    []string
	warnings  []string
	completed int
}

func (r *recordingReporter) StageStarted(_ StageKind, name string) {
	r.started = append(r.started, name)
}

func (r *recordingReporter) StepMissing(step Step) {
	r.missing = append(r.missing, step.Name)
}

func (r *recordingReporter) StageFailed(result *StageResult) {
	r.failed = append(r.failed, result.Name)
}

func (r *recordingReporter) Warning(msg string) {
	r.warnings = append(r.warnings, msg)
}

func (r *recordingReporter) Completion() {
	r.completed++
}

type fixedPlatform string

func (p fixedPlatform) Platform(context.Context) (string, error) {
	return string(p), nil
}

type memoryRecorder struct {
	reports []*RunReport
}

func (m *memoryRecorder) RecordRun(_ context.Context, report *RunReport) error {
	m.reports = append(m.reports, report)
	return nil
}

type staticPolicy []string

func (p staticPolicy) Advise(context.Context, *config.Profile) ([]string, error) {
	return p, nil
}

// harness wires an orchestrator over an in-memory repository.
type harness struct {
	fsys     fstest.MapFS
	runner   *recordingRunner
	decision *scriptedDecision
	reporter *recordingReporter
	recorder *memoryRecorder
	pillars  *PillarExecutor
	orch     *Orchestrator
}

func script() *fstest.MapFile {
	return &fstest.MapFile{Data: []byte("#!/bin/bash\n"), Mode: 0o755}
}

func newHarness(t *testing.T, fsys fstest.MapFS, runner *recordingRunner, answers ...bool) *harness {
	t.Helper()
	h := &harness{
		fsys:     fsys,
		runner:   runner,
		decision: &scriptedDecision{answers: answers},
		reporter: &recordingReporter{},
		recorder: &memoryRecorder{},
	}
	h.pillars = NewPillarExecutor(PillarExecutorConfig{
		FS:       fsys,
		Runner:   runner,
		Decision: h.decision,
		Reporter: h.reporter,
		Logger:   zerolog.Nop(),
	})
	h.orch = NewOrchestrator(OrchestratorConfig{
		Profiles: config.NewProfileStore(fsys, "profiles"),
		Resolver: config.NewResolver(config.NewTraitStore(fsys, "traits"), zerolog.Nop()),
		Pillars:  h.pillars,
		Decision: h.decision,
		Reporter: h.reporter,
		Platform: fixedPlatform("arch"),
		Recorder: h.recorder,
		Logger:   zerolog.Nop(),
	})
	return h
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
