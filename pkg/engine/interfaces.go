package engine

import (
	"context"
	"time"

	"github.com/forgearch/forge/pkg/config"
)

// StepRunner executes a single step. It never returns an error or panics
// for an execution problem; spawn failures and non-zero exits are reported
// as StepFailed and absent scripts as StepMissing.
type StepRunner interface {
	Run(ctx context.Context, step Step) *StepResult
}

// ContinuationDecision asks whether to keep going after a failure. It blocks
// until answered. Any failure to get an answer means "do not continue".
type ContinuationDecision interface {
	Ask(ctx context.Context, stage, reason string) bool
}

// Reporter renders run progress for the operator.
type Reporter interface {
	// ProfileLoading announces that a profile is being loaded.
	ProfileLoading(name string)

	// StageStarted announces a stage before its first step runs.
	StageStarted(kind StageKind, name string)

	// StepMissing warns that a step has no script and is skipped.
	StepMissing(step Step)

	// StageFailed announces a failed stage before any question is asked.
	StageFailed(result *StageResult)

	// Warning shows a non-fatal message.
	Warning(msg string)

	// Completion shows the final success message.
	Completion()
}

// ProfileLoader loads profiles by name. config.ProfileStore implements it.
type ProfileLoader interface {
	Load(ctx context.Context, name string) (*config.Profile, error)
}

// ConfigResolver produces the effective configuration of a profile.
// config.Resolver implements it.
type ConfigResolver interface {
	Resolve(ctx context.Context, profile *config.Profile) (*config.Profile, *config.Resolution, error)
}

// PolicyChecker reviews an effective configuration and returns the
// violations it finds. Violations never stop a run.
type PolicyChecker interface {
	Advise(ctx context.Context, effective *config.Profile) ([]string, error)
}

// PlatformDetector returns the platform id of the target (e.g. "arch").
type PlatformDetector interface {
	Platform(ctx context.Context) (string, error)
}

// RunRecorder persists the report of a finished run. It is an audit trail
// only and is never read back to skip work.
type RunRecorder interface {
	RecordRun(ctx context.Context, report *RunReport) error
}

// Observer receives measurements of steps, stages, prompts and runs.
type Observer interface {
	ObserveStep(kind StepKind, outcome StepOutcome, d time.Duration)
	ObserveStage(kind StageKind, status StageStatus, d time.Duration)
	ObservePrompt(stage string, cont bool)
	ObserveRun(mode RunMode, status RunStatus, d time.Duration)
}

type nopReporter struct{}

func (nopReporter) ProfileLoading(string)          {}
func (nopReporter) StageStarted(StageKind, string) {}
func (nopReporter) StepMissing(Step)               {}
func (nopReporter) StageFailed(*StageResult)       {}
func (nopReporter) Warning(string)                 {}
func (nopReporter) Completion()                    {}

type nopObserver struct{}

func (nopObserver) ObserveStep(StepKind, StepOutcome, time.Duration)   {}
func (nopObserver) ObserveStage(StageKind, StageStatus, time.Duration) {}
func (nopObserver) ObservePrompt(string, bool)                         {}
func (nopObserver) ObserveRun(RunMode, RunStatus, time.Duration)       {}

// refuse is the decision used when none is configured.
type refuse struct{}

func (refuse) Ask(context.Context, string, string) bool { return false }
