package engine

import (
	"fmt"
)

// StepOutcome is the result of running one step.
type StepOutcome string

const (
	// StepSucceeded indicates the step's process exited zero.
	StepSucceeded StepOutcome = "succeeded"

	// StepFailed indicates a non-zero exit or a process that could not start.
	StepFailed StepOutcome = "failed"

	// StepMissing indicates the step's script does not exist.
	StepMissing StepOutcome = "missing"

	// StepSkipped indicates the step was announced but not run (dry-run skip).
	StepSkipped StepOutcome = "skipped"
)

// CountsAsFailure reports whether the outcome fails the enclosing stage.
// Missing and skipped steps do not.
func (o StepOutcome) CountsAsFailure() bool {
	return o == StepFailed
}

// Validate checks if the step outcome is valid.
func (o StepOutcome) Validate() error {
	switch o {
	case StepSucceeded, StepFailed, StepMissing, StepSkipped:
		return nil
	default:
		return fmt.Errorf("invalid step outcome: %s", o)
	}
}

// StageStatus is the result of running one stage.
type StageStatus string

const (
	// StageSucceeded indicates every attempted step succeeded.
	StageSucceeded StageStatus = "succeeded"

	// StageFailed indicates at least one step failed or the stage could not
	// be resolved.
	StageFailed StageStatus = "failed"

	// StageAborted indicates the operator stopped the stage after a step
	// failure. An aborted stage is also a failed stage.
	StageAborted StageStatus = "aborted"
)

// Succeeded reports whether the stage counts as a success.
func (s StageStatus) Succeeded() bool {
	return s == StageSucceeded
}

// Validate checks if the stage status is valid.
func (s StageStatus) Validate() error {
	switch s {
	case StageSucceeded, StageFailed, StageAborted:
		return nil
	default:
		return fmt.Errorf("invalid stage status: %s", s)
	}
}

// RunStatus represents the overall status of one invocation.
type RunStatus string

const (
	// RunStatusRunning indicates the run is still executing.
	RunStatusRunning RunStatus = "running"

	// RunStatusSucceeded indicates every stage succeeded.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusPartial indicates some stages failed but the run went on.
	RunStatusPartial RunStatus = "partial"

	// RunStatusAborted indicates the operator stopped the run.
	RunStatusAborted RunStatus = "aborted"

	// RunStatusCancelled indicates the process was interrupted.
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal returns true if the run status represents a final state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusPartial ||
		s == RunStatusAborted || s == RunStatusCancelled
}

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusRunning, RunStatusSucceeded, RunStatusPartial,
		RunStatusAborted, RunStatusCancelled:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}

// RunMode is how a run was requested.
type RunMode string

const (
	// RunModeProfile runs the stages of a profile as one guarded pipeline.
	RunModeProfile RunMode = "profile"

	// RunModeDirect runs independently requested stages, best effort.
	RunModeDirect RunMode = "direct"
)
