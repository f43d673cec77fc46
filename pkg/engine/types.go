package engine

import (
	"sort"
	"time"

	"github.com/forgearch/forge/pkg/config"
)

// StepKind distinguishes how a step is executed.
type StepKind string

const (
	// StepKindScript runs a script file with the configured shell.
	StepKindScript StepKind = "script"

	// StepKindPackage installs one package with the platform's installer.
	StepKindPackage StepKind = "package"
)

// StageKind distinguishes the stages of a run.
type StageKind string

const (
	StageKindBootstrap StageKind = "bootstrap"
	StageKindPackages  StageKind = "packages"
	StageKindPillar    StageKind = "pillar"
)

// Step is one named external action.
type Step struct {
	// Name is the step name shown to the operator.
	Name string `json:"name"`

	// Kind selects script or package execution.
	Kind StepKind `json:"kind"`

	// Stage is the name of the stage the step belongs to.
	Stage string `json:"stage,omitempty"`

	// Path is the script location, slash-separated and relative to the
	// repository root. Only set for script steps.
	Path string `json:"path,omitempty"`

	// Package is the package to install. Only set for package steps.
	Package string `json:"package,omitempty"`

	// Description overrides Name in status lines.
	Description string `json:"description,omitempty"`
}

// Label returns the text used for the step in status lines.
func (s Step) Label() string {
	if s.Description != "" {
		return s.Description
	}
	return s.Name
}

// StepResult is the outcome of running one step.
type StepResult struct {
	Step      Step          `json:"step"`
	Outcome   StepOutcome   `json:"outcome"`
	ExitCode  int           `json:"exit_code"`
	Err       error         `json:"-"`
	Message   string        `json:"message,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Succeeded reports whether the step ran and exited zero.
func (r *StepResult) Succeeded() bool {
	return r != nil && r.Outcome == StepSucceeded
}

// PromptRecord is one answer to the continuation question.
type PromptRecord struct {
	Stage    string    `json:"stage"`
	Reason   string    `json:"reason"`
	Continue bool      `json:"continue"`
	AskedAt  time.Time `json:"asked_at"`
}

// StageResult is the outcome of running one stage.
type StageResult struct {
	Kind      StageKind      `json:"kind"`
	Name      string         `json:"name"`
	Status    StageStatus    `json:"status"`
	Steps     []*StepResult  `json:"steps,omitempty"`
	Prompts   []PromptRecord `json:"prompts,omitempty"`
	Err       error          `json:"-"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
}

// Succeeded reports whether every attempted step succeeded.
func (r *StageResult) Succeeded() bool {
	return r != nil && r.Status.Succeeded()
}

// Count returns the number of steps with the given outcome.
func (r *StageResult) Count(outcome StepOutcome) int {
	n := 0
	for _, s := range r.Steps {
		if s.Outcome == outcome {
			n++
		}
	}
	return n
}

// DirectRequest lists the stages requested without a profile.
type DirectRequest struct {
	Bootstrap bool
	Pillars   []string
}

// Empty reports whether nothing was requested.
func (r DirectRequest) Empty() bool {
	return !r.Bootstrap && len(r.Pillars) == 0
}

// RunReport is the record of one invocation.
type RunReport struct {
	ID       string         `json:"id"`
	Mode     RunMode        `json:"mode"`
	Profile  string         `json:"profile,omitempty"`
	Platform string         `json:"platform,omitempty"`
	DryRun   bool           `json:"dry_run"`
	Status   RunStatus      `json:"status"`
	Stages   []*StageResult `json:"stages,omitempty"`

	// Prompts holds the questions asked at stage boundaries. Questions asked
	// inside a stage are on the stage.
	Prompts []PromptRecord `json:"prompts,omitempty"`

	// Completed is set when the completion message was shown.
	Completed bool `json:"completed"`

	Resolution     *config.Resolution `json:"-"`
	PolicyWarnings []string           `json:"policy_warnings,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Failed returns the stages that did not succeed.
func (r *RunReport) Failed() []*StageResult {
	var out []*StageResult
	for _, s := range r.Stages {
		if !s.Succeeded() {
			out = append(out, s)
		}
	}
	return out
}

// Stage returns the first stage with the given name.
func (r *RunReport) Stage(name string) (*StageResult, bool) {
	for _, s := range r.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// AllPrompts returns every prompt of the run in the order asked.
func (r *RunReport) AllPrompts() []PromptRecord {
	var out []PromptRecord
	for _, s := range r.Stages {
		out = append(out, s.Prompts...)
	}
	out = append(out, r.Prompts...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AskedAt.Before(out[j].AskedAt)
	})
	return out
}
