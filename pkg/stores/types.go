package stores

import (
	"context"
	"time"

	"github.com/forgearch/forge/pkg/engine"
)

// Run is one recorded invocation.
type Run struct {
	ID             string           `json:"id"`
	Mode           engine.RunMode   `json:"mode"`
	Profile        string           `json:"profile,omitempty"`
	Platform       string           `json:"platform,omitempty"`
	DryRun         bool             `json:"dry_run"`
	Status         engine.RunStatus `json:"status"`
	Completed      bool             `json:"completed"`
	PolicyWarnings []string         `json:"policy_warnings,omitempty"`
	StartedAt      time.Time        `json:"started_at"`
	FinishedAt     time.Time        `json:"finished_at"`
	CreatedAt      time.Time        `json:"created_at"`

	// Stages and Prompts are only filled by GetRun.
	Stages  []*Stage  `json:"stages,omitempty"`
	Prompts []*Prompt `json:"prompts,omitempty"`
}

// Duration returns how long the run took.
func (r *Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Stage is one recorded stage of a run.
type Stage struct {
	ID        string             `json:"id"`
	RunID     string             `json:"run_id"`
	Seq       int                `json:"seq"`
	Kind      engine.StageKind   `json:"kind"`
	Name      string             `json:"name"`
	Status    engine.StageStatus `json:"status"`
	Error     *string            `json:"error,omitempty"`
	StartedAt time.Time          `json:"started_at"`
	Duration  time.Duration      `json:"duration"`
	Steps     []*Step            `json:"steps,omitempty"`
}

// Step is one recorded step of a stage.
type Step struct {
	ID        string             `json:"id"`
	StageID   string             `json:"stage_id"`
	Seq       int                `json:"seq"`
	Name      string             `json:"name"`
	Kind      engine.StepKind    `json:"kind"`
	Path      string             `json:"path,omitempty"`
	Package   string             `json:"package,omitempty"`
	Outcome   engine.StepOutcome `json:"outcome"`
	ExitCode  int                `json:"exit_code"`
	Message   string             `json:"message,omitempty"`
	StartedAt time.Time          `json:"started_at"`
	Duration  time.Duration      `json:"duration"`
}

// Prompt is one recorded answer to the continuation question. StageID is
// nil for questions asked between stages.
type Prompt struct {
	ID       string    `json:"id"`
	RunID    string    `json:"run_id"`
	StageID  *string   `json:"stage_id,omitempty"`
	Seq      int       `json:"seq"`
	Stage    string    `json:"stage"`
	Reason   string    `json:"reason,omitempty"`
	Continue bool      `json:"continue"`
	AskedAt  time.Time `json:"asked_at"`
}

// Store defines the interface for the run history. It is an audit trail:
// forge never reads it to decide what to run.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// RecordRun implements engine.RunRecorder.
	RecordRun(ctx context.Context, report *engine.RunReport) error

	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)
	DeleteRun(ctx context.Context, id string) error

	// Utility
	HealthCheck(ctx context.Context) error
}
