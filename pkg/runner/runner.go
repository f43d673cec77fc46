// Package runner executes forge steps: scripts through the configured shell
// and packages through the platform's package manager, locally or over SSH.
package runner

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/rs/zerolog"

	"github.com/forgearch/forge/pkg/config"
	"github.com/forgearch/forge/pkg/engine"
)

// DryRunEnv is set to "1" for scripts run in dry-run mode.
const DryRunEnv = "FORGE_DRY_RUN"

// StatusPrinter renders the status lines around each step. ui.Printer
// implements it.
type StatusPrinter interface {
	StepStarted(label string)
	StepSucceeded(label string)
	StepFailed(label string)
	StepSkipped(label string)
}

// Config configures a Runner.
type Config struct {
	Executor  Executor
	Installer *Installer

	// Platform selects the package manager. Only needed for package steps.
	Platform engine.PlatformDetector

	DryRun      bool
	DryRunScope string

	// Env is passed to every step.
	Env map[string]string

	Status StatusPrinter
	Logger zerolog.Logger
}

// Runner implements engine.StepRunner.
type Runner struct {
	exec      Executor
	installer *Installer
	platform  engine.PlatformDetector
	dryRun    bool
	scope     string
	env       map[string]string
	status    StatusPrinter
	logger    zerolog.Logger
}

var _ engine.StepRunner = (*Runner)(nil)

// New creates a Runner.
func New(cfg Config) (*Runner, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	scope := cfg.DryRunScope
	if scope == "" {
		scope = config.DryRunScopeEnv
	}
	if scope != config.DryRunScopeEnv && scope != config.DryRunScopeSkip {
		return nil, fmt.Errorf("invalid dry-run scope: %s", scope)
	}
	status := cfg.Status
	if status == nil {
		status = nopStatus{}
	}
	return &Runner{
		exec:      cfg.Executor,
		installer: cfg.Installer,
		platform:  cfg.Platform,
		dryRun:    cfg.DryRun,
		scope:     scope,
		env:       cfg.Env,
		status:    status,
		logger:    cfg.Logger.With().Str("component", "runner").Logger(),
	}, nil
}

// Run implements engine.StepRunner.
func (r *Runner) Run(ctx context.Context, step engine.Step) *engine.StepResult {
	res := &engine.StepResult{Step: step, StartedAt: time.Now()}
	defer func() { res.Duration = time.Since(res.StartedAt) }()

	logger := r.logger.With().
		Str("stage", step.Stage).
		Str("step", step.Name).
		Str("kind", string(step.Kind)).
		Logger()

	if step.Kind == engine.StepKindScript {
		ok, err := r.exec.Exists(step.Path)
		if err != nil {
			logger.Debug().Err(err).Str("path", step.Path).Msg("Failed to check script")
		}
		if !ok {
			res.Outcome = engine.StepMissing
			res.ExitCode = -1
			res.Err = engine.NewWarning("step not found", err).
				WithCode(engine.ErrCodeStepMissing).WithStage(step.Stage).WithStep(step.Name)
			return res
		}
	}

	label := Label(step)
	r.status.StepStarted(label)

	if r.dryRun && r.scope == config.DryRunScopeSkip {
		logger.Info().Msg("Dry run, step skipped")
		res.Outcome = engine.StepSkipped
		r.status.StepSkipped(label)
		return res
	}

	code, err := r.execute(ctx, step)
	res.ExitCode = code
	if err == nil && code == 0 {
		res.Outcome = engine.StepSucceeded
		logger.Debug().Msg("Step succeeded")
		r.status.StepSucceeded(label)
		return res
	}

	res.Outcome = engine.StepFailed
	var ee *engine.EngineError
	if err != nil {
		res.Message = err.Error()
		ee = engine.NewRecoverableError("step could not run", err)
	} else {
		res.Message = fmt.Sprintf("exit status %d", code)
		ee = engine.NewRecoverableError(res.Message, nil)
	}
	res.Err = ee.WithCode(engine.ErrCodeStepFailed).WithStage(step.Stage).WithStep(step.Name)

	logger.Warn().Err(err).Int("exit_code", code).Msg("Step failed")
	r.status.StepFailed(label)
	return res
}

func (r *Runner) execute(ctx context.Context, step engine.Step) (int, error) {
	env := r.stepEnv()

	switch step.Kind {
	case engine.StepKindScript:
		return r.exec.RunScript(ctx, step.Path, env)

	case engine.StepKindPackage:
		if r.installer == nil || r.platform == nil {
			return -1, fmt.Errorf("package installation is not configured")
		}
		platform, err := r.platform.Platform(ctx)
		if err != nil {
			return -1, fmt.Errorf("failed to detect platform: %w", err)
		}
		argv, err := r.installer.Command(platform, step.Package)
		if err != nil {
			return -1, err
		}
		if r.dryRun {
			r.logger.Info().Strs("command", argv).Msg("Dry run, package not installed")
			return 0, nil
		}
		return r.exec.RunCommand(ctx, argv, env)

	default:
		return -1, fmt.Errorf("unknown step kind: %s", step.Kind)
	}
}

func (r *Runner) stepEnv() map[string]string {
	env := make(map[string]string, len(r.env)+1)
	for k, v := range r.env {
		env[k] = v
	}
	if r.dryRun {
		env[DryRunEnv] = "1"
	}
	return env
}

// Label returns the status-line text for a step: its description, the
// script file name, or the package name.
func Label(step engine.Step) string {
	switch {
	case step.Description != "":
		return step.Description
	case step.Kind == engine.StepKindScript && step.Path != "":
		return path.Base(step.Path)
	case step.Kind == engine.StepKindPackage && step.Package != "":
		return step.Package
	default:
		return step.Name
	}
}

type nopStatus struct{}

func (nopStatus) StepStarted(string)   {}
func (nopStatus) StepSucceeded(string) {}
func (nopStatus) StepFailed(string)    {}
func (nopStatus) StepSkipped(string)   {}
