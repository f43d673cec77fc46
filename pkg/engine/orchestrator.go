package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/forgearch/forge/pkg/config"
)

// DefaultBootstrapScript is the bootstrap script relative to the repository
// root.
const DefaultBootstrapScript = "bootstrap/arch.sh"

// OrchestratorConfig holds the collaborators of an Orchestrator. Profiles,
// Resolver and Pillars are required; everything else is optional.
type OrchestratorConfig struct {
	Profiles ProfileLoader
	Resolver ConfigResolver
	Pillars  *PillarExecutor
	Decision ContinuationDecision
	Reporter Reporter

	Policy   PolicyChecker
	Platform PlatformDetector
	Recorder RunRecorder
	Observer Observer

	// BootstrapScript overrides DefaultBootstrapScript.
	BootstrapScript string

	// DryRun is recorded on every report; the runner acts on it.
	DryRun bool

	Logger zerolog.Logger
}

// Orchestrator drives whole runs: bootstrap, trait packages and pillars.
type Orchestrator struct {
	profiles  ProfileLoader
	resolver  ConfigResolver
	pillars   *PillarExecutor
	decision  ContinuationDecision
	reporter  Reporter
	policy    PolicyChecker
	platform  PlatformDetector
	recorder  RunRecorder
	observer  Observer
	bootstrap string
	dryRun    bool
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	o := &Orchestrator{
		profiles:  cfg.Profiles,
		resolver:  cfg.Resolver,
		pillars:   cfg.Pillars,
		decision:  cfg.Decision,
		reporter:  cfg.Reporter,
		policy:    cfg.Policy,
		platform:  cfg.Platform,
		recorder:  cfg.Recorder,
		observer:  cfg.Observer,
		bootstrap: cfg.BootstrapScript,
		dryRun:    cfg.DryRun,
		logger:    cfg.Logger.With().Str("component", "orchestrator").Logger(),
		tracer:    otel.Tracer(tracerName),
	}
	if o.bootstrap == "" {
		o.bootstrap = DefaultBootstrapScript
	}
	if o.decision == nil {
		o.decision = refuse{}
	}
	if o.reporter == nil {
		o.reporter = nopReporter{}
	}
	if o.observer == nil {
		o.observer = nopObserver{}
	}
	return o
}

// Bootstrap runs the bootstrap script as its own stage. Unlike pillar steps,
// a missing bootstrap script fails the stage.
func (o *Orchestrator) Bootstrap(ctx context.Context) *StageResult {
	o.reporter.StageStarted(StageKindBootstrap, string(StageKindBootstrap))

	result := &StageResult{
		Kind:      StageKindBootstrap,
		Name:      string(StageKindBootstrap),
		Status:    StageSucceeded,
		StartedAt: time.Now(),
	}

	step := Step{
		Name:        "arch.sh",
		Kind:        StepKindScript,
		Stage:       result.Name,
		Path:        o.bootstrap,
		Description: "Base system setup",
	}
	res := o.pillars.runStep(ctx, step)
	result.Steps = append(result.Steps, res)

	switch res.Outcome {
	case StepSucceeded, StepSkipped:
	case StepMissing:
		result.Status = StageFailed
		result.Err = NewStageError("bootstrap script not found", nil).
			WithCode(ErrCodeStepMissing).WithStage(result.Name).WithStep(o.bootstrap)
	default:
		result.Status = StageFailed
		result.Err = NewRecoverableError("bootstrap failed", res.Err).
			WithCode(ErrCodeStepFailed).WithStage(result.Name).WithStep(step.Name)
	}

	result.Duration = time.Since(result.StartedAt)
	o.observer.ObserveStage(StageKindBootstrap, result.Status, result.Duration)
	if !result.Succeeded() {
		o.logger.Error().Err(result.Err).Msg("Bootstrap failed")
	}
	return result
}

// ProvisionFromProfile runs the stages of a profile as one pipeline. After
// any failed stage the operator is asked whether to go on; a refusal ends the
// run without the completion message.
//
// Only a missing or unparseable profile is returned as an error, wrapping
// ErrConfigNotFound or ErrConfigInvalid; nothing is run in that case.
func (o *Orchestrator) ProvisionFromProfile(ctx context.Context, name string) (*RunReport, error) {
	report := o.newReport(RunModeProfile)
	report.Profile = name

	ctx, span := o.tracer.Start(ctx, "run.profile", trace.WithAttributes(
		attribute.String("run.id", report.ID),
		attribute.String("profile", name),
	))
	defer span.End()

	logger := o.logger.With().Str("run_id", report.ID).Str("profile", name).Logger()
	o.reporter.ProfileLoading(name)

	profile, err := o.profiles.Load(ctx, name)
	if err != nil {
		ferr := classifyProfileError(name, err)
		logger.Error().Err(err).Msg("Failed to load profile")
		span.RecordError(ferr)
		span.SetStatus(codes.Error, "profile load failed")
		return nil, ferr
	}

	effective, resolution, err := o.resolver.Resolve(ctx, profile)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to resolve profile")
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolution failed")
		return nil, NewFatalError("failed to resolve profile", err).
			WithCode(ErrCodeConfigInvalid).WithStage(name)
	}
	report.Resolution = resolution
	for _, missing := range resolution.Missing {
		o.reporter.Warning(fmt.Sprintf("Trait not found: %s", missing))
	}
	for _, invalid := range resolution.Invalid {
		o.reporter.Warning(fmt.Sprintf("Trait skipped: %s (%v)", invalid.Name, invalid.Err))
	}

	o.advise(ctx, effective, report)

	aborted := o.runProfileStages(ctx, effective, report, logger)

	if ctx.Err() != nil {
		report.Status = RunStatusCancelled
	} else if aborted {
		report.Status = RunStatusAborted
	} else {
		report.Status = statusFromStages(report.Stages)
		report.Completed = true
		o.reporter.Completion()
	}

	o.finish(ctx, report, span, logger)
	return report, nil
}

// runProfileStages runs bootstrap, packages and pillars and reports whether
// the operator aborted the run.
func (o *Orchestrator) runProfileStages(ctx context.Context, effective *config.Profile, report *RunReport, logger zerolog.Logger) bool {
	if effective.Bootstrap() {
		if o.guard(ctx, report, o.Bootstrap(ctx)) {
			return true
		}
	} else {
		logger.Info().Msg("Bootstrap disabled by profile")
	}

	if ctx.Err() != nil {
		return false
	}
	if steps := o.packageSteps(ctx, effective, report); len(steps) > 0 {
		result := o.pillars.ExecuteSteps(ctx, StageKindPackages, string(StageKindPackages), steps)
		if o.guard(ctx, report, result) {
			return true
		}
	}

	for _, sel := range effective.Pillars() {
		if ctx.Err() != nil {
			return false
		}
		var explicit []string
		switch sel.Mode {
		case config.PillarModeExplicit:
			explicit = sel.Steps
		case config.PillarModeAll:
		default:
			logger.Debug().Str("pillar", sel.Name).Msg("Pillar value selects nothing, skipping")
			continue
		}
		if o.guard(ctx, report, o.pillars.Execute(ctx, sel.Name, explicit)) {
			return true
		}
	}
	return false
}

// guard records a stage and, when it failed, asks whether to continue. It
// returns true when the run must stop.
func (o *Orchestrator) guard(ctx context.Context, report *RunReport, result *StageResult) bool {
	report.Stages = append(report.Stages, result)
	if result.Succeeded() {
		return false
	}

	o.reporter.StageFailed(result)
	if ctx.Err() != nil {
		return false
	}

	reason := fmt.Sprintf("%s %s failed", result.Kind, result.Name)
	cont := o.decision.Ask(ctx, result.Name, reason)
	report.Prompts = append(report.Prompts, PromptRecord{
		Stage:    result.Name,
		Reason:   reason,
		Continue: cont,
		AskedAt:  time.Now(),
	})
	o.observer.ObservePrompt(result.Name, cont)
	if !cont {
		o.logger.Warn().Str("run_id", report.ID).Str("stage", result.Name).Msg("Run aborted by operator")
	}
	return !cont
}

// packageSteps builds the package stage for the target platform from the
// effective configuration. Platform detection problems skip the stage.
func (o *Orchestrator) packageSteps(ctx context.Context, effective *config.Profile, report *RunReport) []Step {
	if !effective.Doc.Has(config.KeyPackages) {
		return nil
	}
	if o.platform == nil {
		o.logger.Debug().Msg("No platform detector, skipping packages")
		return nil
	}

	platform, err := o.platform.Platform(ctx)
	if err != nil {
		o.logger.Warn().Err(err).Msg("Failed to detect platform, skipping packages")
		o.reporter.Warning(fmt.Sprintf("Could not detect platform, skipping packages: %v", err))
		return nil
	}
	report.Platform = platform

	pkgs := effective.Packages(platform)
	steps := make([]Step, 0, len(pkgs))
	for _, pkg := range pkgs {
		steps = append(steps, Step{
			Name:    pkg,
			Kind:    StepKindPackage,
			Stage:   string(StageKindPackages),
			Package: pkg,
		})
	}
	return steps
}

// ProvisionDirect runs the requested stages in order: bootstrap, then each
// pillar with full discovery. Failed stages are announced but never stop
// later stages, and no question is asked between stages. Questions about
// failed steps inside a pillar still apply.
func (o *Orchestrator) ProvisionDirect(ctx context.Context, req DirectRequest) *RunReport {
	report := o.newReport(RunModeDirect)

	ctx, span := o.tracer.Start(ctx, "run.direct", trace.WithAttributes(
		attribute.String("run.id", report.ID),
		attribute.Bool("bootstrap", req.Bootstrap),
		attribute.StringSlice("pillars", req.Pillars),
	))
	defer span.End()

	logger := o.logger.With().Str("run_id", report.ID).Logger()

	record := func(result *StageResult) {
		report.Stages = append(report.Stages, result)
		if !result.Succeeded() {
			o.reporter.StageFailed(result)
		}
	}

	if req.Bootstrap && ctx.Err() == nil {
		record(o.Bootstrap(ctx))
	}
	for _, pillar := range req.Pillars {
		if ctx.Err() != nil {
			break
		}
		record(o.pillars.Execute(ctx, pillar, nil))
	}

	switch {
	case ctx.Err() != nil:
		report.Status = RunStatusCancelled
	default:
		report.Status = statusFromStages(report.Stages)
		if len(report.Stages) > 0 {
			report.Completed = true
			o.reporter.Completion()
		}
	}

	o.finish(ctx, report, span, logger)
	return report
}

func (o *Orchestrator) newReport(mode RunMode) *RunReport {
	return &RunReport{
		ID:        uuid.New().String(),
		Mode:      mode,
		DryRun:    o.dryRun,
		Status:    RunStatusRunning,
		StartedAt: time.Now(),
	}
}

func (o *Orchestrator) advise(ctx context.Context, effective *config.Profile, report *RunReport) {
	if o.policy == nil {
		return
	}
	violations, err := o.policy.Advise(ctx, effective)
	if err != nil {
		o.logger.Warn().Err(err).Msg("Policy evaluation failed")
		return
	}
	report.PolicyWarnings = violations
	for _, v := range violations {
		o.reporter.Warning(fmt.Sprintf("Policy: %s", v))
	}
}

func (o *Orchestrator) finish(ctx context.Context, report *RunReport, span trace.Span, logger zerolog.Logger) {
	report.FinishedAt = time.Now()
	duration := report.FinishedAt.Sub(report.StartedAt)
	o.observer.ObserveRun(report.Mode, report.Status, duration)

	span.SetAttributes(attribute.String("run.status", string(report.Status)))
	if report.Status == RunStatusSucceeded {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, string(report.Status))
	}

	if o.recorder != nil {
		// The run is over even when it was interrupted; record it anyway.
		if err := o.recorder.RecordRun(context.WithoutCancel(ctx), report); err != nil {
			logger.Warn().Err(err).Msg("Failed to record run history")
		}
	}

	logger.Info().
		Str("status", string(report.Status)).
		Int("stages", len(report.Stages)).
		Int("failed", len(report.Failed())).
		Dur("duration", duration).
		Msg("Run finished")
}

func statusFromStages(stages []*StageResult) RunStatus {
	for _, s := range stages {
		if !s.Succeeded() {
			return RunStatusPartial
		}
	}
	return RunStatusSucceeded
}

func classifyProfileError(name string, err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("load profile %s: %w", name, err)
	case errors.Is(err, config.ErrConfigNotFound):
		return NewFatalError(fmt.Sprintf("profile not found: %s", name), err).
			WithCode(ErrCodeConfigNotFound)
	case errors.Is(err, config.ErrConfigInvalid):
		return NewFatalError(fmt.Sprintf("profile invalid: %s", name), err).
			WithCode(ErrCodeConfigInvalid)
	default:
		return NewFatalError(fmt.Sprintf("failed to load profile: %s", name), err).
			WithCode(ErrCodeConfigNotFound)
	}
}
