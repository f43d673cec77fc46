package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/forgearch/forge/pkg/engine"

// PillarExecutorConfig holds the collaborators of a PillarExecutor.
type PillarExecutorConfig struct {
	// FS is the repository tree; pillar directories are looked up in it.
	FS fs.FS

	// Dir is the pillars directory inside FS. Defaults to "pillars".
	Dir string

	// StepExt is the extension of step scripts. Defaults to ".sh".
	StepExt string

	Runner   StepRunner
	Decision ContinuationDecision
	Reporter Reporter
	Observer Observer
	Logger   zerolog.Logger
}

// PillarExecutor resolves pillars to steps and runs them in order, asking
// whether to continue after each failed step.
type PillarExecutor struct {
	fsys     fs.FS
	dir      string
	ext      string
	runner   StepRunner
	decision ContinuationDecision
	reporter Reporter
	observer Observer
	logger   zerolog.Logger
	tracer   trace.Tracer
}

// NewPillarExecutor creates a pillar executor.
func NewPillarExecutor(cfg PillarExecutorConfig) *PillarExecutor {
	pe := &PillarExecutor{
		fsys:     cfg.FS,
		dir:      cfg.Dir,
		ext:      cfg.StepExt,
		runner:   cfg.Runner,
		decision: cfg.Decision,
		reporter: cfg.Reporter,
		observer: cfg.Observer,
		logger:   cfg.Logger.With().Str("component", "pillar").Logger(),
		tracer:   otel.Tracer(tracerName),
	}
	if pe.dir == "" {
		pe.dir = "pillars"
	}
	if pe.ext == "" {
		pe.ext = ".sh"
	}
	if pe.decision == nil {
		pe.decision = refuse{}
	}
	if pe.reporter == nil {
		pe.reporter = nopReporter{}
	}
	if pe.observer == nil {
		pe.observer = nopObserver{}
	}
	return pe
}

// ResolvePillar returns the steps of a pillar.
//
// With a non-empty explicit list each name maps to a script in the pillar
// directory and the list order is kept; names without a script are still
// returned and are reported missing when run. Without one, every regular
// step file in the directory is returned in lexical order. A pillar whose
// directory does not exist returns ErrPillarMissing.
func (pe *PillarExecutor) ResolvePillar(name string, explicit []string) ([]Step, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, NewStageError(fmt.Sprintf("invalid pillar name %q", name), nil).
			WithCode(ErrCodePillarMissing).WithStage(name)
	}

	dir := path.Join(pe.dir, name)
	info, err := fs.Stat(pe.fsys, dir)
	if err != nil || !info.IsDir() {
		if err == nil {
			err = fmt.Errorf("%s is not a directory", dir)
		}
		return nil, NewStageError("pillar not found", err).
			WithCode(ErrCodePillarMissing).WithStage(name)
	}

	if len(explicit) > 0 {
		steps := make([]Step, 0, len(explicit))
		for _, stepName := range explicit {
			steps = append(steps, Step{
				Name:  stepName,
				Kind:  StepKindScript,
				Stage: name,
				Path:  path.Join(dir, stepName+pe.ext),
			})
		}
		return steps, nil
	}

	entries, err := fs.ReadDir(pe.fsys, dir)
	if err != nil {
		return nil, NewStageError("failed to read pillar", err).
			WithCode(ErrCodePillarMissing).WithStage(name)
	}

	var files []string
	for _, entry := range entries {
		fname := entry.Name()
		if strings.HasPrefix(fname, ".") || !strings.HasSuffix(fname, pe.ext) {
			continue
		}
		if !entry.Type().IsRegular() {
			continue
		}
		files = append(files, fname)
	}
	sort.Strings(files)

	steps := make([]Step, 0, len(files))
	for _, fname := range files {
		steps = append(steps, Step{
			Name:  fname,
			Kind:  StepKindScript,
			Stage: name,
			Path:  path.Join(dir, fname),
		})
	}
	return steps, nil
}

// Execute resolves and runs one pillar. An empty explicit list runs every
// step of the pillar.
func (pe *PillarExecutor) Execute(ctx context.Context, name string, explicit []string) *StageResult {
	pe.reporter.StageStarted(StageKindPillar, name)

	steps, err := pe.ResolvePillar(name, explicit)
	if err != nil {
		result := &StageResult{
			Kind:      StageKindPillar,
			Name:      name,
			Status:    StageFailed,
			Err:       err,
			StartedAt: time.Now(),
		}
		pe.logger.Error().Err(err).Str("pillar", name).Msg("Pillar not found")
		pe.observer.ObserveStage(StageKindPillar, StageFailed, 0)
		return result
	}

	return pe.run(ctx, StageKindPillar, name, steps)
}

// ExecuteSteps runs a synthetic stage made of the given steps with the same
// failure handling as a pillar.
func (pe *PillarExecutor) ExecuteSteps(ctx context.Context, kind StageKind, name string, steps []Step) *StageResult {
	pe.reporter.StageStarted(kind, name)
	return pe.run(ctx, kind, name, steps)
}

func (pe *PillarExecutor) run(ctx context.Context, kind StageKind, name string, steps []Step) *StageResult {
	ctx, span := pe.tracer.Start(ctx, "stage.execute", trace.WithAttributes(
		attribute.String("stage.kind", string(kind)),
		attribute.String("stage.name", name),
		attribute.Int("stage.steps", len(steps)),
	))
	defer span.End()

	result := &StageResult{
		Kind:      kind,
		Name:      name,
		Status:    StageSucceeded,
		StartedAt: time.Now(),
	}
	logger := pe.logger.With().Str("stage", name).Str("kind", string(kind)).Logger()
	logger.Info().Int("steps", len(steps)).Msg("Stage started")

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			result.Status = StageFailed
			result.Err = err
			logger.Warn().Err(err).Msg("Stage interrupted")
			break
		}

		res := pe.runStep(ctx, step)
		result.Steps = append(result.Steps, res)

		switch res.Outcome {
		case StepMissing:
			pe.reporter.StepMissing(step)
			logger.Warn().Str("step", step.Name).Str("path", step.Path).Msg("Step not found, skipping")
			continue
		case StepFailed:
			// handled below
		default:
			continue
		}

		result.Status = StageFailed
		if result.Err == nil {
			result.Err = NewRecoverableError("step failed", res.Err).
				WithCode(ErrCodeStepFailed).WithStage(name).WithStep(step.Name)
		}
		logger.Error().Err(res.Err).Str("step", step.Name).Int("exit_code", res.ExitCode).Msg("Step failed")
		if err := ctx.Err(); err != nil {
			logger.Warn().Err(err).Msg("Stage interrupted")
			break
		}

		reason := fmt.Sprintf("step %s failed", step.Label())
		cont := pe.decision.Ask(ctx, name, reason)
		result.Prompts = append(result.Prompts, PromptRecord{
			Stage:    name,
			Reason:   reason,
			Continue: cont,
			AskedAt:  time.Now(),
		})
		pe.observer.ObservePrompt(name, cont)
		if !cont {
			result.Status = StageAborted
			logger.Warn().Str("step", step.Name).Msg("Stage aborted by operator")
			break
		}
	}

	result.Duration = time.Since(result.StartedAt)
	pe.observer.ObserveStage(kind, result.Status, result.Duration)

	if result.Succeeded() {
		span.SetStatus(codes.Ok, "")
		logger.Info().Dur("duration", result.Duration).Msg("Stage succeeded")
	} else {
		if result.Err != nil {
			span.RecordError(result.Err)
		}
		span.SetStatus(codes.Error, string(result.Status))
		logger.Warn().Str("status", string(result.Status)).Dur("duration", result.Duration).Msg("Stage did not succeed")
	}
	return result
}

// runStep runs one step. Script steps whose file is absent are reported
// missing without invoking the runner.
func (pe *PillarExecutor) runStep(ctx context.Context, step Step) *StepResult {
	ctx, span := pe.tracer.Start(ctx, "step.run", trace.WithAttributes(
		attribute.String("step.name", step.Name),
		attribute.String("step.kind", string(step.Kind)),
	))
	defer span.End()

	var res *StepResult
	if step.Kind == StepKindScript && !pe.exists(step.Path) {
		res = &StepResult{
			Step:      step,
			Outcome:   StepMissing,
			ExitCode:  -1,
			StartedAt: time.Now(),
			Err: NewWarning("step not found", nil).
				WithCode(ErrCodeStepMissing).WithStage(step.Stage).WithStep(step.Name),
		}
	} else {
		res = pe.runner.Run(ctx, step)
		if res == nil {
			res = &StepResult{
				Step:      step,
				Outcome:   StepFailed,
				ExitCode:  -1,
				StartedAt: time.Now(),
				Err:       NewRecoverableError("runner returned no result", nil).WithCode(ErrCodeInternal),
			}
		}
	}

	span.SetAttributes(attribute.String("step.outcome", string(res.Outcome)))
	if res.Outcome.CountsAsFailure() {
		if res.Err != nil {
			span.RecordError(res.Err)
		}
		span.SetStatus(codes.Error, "step failed")
	}
	pe.observer.ObserveStep(step.Kind, res.Outcome, res.Duration)
	return res
}

func (pe *PillarExecutor) exists(p string) bool {
	info, err := fs.Stat(pe.fsys, p)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			pe.logger.Debug().Err(err).Str("path", p).Msg("Failed to stat step")
		}
		return false
	}
	return !info.IsDir()
}
