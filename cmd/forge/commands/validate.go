package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forgearch/forge/pkg/config"
	"github.com/forgearch/forge/pkg/policy"
	"github.com/forgearch/forge/pkg/telemetry"
)

// ErrValidationFailed is returned when at least one profile has errors.
var ErrValidationFailed = errors.New("validation failed")

func newValidateCommand(opts *globalOptions) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "validate [profile...]",
		Short: "Validate profiles, their traits and pillars",
		Long: `Validate profiles without running anything.

This command checks:
  - YAML syntax of profiles and traits
  - Profile and trait structure (CUE schemas)
  - Referenced traits, pillars and steps exist
  - Policy compliance of the effective configuration (OPA/rego)

Without arguments every profile is validated. Only findings with error
severity fail the command.`,
		Example: `  # Validate every profile
  forge validate

  # Validate specific profiles
  forge validate chimera lion

  # Re-validate whenever a profile, trait, pillar or policy changes
  forge validate --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, "validate", func(ctx context.Context, a *app) error {
				v, err := newProfileValidator(ctx, a)
				if err != nil {
					return err
				}

				err = v.run(ctx, args)
				if !watch || (err != nil && !errors.Is(err, ErrValidationFailed)) {
					return err
				}
				return v.watch(ctx, args)
			})
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-validate when files change")

	return cmd
}

// profileValidator runs the structural and policy checks of validate.
type profileValidator struct {
	app      *app
	checker  *config.Validator
	policies *policy.Engine
}

func newProfileValidator(ctx context.Context, a *app) (*profileValidator, error) {
	policies, err := a.policyEngine(ctx)
	if err != nil {
		return nil, err
	}
	if a.settings.Platform != "" {
		policies.SetPlatform(a.settings.Platform)
	}
	return &profileValidator{
		app:      a,
		checker:  config.NewValidator(a.fsys, a.settings.Layout, config.NewSchemaRegistry()),
		policies: policies,
	}, nil
}

// run validates names, or every profile when names is empty, and prints a
// summary per profile.
func (v *profileValidator) run(ctx context.Context, names []string) error {
	var reports []*config.ValidationReport
	if len(names) == 0 {
		all, err := v.checker.ValidateAll(ctx)
		if err != nil {
			return err
		}
		reports = all
	} else {
		for _, name := range names {
			report, err := v.checker.ValidateProfile(ctx, name)
			if err != nil {
				return err
			}
			reports = append(reports, report)
		}
	}

	p := v.app.printer
	failed := 0
	for _, report := range reports {
		if err := v.checkPolicies(ctx, report); err != nil {
			return err
		}

		switch {
		case report.HasErrors():
			failed++
			p.Error(report.Profile)
		case len(report.Findings) > 0:
			p.Warning(report.Profile)
		default:
			p.Success(report.Profile)
		}
		for _, f := range report.Findings {
			p.Line("   " + f.Error())
		}
	}

	if len(reports) == 0 {
		p.Warning("no profiles found in " + filepath.Join(v.app.settings.Root, v.app.settings.Layout.Profiles))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d profiles: %w", failed, len(reports), ErrValidationFailed)
	}
	return nil
}

// checkPolicies adds the policy violations of the effective configuration
// to report. Profiles that cannot be loaded are skipped; the load error is
// already a finding.
func (v *profileValidator) checkPolicies(ctx context.Context, report *config.ValidationReport) error {
	ic := telemetry.StartOperation(ctx, "profile.validate", telemetry.AttrProfile.String(report.Profile))
	var err error
	defer func() { ic.End(err) }()

	profile, lerr := v.app.profiles.Load(ic.Ctx, report.Profile)
	if lerr != nil {
		return ctx.Err()
	}
	effective, _, rerr := v.app.resolver.Resolve(ic.Ctx, profile)
	if rerr != nil {
		return ctx.Err()
	}

	result, err := v.policies.EvaluateProfile(ic.Ctx, effective, policy.OperationValidate)
	if err != nil {
		return err
	}
	file := v.app.profiles.Path(report.Profile)
	for _, vio := range result.Violations {
		severity := config.SeverityWarning
		if vio.Severity.Blocking() {
			severity = config.SeverityError
		}
		report.Findings = append(report.Findings, config.ValidationError{
			File:     file,
			Path:     vio.Key,
			Message:  fmt.Sprintf("policy %s: %s", vio.Policy, vio.Message),
			Severity: severity,
		})
	}
	for _, w := range result.Warnings {
		report.Findings = append(report.Findings, config.ValidationError{
			File:     file,
			Message:  w,
			Severity: config.SeverityWarning,
		})
	}
	return nil
}

// watch re-runs validation whenever a watched file changes until ctx is
// cancelled. Changed policy files are reloaded first.
func (v *profileValidator) watch(ctx context.Context, names []string) error {
	s := v.app.settings
	paths := []string{
		filepath.Join(s.Root, s.Layout.Profiles),
		filepath.Join(s.Root, s.Layout.Traits),
		filepath.Join(s.Root, s.Layout.Pillars),
	}
	if s.Policy.Dir != "" {
		paths = append(paths, s.Policy.Dir)
	}

	match := func(name string) bool {
		ext := strings.ToLower(filepath.Ext(name))
		return ext == ".yaml" || ext == ".yml" || ext == s.Layout.StepExt || policy.IsPolicyFile(name)
	}

	changes := make(chan []string, 1)
	onChange := func(changed []string) {
		select {
		case changes <- changed:
		default:
			// A run is already queued.
		}
	}
	if err := policy.WatchPaths(ctx, paths, match, onChange, v.app.logger); err != nil {
		return err
	}
	v.app.printer.Line("")
	v.app.printer.Line("👀 Watching for changes (Ctrl+C to stop)")

	for {
		select {
		case <-ctx.Done():
			return nil
		case changed := <-changes:
			v.app.logger.Debug().Strs("files", changed).Msg("Files changed")
			if s.Policy.Dir != "" && anyPolicyFile(changed) {
				if err := v.policies.LoadPolicies(ctx, []string{s.Policy.Dir}); err != nil {
					v.app.printer.Error(fmt.Sprintf("policies not reloaded: %v", err))
				}
			}
			v.app.printer.Heading("🔁 Re-validating")
			if err := v.run(ctx, names); err != nil && !errors.Is(err, ErrValidationFailed) {
				return err
			}
		}
	}
}

func anyPolicyFile(names []string) bool {
	for _, name := range names {
		if policy.IsPolicyFile(name) {
			return true
		}
	}
	return false
}
