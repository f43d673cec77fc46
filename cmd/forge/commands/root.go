package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/forgearch/forge/pkg/actions"
	"github.com/forgearch/forge/pkg/engine"
	"github.com/forgearch/forge/pkg/telemetry"
	"github.com/forgearch/forge/pkg/ui"
)

// shutdownTimeout bounds flushing telemetry and closing connections.
const shutdownTimeout = 10 * time.Second

// globalOptions are the flags shared by every command.
type globalOptions struct {
	configPath string

	version   string
	commit    string
	buildDate string
}

// provisionOptions are the flags of the root command.
type provisionOptions struct {
	profile   string
	bootstrap bool
	gaming    bool
	dev       bool
	aesthetic bool
	lion      bool
	serpent   bool
	goat      bool
}

// request turns the flags into a normalized action request.
func (o *provisionOptions) request(dryRun bool) actions.Request {
	var pillars []string
	for name, set := range map[string]bool{
		"gaming":    o.gaming,
		"dev":       o.dev,
		"aesthetic": o.aesthetic,
		"lion":      o.lion,
		"serpent":   o.serpent,
		"goat":      o.goat,
	} {
		if set {
			pillars = append(pillars, name)
		}
	}
	return actions.Normalize(actions.Request{
		Profile:   o.profile,
		Bootstrap: o.bootstrap,
		Pillars:   pillars,
		DryRun:    dryRun,
	})
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	opts := &globalOptions{version: version, commit: commit, buildDate: buildDate}
	popts := &provisionOptions{}

	rootCmd := &cobra.Command{
		Use:   "forge",
		Short: "F.O.R.G.E. - Framework for Organized and Reproducible Git-tracked Environments",
		Long: `forge provisions a machine from a git-tracked repository of profiles,
traits and pillars.

A profile names the traits it inherits from and the pillars to install.
Each pillar is a directory of ordered step scripts. When a step or a stage
fails, forge asks whether to continue.`,
		Example: `  # Forge a complete profile (bootstrap, packages and all of its pillars)
  forge --profile chimera

  # Forge the gaming pillar only
  forge --gaming
  forge --lion

  # Forge the developer and aesthetic pillars on a remote machine
  forge --dev --aesthetic --host workstation.lan --user ada

  # Show what would be done
  forge --profile chimera --dry-run`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProvision(cmd, opts, popts)
		},
	}
	rootCmd.SetVersionTemplate("F.O.R.G.E. v{{.Version}}\n")

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "settings file (default: forge.yaml in the repository root)")
	pf.String("root", ".", "repository root holding profiles, traits and pillars")
	pf.String("log-level", "", "log level (trace, debug, info, warn, error)")
	pf.String("history", "", "run history database path (disabled when empty)")
	pf.String("metrics-file", "", "write Prometheus metrics to this textfile on exit")
	pf.String("trace-exporter", "", "trace exporter (none, stdout, otlp)")
	pf.String("policy-dir", "", "directory of additional rego policies")

	f := rootCmd.Flags()
	f.StringVarP(&popts.profile, "profile", "p", "", "load a profile (e.g. 'chimera')")
	f.BoolVarP(&popts.bootstrap, "bootstrap", "b", false, "run the base system bootstrap only")
	f.BoolVar(&popts.gaming, "gaming", false, "forge the gaming pillar (Lion)")
	f.BoolVar(&popts.dev, "dev", false, "forge the developer pillar (Serpent)")
	f.BoolVar(&popts.aesthetic, "aesthetic", false, "forge the aesthetic pillar (Goat)")
	f.BoolVar(&popts.lion, "lion", false, "alias for --gaming")
	f.BoolVar(&popts.serpent, "serpent", false, "alias for --dev")
	f.BoolVar(&popts.goat, "goat", false, "alias for --aesthetic")
	f.Bool("dry-run", false, "show what would be done without executing")
	f.String("host", "", "provision this host over SSH instead of the local machine")
	f.String("user", "", "SSH user (default: $USER)")
	f.Int("port", 22, "SSH port")
	f.String("identity", "", "SSH private key file")

	rootCmd.AddCommand(newValidateCommand(opts))
	rootCmd.AddCommand(newShowCommand(opts))
	rootCmd.AddCommand(newListCommand(opts))
	rootCmd.AddCommand(newHistoryCommand(opts))

	return rootCmd
}

// withApp builds the app for cmd, runs fn inside a command span and closes
// the app afterwards.
func withApp(cmd *cobra.Command, opts *globalOptions, name string, fn func(ctx context.Context, a *app) error) (err error) {
	a, err := newApp(cmd, opts)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), shutdownTimeout)
		defer cancel()
		if cerr := a.Close(ctx); cerr != nil {
			a.logger.Warn().Err(cerr).Msg("Shutdown incomplete")
		}
	}()

	ctx, span := a.tel.Tracer.StartCommandSpan(a.tel.WithContext(cmd.Context()), name)
	if a.settings.Target.Remote() {
		span.SetAttributes(telemetry.AttrHost.String(a.settings.Target.Host))
	}
	defer func() {
		if err != nil {
			telemetry.RecordError(span, err)
		} else {
			telemetry.RecordSuccess(span)
		}
		span.End()
	}()
	return fn(ctx, a)
}

func runProvision(cmd *cobra.Command, opts *globalOptions, popts *provisionOptions) error {
	// Help needs neither settings nor telemetry.
	if popts.request(false).Mode() == actions.ModeHelp {
		ui.NewPrinter(cmd.OutOrStdout()).Banner()
		return cmd.Help()
	}

	return withApp(cmd, opts, "provision", func(ctx context.Context, a *app) error {
		req := popts.request(a.settings.DryRun.Enabled)

		a.printer.Banner()
		if req.DryRun {
			a.printer.DryRunNotice()
		}

		var report *engine.RunReport
		switch req.Mode() {
		case actions.ModeProfile:
			o, err := a.orchestrator(ctx)
			if err != nil {
				return err
			}
			report, err = o.ProvisionFromProfile(ctx, req.Profile)
			if err != nil {
				return err
			}

		case actions.ModeDirect:
			o, err := a.orchestrator(ctx)
			if err != nil {
				return err
			}
			report = o.ProvisionDirect(ctx, engine.DirectRequest{
				Bootstrap: req.Bootstrap,
				Pillars:   req.Pillars,
			})
		}

		trace.SpanFromContext(ctx).SetAttributes(
			telemetry.AttrRunID.String(report.ID),
			telemetry.AttrRunMode.String(string(report.Mode)),
		)
		logReport(a.logger, report)
		if report.Status == engine.RunStatusCancelled {
			return fmt.Errorf("run %s interrupted: %w", report.ID, context.Canceled)
		}
		return nil
	})
}

// logReport logs the outcome of a run for the diagnostics stream.
func logReport(logger zerolog.Logger, report *engine.RunReport) {
	event := logger.Info()
	if len(report.Failed()) > 0 {
		event = logger.Warn()
	}
	event.
		Str("run_id", report.ID).
		Str("mode", string(report.Mode)).
		Str("status", string(report.Status)).
		Int("stages", len(report.Stages)).
		Int("failed", len(report.Failed())).
		Int("prompts", len(report.AllPrompts())).
		Dur("duration", report.FinishedAt.Sub(report.StartedAt)).
		Msg("Run finished")
}
