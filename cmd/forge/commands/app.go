package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"time"

	"github.com/mattn/go-shellwords"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/forgearch/forge/pkg/config"
	"github.com/forgearch/forge/pkg/engine"
	"github.com/forgearch/forge/pkg/facts"
	"github.com/forgearch/forge/pkg/policy"
	"github.com/forgearch/forge/pkg/prompt"
	"github.com/forgearch/forge/pkg/runner"
	"github.com/forgearch/forge/pkg/stores"
	"github.com/forgearch/forge/pkg/telemetry"
	"github.com/forgearch/forge/pkg/transports/ssh"
	"github.com/forgearch/forge/pkg/ui"
)

// app holds what every command shares: settings, telemetry and the
// repository documents. Heavier collaborators are built on demand.
type app struct {
	settings config.Settings
	tel      *telemetry.Telemetry
	logger   zerolog.Logger
	printer  *ui.Printer
	stdin    io.Reader
	stdout   io.Writer
	stderr   io.Writer

	fsys     fs.FS
	profiles *config.ProfileStore
	traits   *config.TraitStore
	resolver *config.Resolver

	store     *stores.SQLiteStore
	transport *ssh.SSHClient
	closers   []func(context.Context) error
}

// newApp loads settings and telemetry for cmd.
func newApp(cmd *cobra.Command, opts *globalOptions) (*app, error) {
	settings, err := loadSettings(cmd, opts)
	if err != nil {
		return nil, err
	}

	zerolog.SetGlobalLevel(telemetry.ParseLevel(settings.Telemetry.LogLevel))
	telCfg := telemetry.FromSettings(settings.Telemetry, opts.version)
	telCfg.Logging.Writer = cmd.ErrOrStderr()
	tel, err := telemetry.NewTelemetry(cmd.Context(), telCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	logger := tel.Logger.Zerolog()
	logger.Debug().
		Str("version", opts.version).
		Str("commit", opts.commit).
		Str("built", opts.buildDate).
		Str("root", settings.Root).
		Msg("Settings loaded")

	fsys := os.DirFS(settings.Root)
	traits := config.NewTraitStore(fsys, settings.Layout.Traits)
	a := &app{
		settings: settings,
		tel:      tel,
		logger:   logger,
		printer:  ui.NewPrinter(cmd.OutOrStdout()),
		stdin:    cmd.InOrStdin(),
		stdout:   cmd.OutOrStdout(),
		stderr:   cmd.ErrOrStderr(),
		fsys:     fsys,
		profiles: config.NewProfileStore(fsys, settings.Layout.Profiles),
		traits:   traits,
		resolver: config.NewResolver(traits, logger),
	}
	a.closers = append(a.closers, tel.Shutdown)
	return a, nil
}

// Close releases everything the app opened, newest first.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// openHistory opens the run history when a path is configured. It returns
// nil without error otherwise.
func (a *app) openHistory(ctx context.Context) (*stores.SQLiteStore, error) {
	if a.store != nil || a.settings.History.Path == "" {
		return a.store, nil
	}
	store, err := stores.Open(ctx, a.settings.History.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, func(context.Context) error { return store.Close() })
	return store, nil
}

// policyEngine builds the policy engine with the built-in policies and the
// configured policy directory.
func (a *app) policyEngine(ctx context.Context) (*policy.Engine, error) {
	eng, err := policy.NewEngine(a.logger)
	if err != nil {
		return nil, err
	}
	if a.settings.Policy.Dir != "" {
		if err := eng.LoadPolicies(ctx, []string{a.settings.Policy.Dir}); err != nil {
			return nil, err
		}
	}
	return eng, nil
}

// connect opens the SSH connection to the configured target.
func (a *app) connect(ctx context.Context) (*ssh.SSHClient, error) {
	if a.transport != nil {
		return a.transport, nil
	}
	t := a.settings.Target
	user := t.User
	if user == "" {
		user = os.Getenv("USER")
	}

	cfg := ssh.DefaultConfig(t.Host, user)
	if t.Port != 0 {
		cfg.Port = t.Port
	}
	cfg.PrivateKeyPath = t.Identity
	cfg.Password = t.Password
	if t.KnownHosts != "" {
		cfg.KnownHostsPath = t.KnownHosts
	}
	cfg.StrictHostKeyChecking = t.StrictHostKey
	if t.ConnectTimeout > 0 {
		cfg.ConnectionTimeout = time.Duration(t.ConnectTimeout) * time.Second
	}
	cfg.InferAuthMethod()

	client, err := ssh.NewSSHClient(cfg)
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Address(), err)
	}
	a.logger.Info().Str("host", cfg.Address()).Str("auth", string(cfg.AuthMethod)).Msg("Connected to target")

	a.transport = client
	a.closers = append(a.closers, func(context.Context) error { return client.Disconnect() })
	return client, nil
}

// detector returns the platform detector for the target.
func (a *app) detector(ctx context.Context) (*facts.Detector, error) {
	known := make([]string, 0, len(a.settings.PackageManagers))
	for id := range a.settings.PackageManagers {
		known = append(known, id)
	}

	var source facts.Source = facts.LocalSource{}
	if a.settings.Target.Remote() && a.settings.Platform == "" {
		client, err := a.connect(ctx)
		if err != nil {
			return nil, err
		}
		source = facts.RemoteSource{Remote: client}
	}
	return facts.NewDetector(source, a.settings.Platform, known, a.logger), nil
}

// executor returns the local or remote step executor. Step output goes
// straight to the command's output.
func (a *app) executor(ctx context.Context) (runner.Executor, error) {
	shell, err := shellwords.Parse(a.settings.Shell)
	if err != nil {
		return nil, fmt.Errorf("invalid shell %q: %w", a.settings.Shell, err)
	}
	if len(shell) == 0 {
		return nil, fmt.Errorf("shell is empty")
	}

	if !a.settings.Target.Remote() {
		return &runner.LocalExecutor{
			Root:   a.settings.Root,
			Shell:  shell,
			Stdout: a.stdout,
			Stderr: a.stderr,
		}, nil
	}

	client, err := a.connect(ctx)
	if err != nil {
		return nil, err
	}
	return &runner.RemoteExecutor{
		FS:        a.fsys,
		Transport: client,
		Shell:     shell,
		Stdout:    a.stdout,
		Stderr:    a.stderr,
		Logger:    a.logger,
	}, nil
}

// orchestrator wires the full provisioning pipeline.
func (a *app) orchestrator(ctx context.Context) (*engine.Orchestrator, error) {
	detector, err := a.detector(ctx)
	if err != nil {
		return nil, err
	}
	exec, err := a.executor(ctx)
	if err != nil {
		return nil, err
	}
	installer, err := runner.NewInstaller(a.settings.PackageManagers)
	if err != nil {
		return nil, err
	}

	stepRunner, err := runner.New(runner.Config{
		Executor:    exec,
		Installer:   installer,
		Platform:    detector,
		DryRun:      a.settings.DryRun.Enabled,
		DryRunScope: a.settings.DryRun.Scope,
		Status:      a.printer,
		Logger:      a.logger,
	})
	if err != nil {
		return nil, err
	}

	decision := prompt.NewTerminal(prompt.Config{
		In:     a.stdin,
		Out:    a.printer.Writer(),
		Logger: a.logger,
	})

	pillars := engine.NewPillarExecutor(engine.PillarExecutorConfig{
		FS:       a.fsys,
		Dir:      a.settings.Layout.Pillars,
		StepExt:  a.settings.Layout.StepExt,
		Runner:   stepRunner,
		Decision: decision,
		Reporter: a.printer,
		Observer: a.tel.Metrics,
		Logger:   a.logger,
	})

	policies, err := a.policyEngine(ctx)
	if err != nil {
		return nil, err
	}
	if platform, err := detector.Platform(ctx); err == nil {
		policies.SetPlatform(platform)
		trace.SpanFromContext(ctx).SetAttributes(telemetry.AttrPlatform.String(platform))
	}

	cfg := engine.OrchestratorConfig{
		Profiles:        a.profiles,
		Resolver:        a.resolver,
		Pillars:         pillars,
		Decision:        decision,
		Reporter:        a.printer,
		Policy:          policies,
		Platform:        detector,
		Observer:        a.tel.Metrics,
		BootstrapScript: path.Clean(a.settings.Layout.Bootstrap),
		DryRun:          a.settings.DryRun.Enabled,
		Logger:          a.logger,
	}
	store, err := a.openHistory(ctx)
	if err != nil {
		return nil, err
	}
	if store != nil {
		cfg.Recorder = store
	}
	return engine.NewOrchestrator(cfg), nil
}
