package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/forgearch/forge/pkg/config"
)

// settingsFile is the base name of the settings file looked up in the
// repository root and the working directory.
const settingsFile = "forge"

// flagKeys maps command-line flags to settings keys.
var flagKeys = map[string]string{
	"root":           "root",
	"dry-run":        "dry_run.enabled",
	"host":           "target.host",
	"user":           "target.user",
	"port":           "target.port",
	"identity":       "target.identity",
	"log-level":      "telemetry.log_level",
	"history":        "history.path",
	"metrics-file":   "telemetry.metrics_file",
	"trace-exporter": "telemetry.trace_exporter",
	"policy-dir":     "policy.dir",
}

// envAliases are accepted in addition to the FORGE_<SECTION>_<KEY> names.
var envAliases = map[string]string{
	"telemetry.log_level": "FORGE_LOG_LEVEL",
	"target.host":         "FORGE_HOST",
}

// newViper prepares a viper instance with forge's defaults, FORGE_*
// environment variables and the settings file.
func newViper(configPath, root string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("FORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v, config.DefaultSettings())
	for key, env := range envAliases {
		_ = v.BindEnv(key, "FORGE_"+strings.ToUpper(strings.NewReplacer(".", "_").Replace(key)), env)
	}

	if configPath == "" {
		configPath = os.Getenv("FORGE_CONFIG")
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
		return v
	}
	v.SetConfigName(settingsFile)
	v.SetConfigType("yaml")
	if root != "" {
		v.AddConfigPath(root)
	}
	v.AddConfigPath(".")
	return v
}

// setDefaults registers every settings key so that environment variables
// reach nested keys when unmarshalling.
func setDefaults(v *viper.Viper, d config.Settings) {
	v.SetDefault("root", d.Root)
	v.SetDefault("layout.profiles", d.Layout.Profiles)
	v.SetDefault("layout.traits", d.Layout.Traits)
	v.SetDefault("layout.pillars", d.Layout.Pillars)
	v.SetDefault("layout.bootstrap", d.Layout.Bootstrap)
	v.SetDefault("layout.step_ext", d.Layout.StepExt)
	v.SetDefault("shell", d.Shell)
	v.SetDefault("platform", d.Platform)
	v.SetDefault("package_managers", d.PackageManagers)
	v.SetDefault("dry_run.enabled", d.DryRun.Enabled)
	v.SetDefault("dry_run.scope", d.DryRun.Scope)
	v.SetDefault("target.host", d.Target.Host)
	v.SetDefault("target.user", d.Target.User)
	v.SetDefault("target.port", d.Target.Port)
	v.SetDefault("target.identity", d.Target.Identity)
	v.SetDefault("target.password", d.Target.Password)
	v.SetDefault("target.known_hosts", d.Target.KnownHosts)
	v.SetDefault("target.strict_host_key", d.Target.StrictHostKey)
	v.SetDefault("target.connect_timeout", d.Target.ConnectTimeout)
	v.SetDefault("history.path", d.History.Path)
	v.SetDefault("policy.dir", d.Policy.Dir)
	v.SetDefault("telemetry.log_level", d.Telemetry.LogLevel)
	v.SetDefault("telemetry.log_format", d.Telemetry.LogFormat)
	v.SetDefault("telemetry.metrics_file", d.Telemetry.MetricsFile)
	v.SetDefault("telemetry.trace_exporter", d.Telemetry.TraceExporter)
	v.SetDefault("telemetry.trace_endpoint", d.Telemetry.TraceEndpoint)
}

// bindFlags binds the flags of cmd that have a settings key. Only flags
// set on the command line override the file and the environment.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	var errs []error
	visit := func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			errs = append(errs, fmt.Errorf("bind flag %s: %w", f.Name, err))
		}
	}
	cmd.Flags().VisitAll(visit)
	cmd.InheritedFlags().VisitAll(visit)
	return errors.Join(errs...)
}

// readConfigFile reads the settings file. A missing file is only an error
// when it was named explicitly.
func readConfigFile(v *viper.Viper, strict bool) error {
	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if errors.As(err, &cfgErr) && !strict {
			return nil
		}
		return fmt.Errorf("failed to read settings: %w", err)
	}
	return nil
}

// loadSettings assembles the settings for cmd: defaults, then the settings
// file, then FORGE_* variables, then flags.
func loadSettings(cmd *cobra.Command, opts *globalOptions) (config.Settings, error) {
	root, _ := cmd.Flags().GetString("root")
	v := newViper(opts.configPath, root)
	if err := bindFlags(v, cmd); err != nil {
		return config.Settings{}, err
	}
	strict := opts.configPath != "" || os.Getenv("FORGE_CONFIG") != ""
	if err := readConfigFile(v, strict); err != nil {
		return config.Settings{}, err
	}

	settings := config.DefaultSettings()
	if err := v.Unmarshal(&settings); err != nil {
		return config.Settings{}, fmt.Errorf("failed to decode settings: %w", err)
	}
	settings.Policy.Dir = underRoot(settings.Root, settings.Policy.Dir)

	if err := settings.Validate(); err != nil {
		return config.Settings{}, err
	}
	return settings, nil
}

// underRoot resolves a relative path against the repository root.
func underRoot(root, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
