package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Dry-run scopes.
const (
	DryRunScopeEnv  = "env"
	DryRunScopeSkip = "skip"
)

// Settings is forge's own configuration, assembled from forge.yaml, FORGE_*
// environment variables and command-line flags.
type Settings struct {
	// Root is the repository root holding profiles, traits and pillars.
	Root string `mapstructure:"root" validate:"required"`

	Layout Layout `mapstructure:"layout"`

	// Shell interprets step scripts.
	Shell string `mapstructure:"shell" validate:"required"`

	// Platform overrides platform detection (e.g. "arch").
	Platform string `mapstructure:"platform"`

	// PackageManagers maps a platform id to an install command template.
	// The template is split with shell quoting rules; "{{package}}" is
	// replaced by the package name, or the name is appended when absent.
	PackageManagers map[string]string `mapstructure:"package_managers" validate:"dive,required"`

	DryRun    DryRunSettings    `mapstructure:"dry_run"`
	Target    TargetSettings    `mapstructure:"target"`
	History   HistorySettings   `mapstructure:"history"`
	Policy    PolicySettings    `mapstructure:"policy"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
}

// Layout names the locations of documents and scripts under Root.
type Layout struct {
	Profiles  string `mapstructure:"profiles" validate:"required"`
	Traits    string `mapstructure:"traits" validate:"required"`
	Pillars   string `mapstructure:"pillars" validate:"required"`
	Bootstrap string `mapstructure:"bootstrap" validate:"required"`
	StepExt   string `mapstructure:"step_ext" validate:"required,startswith=."`
}

// DryRunSettings controls what --dry-run does.
type DryRunSettings struct {
	Enabled bool   `mapstructure:"enabled"`
	Scope   string `mapstructure:"scope" validate:"oneof=env skip"`
}

// TargetSettings selects a remote machine to provision over SSH. An empty
// Host means the local machine.
type TargetSettings struct {
	Host           string `mapstructure:"host" validate:"omitempty,hostname_rfc1123|ip"`
	User           string `mapstructure:"user"`
	Port           int    `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	Identity       string `mapstructure:"identity"`
	Password       string `mapstructure:"password"`
	KnownHosts     string `mapstructure:"known_hosts"`
	StrictHostKey  bool   `mapstructure:"strict_host_key"`
	ConnectTimeout int    `mapstructure:"connect_timeout" validate:"min=0"`
}

// Remote reports whether a remote target is configured.
func (t TargetSettings) Remote() bool {
	return t.Host != ""
}

// HistorySettings enables the run history database when Path is set.
type HistorySettings struct {
	Path string `mapstructure:"path"`
}

// PolicySettings points at extra rego policies. The built-in policies are
// always loaded.
type PolicySettings struct {
	Dir string `mapstructure:"dir"`
}

// TelemetrySettings configures logging, metrics and tracing.
type TelemetrySettings struct {
	LogLevel      string `mapstructure:"log_level" validate:"omitempty,oneof=trace debug info warn error fatal"`
	LogFormat     string `mapstructure:"log_format" validate:"omitempty,oneof=console json"`
	MetricsFile   string `mapstructure:"metrics_file"`
	TraceExporter string `mapstructure:"trace_exporter" validate:"omitempty,oneof=none stdout otlp"`
	TraceEndpoint string `mapstructure:"trace_endpoint"`
}

// DefaultSettings returns the settings used when nothing else is configured.
func DefaultSettings() Settings {
	return Settings{
		Root: ".",
		Layout: Layout{
			Profiles:  "profiles",
			Traits:    "traits",
			Pillars:   "pillars",
			Bootstrap: "bootstrap/arch.sh",
			StepExt:   ".sh",
		},
		Shell: "bash",
		PackageManagers: map[string]string{
			"arch":   "pacman -S --noconfirm --needed {{package}}",
			"debian": "apt-get install -y {{package}}",
			"ubuntu": "apt-get install -y {{package}}",
			"fedora": "dnf install -y {{package}}",
		},
		DryRun: DryRunSettings{Scope: DryRunScopeEnv},
		Target: TargetSettings{Port: 22, ConnectTimeout: 30},
		Telemetry: TelemetrySettings{
			LogLevel:      "warn",
			LogFormat:     "console",
			TraceExporter: "none",
		},
	}
}

// Validate checks the settings with struct tags.
func (s *Settings) Validate() error {
	v := validator.New()
	if err := v.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid settings: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}
