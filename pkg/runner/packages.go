package runner

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mattn/go-shellwords"
)

// PackagePlaceholder is replaced by the package name in install templates.
const PackagePlaceholder = "{{package}}"

// ErrNoPackageManager is returned when no install template is configured
// for a platform.
var ErrNoPackageManager = errors.New("no package manager configured")

// Installer turns install command templates into argv.
type Installer struct {
	templates map[string][]string
}

// NewInstaller parses the templates, keyed by platform id.
func NewInstaller(templates map[string]string) (*Installer, error) {
	in := &Installer{templates: make(map[string][]string, len(templates))}
	for platform, raw := range templates {
		args, err := parseCommand(raw)
		if err != nil {
			return nil, fmt.Errorf("package manager %s: %w", platform, err)
		}
		in.templates[strings.ToLower(platform)] = args
	}
	return in, nil
}

// Platforms returns the configured platform ids in sorted order.
func (in *Installer) Platforms() []string {
	out := make([]string, 0, len(in.templates))
	for p := range in.templates {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Command returns the argv installing pkg on platform. The package is
// appended when the template has no placeholder.
func (in *Installer) Command(platform, pkg string) ([]string, error) {
	tmpl, ok := in.templates[strings.ToLower(platform)]
	if !ok {
		return nil, fmt.Errorf("%w for platform %q", ErrNoPackageManager, platform)
	}

	argv := make([]string, 0, len(tmpl)+1)
	replaced := false
	for _, arg := range tmpl {
		if strings.Contains(arg, PackagePlaceholder) {
			arg = strings.ReplaceAll(arg, PackagePlaceholder, pkg)
			replaced = true
		}
		argv = append(argv, arg)
	}
	if !replaced {
		argv = append(argv, pkg)
	}
	return argv, nil
}

// parseCommand splits a command line with shell quoting rules.
func parseCommand(raw string) ([]string, error) {
	args, err := shellwords.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", raw, err)
	}
	if len(args) == 0 {
		return nil, errors.New("command must contain at least one argument")
	}
	return args, nil
}
