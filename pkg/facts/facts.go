// Package facts detects the platform id of the target machine from its
// os-release file.
package facts

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// ErrUnknownPlatform is returned when os-release carries no usable ID.
var ErrUnknownPlatform = errors.New("unknown platform")

// OSFacts holds the os-release fields forge uses.
type OSFacts struct {
	ID         string   `json:"id"`
	IDLike     []string `json:"id_like,omitempty"`
	Name       string   `json:"name,omitempty"`
	VersionID  string   `json:"version_id,omitempty"`
	PrettyName string   `json:"pretty_name,omitempty"`
}

// Candidates returns ID followed by ID_LIKE, the platform ids this system
// answers to, most specific first.
func (f *OSFacts) Candidates() []string {
	out := make([]string, 0, 1+len(f.IDLike))
	if f.ID != "" {
		out = append(out, f.ID)
	}
	return append(out, f.IDLike...)
}

// Source returns the contents of an os-release file.
type Source interface {
	OSRelease(ctx context.Context) (string, error)
}

// LocalSource reads os-release from the local filesystem.
type LocalSource struct {
	// Paths are tried in order. Defaults to /etc/os-release then
	// /usr/lib/os-release.
	Paths []string
}

// OSRelease implements Source.
func (s LocalSource) OSRelease(ctx context.Context) (string, error) {
	paths := s.Paths
	if len(paths) == 0 {
		paths = []string{"/etc/os-release", "/usr/lib/os-release"}
	}

	var lastErr error
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		data, err := os.ReadFile(p)
		if err == nil {
			return string(data), nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("failed to read os-release: %w", lastErr)
}

// Commander runs a command on a remote host. The SSH transport implements
// it.
type Commander interface {
	ExecuteCommand(ctx context.Context, cmd string) (stdout string, stderr string, err error)
}

// RemoteSource reads os-release over a remote connection.
type RemoteSource struct {
	Remote Commander
}

// OSRelease implements Source.
func (s RemoteSource) OSRelease(ctx context.Context) (string, error) {
	stdout, _, err := s.Remote.ExecuteCommand(ctx, "cat /etc/os-release 2>/dev/null || cat /usr/lib/os-release")
	if err != nil {
		return "", fmt.Errorf("failed to read remote os-release: %w", err)
	}
	return stdout, nil
}

// ParseOSRelease parses os-release content. Unknown keys are ignored.
func ParseOSRelease(r io.Reader) (*OSFacts, error) {
	facts := &OSFacts{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = unquote(value)

		switch key {
		case "ID":
			facts.ID = strings.ToLower(value)
		case "ID_LIKE":
			for _, like := range strings.Fields(value) {
				facts.IDLike = append(facts.IDLike, strings.ToLower(like))
			}
		case "NAME":
			facts.Name = value
		case "VERSION_ID":
			facts.VersionID = value
		case "PRETTY_NAME":
			facts.PrettyName = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse os-release: %w", err)
	}
	return facts, nil
}

func unquote(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 2 && (v[0] == '"' && v[len(v)-1] == '"' || v[0] == '\'' && v[len(v)-1] == '\'') {
		if v[0] == '"' {
			if s, err := strconv.Unquote(v); err == nil {
				return s
			}
		}
		return v[1 : len(v)-1]
	}
	return v
}

// Detector resolves the platform id used to select trait packages. It
// implements engine.PlatformDetector.
type Detector struct {
	source   Source
	override string
	known    map[string]bool
	logger   zerolog.Logger

	once  sync.Once
	facts *OSFacts
	err   error
}

// NewDetector creates a Detector. A non-empty override is returned as is
// without reading os-release. When known is not empty the first candidate
// id found in it is preferred, so a derivative such as manjaro resolves to
// arch when only arch is configured.
func NewDetector(source Source, override string, known []string, logger zerolog.Logger) *Detector {
	d := &Detector{
		source:   source,
		override: strings.ToLower(strings.TrimSpace(override)),
		known:    make(map[string]bool, len(known)),
		logger:   logger.With().Str("component", "facts").Logger(),
	}
	for _, k := range known {
		d.known[strings.ToLower(k)] = true
	}
	return d
}

// Facts returns the parsed os-release of the target, read once.
func (d *Detector) Facts(ctx context.Context) (*OSFacts, error) {
	d.once.Do(func() {
		content, err := d.source.OSRelease(ctx)
		if err != nil {
			d.err = err
			return
		}
		d.facts, d.err = ParseOSRelease(strings.NewReader(content))
	})
	return d.facts, d.err
}

// Platform returns the platform id of the target.
func (d *Detector) Platform(ctx context.Context) (string, error) {
	if d.override != "" {
		return d.override, nil
	}

	facts, err := d.Facts(ctx)
	if err != nil {
		return "", err
	}

	candidates := facts.Candidates()
	if len(candidates) == 0 {
		return "", ErrUnknownPlatform
	}
	for _, c := range candidates {
		if d.known[c] {
			if c != facts.ID {
				d.logger.Debug().Str("id", facts.ID).Str("platform", c).Msg("Using parent platform")
			}
			return c, nil
		}
	}
	return candidates[0], nil
}
