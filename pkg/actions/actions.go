// Package actions turns the raw set of actions requested on the command line
// into the canonical set the orchestrator runs.
package actions

import "strings"

// Canonical pillar names.
const (
	Gaming    = "gaming"
	Developer = "developer"
	Aesthetic = "aesthetic"
)

// CanonicalOrder is the fixed order in which directly requested pillars run.
var CanonicalOrder = []string{Gaming, Developer, Aesthetic}

// aliases maps every accepted spelling to its canonical pillar.
var aliases = map[string]string{
	Gaming:    Gaming,
	"lion":    Gaming,
	Developer: Developer,
	"dev":     Developer,
	"serpent": Developer,
	Aesthetic: Aesthetic,
	"goat":    Aesthetic,
}

// Mode is the kind of run a request asks for.
type Mode string

const (
	ModeHelp    Mode = "help"
	ModeProfile Mode = "profile"
	ModeDirect  Mode = "direct"
)

// Request is the set of actions asked for in one invocation.
type Request struct {
	Profile   string
	Bootstrap bool
	Pillars   []string
	DryRun    bool
}

// Empty reports whether nothing was requested.
func (r Request) Empty() bool {
	return r.Profile == "" && !r.Bootstrap && len(r.Pillars) == 0
}

// Mode returns how the request should be run. A profile takes precedence
// over any direct flags.
func (r Request) Mode() Mode {
	switch {
	case r.Profile != "":
		return ModeProfile
	case r.Empty():
		return ModeHelp
	default:
		return ModeDirect
	}
}

// Canonical returns the canonical pillar for name, matching case-insensitively.
func Canonical(name string) (string, bool) {
	c, ok := aliases[strings.ToLower(strings.TrimSpace(name))]
	return c, ok
}

// Normalize maps aliases onto canonical pillars, drops duplicates and orders
// the known pillars as CanonicalOrder. Names that are not aliases of a known
// pillar keep their relative order after the known ones.
func Normalize(raw Request) Request {
	out := raw
	out.Profile = strings.TrimSpace(raw.Profile)
	out.Pillars = nil

	requested := make(map[string]bool, len(raw.Pillars))
	var extra []string
	for _, name := range raw.Pillars {
		if c, ok := Canonical(name); ok {
			requested[c] = true
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" || requested[name] {
			continue
		}
		requested[name] = true
		extra = append(extra, name)
	}

	for _, c := range CanonicalOrder {
		if requested[c] {
			out.Pillars = append(out.Pillars, c)
		}
	}
	out.Pillars = append(out.Pillars, extra...)
	return out
}
