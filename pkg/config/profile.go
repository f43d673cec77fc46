package config

import (
	"fmt"
	"strings"
)

// Well-known profile keys.
const (
	KeyTraits    = "traits"
	KeyBootstrap = "bootstrap"
	KeyPillars   = "pillars"
	KeyPackages  = "packages"
)

// PillarMode says how a pillar entry in a profile selects its steps.
type PillarMode string

const (
	// PillarModeAll runs every step discovered in the pillar directory.
	PillarModeAll PillarMode = "all"

	// PillarModeExplicit runs the listed steps in list order.
	PillarModeExplicit PillarMode = "explicit"

	// PillarModeSkip is any other value; the pillar is not provisioned.
	PillarModeSkip PillarMode = "skip"
)

// PillarSelection is one entry of a profile's pillars mapping.
type PillarSelection struct {
	Name  string
	Mode  PillarMode
	Steps []string
}

// Profile is a named top-level configuration document. After resolution the
// same type carries the effective configuration.
type Profile struct {
	Name string
	Doc  *Document
}

// NewProfile wraps doc under name. A nil doc becomes an empty document.
func NewProfile(name string, doc *Document) *Profile {
	if doc == nil {
		doc = NewDocument()
	}
	return &Profile{Name: name, Doc: doc}
}

// Clone returns a deep copy of the profile.
func (p *Profile) Clone() *Profile {
	return &Profile{Name: p.Name, Doc: p.Doc.Clone()}
}

// Traits returns the trait names in declaration order. A single string is
// accepted as a one-element list; anything else yields no traits.
func (p *Profile) Traits() []string {
	v, ok := p.Doc.Get(KeyTraits)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case []any:
		names := make([]string, 0, len(t))
		for _, item := range t {
			if item == nil {
				continue
			}
			names = append(names, fmt.Sprint(item))
		}
		return names
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	default:
		return nil
	}
}

// Bootstrap reports whether the bootstrap stage is requested. It defaults to
// true and otherwise follows the truthiness of the declared value.
func (p *Profile) Bootstrap() bool {
	v, ok := p.Doc.Get(KeyBootstrap)
	if !ok {
		return true
	}
	return truthy(v)
}

// Pillars returns the pillar selections in declaration order.
//
// A list selects those steps; an empty list falls back to full discovery.
// "all" (case-insensitive) or true selects every step. Any other value is
// kept as PillarModeSkip so callers can report it.
func (p *Profile) Pillars() []PillarSelection {
	v, ok := p.Doc.Get(KeyPillars)
	if !ok {
		return nil
	}
	doc, ok := v.(*Document)
	if !ok {
		return nil
	}

	selections := make([]PillarSelection, 0, doc.Len())
	for _, name := range doc.Keys() {
		raw, _ := doc.Get(name)
		selections = append(selections, selectionFor(name, raw))
	}
	return selections
}

// Packages returns the package list for platform from the packages key.
func (p *Profile) Packages(platform string) []string {
	v, ok := p.Doc.Get(KeyPackages)
	if !ok {
		return nil
	}
	doc, ok := v.(*Document)
	if !ok {
		return nil
	}
	raw, ok := doc.Get(platform)
	if !ok {
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	pkgs := make([]string, 0, len(list))
	for _, item := range list {
		if s := strings.TrimSpace(fmt.Sprint(item)); item != nil && s != "" {
			pkgs = append(pkgs, s)
		}
	}
	return pkgs
}

func selectionFor(name string, raw any) PillarSelection {
	sel := PillarSelection{Name: name, Mode: PillarModeSkip}
	switch t := raw.(type) {
	case []any:
		if len(t) == 0 {
			sel.Mode = PillarModeAll
			return sel
		}
		sel.Mode = PillarModeExplicit
		sel.Steps = make([]string, 0, len(t))
		for _, item := range t {
			sel.Steps = append(sel.Steps, fmt.Sprint(item))
		}
	case bool:
		if t {
			sel.Mode = PillarModeAll
		}
	case string:
		if strings.EqualFold(t, "all") {
			sel.Mode = PillarModeAll
		}
	}
	return sel
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case int:
		return t != 0
	case int64:
		return t != 0
	case uint64:
		return t != 0
	case float64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case *Document:
		return t.Len() > 0
	default:
		return true
	}
}
