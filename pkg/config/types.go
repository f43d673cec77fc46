package config

import (
	"fmt"
)

// Severities of a ValidationError.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// ValidationError is one finding of a profile check.
type ValidationError struct {
	// File is the document the finding refers to.
	File string `json:"file,omitempty"`

	// Path is the key path inside the document (e.g. "pillars.gaming").
	Path string `json:"path,omitempty"`

	// Message describes the problem.
	Message string `json:"message"`

	// Severity is error or warning.
	Severity string `json:"severity" validate:"required,oneof=error warning"`
}

func (e ValidationError) Error() string {
	loc := e.File
	if e.Path != "" {
		if loc != "" {
			loc += ": "
		}
		loc += e.Path
	}
	if loc == "" {
		return fmt.Sprintf("%s: %s", e.Severity, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Severity, loc, e.Message)
}

// ValidationReport collects the findings for one profile.
type ValidationReport struct {
	Profile  string            `json:"profile"`
	Findings []ValidationError `json:"findings,omitempty"`
}

// HasErrors reports whether any finding has error severity.
func (r *ValidationReport) HasErrors() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

func (r *ValidationReport) add(file, path, severity, format string, args ...any) {
	r.Findings = append(r.Findings, ValidationError{
		File:     file,
		Path:     path,
		Message:  fmt.Sprintf(format, args...),
		Severity: severity,
	})
}

// ProfileSpec is the typed shape of a profile used for struct validation.
type ProfileSpec struct {
	Name      string       `validate:"required,excludesall=/\\"`
	Traits    []string     `validate:"dive,required,excludesall=/\\"`
	Bootstrap bool         `validate:"-"`
	Pillars   []PillarSpec `validate:"dive"`
}

// PillarSpec is the typed shape of one pillar entry.
type PillarSpec struct {
	Name  string   `validate:"required,excludesall=/\\"`
	Mode  string   `validate:"required,oneof=all explicit skip"`
	Steps []string `validate:"dive,required,excludesall=/\\"`
}

// Spec converts a profile into its typed shape.
func (p *Profile) Spec() ProfileSpec {
	spec := ProfileSpec{
		Name:      p.Name,
		Traits:    p.Traits(),
		Bootstrap: p.Bootstrap(),
	}
	for _, sel := range p.Pillars() {
		spec.Pillars = append(spec.Pillars, PillarSpec{
			Name:  sel.Name,
			Mode:  string(sel.Mode),
			Steps: sel.Steps,
		})
	}
	return spec
}
