package policy

import (
	"time"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for warnings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for violations that fail validation.
	SeverityError Severity = "error"
)

// Blocking reports whether the severity fails `forge validate`. Provisioning
// never blocks on policy.
func (s Severity) Blocking() bool {
	return s == SeverityError
}

// Operation names what the policy input is being checked for.
const (
	OperationProvision = "provision"
	OperationValidate  = "validate"
)

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code. The package must define a deny
	// set of strings or {message, severity, key} objects.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Builtin marks policies shipped with forge.
	Builtin bool `json:"builtin,omitempty"`

	// Source is the file the policy was loaded from.
	Source string `json:"source,omitempty"`
}

// Violation represents a single policy violation.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Profile is the profile whose effective configuration was checked.
	Profile string `json:"profile,omitempty"`

	// Key is the configuration key the violation is about, if any.
	Key string `json:"key,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`
}

// String formats the violation for a warning line.
func (v Violation) String() string {
	if v.Key != "" {
		return v.Policy + ": " + v.Key + ": " + v.Message
	}
	return v.Policy + ": " + v.Message
}

// Result represents the result of policy evaluation.
type Result struct {
	// Allowed is false when a violation has a blocking severity.
	Allowed bool `json:"allowed"`

	// Violations lists all policy violations, ordered by policy then message.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists policies that could not be evaluated.
	Warnings []string `json:"warnings,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// EvaluatedAt is when the policy was evaluated.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// Input is the document rego policies see as input.
type Input struct {
	// Profile is the profile name.
	Profile string `json:"profile"`

	// Config is the effective configuration as plain maps and lists.
	Config map[string]any `json:"config"`

	// Context provides additional evaluation context.
	Context *Context `json:"context"`
}

// Context provides context information for policy evaluation.
type Context struct {
	// Operation is OperationProvision or OperationValidate.
	Operation string `json:"operation"`

	// Platform is the target platform id, when known.
	Platform string `json:"platform,omitempty"`

	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`
}
