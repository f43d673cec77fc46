package engine

import (
	"errors"
	"fmt"
)

// ErrorClass says how far a failure propagates.
type ErrorClass string

const (
	// ErrorClassFatal halts the invocation before anything is provisioned.
	// Examples: the requested profile does not exist or cannot be parsed.
	ErrorClassFatal ErrorClass = "fatal"

	// ErrorClassSoft is logged and otherwise ignored.
	// Example: a trait named by a profile does not exist.
	ErrorClassSoft ErrorClass = "soft"

	// ErrorClassStage fails the current stage; the continuation policy applies.
	// Example: a pillar directory does not exist.
	ErrorClassStage ErrorClass = "stage"

	// ErrorClassWarning skips one step without failing its stage.
	// Example: a step named in a profile has no script.
	ErrorClassWarning ErrorClass = "warning"

	// ErrorClassRecoverable fails the current stage; the continuation policy
	// applies. Example: a script exits non-zero.
	ErrorClassRecoverable ErrorClass = "recoverable"
)

// EngineError is a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code identifies the condition for programmatic handling.
	Code string `json:"code,omitempty"`

	// Stage is the stage that was running, if any.
	Stage string `json:"stage,omitempty"`

	// Step is the step that was running, if any.
	Step string `json:"step,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`

	// Details contains additional context.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	var loc string
	switch {
	case e.Stage != "" && e.Step != "":
		loc = fmt.Sprintf(" (stage=%s, step=%s)", e.Stage, e.Step)
	case e.Stage != "":
		loc = fmt.Sprintf(" (stage=%s)", e.Stage)
	case e.Step != "":
		loc = fmt.Sprintf(" (step=%s)", e.Step)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s%s: %s", e.Class, e.Message, loc, e.Err.Error())
	}
	return fmt.Sprintf("[%s] %s%s", e.Class, e.Message, loc)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is. Two engine errors
// match when class and code match.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewFatalError creates a new fatal error.
func NewFatalError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassFatal, Message: message, Err: err}
}

// NewSoftError creates a new soft error.
func NewSoftError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassSoft, Message: message, Err: err}
}

// NewStageError creates a new stage error.
func NewStageError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassStage, Message: message, Err: err}
}

// NewWarning creates a new warning-class error.
func NewWarning(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassWarning, Message: message, Err: err}
}

// NewRecoverableError creates a new recoverable error.
func NewRecoverableError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassRecoverable, Message: message, Err: err}
}

// WithStage adds stage context to an error.
func (e *EngineError) WithStage(stage string) *EngineError {
	e.Stage = stage
	return e
}

// WithStep adds step context to an error.
func (e *EngineError) WithStep(step string) *EngineError {
	e.Step = step
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func classOf(err error) (ErrorClass, bool) {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class, true
	}
	return "", false
}

// IsFatal returns true if the error is classified as fatal.
func IsFatal(err error) bool {
	c, ok := classOf(err)
	return ok && c == ErrorClassFatal
}

// IsSoft returns true if the error is classified as soft.
func IsSoft(err error) bool {
	c, ok := classOf(err)
	return ok && c == ErrorClassSoft
}

// IsStageError returns true if the error is classified as stage-fatal.
func IsStageError(err error) bool {
	c, ok := classOf(err)
	return ok && c == ErrorClassStage
}

// IsWarning returns true if the error is classified as a warning.
func IsWarning(err error) bool {
	c, ok := classOf(err)
	return ok && c == ErrorClassWarning
}

// IsRecoverable returns true if the error is classified as recoverable.
func IsRecoverable(err error) bool {
	c, ok := classOf(err)
	return ok && c == ErrorClassRecoverable
}

// FailsStage returns true if the error fails the stage it occurred in and
// hands control to the continuation policy.
func FailsStage(err error) bool {
	return IsStageError(err) || IsRecoverable(err)
}

// Error codes.
const (
	ErrCodeConfigNotFound = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "CONFIG_INVALID"
	ErrCodeTraitMissing   = "TRAIT_MISSING"
	ErrCodePillarMissing  = "PILLAR_MISSING"
	ErrCodeStepMissing    = "STEP_MISSING"
	ErrCodeStepFailed     = "STEP_FAILED"
	ErrCodeInternal       = "INTERNAL_ERROR"
)

// Sentinels for errors.Is; only Class and Code are compared.
var (
	ErrConfigNotFound = &EngineError{Class: ErrorClassFatal, Code: ErrCodeConfigNotFound}
	ErrConfigInvalid  = &EngineError{Class: ErrorClassFatal, Code: ErrCodeConfigInvalid}
	ErrTraitMissing   = &EngineError{Class: ErrorClassSoft, Code: ErrCodeTraitMissing}
	ErrPillarMissing  = &EngineError{Class: ErrorClassStage, Code: ErrCodePillarMissing}
	ErrStepMissing    = &EngineError{Class: ErrorClassWarning, Code: ErrCodeStepMissing}
	ErrStepFailed     = &EngineError{Class: ErrorClassRecoverable, Code: ErrCodeStepFailed}
)
