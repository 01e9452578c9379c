package pipeline

import "fmt"

// Code identifies a pipeline failure class. Codes are stable: they are
// persisted on run rows and rendered to callers.
type Code string

// The full failure taxonomy.
const (
	// Input errors.
	CodeNoInputs                Code = "NO_INPUTS"
	CodeInsufficientCompetitors Code = "INSUFFICIENT_COMPETITORS"

	// Evidence errors.
	CodeInsufficientEvidence         Code = "INSUFFICIENT_EVIDENCE"
	CodeInsufficientEvidenceCoverage Code = "INSUFFICIENT_EVIDENCE_COVERAGE"

	// Generation errors.
	CodeValidationFailed             Code = "VALIDATION_FAILED"
	CodeSnapshotValidationFailed     Code = "SNAPSHOT_VALIDATION_FAILED"
	CodeOpportunityGenerationFailure Code = "OPPORTUNITY_GENERATION_ERROR"

	// Transition/persistence errors.
	CodeStatusTransition Code = "STATUS_TRANSITION_ERROR"
	CodeCompletion       Code = "COMPLETION_ERROR"

	// Catch-all.
	CodeUnhandled Code = "UNHANDLED"
)

// Error is a classified pipeline failure. Every run failure is recorded on
// the run row as (code, message, detail) before being returned to the caller.
type Error struct {
	Code    Code
	Message string
	Detail  string
	Cause   error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError builds a pipeline error with a formatted message.
func NewError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithDetail attaches caller-facing detail text.
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// WithCause attaches the underlying error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// AsError classifies an arbitrary error, passing pipeline errors through and
// wrapping anything else as UNHANDLED.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	if perr, ok := err.(*Error); ok {
		return perr
	}
	return &Error{Code: CodeUnhandled, Message: "unexpected pipeline failure", Detail: err.Error(), Cause: err}
}
