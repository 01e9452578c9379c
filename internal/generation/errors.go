package generation

import (
	"fmt"

	"github.com/nathan/competitor-lens/internal/schemas"
)

// APICallError indicates the generator transport failed.
type APICallError struct {
	Message string
	Cause   error
}

func (e *APICallError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *APICallError) Unwrap() error {
	return e.Cause
}

// ValidationFailedError indicates generator output still failed schema
// validation after the single repair attempt.
type ValidationFailedError struct {
	Schema string
	Last   *schemas.ValidationError
}

func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("generation output failed %s validation after repair: %v", e.Schema, e.Last)
}

func (e *ValidationFailedError) Unwrap() error {
	return e.Last
}
