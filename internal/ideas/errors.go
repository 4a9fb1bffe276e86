package ideas

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnauthorized means the requester does not own the idea.
	ErrUnauthorized = errors.New("unauthorized: you can only change your own ideas")
	// ErrNotFound means the idea id does not resolve.
	ErrNotFound = errors.New("idea not found")
)

// ValidationError reports content that fails a shape or invariant check.
// Nothing is persisted when it is returned.
type ValidationError struct {
	Subject  string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Subject, strings.Join(e.Problems, "; "))
}

func invalid(subject string, problems ...string) *ValidationError {
	return &ValidationError{Subject: subject, Problems: problems}
}

// GenerationError reports a failed or unusable call to the generative
// content service.
type GenerationError struct {
	Artifact string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generating %s: %v", e.Artifact, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Outcome classifies err for metrics and logs.
func Outcome(err error) string {
	var verr *ValidationError
	var gerr *GenerationError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.As(err, &gerr):
		return "generation_error"
	case errors.As(err, &verr):
		return "validation_error"
	default:
		return "error"
	}
}
