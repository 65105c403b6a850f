package registry

import (
	"errors"
	"fmt"
	"strings"

	"cachepledge.org/internal/auth"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrPledgeNotFound     = fmt.Errorf("pledge %w", ErrNotFound)
	ErrSubmissionNotFound = fmt.Errorf("submission %w", ErrNotFound)
	ErrUserNotFound       = fmt.Errorf("user %w", ErrNotFound)

	// ErrAlreadySubmitted is returned by Confirm when the pledge has a
	// submission, including when a concurrent confirm won the race.
	ErrAlreadySubmitted = errors.New("this pledge already has a submission")
	ErrInvalidInput     = errors.New("validation error")

	ErrForbidden       = auth.ErrForbidden
	ErrUnauthenticated = auth.ErrUnauthenticated
)

// FieldError is one failed rule on one input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries field-level detail and matches ErrInvalidInput.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation error: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }
