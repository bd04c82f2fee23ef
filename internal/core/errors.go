package core

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidMode is returned for an unknown play mode
	ErrInvalidMode = errors.New("invalid mode")
	// ErrInvalidArgument is returned when a request fails validation
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrForbidden is returned when a user acts on a record they do not own
	ErrForbidden = errors.New("forbidden")
	// ErrConflict is returned when a request collides with existing state
	ErrConflict = errors.New("conflict")
	// ErrRunAlreadyCompleted is returned when a run is completed twice
	ErrRunAlreadyCompleted = errors.New("run already completed")
)

// ValidationError carries per-field validation failures
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError creates a validation error for a single field
func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 1 {
		for field, msg := range e.Fields {
			return field + ": " + msg
		}
	}
	return "validation failed"
}

// Unwrap lets callers match validation errors with ErrInvalidArgument
func (e *ValidationError) Unwrap() error {
	return ErrInvalidArgument
}
