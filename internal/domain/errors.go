package domain

import "errors"

// Sentinel errors shared across layers. Wrap with fmt.Errorf("%w: ...") so
// callers can classify with errors.Is.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
)
