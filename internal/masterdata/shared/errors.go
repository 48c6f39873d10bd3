package shared

import "errors"

// Sentinel errors returned by the master data services. Handlers map
// them onto problem responses.
var (
	ErrNotFound      = errors.New("record not found")
	ErrDuplicate     = errors.New("duplicate record")
	ErrValidation    = errors.New("validation failed")
	ErrInvalidID     = errors.New("invalid id")
	ErrRequiredField = errors.New("required field missing")
)
