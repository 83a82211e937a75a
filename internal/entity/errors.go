package entity

import "errors"

var (
	// ErrEntityNotFound is returned when an entity id is not loaded
	ErrEntityNotFound = errors.New("entity not found")

	// ErrInvalidValue is returned when a value is outside the entity's range
	ErrInvalidValue = errors.New("invalid value")
)

// OperationError is the user-facing failure of an entity operation. Vendor
// specific errors are translated into it so callers never see client types.
type OperationError struct {
	Message string
	Err     error
}

// Error returns the user-facing message
func (e *OperationError) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause
func (e *OperationError) Unwrap() error {
	return e.Err
}
