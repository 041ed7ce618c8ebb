package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a draft id is not in the table.
var ErrNotFound = errors.New("draft not found")

// ValidationError reports a request the store refused without touching disk,
// such as a malformed schedule time or a transition out of posted.
type ValidationError struct {
	err error
}

func (e *ValidationError) Error() string {
	return e.err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.err
}

// NewValidationError wraps err as a validation failure.
func NewValidationError(err error) error {
	return &ValidationError{err: err}
}

// Validationf formats a validation failure.
func Validationf(format string, args ...any) error {
	return &ValidationError{err: fmt.Errorf(format, args...)}
}

// IOError reports a failed read or write of a backing table. When it comes
// from a rewrite, the original table is untouched.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// IsValidation returns true if err is a validation failure.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsIO returns true if err is a backing-store I/O failure.
func IsIO(err error) bool {
	var ioErr *IOError
	return errors.As(err, &ioErr)
}
