package storax

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for common operations.
var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("storax: row not found")

	// ErrUnknownColumn is returned in strict mode when a fetched row
	// contains a column the declared schema does not recognize.
	ErrUnknownColumn = errors.New("storax: unknown column")

	// ErrNullViolation is returned when a column that forbids null
	// received one during decode.
	ErrNullViolation = errors.New("storax: null violation")
)

// NotFoundError reports a lookup that matched no row.
type NotFoundError struct {
	Table string
	ID    int64
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("storax: %s id=%d not found", e.Table, e.ID)
}

// Is reports whether the target error matches NotFoundError.
// This allows errors.Is(notFoundErr, ErrNotFound) to return true.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// UnknownColumnError reports a fetched column the declared schema does
// not recognize. It is only raised by clients in strict mode.
type UnknownColumnError struct {
	Table  string
	Column string
}

// Error returns the error string.
func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("storax: table %q has no declared column %q", e.Table, e.Column)
}

// Is reports whether the target error matches UnknownColumnError.
func (e *UnknownColumnError) Is(err error) bool {
	return err == ErrUnknownColumn
}

// IsUnknownColumn returns true if the error is an UnknownColumnError.
func IsUnknownColumn(err error) bool {
	if err == nil {
		return false
	}
	var e *UnknownColumnError
	return errors.As(err, &e) || errors.Is(err, ErrUnknownColumn)
}

// NullViolationError reports a null value in a column that forbids it.
type NullViolationError struct {
	Table  string
	Column string
}

// Error returns the error string.
func (e *NullViolationError) Error() string {
	return fmt.Sprintf("storax: column %s.%s does not allow null", e.Table, e.Column)
}

// Is reports whether the target error matches NullViolationError.
func (e *NullViolationError) Is(err error) bool {
	return err == ErrNullViolation
}

// IsNullViolation returns true if the error is a NullViolationError.
func IsNullViolation(err error) bool {
	if err == nil {
		return false
	}
	var e *NullViolationError
	return errors.As(err, &e) || errors.Is(err, ErrNullViolation)
}

// ConversionError reports a value that could not be moved between its
// application-level and SQL-level forms.
type ConversionError struct {
	Table  string
	Column string
	Err    error
}

// Error returns the error string.
func (e *ConversionError) Error() string {
	return fmt.Sprintf("storax: converting %s.%s: %s", e.Table, e.Column, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConversionError) Unwrap() error {
	return e.Err
}

// IsConversion returns true if the error is a ConversionError.
func IsConversion(err error) bool {
	if err == nil {
		return false
	}
	var e *ConversionError
	return errors.As(err, &e)
}
