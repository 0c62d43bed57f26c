package process

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrAlreadyResolved is returned when approving or rejecting an item that has
// already been resolved. The item is never pushed a second time.
var ErrAlreadyResolved = errors.New("todo item already resolved")

// NotFoundError indicates a referenced process or item does not exist
type NotFoundError struct {
	Resource string
	ID       uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ValidationError indicates extraction output failed schema checks.
// The whole candidate batch is rejected, not individual entries.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("extraction output invalid: %s", e.Reason)
}

// AdapterError indicates an extraction or push adapter call failed
type AdapterError struct {
	Op  string // "extract" or "push"
	Err error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s adapter failed: %v", e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// PersistenceError indicates a store read or write failed
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a NotFoundError
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsAdapterError reports whether err is an AdapterError
func IsAdapterError(err error) bool {
	var ae *AdapterError
	return errors.As(err, &ae)
}

// IsValidationError reports whether err is a ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
