package vault

import (
	"errors"
	"fmt"
	"strings"
)

// Error classes. Every error returned by this package matches exactly one of
// them under errors.Is.
var (
	ErrValidation = errors.New("vault: validation failed")
	ErrIntegrity  = errors.New("vault: integrity violation")
	ErrNotFound   = errors.New("vault: not found")
	ErrStorage    = errors.New("vault: storage failure")

	// ErrClosed is wrapped in a StorageError when the store is used after Close.
	ErrClosed = errors.New("vault: store is closed")
)

// ValidationError reports malformed or missing required input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("vault: invalid %s: %s", e.Field, e.Reason)
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// IntegrityError reports a write that would break a referential rule.
type IntegrityError struct {
	Entity string
	ID     string
	Reason string
}

func (e *IntegrityError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("vault: %s: %s", e.Entity, e.Reason)
	}
	return fmt.Sprintf("vault: %s %q: %s", e.Entity, e.ID, e.Reason)
}

// Is reports whether target is ErrIntegrity.
func (e *IntegrityError) Is(target error) bool { return target == ErrIntegrity }

// NotFoundError reports a referenced id that does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("vault: %s %q not found", e.Entity, e.ID)
}

// Is reports whether target is ErrNotFound.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// StorageError wraps a failure of the underlying database.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("vault: failed to %s: %v", e.Op, e.Err)
}

// Is reports whether target is ErrStorage.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

func (e *StorageError) Unwrap() error { return e.Err }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func notFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// storageErr maps a driver error to the taxonomy. Constraint failures raised
// by SQLite are integrity violations, everything else is a storage failure.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		ve *ValidationError
		ie *IntegrityError
		ne *NotFoundError
		se *StorageError
	)
	if errors.As(err, &ve) || errors.As(err, &ie) || errors.As(err, &ne) || errors.As(err, &se) {
		return err
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "FOREIGN KEY constraint"):
		return &IntegrityError{Entity: "row", Reason: "foreign key constraint failed during " + op}
	case strings.Contains(msg, "UNIQUE constraint"):
		return &IntegrityError{Entity: "row", Reason: "unique constraint failed during " + op}
	}
	return &StorageError{Op: op, Err: err}
}
