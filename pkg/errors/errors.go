// Package errors provides the typed errors raised by the resolution pipeline.
// Each type is comparable with errors.Is against its sentinel so callers can
// branch on the category without depending on the concrete type.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for the resolution pipeline
var (
	// ErrUnsupportedSource indicates no canonicalizer is registered for a source
	ErrUnsupportedSource = errors.New("unsupported source")

	// ErrMissingIdentifier indicates a payload has no provider-native key
	ErrMissingIdentifier = errors.New("missing identifier")

	// ErrConflict indicates a concurrent update was detected and the merge must be re-run
	ErrConflict = errors.New("concurrent update conflict")

	// ErrStorage indicates a backing store failure
	ErrStorage = errors.New("storage failure")

	// ErrNotFound indicates that a requested record does not exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidDocument indicates a stored payload cannot be parsed at all
	ErrInvalidDocument = errors.New("invalid document")
)

// UnsupportedSourceError is returned when a payload's source has no canonicalizer.
type UnsupportedSourceError struct {
	Source string
}

func (e *UnsupportedSourceError) Error() string {
	return fmt.Sprintf("no canonicalizer registered for source %q", e.Source)
}

// Is implements errors.Is support
func (e *UnsupportedSourceError) Is(target error) bool {
	return target == ErrUnsupportedSource
}

// NewUnsupportedSourceError creates a new UnsupportedSourceError
func NewUnsupportedSourceError(source string) *UnsupportedSourceError {
	return &UnsupportedSourceError{Source: source}
}

// MissingIdentifierError is returned when the natural key of a payload is absent.
type MissingIdentifierError struct {
	Source     string
	Identifier string
}

func (e *MissingIdentifierError) Error() string {
	if e.Identifier == "" {
		return fmt.Sprintf("%s payload is missing its identifier", e.Source)
	}
	return fmt.Sprintf("%s payload is missing %s", e.Source, e.Identifier)
}

// Is implements errors.Is support
func (e *MissingIdentifierError) Is(target error) bool {
	return target == ErrMissingIdentifier
}

// NewMissingIdentifierError creates a new MissingIdentifierError
func NewMissingIdentifierError(source, identifier string) *MissingIdentifierError {
	return &MissingIdentifierError{Source: source, Identifier: identifier}
}

// InvalidDocumentError is returned when a raw document is not parseable JSON.
// The payload stays stored; only canonicalization is refused.
type InvalidDocumentError struct {
	Source    string
	PayloadID string
	Err       error
}

func (e *InvalidDocumentError) Error() string {
	if e.PayloadID == "" {
		return fmt.Sprintf("%s document is not valid JSON: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("%s payload %s is not valid JSON: %v", e.Source, e.PayloadID, e.Err)
}

// Unwrap returns the underlying parse error
func (e *InvalidDocumentError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *InvalidDocumentError) Is(target error) bool {
	return target == ErrInvalidDocument
}

// NewInvalidDocumentError creates a new InvalidDocumentError
func NewInvalidDocumentError(source, payloadID string, err error) *InvalidDocumentError {
	return &InvalidDocumentError{Source: source, PayloadID: payloadID, Err: err}
}

// ConflictRetryableError signals an optimistic-lock failure on a golden record.
// The caller re-reads the record and re-runs the merge.
type ConflictRetryableError struct {
	EntityID        string
	ExpectedVersion int
	Reason          string
}

func (e *ConflictRetryableError) Error() string {
	if e.EntityID == "" {
		return fmt.Sprintf("resolution conflict: %s", e.Reason)
	}
	return fmt.Sprintf("resolution conflict on entity %s at version %d: %s", e.EntityID, e.ExpectedVersion, e.Reason)
}

// Is implements errors.Is support
func (e *ConflictRetryableError) Is(target error) bool {
	return target == ErrConflict
}

// NewConflictError creates a new ConflictRetryableError
func NewConflictError(entityID string, expectedVersion int, reason string) *ConflictRetryableError {
	return &ConflictRetryableError{EntityID: entityID, ExpectedVersion: expectedVersion, Reason: reason}
}

// StorageError wraps a backing store failure.
type StorageError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// NewStorageError wraps err as a StorageError. Deadline and cancellation errors
// from the store are marked retryable.
func NewStorageError(op string, err error) *StorageError {
	return &StorageError{
		Op:        op,
		Retryable: errors.Is(err, context.DeadlineExceeded),
		Err:       err,
	}
}

// NotFoundError represents a missing record
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// Is implements errors.Is support
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// IsRetryable reports whether err is a transient failure the caller may retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrConflict) {
		return true
	}
	var se *StorageError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// Is is an alias for the standard library errors.Is
var Is = errors.Is

// As is an alias for the standard library errors.As
var As = errors.As

// New is an alias for the standard library errors.New
var New = errors.New

// IsPermanent reports whether err describes a payload that will never
// process successfully, no matter how often it is retried.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrUnsupportedSource) ||
		errors.Is(err, ErrMissingIdentifier) ||
		errors.Is(err, ErrInvalidDocument)
}
