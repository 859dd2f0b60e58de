package model

import (
	"errors"
	"fmt"
)

// ErrorKind names one of the error kinds from the error-handling design:
// BackendBusy, BlobIoFailed, BlobIntegrity, SchemaVersionAhead,
// DuplicateOutcome, MissingExtension, RemoteUnavailable.
type ErrorKind string

const (
	KindBackendBusy        ErrorKind = "backend_busy"
	KindBlobIoFailed       ErrorKind = "blob_io_failed"
	KindBlobIntegrity      ErrorKind = "blob_integrity"
	KindSchemaVersionAhead ErrorKind = "schema_version_ahead"
	KindDuplicateOutcome   ErrorKind = "duplicate_outcome"
	KindMissingExtension   ErrorKind = "missing_extension"
	KindRemoteUnavailable  ErrorKind = "remote_unavailable"
)

// StoreError wraps an underlying error with a classification kind so
// callers can branch on policy (retry, degrade, swallow-and-log)
// without string matching.
type StoreError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *StoreError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NewError builds a StoreError of the given kind.
func NewError(kind ErrorKind, op string, err error) *StoreError {
	return &StoreError{Kind: kind, Op: op, Err: err}
}

// KindOf returns the ErrorKind of err if it (or something it wraps) is
// a *StoreError, and ok=false otherwise.
func KindOf(err error) (ErrorKind, bool) {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}

// IsKind reports whether err carries the given ErrorKind.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
