package service

import "errors"

var (
	// ErrNotAuthenticated means no owner id was supplied. The operation is
	// rejected before any state changes.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrMalformedInput marks an import payload or record that fails shape
	// or value validation.
	ErrMalformedInput = errors.New("malformed input")
	// ErrStorageFailure wraps any error returned by the storage driver.
	ErrStorageFailure = errors.New("storage failure")
)
