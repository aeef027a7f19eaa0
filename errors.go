package filepulse

import "errors"

var (
	// ErrNotFound is returned when a share or blob does not exist
	ErrNotFound = errors.New("not found")
	// ErrExpired is returned by the registry for a share past its expiry
	ErrExpired = errors.New("expired")
	// ErrTooLarge is returned when an upload exceeds the size limit
	ErrTooLarge = errors.New("too large")
	// ErrInvalidName is returned when a filename cannot be sanitized
	ErrInvalidName = errors.New("invalid name")
	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict is returned when no unique code could be allocated
	ErrConflict = errors.New("conflict")
	// ErrStorageFailure wraps I/O errors from the content store or registry
	ErrStorageFailure = errors.New("storage failure")
	// ErrSweepInProgress is returned when a sweep is requested while one runs
	ErrSweepInProgress = errors.New("sweep in progress")
)
