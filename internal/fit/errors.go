package fit

import "errors"

var (
	// ErrIntegrity is returned by the structural pre-check.
	ErrIntegrity = errors.New("fit: integrity check failed")
	// ErrRecoverableFraming signals that the declared data size does not match
	// the record stream. Decoding can be retried with Options.Resync.
	ErrRecoverableFraming = errors.New("fit: declared data size inconsistent with record stream")
	// ErrMalformed is returned when records cannot be decoded.
	ErrMalformed = errors.New("fit: malformed container")
	// ErrOutputWrite wraps failures of the output resource.
	ErrOutputWrite = errors.New("fit: output write failed")
	// ErrWriterClosed is returned by Write after Close.
	ErrWriterClosed = errors.New("fit: writer closed")
)
