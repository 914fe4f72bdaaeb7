package mea

import "errors"

// Validation errors, raised before any I/O.
var (
	ErrInvalidDuration = errors.New("invalid duration")
	ErrInvalidDevice   = errors.New("invalid MEA device")
	ErrInvalidPath     = errors.New("invalid save path")
)

// Session errors.
var (
	// ErrIO wraps disk and path errors from the writer. Fatal.
	ErrIO = errors.New("i/o error")
	// ErrStreamClosed is returned once the upstream ended and no chunk is buffered.
	ErrStreamClosed = errors.New("stream closed")
	// ErrTimeout is returned when a single wait for the next chunk exceeds its bound.
	ErrTimeout = errors.New("timed out waiting for chunk")
	// ErrShapeMismatch means a chunk is not Electrodes x SamplesPerChunk.
	ErrShapeMismatch = errors.New("chunk shape mismatch")
	// ErrDuplicateIndex means a chunk index was written twice.
	ErrDuplicateIndex = errors.New("duplicate chunk index")
	// ErrCancelled marks a session stopped from outside.
	ErrCancelled = errors.New("recording cancelled")
)

// IsValidation reports whether err is one of the planner's validation errors.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidDuration) ||
		errors.Is(err, ErrInvalidDevice) ||
		errors.Is(err, ErrInvalidPath)
}
