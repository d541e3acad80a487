package promise

import "errors"

// Sentinel errors shared by every asynchronous surface in this module.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrCancelled indicates an operation was abandoned by a local close
	// rather than failed by its peer.
	ErrCancelled = errors.New("operation cancelled")

	// ErrTimeout indicates an operation missed its deadline.
	ErrTimeout = errors.New("operation timed out")
)
