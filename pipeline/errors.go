package pipeline

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipe errors for outcome determination.
type ErrorKind int

const (
	// KindStream indicates a framing, decoding or sequence error on the
	// record stream.
	KindStream ErrorKind = iota
	// KindSink indicates a persistence failure.
	KindSink
	// KindCancelled indicates the pipe was cancelled before completion.
	KindCancelled
)

// String returns the log label for the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindStream:
		return "stream"
	case KindSink:
		return "sink"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// PipeError wraps a pipe failure with its outcome classification.
type PipeError struct {
	Kind ErrorKind
	Err  error
}

func (e *PipeError) Error() string {
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *PipeError) Unwrap() error {
	return e.Err
}

// IsStreamError reports whether err classifies as a stream failure.
func IsStreamError(err error) bool {
	var pe *PipeError
	return errors.As(err, &pe) && pe.Kind == KindStream
}

// IsSinkError reports whether err classifies as a sink failure.
func IsSinkError(err error) bool {
	var pe *PipeError
	return errors.As(err, &pe) && pe.Kind == KindSink
}

// IsCancelledError reports whether err classifies as a cancellation.
func IsCancelledError(err error) bool {
	var pe *PipeError
	return errors.As(err, &pe) && pe.Kind == KindCancelled
}
