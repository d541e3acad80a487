// Package stream provides typed item streams with one-in-flight
// backpressure and graph-wide terminal-state propagation.
//
// A Supplier produces a lazy, non-restartable sequence of items; a
// Consumer accepts one, acknowledging each item asynchronously; a
// Transformer sits between the two. StreamTo wires a supplier to a
// consumer and pumps items across: the next item is requested only after
// the previous item's acceptance settles, so exactly one item is in
// flight per edge.
//
// Every node carries an EndState, set once and terminal. When a node
// fails, the edge that connects it propagates the error to its peer, so
// a failure anywhere collapses the whole connected graph with the same
// error. Items already acknowledged downstream stay delivered; nothing
// is delivered after closure.
//
// The single-flight rules of byte channels apply here too: a second
// Next, Accept or End before the previous promise settles panics, as
// does Next after end-of-stream.
package stream

import (
	"github.com/justapithecus/sluice/promise"
)

// EndState is the terminal status of a stream node.
type EndState int

const (
	// Active means the node is still streaming.
	Active EndState = iota
	// EndOfStream means the sequence completed normally.
	EndOfStream
	// ClosedWithError means the node failed or was cancelled.
	ClosedWithError
)

// String returns the log label for the state.
func (s EndState) String() string {
	switch s {
	case Active:
		return "active"
	case EndOfStream:
		return "end_of_stream"
	case ClosedWithError:
		return "closed_with_error"
	default:
		return "unknown"
	}
}

// Item carries one element of a stream. OK false marks end-of-stream, in
// which case Value is the zero value.
type Item[T any] struct {
	Value T
	OK    bool
}

// Supplier is the producing end of a stream edge.
type Supplier[T any] interface {
	// Next resolves with the next item, or Item.OK false at
	// end-of-stream. Single flight; calling Next again after
	// end-of-stream panics.
	Next() *promise.Promise[Item[T]]

	// CloseWithError terminates the node. Idempotent; the first
	// terminal state wins and nil means cancellation.
	CloseWithError(err error)

	// State reports the node's terminal status.
	State() EndState

	// Error returns the close error when State is ClosedWithError.
	Error() error
}

// Consumer is the accepting end of a stream edge.
type Consumer[T any] interface {
	// Accept takes one item and resolves once the consumer is ready
	// for the next. A rejection means the item was not taken.
	Accept(item T) *promise.Promise[promise.Void]

	// End signals end-of-stream and resolves once the consumer has
	// finished with everything it accepted.
	End() *promise.Promise[promise.Void]

	// CloseWithError terminates the node. Idempotent; the first
	// terminal state wins and nil means cancellation.
	CloseWithError(err error)

	// State reports the node's terminal status.
	State() EndState

	// Error returns the close error when State is ClosedWithError.
	Error() error
}

// Transformer is simultaneously a Consumer (upstream-facing) and a
// Supplier (downstream-facing), with a single shared EndState.
type Transformer[T, R any] interface {
	Input() Consumer[T]
	Output() Supplier[R]
	State() EndState
	Error() error
}

// normalizeCloseErr maps a nil close reason to the cancellation sentinel.
func normalizeCloseErr(err error) error {
	if err == nil {
		return promise.ErrCancelled
	}
	return err
}
