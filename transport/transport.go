// Package transport bridges net.Conn endpoints onto an event loop as
// byte channels.
//
// A Socket splits one connection into a chunk Supplier for reads and a
// chunk Consumer for writes. The blocking socket calls run on goroutines
// via promise.OfBlocking, so the loop thread never waits on the network;
// single-flight discipline and close bookkeeping come from the byte
// channel endpoints. Closing either endpoint tears the connection down,
// and the peer observes the teardown as end-of-stream.
package transport

import (
	"errors"
	"fmt"
)

// Error classifies a transport-level failure by operation and peer.
type Error struct {
	// Op is the socket operation that failed: dial, listen, read,
	// write or close_write.
	Op string
	// Addr is the peer or listen address involved.
	Addr string
	// Err is the underlying error.
	Err error
}

func (e *Error) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("transport %s %s: %v", e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err is or wraps a transport Error.
func IsTransportError(err error) bool {
	var te *Error
	return errors.As(err, &te)
}
