// Package iox provides I/O helpers for resource cleanup.
package iox

import (
	"io"

	"go.uber.org/multierr"
)

// DiscardClose closes c and discards the error.
// Use in defer statements where close errors are unactionable:
//
//	defer iox.DiscardClose(conn)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc returns a cleanup function that closes c.
// Designed for t.Cleanup and b.Cleanup registration:
//
//	t.Cleanup(iox.CloseFunc(sink))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// CloseAll closes every closer in order and combines the errors.
// Later closers are still closed when an earlier one fails.
func CloseAll(closers ...io.Closer) error {
	var err error
	for _, c := range closers {
		err = multierr.Append(err, c.Close())
	}
	return err
}

// DiscardErr calls fn and discards the returned error.
// Use for non-Close cleanup calls (e.g. Flush) where errors are unactionable:
//
//	defer iox.DiscardErr(w.Flush)
func DiscardErr(fn func() error) { _ = fn() }
