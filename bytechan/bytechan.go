// Package bytechan provides pull-based byte channels: unidirectional
// chunk pipes between an asynchronous producer and consumer.
//
// Contract, enforced at runtime:
//   - Single flight: at most one outstanding Get or Accept per endpoint.
//     A second call before the first promise settles is a caller bug and
//     panics.
//   - End of stream: Get fulfills with a nil chunk exactly once; calling
//     Get again afterwards panics. Accept(nil) signals intentional close
//     of the write side.
//   - Close: CloseWithError is idempotent. The first error is kept and
//     every later operation rejects with it; a nil error is recorded as
//     promise.ErrCancelled. Closing settles any outstanding Get or Accept
//     so no promise is left hanging.
//   - Ownership: a chunk passed to Accept belongs to the consumer unless
//     the returned promise rejects, in which case the caller still owns
//     it and must recycle it.
package bytechan

import (
	"github.com/justapithecus/sluice/chunk"
	"github.com/justapithecus/sluice/promise"
)

// Supplier is the pull side of a byte channel.
type Supplier interface {
	// Get resolves with the next chunk, or nil at end-of-stream.
	Get() *promise.Promise[*chunk.Chunk]

	// CloseWithError terminates the channel. A nil err means local
	// cancellation.
	CloseWithError(err error)
}

// Consumer is the push side of a byte channel.
type Consumer interface {
	// Accept takes ownership of ck and resolves once the chunk has been
	// taken in. A nil ck signals end-of-stream.
	Accept(ck *chunk.Chunk) *promise.Promise[promise.Void]

	// CloseWithError terminates the channel. A nil err means local
	// cancellation.
	CloseWithError(err error)
}

// normalizeCloseErr maps a nil close reason to the cancellation sentinel.
func normalizeCloseErr(err error) error {
	if err == nil {
		return promise.ErrCancelled
	}
	return err
}
