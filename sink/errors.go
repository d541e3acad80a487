package sink

import "errors"

// errStubTripped is returned by Stub once FailAfterBatches is exceeded.
var errStubTripped = errors.New("stub sink write failure injected")

// ErrBatcherClosed is returned when records are handed to a batcher that
// already reached a terminal state.
var ErrBatcherClosed = errors.New("batcher closed")
