// Package sink provides record persistence backends and the batching
// stream consumer that feeds them.
//
// A Sink is the blocking persistence boundary: it runs off-loop (via
// promise.OfBlocking) and must preserve record ordering within a batch.
// The Batcher adapts a Sink into a stream.Consumer, accumulating records
// and flushing on count or interval triggers.
package sink

import (
	"context"
	"sync"
	"time"

	"github.com/justapithecus/sluice/types"
)

// DeriveDay computes the partition day from pipe start time.
// Format: YYYY-MM-DD in UTC.
func DeriveDay(startTime time.Time) string {
	return startTime.UTC().Format("2006-01-02")
}

// Sink abstracts record persistence.
// Implementations may write to local storage, object storage, or stub
// for testing.
//
// Methods are batch-oriented: the Batcher decides batch boundaries, the
// sink only persists what it is handed.
type Sink interface {
	// WriteRecords persists a batch of records.
	// Must preserve ordering within the batch.
	// Returns error on failure; the caller decides whether to retry
	// or fail the pipe.
	WriteRecords(ctx context.Context, records []*types.Record) error

	// Close releases any resources held by the sink.
	Close() error
}

// WriteOp records one WriteRecords call for ordering verification.
type WriteOp struct {
	Records []*types.Record
}

// Stub is a test sink that accepts writes without persisting.
// Tracks write statistics for test assertions.
type Stub struct {
	mu sync.Mutex

	// RecordsWritten is the total count of records written.
	RecordsWritten int64
	// Batches is the number of WriteRecords calls.
	Batches int64
	// Closed indicates whether Close was called.
	Closed bool

	// Written stores all written records for inspection.
	Written []*types.Record
	// WriteOrder tracks each write call for batch-boundary tests.
	WriteOrder []WriteOp

	// ErrorOnWrite, if non-nil, is returned by WriteRecords.
	ErrorOnWrite error
	// FailAfterBatches makes WriteRecords fail once this many batches
	// have succeeded. Zero disables the trip wire.
	FailAfterBatches int64
}

// NewStub creates a new stub sink for testing.
func NewStub() *Stub {
	return &Stub{}
}

// WriteRecords records the batch without persisting.
func (s *Stub) WriteRecords(_ context.Context, records []*types.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ErrorOnWrite != nil {
		return s.ErrorOnWrite
	}
	if s.FailAfterBatches > 0 && s.Batches >= s.FailAfterBatches {
		return errStubTripped
	}

	s.Batches++
	s.RecordsWritten += int64(len(records))
	s.Written = append(s.Written, records...)
	s.WriteOrder = append(s.WriteOrder, WriteOp{Records: records})
	return nil
}

// Close marks the sink as closed.
func (s *Stub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

// Stats returns a snapshot of stub statistics.
func (s *Stub) Stats() StubStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StubStats{
		RecordsWritten: s.RecordsWritten,
		Batches:        s.Batches,
		Closed:         s.Closed,
	}
}

// StubStats is a snapshot of Stub statistics.
type StubStats struct {
	RecordsWritten int64
	Batches        int64
	Closed         bool
}

// Verify Stub implements Sink.
var _ Sink = (*Stub)(nil)
