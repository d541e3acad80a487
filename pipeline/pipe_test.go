package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/errgroup"

	"github.com/justapithecus/sluice/adapter"
	"github.com/justapithecus/sluice/bytechan"
	"github.com/justapithecus/sluice/eventloop"
	"github.com/justapithecus/sluice/frame"
	"github.com/justapithecus/sluice/log"
	"github.com/justapithecus/sluice/metrics"
	"github.com/justapithecus/sluice/sink"
	"github.com/justapithecus/sluice/types"
)

func testRecord(t *testing.T, seq int64, kind types.RecordKind) *types.Record {
	t.Helper()
	return &types.Record{
		RecordID: fmt.Sprintf("rec-%03d", seq),
		PipeID:   "pipe-001",
		Seq:      seq,
		Kind:     kind,
		Ts:       "2026-08-24T12:00:00Z",
		Payload:  map[string]any{"n": seq},
		Attempt:  1,
	}
}

// encodeRecords frames each record as a length-prefixed msgpack payload.
func encodeRecords(t *testing.T, recs ...*types.Record) []byte {
	t.Helper()
	var buf []byte
	for _, rec := range recs {
		payload, err := msgpack.Marshal(rec)
		if err != nil {
			t.Fatalf("marshal record: %v", err)
		}
		buf = frame.AppendFrame(buf, payload)
	}
	return buf
}

func itemRecords(t *testing.T, n int) []*types.Record {
	t.Helper()
	recs := make([]*types.Record, n)
	for i := range n {
		recs[i] = testRecord(t, int64(i+1), types.RecordKindItem)
	}
	return recs
}

// captureAdapter records published events for assertions.
type captureAdapter struct {
	mu     sync.Mutex
	events []*adapter.PipeCompletedEvent
	closed bool
}

func (a *captureAdapter) Publish(_ context.Context, event *adapter.PipeCompletedEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *captureAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

func (a *captureAdapter) published() []*adapter.PipeCompletedEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*adapter.PipeCompletedEvent(nil), a.events...)
}

func newTestPipe(t *testing.T, cfg *Config) *Pipe {
	t.Helper()
	if cfg.Meta == nil {
		cfg.Meta = types.NewPipeMeta()
	}
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("new pipe: %v", err)
	}
	return p
}

func TestExecute_Completed(t *testing.T) {
	loop := eventloop.New()
	stub := sink.NewStub()
	wire := encodeRecords(t, itemRecords(t, 5)...)

	p := newTestPipe(t, &Config{
		Loop:       loop,
		Source:     bytechan.OfBytes(loop, wire),
		Sink:       stub,
		FlushCount: 2,
	})

	result, err := p.Execute(t.Context())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if result.Outcome.Status != types.OutcomeCompleted {
		t.Fatalf("expected completed, got %s (%s)", result.Outcome.Status, result.Outcome.Message)
	}
	if result.Received != 5 {
		t.Errorf("expected 5 received, got %d", result.Received)
	}
	if result.Persisted != 5 {
		t.Errorf("expected 5 persisted, got %d", result.Persisted)
	}
	if result.Dropped != 0 {
		t.Errorf("expected 0 dropped, got %d", result.Dropped)
	}
	// 2 + 2 + 1
	if stub.Stats().Batches != 3 {
		t.Errorf("expected 3 batches, got %d", stub.Stats().Batches)
	}
	for i, rec := range stub.Written {
		if rec.Seq != int64(i+1) {
			t.Fatalf("record %d out of order: seq %d", i, rec.Seq)
		}
	}
}

func TestExecute_EmptySource(t *testing.T) {
	loop := eventloop.New()
	stub := sink.NewStub()

	p := newTestPipe(t, &Config{
		Loop:       loop,
		Source:     bytechan.OfBytes(loop, nil),
		Sink:       stub,
		FlushCount: 2,
	})

	result, err := p.Execute(t.Context())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if result.Outcome.Status != types.OutcomeCompleted {
		t.Fatalf("expected completed, got %s", result.Outcome.Status)
	}
	if result.Received != 0 {
		t.Errorf("expected 0 received, got %d", result.Received)
	}
	if stub.Stats().Batches != 0 {
		t.Errorf("expected no batches, got %d", stub.Stats().Batches)
	}
}

func TestExecute_KindFilter(t *testing.T) {
	loop := eventloop.New()
	stub := sink.NewStub()
	wire := encodeRecords(t,
		testRecord(t, 1, types.RecordKindItem),
		testRecord(t, 2, types.RecordKindLog),
		testRecord(t, 3, types.RecordKindItem),
		testRecord(t, 4, types.RecordKindCheckpoint),
		testRecord(t, 5, types.RecordKindItem),
	)

	p := newTestPipe(t, &Config{
		Loop:       loop,
		Source:     bytechan.OfBytes(loop, wire),
		Sink:       stub,
		KeepKinds:  []types.RecordKind{types.RecordKindItem},
		FlushCount: 10,
	})

	result, err := p.Execute(t.Context())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if result.Outcome.Status != types.OutcomeCompleted {
		t.Fatalf("expected completed, got %s (%s)", result.Outcome.Status, result.Outcome.Message)
	}
	if result.Received != 5 {
		t.Errorf("expected 5 received, got %d", result.Received)
	}
	if result.Dropped != 2 {
		t.Errorf("expected 2 dropped, got %d", result.Dropped)
	}
	if result.Persisted != 3 {
		t.Errorf("expected 3 persisted, got %d", result.Persisted)
	}
	for _, rec := range stub.Written {
		if rec.Kind != types.RecordKindItem {
			t.Errorf("unexpected kind %s persisted", rec.Kind)
		}
	}
}

func TestExecute_SequenceViolation(t *testing.T) {
	loop := eventloop.New()
	stub := sink.NewStub()
	wire := encodeRecords(t,
		testRecord(t, 1, types.RecordKindItem),
		testRecord(t, 3, types.RecordKindItem), // gap
	)

	p := newTestPipe(t, &Config{
		Loop:       loop,
		Source:     bytechan.OfBytes(loop, wire),
		Sink:       stub,
		FlushCount: 10,
	})

	result, err := p.Execute(t.Context())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if result.Outcome.Status != types.OutcomeStreamError {
		t.Fatalf("expected stream_error, got %s (%s)", result.Outcome.Status, result.Outcome.Message)
	}
	// Buffered records die with the pipe, nothing half-persisted.
	if stub.Stats().RecordsWritten != 0 {
		t.Errorf("expected no records persisted, got %d", stub.Stats().RecordsWritten)
	}
}

func TestExecute_TruncatedFrame(t *testing.T) {
	loop := eventloop.New()
	stub := sink.NewStub()
	wire := encodeRecords(t, testRecord(t, 1, types.RecordKindItem))
	// Chop the last frame mid-payload.
	wire = wire[:len(wire)-3]

	p := newTestPipe(t, &Config{
		Loop:       loop,
		Source:     bytechan.OfBytes(loop, wire),
		Sink:       stub,
		FlushCount: 10,
	})

	result, err := p.Execute(t.Context())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if result.Outcome.Status != types.OutcomeStreamError {
		t.Fatalf("expected stream_error, got %s (%s)", result.Outcome.Status, result.Outcome.Message)
	}
}

func TestExecute_MalformedPayload(t *testing.T) {
	loop := eventloop.New()
	stub := sink.NewStub()
	wire := frame.AppendFrame(nil, []byte{0xc1, 0xc1, 0xc1}) // invalid msgpack

	p := newTestPipe(t, &Config{
		Loop:       loop,
		Source:     bytechan.OfBytes(loop, wire),
		Sink:       stub,
		FlushCount: 10,
	})

	result, err := p.Execute(t.Context())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if result.Outcome.Status != types.OutcomeStreamError {
		t.Fatalf("expected stream_error, got %s (%s)", result.Outcome.Status, result.Outcome.Message)
	}
}

func TestExecute_SinkError(t *testing.T) {
	loop := eventloop.New()
	stub := sink.NewStub()
	stub.FailAfterBatches = 1
	wire := encodeRecords(t, itemRecords(t, 6)...)

	p := newTestPipe(t, &Config{
		Loop:       loop,
		Source:     bytechan.OfBytes(loop, wire),
		Sink:       stub,
		FlushCount: 2,
	})

	result, err := p.Execute(t.Context())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if result.Outcome.Status != types.OutcomeSinkError {
		t.Fatalf("expected sink_error, got %s (%s)", result.Outcome.Status, result.Outcome.Message)
	}
	// First batch landed before the sink tripped.
	if result.Persisted != 2 {
		t.Errorf("expected 2 persisted, got %d", result.Persisted)
	}
}

func TestExecute_Cancelled(t *testing.T) {
	loop := eventloop.New()
	stub := sink.NewStub()

	// A pipe source that never delivers data keeps the pipe pending until
	// cancellation tears it down.
	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })

	p := newTestPipe(t, &Config{
		Loop:       loop,
		Source:     ReaderSource(loop, pr),
		Sink:       stub,
		FlushCount: 2,
	})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	done := make(chan *Result, 1)
	go func() {
		result, err := p.Execute(ctx)
		if err != nil {
			t.Errorf("execute: %v", err)
		}
		done <- result
	}()

	select {
	case result := <-done:
		if result.Outcome.Status != types.OutcomeCancelled {
			t.Fatalf("expected cancelled, got %s (%s)", result.Outcome.Status, result.Outcome.Message)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pipe did not terminate after cancellation")
	}
}

func TestExecute_AdapterNotified(t *testing.T) {
	loop := eventloop.New()
	stub := sink.NewStub()
	capture := &captureAdapter{}
	meta := types.NewPipeMeta()
	wire := encodeRecords(t, itemRecords(t, 3)...)

	p := newTestPipe(t, &Config{
		Meta:       meta,
		Loop:       loop,
		Source:     bytechan.OfBytes(loop, wire),
		Sink:       stub,
		FlushCount: 10,
		Adapter:    capture,
	})

	if _, err := p.Execute(t.Context()); err != nil {
		t.Fatalf("execute: %v", err)
	}

	events := capture.published()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	event := events[0]
	if event.EventType != "pipe_completed" {
		t.Errorf("expected pipe_completed, got %s", event.EventType)
	}
	if event.PipeID != meta.PipeID {
		t.Errorf("expected pipe id %s, got %s", meta.PipeID, event.PipeID)
	}
	if event.Outcome != string(types.OutcomeCompleted) {
		t.Errorf("expected completed, got %s", event.Outcome)
	}
	if event.Records != 3 {
		t.Errorf("expected 3 records, got %d", event.Records)
	}
}

func TestExecute_AdapterFailureIsNotFatal(t *testing.T) {
	loop := eventloop.New()
	stub := sink.NewStub()
	wire := encodeRecords(t, itemRecords(t, 1)...)

	p := newTestPipe(t, &Config{
		Loop:       loop,
		Source:     bytechan.OfBytes(loop, wire),
		Sink:       stub,
		FlushCount: 10,
		Adapter:    failingAdapter{},
	})

	result, err := p.Execute(t.Context())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Outcome.Status != types.OutcomeCompleted {
		t.Fatalf("expected completed, got %s", result.Outcome.Status)
	}
}

type failingAdapter struct{}

func (failingAdapter) Publish(context.Context, *adapter.PipeCompletedEvent) error {
	return errors.New("downstream unavailable")
}

func (failingAdapter) Close() error { return nil }

func TestExecute_CollectorCounters(t *testing.T) {
	loop := eventloop.New()
	stub := sink.NewStub()
	collector := metrics.NewCollector("batcher", "stub", "pipe-001")
	wire := encodeRecords(t,
		testRecord(t, 1, types.RecordKindItem),
		testRecord(t, 2, types.RecordKindLog),
		testRecord(t, 3, types.RecordKindItem),
	)

	p := newTestPipe(t, &Config{
		Loop:       loop,
		Source:     bytechan.OfBytes(loop, wire),
		Sink:       stub,
		KeepKinds:  []types.RecordKind{types.RecordKindItem},
		FlushCount: 10,
		Collector:  collector,
	})

	if _, err := p.Execute(t.Context()); err != nil {
		t.Fatalf("execute: %v", err)
	}

	snap := collector.Snapshot()
	if snap.PipesStarted != 1 || snap.PipesCompleted != 1 {
		t.Errorf("expected 1 started and 1 completed, got %d/%d", snap.PipesStarted, snap.PipesCompleted)
	}
	if snap.FramesDecoded != 3 {
		t.Errorf("expected 3 frames decoded, got %d", snap.FramesDecoded)
	}
	if snap.RecordsReceived != 3 || snap.RecordsPersisted != 2 || snap.RecordsDropped != 1 {
		t.Errorf("unexpected record counters: received=%d persisted=%d dropped=%d",
			snap.RecordsReceived, snap.RecordsPersisted, snap.RecordsDropped)
	}
	if snap.FlushTriggers["end"] != 1 {
		t.Errorf("expected 1 end-triggered flush, got %d", snap.FlushTriggers["end"])
	}
	if snap.LoopTicks == 0 {
		t.Error("expected loop ticks to be absorbed")
	}
}

func TestNew_Validation(t *testing.T) {
	loop := eventloop.New()
	stub := sink.NewStub()
	source := bytechan.OfBytes(loop, nil)

	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing meta", Config{Loop: loop, Source: source, Sink: stub}},
		{"invalid meta", Config{Meta: &types.PipeMeta{PipeID: "p", Attempt: 0}, Loop: loop, Source: source, Sink: stub}},
		{"missing loop", Config{Meta: types.NewPipeMeta(), Source: source, Sink: stub}},
		{"missing source", Config{Meta: types.NewPipeMeta(), Loop: loop, Sink: stub}},
		{"missing sink", Config{Meta: types.NewPipeMeta(), Loop: loop, Source: source}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(&tt.cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestExecute_InvalidBatcherConfig(t *testing.T) {
	loop := eventloop.New()

	p := newTestPipe(t, &Config{
		Loop:   loop,
		Source: bytechan.OfBytes(loop, nil),
		Sink:   sink.NewStub(),
		// Neither FlushCount nor FlushInterval set.
	})

	if _, err := p.Execute(t.Context()); !errors.Is(err, sink.ErrBatcherInvalidConfig) {
		t.Fatalf("expected batcher config error, got %v", err)
	}
}

func TestExecute_TCPSource_Completed(t *testing.T) {
	loop := eventloop.New()
	stub := sink.NewStub()
	wire := encodeRecords(t, itemRecords(t, 4)...)

	source, addr, err := ListenSource(loop, "127.0.0.1:0", log.NewNop())
	if err != nil {
		t.Fatalf("listen source: %v", err)
	}

	// Feeder peer: connect and stream the framed records, then hang up
	// so the pipe sees a clean end-of-stream.
	var g errgroup.Group
	g.Go(func() error {
		conn, err := net.Dial("tcp", addr.String())
		if err != nil {
			return err
		}
		if _, err := conn.Write(wire); err != nil {
			return err
		}
		return conn.Close()
	})

	p := newTestPipe(t, &Config{
		Loop:       loop,
		Source:     source,
		Sink:       stub,
		FlushCount: 2,
	})

	result, err := p.Execute(t.Context())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("feeder: %v", err)
	}

	if result.Outcome.Status != types.OutcomeCompleted {
		t.Fatalf("expected completed, got %s (%s)", result.Outcome.Status, result.Outcome.Message)
	}
	if result.Received != 4 || result.Persisted != 4 {
		t.Fatalf("received=%d persisted=%d, want 4/4", result.Received, result.Persisted)
	}
}
