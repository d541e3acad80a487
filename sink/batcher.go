package sink

import (
	"context"
	"errors"
	"time"

	"github.com/justapithecus/sluice/eventloop"
	"github.com/justapithecus/sluice/log"
	"github.com/justapithecus/sluice/promise"
	"github.com/justapithecus/sluice/stream"
	"github.com/justapithecus/sluice/types"
)

// FlushTrigger identifies which trigger caused a flush.
type FlushTrigger string

const (
	// FlushTriggerCount indicates a count-threshold flush.
	FlushTriggerCount FlushTrigger = "count"
	// FlushTriggerInterval indicates an interval-timer flush.
	FlushTriggerInterval FlushTrigger = "interval"
	// FlushTriggerEnd indicates an end-of-stream flush.
	FlushTriggerEnd FlushTrigger = "end"
)

// ErrBatcherInvalidConfig is returned when BatcherConfig is invalid.
var ErrBatcherInvalidConfig = errors.New("invalid batcher config: at least one of FlushCount or FlushInterval must be set")

// BatcherConfig configures a Batcher.
type BatcherConfig struct {
	// FlushCount triggers a flush once N records accumulate.
	// Zero disables count-based flushing.
	FlushCount int

	// FlushInterval triggers a flush on a recurring loop timer.
	// Zero disables interval-based flushing. The timer is a background
	// timer: it never keeps the loop alive on its own.
	FlushInterval time.Duration

	// Context is passed to sink writes. Defaults to context.Background.
	Context context.Context

	// Logger is an optional logger for flush observability.
	Logger *log.Logger
}

// BatcherStats is a snapshot of batcher counters.
type BatcherStats struct {
	// TotalRecords is the number of records accepted.
	TotalRecords int64
	// RecordsPersisted is the number of records the sink confirmed.
	RecordsPersisted int64
	// Flushes is the total number of flush operations issued.
	Flushes int64
	// FlushTriggers counts flushes per trigger kind.
	FlushTriggers map[string]int64
}

// Batcher adapts a Sink into a stream.Consumer for records.
//
// Records accumulate in an in-memory buffer; a flush is issued when the
// count threshold is reached, when the interval timer fires with data
// buffered, or at end-of-stream. Sink writes run off-loop via
// promise.OfBlocking; a count-triggered flush promise doubles as the
// acceptance promise, so upstream backpressure covers sink latency.
//
// A flush failure closes the batcher with the sink error. The first
// error wins; records buffered at failure are dropped (the pipe is
// terminating and partial batches must not be retried out of order).
//
// Batcher is loop-affine like every stream node.
type Batcher struct {
	loop   *eventloop.Loop
	sink   Sink
	config BatcherConfig
	logger *log.Logger

	buf      []*types.Record
	inflight *promise.Promise[promise.Void] // current flush, nil when idle
	timer    *eventloop.ScheduledTask
	ended    bool
	st       stream.EndState
	err      error

	total     int64
	persisted int64
	flushes   int64
	byTrigger map[string]int64
}

// NewBatcher creates a batcher writing to sink on the given loop.
// Returns an error if neither flush trigger is configured.
func NewBatcher(l *eventloop.Loop, s Sink, cfg BatcherConfig) (*Batcher, error) {
	if cfg.FlushCount <= 0 && cfg.FlushInterval <= 0 {
		return nil, ErrBatcherInvalidConfig
	}
	if cfg.Context == nil {
		cfg.Context = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	b := &Batcher{
		loop:      l,
		sink:      s,
		config:    cfg,
		logger:    logger,
		byTrigger: make(map[string]int64),
	}
	if cfg.FlushInterval > 0 {
		b.scheduleInterval()
	}
	return b, nil
}

// Accept buffers one record. When the count threshold is reached the
// returned promise settles only after the sink write completes, which is
// the backpressure bounding buffered data to one batch.
func (b *Batcher) Accept(rec *types.Record) *promise.Promise[promise.Void] {
	if b.st == stream.ClosedWithError {
		return promise.OfError[promise.Void](b.loop, b.err)
	}
	if b.ended {
		panic("sink: accept after end-of-stream")
	}

	b.total++
	b.buf = append(b.buf, rec)
	if b.config.FlushCount > 0 && len(b.buf) >= b.config.FlushCount {
		// Queue behind an interval flush still in the air so batches
		// reach the sink in order.
		if b.inflight != nil {
			return promise.Then(b.inflight, func(promise.Void) *promise.Promise[promise.Void] {
				if b.st != stream.Active {
					return promise.OfError[promise.Void](b.loop, b.err)
				}
				return b.flush(FlushTriggerCount)
			})
		}
		return b.flush(FlushTriggerCount)
	}
	return promise.Of(b.loop, promise.Void{})
}

// End flushes the remaining buffer and resolves once the sink confirms
// it. A failing final flush rejects and closes the batcher with the sink
// error.
func (b *Batcher) End() *promise.Promise[promise.Void] {
	if b.st == stream.ClosedWithError {
		return promise.OfError[promise.Void](b.loop, b.err)
	}
	if b.ended {
		panic("sink: end after end-of-stream")
	}
	b.ended = true
	b.cancelInterval()

	finish := func(promise.Void) *promise.Promise[promise.Void] {
		if b.st == stream.ClosedWithError {
			return promise.OfError[promise.Void](b.loop, b.err)
		}
		done := b.flush(FlushTriggerEnd)
		return done.WhenResult(func(promise.Void) {
			b.st = stream.EndOfStream
		})
	}

	// An interval flush may still be in the air; the final flush queues
	// behind it to keep batches ordered.
	if b.inflight != nil {
		return promise.Then(b.inflight, finish)
	}
	return finish(promise.Void{})
}

// CloseWithError terminates the batcher. Idempotent; the first terminal
// state wins and nil means cancellation. Buffered records are released
// unwritten.
func (b *Batcher) CloseWithError(err error) {
	if b.st != stream.Active {
		return
	}
	if err == nil {
		err = promise.ErrCancelled
	}
	b.fail(err)
}

// State reports the node's terminal status.
func (b *Batcher) State() stream.EndState { return b.st }

// Error returns the close error when State is ClosedWithError.
func (b *Batcher) Error() error { return b.err }

// Stats returns a snapshot of batcher counters.
func (b *Batcher) Stats() BatcherStats {
	triggers := make(map[string]int64, len(b.byTrigger))
	for k, v := range b.byTrigger {
		triggers[k] = v
	}
	return BatcherStats{
		TotalRecords:     b.total,
		RecordsPersisted: b.persisted,
		Flushes:          b.flushes,
		FlushTriggers:    triggers,
	}
}

// flush hands the current buffer to the sink off-loop. The returned
// promise settles when the write completes; a write error closes the
// batcher first.
func (b *Batcher) flush(trigger FlushTrigger) *promise.Promise[promise.Void] {
	batch := b.buf
	b.buf = nil
	if len(batch) == 0 {
		return promise.Of(b.loop, promise.Void{})
	}

	b.flushes++
	b.byTrigger[string(trigger)]++

	ctx := b.config.Context
	done := promise.OfBlocking(b.loop, func() (promise.Void, error) {
		return promise.Void{}, b.sink.WriteRecords(ctx, batch)
	})

	out := promise.New[promise.Void](b.loop)
	b.inflight = out
	done.WhenComplete(func(_ promise.Void, err error) {
		b.inflight = nil
		if err != nil {
			b.logger.Error("sink flush failed", map[string]any{
				"trigger": string(trigger),
				"records": len(batch),
				"error":   err.Error(),
			})
			if b.st == stream.Active {
				b.fail(err)
			}
			out.CompleteError(err)
			return
		}
		b.persisted += int64(len(batch))
		b.logger.Debug("sink flush", map[string]any{
			"trigger": string(trigger),
			"records": len(batch),
		})
		out.Complete(promise.Void{})
	})
	return out
}

// scheduleInterval arms the recurring background flush timer.
func (b *Batcher) scheduleInterval() {
	b.timer = b.loop.PostDelayedBackground(b.config.FlushInterval, func() {
		b.timer = nil
		if b.st != stream.Active || b.ended {
			return
		}
		// Skip a tick while a count flush is in the air; the data is
		// already on its way down.
		if b.inflight == nil && len(b.buf) > 0 {
			b.flush(FlushTriggerInterval)
		}
		b.scheduleInterval()
	})
}

func (b *Batcher) cancelInterval() {
	if b.timer != nil {
		b.timer.Cancel()
		b.timer = nil
	}
}

func (b *Batcher) fail(err error) {
	b.st = stream.ClosedWithError
	b.err = err
	b.buf = nil
	b.cancelInterval()
}

// Verify Batcher implements the stream consumer contract.
var _ stream.Consumer[*types.Record] = (*Batcher)(nil)
