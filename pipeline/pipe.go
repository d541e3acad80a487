// Package pipeline orchestrates one end-to-end pipe execution: a byte
// source decoded into framed records, sequence-validated, filtered, and
// batched into a sink, all driven by a single event loop.
//
// The pipeline owns outcome determination: the first error on the
// connected graph decides the outcome kind (stream, sink or cancelled),
// later errors on the same collapse are suppressed and traced.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/justapithecus/sluice/adapter"
	"github.com/justapithecus/sluice/bytechan"
	"github.com/justapithecus/sluice/eventloop"
	"github.com/justapithecus/sluice/frame"
	"github.com/justapithecus/sluice/log"
	"github.com/justapithecus/sluice/metrics"
	"github.com/justapithecus/sluice/promise"
	"github.com/justapithecus/sluice/sink"
	"github.com/justapithecus/sluice/stream"
	"github.com/justapithecus/sluice/types"
)

// adapterPublishTimeout bounds the post-completion adapter notification.
const adapterPublishTimeout = 10 * time.Second

// Config configures a single pipe execution.
type Config struct {
	// Meta is the pipe identity and lineage metadata (required).
	Meta *types.PipeMeta
	// Loop is the event loop everything runs on (required). Execute
	// calls Run on it; the caller must not run it concurrently.
	Loop *eventloop.Loop
	// Source is the byte channel the framed records arrive on
	// (required). Must be bound to Loop.
	Source bytechan.Supplier
	// Sink persists the surviving records (required).
	Sink sink.Sink
	// KeepKinds lists the record kinds forwarded to the sink. Empty
	// keeps every kind.
	KeepKinds []types.RecordKind
	// FlushCount and FlushInterval configure the sink batcher. At
	// least one must be set.
	FlushCount    int
	FlushInterval time.Duration
	// Adapter, if non-nil, is notified once after outcome
	// determination. Publish failures are logged, never fatal.
	Adapter adapter.Adapter
	// Logger is an optional logger. Defaults to no-op.
	Logger *log.Logger
	// Collector is the metrics collector for this pipe. Nil disables
	// metrics (all Collector methods are nil-safe).
	Collector *metrics.Collector
}

// Result is the outcome of one pipe execution.
type Result struct {
	// Meta is the pipe identity and lineage.
	Meta *types.PipeMeta
	// Outcome is the pipe outcome.
	Outcome *types.PipeOutcome
	// Received is the number of records decoded off the wire.
	Received int64
	// Persisted is the number of records the sink confirmed.
	Persisted int64
	// Dropped is the number of records removed by the kind filter.
	Dropped int64
	// Duration is the total pipe duration.
	Duration time.Duration
	// BatcherStats are the sink batcher counters.
	BatcherStats sink.BatcherStats
}

// Pipe executes one source-to-sink transfer.
type Pipe struct {
	config *Config
	logger *log.Logger
}

// New validates the configuration and returns a pipe ready to execute.
func New(cfg *Config) (*Pipe, error) {
	if cfg.Meta == nil {
		return nil, errors.New("pipeline: pipe metadata is required")
	}
	if err := cfg.Meta.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipe metadata: %w", err)
	}
	if cfg.Loop == nil {
		return nil, errors.New("pipeline: event loop is required")
	}
	if cfg.Source == nil {
		return nil, errors.New("pipeline: source is required")
	}
	if cfg.Sink == nil {
		return nil, errors.New("pipeline: sink is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Pipe{config: cfg, logger: logger}, nil
}

// Execute runs the pipe to completion on the calling goroutine, which
// becomes the loop goroutine for the duration. Context cancellation
// closes the source and collapses the graph with a cancellation error;
// every outstanding promise settles before Execute returns.
func (p *Pipe) Execute(ctx context.Context) (*Result, error) {
	cfg := p.config
	loop := cfg.Loop
	start := time.Now()
	cfg.Collector.IncPipeStarted()

	p.logger.Info("starting pipe", map[string]any{
		"flush_count":    cfg.FlushCount,
		"flush_interval": cfg.FlushInterval.String(),
		"keep_kinds":     len(cfg.KeepKinds),
	})

	reader := frame.NewReader(loop, cfg.Source)
	records := p.recordSupplier(reader)

	var received, dropped int64
	keep := keepPredicate(cfg.KeepKinds)
	filter := stream.Filter(loop, func(rec *types.Record) bool {
		received++
		if keep(rec.Kind) {
			return true
		}
		dropped++
		return false
	})

	batcher, err := sink.NewBatcher(loop, cfg.Sink, sink.BatcherConfig{
		FlushCount:    cfg.FlushCount,
		FlushInterval: cfg.FlushInterval,
		Context:       ctx,
		Logger:        p.logger,
	})
	if err != nil {
		return nil, err
	}

	var pumpErr error
	stream.StreamTo(loop, stream.TransformWith(loop, records, filter), stream.Consumer[*types.Record](batcher)).
		WhenComplete(func(_ promise.Void, err error) { pumpErr = err })

	// Cancellation bridge: a context cancel closes the reader from
	// outside the loop, which rejects the in-flight parse and collapses
	// the graph. The watcher stands down once the loop drains.
	settled := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			loop.Execute(func() {
				reader.CloseWithError(&PipeError{Kind: KindCancelled, Err: context.Cause(ctx)})
			})
		case <-settled:
		}
	}()

	loop.Run()
	close(settled)

	// Release the source on the success path too; a closed reader is
	// idempotent about it.
	reader.CloseWithError(nil)

	outcome := p.determineOutcome(pumpErr, batcher)
	stats := batcher.Stats()
	cfg.Collector.AbsorbLoopCounters(loop.Ticks(), loop.TasksExecuted(), loop.TimersFired())
	cfg.Collector.AbsorbPolicyStats(received, stats.RecordsPersisted, dropped, nil, stats.FlushTriggers)

	result := &Result{
		Meta:         cfg.Meta,
		Outcome:      outcome,
		Received:     received,
		Persisted:    stats.RecordsPersisted,
		Dropped:      dropped,
		Duration:     time.Since(start),
		BatcherStats: stats,
	}

	p.logger.Info("pipe finished", map[string]any{
		"outcome":   string(outcome.Status),
		"received":  received,
		"persisted": result.Persisted,
		"dropped":   dropped,
		"duration":  result.Duration.String(),
	})

	p.notifyAdapter(ctx, result)
	return result, nil
}

// recordSupplier adapts the frame reader into a record stream: one
// parsed frame per pull, with strict sequence validation. Sequence
// numbers must be monotonic from 1; a violation is a stream error, not
// a recoverable glitch.
func (p *Pipe) recordSupplier(reader *frame.Reader) stream.Supplier[*types.Record] {
	cfg := p.config
	loop := cfg.Loop
	decoder := frame.OfMsgpack[types.Record]()
	var currentSeq int64

	next := func() *promise.Promise[stream.Item[*types.Record]] {
		out := promise.New[stream.Item[*types.Record]](loop)
		frame.Parse(reader, decoder).WhenComplete(func(rec *types.Record, err error) {
			if err != nil {
				if errors.Is(err, frame.ErrUnexpectedEndOfStream) && reader.Buffered() == 0 {
					// Clean end between frames.
					out.Complete(stream.Item[*types.Record]{})
					return
				}
				cfg.Collector.IncFrameDecodeError()
				out.CompleteError(p.classifyStreamErr(err))
				return
			}
			cfg.Collector.IncFrameDecoded()

			expected := currentSeq + 1
			if rec.Seq != expected {
				p.logger.Error("sequence violation", map[string]any{
					"expected": expected,
					"got":      rec.Seq,
				})
				out.CompleteError(&PipeError{
					Kind: KindStream,
					Err:  fmt.Errorf("sequence violation: expected %d, got %d", expected, rec.Seq),
				})
				return
			}
			currentSeq = rec.Seq
			out.Complete(stream.Item[*types.Record]{Value: rec, OK: true})
		})
		return out
	}

	return stream.OfNext(loop, next, func(err error) {
		reader.CloseWithError(err)
	})
}

// classifyStreamErr wraps transport and decode failures as stream
// errors, passing through errors that already carry a classification.
func (p *Pipe) classifyStreamErr(err error) error {
	var pe *PipeError
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, promise.ErrCancelled) {
		return &PipeError{Kind: KindCancelled, Err: err}
	}
	return &PipeError{Kind: KindStream, Err: err}
}

// determineOutcome maps the pump's terminal error to a pipe outcome.
// The first error on the graph is the one the pump rejected with;
// whatever raced it afterwards was suppressed by idempotent close.
func (p *Pipe) determineOutcome(pumpErr error, batcher *sink.Batcher) *types.PipeOutcome {
	cfg := p.config
	switch {
	case pumpErr == nil:
		cfg.Collector.IncPipeCompleted()
		return &types.PipeOutcome{Status: types.OutcomeCompleted}

	case IsCancelledError(pumpErr) || errors.Is(pumpErr, promise.ErrCancelled) || errors.Is(pumpErr, context.Canceled):
		cfg.Collector.IncPipeCancelled()
		return &types.PipeOutcome{
			Status:  types.OutcomeCancelled,
			Message: fmt.Sprintf("pipe cancelled: %v", pumpErr),
		}

	case IsSinkError(pumpErr) || (batcher.State() == stream.ClosedWithError && errors.Is(pumpErr, batcher.Error())):
		cfg.Collector.IncPipeFailed()
		return &types.PipeOutcome{
			Status:  types.OutcomeSinkError,
			Message: fmt.Sprintf("sink failure: %v", pumpErr),
		}

	default:
		cfg.Collector.IncPipeFailed()
		return &types.PipeOutcome{
			Status:  types.OutcomeStreamError,
			Message: fmt.Sprintf("stream error: %v", pumpErr),
		}
	}
}

// notifyAdapter publishes the pipe-completed event. Best effort: a
// publish failure is logged and swallowed.
func (p *Pipe) notifyAdapter(ctx context.Context, result *Result) {
	cfg := p.config
	if cfg.Adapter == nil {
		return
	}

	event := &adapter.PipeCompletedEvent{
		ContractVersion: types.Version,
		EventType:       "pipe_completed",
		PipeID:          cfg.Meta.PipeID,
		Attempt:         cfg.Meta.Attempt,
		Outcome:         string(result.Outcome.Status),
		Records:         result.Persisted,
		Dropped:         result.Dropped,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		DurationMs:      result.Duration.Milliseconds(),
	}

	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), adapterPublishTimeout)
	defer cancel()
	if err := cfg.Adapter.Publish(publishCtx, event); err != nil {
		p.logger.Warn("adapter publish failed (best effort)", map[string]any{
			"error": err.Error(),
		})
	}
}

// keepPredicate compiles the keep-kinds list into a membership test.
func keepPredicate(kinds []types.RecordKind) func(types.RecordKind) bool {
	if len(kinds) == 0 {
		return func(types.RecordKind) bool { return true }
	}
	set := make(map[types.RecordKind]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}
	return func(k types.RecordKind) bool { return set[k] }
}
