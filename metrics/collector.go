// Package metrics provides per-pipe metrics collection.
//
// The Collector accumulates counters during a single pipe execution. It
// is a leaf package with no internal dependencies. Policy and loop
// counters are absorbed as snapshots at completion rather than recorded
// live, avoiding double-counting.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all collected metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after
// creation.
type Snapshot struct {
	// Pipe lifecycle
	PipesStarted   int64
	PipesCompleted int64
	PipesFailed    int64
	PipesCancelled int64

	// Framing
	FramesDecoded     int64
	FrameDecodeErrors int64

	// Records (absorbed from policy stats at completion)
	RecordsReceived  int64
	RecordsPersisted int64
	RecordsDropped   int64
	DroppedByKind    map[string]int64
	FlushTriggers    map[string]int64

	// Sink, per write call rather than per record
	SinkWriteSuccess int64
	SinkWriteFailure int64

	// Event loop (absorbed at completion)
	LoopTicks       uint64
	LoopTasks       uint64
	LoopTimersFired uint64

	// Dimensions (informational, set at construction)
	Policy string
	Sink   string
	PipeID string
}

// Collector accumulates metrics during a single pipe execution.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver
// safe, so instrumented components never need a nil check.
type Collector struct {
	mu sync.Mutex

	pipesStarted   int64
	pipesCompleted int64
	pipesFailed    int64
	pipesCancelled int64

	framesDecoded     int64
	frameDecodeErrors int64

	recordsReceived  int64
	recordsPersisted int64
	recordsDropped   int64
	droppedByKind    map[string]int64
	flushTriggers    map[string]int64

	sinkWriteSuccess int64
	sinkWriteFailure int64

	loopTicks       uint64
	loopTasks       uint64
	loopTimersFired uint64

	policy string
	sink   string
	pipeID string
}

// NewCollector creates a Collector with dimension labels. policy and
// sink name the configured flush policy and sink backend; pipeID is the
// pipe this collector belongs to.
func NewCollector(policy, sink, pipeID string) *Collector {
	return &Collector{
		droppedByKind: make(map[string]int64),
		policy:        policy,
		sink:          sink,
		pipeID:        pipeID,
	}
}

// --- Pipe lifecycle ---

// IncPipeStarted records a pipe start.
func (c *Collector) IncPipeStarted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.pipesStarted++
	c.mu.Unlock()
}

// IncPipeCompleted records a pipe that drained to end-of-stream.
func (c *Collector) IncPipeCompleted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.pipesCompleted++
	c.mu.Unlock()
}

// IncPipeFailed records a pipe terminated by a stream or sink error.
func (c *Collector) IncPipeFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.pipesFailed++
	c.mu.Unlock()
}

// IncPipeCancelled records a pipe terminated by cancellation.
func (c *Collector) IncPipeCancelled() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.pipesCancelled++
	c.mu.Unlock()
}

// --- Framing ---

// IncFrameDecoded records one successfully decoded frame.
func (c *Collector) IncFrameDecoded() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.framesDecoded++
	c.mu.Unlock()
}

// IncFrameDecodeError records a frame decode failure.
func (c *Collector) IncFrameDecodeError() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.frameDecodeErrors++
	c.mu.Unlock()
}

// --- Sink ---
// Sink counters are per-call, not per-record. A single WriteRecords
// call with N records counts as 1 success. Per-record granularity is
// tracked separately by policy stats.

// IncSinkWriteSuccess records a successful sink write call.
func (c *Collector) IncSinkWriteSuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sinkWriteSuccess++
	c.mu.Unlock()
}

// IncSinkWriteFailure records a failed sink write call.
func (c *Collector) IncSinkWriteFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sinkWriteFailure++
	c.mu.Unlock()
}

// --- Absorbed snapshots ---

// AbsorbPolicyStats copies record counters from a policy stats snapshot
// into the collector. Called once after pipe completion. The
// droppedByKind and flushTriggers map keys are plain strings to keep
// this package free of dependencies on the types and policy packages.
// A nil flushTriggers stays nil in snapshots, marking a policy without
// trigger accounting.
func (c *Collector) AbsorbPolicyStats(total, persisted, dropped int64, droppedByKind, flushTriggers map[string]int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.recordsReceived = total
	c.recordsPersisted = persisted
	c.recordsDropped = dropped
	c.droppedByKind = make(map[string]int64, len(droppedByKind))
	for k, v := range droppedByKind {
		c.droppedByKind[k] = v
	}
	if flushTriggers == nil {
		c.flushTriggers = nil
	} else {
		c.flushTriggers = make(map[string]int64, len(flushTriggers))
		for k, v := range flushTriggers {
			c.flushTriggers[k] = v
		}
	}
	c.mu.Unlock()
}

// AbsorbLoopCounters copies event loop counters into the collector.
// Called once after the loop drains.
func (c *Collector) AbsorbLoopCounters(ticks, tasks, timersFired uint64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.loopTicks = ticks
	c.loopTasks = tasks
	c.loopTimersFired = timersFired
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := make(map[string]int64, len(c.droppedByKind))
	for k, v := range c.droppedByKind {
		dropped[k] = v
	}
	var triggers map[string]int64
	if c.flushTriggers != nil {
		triggers = make(map[string]int64, len(c.flushTriggers))
		for k, v := range c.flushTriggers {
			triggers[k] = v
		}
	}

	return Snapshot{
		PipesStarted:   c.pipesStarted,
		PipesCompleted: c.pipesCompleted,
		PipesFailed:    c.pipesFailed,
		PipesCancelled: c.pipesCancelled,

		FramesDecoded:     c.framesDecoded,
		FrameDecodeErrors: c.frameDecodeErrors,

		RecordsReceived:  c.recordsReceived,
		RecordsPersisted: c.recordsPersisted,
		RecordsDropped:   c.recordsDropped,
		DroppedByKind:    dropped,
		FlushTriggers:    triggers,

		SinkWriteSuccess: c.sinkWriteSuccess,
		SinkWriteFailure: c.sinkWriteFailure,

		LoopTicks:       c.loopTicks,
		LoopTasks:       c.loopTasks,
		LoopTimersFired: c.loopTimersFired,

		Policy: c.policy,
		Sink:   c.sink,
		PipeID: c.pipeID,
	}
}
