package bytechan

import (
	"github.com/justapithecus/sluice/chunk"
	"github.com/justapithecus/sluice/eventloop"
	"github.com/justapithecus/sluice/promise"
)

// acceptorConsumer adapts a push callback into a Consumer, adding the
// single-flight and close bookkeeping around it.
type acceptorConsumer struct {
	loop     *eventloop.Loop
	accept   func(*chunk.Chunk) *promise.Promise[promise.Void]
	onClose  func(error)
	inflight *promise.Promise[promise.Void]
	eosSent  bool
	closed   bool
	closeErr error
}

// OfAcceptor wraps accept, which takes one chunk per call (nil for
// end-of-stream), into a Consumer. onClose, if non-nil, runs once when the
// consumer is closed or fails, and receives the channel error.
func OfAcceptor(l *eventloop.Loop, accept func(*chunk.Chunk) *promise.Promise[promise.Void], onClose func(error)) Consumer {
	return &acceptorConsumer{loop: l, accept: accept, onClose: onClose}
}

func (c *acceptorConsumer) Accept(ck *chunk.Chunk) *promise.Promise[promise.Void] {
	if c.closed {
		return promise.OfError[promise.Void](c.loop, c.closeErr)
	}
	if c.eosSent {
		panic("bytechan: accept after end-of-stream")
	}
	if c.inflight != nil {
		panic("bytechan: concurrent accept")
	}
	if ck == nil {
		c.eosSent = true
	}

	out := promise.New[promise.Void](c.loop)
	c.inflight = out
	c.accept(ck).WhenComplete(func(_ promise.Void, err error) {
		if c.closed {
			return
		}
		c.inflight = nil
		if err != nil {
			c.fail(err)
			out.CompleteError(err)
			return
		}
		out.Complete(promise.Void{})
	})
	return out
}

func (c *acceptorConsumer) CloseWithError(err error) {
	if c.closed {
		return
	}
	c.fail(normalizeCloseErr(err))
	if c.inflight != nil {
		c.inflight.CompleteError(c.closeErr)
		c.inflight = nil
	}
}

func (c *acceptorConsumer) fail(err error) {
	c.closed = true
	c.closeErr = err
	if c.onClose != nil {
		c.onClose(err)
		c.onClose = nil
	}
}

// Collector accumulates every accepted chunk's bytes. It accepts
// immediately, so it exerts no backpressure; intended for tests and
// in-memory assembly.
type Collector struct {
	loop     *eventloop.Loop
	buf      []byte
	done     *promise.Promise[promise.Void]
	eosSeen  bool
	closed   bool
	closeErr error
}

// NewCollector returns an empty collector.
func NewCollector(l *eventloop.Loop) *Collector {
	return &Collector{loop: l, done: promise.New[promise.Void](l)}
}

func (c *Collector) Accept(ck *chunk.Chunk) *promise.Promise[promise.Void] {
	if c.closed {
		return promise.OfError[promise.Void](c.loop, c.closeErr)
	}
	if c.eosSeen {
		panic("bytechan: accept after end-of-stream")
	}
	if ck == nil {
		c.eosSeen = true
		c.done.Complete(promise.Void{})
		return promise.Of(c.loop, promise.Void{})
	}
	c.buf = append(c.buf, ck.Bytes()...)
	ck.Recycle()
	return promise.Of(c.loop, promise.Void{})
}

func (c *Collector) CloseWithError(err error) {
	if c.closed || c.eosSeen {
		return
	}
	c.closed = true
	c.closeErr = normalizeCloseErr(err)
	c.done.CompleteError(c.closeErr)
}

// Bytes returns the accumulated payload.
func (c *Collector) Bytes() []byte { return c.buf }

// Done resolves when end-of-stream is accepted, or rejects with the close
// error.
func (c *Collector) Done() *promise.Promise[promise.Void] { return c.done }
