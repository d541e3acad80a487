package bytechan

import (
	"github.com/justapithecus/sluice/chunk"
	"github.com/justapithecus/sluice/eventloop"
	"github.com/justapithecus/sluice/promise"
)

// pipe is a zero-buffer in-memory channel: Accept parks the chunk until
// the reader's Get takes it, so exactly one chunk is ever in flight.
type pipe struct {
	loop *eventloop.Loop

	// handoff slot
	stored    *chunk.Chunk
	storedEOS bool

	acceptP *promise.Promise[promise.Void] // settles when the slot drains
	getP    *promise.Promise[*chunk.Chunk] // settles when a chunk arrives

	eosSeen  bool
	closed   bool
	closeErr error
}

type pipeSupplier struct{ p *pipe }
type pipeConsumer struct{ p *pipe }

// NewPipe returns the two ends of an in-memory byte channel bound to l.
// Chunks move from the Consumer end to the Supplier end with zero
// intermediate buffering: the write side's Accept promise settles only
// when the read side takes the chunk, which is the backpressure.
func NewPipe(l *eventloop.Loop) (Supplier, Consumer) {
	p := &pipe{loop: l}
	return &pipeSupplier{p}, &pipeConsumer{p}
}

func (s *pipeSupplier) Get() *promise.Promise[*chunk.Chunk] { return s.p.get() }
func (s *pipeSupplier) CloseWithError(err error)            { s.p.close(err) }

func (c *pipeConsumer) Accept(ck *chunk.Chunk) *promise.Promise[promise.Void] {
	return c.p.accept(ck)
}
func (c *pipeConsumer) CloseWithError(err error) { c.p.close(err) }

func (p *pipe) get() *promise.Promise[*chunk.Chunk] {
	if p.closed {
		return promise.OfError[*chunk.Chunk](p.loop, p.closeErr)
	}
	if p.eosSeen {
		panic("bytechan: get after end-of-stream")
	}
	if p.getP != nil {
		panic("bytechan: concurrent get")
	}

	if p.stored != nil {
		ck := p.stored
		p.stored = nil
		accepted := p.acceptP
		p.acceptP = nil
		accepted.Complete(promise.Void{})
		return promise.Of(p.loop, ck)
	}
	if p.storedEOS {
		p.eosSeen = true
		return promise.Of[*chunk.Chunk](p.loop, nil)
	}

	p.getP = promise.New[*chunk.Chunk](p.loop)
	return p.getP
}

func (p *pipe) accept(ck *chunk.Chunk) *promise.Promise[promise.Void] {
	if p.closed {
		return promise.OfError[promise.Void](p.loop, p.closeErr)
	}
	if p.storedEOS {
		panic("bytechan: accept after end-of-stream")
	}
	if p.acceptP != nil {
		panic("bytechan: concurrent accept")
	}

	if ck == nil {
		p.storedEOS = true
		if p.getP != nil {
			waiting := p.getP
			p.getP = nil
			p.eosSeen = true
			waiting.Complete(nil)
		}
		return promise.Of(p.loop, promise.Void{})
	}

	if p.getP != nil {
		waiting := p.getP
		p.getP = nil
		waiting.Complete(ck)
		return promise.Of(p.loop, promise.Void{})
	}

	p.stored = ck
	p.acceptP = promise.New[promise.Void](p.loop)
	return p.acceptP
}

func (p *pipe) close(err error) {
	if p.closed {
		if err != nil {
			p.loop.Logger().Debug("suppressed error", map[string]any{"error": err.Error()})
		}
		return
	}
	p.closed = true
	p.closeErr = normalizeCloseErr(err)

	if p.stored != nil {
		p.stored.Recycle()
		p.stored = nil
	}
	if p.acceptP != nil {
		p.acceptP.CompleteError(p.closeErr)
		p.acceptP = nil
	}
	if p.getP != nil {
		p.getP.CompleteError(p.closeErr)
		p.getP = nil
	}
}
