package bytechan

import (
	"github.com/justapithecus/sluice/chunk"
	"github.com/justapithecus/sluice/eventloop"
	"github.com/justapithecus/sluice/promise"
)

// chunksSupplier serves a fixed sequence of chunks followed by
// end-of-stream.
type chunksSupplier struct {
	loop    *eventloop.Loop
	chunks  []*chunk.Chunk
	pos     int
	eosSeen bool
	closed  bool
	closeErr error
}

// OfChunks returns a supplier that yields the given chunks in order, then
// end-of-stream. The supplier takes ownership of the chunks.
func OfChunks(l *eventloop.Loop, chunks ...*chunk.Chunk) Supplier {
	return &chunksSupplier{loop: l, chunks: chunks}
}

// OfBytes returns a supplier yielding a single chunk holding a copy of p,
// then end-of-stream. An empty p yields end-of-stream immediately.
func OfBytes(l *eventloop.Loop, p []byte) Supplier {
	if len(p) == 0 {
		return OfChunks(l)
	}
	ck := chunk.Alloc(len(p))
	ck.Write(p)
	return OfChunks(l, ck)
}

func (s *chunksSupplier) Get() *promise.Promise[*chunk.Chunk] {
	if s.closed {
		return promise.OfError[*chunk.Chunk](s.loop, s.closeErr)
	}
	if s.eosSeen {
		panic("bytechan: get after end-of-stream")
	}
	if s.pos < len(s.chunks) {
		ck := s.chunks[s.pos]
		s.chunks[s.pos] = nil
		s.pos++
		return promise.Of(s.loop, ck)
	}
	s.eosSeen = true
	return promise.Of[*chunk.Chunk](s.loop, nil)
}

func (s *chunksSupplier) CloseWithError(err error) {
	if s.closed {
		if err != nil {
			s.loop.Logger().Debug("suppressed error", map[string]any{"error": err.Error()})
		}
		return
	}
	s.closed = true
	s.closeErr = normalizeCloseErr(err)
	for _, ck := range s.chunks[s.pos:] {
		if ck != nil {
			ck.Recycle()
		}
	}
	s.chunks = nil
}

// getterSupplier adapts a pull callback into a Supplier, adding the
// single-flight and close bookkeeping around it.
type getterSupplier struct {
	loop     *eventloop.Loop
	get      func() *promise.Promise[*chunk.Chunk]
	onClose  func(error)
	inflight *promise.Promise[*chunk.Chunk]
	eosSeen  bool
	closed   bool
	closeErr error
}

// OfGetter wraps get, which produces one chunk per call (nil for
// end-of-stream), into a Supplier. onClose, if non-nil, runs once when the
// supplier is closed or fails, and receives the channel error; use it to
// release the underlying resource.
func OfGetter(l *eventloop.Loop, get func() *promise.Promise[*chunk.Chunk], onClose func(error)) Supplier {
	return &getterSupplier{loop: l, get: get, onClose: onClose}
}

func (s *getterSupplier) Get() *promise.Promise[*chunk.Chunk] {
	if s.closed {
		return promise.OfError[*chunk.Chunk](s.loop, s.closeErr)
	}
	if s.eosSeen {
		panic("bytechan: get after end-of-stream")
	}
	if s.inflight != nil {
		panic("bytechan: concurrent get")
	}

	out := promise.New[*chunk.Chunk](s.loop)
	s.inflight = out
	s.get().WhenComplete(func(ck *chunk.Chunk, err error) {
		if s.closed {
			// The outstanding promise was already rejected by close;
			// a chunk arriving afterwards has no owner left.
			if ck != nil {
				ck.Recycle()
			}
			return
		}
		s.inflight = nil
		if err != nil {
			s.fail(err)
			out.CompleteError(err)
			return
		}
		if ck == nil {
			s.eosSeen = true
		}
		out.Complete(ck)
	})
	return out
}

func (s *getterSupplier) CloseWithError(err error) {
	if s.closed {
		if err != nil {
			s.loop.Logger().Debug("suppressed error", map[string]any{"error": err.Error()})
		}
		return
	}
	s.fail(normalizeCloseErr(err))
	if s.inflight != nil {
		s.inflight.CompleteError(s.closeErr)
		s.inflight = nil
	}
}

// fail records the first channel error and runs the close hook once.
func (s *getterSupplier) fail(err error) {
	s.closed = true
	s.closeErr = err
	if s.onClose != nil {
		s.onClose(err)
		s.onClose = nil
	}
}
