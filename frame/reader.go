package frame

import (
	"errors"

	"github.com/justapithecus/sluice/bytechan"
	"github.com/justapithecus/sluice/chunk"
	"github.com/justapithecus/sluice/eventloop"
	"github.com/justapithecus/sluice/promise"
)

// Reader buffers bytes pulled from a channel and feeds them to decoders.
// Buffering is demand-driven: a pull is issued only when the current
// decoder has reported ErrNeedMoreData against everything already
// buffered, and surplus bytes after a parse stay put for the next one.
type Reader struct {
	loop *eventloop.Loop
	sup  bytechan.Supplier

	buf *chunk.Chunk // working buffer; nil until first append
	eos bool         // supplier delivered end-of-stream

	parsing  bool
	closed   bool
	closeErr error
}

// NewReader returns a reader pulling from sup.
func NewReader(l *eventloop.Loop, sup bytechan.Supplier) *Reader {
	return &Reader{loop: l, sup: sup}
}

// Buffered reports the number of bytes held but not yet consumed.
func (r *Reader) Buffered() int {
	if r.buf == nil {
		return 0
	}
	return r.buf.Readable()
}

// CloseWithError releases the buffer and closes the underlying channel.
// Idempotent; the first error wins and a nil err means cancellation.
func (r *Reader) CloseWithError(err error) {
	if r.closed {
		return
	}
	r.closed = true
	if err == nil {
		err = promise.ErrCancelled
	}
	r.closeErr = err
	if r.buf != nil {
		r.buf.Recycle()
		r.buf = nil
	}
	r.sup.CloseWithError(err)
}

// Parse decodes one value with d. If the buffered bytes already satisfy
// the decoder, no pull is issued; otherwise chunks are pulled one at a
// time until the decoder is satisfied, the input proves malformed, or the
// channel ends.
//
// End-of-stream while the decoder still wants bytes rejects with
// ErrUnexpectedEndOfStream. A malformed rejection leaves the buffer
// position undefined; the caller must close the reader.
//
// One parse at a time: calling Parse again before the previous promise
// settles panics.
func Parse[T any](r *Reader, d Decoder[T]) *promise.Promise[T] {
	if r.closed {
		return promise.OfError[T](r.loop, r.closeErr)
	}
	if r.parsing {
		panic("frame: concurrent parse")
	}
	r.parsing = true

	out := promise.New[T](r.loop)
	var attempt func()
	attempt = func() {
		v, n, err := d(r.window())
		switch {
		case err == nil:
			if n > 0 {
				r.buf.Advance(n)
			}
			r.parsing = false
			out.Complete(v)
		case errors.Is(err, ErrNeedMoreData):
			if r.eos {
				r.parsing = false
				out.CompleteError(ErrUnexpectedEndOfStream)
				return
			}
			r.sup.Get().WhenComplete(func(ck *chunk.Chunk, gerr error) {
				if r.closed {
					if ck != nil {
						ck.Recycle()
					}
					out.CompleteError(r.closeErr)
					return
				}
				if gerr != nil {
					r.parsing = false
					out.CompleteError(gerr)
					return
				}
				if ck == nil {
					r.eos = true
				} else {
					r.push(ck)
				}
				attempt()
			})
		default:
			r.parsing = false
			out.CompleteError(err)
		}
	}
	attempt()
	return out
}

// window returns the buffered byte view, possibly empty.
func (r *Reader) window() []byte {
	if r.buf == nil {
		return nil
	}
	return r.buf.Bytes()
}

// push appends ck's readable bytes to the working buffer. When the buffer
// is empty the incoming chunk is adopted outright, so the single-chunk
// fast path copies nothing.
func (r *Reader) push(ck *chunk.Chunk) {
	if r.buf == nil {
		r.buf = ck
		return
	}
	if r.buf.Readable() == 0 {
		r.buf.Recycle()
		r.buf = ck
		return
	}
	r.buf.EnsureWritable(ck.Readable())
	r.buf.Write(ck.Bytes())
	ck.Recycle()
}
