package stream

import (
	"github.com/justapithecus/sluice/eventloop"
	"github.com/justapithecus/sluice/promise"
)

// sliceSupplier yields a fixed sequence of items followed by
// end-of-stream.
type sliceSupplier[T any] struct {
	loop  *eventloop.Loop
	items []T
	pos   int
	st    EndState
	err   error
}

// OfSlice returns a supplier yielding the given items in order.
func OfSlice[T any](l *eventloop.Loop, items ...T) Supplier[T] {
	return &sliceSupplier[T]{loop: l, items: items}
}

func (s *sliceSupplier[T]) Next() *promise.Promise[Item[T]] {
	switch s.st {
	case ClosedWithError:
		return promise.OfError[Item[T]](s.loop, s.err)
	case EndOfStream:
		panic("stream: next after end-of-stream")
	}
	if s.pos < len(s.items) {
		item := s.items[s.pos]
		s.pos++
		return promise.Of(s.loop, Item[T]{Value: item, OK: true})
	}
	s.st = EndOfStream
	return promise.Of(s.loop, Item[T]{})
}

func (s *sliceSupplier[T]) CloseWithError(err error) {
	if s.st != Active {
		return
	}
	s.st = ClosedWithError
	s.err = normalizeCloseErr(err)
	s.items = nil
}

func (s *sliceSupplier[T]) State() EndState { return s.st }
func (s *sliceSupplier[T]) Error() error    { return s.err }

// errorSupplier is terminal from birth and rejects every Next.
type errorSupplier[T any] struct {
	loop *eventloop.Loop
	err  error
}

// ClosingWithError returns a supplier already in ClosedWithError(err).
// The first Next against it rejects with err, which an attached edge
// propagates to the downstream node.
func ClosingWithError[T any](l *eventloop.Loop, err error) Supplier[T] {
	return &errorSupplier[T]{loop: l, err: normalizeCloseErr(err)}
}

func (s *errorSupplier[T]) Next() *promise.Promise[Item[T]] {
	return promise.OfError[Item[T]](s.loop, s.err)
}

func (s *errorSupplier[T]) CloseWithError(error) {}
func (s *errorSupplier[T]) State() EndState      { return ClosedWithError }
func (s *errorSupplier[T]) Error() error         { return s.err }

// nextSupplier adapts a pull callback into a Supplier, adding the
// single-flight and close bookkeeping around it.
type nextSupplier[T any] struct {
	loop    *eventloop.Loop
	next    func() *promise.Promise[Item[T]]
	onClose func(error)
	pending *promise.Promise[Item[T]]
	st      EndState
	err     error
}

// OfNext wraps next, which produces one item per call (Item.OK false for
// end-of-stream), into a Supplier. onClose, if non-nil, runs once when
// the supplier reaches ClosedWithError, and receives the error; use it
// to release the underlying resource.
func OfNext[T any](l *eventloop.Loop, next func() *promise.Promise[Item[T]], onClose func(error)) Supplier[T] {
	return &nextSupplier[T]{loop: l, next: next, onClose: onClose}
}

func (s *nextSupplier[T]) Next() *promise.Promise[Item[T]] {
	switch s.st {
	case ClosedWithError:
		return promise.OfError[Item[T]](s.loop, s.err)
	case EndOfStream:
		panic("stream: next after end-of-stream")
	}
	if s.pending != nil {
		panic("stream: concurrent next")
	}

	out := promise.New[Item[T]](s.loop)
	s.pending = out
	s.next().WhenComplete(func(item Item[T], err error) {
		if s.st == ClosedWithError {
			// Close already rejected the outstanding promise.
			return
		}
		s.pending = nil
		if err != nil {
			s.fail(err)
			out.CompleteError(err)
			return
		}
		if !item.OK {
			s.st = EndOfStream
		}
		out.Complete(item)
	})
	return out
}

func (s *nextSupplier[T]) CloseWithError(err error) {
	if s.st != Active {
		return
	}
	s.fail(normalizeCloseErr(err))
	if s.pending != nil {
		s.pending.CompleteError(s.err)
		s.pending = nil
	}
}

func (s *nextSupplier[T]) fail(err error) {
	s.st = ClosedWithError
	s.err = err
	if s.onClose != nil {
		s.onClose(err)
		s.onClose = nil
	}
}

func (s *nextSupplier[T]) State() EndState { return s.st }
func (s *nextSupplier[T]) Error() error    { return s.err }

// concatSupplier exhausts each supplier in turn, advancing to the next on
// end-of-stream. An error in any supplier becomes the combined error and
// the suppliers not yet started are closed with it, never pulled.
type concatSupplier[T any] struct {
	loop      *eventloop.Loop
	remaining []Supplier[T]
	cur       Supplier[T]
	pending   *promise.Promise[Item[T]]
	st        EndState
	err       error
}

// Concat returns a supplier yielding every item of each supplier in
// order.
func Concat[T any](l *eventloop.Loop, sups ...Supplier[T]) Supplier[T] {
	return &concatSupplier[T]{loop: l, remaining: sups}
}

func (s *concatSupplier[T]) Next() *promise.Promise[Item[T]] {
	switch s.st {
	case ClosedWithError:
		return promise.OfError[Item[T]](s.loop, s.err)
	case EndOfStream:
		panic("stream: next after end-of-stream")
	}
	if s.pending != nil {
		panic("stream: concurrent next")
	}

	out := promise.New[Item[T]](s.loop)
	s.pending = out
	s.step(out)
	return out
}

// step pulls from the current supplier, advancing across end-of-stream
// boundaries until an item, the final end, or an error arrives.
func (s *concatSupplier[T]) step(out *promise.Promise[Item[T]]) {
	if s.cur == nil {
		if len(s.remaining) == 0 {
			s.st = EndOfStream
			s.pending = nil
			out.Complete(Item[T]{})
			return
		}
		s.cur = s.remaining[0]
		s.remaining = s.remaining[1:]
	}
	s.cur.Next().WhenComplete(func(item Item[T], err error) {
		if s.st == ClosedWithError {
			return
		}
		if err != nil {
			s.pending = nil
			s.fail(err)
			out.CompleteError(err)
			return
		}
		if !item.OK {
			s.cur = nil
			s.step(out)
			return
		}
		s.pending = nil
		out.Complete(item)
	})
}

func (s *concatSupplier[T]) CloseWithError(err error) {
	if s.st != Active {
		return
	}
	s.fail(normalizeCloseErr(err))
	if s.pending != nil {
		s.pending.CompleteError(s.err)
		s.pending = nil
	}
}

// fail records the terminal error and closes the started and unstarted
// suppliers so their resources are released.
func (s *concatSupplier[T]) fail(err error) {
	s.st = ClosedWithError
	s.err = err
	if s.cur != nil {
		s.cur.CloseWithError(err)
		s.cur = nil
	}
	for _, sup := range s.remaining {
		sup.CloseWithError(err)
	}
	s.remaining = nil
}

func (s *concatSupplier[T]) State() EndState { return s.st }
func (s *concatSupplier[T]) Error() error    { return s.err }
