package stream

import (
	"github.com/justapithecus/sluice/eventloop"
	"github.com/justapithecus/sluice/promise"
)

// relay is the shared core of a transformer: a zero-buffer handoff slot
// between its consumer face and its supplier face, with one EndState for
// the whole node. apply maps an incoming item to an outgoing one; a
// false keep drops the item without stalling upstream demand.
type relay[T, R any] struct {
	loop  *eventloop.Loop
	apply func(T) (R, bool)

	stored    R
	hasStored bool
	storedEOS bool

	acceptP *promise.Promise[promise.Void] // settles when the slot drains
	nextP   *promise.Promise[Item[R]]      // settles when an item arrives

	st  EndState
	err error
}

type relayInput[T, R any] struct{ r *relay[T, R] }
type relayOutput[T, R any] struct{ r *relay[T, R] }

type relayTransformer[T, R any] struct {
	r   *relay[T, R]
	in  relayInput[T, R]
	out relayOutput[T, R]
}

func newRelay[T, R any](l *eventloop.Loop, apply func(T) (R, bool)) Transformer[T, R] {
	r := &relay[T, R]{loop: l, apply: apply}
	return &relayTransformer[T, R]{r: r, in: relayInput[T, R]{r}, out: relayOutput[T, R]{r}}
}

// Filter returns a transformer forwarding the items matching pred and
// dropping the rest. A dropped item acknowledges upstream immediately, so
// filtering never stalls the demand signal.
func Filter[T any](l *eventloop.Loop, pred func(T) bool) Transformer[T, T] {
	return newRelay[T, T](l, func(v T) (T, bool) { return v, pred(v) })
}

// Mapper returns a transformer applying fn to every item.
func Mapper[T, R any](l *eventloop.Loop, fn func(T) R) Transformer[T, R] {
	return newRelay[T, R](l, func(v T) (R, bool) { return fn(v), true })
}

func (t *relayTransformer[T, R]) Input() Consumer[T]  { return &t.in }
func (t *relayTransformer[T, R]) Output() Supplier[R] { return &t.out }
func (t *relayTransformer[T, R]) State() EndState     { return t.r.st }
func (t *relayTransformer[T, R]) Error() error        { return t.r.err }

func (in *relayInput[T, R]) Accept(item T) *promise.Promise[promise.Void] {
	r := in.r
	if r.st == ClosedWithError {
		return promise.OfError[promise.Void](r.loop, r.err)
	}
	if r.storedEOS {
		panic("stream: accept after end-of-stream")
	}
	if r.acceptP != nil {
		panic("stream: concurrent accept")
	}

	v, keep := r.apply(item)
	if !keep {
		return promise.Of(r.loop, promise.Void{})
	}
	if r.nextP != nil {
		waiting := r.nextP
		r.nextP = nil
		waiting.Complete(Item[R]{Value: v, OK: true})
		return promise.Of(r.loop, promise.Void{})
	}
	r.stored = v
	r.hasStored = true
	r.acceptP = promise.New[promise.Void](r.loop)
	return r.acceptP
}

func (in *relayInput[T, R]) End() *promise.Promise[promise.Void] {
	r := in.r
	if r.st == ClosedWithError {
		return promise.OfError[promise.Void](r.loop, r.err)
	}
	if r.storedEOS {
		panic("stream: end after end-of-stream")
	}
	r.storedEOS = true
	if r.nextP != nil {
		waiting := r.nextP
		r.nextP = nil
		r.st = EndOfStream
		waiting.Complete(Item[R]{})
	}
	return promise.Of(r.loop, promise.Void{})
}

func (in *relayInput[T, R]) CloseWithError(err error) { in.r.close(err) }
func (in *relayInput[T, R]) State() EndState          { return in.r.st }
func (in *relayInput[T, R]) Error() error             { return in.r.err }

func (out *relayOutput[T, R]) Next() *promise.Promise[Item[R]] {
	r := out.r
	switch r.st {
	case ClosedWithError:
		return promise.OfError[Item[R]](r.loop, r.err)
	case EndOfStream:
		panic("stream: next after end-of-stream")
	}
	if r.nextP != nil {
		panic("stream: concurrent next")
	}

	if r.hasStored {
		v := r.stored
		var zero R
		r.stored = zero
		r.hasStored = false
		ack := r.acceptP
		r.acceptP = nil
		ack.Complete(promise.Void{})
		return promise.Of(r.loop, Item[R]{Value: v, OK: true})
	}
	if r.storedEOS {
		r.st = EndOfStream
		return promise.Of(r.loop, Item[R]{})
	}
	r.nextP = promise.New[Item[R]](r.loop)
	return r.nextP
}

func (out *relayOutput[T, R]) CloseWithError(err error) { out.r.close(err) }
func (out *relayOutput[T, R]) State() EndState          { return out.r.st }
func (out *relayOutput[T, R]) Error() error             { return out.r.err }

func (r *relay[T, R]) close(err error) {
	if r.st != Active {
		if err != nil {
			r.loop.Logger().Debug("suppressed error", map[string]any{"error": err.Error()})
		}
		return
	}
	r.st = ClosedWithError
	r.err = normalizeCloseErr(err)
	var zero R
	r.stored = zero
	r.hasStored = false
	if r.acceptP != nil {
		r.acceptP.CompleteError(r.err)
		r.acceptP = nil
	}
	if r.nextP != nil {
		r.nextP.CompleteError(r.err)
		r.nextP = nil
	}
}
