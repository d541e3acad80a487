// Package promise provides the single-assignment result cell used by all
// asynchronous operations in this module.
//
// A Promise is either pending, fulfilled with a value, or rejected with an
// error. It settles exactly once; completing a settled promise panics,
// because in a single-owner model a double completion is a caller bug, not
// a runtime condition.
//
// Continuations never run inline. Attaching a callback to a promise, even
// one that has already settled, schedules the callback as a fresh event
// loop task. Code observing a promise therefore always sees consistent
// state: no callback reentrancy, no settled-during-attach surprises.
//
// Promises are loop-affine. Create, complete and observe them only on the
// loop goroutine; use OfBlocking to bridge results in from other
// goroutines.
package promise

import (
	"github.com/justapithecus/sluice/eventloop"
)

// Void is the result type of promises that signal completion only.
type Void = struct{}

type state int

const (
	statePending state = iota
	stateFulfilled
	stateRejected
)

// Promise is a single-assignment container for an eventual value or error.
type Promise[T any] struct {
	loop  *eventloop.Loop
	st    state
	value T
	err   error
	subs  []func(T, error)
}

// New returns a pending promise bound to l. The creator settles it with
// Complete or CompleteError.
func New[T any](l *eventloop.Loop) *Promise[T] {
	return &Promise[T]{loop: l}
}

// Of returns a promise already fulfilled with v. Callbacks attached to it
// still run as scheduled tasks, never inline.
func Of[T any](l *eventloop.Loop, v T) *Promise[T] {
	return &Promise[T]{loop: l, st: stateFulfilled, value: v}
}

// OfError returns a promise already rejected with err.
func OfError[T any](l *eventloop.Loop, err error) *Promise[T] {
	if err == nil {
		panic("promise: OfError with nil error")
	}
	return &Promise[T]{loop: l, st: stateRejected, err: err}
}

// Eventloop returns the loop this promise is bound to.
func (p *Promise[T]) Eventloop() *eventloop.Loop {
	return p.loop
}

// Complete fulfills the promise with v. Panics if the promise has already
// settled.
func (p *Promise[T]) Complete(v T) {
	if p.st != statePending {
		panic("promise: complete on settled promise")
	}
	p.st = stateFulfilled
	p.value = v
	p.dispatch()
}

// CompleteError rejects the promise with err. Panics if err is nil or the
// promise has already settled.
func (p *Promise[T]) CompleteError(err error) {
	if err == nil {
		panic("promise: CompleteError with nil error")
	}
	if p.st != statePending {
		panic("promise: complete on settled promise")
	}
	p.st = stateRejected
	p.err = err
	p.dispatch()
}

// Settle fulfills with v when err is nil and rejects otherwise. It exists
// for bridge code that carries a (value, error) pair.
func (p *Promise[T]) Settle(v T, err error) {
	if err != nil {
		p.CompleteError(err)
		return
	}
	p.Complete(v)
}

// IsSettled reports whether the promise has been fulfilled or rejected.
func (p *Promise[T]) IsSettled() bool {
	return p.st != statePending
}

// IsRejected reports whether the promise settled with an error.
func (p *Promise[T]) IsRejected() bool {
	return p.st == stateRejected
}

func (p *Promise[T]) dispatch() {
	subs := p.subs
	p.subs = nil
	v, err := p.value, p.err
	for _, sub := range subs {
		sub := sub
		p.loop.Post(func() { sub(v, err) })
	}
}

// subscribe registers f to run as a loop task once the promise settles.
func (p *Promise[T]) subscribe(f func(T, error)) {
	if p.st == statePending {
		p.subs = append(p.subs, f)
		return
	}
	v, err := p.value, p.err
	p.loop.Post(func() { f(v, err) })
}

// WhenResult runs f with the value if the promise fulfills. The returned
// promise settles like the receiver, after f has run.
func (p *Promise[T]) WhenResult(f func(T)) *Promise[T] {
	out := New[T](p.loop)
	p.subscribe(func(v T, err error) {
		if err != nil {
			out.CompleteError(err)
			return
		}
		f(v)
		out.Complete(v)
	})
	return out
}

// WhenException runs f with the error if the promise rejects. The returned
// promise settles like the receiver, after f has run.
func (p *Promise[T]) WhenException(f func(error)) *Promise[T] {
	out := New[T](p.loop)
	p.subscribe(func(v T, err error) {
		if err != nil {
			f(err)
			out.CompleteError(err)
			return
		}
		out.Complete(v)
	})
	return out
}

// WhenComplete runs f with the outcome, fulfilled or rejected. The returned
// promise settles like the receiver, after f has run.
func (p *Promise[T]) WhenComplete(f func(T, error)) *Promise[T] {
	out := New[T](p.loop)
	p.subscribe(func(v T, err error) {
		f(v, err)
		if err != nil {
			out.CompleteError(err)
			return
		}
		out.Complete(v)
	})
	return out
}

// Map returns a promise fulfilled with f applied to p's value. A rejection
// passes through untouched.
//
// Map is a free function because Go methods cannot introduce type
// parameters.
func Map[T, R any](p *Promise[T], f func(T) R) *Promise[R] {
	out := New[R](p.loop)
	p.subscribe(func(v T, err error) {
		if err != nil {
			out.CompleteError(err)
			return
		}
		out.Complete(f(v))
	})
	return out
}

// Then chains an asynchronous continuation: once p fulfills, f runs and the
// returned promise adopts the outcome of the promise f produces. A
// rejection of p skips f and passes through.
func Then[T, R any](p *Promise[T], f func(T) *Promise[R]) *Promise[R] {
	out := New[R](p.loop)
	p.subscribe(func(v T, err error) {
		if err != nil {
			out.CompleteError(err)
			return
		}
		f(v).subscribe(func(r R, err error) {
			if err != nil {
				out.CompleteError(err)
				return
			}
			out.Complete(r)
		})
	})
	return out
}
