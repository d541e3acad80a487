package promise

import (
	"time"

	"github.com/justapithecus/sluice/eventloop"
)

// Loop drives an asynchronous iteration. Starting from seed, while
// cond(value) holds it runs step(value) and feeds the fulfilled result back
// in; once cond fails the returned promise fulfills with the final value.
// If any step rejects, iteration stops and the rejection propagates.
//
// Every iteration is dispatched as its own loop task, so arbitrarily long
// iterations do not grow the stack.
func Loop[T any](l *eventloop.Loop, seed T, cond func(T) bool, step func(T) *Promise[T]) *Promise[T] {
	out := New[T](l)
	var iterate func(T)
	iterate = func(v T) {
		if !cond(v) {
			out.Complete(v)
			return
		}
		step(v).subscribe(func(next T, err error) {
			if err != nil {
				out.CompleteError(err)
				return
			}
			iterate(next)
		})
	}
	l.Post(func() { iterate(seed) })
	return out
}

// WithTimeout returns a promise that adopts p's outcome, unless d elapses
// first, in which case it rejects with ErrTimeout. The deadline timer is
// withdrawn as soon as p settles.
func WithTimeout[T any](p *Promise[T], d time.Duration) *Promise[T] {
	out := New[T](p.loop)
	timer := p.loop.PostDelayed(d, func() {
		if !out.IsSettled() {
			out.CompleteError(ErrTimeout)
		}
	})
	p.subscribe(func(v T, err error) {
		timer.Cancel()
		if out.IsSettled() {
			// Deadline fired first; the late outcome is dropped.
			return
		}
		if err != nil {
			out.CompleteError(err)
			return
		}
		out.Complete(v)
	})
	return out
}

// OfBlocking runs fn on its own goroutine and settles the returned promise
// back on the loop. The loop is kept alive until the result lands, so Run
// does not exit with the call still in flight.
func OfBlocking[T any](l *eventloop.Loop, fn func() (T, error)) *Promise[T] {
	out := New[T](l)
	release := l.KeepAlive()
	go func() {
		v, err := fn()
		l.Execute(func() { out.Settle(v, err) })
		release()
	}()
	return out
}

// All fulfills once every promise fulfills, or rejects with the first
// rejection. Rejections arriving after the first are dropped and traced at
// debug level.
func All(l *eventloop.Loop, ps ...*Promise[Void]) *Promise[Void] {
	if len(ps) == 0 {
		return Of(l, Void{})
	}
	out := New[Void](l)
	remaining := len(ps)
	for _, p := range ps {
		p.subscribe(func(_ Void, err error) {
			if out.IsSettled() {
				if err != nil {
					l.Logger().Debug("suppressed error", map[string]any{"error": err.Error()})
				}
				return
			}
			if err != nil {
				out.CompleteError(err)
				return
			}
			remaining--
			if remaining == 0 {
				out.Complete(Void{})
			}
		})
	}
	return out
}
