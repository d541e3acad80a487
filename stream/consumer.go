package stream

import (
	"github.com/justapithecus/sluice/eventloop"
	"github.com/justapithecus/sluice/promise"
)

// funcConsumer delegates each accepted item to a callback whose promise
// is the acknowledgement, so a slow callback is backpressure.
type funcConsumer[T any] struct {
	loop     *eventloop.Loop
	fn       func(T) *promise.Promise[promise.Void]
	pending  *promise.Promise[promise.Void]
	ended    bool
	st       EndState
	err      error
}

// ConsumerOf wraps fn, which processes one item per call, into a
// Consumer. The item is considered accepted when fn's promise fulfills;
// a rejection fails the consumer with that error.
func ConsumerOf[T any](l *eventloop.Loop, fn func(T) *promise.Promise[promise.Void]) Consumer[T] {
	return &funcConsumer[T]{loop: l, fn: fn}
}

func (c *funcConsumer[T]) Accept(item T) *promise.Promise[promise.Void] {
	if c.st == ClosedWithError {
		return promise.OfError[promise.Void](c.loop, c.err)
	}
	if c.ended {
		panic("stream: accept after end-of-stream")
	}
	if c.pending != nil {
		panic("stream: concurrent accept")
	}

	out := promise.New[promise.Void](c.loop)
	c.pending = out
	c.fn(item).WhenComplete(func(_ promise.Void, err error) {
		if c.st == ClosedWithError {
			return
		}
		c.pending = nil
		if err != nil {
			c.fail(err)
			out.CompleteError(err)
			return
		}
		out.Complete(promise.Void{})
	})
	return out
}

func (c *funcConsumer[T]) End() *promise.Promise[promise.Void] {
	if c.st == ClosedWithError {
		return promise.OfError[promise.Void](c.loop, c.err)
	}
	if c.ended {
		panic("stream: end after end-of-stream")
	}
	if c.pending != nil {
		panic("stream: end while accept in flight")
	}
	c.ended = true
	c.st = EndOfStream
	return promise.Of(c.loop, promise.Void{})
}

func (c *funcConsumer[T]) CloseWithError(err error) {
	if c.st != Active {
		return
	}
	c.fail(normalizeCloseErr(err))
	if c.pending != nil {
		c.pending.CompleteError(c.err)
		c.pending = nil
	}
}

func (c *funcConsumer[T]) fail(err error) {
	c.st = ClosedWithError
	c.err = err
}

func (c *funcConsumer[T]) State() EndState { return c.st }
func (c *funcConsumer[T]) Error() error    { return c.err }

// ListConsumer collects every accepted item. It acknowledges
// immediately, so it exerts no backpressure.
type ListConsumer[T any] struct {
	loop   *eventloop.Loop
	items  []T
	result *promise.Promise[[]T]
	ended  bool
	st     EndState
	err    error
}

// ToList returns a consumer collecting items into a slice. Result
// resolves with the collected items at end-of-stream.
func ToList[T any](l *eventloop.Loop) *ListConsumer[T] {
	return &ListConsumer[T]{loop: l, result: promise.New[[]T](l)}
}

func (c *ListConsumer[T]) Accept(item T) *promise.Promise[promise.Void] {
	if c.st == ClosedWithError {
		return promise.OfError[promise.Void](c.loop, c.err)
	}
	if c.ended {
		panic("stream: accept after end-of-stream")
	}
	c.items = append(c.items, item)
	return promise.Of(c.loop, promise.Void{})
}

func (c *ListConsumer[T]) End() *promise.Promise[promise.Void] {
	if c.st == ClosedWithError {
		return promise.OfError[promise.Void](c.loop, c.err)
	}
	if c.ended {
		panic("stream: end after end-of-stream")
	}
	c.ended = true
	c.st = EndOfStream
	c.result.Complete(c.items)
	return promise.Of(c.loop, promise.Void{})
}

func (c *ListConsumer[T]) CloseWithError(err error) {
	if c.st != Active {
		return
	}
	c.st = ClosedWithError
	c.err = normalizeCloseErr(err)
	// Items already accepted stay visible through Items; only the
	// result promise carries the failure.
	c.result.CompleteError(c.err)
}

func (c *ListConsumer[T]) State() EndState { return c.st }
func (c *ListConsumer[T]) Error() error    { return c.err }

// Result resolves with every accepted item at end-of-stream, or rejects
// with the close error.
func (c *ListConsumer[T]) Result() *promise.Promise[[]T] { return c.result }

// Items returns the items accepted so far.
func (c *ListConsumer[T]) Items() []T { return c.items }
