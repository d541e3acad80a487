package stream

import (
	"github.com/justapithecus/sluice/eventloop"
	"github.com/justapithecus/sluice/promise"
)

// StreamTo wires sup to con and pumps items across until end-of-stream
// or failure. The next item is pulled only after the previous item's
// acceptance settles; this is the backpressure.
//
// The edge owns error propagation: a supplier failure closes the
// consumer with the same error, a rejected acceptance closes the
// supplier, and either way the returned promise rejects with the error
// that collapsed the edge. On success it resolves after the consumer
// acknowledges end-of-stream.
func StreamTo[T any](l *eventloop.Loop, sup Supplier[T], con Consumer[T]) *promise.Promise[promise.Void] {
	out := promise.New[promise.Void](l)
	var pump func()
	pump = func() {
		sup.Next().WhenComplete(func(item Item[T], err error) {
			if err != nil {
				con.CloseWithError(err)
				out.CompleteError(err)
				return
			}
			if !item.OK {
				con.End().WhenComplete(func(_ promise.Void, endErr error) {
					if endErr != nil {
						sup.CloseWithError(endErr)
						out.CompleteError(endErr)
						return
					}
					out.Complete(promise.Void{})
				})
				return
			}
			con.Accept(item.Value).WhenComplete(func(_ promise.Void, acceptErr error) {
				if acceptErr != nil {
					sup.CloseWithError(acceptErr)
					out.CompleteError(acceptErr)
					return
				}
				pump()
			})
		})
	}
	l.Post(pump)
	return out
}

// TransformWith attaches tr to sup and returns the transformed supplier.
// The upstream edge starts pumping immediately; items flow only as fast
// as the returned supplier is pulled, because the transformer hands each
// item over with zero buffering.
func TransformWith[T, R any](l *eventloop.Loop, sup Supplier[T], tr Transformer[T, R]) Supplier[R] {
	StreamTo(l, sup, tr.Input())
	return tr.Output()
}

// ConsumerTransformWith attaches tr in front of con and returns the
// combined consumer.
func ConsumerTransformWith[T, R any](l *eventloop.Loop, tr Transformer[T, R], con Consumer[R]) Consumer[T] {
	StreamTo(l, tr.Output(), con)
	return tr.Input()
}
