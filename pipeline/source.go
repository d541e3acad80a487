package pipeline

import (
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/justapithecus/sluice/bytechan"
	"github.com/justapithecus/sluice/chunk"
	"github.com/justapithecus/sluice/eventloop"
	"github.com/justapithecus/sluice/iox"
	"github.com/justapithecus/sluice/log"
	"github.com/justapithecus/sluice/promise"
	"github.com/justapithecus/sluice/transport"
)

// sourceReadSize is the per-pull read size for reader-backed sources.
const sourceReadSize = 32 * 1024

// ReaderSource exposes rc as a byte channel supplier on l. Reads run
// off-loop via blocking bridges; rc is closed when the supplier reaches
// end-of-stream or is closed.
func ReaderSource(l *eventloop.Loop, rc io.ReadCloser) bytechan.Supplier {
	get := func() *promise.Promise[*chunk.Chunk] {
		return promise.OfBlocking(l, func() (*chunk.Chunk, error) {
			ck := chunk.Alloc(sourceReadSize)
			for {
				n, err := rc.Read(ck.WritableBytes())
				if n > 0 {
					ck.Extend(n)
					return ck, nil
				}
				if err != nil {
					ck.Recycle()
					if err == io.EOF {
						return nil, nil
					}
					return nil, err
				}
			}
		})
	}
	return bytechan.OfGetter(l, get, func(error) { iox.DiscardClose(rc) })
}

// OpenFileSource opens path and exposes it as a byte channel supplier.
func OpenFileSource(l *eventloop.Loop, path string) (bytechan.Supplier, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return ReaderSource(l, f), nil
}

// ListenSource listens on addr and exposes the first accepted
// connection as a byte channel supplier on l. The listener stops
// accepting after one connection; pulls issued before the peer connects
// resolve once it does. The returned address is the bound listen
// address, useful with port 0.
func ListenSource(l *eventloop.Loop, addr string, logger *log.Logger) (bytechan.Supplier, net.Addr, error) {
	accepted := promise.New[*transport.Socket](l)
	srv, err := transport.Serve(l, transport.ServerConfig{
		Addr:       addr,
		AcceptOnce: true,
		Logger:     logger,
	}, func(s *transport.Socket) {
		accepted.Complete(s)
	})
	if err != nil {
		return nil, nil, err
	}

	get := func() *promise.Promise[*chunk.Chunk] {
		return promise.Then(accepted, func(s *transport.Socket) *promise.Promise[*chunk.Chunk] {
			return s.Supplier().Get()
		})
	}
	sup := bytechan.OfGetter(l, get, func(err error) {
		srv.Close()
		accepted.WhenResult(func(s *transport.Socket) {
			s.Supplier().CloseWithError(err)
			s.Consumer().CloseWithError(err)
		})
	})
	return sup, srv.Addr(), nil
}

// dialTimeout bounds each upstream connection attempt.
const dialTimeout = 5 * time.Second

// DialSource connects to one of the given upstream endpoints and
// exposes the connection as a byte channel supplier on l. The endpoint
// is chosen per the strategy; a failed dial moves on to the next
// selection until every endpoint has been tried once.
func DialSource(l *eventloop.Loop, endpoints []string, strategy transport.Strategy, stickyKey string, logger *log.Logger) (bytechan.Supplier, error) {
	selector := transport.NewSelector()
	if err := selector.RegisterPool(&transport.Pool{
		Name:      "source",
		Endpoints: endpoints,
		Strategy:  strategy,
	}); err != nil {
		return nil, err
	}

	var lastErr error
	for range endpoints {
		addr, err := selector.Select("source", stickyKey)
		if err != nil {
			return nil, err
		}
		sock, err := transport.Dial(l, addr, dialTimeout, transport.WithSocketLogger(logger))
		if err != nil {
			lastErr = err
			continue
		}
		// Closing the read side tears down the whole connection.
		return sock.Supplier(), nil
	}
	return nil, fmt.Errorf("no upstream endpoint reachable: %w", lastErr)
}
