package transport

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/justapithecus/sluice/bytechan"
	"github.com/justapithecus/sluice/chunk"
	"github.com/justapithecus/sluice/eventloop"
	"github.com/justapithecus/sluice/iox"
	"github.com/justapithecus/sluice/log"
	"github.com/justapithecus/sluice/promise"
)

// DefaultReadSize is the per-pull read buffer capacity.
const DefaultReadSize = 32 * 1024

// Option configures a Socket.
type Option func(*Socket)

// WithReadSize sets the chunk capacity used for each read pull.
func WithReadSize(n int) Option {
	return func(s *Socket) {
		if n > 0 {
			s.readSize = n
		}
	}
}

// WithSocketLogger sets the logger for socket lifecycle events.
func WithSocketLogger(lg *log.Logger) Option {
	return func(s *Socket) {
		if lg != nil {
			s.logger = lg
		}
	}
}

// Socket exposes one connection as a pair of byte channel endpoints
// bound to a loop.
type Socket struct {
	loop     *eventloop.Loop
	conn     net.Conn
	logger   *log.Logger
	readSize int

	sup bytechan.Supplier
	con bytechan.Consumer

	closeOnce sync.Once
}

// NewSocket wraps an established connection. The socket takes ownership
// of conn and closes it when either endpoint closes.
func NewSocket(l *eventloop.Loop, conn net.Conn, opts ...Option) *Socket {
	s := &Socket{
		loop:     l,
		conn:     conn,
		logger:   log.NewNop(),
		readSize: DefaultReadSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sup = bytechan.OfGetter(l, s.read, s.teardown)
	s.con = bytechan.OfAcceptor(l, s.write, s.teardown)
	return s
}

// Dial connects to addr over TCP and wraps the connection.
func Dial(l *eventloop.Loop, addr string, timeout time.Duration, opts ...Option) (*Socket, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, &Error{Op: "dial", Addr: addr, Err: err}
	}
	return NewSocket(l, conn, opts...), nil
}

// Supplier returns the read side. A Get pull resolves with the next
// chunk off the wire, or nil once the peer closes its write side.
func (s *Socket) Supplier() bytechan.Supplier { return s.sup }

// Consumer returns the write side. Accept(nil) half-closes the
// connection so the peer reads end-of-stream.
func (s *Socket) Consumer() bytechan.Consumer { return s.con }

// LocalAddr returns the local address of the connection.
func (s *Socket) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// RemoteAddr returns the peer address of the connection.
func (s *Socket) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

// Close cancels both endpoints and closes the connection. Outstanding
// pulls and writes reject with the cancellation error.
func (s *Socket) Close() {
	s.sup.CloseWithError(nil)
	s.con.CloseWithError(nil)
}

// read pulls one chunk off the wire on a goroutine. A read returning
// data alongside an error delivers the data; the error surfaces on the
// next pull.
func (s *Socket) read() *promise.Promise[*chunk.Chunk] {
	return promise.OfBlocking(s.loop, func() (*chunk.Chunk, error) {
		ck := chunk.Alloc(s.readSize)
		for {
			n, err := s.conn.Read(ck.WritableBytes())
			if n > 0 {
				ck.Extend(n)
				return ck, nil
			}
			if err != nil {
				ck.Recycle()
				if err == io.EOF {
					return nil, nil
				}
				return nil, &Error{Op: "read", Addr: s.remoteAddr(), Err: err}
			}
		}
	})
}

// write pushes one chunk onto the wire on a goroutine, consuming it
// either way; nil half-closes the write direction.
func (s *Socket) write(ck *chunk.Chunk) *promise.Promise[promise.Void] {
	if ck == nil {
		return promise.OfBlocking(s.loop, func() (promise.Void, error) {
			hc, ok := s.conn.(interface{ CloseWrite() error })
			if !ok {
				return promise.Void{}, nil
			}
			if err := hc.CloseWrite(); err != nil {
				return promise.Void{}, &Error{Op: "close_write", Addr: s.remoteAddr(), Err: err}
			}
			return promise.Void{}, nil
		})
	}
	return promise.OfBlocking(s.loop, func() (promise.Void, error) {
		defer ck.Recycle()
		if _, err := s.conn.Write(ck.Bytes()); err != nil {
			return promise.Void{}, &Error{Op: "write", Addr: s.remoteAddr(), Err: err}
		}
		return promise.Void{}, nil
	})
}

// teardown closes the connection once, whichever endpoint fails or
// closes first.
func (s *Socket) teardown(err error) {
	s.closeOnce.Do(func() {
		s.logger.Debug("socket closed", map[string]any{
			"remote_addr": s.remoteAddr(),
			"reason":      err.Error(),
		})
		iox.DiscardClose(s.conn)
	})
}

func (s *Socket) remoteAddr() string {
	if addr := s.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
