package transport

import (
	"errors"
	"net"
	"sync"

	"github.com/justapithecus/sluice/eventloop"
	"github.com/justapithecus/sluice/iox"
	"github.com/justapithecus/sluice/log"
)

// ServerConfig configures a listening server.
type ServerConfig struct {
	// Addr is the TCP listen address, e.g. "127.0.0.1:0".
	Addr string
	// AcceptOnce stops listening after the first connection. Useful
	// for single-peer handshakes and tests.
	AcceptOnce bool
	// ReadSize overrides the per-socket read buffer capacity.
	ReadSize int
	// Logger is an optional logger for accept lifecycle events.
	Logger *log.Logger
}

// Server accepts connections and hands each one to the handler as a
// Socket on the loop thread.
type Server struct {
	loop    *eventloop.Loop
	ln      net.Listener
	logger  *log.Logger
	handler func(*Socket)
	cfg     ServerConfig

	release   func()
	closeOnce sync.Once
}

// Serve listens on cfg.Addr and dispatches accepted connections to
// handler. The loop stays alive while the listener is open.
func Serve(l *eventloop.Loop, cfg ServerConfig, handler func(*Socket)) (*Server, error) {
	if handler == nil {
		return nil, errors.New("transport: nil connection handler")
	}
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, &Error{Op: "listen", Addr: cfg.Addr, Err: err}
	}

	s := &Server{
		loop:    l,
		ln:      ln,
		logger:  cfg.Logger,
		handler: handler,
		cfg:     cfg,
	}
	if s.logger == nil {
		s.logger = log.NewNop()
	}
	s.release = l.KeepAlive()
	go s.acceptLoop()
	return s, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Close stops accepting. Sockets already handed out stay open.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		iox.DiscardClose(s.ln)
	})
}

func (s *Server) acceptLoop() {
	defer s.release()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.logger.Warn("accept failed", map[string]any{"error": err.Error()})
			}
			return
		}

		var opts []Option
		if s.cfg.ReadSize > 0 {
			opts = append(opts, WithReadSize(s.cfg.ReadSize))
		}
		s.loop.Execute(func() {
			s.handler(NewSocket(s.loop, conn, opts...))
		})

		if s.cfg.AcceptOnce {
			s.Close()
			return
		}
	}
}
