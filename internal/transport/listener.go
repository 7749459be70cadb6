package transport

import (
	"context"
	"io"
	"net"

	"github.com/reactormesh/devrt/internal/logging"
)

// Listener accepts one TCP connection per inbound message, reads it to
// EOF, and pushes the raw frame text onto Queue for the decoder to pick
// up. This replaces the original's _mq_input_thread, which read into an
// uninitialized pointer instead of a properly sized buffer — a bug
// documented in SPEC_FULL.md §13, not reproduced here.
type Listener struct {
	ln     net.Listener
	Queue  *Queue[string]
	Logger logging.Logger
}

// Listen binds addr ("host:port") and returns a Listener ready to Serve.
func Listen(addr string, queue *Queue[string], logger logging.Logger) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Noop()
	}
	return &Listener{ln: ln, Queue: queue, Logger: logger}, nil
}

// Addr returns the bound network address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Close stops accepting new connections.
func (l *Listener) Close() error { return l.ln.Close() }

// Serve accepts connections until ctx is done or the listener is closed.
// Each connection is handled in its own goroutine so one slow sender
// can't stall delivery of other inbound messages.
func (l *Listener) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		l.ln.Close()
	}()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				return err
			}
		}
		go l.handle(ctx, conn)
	}
}

func (l *Listener) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	data, err := io.ReadAll(conn)
	if err != nil {
		l.Logger.Warn("transport: read failed", "remote", conn.RemoteAddr(), "err", err)
		return
	}
	if len(data) == 0 {
		return
	}
	if err := l.Queue.Push(ctx, string(data)); err != nil {
		l.Logger.Warn("transport: queue push cancelled", "err", err)
	}
}
