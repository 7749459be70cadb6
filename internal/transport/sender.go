package transport

import (
	"context"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/reactormesh/devrt/internal/logging"
	"github.com/reactormesh/devrt/internal/value"
	"github.com/reactormesh/devrt/internal/wire"
)

// OutboundFrame is one queued "destaddr + envelope body" pair awaiting
// delivery.
type OutboundFrame struct {
	Dest string
	Body string
}

// QueueSender implements vm.Sender by encoding a wire.Message and
// enqueuing it for the Sender loop to deliver. It never dials itself —
// that happens asynchronously in Run, so a VM invocation never blocks
// on a live TCP connection.
type QueueSender struct {
	Output *Queue[OutboundFrame]
	Arena  *value.Arena
}

// Send implements vm.Sender.
func (s *QueueSender) Send(dest string, msg wire.Message) error {
	body, err := msg.Encode(s.Arena)
	if err != nil {
		return err
	}
	return s.Output.Push(context.Background(), OutboundFrame{Dest: dest, Body: body})
}

// Sender drains an output queue and delivers each frame over its own
// TCP connection, matching the original's _mq_output_thread: one dial,
// one write, one close per queued message. Unlike the original (which
// simply drops a frame on a failed connect and moves on), the dial is
// retried with exponential backoff up to MaxDialElapsed before the
// frame is finally abandoned and logged.
type Sender struct {
	Queue          *Queue[OutboundFrame]
	Logger         logging.Logger
	MaxDialElapsed time.Duration
	dialer         func(network, address string) (net.Conn, error)
}

// NewSender returns a Sender draining queue, dialing with net.Dial and
// a 10s backoff ceiling unless overridden.
func NewSender(queue *Queue[OutboundFrame], logger logging.Logger) *Sender {
	if logger == nil {
		logger = logging.Noop()
	}
	return &Sender{
		Queue:          queue,
		Logger:         logger,
		MaxDialElapsed: 10 * time.Second,
		dialer:         net.Dial,
	}
}

// Run drains the queue until ctx is done.
func (s *Sender) Run(ctx context.Context) error {
	for {
		frame, err := s.Queue.Pop(ctx)
		if err != nil {
			return err
		}
		s.deliver(ctx, frame)
	}
}

func (s *Sender) deliver(ctx context.Context, frame OutboundFrame) {
	host, err := destHostPort(frame.Dest)
	if err != nil {
		s.Logger.Error("transport: malformed destination address", "dest", frame.Dest, "err", err)
		return
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = s.MaxDialElapsed
	bo := backoff.WithContext(expBackoff, ctx)

	var conn net.Conn
	dialErr := backoff.Retry(func() error {
		c, err := s.dialer("tcp", host)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}, bo)
	if dialErr != nil {
		s.Logger.Error("transport: dial failed, dropping frame", "dest", frame.Dest, "err", &DialError{Dest: frame.Dest, Cause: dialErr})
		return
	}
	defer conn.Close()

	full := (wire.Frame{DestAddr: frame.Dest, Body: frame.Body}).Encode()
	if _, err := conn.Write([]byte(full)); err != nil {
		s.Logger.Error("transport: write failed, dropping frame", "dest", frame.Dest, "err", err)
	}
}

// destHostPort strips the "tcp://" scheme prefix from a destination
// address, yielding a net.Dial-compatible "host:port" string.
func destHostPort(dest string) (string, error) {
	const scheme = "tcp://"
	if len(dest) <= len(scheme) || dest[:len(scheme)] != scheme {
		return "", &SelfAddressError{Reason: "destination address missing tcp:// scheme: " + dest}
	}
	return dest[len(scheme):], nil
}
