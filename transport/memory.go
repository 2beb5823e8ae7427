package transport

import (
	"context"

	"github.com/a2afabric/core/internal/errs"
	"github.com/a2afabric/core/message"
)

// MemoryConn is an in-process Conn backed by a channel, used by tests and
// by any single-process deployment that wires agents together directly.
type MemoryConn struct {
	in     chan *message.SecureMessage
	out    chan *message.SecureMessage
	closed chan struct{}
}

// NewMemoryPipe returns two ends of an in-memory duplex pipe: messages sent
// on one end arrive on the other's Receive.
func NewMemoryPipe(buffer int) (*MemoryConn, *MemoryConn) {
	ab := make(chan *message.SecureMessage, buffer)
	ba := make(chan *message.SecureMessage, buffer)
	closed := make(chan struct{})
	a := &MemoryConn{in: ba, out: ab, closed: closed}
	b := &MemoryConn{in: ab, out: ba, closed: closed}
	return a, b
}

func (c *MemoryConn) Send(ctx context.Context, msg *message.SecureMessage) error {
	select {
	case <-c.closed:
		return errs.New(errs.Unavailable, "connection closed")
	default:
	}
	select {
	case c.out <- msg:
		return nil
	case <-c.closed:
		return errs.New(errs.Unavailable, "connection closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *MemoryConn) Receive(ctx context.Context) (*message.SecureMessage, error) {
	select {
	case msg, ok := <-c.in:
		if !ok {
			return nil, errs.New(errs.Unavailable, "connection closed")
		}
		return msg, nil
	case <-c.closed:
		return nil, errs.New(errs.Unavailable, "connection closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *MemoryConn) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	return nil
}
