// Package transport moves SecureMessage envelopes between agents over a
// Conn abstraction, grounded on this codebase's peer async-writer pattern
// (node/cn/peer.go's queued Broadcast loop): a bounded outbound queue
// drained by one goroutine per connection so a slow remote peer cannot
// block the caller, with drops counted rather than blocking indefinitely.
package transport

import (
	"context"
	"sync"

	"github.com/a2afabric/core/internal/errs"
	"github.com/a2afabric/core/internal/log"
	"github.com/a2afabric/core/message"
)

var logger = log.NewModuleLogger("transport")

// Conn is the minimum a transport needs from an underlying connection: a
// way to push one framed envelope out and pull one in, blocking on
// ctx.Done or a closed connection.
type Conn interface {
	Send(ctx context.Context, msg *message.SecureMessage) error
	Receive(ctx context.Context) (*message.SecureMessage, error)
	Close() error
}

const (
	defaultQueueSize = 128
)

// Peer wraps a Conn with a bounded async outbound queue, so callers never
// block on a slow remote.
type Peer struct {
	id   string
	conn Conn

	outbound chan *message.SecureMessage
	done     chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	closed bool
	dropped uint64
}

// NewPeer wraps conn and starts its outbound write loop.
func NewPeer(id string, conn Conn) *Peer {
	p := &Peer{
		id:       id,
		conn:     conn,
		outbound: make(chan *message.SecureMessage, defaultQueueSize),
		done:     make(chan struct{}),
	}
	go p.writeLoop()
	return p
}

func (p *Peer) writeLoop() {
	ctx := context.Background()
	for {
		select {
		case msg, ok := <-p.outbound:
			if !ok {
				return
			}
			if err := p.conn.Send(ctx, msg); err != nil {
				logger.Warn("peer send failed", "peer", p.id, "err", err)
				return
			}
		case <-p.done:
			return
		}
	}
}

// Enqueue queues msg for async delivery. If the outbound queue is full,
// the message is dropped and counted rather than blocking the caller
// (design mirrors the teacher's maxQueuedTxs/maxQueuedProps drop policy).
func (p *Peer) Enqueue(msg *message.SecureMessage) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errs.New(errs.Unavailable, "peer %s is closed", p.id)
	}
	p.mu.Unlock()

	select {
	case p.outbound <- msg:
		return nil
	default:
		p.mu.Lock()
		p.dropped++
		p.mu.Unlock()
		logger.Warn("outbound queue full, dropping message", "peer", p.id, "msg_type", msg.MsgType)
		return errs.New(errs.Unavailable, "peer %s outbound queue full", p.id)
	}
}

// Receive reads the next inbound envelope, blocking until one arrives or
// ctx is cancelled.
func (p *Peer) Receive(ctx context.Context) (*message.SecureMessage, error) {
	return p.conn.Receive(ctx)
}

// Dropped reports how many outbound messages were discarded due to a full
// queue.
func (p *Peer) Dropped() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// ID returns the peer's logical identifier.
func (p *Peer) ID() string { return p.id }

// Close stops the write loop and closes the underlying connection.
func (p *Peer) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		close(p.done)
	})
	return p.conn.Close()
}
