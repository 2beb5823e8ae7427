// Package session implements the session lifecycle and replay defense of
// design §4.2: TTL-bound sessions, a monotonic send sequence counter, and a
// sliding receive window that rejects duplicate or too-far-behind sequence
// numbers while tolerating benign reordering.
package session

import (
	"time"

	"github.com/google/uuid"
)

// State is a session's position in its lifecycle state machine.
type State int

const (
	Initial State = iota
	InitSent
	AckReceived
	ChallengeSent
	Established
	Confirmed
	Ready
	Error
	Expired
)

func (s State) String() string {
	switch s {
	case Initial:
		return "INITIAL"
	case InitSent:
		return "INIT_SENT"
	case AckReceived:
		return "ACK_RECEIVED"
	case ChallengeSent:
		return "CHALLENGE_SENT"
	case Established:
		return "ESTABLISHED"
	case Confirmed:
		return "CONFIRMED"
	case Ready:
		return "READY"
	case Error:
		return "ERROR"
	case Expired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether s cannot transition further once entered (ERROR
// is absorbing; EXPIRED is likewise final).
func (s State) Terminal() bool {
	return s == Error || s == Expired
}

// Session is an authenticated channel between two peers (design §3).
type Session struct {
	SessionID      string
	LocalID        string
	PeerID         string
	State          State
	SessionKey     [32]byte
	CreatedAt      time.Time
	ExpiresAt      time.Time
	LastActivity   time.Time
	NextSendSeq    uint64
	HighestRecvSeq uint64

	window *seqWindow
}

// NewSessionID generates a fresh UUIDv4 session id.
func NewSessionID() string {
	return uuid.New().String()
}

// seqWindow tracks which of the last W received sequence numbers have
// already been accepted, to reject duplicates while tolerating reordering
// within the window (design §4.2, §8 boundary: highest_recv_seq+W+1 rejected).
type seqWindow struct {
	width   int
	highest uint64
	started bool
	seen    map[uint64]struct{}
}

func newSeqWindow(width int) *seqWindow {
	if width <= 0 {
		width = 64
	}
	return &seqWindow{width: width, seen: make(map[uint64]struct{})}
}

// accept reports whether seq is acceptable (not previously seen, not more
// than width behind the highest accepted), and records it on success.
func (w *seqWindow) accept(seq uint64) bool {
	if !w.started {
		w.started = true
		w.highest = seq
		w.seen[seq] = struct{}{}
		return true
	}
	if seq > w.highest {
		// a forward jump of more than width is rejected, not just a trailing
		// one: highest_recv_seq+W+1 is the named reject boundary (design §8).
		if seq-w.highest > uint64(w.width) {
			return false
		}
		// advance the window, pruning entries that fall out of range.
		oldHighest := w.highest
		w.highest = seq
		lowWatermark := uint64(0)
		if uint64(w.width) <= w.highest {
			lowWatermark = w.highest - uint64(w.width) + 1
		}
		for s := range w.seen {
			if s < lowWatermark {
				delete(w.seen, s)
			}
		}
		_ = oldHighest
		w.seen[seq] = struct{}{}
		return true
	}
	// seq <= highest: must be within the trailing window and unseen.
	if w.highest-seq >= uint64(w.width) {
		return false
	}
	if _, dup := w.seen[seq]; dup {
		return false
	}
	w.seen[seq] = struct{}{}
	return true
}
