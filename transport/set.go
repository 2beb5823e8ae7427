package transport

import (
	"sync"

	"github.com/a2afabric/core/internal/errs"
)

// Set tracks the active connected peers for one local agent, grounded on
// this codebase's peerSet (node/cn/peer.go): register/unregister under a
// single lock, reject duplicate registration, close everything on
// shutdown.
type Set struct {
	mu     sync.RWMutex
	peers  map[string]*Peer
	closed bool
}

// NewSet constructs an empty peer set.
func NewSet() *Set {
	return &Set{peers: make(map[string]*Peer)}
}

// Register adds p to the set, failing if the set is closed or p's ID is
// already registered.
func (s *Set) Register(p *Peer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errs.New(errs.Unavailable, "peer set is closed")
	}
	if _, ok := s.peers[p.ID()]; ok {
		return errs.New(errs.InvalidArgument, "peer %s is already registered", p.ID())
	}
	s.peers[p.ID()] = p
	return nil
}

// Unregister removes and closes the peer with the given id.
func (s *Set) Unregister(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.peers[id]
	if !ok {
		return errs.New(errs.NotFound, "peer %s is not registered", id)
	}
	delete(s.peers, id)
	return p.Close()
}

// Peer returns the registered peer with the given id, if any.
func (s *Set) Peer(id string) (*Peer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.peers[id]
	return p, ok
}

// All returns a snapshot of every registered peer.
func (s *Set) All() []*Peer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Peer, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, p)
	}
	return out
}

// Len reports how many peers are currently registered.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.peers)
}

// Close unregisters and closes every peer, then marks the set closed to
// further registration.
func (s *Set) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.peers {
		p.Close()
		delete(s.peers, id)
	}
	s.closed = true
}
