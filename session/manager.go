package session

import (
	"sync"
	"time"

	"github.com/a2afabric/core/internal/errs"
	"github.com/a2afabric/core/internal/log"
	"github.com/a2afabric/core/internal/metrics"
)

var logger = log.NewModuleLogger("session")

// Manager owns the lifecycle of established sessions and their replay
// defense state. Each shared map (sessions, nonce cache) is guarded by its
// own mutex; no operation holds two locks simultaneously (design §5).
type Manager struct {
	mu  sync.RWMutex
	ttl time.Duration
	w   int
	byID map[string]*Session

	nonces *nonceCache
}

// NewManager constructs a Manager with the given session TTL and receive
// sequence window width.
func NewManager(ttl time.Duration, sequenceWindow int, replayWindow time.Duration) *Manager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if sequenceWindow <= 0 {
		sequenceWindow = 64
	}
	return &Manager{
		ttl:    ttl,
		w:      sequenceWindow,
		byID:   make(map[string]*Session),
		nonces: newNonceCache(replayWindow),
	}
}

// CreateSession inserts a new READY session under a freshly minted id and
// returns it.
func (m *Manager) CreateSession(localID, peerID string, sessionKey [32]byte) (string, error) {
	return m.CreateSessionWithID(NewSessionID(), localID, peerID, sessionKey)
}

// CreateSessionWithID inserts a new READY session under the given id
// instead of minting a fresh one. Used by the handshake engine so both
// peers install the session under the id they negotiated during the
// handshake, rather than each picking their own.
func (m *Manager) CreateSessionWithID(id, localID, peerID string, sessionKey [32]byte) (string, error) {
	if localID == "" || peerID == "" {
		return "", errs.New(errs.InvalidArgument, "local and peer id required")
	}
	if id == "" {
		return "", errs.New(errs.InvalidArgument, "session id required")
	}
	now := time.Now().UTC()
	s := &Session{
		SessionID:    id,
		LocalID:      localID,
		PeerID:       peerID,
		State:        Ready,
		SessionKey:   sessionKey,
		CreatedAt:    now,
		ExpiresAt:    now.Add(m.ttl),
		LastActivity: now,
		NextSendSeq:  1,
		window:       newSeqWindow(m.w),
	}
	m.mu.Lock()
	m.byID[id] = s
	m.mu.Unlock()
	return id, nil
}

// Get returns the session by id, or SessionNotFound.
func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byID[sessionID]
	if !ok {
		return nil, errs.New(errs.SessionNotFound, "session %s", sessionID)
	}
	return s, nil
}

// Validate reports whether sessionID exists, is not expired, and belongs to
// peerID.
func (m *Manager) Validate(sessionID, peerID string) bool {
	m.mu.RLock()
	s, ok := m.byID[sessionID]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	if s.State.Terminal() {
		return false
	}
	if time.Now().UTC().After(s.ExpiresAt) {
		return false
	}
	return s.PeerID == peerID
}

// ValidateSequence reports whether seq is acceptable on sessionID: not
// previously seen and not more than the window behind the highest received,
// recording it on success.
func (m *Manager) ValidateSequence(sessionID string, seq uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[sessionID]
	if !ok {
		return false, errs.New(errs.SessionNotFound, "session %s", sessionID)
	}
	if s.window == nil {
		s.window = newSeqWindow(m.w)
	}
	ok2 := s.window.accept(seq)
	if ok2 {
		if seq > s.HighestRecvSeq || !s.window.started {
			s.HighestRecvSeq = seq
		}
		s.LastActivity = time.Now().UTC()
	} else {
		metrics.ReplayRejections.Inc()
	}
	return ok2, nil
}

// NextSequence returns the next monotonic send sequence number for
// sessionID and advances the counter.
func (m *Manager) NextSequence(sessionID string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[sessionID]
	if !ok {
		return 0, errs.New(errs.SessionNotFound, "session %s", sessionID)
	}
	seq := s.NextSendSeq
	s.NextSendSeq++
	return seq, nil
}

// Touch refreshes a session's last-activity timestamp.
func (m *Manager) Touch(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.byID[sessionID]; ok {
		s.LastActivity = time.Now().UTC()
	}
}

// SetState transitions sessionID to the given state. ERROR and EXPIRED are
// absorbing: once entered, further transitions are rejected.
func (m *Manager) SetState(sessionID string, newState State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[sessionID]
	if !ok {
		return errs.New(errs.SessionNotFound, "session %s", sessionID)
	}
	if s.State.Terminal() {
		return errs.New(errs.PreconditionFailed, "session %s already in terminal state %s", sessionID, s.State)
	}
	s.State = newState
	return nil
}

// Reap removes expired sessions. Idempotent; safe to call periodically from
// a background worker.
func (m *Manager) Reap() int {
	now := time.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.byID {
		if now.After(s.ExpiresAt) {
			delete(m.byID, id)
			removed++
		}
	}
	if removed > 0 {
		logger.Debug("reaped expired sessions", "count", removed)
	}
	return removed
}

// Count returns the number of tracked sessions (including not-yet-expired
// terminal ones); mainly for tests and observability.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

// CheckReplay applies the message-level replay defense of design §4.2: a
// timestamp older than tolerance is rejected, and a (senderID, nonce) pair
// seen within the replay window is rejected.
func (m *Manager) CheckReplay(senderID, nonce string, timestamp time.Time, tolerance, replayWindow time.Duration) error {
	now := time.Now().UTC()
	// Age is compared at millisecond resolution, so a timestamp exactly at
	// the tolerance is accepted.
	if now.Sub(timestamp).Truncate(time.Millisecond) > tolerance {
		err := errs.New(errs.ReplayDetected, "timestamp %s outside tolerance %s", timestamp, tolerance)
		log.Security(logger, "replay rejected", "sender", senderID, "err", err)
		return err
	}
	if !m.nonces.checkAndRecord(senderID, nonce, now, replayWindow) {
		err := errs.New(errs.ReplayDetected, "duplicate nonce from %s", senderID)
		log.Security(logger, "replay rejected", "sender", senderID, "err", err)
		return err
	}
	return nil
}
