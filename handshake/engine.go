// Package handshake implements the six-step key-agreement protocol of
// design §4.3: mutual Ed25519 authentication plus X25519 ephemeral key
// agreement, producing a session installed in the session manager. The
// state machine is single-threaded per session under a per-session mutex,
// matching design §5.
package handshake

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/json"
	"sort"
	"sync"
	"time"

	agentcrypto "github.com/a2afabric/core/crypto"
	"github.com/a2afabric/core/internal/errs"
	"github.com/a2afabric/core/internal/log"
	"github.com/a2afabric/core/internal/metrics"
	"github.com/a2afabric/core/message"
	"github.com/a2afabric/core/session"
)

var logger = log.NewModuleLogger("handshake")

// pending tracks one in-flight handshake's transient material. It is
// discarded (ephemeral keys included) once the handshake reaches READY or
// ERROR.
type pending struct {
	mu sync.Mutex

	sessionID string
	localID   string
	peerID    string

	localIdentity  *agentcrypto.KeyPair
	localEphemeral *agentcrypto.EphemeralKeyPair

	peerEdPub     ed25519.PublicKey
	peerX25519Pub [32]byte

	challenge         []byte // set by the responder in step 2
	confirmationToken []byte

	phase     int // 0..6, see phaseState
	deadline  time.Time
	sessionKey [32]byte
}

func phaseState(phase int) session.State {
	switch phase {
	case 0:
		return session.Initial
	case 1:
		return session.InitSent
	case 2:
		return session.AckReceived
	case 3:
		return session.ChallengeSent
	case 4:
		return session.Established
	case 5:
		return session.Confirmed
	default:
		return session.Ready
	}
}

// Engine drives both the initiator and responder sides of the protocol for
// a local identity, installing completed sessions into a session.Manager.
type Engine struct {
	mu       sync.Mutex
	identity *agentcrypto.KeyPair
	localID  string
	sessions *session.Manager
	timeout  time.Duration

	byID map[string]*pending
}

// NewEngine constructs a handshake Engine for localID using identity as its
// Ed25519 signing key, installing completed sessions into sessions.
func NewEngine(localID string, identity *agentcrypto.KeyPair, sessions *session.Manager, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Engine{
		identity: identity,
		localID:  localID,
		sessions: sessions,
		timeout:  timeout,
		byID:     make(map[string]*pending),
	}
}

func (e *Engine) track(p *pending) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.byID[p.sessionID] = p
}

func (e *Engine) get(sessionID string) (*pending, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.byID[sessionID]
	if !ok {
		return nil, errs.New(errs.SessionNotFound, "no handshake in progress for session %s", sessionID)
	}
	return p, nil
}

func (e *Engine) drop(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.byID, sessionID)
}

func (e *Engine) fail(p *pending, kind errs.Kind, format string, args ...interface{}) error {
	err := errs.New(kind, format, args...)
	if errs.Security(err) {
		log.Security(logger, "handshake failed", "session_id", p.sessionID, "err", err)
	} else {
		logger.Warn("handshake failed", "session_id", p.sessionID, "err", err)
	}
	metrics.HandshakeOutcomes.WithLabelValues("error").Inc()
	e.drop(p.sessionID)
	return err
}

func signEnvelope(priv ed25519.PrivateKey, senderID, peerID, msgType string, sessionID string, payload interface{}) (*message.SecureMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, err, "marshal handshake payload")
	}
	nonce, err := message.NewNonce()
	if err != nil {
		return nil, err
	}
	m := &message.SecureMessage{
		Version:   message.ProtocolVersion,
		MsgType:   msgType,
		SenderID:  senderID,
		RecipientID: peerID,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
		Nonce:     nonce,
		SessionID: sessionID,
	}
	if err := message.Sign(m, priv); err != nil {
		return nil, err
	}
	return m, nil
}

func verifyEnvelope(m *message.SecureMessage, pub ed25519.PublicKey, expectType string, timeout time.Duration) error {
	if m.MsgType != expectType {
		return errs.New(errs.HandshakeFailed, "expected msg_type %s, got %s", expectType, m.MsgType)
	}
	if m.Version != message.ProtocolVersion {
		return errs.New(errs.HandshakeFailed, "protocol version mismatch: %s", m.Version)
	}
	if time.Since(m.Timestamp) > timeout {
		return errs.New(errs.HandshakeFailed, "handshake message expired")
	}
	if !message.Verify(m, pub) {
		return errs.New(errs.AuthenticationFailed, "signature verification failed for %s", expectType)
	}
	return nil
}

// sessionSalt derives the HKDF salt deterministically regardless of which
// side computes it: SHA-256 over session_id || sorted-by-id X25519 pubkeys
// || sorted-by-id Ed25519 pubkeys (design §4.3).
func sessionSalt(sessionID, idA string, edA ed25519.PublicKey, xA [32]byte, idB string, edB ed25519.PublicKey, xB [32]byte) []byte {
	type party struct {
		id string
		ed ed25519.PublicKey
		x  [32]byte
	}
	parties := []party{{idA, edA, xA}, {idB, edB, xB}}
	sort.Slice(parties, func(i, j int) bool { return parties[i].id < parties[j].id })

	h := sha256.New()
	h.Write([]byte(sessionID))
	for _, p := range parties {
		h.Write(p.x[:])
	}
	for _, p := range parties {
		h.Write(p.ed)
	}
	return h.Sum(nil)
}

func confirmationToken(sessionID string, key [32]byte) []byte {
	h := sha256.New()
	h.Write(key[:])
	h.Write([]byte("a2a-v1-confirm"))
	h.Write([]byte(sessionID))
	return h.Sum(nil)
}

// --- Initiator (A) side ---------------------------------------------------

// InitiateHandshake begins a new handshake with peerID, returning the
// signed step-1 message to send over the transport.
func (e *Engine) InitiateHandshake(peerID string) (*message.SecureMessage, error) {
	eph, err := agentcrypto.GenerateEphemeralKeyPair()
	if err != nil {
		return nil, err
	}
	sessionID := session.NewSessionID()
	p := &pending{
		sessionID:      sessionID,
		localID:        e.localID,
		peerID:         peerID,
		localIdentity:  e.identity,
		localEphemeral: eph,
		phase:          1,
		deadline:       time.Now().Add(e.timeout),
	}
	e.track(p)

	payload := InitPayload{
		Ed25519PubKey: []byte(e.identity.PublicKey),
		X25519PubKey:  eph.Public[:],
	}
	return signEnvelope(e.identity.PrivateKey, e.localID, peerID, MsgInit, sessionID, payload)
}

// HandleAck processes step 2 (handshake_init_ack) on the initiator side and
// returns the signed step-3 challenge_response message.
func (e *Engine) HandleAck(msg *message.SecureMessage) (*message.SecureMessage, error) {
	p, err := e.get(msg.SessionID)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.phase != 1 {
		return nil, e.fail(p, errs.HandshakeFailed, "unexpected ack in phase %d", p.phase)
	}
	if time.Now().After(p.deadline) {
		return nil, e.fail(p, errs.Expired, "handshake timed out")
	}

	var ack AckPayload
	if err := json.Unmarshal(msg.Payload, &ack); err != nil {
		return nil, e.fail(p, errs.InvalidArgument, "decode ack payload: %v", err)
	}
	if len(ack.Ed25519PubKey) != ed25519.PublicKeySize || len(ack.X25519PubKey) != 32 {
		return nil, e.fail(p, errs.InvalidArgument, "malformed ack key material")
	}
	peerEd := ed25519.PublicKey(ack.Ed25519PubKey)
	if err := verifyEnvelope(msg, peerEd, MsgInitAck, e.timeout); err != nil {
		return nil, e.fail(p, errs.KindOf(err), "%v", err)
	}
	if len(ack.Challenge) != 32 {
		return nil, e.fail(p, errs.HandshakeFailed, "challenge must be 32 bytes")
	}

	p.peerEdPub = peerEd
	copy(p.peerX25519Pub[:], ack.X25519PubKey)
	p.phase = 2

	sig := agentcrypto.Sign(p.localIdentity.PrivateKey, ack.Challenge)
	resp := ChallengeResponsePayload{ChallengeSignature: sig}
	envelope, err := signEnvelope(p.localIdentity.PrivateKey, p.localID, p.peerID, MsgChallengeResponse, p.sessionID, resp)
	if err != nil {
		return nil, err
	}
	p.phase = 3
	return envelope, nil
}

// HandleEstablished processes step 4 (session_established) on the
// initiator side and returns the signed step-5 session_confirm message.
func (e *Engine) HandleEstablished(msg *message.SecureMessage) (*message.SecureMessage, error) {
	p, err := e.get(msg.SessionID)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.phase != 3 {
		return nil, e.fail(p, errs.HandshakeFailed, "unexpected session_established in phase %d", p.phase)
	}
	if err := verifyEnvelope(msg, p.peerEdPub, MsgSessionEstablished, e.timeout); err != nil {
		return nil, e.fail(p, errs.KindOf(err), "%v", err)
	}
	var est EstablishedPayload
	if err := json.Unmarshal(msg.Payload, &est); err != nil {
		return nil, e.fail(p, errs.InvalidArgument, "decode established payload: %v", err)
	}

	salt := sessionSalt(p.sessionID, p.localID, p.localIdentity.PublicKey, p.localEphemeral.Public, p.peerID, p.peerEdPub, p.peerX25519Pub)
	key, err := agentcrypto.DeriveSharedKey(p.localEphemeral.Private, p.peerX25519Pub, salt)
	if err != nil {
		return nil, e.fail(p, errs.HandshakeFailed, "derive shared key: %v", err)
	}
	expectedToken := confirmationToken(p.sessionID, key)
	if !bytes.Equal(expectedToken, est.ConfirmationToken) {
		return nil, e.fail(p, errs.AuthenticationFailed, "confirmation token mismatch")
	}

	p.sessionKey = key
	p.confirmationToken = expectedToken
	p.phase = 4

	confirm := ConfirmPayload{ConfirmationToken: expectedToken}
	envelope, err := signEnvelope(p.localIdentity.PrivateKey, p.localID, p.peerID, MsgSessionConfirm, p.sessionID, confirm)
	if err != nil {
		return nil, err
	}
	p.phase = 5
	return envelope, nil
}

// HandleReady processes step 6 (ready) on the initiator side, installing
// the finished session into the session manager and returning its id.
func (e *Engine) HandleReady(msg *message.SecureMessage) (string, error) {
	p, err := e.get(msg.SessionID)
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	if p.phase != 5 {
		p.mu.Unlock()
		return "", e.fail(p, errs.HandshakeFailed, "unexpected ready in phase %d", p.phase)
	}
	if err := verifyEnvelope(msg, p.peerEdPub, MsgReady, e.timeout); err != nil {
		p.mu.Unlock()
		return "", e.fail(p, errs.KindOf(err), "%v", err)
	}
	key := p.sessionKey
	localID, peerID := p.localID, p.peerID
	p.mu.Unlock()

	id, err := e.installSession(p.sessionID, localID, peerID, key)
	if err != nil {
		return "", err
	}
	e.drop(p.sessionID)
	metrics.HandshakeOutcomes.WithLabelValues("ready").Inc()
	return id, nil
}

func (e *Engine) installSession(sessionID, localID, peerID string, key [32]byte) (string, error) {
	id, err := e.sessions.CreateSessionWithID(sessionID, localID, peerID, key)
	if err != nil {
		return "", err
	}
	return id, nil
}

// --- Responder (B) side ---------------------------------------------------

// HandleInit processes step 1 (handshake_init) on the responder side and
// returns the signed step-2 handshake_init_ack message.
func (e *Engine) HandleInit(msg *message.SecureMessage) (*message.SecureMessage, error) {
	var init InitPayload
	if err := json.Unmarshal(msg.Payload, &init); err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, err, "decode init payload")
	}
	if len(init.Ed25519PubKey) != ed25519.PublicKeySize || len(init.X25519PubKey) != 32 {
		return nil, errs.New(errs.InvalidArgument, "malformed init key material")
	}
	peerEd := ed25519.PublicKey(init.Ed25519PubKey)
	if err := verifyEnvelope(msg, peerEd, MsgInit, e.timeout); err != nil {
		return nil, err
	}

	eph, err := agentcrypto.GenerateEphemeralKeyPair()
	if err != nil {
		return nil, err
	}
	challenge, err := agentcrypto.RandomNonce(32)
	if err != nil {
		return nil, err
	}

	p := &pending{
		sessionID:      msg.SessionID,
		localID:        e.localID,
		peerID:         msg.SenderID,
		localIdentity:  e.identity,
		localEphemeral: eph,
		peerEdPub:      peerEd,
		challenge:      challenge,
		phase:          2,
		deadline:       time.Now().Add(e.timeout),
	}
	copy(p.peerX25519Pub[:], init.X25519PubKey)
	e.track(p)

	ack := AckPayload{
		Ed25519PubKey: []byte(e.identity.PublicKey),
		X25519PubKey:  eph.Public[:],
		Challenge:     challenge,
	}
	return signEnvelope(e.identity.PrivateKey, e.localID, msg.SenderID, MsgInitAck, msg.SessionID, ack)
}

// HandleChallengeResponse processes step 3 on the responder side and
// returns the signed step-4 session_established message.
func (e *Engine) HandleChallengeResponse(msg *message.SecureMessage) (*message.SecureMessage, error) {
	p, err := e.get(msg.SessionID)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.phase != 2 {
		return nil, e.fail(p, errs.HandshakeFailed, "unexpected challenge_response in phase %d", p.phase)
	}
	if err := verifyEnvelope(msg, p.peerEdPub, MsgChallengeResponse, e.timeout); err != nil {
		return nil, e.fail(p, errs.KindOf(err), "%v", err)
	}
	var resp ChallengeResponsePayload
	if err := json.Unmarshal(msg.Payload, &resp); err != nil {
		return nil, e.fail(p, errs.InvalidArgument, "decode challenge response: %v", err)
	}
	if !agentcrypto.Verify(p.peerEdPub, p.challenge, resp.ChallengeSignature) {
		return nil, e.fail(p, errs.AuthenticationFailed, "challenge response signature invalid")
	}
	p.phase = 3

	salt := sessionSalt(p.sessionID, p.peerID, p.peerEdPub, p.peerX25519Pub, p.localID, p.localIdentity.PublicKey, p.localEphemeral.Public)
	key, err := agentcrypto.DeriveSharedKey(p.localEphemeral.Private, p.peerX25519Pub, salt)
	if err != nil {
		return nil, e.fail(p, errs.HandshakeFailed, "derive shared key: %v", err)
	}
	token := confirmationToken(p.sessionID, key)
	p.sessionKey = key
	p.confirmationToken = token
	p.phase = 4

	est := EstablishedPayload{ConfirmationToken: token}
	return signEnvelope(p.localIdentity.PrivateKey, p.localID, p.peerID, MsgSessionEstablished, p.sessionID, est)
}

// HandleConfirm processes step 5 on the responder side and returns the
// signed step-6 ready message.
func (e *Engine) HandleConfirm(msg *message.SecureMessage) (*message.SecureMessage, error) {
	p, err := e.get(msg.SessionID)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	if p.phase != 4 {
		p.mu.Unlock()
		return nil, e.fail(p, errs.HandshakeFailed, "unexpected session_confirm in phase %d", p.phase)
	}
	if err := verifyEnvelope(msg, p.peerEdPub, MsgSessionConfirm, e.timeout); err != nil {
		p.mu.Unlock()
		return nil, e.fail(p, errs.KindOf(err), "%v", err)
	}
	var confirm ConfirmPayload
	if err := json.Unmarshal(msg.Payload, &confirm); err != nil {
		p.mu.Unlock()
		return nil, e.fail(p, errs.InvalidArgument, "decode confirm payload: %v", err)
	}
	if !bytes.Equal(confirm.ConfirmationToken, p.confirmationToken) {
		p.mu.Unlock()
		return nil, e.fail(p, errs.AuthenticationFailed, "confirmation token mismatch on confirm")
	}
	p.phase = 5
	sessionID, localID, peerID, key := p.sessionID, p.localID, p.peerID, p.sessionKey
	p.mu.Unlock()

	ready, err := signEnvelope(e.identity.PrivateKey, localID, peerID, MsgReady, sessionID, ReadyPayload{})
	if err != nil {
		return nil, err
	}
	if _, err := e.installSession(sessionID, localID, peerID, key); err != nil {
		return nil, err
	}
	e.drop(sessionID)
	metrics.HandshakeOutcomes.WithLabelValues("ready").Inc()
	return ready, nil
}

// Cancel aborts an in-flight handshake, transitioning it to ERROR. Used
// when the caller's context is cancelled mid-handshake (design §5).
func (e *Engine) Cancel(sessionID string) {
	p, err := e.get(sessionID)
	if err != nil {
		return
	}
	e.fail(p, errs.Cancelled, "handshake cancelled for session %s", sessionID)
}
