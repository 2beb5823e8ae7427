package handshake

import (
	"testing"
	"time"

	agentcrypto "github.com/a2afabric/core/crypto"
	"github.com/a2afabric/core/message"
	"github.com/a2afabric/core/session"
)

func newPeer(t *testing.T, id string, mgr *session.Manager) (*Engine, *agentcrypto.KeyPair) {
	t.Helper()
	kp, err := agentcrypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	return NewEngine(id, kp, mgr, 5*time.Second), kp
}

// TestHandshakeReachesReadyBothSides validates scenario 1 of design §8: two
// agents complete the handshake and converge on a usable session.
func TestHandshakeReachesReadyBothSides(t *testing.T) {
	mgr := session.NewManager(time.Hour, 64, 5*time.Minute)
	alpha, _ := newPeer(t, "alpha", mgr)
	beta, _ := newPeer(t, "beta", mgr)

	step1, err := alpha.InitiateHandshake("beta")
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	step2, err := beta.HandleInit(step1)
	if err != nil {
		t.Fatalf("handle init: %v", err)
	}
	step3, err := alpha.HandleAck(step2)
	if err != nil {
		t.Fatalf("handle ack: %v", err)
	}
	step4, err := beta.HandleChallengeResponse(step3)
	if err != nil {
		t.Fatalf("handle challenge response: %v", err)
	}
	step5, err := alpha.HandleEstablished(step4)
	if err != nil {
		t.Fatalf("handle established: %v", err)
	}
	step6, err := beta.HandleConfirm(step5)
	if err != nil {
		t.Fatalf("handle confirm: %v", err)
	}
	aSessID, err := alpha.HandleReady(step6)
	if err != nil {
		t.Fatalf("handle ready: %v", err)
	}
	bSessID := step6.SessionID

	if aSessID == "" || bSessID == "" {
		t.Fatal("expected both sides to install a session id")
	}

	aSess, err := mgr.Get(aSessID)
	if err != nil {
		t.Fatalf("alpha session missing: %v", err)
	}
	bSess, err := mgr.Get(bSessID)
	if err != nil {
		t.Fatalf("beta session missing: %v", err)
	}
	if aSess.State != session.Ready || bSess.State != session.Ready {
		t.Fatalf("expected both sessions READY, got %s / %s", aSess.State, bSess.State)
	}
	if aSess.SessionKey != bSess.SessionKey {
		t.Fatal("expected both sides to derive the identical session key")
	}

	// Exchange an application-level ping/pong over the resulting session,
	// each message signed with the sender's Ed25519 identity key and
	// carrying the session id and sequence number.
	ping := mustSignedEnvelope(t, "alpha", "beta", aSessID, mgr, alpha.identity, []byte(`{"op":"ping"}`))
	if !message.Verify(ping, beta.identity.PublicKey) {
		t.Fatal("beta failed to verify alpha's ping")
	}
	pong := mustSignedEnvelope(t, "beta", "alpha", bSessID, mgr, beta.identity, []byte(`{"op":"pong"}`))
	if !message.Verify(pong, alpha.identity.PublicKey) {
		t.Fatal("alpha failed to verify beta's pong")
	}
}

// TestHandshakeReplayRejected validates scenario 2 of design §8: replaying
// the same application message is rejected by sequence and nonce checks.
func TestHandshakeReplayRejected(t *testing.T) {
	mgr := session.NewManager(time.Hour, 64, 5*time.Minute)
	_, _, aSessID, _ := runHandshakeWithManager(t, mgr)

	seq, err := mgr.NextSequence(aSessID)
	if err != nil {
		t.Fatal(err)
	}
	ok, err := mgr.ValidateSequence(aSessID, seq)
	if err != nil || !ok {
		t.Fatalf("expected first delivery of seq %d to be accepted: %v %v", seq, ok, err)
	}
	ok, err = mgr.ValidateSequence(aSessID, seq)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected replayed sequence number to be rejected")
	}

	now := time.Now().UTC()
	if err := mgr.CheckReplay("alpha", "fixed-nonce", now, 30*time.Second, 5*time.Minute); err != nil {
		t.Fatalf("expected first nonce to be accepted: %v", err)
	}
	if err := mgr.CheckReplay("alpha", "fixed-nonce", now, 30*time.Second, 5*time.Minute); err == nil {
		t.Fatal("expected replayed nonce to be rejected")
	}
}

func runHandshakeWithManager(t *testing.T, mgr *session.Manager) (*Engine, *Engine, string, string) {
	t.Helper()
	alpha, _ := newPeer(t, "alpha", mgr)
	beta, _ := newPeer(t, "beta", mgr)

	step1, err := alpha.InitiateHandshake("beta")
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	step2, err := beta.HandleInit(step1)
	if err != nil {
		t.Fatalf("handle init: %v", err)
	}
	step3, err := alpha.HandleAck(step2)
	if err != nil {
		t.Fatalf("handle ack: %v", err)
	}
	step4, err := beta.HandleChallengeResponse(step3)
	if err != nil {
		t.Fatalf("handle challenge response: %v", err)
	}
	step5, err := alpha.HandleEstablished(step4)
	if err != nil {
		t.Fatalf("handle established: %v", err)
	}
	step6, err := beta.HandleConfirm(step5)
	if err != nil {
		t.Fatalf("handle confirm: %v", err)
	}
	aSessID, err := alpha.HandleReady(step6)
	if err != nil {
		t.Fatalf("handle ready: %v", err)
	}
	return alpha, beta, aSessID, step6.SessionID
}

func mustSignedEnvelope(t *testing.T, sender, recipient, sessionID string, mgr *session.Manager, kp *agentcrypto.KeyPair, payload []byte) *message.SecureMessage {
	t.Helper()
	seq, err := mgr.NextSequence(sessionID)
	if err != nil {
		t.Fatal(err)
	}
	nonce, err := message.NewNonce()
	if err != nil {
		t.Fatal(err)
	}
	m := &message.SecureMessage{
		Version:     message.ProtocolVersion,
		MsgType:     "application",
		SenderID:    sender,
		RecipientID: recipient,
		Payload:     payload,
		Timestamp:   time.Now().UTC(),
		Nonce:       nonce,
		SessionID:   sessionID,
		SequenceNum: &seq,
	}
	if err := message.Sign(m, kp.PrivateKey); err != nil {
		t.Fatal(err)
	}
	return m
}

// TestHandshakeRejectsBadSignature ensures a tampered step is rejected and
// the handshake drops into an unrecoverable state rather than completing.
func TestHandshakeRejectsBadSignature(t *testing.T) {
	mgr := session.NewManager(time.Hour, 64, 5*time.Minute)
	alpha, _ := newPeer(t, "alpha", mgr)
	beta, _ := newPeer(t, "beta", mgr)

	step1, err := alpha.InitiateHandshake("beta")
	if err != nil {
		t.Fatal(err)
	}
	step1.Signature = "tampered"
	if _, err := beta.HandleInit(step1); err == nil {
		t.Fatal("expected tampered step-1 message to be rejected")
	}
}
