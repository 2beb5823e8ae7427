package message

import (
	"encoding/json"
	"testing"
	"time"

	agentcrypto "github.com/a2afabric/core/crypto"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	kp, err := agentcrypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	nonce, err := NewNonce()
	if err != nil {
		t.Fatal(err)
	}
	seq := uint64(1)
	m := &SecureMessage{
		Version:     ProtocolVersion,
		MsgType:     "ping",
		SenderID:    "alpha",
		RecipientID: "beta",
		Payload:     json.RawMessage(`{"seq":1}`),
		Timestamp:   time.Now().UTC().Truncate(time.Millisecond),
		Nonce:       nonce,
		SessionID:   "s1",
		SequenceNum: &seq,
	}
	if err := Sign(m, kp.PrivateKey); err != nil {
		t.Fatal(err)
	}
	if !Verify(m, kp.PublicKey) {
		t.Fatal("expected signature to verify")
	}

	m.Payload = json.RawMessage(`{"seq":2}`)
	if Verify(m, kp.PublicKey) {
		t.Fatal("expected verify to fail after payload tamper")
	}
}

func TestFromJSONToJSONRoundTrip(t *testing.T) {
	kp, _ := agentcrypto.GenerateKeyPair()
	nonce, _ := NewNonce()
	m := &SecureMessage{
		Version:   ProtocolVersion,
		MsgType:   "pong",
		SenderID:  "beta",
		Payload:   json.RawMessage(`{"ack":1}`),
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
		Nonce:     nonce,
	}
	if err := Sign(m, kp.PrivateKey); err != nil {
		t.Fatal(err)
	}
	b, err := ToJSON(m)
	if err != nil {
		t.Fatal(err)
	}
	m2, err := FromJSON(b)
	if err != nil {
		t.Fatal(err)
	}
	if !Verify(m2, kp.PublicKey) {
		t.Fatal("expected round-tripped message to still verify")
	}
	if m2.MsgType != m.MsgType || m2.SenderID != m.SenderID {
		t.Fatal("round trip lost fields")
	}
}
