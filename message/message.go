// Package message defines the wire-level SecureMessage envelope (design
// §3, §6) and its canonical signing/verification helpers.
package message

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/a2afabric/core/canon"
	agentcrypto "github.com/a2afabric/core/crypto"
	"github.com/a2afabric/core/internal/errs"
)

// ProtocolVersion is the current wire protocol version string.
const ProtocolVersion = "1.1"

// SecureMessage is the signed envelope every A2A wire message rides in.
type SecureMessage struct {
	Version      string          `json:"version"`
	MsgType      string          `json:"msg_type"`
	SenderID     string          `json:"sender_id"`
	RecipientID  string          `json:"recipient_id,omitempty"`
	Payload      json.RawMessage `json:"payload"`
	Timestamp    time.Time       `json:"timestamp"`
	Nonce        string          `json:"nonce"`
	Signature    string          `json:"signature,omitempty"`
	SessionID    string          `json:"session_id,omitempty"`
	SequenceNum  *uint64         `json:"sequence_num,omitempty"`
}

// signable is the same envelope with Signature omitted, used to build the
// canonical bytes that get signed/verified.
type signable struct {
	Version     string          `json:"version"`
	MsgType     string          `json:"msg_type"`
	SenderID    string          `json:"sender_id"`
	RecipientID string          `json:"recipient_id,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	Timestamp   time.Time       `json:"timestamp"`
	Nonce       string          `json:"nonce"`
	SessionID   string          `json:"session_id,omitempty"`
	SequenceNum *uint64         `json:"sequence_num,omitempty"`
}

// SignableBytes returns the canonical JSON bytes that Sign/Verify operate on
// (every field of the envelope except signature).
func (m *SecureMessage) SignableBytes() ([]byte, error) {
	s := signable{
		Version:     m.Version,
		MsgType:     m.MsgType,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		Payload:     m.Payload,
		Timestamp:   m.Timestamp,
		Nonce:       m.Nonce,
		SessionID:   m.SessionID,
		SequenceNum: m.SequenceNum,
	}
	return canon.Marshal(s)
}

// NewNonce generates a fresh 16-byte random nonce, base64-encoded.
func NewNonce() (string, error) {
	b, err := agentcrypto.RandomNonce(16)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// Sign computes the envelope's signature over its canonical signable bytes
// and sets m.Signature.
func Sign(m *SecureMessage, priv ed25519.PrivateKey) error {
	b, err := m.SignableBytes()
	if err != nil {
		return err
	}
	sig := agentcrypto.Sign(priv, b)
	m.Signature = base64.StdEncoding.EncodeToString(sig)
	return nil
}

// Verify checks m.Signature against pub over the canonical signable bytes.
// It fails closed: malformed signatures/keys verify false, never panic.
func Verify(m *SecureMessage, pub ed25519.PublicKey) bool {
	sig, err := base64.StdEncoding.DecodeString(m.Signature)
	if err != nil {
		return false
	}
	b, err := m.SignableBytes()
	if err != nil {
		return false
	}
	return agentcrypto.Verify(pub, b, sig)
}

// ToJSON / FromJSON implement the plain (non-canonical) wire round trip
// used for transport; canonical encoding is only required for the signable
// view.
func ToJSON(m *SecureMessage) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, err, "marshal secure message")
	}
	return b, nil
}

func FromJSON(b []byte) (*SecureMessage, error) {
	var m SecureMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, err, "unmarshal secure message")
	}
	return &m, nil
}
