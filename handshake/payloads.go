package handshake

// Message type tags carried in SecureMessage.MsgType for each of the six
// handshake steps (design §4.3).
const (
	MsgInit                = "handshake_init"
	MsgInitAck              = "handshake_init_ack"
	MsgChallengeResponse    = "challenge_response"
	MsgSessionEstablished   = "session_established"
	MsgSessionConfirm       = "session_confirm"
	MsgReady                = "ready"
)

// InitPayload is step 1: A -> B, offering both long-term and ephemeral
// public keys.
type InitPayload struct {
	Ed25519PubKey []byte `json:"ed25519_pub_key"`
	X25519PubKey  []byte `json:"x25519_pub_key"`
}

// AckPayload is step 2: B -> A, offering B's keys plus a 32-byte challenge.
type AckPayload struct {
	Ed25519PubKey []byte `json:"ed25519_pub_key"`
	X25519PubKey  []byte `json:"x25519_pub_key"`
	Challenge     []byte `json:"challenge"`
}

// ChallengeResponsePayload is step 3: A -> B, an Ed25519 signature over the
// raw challenge bytes from step 2.
type ChallengeResponsePayload struct {
	ChallengeSignature []byte `json:"challenge_signature"`
}

// EstablishedPayload is step 4: B -> A, a confirmation token binding the
// derived session key.
type EstablishedPayload struct {
	ConfirmationToken []byte `json:"confirmation_token"`
}

// ConfirmPayload is step 5: A -> B, echoing the confirmation token to prove
// it independently derived the same session key.
type ConfirmPayload struct {
	ConfirmationToken []byte `json:"confirmation_token"`
}

// ReadyPayload is step 6: B -> A, the final handshake message.
type ReadyPayload struct{}
