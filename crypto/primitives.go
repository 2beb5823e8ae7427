// Package crypto implements the cryptographic primitives of design §4.1:
// Ed25519 identity signatures, X25519 ephemeral key agreement with
// HKDF-SHA256 session-key derivation, and AES-256-GCM authenticated
// encryption. There is exactly one crypto package in this module —
// resolving the "legacy vs current crypto module" open question in
// SPEC_FULL.md §5 by never introducing a second one.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"io"
	"os"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"

	"github.com/a2afabric/core/internal/errs"
)

// HandshakeKeyLabel is the HKDF info label fixed by the protocol.
const HandshakeKeyLabel = "a2a-v1-session-key"

const (
	nonceSize = 12
	keySize   = 32
)

// KeyPair is an Ed25519 identity key pair.
type KeyPair struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// GenerateKeyPair creates a fresh Ed25519 identity key pair.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "generate ed25519 keypair")
	}
	return &KeyPair{PublicKey: pub, PrivateKey: priv}, nil
}

// Sign signs msg with priv using Ed25519.
func Sign(priv ed25519.PrivateKey, msg []byte) []byte {
	return ed25519.Sign(priv, msg)
}

// Verify checks an Ed25519 signature. It fails closed: any malformed input
// (wrong-length key or signature) returns false rather than panicking.
func Verify(pub ed25519.PublicKey, msg, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	defer func() { recover() }()
	return ed25519.Verify(pub, msg, sig)
}

// EphemeralKeyPair is a per-handshake X25519 key pair, discarded after
// session key derivation.
type EphemeralKeyPair struct {
	Private [32]byte
	Public  [32]byte
}

// GenerateEphemeralKeyPair creates a fresh X25519 key pair.
func GenerateEphemeralKeyPair() (*EphemeralKeyPair, error) {
	var priv [32]byte
	if _, err := io.ReadFull(rand.Reader, priv[:]); err != nil {
		return nil, errs.Wrap(errs.Internal, err, "generate x25519 private scalar")
	}
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "derive x25519 public key")
	}
	kp := &EphemeralKeyPair{Private: priv}
	copy(kp.Public[:], pub)
	return kp, nil
}

// DeriveSharedKey performs X25519(ownPriv, peerPub) then HKDF-SHA256 over
// salt with the fixed info label, producing a 32-byte session key.
func DeriveSharedKey(ownPriv, peerPub [32]byte, salt []byte) ([32]byte, error) {
	var out [32]byte
	secret, err := curve25519.X25519(ownPriv[:], peerPub[:])
	if err != nil {
		return out, errs.Wrap(errs.HandshakeFailed, err, "x25519 ecdh")
	}
	r := hkdf.New(sha256.New, secret, salt, []byte(HandshakeKeyLabel))
	if _, err := io.ReadFull(r, out[:]); err != nil {
		return out, errs.Wrap(errs.Internal, err, "hkdf expand")
	}
	return out, nil
}

// RandomNonce returns n cryptographically random bytes.
func RandomNonce(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, errs.Wrap(errs.Internal, err, "generate random nonce")
	}
	return b, nil
}

// AEADEncrypt encrypts plaintext under key with AES-256-GCM, authenticating
// aad. nonce must be 12 bytes and must never be reused under the same key.
func AEADEncrypt(key [32]byte, nonce []byte, plaintext, aad []byte) ([]byte, error) {
	if len(nonce) != nonceSize {
		return nil, errs.New(errs.InvalidArgument, "nonce must be %d bytes", nonceSize)
	}
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "new aes cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "new gcm")
	}
	return gcm.Seal(nil, nonce, plaintext, aad), nil
}

// AEADDecrypt reverses AEADEncrypt, failing if the ciphertext or aad has
// been tampered with.
func AEADDecrypt(key [32]byte, nonce []byte, ciphertext, aad []byte) ([]byte, error) {
	if len(nonce) != nonceSize {
		return nil, errs.New(errs.InvalidArgument, "nonce must be %d bytes", nonceSize)
	}
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "new aes cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "new gcm")
	}
	pt, err := gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, errs.Wrap(errs.AuthenticationFailed, err, "aead decrypt")
	}
	return pt, nil
}

// encryptedKeyFile is the on-disk JSON envelope for a passphrase-protected
// identity key pair.
type encryptedKeyFile struct {
	PublicKey  []byte `json:"public_key"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
	Iterations int    `json:"iterations"`
}

// MinPBKDF2Iterations is the minimum iteration count for passphrase-derived
// keystore encryption keys, per design §3.
const MinPBKDF2Iterations = 600_000

// SaveEncryptedKeyPair persists kp at path, encrypted with AES-256-GCM under
// a PBKDF2-SHA256 key derived from passphrase (>=600k iterations), with file
// mode 0600.
func SaveEncryptedKeyPair(path string, kp *KeyPair, passphrase string) error {
	salt, err := RandomNonce(16)
	if err != nil {
		return err
	}
	nonce, err := RandomNonce(nonceSize)
	if err != nil {
		return err
	}
	dk := pbkdf2.Key([]byte(passphrase), salt, MinPBKDF2Iterations, keySize, sha256.New)
	var key [32]byte
	copy(key[:], dk)
	ct, err := AEADEncrypt(key, nonce, kp.PrivateKey, nil)
	if err != nil {
		return err
	}
	envelope := encryptedKeyFile{
		PublicKey:  kp.PublicKey,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: ct,
		Iterations: MinPBKDF2Iterations,
	}
	blob, err := json.Marshal(envelope)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "marshal keystore")
	}
	return os.WriteFile(path, blob, 0o600)
}

// LoadEncryptedKeyPair reverses SaveEncryptedKeyPair.
func LoadEncryptedKeyPair(path string, passphrase string) (*KeyPair, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.NotFound, err, "read keystore file")
	}
	var envelope encryptedKeyFile
	if err := json.Unmarshal(blob, &envelope); err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, err, "decode keystore file")
	}
	iterations := envelope.Iterations
	if iterations < MinPBKDF2Iterations {
		iterations = MinPBKDF2Iterations
	}
	dk := pbkdf2.Key([]byte(passphrase), envelope.Salt, iterations, keySize, sha256.New)
	var key [32]byte
	copy(key[:], dk)
	pt, err := AEADDecrypt(key, envelope.Nonce, envelope.Ciphertext, nil)
	if err != nil {
		return nil, errs.Wrap(errs.AuthenticationFailed, err, "decrypt keystore (wrong passphrase?)")
	}
	return &KeyPair{PublicKey: ed25519.PublicKey(envelope.PublicKey), PrivateKey: ed25519.PrivateKey(pt)}, nil
}
