package crypto

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	msg := []byte("hello agent")
	sig := Sign(kp.PrivateKey, msg)
	if !Verify(kp.PublicKey, msg, sig) {
		t.Fatal("expected signature to verify")
	}
	if Verify(kp.PublicKey, []byte("tampered"), sig) {
		t.Fatal("expected verify to fail on tampered message")
	}
}

func TestVerifyFailsClosedOnMalformedInput(t *testing.T) {
	if Verify(nil, []byte("m"), nil) {
		t.Fatal("expected false for nil key/sig")
	}
	if Verify([]byte("short"), []byte("m"), []byte("short")) {
		t.Fatal("expected false for wrong-length key/sig")
	}
}

func TestDeriveSharedKeySymmetric(t *testing.T) {
	a, err := GenerateEphemeralKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	b, err := GenerateEphemeralKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	salt := []byte("session-salt")
	k1, err := DeriveSharedKey(a.Private, b.Public, salt)
	if err != nil {
		t.Fatal(err)
	}
	k2, err := DeriveSharedKey(b.Private, a.Public, salt)
	if err != nil {
		t.Fatal(err)
	}
	if k1 != k2 {
		t.Fatal("expected both sides to derive the same session key")
	}
}

func TestAEADRoundTripAndTamperDetection(t *testing.T) {
	var key [32]byte
	copy(key[:], []byte("0123456789abcdef0123456789abcdef"))
	nonce, _ := RandomNonce(12)
	plaintext := []byte("secret payload")
	aad := []byte("context")

	ct, err := AEADEncrypt(key, nonce, plaintext, aad)
	if err != nil {
		t.Fatal(err)
	}
	pt, err := AEADDecrypt(key, nonce, ct, aad)
	if err != nil || string(pt) != string(plaintext) {
		t.Fatalf("round trip failed: %v %q", err, pt)
	}

	tampered := append([]byte{}, ct...)
	tampered[0] ^= 0xFF
	if _, err := AEADDecrypt(key, nonce, tampered, aad); err == nil {
		t.Fatal("expected tampered ciphertext to fail decryption")
	}
}

func TestEncryptedKeyPairAtRest(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "identity.json")
	if err := SaveEncryptedKeyPair(path, kp, "correct horse"); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected mode 0600, got %v", info.Mode().Perm())
	}
	loaded, err := LoadEncryptedKeyPair(path, "correct horse")
	if err != nil {
		t.Fatal(err)
	}
	if !loaded.PrivateKey.Equal(kp.PrivateKey) {
		t.Fatal("expected loaded private key to match original")
	}
	if _, err := LoadEncryptedKeyPair(path, "wrong passphrase"); err == nil {
		t.Fatal("expected wrong passphrase to fail")
	}
}
