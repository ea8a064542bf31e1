package keyschedule

import (
	"bytes"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"testing"

	"quicore/internal/packetcrypto"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("mustHex(%q): %v", s, err)
	}
	return b
}

// TestDeriveInitialSecretsRFC9001 checks the Initial key schedule against
// the well-known destination connection ID from RFC 9001 Appendix A.1.
func TestDeriveInitialSecretsRFC9001(t *testing.T) {
	destConnID := mustHex(t, "8394c8f03e515708")

	secrets, err := DeriveInitialSecrets(destConnID)
	if err != nil {
		t.Fatalf("DeriveInitialSecrets: %v", err)
	}

	key, err := PacketKeyDerive(packetcrypto.EpochInitial, packetcrypto.SuiteAES128GCM, secrets.Client)
	if err != nil {
		t.Fatalf("PacketKeyDerive: %v", err)
	}

	wantKey := mustHex(t, "1f369613dd76d5467730efcbe3b1a22d")
	wantIV := mustHex(t, "fa044b2f42a3fd3b46fb255c")
	wantHP := mustHex(t, "9f50449e04a0e810283a1e9933adedd2")

	if !bytes.Equal(key.IV[:], wantIV) {
		t.Fatalf("IV mismatch: got %x want %x", key.IV, wantIV)
	}
	if !bytes.Equal(key.HPKey, wantHP) {
		t.Fatalf("HP key mismatch: got %x want %x", key.HPKey, wantHP)
	}
	// The AEAD key itself isn't directly exposed by the Key type (it's
	// wrapped inside cipher.AEAD), so here we only confirm the RFC vector's
	// length matches the suite's key size, and rely on aead_test.go's
	// RFC9001 ciphertext test to confirm it's bit-exact end to end.
	if len(wantKey) != packetcrypto.SuiteAES128GCM.KeySize() {
		t.Fatalf("expected key length %d, RFC vector has %d", packetcrypto.SuiteAES128GCM.KeySize(), len(wantKey))
	}
}

func TestPacketKeyUpdatePreservesHPKeyChangesIV(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")
	key, err := PacketKeyDerive(packetcrypto.Epoch1RTT, packetcrypto.SuiteAES128GCM, secret)
	if err != nil {
		t.Fatalf("PacketKeyDerive: %v", err)
	}
	oldIV := key.IV
	oldHP := append([]byte(nil), key.HPKey...)

	updated, err := PacketKeyUpdate(key)
	if err != nil {
		t.Fatalf("PacketKeyUpdate: %v", err)
	}
	if updated.IV == oldIV {
		t.Fatal("expected IV to change after key update")
	}
	if !bytes.Equal(updated.HPKey, oldHP) {
		t.Fatal("expected HP key to be preserved after key update")
	}
}

func TestPacketKeyUpdateRejectsNonOneRTTEpoch(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")
	key, err := PacketKeyDerive(packetcrypto.EpochHandshake, packetcrypto.SuiteAES128GCM, secret)
	if err != nil {
		t.Fatalf("PacketKeyDerive: %v", err)
	}
	if _, err := PacketKeyUpdate(key); err == nil {
		t.Fatal("expected error updating a non-1-RTT key")
	}
}

// TestPacketKeyDeriveAES256GCMUsesSHA384 pins AES-256-GCM's key schedule to
// SHA-384 (its TLS 1.3 cipher suite is TLS_AES_256_GCM_SHA384, RFC 8446
// §B.4), by re-deriving the same "quic key" label by hand over SHA-384 and
// over SHA-256 and confirming PacketKeyDerive matches only the former.
func TestPacketKeyDeriveAES256GCMUsesSHA384(t *testing.T) {
	secret := []byte("01234567890123456789012345678901234567890123456789")

	key, err := PacketKeyDerive(packetcrypto.EpochHandshake, packetcrypto.SuiteAES256GCM, secret)
	if err != nil {
		t.Fatalf("PacketKeyDerive: %v", err)
	}

	wantHP, err := hkdfExpandLabel(sha512.New384, secret, labelQuicHP, packetcrypto.SuiteAES256GCM.KeySize())
	if err != nil {
		t.Fatalf("hkdfExpandLabel(sha384): %v", err)
	}
	if !bytes.Equal(key.HPKey, wantHP) {
		t.Fatalf("HP key mismatch: got %x want %x (expected SHA-384 schedule)", key.HPKey, wantHP)
	}

	wrongHP, err := hkdfExpandLabel(sha256.New, secret, labelQuicHP, packetcrypto.SuiteAES256GCM.KeySize())
	if err != nil {
		t.Fatalf("hkdfExpandLabel(sha256): %v", err)
	}
	if bytes.Equal(key.HPKey, wrongHP) {
		t.Fatal("AES-256-GCM key schedule must not match the SHA-256 derivation")
	}
}
