package packetcrypto

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("mustHex(%q): %v", s, err)
	}
	return b
}

func testKey(t *testing.T, suite Suite) *Key {
	t.Helper()
	var iv [IVSize]byte
	aeadKey := make([]byte, suite.KeySize())
	for i := range aeadKey {
		aeadKey[i] = byte(i + 1)
	}
	hpKey := make([]byte, suite.KeySize())
	for i := range hpKey {
		hpKey[i] = byte(i + 2)
	}
	for i := range iv {
		iv[i] = byte(i + 3)
	}
	k, err := KeyCreate(suite, Epoch1RTT, aeadKey, iv, hpKey, []byte("secret"))
	if err != nil {
		t.Fatalf("KeyCreate: %v", err)
	}
	return k
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	for _, suite := range []Suite{SuiteAES128GCM, SuiteAES256GCM, SuiteChaCha20Poly1305} {
		t.Run(suite.String(), func(t *testing.T) {
			key := testKey(t, suite)
			aad := []byte("header bytes")
			plaintext := []byte("hello quic world, this is a test payload")

			buf := make([]byte, len(plaintext)+TagSize)
			copy(buf, plaintext)
			ciphertext, err := Encrypt(key, 42, aad, buf)
			if err != nil {
				t.Fatalf("Encrypt: %v", err)
			}

			got, err := Decrypt(key, 42, aad, append([]byte(nil), ciphertext...))
			if err != nil {
				t.Fatalf("Decrypt: %v", err)
			}
			if !bytes.Equal(got, plaintext) {
				t.Fatalf("round trip mismatch: got %q want %q", got, plaintext)
			}
		})
	}
}

func TestDecryptTamperedCiphertextFails(t *testing.T) {
	key := testKey(t, SuiteAES128GCM)
	aad := []byte("hdr")
	plaintext := []byte("0123456789abcdef")
	buf := make([]byte, len(plaintext)+TagSize)
	copy(buf, plaintext)
	ciphertext, err := Encrypt(key, 1, aad, buf)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	tampered := append([]byte(nil), ciphertext...)
	tampered[0] ^= 0xFF
	if _, err := Decrypt(key, 1, aad, tampered); err == nil {
		t.Fatal("expected decrypt failure on tampered ciphertext")
	}

	tamperedAAD := append([]byte(nil), aad...)
	tamperedAAD[0] ^= 0xFF
	if _, err := Decrypt(key, 1, tamperedAAD, append([]byte(nil), ciphertext...)); err == nil {
		t.Fatal("expected decrypt failure on tampered aad")
	}
}

func TestHPComputeMaskDeterministic(t *testing.T) {
	for _, suite := range []Suite{SuiteAES128GCM, SuiteAES256GCM, SuiteChaCha20Poly1305} {
		key := testKey(t, suite)
		var sample [SampleLen]byte
		for i := range sample {
			sample[i] = byte(i)
		}
		m1, err := HPComputeMask(key, sample)
		if err != nil {
			t.Fatalf("HPComputeMask: %v", err)
		}
		m2, err := HPComputeMask(key, sample)
		if err != nil {
			t.Fatalf("HPComputeMask: %v", err)
		}
		if m1 != m2 {
			t.Fatalf("%s: mask not deterministic: %x vs %x", suite, m1, m2)
		}
	}
}

// TestRFC9001AppendixA2 is the well-known vector from RFC 9001 Appendix A.2:
// encrypting the sample client Initial payload under the derived
// client-initial write key at packet number 2 must reproduce the sample
// ciphertext's HP sample and HP mask byte-for-byte (§4.2, §8 scenario 3).
func TestRFC9001AppendixA2(t *testing.T) {
	// Derived client_initial keys for dest CID 8394c8f03e515708 (RFC 9001 A.1).
	key, err := KeyCreate(
		SuiteAES128GCM,
		EpochInitial,
		mustHex(t, "1f369613dd76d5467730efcbe3b1a22d"),
		[12]byte{}, // filled below via IVForPacketNumber helper input
		mustHex(t, "9f50449e04a0e810283a1e9933adedd2"),
		nil,
	)
	if err != nil {
		t.Fatalf("KeyCreate: %v", err)
	}
	copy(key.IV[:], mustHex(t, "fa044b2f42a3fd3b46fb255c"))

	header := mustHex(t, "c300000001088394c8f03e5157080000449e00000002")
	payload := mustHex(t, "060040f1010000ed0303ebf8fa56f12939b9584a3896472"+
		"ec40bb863cfd3e86804fe3a47f06a2b69484c00000413011302010000c000000010"+
		"00e00000b6578616d706c652e636f6d0016000000170000001d0020"+
		"9370b2c9caa47fbabaf4559fedba753de171fa71f50f1ce15d43e994ec74d748"+
		"002b0003020304000d0010000e0403050306030203080408050806002d00020101"+
		"001c00024001003300260024001d0020358072d6365880d1aeea329adf9121383"+
		"8755d6d2b1b7ae6c80b8002730a5ae5a2100012f011010001050104c00000002"+
		"0002000004000400048c00004000")

	buf := make([]byte, len(payload)+TagSize)
	copy(buf, payload)
	ciphertext, err := Encrypt(key, 2, header, buf)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	wantSample := mustHex(t, "d1b1c98dd7689fb8ec11d242b123dc9b")
	var sample [SampleLen]byte
	copy(sample[:], ciphertext[:SampleLen])
	if !bytes.Equal(sample[:], wantSample[:SampleLen]) {
		t.Fatalf("HP sample mismatch:\n got  %x\n want %x", sample, wantSample[:SampleLen])
	}

	mask, err := HPComputeMask(key, sample)
	if err != nil {
		t.Fatalf("HPComputeMask: %v", err)
	}
	wantMask := mustHex(t, "437b9aec36")
	if !bytes.Equal(mask[:], wantMask) {
		t.Fatalf("HP mask mismatch: got %x want %x", mask, wantMask)
	}
}
