package packetcrypto

import (
	"encoding/binary"
	"fmt"
)

// IVForPacketNumber computes iv_full = key.IV XOR left_pad(packetNumber, 12)
// per §4.1: the packet number is big-endian and right-aligned into the
// 12-byte IV before the XOR.
func IVForPacketNumber(key *Key, packetNumber uint64) [IVSize]byte {
	var iv [IVSize]byte
	copy(iv[:], key.IV[:])
	var pnBytes [8]byte
	binary.BigEndian.PutUint64(pnBytes[:], packetNumber)
	for i := 0; i < 8; i++ {
		iv[IVSize-8+i] ^= pnBytes[i]
	}
	return iv
}

// Encrypt authenticates aad and encrypts plaintext in place, appending the
// 16-byte tag. plaintextWithTagSpace must have len(plaintext)+TagSize of
// capacity; the returned slice aliases its storage. Any failure surfaces as
// ErrCrypto (§4.1: "all failures surface as a single Crypto error").
func Encrypt(key *Key, packetNumber uint64, aad, plaintextWithTagSpace []byte) ([]byte, error) {
	if key.aead == nil {
		return nil, fmt.Errorf("packetcrypto: encrypt: %w", ErrCrypto)
	}
	iv := IVForPacketNumber(key, packetNumber)
	plaintext := plaintextWithTagSpace[:len(plaintextWithTagSpace)-TagSize]
	out := key.aead.Seal(plaintextWithTagSpace[:0], iv[:], plaintext, aad)
	return out, nil
}

// Decrypt authenticates aad and decrypts ciphertextWithTag in place,
// returning the plaintext (ciphertextWithTag minus its trailing tag). The
// tag comparison performed by crypto/cipher.AEAD.Open is constant-time;
// any mismatch returns ErrCrypto and is fatal only for this packet (§4.1,
// §7 band 2), never for the connection.
func Decrypt(key *Key, packetNumber uint64, aad, ciphertextWithTag []byte) ([]byte, error) {
	if key.aead == nil {
		return nil, fmt.Errorf("packetcrypto: decrypt: %w", ErrCrypto)
	}
	if len(ciphertextWithTag) < TagSize {
		return nil, fmt.Errorf("packetcrypto: decrypt: ciphertext shorter than tag: %w", ErrCrypto)
	}
	iv := IVForPacketNumber(key, packetNumber)
	plaintext, err := key.aead.Open(ciphertextWithTag[:0], iv[:], ciphertextWithTag, aad)
	if err != nil {
		return nil, fmt.Errorf("packetcrypto: decrypt: %w", ErrCrypto)
	}
	return plaintext, nil
}
