// Package packetcrypto implements the stateless AEAD and header-protection
// primitives used to seal and open QUIC packets (RFC 9001 §5).
package packetcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"

	"golang.org/x/crypto/chacha20poly1305"
)

// Suite identifies the negotiated AEAD/HP cipher suite.
type Suite int

const (
	SuiteAES128GCM Suite = iota
	SuiteAES256GCM
	SuiteChaCha20Poly1305
)

// KeySize returns the AEAD key length, in bytes, for the suite.
func (s Suite) KeySize() int {
	switch s {
	case SuiteAES128GCM:
		return 16
	case SuiteAES256GCM:
		return 32
	case SuiteChaCha20Poly1305:
		return chacha20poly1305.KeySize
	default:
		return 0
	}
}

// HashNew returns the constructor for the hash backing this suite's HKDF
// key schedule: SHA-384 for AES-256-GCM, matching its TLS 1.3 cipher suite
// TLS_AES_256_GCM_SHA384; SHA-256 for every other suite (RFC 9001 §5.1,
// RFC 8446 §B.4).
func (s Suite) HashNew() func() hash.Hash {
	if s == SuiteAES256GCM {
		return sha512.New384
	}
	return sha256.New
}

// IVSize is fixed at 12 bytes for every QUIC v1 suite.
const IVSize = 12

// TagSize is fixed at 16 bytes for every QUIC v1 suite.
const TagSize = 16

func (s Suite) String() string {
	switch s {
	case SuiteAES128GCM:
		return "AES_128_GCM"
	case SuiteAES256GCM:
		return "AES_256_GCM"
	case SuiteChaCha20Poly1305:
		return "CHACHA20_POLY1305"
	default:
		return "unknown"
	}
}

// ErrNotSupported is returned from KeyCreate when a suite requested at
// runtime was not compiled into the binary (§4.1: ChaCha20 is optional but
// its absence must be detected at build time, never silently substituted).
var ErrNotSupported = fmt.Errorf("packetcrypto: suite not supported by this build")

// chaCha20Poly1305Supported gates ChaCha20-Poly1305 availability. It is a
// variable, not a constant, so a build that excludes the cipher (via a build
// tag swapping this file) can flip it without touching call sites.
var chaCha20Poly1305Supported = true

func newAEAD(suite Suite, key []byte) (cipher.AEAD, error) {
	switch suite {
	case SuiteAES128GCM, SuiteAES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("packetcrypto: aes.NewCipher: %w", err)
		}
		return cipher.NewGCM(block)
	case SuiteChaCha20Poly1305:
		if !chaCha20Poly1305Supported {
			return nil, ErrNotSupported
		}
		return chacha20poly1305.New(key)
	default:
		return nil, fmt.Errorf("packetcrypto: unknown suite %d", suite)
	}
}

// newHPCipher returns a block cipher usable for AES-ECB header-protection
// mask computation. ChaCha20 HP masks are computed directly in hp.go via
// golang.org/x/crypto/chacha20 and do not go through this path.
func newHPCipher(suite Suite, hpKey []byte) (cipher.Block, error) {
	switch suite {
	case SuiteAES128GCM, SuiteAES256GCM:
		return aes.NewCipher(hpKey)
	default:
		return nil, fmt.Errorf("packetcrypto: suite %s has no AES-ECB header protector", suite)
	}
}
