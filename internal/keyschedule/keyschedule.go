// Package keyschedule derives and rotates QUIC packet keys for the Initial,
// Handshake and 1-RTT epochs from connection IDs and TLS traffic secrets (RFC 9001
// §5, spec §4.2).
package keyschedule

import (
	"crypto/sha256"
	"fmt"
	"hash"

	"golang.org/x/crypto/hkdf"

	"quicore/internal/packetcrypto"
)

// InitialSalt is the 20-byte QUIC v1 Initial salt (§4.2).
var InitialSalt = [20]byte{
	0x38, 0x76, 0x2c, 0xf7, 0xf5, 0x59, 0x34, 0xb3, 0x4d, 0x17,
	0x9a, 0xe6, 0xa4, 0xc8, 0x0c, 0xad, 0xcc, 0xbb, 0x7f, 0x0a,
}

const (
	labelClientInitial = "client in"
	labelServerInitial = "server in"
	labelQuicKey        = "quic key"
	labelQuicIV         = "quic iv"
	labelQuicHP         = "quic hp"
	labelQuicKeyUpdate  = "quic ku"
)

// hkdfExpandLabel implements the TLS 1.3 HKDF-Expand-Label construction
// (RFC 8446 §7.1) with an empty context, which is all QUIC v1 needs.
// hashNew selects the HKDF hash: callers must pass the suite's own hash
// (§4.2, RFC 9001 §5.1 table), not a fixed one, since AES-256-GCM's
// TLS_AES_256_GCM_SHA384 key schedule runs over SHA-384 while every other
// suite here runs over SHA-256.
func hkdfExpandLabel(hashNew func() hash.Hash, secret []byte, label string, length int) ([]byte, error) {
	fullLabel := "tls13 " + label
	hkdfLabel := make([]byte, 0, 2+1+len(fullLabel)+1)
	hkdfLabel = append(hkdfLabel, byte(length>>8), byte(length))
	hkdfLabel = append(hkdfLabel, byte(len(fullLabel)))
	hkdfLabel = append(hkdfLabel, fullLabel...)
	hkdfLabel = append(hkdfLabel, 0) // empty context

	out := make([]byte, length)
	r := hkdf.Expand(hashNew, secret, hkdfLabel)
	if _, err := r.Read(out); err != nil {
		return nil, fmt.Errorf("keyschedule: hkdf expand label %q: %w", label, err)
	}
	return out, nil
}

// InitialSecrets holds the client/server Initial secrets derived from a
// destination connection ID (§4.2):
//
//	initial_secret = HKDF-Extract(salt = version_salt, ikm = dest_conn_id)
//	client_initial = HKDF-Expand-Label(initial_secret, "client in", "", 32)
//	server_initial = HKDF-Expand-Label(initial_secret, "server in", "", 32)
type InitialSecrets struct {
	Client []byte
	Server []byte
}

// DeriveInitialSecrets runs the Initial-epoch HKDF pipeline for destConnID.
// Initial secrets are always derived over SHA-256 regardless of the suite
// ultimately negotiated for 1-RTT (RFC 9001 §5.2): the Initial salt and
// labels are fixed per QUIC version, not per cipher suite.
func DeriveInitialSecrets(destConnID []byte) (*InitialSecrets, error) {
	initialSecret := hkdf.Extract(sha256.New, destConnID, InitialSalt[:])
	client, err := hkdfExpandLabel(sha256.New, initialSecret, labelClientInitial, sha256.Size)
	if err != nil {
		return nil, err
	}
	server, err := hkdfExpandLabel(sha256.New, initialSecret, labelServerInitial, sha256.Size)
	if err != nil {
		return nil, err
	}
	return &InitialSecrets{Client: client, Server: server}, nil
}

// PacketKeyDerive applies HKDF-Expand-Label with "quic key"/"quic iv"/
// "quic hp" to secret to produce one directional PacketKey for epoch under
// suite (§4.2).
func PacketKeyDerive(epoch packetcrypto.Epoch, suite packetcrypto.Suite, secret []byte) (*packetcrypto.Key, error) {
	hashNew := suite.HashNew()
	aeadKey, err := hkdfExpandLabel(hashNew, secret, labelQuicKey, suite.KeySize())
	if err != nil {
		return nil, err
	}
	ivBytes, err := hkdfExpandLabel(hashNew, secret, labelQuicIV, packetcrypto.IVSize)
	if err != nil {
		return nil, err
	}
	hpKey, err := hkdfExpandLabel(hashNew, secret, labelQuicHP, suite.KeySize())
	if err != nil {
		return nil, err
	}
	var iv [packetcrypto.IVSize]byte
	copy(iv[:], ivBytes)
	return packetcrypto.KeyCreate(suite, epoch, aeadKey, iv, hpKey, secret)
}

// PacketKeyUpdate derives the next 1-RTT secret and re-derives the AEAD
// key+IV from it via HKDF-Expand-Label(secret, "quic ku", ...), preserving
// the header-protection key unchanged (§4.2). The caller is responsible for
// discarding old1RTTKey once callers relying on it have drained.
func PacketKeyUpdate(old1RTTKey *packetcrypto.Key) (*packetcrypto.Key, error) {
	if old1RTTKey.Epoch != packetcrypto.Epoch1RTT {
		return nil, fmt.Errorf("keyschedule: PacketKeyUpdate: key is not at the 1-RTT epoch")
	}
	hashNew := old1RTTKey.Suite.HashNew()
	newSecret, err := hkdfExpandLabel(hashNew, old1RTTKey.Secret, labelQuicKeyUpdate, hashNew().Size())
	if err != nil {
		return nil, err
	}
	aeadKey, err := hkdfExpandLabel(hashNew, newSecret, labelQuicKey, old1RTTKey.Suite.KeySize())
	if err != nil {
		return nil, err
	}
	ivBytes, err := hkdfExpandLabel(hashNew, newSecret, labelQuicIV, packetcrypto.IVSize)
	if err != nil {
		return nil, err
	}
	var iv [packetcrypto.IVSize]byte
	copy(iv[:], ivBytes)
	// The HP key is preserved unchanged per §4.2; we copy it forward rather
	// than re-deriving so callers that move (not copy) the original HPKey
	// into the new struct still observe the same bytes.
	return packetcrypto.KeyCreate(old1RTTKey.Suite, packetcrypto.Epoch1RTT, aeadKey, iv, old1RTTKey.HPKey, newSecret)
}
