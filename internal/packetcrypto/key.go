package packetcrypto

import (
	"crypto/cipher"

	"quicore/infrastructure/cryptography/mem"
)

// Epoch identifies one of the three QUIC packet-protection key levels
// (Initial, Handshake, 1-RTT) (§3,
// PacketKey.epoch).
type Epoch int

const (
	EpochInitial Epoch = iota
	EpochHandshake
	Epoch1RTT
	epochCount
)

func (e Epoch) String() string {
	switch e {
	case EpochInitial:
		return "Initial"
	case EpochHandshake:
		return "Handshake"
	case Epoch1RTT:
		return "1-RTT"
	default:
		return "unknown"
	}
}

// Key is one directional PacketKey (§3): an AEAD key, a 12-byte IV, a
// header-protection key, and the traffic secret it was derived from. A
// *Key is never copied by value across goroutines without holding whatever
// lock its owner (ProcessState, KeySchedule) defines.
type Key struct {
	Suite  Suite
	Epoch  Epoch
	IV     [IVSize]byte
	HPKey  []byte
	Secret []byte // traffic secret this key was derived from; nil once forgotten

	aead cipher.AEAD
	hp   cipher.Block // nil for ChaCha20 suites; mask computed directly from HPKey
}

// KeyCreate builds a Key from raw AEAD key, IV, and HP key material for the
// given suite. It is the sole place a suite's unavailability (ChaCha20
// excluded at build time) surfaces as ErrNotSupported (§4.1).
func KeyCreate(suite Suite, epoch Epoch, aeadKey []byte, iv [IVSize]byte, hpKey, secret []byte) (*Key, error) {
	aeadImpl, err := newAEAD(suite, aeadKey)
	if err != nil {
		return nil, err
	}
	k := &Key{
		Suite:  suite,
		Epoch:  epoch,
		IV:     iv,
		HPKey:  append([]byte(nil), hpKey...),
		Secret: append([]byte(nil), secret...),
		aead:   aeadImpl,
	}
	if suite == SuiteAES128GCM || suite == SuiteAES256GCM {
		hpCipher, err := newHPCipher(suite, hpKey)
		if err != nil {
			return nil, err
		}
		k.hp = hpCipher
	}
	return k, nil
}

// Destroy zeroes the key material held by k. Callers that move the HP key
// into a freshly rotated key (§4.2) must copy HPKey out first.
func (k *Key) Destroy() {
	mem.ZeroBytes(k.HPKey)
	mem.ZeroBytes(k.Secret)
	k.aead = nil
	k.hp = nil
}
