package packetcrypto

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/chacha20"
)

// SampleLen is the number of ciphertext bytes sampled for header protection.
const SampleLen = 16

// HPComputeMask computes the 5 header-protection mask bytes used by the
// caller (§4.1). For AES suites mask = AES-ECB(hpKey, sample) truncated to 5
// bytes; for ChaCha20, mask = ChaCha20(hpKey, counter=u32LE(sample[0:4]),
// nonce=sample[4:16], zero[5]).
func HPComputeMask(key *Key, sample [SampleLen]byte) ([5]byte, error) {
	var mask [5]byte
	switch key.Suite {
	case SuiteAES128GCM, SuiteAES256GCM:
		if key.hp == nil {
			return mask, fmt.Errorf("packetcrypto: hp mask: %w", ErrCrypto)
		}
		var block [16]byte
		key.hp.Encrypt(block[:], sample[:])
		copy(mask[:], block[:5])
		return mask, nil
	case SuiteChaCha20Poly1305:
		counter := binary.LittleEndian.Uint32(sample[0:4])
		var nonce [12]byte
		copy(nonce[:], sample[4:16])
		c, err := chacha20.NewUnauthenticatedCipher(key.HPKey, nonce[:])
		if err != nil {
			return mask, fmt.Errorf("packetcrypto: hp mask: %w: %w", ErrCrypto, err)
		}
		c.SetCounter(counter)
		var zero [5]byte
		c.XORKeyStream(mask[:], zero[:])
		return mask, nil
	default:
		return mask, fmt.Errorf("packetcrypto: hp mask: unknown suite %d: %w", key.Suite, ErrCrypto)
	}
}

// HeaderForm distinguishes the header-byte mask width (§4.1 "Numeric
// conventions"): a long header masks the first byte's low 4 bits, a short
// header masks the low 5 bits.
type HeaderForm int

const (
	HeaderLong HeaderForm = iota
	HeaderShort
)

// ApplyHeaderProtection XORs the HP mask into pkt in place (§4.6). headerLen
// is the offset of the packet-number field within pkt (the length of the
// header bytes before it); the 16-byte sample starts at headerLen+4. pnLen is
// the number of packet-number bytes (1..4) starting at headerLen. The same function is used
// for both directions: applying the mask is its own inverse (XOR).
func ApplyHeaderProtection(key *Key, pkt []byte, form HeaderForm, headerLen, pnLen int) error {
	if sampleOffset := headerLen + 4; sampleOffset+SampleLen > len(pkt) {
		return ErrSampleUnderrun
	}
	sampleOffset := headerLen + 4
	var sample [SampleLen]byte
	copy(sample[:], pkt[sampleOffset:sampleOffset+SampleLen])
	mask, err := HPComputeMask(key, sample)
	if err != nil {
		return err
	}
	if form == HeaderLong {
		pkt[0] ^= mask[0] & 0x0F
	} else {
		pkt[0] ^= mask[0] & 0x1F
	}
	for i := 0; i < pnLen; i++ {
		pkt[headerLen+i] ^= mask[1+i]
	}
	return nil
}
