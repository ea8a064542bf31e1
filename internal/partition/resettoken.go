package partition

import (
	"fmt"

	"golang.org/x/crypto/blake2s"
)

// HashType selects the keyed-hash algorithm backing stateless reset tokens.
// msquic's CXPLAT_HASH_TYPE enumerates SHA-256/384/512; this core only
// needs one keyed-MAC primitive and follows the teacher's own
// BLAKE2s-keyed-MAC usage in infrastructure/cryptography/noise (BLAKE2s's
// built-in keyed mode, rather than HMAC wrapping a generic hash).
type HashType int

const (
	HashBlake2s128 HashType = iota
)

// resetHash holds the keyed hash used to generate stateless reset tokens.
// It is swapped wholesale under ResetTokenLock on update (§4.3, §5:
// "Reset-token hash replacement takes a dedicated mutex only to swap
// pointers; readers copy the pointer under the lock and compute outside
// it").
type resetHash struct {
	hashType HashType
	key      []byte
}

// UpdateStatelessResetKey replaces the partition's reset-token keyed hash
// under a short-held mutex (§4.3). It never holds the lock across any
// hashing work.
func (p *Partition) UpdateStatelessResetKey(hashType HashType, keyMaterial []byte) error {
	if hashType != HashBlake2s128 {
		return fmt.Errorf("partition: unsupported reset hash type %d", hashType)
	}
	next := &resetHash{hashType: hashType, key: append([]byte(nil), keyMaterial...)}

	p.resetMu.Lock()
	p.resetHash = next
	p.resetMu.Unlock()
	return nil
}

// GenerateResetToken computes the 16-byte stateless reset token for
// connectionID by XORing it into the keyed hash (§4.3: "Reset-token
// generation XORs a per-connection identifier into the keyed hash").
// Reports an error if no reset key has been installed yet.
func (p *Partition) GenerateResetToken(connectionID []byte) ([]byte, error) {
	p.resetMu.Lock()
	h := p.resetHash
	p.resetMu.Unlock()

	if h == nil {
		return nil, fmt.Errorf("partition: stateless reset key not yet installed")
	}

	mac, err := blake2s.New128(h.key)
	if err != nil {
		return nil, fmt.Errorf("partition: blake2s keyed hash: %w", err)
	}
	mac.Write(connectionID)
	sum := mac.Sum(nil)

	token := make([]byte, 16)
	for i := range token {
		token[i] = sum[i] ^ connectionID[i%len(connectionID)]
	}
	return token, nil
}
