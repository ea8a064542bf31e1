package partition

import (
	"crypto/sha256"
	"encoding/binary"

	"golang.org/x/crypto/hkdf"
)

// RetryKeyWindowMs is the validity duration of one stateless-retry key, in
// milliseconds (§3, §4.3: "A retry key is valid for exactly 30 s").
const RetryKeyWindowMs = 30_000

// retryKey is one slot of the partition's two-key retry-key pair (§3
// PacketKey... actually QUIC_RETRY_KEY in the original: a derived key plus
// the window index it was derived for).
type retryKey struct {
	valid bool
	index int64
	key   []byte
}

// retryKeyIndex maps a millisecond timestamp to its 30-second window index.
func retryKeyIndex(nowMs int64) int64 {
	return nowMs / RetryKeyWindowMs
}

// deriveRetryKey derives the retry key for window index from the
// partition's library-wide base secret via HKDF(baseSecret, u64LE(index))
// (§4.3).
func (p *Partition) deriveRetryKey(index int64) []byte {
	var indexBytes [8]byte
	binary.LittleEndian.PutUint64(indexBytes[:], uint64(index))
	r := hkdf.New(sha256.New, p.baseSecret, nil, indexBytes[:])
	out := make([]byte, 32)
	_, _ = r.Read(out) // hkdf.Expand over SHA-256 never errors for a 32-byte pull
	return out
}

// GetCurrentRetryKey returns the retry key valid at nowMs (a millisecond
// timestamp), deriving a fresh slot 0 if the current key's window has gone
// stale (§4.3). The old slot 0 moves into slot 1 only when it belongs to the
// immediately preceding window; otherwise slot 1 is cleared. Callers must hold no other
// lock; GetCurrentRetryKey takes StatelessRetryKeysLock itself.
func (p *Partition) GetCurrentRetryKey(nowMs int64) []byte {
	idx := retryKeyIndex(nowMs)

	p.retryMu.Lock()
	defer p.retryMu.Unlock()

	if p.retryKeys[0].valid && p.retryKeys[0].index == idx {
		return p.retryKeys[0].key
	}
	// Stale or unset: keep current as previous only if it is the window
	// just before idx, then derive a fresh current.
	if p.retryKeys[0].valid && p.retryKeys[0].index == idx-1 {
		p.retryKeys[1] = p.retryKeys[0]
	} else {
		p.retryKeys[1] = retryKey{}
	}
	p.retryKeys[0] = retryKey{valid: true, index: idx, key: p.deriveRetryKey(idx)}
	return p.retryKeys[0].key
}

// GetRetryKeyForTimestamp returns the retry key whose window covers tsMs,
// checking slot 0 then slot 1 (§4.3). It reports false if neither slot
// matches, meaning the caller must reject the token (§8: retry tokens are
// rejected outside their issuing window's [i, i+2) 30s range once two more
// rotations have happened).
//
// GetRetryKeyForTimestamp never itself triggers rotation: it only looks at
// slots already populated by a prior GetCurrentRetryKey call. This mirrors
// the original's read-only accessor, which assumes the caller already holds
// StatelessRetryKeysLock and some other path (typically the datapath's own
// periodic GetCurrentRetryKey call) keeps the slots fresh.
func (p *Partition) GetRetryKeyForTimestamp(tsMs int64) ([]byte, bool) {
	idx := retryKeyIndex(tsMs)

	p.retryMu.Lock()
	defer p.retryMu.Unlock()

	if p.retryKeys[0].valid && p.retryKeys[0].index == idx {
		return p.retryKeys[0].key, true
	}
	if p.retryKeys[1].valid && p.retryKeys[1].index == idx {
		return p.retryKeys[1].key, true
	}
	return nil, false
}
