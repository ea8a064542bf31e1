package packetcrypto

import "errors"

// ErrCrypto is the single failure surfaced by Encrypt, Decrypt, and mask
// computation (§4.1). It is always packet-local (§7 band 2): callers drop
// the offending packet and increment a counter, never close the connection.
var ErrCrypto = errors.New("crypto operation failed")

// ErrSampleUnderrun is returned by callers of HPComputeMask (via the
// header-protection helpers in hp.go) when fewer than 16 bytes remain in the
// packet at the sample offset (§4.6: "If sampling would read past the packet
// end, the packet is dropped").
var ErrSampleUnderrun = errors.New("packetcrypto: header protection sample underrun")
