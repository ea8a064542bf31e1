package tlsdriver

import "quicore/internal/packetcrypto"

// keySlot indexes ProcessState.ReadKeys/WriteKeys. Slot order matches the
// QUIC encryption-level ordering used throughout the ecosystem (Initial,
// Early/0-RTT, Handshake, Application/1-RTT) even though this core's 0-RTT
// slot is never populated — 0-RTT resumption policy is a declared Non-goal
// (§1) but the four-wide array from §3's data model is kept for fidelity.
type keySlot int

const (
	slotInitial keySlot = iota
	slotEarly
	slotHandshake
	slot1RTT
	slotCount
)

func epochToSlot(e packetcrypto.Epoch) keySlot {
	switch e {
	case packetcrypto.EpochInitial:
		return slotInitial
	case packetcrypto.EpochHandshake:
		return slotHandshake
	case packetcrypto.Epoch1RTT:
		return slot1RTT
	default:
		return slotCount
	}
}

// ProcessState is the TLS driver's output buffer (§3 ProcessState). It is
// zeroed at TlsDriver init, grown monotonically during the handshake, and
// destroyed with the driver.
type ProcessState struct {
	// Buffer holds every outgoing crypto-stream byte produced so far,
	// concatenated across epochs in emission order.
	Buffer []byte

	// BufferOffsetHandshake and BufferOffset1Rtt mark, within Buffer, the
	// point at which the driver began emitting Handshake- and
	// 1-RTT-level bytes respectively. Zero means "not yet set"; once set,
	// each offset is immutable (§3 invariant I2).
	BufferOffsetHandshake int
	BufferOffset1Rtt      int
	handshakeOffsetSet    bool
	oneRttOffsetSet       bool

	// ReadKeys and WriteKeys hold the installed PacketKey for each epoch
	// slot; a nil entry means that epoch's key has not been installed
	// (§3 invariant I1: read and write are installed together or neither).
	ReadKeys  [slotCount]*packetcrypto.Key
	WriteKeys [slotCount]*packetcrypto.Key

	// CurrentReadKey and CurrentWriteKey track the highest epoch whose
	// key has been installed so far, for callers that want "the current
	// level" rather than indexing by epoch directly.
	CurrentReadKey  packetcrypto.Epoch
	CurrentWriteKey packetcrypto.Epoch

	// NegotiatedALPN is set once the handshake reaches CONNECTED.
	NegotiatedALPN string

	// AlertCode holds the TLS alert byte if the handshake failed fatally.
	AlertCode uint8
}

// BufferTotalLength returns len(Buffer), the quantity §4.4's key
// installation timing rule assigns to BufferOffsetHandshake/BufferOffset1Rtt
// at the moment each key level first emits data.
func (s *ProcessState) BufferTotalLength() int { return len(s.Buffer) }

func (s *ProcessState) appendOutput(level packetcrypto.Epoch, data []byte) {
	switch level {
	case packetcrypto.EpochHandshake:
		if !s.handshakeOffsetSet {
			s.BufferOffsetHandshake = s.BufferTotalLength()
			s.handshakeOffsetSet = true
		}
	case packetcrypto.Epoch1RTT:
		if !s.oneRttOffsetSet {
			s.BufferOffset1Rtt = s.BufferTotalLength()
			s.oneRttOffsetSet = true
		}
	}
	s.Buffer = append(s.Buffer, data...)
}

func (s *ProcessState) installReadKey(epoch packetcrypto.Epoch, key *packetcrypto.Key) {
	s.ReadKeys[epochToSlot(epoch)] = key
	if epoch > s.CurrentReadKey || s.ReadKeys[epochToSlot(s.CurrentReadKey)] == nil {
		s.CurrentReadKey = epoch
	}
}

func (s *ProcessState) installWriteKey(epoch packetcrypto.Epoch, key *packetcrypto.Key) {
	s.WriteKeys[epochToSlot(epoch)] = key
	if epoch > s.CurrentWriteKey || s.WriteKeys[epochToSlot(s.CurrentWriteKey)] == nil {
		s.CurrentWriteKey = epoch
	}
}

// reset discards accumulated state for version negotiation (§4.4 Reset)
// without freeing the ProcessState struct itself.
func (s *ProcessState) reset() {
	*s = ProcessState{}
}
