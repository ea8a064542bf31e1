// Package rdma implements RdmaConnection (§4.5): a zero-copy datapath over
// simulated RDMA verbs, carrying payloads via one-sided writes against a
// peer's advertised receive ring.
//
// Realization note (SPEC_FULL.md §4.5, §11): the example corpus has no cgo
// binding to real ibverbs/NDSPI; the one RDMA reference in the pack
// (other_examples/b80f44bc...hyperdrive-rdma_network.go.go) is itself a
// pure-Go simulated verbs layer built on sync/sync-atomic. This package
// follows that same strategy, grounded additionally on
// original_source/src/platform/datapath_rdma_ringbuffer.c for the exact
// reserve/release/wrap arithmetic.
package rdma

import (
	"sync"

	"quicore/internal/quicerr"
)

// MinRingBufferSize is the smallest ring buffer size this core accepts.
const MinRingBufferSize = 64 * 1024

// MaxImmediateRingBufferSize is the largest ring buffer size for which the
// immediate-data encoding `(offset<<16)|length` fits in 32 bits without an
// offset buffer; larger rings force offset-buffer mode (§4.5).
const MaxImmediateRingBufferSize = 1 << 16

// MinFreeBufferThreshold is the free-space floor below which a reservation
// forces a wrap attempt rather than packing tighter against capacity,
// mirroring RdmaSendRingBufferReserve's MIN_FREE_BUFFER_THRESHOLD check.
const MinFreeBufferThreshold = 256

// ring is the shared head/tail/size bookkeeping behind SendRingBuffer,
// RecvRingBuffer, and RemoteRingBuffer (§9 design note: "ring buffer
// arithmetic... track cur_size explicitly to avoid the classic ambiguity
// between empty and full when head == tail").
type ring struct {
	mu       sync.Mutex
	capacity uint64
	head     uint64
	tail     uint64
	size     uint64
}

func newRing(capacity uint64) ring {
	return ring{capacity: capacity}
}

// reserve implements RdmaSendRingBufferReserve/RdmaRemoteRecvRingBufferReserve
// (datapath_rdma_ringbuffer.c): returns the byte offset at which length bytes
// were reserved, advancing tail and size. Wrap discipline (§4.5, §9): wrap to
// zero is only permitted when head has already rolled ahead of tail.
func (r *ring) reserve(length uint64) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if length == 0 {
		return 0, quicerr.New(quicerr.KindPacketLocal, "rdma.ring.reserve", errInvalidParameter)
	}
	if length > r.capacity {
		return 0, quicerr.New(quicerr.KindTransient, "rdma.ring.reserve", errBufferTooSmall)
	}

	if r.size != 0 {
		available := r.capacity - r.size
		if available < length || available < MinFreeBufferThreshold {
			if r.head >= r.tail {
				return 0, quicerr.New(quicerr.KindTransient, "rdma.ring.reserve", errBufferTooSmall)
			}
			// Head trails tail: the trailing region [tail, capacity) is
			// dead space once we wrap; fold it into size exactly once,
			// then re-check against the wrapped tail.
			r.size += r.capacity - r.tail
			r.tail = 0
			if r.size == r.capacity {
				return 0, quicerr.New(quicerr.KindTransient, "rdma.ring.reserve", errBufferTooSmall)
			}
			available = r.capacity - r.size
			if available < length {
				return 0, quicerr.New(quicerr.KindTransient, "rdma.ring.reserve", errBufferTooSmall)
			}
		}
	}

	offset := r.tail
	r.tail = (r.tail + length) % r.capacity
	r.size += length
	return offset, nil
}

// release advances head by length (RdmaSendRingBufferRelease /
// RdmaLocalReceiveRingBufferRelease), shrinking size.
func (r *ring) release(length uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head = (r.head + length) % r.capacity
	if length > r.size {
		r.size = 0
		return
	}
	r.size -= length
}

// advanceHeadTo sets head directly to an absolute offset the peer
// advertised, used when applying a remote head-advance notification to a
// RemoteRingBuffer mirror rather than releasing locally-known bytes.
func (r *ring) advanceHeadTo(head uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.capacity != 0 {
		// Distance travelled forward, including past the end of the ring.
		freed := (head + r.capacity - r.head) % r.capacity
		if freed > r.size {
			freed = r.size
		}
		r.size -= freed
	}
	r.head = head
}

func (r *ring) snapshot() (capacity, head, tail, size uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.capacity, r.head, r.tail, r.size
}

// SendRingBuffer is the local bounded arena payloads are staged into before
// a one-sided write (§3 data model).
type SendRingBuffer struct {
	Buffer []byte
	ring
}

// NewSendRingBuffer allocates a zeroed send ring of the given capacity.
func NewSendRingBuffer(capacity uint64) (*SendRingBuffer, error) {
	if capacity < MinRingBufferSize {
		return nil, quicerr.New(quicerr.KindConnectionFatal, "rdma.NewSendRingBuffer", errInvalidParameter)
	}
	return &SendRingBuffer{Buffer: make([]byte, capacity), ring: newRing(capacity)}, nil
}

// Reserve stages length bytes for an outbound write, returning the offset
// into Buffer and a slice view of the reserved region.
func (s *SendRingBuffer) Reserve(length uint64) (offset uint64, buf []byte, err error) {
	offset, err = s.reserve(length)
	if err != nil {
		return 0, nil, err
	}
	return offset, s.Buffer[offset : offset+length], nil
}

// Release zeroes and frees a previously reserved region once its send CQE
// has fired.
func (s *SendRingBuffer) Release(offset, length uint64) {
	for i := offset; i < offset+length && i < uint64(len(s.Buffer)); i++ {
		s.Buffer[i] = 0
	}
	s.release(length)
}

// RecvRingBuffer is the local arena the peer writes into via one-sided
// RDMA_WRITE_WITH_IMMEDIATE (§3 data model). OffsetBuffer, when non-nil,
// holds the peer-visible head advertisement used in offset-buffer mode.
type RecvRingBuffer struct {
	Buffer       []byte
	OffsetBuffer []byte
	// gaps records [start,length) regions skipped by a wrap so the
	// completion table can reconcile out-of-order arrival offsets (§4.5
	// steady-state receive).
	gaps map[uint64]uint64
	mu   sync.Mutex
	ring
}

// NewRecvRingBuffer allocates a zeroed receive ring. offsetBufferSize > 0
// enables offset-buffer mode (required once capacity exceeds
// MaxImmediateRingBufferSize).
func NewRecvRingBuffer(capacity uint64, offsetBufferSize uint64) (*RecvRingBuffer, error) {
	if capacity < MinRingBufferSize {
		return nil, quicerr.New(quicerr.KindConnectionFatal, "rdma.NewRecvRingBuffer", errInvalidParameter)
	}
	r := &RecvRingBuffer{Buffer: make([]byte, capacity), gaps: make(map[uint64]uint64), ring: newRing(capacity)}
	if offsetBufferSize > 0 {
		r.OffsetBuffer = make([]byte, offsetBufferSize)
	}
	return r, nil
}

// OffsetBufferUsed reports whether this ring requires offset-buffer mode.
func (r *RecvRingBuffer) OffsetBufferUsed() bool { return r.OffsetBuffer != nil }

// recordArrival applies a peer write landing at recvOffset for length
// bytes, tracking any gap left behind by a wrap and advancing tail/size.
func (r *RecvRingBuffer) recordArrival(recvOffset, length uint64) {
	r.mu.Lock()
	r.ring.mu.Lock()
	if recvOffset != r.ring.tail {
		gapLen := recvOffset - r.ring.tail
		if recvOffset > r.ring.tail {
			r.gaps[r.ring.tail] = gapLen
		}
		r.ring.tail = recvOffset
	}
	r.ring.tail = (r.ring.tail + length) % r.ring.capacity
	r.ring.size += length
	r.ring.mu.Unlock()
	r.mu.Unlock()
}

// Release returns released bytes to the ring and reports the new head, for
// the caller to advertise to the peer (§4.5 Buffer release).
func (r *RecvRingBuffer) Release(offset, length uint64) uint64 {
	for i := offset; i < offset+length && i < uint64(len(r.Buffer)); i++ {
		r.Buffer[i] = 0
	}
	r.release(length)
	_, head, _, _ := r.snapshot()
	return head
}

// RemoteRingBuffer mirrors the peer's RecvRingBuffer bookkeeping so the
// local side can reserve space before issuing a one-sided write, without
// ever reading the peer's actual memory (§4.5 steady-state send).
type RemoteRingBuffer struct {
	RemoteAddress uint64
	RemoteToken   uint32
	OffsetAddress uint64
	OffsetToken   uint32
	ring
}

// NewRemoteRingBuffer builds the local mirror from the token-exchange
// fields the peer advertised.
func NewRemoteRingBuffer(capacity, remoteAddress uint64, remoteToken uint32, offsetAddress uint64, offsetToken uint32) *RemoteRingBuffer {
	return &RemoteRingBuffer{
		RemoteAddress: remoteAddress,
		RemoteToken:   remoteToken,
		OffsetAddress: offsetAddress,
		OffsetToken:   offsetToken,
		ring:          newRing(capacity),
	}
}

// Reserve reserves length bytes of the remote ring's address space for an
// outbound write, returning the offset to write to.
func (r *RemoteRingBuffer) Reserve(length uint64) (uint64, error) {
	return r.reserve(length)
}

// AdvanceHead applies a peer-advertised new head, freeing reserved space
// for the pending-send queue to drain into (§4.5 back-pressure).
func (r *RemoteRingBuffer) AdvanceHead(head uint64) {
	r.advanceHeadTo(head)
}

// FreeSpace reports capacity - size, the amount currently reservable.
func (r *RemoteRingBuffer) FreeSpace() uint64 {
	capacity, _, _, size := r.snapshot()
	return capacity - size
}
