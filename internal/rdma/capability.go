package rdma

import (
	"sync/atomic"
)

// This file realizes the "deep inheritance via COM-like NDSPI vtables"
// design note (§9): each NDSPI interface becomes a capability trait with
// exactly the methods this core calls, backed by one simulated concrete
// type per trait rather than a class hierarchy. Grounded on the pack's
// simulated verbs layer (other_examples hyperdrive QueuePair/CompletionQueue
// /MemoryRegion/WorkCompletion) translated from unsafe.Pointer SGEs to
// plain byte slices, since this core never needs raw pointer arithmetic.

// WorkCompletion mirrors one CQE (§9: "model as enum-tagged completion
// variants matched by the loop").
type WorkCompletion struct {
	RequestID uint64
	Status    CompletionStatus
	Opcode    Opcode
	Immediate uint32
	Length    uint32
	// payload carries the delivered bytes for a recv-side completion; the
	// simulated transport has no separate shared-memory step to read back
	// from, so the bytes ride along on the completion itself.
	payload []byte
}

// CompletionStatus is the outcome recorded on a WorkCompletion.
type CompletionStatus uint8

const (
	StatusSuccess CompletionStatus = iota
	StatusCancelled
	StatusError
)

// Opcode tags which verb produced a WorkCompletion.
type Opcode uint8

const (
	OpcodeSend Opcode = iota
	OpcodeRecv
	OpcodeWriteWithImmediate
)

// QueuePair is the paired send/receive submission capability of one RDMA
// endpoint (§4.5 data model, §9 capability trait).
type QueuePair interface {
	// PostSend submits a one-sided RDMA_WRITE_WITH_IMMEDIATE; completion
	// arrives later on the send CompletionQueue.
	PostSend(requestID uint64, payload []byte, remoteOffset uint64, remoteToken uint32, immediate uint32) error
	// PostReceive pre-posts a receive buffer slot.
	PostReceive(requestID uint64) error
}

// CompletionQueue is the capability to retrieve retired work completions
// (§9 capability trait; §5 "every verb... completes asynchronously via the
// CQE path").
type CompletionQueue interface {
	// Poll blocks until a completion is available or the queue is closed,
	// mirroring RdmaConnection.PollCompletion in the grounding example.
	Poll() (WorkCompletion, bool)
	// Push enqueues a completion; used by the simulated transport to
	// deliver a peer's write as a local recv-CQE.
	Push(WorkCompletion)
	Close()
}

// MemoryRegion is a registered range of local memory with a remote access
// token (§9: "MR is a registered range").
type MemoryRegion struct {
	Buffer     []byte
	LocalKey   uint32
	RemoteKey  uint32
}

// MemoryWindow is a cheaper-to-rebind sub-range of a MemoryRegion with its
// own remote token (§9: "MW is a sub-range with its own remote access
// token, cheaper to rebind").
type MemoryWindow struct {
	Region    *MemoryRegion
	Offset    uint64
	Length    uint64
	RemoteKey uint32
}

var tokenCounter atomic.Uint32

func nextToken() uint32 { return tokenCounter.Add(1) }

// RegisterMemoryRegion simulates NDSPI memory registration: the buffer is
// already addressable Go memory, so registration only mints access tokens.
func RegisterMemoryRegion(buffer []byte) *MemoryRegion {
	return &MemoryRegion{Buffer: buffer, LocalKey: nextToken(), RemoteKey: nextToken()}
}

// Bind creates a MemoryWindow over [offset, offset+length) of mr, minting
// a fresh remote token the way MW rebind does in real NDSPI.
func (mr *MemoryRegion) Bind(offset, length uint64) *MemoryWindow {
	return &MemoryWindow{Region: mr, Offset: offset, Length: length, RemoteKey: nextToken()}
}

// simQueuePair and simCompletionQueue implement the two capability
// interfaces above over an in-process channel, standing in for the wire:
// a PostSend on one connection's QueuePair pushes directly onto the peer
// CompletionQueue it was wired to at Connect/Accept time, since this core
// has no real fabric to cross.
type simCompletionQueue struct {
	ch     chan WorkCompletion
	closed atomic.Bool
}

func newSimCompletionQueue(depth int) *simCompletionQueue {
	return &simCompletionQueue{ch: make(chan WorkCompletion, depth)}
}

func (c *simCompletionQueue) Poll() (WorkCompletion, bool) {
	wc, ok := <-c.ch
	return wc, ok
}

func (c *simCompletionQueue) Push(wc WorkCompletion) {
	if c.closed.Load() {
		return
	}
	c.ch <- wc
}

func (c *simCompletionQueue) Close() {
	if c.closed.CompareAndSwap(false, true) {
		close(c.ch)
	}
}

// simQueuePair posts directly against a peer's recv ring and completion
// queue, captured at wiring time via peerRecv.
type simQueuePair struct {
	sendCQ  *simCompletionQueue
	peerRecv func(payload []byte, remoteOffset uint64, immediate uint32) error
}

func (q *simQueuePair) PostSend(requestID uint64, payload []byte, remoteOffset uint64, remoteToken uint32, immediate uint32) error {
	_ = remoteToken
	err := q.peerRecv(payload, remoteOffset, immediate)
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	q.sendCQ.Push(WorkCompletion{RequestID: requestID, Status: status, Opcode: OpcodeWriteWithImmediate, Immediate: immediate, Length: uint32(len(payload))})
	return err
}

func (q *simQueuePair) PostReceive(requestID uint64) error {
	return nil
}
