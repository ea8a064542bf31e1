// Package partition implements the per-CPU allocation and secret-rotation
// substrate described in spec §4.3, grounded on
// _examples/original_source/src/core/partition.h (QUIC_PARTITION) and on
// the teacher's mutex-guarded state-machine style
// (infrastructure/cryptography/chacha20/rekey).
package partition

import (
	"sync"
	"sync/atomic"

	"quicore/application"
)

// ConnectionSlot, StreamSlot, PacketSpaceSlot, SendRequestSlot, and
// OperationSlot are the fixed-size object classes a Partition pools
// (§3 Partition, original_source partition.h's Connection/Stream/
// PacketSpace/SendRequest/Oper pools). Their fields are the allocation
// substrate only; the full connection/stream/operation state they back is
// owned by the out-of-scope public API surface (§1).
type ConnectionSlot struct {
	Generation uint64
	Payload    [256]byte
}

type StreamSlot struct {
	Generation uint64
	Payload    [128]byte
}

type PacketSpaceSlot struct {
	Generation uint64
	Payload    [64]byte
}

type SendRequestSlot struct {
	Generation uint64
	Payload    [192]byte
}

type OperationSlot struct {
	Generation uint64
	Payload    [96]byte
}

// Partition is one per-CPU isolation unit (§3). It is created once per
// participating processor at library init and destroyed at library
// teardown; Partitions never share pools.
type Partition struct {
	Index     uint16
	Processor uint16

	ConnectionPool   *Pool[ConnectionSlot]
	StreamPool       *Pool[StreamSlot]
	PacketSpacePool  *Pool[PacketSpaceSlot]
	SendRequestPool  *Pool[SendRequestSlot]
	OperationPool    *Pool[OperationSlot]

	perfCounters [counterCount]int64

	retryMu   sync.Mutex // StatelessRetryKeysLock: guards retryKeys below
	retryKeys [2]retryKey

	resetMu   sync.Mutex // ResetTokenLock: guards resetHash below (passive level, out of datapath)
	resetHash *resetHash

	baseSecret []byte // library-wide retry base secret, threaded in at New (§9: no hidden singleton)
	logger     application.Logger
}

// New creates a Partition pinned (by index, not a real affinity syscall —
// see SPEC_FULL.md §11) to processor, sharing the library-wide retry base
// secret baseSecret. The reset-token hash starts nil; callers must call
// UpdateStatelessResetKey before relying on reset-token generation.
func New(index, processor uint16, baseSecret []byte, logger application.Logger) *Partition {
	return &Partition{
		Index:           index,
		Processor:       processor,
		ConnectionPool:  NewPool(func() *ConnectionSlot { return &ConnectionSlot{} }),
		StreamPool:      NewPool(func() *StreamSlot { return &StreamSlot{} }),
		PacketSpacePool: NewPool(func() *PacketSpaceSlot { return &PacketSpaceSlot{} }),
		SendRequestPool: NewPool(func() *SendRequestSlot { return &SendRequestSlot{} }),
		OperationPool:   NewPool(func() *OperationSlot { return &OperationSlot{} }),
		baseSecret:      append([]byte(nil), baseSecret...),
		logger:          logger,
	}
}

// PerfCounterAdd does an atomic 64-bit add to this partition's slot for
// kind (§3, §5 "Per-partition 64-bit counters are updated via
// InterlockedExchangeAdd64").
func (p *Partition) PerfCounterAdd(kind PerfCounter, delta int64) {
	atomic.AddInt64(&p.perfCounters[kind], delta)
}

// PerfCounterGet reads this partition's slot for kind. Reads may be torn
// relative to concurrent adds and are advisory only (§5).
func (p *Partition) PerfCounterGet(kind PerfCounter) int64 {
	return atomic.LoadInt64(&p.perfCounters[kind])
}

// SumPerfCounters sums kind across every partition in parts, the "global
// counter readout" described in §4.3.
func SumPerfCounters(parts []*Partition, kind PerfCounter) int64 {
	var total int64
	for _, p := range parts {
		total += p.PerfCounterGet(kind)
	}
	return total
}
