package partition

// PerfCounter identifies one per-partition 64-bit metric slot (§3 Partition,
// original_source/src/core/partition.h's QUIC_PERF_COUNTER_MAX array). Only
// the counters this core actually drives are named; the rest of msquic's
// table (streams, congestion, etc.) belongs to the out-of-scope API surface.
type PerfCounter int

const (
	CounterConnCreated PerfCounter = iota
	CounterConnHandshakeSuccess
	CounterConnHandshakeFail
	CounterPacketsDroppedDecryptFail
	CounterPacketsDroppedHPUnderrun
	CounterKeyUpdates
	CounterRetryTokenValidated
	CounterRetryTokenRejected
	counterCount
)
