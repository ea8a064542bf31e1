// Package quicore is the module root: it assembles the process-wide
// Library value the core's design notes call for (SPEC_FULL.md §9, "Global
// mutable state... Model as a single Library value created at init and
// threaded explicitly; forbid hidden singletons"), rather than exposing a
// package-level registry of partitions.
package quicore

import (
	"fmt"

	"quicore/application"
	"quicore/infrastructure/cryptography/primitives"
	"quicore/internal/partition"
)

// Library owns every Partition participating in this process and the
// library-wide retry base secret they all derive their retry keys from
// (§3 Partition: "library-wide base secret"; §9: one process-wide registry
// of partitions and the base retry secret, threaded explicitly).
type Library struct {
	Partitions []*partition.Partition
	logger     application.Logger
}

// NewLibrary derives a fresh library-wide retry base secret from a freshly
// generated X25519 key pair, feeding the private key (salted with its own
// public key) through DeriveKey; no key agreement with a peer takes place
// (§11 DOMAIN STACK: curve25519 for Partition base-secret derivation),
// then constructs one Partition per processor index in [0, processorCount).
//
// Grounded on infrastructure/cryptography/primitives.DefaultKeyDeriver,
// which already packages this exact
// GenerateX25519KeyPair-then-DeriveKey pipeline for the teacher's own
// handshake/rekey code paths; Library reuses it verbatim rather than
// deriving the base secret with a bespoke HKDF call.
func NewLibrary(processorCount int, logger application.Logger) (*Library, error) {
	if processorCount <= 0 {
		return nil, fmt.Errorf("quicore: NewLibrary: processorCount must be positive, got %d", processorCount)
	}

	deriver := &primitives.DefaultKeyDeriver{}
	bootstrapPublic, bootstrapPrivate, err := deriver.GenerateX25519KeyPair()
	if err != nil {
		return nil, fmt.Errorf("quicore: NewLibrary: generate bootstrap key pair: %w", err)
	}
	// The base secret only needs to be unpredictable process-local entropy,
	// not a shared value agreed with a peer; deriving it from this
	// process's own freshly generated key pair keeps the same
	// GenerateX25519KeyPair/DeriveKey pipeline the teacher uses for an
	// actual two-party handshake, applied here as a one-sided KDF input.
	baseSecret, err := deriver.DeriveKey(bootstrapPrivate[:], bootstrapPublic, []byte("quicore retry base secret"))
	if err != nil {
		return nil, fmt.Errorf("quicore: NewLibrary: derive base secret: %w", err)
	}

	lib := &Library{
		Partitions: make([]*partition.Partition, processorCount),
		logger:     logger,
	}
	for i := 0; i < processorCount; i++ {
		lib.Partitions[i] = partition.New(uint16(i), uint16(i), baseSecret, logger)
	}
	return lib, nil
}

// PartitionFor routes work to a connection's home partition by a caller-
// supplied affinity hint (§5: "Work items... are routed to a connection's
// home partition"), wrapping around the partition count the way the
// out-of-scope API surface's affinity assignment would.
func (l *Library) PartitionFor(affinityHint uint32) *partition.Partition {
	return l.Partitions[int(affinityHint)%len(l.Partitions)]
}
