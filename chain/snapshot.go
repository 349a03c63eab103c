// Copyright (c) 2019-2026 The CKB Core Authors. All rights reserved.
// Use of this source code is governed by a license that can be found in the LICENSE file.

package chain

import (
	"sync/atomic"

	"github.com/holiman/uint256"

	"github.com/nervosnode/ckbcore/types"
)

// ConsensusParams is an opaque bag of consensus-parameter values; the
// difficulty formula and epoch-length constants are out of scope
// (spec.md §1 non-goals), so the core only carries this as a pass-through
// value attached to each snapshot.
type ConsensusParams struct {
	ProposalWindowStart uint64
	ProposalWindowEnd   uint64
}

// Snapshot is the immutable tuple published by the Chain Service: tip
// header, total difficulty, consensus parameters, and a handle into the
// Persistent Store Facade, valid for the lifetime of any operation that
// holds a reference to it (spec.md §3, §4.7).
type Snapshot struct {
	Tip             types.Header
	TotalDifficulty *uint256.Int
	Consensus       ConsensusParams
	Store           Store
}

// Manager holds an atomically-swappable pointer to the current Snapshot.
// Readers never block; the Chain Service is the only writer, replacing
// the pointer on every accepted tip change (spec.md §4.7). The pattern
// mirrors HeaderChain.currentHeader's atomic.Value in
// _examples/luxfi-evm/core/headerchain.go, generalized to the full
// snapshot tuple instead of a bare header pointer.
type Manager struct {
	current atomic.Pointer[Snapshot]
}

// NewManager seeds the manager with an initial snapshot (typically the
// genesis block's).
func NewManager(initial *Snapshot) *Manager {
	m := &Manager{}
	m.current.Store(initial)
	return m
}

// Load returns the current snapshot. Old snapshots are not explicitly
// reference-counted: Go's garbage collector keeps any snapshot alive for
// as long as a caller still holds the pointer returned here, which is
// sufficient to satisfy "old snapshots persist until the last reader
// releases them" (spec.md §4.7) without manual bookkeeping.
func (m *Manager) Load() *Snapshot {
	return m.current.Load()
}

// Publish atomically swaps in next as the current snapshot. Snapshot
// publication happens-before any subsequent Load by another goroutine
// (spec.md §5 "Ordering"), which atomic.Pointer's memory model already
// guarantees.
func (m *Manager) Publish(next *Snapshot) {
	m.current.Store(next)
}
