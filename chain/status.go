// Copyright (c) 2019-2026 The CKB Core Authors. All rights reserved.
// Use of this source code is governed by a license that can be found in the LICENSE file.

// Package chain implements the Chain Service (C8), the Snapshot Manager
// (C9), and the Block Status Map (C3): the single-writer reducer that
// applies inbound blocks in topological order, performs reorganizations,
// and publishes an atomically-swapped immutable snapshot, grounded on the
// atomic-pointer CurrentHeader idiom in
// _examples/luxfi-evm/core/headerchain.go.
package chain

import (
	"sync"

	"github.com/nervosnode/ckbcore/types"
)

// StatusMap is the per-hash lifecycle flag store (C3). A single RWMutex
// guards it: reads (Get) are frequent on the gating path, writes (Set)
// only happen from the Chain Service reducer goroutine.
type StatusMap struct {
	mu   sync.RWMutex
	byID map[types.Hash]types.BlockStatus
}

// NewStatusMap builds an empty status map.
func NewStatusMap() *StatusMap {
	return &StatusMap{byID: make(map[types.Hash]types.BlockStatus)}
}

// Get returns hash's current status, StatusUnknown if never recorded.
func (m *StatusMap) Get(hash types.Hash) types.BlockStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byID[hash]
}

// Set records status for hash. Once a hash reaches StatusBlockInvalid the
// caller must not call Set again for it (terminal per spec.md §3).
func (m *StatusMap) Set(hash types.Hash, status types.BlockStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[hash] = status
}

// Remove drops hash's record entirely, so hash reads as StatusUnknown
// again. The Chain Service does not call it: invalidated orphan
// descendants keep their StatusBlockInvalid record.
func (m *StatusMap) Remove(hash types.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, hash)
}
