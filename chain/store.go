// Copyright (c) 2019-2026 The CKB Core Authors. All rights reserved.
// Use of this source code is governed by a license that can be found in the LICENSE file.

package chain

import (
	"github.com/holiman/uint256"

	"github.com/nervosnode/ckbcore/types"
)

// Store is the narrow capability the Chain Service needs from the
// Persistent Store Facade (C12): read/write of headers and blocks,
// per-hash total difficulty, and the canonical number→hash index. The
// full facade (durable pebble-backed implementation, transactional
// batches over cells/filters) lives in package store; this interface is
// kept local so chain never imports it directly, avoiding a cyclic
// dependency and matching the trait-based decoupling of
// original_source/chain/src/chain_provider.rs.
type Store interface {
	GetHeader(hash types.Hash) (types.Header, bool)
	GetBlock(hash types.Hash) (*types.Block, bool)
	GetTotalDifficulty(hash types.Hash) (*uint256.Int, bool)

	// PutBlock persists block together with its total difficulty. It does
	// not by itself affect the canonical index.
	PutBlock(block *types.Block, totalDifficulty *uint256.Int) error

	// SetCanonical records hash as the canonical block at number,
	// overwriting any previous entry (used on connect/reorg).
	SetCanonical(number uint64, hash types.Hash) error
	// CanonicalHash returns the canonical hash at number, if recorded.
	CanonicalHash(number uint64) (types.Hash, bool)
}

// Provider is the narrow read-only capability the Block Filter Service
// (C10) consumes instead of depending on the full Chain Service type,
// mirroring original_source/chain/src/chain_provider.rs's trait shape:
// current tip, consensus parameters, and a store handle.
type Provider interface {
	Tip() types.Header
	Consensus() ConsensusParams
	Store() Store
}

// provider adapts a *Manager (read-only) to the Provider interface.
type provider struct{ mgr *Manager }

// AsProvider exposes mgr as a read-only Provider, for components (like
// the Block Filter Service) that should never see the Chain Service's
// mutating surface.
func AsProvider(mgr *Manager) Provider { return provider{mgr: mgr} }

func (p provider) Tip() types.Header            { return p.mgr.Load().Tip }
func (p provider) Consensus() ConsensusParams   { return p.mgr.Load().Consensus }
func (p provider) Store() Store                 { return p.mgr.Load().Store }
