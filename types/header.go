// Copyright (c) 2019-2026 The CKB Core Authors. All rights reserved.
// Use of this source code is governed by a license that can be found in the LICENSE file.

// Package types holds the data model shared across the block-and-transaction
// pipeline: headers, blocks, pool entries, block status, and snapshots.
package types

import "fmt"

// Hash is an opaque 32-byte block or transaction identifier.
type Hash [32]byte

// ZeroHash is the all-zero seed used as the parent filter hash for block 0.
var ZeroHash Hash

func (h Hash) String() string {
	return fmt.Sprintf("%x", [32]byte(h))
}

// Less gives Hash a deterministic byte-wise ordering, used to break total
// difficulty ties between competing chain tips (spec.md §4.6).
func (h Hash) Less(other Hash) bool {
	for i := range h {
		if h[i] != other[i] {
			return h[i] < other[i]
		}
	}
	return false
}

// Epoch is CKB's compound consensus time window.
type Epoch struct {
	Index       uint64
	Length      uint64
	StartNumber uint64
}

// Header is the portion of a block that is independently verifiable and
// chained by hash.
type Header struct {
	Hash              Hash
	ParentHash        Hash
	Number            uint64
	Epoch             Epoch
	TimestampMillis   uint64
	ProposalsRoot     Hash
	TransactionsRoot  Hash
	DAOStateRoot      Hash
	CompactTargetBits uint32 // PoW difficulty target, opaque to the core per spec.md §1 non-goals
	Nonce             [16]byte
}

// EpochNumber returns the epoch index component used by orphan expiry
// (spec.md §4.1).
func (h *Header) EpochNumber() uint64 { return h.Epoch.Index }
