// Copyright (c) 2019-2026 The CKB Core Authors. All rights reserved.
// Use of this source code is governed by a license that can be found in the LICENSE file.

package types

import "time"

// PeerID identifies the network peer a block or transaction originated
// from. Peer-discovery/session semantics are out of scope (spec.md §1);
// this is an opaque identifier the orphan pool and chain service carry
// around to attribute validation failures.
type PeerID string

// LonelyBlock is an orphan block entry: a block whose parent is not yet
// known to the node. Owned exclusively by the Orphan Block Pool until
// removed (spec.md §3, §4.1).
type LonelyBlock struct {
	Block       *Block
	Hash        Hash
	ParentHash  Hash
	EpochNumber uint64
	PeerOrigin  PeerID
	ReceiveTime time.Time
}
