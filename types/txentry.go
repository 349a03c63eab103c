// Copyright (c) 2019-2026 The CKB Core Authors. All rights reserved.
// Use of this source code is governed by a license that can be found in the LICENSE file.

package types

import "time"

// TxEntry is a single transaction admitted to the Tx Pool Map, carrying
// both its own resource usage and the aggregated ancestor/descendant
// totals the pool maintains incrementally (spec.md §3).
type TxEntry struct {
	Tx        *Transaction
	ShortID   ProposalShortID
	Size      uint64
	Cycles    uint64
	Fee       uint64
	Timestamp time.Time

	AncestorsCount  uint64
	AncestorsSize   uint64
	AncestorsFee    uint64
	AncestorsCycles uint64

	DescendantsCount  uint64
	DescendantsSize   uint64
	DescendantsFee    uint64
	DescendantsCycles uint64
}

// OwnWeight is the unit used for fee-rate comparisons (proportional to
// serialized size); cycles are not part of the fee-rate denominator in
// ckb, matching spec.md's "weight" in AncestorsScoreSortKey.
func (e *TxEntry) OwnWeight() uint64 { return e.Size }

// Clone returns a deep-enough copy for safe aggregation math (the
// Transaction pointer is shared; the numeric fields are copied by value).
func (e *TxEntry) Clone() *TxEntry {
	cp := *e
	return &cp
}
