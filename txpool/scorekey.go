// Copyright (c) 2019-2026 The CKB Core Authors. All rights reserved.
// Use of this source code is governed by a license that can be found in the LICENSE file.

package txpool

import (
	"github.com/holiman/uint256"

	"github.com/nervosnode/ckbcore/types"
)

// AncestorsScoreSortKey is the ordering key used for eviction and block
// template selection (spec.md §3). It picks the worse of "this entry
// alone" and "this entry's ancestor bundle" as the effective fee-rate, so
// an expensive tx dragging in a cheap ancestor chain is scheduled by the
// chain's weakest link, not its own fee.
type AncestorsScoreSortKey struct {
	ShortID        types.ProposalShortID
	Fee            uint64
	Weight         uint64
	AncestorsFee   uint64
	AncestorsWeight uint64
}

// minFeeAndWeight returns (effectiveFee, effectiveWeight): the ancestor
// bundle's pair if it has a lower (or equal, non-dominating) fee-rate than
// the entry alone, otherwise the entry's own pair.
//
// The comparison af*w < f*aw is done in 256-bit arithmetic (not plain
// uint64 multiplication) because fee and weight can each approach 2^64
// and a u64*u64 cross-multiply silently overflows long before ckb's own
// realistic fee/weight ranges are reached.
func (k AncestorsScoreSortKey) minFeeAndWeight() (fee, weight uint64) {
	left := new(uint256.Int).Mul(
		uint256.NewInt(k.AncestorsFee), uint256.NewInt(k.Weight),
	)
	right := new(uint256.Int).Mul(
		uint256.NewInt(k.Fee), uint256.NewInt(k.AncestorsWeight),
	)
	// Not a strict "<": when the two rates are exactly equal the
	// ancestor bundle's pair still wins, matching ckb's own Ord impl
	// (verified against original_source/tx-pool/.../score_key.rs, whose
	// (500,10,1000,20) fixture resolves to (1000,20) despite
	// 1000*10 == 500*20).
	if left.Cmp(right) <= 0 {
		return k.AncestorsFee, k.AncestorsWeight
	}
	return k.Fee, k.Weight
}

// Less implements the total order described in spec.md §3: ascending by
// effective fee-rate (effectiveFee/effectiveWeight), tie-broken by
// descending hash so iteration order is fully deterministic. "Maximum"
// under this order is the highest effective fee-rate — the tx the block
// template / fee-bumping logic wants first.
func (k AncestorsScoreSortKey) Less(other AncestorsScoreSortKey) bool {
	f1, w1 := k.minFeeAndWeight()
	f2, w2 := other.minFeeAndWeight()

	// f1/w1 < f2/w2  <=>  f1*w2 < f2*w1 (cross multiply, 256-bit safe).
	left := new(uint256.Int).Mul(uint256.NewInt(f1), uint256.NewInt(w2))
	right := new(uint256.Int).Mul(uint256.NewInt(f2), uint256.NewInt(w1))
	switch left.Cmp(right) {
	case -1:
		return true
	case 1:
		return false
	}
	// Equal fee-rate: hash descending, i.e. the lexicographically larger
	// hash sorts first (is "less" in the ordered-set sense).
	return bytesGreater(k.ShortID[:], other.ShortID[:])
}

func bytesGreater(a, b []byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] > b[i]
		}
	}
	return false
}
