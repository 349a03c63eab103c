// Copyright (c) 2019-2026 The CKB Core Authors. All rights reserved.
// Use of this source code is governed by a license that can be found in the LICENSE file.

package txpool

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nervosnode/ckbcore/types"
)

// row mirrors the (fee, weight, ancestors_fee, ancestors_weight) fixture
// from original_source/tx-pool/src/component/tests/score_key.rs.
type row struct{ fee, weight, ancestorsFee, ancestorsWeight uint64 }

var table = []row{
	{0, 0, 0, 0},
	{1, 0, 1, 0},
	{500, 10, 1000, 30},
	{10, 500, 30, 1000},
	{500, 10, 1000, 30},
	{10, 500, 30, 1000},
	{500, 10, 1000, 20},
	{^uint64(0), 0, ^uint64(0), 0},
	{^uint64(0), 100, ^uint64(0), 2000},
	{^uint64(0), ^uint64(0), ^uint64(0), ^uint64(0)},
}

// keyFor builds the sort key for row i with a short-id chosen so that
// "hash descending" tie-breaking preserves the original table order for
// rows whose fee-rate compares equal (rows 2/4 and 3/5 are literal
// duplicates) — matching the Rust reference's stable sort semantics.
func keyFor(i int, r row) AncestorsScoreSortKey {
	var id types.ProposalShortID
	id[0] = byte(len(table) - i) // earlier index -> larger short-id -> sorts first on ties
	return AncestorsScoreSortKey{
		ShortID:         id,
		Fee:             r.fee,
		Weight:          r.weight,
		AncestorsFee:    r.ancestorsFee,
		AncestorsWeight: r.ancestorsWeight,
	}
}

func TestAncestorsSortedKeyOrder(t *testing.T) {
	keys := make([]AncestorsScoreSortKey, len(table))
	for i, r := range table {
		keys[i] = keyFor(i, r)
	}
	sort.SliceStable(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	want := []int{0, 3, 5, 9, 2, 4, 6, 8, 1, 7}
	got := make([]int, len(keys))
	for i, k := range keys {
		got[i] = len(table) - int(k.ShortID[0])
	}
	require.Equal(t, want, got)
}

func TestMinFeeAndWeight(t *testing.T) {
	cases := []struct {
		r          row
		wantFee    uint64
		wantWeight uint64
	}{
		{row{0, 0, 0, 0}, 0, 0},
		{row{1, 0, 1, 0}, 1, 0},
		{row{500, 10, 1000, 30}, 1000, 30},
		{row{10, 500, 30, 1000}, 10, 500},
		{row{500, 10, 1000, 20}, 1000, 20},
		{row{^uint64(0), 0, ^uint64(0), 0}, ^uint64(0), 0},
		{row{^uint64(0), 100, ^uint64(0), 2000}, ^uint64(0), 2000},
		{row{^uint64(0), ^uint64(0), ^uint64(0), ^uint64(0)}, ^uint64(0), ^uint64(0)},
	}
	for _, tc := range cases {
		k := AncestorsScoreSortKey{Fee: tc.r.fee, Weight: tc.r.weight, AncestorsFee: tc.r.ancestorsFee, AncestorsWeight: tc.r.ancestorsWeight}
		f, w := k.minFeeAndWeight()
		require.Equal(t, tc.wantFee, f)
		require.Equal(t, tc.wantWeight, w)
	}
}
