// Copyright (c) 2019-2026 The CKB Core Authors. All rights reserved.
// Use of this source code is governed by a license that can be found in the LICENSE file.

package orphanblock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nervosnode/ckbcore/types"
)

func hashFromByte(b byte) types.Hash {
	var h types.Hash
	h[0] = b
	return h
}

func lonely(hash, parent types.Hash, epoch uint64) *types.LonelyBlock {
	return &types.LonelyBlock{
		Hash:        hash,
		ParentHash:  parent,
		EpochNumber: epoch,
		ReceiveTime: time.Now(),
	}
}

// TestRemoveBlocksByParentFlushesSubtree covers spec.md §8 property 1 (every
// orphan is reachable from exactly one leader) and scenario S4: insert B with
// parent A, then C with parent B, while A itself is absent from the pool.
func TestRemoveBlocksByParentFlushesSubtree(t *testing.T) {
	p := New(0)
	a, b, c := hashFromByte(0xA), hashFromByte(0xB), hashFromByte(0xC)

	p.Insert(lonely(b, a, 0))
	p.Insert(lonely(c, b, 0))

	require.ElementsMatch(t, []types.Hash{a}, p.CloneLeaders())
	require.Equal(t, 2, p.Len())

	removed := p.RemoveBlocksByParent(a)
	require.Len(t, removed, 2)

	gotHashes := []types.Hash{removed[0].Hash, removed[1].Hash}
	require.ElementsMatch(t, []types.Hash{b, c}, gotHashes)
	// BFS order: B (direct child of A) must precede C (child of B).
	require.Equal(t, b, removed[0].Hash)
	require.Equal(t, c, removed[1].Hash)

	require.Equal(t, 0, p.Len())
	require.Empty(t, p.CloneLeaders())
}

// TestRemoveBlocksByParentAbsentLeaderIsNoop covers the spec's authoritative
// early-return semantics: removing by a parent hash that is not a leader
// yields an empty, non-panicking result.
func TestRemoveBlocksByParentAbsentLeaderIsNoop(t *testing.T) {
	p := New(0)
	removed := p.RemoveBlocksByParent(hashFromByte(0xFF))
	require.Nil(t, removed)
}

// TestInsertDedupesLeaderOnOutOfOrderArrival covers property 2: a hash
// recorded as a leader by an earlier out-of-order insert is no longer
// considered a leader once it itself arrives as an orphan.
func TestInsertDedupesLeaderOnOutOfOrderArrival(t *testing.T) {
	p := New(0)
	a, b, c := hashFromByte(0xA), hashFromByte(0xB), hashFromByte(0xC)

	// C arrives first, naming B as its (not-yet-present) parent.
	p.Insert(lonely(c, b, 0))
	require.ElementsMatch(t, []types.Hash{b}, p.CloneLeaders())

	// B arrives, naming A as its parent. B is no longer a leader: it is
	// itself an orphan now.
	p.Insert(lonely(b, a, 0))
	require.ElementsMatch(t, []types.Hash{a}, p.CloneLeaders())

	removed := p.RemoveBlocksByParent(a)
	require.Len(t, removed, 2)
	require.Equal(t, b, removed[0].Hash)
	require.Equal(t, c, removed[1].Hash)
}

// TestGetBlockAndLen covers basic lookup and property 3 (pool size always
// equals the number of distinct orphan hashes held).
func TestGetBlockAndLen(t *testing.T) {
	p := New(0)
	a, b := hashFromByte(0xA), hashFromByte(0xB)
	p.Insert(lonely(b, a, 0))

	got, ok := p.GetBlock(b)
	require.True(t, ok)
	require.Equal(t, b, got.Hash)
	require.Equal(t, 1, p.Len())

	_, ok = p.GetBlock(hashFromByte(0xFF))
	require.False(t, ok)
}

// TestCleanExpiredBlocksEvictsStaleSubtrees covers spec.md §4.1's
// ExpiredEpoch(6) eviction: a leader whose first child is more than 6
// epochs behind the tip is flushed out wholesale.
func TestCleanExpiredBlocksEvictsStaleSubtrees(t *testing.T) {
	p := New(0)
	a, b, fresh := hashFromByte(0xA), hashFromByte(0xB), hashFromByte(0xD)
	freshParent := hashFromByte(0xE)

	p.Insert(lonely(b, a, 1)) // epoch 1, tip will be 1+6=7 -> stale at tip 8
	p.Insert(lonely(fresh, freshParent, 10))

	removed := p.CleanExpiredBlocks(8)
	require.Len(t, removed, 1)
	require.Equal(t, b, removed[0].Hash)

	require.Equal(t, 1, p.Len())
	require.ElementsMatch(t, []types.Hash{freshParent}, p.CloneLeaders())
}

func TestLeadersLenMatchesCloneLeaders(t *testing.T) {
	p := New(0)
	p.Insert(lonely(hashFromByte(0xB), hashFromByte(0xA), 0))
	p.Insert(lonely(hashFromByte(0xD), hashFromByte(0xC), 0))
	require.Equal(t, 2, p.leadersLen())
}
