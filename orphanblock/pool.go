// Copyright (c) 2019-2026 The CKB Core Authors. All rights reserved.
// Use of this source code is governed by a license that can be found in the LICENSE file.

// Package orphanblock implements the Orphan Block Pool (C1): blocks whose
// parent is not yet known to the node, grouped by parent hash so that
// whole descendant chains can be flushed in one step once the parent
// arrives (spec.md §4.1), adapted from
// original_source/chain/src/utils/orphan_block_pool.rs.
package orphanblock

import (
	"bytes"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/exp/slices"

	"github.com/nervosnode/ckbcore/types"
)

// ExpiredEpoch is the number of epochs an orphan may lag behind the tip
// before it is considered stale (spec.md §4.1).
const ExpiredEpoch = 6

// shrinkThreshold is the live-size bound for shrink: after a removal
// pass, a top-level map holding at most this many entries is rebuilt at
// its current size, releasing capacity retained from a large subtree
// eviction. A map holding more entries is not rebuilt; its slack is not
// measured.
const shrinkThreshold = 100

// Pool holds three mappings — blocks by parent, each orphan's own
// parent, and the set of "leader" parent hashes that are referenced by at
// least one orphan but are not themselves orphans (spec.md §4.1, §9).
//
// A single RWMutex protects the whole pool rather than per-bucket
// locking: the Chain Service's Block Status Map must stay synchronized
// with this pool, and an LRU-style container would silently evict
// entries behind the Chain Service's back.
type Pool struct {
	mu sync.RWMutex

	blocks  map[types.Hash]map[types.Hash]*types.LonelyBlock
	parents map[types.Hash]types.Hash
	leaders mapset.Set[types.Hash]
}

// New constructs an empty pool. capacity only hints the initial bucket
// sizing (spec.md §6 orphan_pool_capacity).
func New(capacity int) *Pool {
	return &Pool{
		blocks:  make(map[types.Hash]map[types.Hash]*types.LonelyBlock, capacity),
		parents: make(map[types.Hash]types.Hash),
		leaders: mapset.NewThreadUnsafeSet[types.Hash](),
	}
}

// Insert adds an orphan whose parent has already been requested.
func (p *Pool) Insert(lonely *types.LonelyBlock) {
	p.mu.Lock()
	defer p.mu.Unlock()

	hash, parentHash := lonely.Hash, lonely.ParentHash
	bucket, ok := p.blocks[parentHash]
	if !ok {
		bucket = make(map[types.Hash]*types.LonelyBlock)
		p.blocks[parentHash] = bucket
	}
	bucket[hash] = lonely

	// Out-of-order insertion needs deduplication: hash may itself have
	// been recorded as a leader by an earlier, out-of-order insert of
	// one of its own children.
	p.leaders.Remove(hash)

	if _, inPool := p.parents[parentHash]; !inPool {
		p.leaders.Add(parentHash)
	}
	p.parents[hash] = parentHash
}

// RemoveBlocksByParent flushes the whole orphaned subtree rooted at
// parentHash in BFS order, restoring the pool invariants. Returns nil if
// parentHash is not a leader (spec.md §9 Open Questions: the early return
// on "not a leader" is authoritative; an empty result is legal, not a
// bug).
func (p *Pool) RemoveBlocksByParent(parentHash types.Hash) []*types.LonelyBlock {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removeBlocksByParentLocked(parentHash)
}

func (p *Pool) removeBlocksByParentLocked(parentHash types.Hash) []*types.LonelyBlock {
	if !p.leaders.Contains(parentHash) {
		return nil
	}
	p.leaders.Remove(parentHash)

	queue := []types.Hash{parentHash}
	var removed []*types.LonelyBlock
	for len(queue) > 0 {
		ph := queue[0]
		queue = queue[1:]

		bucket, ok := p.blocks[ph]
		if !ok {
			continue
		}
		delete(p.blocks, ph)
		for hash, lonely := range bucket {
			delete(p.parents, hash)
			queue = append(queue, hash)
			removed = append(removed, lonely)
		}
	}

	p.shrink()
	return removed
}

// shrink rebuilds the top-level maps into freshly sized ones once a
// removal has brought their live size back under the threshold: unlike
// Rust's HashMap, a Go map never releases bucket memory on delete, so a
// large subtree eviction needs an explicit rebuild to give it back.
func (p *Pool) shrink() {
	if len(p.blocks) <= shrinkThreshold {
		rebuilt := make(map[types.Hash]map[types.Hash]*types.LonelyBlock, len(p.blocks))
		for k, v := range p.blocks {
			rebuilt[k] = v
		}
		p.blocks = rebuilt
	}
	if len(p.parents) <= shrinkThreshold {
		rebuilt := make(map[types.Hash]types.Hash, len(p.parents))
		for k, v := range p.parents {
			rebuilt[k] = v
		}
		p.parents = rebuilt
	}
}

// GetBlock returns the orphan entry for hash, if any.
func (p *Pool) GetBlock(hash types.Hash) (*types.LonelyBlock, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	parentHash, ok := p.parents[hash]
	if !ok {
		return nil, false
	}
	lonely, ok := p.blocks[parentHash][hash]
	return lonely, ok
}

// CleanExpiredBlocks evicts every leader subtree whose first child has
// fallen more than ExpiredEpoch behind tipEpoch (spec.md §4.1, property
// 3).
func (p *Pool) CleanExpiredBlocks(tipEpoch uint64) []*types.LonelyBlock {
	p.mu.Lock()
	defer p.mu.Unlock()

	var result []*types.LonelyBlock
	for _, leader := range p.leaders.ToSlice() {
		if p.needClean(leader, tipEpoch) {
			result = append(result, p.removeBlocksByParentLocked(leader)...)
		}
	}
	return result
}

func (p *Pool) needClean(parentHash types.Hash, tipEpoch uint64) bool {
	bucket, ok := p.blocks[parentHash]
	if !ok {
		return false
	}
	for _, lonely := range bucket {
		return lonely.EpochNumber+ExpiredEpoch < tipEpoch
	}
	return false
}

// Len returns the total number of orphan entries held.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.parents)
}

// CloneLeaders returns a snapshot of the current leader set, sorted by
// hash for deterministic iteration across repeated calls rather than the
// set's own, unspecified, iteration order. CleanExpiredBlocks does not
// use it and walks the set in its own order.
func (p *Pool) CloneLeaders() []types.Hash {
	p.mu.RLock()
	leaders := p.leaders.ToSlice()
	p.mu.RUnlock()
	slices.SortFunc(leaders, func(a, b types.Hash) int {
		return bytes.Compare(a[:], b[:])
	})
	return leaders
}

// leadersLen is exposed for white-box invariant tests (spec.md §8
// property 1).
func (p *Pool) leadersLen() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.leaders.Cardinality()
}
