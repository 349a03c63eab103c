// Copyright (c) 2019-2026 The CKB Core Authors. All rights reserved.
// Use of this source code is governed by a license that can be found in the LICENSE file.

package txpool

import (
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	lru "github.com/hashicorp/golang-lru"

	"github.com/nervosnode/ckbcore/types"
)

// OrphanTx is a transaction held by the Orphan Tx Pool because one or more
// of its inputs reference an outpoint the node cannot yet resolve
// (spec.md §4.4).
type OrphanTx struct {
	Tx         *types.Transaction
	Missing    []types.OutPoint
	ReceivedAt time.Time
}

// OrphanTxPool is a capped LRU of unresolved transactions, indexed
// secondarily by each missing input outpoint so that when an outpoint
// becomes available all dependents can be re-examined in one lookup
// (spec.md §4.4).
type OrphanTxPool struct {
	mu  sync.Mutex
	ttl time.Duration

	byHash    *lru.Cache // types.Hash -> *OrphanTx
	byOutPoint map[types.OutPoint]mapset.Set[types.Hash]
}

// NewOrphanTxPool builds an orphan pool capped at capacity entries, each
// expiring ttl after admission.
func NewOrphanTxPool(capacity int, ttl time.Duration) *OrphanTxPool {
	if capacity <= 0 {
		capacity = 1
	}
	p := &OrphanTxPool{
		ttl:        ttl,
		byOutPoint: make(map[types.OutPoint]mapset.Set[types.Hash]),
	}
	// Evicting the LRU's victim must also drop it from byOutPoint, so we
	// thread that cleanup through the eviction callback.
	cache, _ := lru.NewWithEvict(capacity, func(key, value interface{}) {
		p.unindex(value.(*OrphanTx))
	})
	p.byHash = cache
	return p
}

func (p *OrphanTxPool) unindex(o *OrphanTx) {
	h := o.Tx.Hash
	for _, op := range o.Missing {
		if set, ok := p.byOutPoint[op]; ok {
			set.Remove(h)
			if set.Cardinality() == 0 {
				delete(p.byOutPoint, op)
			}
		}
	}
}

// Add admits an orphan transaction, indexed by every outpoint it is still
// waiting on.
func (p *OrphanTxPool) Add(o *OrphanTx) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byHash.Add(o.Tx.Hash, o)
	for _, op := range o.Missing {
		set, ok := p.byOutPoint[op]
		if !ok {
			set = mapset.NewThreadUnsafeSet[types.Hash]()
			p.byOutPoint[op] = set
		}
		set.Add(o.Tx.Hash)
	}
}

// Remove evicts hash explicitly (e.g. once it has been resolved into the
// main pool, or its peer disconnected).
func (p *OrphanTxPool) Remove(hash types.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byHash.Remove(hash)
}

// DependentsOf returns every orphan currently blocked on op, called once
// op becomes available via a new block or a newly admitted pool tx.
func (p *OrphanTxPool) DependentsOf(op types.OutPoint) []*OrphanTx {
	p.mu.Lock()
	defer p.mu.Unlock()
	set, ok := p.byOutPoint[op]
	if !ok {
		return nil
	}
	out := make([]*OrphanTx, 0, set.Cardinality())
	for _, h := range set.ToSlice() {
		if v, ok := p.byHash.Peek(h); ok {
			out = append(out, v.(*OrphanTx))
		}
	}
	return out
}

// Len reports the current number of orphan transactions held.
func (p *OrphanTxPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.byHash.Len()
}

// ExpireOlderThan evicts every orphan received before the TTL cutoff from
// now, returning their hashes.
func (p *OrphanTxPool) ExpireOlderThan(now time.Time) []types.Hash {
	if p.ttl <= 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	var expired []types.Hash
	for _, k := range p.byHash.Keys() {
		v, ok := p.byHash.Peek(k)
		if !ok {
			continue
		}
		o := v.(*OrphanTx)
		if now.Sub(o.ReceivedAt) > p.ttl {
			expired = append(expired, k.(types.Hash))
		}
	}
	for _, h := range expired {
		p.byHash.Remove(h)
	}
	return expired
}
