// Copyright (c) 2019-2026 The CKB Core Authors. All rights reserved.
// Use of this source code is governed by a license that can be found in the LICENSE file.

// Package txpool implements the transaction pool with ancestor/descendant
// accounting (C4), the recent-reject cache (C5), the orphan transaction
// pool (C6), and the verify queue (C7) from spec.md §4.3-§4.4.
package txpool

import (
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/btree"
	"golang.org/x/exp/maps"

	"github.com/nervosnode/ckbcore/types"
)

// DefaultMaxAncestors is the default ancestor-count admission ceiling
// (spec.md §3).
const DefaultMaxAncestors = 125

// FeeResolver recovers the absolute fee a transaction paid, for entries
// the pool did not itself admit through the ordinary verify-queue path
// (spec.md §4.6: a reorg's disconnected transactions carry no TxEntry,
// only the raw Transaction the block stored). Script/cell verification
// is out of scope (spec.md §1 non-goals), so the pool takes this as a
// narrow injected capability rather than resolving inputs itself.
type FeeResolver interface {
	Fee(tx *types.Transaction) (uint64, error)
}

// ZeroFeeResolver is the FeeResolver used when none is configured: every
// disconnected transaction is treated as paying no fee, so it competes at
// the bottom of the fee-rate ordering; with a nonzero min fee rate
// configured, AddProposed rejects it as RejectLowFeeRate.
type ZeroFeeResolver struct{}

// Fee always returns zero.
func (ZeroFeeResolver) Fee(*types.Transaction) (uint64, error) { return 0, nil }

// links holds the DAG edges over in-pool dependencies for a single entry,
// stored as short-id sets rather than back-pointers so the graph has no
// cyclic ownership (spec.md §9).
type links struct {
	parents  mapset.Set[types.ProposalShortID]
	children mapset.Set[types.ProposalShortID]
}

func newLinks() *links {
	return &links{parents: mapset.NewThreadUnsafeSet[types.ProposalShortID](), children: mapset.NewThreadUnsafeSet[types.ProposalShortID]()}
}

// PoolMap is the content-addressed store of TxEntry plus its auxiliary
// indices (spec.md §4.3). The zero value is not usable; use NewPoolMap.
type PoolMap struct {
	mu sync.RWMutex

	maxAncestors            uint64
	maxPoolSize             uint64
	minFeeRatePerKB         uint64
	incrementalRelayFeeRate uint64
	fees                    FeeResolver

	entries map[types.ProposalShortID]*types.TxEntry
	links   map[types.ProposalShortID]*links
	// consumedBy indexes which in-pool tx currently spends a given
	// outpoint, detecting double-spends across pool entries.
	consumedBy map[types.OutPoint]types.ProposalShortID

	sorted    *btree.BTreeG[AncestorsScoreSortKey]
	totalSize uint64
}

// NewPoolMap constructs an empty pool map. maxAncestors <= 0 selects
// DefaultMaxAncestors.
func NewPoolMap(maxAncestors int, maxPoolSize uint64, minFeeRatePerKB uint64) *PoolMap {
	if maxAncestors <= 0 {
		maxAncestors = DefaultMaxAncestors
	}
	return &PoolMap{
		maxAncestors: uint64(maxAncestors),
		maxPoolSize:  maxPoolSize,
		// tx_pool.min_fee_rate (spec.md §6) doubles as the incremental-
		// relay-fee floor a replace-by-fee candidate must clear over the
		// bytes it evicts (spec.md §4.3) — the config surface names no
		// separate knob for it.
		minFeeRatePerKB:         minFeeRatePerKB,
		incrementalRelayFeeRate: minFeeRatePerKB,
		fees:                    ZeroFeeResolver{},
		entries:                 make(map[types.ProposalShortID]*types.TxEntry),
		links:                   make(map[types.ProposalShortID]*links),
		consumedBy:              make(map[types.OutPoint]types.ProposalShortID),
		sorted:                  btree.NewG(32, func(a, b AncestorsScoreSortKey) bool { return a.Less(b) }),
	}
}

// WithFeeResolver configures the resolver ReadmitDisconnected uses to
// price reorg-disconnected transactions before re-admission.
func (m *PoolMap) WithFeeResolver(r FeeResolver) *PoolMap {
	m.fees = r
	return m
}

// Len returns the number of entries currently admitted.
func (m *PoolMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// ShortIDs returns a snapshot of every short-id currently admitted, in no
// particular order, enumerating the whole pool without walking the sorted
// index.
func (m *PoolMap) ShortIDs() []types.ProposalShortID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Keys(m.entries)
}

// ContainsKey reports whether id is currently admitted.
func (m *PoolMap) ContainsKey(id types.ProposalShortID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[id]
	return ok
}

// Get returns a copy-free pointer to the live entry for id, if present.
// Callers must not mutate it.
func (m *PoolMap) Get(id types.ProposalShortID) (*types.TxEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	return e, ok
}

func (m *PoolMap) sortKey(e *types.TxEntry) AncestorsScoreSortKey {
	return AncestorsScoreSortKey{
		ShortID:         e.ShortID,
		Fee:             e.Fee,
		Weight:          e.OwnWeight(),
		AncestorsFee:    e.AncestorsFee,
		AncestorsWeight: e.AncestorsSize,
	}
}

// directParents resolves in-pool parents of entry by scanning its inputs
// against already-admitted producing transactions (the short-id of an
// outpoint's producing tx hash is its pool key — spec.md §4.3), and
// collects the short-ids of any already-admitted transactions that
// directly conflict with entry (spend one of the same inputs). Conflicts
// are not rejected here: AddProposed decides, via resolveReplacement,
// whether the candidate qualifies as a replace-by-fee admission.
func (m *PoolMap) directParents(e *types.TxEntry) (parents, conflicts mapset.Set[types.ProposalShortID]) {
	parents = mapset.NewThreadUnsafeSet[types.ProposalShortID]()
	conflicts = mapset.NewThreadUnsafeSet[types.ProposalShortID]()
	for _, in := range e.Tx.Inputs {
		op := in.PreviousOutput
		if consumer, ok := m.consumedBy[op]; ok && consumer != e.ShortID {
			conflicts.Add(consumer)
		}
		producerID := types.ShortIDFromHash(op.TxHash)
		if _, ok := m.entries[producerID]; ok {
			parents.Add(producerID)
		}
	}
	return parents, conflicts
}

// resolveReplacement validates a replace-by-fee admission (spec.md §4.3:
// "a candidate replacing a direct conflict must (a) pay strictly more
// absolute fee than the evicted set and (b) satisfy an incremental-
// relay-fee floor over the evicted bytes"). conflicts is the set of
// directly-conflicting entries; the evicted set additionally includes
// their full transitive descendants, since those would be left spending
// an output the replacement no longer produces. On success it returns
// the full evicted set; on failure it returns the RejectConflict error
// that should be surfaced (and, per spec.md §7, cached in Recent-Reject
// since it is not a transient reason).
func (m *PoolMap) resolveReplacement(e *types.TxEntry, conflicts mapset.Set[types.ProposalShortID]) (mapset.Set[types.ProposalShortID], *AdmissionError) {
	evicted := mapset.NewThreadUnsafeSet[types.ProposalShortID]()
	var firstConflictOutPoint types.OutPoint
	for _, in := range e.Tx.Inputs {
		if consumer, ok := m.consumedBy[in.PreviousOutput]; ok && conflicts.Contains(consumer) {
			firstConflictOutPoint = in.PreviousOutput
			break
		}
	}
	for _, cid := range conflicts.ToSlice() {
		evicted.Add(cid)
		for _, d := range m.descendantSet(cid).ToSlice() {
			evicted.Add(d)
		}
	}

	var evictedFee, evictedSize uint64
	for _, id := range evicted.ToSlice() {
		v := m.entries[id]
		evictedFee += v.Fee
		evictedSize += v.Size
	}

	// The incremental-relay-fee floor uses the pool's configured fee-rate
	// floor (spec.md §6 tx_pool.min_fee_rate is the only fee-rate knob the
	// core's config surface enumerates) applied over the bytes being
	// evicted, on top of strictly outbidding their absolute fee.
	floor := m.incrementalRelayFeeRate * evictedSize / 1000
	if e.Fee <= evictedFee || e.Fee < evictedFee+floor {
		return nil, rejectConflict(firstConflictOutPoint)
	}
	return evicted, nil
}

// ancestorSet performs the transitive BFS closure over links.parents
// starting from the given direct-parent set, excluding the entry itself.
func (m *PoolMap) ancestorSet(direct mapset.Set[types.ProposalShortID]) mapset.Set[types.ProposalShortID] {
	seen := mapset.NewThreadUnsafeSet[types.ProposalShortID]()
	queue := direct.ToSlice()
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen.Contains(id) {
			continue
		}
		seen.Add(id)
		if l, ok := m.links[id]; ok {
			for _, p := range l.parents.ToSlice() {
				if !seen.Contains(p) {
					queue = append(queue, p)
				}
			}
		}
	}
	return seen
}

// descendantSet performs the transitive BFS closure over links.children.
func (m *PoolMap) descendantSet(root types.ProposalShortID) mapset.Set[types.ProposalShortID] {
	seen := mapset.NewThreadUnsafeSet[types.ProposalShortID]()
	queue := []types.ProposalShortID{root}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if l, ok := m.links[id]; ok {
			for _, c := range l.children.ToSlice() {
				if !seen.Contains(c) {
					seen.Add(c)
					queue = append(queue, c)
				}
			}
		}
	}
	return seen
}

// CalcAncestors returns the transitive closure of id's in-pool ancestors
// (excluding id itself). Property/test surface for spec.md §8 property 4.
func (m *PoolMap) CalcAncestors(id types.ProposalShortID) mapset.Set[types.ProposalShortID] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.links[id]
	if !ok {
		return mapset.NewThreadUnsafeSet[types.ProposalShortID]()
	}
	return m.ancestorSet(l.parents)
}

// CalcDescendants returns the transitive closure of id's in-pool
// descendants (excluding id itself).
func (m *PoolMap) CalcDescendants(id types.ProposalShortID) mapset.Set[types.ProposalShortID] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.descendantSet(id)
}

// AddProposed admits entry to the pool (spec.md §4.3). On success it
// updates all ancestor/descendant aggregates and the sorted fee-rate
// index; on failure the pool is left unchanged.
func (m *PoolMap) AddProposed(e *types.TxEntry) *AdmissionError {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[e.ShortID]; exists {
		return reject(RejectDuplicate)
	}

	directParents, conflicts := m.directParents(e)
	ancestors := m.ancestorSet(directParents)
	if uint64(ancestors.Cardinality())+1 > m.maxAncestors {
		return reject(RejectTooManyAncestors)
	}

	var evicted mapset.Set[types.ProposalShortID]
	if conflicts.Cardinality() > 0 {
		var cerr *AdmissionError
		evicted, cerr = m.resolveReplacement(e, conflicts)
		if cerr != nil {
			return cerr
		}
		// A replacement can never legitimately evict its own ancestor: any
		// overlap between the conflict/descendant closure and the entry's
		// own ancestor set is subtracted, so a live parent's accounting is
		// never corrupted.
		evicted = evicted.Difference(ancestors)
	}

	if m.minFeeRatePerKB > 0 && e.Size > 0 {
		rateShannonsPerKB := e.Fee * 1000 / e.Size
		if rateShannonsPerKB < m.minFeeRatePerKB {
			return reject(RejectLowFeeRate)
		}
	}

	if m.maxPoolSize > 0 {
		// Reject before evicting anything when even evicting every
		// unprotected entry would not make room, so a rejection never
		// leaves the pool changed.
		var evictable uint64
		m.sorted.Ascend(func(k AncestorsScoreSortKey) bool {
			if !ancestors.Contains(k.ShortID) {
				evictable += m.entries[k.ShortID].Size
			}
			return true
		})
		if m.totalSize-evictable+e.Size > m.maxPoolSize {
			return reject(RejectPoolFull)
		}
		m.evictToFit(e.Size, ancestors)
		if m.totalSize+e.Size > m.maxPoolSize {
			return reject(RejectPoolFull)
		}
	}

	// All admission checks have passed: commit the replace-by-fee eviction
	// now, before the new entry is wired in (spec.md §4.3).
	if evicted != nil {
		m.evictBundleLocked(evicted)
	}

	// Aggregate ancestor totals from the unique ancestor set's own
	// contributions (never their aggregates, to avoid double counting a
	// shared grandparent reached through two different parents).
	var ancSize, ancFee, ancCycles uint64
	for _, id := range ancestors.ToSlice() {
		anc := m.entries[id]
		ancSize += anc.Size
		ancFee += anc.Fee
		ancCycles += anc.Cycles
	}
	// AncestorsCount is self-inclusive (the entry counts as its own first
	// ancestor) to match the admission ceiling check above and the
	// worked example in spec.md §8 scenario S2.
	e.AncestorsCount = uint64(ancestors.Cardinality()) + 1
	e.AncestorsSize = e.Size + ancSize
	e.AncestorsFee = e.Fee + ancFee
	e.AncestorsCycles = e.Cycles + ancCycles
	e.DescendantsCount = 0
	e.DescendantsSize = e.Size
	e.DescendantsFee = e.Fee
	e.DescendantsCycles = e.Cycles

	m.entries[e.ShortID] = e
	m.links[e.ShortID] = newLinks()
	for _, pid := range directParents.ToSlice() {
		m.links[e.ShortID].parents.Add(pid)
		m.links[pid].children.Add(e.ShortID)
	}
	for _, in := range e.Tx.Inputs {
		m.consumedBy[in.PreviousOutput] = e.ShortID
	}

	// Every ancestor (direct or transitive) gains this entry as a
	// descendant contribution.
	for _, id := range ancestors.ToSlice() {
		anc := m.entries[id]
		anc.DescendantsCount++
		anc.DescendantsSize += e.Size
		anc.DescendantsFee += e.Fee
		anc.DescendantsCycles += e.Cycles
	}

	m.sorted.ReplaceOrInsert(m.sortKey(e))
	m.totalSize += e.Size
	return nil
}

// ReadmitDisconnected implements chain.TxReadmitter (C8 -> C4 wiring):
// a reorg that disconnects blocks from the canonical chain resubmits
// their transactions here so they "reappear in the tx pool, subject to
// pool rules" (spec.md §4.6, scenario S6). Each transaction is priced
// via the configured FeeResolver and run through the ordinary AddProposed
// admission path as a fresh, zero-ancestor entry; one transaction's
// rejection (duplicate, now-conflicting, below the fee floor, and so on)
// does not block the rest of the batch.
func (m *PoolMap) ReadmitDisconnected(txs []*types.Transaction) {
	for _, tx := range txs {
		fee, err := m.fees.Fee(tx)
		if err != nil {
			continue
		}
		e := &types.TxEntry{
			Tx:        tx,
			ShortID:   tx.ShortID(),
			Size:      tx.Size(),
			Fee:       fee,
			Timestamp: time.Now(),
		}
		m.AddProposed(e)
	}
}

// evictToFit evicts minimum-fee-rate entries (that are not in protect,
// the new entry's own ancestors) via the sorted index until entry.Size
// more bytes would fit, or there is nothing left to evict.
func (m *PoolMap) evictToFit(needed uint64, protect mapset.Set[types.ProposalShortID]) {
	for m.totalSize+needed > m.maxPoolSize {
		var victim AncestorsScoreSortKey
		found := false
		m.sorted.Ascend(func(k AncestorsScoreSortKey) bool {
			if protect.Contains(k.ShortID) {
				return true
			}
			victim = k
			found = true
			return false
		})
		if !found {
			return
		}
		m.removeEntryLocked(victim.ShortID)
	}
}

// RemoveEntry detaches only id, re-parenting neither its parents nor its
// children: each parent's descendant aggregate loses id's own
// contribution, and the ancestor aggregate of each child and every further
// descendant is recomputed without id. Does not cascade (spec.md §4.3).
func (m *PoolMap) RemoveEntry(id types.ProposalShortID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeEntryLocked(id)
}

func (m *PoolMap) removeEntryLocked(id types.ProposalShortID) {
	e, ok := m.entries[id]
	if !ok {
		return
	}
	l := m.links[id]

	// Descendant aggregates were incremented, at insertion time, for
	// every transitive ancestor (not just direct parents) — mirror that
	// here so removal leaves no stale contribution behind.
	ancestors := m.ancestorSet(l.parents)
	for _, aid := range ancestors.ToSlice() {
		if a, ok := m.entries[aid]; ok {
			a.DescendantsCount--
			a.DescendantsSize -= e.Size
			a.DescendantsFee -= e.Fee
			a.DescendantsCycles -= e.Cycles
		}
	}

	for _, pid := range l.parents.ToSlice() {
		if pl, ok := m.links[pid]; ok {
			pl.children.Remove(id)
		}
	}
	// Every transitive descendant counted id among its ancestors, so each
	// one's ancestors_* aggregate is recomputed once id is detached.
	descendants := m.descendantSet(id)
	for _, cid := range l.children.ToSlice() {
		if cl, ok := m.links[cid]; ok {
			cl.parents.Remove(id)
		}
	}
	for _, did := range descendants.ToSlice() {
		if c, ok := m.entries[did]; ok {
			oldKey := m.sortKey(c)
			m.recomputeAncestors(c)
			m.sorted.Delete(oldKey)
			m.sorted.ReplaceOrInsert(m.sortKey(c))
		}
	}

	for _, in := range e.Tx.Inputs {
		if m.consumedBy[in.PreviousOutput] == id {
			delete(m.consumedBy, in.PreviousOutput)
		}
	}

	m.sorted.Delete(m.sortKey(e))
	delete(m.entries, id)
	delete(m.links, id)
	m.totalSize -= e.Size
}

// recomputeAncestors rebuilds c's ancestors_* aggregates from scratch over
// its current (post-removal) parent set. Used after a parent is detached
// so descendants never carry a stale contribution forward.
func (m *PoolMap) recomputeAncestors(c *types.TxEntry) {
	l := m.links[c.ShortID]
	ancestors := m.ancestorSet(l.parents)
	var size, fee, cycles uint64
	for _, id := range ancestors.ToSlice() {
		a := m.entries[id]
		size += a.Size
		fee += a.Fee
		cycles += a.Cycles
	}
	c.AncestorsCount = uint64(ancestors.Cardinality()) + 1
	c.AncestorsSize = c.Size + size
	c.AncestorsFee = c.Fee + fee
	c.AncestorsCycles = c.Cycles + cycles
}

// RemoveEntryAndDescendants removes id and every transitive descendant
// (leaves first), then subtracts the whole bundle's own contribution from
// each of id's parents' descendant aggregates (spec.md §4.3).
func (m *PoolMap) RemoveEntryAndDescendants(id types.ProposalShortID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[id]; !ok {
		return
	}
	descendants := m.descendantSet(id)
	descendants.Add(id)
	m.evictBundleLocked(descendants)
}

// evictBundleLocked removes every id in bundle, leaves first: it
// repeatedly removes any member whose children (within bundle) have
// already been removed, so a parent's removal never runs while one of
// its still-live children holds a dangling reference to it. Used both by
// RemoveEntryAndDescendants (a root plus its full descendant closure) and
// by AddProposed's replace-by-fee eviction (a conflicting entry plus its
// full descendant closure).
func (m *PoolMap) evictBundleLocked(bundle mapset.Set[types.ProposalShortID]) {
	remaining := bundle.ToSlice()
	removed := mapset.NewThreadUnsafeSet[types.ProposalShortID]()
	for removed.Cardinality() < len(remaining) {
		progressed := false
		for _, cand := range remaining {
			if removed.Contains(cand) {
				continue
			}
			l, ok := m.links[cand]
			if !ok {
				removed.Add(cand)
				progressed = true
				continue
			}
			allChildrenGone := true
			for _, c := range l.children.ToSlice() {
				if !removed.Contains(c) {
					allChildrenGone = false
					break
				}
			}
			if allChildrenGone {
				m.removeEntryLocked(cand)
				removed.Add(cand)
				progressed = true
			}
		}
		if !progressed {
			break // defensive: no cycles should exist, but never spin forever
		}
	}
}
