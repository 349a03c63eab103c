// Copyright (c) 2019-2026 The CKB Core Authors. All rights reserved.
// Use of this source code is governed by a license that can be found in the LICENSE file.

package txpool

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/nervosnode/ckbcore/types"
)

// RejectPersistence is the narrow capability the Recent-Reject Cache
// needs from the Persistent Store Facade (C12) to flush on shutdown and
// restore on startup (spec.md §4.5, §6).
type RejectPersistence interface {
	SaveRejects(map[types.Hash]RejectReason) error
	LoadRejects() (map[types.Hash]RejectReason, error)
}

// RecentRejectCache is a bounded, approximately-LRU cache of recently
// rejected tx hashes and reasons (C5). It serves fast rejection of
// repeatedly-submitted invalid transactions and is optionally persisted
// across restarts.
type RecentRejectCache struct {
	mu    sync.Mutex
	cache *lru.Cache
	store RejectPersistence
}

// NewRecentRejectCache builds a cache of the given soft capacity. store
// may be nil, in which case Flush/Restore are no-ops.
func NewRecentRejectCache(capacity int, store RejectPersistence) *RecentRejectCache {
	if capacity <= 0 {
		capacity = 1
	}
	c, _ := lru.New(capacity)
	return &RecentRejectCache{cache: c, store: store}
}

// Add records hash as rejected for reason, unless reason is transient
// (spec.md §7: transient reasons like Busy are never cached).
func (c *RecentRejectCache) Add(hash types.Hash, reason RejectReason) {
	if reason.Transient() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(hash, reason)
}

// Get reports whether hash was recently rejected, and why.
func (c *RecentRejectCache) Get(hash types.Hash) (RejectReason, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.cache.Get(hash)
	if !ok {
		return 0, false
	}
	return v.(RejectReason), true
}

// Len reports the number of currently cached rejections.
func (c *RecentRejectCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}

// Flush persists the current cache contents via the configured store, on
// shutdown (spec.md §6).
func (c *RecentRejectCache) Flush() error {
	if c.store == nil {
		return nil
	}
	c.mu.Lock()
	snapshot := make(map[types.Hash]RejectReason, c.cache.Len())
	for _, k := range c.cache.Keys() {
		if v, ok := c.cache.Peek(k); ok {
			snapshot[k.(types.Hash)] = v.(RejectReason)
		}
	}
	c.mu.Unlock()
	return c.store.SaveRejects(snapshot)
}

// Restore loads previously persisted rejections at startup.
func (c *RecentRejectCache) Restore() error {
	if c.store == nil {
		return nil
	}
	snapshot, err := c.store.LoadRejects()
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for h, r := range snapshot {
		c.cache.Add(h, r)
	}
	return nil
}
