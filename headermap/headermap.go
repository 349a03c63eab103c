// Copyright (c) 2019-2026 The CKB Core Authors. All rights reserved.
// Use of this source code is governed by a license that can be found in the LICENSE file.

// Package headermap implements the Header Map (C2): a two-tier cache of
// known headers by hash, an in-memory tier backed by
// github.com/VictoriaMetrics/fastcache in front of an ephemeral
// on-disk spill tier backed by github.com/dgraph-io/badger/v4, mirroring
// the role original_source/shared/src/types/header_map/backend_sled.rs
// plays for the on-disk side (spec.md §4.2, §9 "capability set").
package headermap

import (
	"encoding/binary"
	"os"
	"sync"
	"time"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/dgraph-io/badger/v4"

	"github.com/nervosnode/ckbcore/chainerr"
	"github.com/nervosnode/ckbcore/types"
)

// flushBatchThreshold governs when evicted tier-1 entries are actually
// written out to tier-2; an external timer can force a flush earlier via
// FlushTick (spec.md §4.2: "batch-flush when batch ≥ 1,024 or on timer
// tick").
const flushBatchThreshold = 1024

// View is the serialized form of a Header kept in the Header Map,
// matching HeaderIndexView from spec.md §6's "on-disk persisted state"
// description.
type View struct {
	Header      types.Header
	TotalDiffLo uint64 // low 64 bits of a 128-bit total difficulty accumulator
	TotalDiffHi uint64
}

func encodeView(v View) []byte {
	buf := make([]byte, 0, 32*4+8*5+4)
	appendHash := func(h types.Hash) { buf = append(buf, h[:]...) }
	var scratch [8]byte
	appendU64 := func(x uint64) {
		binary.LittleEndian.PutUint64(scratch[:], x)
		buf = append(buf, scratch[:]...)
	}
	appendHash(v.Header.Hash)
	appendHash(v.Header.ParentHash)
	appendU64(v.Header.Number)
	appendU64(v.Header.Epoch.Index)
	appendU64(v.Header.Epoch.Length)
	appendU64(v.Header.Epoch.StartNumber)
	appendU64(v.Header.TimestampMillis)
	appendHash(v.Header.ProposalsRoot)
	appendHash(v.Header.TransactionsRoot)
	appendHash(v.Header.DAOStateRoot)
	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], v.Header.CompactTargetBits)
	buf = append(buf, u32[:]...)
	buf = append(buf, v.Header.Nonce[:]...)
	appendU64(v.TotalDiffLo)
	appendU64(v.TotalDiffHi)
	return buf
}

func decodeView(b []byte) (View, bool) {
	const fixed = 32*4 + 16 + 8*6
	if len(b) < fixed {
		return View{}, false
	}
	var v View
	off := 0
	readHash := func() types.Hash {
		var h types.Hash
		copy(h[:], b[off:off+32])
		off += 32
		return h
	}
	readU64 := func() uint64 {
		x := binary.LittleEndian.Uint64(b[off : off+8])
		off += 8
		return x
	}
	v.Header.Hash = readHash()
	v.Header.ParentHash = readHash()
	v.Header.Number = readU64()
	v.Header.Epoch.Index = readU64()
	v.Header.Epoch.Length = readU64()
	v.Header.Epoch.StartNumber = readU64()
	v.Header.TimestampMillis = readU64()
	v.Header.ProposalsRoot = readHash()
	v.Header.TransactionsRoot = readHash()
	v.Header.DAOStateRoot = readHash()
	v.Header.CompactTargetBits = binary.LittleEndian.Uint32(b[off : off+4])
	off += 4
	copy(v.Header.Nonce[:], b[off:off+16])
	off += 16
	v.TotalDiffLo = readU64()
	v.TotalDiffHi = readU64()
	return v, true
}

// Map is the capability-set cache described by spec.md §9:
// {contains_key, get, insert, insert_batch, remove, len}.
type Map struct {
	mu sync.Mutex

	tier1     *fastcache.Cache
	order     []types.Hash // LRU order, oldest first; mirrors utils.LRUCache's keys slice
	present1  map[types.Hash]struct{}
	capacity  int

	tier2    *badger.DB
	tempDir  string
	pending  map[types.Hash]View // awaiting flush to tier-2
	lastFlush time.Time
}

// New opens a Header Map with a tier-1 capacity of capacity entries and a
// fresh temp-directory-backed tier-2. Callers must call Close to remove
// the temp directory (tier-2 durability is not required across restarts,
// spec.md §4.2).
func New(capacity int) (*Map, error) {
	if capacity <= 0 {
		capacity = 1
	}
	dir, err := os.MkdirTemp("", "ckb-headermap-*")
	if err != nil {
		return nil, chainerr.Internal(chainerr.InternalSystem, err, "create header map spill dir")
	}
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		os.RemoveAll(dir)
		return nil, chainerr.Internal(chainerr.InternalSystem, err, "open header map spill store")
	}
	return &Map{
		tier1:    fastcache.New(capacity * 256),
		present1: make(map[types.Hash]struct{}, capacity),
		capacity: capacity,
		tier2:    db,
		tempDir:  dir,
		pending:  make(map[types.Hash]View, flushBatchThreshold),
	}, nil
}

// Close releases tier-2 and removes its temp directory.
func (m *Map) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.tier2.Close()
	os.RemoveAll(m.tempDir)
	return err
}

// ContainsKey reports whether hash is known to either tier.
func (m *Map) ContainsKey(hash types.Hash) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.present1[hash]; ok {
		return true
	}
	return m.tier2Has(hash)
}

// Get returns the view for hash, promoting a tier-2 hit into tier-1.
func (m *Map) Get(hash types.Hash) (View, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.present1[hash]; ok {
		raw := m.tier1.Get(nil, hash[:])
		v, ok := decodeView(raw)
		if ok {
			m.touch(hash)
		}
		return v, ok
	}
	v, ok := m.getTier2(hash)
	if !ok {
		return View{}, false
	}
	// Promotion moves the entry: it leaves tier-2 (so Len counts it once)
	// and lands in tier-1 as the hottest entry, spilling the coldest one
	// if tier-1 is full.
	delete(m.pending, hash)
	_ = m.tier2.Update(func(txn *badger.Txn) error {
		return txn.Delete(hash[:])
	})
	_ = m.insertLocked(hash, v)
	return v, true
}

// Insert adds or overwrites hash's view, landing in tier-1 and evicting
// the coldest entry to tier-2 if tier-1 is at capacity.
func (m *Map) Insert(hash types.Hash, v View) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(hash, v)
}

// InsertBatch adds many entries in one call, flushing any tier-2 spill
// at the end rather than per-entry.
func (m *Map) InsertBatch(entries map[types.Hash]View) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for h, v := range entries {
		if err := m.insertLocked(h, v); err != nil {
			return err
		}
	}
	return m.maybeFlush(true)
}

func (m *Map) insertLocked(hash types.Hash, v View) error {
	if _, ok := m.present1[hash]; ok {
		m.insertTier1(hash, v)
		return nil
	}
	m.insertTier1(hash, v)
	if len(m.order) > m.capacity {
		victim := m.order[0]
		m.order = m.order[1:]
		delete(m.present1, victim)
		raw := m.tier1.Get(nil, victim[:])
		m.tier1.Del(victim[:])
		if vv, ok := decodeView(raw); ok {
			m.pending[victim] = vv
		}
	}
	return m.maybeFlush(false)
}

func (m *Map) insertTier1(hash types.Hash, v View) {
	m.tier1.Set(hash[:], encodeView(v))
	if _, ok := m.present1[hash]; !ok {
		m.present1[hash] = struct{}{}
		m.order = append(m.order, hash)
	} else {
		m.touch(hash)
	}
}

func (m *Map) touch(hash types.Hash) {
	for i, h := range m.order {
		if h == hash {
			m.order = append(m.order[:i], m.order[i+1:]...)
			m.order = append(m.order, hash)
			return
		}
	}
}

// maybeFlush writes pending tier-2 spill entries out once the batch
// threshold is reached or force is set (spec.md §4.2: "batch ≥ 1,024 or
// on timer tick"; the timer tick is driven externally via FlushTick).
func (m *Map) maybeFlush(force bool) error {
	if !force && len(m.pending) < flushBatchThreshold {
		return nil
	}
	if len(m.pending) == 0 {
		return nil
	}
	err := m.tier2.Update(func(txn *badger.Txn) error {
		for h, v := range m.pending {
			if err := txn.Set(append([]byte{}, h[:]...), encodeView(v)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return chainerr.Internal(chainerr.InternalDatabase, err, "flush header map spill batch")
	}
	m.pending = make(map[types.Hash]View, flushBatchThreshold)
	m.lastFlush = time.Now()
	return nil
}

// FlushTick forces a flush of any pending spill entries regardless of
// batch size, driven by an external timer (spec.md §4.2).
func (m *Map) FlushTick() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maybeFlush(true)
}

func (m *Map) tier2Has(hash types.Hash) bool {
	if _, ok := m.pending[hash]; ok {
		return true
	}
	found := false
	_ = m.tier2.View(func(txn *badger.Txn) error {
		_, err := txn.Get(hash[:])
		found = err == nil
		return nil
	})
	return found
}

func (m *Map) getTier2(hash types.Hash) (View, bool) {
	if v, ok := m.pending[hash]; ok {
		return v, true
	}
	var v View
	found := false
	_ = m.tier2.View(func(txn *badger.Txn) error {
		item, err := txn.Get(hash[:])
		if err != nil {
			return nil
		}
		return item.Value(func(val []byte) error {
			if dv, ok := decodeView(val); ok {
				v = dv
				found = true
			}
			return nil
		})
	})
	return v, found
}

// Remove deletes hash from whichever tier holds it.
func (m *Map) Remove(hash types.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.present1[hash]; ok {
		delete(m.present1, hash)
		m.tier1.Del(hash[:])
		for i, h := range m.order {
			if h == hash {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
		return
	}
	delete(m.pending, hash)
	_ = m.tier2.Update(func(txn *badger.Txn) error {
		return txn.Delete(hash[:])
	})
}

// Len returns tier-1 + tier-2 + pending count (spec.md §4.2).
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.present1) + len(m.pending)
	_ = m.tier2.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n
}
