// Copyright (c) 2019-2026 The CKB Core Authors. All rights reserved.
// Use of this source code is governed by a license that can be found in the LICENSE file.

package store

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/nervosnode/ckbcore/chainerr"
	"github.com/nervosnode/ckbcore/txpool"
	"github.com/nervosnode/ckbcore/types"
)

// RejectStore persists the Recent-Reject Cache (C5) across restarts in its
// own goleveldb engine, kept separate from the pebble-backed BlockStore
// since it is flushed wholesale on shutdown and restored wholesale on
// startup rather than written block-by-block (spec.md §4.5, §6).
type RejectStore struct {
	db *leveldb.DB
}

// OpenRejectStore opens (creating if necessary) a goleveldb database at dir.
func OpenRejectStore(dir string) (*RejectStore, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, chainerr.Internal(chainerr.InternalSystem, err, "open reject store at %s", dir)
	}
	return &RejectStore{db: db}, nil
}

// Close releases the underlying goleveldb handle.
func (s *RejectStore) Close() error { return s.db.Close() }

// SaveRejects implements txpool.RejectPersistence. It replaces the entire
// on-disk set with snapshot, since the cache it mirrors is itself bounded
// and the whole thing is cheap to rewrite on a clean shutdown.
func (s *RejectStore) SaveRejects(snapshot map[types.Hash]txpool.RejectReason) error {
	batch := new(leveldb.Batch)

	it := s.db.NewIterator(nil, nil)
	for it.Next() {
		batch.Delete(append([]byte(nil), it.Key()...))
	}
	it.Release()
	if err := it.Error(); err != nil {
		return chainerr.Internal(chainerr.InternalDatabase, err, "iterate reject store for clear")
	}

	for h, reason := range snapshot {
		key := append([]byte(nil), h[:]...)
		batch.Put(key, []byte{byte(reason)})
	}
	if err := s.db.Write(batch, nil); err != nil {
		return chainerr.Internal(chainerr.InternalDatabase, err, "write reject snapshot")
	}
	return nil
}

// LoadRejects implements txpool.RejectPersistence.
func (s *RejectStore) LoadRejects() (map[types.Hash]txpool.RejectReason, error) {
	out := make(map[types.Hash]txpool.RejectReason)
	var it iterator.Iterator = s.db.NewIterator(util.BytesPrefix(nil), nil)
	defer it.Release()
	for it.Next() {
		key := it.Key()
		if len(key) != 32 {
			continue
		}
		var h types.Hash
		copy(h[:], key)
		val := it.Value()
		if len(val) != 1 {
			continue
		}
		out[h] = txpool.RejectReason(val[0])
	}
	if err := it.Error(); err != nil {
		return nil, chainerr.Internal(chainerr.InternalDatabase, err, "iterate reject store")
	}
	return out, nil
}
