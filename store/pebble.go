// Copyright (c) 2019-2026 The CKB Core Authors. All rights reserved.
// Use of this source code is governed by a license that can be found in the LICENSE file.

// Package store implements the Persistent Store Facade (C12): durable
// storage for headers, blocks, total difficulty, the canonical index, and
// cached filter artifacts, backed by github.com/cockroachdb/pebble, the
// same LSM-tree key-value engine the teacher's verify_db and chaincmd
// tools open directly (_examples/luxfi-evm/cmd/utils/verify_db/main.go).
// Recent-Reject persistence gets its own dedicated engine; see reject.go.
package store

import (
	"encoding/binary"

	"github.com/cockroachdb/pebble"
	"github.com/holiman/uint256"

	"github.com/nervosnode/ckbcore/chainerr"
	"github.com/nervosnode/ckbcore/types"
)

// Key prefixes partition the single pebble keyspace by record kind.
const (
	prefixHeader byte = iota
	prefixBlock
	prefixTotalDifficulty
	prefixCanonical
	prefixFilterArtifact
)

// BlockStore is a pebble-backed implementation of chain.Store and
// filter.Store: everything the Chain Service and Block Filter Service need
// from durable storage, kept as one engine since both write through the
// same block-by-block append pattern (spec.md §4.6, §4.8).
type BlockStore struct {
	db *pebble.DB
}

// OpenBlockStore opens (creating if necessary) a pebble database at dir.
func OpenBlockStore(dir string) (*BlockStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, chainerr.Internal(chainerr.InternalSystem, err, "open block store at %s", dir)
	}
	return &BlockStore{db: db}, nil
}

// Close releases the underlying pebble handles.
func (s *BlockStore) Close() error { return s.db.Close() }

func hashKey(prefix byte, h types.Hash) []byte {
	key := make([]byte, 1+32)
	key[0] = prefix
	copy(key[1:], h[:])
	return key
}

func numberKey(prefix byte, number uint64) []byte {
	key := make([]byte, 1+8)
	key[0] = prefix
	binary.BigEndian.PutUint64(key[1:], number) // big-endian so range scans stay ordered
	return key
}

func (s *BlockStore) get(key []byte) ([]byte, bool, error) {
	v, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, chainerr.Internal(chainerr.InternalDatabase, err, "get")
	}
	out := append([]byte(nil), v...)
	closer.Close()
	return out, true, nil
}

// GetHeader implements chain.Store.
func (s *BlockStore) GetHeader(hash types.Hash) (types.Header, bool) {
	raw, ok, err := s.get(hashKey(prefixHeader, hash))
	chainerr.MustNotBeDataCorrupted(err)
	if err != nil || !ok {
		return types.Header{}, false
	}
	r := &byteReader{buf: raw}
	h := decodeHeader(r)
	return h, r.err == nil
}

// GetBlock implements chain.Store.
func (s *BlockStore) GetBlock(hash types.Hash) (*types.Block, bool) {
	raw, ok, err := s.get(hashKey(prefixBlock, hash))
	chainerr.MustNotBeDataCorrupted(err)
	if err != nil || !ok {
		return nil, false
	}
	block, err := decodeBlock(raw)
	if err != nil {
		return nil, false
	}
	return block, true
}

// GetTotalDifficulty implements chain.Store.
func (s *BlockStore) GetTotalDifficulty(hash types.Hash) (*uint256.Int, bool) {
	raw, ok, err := s.get(hashKey(prefixTotalDifficulty, hash))
	chainerr.MustNotBeDataCorrupted(err)
	if err != nil || !ok {
		return nil, false
	}
	return decodeUint256(raw), true
}

// PutBlock implements chain.Store. It writes the header, full block body,
// and total difficulty in a single batch so a crash never leaves the three
// records inconsistent with each other.
func (s *BlockStore) PutBlock(block *types.Block, totalDifficulty *uint256.Int) error {
	w := &byteWriter{}
	encodeHeader(w, block.Header)

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(hashKey(prefixHeader, block.Header.Hash), w.buf, nil); err != nil {
		return chainerr.Internal(chainerr.InternalDatabase, err, "stage header")
	}
	if err := batch.Set(hashKey(prefixBlock, block.Header.Hash), encodeBlock(block), nil); err != nil {
		return chainerr.Internal(chainerr.InternalDatabase, err, "stage block")
	}
	if err := batch.Set(hashKey(prefixTotalDifficulty, block.Header.Hash), encodeUint256(totalDifficulty), nil); err != nil {
		return chainerr.Internal(chainerr.InternalDatabase, err, "stage total difficulty")
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return chainerr.Internal(chainerr.InternalDatabase, err, "commit block batch")
	}
	return nil
}

// SetCanonical implements chain.Store.
func (s *BlockStore) SetCanonical(number uint64, hash types.Hash) error {
	if err := s.db.Set(numberKey(prefixCanonical, number), hash[:], pebble.Sync); err != nil {
		return chainerr.Internal(chainerr.InternalDatabase, err, "set canonical")
	}
	return nil
}

// CanonicalHash implements chain.Store.
func (s *BlockStore) CanonicalHash(number uint64) (types.Hash, bool) {
	raw, ok, err := s.get(numberKey(prefixCanonical, number))
	chainerr.MustNotBeDataCorrupted(err)
	if err != nil || !ok || len(raw) != 32 {
		return types.Hash{}, false
	}
	var h types.Hash
	copy(h[:], raw)
	return h, true
}

// GetFilterArtifacts implements filter.Store.
func (s *BlockStore) GetFilterArtifacts(number uint64) (types.Hash, []byte, types.Hash, bool) {
	raw, ok, err := s.get(numberKey(prefixFilterArtifact, number))
	chainerr.MustNotBeDataCorrupted(err)
	if err != nil || !ok {
		return types.Hash{}, nil, types.Hash{}, false
	}
	r := &byteReader{buf: raw}
	blockHash := r.hash()
	rawFilter := r.bytes()
	filterHash := r.hash()
	if r.err != nil {
		return types.Hash{}, nil, types.Hash{}, false
	}
	return blockHash, rawFilter, filterHash, true
}

// PutFilterArtifacts implements filter.Store.
func (s *BlockStore) PutFilterArtifacts(number uint64, blockHash types.Hash, rawFilter []byte, filterHash types.Hash) error {
	w := &byteWriter{}
	w.hash(blockHash)
	w.bytes(rawFilter)
	w.hash(filterHash)
	if err := s.db.Set(numberKey(prefixFilterArtifact, number), w.buf, pebble.Sync); err != nil {
		return chainerr.Internal(chainerr.InternalDatabase, err, "put filter artifacts")
	}
	return nil
}
