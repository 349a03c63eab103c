// Copyright (c) 2019-2026 The CKB Core Authors. All rights reserved.
// Use of this source code is governed by a license that can be found in the LICENSE file.

// Package filter implements the Block Filter Service (C10): compact
// per-block filters, a filter-hash chain, and a checkpointed wire
// sub-protocol serving them, grounded on
// original_source/test/src/specs/sync/block_filter.rs for the message
// shapes and checkpoint scenario (spec.md §4.8, §6).
package filter

import (
	"github.com/cespare/xxhash/v2"
	"github.com/holiman/bloomfilter/v2"
	"golang.org/x/crypto/blake2b"

	"github.com/nervosnode/ckbcore/types"
)

// Default batch sizes (spec.md §6).
const (
	CheckPointInterval = 2000
	HashesBatchSize     = 2000
	FiltersBatchSize    = 1000
)

// RawFilter is the compact per-block filter: a Bloom filter over the
// block's input outpoints and output lock/type script hashes, the
// concrete "compact per-block data structure supporting membership
// queries" the spec calls for (spec.md §4.8, GLOSSARY "Filter").
type RawFilter struct {
	bits *bloomfilter.Filter
}

// filterM and filterK size the Bloom filter: M bits, K hash functions,
// tuned for a false-positive rate around 1/1000 at a few hundred
// elements per block, a reasonable default for a compact per-block
// filter (the exact false-positive tuning is not specified; this is a
// concrete, defensible choice).
const (
	filterM = 8 * 1024
	filterK = 4
)

// NewRawFilter builds a filter over the given set of byte-string
// elements (outpoint hash||index digests, lock hashes, type hashes),
// hashed to a 64-bit digest via xxhash before insertion — a fast
// non-cryptographic hash distinct from the cryptographic blake2b digest
// used for filter chaining (spec.md's DOMAIN STACK wiring for C10, C4).
func NewRawFilter(elements [][]byte) (*RawFilter, error) {
	bf, err := bloomfilter.New(filterM, filterK)
	if err != nil {
		return nil, err
	}
	for _, e := range elements {
		bf.Add(xxhash.Sum64(e))
	}
	return &RawFilter{bits: bf}, nil
}

// Bytes returns the filter's serialized form for wire transmission.
func (f *RawFilter) Bytes() ([]byte, error) { return f.bits.MarshalBinary() }

// Contains reports whether element may be a member (Bloom filters never
// false-negative, may false-positive).
func (f *RawFilter) Contains(element []byte) bool {
	return f.bits.Contains(xxhash.Sum64(element))
}

// FilterElements derives the set of membership-query elements for a
// block: every consumed outpoint and every distinct lock/type script
// hash among its outputs.
func FilterElements(block *types.Block) [][]byte {
	var elements [][]byte
	for _, tx := range block.Transactions {
		for _, in := range tx.Inputs {
			buf := make([]byte, 36)
			copy(buf, in.PreviousOutput.TxHash[:])
			buf[32] = byte(in.PreviousOutput.Index)
			buf[33] = byte(in.PreviousOutput.Index >> 8)
			buf[34] = byte(in.PreviousOutput.Index >> 16)
			buf[35] = byte(in.PreviousOutput.Index >> 24)
			elements = append(elements, buf)
		}
		for _, out := range tx.Outputs {
			lock := out.Lock
			elements = append(elements, append([]byte{}, lock[:]...))
			if out.Type != nil {
				elements = append(elements, append([]byte{}, out.Type[:]...))
			}
		}
	}
	return elements
}

// blake2b256 is the 32-byte cryptographic digest used throughout the
// filter-hash chain, matching ckb_hash's use of blake2b (confirmed by
// original_source).
func blake2b256(parts ...[]byte) types.Hash {
	h, _ := blake2b.New256(nil)
	for _, p := range parts {
		h.Write(p)
	}
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// ChainHash computes the filter hash for a block given its parent's
// filter hash and this block's raw filter bytes (spec.md §4.8 property
// 8): filter_hash[n] = H(filter_hash[n-1] || H(raw_filter[n])), with
// filter_hash[-1] (the seed for block 0) defined as 32 zero bytes.
func ChainHash(parentFilterHash types.Hash, rawFilter []byte) types.Hash {
	rawHash := blake2b256(rawFilter)
	return blake2b256(parentFilterHash[:], rawHash[:])
}
