// Copyright (c) 2019-2026 The CKB Core Authors. All rights reserved.
// Use of this source code is governed by a license that can be found in the LICENSE file.

package filter

import (
	"fmt"
	"sync"

	"github.com/nervosnode/ckbcore/chain"
	"github.com/nervosnode/ckbcore/types"
)

// Store is the narrow persistence capability the Block Filter Service
// needs: a place to cache a block's raw filter and chained filter hash
// once built, keyed by block number (spec.md §4.8 "caches them in the
// store").
type Store interface {
	GetFilterArtifacts(number uint64) (blockHash types.Hash, rawFilter []byte, filterHash types.Hash, ok bool)
	PutFilterArtifacts(number uint64, blockHash types.Hash, rawFilter []byte, filterHash types.Hash) error
}

// GetBlockFilterCheckPoints is the request for sampled filter hashes
// every CheckPointInterval blocks (spec.md §4.8, §6).
type GetBlockFilterCheckPoints struct{ StartNumber uint64 }

// BlockFilterCheckPoints is the response: hashes at start,
// start+2000, start+4000, ... up to and including the largest
// checkpoint <= tip.
type BlockFilterCheckPoints struct {
	StartNumber uint64
	Hashes      []types.Hash
}

// GetBlockFilterHashes requests a batch of consecutive filter hashes.
type GetBlockFilterHashes struct{ StartNumber uint64 }

// BlockFilterHashes is the response: up to HashesBatchSize consecutive
// filter hashes starting at StartNumber, plus the filter hash of the
// block immediately before StartNumber (zero for StartNumber == 0).
type BlockFilterHashes struct {
	StartNumber            uint64
	ParentBlockFilterHash types.Hash
	Hashes                  []types.Hash
}

// GetBlockFilters requests a batch of consecutive raw filters.
type GetBlockFilters struct{ StartNumber uint64 }

// BlockFilters is the response: up to FiltersBatchSize consecutive
// (block hash, raw filter) pairs starting at StartNumber.
type BlockFilters struct {
	StartNumber uint64
	BlockHashes []types.Hash
	Filters     [][]byte
}

// Service builds filters lazily behind the tip and serves the three
// request/response pairs above (spec.md §4.8). It holds the Chain
// Service's read-only Provider to learn the current tip and consults
// Store for already-built artifacts.
type Service struct {
	mu       sync.Mutex
	provider chain.Provider
	store    Store

	builtUpTo uint64 // highest block number whose filter has been built
	hasGenesis bool
}

// NewService constructs a filter service over provider (the Chain
// Service's read-only view) and store (the filter artifact cache).
func NewService(provider chain.Provider, store Store) *Service {
	return &Service{provider: provider, store: store}
}

// BuildUpToTip constructs and caches filters for every block between the
// built frontier and the current tip, in order, so the hash chain
// property (spec.md §8 property 8) holds for every cached entry.
// blockAt resolves a canonical block by number; it is supplied by the
// caller rather than threaded through Provider to keep Store's
// capability narrow.
func (s *Service) BuildUpToTip(blockAt func(number uint64) (*types.Block, bool)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tip := s.provider.Tip()
	parentHash := types.ZeroHash
	start := s.builtUpTo
	if s.hasGenesis {
		start++
		_, _, fh, ok := s.store.GetFilterArtifacts(s.builtUpTo)
		if !ok {
			return fmt.Errorf("filter: cached artifacts for block %d missing", s.builtUpTo)
		}
		parentHash = fh
	}
	for n := start; n <= tip.Number; n++ {
		blk, ok := blockAt(n)
		if !ok {
			return nil // caller hasn't persisted this far yet; retry later
		}
		raw, filterHash, err := s.buildOne(blk, parentHash)
		if err != nil {
			return err
		}
		if err := s.store.PutFilterArtifacts(n, blk.Header.Hash, raw, filterHash); err != nil {
			return err
		}
		parentHash = filterHash
		s.builtUpTo = n
		s.hasGenesis = true
	}
	return nil
}

func (s *Service) buildOne(blk *types.Block, parentFilterHash types.Hash) ([]byte, types.Hash, error) {
	rf, err := NewRawFilter(FilterElements(blk))
	if err != nil {
		return nil, types.Hash{}, err
	}
	raw, err := rf.Bytes()
	if err != nil {
		return nil, types.Hash{}, err
	}
	return raw, ChainHash(parentFilterHash, raw), nil
}

// HandleGetCheckPoints answers spec.md §4.8's checkpoint request: hashes
// at start_number, start_number+2000, ... up to the largest multiple of
// CheckPointInterval at or below the built frontier.
func (s *Service) HandleGetCheckPoints(req GetBlockFilterCheckPoints) BlockFilterCheckPoints {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := BlockFilterCheckPoints{StartNumber: req.StartNumber}
	for n := req.StartNumber; n <= s.builtUpTo; n += CheckPointInterval {
		_, _, fh, ok := s.store.GetFilterArtifacts(n)
		if !ok {
			break
		}
		resp.Hashes = append(resp.Hashes, fh)
	}
	return resp
}

// HandleGetHashes answers spec.md §4.8's hash-batch request.
func (s *Service) HandleGetHashes(req GetBlockFilterHashes) BlockFilterHashes {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := BlockFilterHashes{StartNumber: req.StartNumber}
	if req.StartNumber > 0 {
		if _, _, fh, ok := s.store.GetFilterArtifacts(req.StartNumber - 1); ok {
			resp.ParentBlockFilterHash = fh
		}
	}
	for n, count := req.StartNumber, 0; n <= s.builtUpTo && count < HashesBatchSize; n, count = n+1, count+1 {
		_, _, fh, ok := s.store.GetFilterArtifacts(n)
		if !ok {
			break
		}
		resp.Hashes = append(resp.Hashes, fh)
	}
	return resp
}

// HandleGetFilters answers spec.md §4.8's filter-batch request.
func (s *Service) HandleGetFilters(req GetBlockFilters) BlockFilters {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := BlockFilters{StartNumber: req.StartNumber}
	for n, count := req.StartNumber, 0; n <= s.builtUpTo && count < FiltersBatchSize; n, count = n+1, count+1 {
		bh, raw, _, ok := s.store.GetFilterArtifacts(n)
		if !ok {
			break
		}
		resp.BlockHashes = append(resp.BlockHashes, bh)
		resp.Filters = append(resp.Filters, raw)
	}
	return resp
}

// BuiltUpTo reports the highest block number with a cached filter.
func (s *Service) BuiltUpTo() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.builtUpTo
}
