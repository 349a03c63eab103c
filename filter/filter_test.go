// Copyright (c) 2019-2026 The CKB Core Authors. All rights reserved.
// Use of this source code is governed by a license that can be found in the LICENSE file.

package filter

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/nervosnode/ckbcore/chain"
	"github.com/nervosnode/ckbcore/types"
)

type memFilterStore struct {
	blockHash  map[uint64]types.Hash
	raw        map[uint64][]byte
	filterHash map[uint64]types.Hash
}

func newMemFilterStore() *memFilterStore {
	return &memFilterStore{
		blockHash:  make(map[uint64]types.Hash),
		raw:        make(map[uint64][]byte),
		filterHash: make(map[uint64]types.Hash),
	}
}

func (s *memFilterStore) GetFilterArtifacts(number uint64) (types.Hash, []byte, types.Hash, bool) {
	bh, ok := s.blockHash[number]
	if !ok {
		return types.Hash{}, nil, types.Hash{}, false
	}
	return bh, s.raw[number], s.filterHash[number], true
}

func (s *memFilterStore) PutFilterArtifacts(number uint64, blockHash types.Hash, raw []byte, filterHash types.Hash) error {
	s.blockHash[number] = blockHash
	s.raw[number] = raw
	s.filterHash[number] = filterHash
	return nil
}

type fakeProvider struct{ tip types.Header }

func (p fakeProvider) Tip() types.Header            { return p.tip }
func (p fakeProvider) Consensus() chain.ConsensusParams { return chain.ConsensusParams{} }
func (p fakeProvider) Store() chain.Store           { return nil }

func testBlockHash(n uint64) types.Hash {
	var h types.Hash
	h[0] = byte(n)
	h[1] = byte(n >> 8)
	return h
}

func buildChainBlocks(count uint64) map[uint64]*types.Block {
	blocks := make(map[uint64]*types.Block, count+1)
	for n := uint64(0); n <= count; n++ {
		blocks[n] = &types.Block{Header: types.Header{Hash: testBlockHash(n), Number: n}}
	}
	return blocks
}

func TestFilterHashChainProperty(t *testing.T) {
	blocks := buildChainBlocks(1)
	blockAt := func(n uint64) (*types.Block, bool) {
		b, ok := blocks[n]
		return b, ok
	}
	store := newMemFilterStore()
	svc := NewService(fakeProvider{tip: types.Header{Number: 0}}, store)
	require.NoError(t, svc.BuildUpToTip(blockAt))
	// The tip advances; the second build resumes from the built frontier.
	svc.provider = fakeProvider{tip: types.Header{Number: 1}}
	require.NoError(t, svc.BuildUpToTip(blockAt))

	got, raw0, fh0, ok := store.GetFilterArtifacts(0)
	require.True(t, ok)
	require.Equal(t, testBlockHash(0), got)
	require.Equal(t, ChainHash(types.ZeroHash, raw0), fh0)

	_, raw1, fh1, ok := store.GetFilterArtifacts(1)
	require.True(t, ok)
	require.Equal(t, ChainHash(fh0, raw1), fh1)
}

// TestCheckPointScenario covers spec.md scenario S5: mine 4,001 blocks;
// request GetBlockFilterCheckPoints{0}; response has 3 hashes at heights
// 0, 2000, 4000.
func TestCheckPointScenario(t *testing.T) {
	const tipNumber = 4000 // 4001 blocks: 0..4000 inclusive
	blocks := buildChainBlocks(tipNumber)

	provider := fakeProvider{tip: types.Header{Number: tipNumber}}
	store := newMemFilterStore()
	svc := NewService(provider, store)

	require.NoError(t, svc.BuildUpToTip(func(n uint64) (*types.Block, bool) {
		b, ok := blocks[n]
		return b, ok
	}))
	require.Equal(t, uint64(tipNumber), svc.BuiltUpTo())

	resp := svc.HandleGetCheckPoints(GetBlockFilterCheckPoints{StartNumber: 0})
	require.Len(t, resp.Hashes, 3)

	// property 8: the chain rule holds at each checkpoint height.
	_, raw0, _, _ := store.GetFilterArtifacts(0)
	require.Equal(t, ChainHash(types.ZeroHash, raw0), resp.Hashes[0])

	_, raw2000, _, _ := store.GetFilterArtifacts(2000)
	_, _, fh1999, _ := store.GetFilterArtifacts(1999)
	require.Equal(t, ChainHash(fh1999, raw2000), resp.Hashes[1])

	_, raw4000, _, _ := store.GetFilterArtifacts(4000)
	_, _, fh3999, _ := store.GetFilterArtifacts(3999)
	require.Equal(t, ChainHash(fh3999, raw4000), resp.Hashes[2])
}

func TestHandleGetHashesBatchAndParent(t *testing.T) {
	blocks := buildChainBlocks(10)
	provider := fakeProvider{tip: types.Header{Number: 10}}
	store := newMemFilterStore()
	svc := NewService(provider, store)
	require.NoError(t, svc.BuildUpToTip(func(n uint64) (*types.Block, bool) {
		b, ok := blocks[n]
		return b, ok
	}))

	resp := svc.HandleGetHashes(GetBlockFilterHashes{StartNumber: 1})
	require.Len(t, resp.Hashes, 10) // blocks 1..10
	_, _, fh0, _ := store.GetFilterArtifacts(0)
	require.Equal(t, fh0, resp.ParentBlockFilterHash)
}

func TestHandleGetFiltersBatch(t *testing.T) {
	blocks := buildChainBlocks(5)
	provider := fakeProvider{tip: types.Header{Number: 5}}
	store := newMemFilterStore()
	svc := NewService(provider, store)
	require.NoError(t, svc.BuildUpToTip(func(n uint64) (*types.Block, bool) {
		b, ok := blocks[n]
		return b, ok
	}))

	resp := svc.HandleGetFilters(GetBlockFilters{StartNumber: 0})
	require.Len(t, resp.BlockHashes, 6)
	require.Len(t, resp.Filters, 6)
}

func TestUnitWorkSanity(t *testing.T) {
	require.Equal(t, uint256.NewInt(1), chain.UnitWork{}.Work(types.Header{}))
}
