// Copyright (c) 2019-2026 The CKB Core Authors. All rights reserved.
// Use of this source code is governed by a license that can be found in the LICENSE file.

package chain

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/nervosnode/ckbcore/txpool"
	"github.com/nervosnode/ckbcore/types"
)

// memStore is a minimal in-memory Store for reducer tests.
type memStore struct {
	mu         sync.Mutex
	headers    map[types.Hash]types.Header
	blocks     map[types.Hash]*types.Block
	td         map[types.Hash]*uint256.Int
	canonical  map[uint64]types.Hash
}

func newMemStore() *memStore {
	return &memStore{
		headers:   make(map[types.Hash]types.Header),
		blocks:    make(map[types.Hash]*types.Block),
		td:        make(map[types.Hash]*uint256.Int),
		canonical: make(map[uint64]types.Hash),
	}
}

func (s *memStore) GetHeader(hash types.Hash) (types.Header, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.headers[hash]
	return h, ok
}

func (s *memStore) GetBlock(hash types.Hash) (*types.Block, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[hash]
	return b, ok
}

func (s *memStore) GetTotalDifficulty(hash types.Hash) (*uint256.Int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	td, ok := s.td[hash]
	return td, ok
}

func (s *memStore) PutBlock(block *types.Block, td *uint256.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headers[block.Header.Hash] = block.Header
	s.blocks[block.Header.Hash] = block
	s.td[block.Header.Hash] = td
	return nil
}

func (s *memStore) SetCanonical(number uint64, hash types.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canonical[number] = hash
	return nil
}

func (s *memStore) CanonicalHash(number uint64) (types.Hash, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.canonical[number]
	return h, ok
}

func chainHash(b byte) types.Hash {
	var h types.Hash
	h[0] = b
	return h
}

func block(hash, parent types.Hash, number uint64) *types.Block {
	return &types.Block{Header: types.Header{Hash: hash, ParentHash: parent, Number: number}}
}

type nopReadmitter struct{ got []*types.Transaction }

func (r *nopReadmitter) ReadmitDisconnected(txs []*types.Transaction) { r.got = append(r.got, txs...) }

func newTestService(t *testing.T) (*Service, *memStore, *nopReadmitter) {
	store := newMemStore()
	genesisHash := chainHash(0)
	genesis := types.Header{Hash: genesisHash, Number: 0}
	store.headers[genesisHash] = genesis
	store.canonical[0] = genesisHash
	store.td[genesisHash] = uint256.NewInt(0)

	readmit := &nopReadmitter{}
	svc := NewService(&Snapshot{Tip: genesis, TotalDifficulty: uint256.NewInt(0), Store: store}, readmit, nil, nil, nil, nil)
	return svc, store, readmit
}

func TestChainServiceExtendsTip(t *testing.T) {
	svc, _, _ := newTestService(t)
	a1 := block(chainHash(1), chainHash(0), 1)
	svc.process(Input{Block: a1})

	require.Equal(t, chainHash(1), svc.Snapshots().Load().Tip.Hash)
	require.Equal(t, types.StatusBlockValid, svc.status.Get(a1.Header.Hash))
}

func TestChainServiceGatesAlreadyValidAndInvalid(t *testing.T) {
	svc, _, _ := newTestService(t)
	a1 := block(chainHash(1), chainHash(0), 1)
	svc.process(Input{Block: a1})
	tipAfterFirst := svc.Snapshots().Load().Tip.Hash

	// Re-processing an already-valid block is a no-op.
	svc.process(Input{Block: a1})
	require.Equal(t, tipAfterFirst, svc.Snapshots().Load().Tip.Hash)

	// A block already marked invalid is short-circuited, not connected.
	svc.status.Set(chainHash(2), types.StatusBlockInvalid)
	svc.process(Input{Block: block(chainHash(2), chainHash(1), 2)})
	require.Equal(t, tipAfterFirst, svc.Snapshots().Load().Tip.Hash)
	already := svc.status.Get(chainHash(2))
	require.Equal(t, types.StatusBlockInvalid, already)
}

// TestChainServiceOrphanFlush delivers a child before its parent, then
// the parent, and checks the child gets flushed through and connected
// (exercises the C1/C8 integration spec.md §4.6 step 6 describes).
func TestChainServiceOrphanFlush(t *testing.T) {
	svc, _, _ := newTestService(t)
	a1 := block(chainHash(1), chainHash(0), 1)
	a2 := block(chainHash(2), chainHash(1), 2)

	svc.process(Input{Block: a2}) // parent unknown -> orphaned
	require.Equal(t, types.StatusUnknown, svc.status.Get(a2.Header.Hash))
	require.Equal(t, 1, svc.orphans.Len())

	svc.process(Input{Block: a1}) // flushes a2 through
	require.Equal(t, types.StatusBlockValid, svc.status.Get(a1.Header.Hash))
	require.Equal(t, types.StatusBlockValid, svc.status.Get(a2.Header.Hash))
	require.Equal(t, 0, svc.orphans.Len())
	require.Equal(t, chainHash(2), svc.Snapshots().Load().Tip.Hash)
}

// TestChainServiceReorg covers scenario S6: current tip A1->A2->A3;
// deliver B1->B2->B3->B4 forking at genesis with greater total
// difficulty (here, simply a longer chain under UnitWork). Tip becomes
// B4, and A-branch transactions are re-admitted to the pool.
func TestChainServiceReorg(t *testing.T) {
	svc, _, readmit := newTestService(t)

	a1 := block(chainHash(0xA1), chainHash(0), 1)
	a1.Transactions = []*types.Transaction{{Hash: chainHash(0xAA)}}
	a2 := block(chainHash(0xA2), a1.Header.Hash, 2)
	a3 := block(chainHash(0xA3), a2.Header.Hash, 3)
	svc.process(Input{Block: a1})
	svc.process(Input{Block: a2})
	svc.process(Input{Block: a3})
	require.Equal(t, a3.Header.Hash, svc.Snapshots().Load().Tip.Hash)

	b1 := block(chainHash(0xB1), chainHash(0), 1)
	b2 := block(chainHash(0xB2), b1.Header.Hash, 2)
	b3 := block(chainHash(0xB3), b2.Header.Hash, 3)
	b4 := block(chainHash(0xB4), b3.Header.Hash, 4)
	svc.process(Input{Block: b1}) // side branch, not heavier yet
	require.Equal(t, a3.Header.Hash, svc.Snapshots().Load().Tip.Hash)
	svc.process(Input{Block: b2})
	svc.process(Input{Block: b3})
	svc.process(Input{Block: b4}) // now heavier -> reorg

	snap := svc.Snapshots().Load()
	require.Equal(t, b4.Header.Hash, snap.Tip.Hash)
	require.True(t, snap.TotalDifficulty.Cmp(uint256.NewInt(4)) == 0)
	require.NotEmpty(t, readmit.got)
	require.Equal(t, chainHash(0xAA), readmit.got[0].Hash)
}

// TestChainServiceReorgReadmitsIntoRealPool wires the Chain Service's
// TxReadmitter up to a real *txpool.PoolMap rather than a test double,
// proving spec.md §4.6's C8->C4 readmission is actually satisfiable end
// to end and not just shaped correctly (scenario S6).
func TestChainServiceReorgReadmitsIntoRealPool(t *testing.T) {
	store := newMemStore()
	genesisHash := chainHash(0)
	genesis := types.Header{Hash: genesisHash, Number: 0}
	store.headers[genesisHash] = genesis
	store.canonical[0] = genesisHash
	store.td[genesisHash] = uint256.NewInt(0)

	pool := txpool.NewPoolMap(txpool.DefaultMaxAncestors, 0, 0)
	svc := NewService(&Snapshot{Tip: genesis, TotalDifficulty: uint256.NewInt(0), Store: store}, pool, nil, nil, nil, nil)

	a1 := block(chainHash(0xA1), chainHash(0), 1)
	disconnectedTx := &types.Transaction{Hash: chainHash(0xAA)}
	a1.Transactions = []*types.Transaction{disconnectedTx}
	a2 := block(chainHash(0xA2), a1.Header.Hash, 2)
	svc.process(Input{Block: a1})
	svc.process(Input{Block: a2})
	require.Equal(t, a2.Header.Hash, svc.Snapshots().Load().Tip.Hash)

	b1 := block(chainHash(0xB1), chainHash(0), 1)
	b2 := block(chainHash(0xB2), b1.Header.Hash, 2)
	b3 := block(chainHash(0xB3), b2.Header.Hash, 3)
	svc.process(Input{Block: b1})
	svc.process(Input{Block: b2})
	svc.process(Input{Block: b3}) // heavier -> reorg disconnects a1, a2

	require.Equal(t, b3.Header.Hash, svc.Snapshots().Load().Tip.Hash)
	require.True(t, pool.ContainsKey(disconnectedTx.ShortID()))
}

func TestChainServiceSubmitAndRun(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.NoError(t, svc.Submit(Input{Block: block(chainHash(1), chainHash(0), 1)}))

	require.Eventually(t, func() bool {
		return svc.Snapshots().Load().Tip.Hash == chainHash(1)
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reducer did not shut down")
	}
}
