// Copyright (c) 2019-2026 The CKB Core Authors. All rights reserved.
// Use of this source code is governed by a license that can be found in the LICENSE file.

package txpool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nervosnode/ckbcore/types"
)

func TestRecentRejectCacheTransientNotCached(t *testing.T) {
	c := NewRecentRejectCache(8, nil)
	h := hashFromByte(1)
	c.Add(h, RejectBusy)
	_, ok := c.Get(h)
	require.False(t, ok)

	c.Add(h, RejectLowFeeRate)
	reason, ok := c.Get(h)
	require.True(t, ok)
	require.Equal(t, RejectLowFeeRate, reason)
}

type memRejectStore struct{ saved map[types.Hash]RejectReason }

func (s *memRejectStore) SaveRejects(m map[types.Hash]RejectReason) error {
	s.saved = m
	return nil
}
func (s *memRejectStore) LoadRejects() (map[types.Hash]RejectReason, error) { return s.saved, nil }

func TestRecentRejectCacheFlushRestore(t *testing.T) {
	store := &memRejectStore{}
	c := NewRecentRejectCache(8, store)
	c.Add(hashFromByte(1), RejectConflict)
	require.NoError(t, c.Flush())

	c2 := NewRecentRejectCache(8, store)
	require.NoError(t, c2.Restore())
	reason, ok := c2.Get(hashFromByte(1))
	require.True(t, ok)
	require.Equal(t, RejectConflict, reason)
}

func TestOrphanTxPoolDependentsOf(t *testing.T) {
	p := NewOrphanTxPool(8, time.Hour)
	missing := types.OutPoint{TxHash: hashFromByte(1), Index: 0}
	tx := &types.Transaction{Hash: hashFromByte(2), Inputs: []types.CellInput{{PreviousOutput: missing}}}
	p.Add(&OrphanTx{Tx: tx, Missing: []types.OutPoint{missing}, ReceivedAt: time.Now()})

	deps := p.DependentsOf(missing)
	require.Len(t, deps, 1)
	require.Equal(t, tx.Hash, deps[0].Tx.Hash)

	p.Remove(tx.Hash)
	require.Empty(t, p.DependentsOf(missing))
}

func TestOrphanTxPoolExpiry(t *testing.T) {
	p := NewOrphanTxPool(8, time.Millisecond)
	missing := types.OutPoint{TxHash: hashFromByte(1), Index: 0}
	tx := &types.Transaction{Hash: hashFromByte(2), Inputs: []types.CellInput{{PreviousOutput: missing}}}
	p.Add(&OrphanTx{Tx: tx, Missing: []types.OutPoint{missing}, ReceivedAt: time.Now().Add(-time.Hour)})

	expired := p.ExpireOlderThan(time.Now())
	require.Equal(t, []types.Hash{tx.Hash}, expired)
	require.Equal(t, 0, p.Len())
}

type fixedVerifier struct{ spent uint64 }

func (v *fixedVerifier) Verify(ctx context.Context, job VerifyJob) (uint64, error) {
	return v.spent, nil
}

func TestVerifyQueueBusyOnFullTier(t *testing.T) {
	q := NewVerifyQueue(1, 1, &fixedVerifier{})
	e := &types.TxEntry{Tx: &types.Transaction{Hash: hashFromByte(1)}}
	require.NoError(t, q.Submit(PriorityHigh, VerifyJob{Entry: e}))
	require.ErrorIs(t, q.Submit(PriorityHigh, VerifyJob{Entry: e}), ErrBusy)
}

func TestVerifyQueueRunProcessesJobs(t *testing.T) {
	q := NewVerifyQueue(4, 2, &fixedVerifier{spent: 42})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx, 2) }()

	e := &types.TxEntry{Tx: &types.Transaction{Hash: hashFromByte(1)}}
	require.NoError(t, q.Submit(PriorityNormal, VerifyJob{Entry: e}))

	select {
	case res := <-q.Results():
		require.NoError(t, res.Err)
		require.Equal(t, uint64(42), res.Spent)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for verify result")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("workers did not shut down")
	}
}
