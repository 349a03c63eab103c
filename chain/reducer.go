// Copyright (c) 2019-2026 The CKB Core Authors. All rights reserved.
// Use of this source code is governed by a license that can be found in the LICENSE file.

package chain

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nervosnode/ckbcore/chainerr"
	"github.com/nervosnode/ckbcore/orphanblock"
	"github.com/nervosnode/ckbcore/types"
)

// Input is a single item arriving on the Chain Service's multi-producer
// inbox: a block, the peer it came from, and whether it has already
// passed an upstream verification pass (spec.md §4.6).
type Input struct {
	Block    *types.Block
	Origin   types.PeerID
	Verified bool
}

// TxReadmitter is the narrow capability the Chain Service needs from the
// Tx Pool Map to re-admit transactions that fall out of the canonical
// chain during a reorg (spec.md §4.6 "re-admit disconnected
// transactions to the Tx Pool, subject to its own rules").
type TxReadmitter interface {
	ReadmitDisconnected(txs []*types.Transaction)
}

// inboxCapacity bounds the Chain Service's admission channel; a full
// inbox applies back-pressure to submitters (spec.md §5).
const inboxCapacity = 1024

// Service is the single writer of the canonical chain (C8): a reducer
// that serializes every mutation through one goroutine reading from a
// bounded channel (spec.md §4.6, §5).
type Service struct {
	status    *StatusMap
	orphans   *orphanblock.Pool
	snapshots *Manager
	headerVal HeaderValidator
	bodyVal   BodyValidator
	work      BlockWork
	pool      TxReadmitter
	metrics   *metricsSet

	// dbHealthy tracks spec.md §4.6/§7's Internal::Database failure mode:
	// a store I/O error fails the current connect attempt and pauses new
	// admissions (Submit returns ErrDatabaseUnhealthy) without marking the
	// block itself invalid, since the block was never actually rejected on
	// its merits. It is cleared the next time a block connects cleanly.
	dbHealthy atomic.Bool

	inbox chan Input
}

// NewService constructs a Chain Service seeded with genesis as the
// initial snapshot. headerVal/bodyVal/work may be nil, in which case
// AcceptAllHeaders/AcceptAllBodies/UnitWork are used (appropriate where
// PoW/script verification is supplied externally or not under test).
func NewService(genesis *Snapshot, pool TxReadmitter, headerVal HeaderValidator, bodyVal BodyValidator, work BlockWork, reg prometheus.Registerer) *Service {
	if headerVal == nil {
		headerVal = AcceptAllHeaders{}
	}
	if bodyVal == nil {
		bodyVal = AcceptAllBodies{}
	}
	if work == nil {
		work = UnitWork{}
	}
	s := &Service{
		status:    NewStatusMap(),
		orphans:   orphanblock.New(0),
		snapshots: NewManager(genesis),
		headerVal: headerVal,
		bodyVal:   bodyVal,
		work:      work,
		pool:      pool,
		metrics:   newMetricsSet(reg),
		inbox:     make(chan Input, inboxCapacity),
	}
	s.status.Set(genesis.Tip.Hash, types.StatusBlockValid)
	s.dbHealthy.Store(true)
	return s
}

// Snapshots exposes the Snapshot Manager for readers.
func (s *Service) Snapshots() *Manager { return s.snapshots }

// Provider exposes a read-only view of this service, for the Block
// Filter Service and similar consumers.
func (s *Service) Provider() Provider { return AsProvider(s.snapshots) }

// ErrInboxFull is returned by Submit when the admission channel is at
// capacity; callers should retry rather than block (spec.md §5).
var ErrInboxFull = errors.New("chain service inbox full")

// ErrDatabaseUnhealthy is returned by Submit while the store is in the
// Internal::Database failure mode (spec.md §4.6, §7): admissions are
// paused until a block connects cleanly again.
var ErrDatabaseUnhealthy = errors.New("chain service paused: database unhealthy")

// Submit enqueues in without blocking.
func (s *Service) Submit(in Input) error {
	if !s.dbHealthy.Load() {
		return ErrDatabaseUnhealthy
	}
	select {
	case s.inbox <- in:
		return nil
	default:
		return ErrInboxFull
	}
}

// Run drives the reducer loop until ctx is cancelled or the inbox is
// closed, processing exactly one Input at a time (spec.md §5 "all
// canonical-tip transitions are totally ordered by the Chain Service
// thread").
func (s *Service) Run(ctx context.Context) error {
	for {
		select {
		case in, ok := <-s.inbox:
			if !ok {
				return nil
			}
			s.process(in)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// process implements spec.md §4.6 steps 1-7 for a single input.
func (s *Service) process(in Input) {
	hash := in.Block.Header.Hash
	status := s.status.Get(hash)
	if status.AtLeast(types.StatusBlockValid) || status == types.StatusBlockInvalid {
		return
	}

	store := s.snapshots.Load().Store
	parentHash := in.Block.Header.ParentHash
	if parentHash != types.ZeroHash && s.status.Get(parentHash) != types.StatusBlockValid {
		s.orphans.Insert(&types.LonelyBlock{
			Block:       in.Block,
			Hash:        hash,
			ParentHash:  parentHash,
			EpochNumber: in.Block.Header.EpochNumber(),
			PeerOrigin:  in.Origin,
			ReceiveTime: time.Now(),
		})
		s.metrics.blocksOrphaned.Inc()
		return
	}

	parentHeader, _ := store.GetHeader(parentHash) // zero value for the genesis parent
	if err := s.headerVal.ValidateHeader(in.Block.Header, parentHeader); err != nil {
		s.invalidate(hash, err)
		return
	}

	snapBeforeBody := s.snapshots.Load()
	if _, err := s.bodyVal.ValidateBody(in.Block, snapBeforeBody); err != nil {
		s.invalidate(hash, err)
		return
	}

	if err := s.connect(in.Block, parentHash); err != nil {
		s.handleConnectError(hash, err)
		return
	}
	s.dbHealthy.Store(true)
	s.status.Set(hash, types.StatusBlockValid)
	s.metrics.blocksConnected.Inc()

	for _, lonely := range s.orphans.RemoveBlocksByParent(hash) {
		s.process(Input{Block: lonely.Block, Origin: lonely.PeerOrigin, Verified: false})
	}
}

// handleConnectError implements spec.md §4.6's Failure Model / §7's
// error-classification policy for a connect() failure. Only validation
// failures permanently blacklist a block:
//
//   - Internal::DataCorrupted aborts the process outright; recovery from
//     a corrupted store is unsafe.
//   - Internal::Database (and the System variant IsInternalDBError also
//     covers) fails this attempt and pauses new admissions until a block
//     connects cleanly again, since the block itself was never actually
//     rejected on its merits — a transient write hiccup must not
//     blacklist a perfectly valid block.
//   - every other Kind (Header/Block/Transaction/Script/Dao/OutPoint)
//     is a genuine validation failure and invalidates hash as before.
func (s *Service) handleConnectError(hash types.Hash, err error) {
	chainerr.MustNotBeDataCorrupted(err)
	if chainerr.IsInternalDBError(err) {
		s.dbHealthy.Store(false)
		s.metrics.dbErrors.Inc()
		return
	}
	s.invalidate(hash, err)
}

func (s *Service) invalidate(hash types.Hash, cause error) {
	s.status.Set(hash, types.StatusBlockInvalid)
	s.metrics.blocksRejected.Inc()
	for _, lonely := range s.orphans.RemoveBlocksByParent(hash) {
		s.invalidate(lonely.Hash, fmt.Errorf("ancestor %s invalid: %w", hash, cause))
	}
}

// connect implements spec.md §4.6 step 5 and the Reorganization
// algorithm: extend the tip directly, reorg to a heavier fork, or store
// as a non-canonical side branch.
func (s *Service) connect(block *types.Block, parentHash types.Hash) error {
	snap := s.snapshots.Load()
	store := snap.Store

	blockWork := s.work.Work(block.Header)

	var parentTD *uint256.Int
	if parentHash == snap.Tip.Hash {
		parentTD = snap.TotalDifficulty
	} else if td, ok := store.GetTotalDifficulty(parentHash); ok {
		parentTD = td
	} else {
		parentTD = uint256.NewInt(0)
	}
	candidateTD := new(uint256.Int).Add(parentTD, blockWork)

	if err := store.PutBlock(block, candidateTD); err != nil {
		return chainerr.WrapInternal(err, "persist block %s", block.Header.Hash)
	}

	if parentHash == snap.Tip.Hash {
		return s.extendTip(block, candidateTD, store)
	}

	cmp := candidateTD.Cmp(snap.TotalDifficulty)
	heavier := cmp > 0 || (cmp == 0 && block.Header.Hash.Less(snap.Tip.Hash))
	if !heavier {
		return nil // stored as a side branch; not canonical
	}
	return s.reorg(block, candidateTD)
}

// extendTip appends block directly to the current best tip (spec.md
// §4.6 step 5, the non-reorg path).
func (s *Service) extendTip(block *types.Block, td *uint256.Int, store Store) error {
	if err := store.SetCanonical(block.Header.Number, block.Header.Hash); err != nil {
		return chainerr.WrapInternal(err, "set canonical %s", block.Header.Hash)
	}
	s.publish(block.Header, td, store)
	return nil
}

// reorg implements spec.md §4.6's Reorganization algorithm: find the
// lowest common ancestor L between the current tip A and candidate B,
// disconnect path(A,L) newest-first, connect path(L,B) oldest-first,
// rolling back on first failure.
func (s *Service) reorg(candidate *types.Block, candidateTD *uint256.Int) error {
	snap := s.snapshots.Load()
	store := snap.Store

	lca, err := s.lowestCommonAncestor(snap.Tip.Hash, candidate.Header.Hash, store)
	if err != nil {
		return err
	}

	disconnect, err := s.pathToAncestor(snap.Tip.Hash, lca, store) // newest first
	if err != nil {
		return err
	}
	connect, err := s.pathToAncestor(candidate.Header.Hash, lca, store) // newest first
	if err != nil {
		return err
	}
	reverse(connect) // oldest first, per spec.md's connect ordering

	var disconnectedTxs []*types.Transaction
	for _, hash := range disconnect {
		blk, ok := store.GetBlock(hash)
		if !ok {
			return chainerr.Internal(chainerr.InternalDataCorrupted, nil, "missing side-branch block %s during reorg disconnect", hash)
		}
		disconnectedTxs = append(disconnectedTxs, blk.Transactions...)
	}

	var applied []canonicalEdit
	for _, hash := range connect {
		blk, ok := store.GetBlock(hash)
		if !ok {
			s.rollback(applied, store)
			return chainerr.Internal(chainerr.InternalDataCorrupted, nil, "missing candidate-branch block %s during reorg connect", hash)
		}
		prev, hadPrev := store.CanonicalHash(blk.Header.Number)
		if err := store.SetCanonical(blk.Header.Number, hash); err != nil {
			s.rollback(applied, store)
			return chainerr.WrapInternal(err, "set canonical %s during reorg", hash)
		}
		applied = append(applied, canonicalEdit{number: blk.Header.Number, previous: prev, hadPrevious: hadPrev})
	}

	if s.pool != nil && len(disconnectedTxs) > 0 {
		s.pool.ReadmitDisconnected(disconnectedTxs)
	}
	s.metrics.reorgs.Inc()
	s.publish(candidate.Header, candidateTD, store)
	return nil
}

// canonicalEdit records what a reorg connect step overwrote, so a
// failed reorg can restore the canonical index to its pre-reorg state
// (spec.md §4.6 "rollback all already-applied connects in reverse").
type canonicalEdit struct {
	number      uint64
	previous    types.Hash
	hadPrevious bool
}

// rollback restores the canonical mapping at each already-applied
// number to what it held before the reorg began, in reverse order.
func (s *Service) rollback(applied []canonicalEdit, store Store) {
	for i := len(applied) - 1; i >= 0; i-- {
		edit := applied[i]
		if edit.hadPrevious {
			_ = store.SetCanonical(edit.number, edit.previous)
		}
	}
}

func (s *Service) publish(tip types.Header, td *uint256.Int, store Store) {
	s.snapshots.Publish(&Snapshot{
		Tip:             tip,
		TotalDifficulty: td,
		Consensus:       s.snapshots.Load().Consensus,
		Store:           store,
	})
	s.metrics.tipHeight.Set(float64(tip.Number))
}

// lowestCommonAncestor walks both chains back to equal height, then
// together, until the hashes match (spec.md §4.6 "find the lowest
// common ancestor L").
func (s *Service) lowestCommonAncestor(a, b types.Hash, store Store) (types.Hash, error) {
	ha, ok := store.GetHeader(a)
	if !ok {
		return types.Hash{}, chainerr.Internal(chainerr.InternalDataCorrupted, nil, "unknown header %s", a)
	}
	hb, ok := store.GetHeader(b)
	if !ok {
		return types.Hash{}, chainerr.Internal(chainerr.InternalDataCorrupted, nil, "unknown header %s", b)
	}
	curA, curB := a, b
	for ha.Number > hb.Number {
		curA = ha.ParentHash
		ha, ok = store.GetHeader(curA)
		if !ok {
			return types.Hash{}, chainerr.Internal(chainerr.InternalDataCorrupted, nil, "broken chain walk at %s", curA)
		}
	}
	for hb.Number > ha.Number {
		curB = hb.ParentHash
		hb, ok = store.GetHeader(curB)
		if !ok {
			return types.Hash{}, chainerr.Internal(chainerr.InternalDataCorrupted, nil, "broken chain walk at %s", curB)
		}
	}
	for curA != curB {
		curA, curB = ha.ParentHash, hb.ParentHash
		ha, ok = store.GetHeader(curA)
		if !ok {
			return types.Hash{}, chainerr.Internal(chainerr.InternalDataCorrupted, nil, "broken chain walk at %s", curA)
		}
		hb, ok = store.GetHeader(curB)
		if !ok {
			return types.Hash{}, chainerr.Internal(chainerr.InternalDataCorrupted, nil, "broken chain walk at %s", curB)
		}
	}
	return curA, nil
}

// pathToAncestor returns the hashes from `from` (included) back to
// ancestor (excluded), newest first, i.e. from, from's parent, ..., down
// to (but excluding) ancestor.
func (s *Service) pathToAncestor(from, ancestor types.Hash, store Store) ([]types.Hash, error) {
	var path []types.Hash
	cur := from
	for cur != ancestor {
		h, ok := store.GetHeader(cur)
		if !ok {
			return nil, chainerr.Internal(chainerr.InternalDataCorrupted, nil, "broken chain walk at %s", cur)
		}
		path = append(path, cur)
		cur = h.ParentHash
	}
	return path, nil
}

func reverse(hashes []types.Hash) {
	for i, j := 0, len(hashes)-1; i < j; i, j = i+1, j-1 {
		hashes[i], hashes[j] = hashes[j], hashes[i]
	}
}
