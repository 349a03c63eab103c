// Copyright (c) 2019-2026 The CKB Core Authors. All rights reserved.
// Use of this source code is governed by a license that can be found in the LICENSE file.

package chain

import (
	"github.com/holiman/uint256"

	"github.com/nervosnode/ckbcore/types"
)

// HeaderValidator checks PoW, timestamp monotonicity, epoch continuity,
// and difficulty (spec.md §4.6 step 3). The concrete difficulty formula
// and PoW algorithm are out of scope (spec.md §1 non-goals); the Chain
// Service only needs this narrow capability to gate connection.
type HeaderValidator interface {
	ValidateHeader(header, parent types.Header) error
}

// BodyValidator resolves a block's transactions against the parent
// snapshot and verifies scripts under the consensus cycle limit (spec.md
// §4.6 step 4). Script interpretation itself is out of scope (spec.md
// §1 non-goals).
type BodyValidator interface {
	ValidateBody(block *types.Block, parent *Snapshot) (cyclesSpent uint64, err error)
}

// BlockWork reports the work contributed by a single header toward total
// difficulty. The difficulty formula is out of scope (spec.md §1
// non-goals); callers supply their own via this narrow capability.
type BlockWork interface {
	Work(header types.Header) *uint256.Int
}

// AcceptAllHeaders is a HeaderValidator that never rejects a header. Used
// where PoW/epoch verification is supplied externally or not under test.
type AcceptAllHeaders struct{}

func (AcceptAllHeaders) ValidateHeader(types.Header, types.Header) error { return nil }

// AcceptAllBodies is a BodyValidator that never rejects a block body and
// reports zero cycles spent.
type AcceptAllBodies struct{}

func (AcceptAllBodies) ValidateBody(*types.Block, *Snapshot) (uint64, error) { return 0, nil }

// UnitWork is a BlockWork that assigns every header a difficulty of
// exactly one unit, sufficient to exercise total-difficulty comparison
// and hash tie-break logic without depending on a real PoW target.
type UnitWork struct{}

func (UnitWork) Work(types.Header) *uint256.Int { return uint256.NewInt(1) }
