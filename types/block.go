// Copyright (c) 2019-2026 The CKB Core Authors. All rights reserved.
// Use of this source code is governed by a license that can be found in the LICENSE file.

package types

// ProposalShortID is the first 10 bytes of a transaction hash, used in a
// block's proposal list.
type ProposalShortID [10]byte

// ShortIDFromHash truncates a full transaction hash to its 10-byte
// proposal/pool short-id.
func ShortIDFromHash(h Hash) ProposalShortID {
	var id ProposalShortID
	copy(id[:], h[:10])
	return id
}

// OutPoint references a single output of a transaction.
type OutPoint struct {
	TxHash Hash
	Index  uint32
}

// CellInput is a consumed OutPoint plus its since-maturity field.
type CellInput struct {
	PreviousOutput OutPoint
	Since          uint64
}

// CellOutput is a transaction output: capacity plus an opaque lock/type
// script reference. Script interpretation itself is out of scope
// (spec.md §1 non-goals); the core only needs to move bytes and capacities
// around.
type CellOutput struct {
	Capacity uint64
	Lock     Hash // script hash, opaque
	Type     *Hash
}

// CellDep references a cell a transaction depends on without consuming.
type CellDep struct {
	OutPoint OutPoint
	DepType  uint8
}

// Transaction is a resolved CKB transaction: inputs, outputs, and the
// dependency lists needed to verify it.
type Transaction struct {
	Hash         Hash
	Version      uint32
	CellDeps     []CellDep
	HeaderDeps   []Hash
	Inputs       []CellInput
	Outputs      []CellOutput
	OutputsData  [][]byte
	WitnessesLen int
}

// ShortID is the proposal short-id used as the Tx Pool Map's primary key.
func (t *Transaction) ShortID() ProposalShortID { return ShortIDFromHash(t.Hash) }

// Size is the serialized byte size used for fee-rate and pool-capacity
// accounting.
func (t *Transaction) Size() uint64 {
	size := uint64(4 + len(t.CellDeps)*37 + len(t.HeaderDeps)*32)
	size += uint64(len(t.Inputs)) * 44
	for _, o := range t.Outputs {
		size += 8 + 32
		if o.Type != nil {
			size += 32
		}
	}
	for _, d := range t.OutputsData {
		size += uint64(len(d))
	}
	size += uint64(t.WitnessesLen)
	return size
}

// Block is a header plus its full transaction list plus the proposal
// short-ids it carries forward for the next block.
type Block struct {
	Header       Header
	Transactions []*Transaction
	Proposals    []ProposalShortID
}
