// Copyright (c) 2019-2026 The CKB Core Authors. All rights reserved.
// Use of this source code is governed by a license that can be found in the LICENSE file.

package store

import (
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/nervosnode/ckbcore/types"
)

// The Persistent Store Facade (C12) encodes every on-disk record by hand,
// the same way headermap.View does for its tier-2 spill: a fixed little-
// endian layout for scalars and hashes, length-prefixed for variable-size
// fields, no reflection or gob (spec.md §9 "on-disk persisted state").

type byteWriter struct{ buf []byte }

func (w *byteWriter) hash(h types.Hash) { w.buf = append(w.buf, h[:]...) }

func (w *byteWriter) u64(x uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], x)
	w.buf = append(w.buf, b[:]...)
}

func (w *byteWriter) u32(x uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], x)
	w.buf = append(w.buf, b[:]...)
}

func (w *byteWriter) bytes(b []byte) {
	w.u64(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

type byteReader struct {
	buf []byte
	off int
	err error
}

func (r *byteReader) need(n int) bool {
	if r.err != nil || r.off+n > len(r.buf) {
		if r.err == nil {
			r.err = fmt.Errorf("store: truncated record at offset %d", r.off)
		}
		return false
	}
	return true
}

func (r *byteReader) hash() types.Hash {
	var h types.Hash
	if !r.need(32) {
		return h
	}
	copy(h[:], r.buf[r.off:r.off+32])
	r.off += 32
	return h
}

func (r *byteReader) u64() uint64 {
	if !r.need(8) {
		return 0
	}
	x := binary.LittleEndian.Uint64(r.buf[r.off : r.off+8])
	r.off += 8
	return x
}

func (r *byteReader) u32() uint32 {
	if !r.need(4) {
		return 0
	}
	x := binary.LittleEndian.Uint32(r.buf[r.off : r.off+4])
	r.off += 4
	return x
}

func (r *byteReader) bytes() []byte {
	n := r.u64()
	if !r.need(int(n)) {
		return nil
	}
	b := append([]byte(nil), r.buf[r.off:r.off+int(n)]...)
	r.off += int(n)
	return b
}

func encodeHeader(w *byteWriter, h types.Header) {
	w.hash(h.Hash)
	w.hash(h.ParentHash)
	w.u64(h.Number)
	w.u64(h.Epoch.Index)
	w.u64(h.Epoch.Length)
	w.u64(h.Epoch.StartNumber)
	w.u64(h.TimestampMillis)
	w.hash(h.ProposalsRoot)
	w.hash(h.TransactionsRoot)
	w.hash(h.DAOStateRoot)
	w.u32(h.CompactTargetBits)
	w.buf = append(w.buf, h.Nonce[:]...)
}

func decodeHeader(r *byteReader) types.Header {
	var h types.Header
	h.Hash = r.hash()
	h.ParentHash = r.hash()
	h.Number = r.u64()
	h.Epoch.Index = r.u64()
	h.Epoch.Length = r.u64()
	h.Epoch.StartNumber = r.u64()
	h.TimestampMillis = r.u64()
	h.ProposalsRoot = r.hash()
	h.TransactionsRoot = r.hash()
	h.DAOStateRoot = r.hash()
	h.CompactTargetBits = r.u32()
	if r.need(16) {
		copy(h.Nonce[:], r.buf[r.off:r.off+16])
		r.off += 16
	}
	return h
}

func encodeOutPoint(w *byteWriter, o types.OutPoint) {
	w.hash(o.TxHash)
	w.u32(o.Index)
}

func decodeOutPoint(r *byteReader) types.OutPoint {
	return types.OutPoint{TxHash: r.hash(), Index: r.u32()}
}

func encodeTransaction(w *byteWriter, tx *types.Transaction) {
	w.hash(tx.Hash)
	w.u32(tx.Version)

	w.u64(uint64(len(tx.CellDeps)))
	for _, d := range tx.CellDeps {
		encodeOutPoint(w, d.OutPoint)
		w.buf = append(w.buf, d.DepType)
	}

	w.u64(uint64(len(tx.HeaderDeps)))
	for _, d := range tx.HeaderDeps {
		w.hash(d)
	}

	w.u64(uint64(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		encodeOutPoint(w, in.PreviousOutput)
		w.u64(in.Since)
	}

	w.u64(uint64(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		w.u64(out.Capacity)
		w.hash(out.Lock)
		if out.Type != nil {
			w.buf = append(w.buf, 1)
			w.hash(*out.Type)
		} else {
			w.buf = append(w.buf, 0)
		}
	}

	w.u64(uint64(len(tx.OutputsData)))
	for _, d := range tx.OutputsData {
		w.bytes(d)
	}

	w.u64(uint64(tx.WitnessesLen))
}

func decodeTransaction(r *byteReader) *types.Transaction {
	tx := &types.Transaction{}
	tx.Hash = r.hash()
	tx.Version = r.u32()

	n := r.u64()
	tx.CellDeps = make([]types.CellDep, 0, n)
	for i := uint64(0); i < n; i++ {
		op := decodeOutPoint(r)
		var depType byte
		if r.need(1) {
			depType = r.buf[r.off]
			r.off++
		}
		tx.CellDeps = append(tx.CellDeps, types.CellDep{OutPoint: op, DepType: depType})
	}

	n = r.u64()
	tx.HeaderDeps = make([]types.Hash, 0, n)
	for i := uint64(0); i < n; i++ {
		tx.HeaderDeps = append(tx.HeaderDeps, r.hash())
	}

	n = r.u64()
	tx.Inputs = make([]types.CellInput, 0, n)
	for i := uint64(0); i < n; i++ {
		op := decodeOutPoint(r)
		since := r.u64()
		tx.Inputs = append(tx.Inputs, types.CellInput{PreviousOutput: op, Since: since})
	}

	n = r.u64()
	tx.Outputs = make([]types.CellOutput, 0, n)
	for i := uint64(0); i < n; i++ {
		capacity := r.u64()
		lock := r.hash()
		var typeHash *types.Hash
		if r.need(1) {
			has := r.buf[r.off]
			r.off++
			if has == 1 {
				h := r.hash()
				typeHash = &h
			}
		}
		tx.Outputs = append(tx.Outputs, types.CellOutput{Capacity: capacity, Lock: lock, Type: typeHash})
	}

	n = r.u64()
	tx.OutputsData = make([][]byte, 0, n)
	for i := uint64(0); i < n; i++ {
		tx.OutputsData = append(tx.OutputsData, r.bytes())
	}

	tx.WitnessesLen = int(r.u64())
	return tx
}

func encodeBlock(block *types.Block) []byte {
	w := &byteWriter{}
	encodeHeader(w, block.Header)

	w.u64(uint64(len(block.Transactions)))
	for _, tx := range block.Transactions {
		encodeTransaction(w, tx)
	}

	w.u64(uint64(len(block.Proposals)))
	for _, p := range block.Proposals {
		w.buf = append(w.buf, p[:]...)
	}
	return w.buf
}

func decodeBlock(b []byte) (*types.Block, error) {
	r := &byteReader{buf: b}
	block := &types.Block{Header: decodeHeader(r)}

	n := r.u64()
	block.Transactions = make([]*types.Transaction, 0, n)
	for i := uint64(0); i < n; i++ {
		block.Transactions = append(block.Transactions, decodeTransaction(r))
	}

	n = r.u64()
	block.Proposals = make([]types.ProposalShortID, 0, n)
	for i := uint64(0); i < n; i++ {
		var id types.ProposalShortID
		if r.need(10) {
			copy(id[:], r.buf[r.off:r.off+10])
			r.off += 10
		}
		block.Proposals = append(block.Proposals, id)
	}

	if r.err != nil {
		return nil, r.err
	}
	return block, nil
}

func encodeUint256(x *uint256.Int) []byte {
	b := x.Bytes32()
	return b[:]
}

func decodeUint256(b []byte) *uint256.Int {
	return new(uint256.Int).SetBytes(b)
}
