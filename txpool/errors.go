// Copyright (c) 2019-2026 The CKB Core Authors. All rights reserved.
// Use of this source code is governed by a license that can be found in the LICENSE file.

package txpool

import (
	"fmt"

	"github.com/nervosnode/ckbcore/chainerr"
	"github.com/nervosnode/ckbcore/types"
)

// RejectReason classifies why admission to the Tx Pool Map failed
// (spec.md §4.3, §7). Transient reasons are not cached in the
// Recent-Reject Cache; the rest are.
type RejectReason int

const (
	RejectDuplicate RejectReason = iota
	RejectLowFeeRate
	RejectTooManyAncestors
	RejectConflict
	RejectPoolFull
	RejectExpired
	RejectBusy // transient: verify queue backpressure, never cached
)

func (r RejectReason) String() string {
	switch r {
	case RejectDuplicate:
		return "Duplicate"
	case RejectLowFeeRate:
		return "LowFeeRate"
	case RejectTooManyAncestors:
		return "TooManyAncestors"
	case RejectConflict:
		return "Conflict"
	case RejectPoolFull:
		return "PoolFull"
	case RejectExpired:
		return "Expired"
	case RejectBusy:
		return "Busy"
	default:
		return "Unknown"
	}
}

// Transient reports whether the reason should NOT be cached in the
// Recent-Reject Cache (spec.md §7).
func (r RejectReason) Transient() bool { return r == RejectBusy }

// AdmissionError carries a RejectReason; AsChainErr wraps it as a
// chainerr.Error of kind SubmitTransaction.
type AdmissionError struct {
	Reason   RejectReason
	OutPoint *types.OutPoint // set only for RejectConflict
}

func (e *AdmissionError) Error() string {
	if e.OutPoint != nil {
		return fmt.Sprintf("submit transaction rejected: %s at %s:%d", e.Reason, e.OutPoint.TxHash, e.OutPoint.Index)
	}
	return fmt.Sprintf("submit transaction rejected: %s", e.Reason)
}

// AsChainErr converts an AdmissionError into the envelope used by the rest
// of the pipeline.
func (e *AdmissionError) AsChainErr() *chainerr.Error {
	return chainerr.Wrap(chainerr.KindSubmitTransaction, e, "%s", e.Reason)
}

func reject(reason RejectReason) *AdmissionError { return &AdmissionError{Reason: reason} }

func rejectConflict(op types.OutPoint) *AdmissionError {
	return &AdmissionError{Reason: RejectConflict, OutPoint: &op}
}
