// Copyright (c) 2019-2026 The CKB Core Authors. All rights reserved.
// Use of this source code is governed by a license that can be found in the LICENSE file.

package types

// BlockStatus is the per-hash lifecycle flag tracked by the Block Status
// Map (C3). It is monotonic except for invalidation, which is terminal.
type BlockStatus uint8

const (
	// StatusUnknown means the node has never heard of the hash.
	StatusUnknown BlockStatus = iota
	// StatusHeaderValid means the header alone passed verification.
	StatusHeaderValid
	// StatusBlockReceived means the full block body has arrived but has
	// not yet been verified.
	StatusBlockReceived
	// StatusBlockValid means the block passed full verification and was
	// connected to some chain (main or side branch).
	StatusBlockValid
	// StatusBlockInvalid is terminal: the block or an ancestor failed
	// verification.
	StatusBlockInvalid
)

func (s BlockStatus) String() string {
	switch s {
	case StatusUnknown:
		return "Unknown"
	case StatusHeaderValid:
		return "HeaderValid"
	case StatusBlockReceived:
		return "BlockReceived"
	case StatusBlockValid:
		return "BlockValid"
	case StatusBlockInvalid:
		return "BlockInvalid"
	default:
		return "Invalid(?)"
	}
}

// AtLeast reports whether s has progressed at least as far as other in the
// lifecycle ordering Unknown < HeaderValid < BlockReceived < BlockValid,
// treating BlockInvalid as its own terminal state outside that ordering.
func (s BlockStatus) AtLeast(other BlockStatus) bool {
	if s == StatusBlockInvalid || other == StatusBlockInvalid {
		return s == other
	}
	return s >= other
}
