// Copyright (c) 2019-2026 The CKB Core Authors. All rights reserved.
// Use of this source code is governed by a license that can be found in the LICENSE file.

// Package chainerr defines the single top-level error envelope used across
// the block-and-transaction pipeline. It mirrors the tagged-variant error
// taxonomy of the CKB reference node's `error` crate: every error carries a
// coarse Kind for classification plus a preserved cause chain for
// diagnostics.
package chainerr

import (
	"errors"
	"fmt"
)

// ErrUnknownOption is wrapped into the cause chain of a KindSpec error
// when a loaded config key falls outside the core's enumerated option
// set (spec.md §6 "unknown options are rejected at load"). Callers
// distinguish this case from a malformed config file via errors.Is.
var ErrUnknownOption = errors.New("chainerr: unknown config option")

// Kind classifies an Error for coarse-grained handling. The set mirrors
// ckb's ErrorKind enum; it is not expected to be matched exhaustively.
type Kind int

const (
	// KindOutPoint indicates an error resolving a transaction's inputs.
	KindOutPoint Kind = iota
	// KindTransaction indicates a transaction failed structural verification.
	KindTransaction
	// KindSubmitTransaction indicates a tx-pool admission rejection.
	KindSubmitTransaction
	// KindScript indicates a script (VM) verification failure.
	KindScript
	// KindHeader indicates a header failed verification (PoW, timestamp, epoch).
	KindHeader
	// KindBlock indicates a block failed verification.
	KindBlock
	// KindInternal indicates a failure of the node itself rather than its input.
	KindInternal
	// KindDao indicates a DAO (deposit/withdraw) accounting error.
	KindDao
	// KindSpec indicates a chain-spec / consensus-parameter error.
	KindSpec
)

func (k Kind) String() string {
	switch k {
	case KindOutPoint:
		return "OutPoint"
	case KindTransaction:
		return "Transaction"
	case KindSubmitTransaction:
		return "SubmitTransaction"
	case KindScript:
		return "Script"
	case KindHeader:
		return "Header"
	case KindBlock:
		return "Block"
	case KindInternal:
		return "Internal"
	case KindDao:
		return "Dao"
	case KindSpec:
		return "Spec"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// InternalKind refines KindInternal errors.
type InternalKind int

const (
	// InternalDatabase indicates a recoverable storage I/O failure.
	InternalDatabase InternalKind = iota
	// InternalDataCorrupted indicates the on-disk state is inconsistent.
	// Encountering this is fatal; see MustNotBeDataCorrupted.
	InternalDataCorrupted
	// InternalSystem indicates an OS/runtime level failure (disk full, etc).
	InternalSystem
	// InternalOther is a catch-all for internal failures that don't fit above.
	InternalOther
)

func (k InternalKind) String() string {
	switch k {
	case InternalDatabase:
		return "Database"
	case InternalDataCorrupted:
		return "DataCorrupted"
	case InternalSystem:
		return "System"
	case InternalOther:
		return "Other"
	default:
		return fmt.Sprintf("InternalKind(%d)", int(k))
	}
}

// Error is the single top-level error envelope. It carries a Kind, an
// optional InternalKind refinement (meaningful only when Kind ==
// KindInternal), and a cause chain reachable via errors.Unwrap/errors.Is/
// errors.As.
type Error struct {
	kind    Kind
	intKind InternalKind
	msg     string
	cause   error
}

// New creates an Error of the given kind with a formatted message and no
// further cause.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind that preserves cause as its
// underlying error, reachable through errors.Unwrap.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...), cause: cause}
}

// Internal creates a KindInternal error refined by intKind.
func Internal(intKind InternalKind, cause error, format string, args ...any) *Error {
	return &Error{kind: KindInternal, intKind: intKind, msg: fmt.Sprintf(format, args...), cause: cause}
}

// WrapInternal creates a KindInternal error wrapping cause, preserving
// cause's own InternalKind when cause is itself (or wraps) a chainerr
// Error of Kind KindInternal. Call sites that wrap a lower-layer error
// (e.g. a store.PutBlock failure) without knowing its refinement ahead
// of time should use this instead of Wrap(KindInternal, ...), which
// always defaults InternalKind to its zero value (InternalDatabase) and
// would silently discard a real InternalDataCorrupted classification
// carried by cause.
func WrapInternal(cause error, format string, args ...any) *Error {
	intKind := InternalOther
	var ce *Error
	if errors.As(cause, &ce) && ce.kind == KindInternal {
		intKind = ce.intKind
	}
	return &Error{kind: KindInternal, intKind: intKind, msg: fmt.Sprintf(format, args...), cause: cause}
}

// Kind returns the error's coarse classification in O(1).
func (e *Error) Kind() Kind { return e.kind }

// InternalKind returns the refinement of a KindInternal error. It is
// meaningless (returns InternalOther) for any other Kind.
func (e *Error) InternalKind() InternalKind {
	if e.kind != KindInternal {
		return InternalOther
	}
	return e.intKind
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

// Unwrap exposes the cause chain to errors.Is / errors.As.
func (e *Error) Unwrap() error { return e.cause }

// KindOf extracts the Kind carried by err, if any, via errors.As.
func KindOf(err error) (Kind, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.kind, true
	}
	return 0, false
}

// IsInternalDBError reports whether err is a KindInternal error whose
// InternalKind is Database or System — the two internal failure modes a
// caller may reasonably retry or degrade around.
//
// Mirrors ckb's is_internal_db_error. Unlike the Rust original (which
// panics synchronously on DataCorrupted), Go callers that want the
// abort-on-corruption behavior call MustNotBeDataCorrupted explicitly —
// panicking inside a pure classifier is surprising in Go and would fire
// on every call site that merely wants to know "is this retryable".
func IsInternalDBError(err error) bool {
	var ce *Error
	if !errors.As(err, &ce) || ce.kind != KindInternal {
		return false
	}
	return ce.intKind == InternalDatabase || ce.intKind == InternalSystem
}

// MustNotBeDataCorrupted aborts the process if err is a KindInternal
// error with InternalKind DataCorrupted. Recovery from a corrupted store
// is unsafe, so the node terminates rather than silently serve incorrect
// data (spec.md §4.6, §7).
func MustNotBeDataCorrupted(err error) {
	var ce *Error
	if errors.As(err, &ce) && ce.kind == KindInternal && ce.intKind == InternalDataCorrupted {
		panic(fmt.Sprintf("fatal: data corrupted: %v", err))
	}
}
