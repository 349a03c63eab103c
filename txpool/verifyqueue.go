// Copyright (c) 2019-2026 The CKB Core Authors. All rights reserved.
// Use of this source code is governed by a license that can be found in the LICENSE file.

package txpool

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/nervosnode/ckbcore/types"
)

// Priority is the verify queue's scheduling tier (spec.md §4.4).
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityNormal
	PrioritySuspended
)

// ErrBusy is returned by Submit when the verify queue is full: the caller
// backs off rather than blocking (spec.md §4.4).
var ErrBusy = errors.New("verify queue busy")

// VerifyJob is a single unit of work fed to the verify queue: a resolved
// transaction plus the per-tx cycle budget it must stay under.
type VerifyJob struct {
	Entry       *types.TxEntry
	CycleBudget uint64
}

// VerifyResult is fed back to the Tx Pool Map once a worker finishes.
type VerifyResult struct {
	Job   VerifyJob
	Err   error
	Spent uint64 // cycles actually spent
}

// Verifier runs full script verification for a job under its cycle
// budget. Script interpretation itself is out of scope (spec.md §1); the
// core only needs this narrow capability to drive the queue.
type Verifier interface {
	Verify(ctx context.Context, job VerifyJob) (spentCycles uint64, err error)
}

// VerifyQueue is a bounded FIFO with three priority tiers feeding a fixed
// worker pool (spec.md §4.4). Admission never blocks: a full queue
// returns ErrBusy immediately (spec.md §4.4, §7).
type VerifyQueue struct {
	high      chan VerifyJob
	normal    chan VerifyJob
	suspended chan VerifyJob
	results   chan VerifyResult

	verifier Verifier
	limiter  *rate.Limiter
}

// NewVerifyQueue builds a queue with the given per-tier capacity whose
// workers run verifier. It starts no goroutines and does not use
// numWorkers: Run starts the workers and stops them when its context is
// cancelled.
func NewVerifyQueue(capacity, numWorkers int, verifier Verifier) *VerifyQueue {
	q := &VerifyQueue{
		high:      make(chan VerifyJob, capacity),
		normal:    make(chan VerifyJob, capacity),
		suspended: make(chan VerifyJob, capacity),
		results:   make(chan VerifyResult, capacity),
		verifier:  verifier,
	}
	return q
}

// WithRateLimit bounds the queue's verification throughput to r jobs per
// second, with a burst of b. Workers block on the limiter before pulling
// their next job, smoothing script-verification load under a submission
// spike rather than letting the queue itself be the only back-pressure
// signal (spec.md §4.4, §5).
func (q *VerifyQueue) WithRateLimit(r rate.Limit, b int) *VerifyQueue {
	q.limiter = rate.NewLimiter(r, b)
	return q
}

// Submit enqueues job at the given priority tier, returning ErrBusy
// immediately rather than blocking if that tier is full.
func (q *VerifyQueue) Submit(p Priority, job VerifyJob) error {
	var ch chan VerifyJob
	switch p {
	case PriorityHigh:
		ch = q.high
	case PriorityNormal:
		ch = q.normal
	default:
		ch = q.suspended
	}
	select {
	case ch <- job:
		return nil
	default:
		return ErrBusy
	}
}

// Results is the channel workers publish completed verifications to; the
// Tx Pool Map drains it to admit or reject entries.
func (q *VerifyQueue) Results() <-chan VerifyResult { return q.results }

// Run drives numWorkers workers until ctx is cancelled, always preferring
// High over Normal over Suspended work (spec.md §4.4). It returns once
// every worker has exited.
func (q *VerifyQueue) Run(ctx context.Context, numWorkers int) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < numWorkers; i++ {
		g.Go(func() error { return q.workerLoop(gctx) })
	}
	return g.Wait()
}

func (q *VerifyQueue) workerLoop(ctx context.Context) error {
	for {
		if q.limiter != nil {
			if err := q.limiter.Wait(ctx); err != nil {
				return nil
			}
		}
		job, ok := q.nextJob(ctx)
		if !ok {
			return nil
		}
		spent, err := q.verifier.Verify(ctx, job)
		select {
		case q.results <- VerifyResult{Job: job, Err: err, Spent: spent}:
		case <-ctx.Done():
			return nil
		}
	}
}

// nextJob blocks until a job is available from the highest-priority
// non-empty tier, or ctx is cancelled.
func (q *VerifyQueue) nextJob(ctx context.Context) (VerifyJob, bool) {
	select {
	case j := <-q.high:
		return j, true
	default:
	}
	select {
	case j := <-q.high:
		return j, true
	case j := <-q.normal:
		return j, true
	case <-ctx.Done():
		return VerifyJob{}, false
	default:
	}
	select {
	case j := <-q.high:
		return j, true
	case j := <-q.normal:
		return j, true
	case j := <-q.suspended:
		return j, true
	case <-ctx.Done():
		return VerifyJob{}, false
	}
}

// Len reports the total number of jobs currently queued across all tiers.
func (q *VerifyQueue) Len() int {
	return len(q.high) + len(q.normal) + len(q.suspended)
}
