// Copyright (c) 2019-2026 The CKB Core Authors. All rights reserved.
// Use of this source code is governed by a license that can be found in the LICENSE file.

package chain

import "github.com/prometheus/client_golang/prometheus"

// metricsSet holds the Chain Service's Prometheus instrumentation
// (spec.md's DOMAIN STACK wiring for C8): blocks processed, reorg
// counts, and current tip height, registered against a caller-supplied
// registry so multiple Service instances in tests don't collide on the
// default global registry.
type metricsSet struct {
	blocksConnected prometheus.Counter
	blocksOrphaned  prometheus.Counter
	blocksRejected  prometheus.Counter
	reorgs          prometheus.Counter
	dbErrors        prometheus.Counter
	tipHeight       prometheus.Gauge
}

func newMetricsSet(reg prometheus.Registerer) *metricsSet {
	m := &metricsSet{
		blocksConnected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ckbcore_chain_blocks_connected_total",
			Help: "Number of blocks connected to some chain (canonical or side branch).",
		}),
		blocksOrphaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ckbcore_chain_blocks_orphaned_total",
			Help: "Number of blocks routed to the orphan pool pending their parent.",
		}),
		blocksRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ckbcore_chain_blocks_rejected_total",
			Help: "Number of blocks that failed header or body validation.",
		}),
		reorgs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ckbcore_chain_reorgs_total",
			Help: "Number of completed chain reorganizations.",
		}),
		dbErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ckbcore_chain_db_errors_total",
			Help: "Number of Internal::Database failures that paused admissions without invalidating a block.",
		}),
		tipHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ckbcore_chain_tip_height",
			Help: "Block number of the current canonical tip.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.blocksConnected, m.blocksOrphaned, m.blocksRejected, m.reorgs, m.dbErrors, m.tipHeight)
	}
	return m
}
