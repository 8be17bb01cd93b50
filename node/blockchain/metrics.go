// Copyright (c) 2024 The Embercoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"github.com/prometheus/client_golang/prometheus"
	"gitlab.com/embercoin/emberd/node/chaindata"
)

// chainMetrics bundles the prometheus collectors the chain updates as blocks
// are connected, disconnected, rejected and as reorganizations happen.  A nil
// receiver disables collection, so all methods are nil-safe.
type chainMetrics struct {
	height     prometheus.Gauge
	totalTxns  prometheus.Gauge
	totalCoins prometheus.Gauge
	totalValue prometheus.Gauge

	connected    prometheus.Counter
	disconnected prometheus.Counter
	reorgs       prometheus.Counter
	rejected     prometheus.Counter
}

// newChainMetrics creates and registers the chain collectors with the passed
// registry.  Returns nil when no registry is provided.
func newChainMetrics(registry prometheus.Registerer, chainName string) *chainMetrics {
	if registry == nil {
		return nil
	}

	labels := prometheus.Labels{"chain": chainName}
	m := &chainMetrics{
		height: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "chain",
			Name:        "height",
			Help:        "Height of the current best chain tip.",
			ConstLabels: labels,
		}),
		totalTxns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "chain",
			Name:        "total_transactions",
			Help:        "Total number of transactions in the main chain.",
			ConstLabels: labels,
		}),
		totalCoins: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "chain",
			Name:        "utxo_total_coins",
			Help:        "Number of live unspent transaction outputs.",
			ConstLabels: labels,
		}),
		totalValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "chain",
			Name:        "utxo_total_value_sparks",
			Help:        "Sum of all unspent transaction output values, in sparks.",
			ConstLabels: labels,
		}),
		connected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "chain",
			Name:        "blocks_connected_total",
			Help:        "Number of blocks connected to the main chain.",
			ConstLabels: labels,
		}),
		disconnected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "chain",
			Name:        "blocks_disconnected_total",
			Help:        "Number of blocks disconnected from the main chain.",
			ConstLabels: labels,
		}),
		reorgs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "chain",
			Name:        "reorganizations_total",
			Help:        "Number of chain reorganizations performed.",
			ConstLabels: labels,
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "chain",
			Name:        "blocks_rejected_total",
			Help:        "Number of blocks rejected by consensus rules.",
			ConstLabels: labels,
		}),
	}

	registry.MustRegister(m.height, m.totalTxns, m.totalCoins, m.totalValue,
		m.connected, m.disconnected, m.reorgs, m.rejected)
	return m
}

func (m *chainMetrics) updateBestState(state *chaindata.BestState) {
	if m == nil {
		return
	}
	m.height.Set(float64(state.Height))
	m.totalTxns.Set(float64(state.TotalTxns))
	m.totalCoins.Set(float64(state.TotalCoins))
	m.totalValue.Set(float64(state.TotalValue))
}

func (m *chainMetrics) blockConnected(state *chaindata.BestState) {
	if m == nil {
		return
	}
	m.connected.Inc()
	m.updateBestState(state)
}

func (m *chainMetrics) blockDisconnected(state *chaindata.BestState) {
	if m == nil {
		return
	}
	m.disconnected.Inc()
	m.updateBestState(state)
}

func (m *chainMetrics) reorganized() {
	if m == nil {
		return
	}
	m.reorgs.Inc()
}

func (m *chainMetrics) blockRejected() {
	if m == nil {
		return
	}
	m.rejected.Inc()
}
