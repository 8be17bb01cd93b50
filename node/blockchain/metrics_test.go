// Copyright (c) 2024 The Embercoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/embercoin/emberd/node/chaindata"
)

// TestChainMetricsNilSafe ensures a disabled metrics bundle can be used
// without panicking.
func TestChainMetricsNilSafe(t *testing.T) {
	var m *chainMetrics

	require.NotPanics(t, func() {
		m.updateBestState(&chaindata.BestState{})
		m.blockConnected(&chaindata.BestState{})
		m.blockDisconnected(&chaindata.BestState{})
		m.reorganized()
		m.blockRejected()
	})
}

// TestChainMetricsNoRegistry ensures no collectors are created when metrics
// collection is not configured.
func TestChainMetricsNoRegistry(t *testing.T) {
	assert.Nil(t, newChainMetrics(nil, "mainnet"))
}

// TestChainMetricsCollection ensures the collectors track the best state and
// the block life cycle counters.
func TestChainMetricsCollection(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newChainMetrics(registry, "simnet")
	require.NotNil(t, m)

	state := &chaindata.BestState{
		Height:    42,
		TotalTxns: 50,
		ChainStats: chaindata.ChainStats{
			TotalCoins: 43,
			TotalValue: 2150,
		},
	}

	m.blockConnected(state)
	m.blockConnected(state)
	m.blockDisconnected(state)
	m.reorganized()
	m.blockRejected()

	assert.Equal(t, float64(42), testutil.ToFloat64(m.height))
	assert.Equal(t, float64(50), testutil.ToFloat64(m.totalTxns))
	assert.Equal(t, float64(43), testutil.ToFloat64(m.totalCoins))
	assert.Equal(t, float64(2150), testutil.ToFloat64(m.totalValue))

	assert.Equal(t, float64(2), testutil.ToFloat64(m.connected))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.disconnected))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.reorgs))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.rejected))
}
