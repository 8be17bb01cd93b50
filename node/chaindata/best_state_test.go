// Copyright (c) 2024 The Embercoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaindata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/embercoin/emberd/node/blocknodes"
	"gitlab.com/embercoin/emberd/types/chaincfg"
)

// TestChainStatsApplyDelta ensures deltas are applied to both the coin count
// and the total value, in either direction.
func TestChainStatsApplyDelta(t *testing.T) {
	stats := ChainStats{TotalCoins: 10, TotalValue: 1000}

	grown := stats.ApplyDelta(2, 500)
	assert.Equal(t, uint64(12), grown.TotalCoins)
	assert.Equal(t, int64(1500), grown.TotalValue)

	shrunk := grown.ApplyDelta(-12, -1500)
	assert.Zero(t, shrunk.TotalCoins)
	assert.Zero(t, shrunk.TotalValue)

	// The receiver is unchanged.
	assert.Equal(t, uint64(10), stats.TotalCoins)
	assert.Equal(t, int64(1000), stats.TotalValue)
}

// TestNewBestState ensures the snapshot captures the passed node and stats.
func TestNewBestState(t *testing.T) {
	params := chaincfg.SimNetParams
	header := params.GenesisBlock().Header
	node := blocknodes.NewBlockNode(&header, nil, 0)

	medianTime := time.Unix(header.Timestamp.Unix(), 0)
	stats := ChainStats{TotalCoins: 1, TotalValue: 50 * chaincfg.SparkPerEmber}
	state := NewBestState(node, 100, 400, 1, 1, medianTime, 0, stats)
	require.NotNil(t, state)

	assert.Equal(t, node.GetHash(), state.Hash)
	assert.Equal(t, node.Height(), state.Height)
	assert.Equal(t, node.Bits(), state.Bits)
	assert.Equal(t, uint64(100), state.BlockSize)
	assert.Equal(t, uint64(400), state.BlockWeight)
	assert.Equal(t, uint64(1), state.NumTxns)
	assert.Equal(t, uint64(1), state.TotalTxns)
	assert.Equal(t, medianTime, state.MedianTime)
	assert.Equal(t, stats, state.ChainStats)
	assert.Zero(t, node.WorkSum().Cmp(state.WorkSum))
}
