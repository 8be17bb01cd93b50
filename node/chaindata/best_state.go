// Copyright (c) 2024 The Embercoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaindata

import (
	"math/big"
	"time"

	"gitlab.com/embercoin/emberd/node/blocknodes"
	"gitlab.com/embercoin/emberd/types/chainhash"
)

// BestState houses information about the current best block and other info
// related to the state of the main chain as it exists from the point of view of
// the current best block.
//
// The BestSnapshot method can be used to obtain access to this information
// in a concurrent safe manner and the data will not be changed out from under
// the caller when chain state changes occur as the function name implies.
// However, the returned snapshot must be treated as immutable since it is
// shared by all callers.
type BestState struct {
	Hash         chainhash.Hash // The hash of the block.
	Height       int32          // The height of the block.
	Bits         uint32         // The difficulty bits of the block.
	BlockSize    uint64         // The size of the block.
	BlockWeight  uint64         // The weight of the block.
	NumTxns      uint64         // The number of txns in the block.
	TotalTxns    uint64         // The total number of txns in the chain.
	MedianTime   time.Time      // Median time as per CalcPastMedianTime.
	WorkSum      *big.Int       // The total cumulative work in the chain.
	LastSerialID int64          // The serial id of the latest known block.
	ChainStats                  // Aggregate facts about the live utxo set.
}

// ChainStats tracks aggregate facts about the live utxo set.  The stats are
// updated atomically alongside every connect and disconnect, so they exactly
// match the true contents of the utxo set at every height.  They exist for
// diagnostics and tests and are never consulted by validation logic.
type ChainStats struct {
	TotalCoins uint64 // The number of live unspent outputs.
	TotalValue int64  // The sum of all unspent output values, in sparks.
}

// ApplyDelta returns a copy of the stats with the passed coin count and value
// deltas applied.
func (stats ChainStats) ApplyDelta(coins, value int64) ChainStats {
	return ChainStats{
		TotalCoins: uint64(int64(stats.TotalCoins) + coins),
		TotalValue: stats.TotalValue + value,
	}
}

// NewBestState returns a new best stats instance for the given parameters.
func NewBestState(node *blocknodes.BlockNode, blockSize, blockWeight, numTxns,
	totalTxns uint64, medianTime time.Time, lastSerialID int64,
	stats ChainStats) *BestState {

	return &BestState{
		Hash:         node.GetHash(),
		Height:       node.Height(),
		Bits:         node.Bits(),
		BlockSize:    blockSize,
		BlockWeight:  blockWeight,
		NumTxns:      numTxns,
		TotalTxns:    totalTxns,
		MedianTime:   medianTime,
		WorkSum:      new(big.Int).Set(node.WorkSum()),
		LastSerialID: lastSerialID,
		ChainStats:   stats,
	}
}
