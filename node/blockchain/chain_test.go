// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2024 The Embercoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/embercoin/emberd/emberutil"
	"gitlab.com/embercoin/emberd/node/chaindata"
	"gitlab.com/embercoin/emberd/types/chaincfg"
	"gitlab.com/embercoin/emberd/types/chainhash"
	"gitlab.com/embercoin/emberd/types/wire"
)

// TestProcessBlockChainExtension ensures blocks which extend the main chain
// are connected and that the best state, including the aggregate utxo
// statistics, tracks every connected block.
func TestProcessBlockChainExtension(t *testing.T) {
	chain, teardown, err := chainSetup("chainextension", &chaincfg.SimNetParams)
	require.NoError(t, err)
	defer teardown()

	params := chain.chainParams
	subsidy := chaindata.CalcBlockSubsidy(1, params)

	parent := genesisUtilBlock(params)
	blocks := make([]*emberutil.Block, 0, 5)
	for i := 0; i < 5; i++ {
		block, err := mineBlock(params, parent, uint64(i))
		require.NoError(t, err)

		isMainChain, err := chain.ProcessBlock(block, chaindata.BFNone)
		require.NoError(t, err)
		require.True(t, isMainChain, "block %d should extend the main chain", i+1)

		blocks = append(blocks, block)
		parent = block
	}

	state := chain.BestSnapshot()
	assert.Equal(t, int32(5), state.Height)
	assert.Equal(t, *blocks[4].Hash(), state.Hash)
	assert.Equal(t, uint64(6), state.TotalTxns)

	// Every mined coinbase carries a single spendable output claiming the
	// full subsidy.  The genesis coinbase never enters the utxo set, so it
	// does not count.
	assert.Equal(t, uint64(5), state.TotalCoins)
	assert.Equal(t, 5*subsidy, state.TotalValue)

	// All blocks must be reachable through the main chain query surface.
	for _, block := range blocks {
		require.True(t, chain.MainChainHasBlock(block.Hash()))

		height, err := chain.BlockHeightByHash(block.Hash())
		require.NoError(t, err)
		assert.Equal(t, block.Height(), height)

		fetched, err := chain.BlockByHeight(block.Height())
		require.NoError(t, err)
		assert.Equal(t, *block.Hash(), *fetched.Hash())
	}

	// SimNet chains are always considered current.
	assert.True(t, chain.IsCurrent())
}

// TestProcessBlockDuplicate ensures submitting a known block is rejected with
// the duplicate block error code.
func TestProcessBlockDuplicate(t *testing.T) {
	chain, teardown, err := chainSetup("duplicateblock", &chaincfg.SimNetParams)
	require.NoError(t, err)
	defer teardown()

	params := chain.chainParams
	block, err := mineBlock(params, genesisUtilBlock(params), 0)
	require.NoError(t, err)

	_, err = chain.ProcessBlock(block, chaindata.BFNone)
	require.NoError(t, err)

	_, err = chain.ProcessBlock(block, chaindata.BFNone)
	require.Error(t, err)
	assertRuleError(t, err, chaindata.ErrDuplicateBlock)
}

// TestProcessBlockUnknownParent ensures a block referencing an unknown
// previous block is rejected outright instead of being held for later.
func TestProcessBlockUnknownParent(t *testing.T) {
	chain, teardown, err := chainSetup("unknownparent", &chaincfg.SimNetParams)
	require.NoError(t, err)
	defer teardown()

	params := chain.chainParams

	// Build a block on a parent the chain has never seen.
	fakeParent, err := mineBlock(params, genesisUtilBlock(params), 99)
	require.NoError(t, err)
	orphan, err := mineBlock(params, fakeParent, 100)
	require.NoError(t, err)

	_, err = chain.ProcessBlock(orphan, chaindata.BFNone)
	require.Error(t, err)
	assertRuleError(t, err, chaindata.ErrPreviousBlockUnknown)

	// The rejected block must not have been stored.
	exists, err := chain.HaveBlock(orphan.Hash())
	require.NoError(t, err)
	assert.False(t, exists)
}

// TestReorganization builds a side chain with more cumulative work than the
// active chain and ensures the chain reorganizes to it, that the best state
// statistics are rolled back and reapplied, and that the expected
// notifications fire.
func TestReorganization(t *testing.T) {
	chain, teardown, err := chainSetup("reorganization", &chaincfg.SimNetParams)
	require.NoError(t, err)
	defer teardown()

	params := chain.chainParams
	subsidy := chaindata.CalcBlockSubsidy(1, params)

	var (
		disconnected int
		connected    int
		reorgs       int
	)
	chain.Subscribe(func(n *Notification) {
		switch n.Type {
		case NTBlockConnected:
			connected++
		case NTBlockDisconnected:
			disconnected++
		case NTReorganization:
			reorgs++
		}
	})

	// Build the initial best chain: genesis -> 1 -> 2 -> 3.
	genesis := genesisUtilBlock(params)
	block1, err := mineBlock(params, genesis, 1)
	require.NoError(t, err)
	block2, err := mineBlock(params, block1, 2)
	require.NoError(t, err)
	block3, err := mineBlock(params, block2, 3)
	require.NoError(t, err)

	for _, block := range []*emberutil.Block{block1, block2, block3} {
		isMainChain, err := chain.ProcessBlock(block, chaindata.BFNone)
		require.NoError(t, err)
		require.True(t, isMainChain)
	}
	require.Equal(t, 3, connected)

	// Fork off block 1: genesis -> 1 -> 2a.  The branch has less work than
	// the active chain, so it must be stored without becoming the best
	// chain.
	block2a, err := mineBlock(params, block1, 1002)
	require.NoError(t, err)
	isMainChain, err := chain.ProcessBlock(block2a, chaindata.BFNone)
	require.NoError(t, err)
	require.False(t, isMainChain)

	exists, err := chain.HaveBlock(block2a.Hash())
	require.NoError(t, err)
	require.True(t, exists)
	require.False(t, chain.MainChainHasBlock(block2a.Hash()))

	// Extending the branch to the same height as the active chain must
	// not trigger a reorganization since equal work keeps the current
	// tip.
	block3a, err := mineBlock(params, block2a, 1003)
	require.NoError(t, err)
	isMainChain, err = chain.ProcessBlock(block3a, chaindata.BFNone)
	require.NoError(t, err)
	require.False(t, isMainChain)
	require.Equal(t, *block3.Hash(), chain.BestSnapshot().Hash)
	require.Zero(t, reorgs)

	// One more block tips the balance and forces the reorganization.
	block4a, err := mineBlock(params, block3a, 1004)
	require.NoError(t, err)
	isMainChain, err = chain.ProcessBlock(block4a, chaindata.BFNone)
	require.NoError(t, err)
	require.True(t, isMainChain)

	state := chain.BestSnapshot()
	assert.Equal(t, *block4a.Hash(), state.Hash)
	assert.Equal(t, int32(4), state.Height)

	// Blocks 2 and 3 were detached while 2a, 3a, and 4a are now active.
	assert.False(t, chain.MainChainHasBlock(block2.Hash()))
	assert.False(t, chain.MainChainHasBlock(block3.Hash()))
	assert.True(t, chain.MainChainHasBlock(block2a.Hash()))
	assert.True(t, chain.MainChainHasBlock(block3a.Hash()))
	assert.True(t, chain.MainChainHasBlock(block4a.Hash()))

	// The detached blocks remain known to the chain.
	for _, hash := range []*chainhash.Hash{block2.Hash(), block3.Hash()} {
		exists, err := chain.HaveBlock(hash)
		require.NoError(t, err)
		assert.True(t, exists)
	}

	// The aggregate statistics must reflect the detach and attach cycle:
	// the four coinbases of the winning branch (the genesis coinbase is
	// not part of the utxo set).
	assert.Equal(t, uint64(5), state.TotalTxns)
	assert.Equal(t, uint64(4), state.TotalCoins)
	assert.Equal(t, 4*subsidy, state.TotalValue)

	assert.Equal(t, 2, disconnected)
	assert.Equal(t, 1, reorgs)

	// Both branch tips are known to the block index.
	tips := chain.KnownTips()
	assert.Len(t, tips, 2)
	assert.Contains(t, tips, *block4a.Hash())
	assert.Contains(t, tips, *block3.Hash())
}

// TestBlockLocator ensures locators built from the tip follow the expected
// exponential back-off shape and that LocateBlocks walks forward from the
// locator fork point.
func TestBlockLocator(t *testing.T) {
	chain, teardown, err := chainSetup("blocklocator", &chaincfg.SimNetParams)
	require.NoError(t, err)
	defer teardown()

	params := chain.chainParams
	parent := genesisUtilBlock(params)
	hashes := []chainhash.Hash{*parent.Hash()}
	for i := 0; i < 20; i++ {
		block, err := mineBlock(params, parent, uint64(i))
		require.NoError(t, err)
		_, err = chain.ProcessBlock(block, chaindata.BFNone)
		require.NoError(t, err)
		hashes = append(hashes, *block.Hash())
		parent = block
	}

	locator, err := chain.LatestBlockLocator()
	require.NoError(t, err)
	require.NotEmpty(t, locator)

	// The locator leads with the tip and ends at the genesis block.
	assert.Equal(t, hashes[20], *locator[0])
	assert.Equal(t, hashes[0], *locator[len(locator)-1])

	// Locating from a mid-chain locator returns the blocks after it.
	midLocator := chain.BlockLocatorFromHash(&hashes[10])
	found := chain.LocateBlocks(midLocator, &chainhash.ZeroHash, 500)
	require.Len(t, found, 10)
	assert.Equal(t, hashes[11], found[0])
	assert.Equal(t, hashes[20], found[9])
}

// TestLockTimeToSequence ensures the relative lock time to sequence number
// conversions work for both block and second based lock times.
func TestLockTimeToSequence(t *testing.T) {
	// Block based lock times are passed through unchanged.
	assert.Equal(t, uint32(3), LockTimeToSequence(false, 3))
	assert.Equal(t, uint32(1000), LockTimeToSequence(false, 1000))

	// Second based lock times set the disambiguation bit and are expressed
	// with 512 second granularity.
	assert.Equal(t, uint32(wire.SequenceLockTimeIsSeconds|2),
		LockTimeToSequence(true, 1024))
	assert.Equal(t, uint32(wire.SequenceLockTimeIsSeconds|65535),
		LockTimeToSequence(true, 33553920))
}

// assertRuleError verifies the passed error is a rule error with the provided
// error code.
func assertRuleError(t *testing.T, err error, code chaindata.ErrorCode) {
	t.Helper()

	rerr, ok := err.(chaindata.RuleError)
	require.True(t, ok, "error %v is not a rule error", err)
	assert.Equal(t, code, rerr.ErrorCode)
}
