// Copyright (c) 2015-2017 The btcsuite developers
// Copyright (c) 2024 The Embercoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/embercoin/emberd/node/blocknodes"
	"gitlab.com/embercoin/emberd/types/chaincfg"
	"gitlab.com/embercoin/emberd/types/chainhash"
)

// TestBlockIndexLookup ensures nodes added to the index can be looked up by
// hash and that unknown hashes report as missing.
func TestBlockIndexLookup(t *testing.T) {
	params := chaincfg.SimNetParams
	chain := newFakeChain(&params)
	index := chain.index

	genesis := chain.bestChain.Tip()
	node := newFakeNode(genesis, 1, params.PowParams.PowLimitBits,
		time.Unix(genesis.Timestamp(), 0).Add(10*time.Minute))
	index.AddNode(node)

	hash := node.GetHash()
	require.True(t, index.HaveBlock(&hash))
	assert.Equal(t, node, index.LookupNode(&hash))

	var unknown chainhash.Hash
	unknown[0] = 0xde
	assert.False(t, index.HaveBlock(&unknown))
	assert.Nil(t, index.LookupNode(&unknown))
}

// TestKnownTips ensures the leaf detection over the block index tree reports
// every branch tip exactly once.
func TestKnownTips(t *testing.T) {
	params := chaincfg.SimNetParams
	chain := newFakeChain(&params)
	index := chain.index
	bits := params.PowParams.PowLimitBits

	genesis := chain.bestChain.Tip()

	// A lone genesis block is its own tip.
	tips := chain.KnownTips()
	require.Len(t, tips, 1)
	assert.Contains(t, tips, genesis.GetHash())

	// Extend the main branch by three blocks.
	tip := genesis
	for i := 0; i < 3; i++ {
		tip = newFakeNode(tip, 1, bits,
			time.Unix(tip.Timestamp(), 0).Add(10*time.Minute))
		index.AddNode(tip)
	}
	chain.bestChain.SetTip(tip)

	// Fork off the first block of the main branch.  The fork timestamp is
	// offset so the header hashes differ from the main branch.
	forkTip := tip.Ancestor(1)
	require.NotNil(t, forkTip)
	for i := 0; i < 2; i++ {
		forkTip = newFakeNode(forkTip, 1, bits,
			time.Unix(forkTip.Timestamp(), 0).Add(15*time.Minute))
		index.AddNode(forkTip)
	}

	tips = chain.KnownTips()
	require.Len(t, tips, 2)
	assert.Contains(t, tips, tip.GetHash())
	assert.Contains(t, tips, forkTip.GetHash())
	assert.Equal(t, int32(3), tips[tip.GetHash()])
	assert.Equal(t, int32(3), tips[forkTip.GetHash()])
}

// TestBlockIndexStatusFlags ensures status flags can be set and unset without
// disturbing unrelated flags.
func TestBlockIndexStatusFlags(t *testing.T) {
	params := chaincfg.SimNetParams
	chain := newFakeChain(&params)
	index := chain.index

	genesis := chain.bestChain.Tip()
	node := newFakeNode(genesis, 1, params.PowParams.PowLimitBits,
		time.Unix(genesis.Timestamp(), 0).Add(10*time.Minute))
	index.AddNode(node)

	index.SetStatusFlags(node, blocknodes.StatusValid)
	index.SetStatusFlags(node, blocknodes.StatusDataStored)
	status := index.NodeStatus(node)
	assert.True(t, status.KnownValid())
	assert.True(t, status.HaveData())

	index.UnsetStatusFlags(node, blocknodes.StatusValid)
	status = index.NodeStatus(node)
	assert.False(t, status.KnownValid())
	assert.True(t, status.HaveData())
}
