// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2024 The Embercoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/embercoin/emberd/types/chaincfg"
	"gitlab.com/embercoin/emberd/types/chainhash"
)

// fakeCheckpointChain installs the provided checkpoints on a synthetic chain
// the way the constructor does.
func fakeCheckpointChain(params *chaincfg.Params, checkpoints []chaincfg.Checkpoint) *BlockChain {
	chain := newFakeChain(params)
	chain.checkpoints = checkpoints
	chain.checkpointsByHeight = make(map[int32]*chaincfg.Checkpoint)
	for i := range checkpoints {
		checkpoint := &checkpoints[i]
		chain.checkpointsByHeight[checkpoint.Height] = checkpoint
	}
	return chain
}

// TestCheckpointAccessors ensures the checkpoint query surface reflects the
// configured checkpoints.
func TestCheckpointAccessors(t *testing.T) {
	params := chaincfg.SimNetParams

	// Without checkpoints everything reports empty.
	chain := newFakeChain(&params)
	assert.False(t, chain.HasCheckpoints())
	assert.Nil(t, chain.Checkpoints())
	assert.Nil(t, chain.LatestCheckpoint())

	hash1, err := chainhash.NewHashFromStr("000000000000000000000000" +
		"0000000000000000000000000000000000000001")
	require.NoError(t, err)
	hash2, err := chainhash.NewHashFromStr("000000000000000000000000" +
		"0000000000000000000000000000000000000002")
	require.NoError(t, err)

	checkpoints := []chaincfg.Checkpoint{
		{Height: 100, Hash: hash1},
		{Height: 200, Hash: hash2},
	}
	chain = fakeCheckpointChain(&params, checkpoints)

	require.True(t, chain.HasCheckpoints())
	assert.Equal(t, checkpoints, chain.Checkpoints())

	latest := chain.LatestCheckpoint()
	require.NotNil(t, latest)
	assert.Equal(t, int32(200), latest.Height)
	assert.Equal(t, hash2, latest.Hash)
}

// TestVerifyCheckpoint ensures blocks at checkpoint heights are checked
// against the checkpoint hash while other heights always pass.
func TestVerifyCheckpoint(t *testing.T) {
	params := chaincfg.SimNetParams

	hash1, err := chainhash.NewHashFromStr("000000000000000000000000" +
		"0000000000000000000000000000000000000001")
	require.NoError(t, err)

	chain := fakeCheckpointChain(&params, []chaincfg.Checkpoint{
		{Height: 100, Hash: hash1},
	})

	// Heights without checkpoint data always verify.
	var other chainhash.Hash
	other[0] = 0xab
	assert.True(t, chain.verifyCheckpoint(99, &other))
	assert.True(t, chain.verifyCheckpoint(101, &other))

	// The checkpoint height only verifies against the checkpoint hash.
	assert.True(t, chain.verifyCheckpoint(100, hash1))
	assert.False(t, chain.verifyCheckpoint(100, &other))

	// Chains without checkpoints verify everything.
	noCheckpoints := newFakeChain(&params)
	assert.True(t, noCheckpoints.verifyCheckpoint(100, &other))
}

// TestFindPreviousCheckpoint ensures the most recent checkpoint already in
// the best chain is found and the next expected checkpoint tracked.
func TestFindPreviousCheckpoint(t *testing.T) {
	params := chaincfg.SimNetParams
	chain := newFakeChain(&params)
	bits := params.PowParams.PowLimitBits

	// Build a small chain and checkpoint its second block.
	tip := chain.bestChain.Tip()
	for i := 0; i < 4; i++ {
		tip = newFakeNode(tip, 1, bits,
			time.Unix(tip.Timestamp(), 0).Add(10*time.Minute))
		chain.index.AddNode(tip)
		chain.bestChain.SetTip(tip)
	}

	checkpointNode := tip.Ancestor(2)
	require.NotNil(t, checkpointNode)
	checkpointHash := checkpointNode.GetHash()

	futureHash, err := chainhash.NewHashFromStr("0000000000000000000000" +
		"00000000000000000000000000000000000000ff")
	require.NoError(t, err)

	chain.checkpoints = []chaincfg.Checkpoint{
		{Height: 2, Hash: &checkpointHash},
		{Height: 1000, Hash: futureHash},
	}
	chain.checkpointsByHeight = map[int32]*chaincfg.Checkpoint{
		2:    &chain.checkpoints[0],
		1000: &chain.checkpoints[1],
	}

	found, err := chain.findPreviousCheckpoint()
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, checkpointNode, found)

	// The next expected checkpoint is the future one.
	require.NotNil(t, chain.nextCheckpoint)
	assert.Equal(t, int32(1000), chain.nextCheckpoint.Height)

	// Subsequent calls reuse the cached checkpoint while the tip has not
	// reached the next checkpoint height.
	found, err = chain.findPreviousCheckpoint()
	require.NoError(t, err)
	assert.Equal(t, checkpointNode, found)
}
