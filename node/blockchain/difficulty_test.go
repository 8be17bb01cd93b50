// Copyright (c) 2014-2017 The btcsuite developers
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
)

// TestCalcNextRequiredDifficultyKeepsBits ensures blocks which are not at a
// retarget boundary inherit the difficulty of their parent.
func TestCalcNextRequiredDifficultyKeepsBits(t *testing.T) {
	params := chaincfg.MainNetParams
	chain := newFakeChain(&params)

	bits := params.PowParams.PowLimitBits
	tip := appendFakeNodes(chain.bestChain.Tip(), 5, 1, bits)

	newBlockTime := time.Unix(tip.Timestamp(), 0).Add(10 * time.Minute)
	got, err := chain.calcNextRequiredDifficulty(tip, newBlockTime)
	require.NoError(t, err)
	assert.Equal(t, bits, got)
}

// TestCalcNextRequiredDifficultyRetarget ensures a retarget boundary with the
// blocks spaced at exactly the target rate keeps the difficulty unchanged.
func TestCalcNextRequiredDifficultyRetarget(t *testing.T) {
	params := chaincfg.MainNetParams
	chain := newFakeChain(&params)

	// Build a full retarget interval worth of blocks and pin the final
	// block so the elapsed time exactly matches the target timespan.
	bits := params.PowParams.PowLimitBits
	genesis := chain.bestChain.Tip()
	numBlocks := int(params.BlocksPerRetarget()) - 1
	tip := appendFakeNodes(genesis, numBlocks-1, 1, bits)
	tip = newFakeNode(tip, 1, bits,
		time.Unix(genesis.Timestamp(), 0).Add(params.PowParams.TargetTimespan))
	require.Equal(t, params.BlocksPerRetarget()-1, tip.Height())

	newBlockTime := time.Unix(tip.Timestamp(), 0).Add(10 * time.Minute)
	got, err := chain.calcNextRequiredDifficulty(tip, newBlockTime)
	require.NoError(t, err)
	assert.Equal(t, bits, got)
}

// TestCalcNextRequiredDifficultyClamped ensures a retarget which would ease
// the difficulty beyond the proof of work limit is clamped to the limit.
func TestCalcNextRequiredDifficultyClamped(t *testing.T) {
	params := chaincfg.MainNetParams
	chain := newFakeChain(&params)

	// Take far longer than the maximum adjustment allows so the eased
	// target overshoots the proof of work limit and gets clamped.
	bits := params.PowParams.PowLimitBits
	genesis := chain.bestChain.Tip()
	numBlocks := int(params.BlocksPerRetarget()) - 1
	tip := appendFakeNodes(genesis, numBlocks-1, 1, bits)
	tip = newFakeNode(tip, 1, bits,
		time.Unix(genesis.Timestamp(), 0).Add(10*params.PowParams.TargetTimespan))
	require.Equal(t, params.BlocksPerRetarget()-1, tip.Height())

	newBlockTime := time.Unix(tip.Timestamp(), 0).Add(10 * time.Minute)
	got, err := chain.calcNextRequiredDifficulty(tip, newBlockTime)
	require.NoError(t, err)
	assert.Equal(t, params.PowParams.PowLimitBits, got)
}

// TestCalcNextRequiredDifficultyMinDiffReduction ensures networks with the
// minimum difficulty reduction rule fall back to the minimum difficulty once
// too much time elapses without a block.
func TestCalcNextRequiredDifficultyMinDiffReduction(t *testing.T) {
	params := chaincfg.SimNetParams
	chain := newFakeChain(&params)

	// Use a tip with a harder than minimum difficulty.
	hardBits := uint32(0x207ffffe)
	tip := appendFakeNodes(chain.bestChain.Tip(), 3, 1, hardBits)

	// A block arriving within the reduction window keeps the difficulty of
	// the last block which did not use the special minimum rule.
	soon := time.Unix(tip.Timestamp(), 0).Add(10 * time.Minute)
	got, err := chain.calcNextRequiredDifficulty(tip, soon)
	require.NoError(t, err)
	assert.Equal(t, hardBits, got)

	// Once more than the reduction time elapses the minimum difficulty is
	// allowed.
	late := time.Unix(tip.Timestamp(), 0).
		Add(params.PowParams.MinDiffReductionTime + time.Second)
	got, err = chain.calcNextRequiredDifficulty(tip, late)
	require.NoError(t, err)
	assert.Equal(t, params.PowParams.PowLimitBits, got)
}

// TestFindPrevTestNetDifficulty ensures the search for the last difficulty
// which did not use the minimum difficulty rule skips over minimum difficulty
// blocks.
func TestFindPrevTestNetDifficulty(t *testing.T) {
	params := chaincfg.SimNetParams
	chain := newFakeChain(&params)

	minBits := params.PowParams.PowLimitBits
	hardBits := uint32(0x207ffffe)

	// A run of minimum difficulty blocks on top of a harder block.
	tip := appendFakeNodes(chain.bestChain.Tip(), 1, 1, hardBits)
	tip = appendFakeNodes(tip, 4, 1, minBits)

	assert.Equal(t, hardBits, chain.findPrevTestNetDifficulty(tip))

	// With nothing but minimum difficulty blocks the minimum is returned.
	freshChain := newFakeChain(&params)
	freshTip := appendFakeNodes(freshChain.bestChain.Tip(), 4, 1, minBits)
	assert.Equal(t, minBits, freshChain.findPrevTestNetDifficulty(freshTip))
}

// TestCalcEasiestDifficulty ensures the easiest difficulty calculation used
// by the checkpoint validation behaves for both zero durations and durations
// long enough to hit the proof of work limit.
func TestCalcEasiestDifficulty(t *testing.T) {
	params := chaincfg.MainNetParams
	chain := newFakeChain(&params)

	bits := params.PowParams.PowLimitBits

	// No elapsed time cannot ease the difficulty.
	assert.Equal(t, bits, chain.calcEasiestDifficulty(bits, 0))

	// An absurdly long duration eases all the way to the limit.
	assert.Equal(t, bits, chain.calcEasiestDifficulty(bits, 10*365*24*time.Hour))
}
