// Copyright (c) 2024 The Embercoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/embercoin/emberd/types/chaincfg"
	"gitlab.com/embercoin/emberd/types/chainhash"
)

func TestNewCheckpointFromStr(t *testing.T) {
	hashStr := "00000000000000000000000000000000000000000000000000000000000000ff"
	wantHash, err := chainhash.NewHashFromStr(hashStr)
	require.NoError(t, err)

	checkpoint, err := newCheckpointFromStr("1200:" + hashStr)
	require.NoError(t, err)
	assert.Equal(t, int32(1200), checkpoint.Height)
	assert.Equal(t, wantHash, checkpoint.Hash)

	invalid := []string{
		"",
		"1200",
		"1200:",
		":deadbeef",
		"twelve:" + hashStr,
		"1200:not-a-hash",
	}
	for _, test := range invalid {
		_, err := newCheckpointFromStr(test)
		assert.Error(t, err, "checkpoint %q", test)
	}
}

func TestParseCheckpointsSorts(t *testing.T) {
	hashStr := "00000000000000000000000000000000000000000000000000000000000000ff"

	checkpoints, err := parseCheckpoints([]string{
		"300:" + hashStr,
		"100:" + hashStr,
		"200:" + hashStr,
	})
	require.NoError(t, err)
	require.Len(t, checkpoints, 3)
	assert.Equal(t, int32(100), checkpoints[0].Height)
	assert.Equal(t, int32(200), checkpoints[1].Height)
	assert.Equal(t, int32(300), checkpoints[2].Height)

	// No strings means no checkpoints rather than an empty slice.
	checkpoints, err = parseCheckpoints(nil)
	require.NoError(t, err)
	assert.Nil(t, checkpoints)
}

func TestMergeCheckpoints(t *testing.T) {
	var hashA, hashB chainhash.Hash
	hashA[0] = 0xaa
	hashB[0] = 0xbb

	defaults := []chaincfg.Checkpoint{
		{Height: 100, Hash: &hashA},
		{Height: 200, Hash: &hashA},
	}
	additional := []chaincfg.Checkpoint{
		{Height: 200, Hash: &hashB},
		{Height: 50, Hash: &hashB},
	}

	merged := mergeCheckpoints(defaults, additional)
	require.Len(t, merged, 3)

	// Sorted by height with the additional checkpoint replacing the
	// default at the same height.
	assert.Equal(t, int32(50), merged[0].Height)
	assert.Equal(t, int32(100), merged[1].Height)
	assert.Equal(t, int32(200), merged[2].Height)
	assert.Equal(t, &hashB, merged[2].Hash)
}

func TestParamsByName(t *testing.T) {
	assert.Equal(t, &chaincfg.MainNetParams, paramsByName("mainnet"))
	assert.Equal(t, &chaincfg.TestNetParams, paramsByName("testnet"))
	assert.Equal(t, &chaincfg.SimNetParams, paramsByName("simnet"))
	assert.Nil(t, paramsByName("regtest"))
}

func TestValidDBType(t *testing.T) {
	assert.True(t, validDBType("leveldb"))
	assert.True(t, validDBType("badgerdb"))
	assert.False(t, validDBType("ffldb"))
}
