// Copyright (c) 2024 The Embercoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gocarina/gocsv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/embercoin/emberd/emberutil"
	"gitlab.com/embercoin/emberd/types/chaincfg"
)

func TestNewBlockRow(t *testing.T) {
	params := chaincfg.SimNetParams
	genesis := emberutil.NewBlock(params.GenesisBlock())
	genesis.SetHeight(0)

	row := newBlockRow(genesis)
	assert.Equal(t, int32(0), row.Height)
	assert.Equal(t, params.GenesisHash().String(), row.Hash)
	assert.Equal(t, params.GenesisBlock().Header.Version, row.Version)
	assert.Equal(t, params.GenesisBlock().Header.Bits, row.Bits)
	assert.Equal(t, 1, row.NumTxns)
	assert.Equal(t, params.GenesisBlock().SerializeSize(), row.Size)
}

func TestCSVStorageRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocks.csv")

	rows := []BlockRow{
		{Height: 0, Hash: "aa", Version: 1, Timestamp: 100, Bits: 0x207fffff, NumTxns: 1, Size: 285},
		{Height: 1, Hash: "bb", Version: 4, Timestamp: 700, Bits: 0x207fffff, NumTxns: 2, Size: 500},
	}

	storage := NewCSVStorage(path)
	require.NoError(t, storage.SaveRows(rows))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var got []BlockRow
	require.NoError(t, gocsv.UnmarshalFile(file, &got))
	assert.Equal(t, rows, got)
}
