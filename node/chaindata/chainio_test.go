// Copyright (c) 2015-2017 The btcsuite developers
// Copyright (c) 2024 The Embercoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaindata

import (
	"encoding/binary"
	"math/big"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/embercoin/emberd/database"
	"gitlab.com/embercoin/emberd/types/chainhash"
	"gitlab.com/embercoin/emberd/types/wire"
)

// TestBestChainStateSerialization ensures the best chain state, including the
// aggregate utxo statistics, round trips through its serialization.
func TestBestChainStateSerialization(t *testing.T) {
	var hash chainhash.Hash
	hash[0] = 0x42

	state := BestChainState{
		Hash:       hash,
		Height:     12345,
		TotalTxns:  67890,
		TotalCoins: 54321,
		TotalValue: 987654321,
		WorkSum:    big.NewInt(0x1badcafe),
	}

	serialized := serializeBestChainState(state)
	got, err := DeserializeBestChainState(serialized)
	require.NoError(t, err)

	assert.Equal(t, state.Hash, got.Hash)
	assert.Equal(t, state.Height, got.Height)
	assert.Equal(t, state.TotalTxns, got.TotalTxns)
	assert.Equal(t, state.TotalCoins, got.TotalCoins)
	assert.Equal(t, state.TotalValue, got.TotalValue)
	assert.Zero(t, state.WorkSum.Cmp(got.WorkSum))

	// A zero work sum serializes to an empty byte slice and still round
	// trips.
	state.WorkSum = big.NewInt(0)
	got, err = DeserializeBestChainState(serializeBestChainState(state))
	require.NoError(t, err)
	assert.Zero(t, got.WorkSum.Sign())
}

// TestBestChainStateDeserializeErrors ensures corrupt serializations are
// rejected as database corruption.
func TestBestChainStateDeserializeErrors(t *testing.T) {
	state := BestChainState{WorkSum: big.NewInt(1)}
	serialized := serializeBestChainState(state)

	tests := []struct {
		name string
		data []byte
	}{
		{name: "nothing", data: nil},
		{name: "short header", data: serialized[:chainhash.HashSize+8]},
		{name: "short work sum", data: serialized[:len(serialized)-1]},
	}

	for _, test := range tests {
		_, err := DeserializeBestChainState(test.data)
		require.Error(t, err, "%s", test.name)

		dbErr, ok := err.(database.Error)
		require.True(t, ok, "%s: error %v is not a database error", test.name, err)
		assert.Equal(t, database.ErrCorruption, dbErr.ErrorCode, "%s", test.name)
	}
}

// TestSpendJournalSerialization ensures spend journal entries round trip
// through their serialization.
func TestSpendJournalSerialization(t *testing.T) {
	var prevHash chainhash.Hash
	prevHash[0] = 0x11

	// A transaction spending two outputs, one of them from a coinbase.
	spendTx := wire.NewMsgTx(wire.TxVersion)
	spendTx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Hash: prevHash, Index: 0},
		Sequence:         wire.MaxTxInSequenceNum,
	})
	spendTx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Hash: prevHash, Index: 1},
		Sequence:         wire.MaxTxInSequenceNum,
	})
	spendTx.AddTxOut(&wire.TxOut{Value: 1000, PkScript: []byte{0x51}})

	stxos := []SpentTxOut{
		{
			Amount:     5000000000,
			PkScript:   []byte{0x51},
			Height:     9,
			IsCoinBase: true,
		},
		{
			Amount:   3000000,
			PkScript: []byte{0x63, 0x51, 0x67, 0x51, 0x68},
			Height:   100,
		},
	}

	serialized := serializeSpendJournalEntry(stxos)
	require.NotEmpty(t, serialized)

	got, err := deserializeSpendJournalEntry(serialized, []*wire.MsgTx{spendTx})
	require.NoError(t, err)
	require.Len(t, got, len(stxos), "unexpected journal entries: %s",
		spew.Sdump(got))

	for i := range stxos {
		assert.Equal(t, stxos[i].Amount, got[i].Amount, "stxo #%d", i)
		assert.Equal(t, stxos[i].PkScript, got[i].PkScript, "stxo #%d", i)
		assert.Equal(t, stxos[i].Height, got[i].Height, "stxo #%d", i)
		assert.Equal(t, stxos[i].IsCoinBase, got[i].IsCoinBase, "stxo #%d", i)
	}

	// A block with no spends serializes to nothing.
	assert.Nil(t, serializeSpendJournalEntry(nil))
	got, err = deserializeSpendJournalEntry(nil, nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	// An empty serialization with expected stxos is corrupt.
	_, err = deserializeSpendJournalEntry(nil, []*wire.MsgTx{spendTx})
	require.Error(t, err)
}

// TestUtxoEntrySerialization ensures utxo entries round trip through their
// serialization and that spent entries serialize to nothing.
func TestUtxoEntrySerialization(t *testing.T) {
	entry := &UtxoEntry{
		amount:      5000000000,
		pkScript:    []byte{0x51},
		blockHeight: 12345,
		packedFlags: tfCoinBase,
	}

	serialized, err := serializeUtxoEntry(entry)
	require.NoError(t, err)
	require.NotEmpty(t, serialized)

	got, err := deserializeUtxoEntry(serialized)
	require.NoError(t, err)
	assert.Equal(t, entry.Amount(), got.Amount())
	assert.Equal(t, entry.PkScript(), got.PkScript())
	assert.Equal(t, entry.BlockHeight(), got.BlockHeight())
	assert.Equal(t, entry.IsCoinBase(), got.IsCoinBase())
	assert.False(t, got.IsSpent())

	// Spent entries serialize to nil.
	entry.Spend()
	serialized, err = serializeUtxoEntry(entry)
	require.NoError(t, err)
	assert.Nil(t, serialized)

	// Corrupt serializations are rejected.
	_, err = deserializeUtxoEntry([]byte{0x12})
	require.Error(t, err)
	assert.True(t, IsDeserializeErr(err))
}

// TestOutpointKey ensures outpoint database keys round trip back to the
// originating outpoint.
func TestOutpointKey(t *testing.T) {
	var hash chainhash.Hash
	hash[0] = 0x77

	outpoints := []wire.OutPoint{
		{Hash: hash, Index: 0},
		{Hash: hash, Index: 1},
		{Hash: hash, Index: 0x12345678},
	}

	for i, outpoint := range outpoints {
		key := outpointKey(outpoint)
		got := keyToOutpoint(*key)
		recycleOutpointKey(key)
		assert.Equal(t, outpoint, got, "outpoint #%d", i)
	}
}

// TestBlockIndexKey ensures the block index key is composed of the big endian
// height followed by the block hash.
func TestBlockIndexKey(t *testing.T) {
	var hash chainhash.Hash
	hash[0] = 0x99

	key := BlockIndexKey(&hash, 0x01020304)
	require.Len(t, key, chainhash.HashSize+4)
	assert.Equal(t, uint32(0x01020304), binary.BigEndian.Uint32(key[0:4]))
	assert.Equal(t, hash[:], key[4:])
}
