// Copyright (c) 2015-2017 The btcsuite developers
// Copyright (c) 2024 The Embercoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaindata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/embercoin/emberd/emberutil"
	"gitlab.com/embercoin/emberd/txscript"
	"gitlab.com/embercoin/emberd/types/chaincfg"
	"gitlab.com/embercoin/emberd/types/chainhash"
	"gitlab.com/embercoin/emberd/types/wire"
)

// spendableBlock builds a block at the passed height containing a coinbase
// and a transaction spending the provided outpoint.  The spending transaction
// additionally carries a provably unspendable output so tests cover the
// pruning of those.
func spendableBlock(height int32, prevBlock chainhash.Hash, spend wire.OutPoint, value int64) *emberutil.Block {
	coinbase := wire.NewMsgTx(wire.TxVersion)
	coinbase.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{
			Hash:  chainhash.Hash{},
			Index: wire.MaxPrevOutIndex,
		},
		SignatureScript: []byte{0x01, byte(height)},
		Sequence:        wire.MaxTxInSequenceNum,
	})
	coinbase.AddTxOut(&wire.TxOut{
		Value:    50 * chaincfg.SparkPerEmber,
		PkScript: []byte{txscript.OP_TRUE},
	})

	spender := wire.NewMsgTx(wire.TxVersion)
	spender.AddTxIn(&wire.TxIn{
		PreviousOutPoint: spend,
		Sequence:         wire.MaxTxInSequenceNum,
	})
	spender.AddTxOut(&wire.TxOut{
		Value:    value,
		PkScript: []byte{txscript.OP_TRUE},
	})
	spender.AddTxOut(&wire.TxOut{
		Value:    0,
		PkScript: []byte{txscript.OP_RETURN},
	})

	block := emberutil.NewBlock(&wire.MsgBlock{
		Header:       wire.BlockHeader{PrevBlock: prevBlock},
		Transactions: []*wire.MsgTx{coinbase, spender},
	})
	block.SetHeight(height)
	return block
}

// TestUtxoViewpointConnectDisconnect ensures connecting a block's
// transactions spends and creates the expected utxos and that disconnecting
// them with the recorded spend journal restores the prior state.
func TestUtxoViewpointConnectDisconnect(t *testing.T) {
	// Seed the view with a mature coinbase output to spend.
	funding := wire.NewMsgTx(wire.TxVersion)
	funding.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{
			Hash:  chainhash.Hash{},
			Index: wire.MaxPrevOutIndex,
		},
		SignatureScript: []byte{0x01, 0x01},
		Sequence:        wire.MaxTxInSequenceNum,
	})
	funding.AddTxOut(&wire.TxOut{
		Value:    50 * chaincfg.SparkPerEmber,
		PkScript: []byte{txscript.OP_TRUE},
	})
	fundingTx := emberutil.NewTx(funding)
	fundingOut := wire.OutPoint{Hash: *fundingTx.Hash(), Index: 0}

	view := NewUtxoViewpoint()
	view.AddTxOuts(fundingTx, 1)

	entry := view.LookupEntry(fundingOut)
	require.NotNil(t, entry)
	require.False(t, entry.IsSpent())
	require.True(t, entry.IsCoinBase())

	// Connect a block spending the funding output.
	var prevBlock chainhash.Hash
	prevBlock[0] = 0x01
	sendValue := int64(40 * chaincfg.SparkPerEmber)
	block := spendableBlock(2, prevBlock, fundingOut, sendValue)

	var stxos []SpentTxOut
	require.NoError(t, view.ConnectTransactions(block, &stxos))

	// The spend journal records the original output.
	require.Len(t, stxos, 1)
	assert.Equal(t, 50*int64(chaincfg.SparkPerEmber), stxos[0].Amount)
	assert.Equal(t, int32(1), stxos[0].Height)
	assert.True(t, stxos[0].IsCoinBase)

	// The funding output is now spent and the new outputs exist, except for
	// the provably unspendable one.
	assert.True(t, view.LookupEntry(fundingOut).IsSpent())

	coinbaseTx := block.Transactions()[0]
	spendTx := block.Transactions()[1]
	newCoinbaseOut := view.LookupEntry(wire.OutPoint{Hash: *coinbaseTx.Hash()})
	require.NotNil(t, newCoinbaseOut)
	assert.True(t, newCoinbaseOut.IsCoinBase())
	assert.Equal(t, int32(2), newCoinbaseOut.BlockHeight())

	sendOut := view.LookupEntry(wire.OutPoint{Hash: *spendTx.Hash(), Index: 0})
	require.NotNil(t, sendOut)
	assert.Equal(t, sendValue, sendOut.Amount())
	assert.False(t, sendOut.IsCoinBase())

	opReturnOut := view.LookupEntry(wire.OutPoint{Hash: *spendTx.Hash(), Index: 1})
	assert.Nil(t, opReturnOut)

	// The view best hash tracks the connected block.
	assert.Equal(t, block.Hash(), view.BestHash())

	// Disconnecting the block restores the funding output and removes the
	// block's outputs.  No database is required since the spend journal
	// entries carry full information.
	require.NoError(t, view.DisconnectTransactions(nil, block, stxos))

	restored := view.LookupEntry(fundingOut)
	require.NotNil(t, restored)
	assert.False(t, restored.IsSpent())
	assert.Equal(t, 50*int64(chaincfg.SparkPerEmber), restored.Amount())
	assert.Equal(t, int32(1), restored.BlockHeight())
	assert.True(t, restored.IsCoinBase())

	assert.True(t, view.LookupEntry(wire.OutPoint{Hash: *coinbaseTx.Hash()}).IsSpent())
	assert.True(t, view.LookupEntry(wire.OutPoint{Hash: *spendTx.Hash(), Index: 0}).IsSpent())

	assert.Equal(t, &prevBlock, view.BestHash())
}

// TestUtxoViewpointMissingInput ensures connecting a transaction which spends
// an output the view does not contain fails.
func TestUtxoViewpointMissingInput(t *testing.T) {
	var missingHash chainhash.Hash
	missingHash[0] = 0xaa

	var prevBlock chainhash.Hash
	block := spendableBlock(2, prevBlock,
		wire.OutPoint{Hash: missingHash, Index: 0}, 1000)

	view := NewUtxoViewpoint()
	err := view.ConnectTransactions(block, nil)
	require.Error(t, err)
	assert.IsType(t, AssertError(""), err)
}

// TestUtxoViewpointDisconnectBadJournal ensures disconnecting with a spend
// journal that does not match the block is rejected.
func TestUtxoViewpointDisconnectBadJournal(t *testing.T) {
	var prevBlock, fundingHash chainhash.Hash
	fundingHash[0] = 0x01
	block := spendableBlock(2, prevBlock,
		wire.OutPoint{Hash: fundingHash, Index: 0}, 1000)

	view := NewUtxoViewpoint()
	err := view.DisconnectTransactions(nil, block, nil)
	require.Error(t, err)
	assert.IsType(t, AssertError(""), err)
}

// TestBlockUtxoStatsDelta ensures the aggregate stats delta accounts for
// created and spent coins while ignoring unspendable outputs.
func TestBlockUtxoStatsDelta(t *testing.T) {
	var prevBlock, fundingHash chainhash.Hash
	fundingHash[0] = 0x01
	fundingOut := wire.OutPoint{Hash: fundingHash, Index: 0}

	sendValue := int64(40 * chaincfg.SparkPerEmber)
	block := spendableBlock(2, prevBlock, fundingOut, sendValue)

	stxos := []SpentTxOut{{
		Amount:   50 * chaincfg.SparkPerEmber,
		PkScript: []byte{txscript.OP_TRUE},
		Height:   1,
	}}

	assert.Equal(t, 1, CountSpentOutputs(block))

	// The block creates the coinbase output and the send output while
	// spending the funding output.  The OP_RETURN output is not counted.
	coins, value := BlockUtxoStatsDelta(block, stxos)
	assert.Equal(t, int64(1), coins)
	assert.Equal(t, sendValue, value)
}

// TestUtxoEntryClone ensures cloned entries are independent of the original.
func TestUtxoEntryClone(t *testing.T) {
	entry := &UtxoEntry{
		amount:      1000,
		pkScript:    []byte{txscript.OP_TRUE},
		blockHeight: 7,
		packedFlags: tfCoinBase,
	}

	clone := entry.Clone()
	require.NotNil(t, clone)
	assert.Equal(t, entry.Amount(), clone.Amount())
	assert.Equal(t, entry.BlockHeight(), clone.BlockHeight())
	assert.Equal(t, entry.IsCoinBase(), clone.IsCoinBase())

	entry.Spend()
	assert.True(t, entry.IsSpent())
	assert.False(t, clone.IsSpent())

	// Cloning nothing yields nothing.
	var nilEntry *UtxoEntry
	assert.Nil(t, nilEntry.Clone())
}

// TestUtxoViewpointCommit ensures committed views prune spent entries and
// clear modification flags.
func TestUtxoViewpointCommit(t *testing.T) {
	funding := wire.NewMsgTx(wire.TxVersion)
	funding.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{
			Hash:  chainhash.Hash{},
			Index: wire.MaxPrevOutIndex,
		},
		SignatureScript: []byte{0x01, 0x01},
		Sequence:        wire.MaxTxInSequenceNum,
	})
	funding.AddTxOut(&wire.TxOut{Value: 1000, PkScript: []byte{txscript.OP_TRUE}})
	funding.AddTxOut(&wire.TxOut{Value: 2000, PkScript: []byte{txscript.OP_TRUE}})
	fundingTx := emberutil.NewTx(funding)

	view := NewUtxoViewpoint()
	view.AddTxOuts(fundingTx, 1)
	require.Len(t, view.Entries(), 2)

	// Spend one output and commit.
	spent := wire.OutPoint{Hash: *fundingTx.Hash(), Index: 0}
	view.LookupEntry(spent).Spend()
	view.Commit()

	// The spent entry is pruned while the live one remains with its
	// modified flag cleared.
	assert.Nil(t, view.LookupEntry(spent))
	kept := view.LookupEntry(wire.OutPoint{Hash: *fundingTx.Hash(), Index: 1})
	require.NotNil(t, kept)
	assert.False(t, kept.isModified())
}
