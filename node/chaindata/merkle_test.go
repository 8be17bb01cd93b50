// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2024 The Embercoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaindata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/embercoin/emberd/emberutil"
	"gitlab.com/embercoin/emberd/types/wire"
)

// fakeTx returns a unique transaction carrying the passed value so merkle
// tests can build blocks with distinct transaction hashes.
func fakeTx(value int64) *emberutil.Tx {
	msgTx := wire.NewMsgTx(wire.TxVersion)
	msgTx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Index: wire.MaxPrevOutIndex},
		SignatureScript:  []byte{0x01, 0x01},
		Sequence:         wire.MaxTxInSequenceNum,
	})
	msgTx.AddTxOut(&wire.TxOut{Value: value, PkScript: []byte{0x51}})
	return emberutil.NewTx(msgTx)
}

// TestMerkleRootSingleTx ensures the merkle root of a single transaction is
// the transaction hash itself.
func TestMerkleRootSingleTx(t *testing.T) {
	tx := fakeTx(1)
	root := CalcMerkleRoot([]*emberutil.Tx{tx}, false)
	assert.Equal(t, *tx.Hash(), root)
}

// TestMerkleRootTwoTxns ensures a two transaction tree hashes the pair of
// leaves together.
func TestMerkleRootTwoTxns(t *testing.T) {
	tx1 := fakeTx(1)
	tx2 := fakeTx(2)

	want := HashMerkleBranches(tx1.Hash(), tx2.Hash())
	root := CalcMerkleRoot([]*emberutil.Tx{tx1, tx2}, false)
	assert.Equal(t, *want, root)
}

// TestMerkleRootOddTxns ensures an odd number of leaves duplicates the final
// leaf as required by the tree construction.
func TestMerkleRootOddTxns(t *testing.T) {
	tx1 := fakeTx(1)
	tx2 := fakeTx(2)
	tx3 := fakeTx(3)

	left := HashMerkleBranches(tx1.Hash(), tx2.Hash())
	right := HashMerkleBranches(tx3.Hash(), tx3.Hash())
	want := HashMerkleBranches(left, right)

	root := CalcMerkleRoot([]*emberutil.Tx{tx1, tx2, tx3}, false)
	assert.Equal(t, *want, root)
}

// TestBuildMerkleTreeStore ensures the full tree construction exposes the
// root as its final entry and agrees with CalcMerkleRoot.
func TestBuildMerkleTreeStore(t *testing.T) {
	txns := []*emberutil.Tx{fakeTx(1), fakeTx(2), fakeTx(3), fakeTx(4)}

	merkles := BuildMerkleTreeStore(txns, false)
	require.NotEmpty(t, merkles)

	root := merkles[len(merkles)-1]
	require.NotNil(t, root)
	assert.Equal(t, CalcMerkleRoot(txns, false), *root)
}
