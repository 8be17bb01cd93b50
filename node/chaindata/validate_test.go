// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2024 The Embercoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaindata

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/embercoin/emberd/emberutil"
	"gitlab.com/embercoin/emberd/txscript"
	"gitlab.com/embercoin/emberd/types/chaincfg"
	"gitlab.com/embercoin/emberd/types/chainhash"
	"gitlab.com/embercoin/emberd/types/wire"
)

// newCoinbaseTx returns a minimal coinbase transaction carrying the passed
// signature script.
func newCoinbaseTx(sigScript []byte) *emberutil.Tx {
	msgTx := wire.NewMsgTx(wire.TxVersion)
	msgTx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{
			Hash:  chainhash.Hash{},
			Index: wire.MaxPrevOutIndex,
		},
		SignatureScript: sigScript,
		Sequence:        wire.MaxTxInSequenceNum,
	})
	msgTx.AddTxOut(&wire.TxOut{
		Value:    50 * chaincfg.SparkPerEmber,
		PkScript: []byte{txscript.OP_TRUE},
	})
	return emberutil.NewTx(msgTx)
}

// newSpendingTx returns a minimal transaction spending the passed outpoint.
func newSpendingTx(prevOut wire.OutPoint, value int64) *emberutil.Tx {
	msgTx := wire.NewMsgTx(wire.TxVersion)
	msgTx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: prevOut,
		SignatureScript:  nil,
		Sequence:         wire.MaxTxInSequenceNum,
	})
	msgTx.AddTxOut(&wire.TxOut{
		Value:    value,
		PkScript: []byte{txscript.OP_TRUE},
	})
	return emberutil.NewTx(msgTx)
}

// requireRuleError verifies the passed error is a rule error carrying the
// provided error code.
func requireRuleError(t *testing.T, err error, code ErrorCode) {
	t.Helper()

	ruleErr, ok := ExtractRuleError(err)
	require.True(t, ok, "error %v is not a rule error", err)
	assert.Equal(t, code, ruleErr.ErrorCode)
}

// TestCalcBlockSubsidy ensures the block subsidy halves at every reduction
// interval.
func TestCalcBlockSubsidy(t *testing.T) {
	params := &chaincfg.MainNetParams
	interval := params.SubsidyReductionInterval

	baseline := int64(50 * chaincfg.SparkPerEmber)
	assert.Equal(t, baseline, CalcBlockSubsidy(0, params))
	assert.Equal(t, baseline, CalcBlockSubsidy(1, params))
	assert.Equal(t, baseline, CalcBlockSubsidy(interval-1, params))
	assert.Equal(t, baseline/2, CalcBlockSubsidy(interval, params))
	assert.Equal(t, baseline/4, CalcBlockSubsidy(interval*2, params))

	// After enough halvings the subsidy hits zero.
	assert.Zero(t, CalcBlockSubsidy(interval*64, params))

	// A zero reduction interval disables halving.
	noHalving := *params
	noHalving.SubsidyReductionInterval = 0
	assert.Equal(t, baseline, CalcBlockSubsidy(interval*64, &noHalving))
}

// TestIsCoinBase ensures coinbase detection keys off the single null previous
// outpoint.
func TestIsCoinBase(t *testing.T) {
	coinbase := newCoinbaseTx([]byte{0x01, 0x01})
	assert.True(t, IsCoinBase(coinbase))
	assert.True(t, IsCoinBaseTx(coinbase.MsgTx()))

	var prevHash chainhash.Hash
	prevHash[0] = 0x01
	spend := newSpendingTx(wire.OutPoint{Hash: prevHash, Index: 0}, 1000)
	assert.False(t, IsCoinBase(spend))
	assert.False(t, IsCoinBaseTx(spend.MsgTx()))
}

// TestExtractCoinbaseHeight ensures the serialized block height is extracted
// from coinbase signature scripts in all supported encodings.
func TestExtractCoinbaseHeight(t *testing.T) {
	tests := []struct {
		name       string
		sigScript  []byte
		wantHeight int32
		wantErr    bool
	}{
		{name: "zero via opcode", sigScript: []byte{txscript.OP_0}, wantHeight: 0},
		{name: "small int opcode", sigScript: []byte{txscript.OP_5}, wantHeight: 5},
		{name: "single byte", sigScript: []byte{0x01, 0x2a}, wantHeight: 42},
		{
			name:       "two bytes little endian",
			sigScript:  []byte{0x02, 0xe8, 0x03},
			wantHeight: 1000,
		},
		{
			name:       "three bytes with trailing data",
			sigScript:  []byte{0x03, 0x40, 0x42, 0x0f, 0xde, 0xad},
			wantHeight: 1000000,
		},
		{name: "empty script", sigScript: nil, wantErr: true},
		{name: "truncated height", sigScript: []byte{0x05, 0x01}, wantErr: true},
	}

	for _, test := range tests {
		coinbase := newCoinbaseTx(test.sigScript)
		height, err := ExtractCoinbaseHeight(coinbase)
		if test.wantErr {
			require.Error(t, err, "%s", test.name)
			requireRuleError(t, err, ErrMissingCoinbaseHeight)
			continue
		}
		require.NoError(t, err, "%s", test.name)
		assert.Equal(t, test.wantHeight, height, "%s", test.name)
	}
}

// TestCheckSerializedHeight ensures height mismatches are rejected with the
// appropriate error code.
func TestCheckSerializedHeight(t *testing.T) {
	coinbase := newCoinbaseTx([]byte{0x02, 0xe8, 0x03})

	require.NoError(t, CheckSerializedHeight(coinbase, 1000))

	err := CheckSerializedHeight(coinbase, 1001)
	require.Error(t, err)
	requireRuleError(t, err, ErrBadCoinbaseHeight)
}

// TestCheckTransactionSanity ensures the context free transaction checks
// reject the documented malformed shapes.
func TestCheckTransactionSanity(t *testing.T) {
	var prevHash chainhash.Hash
	prevHash[0] = 0x01
	prevOut := wire.OutPoint{Hash: prevHash, Index: 0}

	// A sane transaction passes.
	require.NoError(t, CheckTransactionSanity(newSpendingTx(prevOut, 1000)))

	// No inputs.
	noInputs := wire.NewMsgTx(wire.TxVersion)
	noInputs.AddTxOut(&wire.TxOut{Value: 1, PkScript: []byte{txscript.OP_TRUE}})
	err := CheckTransactionSanity(emberutil.NewTx(noInputs))
	requireRuleError(t, err, ErrNoTxInputs)

	// No outputs.
	noOutputs := wire.NewMsgTx(wire.TxVersion)
	noOutputs.AddTxIn(&wire.TxIn{PreviousOutPoint: prevOut})
	err = CheckTransactionSanity(emberutil.NewTx(noOutputs))
	requireRuleError(t, err, ErrNoTxOutputs)

	// Negative output value.
	negative := newSpendingTx(prevOut, -1)
	err = CheckTransactionSanity(negative)
	requireRuleError(t, err, ErrBadTxOutValue)

	// Single output value over the maximum.
	tooHigh := newSpendingTx(prevOut, chaincfg.MaxCoinAmount+1)
	err = CheckTransactionSanity(tooHigh)
	requireRuleError(t, err, ErrBadTxOutValue)

	// Total of all outputs over the maximum.
	overTotal := newSpendingTx(prevOut, chaincfg.MaxCoinAmount)
	overTotal.MsgTx().AddTxOut(&wire.TxOut{
		Value:    1,
		PkScript: []byte{txscript.OP_TRUE},
	})
	err = CheckTransactionSanity(emberutil.NewTx(overTotal.MsgTx()))
	requireRuleError(t, err, ErrBadTxOutValue)

	// Duplicate inputs.
	duplicate := newSpendingTx(prevOut, 1000)
	duplicate.MsgTx().AddTxIn(&wire.TxIn{PreviousOutPoint: prevOut})
	err = CheckTransactionSanity(emberutil.NewTx(duplicate.MsgTx()))
	requireRuleError(t, err, ErrDuplicateTxInputs)

	// Coinbase signature script out of range.
	shortCoinbase := newCoinbaseTx([]byte{0x01})
	err = CheckTransactionSanity(shortCoinbase)
	requireRuleError(t, err, ErrBadCoinbaseScriptLen)

	longCoinbase := newCoinbaseTx(make([]byte, MaxCoinbaseScriptLen+1))
	err = CheckTransactionSanity(longCoinbase)
	requireRuleError(t, err, ErrBadCoinbaseScriptLen)

	// Null previous outpoint on a non coinbase transaction.
	nullPrev := newSpendingTx(wire.OutPoint{
		Hash:  chainhash.Hash{},
		Index: wire.MaxPrevOutIndex,
	}, 1000)
	nullPrev.MsgTx().AddTxIn(&wire.TxIn{PreviousOutPoint: prevOut})
	err = CheckTransactionSanity(emberutil.NewTx(nullPrev.MsgTx()))
	requireRuleError(t, err, ErrBadTxInput)
}

// TestCheckProofOfWorkRange ensures the target difficulty range checks reject
// out of range bits.
func TestCheckProofOfWorkRange(t *testing.T) {
	powParams := chaincfg.SimNetParams.PowParams

	// A zero target is rejected.
	header := wire.BlockHeader{Bits: 0}
	err := checkProofOfWork(header, powParams, BFNoPoWCheck)
	requireRuleError(t, err, ErrUnexpectedDifficulty)

	// A target above the proof of work limit is rejected.
	header.Bits = 0x21010000
	err = checkProofOfWork(header, powParams, BFNoPoWCheck)
	requireRuleError(t, err, ErrUnexpectedDifficulty)

	// The limit itself is accepted when the hash check is skipped.
	header.Bits = powParams.PowLimitBits
	require.NoError(t, checkProofOfWork(header, powParams, BFNoPoWCheck))
}

// TestSequenceLockActive ensures sequence locks gate transactions until both
// the time and height constraints are satisfied.
func TestSequenceLockActive(t *testing.T) {
	seqLock := func(h int32, s int64) *SequenceLock {
		return &SequenceLock{
			Seconds:     s,
			BlockHeight: h,
		}
	}

	tests := []struct {
		seqLock     *SequenceLock
		blockHeight int32
		mtp         time.Time
		want        bool
	}{
		// Both seconds and height satisfied.
		{seqLock(1000, 9), 1001, time.Unix(10, 0), true},
		// Seconds lock still active.
		{seqLock(1000, 11), 1001, time.Unix(10, 0), false},
		// Height lock still active.
		{seqLock(1001, 9), 1001, time.Unix(10, 0), false},
		// Disabled locks are always satisfied.
		{seqLock(-1, -1), 1, time.Unix(0, 0), true},
	}

	for i, test := range tests {
		got := SequenceLockActive(test.seqLock, test.blockHeight, test.mtp)
		assert.Equal(t, test.want, got, "case #%d", i)
	}
}

// TestIsFinalizedTransaction ensures lock time handling for both height and
// timestamp based lock times.
func TestIsFinalizedTransaction(t *testing.T) {
	var prevHash chainhash.Hash
	prevHash[0] = 0x02
	prevOut := wire.OutPoint{Hash: prevHash, Index: 0}

	blockHeight := int32(300000)
	blockTime := time.Unix(1714060800, 0)

	// Zero lock time is always final.
	tx := newSpendingTx(prevOut, 1000)
	assert.True(t, IsFinalizedTransaction(tx, blockHeight, blockTime))

	// Height based lock time in the past is final.
	tx = newSpendingTx(prevOut, 1000)
	tx.MsgTx().LockTime = uint32(blockHeight - 1)
	assert.True(t, IsFinalizedTransaction(tx, blockHeight, blockTime))

	// Height based lock time at the block height is not final unless all
	// sequences are maxed.
	tx = newSpendingTx(prevOut, 1000)
	tx.MsgTx().LockTime = uint32(blockHeight)
	assert.True(t, IsFinalizedTransaction(tx, blockHeight, blockTime),
		"maxed sequence must finalize the transaction")

	tx.MsgTx().TxIn[0].Sequence = 0
	assert.False(t, IsFinalizedTransaction(tx, blockHeight, blockTime))

	// Timestamp based lock time in the future is not final.
	tx = newSpendingTx(prevOut, 1000)
	tx.MsgTx().LockTime = uint32(blockTime.Unix() + 100)
	tx.MsgTx().TxIn[0].Sequence = 0
	assert.False(t, IsFinalizedTransaction(tx, blockHeight, blockTime))

	// Timestamp based lock time in the past is final.
	tx.MsgTx().LockTime = uint32(blockTime.Unix() - 100)
	assert.True(t, IsFinalizedTransaction(tx, blockHeight, blockTime))

	// Maxed out sequence numbers finalize regardless of lock time.
	tx = newSpendingTx(prevOut, 1000)
	tx.MsgTx().LockTime = math.MaxUint32
	assert.True(t, IsFinalizedTransaction(tx, blockHeight, blockTime))
}
