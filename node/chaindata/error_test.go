// Copyright (c) 2014-2016 The btcsuite developers
// Copyright (c) 2024 The Embercoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaindata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestErrorCodeStringer tests the stringized output for the ErrorCode type.
func TestErrorCodeStringer(t *testing.T) {
	tests := []struct {
		in   ErrorCode
		want string
	}{
		{ErrDuplicateBlock, "ErrDuplicateBlock"},
		{ErrBlockTooBig, "ErrBlockTooBig"},
		{ErrBlockVersionTooOld, "ErrBlockVersionTooOld"},
		{ErrBlockWeightTooHigh, "ErrBlockWeightTooHigh"},
		{ErrInvalidTime, "ErrInvalidTime"},
		{ErrTimeTooOld, "ErrTimeTooOld"},
		{ErrTimeTooNew, "ErrTimeTooNew"},
		{ErrDifficultyTooLow, "ErrDifficultyTooLow"},
		{ErrUnexpectedDifficulty, "ErrUnexpectedDifficulty"},
		{ErrHighHash, "ErrHighHash"},
		{ErrBadMerkleRoot, "ErrBadMerkleRoot"},
		{ErrBadCheckpoint, "ErrBadCheckpoint"},
		{ErrForkTooOld, "ErrForkTooOld"},
		{ErrCheckpointTimeTooOld, "ErrCheckpointTimeTooOld"},
		{ErrNoTransactions, "ErrNoTransactions"},
		{ErrNoTxInputs, "ErrNoTxInputs"},
		{ErrNoTxOutputs, "ErrNoTxOutputs"},
		{ErrTxTooBig, "ErrTxTooBig"},
		{ErrBadTxOutValue, "ErrBadTxOutValue"},
		{ErrDuplicateTxInputs, "ErrDuplicateTxInputs"},
		{ErrBadTxInput, "ErrBadTxInput"},
		{ErrMissingTxOut, "ErrMissingTxOut"},
		{ErrUnfinalizedTx, "ErrUnfinalizedTx"},
		{ErrDuplicateTx, "ErrDuplicateTx"},
		{ErrOverwriteTx, "ErrOverwriteTx"},
		{ErrImmatureSpend, "ErrImmatureSpend"},
		{ErrSpendTooHigh, "ErrSpendTooHigh"},
		{ErrBadFees, "ErrBadFees"},
		{ErrTooManySigOps, "ErrTooManySigOps"},
		{ErrFirstTxNotCoinbase, "ErrFirstTxNotCoinbase"},
		{ErrMultipleCoinbases, "ErrMultipleCoinbases"},
		{ErrBadCoinbaseScriptLen, "ErrBadCoinbaseScriptLen"},
		{ErrBadCoinbaseValue, "ErrBadCoinbaseValue"},
		{ErrMissingCoinbaseHeight, "ErrMissingCoinbaseHeight"},
		{ErrBadCoinbaseHeight, "ErrBadCoinbaseHeight"},
		{ErrScriptMalformed, "ErrScriptMalformed"},
		{ErrScriptValidation, "ErrScriptValidation"},
		{ErrUnexpectedWitness, "ErrUnexpectedWitness"},
		{ErrInvalidWitnessCommitment, "ErrInvalidWitnessCommitment"},
		{ErrWitnessCommitmentMismatch, "ErrWitnessCommitmentMismatch"},
		{ErrPreviousBlockUnknown, "ErrPreviousBlockUnknown"},
		{ErrInvalidAncestorBlock, "ErrInvalidAncestorBlock"},
		{ErrPrevBlockNotBest, "ErrPrevBlockNotBest"},
		{0xffff, "Unknown ErrorCode (65535)"},
	}

	// Detect additional error codes that don't have the stringer added.
	require.Equal(t, len(tests)-1, int(numErrorCodes),
		"It appears an error code was added without adding an "+
			"associated stringer test")

	for i, test := range tests {
		assert.Equal(t, test.want, test.in.String(), "stringer #%d", i)
	}
}

// TestRejectReasons ensures every error code maps to a non-default stable
// reject reason.
func TestRejectReasons(t *testing.T) {
	for code := ErrorCode(0); code < numErrorCodes; code++ {
		reason := code.RejectReason()
		assert.NotEmpty(t, reason, "no reject reason for %v", code)
		assert.NotEqual(t, "rejected", reason,
			"default reject reason for %v", code)
	}

	// Unknown codes fall back to the generic reason.
	assert.Equal(t, "rejected", ErrorCode(0xffff).RejectReason())
}

// TestRuleError tests the error output and helpers for the RuleError type.
func TestRuleError(t *testing.T) {
	err := NewRuleError(ErrDuplicateBlock, "duplicate block")
	assert.Equal(t, "duplicate block", err.Error())
	assert.Equal(t, "duplicate", err.RejectReason())

	ruleErr, ok := ExtractRuleError(err)
	require.True(t, ok)
	assert.Equal(t, ErrDuplicateBlock, ruleErr.ErrorCode)

	assert.True(t, IsRuleErrorCode(err, ErrDuplicateBlock))
	assert.False(t, IsRuleErrorCode(err, ErrHighHash))
	assert.False(t, IsRuleErrorCode(AssertError("boom"), ErrDuplicateBlock))
}

// TestAssertError ensures assertion errors format as expected.
func TestAssertError(t *testing.T) {
	err := AssertError("really bad")
	assert.Equal(t, "assertion failed: really bad", err.Error())
}

// TestDeploymentError ensures deployment errors format as expected.
func TestDeploymentError(t *testing.T) {
	err := DeploymentError(42)
	assert.Equal(t, "deployment ID 42 does not exist", err.Error())
}
