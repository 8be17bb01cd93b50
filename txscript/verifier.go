// Copyright (c) 2024 The Embercoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txscript

import (
	"gitlab.com/embercoin/emberd/types/wire"
)

// ScriptFlags is a bitmask defining additional operations or tests that will
// be done when executing a script pair.
type ScriptFlags uint32

const (
	// ScriptBip16 defines whether the bip16 threshold has passed and thus
	// pay-to-script hash transactions will be fully validated.
	ScriptBip16 ScriptFlags = 1 << iota

	// ScriptStrictMultiSig defines whether to verify the stack item used
	// by CHECKMULTISIG is zero length.
	ScriptStrictMultiSig

	// ScriptVerifyCheckLockTimeVerify defines whether to verify that a
	// transaction output is spendable based on the locktime.  This is
	// BIP0065.
	ScriptVerifyCheckLockTimeVerify

	// ScriptVerifyCheckSequenceVerify defines whether to allow execution
	// pathways of a script to be restricted based on the age of the output
	// being spent.  This is BIP0112.
	ScriptVerifyCheckSequenceVerify

	// ScriptVerifyDERSignatures defines that signatures are required to
	// comply with the DER format.  This is BIP0066.
	ScriptVerifyDERSignatures

	// ScriptVerifyNullDummy defines whether to verify the stack item used
	// by CHECKMULTISIG is zero length.
	ScriptVerifyNullDummy

	// ScriptVerifyWitness defines whether or not to verify a transaction
	// output using a witness program template.
	ScriptVerifyWitness
)

// Verifier abstracts full script execution.  The chain acceptance logic treats
// script interpretation as a black box behind this interface so alternate
// engines, including stubbed ones for simulation networks, can be plugged in.
//
// Implementations report a spend that fails script execution by returning a
// non-nil error.
type Verifier interface {
	// VerifyScript executes the scripts of the input at inputIdx of tx
	// against the referenced output script and amount under the provided
	// flags.
	VerifyScript(tx *wire.MsgTx, inputIdx int, pkScript []byte,
		amount int64, flags ScriptFlags) error
}

// NopVerifier is a Verifier that accepts every spend without executing any
// scripts.  It is used on simulation networks and in tests where the scripts
// carried by blocks are not real.
type NopVerifier struct{}

// VerifyScript accepts every spend.
//
// This function is part of the Verifier interface implementation.
func (NopVerifier) VerifyScript(_ *wire.MsgTx, _ int, _ []byte, _ int64,
	_ ScriptFlags) error {

	return nil
}
