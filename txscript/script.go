// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2024 The Embercoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txscript

import (
	"encoding/binary"
	"fmt"
	"time"

	"gitlab.com/embercoin/emberd/types/wire"
)

// Bip16Activation is the timestamp where BIP0016 is valid to use in the
// blockchain.  To be used to determine if BIP0016 should be called for or not.
// This timestamp corresponds to Sun Apr 1 00:00:00 UTC 2012.
var Bip16Activation = time.Unix(1333238400, 0)

const (
	// MaxScriptSize is the maximum allowed length of a raw script.
	MaxScriptSize = 10000

	// payToWitnessPubKeyHashDataSize is the size of the witness program's
	// data push for a pay-to-witness-pub-key-hash output.
	payToWitnessPubKeyHashDataSize = 20

	// payToWitnessScriptHashDataSize is the size of the witness program's
	// data push for a pay-to-witness-script-hash output.
	payToWitnessScriptHashDataSize = 32
)

// ScriptTokenizer provides a facility for easily and efficiently tokenizing
// transaction scripts without creating allocations.  It does not validate the
// script against the consensus rules beyond the script parsing itself.
//
// It must be noted that this tokenizer is not directly reusable.  Once a
// tokenizer instance has been created, it may not be used again for a new
// script.
type ScriptTokenizer struct {
	script []byte
	offset int
	op     byte
	data   []byte
	err    error
}

// Done returns true when either all opcodes have been exhausted or a parse
// failure was encountered and therefore the state has an associated error.
func (t *ScriptTokenizer) Done() bool {
	return t.err != nil || t.offset >= len(t.script)
}

// Next attempts to parse the next opcode and returns whether or not it was
// successful.  It will not be successful if invoked when already at the end of
// the script, a parse failure is encountered, or an associated error already
// exists due to a previous parse failure.
//
// In the case of a true return, the parsed opcode and data can be obtained
// with the associated tokenizer fields.
//
// In the case of a false return, the parsed opcode and data will be the last
// successfully parsed values.
func (t *ScriptTokenizer) Next() bool {
	if t.Done() {
		return false
	}

	op := t.script[t.offset]
	switch {
	// No additional data.  Note that this includes the small integer
	// opcodes as well as all of the non-push opcodes.
	case op > OP_PUSHDATA4 || op == OP_0:
		t.offset++
		t.op = op
		t.data = nil
		return true

	// Data pushes of specific lengths -- OP_DATA_[1-75].
	case op < OP_PUSHDATA1:
		script := t.script[t.offset:]

		// The length should be the opcode itself.
		length := int(op)
		if len(script) < 1+length {
			t.err = fmt.Errorf("opcode %d requires %d bytes, but "+
				"script only has %d remaining", op, length,
				len(script)-1)
			return false
		}

		t.offset += 1 + length
		t.op = op
		t.data = script[1 : 1+length]
		return true

	// Data pushes with parsed lengths -- OP_PUSHDATA{1,2,4}.
	default:
		var lengthSize int
		switch op {
		case OP_PUSHDATA1:
			lengthSize = 1
		case OP_PUSHDATA2:
			lengthSize = 2
		case OP_PUSHDATA4:
			lengthSize = 4
		}

		script := t.script[t.offset+1:]
		if len(script) < lengthSize {
			t.err = fmt.Errorf("opcode %d requires %d length "+
				"bytes, but script only has %d remaining", op,
				lengthSize, len(script))
			return false
		}

		// The length is encoded in little endian.
		var length int
		switch lengthSize {
		case 1:
			length = int(script[0])
		case 2:
			length = int(binary.LittleEndian.Uint16(script[:2]))
		case 4:
			length = int(binary.LittleEndian.Uint32(script[:4]))
		}

		script = script[lengthSize:]
		if len(script) < length {
			t.err = fmt.Errorf("opcode %d pushes %d bytes, but "+
				"script only has %d remaining", op, length,
				len(script))
			return false
		}

		t.offset += 1 + lengthSize + length
		t.op = op
		t.data = script[:length]
		return true
	}
}

// Opcode returns the current opcode associated with the tokenizer.
func (t *ScriptTokenizer) Opcode() byte {
	return t.op
}

// Data returns the data associated with the most recently successfully parsed
// opcode.
func (t *ScriptTokenizer) Data() []byte {
	return t.data
}

// Err returns any errors currently associated with the tokenizer.  This will
// only be non-nil in the case a parsing error was encountered.
func (t *ScriptTokenizer) Err() error {
	return t.err
}

// MakeScriptTokenizer returns a script tokenizer instance associated with the
// provided script.
func MakeScriptTokenizer(script []byte) ScriptTokenizer {
	return ScriptTokenizer{script: script}
}

// checkScriptParses returns an error if the provided script fails to parse.
func checkScriptParses(script []byte) error {
	tokenizer := MakeScriptTokenizer(script)
	for tokenizer.Next() {
		// Nothing to do.
	}
	return tokenizer.Err()
}

// IsPayToScriptHash returns true if the script is in the standard
// pay-to-script-hash (P2SH) format, false otherwise.
func IsPayToScriptHash(script []byte) bool {
	return len(script) == 23 &&
		script[0] == OP_HASH160 &&
		script[1] == OP_DATA_20 &&
		script[22] == OP_EQUAL
}

// IsPayToWitnessScriptHash returns true if the passed script is a
// pay-to-witness-script-hash transaction, false otherwise.
func IsPayToWitnessScriptHash(script []byte) bool {
	return len(script) == 34 &&
		script[0] == OP_0 &&
		script[1] == OP_DATA_32
}

// IsPayToWitnessPubKeyHash returns true if the passed script is a
// pay-to-witness-pubkey-hash, and false otherwise.
func IsPayToWitnessPubKeyHash(script []byte) bool {
	return len(script) == 22 &&
		script[0] == OP_0 &&
		script[1] == OP_DATA_20
}

// IsWitnessProgram returns true if the passed script is a valid witness
// program which is encoded according to the passed witness program version.
// A witness program must be a small integer (from 0-16), followed by 2-40
// bytes of pushed data.
func IsWitnessProgram(script []byte) bool {
	// The length of the script must be between 4 and 42 bytes. The
	// smallest program is the witness version, followed by a data push of
	// 2 bytes.  The largest allowed witness program has a data push of
	// 40-bytes.
	if len(script) < 4 || len(script) > 42 {
		return false
	}

	if !isSmallInt(script[0]) {
		return false
	}

	// The single data push must represent the entire remainder of the
	// script.
	if script[1] < OP_DATA_1 || script[1] > OP_DATA_75 {
		return false
	}

	return int(script[1]) == len(script)-2
}

// ExtractWitnessProgramInfo attempts to extract the witness program version,
// as well as the witness program itself from the passed script.
func ExtractWitnessProgramInfo(script []byte) (int, []byte, error) {
	// If at this point the scripts doesn't resemble a witness program,
	// then we'll exit early as there isn't a valid version or program to
	// extract.
	if !IsWitnessProgram(script) {
		return 0, nil, fmt.Errorf("script is not a witness program, " +
			"unable to extract version or witness program")
	}

	witnessVersion := asSmallInt(script[0])
	witnessProgram := script[2:]

	return witnessVersion, witnessProgram, nil
}

// IsPushOnlyScript returns whether or not the passed script only pushes data.
//
// False will be returned when the script does not parse.
func IsPushOnlyScript(script []byte) bool {
	tokenizer := MakeScriptTokenizer(script)
	for tokenizer.Next() {
		// All opcodes up to OP_16 are data push instructions.
		// NOTE: This does consider OP_RESERVED to be a data push
		// instruction, but execution of OP_RESERVED will fail anyway
		// and matches the behavior required by consensus.
		if tokenizer.Opcode() > OP_16 {
			return false
		}
	}
	return tokenizer.Err() == nil
}

// IsUnspendable returns whether the passed public key script is unspendable,
// or guaranteed to fail at execution.  This allows inputs to be pruned
// instantly when entering the UTXO set.
func IsUnspendable(pkScript []byte) bool {
	// The script is unspendable if starts with OP_RETURN or is guaranteed
	// to fail at execution due to being larger than the max allowed script
	// size.
	if len(pkScript) > MaxScriptSize {
		return true
	}
	if len(pkScript) > 0 && pkScript[0] == OP_RETURN {
		return true
	}

	// The script is unspendable if it is guaranteed to fail at execution.
	return checkScriptParses(pkScript) != nil
}

// countSigOpsV0 returns the number of signature operations in the provided
// script up to the point of the first parse failure or the entire script when
// there are no parse failures.  The precise flag attempts to accurately count
// the number of operations for a multisig operation versus using the maximum
// allowed.
func countSigOpsV0(script []byte, precise bool) int {
	const maxPubKeysPerMultiSig = MaxPubKeysPerMultiSig

	var numSigOps int
	tokenizer := MakeScriptTokenizer(script)
	prevOp := byte(OP_RESERVED)
	for tokenizer.Next() {
		switch tokenizer.Opcode() {
		case OP_CHECKSIG, OP_CHECKSIGVERIFY:
			numSigOps++

		case OP_CHECKMULTISIG, OP_CHECKMULTISIGVERIFY:
			// Note that OP_0 is treated as the max number of sigops
			// here in precise mode despite it being a valid small
			// integer in order to highly discourage multisigs with
			// zero pubkeys.
			//
			// Also, even though this is referred to as "precise"
			// counting, it's not really precise at all due to the
			// small int opcodes only covering 1 through 16 pubkeys,
			// which means this will count any more than that value
			// (e.g. 17, 18 19) as the maximum number of allowed
			// pubkeys.
			if precise && prevOp >= OP_1 && prevOp <= OP_16 {
				numSigOps += asSmallInt(prevOp)
			} else {
				numSigOps += maxPubKeysPerMultiSig
			}
		}

		prevOp = tokenizer.Opcode()
	}

	return numSigOps
}

// GetSigOpCount provides a quick count of the number of signature operations
// in a script.  A CHECKSIG operations counts for 1, and a CHECK_MULTISIG for
// 20.
//
// If the script fails to parse, then the count up to the point of failure is
// returned.
func GetSigOpCount(script []byte) int {
	return countSigOpsV0(script, false)
}

// finalOpcodeData returns the data associated with the final opcode in the
// script.  It will return nil if the script fails to parse.
func finalOpcodeData(script []byte) []byte {
	// Avoid unnecessary work.
	if len(script) == 0 {
		return nil
	}

	var data []byte
	tokenizer := MakeScriptTokenizer(script)
	for tokenizer.Next() {
		data = tokenizer.Data()
	}
	if tokenizer.Err() != nil {
		return nil
	}
	return data
}

// GetPreciseSigOpCount returns the number of signature operations in
// scriptPubKey.  If bip16 is true then scriptSig may be searched for the
// Pay-To-Script-Hash script in order to find the precise number of signature
// operations in the transaction.  If the script fails to parse, then the count
// up to the point of failure is returned.
//
// WARNING: This function always treats the passed script as version 0.  Great
// care must be taken if introducing a new script version because it is used in
// consensus which, unfortunately as of the time of this writing, does not
// check script versions before counting their signature operations which
// means nodes on existing rules will count new version scripts as if they were
// version 0.
func GetPreciseSigOpCount(scriptSig, scriptPubKey []byte, bip16 bool) int {
	// Treat non P2SH transactions as normal.  Note that signature operation
	// counting includes all operations up to the first parse failure.
	if !bip16 || !IsPayToScriptHash(scriptPubKey) {
		return countSigOpsV0(scriptPubKey, true)
	}

	// The signature script must only push data to the stack for P2SH to be
	// a valid pair, so the signature operation count is 0 when that is not
	// the case.
	if len(scriptSig) == 0 || !IsPushOnlyScript(scriptSig) {
		return 0
	}

	// The P2SH script is the last item the signature script pushes to the
	// stack.  When the script is empty, there are no signature operations.
	//
	// Notice that signature scripts that fail to fully parse count as 0
	// signature operations unlike public key and redeem scripts.
	redeemScript := finalOpcodeData(scriptSig)
	if len(redeemScript) == 0 {
		return 0
	}

	// Return the more precise sigops count for the redeem script.  Note
	// that signature operation counting includes all operations up to the
	// first parse failure.
	return countSigOpsV0(redeemScript, true)
}

// GetWitnessSigOpCount returns the number of signature operations generated by
// spending the passed pkScript with the specified witness, or sigScript.
// Unlike GetPreciseSigOpCount, this function is able to accurately count the
// number of signature operations generated by spending witness programs, and
// nested p2sh witness programs.  If the script fails to parse, then the count
// up to the point of failure is returned.
func GetWitnessSigOpCount(sigScript, pkScript []byte, witness wire.TxWitness) int {
	// If this is a regular witness program, then we can proceed directly
	// to counting its signature operations without any further processing.
	if IsWitnessProgram(pkScript) {
		return getWitnessSigOps(pkScript, witness)
	}

	// Next, we'll check the sigScript to see if this is a nested p2sh
	// witness program.  This is a case wherein the sigScript is actually a
	// datapush of a p2wsh witness program.
	if IsPayToScriptHash(pkScript) && IsPushOnlyScript(sigScript) &&
		len(sigScript) > 0 && IsWitnessProgram(sigScript[1:]) {
		return getWitnessSigOps(sigScript[1:], witness)
	}

	return 0
}

// getWitnessSigOps returns the number of signature operations generated by
// spending the passed witness program with the passed witness.  The exact
// signature counting heuristic is modified by the version of the passed
// witness program.  Additionally, if the witness program is invalid for its
// version, then 0 is returned.
func getWitnessSigOps(pkScript []byte, witness wire.TxWitness) int {
	// Attempt to extract the witness program version.
	witnessVersion, witnessProgram, err := ExtractWitnessProgramInfo(pkScript)
	if err != nil {
		return 0
	}

	switch witnessVersion {
	case 0:
		switch {
		case len(witnessProgram) == payToWitnessPubKeyHashDataSize:
			return 1
		case len(witnessProgram) == payToWitnessScriptHashDataSize &&
			len(witness) > 0:

			witnessScript := witness[len(witness)-1]
			return countSigOpsV0(witnessScript, true)
		}
	}

	return 0
}
