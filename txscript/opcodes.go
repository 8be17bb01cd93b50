// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2024 The Embercoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txscript

// These constants are the values of the official opcodes used on the ember
// wiki, in ember core and in most if not all other references and software
// related to handling ember scripts.  Only the opcodes needed for parsing
// and analyzing consensus scripts are named here.
const (
	OP_0           = 0x00 // 0
	OP_FALSE       = 0x00 // 0 - AKA OP_0
	OP_DATA_1      = 0x01 // 1
	OP_DATA_20     = 0x14 // 20
	OP_DATA_32     = 0x20 // 32
	OP_DATA_33     = 0x21 // 33
	OP_DATA_36     = 0x24 // 36
	OP_DATA_75     = 0x4b // 75
	OP_PUSHDATA1   = 0x4c // 76
	OP_PUSHDATA2   = 0x4d // 77
	OP_PUSHDATA4   = 0x4e // 78
	OP_1NEGATE     = 0x4f // 79
	OP_RESERVED    = 0x50 // 80
	OP_1           = 0x51 // 81 - AKA OP_TRUE
	OP_TRUE        = 0x51 // 81
	OP_2           = 0x52 // 82
	OP_3           = 0x53 // 83
	OP_4           = 0x54 // 84
	OP_5           = 0x55 // 85
	OP_6           = 0x56 // 86
	OP_7           = 0x57 // 87
	OP_8           = 0x58 // 88
	OP_9           = 0x59 // 89
	OP_10          = 0x5a // 90
	OP_11          = 0x5b // 91
	OP_12          = 0x5c // 92
	OP_13          = 0x5d // 93
	OP_14          = 0x5e // 94
	OP_15          = 0x5f // 95
	OP_16          = 0x60 // 96
	OP_VERIFY      = 0x69 // 105
	OP_RETURN      = 0x6a // 106
	OP_DUP         = 0x76 // 118
	OP_EQUAL       = 0x87 // 135
	OP_EQUALVERIFY = 0x88 // 136
	OP_RIPEMD160   = 0xa6 // 166
	OP_SHA256      = 0xa8 // 168
	OP_HASH160     = 0xa9 // 169
	OP_HASH256     = 0xaa // 170

	OP_CHECKSIG            = 0xac // 172
	OP_CHECKSIGVERIFY      = 0xad // 173
	OP_CHECKMULTISIG       = 0xae // 174
	OP_CHECKMULTISIGVERIFY = 0xaf // 175

	OP_CHECKLOCKTIMEVERIFY = 0xb1 // 177
	OP_CHECKSEQUENCEVERIFY = 0xb2 // 178
)

// MaxPubKeysPerMultiSig is the maximum number of public keys allowed in a
// multisig script.
const MaxPubKeysPerMultiSig = 20

// asSmallInt returns the passed opcode, which must be true according to
// isSmallInt(), as an integer.
func asSmallInt(op byte) int {
	if op == OP_0 {
		return 0
	}

	return int(op - (OP_1 - 1))
}

// isSmallInt returns whether or not the opcode is considered a small integer,
// which is an OP_0, or OP_1 through OP_16.
func isSmallInt(op byte) bool {
	return op == OP_0 || (op >= OP_1 && op <= OP_16)
}
