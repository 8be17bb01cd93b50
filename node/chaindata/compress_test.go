// Copyright (c) 2015-2016 The btcsuite developers
// Copyright (c) 2024 The Embercoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaindata

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hexToBytes converts the passed hex string into bytes and will panic if there
// is an error.  This is only provided for the hard-coded constants so errors
// in the source code can be detected. It will only (and must only) be called
// with hard-coded values.
func hexToBytes(s string) []byte {
	b := make([]byte, len(s)/2)
	for i := 0; i < len(s); i += 2 {
		var v byte
		for j := 0; j < 2; j++ {
			v <<= 4
			c := s[i+j]
			switch {
			case c >= '0' && c <= '9':
				v |= c - '0'
			case c >= 'a' && c <= 'f':
				v |= c - 'a' + 10
			default:
				panic("invalid hex in source file: " + s)
			}
		}
		b[i/2] = v
	}
	return b
}

// TestVLQ ensures variable length quantities serialize and deserialize to the
// documented values at the size boundaries.
func TestVLQ(t *testing.T) {
	tests := []struct {
		val        uint64
		serialized []byte
	}{
		{0, hexToBytes("00")},
		{1, hexToBytes("01")},
		{127, hexToBytes("7f")},
		{128, hexToBytes("8000")},
		{129, hexToBytes("8001")},
		{255, hexToBytes("807f")},
		{256, hexToBytes("8100")},
		{16511, hexToBytes("ff7f")},
		{16512, hexToBytes("808000")},
		{65535, hexToBytes("82fe7f")},
		{1 << 32, hexToBytes("8efefefe7f")},
	}

	for _, test := range tests {
		// Ensure the reported size agrees with the actual serialization.
		gotSize := serializeSizeVLQ(test.val)
		require.Equal(t, len(test.serialized), gotSize, "val %d", test.val)

		gotBytes := make([]byte, gotSize)
		gotBytesWritten := putVLQ(gotBytes, test.val)
		assert.True(t, bytes.Equal(gotBytes, test.serialized),
			"val %d: got %x, want %x", test.val, gotBytes, test.serialized)
		assert.Equal(t, len(test.serialized), gotBytesWritten, "val %d", test.val)

		gotVal, gotBytesRead := deserializeVLQ(test.serialized)
		assert.Equal(t, test.val, gotVal)
		assert.Equal(t, len(test.serialized), gotBytesRead, "val %d", test.val)
	}
}

// TestScriptCompression ensures the domain specific script compression and
// decompression works as expected for the special forms and for generic
// scripts.
func TestScriptCompression(t *testing.T) {
	tests := []struct {
		name         string
		uncompressed []byte
		compressed   []byte
	}{
		{
			name:         "pay-to-pubkey-hash",
			uncompressed: hexToBytes("76a9141018853670f9f3b0582c5b9ee8ce93764ac32b9388ac"),
			compressed:   hexToBytes("001018853670f9f3b0582c5b9ee8ce93764ac32b93"),
		},
		{
			name:         "pay-to-script-hash",
			uncompressed: hexToBytes("a914da1745e9b549bd0bfa1a569971c77eba30cd5a4b87"),
			compressed:   hexToBytes("01da1745e9b549bd0bfa1a569971c77eba30cd5a4b"),
		},
		{
			name:         "null data",
			uncompressed: hexToBytes("6a200102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20"),
			compressed:   hexToBytes("286a200102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20"),
		},
		{
			name:         "requires 2 size bytes - data push 200 bytes",
			uncompressed: append(hexToBytes("4cc8"), make([]byte, 200)...),
			compressed:   append(hexToBytes("80d04cc8"), make([]byte, 200)...),
		},
	}

	for _, test := range tests {
		// Ensure the reported size agrees with the actual serialization.
		gotSize := compressedScriptSize(test.uncompressed)
		require.Equal(t, len(test.compressed), gotSize, "%s", test.name)

		gotCompressed := make([]byte, gotSize)
		gotBytesWritten := putCompressedScript(gotCompressed, test.uncompressed)
		assert.True(t, bytes.Equal(gotCompressed, test.compressed),
			"%s: got %x, want %x", test.name, gotCompressed, test.compressed)
		assert.Equal(t, len(test.compressed), gotBytesWritten, "%s", test.name)

		gotDecompressed := decompressScript(test.compressed)
		assert.True(t, bytes.Equal(gotDecompressed, test.uncompressed),
			"%s: got %x, want %x", test.name, gotDecompressed, test.uncompressed)
	}
}

// TestAmountCompression ensures the domain specific transaction output amount
// compression round trips for typical values.
func TestAmountCompression(t *testing.T) {
	amounts := []uint64{
		0,
		1,
		546,
		100000,     // 0.001 coin
		1000000,    // 0.01 coin
		100000000,  // 1 coin
		5000000000, // 50 coin
		20999999999999999,
	}

	for _, amount := range amounts {
		compressed := compressTxOutAmount(amount)
		got := decompressTxOutAmount(compressed)
		assert.Equal(t, amount, got, "amount %d", amount)
	}
}

// TestCompressedTxOut ensures compressed transaction outputs round trip.
func TestCompressedTxOut(t *testing.T) {
	amount := uint64(5000000000)
	pkScript := hexToBytes("76a9141018853670f9f3b0582c5b9ee8ce93764ac32b9388ac")

	target := make([]byte, compressedTxOutSize(amount, pkScript))
	written := putCompressedTxOut(target, amount, pkScript)
	require.Equal(t, len(target), written)

	gotAmount, gotScript, read, err := decodeCompressedTxOut(target)
	require.NoError(t, err)
	assert.Equal(t, amount, gotAmount)
	assert.True(t, bytes.Equal(pkScript, gotScript))
	assert.Equal(t, len(target), read)

	// Decoding nothing fails.
	_, _, _, err = decodeCompressedTxOut(nil)
	require.Error(t, err)
}
