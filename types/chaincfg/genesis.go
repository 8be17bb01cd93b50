// Copyright (c) 2014-2016 The btcsuite developers
// Copyright (c) 2024 The Embercoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaincfg

import (
	"sync"
	"time"

	"gitlab.com/embercoin/emberd/types/chainhash"
	"gitlab.com/embercoin/emberd/types/wire"
)

// genesisCoinbaseTx is the coinbase transaction for the genesis blocks of
// all default networks.
var genesisCoinbaseTx = &wire.MsgTx{
	Version: 1,
	TxIn: []*wire.TxIn{
		{
			PreviousOutPoint: wire.OutPoint{
				Hash:  chainhash.Hash{},
				Index: 0xffffffff,
			},
			SignatureScript: []byte{
				0x04, 0xff, 0xff, 0x00, 0x1d, 0x01, 0x04, 0x3a, /* |.......:| */
				0x45, 0x6d, 0x62, 0x65, 0x72, 0x73, 0x20, 0x6f, /* |Embers o| */
				0x66, 0x20, 0x74, 0x68, 0x65, 0x20, 0x6f, 0x6c, /* |f the ol| */
				0x64, 0x20, 0x63, 0x68, 0x61, 0x69, 0x6e, 0x73, /* |d chains| */
				0x20, 0x6c, 0x69, 0x67, 0x68, 0x74, 0x20, 0x74, /* | light t| */
				0x68, 0x65, 0x20, 0x66, 0x69, 0x72, 0x65, 0x73, /* |he fires| */
				0x20, 0x6f, 0x66, 0x20, 0x74, 0x68, 0x65, 0x20, /* | of the | */
				0x6e, 0x65, 0x77, /* |new| */
			},
			Sequence: 0xffffffff,
		},
	},
	TxOut: []*wire.TxOut{
		{
			Value: 50 * SparkPerEmber,
			PkScript: []byte{
				0x41, 0x04, 0x67, 0x8a, 0xfd, 0xb0, 0xfe, 0x55, /* |A.g....U| */
				0x48, 0x27, 0x19, 0x67, 0xf1, 0xa6, 0x71, 0x30, /* |H'.g..q0| */
				0xb7, 0x10, 0x5c, 0xd6, 0xa8, 0x28, 0xe0, 0x39, /* |..\..(.9| */
				0x09, 0xa6, 0x79, 0x62, 0xe0, 0xea, 0x1f, 0x61, /* |..yb...a| */
				0xde, 0xb6, 0x49, 0xf6, 0xbc, 0x3f, 0x4c, 0xef, /* |..I..?L.| */
				0x38, 0xc4, 0xf3, 0x55, 0x04, 0xe5, 0x1e, 0xc1, /* |8..U....| */
				0x12, 0xde, 0x5c, 0x38, 0x4d, 0xf7, 0xba, 0x0b, /* |..\8M...| */
				0x8d, 0x57, 0x8a, 0x4c, 0x70, 0x2b, 0x6b, 0xf1, /* |.W.Lp+k.| */
				0x1d, 0x5f, 0xac, /* |._.| */
			},
		},
	},
	LockTime: 0,
}

// genesisBlockOpts holds the header fields that differ between the genesis
// blocks of the default networks.
type genesisBlockOpts struct {
	Version   int32
	Timestamp time.Time
	Bits      uint32
	Nonce     uint32
}

type genesisDataState struct {
	genesisBlock      *wire.MsgBlock
	genesisHash       *chainhash.Hash
	genesisMerkleRoot *chainhash.Hash
}

var (
	genesisStateLock sync.Mutex
	genesisStorage   = map[wire.EmberNet]*genesisDataState{
		wire.MainNet: {},
		wire.TestNet: {},
		wire.SimNet:  {},
	}
)

// genesisBlock returns the genesis block for the given network.  The block is
// assembled on first use and cached, so the genesis hash is always consistent
// with the serialized block.
func genesisBlock(net wire.EmberNet) *wire.MsgBlock {
	genesisStateLock.Lock()
	defer genesisStateLock.Unlock()

	state, ok := genesisStorage[net]
	if !ok {
		panic("genesis block requested for unknown network " + net.String())
	}
	if state.genesisBlock != nil {
		return state.genesisBlock
	}

	var opts genesisBlockOpts
	switch net {
	case wire.TestNet:
		opts = genesisBlockOpts{
			Version:   1,
			Timestamp: time.Unix(1714060800, 0), // Thu 25 Apr 16:00:00 UTC 2024
			Bits:      0x1d00ffff,
			Nonce:     0x18aea41a,
		}
	case wire.SimNet:
		opts = genesisBlockOpts{
			Version:   1,
			Timestamp: time.Unix(1714060800, 0), // Thu 25 Apr 16:00:00 UTC 2024
			Bits:      0x207fffff,
			Nonce:     2,
		}
	default:
		opts = genesisBlockOpts{
			Version:   1,
			Timestamp: time.Unix(1714060800, 0), // Thu 25 Apr 16:00:00 UTC 2024
			Bits:      0x1d00ffff,
			Nonce:     0x7c2bac1d,
		}
	}

	merkleRoot := genesisCoinbaseTx.TxHash()
	state.genesisMerkleRoot = &merkleRoot
	state.genesisBlock = &wire.MsgBlock{
		Header: wire.BlockHeader{
			Version:    opts.Version,
			PrevBlock:  chainhash.Hash{},
			MerkleRoot: merkleRoot,
			Timestamp:  opts.Timestamp,
			Bits:       opts.Bits,
			Nonce:      opts.Nonce,
		},
		Transactions: []*wire.MsgTx{genesisCoinbaseTx},
	}
	hash := state.genesisBlock.BlockHash()
	state.genesisHash = &hash

	return state.genesisBlock
}

// genesisHash returns the hash of the genesis block for the given network.
func genesisHash(net wire.EmberNet) *chainhash.Hash {
	genesisBlock(net)

	genesisStateLock.Lock()
	defer genesisStateLock.Unlock()
	return genesisStorage[net].genesisHash
}
