// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2024 The Embercoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"gitlab.com/embercoin/emberd/database"
	_ "gitlab.com/embercoin/emberd/database/leveldb"
	"gitlab.com/embercoin/emberd/emberutil"
	"gitlab.com/embercoin/emberd/node/blocknodes"
	"gitlab.com/embercoin/emberd/node/chaindata"
	"gitlab.com/embercoin/emberd/txscript"
	"gitlab.com/embercoin/emberd/types/chaincfg"
	"gitlab.com/embercoin/emberd/types/chainhash"
	"gitlab.com/embercoin/emberd/types/pow"
	"gitlab.com/embercoin/emberd/types/wire"
)

const (
	// testDbType is the database backend type to use for the tests.
	testDbType = "leveldb"

	// testDbRoot is the root directory used to create all test databases.
	testDbRoot = "testdbs"
)

// filesExists returns whether or not the named file or directory exists.
func fileExists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}

// isSupportedDbType returns whether or not the passed database type is
// currently supported.
func isSupportedDbType(dbType string) bool {
	supportedDrivers := database.SupportedDrivers()
	for _, driver := range supportedDrivers {
		if dbType == driver {
			return true
		}
	}

	return false
}

// chainSetup is used to create a new db and chain instance with the genesis
// block already inserted.  In addition to the new chain instance, it returns
// a teardown function the caller should invoke when done testing to clean up.
func chainSetup(dbName string, params *chaincfg.Params) (*BlockChain, func(), error) {
	if !isSupportedDbType(testDbType) {
		return nil, nil, fmt.Errorf("unsupported db type %v", testDbType)
	}

	// Create the root directory for test databases.
	if !fileExists(testDbRoot) {
		if err := os.MkdirAll(testDbRoot, 0700); err != nil {
			err := fmt.Errorf("unable to create test db root: %v", err)
			return nil, nil, err
		}
	}

	// Create a new database to store the accepted blocks into.
	dbPath := filepath.Join(testDbRoot, dbName)
	_ = os.RemoveAll(dbPath)
	db, err := database.Create(testDbType, dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating db: %v", err)
	}

	// Setup a teardown function for cleaning up.  This function is
	// returned to the caller to be invoked when it is done testing.
	teardown := func() {
		db.Close()
		os.RemoveAll(dbPath)
		os.RemoveAll(testDbRoot)
	}

	// Copy the chain params to ensure any modifications the tests do to
	// the chain parameters do not affect the global instance.
	paramsCopy := *params

	// Create the main chain instance.
	chain, err := New(&Config{
		DB:          db,
		ChainParams: &paramsCopy,
		Checkpoints: nil,
		TimeSource:  chaindata.NewMedianTime(),
	})
	if err != nil {
		teardown()
		err := fmt.Errorf("failed to create chain instance: %v", err)
		return nil, nil, err
	}
	return chain, teardown, nil
}

// newFakeChain returns a chain that is usable for synthetic tests.  It is
// important to note that this chain has no database associated with it, so
// it is not usable with all functions and the tests must take care when making
// use of it.
func newFakeChain(params *chaincfg.Params) *BlockChain {
	// Create a genesis block node and block index populated with it for
	// use when creating the fake chain below.
	header := params.GenesisBlock().Header
	node := blocknodes.NewBlockNode(&header, nil, 0)

	index := newBlockIndex(nil, params)
	index.AddNode(node)

	targetTimespan := int64(params.PowParams.TargetTimespan / time.Second)
	adjustmentFactor := params.PowParams.RetargetAdjustmentFactor
	return &BlockChain{
		chainParams:         params,
		timeSource:          chaindata.NewMedianTime(),
		scriptVerifier:      txscript.NopVerifier{},
		minRetargetTimespan: targetTimespan / adjustmentFactor,
		maxRetargetTimespan: targetTimespan * adjustmentFactor,
		blocksPerRetarget:   params.BlocksPerRetarget(),
		index:               index,
		bestChain:           newChainView(node),
		warningCaches:       newThresholdCaches(vbNumBits),
		deploymentCaches:    newThresholdCaches(chaincfg.DefinedDeployments),
	}
}

// newFakeNode creates a block node connected to the passed parent with the
// provided fields populated and fake values for the other fields.
func newFakeNode(parent *blocknodes.BlockNode, blockVersion int32, bits uint32, timestamp time.Time) *blocknodes.BlockNode {
	// Make up a header and create a block node from it.
	header := &wire.BlockHeader{
		Version:   blockVersion,
		PrevBlock: parent.GetHash(),
		Bits:      bits,
		Timestamp: timestamp,
	}
	return blocknodes.NewBlockNode(header, parent, 0)
}

// standardCoinbaseScript returns a coinbase signature script that starts with
// the serialized block height followed by an extra nonce that makes the
// coinbase transaction, and thus the block, unique.
func standardCoinbaseScript(height int32, extraNonce uint64) []byte {
	// Minimal little endian encoding of the height.
	var heightBytes [8]byte
	binary.LittleEndian.PutUint64(heightBytes[:], uint64(height))
	heightLen := 1
	for i := 7; i > 0; i-- {
		if heightBytes[i] != 0 {
			heightLen = i + 1
			break
		}
	}

	script := make([]byte, 0, heightLen+11)
	script = append(script, byte(heightLen))
	script = append(script, heightBytes[:heightLen]...)

	var nonceBytes [8]byte
	binary.LittleEndian.PutUint64(nonceBytes[:], extraNonce)
	script = append(script, 8)
	script = append(script, nonceBytes[:]...)
	return script
}

// createCoinbaseTx returns a coinbase transaction for the provided block
// height claiming the full subsidy and paying it to an anyone-can-spend
// script.
func createCoinbaseTx(params *chaincfg.Params, height int32, extraNonce uint64) *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{
			Hash:  chainhash.Hash{},
			Index: math.MaxUint32,
		},
		SignatureScript: standardCoinbaseScript(height, extraNonce),
		Sequence:        wire.MaxTxInSequenceNum,
	})
	tx.AddTxOut(&wire.TxOut{
		Value:    chaindata.CalcBlockSubsidy(height, params),
		PkScript: []byte{txscript.OP_TRUE},
	})
	return tx
}

// solveBlock attempts to find a nonce which makes the passed block header
// hash to a value less than the target difficulty.  When a successful
// solution is found true is returned and the nonce field of the passed
// header is updated with the solution.
func solveBlock(header *wire.BlockHeader) bool {
	target := pow.CompactToBig(header.Bits)
	for nonce := uint32(0); nonce < math.MaxUint32; nonce++ {
		header.Nonce = nonce
		hash := header.BlockHash()
		if pow.HashToBig(&hash).Cmp(target) <= 0 {
			return true
		}
	}
	return false
}

// mineBlock creates a solved block that extends the passed parent block.  The
// block contains a coinbase transaction paying the full subsidy along with
// any additionally provided transactions.  The extra nonce makes the coinbase
// unique so blocks built on the same parent do not collide.
func mineBlock(params *chaincfg.Params, parent *emberutil.Block, extraNonce uint64, txns ...*wire.MsgTx) (*emberutil.Block, error) {
	height := parent.Height() + 1
	blockTxns := make([]*wire.MsgTx, 0, len(txns)+1)
	blockTxns = append(blockTxns, createCoinbaseTx(params, height, extraNonce))
	blockTxns = append(blockTxns, txns...)

	utilTxns := make([]*emberutil.Tx, 0, len(blockTxns))
	for _, tx := range blockTxns {
		utilTxns = append(utilTxns, emberutil.NewTx(tx))
	}

	msgBlock := &wire.MsgBlock{
		Header: wire.BlockHeader{
			Version:    4,
			PrevBlock:  *parent.Hash(),
			MerkleRoot: chaindata.CalcMerkleRoot(utilTxns, false),
			Timestamp:  parent.MsgBlock().Header.Timestamp.Add(params.PowParams.TargetTimePerBlock),
			Bits:       params.PowParams.PowLimitBits,
		},
		Transactions: blockTxns,
	}
	if !solveBlock(&msgBlock.Header) {
		return nil, fmt.Errorf("unable to solve block at height %d", height)
	}

	block := emberutil.NewBlock(msgBlock)
	block.SetHeight(height)
	return block, nil
}

// genesisUtilBlock returns the network genesis block wrapped for use as the
// parent of mined test blocks.
func genesisUtilBlock(params *chaincfg.Params) *emberutil.Block {
	block := emberutil.NewBlock(params.GenesisBlock())
	block.SetHeight(0)
	return block
}
