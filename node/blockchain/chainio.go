// Copyright (c) 2015-2017 The btcsuite developers
// Copyright (c) 2024 The Embercoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"

	"gitlab.com/embercoin/emberd/database"
	"gitlab.com/embercoin/emberd/emberutil"
	"gitlab.com/embercoin/emberd/node/blocknodes"
	"gitlab.com/embercoin/emberd/node/chaindata"
	"gitlab.com/embercoin/emberd/types/chainhash"
)

// FetchSpendJournal attempts to retrieve the spend journal, or the set of
// outputs spent for the target block. This provides a view of all the outputs
// that will be consumed once the target block is connected to the end of the
// main chain.
//
// This function is safe for concurrent access.
func (b *BlockChain) FetchSpendJournal(targetBlock *emberutil.Block) ([]chaindata.SpentTxOut, error) {
	b.chainLock.RLock()
	defer b.chainLock.RUnlock()

	var spendEntries []chaindata.SpentTxOut
	err := b.db.View(func(dbTx database.Tx) error {
		var err error
		spendEntries, err = chaindata.RepoTx(dbTx).FetchSpendJournalEntry(targetBlock)
		return err
	})
	if err != nil {
		return nil, err
	}

	return spendEntries, nil
}

// BlockByHeight returns the block at the given height in the main chain.
//
// This function is safe for concurrent access.
func (b *BlockChain) BlockByHeight(blockHeight int32) (*emberutil.Block, error) {
	// Lookup the block height in the best chain.
	node := b.bestChain.NodeByHeight(blockHeight)
	if node == nil {
		str := fmt.Sprintf("no block at height %d exists", blockHeight)
		return nil, chaindata.ErrNotInMainChain(str)
	}

	// Load the block from the database and return it.
	var block *emberutil.Block
	err := b.db.View(func(dbTx database.Tx) error {
		var err error
		block, err = chaindata.RepoTx(dbTx).FetchBlockByNode(node)
		return err
	})
	return block, err
}

// BlockByHash returns the block from the main chain with the given hash with
// the appropriate chain height set.
//
// This function is safe for concurrent access.
func (b *BlockChain) BlockByHash(hash *chainhash.Hash) (*emberutil.Block, error) {
	// Lookup the block hash in block index and ensure it is in the best
	// chain.
	node := b.index.LookupNode(hash)
	if node == nil || !b.bestChain.Contains(node) {
		str := fmt.Sprintf("block %s is not in the main chain", hash)
		return nil, chaindata.ErrNotInMainChain(str)
	}

	// Load the block from the database and return it.
	var block *emberutil.Block
	err := b.db.View(func(dbTx database.Tx) error {
		var err error
		block, err = chaindata.RepoTx(dbTx).FetchBlockByNode(node)
		return err
	})
	return block, err
}

// createChainState initializes both the database and the chain state to the
// genesis block.  This includes creating the necessary buckets, so it must only
// be called on an uninitialized database.
func (b *BlockChain) createChainState() error {
	// Create a new node from the genesis block and set it as the best node.
	genesisBlock := emberutil.NewBlock(b.chainParams.GenesisBlock())
	genesisBlock.SetHeight(0)
	header := genesisBlock.MsgBlock().Header
	node := blocknodes.NewBlockNode(&header, nil, 0)
	node.SetStatus(blocknodes.StatusDataStored | blocknodes.StatusValid)
	b.bestChain.SetTip(node)

	// Add the new node to the index which is used for faster lookups.
	b.index.addNode(node)
	b.lastSerialID = 0

	// Initialize the state related to the best block.  Since it is the
	// genesis block, use its timestamp for the median time.  The genesis
	// coinbase is never added to the utxo set, so the aggregate utxo
	// stats start from zero to stay in step with the live set.
	numTxns := uint64(len(genesisBlock.MsgBlock().Transactions))
	blockSize := uint64(genesisBlock.MsgBlock().SerializeSize())
	blockWeight := uint64(chaindata.GetBlockWeight(genesisBlock))
	b.stateSnapshot = chaindata.NewBestState(node, blockSize, blockWeight,
		numTxns, numTxns, node.CalcPastMedianTime(), 0,
		chaindata.ChainStats{})

	// Create the initial the database chain state including creating the
	// necessary index buckets and inserting the genesis block.
	return b.db.Update(func(dbTx database.Tx) error {
		meta := dbTx.Metadata()

		bucketNames := [][]byte{
			chaindata.BlockIndexBucketName,
			chaindata.BlockBucketName,
			chaindata.HashIndexBucketName,
			chaindata.HeightIndexBucketName,
			chaindata.SpendJournalBucketName,
			chaindata.UtxoSetBucketName,
			chaindata.BlockHashToSerialID,
			chaindata.SerialIDToPrevBlock,
		}
		for _, bucketName := range bucketNames {
			if _, err := meta.CreateBucket(bucketName); err != nil {
				return err
			}
		}

		repo := chaindata.RepoTx(dbTx)

		// Store the current utxo set and spend journal versions.
		err := repo.PutVersion(chaindata.UtxoSetVersionKeyName,
			chaindata.LatestUtxoSetBucketVersion)
		if err != nil {
			return err
		}
		err = repo.PutVersion(chaindata.SpendJournalVersionKeyName,
			chaindata.LatestSpendJournalBucketVersion)
		if err != nil {
			return err
		}

		// Save the genesis block to the block index database.
		if err = repo.StoreBlockNode(node); err != nil {
			return err
		}

		// The genesis block issues serial id zero and has no previous
		// block, so the previous serial id is also zero.
		err = repo.PutHashToSerialIDWithPrev(*genesisBlock.Hash(), 0, 0)
		if err != nil {
			return err
		}

		// Add the genesis block hash to height and height to hash
		// mappings to the index.
		if err = repo.PutBlockIndex(genesisBlock.Hash(), 0); err != nil {
			return err
		}

		// Store the current best chain state into the database.
		err = repo.PutBestState(b.stateSnapshot, node.WorkSum())
		if err != nil {
			return err
		}

		// Store the genesis block into the database.
		return repo.StoreBlock(genesisBlock)
	})
}

// initChainState attempts to load and initialize the chain state from the
// database.  When the db does not yet contain any chain state, both it and the
// chain state are initialized to the genesis block.
func (b *BlockChain) initChainState() error {
	// Determine the state of the chain database.  We may need to initialize
	// everything from scratch.
	var initialized bool
	err := b.db.View(func(dbTx database.Tx) error {
		initialized = dbTx.Metadata().Get(chaindata.ChainStateKeyName) != nil
		return nil
	})
	if err != nil {
		return err
	}

	if !initialized {
		// At this point the database has not already been initialized,
		// so initialize both it and the chain state to the genesis
		// block.
		return b.createChainState()
	}

	// Attempt to load the chain state from the database.
	return b.db.View(func(dbTx database.Tx) error {
		// Fetch the stored best chain state from the database metadata.
		state, err := chaindata.DBFetchBestState(dbTx)
		if err != nil {
			return err
		}

		log.Info().Msg("Loading block index...")

		blockIndexBucket := dbTx.Metadata().Bucket(chaindata.BlockIndexBucketName)

		// Load all of the headers from the data for the known chain
		// and construct the block index accordingly.  The block index
		// entries are keyed by height plus hash, so they are iterated
		// in height order which guarantees a parent is always loaded
		// before its children.
		var lastNode *blocknodes.BlockNode
		var lastSerialID int64
		err = blockIndexBucket.ForEach(func(_, blockRow []byte) error {
			header, status, err := chaindata.DeserializeBlockRow(blockRow)
			if err != nil {
				return err
			}
			blockHash := header.BlockHash()

			// Determine the parent block node.  Since the entries
			// are iterated in order of height, if the blocks are
			// mostly linear there is a very good chance the
			// previous header processed is the parent.
			var parent *blocknodes.BlockNode
			if lastNode == nil {
				if blockHash != *b.chainParams.GenesisHash() {
					return chaindata.AssertError(fmt.Sprintf(
						"initChainState: expected first entry in block index to be genesis block, found %s",
						blockHash))
				}
			} else {
				lastHash := lastNode.GetHash()
				if header.PrevBlock == lastHash {
					parent = lastNode
				} else {
					parent = b.index.LookupNode(&header.PrevBlock)
					if parent == nil {
						return chaindata.AssertError(fmt.Sprintf(
							"initChainState: could not find parent for block %s",
							blockHash))
					}
				}
			}

			serialID, _, err := chaindata.DBFetchBlockSerialID(dbTx, &blockHash)
			if err != nil {
				return err
			}
			if serialID > lastSerialID {
				lastSerialID = serialID
			}

			// Initialize the block node for the block, connect it,
			// and add it to the block index.
			node := blocknodes.NewBlockNode(&header, parent, serialID)
			node.SetStatus(status)
			b.index.addNode(node)

			lastNode = node
			return nil
		})
		if err != nil {
			return err
		}

		b.lastSerialID = lastSerialID

		// Set the best chain view to the stored best state.
		tip := b.index.LookupNode(&state.Hash)
		if tip == nil {
			return chaindata.AssertError(fmt.Sprintf(
				"initChainState: cannot find chain tip %s in block index",
				state.Hash))
		}
		b.bestChain.SetTip(tip)

		// Load the raw block for the best block.
		block, err := chaindata.RepoTx(dbTx).FetchBlockByHash(&state.Hash)
		if err != nil {
			return err
		}

		// As a final consistency check, we'll run through all the nodes
		// which are ancestors of the current chain tip, and mark them as
		// valid if they aren't already marked as such.  This is a safe
		// assumption as all the blocks before the current tip are valid
		// by definition.
		for iterNode := tip; iterNode != nil; iterNode = iterNode.Parent() {
			if !iterNode.Status().KnownValid() {
				log.Info().Msgf(
					"Block %v (height=%v) ancestor of chain tip not marked as valid, upgrading to valid for consistency",
					iterNode.GetHash(), iterNode.Height())
				b.index.SetStatusFlags(iterNode, blocknodes.StatusValid)
			}
		}

		// Initialize the state related to the best block.
		blockSize := uint64(block.MsgBlock().SerializeSize())
		blockWeight := uint64(chaindata.GetBlockWeight(block))
		numTxns := uint64(len(block.MsgBlock().Transactions))

		b.stateSnapshot = chaindata.NewBestState(tip, blockSize, blockWeight,
			numTxns, state.TotalTxns, tip.CalcPastMedianTime(), lastSerialID,
			chaindata.ChainStats{
				TotalCoins: state.TotalCoins,
				TotalValue: state.TotalValue,
			})

		return nil
	})
}
