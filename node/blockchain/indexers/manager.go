// Copyright (c) 2016 The btcsuite developers
// Copyright (c) 2024 The Embercoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package indexers

import (
	"bytes"
	"fmt"

	"gitlab.com/embercoin/emberd/database"
	"gitlab.com/embercoin/emberd/emberutil"
	"gitlab.com/embercoin/emberd/node/blockchain"
	"gitlab.com/embercoin/emberd/node/chaindata"
	"gitlab.com/embercoin/emberd/types/chainhash"
)

// indexTipsBucketName is the name of the db bucket used to house the current
// tip of each index.
var indexTipsBucketName = []byte("idxtips")

// Indexer provides a generic interface for an indexer that is managed by an
// index manager and connected and disconnected along with the main chain.
type Indexer interface {
	// Key returns the key of the index as a byte slice.
	Key() []byte

	// Name returns the human-readable name of the index.
	Name() string

	// Create is invoked when the indexer manager determines the index needs
	// to be created for the first time.
	Create(dbTx database.Tx) error

	// Init is invoked when the index manager is first initializing the
	// index.  This differs from the Create method in that it is called on
	// every load, including the case the index was just created.
	Init() error

	// ConnectBlock is invoked when a new block has been connected to the
	// main chain.  The set of outputs spent within the block is also passed
	// in so indexers can access the previous output scripts input spent if
	// required.
	ConnectBlock(dbTx database.Tx, block *emberutil.Block, stxos []chaindata.SpentTxOut) error

	// DisconnectBlock is invoked when a block has been disconnected from
	// the main chain.
	DisconnectBlock(dbTx database.Tx, block *emberutil.Block, stxos []chaindata.SpentTxOut) error
}

// dbPutIndexerTip uses an existing database transaction to update or add the
// current tip for the given index to the provided values.
func dbPutIndexerTip(dbTx database.Tx, idxKey []byte, hash *chainhash.Hash, height int32) error {
	serialized := make([]byte, chainhash.HashSize+4)
	copy(serialized, hash[:])
	byteOrder.PutUint32(serialized[chainhash.HashSize:], uint32(height))

	indexesBucket := dbTx.Metadata().Bucket(indexTipsBucketName)
	return indexesBucket.Put(idxKey, serialized)
}

// dbFetchIndexerTip uses an existing database transaction to retrieve the
// hash and height of the current tip for the provided index.
func dbFetchIndexerTip(dbTx database.Tx, idxKey []byte) (*chainhash.Hash, int32, error) {
	indexesBucket := dbTx.Metadata().Bucket(indexTipsBucketName)
	serialized := indexesBucket.Get(idxKey)
	if len(serialized) < chainhash.HashSize+4 {
		return nil, 0, database.Error{
			ErrorCode: database.ErrCorruption,
			Description: fmt.Sprintf("unexpected end of data for index %q tip",
				string(idxKey)),
		}
	}

	var hash chainhash.Hash
	copy(hash[:], serialized[:chainhash.HashSize])
	height := int32(byteOrder.Uint32(serialized[chainhash.HashSize:]))
	return &hash, height, nil
}

// dbIndexConnectBlock adds all of the index entries associated with the
// given block using the provided indexer and updates the tip of the indexer
// accordingly.  An error will be returned if the current tip for the indexer
// is not the previous block for the passed block.
func dbIndexConnectBlock(dbTx database.Tx, indexer Indexer, block *emberutil.Block, stxos []chaindata.SpentTxOut) error {
	// Assert that the block being connected properly connects to the
	// current tip of the index.
	idxKey := indexer.Key()
	curTipHash, _, err := dbFetchIndexerTip(dbTx, idxKey)
	if err != nil {
		return err
	}
	if !curTipHash.IsEqual(&block.MsgBlock().Header.PrevBlock) {
		return chaindata.AssertError(fmt.Sprintf("dbIndexConnectBlock "+
			"must be called with a block that extends the current index "+
			"tip (%s, tip %s, block %s)", indexer.Name(),
			curTipHash, block.Hash()))
	}

	// Notify the indexer with the connected block so it can index it.
	if err := indexer.ConnectBlock(dbTx, block, stxos); err != nil {
		return err
	}

	// Update the current index tip.
	return dbPutIndexerTip(dbTx, idxKey, block.Hash(), block.Height())
}

// dbIndexDisconnectBlock removes all of the index entries associated with the
// given block using the provided indexer and updates the tip of the indexer
// accordingly.  An error will be returned if the current tip for the indexer
// is not the passed block.
func dbIndexDisconnectBlock(dbTx database.Tx, indexer Indexer, block *emberutil.Block, stxos []chaindata.SpentTxOut) error {
	// Assert that the block being disconnected is the current tip of the
	// index.
	idxKey := indexer.Key()
	curTipHash, _, err := dbFetchIndexerTip(dbTx, idxKey)
	if err != nil {
		return err
	}
	if !curTipHash.IsEqual(block.Hash()) {
		return chaindata.AssertError(fmt.Sprintf("dbIndexDisconnectBlock "+
			"must be called with the block at the current index tip "+
			"(%s, tip %s, block %s)", indexer.Name(),
			curTipHash, block.Hash()))
	}

	// Notify the indexer with the disconnected block so it can remove all
	// of the appropriate entries.
	if err := indexer.DisconnectBlock(dbTx, block, stxos); err != nil {
		return err
	}

	// Update the current index tip to the previous block.
	prevHash := &block.MsgBlock().Header.PrevBlock
	return dbPutIndexerTip(dbTx, idxKey, prevHash, block.Height()-1)
}

// Manager defines an index manager that manages multiple optional indexes and
// implements the blockchain.IndexManager interface so it can be seamlessly
// plugged into normal chain processing.
type Manager struct {
	db             database.DB
	enabledIndexes []Indexer
}

// Ensure the Manager type implements the blockchain.IndexManager interface.
var _ blockchain.IndexManager = (*Manager)(nil)

// NewManager returns a new index manager with the provided indexes enabled.
//
// The manager returned satisfies the blockchain.IndexManager interface and
// thus cleanly plugs into the normal blockchain processing path.
func NewManager(db database.DB, enabledIndexes []Indexer) *Manager {
	return &Manager{
		db:             db,
		enabledIndexes: enabledIndexes,
	}
}

// maybeCreateIndexes determines if each of the enabled indexes have already
// been created and creates them if not.
func (m *Manager) maybeCreateIndexes(dbTx database.Tx) error {
	indexesBucket := dbTx.Metadata().Bucket(indexTipsBucketName)
	for _, indexer := range m.enabledIndexes {
		// Nothing to do if the index tip already exists.
		idxKey := indexer.Key()
		if indexesBucket.Get(idxKey) != nil {
			continue
		}

		// The tip for the index does not exist, so create it and
		// invoke the create callback for the index so it can perform
		// any one-time initialization it requires.
		if err := indexer.Create(dbTx); err != nil {
			return err
		}

		// Set the tip for the index to values which represent an
		// uninitialized index.
		err := dbPutIndexerTip(dbTx, idxKey, &chainhash.Hash{}, -1)
		if err != nil {
			return err
		}
	}

	return nil
}

// Init initializes the enabled indexes.  This is called during chain
// initialization and primarily consists of catching up all indexes to the
// current best chain tip.  This is necessary since each index can be disabled
// and re-enabled at any time and attempting to catch-up indexes at the same
// time new blocks are being downloaded would lead to an overall longer time to
// catch up due to the I/O contention.
//
// This is part of the blockchain.IndexManager interface.
func (m *Manager) Init(chain *blockchain.BlockChain, interrupt <-chan struct{}) error {
	// Nothing to do when no indexes are enabled.
	if len(m.enabledIndexes) == 0 {
		return nil
	}

	if interruptRequested(interrupt) {
		return errInterruptRequested
	}

	// Create the initial state for the indexes as needed.
	err := m.db.Update(func(dbTx database.Tx) error {
		_, err := dbTx.Metadata().CreateBucketIfNotExists(indexTipsBucketName)
		if err != nil {
			return err
		}

		return m.maybeCreateIndexes(dbTx)
	})
	if err != nil {
		return err
	}

	// Initialize each of the enabled indexes.
	for _, indexer := range m.enabledIndexes {
		if err := indexer.Init(); err != nil {
			return err
		}
	}

	// Rollback indexes to the main chain if their tip is an orphaned fork.
	// This is fairly unlikely, but it can happen if the chain is
	// reorganized while the index is disabled.  This has to be done in
	// reverse order because later indexes can depend on earlier ones.
	bestSnapshot := chain.BestSnapshot()
	for i := len(m.enabledIndexes); i > 0; i-- {
		indexer := m.enabledIndexes[i-1]

		// Fetch the current tip for the index.
		var height int32
		var hash *chainhash.Hash
		err := m.db.View(func(dbTx database.Tx) error {
			idxKey := indexer.Key()
			hash, height, err = dbFetchIndexerTip(dbTx, idxKey)
			return err
		})
		if err != nil {
			return err
		}

		// Nothing to do if the index does not have any entries yet.
		if height == -1 {
			continue
		}

		// Loop until the tip is a block that exists in the main chain.
		initialHeight := height
		for !chain.MainChainHasBlock(hash) {
			// Get the block, unless we've already reached the
			// genesis block in which case the tip entry is corrupt.
			if height == 0 {
				return chaindata.AssertError(fmt.Sprintf(
					"%s tip claims the genesis block is not on the main chain",
					indexer.Name()))
			}

			var block *emberutil.Block
			err := m.db.View(func(dbTx database.Tx) error {
				block, err = chaindata.RepoTx(dbTx).FetchBlockByHash(hash)
				return err
			})
			if err != nil {
				return err
			}
			block.SetHeight(height)

			// The spend journal entry for a block that was
			// reorganized away no longer exists, so the outputs it
			// spent cannot be recovered here.  None of the indexes
			// shipped with the node require them on disconnect.
			err = m.db.Update(func(dbTx database.Tx) error {
				return dbIndexDisconnectBlock(dbTx, indexer, block, nil)
			})
			if err != nil {
				return err
			}

			hash = &block.MsgBlock().Header.PrevBlock
			height--

			if interruptRequested(interrupt) {
				return errInterruptRequested
			}
		}

		if initialHeight != height {
			log.Info().Msgf("Removed %d orphaned blocks from %s (heights %d to %d)",
				initialHeight-height, indexer.Name(), height+1, initialHeight)
		}
	}

	// Fetch the current tip heights for each index along with tracking the
	// lowest one so the catch-up code only needs to start at the earliest
	// block and is able to skip connecting the block for the indexes that
	// don't need it.
	lowestHeight := bestSnapshot.Height
	indexerHeights := make([]int32, len(m.enabledIndexes))
	err = m.db.View(func(dbTx database.Tx) error {
		for i, indexer := range m.enabledIndexes {
			idxKey := indexer.Key()
			hash, height, err := dbFetchIndexerTip(dbTx, idxKey)
			if err != nil {
				return err
			}

			log.Debug().Msgf("Current %s tip (height %d, hash %v)",
				indexer.Name(), height, hash)
			indexerHeights[i] = height
			if height < lowestHeight {
				lowestHeight = height
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Nothing to index if all of the indexes are caught up.
	if lowestHeight == bestSnapshot.Height {
		return nil
	}

	// Create a progress logger for the indexing process below.
	log.Info().Msgf("Catching up indexes from height %d to %d", lowestHeight,
		bestSnapshot.Height)

	// At this point, one or more indexes are behind the current best chain
	// tip and need to be caught up, so log the details and loop through
	// each block that needs to be indexed.
	for height := lowestHeight + 1; height <= bestSnapshot.Height; height++ {
		// Load the block for the height since it is required to index
		// it.
		block, err := chain.BlockByHeight(height)
		if err != nil {
			return err
		}

		if interruptRequested(interrupt) {
			return errInterruptRequested
		}

		// The spent outputs are fetched lazily since not every index
		// needs them and fetching the spend journal is not free.
		var stxos []chaindata.SpentTxOut
		var stxosLoaded bool

		// Connect the block for all indexes that need it.
		for i, indexer := range m.enabledIndexes {
			// Skip indexes that don't need to be updated with this
			// block.
			if indexerHeights[i] >= height {
				continue
			}

			if !stxosLoaded {
				stxos, err = chain.FetchSpendJournal(block)
				if err != nil {
					return err
				}
				stxosLoaded = true
			}

			err := m.db.Update(func(dbTx database.Tx) error {
				return dbIndexConnectBlock(dbTx, indexer, block, stxos)
			})
			if err != nil {
				return err
			}
			indexerHeights[i] = height
		}

		if interruptRequested(interrupt) {
			return errInterruptRequested
		}
	}

	log.Info().Msgf("Indexes caught up to height %d", bestSnapshot.Height)
	return nil
}

// ConnectBlock must be invoked when a block is extending the main chain.  It
// keeps track of the state of each index it is managing, performs some sanity
// checks, and invokes each indexer.
//
// This is part of the blockchain.IndexManager interface.
func (m *Manager) ConnectBlock(dbTx database.Tx, block *emberutil.Block, stxos []chaindata.SpentTxOut) error {
	// Call each of the currently active optional indexes with the block
	// being connected so they can update accordingly.
	for _, indexer := range m.enabledIndexes {
		err := dbIndexConnectBlock(dbTx, indexer, block, stxos)
		if err != nil {
			return err
		}
	}
	return nil
}

// DisconnectBlock must be invoked when a block is being disconnected from the
// end of the main chain.  It keeps track of the state of each index it is
// managing, performs some sanity checks, and invokes each indexer to remove
// the index entries associated with the block.
//
// This is part of the blockchain.IndexManager interface.
func (m *Manager) DisconnectBlock(dbTx database.Tx, block *emberutil.Block, stxos []chaindata.SpentTxOut) error {
	// Call each of the currently active optional indexes with the block
	// being disconnected so they can update accordingly.
	for _, indexer := range m.enabledIndexes {
		err := dbIndexDisconnectBlock(dbTx, indexer, block, stxos)
		if err != nil {
			return err
		}
	}
	return nil
}

// dropIndex drops the passed index and its tip entry from the provided
// database.  The extraBuckets are any additional top-level buckets the index
// maintains alongside its main bucket.
func dropIndex(db database.DB, idxKey []byte, idxName string, interrupt <-chan struct{}, extraBuckets ...[]byte) error {
	// Nothing to do if the index doesn't already exist.
	var needsDelete bool
	err := db.View(func(dbTx database.Tx) error {
		indexesBucket := dbTx.Metadata().Bucket(indexTipsBucketName)
		if indexesBucket != nil && indexesBucket.Get(idxKey) != nil {
			needsDelete = true
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !needsDelete {
		log.Info().Msgf("Not dropping %s because it does not exist", idxName)
		return nil
	}

	if interruptRequested(interrupt) {
		return errInterruptRequested
	}

	log.Info().Msgf("Dropping all %s entries.  This might take a while...", idxName)

	err = db.Update(func(dbTx database.Tx) error {
		meta := dbTx.Metadata()

		// Remove the index tip so a reindex starts from scratch even if
		// dropping the buckets below is interrupted.
		indexesBucket := meta.Bucket(indexTipsBucketName)
		if err := indexesBucket.Delete(idxKey); err != nil {
			return err
		}

		if err := meta.DeleteBucket(idxKey); err != nil {
			return err
		}
		for _, bucketName := range extraBuckets {
			if !bytes.Equal(bucketName, idxKey) {
				if err := meta.DeleteBucket(bucketName); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().Msgf("Dropped %s", idxName)
	return nil
}
