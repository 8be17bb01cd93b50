package chaindata

import (
	"math/big"

	"gitlab.com/embercoin/emberd/database"
	"gitlab.com/embercoin/emberd/emberutil"
	"gitlab.com/embercoin/emberd/node/blocknodes"
	"gitlab.com/embercoin/emberd/types/chainhash"
	"gitlab.com/embercoin/emberd/types/wire"
)

// Repo abstracts chain state storage operations bound to a single database
// transaction.
type Repo interface {
	PutVersion(key []byte, version uint32) error
	FetchOrCreateVersion(key []byte, defaultVersion uint32) (uint32, error)

	FetchBlocksBySerialID(serialID int64, onlyOrphan bool) ([]SerialIDBlockMeta, error)
	FetchBlockHashBySerialID(serialID int64) (*chainhash.Hash, int64, error)
	FetchBlockSerialID(hash *chainhash.Hash) (int64, int64, error)
	PutBlockHashToSerialID(hash chainhash.Hash, serialID int64) error
	PutHashToSerialIDWithPrev(hash chainhash.Hash, serialID, prevSerialID int64) error

	StoreBlock(block *emberutil.Block) error
	HasBlock(hash *chainhash.Hash) bool
	FetchBlockHeader(hash *chainhash.Hash) (wire.BlockHeader, error)
	FetchBlockByHash(hash *chainhash.Hash) (*emberutil.Block, error)
	FetchBlockByNode(node *blocknodes.BlockNode) (*emberutil.Block, error)
	StoreBlockNode(node *blocknodes.BlockNode) error

	FetchSpendJournalEntry(block *emberutil.Block) ([]SpentTxOut, error)
	PutSpendJournalEntry(blockHash *chainhash.Hash, stxos []SpentTxOut) error
	RemoveSpendJournalEntry(blockHash *chainhash.Hash) error
	FetchUtxoEntry(outpoint wire.OutPoint) (*UtxoEntry, error)
	FetchUtxoEntries() (map[wire.OutPoint]*UtxoEntry, error)
	PutUtxoView(view *UtxoViewpoint) error

	PutBlockIndex(hash *chainhash.Hash, height int32) error
	RemoveBlockIndex(hash *chainhash.Hash, height int32) error
	FetchHeightByHash(hash *chainhash.Hash) (int32, error)
	FetchHashByHeight(height int32) (*chainhash.Hash, error)
	PutBestState(snapshot *BestState, workSum *big.Int) error
	FetchBestState() (BestChainState, error)
}

// repoTx implements Repo on top of an open database transaction.
type repoTx struct {
	tx database.Tx
}

// RepoTx binds a Repo implementation to the passed database transaction.
func RepoTx(tx database.Tx) Repo {
	return repoTx{tx: tx}
}

func (r repoTx) PutVersion(key []byte, version uint32) error {
	return DBPutVersion(r.tx, key, version)
}

func (r repoTx) FetchOrCreateVersion(key []byte, defaultVersion uint32) (uint32, error) {
	return DBFetchOrCreateVersion(r.tx, key, defaultVersion)
}

func (r repoTx) FetchBlocksBySerialID(serialID int64, onlyOrphan bool) ([]SerialIDBlockMeta, error) {
	return DBFetchBlocksBySerialID(r.tx, serialID, onlyOrphan)
}

func (r repoTx) FetchBlockHashBySerialID(serialID int64) (*chainhash.Hash, int64, error) {
	return DBFetchBlockHashBySerialID(r.tx, serialID)
}

func (r repoTx) FetchBlockSerialID(hash *chainhash.Hash) (int64, int64, error) {
	return DBFetchBlockSerialID(r.tx, hash)
}

func (r repoTx) PutBlockHashToSerialID(hash chainhash.Hash, serialID int64) error {
	return DBPutBlockHashToSerialID(r.tx, hash, serialID)
}

func (r repoTx) PutHashToSerialIDWithPrev(hash chainhash.Hash, serialID, prevSerialID int64) error {
	return DBPutHashToSerialIDWithPrev(r.tx, hash, serialID, prevSerialID)
}

func (r repoTx) StoreBlock(block *emberutil.Block) error {
	return DBStoreBlock(r.tx, block)
}

func (r repoTx) HasBlock(hash *chainhash.Hash) bool {
	return DBHasBlock(r.tx, hash)
}

func (r repoTx) FetchBlockHeader(hash *chainhash.Hash) (wire.BlockHeader, error) {
	return DBFetchHeaderByHash(r.tx, hash)
}

func (r repoTx) FetchBlockByHash(hash *chainhash.Hash) (*emberutil.Block, error) {
	return DBFetchBlockByHash(r.tx, hash)
}

func (r repoTx) FetchBlockByNode(node *blocknodes.BlockNode) (*emberutil.Block, error) {
	return DBFetchBlockByNode(r.tx, node)
}

func (r repoTx) StoreBlockNode(node *blocknodes.BlockNode) error {
	return DBStoreBlockNode(r.tx, node)
}

func (r repoTx) FetchSpendJournalEntry(block *emberutil.Block) ([]SpentTxOut, error) {
	return DBFetchSpendJournalEntry(r.tx, block)
}

func (r repoTx) PutSpendJournalEntry(blockHash *chainhash.Hash, stxos []SpentTxOut) error {
	return DBPutSpendJournalEntry(r.tx, blockHash, stxos)
}

func (r repoTx) RemoveSpendJournalEntry(blockHash *chainhash.Hash) error {
	return DBRemoveSpendJournalEntry(r.tx, blockHash)
}

func (r repoTx) FetchUtxoEntry(outpoint wire.OutPoint) (*UtxoEntry, error) {
	return DBFetchUtxoEntry(r.tx, outpoint)
}

func (r repoTx) FetchUtxoEntries() (map[wire.OutPoint]*UtxoEntry, error) {
	return DBFetchUtxoEntries(r.tx)
}

func (r repoTx) PutUtxoView(view *UtxoViewpoint) error {
	return DBPutUtxoView(r.tx, view)
}

func (r repoTx) PutBlockIndex(hash *chainhash.Hash, height int32) error {
	return DBPutBlockIndex(r.tx, hash, height)
}

func (r repoTx) RemoveBlockIndex(hash *chainhash.Hash, height int32) error {
	return DBRemoveBlockIndex(r.tx, hash, height)
}

func (r repoTx) FetchHeightByHash(hash *chainhash.Hash) (int32, error) {
	return DBFetchHeightByHash(r.tx, hash)
}

func (r repoTx) FetchHashByHeight(height int32) (*chainhash.Hash, error) {
	return DBFetchHashByHeight(r.tx, height)
}

func (r repoTx) PutBestState(snapshot *BestState, workSum *big.Int) error {
	return DBPutBestState(r.tx, snapshot, workSum)
}

func (r repoTx) FetchBestState() (BestChainState, error) {
	return DBFetchBestState(r.tx)
}
