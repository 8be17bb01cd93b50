// Copyright (c) 2015-2016 The btcsuite developers
// Copyright (c) 2024 The Embercoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package leveldb

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/btcsuite/goleveldb/leveldb"
	ldberrors "github.com/btcsuite/goleveldb/leveldb/errors"
	"github.com/btcsuite/goleveldb/leveldb/filter"
	"github.com/btcsuite/goleveldb/leveldb/iterator"
	"github.com/btcsuite/goleveldb/leveldb/opt"
	"github.com/btcsuite/goleveldb/leveldb/storage"
	"github.com/btcsuite/goleveldb/leveldb/util"

	"gitlab.com/embercoin/emberd/database"
)

// Key namespace prefixes.  All data keys are prefixed so bucket data, the
// bucket index, and internal bookkeeping never collide.
const (
	// dataKeyPrefix prefixes all keys that belong to bucket key/value
	// pairs.  The full key is the prefix, the 4-byte bucket ID, and the
	// user key.
	dataKeyPrefix = 'd'

	// bucketIndexPrefix prefixes all keys in the bucket index.  The full
	// key is the prefix, the 4-byte parent bucket ID, and the child bucket
	// name.  The value is the 4-byte ID assigned to the child bucket.
	bucketIndexPrefix = 'i'
)

// nextBucketIDKey tracks the ID to assign to the next created bucket.
var nextBucketIDKey = []byte("nextbucketid")

// metadataBucketID is the ID of the top-level metadata bucket.  It is the
// value 0 encoded as an unsigned big-endian uint32.
var metadataBucketID = [4]byte{}

// convertErr converts the passed leveldb error into a database error with an
// equivalent error code and the passed description.  It also sets the passed
// error as the underlying error.
func convertErr(desc string, ldbErr error) database.Error {
	// Use the driver-specific error code by default.  The code below will
	// update this with the converted error if it's recognized.
	var code = database.ErrDriverSpecific

	switch {
	// Database corruption errors.
	case ldberrors.IsCorrupted(ldbErr):
		code = database.ErrCorruption

	// Database open/create errors.
	case ldbErr == leveldb.ErrClosed:
		code = database.ErrDbNotOpen

	// Transaction errors.
	case ldbErr == leveldb.ErrSnapshotReleased:
		code = database.ErrTxClosed
	case ldbErr == leveldb.ErrIterReleased:
		code = database.ErrTxClosed
	}

	return database.Error{ErrorCode: code, Description: desc, Err: ldbErr}
}

// copySlice returns a copy of the passed slice.  This is mostly used to copy
// leveldb iterator values which are only valid until the iterator advances.
func copySlice(slice []byte) []byte {
	ret := make([]byte, len(slice))
	copy(ret, slice)
	return ret
}

// bucketIndexKey returns the actual key to use for storing and retrieving a
// child bucket in the bucket index.
func bucketIndexKey(parentID [4]byte, key []byte) []byte {
	// The serialized bucket index key format is:
	//   <bucketindexprefix><parentbucketid><bucketname>
	indexKey := make([]byte, 5+len(key))
	indexKey[0] = bucketIndexPrefix
	copy(indexKey[1:], parentID[:])
	copy(indexKey[5:], key)
	return indexKey
}

// bucketizedKey returns the actual key to use for storing and retrieving a key
// for the provided bucket ID.
func bucketizedKey(bucketID [4]byte, key []byte) []byte {
	// The serialized block index key format is:
	//   <datakeyprefix><bucketid><key>
	bKey := make([]byte, 5+len(key))
	bKey[0] = dataKeyPrefix
	copy(bKey[1:], bucketID[:])
	copy(bKey[5:], key)
	return bKey
}

// bucket is an internal type used to represent a collection of key/value pairs
// and implements the database.Bucket interface.
type bucket struct {
	tx *transaction
	id [4]byte
}

// Enforce bucket implements the database.Bucket interface.
var _ database.Bucket = (*bucket)(nil)

// Bucket retrieves a nested bucket with the given key.  Returns nil if the
// bucket does not exist.
//
// This function is part of the database.Bucket interface implementation.
func (b *bucket) Bucket(key []byte) database.Bucket {
	// Ensure transaction state is valid.
	if err := b.tx.checkClosed(); err != nil {
		return nil
	}

	childID := b.tx.fetchKey(bucketIndexKey(b.id, key))
	if childID == nil {
		return nil
	}

	childBucket := &bucket{tx: b.tx}
	copy(childBucket.id[:], childID)
	return childBucket
}

// CreateBucket creates and returns a new nested bucket with the given key.
//
// Returns the following errors as required by the interface contract:
//   - ErrBucketExists if the bucket already exists
//   - ErrBucketNameRequired if the key is empty
//   - ErrTxNotWritable if attempted against a read-only transaction
//   - ErrTxClosed if the transaction has already been closed
//
// This function is part of the database.Bucket interface implementation.
func (b *bucket) CreateBucket(key []byte) (database.Bucket, error) {
	// Ensure transaction state is valid.
	if err := b.tx.checkClosed(); err != nil {
		return nil, err
	}

	// Ensure the transaction is writable.
	if !b.tx.writable {
		str := "create bucket requires a writable database transaction"
		return nil, makeDbErr(database.ErrTxNotWritable, str, nil)
	}

	// Ensure a key was provided.
	if len(key) == 0 {
		str := "create bucket requires a key"
		return nil, makeDbErr(database.ErrBucketNameRequired, str, nil)
	}

	// Ensure bucket does not already exist.
	bidxKey := bucketIndexKey(b.id, key)
	if b.tx.fetchKey(bidxKey) != nil {
		str := "bucket already exists"
		return nil, makeDbErr(database.ErrBucketExists, str, nil)
	}

	// Find the appropriate next bucket ID to use for the new bucket.
	childID, err := b.tx.nextBucketID()
	if err != nil {
		return nil, err
	}

	// Add the new bucket to the bucket index.
	if err := b.tx.putKey(bidxKey, childID[:]); err != nil {
		str := fmt.Sprintf("failed to create bucket with key %q", key)
		return nil, convertErr(str, err)
	}
	return &bucket{tx: b.tx, id: childID}, nil
}

// CreateBucketIfNotExists creates and returns a new nested bucket with the
// given key if it does not already exist.
//
// Returns the following errors as required by the interface contract:
//   - ErrBucketNameRequired if the key is empty
//   - ErrTxNotWritable if attempted against a read-only transaction
//   - ErrTxClosed if the transaction has already been closed
//
// This function is part of the database.Bucket interface implementation.
func (b *bucket) CreateBucketIfNotExists(key []byte) (database.Bucket, error) {
	// Ensure transaction state is valid.
	if err := b.tx.checkClosed(); err != nil {
		return nil, err
	}

	// Ensure the transaction is writable.
	if !b.tx.writable {
		str := "create bucket requires a writable database transaction"
		return nil, makeDbErr(database.ErrTxNotWritable, str, nil)
	}

	// Return existing bucket if it already exists, otherwise create it.
	if bucket := b.Bucket(key); bucket != nil {
		return bucket, nil
	}
	return b.CreateBucket(key)
}

// DeleteBucket removes a nested bucket with the given key.
//
// Returns the following errors as required by the interface contract:
//   - ErrBucketNotFound if the specified bucket does not exist
//   - ErrTxNotWritable if attempted against a read-only transaction
//   - ErrTxClosed if the transaction has already been closed
//
// This function is part of the database.Bucket interface implementation.
func (b *bucket) DeleteBucket(key []byte) error {
	// Ensure transaction state is valid.
	if err := b.tx.checkClosed(); err != nil {
		return err
	}

	// Ensure the transaction is writable.
	if !b.tx.writable {
		str := "delete bucket requires a writable database transaction"
		return makeDbErr(database.ErrTxNotWritable, str, nil)
	}

	// Attempt to fetch the ID for the child bucket.  The bucket does not
	// exist if the bucket index entry does not exist.
	bidxKey := bucketIndexKey(b.id, key)
	childID := b.tx.fetchKey(bidxKey)
	if childID == nil {
		str := fmt.Sprintf("bucket %q does not exist", key)
		return makeDbErr(database.ErrBucketNotFound, str, nil)
	}

	// Remove all nested buckets and their keys.
	childIDs := [][]byte{childID}
	for len(childIDs) > 0 {
		childID := childIDs[len(childIDs)-1]
		childIDs = childIDs[:len(childIDs)-1]

		// Delete all keys in the nested bucket.
		keyCursor := b.tx.newIterator(bucketizedKey(idFromSlice(childID), nil))
		for keyCursor.Next() {
			if err := b.tx.deleteKey(copySlice(keyCursor.Key())); err != nil {
				keyCursor.Release()
				return convertErr("failed to delete bucket keys", err)
			}
		}
		keyCursor.Release()

		// Iterate through all nested buckets.
		prefix := bucketIndexKey(idFromSlice(childID), nil)
		bucketCursor := b.tx.newIterator(prefix)
		for bucketCursor.Next() {
			// Push the id of the nested bucket onto the stack for
			// the next iteration.
			childID := copySlice(bucketCursor.Value())
			childIDs = append(childIDs, childID)

			// Remove the nested bucket from the bucket index.
			if err := b.tx.deleteKey(copySlice(bucketCursor.Key())); err != nil {
				bucketCursor.Release()
				return convertErr("failed to delete bucket index", err)
			}
		}
		bucketCursor.Release()
	}

	// Remove the nested bucket from the bucket index.
	if err := b.tx.deleteKey(bidxKey); err != nil {
		str := fmt.Sprintf("failed to delete bucket %q", key)
		return convertErr(str, err)
	}
	return nil
}

// ForEach invokes the passed function with every key/value pair in the bucket.
// This does not include nested buckets or the key/value pairs within those
// nested buckets.
//
// Returns the following errors as required by the interface contract:
//   - ErrTxClosed if the transaction has already been closed
//
// NOTE: The slices passed to the function are only valid during the iteration.
// Attempting to access them after iteration results in undefined behavior.
// Additionally, the slices must NOT be modified by the caller.
//
// This function is part of the database.Bucket interface implementation.
func (b *bucket) ForEach(fn func(k, v []byte) error) error {
	// Ensure transaction state is valid.
	if err := b.tx.checkClosed(); err != nil {
		return err
	}

	it := b.tx.newIterator(bucketizedKey(b.id, nil))
	defer it.Release()
	for it.Next() {
		err := fn(it.Key()[5:], it.Value())
		if err != nil {
			return err
		}
	}
	if err := it.Error(); err != nil {
		return convertErr("iterator error", err)
	}
	return nil
}

// Writable returns whether or not the bucket is writable.
//
// This function is part of the database.Bucket interface implementation.
func (b *bucket) Writable() bool {
	return b.tx.writable
}

// Put saves the specified key/value pair to the bucket.  Keys that do not
// already exist are added and keys that already exist are overwritten.
//
// Returns the following errors as required by the interface contract:
//   - ErrKeyRequired if the key is empty
//   - ErrTxNotWritable if attempted against a read-only transaction
//   - ErrTxClosed if the transaction has already been closed
//
// This function is part of the database.Bucket interface implementation.
func (b *bucket) Put(key, value []byte) error {
	// Ensure transaction state is valid.
	if err := b.tx.checkClosed(); err != nil {
		return err
	}

	// Ensure the transaction is writable.
	if !b.tx.writable {
		str := "setting a key requires a writable database transaction"
		return makeDbErr(database.ErrTxNotWritable, str, nil)
	}

	// Ensure a key was provided.
	if len(key) == 0 {
		str := "put requires a key"
		return makeDbErr(database.ErrKeyRequired, str, nil)
	}

	if err := b.tx.putKey(bucketizedKey(b.id, key), value); err != nil {
		str := fmt.Sprintf("failed to put key %q", key)
		return convertErr(str, err)
	}
	return nil
}

// Get returns the value for the given key.  Returns nil if the key does not
// exist in this bucket.  An empty slice is returned for keys that exist but
// have no value assigned.
//
// NOTE: The value returned by this function is only valid during a
// transaction.  Attempting to access it after a transaction has ended results
// in undefined behavior.  This constraint prevents additional data copies and
// allows support for memory-mapped database implementations.
//
// This function is part of the database.Bucket interface implementation.
func (b *bucket) Get(key []byte) []byte {
	// Ensure transaction state is valid.
	if err := b.tx.checkClosed(); err != nil {
		return nil
	}

	// Nothing to return if there is no key.
	if len(key) == 0 {
		return nil
	}

	return b.tx.fetchKey(bucketizedKey(b.id, key))
}

// Delete removes the specified key from the bucket.  Deleting a key that does
// not exist does not return an error.
//
// Returns the following errors as required by the interface contract:
//   - ErrKeyRequired if the key is empty
//   - ErrTxNotWritable if attempted against a read-only transaction
//   - ErrTxClosed if the transaction has already been closed
//
// This function is part of the database.Bucket interface implementation.
func (b *bucket) Delete(key []byte) error {
	// Ensure transaction state is valid.
	if err := b.tx.checkClosed(); err != nil {
		return err
	}

	// Ensure the transaction is writable.
	if !b.tx.writable {
		str := "deleting a value requires a writable database transaction"
		return makeDbErr(database.ErrTxNotWritable, str, nil)
	}

	// Nothing to do if there is no key.
	if len(key) == 0 {
		str := "delete requires a key"
		return makeDbErr(database.ErrKeyRequired, str, nil)
	}

	if err := b.tx.deleteKey(bucketizedKey(b.id, key)); err != nil {
		str := fmt.Sprintf("failed to delete key %q", key)
		return convertErr(str, err)
	}
	return nil
}

// idFromSlice converts the passed 4-byte slice into a bucket ID array.
func idFromSlice(id []byte) [4]byte {
	var bucketID [4]byte
	copy(bucketID[:], id)
	return bucketID
}

// makeDbErr creates a database.Error given a set of arguments.
func makeDbErr(c database.ErrorCode, desc string, err error) database.Error {
	return database.Error{ErrorCode: c, Description: desc, Err: err}
}

// transaction represents a database transaction.  It can either be read-only
// or read-write and implements the database.Tx interface.  The transaction
// provides a root metadata bucket against which all read and writes occur.
type transaction struct {
	managed  bool // Is the transaction managed by this driver?
	closed   bool // Is the transaction closed?
	writable bool // Is the transaction writable?
	db       *db  // DB instance the tx was created from.

	snapshot   *leveldb.Snapshot    // Underlying snapshot for read-only txns.
	ldbTx      *leveldb.Transaction // Underlying transaction for writable txns.
	metaBucket *bucket              // The root metadata bucket.
}

// Enforce transaction implements the database.Tx interface.
var _ database.Tx = (*transaction)(nil)

// checkClosed returns an error if the database or transaction is closed.
func (tx *transaction) checkClosed() error {
	// The transaction is no longer valid if it has been closed.
	if tx.closed {
		return makeDbErr(database.ErrTxClosed, "database tx is closed", nil)
	}

	return nil
}

// fetchKey attempts to fetch the provided key from the underlying store and
// returns nil when it does not exist.
func (tx *transaction) fetchKey(key []byte) []byte {
	var value []byte
	var err error
	if tx.writable {
		value, err = tx.ldbTx.Get(key, nil)
	} else {
		value, err = tx.snapshot.Get(key, nil)
	}
	if err != nil {
		return nil
	}
	return value
}

// putKey adds the provided key to the underlying store.
func (tx *transaction) putKey(key, value []byte) error {
	return tx.ldbTx.Put(key, value, nil)
}

// deleteKey removes the provided key from the underlying store.
func (tx *transaction) deleteKey(key []byte) error {
	return tx.ldbTx.Delete(key, nil)
}

// newIterator returns a new iterator over the key space that starts with the
// provided prefix.
func (tx *transaction) newIterator(prefix []byte) iterator.Iterator {
	slice := util.BytesPrefix(prefix)
	if tx.writable {
		return tx.ldbTx.NewIterator(slice, nil)
	}
	return tx.snapshot.NewIterator(slice, nil)
}

// nextBucketID returns the next bucket ID to use for creating a new bucket and
// updates the internal counter accordingly.
func (tx *transaction) nextBucketID() ([4]byte, error) {
	var next uint32 = 1
	if curVal := tx.fetchKey(nextBucketIDKey); curVal != nil {
		next = binary.BigEndian.Uint32(curVal)
	}

	var serialized [4]byte
	binary.BigEndian.PutUint32(serialized[:], next+1)
	if err := tx.putKey(nextBucketIDKey, serialized[:]); err != nil {
		return [4]byte{}, convertErr("failed to update bucket id", err)
	}

	var nextID [4]byte
	binary.BigEndian.PutUint32(nextID[:], next)
	return nextID, nil
}

// Metadata returns the top-most bucket for all metadata storage.
//
// This function is part of the database.Tx interface implementation.
func (tx *transaction) Metadata() database.Bucket {
	return tx.metaBucket
}

// close marks the transaction closed then releases any pending data and the
// underlying snapshot or transaction.
func (tx *transaction) close() {
	tx.closed = true

	if tx.writable {
		tx.ldbTx.Discard()
	} else {
		tx.snapshot.Release()
	}

	// Release the writer lock for writable transactions to unblock any
	// other write transaction which are possibly waiting.
	if tx.writable {
		tx.db.writeLock.Unlock()
	}

	tx.db.closeLock.RUnlock()
}

// Commit commits all changes that have been made to the metadata namespace.
//
// This function is part of the database.Tx interface implementation.
func (tx *transaction) Commit() error {
	// Prevent commits on managed transactions.
	if tx.managed {
		tx.close()
		panic("managed transaction commit not allowed")
	}

	// Ensure transaction state is valid.
	if err := tx.checkClosed(); err != nil {
		return err
	}

	// Regardless of whether the commit succeeds, the transaction is closed
	// on return.
	defer tx.close()

	// Ensure the transaction is writable.
	if !tx.writable {
		str := "Commit requires a writable database transaction"
		return makeDbErr(database.ErrTxNotWritable, str, nil)
	}

	if err := tx.ldbTx.Commit(); err != nil {
		return convertErr("failed to commit transaction", err)
	}
	return nil
}

// Rollback undoes all changes that have been made to the metadata namespace.
//
// This function is part of the database.Tx interface implementation.
func (tx *transaction) Rollback() error {
	// Prevent rollbacks on managed transactions.
	if tx.managed {
		tx.close()
		panic("managed transaction rollback not allowed")
	}

	// Ensure transaction state is valid.
	if err := tx.checkClosed(); err != nil {
		return err
	}

	tx.close()
	return nil
}

// db represents a collection of namespaces which are persisted and implements
// the database.DB interface.  All database access is performed through
// transactions which are obtained through the specific Namespace.
type db struct {
	writeLock sync.Mutex   // Limit to one write transaction at a time.
	closeLock sync.RWMutex // Make database close block while txns active.
	closed    bool         // Is the database closed?
	ldb       *leveldb.DB  // The underlying leveldb DB for metadata.
}

// Enforce db implements the database.DB interface.
var _ database.DB = (*db)(nil)

// Type returns the database driver type the current database instance was
// created with.
//
// This function is part of the database.DB interface implementation.
func (db *db) Type() string {
	return dbType
}

// begin is the implementation function for the Begin database method.  See its
// documentation for more details.
//
// This function is only separate because it returns the internal transaction
// which is used by the managed transaction code while the database method
// returns the interface.
func (db *db) begin(writable bool) (*transaction, error) {
	// Whenever a new writable transaction is started, grab the write lock
	// to ensure only a single write transaction can be active at the same
	// time.  This lock will not be released until the transaction is
	// closed (via Rollback or Commit).
	if writable {
		db.writeLock.Lock()
	}

	// Whenever a new transaction is started, grab a read lock against the
	// database to ensure Close will wait for the transaction to finish.
	// This lock will not be released until the transaction is closed (via
	// Rollback or Commit).
	db.closeLock.RLock()
	if db.closed {
		db.closeLock.RUnlock()
		if writable {
			db.writeLock.Unlock()
		}
		return nil, makeDbErr(database.ErrDbNotOpen, "database is not open",
			nil)
	}

	tx := &transaction{
		writable: writable,
		db:       db,
	}
	tx.metaBucket = &bucket{tx: tx, id: metadataBucketID}

	var err error
	if writable {
		tx.ldbTx, err = db.ldb.OpenTransaction()
	} else {
		tx.snapshot, err = db.ldb.GetSnapshot()
	}
	if err != nil {
		db.closeLock.RUnlock()
		if writable {
			db.writeLock.Unlock()
		}
		return nil, convertErr("failed to open transaction", err)
	}

	return tx, nil
}

// Begin starts a transaction which is either read-only or read-write depending
// on the specified flag.  Multiple read-only transactions can be started
// simultaneously while only a single read-write transaction can be started at
// a time.  The call will block when starting a read-write transaction when one
// is already open.
//
// NOTE: The transaction must be closed by calling Rollback or Commit on it
// when it is no longer needed.  Failure to do so will result in unclaimed
// memory.
//
// This function is part of the database.DB interface implementation.
func (db *db) Begin(writable bool) (database.Tx, error) {
	return db.begin(writable)
}

// rollbackOnPanic rolls the passed transaction back if the code in the calling
// function panics.  This is needed since the mutex on a transaction must be
// released and a panic in called code would prevent that from happening.
//
// NOTE: This can only be handled manually for managed transactions since they
// control the life-cycle of the transaction.  As the documentation on Begin
// calls out, callers opting to use manual transactions will have to ensure the
// transaction is rolled back on panic if it desires that functionality as well
// or the database will fail to close since the read-lock will never be
// released.
func rollbackOnPanic(tx *transaction) {
	if err := recover(); err != nil {
		tx.managed = false
		_ = tx.Rollback()
		panic(err)
	}
}

// View invokes the passed function in the context of a managed read-only
// transaction with the root bucket for the namespace.  Any errors returned
// from the user-supplied function are returned from this function.
//
// This function is part of the database.DB interface implementation.
func (db *db) View(fn func(database.Tx) error) error {
	// Start a read-only transaction.
	tx, err := db.begin(false)
	if err != nil {
		return err
	}

	// Since the user-provided function might panic, ensure the transaction
	// releases all mutexes and resources.  There is no guarantee the caller
	// won't use recover and keep going.  Thus, the database must still be
	// in a usable state on panics due to caller issues.
	defer rollbackOnPanic(tx)

	tx.managed = true
	err = fn(tx)
	tx.managed = false
	if err != nil {
		// The error is ignored here because nothing was written yet
		// and regardless of a rollback failure, the tx is closed now
		// anyways.
		_ = tx.Rollback()
		return err
	}

	return tx.Rollback()
}

// Update invokes the passed function in the context of a managed read-write
// transaction with the root bucket for the namespace.  Any errors returned
// from the user-supplied function will cause the transaction to be rolled back
// and are returned from this function.  Otherwise, the transaction is
// committed when the user-supplied function returns a nil error.
//
// This function is part of the database.DB interface implementation.
func (db *db) Update(fn func(database.Tx) error) error {
	// Start a read-write transaction.
	tx, err := db.begin(true)
	if err != nil {
		return err
	}

	// Since the user-provided function might panic, ensure the transaction
	// releases all mutexes and resources.  There is no guarantee the caller
	// won't use recover and keep going.  Thus, the database must still be
	// in a usable state on panics due to caller issues.
	defer rollbackOnPanic(tx)

	tx.managed = true
	err = fn(tx)
	tx.managed = false
	if err != nil {
		// The error is ignored here because nothing was written yet
		// and regardless of a rollback failure, the tx is closed now
		// anyways.
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

// Close cleanly shuts down the database and syncs all data.  It will block
// until all database transactions have been finalized (rolled back or
// committed).
//
// This function is part of the database.DB interface implementation.
func (db *db) Close() error {
	// Since all transactions have a read lock on this mutex, this will
	// cause Close to wait for all readers to complete.
	db.closeLock.Lock()
	defer db.closeLock.Unlock()

	if db.closed {
		return makeDbErr(database.ErrDbNotOpen, "database is not open", nil)
	}
	db.closed = true

	// Close the database.  Any error is saved and is returned at the end
	// after the remaining cleanup since the database will be marked closed
	// even if this fails given there is no good way for the caller to
	// recover from a failure here anyways.
	closeErr := db.ldb.Close()
	if closeErr != nil {
		return convertErr("failed to close underlying leveldb database",
			closeErr)
	}
	return nil
}

// fileExists reports whether the named file or directory exists.
func fileExists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}

// openDB opens the database at the provided path.  database.ErrDbDoesNotExist
// is returned if the database doesn't exist and the create flag is not set.
//
// An empty path opens an ephemeral in-memory database which is useful for
// tests.
func openDB(dbPath string, create bool) (database.DB, error) {
	opts := opt.Options{
		ErrorIfExist: create,
		Strict:       opt.DefaultStrict,
		Compression:  opt.NoCompression,
		Filter:       filter.NewBloomFilter(10),
	}

	// An empty database path is a request for an ephemeral in-memory
	// database backed by memory storage.
	if dbPath == "" {
		ldb, err := leveldb.Open(storage.NewMemStorage(), &opts)
		if err != nil {
			return nil, convertErr("failed to open memory database", err)
		}
		log.Info().Msg("opened ephemeral in-memory database")
		return &db{ldb: ldb}, nil
	}

	// Error if the database doesn't exist and the create flag is not set.
	dbExists := fileExists(dbPath)
	if !create && !dbExists {
		str := fmt.Sprintf("database %q does not exist", dbPath)
		return nil, makeDbErr(database.ErrDbDoesNotExist, str, nil)
	}
	if create && dbExists {
		str := fmt.Sprintf("database %q already exists", dbPath)
		return nil, makeDbErr(database.ErrDbExists, str, nil)
	}

	// Ensure the full path to the database exists.
	if !dbExists {
		// The error can be ignored here since the call to
		// leveldb.OpenFile will fail if the directory couldn't be
		// created.
		_ = os.MkdirAll(dbPath, 0700)
	}

	ldb, err := leveldb.OpenFile(dbPath, &opts)
	if err != nil {
		return nil, convertErr(err.Error(), err)
	}

	log.Info().Str("path", dbPath).Msg("database opened")
	return &db{ldb: ldb}, nil
}
