// Copyright (c) 2015-2016 The btcsuite developers
// Copyright (c) 2024 The Embercoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package badgerdb

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/dgraph-io/badger/v2"

	"gitlab.com/embercoin/emberd/database"
)

// Key namespace prefixes.  All keys are prefixed so bucket data, the bucket
// index, and internal bookkeeping never collide.
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

// metadataBucketID is the ID of the top-level metadata bucket.
var metadataBucketID = [4]byte{}

// makeDbErr creates a database.Error given a set of arguments.
func makeDbErr(c database.ErrorCode, desc string, err error) database.Error {
	return database.Error{ErrorCode: c, Description: desc, Err: err}
}

// convertErr converts the passed badger error into a database error with an
// equivalent error code and the passed description.  It also sets the passed
// error as the underlying error.
func convertErr(desc string, badgerErr error) database.Error {
	// Use the driver-specific error code by default.  The code below will
	// update this with the converted error if it's recognized.
	var code = database.ErrDriverSpecific

	switch badgerErr {
	case badger.ErrDBClosed:
		code = database.ErrDbNotOpen
	case badger.ErrDiscardedTxn:
		code = database.ErrTxClosed
	case badger.ErrReadOnlyTxn:
		code = database.ErrTxNotWritable
	case badger.ErrEmptyKey:
		code = database.ErrKeyRequired
	case badger.ErrConflict:
		code = database.ErrDriverSpecific
	}

	return database.Error{ErrorCode: code, Description: desc, Err: badgerErr}
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
	// The serialized data key format is:
	//   <datakeyprefix><bucketid><key>
	bKey := make([]byte, 5+len(key))
	bKey[0] = dataKeyPrefix
	copy(bKey[1:], bucketID[:])
	copy(bKey[5:], key)
	return bKey
}

// idFromSlice converts the passed 4-byte slice into a bucket ID array.
func idFromSlice(id []byte) [4]byte {
	var bucketID [4]byte
	copy(bucketID[:], id)
	return bucketID
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
	if err := b.tx.checkClosed(); err != nil {
		return nil
	}

	childID := b.tx.fetchKey(bucketIndexKey(b.id, key))
	if childID == nil {
		return nil
	}

	return &bucket{tx: b.tx, id: idFromSlice(childID)}
}

// CreateBucket creates and returns a new nested bucket with the given key.
//
// This function is part of the database.Bucket interface implementation.
func (b *bucket) CreateBucket(key []byte) (database.Bucket, error) {
	if err := b.tx.checkClosed(); err != nil {
		return nil, err
	}

	if !b.tx.writable {
		str := "create bucket requires a writable database transaction"
		return nil, makeDbErr(database.ErrTxNotWritable, str, nil)
	}

	if len(key) == 0 {
		str := "create bucket requires a key"
		return nil, makeDbErr(database.ErrBucketNameRequired, str, nil)
	}

	bidxKey := bucketIndexKey(b.id, key)
	if b.tx.fetchKey(bidxKey) != nil {
		str := "bucket already exists"
		return nil, makeDbErr(database.ErrBucketExists, str, nil)
	}

	childID, err := b.tx.nextBucketID()
	if err != nil {
		return nil, err
	}

	if err := b.tx.putKey(bidxKey, childID[:]); err != nil {
		str := fmt.Sprintf("failed to create bucket with key %q", key)
		return nil, convertErr(str, err)
	}
	return &bucket{tx: b.tx, id: childID}, nil
}

// CreateBucketIfNotExists creates and returns a new nested bucket with the
// given key if it does not already exist.
//
// This function is part of the database.Bucket interface implementation.
func (b *bucket) CreateBucketIfNotExists(key []byte) (database.Bucket, error) {
	if err := b.tx.checkClosed(); err != nil {
		return nil, err
	}

	if !b.tx.writable {
		str := "create bucket requires a writable database transaction"
		return nil, makeDbErr(database.ErrTxNotWritable, str, nil)
	}

	if bucket := b.Bucket(key); bucket != nil {
		return bucket, nil
	}
	return b.CreateBucket(key)
}

// DeleteBucket removes a nested bucket with the given key.
//
// This function is part of the database.Bucket interface implementation.
func (b *bucket) DeleteBucket(key []byte) error {
	if err := b.tx.checkClosed(); err != nil {
		return err
	}

	if !b.tx.writable {
		str := "delete bucket requires a writable database transaction"
		return makeDbErr(database.ErrTxNotWritable, str, nil)
	}

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
		dataPrefix := bucketizedKey(idFromSlice(childID), nil)
		dataKeys, err := b.tx.keysWithPrefix(dataPrefix)
		if err != nil {
			return err
		}
		for _, k := range dataKeys {
			if err := b.tx.deleteKey(k); err != nil {
				return convertErr("failed to delete bucket keys", err)
			}
		}

		// Iterate through all nested buckets.
		idxPrefix := bucketIndexKey(idFromSlice(childID), nil)
		idxKeys, err := b.tx.keysWithPrefix(idxPrefix)
		if err != nil {
			return err
		}
		for _, k := range idxKeys {
			// Push the id of the nested bucket onto the stack for
			// the next iteration.
			childIDs = append(childIDs, b.tx.fetchKey(k))

			// Remove the nested bucket from the bucket index.
			if err := b.tx.deleteKey(k); err != nil {
				return convertErr("failed to delete bucket index", err)
			}
		}
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
// This function is part of the database.Bucket interface implementation.
func (b *bucket) ForEach(fn func(k, v []byte) error) error {
	if err := b.tx.checkClosed(); err != nil {
		return err
	}

	prefix := bucketizedKey(b.id, nil)
	it := b.tx.badgerTx.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		value, err := item.ValueCopy(nil)
		if err != nil {
			return convertErr("failed to read item value", err)
		}
		if err := fn(item.Key()[5:], value); err != nil {
			return err
		}
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
// This function is part of the database.Bucket interface implementation.
func (b *bucket) Put(key, value []byte) error {
	if err := b.tx.checkClosed(); err != nil {
		return err
	}

	if !b.tx.writable {
		str := "setting a key requires a writable database transaction"
		return makeDbErr(database.ErrTxNotWritable, str, nil)
	}

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
// exist in this bucket.
//
// This function is part of the database.Bucket interface implementation.
func (b *bucket) Get(key []byte) []byte {
	if err := b.tx.checkClosed(); err != nil {
		return nil
	}

	if len(key) == 0 {
		return nil
	}

	return b.tx.fetchKey(bucketizedKey(b.id, key))
}

// Delete removes the specified key from the bucket.  Deleting a key that does
// not exist does not return an error.
//
// This function is part of the database.Bucket interface implementation.
func (b *bucket) Delete(key []byte) error {
	if err := b.tx.checkClosed(); err != nil {
		return err
	}

	if !b.tx.writable {
		str := "deleting a value requires a writable database transaction"
		return makeDbErr(database.ErrTxNotWritable, str, nil)
	}

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

// transaction represents a database transaction.  It can either be read-only
// or read-write and implements the database.Tx interface.
type transaction struct {
	managed  bool // Is the transaction managed by this driver?
	closed   bool // Is the transaction closed?
	writable bool // Is the transaction writable?
	db       *db  // DB instance the tx was created from.

	badgerTx   *badger.Txn // Underlying badger transaction.
	metaBucket *bucket     // The root metadata bucket.
}

// Enforce transaction implements the database.Tx interface.
var _ database.Tx = (*transaction)(nil)

// checkClosed returns an error if the database or transaction is closed.
func (tx *transaction) checkClosed() error {
	if tx.closed {
		return makeDbErr(database.ErrTxClosed, "database tx is closed", nil)
	}

	return nil
}

// fetchKey attempts to fetch the provided key from the underlying store and
// returns nil when it does not exist.
func (tx *transaction) fetchKey(key []byte) []byte {
	item, err := tx.badgerTx.Get(key)
	if err != nil {
		return nil
	}
	value, err := item.ValueCopy(nil)
	if err != nil {
		return nil
	}
	return value
}

// putKey adds the provided key to the underlying store.
func (tx *transaction) putKey(key, value []byte) error {
	return tx.badgerTx.Set(key, value)
}

// deleteKey removes the provided key from the underlying store.
func (tx *transaction) deleteKey(key []byte) error {
	return tx.badgerTx.Delete(key)
}

// keysWithPrefix collects all keys with the given prefix.  The keys are copied
// so they remain valid while the caller mutates the transaction.
func (tx *transaction) keysWithPrefix(prefix []byte) ([][]byte, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := tx.badgerTx.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys, nil
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

// close marks the transaction closed then discards the underlying badger
// transaction.
func (tx *transaction) close() {
	tx.closed = true
	tx.badgerTx.Discard()

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
	if tx.managed {
		tx.close()
		panic("managed transaction commit not allowed")
	}

	if err := tx.checkClosed(); err != nil {
		return err
	}

	defer tx.close()

	if !tx.writable {
		str := "Commit requires a writable database transaction"
		return makeDbErr(database.ErrTxNotWritable, str, nil)
	}

	if err := tx.badgerTx.Commit(); err != nil {
		return convertErr("failed to commit transaction", err)
	}
	return nil
}

// Rollback undoes all changes that have been made to the metadata namespace.
//
// This function is part of the database.Tx interface implementation.
func (tx *transaction) Rollback() error {
	if tx.managed {
		tx.close()
		panic("managed transaction rollback not allowed")
	}

	if err := tx.checkClosed(); err != nil {
		return err
	}

	tx.close()
	return nil
}

// db wraps a badger instance and implements the database.DB interface.
type db struct {
	writeLock sync.Mutex   // Limit to one write transaction at a time.
	closeLock sync.RWMutex // Make database close block while txns active.
	closed    bool         // Is the database closed?
	badgerDB  *badger.DB   // The underlying badger DB.
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
func (db *db) begin(writable bool) (*transaction, error) {
	// Whenever a new writable transaction is started, grab the write lock
	// to ensure only a single write transaction can be active at the same
	// time.  Badger detects conflicting writes at commit time, so holding
	// the lock for the transaction duration keeps commits conflict-free.
	if writable {
		db.writeLock.Lock()
	}

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
		badgerTx: db.badgerDB.NewTransaction(writable),
	}
	tx.metaBucket = &bucket{tx: tx, id: metadataBucketID}
	return tx, nil
}

// Begin starts a transaction which is either read-only or read-write depending
// on the specified flag.
//
// This function is part of the database.DB interface implementation.
func (db *db) Begin(writable bool) (database.Tx, error) {
	return db.begin(writable)
}

// rollbackOnPanic rolls the passed transaction back if the code in the calling
// function panics.  This is needed since the mutex on a transaction must be
// released and a panic in called code would prevent that from happening.
func rollbackOnPanic(tx *transaction) {
	if err := recover(); err != nil {
		tx.managed = false
		_ = tx.Rollback()
		panic(err)
	}
}

// View invokes the passed function in the context of a managed read-only
// transaction.
//
// This function is part of the database.DB interface implementation.
func (db *db) View(fn func(database.Tx) error) error {
	tx, err := db.begin(false)
	if err != nil {
		return err
	}

	defer rollbackOnPanic(tx)

	tx.managed = true
	err = fn(tx)
	tx.managed = false
	if err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Rollback()
}

// Update invokes the passed function in the context of a managed read-write
// transaction.
//
// This function is part of the database.DB interface implementation.
func (db *db) Update(fn func(database.Tx) error) error {
	tx, err := db.begin(true)
	if err != nil {
		return err
	}

	defer rollbackOnPanic(tx)

	tx.managed = true
	err = fn(tx)
	tx.managed = false
	if err != nil {
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
	db.closeLock.Lock()
	defer db.closeLock.Unlock()

	if db.closed {
		return makeDbErr(database.ErrDbNotOpen, "database is not open", nil)
	}
	db.closed = true

	if err := db.badgerDB.Close(); err != nil {
		return convertErr("failed to close underlying badger database", err)
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
func openDB(dbPath string, create bool) (database.DB, error) {
	dbExists := fileExists(dbPath)
	if !create && !dbExists {
		str := fmt.Sprintf("database %q does not exist", dbPath)
		return nil, makeDbErr(database.ErrDbDoesNotExist, str, nil)
	}
	if create && dbExists {
		str := fmt.Sprintf("database %q already exists", dbPath)
		return nil, makeDbErr(database.ErrDbExists, str, nil)
	}

	if !dbExists {
		// The error can be ignored here since the call to badger.Open
		// will fail if the directory couldn't be created.
		_ = os.MkdirAll(dbPath, 0700)
	}

	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil

	badgerDB, err := badger.Open(opts)
	if err != nil {
		return nil, convertErr(err.Error(), err)
	}

	log.Info().Str("path", dbPath).Msg("database opened")
	return &db{badgerDB: badgerDB}, nil
}
