// Copyright (c) 2015-2016 The btcsuite developers
// Copyright (c) 2024 The Embercoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package database_test

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/embercoin/emberd/database"
	_ "gitlab.com/embercoin/emberd/database/badgerdb"
	_ "gitlab.com/embercoin/emberd/database/leveldb"
)

// checkDBError ensures the passed error is a database.Error with an error code
// that matches the passed error code.
func checkDBError(t *testing.T, testName string, gotErr error, wantErrCode database.ErrorCode) {
	t.Helper()

	dbErr, ok := gotErr.(database.Error)
	require.True(t, ok, "%s: unexpected error type - got %T, want %T",
		testName, gotErr, database.Error{})
	assert.Equal(t, wantErrCode, dbErr.ErrorCode,
		"%s: unexpected error code - got %s (%s), want %s",
		testName, dbErr.ErrorCode, dbErr.Description, wantErrCode)
}

// TestSupportedDrivers ensures both embedded backends register themselves on
// package import.
func TestSupportedDrivers(t *testing.T) {
	supported := database.SupportedDrivers()
	assert.Contains(t, supported, "leveldb")
	assert.Contains(t, supported, "badgerdb")
}

// TestAddDuplicateDriver ensures that adding a duplicate driver does not
// overwrite an existing one.
func TestAddDuplicateDriver(t *testing.T) {
	supportedDrivers := database.SupportedDrivers()
	require.NotEmpty(t, supportedDrivers, "no backends to test")
	dbType := supportedDrivers[0]

	// bogusCreateDB is a function which acts as a bogus create and open
	// driver function and intentionally returns a failure that can be
	// detected if the interface allows a duplicate driver to overwrite an
	// existing one.
	bogusCreateDB := func(args ...interface{}) (database.DB, error) {
		return nil, fmt.Errorf("duplicate driver allowed for database "+
			"type [%v]", dbType)
	}

	// Create a driver that tries to replace an existing one.  Set its
	// create and open functions to a function that causes a test failure if
	// they are invoked.
	driver := database.Driver{
		DbType: dbType,
		Create: bogusCreateDB,
		Open:   bogusCreateDB,
	}
	err := database.RegisterDriver(driver)
	checkDBError(t, "duplicate driver registration", err, database.ErrDbTypeRegistered)
}

// TestCreateOpenFail ensures that errors which occur while opening or closing
// a database are handled properly.
func TestCreateOpenFail(t *testing.T) {
	// bogusCreateDB is a function which acts as a bogus create and open
	// driver function that intentionally returns a failure which can be
	// detected.
	dbType := "createopenfail"
	openError := fmt.Errorf("failed to create or open database for "+
		"database type [%v]", dbType)
	bogusCreateDB := func(args ...interface{}) (database.DB, error) {
		return nil, openError
	}

	// Create and add driver that intentionally fails when created or opened
	// to ensure errors on database open and create are handled properly.
	driver := database.Driver{
		DbType: dbType,
		Create: bogusCreateDB,
		Open:   bogusCreateDB,
	}
	require.NoError(t, database.RegisterDriver(driver))

	// Ensure creating a database with the new type fails with the expected
	// error.
	_, err := database.Create(dbType)
	assert.Equal(t, openError, err)

	// Ensure opening a database with the new type fails with the expected
	// error.
	_, err = database.Open(dbType)
	assert.Equal(t, openError, err)
}

// TestCreateOpenUnsupported ensures that attempting to create or open an
// unsupported database type is handled properly.
func TestCreateOpenUnsupported(t *testing.T) {
	// Ensure creating a database with an unsupported type fails with the
	// expected error.
	dbType := "unsupported"
	_, err := database.Create(dbType, t.TempDir())
	checkDBError(t, "create with unsupported database type", err,
		database.ErrDbUnknownType)

	// Ensure opening a database with the an unsupported type fails with the
	// expected error.
	_, err = database.Open(dbType, t.TempDir())
	checkDBError(t, "open with unsupported database type", err,
		database.ErrDbUnknownType)
}

// TestBackendContract exercises the basic key/value and bucket contract on
// every registered real backend.
func TestBackendContract(t *testing.T) {
	for _, dbType := range []string{"leveldb", "badgerdb"} {
		dbType := dbType
		t.Run(dbType, func(t *testing.T) {
			dbPath := filepath.Join(t.TempDir(), "db")
			db, err := database.Create(dbType, dbPath)
			require.NoError(t, err)
			defer db.Close()

			assert.Equal(t, dbType, db.Type())

			// Values written in an update transaction are visible in
			// a later view transaction.
			bucketName := []byte("contract")
			err = db.Update(func(dbTx database.Tx) error {
				bucket, err := dbTx.Metadata().CreateBucket(bucketName)
				if err != nil {
					return err
				}
				return bucket.Put([]byte("k"), []byte("v"))
			})
			require.NoError(t, err)

			err = db.View(func(dbTx database.Tx) error {
				bucket := dbTx.Metadata().Bucket(bucketName)
				require.NotNil(t, bucket)
				assert.Equal(t, []byte("v"), bucket.Get([]byte("k")))
				assert.Nil(t, bucket.Get([]byte("missing")))
				return nil
			})
			require.NoError(t, err)

			// Deletes are persisted as well.
			err = db.Update(func(dbTx database.Tx) error {
				return dbTx.Metadata().Bucket(bucketName).Delete([]byte("k"))
			})
			require.NoError(t, err)

			err = db.View(func(dbTx database.Tx) error {
				assert.Nil(t, dbTx.Metadata().Bucket(bucketName).Get([]byte("k")))
				return nil
			})
			require.NoError(t, err)
		})
	}
}
