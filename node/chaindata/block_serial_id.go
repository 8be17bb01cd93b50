/*
 * Copyright (c) 2024 The Embercoin developers
 * Use of this source code is governed by an ISC
 * license that can be found in the LICENSE file.
 */

// Functions related to the block serial id feature.  Serial ids impose an
// absolute, monotonically increasing order over all known blocks, including
// those on side chains.
//
//  | bucket              | Key        | Value           |
//  | ------------------- | ---------- | --------------- |
//  | SerialIDToPrevBlock | serialID   | {hash; prev_id} |
//  | BlockHashToSerialID | block_hash | serialID        |

package chaindata

import (
	"encoding/binary"
	"errors"

	"gitlab.com/embercoin/emberd/database"
	"gitlab.com/embercoin/emberd/types/chainhash"
)

// SerialIDBlockMeta ties a block hash to its serial id and the serial id of
// its parent.
type SerialIDBlockMeta struct {
	SerialID     int64
	Hash         chainhash.Hash
	PrevSerialID int64
}

// DBFetchBlocksBySerialID returns metadata for all known blocks starting at
// the provided serial id.  When onlyOrphan is set, blocks whose serial id
// directly follows their parent's are skipped.
func DBFetchBlocksBySerialID(dbTx database.Tx, serialID int64, onlyOrphan bool) ([]SerialIDBlockMeta, error) {
	meta := dbTx.Metadata()
	serialIDBucket := meta.Bucket(SerialIDToPrevBlock)
	dataList := make([]SerialIDBlockMeta, 0, 256)

	for id := serialID; ; id++ {
		res := serialIDBucket.Get(i64ToBytes(id))
		if len(res) < chainhash.HashSize+8 {
			break
		}

		var hash chainhash.Hash
		copy(hash[:], res[:chainhash.HashSize])

		prevSerialID := bytesToI64(res[chainhash.HashSize:])
		if onlyOrphan && id == prevSerialID+1 {
			continue
		}

		dataList = append(dataList, SerialIDBlockMeta{
			SerialID:     id,
			Hash:         hash,
			PrevSerialID: prevSerialID,
		})
	}

	return dataList, nil
}

// DBFetchBlockHashBySerialID returns the block hash and parent serial id for
// the provided serial id.
func DBFetchBlockHashBySerialID(dbTx database.Tx, serialID int64) (*chainhash.Hash, int64, error) {
	meta := dbTx.Metadata()
	serialIDBucket := meta.Bucket(SerialIDToPrevBlock)
	res := serialIDBucket.Get(i64ToBytes(serialID))
	if len(res) < chainhash.HashSize+8 {
		return nil, 0, errors.New("chain serial id is empty or invalid")
	}

	var hash chainhash.Hash
	copy(hash[:], res[:chainhash.HashSize])

	return &hash, bytesToI64(res[chainhash.HashSize:]), nil
}

// DBFetchBlockSerialID returns the serial id of the block with the provided
// hash along with the serial id of its parent.
func DBFetchBlockSerialID(dbTx database.Tx, hash *chainhash.Hash) (int64, int64, error) {
	meta := dbTx.Metadata()
	blockSerialIDBucket := meta.Bucket(BlockHashToSerialID)
	res := blockSerialIDBucket.Get(hash[:])
	if len(res) < 8 {
		return -1, -1, errors.New("chain last serial id is empty or invalid")
	}

	id := bytesToI64(res)
	_, prevID, err := DBFetchBlockHashBySerialID(dbTx, id)
	return id, prevID, err
}

// DBPutBlockHashToSerialID stores the mapping of block hash to serial id.
func DBPutBlockHashToSerialID(dbTx database.Tx, hash chainhash.Hash, serialID int64) error {
	meta := dbTx.Metadata()
	blockSerialIDBucket := meta.Bucket(BlockHashToSerialID)

	return blockSerialIDBucket.Put(hash[:], i64ToBytes(serialID))
}

// DBPutHashToSerialIDWithPrev stores block hash with the corresponding
// serialID and the serialID of the previous block.
func DBPutHashToSerialIDWithPrev(dbTx database.Tx, hash chainhash.Hash, serialID, prevSerialID int64) error {
	err := DBPutBlockHashToSerialID(dbTx, hash, serialID)
	if err != nil {
		return err
	}

	meta := dbTx.Metadata()
	serialIDBucket := meta.Bucket(SerialIDToPrevBlock)

	buf := make([]byte, chainhash.HashSize+8)
	copy(buf[:chainhash.HashSize], hash[:])
	copy(buf[chainhash.HashSize:], i64ToBytes(prevSerialID))

	return serialIDBucket.Put(i64ToBytes(serialID), buf)
}

func i64ToBytes(val int64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(val))
	return buf
}

func bytesToI64(val []byte) int64 {
	num := binary.LittleEndian.Uint64(val)
	return int64(num)
}
