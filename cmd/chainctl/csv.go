// Copyright (c) 2024 The Embercoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"os"

	"github.com/gocarina/gocsv"
	"gitlab.com/embercoin/emberd/emberutil"
)

// BlockRow is a single line of the CSV export describing one block of the
// main chain.
type BlockRow struct {
	Height    int32  `csv:"height"`
	Hash      string `csv:"hash"`
	Version   int32  `csv:"version"`
	Timestamp int64  `csv:"timestamp"`
	Bits      uint32 `csv:"bits"`
	NumTxns   int    `csv:"num_txns"`
	Size      int    `csv:"size"`
}

// newBlockRow flattens a block into its CSV representation.
func newBlockRow(block *emberutil.Block) BlockRow {
	msgBlock := block.MsgBlock()
	return BlockRow{
		Height:    block.Height(),
		Hash:      block.Hash().String(),
		Version:   msgBlock.Header.Version,
		Timestamp: msgBlock.Header.Timestamp.Unix(),
		Bits:      msgBlock.Header.Bits,
		NumTxns:   len(msgBlock.Transactions),
		Size:      msgBlock.SerializeSize(),
	}
}

// CSVStorage wraps a file holding the exported rows.
type CSVStorage struct {
	path string
	file *os.File
}

func NewCSVStorage(path string) *CSVStorage {
	return &CSVStorage{path: path}
}

func (storage *CSVStorage) open(truncate bool) error {
	mode := os.O_RDWR | os.O_CREATE
	if truncate {
		mode |= os.O_TRUNC
	}

	file, err := os.OpenFile(storage.path, mode, 0644)
	storage.file = file
	return err
}

func (storage *CSVStorage) Close() {
	if storage.file != nil {
		_ = storage.file.Close()
	}
}

// SaveRows writes the rows to the file, replacing any previous content.
func (storage *CSVStorage) SaveRows(rows []BlockRow) error {
	if err := storage.open(true); err != nil {
		return err
	}
	defer storage.Close()

	return gocsv.MarshalFile(rows, storage.file)
}
