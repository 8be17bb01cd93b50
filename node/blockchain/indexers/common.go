// Copyright (c) 2016 The btcsuite developers
// Copyright (c) 2024 The Embercoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package indexers implements optional block chain indexes.
package indexers

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// byteOrder is the preferred byte order used for serializing numeric fields
// for storage in the database.
var byteOrder = binary.LittleEndian

// errInterruptRequested indicates that an operation was cancelled due to a
// user-requested interrupt.
var errInterruptRequested = errors.New("interrupt requested")

// errNoBlockIDEntry is an error that indicates a requested entry does not
// exist in the internal block ID index.
var errNoBlockIDEntry = errors.New("no entry in the block ID index")

// interruptRequested returns true when the provided channel has been closed.
// It is intended to be checked between long-running operations so work can be
// stopped early on shutdown.  A nil channel disables the checks.
func interruptRequested(interrupted <-chan struct{}) bool {
	if interrupted == nil {
		return false
	}

	select {
	case <-interrupted:
		return true
	default:
	}

	return false
}
