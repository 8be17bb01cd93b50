// Copyright (c) 2013-2014 The btcsuite developers
// Copyright (c) 2024 The Embercoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaindata

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMedianTime tests the medianTime implementation.
func TestMedianTime(t *testing.T) {
	tests := []struct {
		in         []int64
		wantOffset int64
		useDupID   bool
	}{
		// Not enough samples must result in an offset of 0.
		{in: []int64{1}, wantOffset: 0},
		{in: []int64{1, 2}, wantOffset: 0},
		{in: []int64{1, 2, 3}, wantOffset: 0},
		{in: []int64{1, 2, 3, 4}, wantOffset: 0},

		// Various number of entries.  The expected offset is only
		// updated on odd number of elements.
		{in: []int64{-13, 57, -4, -23, -12}, wantOffset: -12},
		{in: []int64{55, -13, 61, -52, 39, 55}, wantOffset: 39},
		{in: []int64{-62, -58, -30, -62, 51, -64, 31}, wantOffset: -58},
		{in: []int64{-5, -4, -3, -2, -1}, wantOffset: -3},

		// The offset stops being updated once the max number of entries
		// has been reached.  This is actually a bug from Bitcoin Core,
		// but since the time is ultimately used as a part of the
		// consensus rules, it must be mirrored.
		{in: []int64{-67, 67, -50, 24, 63, 17, 58, -14, 5, -32, -52}, wantOffset: 17},
		{in: []int64{-67, 67, -50, 24, 63, 17, 58, -14, 5, -32, -52, 45}, wantOffset: 17},
		{in: []int64{-67, 67, -50, 24, 63, 17, 58, -14, 5, -32, -52, 45, 4}, wantOffset: 17},

		// Offsets that are too far away from the local time should
		// be ignored.
		{in: []int64{-4201, 4202, -4203, 4204, -4205}, wantOffset: 0},

		// Duplicate source IDs are ignored, so the offset is never
		// recalculated.
		{in: []int64{-13, 57, -4, -23, -12}, wantOffset: 0, useDupID: true},
	}

	// Modify the max number of allowed median time entries for these tests.
	origMaxMedianTimeEntries := maxMedianTimeEntries
	maxMedianTimeEntries = 10
	defer func() {
		maxMedianTimeEntries = origMaxMedianTimeEntries
	}()

	for i, test := range tests {
		filter := NewMedianTime()
		for j, offset := range test.in {
			id := fmt.Sprintf("%d", j)
			if test.useDupID {
				// Use the same ID for all samples when the
				// test is specifically testing for duplicate
				// IDs.
				id = "same"
			}
			tOffset := time.Now().Add(time.Duration(offset) * time.Second)
			filter.AddTimeSample(id, tOffset)

			// Ensure the duplicate IDs are ignored.
			if test.useDupID {
				// The offset should not have changed.
				require.Zero(t, filter.Offset(),
					"case #%d: offset updated with duplicate id", i)
				continue
			}
		}

		// Since it is possible that the time.Now call in AddTimeSample
		// and the time.Now calls here in the tests will be off by one
		// second, allow a fudge factor to compensate.
		gotOffset := int64(filter.Offset() / time.Second)
		assert.InDelta(t, test.wantOffset, gotOffset, 1,
			"case #%d: unexpected offset", i)

		adjustedTime := filter.AdjustedTime()
		now := time.Unix(time.Now().Unix(), 0)
		wantTime := now.Add(filter.Offset())
		assert.InDelta(t, wantTime.Unix(), adjustedTime.Unix(), 1,
			"case #%d: unexpected adjusted time", i)
	}
}
