// Package dedup implements the per-minute duplicate suppression table.
//
// Two bitsets indexed by packet checksum alternate between even and odd
// clock minutes. A mark is visible in the minute it was made and in the
// following one; each minute rollover wipes the bitset of the minute that
// just ended, so marks expire without a sweep.
package dedup

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/SWAI-Ltd/btbmesh/internal/clock"
)

const noMinute = 0xFF

// Table is safe for concurrent use.
type Table struct {
	mu     sync.Mutex
	minute uint8
	parity [2]*roaring.Bitmap
}

// New returns an empty table that has not seen any minute yet.
func New() *Table {
	return &Table{
		minute: noMinute,
		parity: [2]*roaring.Bitmap{roaring.New(), roaring.New()},
	}
}

func bucket(m uint8) int { return int(m & 0x01) }

func next(m uint8) uint8 { return uint8((int(m) + 1) % clock.MinutesPerHour) }

// Mark records sum as seen in minute m. It stays visible through minute m+1.
func (t *Table) Mark(m uint8, sum uint8) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.parity[bucket(m)].Add(uint32(sum))
	t.parity[bucket(next(m))].Add(uint32(sum))
}

// Test reports whether sum was marked in minute m or the minute before.
func (t *Table) Test(m uint8, sum uint8) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.parity[bucket(m)].Contains(uint32(sum))
}

// TestAndMark marks sum and reports whether it had already been seen.
func (t *Table) TestAndMark(m uint8, sum uint8) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.parity[bucket(m)].Contains(uint32(sum)) {
		return true
	}
	t.parity[bucket(m)].Add(uint32(sum))
	t.parity[bucket(next(m))].Add(uint32(sum))
	return false
}

// Tick advances the table to minute m. On a one-minute rollover the bucket of
// the minute that ended is cleared; if minutes were skipped, or this is the
// first tick, both buckets are cleared. A minute one behind the current one is
// a late sample from another worker and is ignored. It reports whether
// anything rolled over.
func (t *Table) Tick(m uint8) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m == t.minute {
		return false
	}
	if t.minute != noMinute && next(m) == t.minute {
		return false
	}
	if t.minute != noMinute && next(t.minute) == m {
		t.parity[bucket(t.minute)].Clear()
	} else {
		t.parity[0].Clear()
		t.parity[1].Clear()
	}
	t.minute = m
	return true
}

// Minute returns the last minute passed to Tick.
func (t *Table) Minute() (uint8, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.minute, t.minute != noMinute
}

// Len returns the number of checksums visible in minute m.
func (t *Table) Len(m uint8) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return int(t.parity[bucket(m)].GetCardinality())
}
