package simulator

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestFTL(t *testing.T, wearLeveling bool) (*FlashMemory, *FTL) {
	t.Helper()
	flash, err := NewFlashMemory(testDeviceConfig())
	require.NoError(t, err)
	return flash, NewFTL(flash, wearLeveling)
}

// checkSingleValidMapping verifies that at most one page on the device is
// valid for any logical address, and that it is the mapped one.
func checkSingleValidMapping(t *testing.T, flash *FlashMemory, ftl *FTL) {
	t.Helper()
	seen := make(map[int]PageRef)
	for id := 0; id < flash.BlockCount(); id++ {
		for off := 0; off < flash.PagesPerBlock(); off++ {
			addr, ok := flash.PageLogicalAddr(id, off)
			if !ok {
				continue
			}
			prev, dup := seen[addr]
			require.Falsef(t, dup, "addr %d valid at both %+v and %d/%d", addr, prev, id, off)
			seen[addr] = PageRef{Block: id, Page: off}
			ref, mapped := ftl.Lookup(addr)
			require.True(t, mapped, "valid page %d/%d for addr %d has no mapping", id, off, addr)
			require.Equal(t, PageRef{Block: id, Page: off}, ref)
		}
	}
}

func TestFTLRoundTrip(t *testing.T) {
	_, ftl := newTestFTL(t, true)

	require.NoError(t, ftl.Write(3, []byte("hello"), 1))
	data, err := ftl.Read(3)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), data)

	// Overwrite supersedes.
	require.NoError(t, ftl.Write(3, []byte("world"), 2))
	data, err = ftl.Read(3)
	require.NoError(t, err)
	require.Equal(t, []byte("world"), data)
}

func TestFTLReadUnmapped(t *testing.T) {
	_, ftl := newTestFTL(t, true)
	_, err := ftl.Read(9)
	require.True(t, IsKind(err, KindAddressNotFound), "got %v", err)
}

func TestFTLOverwriteLeavesStale(t *testing.T) {
	flash, ftl := newTestFTL(t, true)

	require.NoError(t, ftl.Write(0, []byte("v1"), 1))
	old, _ := ftl.Lookup(0)
	require.NoError(t, ftl.Write(0, []byte("v2"), 2))

	// Old location is stale; data is superseded but still physically present.
	require.Equal(t, PageStale, flash.PageState(old.Block, old.Page))
	checkSingleValidMapping(t, flash, ftl)
}

// Writes to distinct addresses must spread across the candidate set rather
// than filling block 0 page by page.
func TestFTLCandidateSpread(t *testing.T) {
	flash, ftl := newTestFTL(t, true) // 4 blocks x 4 pages, K=2

	for addr := 0; addr < 4; addr++ {
		require.NoError(t, ftl.Write(addr, []byte{byte(addr)}, int64(addr)))
	}

	used := make(map[int]bool)
	for addr := 0; addr < 4; addr++ {
		ref, ok := ftl.Lookup(addr)
		require.True(t, ok)
		used[ref.Block] = true
	}
	require.GreaterOrEqual(t, len(used), 2, "4 writes landed in blocks %v", used)
	checkSingleValidMapping(t, flash, ftl)
}

// Overwriting a single address until every candidate block is full of stale
// pages must trigger garbage collection and still succeed.
func TestFTLWriteTriggersGC(t *testing.T) {
	flash, ftl := newTestFTL(t, true) // K=2, so 8 pages of candidate capacity

	var last []byte
	for i := 0; i < 12; i++ {
		last = []byte(fmt.Sprintf("v%d", i))
		require.NoError(t, ftl.Write(0, last, int64(i)))
	}
	require.Greater(t, ftl.GCRuns(), int64(0), "expected at least one GC pass")

	data, err := ftl.Read(0)
	require.NoError(t, err)
	require.Equal(t, last, data)
	checkSingleValidMapping(t, flash, ftl)
	checkPartition(t, flash)
}

func TestFTLGarbageCollectNoStale(t *testing.T) {
	_, ftl := newTestFTL(t, true)
	require.NoError(t, ftl.Write(0, []byte("a"), 1))

	// Nothing stale yet: GC is a no-op and reports no space freed.
	require.False(t, ftl.GarbageCollect(2))
	require.Equal(t, int64(0), ftl.GCRuns())
}

func TestFTLGarbageCollectPreservesValidData(t *testing.T) {
	flash, ftl := newTestFTL(t, true)

	// Pin some long-lived data, then churn another address to build up
	// stale pages alongside it.
	require.NoError(t, ftl.Write(7, []byte("pinned"), 0))
	for i := 1; i <= 10; i++ {
		require.NoError(t, ftl.Write(1, []byte(fmt.Sprintf("churn%d", i)), int64(i)))
	}

	freed := ftl.GarbageCollect(11)
	require.True(t, freed)

	data, err := ftl.Read(7)
	require.NoError(t, err)
	require.Equal(t, []byte("pinned"), data)
	checkSingleValidMapping(t, flash, ftl)
	checkPartition(t, flash)
}

// Killing every block leaves writes failing with out-of-space and all pages
// dead.
func TestFTLDeviceExhaustion(t *testing.T) {
	flash, ftl := newTestFTL(t, true) // P/E threshold 3

	sawOutOfSpace := false
	for i := 0; i < 300; i++ {
		err := ftl.Write(0, []byte("x"), int64(i))
		if err != nil {
			require.True(t, IsKind(err, KindOutOfSpace), "unexpected error: %v", err)
			sawOutOfSpace = true
		}
	}
	require.True(t, sawOutOfSpace)

	for id := 0; id < flash.BlockCount(); id++ {
		require.False(t, flash.BlockUsable(id), "block %d still usable", id)
	}
	require.Equal(t, flash.TotalPages(), flash.DeadPageCount())

	// Device stays dead.
	err := ftl.Write(0, []byte("y"), 999)
	require.True(t, IsKind(err, KindOutOfSpace), "got %v", err)
}

// Erase counts never decrease, and a dead block's wear is frozen.
func TestFTLWearMonotonicity(t *testing.T) {
	flash, ftl := newTestFTL(t, true)

	prev := make([]int, flash.BlockCount())
	for i := 0; i < 120; i++ {
		_ = ftl.Write(i%3, []byte("w"), int64(i))
		for id := 0; id < flash.BlockCount(); id++ {
			w := flash.BlockWear(id)
			require.GreaterOrEqual(t, w, prev[id], "block %d wear decreased", id)
			prev[id] = w
		}
	}
}

func TestFTLFirstFreeAllocation(t *testing.T) {
	flash, ftl := newTestFTL(t, false)

	// Without wear leveling, distinct writes fill block 0 in page order.
	for addr := 0; addr < 4; addr++ {
		require.NoError(t, ftl.Write(addr, []byte{byte(addr)}, int64(addr)))
		ref, _ := ftl.Lookup(addr)
		require.Equal(t, PageRef{Block: 0, Page: addr}, ref)
	}
	checkSingleValidMapping(t, flash, ftl)
}
