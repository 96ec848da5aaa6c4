package simulator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func levelerFixture(t *testing.T) (*FlashMemory, *FTL, *StaticWearLeveler) {
	t.Helper()
	cfg := testDeviceConfig()
	cfg.PECycleThreshold = 100 // keep blocks alive while we force wear apart
	flash, err := NewFlashMemory(cfg)
	require.NoError(t, err)
	ftl := NewFTL(flash, true)
	return flash, ftl, NewStaticWearLeveler(flash, ftl)
}

// wearDown runs n erase cycles on a block to force its wear up.
func wearDown(t *testing.T, flash *FlashMemory, blockID, n int, now int64) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, flash.EraseBlock(blockID, now))
	}
}

func TestStaticWearLevelerTrigger(t *testing.T) {
	t.Run("interval not elapsed", func(t *testing.T) {
		_, ftl, wl := levelerFixture(t)
		ftl.opCount = 100
		require.False(t, wl.Tick(5)) // minInterval is 10
		require.Equal(t, int64(0), wl.LastRunTime())
	})

	t.Run("too little activity", func(t *testing.T) {
		_, ftl, wl := levelerFixture(t)
		ftl.opCount = 2 // below GCMinActivityThreshold of 5
		require.False(t, wl.Tick(50))
		require.Equal(t, int64(0), wl.LastRunTime())
	})

	t.Run("trigger updates last run time even without migration", func(t *testing.T) {
		_, ftl, wl := levelerFixture(t)
		ftl.opCount = 100
		require.False(t, wl.Tick(50)) // nothing qualifies, but the pass ran
		require.Equal(t, int64(50), wl.LastRunTime())

		// Immediately after, the interval gate holds again.
		ftl.opCount = 200
		require.False(t, wl.Tick(55))
		require.Equal(t, int64(50), wl.LastRunTime())
	})
}

func TestStaticWearLevelerMigration(t *testing.T) {
	flash, ftl, wl := levelerFixture(t)

	// Block 0 is heavily worn and holds live, recently-written data.
	wearDown(t, flash, 0, 5, 10)
	require.NoError(t, flash.WritePage(0, 0, 7, []byte("hot"), 12))
	ftl.mapping[7] = PageRef{Block: 0, Page: 0}

	ftl.opCount = 100
	require.True(t, wl.Tick(15))
	require.Equal(t, int64(1), wl.Migrations())

	// Data moved to the least-worn block, mapping follows, source erased.
	ref, ok := ftl.Lookup(7)
	require.True(t, ok)
	require.Equal(t, PageRef{Block: 1, Page: 0}, ref)
	data, err := flash.ReadPage(1, 0)
	require.NoError(t, err)
	require.Equal(t, []byte("hot"), data)

	require.Equal(t, 6, flash.BlockWear(0)) // migration erased the source
	require.Equal(t, 4, flash.BlockPageCounts(0).Free)
	checkSingleValidMapping(t, flash, ftl)
	checkPartition(t, flash)
}

func TestStaticWearLevelerSkipsDormantBlocks(t *testing.T) {
	flash, ftl, wl := levelerFixture(t)

	// Worn block with valid data, but last touched far outside the
	// activity window (20 units).
	wearDown(t, flash, 0, 5, 10)
	require.NoError(t, flash.WritePage(0, 0, 7, []byte("cold"), 10))
	ftl.mapping[7] = PageRef{Block: 0, Page: 0}

	ftl.opCount = 100
	require.False(t, wl.Tick(500))
	require.Equal(t, int64(0), wl.Migrations())

	// Data stays put.
	ref, _ := ftl.Lookup(7)
	require.Equal(t, PageRef{Block: 0, Page: 0}, ref)
	require.Equal(t, int64(500), wl.LastRunTime())
}

func TestStaticWearLevelerBelowThreshold(t *testing.T) {
	flash, ftl, wl := levelerFixture(t)

	// Wear gap of 1 is below the migration threshold of 2.
	wearDown(t, flash, 0, 1, 10)
	require.NoError(t, flash.WritePage(0, 0, 7, []byte("warm"), 12))
	ftl.mapping[7] = PageRef{Block: 0, Page: 0}

	ftl.opCount = 100
	require.False(t, wl.Tick(15))
	require.Equal(t, int64(0), wl.Migrations())
}

func TestStaticWearLevelerTargetNeedsRoom(t *testing.T) {
	flash, ftl, wl := levelerFixture(t)

	wearDown(t, flash, 0, 5, 10)
	require.NoError(t, flash.WritePage(0, 0, 7, []byte("a"), 12))
	ftl.mapping[7] = PageRef{Block: 0, Page: 0}

	// Fill every other block so no target has room.
	for id := 1; id < flash.BlockCount(); id++ {
		for off := 0; off < flash.PagesPerBlock(); off++ {
			addr := 100 + id*10 + off
			require.NoError(t, flash.WritePage(id, off, addr, []byte("f"), 12))
			ftl.mapping[addr] = PageRef{Block: id, Page: off}
		}
	}

	ftl.opCount = 100
	require.False(t, wl.Tick(15))
	require.Equal(t, int64(0), wl.Migrations())
	ref, _ := ftl.Lookup(7)
	require.Equal(t, PageRef{Block: 0, Page: 0}, ref)
}

// With write traffic concentrated on a narrow address range, the leveled
// instance must end up with a tighter wear spread than the baseline at the
// same point in the stream.
func TestWearSpreadComparison(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Device = DeviceConfig{
		PageSizeBytes:              128,
		PagesPerBlock:              8,
		BlockCount:                 8,
		PECycleThreshold:           50,
		CandidateSetSize:           2,
		StaticWLMinInterval:        50,
		StaticWLActivityWindow:     200,
		StaticWLMigrationThreshold: 3,
		GCMinActivityThreshold:     20,
	}
	cfg.Workload = WorkloadConfig{
		TimeUnits:       3000,
		AddressRange:    16,
		IdleProbability: 0.1,
		WriteWeight:     80,
		ReadWeight:      20,
		RandomSeed:      42,
	}
	cfg.SampleInterval = 100
	cfg.DeadPageStopFraction = 0 // run the full stream

	sim, err := NewSimulator(cfg)
	require.NoError(t, err)
	sim.Run()

	leveled := sim.Leveled().Metrics()
	baseline := sim.Unleveled().Metrics()
	t.Logf("wear spread: leveled=%d baseline=%d", leveled.WearSpread, baseline.WearSpread)
	require.Less(t, leveled.WearSpread, baseline.WearSpread)
}
