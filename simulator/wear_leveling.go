package simulator

import (
	"sort"

	"github.com/sirupsen/logrus"
)

// StaticWearLeveler periodically migrates data from over-worn active blocks
// to under-worn blocks so that background ("cold") data does not pin low-wear
// capacity while hot blocks burn through their P/E budget.
type StaticWearLeveler struct {
	cfg   DeviceConfig
	flash *FlashMemory
	ftl   *FTL

	lastRunTime int64
	lastOpCount int64
	migrations  int64
}

// NewStaticWearLeveler creates a leveler over a device instance.
func NewStaticWearLeveler(flash *FlashMemory, ftl *FTL) *StaticWearLeveler {
	return &StaticWearLeveler{
		cfg:   flash.cfg,
		flash: flash,
		ftl:   ftl,
	}
}

// Tick is invoked by the driver with the current timestamp. It does nothing
// unless the minimum interval has elapsed and the device processed enough
// operations since the last trigger; on triggering, lastRunTime advances even
// when no pair qualifies for migration. Returns true if any block migrated.
func (w *StaticWearLeveler) Tick(now int64) bool {
	if now-w.lastRunTime < int64(w.cfg.StaticWLMinInterval) {
		return false
	}
	ops := w.ftl.OpCount()
	if ops-w.lastOpCount < int64(w.cfg.GCMinActivityThreshold) {
		return false
	}
	w.lastRunTime = now
	w.lastOpCount = ops
	return w.migrationPass(now)
}

// migrationPass pairs worn blocks with under-worn targets and moves data.
//
// Highs are usable blocks holding valid data, ordered by descending wear
// (ties ascending ID); each is matched greedily against the lowest-wear
// unused target whose free pages can absorb the high block's valid pages.
// The ordering is fully determined by device state, keeping runs
// reproducible.
func (w *StaticWearLeveler) migrationPass(now int64) bool {
	var highs, lows []int
	for id := 0; id < w.flash.BlockCount(); id++ {
		if !w.flash.BlockUsable(id) {
			continue
		}
		lows = append(lows, id)
		if w.flash.BlockPageCounts(id).Valid > 0 {
			highs = append(highs, id)
		}
	}
	sort.Slice(highs, func(i, j int) bool {
		wi, wj := w.flash.BlockWear(highs[i]), w.flash.BlockWear(highs[j])
		if wi != wj {
			return wi > wj
		}
		return highs[i] < highs[j]
	})
	sort.Slice(lows, func(i, j int) bool {
		wi, wj := w.flash.BlockWear(lows[i]), w.flash.BlockWear(lows[j])
		if wi != wj {
			return wi < wj
		}
		return lows[i] < lows[j]
	})

	migrated := false
	used := make(map[int]bool)
	for _, high := range highs {
		if used[high] {
			continue
		}
		// A dormant block's data is not being churned; moving it would spend
		// P/E cycles for no benefit.
		if now-w.flash.BlockLastActive(high) > int64(w.cfg.StaticWLActivityWindow) {
			continue
		}
		validPages := w.flash.BlockPageCounts(high).Valid
		highWear := w.flash.BlockWear(high)

		for _, low := range lows {
			if low == high || used[low] {
				continue
			}
			if highWear-w.flash.BlockWear(low) < w.cfg.StaticWLMigrationThreshold {
				continue
			}
			if w.flash.BlockPageCounts(low).Free < validPages {
				continue
			}
			if err := w.ftl.MigrateBlock(high, low, now); err != nil {
				logrus.Warnf("static wear leveling: migrating block %d -> %d: %v", high, low, err)
				break
			}
			logrus.Debugf("static wear leveling: moved block %d (wear %d) into block %d", high, highWear, low)
			used[high], used[low] = true, true
			w.migrations++
			migrated = true
			break
		}
	}
	return migrated
}

// Migrations returns the number of completed block migrations.
func (w *StaticWearLeveler) Migrations() int64 {
	return w.migrations
}

// LastRunTime returns the timestamp of the most recent triggered pass.
func (w *StaticWearLeveler) LastRunTime() int64 {
	return w.lastRunTime
}
