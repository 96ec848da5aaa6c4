package simulator

import (
	"sort"

	"github.com/sirupsen/logrus"
)

// FTL is the flash translation layer: it owns the logical-to-physical page
// mapping and implements page allocation (with or without dynamic wear
// leveling) and garbage collection on top of a FlashMemory.
type FTL struct {
	cfg   DeviceConfig
	flash *FlashMemory

	// mapping holds the single valid physical location per logical address.
	mapping map[int]PageRef

	// wearLeveling selects the allocator: candidate-set dynamic wear leveling
	// when true, first-free-in-address-order when false.
	wearLeveling bool

	opCount     int64 // reads and writes served, drives the static leveler trigger
	gcRuns      int64
	relocations int64
}

// NewFTL creates a translation layer over flash. With wearLeveling disabled
// the allocator degenerates to first-free page in physical order, which is
// the comparison baseline.
func NewFTL(flash *FlashMemory, wearLeveling bool) *FTL {
	return &FTL{
		cfg:          flash.cfg,
		flash:        flash,
		mapping:      make(map[int]PageRef),
		wearLeveling: wearLeveling,
	}
}

// Write stores data for a logical address. Any previous page for the address
// goes stale first; allocation failures trigger one garbage collection pass
// and exactly one retry before reporting out of space.
func (f *FTL) Write(addr int, data []byte, now int64) error {
	f.opCount++

	if old, ok := f.mapping[addr]; ok {
		if err := f.flash.InvalidatePage(old.Block, old.Page); err != nil {
			return err
		}
		delete(f.mapping, addr)
	}

	ref, ok := f.allocate(-1)
	if !ok {
		if f.GarbageCollect(now) {
			ref, ok = f.allocate(-1)
		}
	}
	if !ok {
		return ErrOutOfSpace("no free page in any candidate block after garbage collection")
	}

	if err := f.flash.WritePage(ref.Block, ref.Page, addr, data, now); err != nil {
		return err
	}
	f.mapping[addr] = ref
	return nil
}

// Read returns the data most recently written to a logical address.
func (f *FTL) Read(addr int) ([]byte, error) {
	f.opCount++

	ref, ok := f.mapping[addr]
	if !ok {
		return nil, ErrAddressNotFound(addr)
	}
	return f.flash.ReadPage(ref.Block, ref.Page)
}

// allocate picks a destination page for a fresh write, or reports failure.
// excludeBlock skips one block (the GC victim); pass -1 to consider all.
//
// With wear leveling, candidates are the K least-worn usable blocks by
// ascending erase count, ties broken by ascending block ID. Among those the
// candidate with the most free pages wins (ties keep candidate order), which
// spreads fresh writes across the least-worn capacity instead of filling one
// block at a time; the page is the lowest free offset. Without wear leveling
// the first free page in physical address order wins.
func (f *FTL) allocate(excludeBlock int) (PageRef, bool) {
	candidates := make([]int, 0, f.flash.BlockCount())
	for id := 0; id < f.flash.BlockCount(); id++ {
		if id == excludeBlock || !f.flash.BlockUsable(id) {
			continue
		}
		candidates = append(candidates, id)
	}

	if !f.wearLeveling {
		for _, id := range candidates {
			for off := 0; off < f.cfg.PagesPerBlock; off++ {
				if f.flash.PageState(id, off) == PageFree {
					return PageRef{Block: id, Page: off}, true
				}
			}
		}
		return PageRef{}, false
	}

	sort.Slice(candidates, func(i, j int) bool {
		wi, wj := f.flash.BlockWear(candidates[i]), f.flash.BlockWear(candidates[j])
		if wi != wj {
			return wi < wj
		}
		return candidates[i] < candidates[j]
	})
	if len(candidates) > f.cfg.CandidateSetSize {
		candidates = candidates[:f.cfg.CandidateSetSize]
	}

	best, bestFree := -1, 0
	for _, id := range candidates {
		if free := f.flash.BlockPageCounts(id).Free; free > bestFree {
			best, bestFree = id, free
		}
	}
	if best < 0 {
		return PageRef{}, false
	}
	for off := 0; off < f.cfg.PagesPerBlock; off++ {
		if f.flash.PageState(best, off) == PageFree {
			return PageRef{Block: best, Page: off}, true
		}
	}
	return PageRef{}, false
}

// GarbageCollect reclaims the usable block with the highest proportion of
// stale pages: its valid pages are relocated (mapping preserved) and the
// block is erased. Returns false when no block has any stale page.
func (f *FTL) GarbageCollect(now int64) bool {
	victim := f.selectVictim()
	if victim < 0 {
		return false
	}

	// Move valid data off the victim before erasing it. Relocation uses the
	// regular allocator with the victim excluded; if a destination cannot be
	// found the victim is left un-erased and the caller sees out of space.
	for off := 0; off < f.cfg.PagesPerBlock; off++ {
		if f.flash.PageState(victim, off) != PageValid {
			continue
		}
		if !f.relocatePage(victim, off, now) {
			logrus.Debugf("gc: cannot relocate page %d/%d, aborting pass", victim, off)
			return false
		}
	}

	if err := f.flash.EraseBlock(victim, now); err != nil {
		logrus.Warnf("gc: erase of block %d failed: %v", victim, err)
		return false
	}
	f.gcRuns++
	return true
}

// selectVictim returns the usable block with the highest stale-page
// proportion, ties broken by lowest erase count then lowest block ID.
// Returns -1 when no usable block has a stale page.
func (f *FTL) selectVictim() int {
	victim := -1
	var victimStale, victimWear int
	for id := 0; id < f.flash.BlockCount(); id++ {
		if !f.flash.BlockUsable(id) {
			continue
		}
		counts := f.flash.BlockPageCounts(id)
		if counts.Stale == 0 {
			continue
		}
		// Equal block sizes make the stale count itself the proportion order.
		wear := f.flash.BlockWear(id)
		if victim < 0 || counts.Stale > victimStale ||
			(counts.Stale == victimStale && wear < victimWear) {
			victim, victimStale, victimWear = id, counts.Stale, wear
		}
	}
	return victim
}

// relocatePage moves one valid page off srcBlock, updating the mapping.
// The source page goes stale so the block can be erased afterwards.
func (f *FTL) relocatePage(srcBlock, srcOff int, now int64) bool {
	addr, ok := f.flash.PageLogicalAddr(srcBlock, srcOff)
	if !ok {
		return false
	}
	dst, ok := f.allocate(srcBlock)
	if !ok {
		return false
	}
	data, err := f.flash.ReadPage(srcBlock, srcOff)
	if err != nil {
		return false
	}
	if err := f.flash.WritePage(dst.Block, dst.Page, addr, data, now); err != nil {
		return false
	}
	if err := f.flash.InvalidatePage(srcBlock, srcOff); err != nil {
		return false
	}
	f.mapping[addr] = dst
	f.relocations++
	return true
}

// MigrateBlock moves every valid page of src into free pages of dst (mapping
// updated), then erases src. Used by the static wear leveler, which pairs a
// worn active block with an under-worn target.
func (f *FTL) MigrateBlock(src, dst int, now int64) error {
	for off := 0; off < f.cfg.PagesPerBlock; off++ {
		if f.flash.PageState(src, off) != PageValid {
			continue
		}
		addr, ok := f.flash.PageLogicalAddr(src, off)
		if !ok {
			continue
		}
		dstOff := -1
		for o := 0; o < f.cfg.PagesPerBlock; o++ {
			if f.flash.PageState(dst, o) == PageFree {
				dstOff = o
				break
			}
		}
		if dstOff < 0 {
			return ErrOutOfSpace("migration target block has no free page")
		}
		data, err := f.flash.ReadPage(src, off)
		if err != nil {
			return err
		}
		if err := f.flash.WritePage(dst, dstOff, addr, data, now); err != nil {
			return err
		}
		if err := f.flash.InvalidatePage(src, off); err != nil {
			return err
		}
		f.mapping[addr] = PageRef{Block: dst, Page: dstOff}
		f.relocations++
	}
	return f.flash.EraseBlock(src, now)
}

// Lookup returns the physical location currently mapped to a logical address.
func (f *FTL) Lookup(addr int) (PageRef, bool) {
	ref, ok := f.mapping[addr]
	return ref, ok
}

// MappedAddresses returns the number of logical addresses with a mapping.
func (f *FTL) MappedAddresses() int {
	return len(f.mapping)
}

// OpCount returns the number of read and write operations processed.
func (f *FTL) OpCount() int64 {
	return f.opCount
}

// GCRuns returns the number of completed garbage collection passes.
func (f *FTL) GCRuns() int64 {
	return f.gcRuns
}

// Relocations returns the number of valid pages moved by GC and migration.
func (f *FTL) Relocations() int64 {
	return f.relocations
}
