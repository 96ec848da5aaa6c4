package simulator

import (
	"encoding/json"
	"fmt"
)

// PageState represents the lifecycle state of a flash page
type PageState int

const (
	PageFree  PageState = iota // Erased and writable
	PageValid                  // Holds the current data for some logical address
	PageStale                  // Data physically present but logically superseded
	PageDead                   // Owning block exceeded its P/E limit; permanently unusable
)

// String returns the string representation of PageState
func (ps PageState) String() string {
	switch ps {
	case PageFree:
		return "free"
	case PageValid:
		return "valid"
	case PageStale:
		return "stale"
	case PageDead:
		return "dead"
	default:
		return "unknown"
	}
}

// ParsePageState parses a string into PageState
func ParsePageState(s string) (PageState, error) {
	switch s {
	case "free":
		return PageFree, nil
	case "valid":
		return PageValid, nil
	case "stale":
		return PageStale, nil
	case "dead":
		return PageDead, nil
	default:
		return PageFree, fmt.Errorf("invalid page state: %s", s)
	}
}

// MarshalJSON implements json.Marshaler for PageState
func (ps PageState) MarshalJSON() ([]byte, error) {
	return json.Marshal(ps.String())
}

// UnmarshalJSON implements json.Unmarshaler for PageState
func (ps *PageState) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePageState(s)
	if err != nil {
		return err
	}
	*ps = parsed
	return nil
}

// PageRef identifies a physical page by block ID and offset within the block.
// The FTL and wear leveler hold these indices; page storage stays inside
// FlashMemory.
type PageRef struct {
	Block int `json:"block"`
	Page  int `json:"page"`
}

// page is the unit of read/write. logicalAddr and data are meaningful only
// while state == PageValid.
type page struct {
	state         PageState
	logicalAddr   int
	data          []byte
	lastWriteTime int64
}

// block is the unit of erase.
type block struct {
	id         int
	pages      []page
	eraseCount int
	lastActive int64
	dead       bool
}

// PageCounts breaks down a block's pages by state. The four counts always
// sum to PagesPerBlock.
type PageCounts struct {
	Free  int `json:"free"`
	Valid int `json:"valid"`
	Stale int `json:"stale"`
	Dead  int `json:"dead"`
}

// FlashMemory models the physical device: all blocks and pages, erase
// accounting, and dead-page tracking. It exclusively owns page storage;
// higher layers address it through (block, page) indices.
type FlashMemory struct {
	cfg       DeviceConfig
	blocks    []block
	deadPages int
}

// NewFlashMemory creates a device with all pages free and zero wear.
func NewFlashMemory(cfg DeviceConfig) (*FlashMemory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	blocks := make([]block, cfg.BlockCount)
	for i := range blocks {
		blocks[i] = block{
			id:    i,
			pages: make([]page, cfg.PagesPerBlock),
		}
	}
	return &FlashMemory{cfg: cfg, blocks: blocks}, nil
}

func (m *FlashMemory) checkBlock(blockID int) error {
	if blockID < 0 || blockID >= len(m.blocks) {
		return fmt.Errorf("block ID %d out of range [0, %d)", blockID, len(m.blocks))
	}
	return nil
}

func (m *FlashMemory) checkPage(blockID, pageOff int) error {
	if err := m.checkBlock(blockID); err != nil {
		return err
	}
	if pageOff < 0 || pageOff >= m.cfg.PagesPerBlock {
		return fmt.Errorf("page offset %d out of range [0, %d)", pageOff, m.cfg.PagesPerBlock)
	}
	return nil
}

// EraseBlock completes one P/E cycle on a block. At the P/E threshold the
// block and all of its pages become dead, irreversibly; otherwise every
// non-dead page resets to free.
func (m *FlashMemory) EraseBlock(blockID int, now int64) error {
	if err := m.checkBlock(blockID); err != nil {
		return err
	}
	b := &m.blocks[blockID]
	if b.dead {
		return ErrBlockDead(blockID)
	}

	b.eraseCount++
	b.lastActive = now

	if b.eraseCount >= m.cfg.PECycleThreshold {
		b.dead = true
		for i := range b.pages {
			if b.pages[i].state != PageDead {
				m.deadPages++
			}
			b.pages[i] = page{state: PageDead}
		}
		return nil
	}

	for i := range b.pages {
		if b.pages[i].state != PageDead {
			b.pages[i] = page{state: PageFree}
		}
	}
	return nil
}

// WritePage programs a free page with data for a logical address.
func (m *FlashMemory) WritePage(blockID, pageOff, logicalAddr int, data []byte, now int64) error {
	if err := m.checkPage(blockID, pageOff); err != nil {
		return err
	}
	b := &m.blocks[blockID]
	p := &b.pages[pageOff]
	if p.state != PageFree {
		return ErrPageNotFree(blockID, pageOff)
	}

	p.state = PageValid
	p.logicalAddr = logicalAddr
	p.data = data
	p.lastWriteTime = now
	b.lastActive = now
	return nil
}

// InvalidatePage marks a valid page stale. The data stays physically present
// until the owning block is erased.
func (m *FlashMemory) InvalidatePage(blockID, pageOff int) error {
	if err := m.checkPage(blockID, pageOff); err != nil {
		return err
	}
	p := &m.blocks[blockID].pages[pageOff]
	if p.state != PageValid {
		return fmt.Errorf("cannot invalidate page %d/%d in state %s", blockID, pageOff, p.state)
	}
	p.state = PageStale
	return nil
}

// ReadPage returns the data stored in a valid page.
func (m *FlashMemory) ReadPage(blockID, pageOff int) ([]byte, error) {
	if err := m.checkPage(blockID, pageOff); err != nil {
		return nil, err
	}
	p := &m.blocks[blockID].pages[pageOff]
	if p.state != PageValid {
		return nil, fmt.Errorf("page %d/%d is not valid (state %s)", blockID, pageOff, p.state)
	}
	return p.data, nil
}

// PageLogicalAddr returns the logical address a valid page currently holds.
func (m *FlashMemory) PageLogicalAddr(blockID, pageOff int) (int, bool) {
	if m.checkPage(blockID, pageOff) != nil {
		return 0, false
	}
	p := &m.blocks[blockID].pages[pageOff]
	if p.state != PageValid {
		return 0, false
	}
	return p.logicalAddr, true
}

// PageState returns the state of a single page.
func (m *FlashMemory) PageState(blockID, pageOff int) PageState {
	return m.blocks[blockID].pages[pageOff].state
}

// PageLastWrite returns the last-write timestamp of a page.
func (m *FlashMemory) PageLastWrite(blockID, pageOff int) int64 {
	return m.blocks[blockID].pages[pageOff].lastWriteTime
}

// DeadPageCount returns the total dead pages across the device. This is the
// primary lifetime metric sampled over time.
func (m *FlashMemory) DeadPageCount() int {
	return m.deadPages
}

// BlockWear returns a block's completed P/E cycle count.
func (m *FlashMemory) BlockWear(blockID int) int {
	return m.blocks[blockID].eraseCount
}

// BlockLastActive returns the timestamp of the most recent write or erase
// touching a block.
func (m *FlashMemory) BlockLastActive(blockID int) int64 {
	return m.blocks[blockID].lastActive
}

// BlockUsable reports whether a block is still below its P/E limit.
func (m *FlashMemory) BlockUsable(blockID int) bool {
	return !m.blocks[blockID].dead
}

// BlockCount returns the number of blocks on the device.
func (m *FlashMemory) BlockCount() int {
	return len(m.blocks)
}

// PagesPerBlock returns the fixed page count of every block.
func (m *FlashMemory) PagesPerBlock() int {
	return m.cfg.PagesPerBlock
}

// TotalPages returns the physical page count of the device.
func (m *FlashMemory) TotalPages() int {
	return len(m.blocks) * m.cfg.PagesPerBlock
}

// BlockPageCounts returns the per-state page breakdown of a block.
func (m *FlashMemory) BlockPageCounts(blockID int) PageCounts {
	var c PageCounts
	for i := range m.blocks[blockID].pages {
		switch m.blocks[blockID].pages[i].state {
		case PageFree:
			c.Free++
		case PageValid:
			c.Valid++
		case PageStale:
			c.Stale++
		case PageDead:
			c.Dead++
		}
	}
	return c
}

// WearSpread returns max(eraseCount) - min(eraseCount) over usable blocks,
// or 0 when fewer than two blocks remain usable.
func (m *FlashMemory) WearSpread() int {
	minWear, maxWear, usable := 0, 0, 0
	for i := range m.blocks {
		if m.blocks[i].dead {
			continue
		}
		w := m.blocks[i].eraseCount
		if usable == 0 || w < minWear {
			minWear = w
		}
		if usable == 0 || w > maxWear {
			maxWear = w
		}
		usable++
	}
	if usable < 2 {
		return 0
	}
	return maxWear - minWear
}
