package simulator

// Sample is one point of the dead-page time series.
type Sample struct {
	Time      int64 `json:"time"`
	DeadPages int   `json:"deadPages"`
}

// InstanceMetrics tracks one device instance's health and bookkeeping
// counters over a run. Series carries the (timestamp, deadPageCount) samples
// handed to external plotting.
type InstanceMetrics struct {
	Timestamp  int64 `json:"timestamp"`
	DeadPages  int   `json:"deadPages"`
	TotalPages int   `json:"totalPages"`

	// Wear distribution over usable blocks
	WearSpread int `json:"wearSpread"` // max - min erase count

	// Operation counters
	Reads  int64 `json:"reads"`
	Writes int64 `json:"writes"`
	Idles  int64 `json:"idles"`

	// Failed operations: recorded, never fatal
	WriteFailures int64 `json:"writeFailures"` // out of space
	ReadFailures  int64 `json:"readFailures"`  // address not found

	// Reclaim / leveling activity
	GCRuns      int64 `json:"gcRuns"`
	Relocations int64 `json:"relocations"`
	Migrations  int64 `json:"migrations"`

	// Lifetime milestones
	FirstDeadTime int64 `json:"firstDeadTime"` // -1 until a page dies

	Series []Sample `json:"series"`
}

// update refreshes the derived fields from device state and appends a series
// sample when due.
func (m *InstanceMetrics) update(now int64, flash *FlashMemory, ftl *FTL, leveler *StaticWearLeveler, sampleInterval int) {
	m.Timestamp = now
	m.DeadPages = flash.DeadPageCount()
	m.TotalPages = flash.TotalPages()
	m.WearSpread = flash.WearSpread()
	m.GCRuns = ftl.GCRuns()
	m.Relocations = ftl.Relocations()
	if leveler != nil {
		m.Migrations = leveler.Migrations()
	}
	if m.FirstDeadTime < 0 && m.DeadPages > 0 {
		m.FirstDeadTime = now
	}
	if now%int64(sampleInterval) == 0 {
		m.Series = append(m.Series, Sample{Time: now, DeadPages: m.DeadPages})
	}
}

// Results aggregates both instances of a comparison run.
type Results struct {
	Config    SimConfig        `json:"config"`
	Leveled   *InstanceMetrics `json:"leveled"`
	Unleveled *InstanceMetrics `json:"unleveled"`
}
