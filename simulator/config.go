package simulator

import (
	"os"

	"gopkg.in/yaml.v3"
)

// DeviceConfig holds the geometry and policy parameters of a single
// simulated flash device.
type DeviceConfig struct {
	// Geometry
	PageSizeBytes int `json:"pageSizeBytes" yaml:"pageSizeBytes"` // Bytes per page (2KB is typical for SLC NAND)
	PagesPerBlock int `json:"pagesPerBlock" yaml:"pagesPerBlock"` // Pages in each erase block
	BlockCount    int `json:"blockCount" yaml:"blockCount"`       // Total erase blocks on the device

	// Endurance
	PECycleThreshold int `json:"peCycleThreshold" yaml:"peCycleThreshold"` // P/E cycles before a block dies

	// Dynamic wear leveling
	CandidateSetSize int `json:"candidateSetSize" yaml:"candidateSetSize"` // K least-worn blocks considered per allocation

	// Static wear leveling
	StaticWLMinInterval        int `json:"staticWLMinInterval" yaml:"staticWLMinInterval"`               // Min time units between leveling passes
	StaticWLActivityWindow     int `json:"staticWLActivityWindow" yaml:"staticWLActivityWindow"`         // Time units before a block counts as dormant
	StaticWLMigrationThreshold int `json:"staticWLMigrationThreshold" yaml:"staticWLMigrationThreshold"` // Erase-count gap that qualifies a block pair
	GCMinActivityThreshold     int `json:"gcMinActivityThreshold" yaml:"gcMinActivityThreshold"`         // Min operations between leveling passes
}

// Validate checks if device configuration values are reasonable
func (c *DeviceConfig) Validate() error {
	if c.PageSizeBytes <= 0 {
		return ErrInvalidConfig("pageSizeBytes must be > 0")
	}
	if c.PagesPerBlock <= 0 {
		return ErrInvalidConfig("pagesPerBlock must be > 0")
	}
	if c.BlockCount <= 0 {
		return ErrInvalidConfig("blockCount must be > 0")
	}
	if c.PECycleThreshold <= 0 {
		return ErrInvalidConfig("peCycleThreshold must be > 0")
	}
	if c.CandidateSetSize <= 0 {
		return ErrInvalidConfig("candidateSetSize must be > 0")
	}
	if c.StaticWLMinInterval <= 0 {
		return ErrInvalidConfig("staticWLMinInterval must be > 0")
	}
	if c.StaticWLActivityWindow <= 0 {
		return ErrInvalidConfig("staticWLActivityWindow must be > 0")
	}
	if c.StaticWLMigrationThreshold <= 0 {
		return ErrInvalidConfig("staticWLMigrationThreshold must be > 0")
	}
	if c.GCMinActivityThreshold <= 0 {
		return ErrInvalidConfig("gcMinActivityThreshold must be > 0")
	}
	return nil
}

// TotalPages returns the physical page count of the device.
func (c *DeviceConfig) TotalPages() int {
	return c.BlockCount * c.PagesPerBlock
}

// WorkloadConfig holds parameters for the generated operation stream.
type WorkloadConfig struct {
	TimeUnits       int     `json:"timeUnits" yaml:"timeUnits"`             // Total time units; one operation per unit
	AddressRange    int     `json:"addressRange" yaml:"addressRange"`       // Logical addresses are drawn from [0, AddressRange)
	IdleProbability float64 `json:"idleProbability" yaml:"idleProbability"` // Fraction of units with no operation
	WriteWeight     int     `json:"writeWeight" yaml:"writeWeight"`         // Relative weight of writes
	ReadWeight      int     `json:"readWeight" yaml:"readWeight"`           // Relative weight of reads
	RandomSeed      int64   `json:"randomSeed" yaml:"randomSeed"`           // Seed for reproducible streams
}

// Validate checks if workload configuration values are reasonable
func (c *WorkloadConfig) Validate() error {
	if c.TimeUnits <= 0 {
		return ErrInvalidConfig("timeUnits must be > 0")
	}
	if c.AddressRange <= 0 {
		return ErrInvalidConfig("addressRange must be > 0")
	}
	if c.IdleProbability < 0 || c.IdleProbability >= 1 {
		return ErrInvalidConfig("idleProbability must be in [0, 1)")
	}
	if c.WriteWeight < 0 || c.ReadWeight < 0 {
		return ErrInvalidConfig("operation weights must be >= 0")
	}
	if c.WriteWeight+c.ReadWeight == 0 {
		return ErrInvalidConfig("at least one operation weight must be > 0")
	}
	return nil
}

// SimConfig holds all simulation parameters: device geometry/policies,
// the workload shape, and simulation control.
type SimConfig struct {
	Device   DeviceConfig   `json:"device" yaml:"device"`
	Workload WorkloadConfig `json:"workload" yaml:"workload"`

	// Simulation Control
	SampleInterval       int     `json:"sampleInterval" yaml:"sampleInterval"`             // Time units between dead-page samples
	DeadPageStopFraction float64 `json:"deadPageStopFraction" yaml:"deadPageStopFraction"` // Stop an instance once this fraction of pages is dead (0 = run full stream)
}

// DefaultConfig returns sensible defaults modeled on a small SLC NAND part
func DefaultConfig() SimConfig {
	return SimConfig{
		Device: DeviceConfig{
			PageSizeBytes:              2048, // 2KB pages (typical SLC NAND)
			PagesPerBlock:              64,
			BlockCount:                 64,
			PECycleThreshold:           100, // Scaled down from the usual 10K so lifetime effects show quickly
			CandidateSetSize:           8,
			StaticWLMinInterval:        1000,
			StaticWLActivityWindow:     1000,
			StaticWLMigrationThreshold: 20,
			GCMinActivityThreshold:     500,
		},
		Workload: WorkloadConfig{
			TimeUnits:       200000,
			AddressRange:    2048, // Half the physical pages, leaving over-provisioned space
			IdleProbability: 0.3,
			WriteWeight:     40,
			ReadWeight:      40,
			RandomSeed:      1,
		},
		SampleInterval:       100,
		DeadPageStopFraction: 0.2, // Stop when 20% of pages are dead
	}
}

// SmallDeviceConfig returns a tiny 4-blocks-by-4-pages device for tests
// and for understanding basic allocator behavior.
func SmallDeviceConfig() SimConfig {
	cfg := DefaultConfig()
	cfg.Device = DeviceConfig{
		PageSizeBytes:              128,
		PagesPerBlock:              4,
		BlockCount:                 4,
		PECycleThreshold:           3,
		CandidateSetSize:           2,
		StaticWLMinInterval:        10,
		StaticWLActivityWindow:     20,
		StaticWLMigrationThreshold: 2,
		GCMinActivityThreshold:     5,
	}
	cfg.Workload.AddressRange = 8
	cfg.Workload.TimeUnits = 100
	cfg.SampleInterval = 1
	return cfg
}

// Validate checks if configuration values are reasonable
func (c *SimConfig) Validate() error {
	if err := c.Device.Validate(); err != nil {
		return err
	}
	if err := c.Workload.Validate(); err != nil {
		return err
	}
	if c.SampleInterval <= 0 {
		return ErrInvalidConfig("sampleInterval must be > 0")
	}
	if c.DeadPageStopFraction < 0 || c.DeadPageStopFraction > 1 {
		return ErrInvalidConfig("deadPageStopFraction must be in [0, 1]")
	}
	return nil
}

// LoadConfig reads a SimConfig from a YAML file, starting from defaults so
// partial files only override what they name.
func LoadConfig(path string) (SimConfig, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, ErrInvalidConfig(err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
