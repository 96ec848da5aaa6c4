package simulator

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Instance is one simulated device: a flash model plus its translation
// layer, optionally supervised by a static wear leveler. The two instances
// of a comparison run share nothing.
type Instance struct {
	Name    string
	flash   *FlashMemory
	ftl     *FTL
	leveler *StaticWearLeveler // nil when wear leveling is disabled
	source  WorkloadSource
	metrics InstanceMetrics
	done    bool
}

func newInstance(name string, cfg SimConfig, wearLeveling bool, source WorkloadSource) (*Instance, error) {
	flash, err := NewFlashMemory(cfg.Device)
	if err != nil {
		return nil, err
	}
	ftl := NewFTL(flash, wearLeveling)
	inst := &Instance{
		Name:   name,
		flash:  flash,
		ftl:    ftl,
		source: source,
	}
	if wearLeveling {
		inst.leveler = NewStaticWearLeveler(flash, ftl)
	}
	inst.metrics.FirstDeadTime = -1
	return inst, nil
}

// Flash exposes the instance's hardware model (read-only interrogation).
func (inst *Instance) Flash() *FlashMemory { return inst.flash }

// FTL exposes the instance's translation layer.
func (inst *Instance) FTL() *FTL { return inst.ftl }

// Metrics returns a snapshot of the instance's metrics.
func (inst *Instance) Metrics() InstanceMetrics { return inst.metrics }

// Done reports whether the instance stopped consuming its stream.
func (inst *Instance) Done() bool { return inst.done }

// Simulator drives two device instances, wear leveling enabled and disabled,
// over identical operation streams and collects their dead-page series for
// comparison. Single-threaded and step-driven: one time unit per Step.
type Simulator struct {
	cfg       SimConfig
	leveled   *Instance
	unleveled *Instance

	// LogEvent, when set, receives per-operation failure notices (optional,
	// for UI/debugging).
	LogEvent func(msg string)
}

// NewSimulator creates the comparison pair with generated workloads. Both
// instances get independently seeded sources with the same seed, so they see
// identical streams.
func NewSimulator(cfg SimConfig) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newSimulator(cfg,
		NewRandomWorkload(cfg.Workload, cfg.Device.PageSizeBytes),
		NewRandomWorkload(cfg.Workload, cfg.Device.PageSizeBytes))
}

// NewSimulatorWithWorkloads creates the comparison pair over caller-supplied
// sources. The two sources must produce identical streams.
func NewSimulatorWithWorkloads(cfg SimConfig, leveled, unleveled WorkloadSource) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newSimulator(cfg, leveled, unleveled)
}

func newSimulator(cfg SimConfig, leveledSrc, unleveledSrc WorkloadSource) (*Simulator, error) {
	leveled, err := newInstance("wear-leveling", cfg, true, leveledSrc)
	if err != nil {
		return nil, err
	}
	unleveled, err := newInstance("baseline", cfg, false, unleveledSrc)
	if err != nil {
		return nil, err
	}
	return &Simulator{cfg: cfg, leveled: leveled, unleveled: unleveled}, nil
}

// Step advances both instances by one operation. Returns false once both
// instances have finished (stream exhausted or dead-page stop reached).
func (s *Simulator) Step() bool {
	s.stepInstance(s.leveled)
	s.stepInstance(s.unleveled)
	return !(s.leveled.done && s.unleveled.done)
}

func (s *Simulator) stepInstance(inst *Instance) {
	if inst.done {
		return
	}
	op, ok := inst.source.Next()
	if !ok {
		inst.done = true
		return
	}

	switch op.Kind {
	case OpIdle:
		inst.metrics.Idles++
	case OpWrite:
		inst.metrics.Writes++
		if err := inst.ftl.Write(op.Addr, op.Data, op.Time); err != nil {
			if !IsKind(err, KindOutOfSpace) {
				// BlockDead / PageNotFree here mean a broken allocator, not a
				// full device. Surface loudly instead of counting.
				logrus.Errorf("%s: write addr=%d t=%d: %v", inst.Name, op.Addr, op.Time, err)
			}
			inst.metrics.WriteFailures++
			s.logEvent("[%s t=%d] write %d failed: %v", inst.Name, op.Time, op.Addr, err)
		}
	case OpRead:
		inst.metrics.Reads++
		if _, err := inst.ftl.Read(op.Addr); err != nil {
			inst.metrics.ReadFailures++
			if !IsKind(err, KindAddressNotFound) {
				logrus.Errorf("%s: read addr=%d t=%d: %v", inst.Name, op.Addr, op.Time, err)
			}
		}
	}

	if inst.leveler != nil {
		inst.leveler.Tick(op.Time)
	}

	inst.metrics.update(op.Time, inst.flash, inst.ftl, inst.leveler, s.cfg.SampleInterval)

	if s.cfg.DeadPageStopFraction > 0 {
		frac := float64(inst.flash.DeadPageCount()) / float64(inst.flash.TotalPages())
		if frac > s.cfg.DeadPageStopFraction {
			logrus.Infof("%s: stopping at t=%d, %.1f%% of pages dead", inst.Name, op.Time, frac*100)
			inst.done = true
		}
	}
}

// Run steps the simulation to completion.
func (s *Simulator) Run() {
	for s.Step() {
	}
	logrus.Infof("simulation complete: leveled dead=%d/%d spread=%d, baseline dead=%d/%d spread=%d",
		s.leveled.metrics.DeadPages, s.leveled.metrics.TotalPages, s.leveled.metrics.WearSpread,
		s.unleveled.metrics.DeadPages, s.unleveled.metrics.TotalPages, s.unleveled.metrics.WearSpread)
}

// Leveled returns the wear-leveling-enabled instance.
func (s *Simulator) Leveled() *Instance { return s.leveled }

// Unleveled returns the baseline instance.
func (s *Simulator) Unleveled() *Instance { return s.unleveled }

// Config returns the simulation configuration.
func (s *Simulator) Config() SimConfig { return s.cfg }

// Results returns both instances' metrics and series for output.
func (s *Simulator) Results() Results {
	leveled := s.leveled.metrics
	unleveled := s.unleveled.metrics
	return Results{
		Config:    s.cfg,
		Leveled:   &leveled,
		Unleveled: &unleveled,
	}
}

func (s *Simulator) logEvent(format string, args ...interface{}) {
	if s.LogEvent != nil {
		s.LogEvent(fmt.Sprintf(format, args...))
	}
}
