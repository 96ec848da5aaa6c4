package simulator

import "math/rand"

// OpKind represents the type of a workload operation
type OpKind int

const (
	OpIdle OpKind = iota
	OpRead
	OpWrite
)

// String returns the string representation of OpKind
func (k OpKind) String() string {
	switch k {
	case OpIdle:
		return "idle"
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	default:
		return "unknown"
	}
}

// Operation is one element of the workload stream. Time advances by one unit
// per operation; idle operations advance time without touching the device.
type Operation struct {
	Time int64
	Kind OpKind
	Addr int
	Data []byte
}

// WorkloadSource produces a lazy ordered stream of operations. Sources must
// be restartable: after Reset the same sequence is produced again, so the
// wear-leveled and baseline device instances can consume identical streams.
type WorkloadSource interface {
	Next() (Operation, bool)
	Reset()
}

// RandomWorkload generates one operation per time unit: idle with the
// configured probability, otherwise a read or write weighted by the config,
// over uniformly random logical addresses.
type RandomWorkload struct {
	cfg      WorkloadConfig
	pageSize int
	rng      *rand.Rand
	time     int64
}

// NewRandomWorkload creates a seeded generator. Write payloads are one page.
func NewRandomWorkload(cfg WorkloadConfig, pageSize int) *RandomWorkload {
	w := &RandomWorkload{cfg: cfg, pageSize: pageSize}
	w.Reset()
	return w
}

// Next returns the next operation, or false when the stream is exhausted.
func (w *RandomWorkload) Next() (Operation, bool) {
	if w.time >= int64(w.cfg.TimeUnits) {
		return Operation{}, false
	}
	t := w.time
	w.time++

	if w.rng.Float64() < w.cfg.IdleProbability {
		return Operation{Time: t, Kind: OpIdle}, true
	}

	if w.rng.Intn(w.cfg.WriteWeight+w.cfg.ReadWeight) < w.cfg.WriteWeight {
		data := make([]byte, w.pageSize)
		w.rng.Read(data)
		return Operation{Time: t, Kind: OpWrite, Addr: w.rng.Intn(w.cfg.AddressRange), Data: data}, true
	}
	return Operation{Time: t, Kind: OpRead, Addr: w.rng.Intn(w.cfg.AddressRange)}, true
}

// Reset rewinds the stream to the beginning.
func (w *RandomWorkload) Reset() {
	w.rng = rand.New(rand.NewSource(w.cfg.RandomSeed))
	w.time = 0
}

// HotRangeWorkload skews write traffic onto a narrow address range while
// keeping the rest of the stream shape. Useful for exercising static wear
// leveling, where concentrated churn drives wear apart.
type HotRangeWorkload struct {
	RandomWorkload
	hotStart int
	hotLen   int
	hotProb  float64
}

// NewHotRangeWorkload creates a generator that directs hotProb of the write
// and read addresses into [hotStart, hotStart+hotLen).
func NewHotRangeWorkload(cfg WorkloadConfig, pageSize, hotStart, hotLen int, hotProb float64) *HotRangeWorkload {
	w := &HotRangeWorkload{
		hotStart: hotStart,
		hotLen:   hotLen,
		hotProb:  hotProb,
	}
	w.cfg = cfg
	w.pageSize = pageSize
	w.Reset()
	return w
}

// Next returns the next operation with the address skew applied.
func (w *HotRangeWorkload) Next() (Operation, bool) {
	op, ok := w.RandomWorkload.Next()
	if !ok || op.Kind == OpIdle {
		return op, ok
	}
	if w.rng.Float64() < w.hotProb {
		op.Addr = w.hotStart + w.rng.Intn(w.hotLen)
	}
	return op, ok
}
