// ============================================================================
// PERFSTATS: SCHEDULER PERFORMANCE COUNTERS
// ============================================================================
//
// Per-core cycle accounting consumed by the core load estimator and exported
// as JSON for diagnostics.
//
// Counter model:
//   - IdleCycles: cycles a core spent scanning without a runnable context
//   - TotalCycles: all cycles attributed to the core (idle + loaded)
//   - WeightedLoadedCycles: loaded cycles scaled by the occupancy observed
//     while running, so sustained multi-thread pressure reads above 1.0
//     load factor even though only one context runs at a time
//   - ThreadsCreated / ThreadsFinished: slot lifecycle odometers whose
//     difference yields live-thread occupancy
//
// Writers are the owning core's scheduler, plus creators on any core for
// ThreadsCreated (plain atomic adds, no CAS); CollectStats sums a registry snapshot into one aggregate with a monotonic
// collection timestamp.

package perfstats

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sugawarayuuta/sonnet"
)

// CoreStats is one core's counter block. Padded so two cores never share a
// cache line through the registry.
type CoreStats struct {
	IdleCycles           uint64
	TotalCycles          uint64
	WeightedLoadedCycles uint64
	ThreadsCreated       uint64
	ThreadsFinished      uint64
	_                    [3]uint64 // pad to a full cache line
}

// AddIdle attributes idle scan cycles.
//
//go:nosplit
func (s *CoreStats) AddIdle(c uint64) {
	atomic.AddUint64(&s.IdleCycles, c)
	atomic.AddUint64(&s.TotalCycles, c)
}

// AddLoaded attributes run cycles weighted by the occupancy seen while they
// accrued.
//
//go:nosplit
func (s *CoreStats) AddLoaded(c uint64, occupancy int) {
	atomic.AddUint64(&s.TotalCycles, c)
	atomic.AddUint64(&s.WeightedLoadedCycles, c*uint64(occupancy))
}

// NoteCreated counts one slot handed to a new thread.
//
//go:nosplit
func (s *CoreStats) NoteCreated() { atomic.AddUint64(&s.ThreadsCreated, 1) }

// NoteFinished counts one reclaimed slot.
//
//go:nosplit
func (s *CoreStats) NoteFinished() { atomic.AddUint64(&s.ThreadsFinished, 1) }

// Stats is an aggregate snapshot across all registered cores.
type Stats struct {
	CollectionTime       uint64 `json:"collectionTime"` // monotonic nanoseconds
	IdleCycles           uint64 `json:"idleCycles"`
	TotalCycles          uint64 `json:"totalCycles"`
	WeightedLoadedCycles uint64 `json:"weightedLoadedCycles"`
	ThreadsCreated       uint64 `json:"threadsCreated"`
	ThreadsFinished      uint64 `json:"threadsFinished"`
}

var (
	registryMu sync.Mutex
	registry   []*CoreStats
	timeBase   = time.Now()
)

// Register adds a core's counter block to the collection set.
func Register(s *CoreStats) {
	registryMu.Lock()
	registry = append(registry, s)
	registryMu.Unlock()
}

// Unregister removes a counter block. Its counted history is dropped with it;
// the estimator's sliding window absorbs the step.
func Unregister(s *CoreStats) {
	registryMu.Lock()
	for i, r := range registry {
		if r == s {
			registry = append(registry[:i], registry[i+1:]...)
			break
		}
	}
	registryMu.Unlock()
}

// ResetRegistry clears all registered cores. Runtime teardown does not call
// it: each core unregisters its own block as it unwinds.
func ResetRegistry() {
	registryMu.Lock()
	registry = nil
	registryMu.Unlock()
}

// CollectStats sums the registered cores into one snapshot.
func CollectStats() Stats {
	out := Stats{CollectionTime: uint64(time.Since(timeBase))}
	registryMu.Lock()
	for _, s := range registry {
		out.IdleCycles += atomic.LoadUint64(&s.IdleCycles)
		out.TotalCycles += atomic.LoadUint64(&s.TotalCycles)
		out.WeightedLoadedCycles += atomic.LoadUint64(&s.WeightedLoadedCycles)
		out.ThreadsCreated += atomic.LoadUint64(&s.ThreadsCreated)
		out.ThreadsFinished += atomic.LoadUint64(&s.ThreadsFinished)
	}
	registryMu.Unlock()
	return out
}

// Marshal renders a snapshot as JSON.
func (s Stats) Marshal() ([]byte, error) {
	return sonnet.Marshal(s)
}

// DumpStats writes the current aggregate snapshot as one JSON line.
func DumpStats(w io.Writer) error {
	buf, err := CollectStats().Marshal()
	if err != nil {
		return err
	}
	buf = append(buf, '\n')
	_, err = w.Write(buf)
	return err
}
