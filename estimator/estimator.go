// Package estimator decides when the scheduler should grow or shrink its
// core set.
//
// The estimate consumes deltas between consecutive performance snapshots:
// load factor (weighted-loaded cycles over total cycles) argues for growth,
// utilized-core count against recorded expansion thresholds argues for
// shrink. The thresholds array plus a hysteresis band keeps the core count
// from oscillating: the runtime retracts only once utilization falls
// noticeably below the level that justified the previous expansion.
package estimator

import (
	"arachne/cycles"
	"arachne/perfstats"
)

// Verdicts returned by Estimate.
const (
	Shrink = -1
	Hold   = 0
	Grow   = 1
)

// Default tuning. Load factor above 1.0 means more than one runnable thread
// per core on average — queueing, not just utilization.
const (
	DefaultLoadFactorThreshold        = 1.0
	DefaultIdleCoreFractionHysteresis = 0.2
	DefaultSlotOccupancyThreshold     = 0.5
)

// Estimator holds the sliding baseline and per-level expansion thresholds.
// Not safe for concurrent use; the core load manager is its only caller.
type Estimator struct {
	LoadFactorThreshold        float64
	IdleCoreFractionHysteresis float64
	SlotOccupancyThreshold     float64

	maxNumCores  int
	slotsPerCore int

	collect func() perfstats.Stats

	prev   perfstats.Stats
	primed bool

	// utilizationThresholds[n] records totalUtilizedCores at the moment the
	// runtime grew past n active cores.
	utilizationThresholds []float64
}

// New builds an estimator over the given snapshot source.
func New(maxNumCores, slotsPerCore int, collect func() perfstats.Stats) *Estimator {
	return &Estimator{
		LoadFactorThreshold:        DefaultLoadFactorThreshold,
		IdleCoreFractionHysteresis: DefaultIdleCoreFractionHysteresis,
		SlotOccupancyThreshold:     DefaultSlotOccupancyThreshold,
		maxNumCores:                maxNumCores,
		slotsPerCore:               slotsPerCore,
		collect:                    collect,
		utilizationThresholds:      make([]float64, maxNumCores+1),
	}
}

// Estimate returns Shrink, Hold or Grow for the given active-core count.
// The first call primes the baseline and always holds.
func (e *Estimator) Estimate(curActiveCores int) int {
	if !e.primed {
		e.prev = e.collect()
		e.primed = true
		return Hold
	}

	cur := e.collect()
	defer func() { e.prev = cur }()

	idleCycles := cur.IdleCycles - e.prev.IdleCycles
	totalCycles := cur.TotalCycles - e.prev.TotalCycles
	if totalCycles == 0 {
		return Hold
	}
	utilizedCycles := totalCycles - idleCycles

	// FromNanoseconds rounds up, so the divisor is never zero.
	measurementCycles := cycles.FromNanoseconds(cur.CollectionTime - e.prev.CollectionTime)
	totalUtilizedCores := float64(utilizedCycles) / float64(measurementCycles)

	weightedLoadedCycles := cur.WeightedLoadedCycles - e.prev.WeightedLoadedCycles
	averageLoadFactor := float64(weightedLoadedCycles) / float64(totalCycles)
	if curActiveCores < e.maxNumCores && averageLoadFactor > e.LoadFactorThreshold {
		// Record the utilization that justified this expansion; ramp-down
		// triggers only once we fall clearly below it.
		e.utilizationThresholds[curActiveCores] = totalUtilizedCores
		return Grow
	}

	if curActiveCores <= 1 {
		return Hold
	}

	averageNumSlotsUsed := float64(cur.ThreadsCreated-cur.ThreadsFinished) /
		float64(curActiveCores) / float64(e.slotsPerCore)

	if totalUtilizedCores < e.utilizationThresholds[curActiveCores-1]-e.IdleCoreFractionHysteresis &&
		averageNumSlotsUsed < e.SlotOccupancyThreshold {
		return Shrink
	}
	return Hold
}

// NoteExpansion records the utilization accompanying an out-of-band grow
// (dispatcher pressure hints bypass Estimate). Without the record, ramp-down
// from the new level would have no threshold to fall below.
func (e *Estimator) NoteExpansion(curActiveCores int) {
	if curActiveCores < 0 || curActiveCores >= len(e.utilizationThresholds) {
		return
	}
	if !e.primed {
		// No baseline to measure against yet. Pressure implies the current
		// cores were saturated, so record full utilization for the level.
		e.utilizationThresholds[curActiveCores] = float64(curActiveCores)
		e.prev = e.collect()
		e.primed = true
		return
	}
	cur := e.collect()
	defer func() { e.prev = cur }()

	totalCycles := cur.TotalCycles - e.prev.TotalCycles
	if totalCycles == 0 {
		return
	}
	measurementCycles := cycles.FromNanoseconds(cur.CollectionTime - e.prev.CollectionTime)
	utilizedCycles := totalCycles - (cur.IdleCycles - e.prev.IdleCycles)
	e.utilizationThresholds[curActiveCores] =
		float64(utilizedCycles) / float64(measurementCycles)
}

// Reset clears historical load metrics; the next Estimate primes anew.
func (e *Estimator) Reset() {
	e.primed = false
	for i := range e.utilizationThresholds {
		e.utilizationThresholds[i] = 0
	}
}
