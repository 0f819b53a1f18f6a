// elasticity.go
//
// Core elasticity: growing the scheduling-core set on detected pressure and
// retiring cores when the load estimator recommends ramp-down.
//
// Dispatchers never spawn threads themselves — a pressure hint is one atomic
// store, and the core load manager (a plain goroutine outside the scheduler)
// performs the actual mutation under coreChangeMutex. Ramp-down policy:
// refuse to shrink while occupied. The victim core is marked draining, stops
// receiving new threads, and exits its scheduler loop only once its
// occupancy word reaches zero; user stacks never migrate between cores.

package arachne

import (
	"sync"
	"sync/atomic"
	"time"

	"arachne/debug"
	"arachne/estimator"
	"arachne/perfstats"
	"arachne/utils"
)

var (
	// coreChangeMutex serializes every mutation of the core set.
	coreChangeMutex sync.Mutex

	// numCoresPrecursor is the intended core count; it increases before the
	// new core registers and decreases after a core unwinds.
	numCoresPrecursor int32
	maxNumCores       int32

	// growRequested is the dispatcher's pressure hint.
	growRequested uint32

	kernelThreads sync.WaitGroup

	managerStop chan struct{}
	managerDone chan struct{}
)

// Manager cadence: pressure hints are honored quickly, the estimator runs an
// order of magnitude slower.
const (
	managerTick        = 5 * time.Millisecond
	estimatorEveryTick = 10
)

// requestCoreIncrease is the dispatcher-side pressure hint.
//
//go:nosplit
func requestCoreIncrease() {
	atomic.StoreUint32(&growRequested, 1)
}

// incrementCoreCount spawns one scheduling core if the intended count still
// has headroom. Under coreChangeMutex.
func incrementCoreCount() {
	coreChangeMutex.Lock()
	defer coreChangeMutex.Unlock()

	if atomic.LoadUint32(&shutdownFlag) != 0 {
		return
	}
	if atomic.LoadInt32(&numCoresPrecursor) >= atomic.LoadInt32(&maxNumCores) {
		return
	}
	atomic.AddInt32(&numCoresPrecursor, 1)

	// Slot table and stacks are allocated on the new kernel thread itself,
	// off the mutex and on the right NUMA node when the kernel cooperates.
	stackBytes := int(atomic.LoadInt64(&stackSize))
	kernelThreads.Add(1)
	go func() {
		kernelThreadMain(newCoreState(-1, stackBytes))
	}()
}

// decrementCoreCount marks the highest-indexed non-draining core as a
// ramp-down victim. Keeping the victim at the top preserves dense core
// indices once it unwinds.
func decrementCoreCount() {
	coreChangeMutex.Lock()
	defer coreChangeMutex.Unlock()

	cores := coreSnapshot()
	if len(cores) <= 1 {
		return
	}
	for i := len(cores) - 1; i > 0; i-- {
		if atomic.CompareAndSwapUint32(&cores[i].draining, 0, 1) {
			debug.DropMessage("ARACHNE_RAMPDOWN", "core "+utils.Itoa(i)+" draining")
			return
		}
	}
}

// coreLoadManager polls pressure hints and the load estimator until told to
// stop. Runs as an ordinary goroutine for the lifetime of the runtime.
func coreLoadManager(stop, done chan struct{}) {
	defer close(done)

	est := estimator.New(int(atomic.LoadInt32(&maxNumCores)), slotsPerCore, perfstats.CollectStats)
	ticker := time.NewTicker(managerTick)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		if atomic.LoadUint32(&shutdownFlag) != 0 {
			continue
		}

		if atomic.SwapUint32(&growRequested, 0) != 0 {
			// Pressure growth bypasses Estimate; record the utilization that
			// justified it so ramp-down has a threshold to compare against.
			if active := len(coreSnapshot()); active > 0 {
				est.NoteExpansion(active)
			}
			incrementCoreCount()
		}

		tick++
		if tick%estimatorEveryTick != 0 {
			continue
		}
		active := len(coreSnapshot())
		if active == 0 {
			continue
		}
		switch est.Estimate(active) {
		case estimator.Grow:
			incrementCoreCount()
		case estimator.Shrink:
			decrementCoreCount()
		}
	}
}
