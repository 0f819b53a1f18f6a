// corelocal.go
//
// Per-core scheduler state and the goroutine → core registry.
//
// Every scheduling core is one kernel thread: a goroutine locked to its OS
// thread and pinned to a physical CPU. All user contexts of a core execute on
// that same goroutine (the stack switch never changes the g), so the current
// core is recovered from the current g by a lock-free scan of a small fixed
// table. Registration happens under coreChangeMutex; lookups are plain atomic
// loads on the wakeup hot path.

package arachne

import (
	"sync/atomic"
	"unsafe"

	"arachne/maskcount"
	"arachne/perfstats"
	"arachne/swap"
)

// coreState is the thread-local block of one scheduling core.
type coreState struct {
	id int32 // kernelThreadId; index into the published core slice

	slots [slotsPerCore]*ThreadContext

	// occupied is the packed bitmap+count word, the sole cross-core CAS
	// target for creation and reclaim.
	occupied maskcount.MaskAndCount

	// publicPriorityMask collects elevation bits from signalers on any core;
	// privatePriorityMask is its core-local drain, consulted before the
	// round-robin scan.
	publicPriorityMask  uint64
	privatePriorityMask uint64

	loadedContext      *ThreadContext // context currently executing on this core
	nextCandidateIndex int            // round-robin resume point

	kernelSP uintptr // saved kernel-stack pointer for scheduler exit

	// draining marks a ramp-down victim: excluded from creation targeting,
	// exits its scheduler loop once occupancy reaches zero.
	draining uint32

	g      uintptr     // owning goroutine, keyed in the registry
	gState swap.GState // the goroutine's real stack descriptor, restored on exit

	stats perfstats.CoreStats

	lastDispatchExit uint64 // cycle stamp of the last switch-in, for load accounting
}

// coreTableSize bounds registered cores plus synthetic test cores.
const coreTableSize = 128

// coreBinding pairs a goroutine with its core for the registry scan.
type coreBinding struct {
	g    uintptr
	core *coreState
}

var coreTable [coreTableSize]unsafe.Pointer // *coreBinding entries

// registerCore binds the calling goroutine to c. Caller holds
// coreChangeMutex (or is a test-only binding racing with nothing).
func registerCore(c *coreState) bool {
	c.g = swap.Getg()
	b := &coreBinding{g: c.g, core: c}
	for i := range coreTable {
		if atomic.LoadPointer(&coreTable[i]) == nil &&
			atomic.CompareAndSwapPointer(&coreTable[i], nil, unsafe.Pointer(b)) {
			return true
		}
	}
	return false
}

// unregisterCore removes the calling goroutine's binding.
func unregisterCore(c *coreState) {
	for i := range coreTable {
		b := (*coreBinding)(atomic.LoadPointer(&coreTable[i]))
		if b != nil && b.core == c {
			atomic.StorePointer(&coreTable[i], nil)
			return
		}
	}
}

// currentCore returns the core bound to the calling goroutine, nil when the
// caller is not a scheduling core (and not under testInit).
//
//go:nosplit
func currentCore() *coreState {
	g := swap.Getg()
	for i := range coreTable {
		b := (*coreBinding)(atomic.LoadPointer(&coreTable[i]))
		if b != nil && b.g == g {
			return b.core
		}
	}
	return nil
}

// activeCores is the published snapshot of scheduling cores, replaced
// wholesale under coreChangeMutex so creators and signalers index it with a
// single atomic load.
var activeCores unsafe.Pointer // *[]*coreState

// coreSnapshot loads the current core slice.
//
//go:nosplit
func coreSnapshot() []*coreState {
	p := (*[]*coreState)(atomic.LoadPointer(&activeCores))
	if p == nil {
		return nil
	}
	return *p
}

// publishCores installs a new core slice. Caller holds coreChangeMutex.
func publishCores(cores []*coreState) {
	snapshot := make([]*coreState, len(cores))
	copy(snapshot, cores)
	atomic.StorePointer(&activeCores, unsafe.Pointer(&snapshot))
}

// coreByIndex bounds-checks an index against the snapshot.
//
//go:nosplit
func coreByIndex(id int32) *coreState {
	cores := coreSnapshot()
	if id < 0 || int(id) >= len(cores) {
		return nil
	}
	return cores[id]
}

// newCoreState preallocates a core's slot table with seeded stacks. Must run
// on the goroutine that will drive the core: every seeded frame captures its
// g.
func newCoreState(id int32, stackBytes int) *coreState {
	c := &coreState{id: id}
	g := swap.Getg()
	for i := range c.slots {
		c.slots[i] = newThreadContext(id, uint8(i), stackBytes, g)
	}
	return c
}
