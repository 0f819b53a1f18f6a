// arachne.go
//
// Public lifecycle surface of the runtime.
//
// Two-phase lifetime: Init brings up the initial scheduling cores, the core
// load manager and the optional stats archiver; ShutDown raises the global
// flag; WaitForTermination joins every kernel thread, tears all per-core
// state down and leaves the library reinitializable.

package arachne

import (
	"io"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"arachne/cycles"
	"arachne/debug"
	"arachne/perfstats"
	"arachne/statsdb"
	"arachne/swap"
	"arachne/utils"
)

// Initialization states.
const (
	notInitialized uint32 = iota
	initializing
	initialized
)

var (
	initState    uint32
	shutdownFlag uint32
	stackSize    int64 = defaultStackSize

	archiver *statsdb.Archiver
)

// coreCountCap bounds the scheduling-core set: the precomputed affinity masks
// cover logical CPUs 0-63.
const coreCountCap = 64

// Init starts the runtime, consuming its own options from argv and returning
// the remainder for the application. Recognized options: --numCores N,
// --maxNumCores N, --stackSize BYTES, --statsFile PATH. Calling Init on an
// initialized runtime strips the options and changes nothing.
func Init(argv []string) []string {
	opts, rest := parseOptions(argv)

	if !atomic.CompareAndSwapUint32(&initState, notInitialized, initializing) {
		return rest
	}

	if !swap.Supported {
		debug.Fatal("ARACHNE_INIT", "no stack-switch support on this architecture")
	}

	// Calibrate the cycle counter now, on the kernel stack, so no user
	// thread ever pays the calibration spin.
	cycles.PerSecond()

	atomic.StoreInt32(&maxNumCores, int32(opts.maxNumCores))
	atomic.StoreInt64(&stackSize, int64(opts.stackBytes))
	atomic.StoreUint32(&shutdownFlag, 0)

	for i := 0; i < opts.numCores; i++ {
		incrementCoreCount()
	}
	// Creation targets must be visible before Init returns.
	for len(coreSnapshot()) < opts.numCores {
		runtime.Gosched()
	}

	managerStop = make(chan struct{})
	managerDone = make(chan struct{})
	go coreLoadManager(managerStop, managerDone)

	if opts.statsFile != "" {
		a, err := statsdb.Open(opts.statsFile, 100*time.Millisecond)
		if err != nil {
			debug.DropError("ARACHNE_STATSDB", err)
		} else {
			archiver = a
			archiver.Start()
		}
	}

	debug.DropMessage("ARACHNE_INIT",
		utils.Itoa(opts.numCores)+" cores (max "+utils.Itoa(opts.maxNumCores)+
			"), stacks "+utils.Itoa(opts.stackBytes)+" bytes")

	atomic.StoreUint32(&initState, initialized)
	return rest
}

// ShutDown raises the global termination flag. Safe from any thread,
// including user threads; cores exit their scheduler loops once their last
// occupant finishes.
func ShutDown() {
	atomic.StoreUint32(&shutdownFlag, 1)
}

// WaitForTermination blocks until every scheduling core has unwound, then
// frees all per-core state. The library may be initialized again afterwards.
func WaitForTermination() {
	// The manager goes first so no new core can be spawned while we wait for
	// the existing ones to unwind.
	if managerStop != nil {
		close(managerStop)
		<-managerDone
		managerStop, managerDone = nil, nil
	}
	kernelThreads.Wait()

	if archiver != nil {
		archiver.Close()
		archiver = nil
	}

	coreChangeMutex.Lock()
	publishCores(nil)
	atomic.StoreInt32(&numCoresPrecursor, 0)
	atomic.StoreUint32(&growRequested, 0)
	coreChangeMutex.Unlock()

	atomic.StoreUint32(&shutdownFlag, 0)
	atomic.StoreUint32(&initState, notInitialized)
}

// SetErrorStream redirects diagnostic output. A nil stream restores stderr.
func SetErrorStream(w *os.File) {
	debug.SetStream(w)
}

// DumpStats writes one JSON line of aggregate scheduler counters to w.
func DumpStats(w io.Writer) error {
	return perfstats.DumpStats(w)
}

// testStackSize keeps TestInit cheap; synthetic contexts never run deep user
// code.
const testStackSize = 32 << 10

// TestInit installs just enough scheduling state for the calling goroutine
// to use the thread API without a running scheduler. The synthetic core is
// invisible to creation targeting and elasticity.
func TestInit() {
	c := &coreState{id: -1}
	g := swap.Getg()
	for i := range c.slots {
		c.slots[i] = newThreadContext(-1, uint8(i), testStackSize, g)
	}
	slot, _ := c.occupied.Reserve(slotsPerCore)
	c.loadedContext = c.slots[slot]
	c.loadedContext.setWakeup(slotBlocked)
	if !registerCore(c) {
		debug.Fatal("ARACHNE_TEST", "core registry full")
	}
}

// TestDestroy removes the state installed by TestInit.
func TestDestroy() {
	if c := currentCore(); c != nil && c.id == -1 {
		unregisterCore(c)
	}
}
