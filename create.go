// create.go
//
// Thread creation. A creator on any core claims a slot through the target
// core's occupancy word, deposits the invocation, and publishes runnability
// with a single wakeup store — the linearization point the target core's
// dispatcher observes. No partial state survives a failed creation.

package arachne

import (
	"sync/atomic"
)

// CreateThreadOnCore starts fn as a user thread on the given core. Returns
// NullThread when the core id is invalid or all its slots are occupied
// (caller may retry elsewhere or apply back-pressure).
func CreateThreadOnCore(coreId int, fn func()) ThreadId {
	if fn == nil {
		return NullThread
	}
	c := coreByIndex(int32(coreId))
	if c == nil {
		return NullThread
	}
	return createOn(c, fn)
}

// CreateThread starts fn on an automatically chosen core: the least occupied
// one not currently draining.
func CreateThread(fn func()) ThreadId {
	if fn == nil {
		return NullThread
	}
	cores := coreSnapshot()
	var best *coreState
	bestCount := slotsPerCore + 1
	for _, c := range cores {
		if atomic.LoadUint32(&c.draining) != 0 {
			continue
		}
		if n := c.occupied.Count(); n < bestCount {
			best, bestCount = c, n
		}
	}
	if best == nil {
		return NullThread
	}
	return createOn(best, fn)
}

// createOn performs the reserve / deposit / publish sequence on one core. A
// draining core takes no new threads, or it would never finish draining.
func createOn(c *coreState, fn func()) ThreadId {
	if atomic.LoadUint32(&c.draining) != 0 {
		return NullThread
	}
	slot, ok := c.occupied.Reserve(slotsPerCore)
	if !ok {
		return NullThread
	}

	ctx := c.slots[slot]
	ctx.task = fn
	id := ThreadId{ctx: ctx, generation: atomic.LoadUint64(&ctx.generation)}
	c.stats.NoteCreated()

	// Publish: the slot becomes immediately runnable. Everything written
	// above is visible to the dispatcher once this store lands.
	ctx.setWakeup(0)
	return id
}
